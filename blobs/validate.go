package blobs

import (
	"fmt"

	"github.com/celestiaorg/sequencer-relayer-celestia/tree"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

// HeaderHashFunc recomputes a block hash from a header. The default is the
// header's own Hash method; validators embedded in other stacks can plug in
// their consensus engine's hashing instead.
type HeaderHashFunc func(*types.SequencerBlockHeader) types.BlockHash

// ValidateOption adjusts how Validate checks a blob set.
type ValidateOption func(*validateOptions)

type validateOptions struct {
	headerHash HeaderHashFunc
}

// WithHeaderHash overrides the block-hash recomputation used to tie the
// sequencer blob's claimed hash back to its header.
func WithHeaderHash(fn HeaderHashFunc) ValidateOption {
	return func(o *validateOptions) {
		o.headerHash = fn
	}
}

// VerifiedBlock is the outcome of a successful Validate call: the header and
// the subset of rollup transaction bundles whose proofs checked out, frozen
// at construction. Accessors copy on the way out.
type VerifiedBlock struct {
	blockHash    types.BlockHash
	header       types.SequencerBlockHeader
	rollupIds    []types.RollupId
	transactions map[types.RollupId][][]byte
}

func (b *VerifiedBlock) BlockHash() types.BlockHash {
	return b.blockHash
}

func (b *VerifiedBlock) Header() types.SequencerBlockHeader {
	return b.header
}

// RollupIds returns the full committed rollup ID list, including rollups
// whose blobs were not presented for validation.
func (b *VerifiedBlock) RollupIds() []types.RollupId {
	out := make([]types.RollupId, len(b.rollupIds))
	copy(out, b.rollupIds)
	return out
}

// Transactions returns the verified transaction bundle for a rollup, or
// false if no blob for that rollup was validated.
func (b *VerifiedBlock) Transactions(id types.RollupId) ([][]byte, bool) {
	txs, ok := b.transactions[id]
	if !ok {
		return nil, false
	}
	return copyTransactions(txs), true
}

// VerifiedRollupCount reports how many rollup bundles were verified; callers
// compare against len(RollupIds()) to decide whether a partial view is
// acceptable.
func (b *VerifiedBlock) VerifiedRollupCount() int {
	return len(b.transactions)
}

// Validate checks a sequencer blob and any subset of its rollup blobs
// against the header's commitments and reassembles the verified view.
//
// The set may be incomplete: DA retrieval returns whatever survived the
// network, and missing rollups are not an error. The only guarantee is that
// every bundle exposed by the returned VerifiedBlock is genuine.
func Validate(sequencerBlob CelestiaSequencerBlob, rollupBlobs []CelestiaRollupBlob, opts ...ValidateOption) (*VerifiedBlock, error) {
	options := validateOptions{
		headerHash: func(h *types.SequencerBlockHeader) types.BlockHash { return h.Hash() },
	}
	for _, opt := range opts {
		opt(&options)
	}

	header := sequencerBlob.Header
	if options.headerHash(&header) != sequencerBlob.BlockHash {
		return nil, fmt.Errorf("%w: header does not hash to the claimed block hash", ErrMismatchedBlockHash)
	}

	// Canonical leaf order of the rollup-transactions tree is the order of
	// the committed ID list.
	leafPosition := make(map[types.RollupId]uint64, len(sequencerBlob.RollupIds))
	for i, id := range sequencerBlob.RollupIds {
		if _, ok := leafPosition[id]; ok {
			return nil, fmt.Errorf("%w: rollup id %s appears twice in rollup_ids", ErrMalformedInput, id)
		}
		leafPosition[id] = uint64(i)
	}

	idsRoot := RollupIdsRoot(sequencerBlob.RollupIds)
	if idsRoot != header.RollupIdsRoot {
		return nil, fmt.Errorf("%w: rollup_ids list does not hash to the header's rollup ids root", ErrInvalidRollupIdsProof)
	}
	if !tree.VerifyInclusion(idsRoot[:], sequencerBlob.RollupIdsProof, header.DataHash[:]) {
		return nil, fmt.Errorf("%w: rollup ids root is not committed under the block's data hash", ErrInvalidRollupIdsProof)
	}
	if !tree.VerifyInclusion(header.RollupTransactionsRoot[:], sequencerBlob.RollupTransactionsProof, header.DataHash[:]) {
		return nil, fmt.Errorf("%w: rollup transactions root is not committed under the block's data hash", ErrInvalidRollupTransactionsProof)
	}

	transactions := make(map[types.RollupId][][]byte, len(rollupBlobs))
	for _, blob := range rollupBlobs {
		if err := verifyRollupBlob(&sequencerBlob, &blob, leafPosition); err != nil {
			return nil, err
		}
		if _, ok := transactions[blob.RollupId]; ok {
			return nil, fmt.Errorf("%w: two rollup blobs presented for %s", ErrMalformedInput, blob.RollupId)
		}
		transactions[blob.RollupId] = copyTransactions(blob.Transactions)
	}

	rollupIds := make([]types.RollupId, len(sequencerBlob.RollupIds))
	copy(rollupIds, sequencerBlob.RollupIds)
	return &VerifiedBlock{
		blockHash:    sequencerBlob.BlockHash,
		header:       header,
		rollupIds:    rollupIds,
		transactions: transactions,
	}, nil
}

// ValidateRollupBlob checks a single rollup blob against an already-trusted
// sequencer blob. Retrievers use this to reject individual corrupted blobs
// and keep the rest, rather than discarding a whole block.
func ValidateRollupBlob(sequencerBlob CelestiaSequencerBlob, blob CelestiaRollupBlob) error {
	leafPosition := make(map[types.RollupId]uint64, len(sequencerBlob.RollupIds))
	for i, id := range sequencerBlob.RollupIds {
		leafPosition[id] = uint64(i)
	}
	return verifyRollupBlob(&sequencerBlob, &blob, leafPosition)
}

func verifyRollupBlob(sequencerBlob *CelestiaSequencerBlob, blob *CelestiaRollupBlob, leafPosition map[types.RollupId]uint64) error {
	if blob.SequencerBlockHash != sequencerBlob.BlockHash {
		return fmt.Errorf(
			"%w: rollup blob for %s claims block %s, sequencer blob is for %s",
			ErrMismatchedBlockHash, blob.RollupId, blob.SequencerBlockHash, sequencerBlob.BlockHash,
		)
	}
	position, ok := leafPosition[blob.RollupId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRollupId, blob.RollupId)
	}
	if blob.Proof.LeafIndex != position {
		return fmt.Errorf(
			"%w: rollup %s proof is for leaf %d, canonical position is %d",
			ErrInvalidRollupTransactionsProof, blob.RollupId, blob.Proof.LeafIndex, position,
		)
	}
	leaf := RollupTransactionsLeaf(blob.Transactions)
	if !tree.VerifyInclusion(leaf, blob.Proof, sequencerBlob.Header.RollupTransactionsRoot[:]) {
		return fmt.Errorf(
			"%w: transaction bundle for rollup %s fails inclusion under the rollup transactions root",
			ErrInvalidRollupTransactionsProof, blob.RollupId,
		)
	}
	return nil
}
