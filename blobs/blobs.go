// Package blobs decomposes a sequencer block into Celestia-bound blobs and
// verifies retrieved blobs against the block's commitments.
//
// A block becomes one sequencer blob (the header blob) plus one rollup blob
// per rollup. Every blob carries the full byte copies and audit paths it
// needs to be verified on its own, so a retriever holding only the block
// hash and a blob can establish membership without trusting the publisher.
package blobs

import (
	"errors"
	"fmt"

	"github.com/celestiaorg/sequencer-relayer-celestia/tree"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

// Verification and construction failure kinds. Proof failures are expected
// at runtime (an untrusted DA network serves whatever it likes) and are
// matched with errors.Is; malformed input is a producer bug and surfaces at
// construction or split time.
var (
	ErrMalformedInput                 = errors.New("malformed input")
	ErrInvalidRollupIdsProof          = errors.New("rollup ids proof does not match header commitment")
	ErrInvalidRollupTransactionsProof = errors.New("rollup transactions proof does not match header commitment")
	ErrMismatchedBlockHash            = errors.New("blob does not belong to the claimed block")
	ErrUnknownRollupId                = errors.New("rollup id is not listed in the sequencer blob")
)

// CelestiaRollupBlob is one rollup's committed transaction bundle together
// with its proof of inclusion under the block's rollup-transactions root.
//
// Wire contract (schema field numbers, fixed across implementations):
// 1=sequencer_block_hash (32 bytes), 2=rollup_id (32 bytes),
// 3=transactions (ordered opaque byte strings), 4=proof.
type CelestiaRollupBlob struct {
	SequencerBlockHash types.BlockHash `json:"sequencer_block_hash"`
	RollupId           types.RollupId  `json:"rollup_id"`
	Transactions       [][]byte        `json:"transactions"`
	Proof              tree.AuditPath  `json:"proof"`
}

// CelestiaSequencerBlob is the block's header blob: the header, the ordered
// rollup ID list, and the two top-level audit paths binding the
// rollup-transactions root and the rollup-IDs root to the header's DataHash.
//
// Wire contract (schema field numbers, fixed across implementations):
// 1=block_hash (32 bytes), 2=header, 3=rollup_ids (ordered 32-byte ids),
// 4=rollup_transactions_proof, 5=rollup_ids_proof.
type CelestiaSequencerBlob struct {
	BlockHash               types.BlockHash            `json:"block_hash"`
	Header                  types.SequencerBlockHeader `json:"header"`
	RollupIds               []types.RollupId           `json:"rollup_ids"`
	RollupTransactionsProof tree.AuditPath             `json:"rollup_transactions_proof"`
	RollupIdsProof          tree.AuditPath             `json:"rollup_ids_proof"`
}

// NewCelestiaRollupBlob validates field lengths and assembles a rollup blob.
// Transactions are copied so the blob does not alias caller memory.
func NewCelestiaRollupBlob(blockHash, rollupId []byte, transactions [][]byte, proof tree.AuditPath) (CelestiaRollupBlob, error) {
	hash, err := types.BlockHashFromBytes(blockHash)
	if err != nil {
		return CelestiaRollupBlob{}, malformed(err)
	}
	id, err := types.RollupIdFromBytes(rollupId)
	if err != nil {
		return CelestiaRollupBlob{}, malformed(err)
	}
	return CelestiaRollupBlob{
		SequencerBlockHash: hash,
		RollupId:           id,
		Transactions:       copyTransactions(transactions),
		Proof:              proof,
	}, nil
}

// RollupTransactionsLeaf computes the leaf pre-image a rollup's transaction
// bundle contributes to the block's rollup-transactions tree: the Merkle
// root over the bundle's transactions in submission order.
func RollupTransactionsLeaf(transactions [][]byte) []byte {
	root := tree.RootFromByteSlices(transactions)
	return root[:]
}

// RollupIdsRoot computes the commitment over an ordered rollup ID list.
func RollupIdsRoot(ids []types.RollupId) [tree.HashSize]byte {
	items := make([][]byte, len(ids))
	for i, id := range ids {
		items[i] = id.Bytes()
	}
	return tree.RootFromByteSlices(items)
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedInput, err)
}

func copyTransactions(transactions [][]byte) [][]byte {
	if transactions == nil {
		return nil
	}
	out := make([][]byte, len(transactions))
	for i, tx := range transactions {
		out[i] = append([]byte{}, tx...)
	}
	return out
}
