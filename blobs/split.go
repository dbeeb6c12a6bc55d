package blobs

import (
	"fmt"

	"github.com/celestiaorg/sequencer-relayer-celestia/tree"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

// RollupBundle is one rollup's slice of a sequencer block: its identifier
// and the ordered transactions destined for it.
type RollupBundle struct {
	RollupId     types.RollupId `json:"rollup_id"`
	Transactions [][]byte       `json:"transactions"`
}

// Split packages a sequencer block into its header blob and one rollup blob
// per bundle. The bundles must already be in the canonical order the block
// producer committed them in, and bundleProofs[i] must be the audit path for
// the i-th bundle's leaf under the header's rollup-transactions root; Split
// packages committed data, it does not commit.
//
// Split is a pure transformation. Any precondition violation (duplicate
// rollup id, proof/bundle count mismatch) fails with ErrMalformedInput and
// produces no partial output.
func Split(
	header types.SequencerBlockHeader,
	bundles []RollupBundle,
	rollupTransactionsProof tree.AuditPath,
	rollupIdsProof tree.AuditPath,
	bundleProofs []tree.AuditPath,
) (CelestiaSequencerBlob, []CelestiaRollupBlob, error) {
	if len(bundleProofs) != len(bundles) {
		return CelestiaSequencerBlob{}, nil, fmt.Errorf(
			"%w: %d bundle proofs supplied for %d rollup bundles",
			ErrMalformedInput, len(bundleProofs), len(bundles),
		)
	}

	seen := make(map[types.RollupId]struct{}, len(bundles))
	rollupIds := make([]types.RollupId, len(bundles))
	for i, bundle := range bundles {
		if _, ok := seen[bundle.RollupId]; ok {
			return CelestiaSequencerBlob{}, nil, fmt.Errorf(
				"%w: rollup id %s appears twice", ErrMalformedInput, bundle.RollupId,
			)
		}
		seen[bundle.RollupId] = struct{}{}
		rollupIds[i] = bundle.RollupId
	}

	blockHash := header.Hash()

	rollupBlobs := make([]CelestiaRollupBlob, len(bundles))
	for i, bundle := range bundles {
		rollupBlobs[i] = CelestiaRollupBlob{
			SequencerBlockHash: blockHash,
			RollupId:           bundle.RollupId,
			Transactions:       copyTransactions(bundle.Transactions),
			Proof:              bundleProofs[i],
		}
	}

	sequencerBlob := CelestiaSequencerBlob{
		BlockHash:               blockHash,
		Header:                  header,
		RollupIds:               rollupIds,
		RollupTransactionsProof: rollupTransactionsProof,
		RollupIdsProof:          rollupIdsProof,
	}
	return sequencerBlob, rollupBlobs, nil
}
