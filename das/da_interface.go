package das

import (
	"context"

	"github.com/celestiaorg/sequencer-relayer-celestia/blobs"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

type BlockWriter interface {
	SubmitBlock(ctx context.Context, sequencerBlob blobs.CelestiaSequencerBlob, rollupBlobs []blobs.CelestiaRollupBlob) (uint64, error)
}

type BlockReader interface {
	GetSequencerBlobs(ctx context.Context, height uint64) ([]blobs.CelestiaSequencerBlob, error)
	GetRollupBlobs(ctx context.Context, height uint64, sequencerBlob blobs.CelestiaSequencerBlob) ([]blobs.CelestiaRollupBlob, error)
	RetrieveBlock(ctx context.Context, height uint64, blockHash types.BlockHash) (*blobs.VerifiedBlock, error)
}
