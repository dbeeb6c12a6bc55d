package relayerserver

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/celestiaorg/sequencer-relayer-celestia/blobs"
	"github.com/celestiaorg/sequencer-relayer-celestia/cmd/genericconf"
	"github.com/celestiaorg/sequencer-relayer-celestia/tree"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

// stubBackend keeps submitted blobs in memory and serves them back, so the
// server and client can be exercised without a Celestia connection.
type stubBackend struct {
	height         uint64
	sequencerBlobs []blobs.CelestiaSequencerBlob
	rollupBlobs    []blobs.CelestiaRollupBlob
}

func (s *stubBackend) SubmitBlock(_ context.Context, sequencerBlob blobs.CelestiaSequencerBlob, rollupBlobs []blobs.CelestiaRollupBlob) (uint64, error) {
	s.sequencerBlobs = append(s.sequencerBlobs, sequencerBlob)
	s.rollupBlobs = append(s.rollupBlobs, rollupBlobs...)
	return s.height, nil
}

func (s *stubBackend) GetSequencerBlobs(_ context.Context, height uint64) ([]blobs.CelestiaSequencerBlob, error) {
	if height != s.height {
		return nil, nil
	}
	return s.sequencerBlobs, nil
}

func (s *stubBackend) GetRollupBlobs(_ context.Context, height uint64, sequencerBlob blobs.CelestiaSequencerBlob) ([]blobs.CelestiaRollupBlob, error) {
	out := make([]blobs.CelestiaRollupBlob, 0, len(s.rollupBlobs))
	for _, b := range s.rollupBlobs {
		if height == s.height && b.SequencerBlockHash == sequencerBlob.BlockHash {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubBackend) RetrieveBlock(ctx context.Context, height uint64, blockHash types.BlockHash) (*blobs.VerifiedBlock, error) {
	sequencerBlobs, err := s.GetSequencerBlobs(ctx, height)
	if err != nil {
		return nil, err
	}
	for _, sequencerBlob := range sequencerBlobs {
		if sequencerBlob.BlockHash != blockHash {
			continue
		}
		rollupBlobs, err := s.GetRollupBlobs(ctx, height, sequencerBlob)
		if err != nil {
			return nil, err
		}
		return blobs.Validate(sequencerBlob, rollupBlobs)
	}
	return nil, fmt.Errorf("no block %s at height %d", blockHash, height)
}

func testSubmitRequest(t *testing.T, n int) *SubmitBlockRequest {
	t.Helper()
	bundles := make([]blobs.RollupBundle, n)
	txLeaves := make([][]byte, n)
	ids := make([]types.RollupId, n)
	for i := range bundles {
		var id types.RollupId
		id[0] = byte(i + 1)
		bundles[i] = blobs.RollupBundle{
			RollupId:     id,
			Transactions: [][]byte{[]byte(fmt.Sprintf("tx-%d", i))},
		}
		txLeaves[i] = blobs.RollupTransactionsLeaf(bundles[i].Transactions)
		ids[i] = id
	}
	txsRoot, bundleProofs := tree.ProofsFromByteSlices(txLeaves)
	idsRoot := blobs.RollupIdsRoot(ids)
	dataHash, topProofs := tree.ProofsFromByteSlices([][]byte{txsRoot[:], idsRoot[:]})

	return &SubmitBlockRequest{
		Header: types.SequencerBlockHeader{
			ChainID:                "relayer-test-1",
			Height:                 12,
			Time:                   time.Unix(1700000000, 0).UTC(),
			DataHash:               dataHash,
			RollupTransactionsRoot: txsRoot,
			RollupIdsRoot:          idsRoot,
		},
		Bundles:                 bundles,
		RollupTransactionsProof: topProofs[0],
		RollupIdsProof:          topProofs[1],
		BundleProofs:            bundleProofs,
	}
}

func TestRPCServer_SubmitAndRetrieve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &stubBackend{height: 99}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	_, err = StartRPCServerOnListener(ctx, listener, genericconf.HTTPServerTimeoutConfigDefault, genericconf.HTTPServerBodyLimitDefault, backend, backend)
	if err != nil {
		t.Fatalf("failed to start RPC server: %v", err)
	}

	client, err := NewClient(ctx, ClientConfig{RPCURL: "http://" + listener.Addr().String(), RequestTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("failed to dial server: %v", err)
	}
	defer client.Close()

	req := testSubmitRequest(t, 2)
	submitted, err := client.SubmitBlock(ctx, req)
	if err != nil {
		t.Fatalf("SubmitBlock failed: %v", err)
	}
	if uint64(submitted.Height) != 99 {
		t.Fatalf("expected height 99, got %d", submitted.Height)
	}
	if submitted.BlockHash != req.Header.Hash() {
		t.Fatal("submitted block hash does not match the header hash")
	}

	sequencerBlobs, err := client.GetSequencerBlobs(ctx, 99)
	if err != nil {
		t.Fatalf("GetSequencerBlobs failed: %v", err)
	}
	if len(sequencerBlobs) != 1 || sequencerBlobs[0].BlockHash != submitted.BlockHash {
		t.Fatalf("unexpected sequencer blobs: %+v", sequencerBlobs)
	}

	retrieved, err := client.RetrieveBlock(ctx, 99, submitted.BlockHash)
	if err != nil {
		t.Fatalf("RetrieveBlock failed: %v", err)
	}
	if retrieved.BlockHash != submitted.BlockHash {
		t.Fatal("retrieved block hash does not match")
	}
	if len(retrieved.Rollups) != len(req.Bundles) {
		t.Fatalf("expected %d verified rollups, got %d", len(req.Bundles), len(retrieved.Rollups))
	}
	for i, rollup := range retrieved.Rollups {
		if rollup.RollupId != req.Bundles[i].RollupId {
			t.Fatalf("rollup %d id mismatch", i)
		}
		if !bytes.Equal(rollup.Transactions[0], req.Bundles[i].Transactions[0]) {
			t.Fatalf("rollup %d transactions changed through the RPC round trip", i)
		}
	}
}

func TestRPCServer_SubmitRejectsMalformedBlock(t *testing.T) {
	serv := &RelayerRPCServer{reader: &stubBackend{}, writer: &stubBackend{}}

	req := testSubmitRequest(t, 3)
	req.BundleProofs = req.BundleProofs[:1]
	if _, err := serv.SubmitBlock(context.Background(), req); err == nil {
		t.Fatal("malformed submit request accepted")
	}
}

func TestStartRPCServerOnListener_RequiresWriter(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := StartRPCServerOnListener(ctx, listener, genericconf.HTTPServerTimeoutConfigDefault, 0, &stubBackend{}, nil); err == nil {
		t.Fatal("server started without a writer backend")
	}
}
