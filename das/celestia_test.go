package das

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/celestiaorg/celestia-openrpc/types/share"

	"github.com/celestiaorg/sequencer-relayer-celestia/blobs"
	"github.com/celestiaorg/sequencer-relayer-celestia/signer"
	"github.com/celestiaorg/sequencer-relayer-celestia/tree"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

func testClient(t *testing.T) *CelestiaClient {
	t.Helper()
	namespace, err := share.NewBlobNamespaceV0(bytes.Repeat([]byte{0x01}, types.NamespaceSize))
	if err != nil {
		t.Fatalf("failed to build test namespace: %v", err)
	}
	s, err := signer.FromSeed(bytes.Repeat([]byte{0x07}, 32))
	if err != nil {
		t.Fatalf("failed to build test signer: %v", err)
	}
	return &CelestiaClient{
		Cfg:       &DAConfig{GasPrice: 0.01, GasMultiplier: 1.5, SubmitTimeout: time.Minute},
		Namespace: namespace,
		Signer:    s,
	}
}

func testBlock(t *testing.T, n int) (blobs.CelestiaSequencerBlob, []blobs.CelestiaRollupBlob) {
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

	header := types.SequencerBlockHeader{
		ChainID:                "relayer-test-1",
		Height:                 3,
		Time:                   time.Unix(1700000000, 0).UTC(),
		DataHash:               dataHash,
		RollupTransactionsRoot: txsRoot,
		RollupIdsRoot:          idsRoot,
	}
	sequencerBlob, rollupBlobs, err := blobs.Split(header, bundles, topProofs[0], topProofs[1], bundleProofs)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	return sequencerBlob, rollupBlobs
}

func TestPackBlock_RoundTrip(t *testing.T) {
	client := testClient(t)
	sequencerBlob, rollupBlobs := testBlock(t, 3)

	packed, err := client.packBlock(sequencerBlob, rollupBlobs)
	if err != nil {
		t.Fatalf("packBlock failed: %v", err)
	}
	if len(packed) != 4 {
		t.Fatalf("expected 4 packed blobs, got %d", len(packed))
	}

	if !bytes.Equal(packed[0].Namespace, client.Namespace) {
		t.Fatal("sequencer blob not filed under the base namespace")
	}
	var gotSequencer blobs.CelestiaSequencerBlob
	if err := unwrapSigned(packed[0].Data, &gotSequencer); err != nil {
		t.Fatalf("failed to unwrap sequencer blob: %v", err)
	}
	if gotSequencer.BlockHash != sequencerBlob.BlockHash {
		t.Fatal("sequencer blob changed through the signed round trip")
	}

	for i, rollupBlob := range rollupBlobs {
		wantNamespace, err := NamespaceForRollup(rollupBlob.RollupId)
		if err != nil {
			t.Fatalf("NamespaceForRollup failed: %v", err)
		}
		if !bytes.Equal(packed[i+1].Namespace, wantNamespace) {
			t.Fatalf("rollup blob %d filed under the wrong namespace", i)
		}
		var gotRollup blobs.CelestiaRollupBlob
		if err := unwrapSigned(packed[i+1].Data, &gotRollup); err != nil {
			t.Fatalf("failed to unwrap rollup blob %d: %v", i, err)
		}
		if err := blobs.ValidateRollupBlob(sequencerBlob, gotRollup); err != nil {
			t.Fatalf("unpacked rollup blob %d fails verification: %v", i, err)
		}
	}
}

func TestUnwrapSigned_RejectsTampering(t *testing.T) {
	client := testClient(t)
	sequencerBlob, _ := testBlock(t, 1)

	raw, err := seal(client.Signer, sequencerBlob)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	var decoded blobs.CelestiaSequencerBlob
	if err := unwrapSigned(raw, &decoded); err != nil {
		t.Fatalf("unwrapSigned rejected an honest envelope: %v", err)
	}

	tampered := append([]byte{}, raw...)
	tampered[len(tampered)/2] ^= 0x01
	if err := unwrapSigned(tampered, &decoded); err == nil {
		t.Fatal("unwrapSigned accepted a tampered envelope")
	}

	if err := unwrapSigned([]byte("not an envelope"), &decoded); !errors.Is(err, signer.ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
}

func TestNamespaceForRollup_MatchesDerivation(t *testing.T) {
	var id types.RollupId
	id[0] = 0xaa

	namespace, err := NamespaceForRollup(id)
	if err != nil {
		t.Fatalf("NamespaceForRollup failed: %v", err)
	}
	derived := types.NamespaceForRollup(id)
	if !bytes.Equal(namespace[len(namespace)-types.NamespaceSize:], derived.Bytes()) {
		t.Fatal("share namespace does not end with the derived namespace bytes")
	}
}

func TestIsRetryableSubmitError(t *testing.T) {
	for _, tc := range []struct {
		err       error
		retryable bool
	}{
		{fmt.Errorf("rpc: %w", ErrTxTimedout), true},
		{fmt.Errorf("broadcast: %s", ErrTxAlreadyInMempool.Error()), true},
		{fmt.Errorf("account: %s", ErrTxIncorrectAccountSequence.Error()), true},
		{errors.New("insufficient funds"), false},
		{errors.New("connection refused"), false},
	} {
		if got := isRetryableSubmitError(tc.err); got != tc.retryable {
			t.Errorf("isRetryableSubmitError(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestBumpGasPrice(t *testing.T) {
	first := bumpGasPrice(defaultGasPrice, 0.02, 1.5)
	if first != 0.02 {
		t.Fatalf("first bump should hit the configured floor, got %v", first)
	}
	second := bumpGasPrice(first, 0.02, 1.5)
	if second <= first {
		t.Fatalf("second bump should raise the price, got %v after %v", second, first)
	}
}
