package signer

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testPayload struct {
	Height int64    `json:"height"`
	Hash   []byte   `json:"hash"`
	Txs    [][]byte `json:"txs"`
}

func TestSignVerify_RoundTrip(t *testing.T) {
	s, err := FromSeed(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("FromSeed failed: %v", err)
	}
	payload := testPayload{Height: 9, Hash: []byte{0x01, 0x02}, Txs: [][]byte{[]byte("tx")}}

	blob, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	raw, err := blob.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	decoded, err := SignedBlobFromBytes(raw)
	if err != nil {
		t.Fatalf("SignedBlobFromBytes failed: %v", err)
	}
	var got testPayload
	if err := decoded.Unwrap(&got); err != nil {
		t.Fatalf("Unwrap failed: %v", err)
	}
	if got.Height != payload.Height || !bytes.Equal(got.Hash, payload.Hash) {
		t.Fatal("payload changed through the signed round trip")
	}
}

func TestVerify_RejectsTampering(t *testing.T) {
	s, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	blob, err := s.Sign(testPayload{Height: 1})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	t.Run("tampered payload", func(t *testing.T) {
		tampered := blob
		tampered.Data = append([]byte{}, blob.Data...)
		tampered.Data[2] ^= 0x01
		if err := tampered.Verify(); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("tampered signature", func(t *testing.T) {
		tampered := blob
		tampered.Signature = append([]byte{}, blob.Signature...)
		tampered.Signature[0] ^= 0x01
		if err := tampered.Verify(); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		tampered := blob
		tampered.PublicKey = other.PublicKey()
		if err := tampered.Verify(); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("truncated key", func(t *testing.T) {
		tampered := blob
		tampered.PublicKey = blob.PublicKey[:16]
		if err := tampered.Verify(); !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
		}
	})
}

func TestFromFile(t *testing.T) {
	seed := bytes.Repeat([]byte{0x17}, 32)
	path := filepath.Join(t.TempDir(), "relayer.key")
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	fromFile, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	fromSeed, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed failed: %v", err)
	}
	if !bytes.Equal(fromFile.PublicKey(), fromSeed.PublicKey()) {
		t.Fatal("FromFile derived a different key than FromSeed")
	}

	if _, err := FromFile(filepath.Join(t.TempDir(), "missing.key")); err == nil {
		t.Fatal("FromFile accepted a missing file")
	}
}

func TestFromSeed_RejectsBadLengths(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := FromSeed(make([]byte, n)); err == nil {
			t.Errorf("FromSeed accepted %d-byte seed", n)
		}
	}
}
