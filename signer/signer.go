// Package signer wraps relayer payloads in a signed envelope before they
// leave for the DA network, and verifies envelopes on the way back.
//
// The envelope binds a JSON payload to the relayer's ed25519 identity:
// the signature covers sha256 of the exact payload bytes carried in the
// envelope, so a verifier never has to re-serialize the payload to check
// it. Verification uses ZIP-215 rules so every node accepts the same set
// of signatures.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hdevalence/ed25519consensus"
)

var (
	ErrMalformedEnvelope = errors.New("malformed signed envelope")
	ErrInvalidSignature  = errors.New("signature verification failed")
)

// SignedBlob is the wire envelope around a payload published to Celestia.
// Data holds the payload's exact serialized bytes; PublicKey and Signature
// are raw ed25519 key and signature bytes.
type SignedBlob struct {
	Data      json.RawMessage `json:"data"`
	PublicKey []byte          `json:"public_key"`
	Signature []byte          `json:"signature"`
}

// Signer holds the relayer's ed25519 signing identity.
type Signer struct {
	priv ed25519.PrivateKey
}

// New wraps an existing ed25519 private key.
func New(priv ed25519.PrivateKey) (*Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	return &Signer{priv: priv}, nil
}

// FromSeed derives a signer from a 32-byte ed25519 seed.
func FromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// FromFile loads a signer from a file holding a hex-encoded 32-byte seed.
func FromFile(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key file %s as hex: %w", path, err)
	}
	return FromSeed(seed)
}

// Generate creates a signer with a fresh random key.
func Generate() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return &Signer{priv: priv}, nil
}

func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// Sign serializes v to JSON and wraps it in a signed envelope. The
// signature covers sha256 of the serialized payload.
func (s *Signer) Sign(v interface{}) (SignedBlob, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return SignedBlob{}, fmt.Errorf("failed to serialize payload: %w", err)
	}
	digest := sha256.Sum256(payload)
	return SignedBlob{
		Data:      payload,
		PublicKey: append([]byte{}, s.PublicKey()...),
		Signature: ed25519.Sign(s.priv, digest[:]),
	}, nil
}

// Verify checks the envelope's signature against its own payload bytes and
// public key. It says nothing about whether the key is trusted.
func (b *SignedBlob) Verify() error {
	if len(b.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key must be %d bytes, got %d", ErrMalformedEnvelope, ed25519.PublicKeySize, len(b.PublicKey))
	}
	if len(b.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", ErrMalformedEnvelope, ed25519.SignatureSize, len(b.Signature))
	}
	digest := sha256.Sum256(b.Data)
	if !ed25519consensus.Verify(ed25519.PublicKey(b.PublicKey), digest[:], b.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Unwrap verifies the envelope and deserializes its payload into v.
func (b *SignedBlob) Unwrap(v interface{}) error {
	if err := b.Verify(); err != nil {
		return err
	}
	if err := json.Unmarshal(b.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return nil
}

// Bytes returns the envelope's wire encoding.
func (b *SignedBlob) Bytes() ([]byte, error) {
	out, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signed envelope: %w", err)
	}
	return out, nil
}

// SignedBlobFromBytes decodes a wire envelope without verifying it.
func SignedBlobFromBytes(raw []byte) (SignedBlob, error) {
	var b SignedBlob
	if err := json.Unmarshal(raw, &b); err != nil {
		return SignedBlob{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return b, nil
}
