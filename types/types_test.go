package types

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestFixedLengthConstructors(t *testing.T) {
	for _, badLen := range []int{0, 31, 33, 64} {
		raw := bytes.Repeat([]byte{0x5a}, badLen)
		if _, err := BlockHashFromBytes(raw); err == nil {
			t.Errorf("BlockHashFromBytes accepted %d bytes", badLen)
		}
		if _, err := RollupIdFromBytes(raw); err == nil {
			t.Errorf("RollupIdFromBytes accepted %d bytes", badLen)
		}
	}
	for _, badLen := range []int{0, 9, 11, 32} {
		raw := bytes.Repeat([]byte{0x5a}, badLen)
		if _, err := NamespaceFromBytes(raw); err == nil {
			t.Errorf("NamespaceFromBytes accepted %d bytes", badLen)
		}
	}

	raw := bytes.Repeat([]byte{0x5a}, BlockHashSize)
	hash, err := BlockHashFromBytes(raw)
	if err != nil {
		t.Fatalf("BlockHashFromBytes rejected %d bytes: %v", BlockHashSize, err)
	}
	if !bytes.Equal(hash.Bytes(), raw) {
		t.Fatal("BlockHashFromBytes did not round-trip the input")
	}
	raw[0] = 0x00
	if hash.Bytes()[0] == 0x00 {
		t.Fatal("BlockHash aliases the input slice")
	}
}

func TestNamespaceForRollup(t *testing.T) {
	var a, b RollupId
	a[0] = 0x01
	b[0] = 0x02

	nsA := NamespaceForRollup(a)
	if NamespaceForRollup(a) != nsA {
		t.Fatal("namespace derivation is not deterministic")
	}
	if NamespaceForRollup(b) == nsA {
		t.Fatal("distinct rollup ids derived the same namespace")
	}
	if len(nsA.Bytes()) != NamespaceSize {
		t.Fatalf("expected %d-byte namespace, got %d", NamespaceSize, len(nsA.Bytes()))
	}
}

func TestHexJSONEncoding(t *testing.T) {
	hash, err := BlockHashFromBytes(bytes.Repeat([]byte{0xbe}, BlockHashSize))
	if err != nil {
		t.Fatalf("BlockHashFromBytes failed: %v", err)
	}
	encoded, err := json.Marshal(hash)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if want := `"0x` + hash.String() + `"`; string(encoded) != want {
		t.Fatalf("expected %s, got %s", want, encoded)
	}
	var decoded BlockHash
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != hash {
		t.Fatal("block hash changed through the JSON round trip")
	}

	var id RollupId
	if err := json.Unmarshal([]byte(`"0xabcd"`), &id); err == nil {
		t.Fatal("short hex rollup id accepted")
	}
	if err := json.Unmarshal([]byte(`"not hex"`), &id); err == nil {
		t.Fatal("non-hex rollup id accepted")
	}
}

func TestSequencerBlockHeaderHash(t *testing.T) {
	header := SequencerBlockHeader{
		ChainID:         "relayer-test-1",
		Height:          7,
		Time:            time.Unix(1700000000, 0).UTC(),
		ProposerAddress: bytes.Repeat([]byte{0xcd}, 20),
	}
	header.DataHash[0] = 0x01

	first := header.Hash()
	if header.Hash() != first {
		t.Fatal("header hash is not deterministic")
	}

	altered := header
	altered.Height = 8
	if altered.Hash() == first {
		t.Fatal("changing the height did not change the hash")
	}
	altered = header
	altered.RollupIdsRoot[0] ^= 0x01
	if altered.Hash() == first {
		t.Fatal("changing the rollup ids root did not change the hash")
	}
}
