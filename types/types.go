package types

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tendermint/tendermint/crypto/tmhash"
)

const (
	// BlockHashSize is the exact length of a sequencer block hash.
	BlockHashSize = 32
	// RollupIdSize is the exact length of a rollup identifier.
	RollupIdSize = 32
	// NamespaceSize is the length of a Celestia v0 namespace identifier.
	NamespaceSize = 10
)

// BlockHash identifies a sequencer block. It is computed by the consensus
// collaborator and consumed verbatim here.
type BlockHash [BlockHashSize]byte

// BlockHashFromBytes validates the length of b and copies it into a BlockHash.
func BlockHashFromBytes(b []byte) (BlockHash, error) {
	var h BlockHash
	if len(b) != BlockHashSize {
		return h, fmt.Errorf("block hash must be exactly %d bytes, got %d", BlockHashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h BlockHash) Bytes() []byte {
	return h[:]
}

func (h BlockHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h BlockHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Encode(h[:]))
}

func (h *BlockHash) UnmarshalJSON(data []byte) error {
	raw, err := unmarshalHexJSON(data)
	if err != nil {
		return err
	}
	decoded, err := BlockHashFromBytes(raw)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// RollupId identifies a rollup namespace within a sequencer block. Equality
// is byte-exact.
type RollupId [RollupIdSize]byte

// RollupIdFromBytes validates the length of b and copies it into a RollupId.
func RollupIdFromBytes(b []byte) (RollupId, error) {
	var id RollupId
	if len(b) != RollupIdSize {
		return id, fmt.Errorf("rollup id must be exactly %d bytes, got %d", RollupIdSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id RollupId) Bytes() []byte {
	return id[:]
}

func (id RollupId) String() string {
	return hex.EncodeToString(id[:])
}

func (id RollupId) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Encode(id[:]))
}

func (id *RollupId) UnmarshalJSON(data []byte) error {
	raw, err := unmarshalHexJSON(data)
	if err != nil {
		return err
	}
	decoded, err := RollupIdFromBytes(raw)
	if err != nil {
		return err
	}
	*id = decoded
	return nil
}

// Namespace is a Celestia v0 namespace identifier.
type Namespace [NamespaceSize]byte

// NamespaceFromBytes validates the length of b and copies it into a Namespace.
func NamespaceFromBytes(b []byte) (Namespace, error) {
	var ns Namespace
	if len(b) != NamespaceSize {
		return ns, fmt.Errorf("namespace must be exactly %d bytes, got %d", NamespaceSize, len(b))
	}
	copy(ns[:], b)
	return ns, nil
}

// NamespaceForRollup derives the Celestia namespace a rollup's blobs are
// published under: the first 10 bytes of sha256(rollup id).
func NamespaceForRollup(id RollupId) Namespace {
	var ns Namespace
	sum := tmhash.Sum(id[:])
	copy(ns[:], sum[:NamespaceSize])
	return ns
}

func (ns Namespace) Bytes() []byte {
	return ns[:]
}

func (ns Namespace) String() string {
	return hex.EncodeToString(ns[:])
}

func (ns Namespace) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Encode(ns[:]))
}

func (ns *Namespace) UnmarshalJSON(data []byte) error {
	raw, err := unmarshalHexJSON(data)
	if err != nil {
		return err
	}
	decoded, err := NamespaceFromBytes(raw)
	if err != nil {
		return err
	}
	*ns = decoded
	return nil
}

func unmarshalHexJSON(data []byte) ([]byte, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return hexutil.Decode(s)
}

// SequencerBlockHeader is the block metadata produced by the consensus
// collaborator. It carries the block-level commitment root (DataHash) the
// audit paths fold up to, plus the two committed roots for the per-rollup
// transaction bundles and the rollup ID list.
//
// The header is consumed verbatim: nothing here recomputes the commitment
// trees it references.
type SequencerBlockHeader struct {
	ChainID         string    `json:"chain_id"`
	Height          int64     `json:"height"`
	Time            time.Time `json:"time"`
	ProposerAddress []byte    `json:"proposer_address"`

	// DataHash commits to the block's top-level items, among them the two
	// roots below.
	DataHash [32]byte `json:"data_hash"`

	// RollupTransactionsRoot commits to the ordered per-rollup transaction
	// bundles.
	RollupTransactionsRoot [32]byte `json:"rollup_transactions_root"`

	// RollupIdsRoot commits to the ordered rollup ID list.
	RollupIdsRoot [32]byte `json:"rollup_ids_root"`
}

// Hash recomputes the block hash from the header fields. Validators treat
// this as a black-box equality check; the scheme (a sha256 merkle over the
// encoded fields) must match the block producer's exactly.
func (h *SequencerBlockHeader) Hash() BlockHash {
	height := make([]byte, 8)
	binary.BigEndian.PutUint64(height, uint64(h.Height))
	blockTime := make([]byte, 8)
	binary.BigEndian.PutUint64(blockTime, uint64(h.Time.UnixNano()))

	fields := [][]byte{
		[]byte(h.ChainID),
		height,
		blockTime,
		h.ProposerAddress,
		h.DataHash[:],
		h.RollupTransactionsRoot[:],
		h.RollupIdsRoot[:],
	}

	// leaf = sha256(0x00 || field), inner = sha256(0x01 || l || r); odd
	// nodes are promoted to the next level unchanged
	hashes := make([][]byte, len(fields))
	for i, f := range fields {
		hashes[i] = tmhash.Sum(append([]byte{0}, f...))
	}
	for len(hashes) > 1 {
		next := make([][]byte, 0, (len(hashes)+1)/2)
		for i := 0; i < len(hashes); i += 2 {
			if i+1 == len(hashes) {
				next = append(next, hashes[i])
				continue
			}
			preimage := make([]byte, 0, 1+len(hashes[i])+len(hashes[i+1]))
			preimage = append(preimage, 1)
			preimage = append(preimage, hashes[i]...)
			preimage = append(preimage, hashes[i+1]...)
			next = append(next, tmhash.Sum(preimage))
		}
		hashes = next
	}

	var out BlockHash
	copy(out[:], hashes[0])
	return out
}
