package tree

import (
	"bytes"
	"errors"
	"math/bits"

	"github.com/tendermint/tendermint/crypto/merkle"
)

// Step is one level of an audit path: the sibling hash combined with the
// running hash, and which side of the concatenation the sibling takes.
type Step struct {
	Sibling       [HashSize]byte `json:"sibling"`
	SiblingIsLeft bool           `json:"sibling_is_left"`
}

// AuditPath is a Merkle inclusion path from one leaf up to a committed root.
// Steps are ordered leaf to root. LeafIndex and TotalLeaves pin the leaf's
// position; the step flags must agree with the position or verification
// fails.
type AuditPath struct {
	LeafIndex   uint64 `json:"leaf_index"`
	TotalLeaves uint64 `json:"total_leaves"`
	Steps       []Step `json:"steps"`
}

// VerifyInclusion recomputes a root by folding the hash of leaf up the audit
// path and compares it byte-exact against expectedRoot. It is a decision
// function: every malformed input maps to false, never a panic or an error.
//
// An empty path is valid only for a single-leaf tree, where the leaf hash
// itself must equal the root.
func VerifyInclusion(leaf []byte, path AuditPath, expectedRoot []byte) bool {
	if len(expectedRoot) != HashSize {
		return false
	}
	if path.TotalLeaves == 0 || path.LeafIndex >= path.TotalLeaves {
		return false
	}

	sides := siblingSides(path.LeafIndex, path.TotalLeaves)
	if len(sides) != len(path.Steps) {
		return false
	}
	for i, step := range path.Steps {
		if step.SiblingIsLeft != sides[i] {
			return false
		}
	}

	current := leafHash(leaf)
	for _, step := range path.Steps {
		if step.SiblingIsLeft {
			current = innerHash(step.Sibling[:], current)
		} else {
			current = innerHash(current, step.Sibling[:])
		}
	}
	return bytes.Equal(current, expectedRoot)
}

// siblingSides returns, leaf to root, whether the sibling at each level sits
// on the left of the concatenation, as implied by the leaf's position in an
// RFC-6962 tree of the given size. Empty for a single-leaf tree.
func siblingSides(index, total uint64) []bool {
	if total <= 1 {
		return nil
	}
	k := splitPoint(total)
	if index < k {
		return append(siblingSides(index, k), false)
	}
	return append(siblingSides(index-k, total-k), true)
}

// splitPoint returns the largest power of two strictly less than length.
func splitPoint(length uint64) uint64 {
	if length < 2 {
		panic("split point undefined for trees smaller than two leaves")
	}
	k := uint64(1) << (bits.Len64(length-1) - 1)
	return k
}

// ToTendermintProof converts the audit path into tendermint's wire proof
// shape (Aunts ordered leaf to root), carrying the given leaf pre-image.
func (p AuditPath) ToTendermintProof(leaf []byte) *merkle.Proof {
	aunts := make([][]byte, len(p.Steps))
	for i, step := range p.Steps {
		sibling := step.Sibling
		aunts[i] = sibling[:]
	}
	return &merkle.Proof{
		Total:    int64(p.TotalLeaves),
		Index:    int64(p.LeafIndex),
		LeafHash: leafHash(leaf),
		Aunts:    aunts,
	}
}

// AuditPathFromTendermintProof converts a tendermint merkle proof into an
// AuditPath, deriving the per-level sides from the proof's index and total.
func AuditPathFromTendermintProof(proof *merkle.Proof) (AuditPath, error) {
	if proof == nil {
		return AuditPath{}, errors.New("nil proof")
	}
	if proof.Total <= 0 || proof.Index < 0 || proof.Index >= proof.Total {
		return AuditPath{}, errors.New("proof index out of range for total leaves")
	}

	sides := siblingSides(uint64(proof.Index), uint64(proof.Total))
	if len(sides) != len(proof.Aunts) {
		return AuditPath{}, errors.New("aunt count does not match tree height")
	}

	steps := make([]Step, len(proof.Aunts))
	for i, aunt := range proof.Aunts {
		if len(aunt) != HashSize {
			return AuditPath{}, errors.New("aunt hash has wrong length")
		}
		copy(steps[i].Sibling[:], aunt)
		steps[i].SiblingIsLeft = sides[i]
	}
	return AuditPath{
		LeafIndex:   uint64(proof.Index),
		TotalLeaves: uint64(proof.Total),
		Steps:       steps,
	}, nil
}
