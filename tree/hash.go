package tree

import (
	"github.com/tendermint/tendermint/crypto/tmhash"
)

// Domain-separation prefixes per RFC-6962. These must match the block
// producer's commitment trees exactly; a verifier folding with different
// prefixes computes garbage roots.
var (
	leafPrefix  = []byte{0}
	innerPrefix = []byte{1}
)

// HashSize is the size of every node hash in the tree.
const HashSize = tmhash.Size

// returns tmhash(<empty>)
func emptyHash() []byte {
	return tmhash.Sum([]byte{})
}

// returns tmhash(0x00 || leaf)
func leafHash(leaf []byte) []byte {
	preimage := make([]byte, 0, 1+len(leaf))
	preimage = append(preimage, leafPrefix...)
	preimage = append(preimage, leaf...)
	return tmhash.Sum(preimage)
}

// returns tmhash(0x01 || left || right)
func innerHash(left, right []byte) []byte {
	preimage := make([]byte, 0, 1+len(left)+len(right))
	preimage = append(preimage, innerPrefix...)
	preimage = append(preimage, left...)
	preimage = append(preimage, right...)
	return tmhash.Sum(preimage)
}
