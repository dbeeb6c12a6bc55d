package tree

// RootFromByteSlices computes the Merkle root over the items in the given
// order, following RFC-6962: leaves are hashed with a 0x00 prefix, inner
// nodes with a 0x01 prefix, and trees split at the largest power of two
// below the leaf count.
func RootFromByteSlices(items [][]byte) [HashSize]byte {
	var root [HashSize]byte
	copy(root[:], rootRecurse(items))
	return root
}

func rootRecurse(items [][]byte) []byte {
	switch len(items) {
	case 0:
		return emptyHash()
	case 1:
		return leafHash(items[0])
	default:
		k := splitPoint(uint64(len(items)))
		return innerHash(rootRecurse(items[:k]), rootRecurse(items[k:]))
	}
}

// ProofsFromByteSlices computes the Merkle root over the items and one audit
// path per item, each verifiable against the root with VerifyInclusion.
// This is the builder counterpart to the verifier's folding rules.
func ProofsFromByteSlices(items [][]byte) ([HashSize]byte, []AuditPath) {
	total := uint64(len(items))
	paths := make([]AuditPath, len(items))
	for i := range paths {
		paths[i] = AuditPath{LeafIndex: uint64(i), TotalLeaves: total}
	}

	var root [HashSize]byte
	copy(root[:], proofsRecurse(items, 0, paths))
	return root, paths
}

func proofsRecurse(items [][]byte, offset int, paths []AuditPath) []byte {
	switch len(items) {
	case 0:
		return emptyHash()
	case 1:
		return leafHash(items[0])
	default:
		k := int(splitPoint(uint64(len(items))))
		left := proofsRecurse(items[:k], offset, paths)
		right := proofsRecurse(items[k:], offset+k, paths)

		var leftSibling, rightSibling [HashSize]byte
		copy(leftSibling[:], left)
		copy(rightSibling[:], right)
		for i := offset; i < offset+k; i++ {
			paths[i].Steps = append(paths[i].Steps, Step{Sibling: rightSibling, SiblingIsLeft: false})
		}
		for i := offset + k; i < offset+len(items); i++ {
			paths[i].Steps = append(paths[i].Steps, Step{Sibling: leftSibling, SiblingIsLeft: true})
		}
		return innerHash(left, right)
	}
}
