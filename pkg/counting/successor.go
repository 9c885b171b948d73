package counting

import "math"

// unusedKey pads the tail of array storage. Token ids never reach it.
const unusedKey int32 = math.MaxInt32

type succKind uint8

const (
	succNone succKind = iota
	succLeaf
	succNode
)

// successor is what a key points at: nothing, a leaf or a full node.
type successor struct {
	kind succKind
	id   nodeID
	// leaf[0] is the count, leaf[1:] the remaining suffix.
	leaf []int32
}

func leafSucc(leaf []int32) successor {
	return successor{kind: succLeaf, leaf: leaf}
}

func nodeSucc(id nodeID) successor {
	return successor{kind: succNode, id: id}
}

// CheckExactSequence reports whether leaf holds exactly seq[i+1:] as its
// suffix. seq[i] is the key under which the leaf is stored.
func CheckExactSequence(seq []int32, i int, leaf []int32) bool {
	if len(leaf) != len(seq)-i {
		return false
	}
	for j := 1; j < len(leaf); j++ {
		if seq[i+j] != leaf[j] {
			return false
		}
	}
	return true
}

// CheckPartialSequence reports whether seq[i+1:] is a prefix of the leaf's suffix.
func CheckPartialSequence(seq []int32, i int, leaf []int32) bool {
	if len(leaf) < len(seq)-i {
		return false
	}
	for j := 1; j < len(seq)-i; j++ {
		if seq[i+j] != leaf[j] {
			return false
		}
	}
	return true
}

// LeafRemainder returns the part of a leaf left after walking seq[i:] into it,
// in leaf form (count first). ok is false when seq diverges from the leaf.
func LeafRemainder(seq []int32, i int, leaf []int32) (rest []int32, ok bool) {
	if !CheckPartialSequence(seq, i, leaf) {
		return nil, false
	}
	consumed := len(seq) - i
	rest = make([]int32, 1+len(leaf)-consumed)
	rest[0] = leaf[0]
	copy(rest[1:], leaf[consumed:])
	return rest, true
}
