package counting

// GetCounts returns the count of seq and the context count of seq without its
// last token. An empty seq reports the root count twice.
func (t *Trie) GetCounts(seq []int32) (exact, context int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.getCounts(seq)
}

func (t *Trie) getCounts(seq []int32) (int64, int64) {
	n := t.arena.at(t.root)
	if len(seq) == 0 {
		return int64(n.own()), int64(n.own())
	}
	for i := 0; ; i++ {
		last := i == len(seq)-1
		s := n.get(seq[i])
		switch s.kind {
		case succNode:
			child := t.arena.at(s.id)
			if last {
				return int64(child.own()), int64(n.context())
			}
			n = child
			continue
		case succLeaf:
			return leafCounts(seq, i, s.leaf, last, n.context())
		}
		if last {
			return 0, int64(n.context())
		}
		return 0, 0
	}
}

func leafCounts(seq []int32, i int, leaf []int32, last bool, parentContext int32) (exact, context int64) {
	if last {
		context = int64(parentContext)
	}
	switch {
	case CheckPartialSequence(seq, i, leaf):
		exact = int64(leaf[0])
		if !last {
			context = exact
		}
	case !last && len(leaf) >= len(seq)-i && CheckPartialSequence(seq[:len(seq)-1], i, leaf):
		context = int64(leaf[0])
	}
	return exact, context
}

// GetDistinctCounts returns a histogram of length rng over the successors of
// seq: slot k counts successors seen k+1 times, the last slot collects the rest.
func (t *Trie) GetDistinctCounts(rng int, seq []int32) []int {
	if rng <= 0 {
		return []int{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]int, rng)
	n := t.arena.at(t.root)
	for i := 0; i < len(seq); i++ {
		s := n.get(seq[i])
		switch s.kind {
		case succNone:
			return out
		case succLeaf:
			if CheckPartialSequence(seq, i, s.leaf) && !CheckExactSequence(seq, i, s.leaf) {
				out[min(rng-1, int(s.leaf[0])-1)] = 1
			}
			return out
		}
		n = t.arena.at(s.id)
	}
	return BucketHistogram(rng, n.counts[bucketBase:], n.successorCount())
}

// BucketHistogram spreads per-node buckets over a histogram of length rng.
// The last bucket and any remainder go to the final slot.
func BucketHistogram(rng int, buckets []int32, total int) []int {
	out := make([]int, rng)
	for b := 0; b < len(buckets)-1 && b+1 < rng; b++ {
		out[b] = int(buckets[b])
		total -= int(buckets[b])
	}
	out[rng-1] = total
	return out
}

// GetTopSuccessors returns up to limit successors of seq, most frequent first
// and ties broken by the smaller id.
func (t *Trie) GetTopSuccessors(seq []int32, limit int) []int32 {
	if limit <= 0 {
		return []int32{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, rest, ok := t.successorNode(seq)
	switch {
	case !ok:
		return []int32{}
	case n != nil:
		return t.arena.top(n, limit)
	case len(rest) > 1:
		return []int32{rest[1]}
	default:
		return []int32{}
	}
}

// GetSuccessorCount returns the number of distinct successors of seq.
func (t *Trie) GetSuccessorCount(seq []int32) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, rest, ok := t.successorNode(seq)
	switch {
	case !ok:
		return 0
	case n != nil:
		return n.successorCount()
	case len(rest) > 1:
		return 1
	default:
		return 0
	}
}

// successorNode walks seq and returns the node it ends at, or the remainder
// of the leaf it ends inside.
func (t *Trie) successorNode(seq []int32) (*node, []int32, bool) {
	n := t.arena.at(t.root)
	for i := 0; i < len(seq); i++ {
		s := n.get(seq[i])
		switch s.kind {
		case succNone:
			return nil, nil, false
		case succLeaf:
			rest, ok := LeafRemainder(seq, i, s.leaf)
			return nil, rest, ok
		}
		n = t.arena.at(s.id)
	}
	return n, nil, true
}
