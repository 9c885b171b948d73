/*
Package counting implements the adaptive n-gram counting trie.

A Trie counts integer token sequences. Every node keeps its own occurrence count,
its context count (the sum of its successors' counts) and a small histogram of
how many distinct successors were seen once, twice, up to a cutoff.

Sequences that have only ever been seen with one continuation are stored as a
leaf: a flat []int32 whose first slot is the count and whose remaining slots are
the suffix tokens. A leaf is promoted into a full node the first time a second
continuation shows up.

Nodes start out array-backed (sorted keys, binary search) and are rebuilt as
map-backed nodes once their branching factor grows past a threshold. Positions
close to the root start map-backed.

	tr := counting.New(nil, counting.DefaultOptions())
	tr.Count([]int32{1, 2, 3})
	exact, context := tr.GetCounts([]int32{1, 2})
	top := tr.GetTopSuccessors([]int32{1, 2}, 5)

A trained trie is written with WriteTo into the record format of package record
and served lazily by package persistent.
*/
package counting

// Counter is the counting API shared by the mutable trie, the persistent trie
// and the forgetting overlay.
type Counter interface {
	// Count adds one occurrence of seq.
	Count(seq []int32)
	// Uncount removes one occurrence of seq. Removing an unseen sequence is a no-op.
	Uncount(seq []int32)
	// GetCounts returns the count of seq and the context count of its prefix.
	GetCounts(seq []int32) (exact, context int64)
	// GetDistinctCounts returns how many distinct successors of seq were seen
	// 1, 2, ... rng-1 times, with everything above folded into the last slot.
	GetDistinctCounts(rng int, seq []int32) []int
	// GetTopSuccessors returns up to limit successor ids of seq, most frequent first.
	GetTopSuccessors(seq []int32, limit int) []int32
	// GetSuccessorCount returns the number of distinct successors of seq.
	GetSuccessorCount(seq []int32) int
}

// Options controls the shape of a Trie.
type Options struct {
	// Order is the highest n-gram order tracked in the count-of-counts table.
	Order int
	// Cutoff is the number of per-node count-of-counts buckets.
	Cutoff int
	// PromoteThreshold is the child count above which an array node becomes a
	// map node. The check runs when an update enters the node, before the new
	// child is inserted, so a node can hold PromoteThreshold+1 children in its
	// array until the next update passes through it.
	PromoteThreshold int
	// MapDepth is the deepest sequence index whose new nodes start map-backed.
	MapDepth int
}

// DefaultOptions returns the options used by the model runner.
func DefaultOptions() Options {
	return Options{
		Order:            6,
		Cutoff:           3,
		PromoteThreshold: 10,
		MapDepth:         1,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Order <= 0 {
		o.Order = d.Order
	}
	if o.Cutoff <= 0 {
		o.Cutoff = d.Cutoff
	}
	if o.PromoteThreshold <= 0 {
		o.PromoteThreshold = d.PromoteThreshold
	}
	if o.MapDepth < 0 {
		o.MapDepth = 0
	}
	return o
}
