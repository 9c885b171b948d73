package counting

import (
	"sync"
)

// Trie is the mutable counting trie. It is safe for concurrent use: updates
// serialize on a write lock held for the whole walk, queries share a read lock.
type Trie struct {
	mu    *sync.RWMutex
	arena *arena
	root  nodeID
	cocs  *CountOfCounts
	opts  Options

	readOnly bool
}

var _ Counter = (*Trie)(nil)

// New creates an empty trie. cocs receives the count-of-counts bookkeeping of
// every update; a nil cocs gets a private table sized to opts.Order.
func New(cocs *CountOfCounts, opts Options) *Trie {
	opts = opts.normalized()
	if cocs == nil {
		cocs = NewCountOfCounts(opts.Order)
	}
	a := newArena(opts.Cutoff)
	return &Trie{
		mu:    &sync.RWMutex{},
		arena: a,
		root:  a.alloc(storeMap),
		cocs:  cocs,
		opts:  opts,
	}
}

// Fork returns a read-only view sharing this trie's nodes. Updates made
// through the original stay visible in the fork; updates through the fork
// are dropped.
func (t *Trie) Fork() *Trie {
	return &Trie{
		mu:       t.mu,
		arena:    t.arena,
		root:     t.root,
		cocs:     t.cocs,
		opts:     t.opts,
		readOnly: true,
	}
}

// ReadOnly reports whether t is a fork.
func (t *Trie) ReadOnly() bool {
	return t.readOnly
}

// Options returns the options the trie was built with.
func (t *Trie) Options() Options {
	return t.opts
}

// CountOfCounts returns the table this trie updates.
func (t *Trie) CountOfCounts() *CountOfCounts {
	return t.cocs
}

// OwnCount returns the number of sequences counted at the root.
func (t *Trie) OwnCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int64(t.arena.at(t.root).own())
}

// ContextCount returns the sum of the root's successor counts.
func (t *Trie) ContextCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int64(t.arena.at(t.root).context())
}

// SuccessorCount returns the number of distinct first tokens.
func (t *Trie) SuccessorCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.arena.at(t.root).successorCount()
}

// CountOfCount returns how many n-grams of order n were seen count times.
func (t *Trie) CountOfCount(n, count int) int64 {
	return t.cocs.Get(n, count)
}

// NodeCount returns the number of full nodes, leaves excluded.
func (t *Trie) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.arena.live()
}

// Walk calls fn for every node in depth-first order with the path leading to
// it and its own and context counts. Leaves are reported with their full
// path and a context count of zero. fn must not retain path.
func (t *Trie) Walk(fn func(path []int32, own, context int64)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.walk(t.root, nil, fn)
}

func (t *Trie) walk(id nodeID, path []int32, fn func([]int32, int64, int64)) {
	n := t.arena.at(id)
	fn(path, int64(n.own()), int64(n.context()))
	n.each(func(key int32, s successor) {
		next := append(path, key)
		switch s.kind {
		case succNode:
			t.walk(s.id, next, fn)
		case succLeaf:
			fn(append(next, s.leaf[1:]...), int64(s.leaf[0]), 0)
		}
	})
}
