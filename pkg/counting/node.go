package counting

type nodeID int32

type storeKind uint8

const (
	storeArray storeKind = iota
	storeMap
)

// Slots of node.counts ahead of the per-node buckets.
const (
	ownSlot     = 0
	contextSlot = 1
	bucketBase  = 2
)

// node is one trie position. counts holds [own, context, bucket1..bucketK],
// where bucket b is the number of distinct successors seen b times (the last
// bucket collects everything at or above K).
type node struct {
	counts []int32
	kind   storeKind
	arr    *arrayStorage
	m      *mapStorage
}

func (n *node) own() int32     { return n.counts[ownSlot] }
func (n *node) context() int32 { return n.counts[contextSlot] }

func (n *node) get(key int32) successor {
	if n.kind == storeMap {
		return n.m.get(key)
	}
	return n.arr.get(key)
}

func (n *node) put(key int32, s successor) {
	if n.kind == storeMap {
		n.m.put(key, s)
		return
	}
	n.arr.put(key, s)
}

func (n *node) remove(key int32) {
	if n.kind == storeMap {
		n.m.remove(key)
		return
	}
	n.arr.remove(key)
}

func (n *node) len() int {
	if n.kind == storeMap {
		return n.m.len()
	}
	return n.arr.len()
}

func (n *node) each(fn func(key int32, s successor)) {
	if n.kind == storeMap {
		n.m.each(fn)
		return
	}
	n.arr.each(fn)
}

// successorCount sums the per-node buckets.
func (n *node) successorCount() int {
	total := 0
	for _, c := range n.counts[bucketBase:] {
		total += int(c)
	}
	return total
}

// bumpBucket moves one successor from the bucket of count-adj to the bucket of count.
func (n *node) bumpBucket(count, adj int32) {
	cutoff := int32(len(n.counts) - bucketBase)
	if cutoff == 0 {
		return
	}
	cur := min(count, cutoff)
	prev := min(count-adj, cutoff)
	if cur == prev {
		return
	}
	if cur >= 1 {
		n.counts[cur+1]++
	}
	if prev >= 1 {
		n.counts[prev+1]--
	}
}

// arena owns every node of a trie. Nodes are addressed by id, so a fork is
// only a second root id into the same arena.
type arena struct {
	nodes  []*node
	free   []nodeID
	cutoff int
}

func newArena(cutoff int) *arena {
	return &arena{cutoff: cutoff}
}

func (a *arena) at(id nodeID) *node {
	return a.nodes[id]
}

func (a *arena) alloc(kind storeKind) nodeID {
	n := &node{counts: make([]int32, bucketBase+a.cutoff), kind: kind}
	if kind == storeMap {
		n.m = newMapStorage(1)
	} else {
		n.arr = newArrayStorage(1)
	}
	if k := len(a.free); k > 0 {
		id := a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[id] = n
		return id
	}
	a.nodes = append(a.nodes, n)
	return nodeID(len(a.nodes) - 1)
}

// release returns id and every node below it to the free list.
func (a *arena) release(id nodeID) {
	n := a.nodes[id]
	if n == nil {
		return
	}
	n.each(func(_ int32, s successor) {
		if s.kind == succNode {
			a.release(s.id)
		}
	})
	a.nodes[id] = nil
	a.free = append(a.free, id)
}

// live returns the number of allocated nodes.
func (a *arena) live() int {
	return len(a.nodes) - len(a.free)
}

// promoteToMap rebuilds an array node as a map node in place. Counts and
// buckets carry over unchanged.
func (a *arena) promoteToMap(id nodeID) {
	n := a.nodes[id]
	if n.kind == storeMap {
		return
	}
	m := newMapStorage(n.arr.len())
	n.arr.each(func(key int32, s successor) {
		m.put(key, s)
	})
	n.kind, n.m, n.arr = storeMap, m, nil
}

// countOf returns the occurrence count held by a successor.
func (a *arena) countOf(s successor) int32 {
	switch s.kind {
	case succNode:
		return a.nodes[s.id].own()
	case succLeaf:
		return s.leaf[0]
	default:
		return 0
	}
}

// top returns the keys of n's successors, most frequent first.
func (a *arena) top(n *node, limit int) []int32 {
	if n.kind == storeMap {
		return n.m.top(limit, fingerprintOf(int32(n.len()), n.own()), a.countOf)
	}
	return n.arr.top(limit, a.countOf)
}
