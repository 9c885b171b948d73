package counting

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"
)

// Count adds one occurrence of seq.
func (t *Trie) Count(seq []int32) {
	t.Update(seq, 1)
}

// Uncount removes one occurrence of seq.
func (t *Trie) Uncount(seq []int32) {
	t.Update(seq, -1)
}

// Update adjusts the count of seq and all its prefixes by adj. An update that
// would take the count of seq below zero is logged and ignored.
func (t *Trie) Update(seq []int32, adj int32) {
	if adj == 0 {
		return
	}
	if t.readOnly {
		log.Warnf("counting: update of %v on a read-only fork ignored", seq)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.update(seq, adj)
}

// CountBatch counts each sequence in turn. It stops between sequences when
// ctx is done and returns how many were counted along with ctx.Err().
func (t *Trie) CountBatch(ctx context.Context, seqs [][]int32) (int, error) {
	return t.batch(ctx, seqs, 1)
}

// UncountBatch is CountBatch for removals.
func (t *Trie) UncountBatch(ctx context.Context, seqs [][]int32) (int, error) {
	return t.batch(ctx, seqs, -1)
}

func (t *Trie) batch(ctx context.Context, seqs [][]int32, adj int32) (int, error) {
	for i, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		t.Update(seq, adj)
	}
	return len(seqs), nil
}

func (t *Trie) update(seq []int32, adj int32) {
	if adj < 0 {
		exact, _ := t.getCounts(seq)
		if exact+int64(adj) < 0 {
			log.Warnf("counting: ignoring update %d of %v with count %d", adj, seq, exact)
			return
		}
	}
	t.updateNode(t.root, seq, 0, adj)
}

// updateNode applies adj to the node at depth i of seq and everything below it.
func (t *Trie) updateNode(id nodeID, seq []int32, i int, adj int32) {
	n := t.arena.at(id)
	if i < len(seq) {
		s := n.get(seq[i])
		switch s.kind {
		case succNone:
			t.addLeaf(n, seq, i, adj)
		case succLeaf:
			t.updateLeaf(n, seq, i, adj, s.leaf)
		case succNode:
			t.updateChild(n, seq, i, adj, s.id)
		}
	}
	n.counts[ownSlot] += adj
	if i != len(seq) {
		n.counts[contextSlot] += adj
	}
	t.cocs.update(i, n.own(), adj)
	if n.kind == storeMap {
		n.m.invalidate()
	}
}

// updateChild recurses into the node stored under seq[i], turning it into a
// map node first when it has outgrown its array.
func (t *Trie) updateChild(parent *node, seq []int32, i int, adj int32, id nodeID) {
	child := t.arena.at(id)
	if child.kind == storeArray && child.len() > t.opts.PromoteThreshold {
		t.arena.promoteToMap(id)
	}
	t.updateNode(id, seq, i+1, adj)
	parent.bumpBucket(child.own(), adj)
	if child.own() == 0 {
		parent.remove(seq[i])
		t.arena.release(id)
	}
}

// updateLeaf adjusts an exact leaf in place or promotes it to a node and
// continues the walk through the new node.
func (t *Trie) updateLeaf(parent *node, seq []int32, i int, adj int32, leaf []int32) {
	if !CheckExactSequence(seq, i, leaf) {
		id := t.promoteLeaf(parent, seq, i, leaf)
		t.updateChild(parent, seq, i, adj, id)
		return
	}
	leaf[0] += adj
	if leaf[0] == 0 {
		parent.remove(seq[i])
	}
	parent.bumpBucket(leaf[0], adj)
	for j := i + 1; j <= len(seq); j++ {
		t.cocs.update(j, leaf[0], adj)
	}
}

// promoteLeaf replaces the leaf under seq[i] with a node carrying the leaf's
// count, with the rest of the leaf re-inserted below it.
func (t *Trie) promoteLeaf(parent *node, seq []int32, i int, leaf []int32) nodeID {
	kind := storeArray
	if i <= t.opts.MapDepth {
		kind = storeMap
	}
	id := t.arena.alloc(kind)
	n := t.arena.at(id)
	n.counts[ownSlot] = leaf[0]
	if len(leaf) > 1 {
		n.counts[contextSlot] = leaf[0]
		rest := slices.Clone(leaf[1:])
		rest[0] = leaf[0]
		n.put(leaf[1], leafSucc(rest))
		n.bumpBucket(rest[0], rest[0])
	}
	parent.put(seq[i], nodeSucc(id))
	return id
}

func (t *Trie) addLeaf(parent *node, seq []int32, i int, adj int32) {
	if adj < 0 {
		return
	}
	leaf := make([]int32, len(seq)-i)
	leaf[0] = adj
	copy(leaf[1:], seq[i+1:])
	parent.put(seq[i], leafSucc(leaf))
	parent.bumpBucket(adj, adj)
	for j := i + 1; j <= len(seq); j++ {
		t.cocs.update(j, adj, adj)
	}
}
