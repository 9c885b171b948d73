package counting

import (
	"fmt"
	"io"
	"os"

	"github.com/bastiangx/namegram/pkg/counting/record"
	"github.com/charmbracelet/log"
)

// WriteTo serializes the trie as a record stream and returns the number of
// bytes written.
func (t *Trie) WriteTo(w io.Writer) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rw := record.NewWriter(w)
	root, err := t.writeNode(rw, t.root)
	if err != nil {
		return rw.Offset(), err
	}
	if err := rw.WriteTrailer(root); err != nil {
		return rw.Offset(), err
	}
	return rw.Offset(), nil
}

// writeNode writes every successor of id before id itself.
func (t *Trie) writeNode(rw *record.Writer, id nodeID) (int32, error) {
	n := t.arena.at(id)
	keys := t.arena.top(n, n.len())
	children := make([]record.Child, 0, len(keys))
	for _, key := range keys {
		var (
			off int32
			err error
		)
		s := n.get(key)
		switch s.kind {
		case succLeaf:
			off, err = rw.WriteLeaf(s.leaf)
		case succNode:
			off, err = t.writeNode(rw, s.id)
		default:
			continue
		}
		if err != nil {
			return 0, err
		}
		children = append(children, record.Child{Key: key, Offset: off})
	}
	tag := record.TagArray
	if n.kind == storeMap {
		tag = record.TagMap
	}
	return rw.WriteNode(tag, n.own(), n.context(), children)
}

// SaveFile writes the trie to path, replacing any existing file.
func (t *Trie) SaveFile(path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	n, err := t.WriteTo(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", path, cerr)
	}
	if err != nil {
		return n, fmt.Errorf("saving trie to %s: %w", path, err)
	}
	log.Debugf("counting: wrote %d nodes (%d bytes) to %s", t.NodeCount(), n, path)
	return n, nil
}

// ReadTrie loads a whole record stream into a mutable trie. Per-node buckets
// are rebuilt from the child counts and every n-gram is added to cocs.
func ReadTrie(r io.ReaderAt, size int64, cocs *CountOfCounts, opts Options) (*Trie, error) {
	rr := record.NewReader(r, size)
	rootOff, err := rr.Root()
	if err != nil {
		return nil, err
	}
	rec, err := rr.Read(rootOff)
	if err != nil {
		return nil, err
	}
	if rec.IsLeaf() {
		return nil, fmt.Errorf("root at %d is a leaf: %w", rootOff, record.ErrBadTag)
	}
	t := New(cocs, opts)
	t.arena = newArena(t.opts.Cutoff)
	t.root, err = t.readNode(rr, rootOff, rec, 0)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trie) readNode(rr *record.Reader, off int32, rec record.Record, depth int) (nodeID, error) {
	kind := storeArray
	if rec.Tag == record.TagMap {
		kind = storeMap
	}
	id := t.arena.alloc(kind)
	n := t.arena.at(id)
	n.counts[ownSlot] = rec.Own
	n.counts[contextSlot] = rec.Context
	t.cocs.update(depth, rec.Own, rec.Own)
	for _, c := range rec.Children {
		if c.Offset >= off {
			return 0, fmt.Errorf("node at %d points forward to %d: %w", off, c.Offset, record.ErrBadOffset)
		}
		child, err := rr.Read(c.Offset)
		if err != nil {
			return 0, err
		}
		if child.IsLeaf() {
			n.put(c.Key, leafSucc(child.Leaf))
			for j := depth + 1; j <= depth+len(child.Leaf); j++ {
				t.cocs.update(j, child.Leaf[0], child.Leaf[0])
			}
		} else {
			cid, err := t.readNode(rr, c.Offset, child, depth+1)
			if err != nil {
				return 0, err
			}
			n.put(c.Key, nodeSucc(cid))
		}
		n.bumpBucket(child.Count(), child.Count())
	}
	return id, nil
}

// LoadFile reads a trie saved with SaveFile.
func LoadFile(path string, cocs *CountOfCounts, opts Options) (*Trie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	t, err := ReadTrie(f, st.Size(), cocs, opts)
	if err != nil {
		return nil, fmt.Errorf("loading trie from %s: %w", path, err)
	}
	return t, nil
}
