/*
Package persistent serves a saved counting trie straight from its file.

Records are decoded on first access and kept in a two-tier Cache: a static
tier filled by Prefetch and a bounded LRU for everything else. The file is
never written; Forgetting layers transient learn and unlearn operations on
top of a Trie.

A Trie moves through three states:

	Closed --Open--> Open --Prefetch--> Warmed --Close--> Closed

Queries are answered in Open and Warmed. A query against a Closed trie logs a
warning and returns zero values.

	tr, err := persistent.Load("forwardCounter.bin", persistent.DefaultOptions())
	err = tr.Session(ctx, func(tr *persistent.Trie) error {
		exact, context := tr.GetCounts([]int32{1, 2})
		...
	})
*/
package persistent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bastiangx/namegram/internal/logger"
	"github.com/bastiangx/namegram/pkg/counting"
	"github.com/bastiangx/namegram/pkg/counting/record"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type State int32

const (
	Closed State = iota
	Open
	Warmed
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Warmed:
		return "warmed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures a persistent trie.
type Options struct {
	// DynamicSize bounds the LRU tier of the node cache.
	DynamicSize int
	// PrefetchDepth is the number of levels below the root pinned by Prefetch.
	PrefetchDepth int
	// Cutoff is the bucket count used by GetDistinctCounts.
	Cutoff int
}

func DefaultOptions() Options {
	return Options{
		DynamicSize:   1_000_000,
		PrefetchDepth: 1,
		Cutoff:        counting.DefaultOptions().Cutoff,
	}
}

// Trie answers counting queries from a saved trie file.
type Trie struct {
	cache *Cache
	opts  Options

	// mu serializes state transitions.
	mu      sync.Mutex
	state   atomic.Int32
	rootOff int32
	root    atomic.Pointer[Entry]
	session uuid.UUID

	logger *log.Logger
}

var _ counting.Counter = (*Trie)(nil)

// Load checks that path holds a readable trie and returns it Closed.
func Load(path string, opts Options) (*Trie, error) {
	if opts.Cutoff <= 0 {
		opts.Cutoff = counting.DefaultOptions().Cutoff
	}
	cache, err := NewCache(path, opts.DynamicSize)
	if err != nil {
		return nil, err
	}
	t := &Trie{cache: cache, opts: opts, logger: logger.New("persistent")}
	if err := t.Open(); err != nil {
		return nil, err
	}
	if err := t.Close(); err != nil {
		return nil, err
	}
	return t, nil
}

// Path returns the backing file.
func (t *Trie) Path() string {
	return t.cache.Path()
}

func (t *Trie) State() State {
	return State(t.state.Load())
}

// Cache exposes the node cache, mainly for stats.
func (t *Trie) Cache() *Cache {
	return t.cache
}

// Open acquires the file handle and reads the root record.
func (t *Trie) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() != Closed {
		return nil
	}
	if err := t.cache.Open(); err != nil {
		return err
	}
	rootOff, err := t.cache.Root()
	if err == nil {
		var root *Entry
		root, err = t.cache.Load(rootOff)
		if err == nil && root.IsLeaf() {
			err = fmt.Errorf("root at %d is a leaf: %w", rootOff, record.ErrBadTag)
		}
		if err == nil {
			t.cache.Pin(rootOff, root)
			t.rootOff = rootOff
			t.root.Store(root)
		}
	}
	if err != nil {
		t.cache.Close()
		return fmt.Errorf("opening %s: %w", t.cache.Path(), err)
	}
	t.session = uuid.New()
	t.state.Store(int32(Open))
	t.logger.Debug("counter open", "path", t.cache.Path(), "session", t.session)
	return nil
}

// Prefetch pins every record within PrefetchDepth levels of the root. It
// opens the trie first when needed.
func (t *Trie) Prefetch(ctx context.Context) error {
	if err := t.Open(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() == Closed {
		return ErrClosed
	}
	level := []*Entry{t.root.Load()}
	pinned := 0
	for depth := 0; depth < t.opts.PrefetchDepth && len(level) > 0; depth++ {
		var next []*Entry
		for _, e := range level {
			for _, c := range e.Children {
				if err := ctx.Err(); err != nil {
					return err
				}
				child, err := t.cache.Load(c.Offset)
				if err != nil {
					t.logger.Error("prefetch failed", "offset", c.Offset, "err", err)
					continue
				}
				t.cache.Pin(c.Offset, child)
				pinned++
				if !child.IsLeaf() {
					next = append(next, child)
				}
			}
		}
		level = next
	}
	t.state.Store(int32(Warmed))
	t.logger.Debug("counter warmed", "pinned", pinned, "depth", t.opts.PrefetchDepth, "session", t.session)
	return nil
}

// ResolveCounter opens and warms the trie. Call it once after Load, before
// latency sensitive queries.
func (t *Trie) ResolveCounter(ctx context.Context) error {
	return t.Prefetch(ctx)
}

// Close releases the file handle. Closing a closed trie is a no-op.
func (t *Trie) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() == Closed {
		return nil
	}
	t.state.Store(int32(Closed))
	t.logger.Debug("counter closed", "session", t.session)
	return t.cache.Close()
}

// Session opens the trie, runs fn and closes it again on every path.
func (t *Trie) Session(ctx context.Context, fn func(*Trie) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := t.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(t)
}

// rootEntry returns the root, or nil with a warning when the trie is closed.
func (t *Trie) rootEntry(op string) *Entry {
	if t.State() == Closed {
		t.logger.Warn("query on closed counter", "op", op, "path", t.cache.Path())
		return nil
	}
	return t.root.Load()
}

// child resolves the successor stored under key. I/O errors are logged and
// read as a missing successor.
func (t *Trie) child(e *Entry, key int32) *Entry {
	off, ok := e.Child(key)
	if !ok {
		return nil
	}
	c, err := t.cache.Get(off)
	if err != nil {
		t.logger.Error("reading successor", "key", key, "offset", off, "err", err)
		return nil
	}
	return c
}

// Count is not supported on a file-backed trie; wrap it in Forgetting.
func (t *Trie) Count(seq []int32) {
	t.logger.Warn("count on read-only counter ignored", "seq", seq)
}

// Uncount is not supported on a file-backed trie; wrap it in Forgetting.
func (t *Trie) Uncount(seq []int32) {
	t.logger.Warn("uncount on read-only counter ignored", "seq", seq)
}

// OwnCount returns the number of sequences counted at the root.
func (t *Trie) OwnCount() int64 {
	root := t.rootEntry("own")
	if root == nil {
		return 0
	}
	return int64(root.Own)
}

// CountOfCount is not stored on disk and is always zero.
func (t *Trie) CountOfCount(n, count int) int64 {
	return 0
}

func (t *Trie) GetCounts(seq []int32) (exact, contextCount int64) {
	n := t.rootEntry("counts")
	if n == nil {
		return 0, 0
	}
	if len(seq) == 0 {
		return int64(n.Own), int64(n.Own)
	}
	for i := 0; ; i++ {
		last := i == len(seq)-1
		s := t.child(n, seq[i])
		switch {
		case s == nil:
			if last {
				return 0, int64(n.Context)
			}
			return 0, 0
		case s.IsLeaf():
			exact, contextCount = 0, 0
			if last {
				contextCount = int64(n.Context)
			}
			switch {
			case counting.CheckPartialSequence(seq, i, s.Leaf):
				exact = int64(s.Leaf[0])
				if !last {
					contextCount = exact
				}
			case !last && len(s.Leaf) >= len(seq)-i && counting.CheckPartialSequence(seq[:len(seq)-1], i, s.Leaf):
				contextCount = int64(s.Leaf[0])
			}
			return exact, contextCount
		case last:
			return int64(s.Own), int64(n.Context)
		}
		n = s
	}
}

func (t *Trie) GetDistinctCounts(rng int, seq []int32) []int {
	if rng <= 0 {
		return []int{}
	}
	out := make([]int, rng)
	n := t.rootEntry("distinct")
	if n == nil {
		return out
	}
	for i := 0; i < len(seq); i++ {
		s := t.child(n, seq[i])
		if s == nil {
			return out
		}
		if s.IsLeaf() {
			if counting.CheckPartialSequence(seq, i, s.Leaf) && !counting.CheckExactSequence(seq, i, s.Leaf) {
				out[min(rng-1, int(s.Leaf[0])-1)] = 1
			}
			return out
		}
		n = s
	}
	buckets := make([]int32, t.opts.Cutoff)
	total := 0
	for _, c := range n.Children {
		child, err := t.cache.Get(c.Offset)
		if err != nil {
			t.logger.Error("reading successor", "offset", c.Offset, "err", err)
			continue
		}
		if count := child.Count(); count > 0 {
			buckets[min(count, int32(len(buckets)))-1]++
			total++
		}
	}
	return counting.BucketHistogram(rng, buckets, total)
}

func (t *Trie) GetTopSuccessors(seq []int32, limit int) []int32 {
	if limit <= 0 {
		return []int32{}
	}
	n, rest, ok := t.successorNode(seq, "top")
	switch {
	case !ok:
		return []int32{}
	case n != nil:
		top := make([]int32, 0, min(limit, len(n.Children)))
		for _, c := range n.Children[:min(limit, len(n.Children))] {
			top = append(top, c.Key)
		}
		return top
	case len(rest) > 1:
		return []int32{rest[1]}
	default:
		return []int32{}
	}
}

func (t *Trie) GetSuccessorCount(seq []int32) int {
	n, rest, ok := t.successorNode(seq, "successors")
	switch {
	case !ok:
		return 0
	case n != nil:
		return len(n.Children)
	case len(rest) > 1:
		return 1
	default:
		return 0
	}
}

func (t *Trie) successorNode(seq []int32, op string) (*Entry, []int32, bool) {
	n := t.rootEntry(op)
	if n == nil {
		return nil, nil, false
	}
	for i := 0; i < len(seq); i++ {
		s := t.child(n, seq[i])
		if s == nil {
			return nil, nil, false
		}
		if s.IsLeaf() {
			rest, ok := counting.LeafRemainder(seq, i, s.Leaf)
			return nil, rest, ok
		}
		n = s
	}
	return n, nil, true
}
