package persistent

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/bastiangx/namegram/pkg/counting"
	"github.com/charmbracelet/log"
)

// Forgetting lets a session learn and unlearn sequences on top of a saved
// trie without touching its file. Removals of saved sequences are counted in
// forgotten, additions in relearned, and reads report base + relearned -
// forgotten clamped at zero. Both overlays are dropped on Reset and Close.
type Forgetting struct {
	base *Trie
	opts counting.Options

	mu        sync.Mutex
	forgotten *counting.Trie
	relearned *counting.Trie
}

var _ counting.Counter = (*Forgetting)(nil)

// NewForgetting wraps base. opts shapes the in-memory overlays.
func NewForgetting(base *Trie, opts counting.Options) *Forgetting {
	f := &Forgetting{base: base, opts: opts}
	f.Reset()
	return f
}

// Base returns the wrapped trie.
func (f *Forgetting) Base() *Trie {
	return f.base
}

// Reset discards every pending change.
func (f *Forgetting) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = counting.New(nil, f.opts)
	f.relearned = counting.New(nil, f.opts)
}

// Pending returns how many sequences are currently forgotten and relearned.
func (f *Forgetting) Pending() (forgotten, relearned int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forgotten.OwnCount(), f.relearned.OwnCount()
}

// Uncount forgets one occurrence of seq. A relearned occurrence is taken
// back first. Sequences whose adjusted count is already zero are left alone.
func (f *Forgetting) Uncount(seq []int32) {
	base, _ := f.base.GetCounts(seq)
	f.mu.Lock()
	defer f.mu.Unlock()
	re, _ := f.relearned.GetCounts(seq)
	fe, _ := f.forgotten.GetCounts(seq)
	if base+re-fe <= 0 {
		log.Warnf("forgetting: ignoring uncount of %v with count %d", seq, max(0, base+re-fe))
		return
	}
	if re > 0 {
		f.relearned.Uncount(seq)
		return
	}
	f.forgotten.Count(seq)
}

// Count relearns one occurrence of seq. A forgotten occurrence is restored
// first.
func (f *Forgetting) Count(seq []int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exact, _ := f.forgotten.GetCounts(seq); exact > 0 {
		f.forgotten.Uncount(seq)
		return
	}
	f.relearned.Count(seq)
}

func (f *Forgetting) GetCounts(seq []int32) (exact, contextCount int64) {
	exact, contextCount = f.base.GetCounts(seq)
	f.mu.Lock()
	defer f.mu.Unlock()
	re, rc := f.relearned.GetCounts(seq)
	fe, fc := f.forgotten.GetCounts(seq)
	return max(0, exact+re-fe), max(0, contextCount+rc-fc)
}

// GetDistinctCounts reports the saved histogram; overlays do not adjust it.
func (f *Forgetting) GetDistinctCounts(rng int, seq []int32) []int {
	return f.base.GetDistinctCounts(rng, seq)
}

// GetTopSuccessors merges saved and relearned candidates and ranks them by
// their adjusted counts.
func (f *Forgetting) GetTopSuccessors(seq []int32, limit int) []int32 {
	if limit <= 0 {
		return []int32{}
	}
	f.mu.Lock()
	widen := f.forgotten.GetSuccessorCount(seq)
	relearned := f.relearned.GetTopSuccessors(seq, limit)
	f.mu.Unlock()

	return f.rank(seq, f.base.GetTopSuccessors(seq, limit+widen), relearned, limit)
}

// GetSuccessorCount returns the number of successors whose adjusted count
// is positive.
func (f *Forgetting) GetSuccessorCount(seq []int32) int {
	f.mu.Lock()
	relearned := f.relearned.GetTopSuccessors(seq, f.relearned.GetSuccessorCount(seq))
	f.mu.Unlock()

	base := f.base.GetTopSuccessors(seq, f.base.GetSuccessorCount(seq))
	return len(f.rank(seq, base, relearned, len(base)+len(relearned)))
}

func (f *Forgetting) rank(seq, base, relearned []int32, limit int) []int32 {
	type scored struct {
		key   int32
		count int64
	}
	candidates := slices.Compact(slices.Sorted(slices.Values(append(slices.Clone(base), relearned...))))
	next := append(slices.Clone(seq), 0)
	ranked := make([]scored, 0, len(candidates))
	for _, key := range candidates {
		next[len(seq)] = key
		if c, _ := f.GetCounts(next); c > 0 {
			ranked = append(ranked, scored{key, c})
		}
	}
	slices.SortFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	out := make([]int32, 0, min(limit, len(ranked)))
	for _, s := range ranked[:min(limit, len(ranked))] {
		out = append(out, s.key)
	}
	return out
}

func (f *Forgetting) Open() error {
	return f.base.Open()
}

func (f *Forgetting) ResolveCounter(ctx context.Context) error {
	return f.base.ResolveCounter(ctx)
}

func (f *Forgetting) State() State {
	return f.base.State()
}

// Close drops the overlays and closes the saved trie.
func (f *Forgetting) Close() error {
	f.Reset()
	return f.base.Close()
}

// CountBatch relearns each sequence, stopping between sequences once ctx is done.
func (f *Forgetting) CountBatch(ctx context.Context, seqs [][]int32) (int, error) {
	for i, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		f.Count(seq)
	}
	return len(seqs), nil
}

// UncountBatch forgets each sequence, stopping between sequences once ctx is done.
func (f *Forgetting) UncountBatch(ctx context.Context, seqs [][]int32) (int, error) {
	for i, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		f.Uncount(seq)
	}
	return len(seqs), nil
}
