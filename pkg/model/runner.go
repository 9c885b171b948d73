/*
Package model drives counting tries from token sequences.

A Runner owns a vocabulary and one counter per direction. While training the
counters are mutable tries; after Load they are saved tries served from disk
and wrapped in persistent.Forgetting, so learn and forget still work for the
lifetime of the session without touching the files.

A model directory holds:

	forwardCounter.bin            forward trie (bidirectional models)
	reverseCounter.bin            reverse trie (bidirectional models)
	counter.bin                   the only trie of a one-way model
	vocabulary.txt                count, id and token per line
	rememberedIdentifiers.msgpack model metadata and remembered ids
*/
package model

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bastiangx/namegram/internal/logger"
	"github.com/bastiangx/namegram/internal/utils"
	"github.com/bastiangx/namegram/pkg/counting"
	"github.com/bastiangx/namegram/pkg/counting/persistent"
	"github.com/bastiangx/namegram/pkg/vocab"
	"github.com/charmbracelet/log"
)

const (
	CounterFile        = "counter.bin"
	ForwardCounterFile = "forwardCounter.bin"
	ReverseCounterFile = "reverseCounter.bin"
	VocabularyFile     = "vocabulary.txt"
	RememberedFile     = "rememberedIdentifiers.msgpack"
)

const megabyte = 1024 * 1024

var ErrReadOnly = errors.New("model: counters are served from disk")

// Options configures a Runner.
type Options struct {
	Bidirectional bool
	// VocabCutoff drops vocabulary entries counted fewer times on Load.
	VocabCutoff int
	Counting    counting.Options
	Persistent  persistent.Options
}

func DefaultOptions() Options {
	return Options{
		Bidirectional: true,
		Counting:      counting.DefaultOptions(),
		Persistent:    persistent.DefaultOptions(),
	}
}

// Counter is what a Runner needs from each direction.
type Counter interface {
	counting.Counter
	CountBatch(ctx context.Context, seqs [][]int32) (int, error)
	UncountBatch(ctx context.Context, seqs [][]int32) (int, error)
}

// Runner is safe for concurrent use. Learn and Forget hold the write lock;
// queries share the read lock.
type Runner struct {
	opts Options

	mu         sync.RWMutex
	vocab      *vocab.Vocabulary
	cocs       *counting.CountOfCounts
	forward    Counter
	reverse    Counter
	remembered map[int32]struct{}
	loaded     bool

	logger *log.Logger
}

// NewRunner returns a runner with empty mutable counters.
func NewRunner(opts Options) *Runner {
	r := &Runner{opts: opts, logger: logger.New("model")}
	r.reset()
	return r
}

func (r *Runner) reset() {
	r.vocab = vocab.New()
	r.cocs = counting.NewCountOfCounts(r.opts.Counting.Order)
	r.forward = counting.New(r.cocs, r.opts.Counting)
	r.reverse = nil
	if r.opts.Bidirectional {
		// Both directions see the same n-grams, so the reverse trie keeps its
		// own table.
		r.reverse = counting.New(nil, r.opts.Counting)
	}
	r.remembered = make(map[int32]struct{})
	r.loaded = false
}

func (r *Runner) Options() Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts
}

func (r *Runner) Vocabulary() *vocab.Vocabulary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vocab
}

// Forward returns the forward counter.
func (r *Runner) Forward() Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.forward
}

// Reverse returns the reverse counter, or nil for a one-way model.
func (r *Runner) Reverse() Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reverse
}

// CountOfCounts returns the forward table. It stays empty after Load.
func (r *Runner) CountOfCounts() *counting.CountOfCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cocs
}

// Loaded reports whether the counters are served from disk.
func (r *Runner) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Windows returns the n-gram ending at every position of ids, each at most
// order long.
func Windows(ids []int32, order int) [][]int32 {
	if order <= 0 {
		order = 1
	}
	out := make([][]int32, len(ids))
	for i := range ids {
		out[i] = ids[max(0, i-order+1) : i+1]
	}
	return out
}

func reversed(ids []int32) []int32 {
	out := slices.Clone(ids)
	slices.Reverse(out)
	return out
}

// Learn counts every window of tokens. New tokens are added to the
// vocabulary. It returns the number of windows counted.
func (r *Runner) Learn(ctx context.Context, tokens []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(ctx, r.vocab.StoreAll(tokens), 1)
}

// LearnIdentifiers learns tokens and remembers the ones at the given
// positions as identifiers.
func (r *Runner) LearnIdentifiers(ctx context.Context, tokens []string, positions ...int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.vocab.StoreAll(tokens)
	for _, p := range positions {
		if p >= 0 && p < len(ids) && ids[p] != 0 {
			r.remembered[ids[p]] = struct{}{}
		}
	}
	return r.apply(ctx, ids, 1)
}

// Forget uncounts every window of tokens. Unknown tokens are not added to
// the vocabulary.
func (r *Runner) Forget(ctx context.Context, tokens []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(ctx, r.vocab.ToIndices(tokens), -1)
}

// apply runs the forward batch under ctx and then the same number of
// reverse windows, so both directions always hold the same sequences.
func (r *Runner) apply(ctx context.Context, ids []int32, adj int) (int, error) {
	r.checkIDs(ids)
	order := r.opts.Counting.Order
	batch := func(ctx context.Context, c Counter, seqs [][]int32) (int, error) {
		if adj > 0 {
			return c.CountBatch(ctx, seqs)
		}
		return c.UncountBatch(ctx, seqs)
	}
	n, err := batch(ctx, r.forward, Windows(ids, order))
	if r.reverse != nil && n > 0 {
		rev := Windows(reversed(ids), order)
		if _, rerr := batch(context.WithoutCancel(ctx), r.reverse, rev[:n]); rerr != nil && err == nil {
			err = rerr
		}
	}
	if err != nil {
		r.logger.Warn("batch interrupted", "done", n, "of", len(ids), "err", err)
	}
	return n, err
}

func (r *Runner) checkIDs(ids []int32) {
	size := int32(r.vocab.Size())
	for _, id := range ids {
		if id < 0 || id >= size {
			panic(fmt.Sprintf("model: id %d outside vocabulary of %d words", id, size))
		}
	}
}

// Remember marks tokens as identifiers. Tokens not in the vocabulary are
// skipped.
func (r *Runner) Remember(tokens ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, id := range r.vocab.ToIndices(tokens) {
		if id == 0 {
			continue
		}
		if _, ok := r.remembered[id]; !ok {
			r.remembered[id] = struct{}{}
			added++
		}
	}
	return added
}

func (r *Runner) IsRemembered(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.remembered[r.vocab.ToIndex(token)]
	return ok
}

// Counts returns the forward exact and context counts of tokens.
func (r *Runner) Counts(tokens []string) (exact, contextCount int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.forward.GetCounts(r.vocab.ToIndices(tokens))
}

// Query asks for the tokens that fit between Left and Right.
type Query struct {
	Left  []string
	Right []string
	Limit int
	// IdentifiersOnly keeps remembered identifiers only.
	IdentifiersOnly bool
}

type Suggestion struct {
	Word       string
	ID         int32
	Count      int64
	Identifier bool
}

// Suggest ranks candidates by the forward count after the tail of Left
// plus, for bidirectional models, the reverse count before the head of
// Right. Ties go to the lower id.
func (r *Runner) Suggest(q Query) []Suggestion {
	if q.Limit <= 0 {
		return []Suggestion{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	width := max(1, r.opts.Counting.Order-1)
	left := r.vocab.ToIndices(q.Left[max(0, len(q.Left)-width):])
	// Pull extra candidates when a filter will drop some.
	fetch := q.Limit
	if q.IdentifiersOnly {
		fetch = max(fetch, r.forward.GetSuccessorCount(left))
	}

	scores := make(map[int32]int64)
	score := func(c Counter, ctxIDs []int32) {
		seq := append(slices.Clone(ctxIDs), 0)
		for _, id := range c.GetTopSuccessors(ctxIDs, fetch) {
			seq[len(ctxIDs)] = id
			exact, _ := c.GetCounts(seq)
			scores[id] += exact
		}
	}
	score(r.forward, left)
	if r.reverse != nil && len(q.Right) > 0 {
		right := reversed(r.vocab.ToIndices(q.Right[:min(width, len(q.Right))]))
		score(r.reverse, right)
	}

	out := make([]Suggestion, 0, len(scores))
	for id, count := range scores {
		if id == 0 {
			continue
		}
		_, ident := r.remembered[id]
		if q.IdentifiersOnly && !ident {
			continue
		}
		out = append(out, Suggestion{Word: r.vocab.ToWord(id), ID: id, Count: count, Identifier: ident})
	}
	slices.SortFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out[:min(q.Limit, len(out))]
}

// Save writes the model into dir and returns its size in megabytes, or -1
// when anything fails. Only a trained model can be saved.
func (r *Runner) Save(dir string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	size, err := r.save(dir)
	if err != nil {
		r.logger.Error("saving model failed", "dir", dir, "err", err)
		return -1
	}
	mb := float64(size) / megabyte
	r.logger.Info("model saved", "dir", dir, "mb", fmt.Sprintf("%.2f", mb))
	return mb
}

func (r *Runner) save(dir string) (int64, error) {
	if r.loaded {
		return 0, ErrReadOnly
	}
	if err := utils.EnsureDir(dir); err != nil {
		return 0, err
	}
	var total int64
	saveTrie := func(c Counter, name string) error {
		n, err := c.(*counting.Trie).SaveFile(filepath.Join(dir, name))
		total += n
		return err
	}
	if r.reverse != nil {
		if err := saveTrie(r.forward, ForwardCounterFile); err != nil {
			return total, err
		}
		if err := saveTrie(r.reverse, ReverseCounterFile); err != nil {
			return total, err
		}
	} else if err := saveTrie(r.forward, CounterFile); err != nil {
		return total, err
	}

	meta := r.meta()
	n, err := writeMeta(filepath.Join(dir, RememberedFile), meta)
	total += n
	if err != nil {
		return total, err
	}
	vocabPath := filepath.Join(dir, VocabularyFile)
	if err := r.vocab.Write(vocabPath); err != nil {
		return total, err
	}
	n, err = utils.FileSize(vocabPath)
	return total + n, err
}

func (r *Runner) meta() Meta {
	m := Meta{
		Order:         r.opts.Counting.Order,
		Bidirectional: r.reverse != nil,
		VocabSize:     r.vocab.Size(),
		Sequences:     r.forward.(*counting.Trie).OwnCount(),
		Remembered:    make([]int32, 0, len(r.remembered)),
	}
	for id := range r.remembered {
		m.Remembered = append(m.Remembered, id)
	}
	slices.Sort(m.Remembered)
	return m
}

// Load replaces the model with the one saved in dir. The counters are opened
// but not warmed; call ResolveCounter before latency sensitive queries. It
// returns false and leaves the runner unchanged when dir is incomplete or
// unreadable.
func (r *Runner) Load(dir string) bool {
	next, err := r.load(dir)
	if err != nil {
		r.logger.Error("loading model failed", "dir", dir, "err", err)
		return false
	}
	r.mu.Lock()
	old := r.closers()
	r.vocab, r.cocs, r.forward, r.reverse, r.remembered = next.vocab, next.cocs, next.forward, next.reverse, next.remembered
	r.opts.Counting.Order, r.opts.Bidirectional = next.order, next.reverse != nil
	r.loaded = true
	r.mu.Unlock()
	for _, c := range old {
		c.Close()
	}
	r.logger.Info("model loaded", "dir", dir, "words", next.vocab.Size(), "bidirectional", next.reverse != nil)
	return true
}

type loadedModel struct {
	order      int
	vocab      *vocab.Vocabulary
	cocs       *counting.CountOfCounts
	forward    Counter
	reverse    Counter
	remembered map[int32]struct{}
}

func (r *Runner) load(dir string) (*loadedModel, error) {
	if p, missing := utils.MissingFile(dir, RememberedFile, VocabularyFile); missing {
		return nil, fmt.Errorf("%s: %w", p, persistent.ErrNotFound)
	}
	metaPath := filepath.Join(dir, RememberedFile)
	vocabPath := filepath.Join(dir, VocabularyFile)
	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}
	v, err := vocab.Read(vocabPath, r.opts.VocabCutoff)
	if err != nil {
		return nil, err
	}
	if r.opts.VocabCutoff <= 0 && v.Size() != meta.VocabSize {
		panic(fmt.Sprintf("model: %s holds %d words but the counters were saved with %d", vocabPath, v.Size(), meta.VocabSize))
	}

	m := &loadedModel{order: meta.Order, vocab: v, cocs: counting.NewCountOfCounts(meta.Order), remembered: make(map[int32]struct{}, len(meta.Remembered))}
	for _, id := range meta.Remembered {
		m.remembered[id] = struct{}{}
	}
	open := func(name string) (*persistent.Forgetting, error) {
		base, err := persistent.Load(filepath.Join(dir, name), r.opts.Persistent)
		if err != nil {
			return nil, err
		}
		f := persistent.NewForgetting(base, r.opts.Counting)
		return f, f.Open()
	}

	if !meta.Bidirectional {
		fw, err := open(CounterFile)
		if err != nil {
			return nil, err
		}
		m.forward = fw
		return m, nil
	}
	fw, err := open(ForwardCounterFile)
	if err != nil {
		return nil, err
	}
	rv, err := open(ReverseCounterFile)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if a, b := fw.Base().OwnCount(), rv.Base().OwnCount(); a != b {
		fw.Close()
		rv.Close()
		panic(fmt.Sprintf("model: forward counter holds %d sequences but reverse holds %d", a, b))
	}
	m.forward, m.reverse = fw, rv
	return m, nil
}

// Resume loads a saved model into mutable tries so training can continue.
func (r *Runner) Resume(dir string) bool {
	if err := r.resume(dir); err != nil {
		r.logger.Error("resuming model failed", "dir", dir, "err", err)
		return false
	}
	return true
}

func (r *Runner) resume(dir string) error {
	meta, err := readMeta(filepath.Join(dir, RememberedFile))
	if err != nil {
		return err
	}
	v, err := vocab.Read(filepath.Join(dir, VocabularyFile), 0)
	if err != nil {
		return err
	}
	if v.Size() != meta.VocabSize {
		panic(fmt.Sprintf("model: vocabulary holds %d words but the counters were saved with %d", v.Size(), meta.VocabSize))
	}
	opts := r.opts.Counting
	opts.Order = meta.Order
	cocs := counting.NewCountOfCounts(meta.Order)
	var fw, rv *counting.Trie
	if meta.Bidirectional {
		if fw, err = counting.LoadFile(filepath.Join(dir, ForwardCounterFile), cocs, opts); err != nil {
			return err
		}
		if rv, err = counting.LoadFile(filepath.Join(dir, ReverseCounterFile), nil, opts); err != nil {
			return err
		}
	} else if fw, err = counting.LoadFile(filepath.Join(dir, CounterFile), cocs, opts); err != nil {
		return err
	}

	r.mu.Lock()
	old := r.closers()
	r.opts.Counting, r.opts.Bidirectional = opts, meta.Bidirectional
	r.vocab, r.cocs, r.forward, r.reverse = v, cocs, fw, nil
	if rv != nil {
		r.reverse = rv
	}
	r.remembered = make(map[int32]struct{}, len(meta.Remembered))
	for _, id := range meta.Remembered {
		r.remembered[id] = struct{}{}
	}
	r.loaded = false
	r.mu.Unlock()
	for _, c := range old {
		c.Close()
	}
	r.logger.Info("model resumed", "dir", dir, "nodes", fw.NodeCount())
	return nil
}

// ResolveCounter warms loaded counters. It is a no-op while training.
func (r *Runner) ResolveCounter(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range []Counter{r.forward, r.reverse} {
		if f, ok := c.(*persistent.Forgetting); ok {
			if err := f.ResolveCounter(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

type closer interface{ Close() error }

func (r *Runner) closers() []closer {
	var out []closer
	for _, c := range []Counter{r.forward, r.reverse} {
		if cl, ok := c.(closer); ok {
			out = append(out, cl)
		}
	}
	return out
}

// Close releases loaded counters and resets the runner to an empty trained
// model.
func (r *Runner) Close() error {
	r.mu.Lock()
	old := r.closers()
	r.reset()
	r.mu.Unlock()
	var errs []error
	for _, c := range old {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Stats summarizes the model.
type Stats struct {
	Words         int
	Sequences     int64
	Nodes         int
	Remembered    int
	Loaded        bool
	Bidirectional bool
	Forgotten     int64
	Relearned     int64
	Cache         persistent.CacheStats
}

func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		Words:         r.vocab.Size(),
		Remembered:    len(r.remembered),
		Loaded:        r.loaded,
		Bidirectional: r.reverse != nil,
	}
	switch c := r.forward.(type) {
	case *counting.Trie:
		s.Sequences = c.OwnCount()
		s.Nodes = c.NodeCount()
	case *persistent.Forgetting:
		s.Sequences, _ = c.GetCounts(nil)
		s.Forgotten, s.Relearned = c.Pending()
		s.Cache = c.Base().Cache().Stats()
	}
	return s
}
