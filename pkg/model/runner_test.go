package model

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Counting.Order = 3
	return opts
}

func trained(t *testing.T, opts Options) *Runner {
	t.Helper()
	r := NewRunner(opts)
	ctx := context.Background()
	for _, line := range []string{"a b c", "a b c", "a b d"} {
		n, err := r.Learn(ctx, strings.Fields(line))
		require.NoError(t, err)
		require.Equal(t, 3, n)
	}
	return r
}

func TestWindows(t *testing.T) {
	testCases := []struct {
		ids   []int32
		order int
		want  [][]int32
	}{
		{[]int32{1, 2, 3, 4}, 3, [][]int32{{1}, {1, 2}, {1, 2, 3}, {2, 3, 4}}},
		{[]int32{1, 2}, 1, [][]int32{{1}, {2}}},
		{[]int32{1, 2}, 0, [][]int32{{1}, {2}}},
		{nil, 3, [][]int32{}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, Windows(tc.ids, tc.order))
	}
}

func TestLearnAndForget(t *testing.T) {
	r := trained(t, testOptions())

	exact, ctx := r.Counts([]string{"a", "b", "c"})
	assert.Equal(t, int64(2), exact)
	assert.Equal(t, int64(3), ctx)
	exact, ctx = r.Counts([]string{"a", "b"})
	assert.Equal(t, int64(6), exact)
	assert.Equal(t, int64(6), ctx)

	for _, c := range []Counter{r.Forward(), r.Reverse()} {
		exact, _ := c.GetCounts(nil)
		assert.Equal(t, int64(9), exact)
	}

	n, err := r.Forget(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	exact, ctx = r.Counts([]string{"a", "b", "c"})
	assert.Equal(t, int64(1), exact)
	assert.Equal(t, int64(2), ctx)

	// Forgetting unseen text leaves the counts alone.
	_, err = r.Forget(context.Background(), []string{"zz", "a"})
	require.NoError(t, err)
	assert.Equal(t, 5, r.Vocabulary().Size())
	exact, _ = r.Counts([]string{"a"})
	assert.Equal(t, int64(6), exact)
}

func TestLearnCancelled(t *testing.T) {
	r := NewRunner(testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := r.Learn(ctx, []string{"a", "b"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Zero(t, r.Stats().Sequences)
}

func TestSuggest(t *testing.T) {
	r := trained(t, testOptions())

	got := r.Suggest(Query{Left: []string{"a", "b"}, Limit: 5})
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Word)
	assert.Equal(t, int64(2), got[0].Count)
	assert.Equal(t, "d", got[1].Word)

	got = r.Suggest(Query{Left: []string{"a", "b"}, Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Word)

	// The reverse counter scores b before c.
	got = r.Suggest(Query{Left: []string{"a"}, Right: []string{"c"}, Limit: 3})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Word)
	assert.Equal(t, int64(10), got[0].Count)

	assert.Empty(t, r.Suggest(Query{Left: []string{"a"}, Limit: 0}))
	assert.Empty(t, r.Suggest(Query{Left: []string{"nope"}, Limit: 3}))
}

func TestIdentifiers(t *testing.T) {
	r := NewRunner(testOptions())
	ctx := context.Background()
	_, err := r.LearnIdentifiers(ctx, []string{"a", "b", "c"}, 2, 7)
	require.NoError(t, err)
	_, err = r.Learn(ctx, []string{"a", "b", "d"})
	require.NoError(t, err)
	_, err = r.Learn(ctx, []string{"a", "b", "d"})
	require.NoError(t, err)

	assert.True(t, r.IsRemembered("c"))
	assert.False(t, r.IsRemembered("d"))

	got := r.Suggest(Query{Left: []string{"a", "b"}, Limit: 5, IdentifiersOnly: true})
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Word)
	assert.True(t, got[0].Identifier)

	assert.Equal(t, 1, r.Remember("d", "missing"))
	assert.Equal(t, 0, r.Remember("d"))
	assert.Equal(t, 2, r.Stats().Remembered)
}

func TestSaveLoad(t *testing.T) {
	r := trained(t, testOptions())
	r.Remember("c")
	dir := filepath.Join(t.TempDir(), "model")

	mb := r.Save(dir)
	assert.Greater(t, mb, 0.0)
	for _, name := range []string{ForwardCounterFile, ReverseCounterFile, VocabularyFile, RememberedFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, CounterFile))

	loaded := NewRunner(DefaultOptions())
	require.True(t, loaded.Load(dir))
	defer loaded.Close()
	require.NoError(t, loaded.ResolveCounter(context.Background()))
	assert.True(t, loaded.Loaded())
	assert.Equal(t, 3, loaded.Options().Counting.Order)
	assert.True(t, loaded.IsRemembered("c"))

	exact, ctx := loaded.Counts([]string{"a", "b", "c"})
	assert.Equal(t, int64(2), exact)
	assert.Equal(t, int64(3), ctx)
	assert.Equal(t, r.Suggest(Query{Left: []string{"a"}, Right: []string{"c"}, Limit: 3}),
		loaded.Suggest(Query{Left: []string{"a"}, Right: []string{"c"}, Limit: 3}))

	stats := loaded.Stats()
	assert.Equal(t, int64(9), stats.Sequences)
	assert.Equal(t, 5, stats.Words)
	assert.Positive(t, stats.Cache.Static)

	// Session changes go to the overlay, never the files.
	before, err := os.ReadFile(filepath.Join(dir, ForwardCounterFile))
	require.NoError(t, err)
	_, err = loaded.Forget(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	exact, ctx = loaded.Counts([]string{"a", "b", "c"})
	assert.Equal(t, int64(1), exact)
	assert.Equal(t, int64(2), ctx)
	assert.Equal(t, int64(3), loaded.Stats().Forgotten)

	_, err = loaded.Learn(context.Background(), []string{"a", "b", "e"})
	require.NoError(t, err)
	exact, _ = loaded.Counts([]string{"a", "b", "e"})
	assert.Equal(t, int64(1), exact)

	assert.Equal(t, -1.0, loaded.Save(filepath.Join(t.TempDir(), "again")))
	after, err := os.ReadFile(filepath.Join(dir, ForwardCounterFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOneWayModel(t *testing.T) {
	opts := testOptions()
	opts.Bidirectional = false
	r := trained(t, opts)
	assert.Nil(t, r.Reverse())

	dir := t.TempDir()
	require.Greater(t, r.Save(dir), 0.0)
	assert.FileExists(t, filepath.Join(dir, CounterFile))
	assert.NoFileExists(t, filepath.Join(dir, ForwardCounterFile))

	loaded := NewRunner(DefaultOptions())
	require.True(t, loaded.Load(dir))
	defer loaded.Close()
	assert.Nil(t, loaded.Reverse())
	assert.False(t, loaded.Options().Bidirectional)
	exact, _ := loaded.Counts([]string{"a", "b", "d"})
	assert.Equal(t, int64(1), exact)
}

func TestLoadFailures(t *testing.T) {
	r := NewRunner(testOptions())
	assert.False(t, r.Load(t.TempDir()))
	assert.False(t, r.Loaded())

	dir := t.TempDir()
	require.Greater(t, trained(t, testOptions()).Save(dir), 0.0)
	require.NoError(t, os.Remove(filepath.Join(dir, ReverseCounterFile)))
	assert.False(t, r.Load(dir))
	assert.False(t, r.Loaded())

	require.NoError(t, os.WriteFile(filepath.Join(dir, RememberedFile), []byte{0xc1}, 0o644))
	assert.False(t, r.Load(dir))
}

func TestLoadVocabularyMismatchPanics(t *testing.T) {
	dir := t.TempDir()
	require.Greater(t, trained(t, testOptions()).Save(dir), 0.0)

	f, err := os.OpenFile(filepath.Join(dir, VocabularyFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("1\t5\tstray\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Panics(t, func() { NewRunner(DefaultOptions()).Load(dir) })
}

func TestResume(t *testing.T) {
	dir := t.TempDir()
	require.Greater(t, trained(t, testOptions()).Save(dir), 0.0)

	r := NewRunner(DefaultOptions())
	require.True(t, r.Resume(dir))
	assert.False(t, r.Loaded())
	assert.Equal(t, 3, r.Options().Counting.Order)

	exact, ctx := r.Counts([]string{"a", "b", "c"})
	assert.Equal(t, int64(2), exact)
	assert.Equal(t, int64(3), ctx)
	assert.Positive(t, r.CountOfCounts().Get(1, 1)+r.CountOfCounts().Get(3, 1))

	_, err := r.Learn(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	exact, _ = r.Counts([]string{"a", "b", "c"})
	assert.Equal(t, int64(3), exact)
	assert.Greater(t, r.Save(t.TempDir()), 0.0)

	assert.False(t, r.Resume(t.TempDir()))
}

func TestClose(t *testing.T) {
	r := trained(t, testOptions())
	require.NoError(t, r.Close())
	assert.Zero(t, r.Stats().Sequences)
	assert.Equal(t, 1, r.Vocabulary().Size())
}
