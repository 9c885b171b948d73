package server

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/bastiangx/namegram/pkg/config"
	"github.com/bastiangx/namegram/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func testRunner() *model.Runner {
	opts := model.DefaultOptions()
	opts.Counting.Order = 3
	return model.NewRunner(opts)
}

// serve runs every request through a fresh server and returns a decoder
// positioned after the ready message.
func serve(t *testing.T, srv func(in *bytes.Buffer, out *bytes.Buffer) *Server, reqs ...any) *msgpack.Decoder {
	t.Helper()
	var in, out bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	for _, r := range reqs {
		require.NoError(t, enc.Encode(r))
	}
	require.NoError(t, srv(&in, &out).Start(context.Background()))

	dec := msgpack.NewDecoder(&out)
	var ready map[string]string
	require.NoError(t, dec.Decode(&ready))
	assert.Equal(t, "ready", ready["status"])
	return dec
}

func TestLearnTopCounts(t *testing.T) {
	runner := testRunner()
	dec := serve(t, func(in, out *bytes.Buffer) *Server {
		return NewServerWithIO(runner, nil, "", in, out)
	},
		Request{ID: "1", Action: "learn", Tokens: []string{"a", "b", "c"}, IDs: []int{2}},
		Request{ID: "2", Action: "learn", Tokens: []string{"a", "b", "c"}},
		Request{ID: "3", Action: "learn", Tokens: []string{"a", "b", "d"}},
		Request{ID: "4", Action: "top", Tokens: []string{"a", "b"}, Limit: 5},
		Request{ID: "5", Action: "counts", Tokens: []string{"a", "b", "c"}},
		Request{ID: "6", Action: "top", Tokens: []string{"a", "b"}, Identifiers: true},
		Request{ID: "7", Action: "forget", Tokens: []string{"a", "b", "c"}},
		Request{ID: "8", Action: "counts", Tokens: []string{"a", "b", "c"}},
	)

	for _, id := range []string{"1", "2", "3"} {
		var resp ModelResponse
		require.NoError(t, dec.Decode(&resp))
		assert.Equal(t, id, resp.ID)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 3, resp.Windows)
	}

	var top CompletionResponse
	require.NoError(t, dec.Decode(&top))
	assert.Equal(t, "4", top.ID)
	require.Equal(t, 2, top.Count)
	assert.Equal(t, CompletionSuggestion{Word: "c", Rank: 1, Count: 2, Identifier: true}, top.Suggestions[0])
	assert.Equal(t, CompletionSuggestion{Word: "d", Rank: 2, Count: 1}, top.Suggestions[1])

	var counts CountsResponse
	require.NoError(t, dec.Decode(&counts))
	assert.Equal(t, int64(2), counts.Exact)
	assert.Equal(t, int64(3), counts.Context)

	require.NoError(t, dec.Decode(&top))
	assert.Equal(t, "6", top.ID)
	require.Len(t, top.Suggestions, 1)
	assert.Equal(t, "c", top.Suggestions[0].Word)

	var forget ModelResponse
	require.NoError(t, dec.Decode(&forget))
	assert.Equal(t, "ok", forget.Status)

	require.NoError(t, dec.Decode(&counts))
	assert.Equal(t, "8", counts.ID)
	assert.Equal(t, int64(1), counts.Exact)
}

func TestSaveLoadStats(t *testing.T) {
	runner := testRunner()
	dir := filepath.Join(t.TempDir(), "model")
	cfg := config.DefaultConfig()
	cfg.Model.Dir = dir

	dec := serve(t, func(in, out *bytes.Buffer) *Server {
		return NewServerWithIO(runner, cfg, "", in, out)
	},
		Request{ID: "1", Action: "learn", Tokens: []string{"get", "user", "name"}},
		Request{ID: "2", Action: "save"},
		Request{ID: "3", Action: "load"},
		Request{ID: "4", Action: "stats"},
		Request{ID: "5", Action: "save"},
		Request{ID: "6", Action: "load", Dir: filepath.Join(dir, "missing")},
	)

	var resp ModelResponse
	require.NoError(t, dec.Decode(&resp))
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Positive(t, resp.SizeMB)
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "3", resp.ID)
	assert.Equal(t, "ok", resp.Status)

	var stats StatsResponse
	require.NoError(t, dec.Decode(&stats))
	assert.True(t, stats.Loaded)
	assert.True(t, stats.Bidirectional)
	assert.Equal(t, 4, stats.Words)
	assert.Equal(t, int64(3), stats.Sequences)
	assert.Positive(t, stats.CacheStatic)
	assert.Equal(t, int64(4), stats.Requests)

	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "error", resp.Status)
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "6", resp.ID)
	assert.Equal(t, "error", resp.Status)
	assert.True(t, runner.Loaded())
}

func TestCompleteAndErrors(t *testing.T) {
	runner := testRunner()
	_, err := runner.Learn(context.Background(), []string{"getName", "getId", "getName", "set"})
	require.NoError(t, err)

	dec := serve(t, func(in, out *bytes.Buffer) *Server {
		return NewServerWithIO(runner, nil, "", in, out)
	},
		Request{ID: "1", Action: "complete", Prefix: "get"},
		Request{ID: "2", Action: "complete"},
		Request{ID: "3", Action: "bogus"},
		Request{ID: "4", Action: "learn"},
		"not a request",
		Request{ID: "5", Action: "health"},
	)

	var comp CompletionResponse
	require.NoError(t, dec.Decode(&comp))
	require.Equal(t, 2, comp.Count)
	assert.Equal(t, "getName", comp.Suggestions[0].Word)
	assert.Equal(t, uint16(1), comp.Suggestions[0].Rank)
	assert.Equal(t, int64(2), comp.Suggestions[0].Count)

	for _, id := range []string{"2", "3", "4", ""} {
		var e CompletionError
		require.NoError(t, dec.Decode(&e))
		assert.Equal(t, id, e.ID)
		assert.Equal(t, 400, e.Code)
		assert.NotEmpty(t, e.Error)
	}

	var health map[string]string
	require.NoError(t, dec.Decode(&health))
	assert.Equal(t, "5", health["id"])
}

func TestConfigUpdate(t *testing.T) {
	runner := testRunner()
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := config.DefaultConfig()
	maxLimit, zero := 2, 0

	dec := serve(t, func(in, out *bytes.Buffer) *Server {
		return NewServerWithIO(runner, cfg, path, in, out)
	},
		Request{ID: "1", Action: "config", MaxLimit: &maxLimit},
		Request{ID: "2", Action: "config", DefaultLimit: &zero},
	)

	var resp ConfigResponse
	require.NoError(t, dec.Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.MaxLimit)
	assert.Equal(t, 10, resp.DefaultLimit)

	var e CompletionError
	require.NoError(t, dec.Decode(&e))
	assert.Equal(t, "2", e.ID)

	saved, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Server.MaxLimit)
}

func TestLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.MaxLimit = 5
	cfg.Server.DefaultLimit = 3
	s := NewServerWithIO(testRunner(), cfg, "", &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, 3, s.limit(0))
	assert.Equal(t, 4, s.limit(4))
	assert.Equal(t, 5, s.limit(100))
}
