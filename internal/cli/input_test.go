package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bastiangx/namegram/pkg/model"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, h *InputHandler, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	h.logger = log.New(&out)
	require.NoError(t, h.Start(context.Background(), strings.NewReader(strings.Join(lines, "\n"))))
	return out.String()
}

func newHandler(dir string) *InputHandler {
	opts := model.DefaultOptions()
	opts.Counting.Order = 3
	return NewInputHandler(model.NewRunner(opts), 5, dir, nil)
}

func TestCommands(t *testing.T) {
	h := newHandler(t.TempDir())
	out := run(t, h,
		"learn a b c",
		"learn a b c",
		"learn a b d",
		"remember c",
		"top a b",
		"count a b c",
		"complete a",
		"forget a b c",
		"count a b c",
		"",
		"bogus",
	)
	assert.Equal(t, 10, h.Requests())
	assert.Contains(t, out, "learn: 3 windows")
	assert.Contains(t, out, "remembered 1 new identifiers")
	assert.Contains(t, out, "Found 2 suggestions after 'a b'")
	assert.Contains(t, out, "a b c: exact 2, context 3")
	assert.Contains(t, out, "forget: 3 windows")
	assert.Contains(t, out, "a b c: exact 1, context 2")
	assert.Contains(t, out, `unknown command "bogus"`)
}

func TestTopWithRightContext(t *testing.T) {
	h := newHandler(t.TempDir())
	out := run(t, h,
		"learn a b c",
		"learn a x c",
		"top a | c",
		"ids a",
		"top zz",
	)
	assert.Contains(t, out, "Found 2 suggestions after 'a'")
	assert.Contains(t, out, "No suggestions after 'a'")
	assert.Contains(t, out, "No suggestions after 'zz'")
}

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")
	h := newHandler(dir)
	out := run(t, h,
		"learn get user name",
		"save",
		"load",
		"stats",
		"load "+filepath.Join(dir, "nope"),
	)
	assert.Contains(t, out, "saved "+dir)
	assert.Contains(t, out, "loaded "+dir)
	assert.Contains(t, out, "could not load")
	assert.True(t, h.runner.Loaded())
}
