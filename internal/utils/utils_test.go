package utils

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"a", "==", "getName"}, SplitTokens("  a\t==  getName \n"))
	assert.Equal(t, []string{"x"}, ValidTokens([]string{"", "x", "a b", "\x00"}))
	assert.True(t, IsValidPrefix("get"))
	assert.False(t, IsValidPrefix(""))
	assert.False(t, IsValidPrefix(strings.Repeat("a", MaxPrefixLen+1)))
}

func TestFormatWithCommas(t *testing.T) {
	testCases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-12345, "-12,345"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, FormatWithCommas(tc.in))
	}
	assert.Equal(t, "42", FormatWithCommas(42))
}

func TestRanks(t *testing.T) {
	assert.Equal(t, []uint16{1, 2, 3}, Ranks(3))
	assert.Empty(t, Ranks(0))
	assert.Empty(t, Ranks(-1))
	ranks := Ranks(math.MaxUint16 + 2)
	assert.Equal(t, uint16(math.MaxUint16), ranks[len(ranks)-1])
}

func TestParseHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte("[model]\ndir = \"m\"\nbidirectional = true\nvocab_cutoff = 2\n"), 0o644))
	data, err := ParseTOMLWithRecovery(path)
	require.NoError(t, err)
	section, ok := ExtractSection(data, "model")
	require.True(t, ok)

	dir, ok := ExtractString(section, "dir")
	assert.True(t, ok)
	assert.Equal(t, "m", dir)
	bidi, ok := ExtractBool(section, "bidirectional")
	assert.True(t, ok)
	assert.True(t, bidi)
	cutoff, ok := ExtractInt64(section, "vocab_cutoff")
	assert.True(t, ok)
	assert.Equal(t, 2, cutoff)
	_, ok = ExtractInt64(section, "dir")
	assert.False(t, ok)
	_, ok = ExtractSection(data, "missing")
	assert.False(t, ok)
}

func TestGetModelDir(t *testing.T) {
	pr, err := NewPathResolver()
	require.NoError(t, err)

	dir := t.TempDir()
	assert.Equal(t, dir, pr.GetModelDir(dir, "vocabulary.txt"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocabulary.txt"), nil, 0o644))
	assert.Equal(t, dir, pr.GetModelDir(dir, "vocabulary.txt"))
	assert.Equal(t, "no/such/dir", pr.GetModelDir("no/such/dir", "vocabulary.txt"))
	assert.NotEmpty(t, pr.GetRuntimeInfo()["os"])
	assert.Equal(t, pr.GetConfigDir(), pr.GetRuntimeInfo()["config_dir"])
}

func TestCheckDirStatus(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	res := CheckDirStatus(dir)
	assert.True(t, res.Exists)
	assert.True(t, res.Writable)
	assert.NoError(t, res.Error)
	assert.True(t, FileExists(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestModelFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("abcd"), 0o644))

	size, err := FileSize(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	_, err = FileSize(filepath.Join(dir, "b.bin"))
	assert.Error(t, err)

	_, missing := MissingFile(dir, "a.bin")
	assert.False(t, missing)
	path, missing := MissingFile(dir, "a.bin", "b.bin")
	assert.True(t, missing)
	assert.Equal(t, filepath.Join(dir, "b.bin"), path)
}

func TestSaveTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	type section struct {
		Limit int `toml:"limit"`
	}
	require.NoError(t, SaveTOMLFile(map[string]section{"server": {Limit: 3}}, path))
	data, err := ParseTOMLWithRecovery(path)
	require.NoError(t, err)
	server, ok := ExtractSection(data, "server")
	require.True(t, ok)
	limit, ok := ExtractInt64(server, "limit")
	assert.True(t, ok)
	assert.Equal(t, 3, limit)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
