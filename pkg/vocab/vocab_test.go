package vocab

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLookup(t *testing.T) {
	v := New()
	assert.Equal(t, 1, v.Size())
	assert.Equal(t, Unknown, v.ToWord(0))

	ids := v.StoreAll([]string{"get", "name", "get", "setName"})
	assert.Equal(t, []int32{1, 2, 1, 3}, ids)
	assert.Equal(t, 2, v.Count("get"))
	assert.Equal(t, int32(2), v.ToIndex("name"))
	assert.Equal(t, int32(0), v.ToIndex("missing"))
	assert.Equal(t, int32(0), v.ToIndex(""))
	assert.Equal(t, []string{"get", "name", Unknown}, v.ToWords([]int32{1, 2, 99}))
	assert.Equal(t, Unknown, v.ToWord(-1))

	v.Close()
	assert.True(t, v.IsClosed())
	assert.Equal(t, int32(0), v.Store("fresh", 1))
	assert.Equal(t, int32(1), v.Store("get", 1))
	assert.Equal(t, 3, v.Count("get"))
	assert.Equal(t, 4, v.Size())

	v.Open()
	assert.Equal(t, int32(4), v.Store("fresh", 1))
	assert.Equal(t, []int32{4, 0, 2}, v.ToIndices([]string{"fresh", "nope", "name"}))
}

func TestComplete(t *testing.T) {
	v := New()
	for tok, n := range map[string]int{"getName": 5, "getId": 9, "get": 2, "set": 7, "getAll": 9} {
		v.Store(tok, n)
	}

	got := v.Complete("get", 3)
	require.Len(t, got, 3)
	assert.Equal(t, "getAll", got[0].Token)
	assert.Equal(t, "getId", got[1].Token)
	assert.Equal(t, "getName", got[2].Token)
	assert.Equal(t, 9, got[0].Count)
	assert.Equal(t, v.ToIndex("getAll"), got[0].ID)

	assert.Len(t, v.Complete("", 10), 5)
	assert.Empty(t, v.Complete("zzz", 10))
	assert.Empty(t, v.Complete("get", 0))
}

func TestFileRoundTrip(t *testing.T) {
	v := New()
	v.Store("alpha", 3)
	v.Store("tab\tbed", 1)
	v.Store("beta", 5)

	path := filepath.Join(t.TempDir(), "vocabulary.txt")
	require.NoError(t, v.Write(path))

	back, err := Read(path, 0)
	require.NoError(t, err)
	assert.Equal(t, v.Size(), back.Size())
	for id := int32(0); id < int32(v.Size()); id++ {
		assert.Equal(t, v.ToWord(id), back.ToWord(id))
		assert.Equal(t, v.Count(v.ToWord(id)), back.Count(back.ToWord(id)))
	}
	assert.Equal(t, int32(2), back.ToIndex("tab\tbed"))
}

func TestReadCutoffAndErrors(t *testing.T) {
	data := "0\t0\t<unk>\n3\t1\talpha\n1\t2\tgamma\n5\t3\tbeta\n"
	v, err := ReadFrom(strings.NewReader(data), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Size())
	assert.Equal(t, int32(1), v.ToIndex("alpha"))
	assert.Equal(t, int32(2), v.ToIndex("beta"))
	assert.Equal(t, int32(0), v.ToIndex("gamma"))

	_, err = ReadFrom(strings.NewReader("x\t1\tfoo\n"), 0)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = ReadFrom(strings.NewReader("1 1 foo\n"), 0)
	assert.ErrorIs(t, err, ErrMalformed)

	var buf bytes.Buffer
	require.NoError(t, New().WriteTo(&buf))
	assert.Equal(t, "0\t0\t<unk>\n", buf.String())
}
