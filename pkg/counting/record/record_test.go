package record

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	leafOff, err := w.WriteLeaf([]int32{3, 10, 11})
	require.NoError(t, err)
	assert.Equal(t, int32(0), leafOff)
	assert.Equal(t, int64(16), w.Offset())

	shortOff, err := w.WriteLeaf([]int32{1})
	require.NoError(t, err)

	children := []Child{{Key: 7, Offset: leafOff}, {Key: 2, Offset: shortOff}}
	nodeOff, err := w.WriteNode(TagArray, 4, 4, children)
	require.NoError(t, err)
	require.NoError(t, w.WriteTrailer(nodeOff))

	data := buf.Bytes()
	r := NewReader(bytes.NewReader(data), int64(len(data)))
	root, err := r.Root()
	require.NoError(t, err)
	assert.Equal(t, nodeOff, root)

	node, err := r.Read(root)
	require.NoError(t, err)
	assert.False(t, node.IsLeaf())
	assert.Equal(t, TagArray, node.Tag)
	assert.Equal(t, int32(4), node.Count())
	assert.Equal(t, int32(4), node.Context)
	assert.Equal(t, children, node.Children)

	leaf, err := r.Read(node.Children[0].Offset)
	require.NoError(t, err)
	assert.True(t, leaf.IsLeaf())
	assert.Equal(t, []int32{3, 10, 11}, leaf.Leaf)
	assert.Equal(t, int32(3), leaf.Count())

	// Big-endian length prefix.
	assert.Equal(t, []byte{0, 0, 0, 3}, data[:4])
}

func TestReadErrors(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	off, err := w.WriteNode(TagMap, 1, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteTrailer(off))
	data := buf.Bytes()

	testCases := []struct {
		desc string
		data []byte
		off  int32
		err  error
	}{
		{"negative offset", data, -4, ErrBadOffset},
		{"offset past end", data, int32(len(data)), ErrBadOffset},
		{"truncated node", data[:10], 0, ErrTruncated},
		{"zero tag", []byte{0, 0, 0, 0, 0, 0, 0, 0}, 0, ErrBadTag},
		{"unknown negative tag", []byte{0xff, 0xff, 0xff, 0xfd, 0, 0, 0, 0}, 0, ErrBadTag},
		{"leaf longer than stream", []byte{0, 0, 0, 9, 0, 0, 0, 1}, 0, ErrTruncated},
	}
	for _, tc := range testCases {
		r := NewReader(bytes.NewReader(tc.data), int64(len(tc.data)))
		_, err := r.Read(tc.off)
		assert.True(t, errors.Is(err, tc.err), "%s: got %v", tc.desc, err)
	}

	_, err = NewReader(bytes.NewReader(nil), 0).Root()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestWriterRejectsBadRecords(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	_, err := w.WriteLeaf(nil)
	assert.ErrorIs(t, err, ErrBadTag)
	_, err = w.WriteNode(3, 0, 0, nil)
	assert.ErrorIs(t, err, ErrBadTag)
	assert.Zero(t, w.Offset())
}
