package counting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafCount(s successor) int32 {
	if s.kind == succLeaf {
		return s.leaf[0]
	}
	return 0
}

func TestArrayStorage(t *testing.T) {
	a := newArrayStorage(1)
	for _, k := range []int32{5, 1, 9, 3, 7} {
		a.put(k, leafSucc([]int32{k}))
	}
	require.Equal(t, 5, a.len())
	assert.Equal(t, []int32{1, 3, 5, 7, 9}, a.keys[:a.n])
	assert.Equal(t, int32(7), a.get(7).leaf[0])
	assert.Equal(t, succNone, a.get(4).kind)
	for _, k := range a.keys[a.n:] {
		assert.Equal(t, unusedKey, k)
	}

	a.put(5, leafSucc([]int32{50}))
	assert.Equal(t, 5, a.len())
	assert.Equal(t, int32(50), a.get(5).leaf[0])

	a.remove(1)
	a.remove(4)
	assert.Equal(t, []int32{3, 5, 7, 9}, a.keys[:a.n])
	assert.Equal(t, succNone, a.get(1).kind)
}

func TestArrayStorageShrinks(t *testing.T) {
	a := newArrayStorage(1)
	for k := int32(0); k < 40; k++ {
		a.put(k, leafSucc([]int32{1}))
	}
	grown := len(a.keys)
	require.GreaterOrEqual(t, grown, 40)
	for k := int32(0); k < 34; k++ {
		a.remove(k)
	}
	assert.Equal(t, 6, a.len())
	assert.Less(t, len(a.keys), grown)
	assert.Equal(t, []int32{34, 35, 36, 37, 38, 39}, a.keys[:a.n])
}

func TestArrayStorageSequentialProbe(t *testing.T) {
	a := newArrayStorage(1)
	for k := int32(1); k <= 1500; k++ {
		a.put(k, leafSucc([]int32{k}))
	}
	for _, k := range []int32{1, 700, 1500} {
		assert.Equal(t, k, a.get(k).leaf[0])
	}
	// Out of sequence keys still resolve through binary search.
	a.remove(10)
	assert.Equal(t, int32(11), a.get(11).leaf[0])
	assert.Equal(t, succNone, a.get(10).kind)
	assert.Equal(t, succNone, a.get(2000).kind)
}

func TestTopSuccessorsOrdering(t *testing.T) {
	counts := map[int32]int32{4: 2, 2: 5, 9: 2, 1: 1, 6: 5}
	a := newArrayStorage(1)
	m := newMapStorage(1)
	for k, c := range counts {
		a.put(k, leafSucc([]int32{c}))
		m.put(k, leafSucc([]int32{c}))
	}
	expected := []int32{2, 6, 4, 9, 1}

	testCases := []struct {
		limit    int
		expected []int32
	}{
		{10, expected},
		{5, expected},
		{3, expected[:3]},
		{1, expected[:1]},
		{0, []int32{}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, a.top(tc.limit, leafCount), "array limit %d", tc.limit)
		assert.Equal(t, tc.expected, m.top(tc.limit, 1, leafCount), "map limit %d", tc.limit)
	}
}

func TestMapStorageSortCache(t *testing.T) {
	m := newMapStorage(1)
	m.put(1, leafSucc([]int32{1}))
	m.put(2, leafSucc([]int32{3}))
	assert.Equal(t, []int32{2, 1}, m.top(5, fingerprintOf(2, 4), leafCount))

	// A changed count under the same fingerprint is served from the cache
	// until the node invalidates it.
	m.get(1).leaf[0] = 10
	assert.Equal(t, []int32{2, 1}, m.top(5, fingerprintOf(2, 4), leafCount))
	m.invalidate()
	assert.Equal(t, []int32{1, 2}, m.top(5, fingerprintOf(2, 4), leafCount))

	// Ranking leaves insertion order alone.
	m.put(0, leafSucc([]int32{5}))
	assert.Equal(t, []int32{1, 0, 2}, m.top(5, fingerprintOf(3, 9), leafCount))
	var keys []int32
	m.each(func(key int32, _ successor) { keys = append(keys, key) })
	assert.Equal(t, []int32{1, 2, 0}, keys)
	m.remove(0)

	m.remove(1)
	assert.Equal(t, []int32{2}, m.top(5, fingerprintOf(2, 4), leafCount))

	m.put(3, leafSucc([]int32{7}))
	assert.Equal(t, []int32{3, 2}, m.top(5, fingerprintOf(2, 4), leafCount))
	assert.Equal(t, 2, m.len())
}

func TestSequenceChecks(t *testing.T) {
	leaf := []int32{4, 6, 7}
	seq := []int32{5, 6, 7}

	assert.True(t, CheckExactSequence(seq, 0, leaf))
	assert.True(t, CheckPartialSequence(seq, 0, leaf))
	assert.False(t, CheckExactSequence(seq[:2], 0, leaf))
	assert.True(t, CheckPartialSequence(seq[:2], 0, leaf))
	assert.False(t, CheckPartialSequence([]int32{5, 8}, 0, leaf))
	assert.False(t, CheckPartialSequence([]int32{5, 6, 7, 8}, 0, leaf))

	rest, ok := LeafRemainder(seq[:2], 0, leaf)
	require.True(t, ok)
	assert.Equal(t, []int32{4, 7}, rest)
	rest, ok = LeafRemainder(seq, 0, leaf)
	require.True(t, ok)
	assert.Equal(t, []int32{4}, rest)
	_, ok = LeafRemainder([]int32{5, 9}, 0, leaf)
	assert.False(t, ok)
}
