package counting

import (
	"cmp"
	"slices"
)

const (
	arrayGrowth = 1.5
	// arrayShrinkFloor is the smallest used size at which a sparse array is compacted.
	arrayShrinkFloor = 5
	// seqProbeMin is the length from which the sequential-position probe is tried.
	// Root-level arrays are usually filled with the vocabulary in id order.
	seqProbeMin = 1000
)

// arrayStorage keeps successors of a low-branching node in two parallel
// slices sorted by key. Unused tail slots hold unusedKey.
type arrayStorage struct {
	keys []int32
	succ []successor
	n    int
}

func newArrayStorage(capacity int) *arrayStorage {
	capacity = max(capacity, 1)
	a := &arrayStorage{
		keys: make([]int32, capacity),
		succ: make([]successor, capacity),
	}
	for i := range a.keys {
		a.keys[i] = unusedKey
	}
	return a
}

// find returns the slot of key, or the slot it would be inserted at.
func (a *arrayStorage) find(key int32) (int, bool) {
	if len(a.keys) > seqProbeMin && key > 0 && int(key) <= len(a.keys) && a.keys[key-1] == key {
		return int(key - 1), true
	}
	return slices.BinarySearch(a.keys, key)
}

func (a *arrayStorage) get(key int32) successor {
	ix, ok := a.find(key)
	if !ok {
		return successor{}
	}
	return a.succ[ix]
}

func (a *arrayStorage) put(key int32, s successor) {
	ix, ok := a.find(key)
	if ok {
		a.succ[ix] = s
		return
	}
	if a.n == len(a.keys) {
		a.grow()
	}
	copy(a.keys[ix+1:a.n+1], a.keys[ix:a.n])
	copy(a.succ[ix+1:a.n+1], a.succ[ix:a.n])
	a.keys[ix] = key
	a.succ[ix] = s
	a.n++
}

func (a *arrayStorage) remove(key int32) {
	ix, ok := a.find(key)
	if !ok {
		return
	}
	copy(a.keys[ix:a.n-1], a.keys[ix+1:a.n])
	copy(a.succ[ix:a.n-1], a.succ[ix+1:a.n])
	a.n--
	a.keys[a.n] = unusedKey
	a.succ[a.n] = successor{}
	if a.n >= arrayShrinkFloor && a.n < len(a.keys)/2 {
		a.keys = slices.Clone(a.keys[:a.n+1])
		a.succ = slices.Clone(a.succ[:a.n+1])
	}
}

func (a *arrayStorage) grow() {
	oldLen := len(a.keys)
	newLen := int(float64(oldLen)*arrayGrowth + 1)
	if newLen <= oldLen {
		newLen = oldLen + 1
	}
	keys := make([]int32, newLen)
	copy(keys, a.keys)
	for i := oldLen; i < newLen; i++ {
		keys[i] = unusedKey
	}
	succ := make([]successor, newLen)
	copy(succ, a.succ)
	a.keys, a.succ = keys, succ
}

func (a *arrayStorage) len() int {
	return a.n
}

func (a *arrayStorage) each(fn func(key int32, s successor)) {
	for i := 0; i < a.n; i++ {
		fn(a.keys[i], a.succ[i])
	}
}

// top returns keys ordered by descending successor count then ascending key.
func (a *arrayStorage) top(limit int, countOf func(successor) int32) []int32 {
	if limit <= 0 {
		return []int32{}
	}
	type pair struct {
		key   int32
		count int32
	}
	pairs := make([]pair, 0, a.n)
	for i := 0; i < a.n; i++ {
		if c := countOf(a.succ[i]); c > 0 {
			pairs = append(pairs, pair{a.keys[i], c})
		}
	}
	slices.SortFunc(pairs, func(x, y pair) int {
		if c := cmp.Compare(y.count, x.count); c != 0 {
			return c
		}
		return cmp.Compare(x.key, y.key)
	})
	out := make([]int32, 0, min(limit, len(pairs)))
	for _, p := range pairs[:min(limit, len(pairs))] {
		out = append(out, p.key)
	}
	return out
}
