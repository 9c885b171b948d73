package counting

import (
	"cmp"
	"slices"
	"sync"
)

// mapStorage keeps successors of a high-branching node in a map. order holds
// the keys in insertion order; ranked is a lazily sorted copy for top-k
// queries.
type mapStorage struct {
	m     map[int32]successor
	order []int32

	// sortMu guards ranked and fingerprint; concurrent readers may both try
	// to sort. order is only written under the trie's write lock.
	sortMu      sync.Mutex
	ranked      []int32
	fingerprint uint64
}

func newMapStorage(capacity int) *mapStorage {
	return &mapStorage{
		m:     make(map[int32]successor, max(capacity, 1)),
		order: make([]int32, 0, max(capacity, 1)),
	}
}

func (s *mapStorage) get(key int32) successor {
	return s.m[key]
}

func (s *mapStorage) put(key int32, succ successor) {
	if _, ok := s.m[key]; !ok {
		s.order = append(s.order, key)
		s.invalidate()
	}
	s.m[key] = succ
}

func (s *mapStorage) remove(key int32) {
	if _, ok := s.m[key]; !ok {
		return
	}
	delete(s.m, key)
	if ix := slices.Index(s.order, key); ix >= 0 {
		s.order = slices.Delete(s.order, ix, ix+1)
	}
	s.invalidate()
}

func (s *mapStorage) invalidate() {
	s.sortMu.Lock()
	s.ranked = nil
	s.sortMu.Unlock()
}

func (s *mapStorage) len() int {
	return len(s.m)
}

func (s *mapStorage) each(fn func(key int32, succ successor)) {
	for _, key := range s.order {
		fn(key, s.m[key])
	}
}

// top returns keys ordered by descending count then ascending key. The sorted
// order is reused while fingerprint is unchanged.
func (s *mapStorage) top(limit int, fingerprint uint64, countOf func(successor) int32) []int32 {
	if limit <= 0 {
		return []int32{}
	}
	s.sortMu.Lock()
	defer s.sortMu.Unlock()
	if s.ranked == nil || s.fingerprint != fingerprint {
		ranked := slices.Clone(s.order)
		slices.SortFunc(ranked, func(a, b int32) int {
			if c := cmp.Compare(countOf(s.m[b]), countOf(s.m[a])); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		s.ranked = ranked
		s.fingerprint = fingerprint
	}
	return slices.Clone(s.ranked[:min(limit, len(s.ranked))])
}

func fingerprintOf(successors, own int32) uint64 {
	return uint64(uint32(successors))<<32 | uint64(uint32(own))
}
