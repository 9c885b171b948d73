// Package vocab maps tokens to the integer ids counted by package counting.
//
// Id 0 is reserved for Unknown. Ids are handed out in first-seen order and
// never reused. Token lookups go through a patricia trie, which also serves
// prefix completion over the known tokens.
package vocab

import (
	"cmp"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Unknown is the token behind id 0.
const Unknown = "<unk>"

// Vocabulary is safe for concurrent use.
type Vocabulary struct {
	mu     sync.RWMutex
	index  *patricia.Trie
	words  []string
	counts []int
	closed bool
}

// New returns an open vocabulary holding only Unknown.
func New() *Vocabulary {
	v := &Vocabulary{index: patricia.NewTrie()}
	v.add(Unknown, 0)
	return v
}

func (v *Vocabulary) add(token string, count int) int32 {
	id := int32(len(v.words))
	v.index.Insert(patricia.Prefix(token), id)
	v.words = append(v.words, token)
	v.counts = append(v.counts, count)
	return id
}

func (v *Vocabulary) lookup(token string) (int32, bool) {
	if token == "" {
		return 0, false
	}
	item := v.index.Get(patricia.Prefix(token))
	if item == nil {
		return 0, false
	}
	return item.(int32), true
}

// Store adds count occurrences of token and returns its id. Unseen tokens
// get a new id unless the vocabulary is closed, in which case they map to 0.
func (v *Vocabulary) Store(token string, count int) int32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.lookup(token); ok {
		v.counts[id] += count
		return id
	}
	if v.closed || token == "" {
		return 0
	}
	return v.add(token, count)
}

// StoreAll stores one occurrence of each token.
func (v *Vocabulary) StoreAll(tokens []string) []int32 {
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		ids[i] = v.Store(tok, 1)
	}
	return ids
}

// ToIndex returns the id of token, or 0 when it is unknown.
func (v *Vocabulary) ToIndex(token string) int32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, _ := v.lookup(token)
	return id
}

func (v *Vocabulary) ToIndices(tokens []string) []int32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]int32, len(tokens))
	for i, tok := range tokens {
		ids[i], _ = v.lookup(tok)
	}
	return ids
}

// ToWord returns the token for id, or Unknown for ids out of range.
func (v *Vocabulary) ToWord(id int32) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if id < 0 || int(id) >= len(v.words) {
		return Unknown
	}
	return v.words[id]
}

func (v *Vocabulary) ToWords(ids []int32) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = v.ToWord(id)
	}
	return out
}

// Count returns how often token was stored.
func (v *Vocabulary) Count(token string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.lookup(token)
	if !ok {
		return 0
	}
	return v.counts[id]
}

// Size returns the number of ids handed out, Unknown included.
func (v *Vocabulary) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.words)
}

// Close stops the vocabulary from growing.
func (v *Vocabulary) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

func (v *Vocabulary) Open() {
	v.mu.Lock()
	v.closed = false
	v.mu.Unlock()
}

func (v *Vocabulary) IsClosed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// Entry is a vocabulary token with its id and count.
type Entry struct {
	Token string
	ID    int32
	Count int
}

// Complete returns up to limit known tokens starting with prefix, most
// frequent first. Unknown is never returned.
func (v *Vocabulary) Complete(prefix string, limit int) []Entry {
	if limit <= 0 {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []Entry
	err := v.index.VisitSubtree(patricia.Prefix(prefix), func(p patricia.Prefix, item patricia.Item) error {
		id, ok := item.(int32)
		if !ok {
			log.Errorf("vocab: unexpected item %T for %q", item, p)
			return nil
		}
		if id == 0 {
			return nil
		}
		out = append(out, Entry{Token: string(p), ID: id, Count: v.counts[id]})
		return nil
	})
	if err != nil {
		log.Errorf("vocab: completing %q: %v", prefix, err)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Token, b.Token)
	})
	return out[:min(limit, len(out))]
}
