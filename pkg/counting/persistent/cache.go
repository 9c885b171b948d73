package persistent

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bastiangx/namegram/internal/logger"
	"github.com/bastiangx/namegram/pkg/counting/record"
	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// indexThreshold is the child count from which an entry builds a key index.
const indexThreshold = 16

// Entry is a decoded record held by the cache. Node children keep the
// stored order (most frequent first); lookups by key go through an index
// for wide nodes.
type Entry struct {
	record.Record
	byKey map[int32]int32
}

func newEntry(rec record.Record) *Entry {
	e := &Entry{Record: rec}
	if len(rec.Children) >= indexThreshold {
		e.byKey = make(map[int32]int32, len(rec.Children))
		for _, c := range rec.Children {
			e.byKey[c.Key] = c.Offset
		}
	}
	return e
}

// Child returns the offset stored for key.
func (e *Entry) Child(key int32) (int32, bool) {
	if e.byKey != nil {
		off, ok := e.byKey[key]
		return off, ok
	}
	for _, c := range e.Children {
		if c.Key == key {
			return c.Offset, true
		}
	}
	return 0, false
}

// CacheStats is a point-in-time view of a Cache.
type CacheStats struct {
	Static  int
	Dynamic int
	Hits    int64
	Misses  int64
}

// Cache maps record offsets of one counter file to decoded entries. Pinned
// entries live in the static tier until the cache is closed or dropped;
// everything else goes through a bounded LRU.
//
// Two goroutines missing on the same offset both decode it and the later
// insert wins. Decoding is pure, so either entry is valid.
type Cache struct {
	path string

	staticMu sync.RWMutex
	static   map[int32]*Entry
	dynamic  *lru.Cache[int32, *Entry]

	// fileMu guards the handle. Readers hold it shared for the whole read so
	// Close waits for them.
	fileMu sync.RWMutex
	file   *os.File
	reader *record.Reader

	hits   atomic.Int64
	misses atomic.Int64
	logger *log.Logger
}

// NewCache creates a closed cache for the file at path with room for
// dynamicSize entries in the LRU tier.
func NewCache(path string, dynamicSize int) (*Cache, error) {
	dynamic, err := lru.New[int32, *Entry](max(dynamicSize, 1))
	if err != nil {
		return nil, fmt.Errorf("creating node cache: %w", err)
	}
	return &Cache{
		path:    path,
		static:  make(map[int32]*Entry),
		dynamic: dynamic,
		logger:  logger.New("cache"),
	}, nil
}

func (c *Cache) Path() string {
	return c.path
}

// Open acquires the file handle. Opening an open cache is a no-op.
func (c *Cache) Open() error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()
	if c.file != nil {
		return nil
	}
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("opening %s: %w", c.path, ErrNotFound)
		}
		return fmt.Errorf("opening %s: %w", c.path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", c.path, err)
	}
	c.file = f
	c.reader = record.NewReader(f, st.Size())
	c.logger.Debugf("opened %s (%d bytes)", c.path, st.Size())
	return nil
}

// Close releases the file handle and empties both tiers. The next Open
// starts cold and Prefetch warms it again.
func (c *Cache) Close() error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file, c.reader = nil, nil
	c.Drop()
	if err != nil {
		return fmt.Errorf("closing %s: %w", c.path, err)
	}
	c.logger.Debugf("closed %s", c.path)
	return nil
}

// IsOpen reports whether the file handle is held.
func (c *Cache) IsOpen() bool {
	c.fileMu.RLock()
	defer c.fileMu.RUnlock()
	return c.file != nil
}

// Root returns the offset of the root record.
func (c *Cache) Root() (int32, error) {
	c.fileMu.RLock()
	defer c.fileMu.RUnlock()
	if c.reader == nil {
		return 0, ErrClosed
	}
	return c.reader.Root()
}

// Get returns the entry at off, reading it from the file on a miss.
func (c *Cache) Get(off int32) (*Entry, error) {
	c.staticMu.RLock()
	e, ok := c.static[off]
	c.staticMu.RUnlock()
	if ok {
		c.hits.Add(1)
		return e, nil
	}
	if e, ok := c.dynamic.Get(off); ok {
		c.hits.Add(1)
		return e, nil
	}
	c.misses.Add(1)
	e, err := c.Load(off)
	if err != nil {
		return nil, err
	}
	c.dynamic.Add(off, e)
	return e, nil
}

// Load decodes the record at off without touching either tier.
func (c *Cache) Load(off int32) (*Entry, error) {
	c.fileMu.RLock()
	defer c.fileMu.RUnlock()
	if c.reader == nil {
		return nil, ErrClosed
	}
	rec, err := c.reader.Read(off)
	if err != nil {
		return nil, err
	}
	return newEntry(rec), nil
}

// Pin moves e into the static tier.
func (c *Cache) Pin(off int32, e *Entry) {
	c.staticMu.Lock()
	c.static[off] = e
	c.staticMu.Unlock()
	c.dynamic.Remove(off)
}

// Drop empties both tiers.
func (c *Cache) Drop() {
	c.staticMu.Lock()
	clear(c.static)
	c.staticMu.Unlock()
	c.dynamic.Purge()
}

func (c *Cache) Stats() CacheStats {
	c.staticMu.RLock()
	static := len(c.static)
	c.staticMu.RUnlock()
	return CacheStats{
		Static:  static,
		Dynamic: c.dynamic.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
