package counting

import "sync"

// CountOfCountsWidth is the number of count buckets kept per n-gram order.
// Counts at or above the width share the last bucket.
const CountOfCountsWidth = 4

// CountOfCounts records, per n-gram order, how many n-grams were observed
// exactly 1, 2, 3 and 4+ times. It feeds smoothing models outside this package.
//
// One table is normally shared by every trie of a training run. Separate runs
// should use separate tables.
type CountOfCounts struct {
	mu    sync.Mutex
	table [][]int64
}

// NewCountOfCounts creates an empty table for n-grams up to order.
func NewCountOfCounts(order int) *CountOfCounts {
	if order < 1 {
		order = 1
	}
	table := make([][]int64, order)
	for i := range table {
		table[i] = make([]int64, CountOfCountsWidth)
	}
	return &CountOfCounts{table: table}
}

// Order returns the highest n-gram order tracked.
func (c *CountOfCounts) Order() int {
	return len(c.table)
}

// Get returns how many n-grams of order n were seen count times. Both
// arguments are clamped to the table bounds.
func (c *CountOfCounts) Get(n, count int) int64 {
	if n < 1 || count < 1 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.table[min(n, len(c.table))-1]
	return row[min(count, len(row))-1]
}

// Snapshot returns a copy of the table.
func (c *CountOfCounts) Snapshot() [][]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]int64, len(c.table))
	for i, row := range c.table {
		out[i] = append([]int64(nil), row...)
	}
	return out
}

// Reset zeroes the table, e.g. when training restarts.
func (c *CountOfCounts) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.table {
		clear(row)
	}
}

// update moves one n-gram of order n from the bucket of count-adj to the
// bucket of count.
func (c *CountOfCounts) update(n int, count, adj int32) {
	if n == 0 || n > len(c.table) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.table[n-1]
	width := int32(len(row))
	cur := min(count, width)
	prev := min(count-adj, width)
	if cur == prev {
		return
	}
	if cur > 0 {
		row[cur-1]++
	}
	if prev > 0 {
		row[prev-1]--
	}
}
