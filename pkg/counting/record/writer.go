/*
Package record defines the on-disk layout of a serialized counting trie.

All fields are big-endian int32. A stream is a sequence of records followed by
a four byte trailer holding the offset of the root record:

	leaf:  [length][length x int32]              slot 0 is the count
	node:  [tag][childCount][own][context]        tag is TagMap or TagArray
	       childCount x [key][offset]

Children are always written before their parent, so every offset in a node
record points backwards. Node children are stored most frequent first with
ties broken by the smaller key.
*/
package record

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	TagMap   int32 = -1
	TagArray int32 = -2

	// TrailerSize is the size of the root offset at the end of a stream.
	TrailerSize = 4
	// nodeHeaderSize covers tag, childCount, own and context.
	nodeHeaderSize = 16
	childSize      = 8
)

// Child is one entry of a node record.
type Child struct {
	Key    int32
	Offset int32
}

// Writer appends records to a stream and tracks their offsets.
type Writer struct {
	w   *bufio.Writer
	off int64
	buf [4]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<16)}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return w.off
}

// WriteLeaf writes a leaf record and returns its offset.
func (w *Writer) WriteLeaf(leaf []int32) (int32, error) {
	if len(leaf) == 0 {
		return 0, fmt.Errorf("writing leaf: %w", ErrBadTag)
	}
	off, err := w.start(4 * (1 + len(leaf)))
	if err != nil {
		return 0, err
	}
	if err := w.int32(int32(len(leaf))); err != nil {
		return 0, err
	}
	for _, v := range leaf {
		if err := w.int32(v); err != nil {
			return 0, err
		}
	}
	return off, nil
}

// WriteNode writes a node record and returns its offset. children must
// already be in stored order.
func (w *Writer) WriteNode(tag, own, context int32, children []Child) (int32, error) {
	if tag != TagMap && tag != TagArray {
		return 0, fmt.Errorf("writing node with tag %d: %w", tag, ErrBadTag)
	}
	off, err := w.start(nodeHeaderSize + childSize*len(children))
	if err != nil {
		return 0, err
	}
	for _, v := range [...]int32{tag, int32(len(children)), own, context} {
		if err := w.int32(v); err != nil {
			return 0, err
		}
	}
	for _, c := range children {
		if err := w.int32(c.Key); err != nil {
			return 0, err
		}
		if err := w.int32(c.Offset); err != nil {
			return 0, err
		}
	}
	return off, nil
}

// WriteTrailer writes the root offset and flushes the stream.
func (w *Writer) WriteTrailer(root int32) error {
	if _, err := w.start(TrailerSize); err != nil {
		return err
	}
	if err := w.int32(root); err != nil {
		return err
	}
	return w.Flush()
}

func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flushing records: %w", err)
	}
	return nil
}

// start checks that a record of size bytes still fits the offset range.
func (w *Writer) start(size int) (int32, error) {
	if w.off+int64(size) > math.MaxInt32 {
		return 0, ErrTooLarge
	}
	return int32(w.off), nil
}

func (w *Writer) int32(v int32) error {
	binary.BigEndian.PutUint32(w.buf[:], uint32(v))
	n, err := w.w.Write(w.buf[:])
	w.off += int64(n)
	if err != nil {
		return fmt.Errorf("writing record at %d: %w", w.off, err)
	}
	return nil
}
