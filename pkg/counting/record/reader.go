package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Record is a decoded leaf or node. A node's children are offsets into the
// same stream.
type Record struct {
	Leaf     []int32
	Tag      int32
	Own      int32
	Context  int32
	Children []Child
}

func (r Record) IsLeaf() bool {
	return r.Leaf != nil
}

// Count returns the occurrence count of the record.
func (r Record) Count() int32 {
	if r.IsLeaf() {
		return r.Leaf[0]
	}
	return r.Own
}

// Reader decodes records at arbitrary offsets. It only uses positional reads,
// so one Reader may serve many goroutines.
type Reader struct {
	r    io.ReaderAt
	size int64
}

func NewReader(r io.ReaderAt, size int64) *Reader {
	return &Reader{r: r, size: size}
}

func (r *Reader) Size() int64 {
	return r.size
}

// Root returns the offset stored in the trailer.
func (r *Reader) Root() (int32, error) {
	if r.size < TrailerSize {
		return 0, fmt.Errorf("reading trailer: %w", ErrTruncated)
	}
	buf := make([]byte, TrailerSize)
	if err := r.readAt(buf, r.size-TrailerSize); err != nil {
		return 0, fmt.Errorf("reading trailer: %w", err)
	}
	root := int32(binary.BigEndian.Uint32(buf))
	if root < 0 || int64(root) >= r.size-TrailerSize {
		return 0, fmt.Errorf("root offset %d: %w", root, ErrBadOffset)
	}
	return root, nil
}

// Read decodes the record starting at off.
func (r *Reader) Read(off int32) (Record, error) {
	if off < 0 || int64(off)+4 > r.size {
		return Record{}, fmt.Errorf("reading record at %d: %w", off, ErrBadOffset)
	}
	head := make([]byte, 4)
	if err := r.readAt(head, int64(off)); err != nil {
		return Record{}, fmt.Errorf("reading record at %d: %w", off, err)
	}
	tag := int32(binary.BigEndian.Uint32(head))
	switch {
	case tag > 0:
		return r.readLeaf(off, tag)
	case tag == TagMap || tag == TagArray:
		return r.readNode(off, tag)
	default:
		return Record{}, fmt.Errorf("record at %d has tag %d: %w", off, tag, ErrBadTag)
	}
}

func (r *Reader) readLeaf(off, length int32) (Record, error) {
	body, err := r.body(int64(off)+4, int64(length)*4)
	if err != nil {
		return Record{}, fmt.Errorf("reading leaf at %d: %w", off, err)
	}
	leaf := make([]int32, length)
	for i := range leaf {
		leaf[i] = int32(binary.BigEndian.Uint32(body[4*i:]))
	}
	return Record{Leaf: leaf}, nil
}

func (r *Reader) readNode(off, tag int32) (Record, error) {
	head, err := r.body(int64(off)+4, nodeHeaderSize-4)
	if err != nil {
		return Record{}, fmt.Errorf("reading node at %d: %w", off, err)
	}
	n := int32(binary.BigEndian.Uint32(head[0:]))
	rec := Record{
		Tag:     tag,
		Own:     int32(binary.BigEndian.Uint32(head[4:])),
		Context: int32(binary.BigEndian.Uint32(head[8:])),
	}
	if n < 0 {
		return Record{}, fmt.Errorf("node at %d has %d children: %w", off, n, ErrBadTag)
	}
	body, err := r.body(int64(off)+nodeHeaderSize, int64(n)*childSize)
	if err != nil {
		return Record{}, fmt.Errorf("reading children of node at %d: %w", off, err)
	}
	rec.Children = make([]Child, n)
	for i := range rec.Children {
		rec.Children[i] = Child{
			Key:    int32(binary.BigEndian.Uint32(body[childSize*i:])),
			Offset: int32(binary.BigEndian.Uint32(body[childSize*i+4:])),
		}
	}
	return rec, nil
}

// body reads size bytes at off, refusing reads past the trailer.
func (r *Reader) body(off, size int64) ([]byte, error) {
	if off+size > r.size {
		return nil, ErrTruncated
	}
	buf := make([]byte, size)
	if err := r.readAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) readAt(buf []byte, off int64) error {
	n, err := r.r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return ErrTruncated
	}
	return err
}
