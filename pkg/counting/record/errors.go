package record

import "errors"

var (
	ErrTruncated = errors.New("record: stream ends inside a record")
	ErrBadTag    = errors.New("record: unknown record tag")
	ErrTooLarge  = errors.New("record: stream exceeds the 2GB offset range")
	ErrBadOffset = errors.New("record: offset outside the stream")
)
