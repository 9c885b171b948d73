package persistent

import "errors"

var (
	ErrClosed   = errors.New("persistent: counter file is closed")
	ErrNotFound = errors.New("persistent: counter file not found")
)
