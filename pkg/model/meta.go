package model

import (
	"bytes"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// Meta is stored next to the counters. Remembered lists the ids marked as
// identifiers while learning.
type Meta struct {
	Order         int     `msgpack:"o"`
	Bidirectional bool    `msgpack:"b"`
	VocabSize     int     `msgpack:"v"`
	Sequences     int64   `msgpack:"n"`
	Remembered    []int32 `msgpack:"ids"`
}

func writeMeta(path string, m Meta) (int64, error) {
	data, err := msgpack.Marshal(&m)
	if err != nil {
		return 0, fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return int64(len(data)), nil
}

func readMeta(path string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("reading %s: %w", path, err)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(&m); err != nil {
		return m, fmt.Errorf("decoding %s: %w", path, err)
	}
	if m.Order <= 0 || m.VocabSize <= 0 {
		return m, fmt.Errorf("%s: order %d, %d words", path, m.Order, m.VocabSize)
	}
	return m, nil
}
