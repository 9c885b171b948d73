package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

var ErrMalformed = errors.New("vocab: malformed vocabulary line")

// Read loads a vocabulary file. Lines are "count\tindex\ttoken"; tokens may
// themselves contain tabs. Entries counted below cutoff are skipped.
func Read(path string, cutoff int) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary %s: %w", path, err)
	}
	defer f.Close()
	v, err := ReadFrom(f, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}
	return v, nil
}

// ReadFrom is Read over an arbitrary reader.
func ReadFrom(r io.Reader, cutoff int) (*Vocabulary, error) {
	v := New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	warned := false
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		parts := strings.SplitN(text, "\t", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("line %d: %w", line, ErrMalformed)
		}
		count, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("line %d count %q: %w", line, parts[0], ErrMalformed)
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("line %d index %q: %w", line, parts[1], ErrMalformed)
		}
		if count < cutoff {
			continue
		}
		if index > 0 && index != v.Size() && !warned {
			log.Warnf("vocab: non-consecutive index %d at line %d, ids will be renumbered", index, line)
			warned = true
		}
		v.Store(parts[2], count)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

// Write saves the vocabulary in the format Read expects.
func (v *Vocabulary) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating vocabulary %s: %w", path, err)
	}
	err = v.WriteTo(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing vocabulary %s: %w", path, err)
	}
	return nil
}

// WriteTo writes one line per id in id order.
func (v *Vocabulary) WriteTo(w io.Writer) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.words) != len(v.counts) {
		panic(fmt.Sprintf("vocab: %d words but %d counts", len(v.words), len(v.counts)))
	}
	bw := bufio.NewWriter(w)
	for i, word := range v.words {
		if _, err := fmt.Fprintf(bw, "%d\t%d\t%s\n", v.counts[i], i, word); err != nil {
			return err
		}
	}
	return bw.Flush()
}
