package source

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Hashed is a read-only key to value lookup table.
type Hashed struct {
	*base
	values map[string]string
}

var _ HashReader = (*Hashed)(nil)

func loadHashed(b *base) (*Hashed, error) {
	lines, err := readLines(b.Path())
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", b.name, err)
	}

	h := &Hashed{base: b, values: make(map[string]string)}
	for i, line := range lines {
		switch {
		case isComment(line):
			b.comments = append(b.comments, line)
		case line == "":
		default:
			tag, value, ok := strings.Cut(line, b.opts.TagDelimiter)
			if !ok {
				b.logger.Warn("line without tag delimiter skipped", "line", i+1)
				continue
			}
			h.values[strings.TrimSpace(tag)] = value
		}
	}
	return h, nil
}

// Lookup returns the value stored for key.
func (h *Hashed) Lookup(key string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	value, ok := h.values[key]
	var err error
	if !ok {
		err = newError(KindUndefinedKey, h.name, key)
	}
	h.recordRead(key, true, value, err)
	return value, err
}

// Len returns the number of keys.
func (h *Hashed) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

// Keys returns the keys in sorted order.
func (h *Hashed) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (h *Hashed) Attributes() Attributes { return h.attributes(h.Len()) }

func (h *Hashed) Summary() string { return fmt.Sprintf("%9d rows", h.Len()) }

// Flush does nothing; lookup tables are never changed.
func (h *Hashed) Flush() error { return nil }

// Indexed is a read-only table addressed by position.
type Indexed struct {
	*base
	records []string
}

var _ IndexReader = (*Indexed)(nil)

func loadIndexed(b *base) (*Indexed, error) {
	lines, err := readLines(b.Path())
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", b.name, err)
	}

	x := &Indexed{base: b}
	for _, line := range lines {
		switch {
		case isComment(line):
			b.comments = append(b.comments, line)
		case line == "":
		default:
			x.records = append(x.records, line)
		}
	}
	return x, nil
}

// At returns the record at the zero based position given in index.
func (x *Indexed) At(index string) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var (
		value string
		err   error
	)
	i, perr := strconv.Atoi(strings.TrimSpace(index))
	switch {
	case perr != nil || i < 0:
		err = newError(KindInvalidIndex, x.name, index)
	case i >= len(x.records):
		err = newError(KindIndexOutOfRange, x.name, index)
	default:
		value = x.records[i]
	}
	x.recordRead(index, true, value, err)
	return value, err
}

func (x *Indexed) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.records)
}

func (x *Indexed) Attributes() Attributes { return x.attributes(x.Len()) }

func (x *Indexed) Summary() string { return fmt.Sprintf("%9d rows", x.Len()) }

// Flush does nothing; lookup tables are never changed.
func (x *Indexed) Flush() error { return nil }
