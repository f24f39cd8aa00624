package source

import (
	"bufio"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// KeyedSequence keeps an independent counter per key.
type KeyedSequence struct {
	*base
	values map[string]int64
}

var _ KeyReader = (*KeyedSequence)(nil)

func loadKeyedSequence(b *base) (*KeyedSequence, error) {
	lines, err := readLines(b.Path())
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", b.name, err)
	}

	ks := &KeyedSequence{base: b, values: make(map[string]int64)}
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
			ks.values[strings.TrimSpace(tag)] = b.parseCount(value, i+1)
		}
	}
	return ks, nil
}

// NextForKey returns the current value for key and increments it.
func (ks *KeyedSequence) NextForKey(key string) (string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	var (
		value string
		err   error
	)
	if n, ok := ks.values[key]; ok {
		value = strconv.FormatInt(n, 10)
		ks.values[key] = n + 1
	} else {
		err = newError(KindNoValidKey, ks.name, key)
	}
	ks.recordRead(key, true, value, err)
	return value, err
}

// Value returns the next value for key.
func (ks *KeyedSequence) Value(key string) (int64, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	n, ok := ks.values[key]
	return n, ok
}

// Keys returns the keys in sorted order.
func (ks *KeyedSequence) Keys() []string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return slices.Sorted(maps.Keys(ks.values))
}

func (ks *KeyedSequence) Attributes() Attributes {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.attributes(len(ks.values))
}

func (ks *KeyedSequence) Summary() string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return fmt.Sprintf("%9d groups", len(ks.values))
}

// Flush writes key<tag delimiter>value lines in key order.
func (ks *KeyedSequence) Flush() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	return ks.rewrite(func(w *bufio.Writer) {
		for _, key := range slices.Sorted(maps.Keys(ks.values)) {
			fmt.Fprintf(w, "%s%s%d\n", key, ks.opts.TagDelimiter, ks.values[key])
		}
	})
}
