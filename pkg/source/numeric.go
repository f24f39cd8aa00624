package source

import (
	"bufio"
	"fmt"
	"strconv"
)

// loadLastInteger returns the last non-comment, non-blank line of the
// backing file as an integer, or def when there is none.
func loadLastInteger(b *base, def int64) (int64, error) {
	lines, err := readLines(b.Path())
	if err != nil {
		return 0, fmt.Errorf("source %q: %w", b.name, err)
	}

	value := def
	for i, line := range lines {
		switch {
		case isComment(line):
			b.comments = append(b.comments, line)
		case line == "":
		default:
			value = b.parseCount(line, i+1)
		}
	}
	return value, nil
}

// Sequence hands out consecutive integers, persisting the next one on
// flush.
type Sequence struct {
	*base
	value int64
}

var _ NextReader = (*Sequence)(nil)

func loadSequence(b *base) (*Sequence, error) {
	v, err := loadLastInteger(b, 0)
	if err != nil {
		return nil, err
	}
	return &Sequence{base: b, value: v}, nil
}

// Next returns the current value and increments it.
func (s *Sequence) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := strconv.FormatInt(s.value, 10)
	s.value++
	s.recordRead("", false, v, nil)
	return v, nil
}

// Value returns the next value to be handed out.
func (s *Sequence) Value() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *Sequence) Attributes() Attributes { return s.attributes(1) }

func (s *Sequence) Summary() string {
	return fmt.Sprintf("Starting value:  %d", s.Value())
}

// Flush writes the next value to be handed out.
func (s *Sequence) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rewrite(func(w *bufio.Writer) {
		fmt.Fprintf(w, "%d\n", s.value)
	})
}

// Indexer hands out consecutive integers starting from the configured
// start value on every load. It has no backing file and is never flushed.
type Indexer struct {
	*base
	value int64
}

var _ NextReader = (*Indexer)(nil)

func newIndexer(b *base) *Indexer {
	return &Indexer{base: b, value: b.opts.Start}
}

// Next returns the current value and increments it.
func (x *Indexer) Next() (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	v := strconv.FormatInt(x.value, 10)
	x.value++
	x.recordRead("", false, v, nil)
	return v, nil
}

func (x *Indexer) Value() int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.value
}

func (x *Indexer) Attributes() Attributes { return x.attributes(1) }

func (x *Indexer) Summary() string {
	return fmt.Sprintf("Starting value:  %d", x.Value())
}

// Flush does nothing.
func (x *Indexer) Flush() error { return nil }

// Counter reports a value that changes only between runs: reads return
// the loaded value and a flush stores it incremented by one.
type Counter struct {
	*base
	value int64
}

var _ NextReader = (*Counter)(nil)

func loadCounter(b *base) (*Counter, error) {
	v, err := loadLastInteger(b, 1)
	if err != nil {
		return nil, err
	}
	return &Counter{base: b, value: v}, nil
}

// Next returns the counter value without changing it.
func (c *Counter) Next() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := strconv.FormatInt(c.value, 10)
	c.recordRead("", false, v, nil)
	return v, nil
}

func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Counter) Attributes() Attributes { return c.attributes(1) }

func (c *Counter) Summary() string {
	return fmt.Sprintf("Value:  %d", c.Value())
}

// Flush writes the value plus one. The in-memory value is unchanged, so
// repeated flushes within one run write the same file.
func (c *Counter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rewrite(func(w *bufio.Writer) {
		fmt.Fprintf(w, "%d\n", c.value+1)
	})
}
