package source

import (
	"bufio"
	"fmt"
)

// List hands out the records of a CSV file in order and accepts new
// records at the end.
type List struct {
	*base
	records *Group
}

var (
	_ NextReader = (*List)(nil)
	_ Appender   = (*List)(nil)
)

func loadList(b *base) (*List, error) {
	lines, err := readLines(b.Path())
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", b.name, err)
	}

	l := &List{base: b, records: NewGroup(b.name)}
	for _, line := range lines {
		switch {
		case isComment(line):
			b.comments = append(b.comments, line)
		case line == "":
		default:
			l.records.Records = append(l.records.Records, line)
		}
	}
	l.records.rewind()
	return l, nil
}

// Next returns the record under the cursor and advances it.
func (l *List) Next() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	record, ok := l.records.Next()
	if !ok {
		err = newError(KindExhausted, l.name, "")
	}
	l.recordRead("", false, record, err)
	return record, err
}

// Append stores record at the end of the list.
func (l *List) Append(record string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := checkRecord(l.name, record, false); err != nil {
		return err
	}
	if err := l.recordStore("", false, record); err != nil {
		return err
	}
	l.records.Append(record)
	return nil
}

// Remaining returns the records not yet handed out.
func (l *List) Remaining() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.records.Remaining()...)
}

func (l *List) Attributes() Attributes {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attributes(len(l.records.Remaining()))
}

func (l *List) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("%9d rows", len(l.records.Remaining()))
}

// Flush writes the comments followed by the remaining records.
func (l *List) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.rewrite(func(w *bufio.Writer) {
		for _, r := range l.records.Remaining() {
			w.WriteString(r)
			w.WriteByte('\n')
		}
	})
}
