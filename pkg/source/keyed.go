package source

import (
	"bufio"
	"fmt"
	"slices"
	"strings"
)

// Keyed holds named groups of records, each with its own cursor.
type Keyed struct {
	*base
	groups map[string]*Group
}

var (
	_ GroupReader   = (*Keyed)(nil)
	_ GroupAppender = (*Keyed)(nil)
)

func groupHeader(line string) (string, bool) {
	if len(line) < 2 || !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", false
	}
	return strings.TrimSpace(line[1 : len(line)-1]), true
}

func loadKeyed(b *base) (*Keyed, error) {
	lines, err := readLines(b.Path())
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", b.name, err)
	}

	k := &Keyed{base: b, groups: make(map[string]*Group)}
	var current *Group
	for i, line := range lines {
		if name, ok := groupHeader(line); ok {
			current = k.groups[name]
			if current == nil {
				current = NewGroup(name)
				k.groups[name] = current
			}
			continue
		}
		switch {
		case isComment(line):
			if current != nil {
				current.Comments = append(current.Comments, line)
			} else {
				b.comments = append(b.comments, line)
			}
		case line == "":
		case current == nil:
			b.logger.Warn("record before first group skipped", "line", i+1)
		default:
			current.Records = append(current.Records, line)
		}
	}
	for _, g := range k.groups {
		g.rewind()
	}
	return k, nil
}

// NextInGroup hands out the next record of group.
func (k *Keyed) NextInGroup(group string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var (
		record string
		err    error
	)
	g, ok := k.groups[group]
	if !ok {
		err = newError(KindUnknownGroup, k.name, group)
	} else if record, ok = g.Next(); !ok {
		err = newError(KindGroupExhausted, k.name, group)
	}
	k.recordRead(group, true, record, err)
	return record, err
}

// RandomInGroup returns any record of group without consuming it.
func (k *Keyed) RandomInGroup(group string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var (
		record string
		err    error
	)
	g, ok := k.groups[group]
	if !ok {
		err = newError(KindUnknownGroup, k.name, group)
	} else if record, ok = g.Random(k.intn); !ok {
		err = newError(KindGroupExhausted, k.name, group)
	}
	k.recordRead(group, true, record, err)
	return record, err
}

// AppendToGroup stores record at the end of group, creating the group.
func (k *Keyed) AppendToGroup(group, record string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := checkGroup(k.name, group); err != nil {
		return err
	}
	if err := checkRecord(k.name, record, true); err != nil {
		return err
	}
	if err := k.recordStore(group, true, record); err != nil {
		return err
	}
	k.groupLocked(group).Append(record)
	return nil
}

func (k *Keyed) groupLocked(name string) *Group {
	g, ok := k.groups[name]
	if !ok {
		g = NewGroup(name)
		k.groups[name] = g
	}
	return g
}

// GroupNames returns the group names in sorted order.
func (k *Keyed) GroupNames() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sortedNames()
}

// Keys is GroupNames.
func (k *Keyed) Keys() []string { return k.GroupNames() }

func (k *Keyed) sortedNames() []string {
	names := make([]string, 0, len(k.groups))
	for name := range k.groups {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Remaining returns the records of group not yet handed out.
func (k *Keyed) Remaining(group string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if g, ok := k.groups[group]; ok {
		return append([]string(nil), g.Remaining()...)
	}
	return nil
}

func (k *Keyed) Attributes() Attributes {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.attributes(len(k.groups))
}

func (k *Keyed) Summary() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return fmt.Sprintf("%9d groups", len(k.groups))
}

// Flush writes each group in name order: its header, its comments, its
// remaining records and a blank line.
func (k *Keyed) Flush() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.rewrite(func(w *bufio.Writer) {
		for _, name := range k.sortedNames() {
			g := k.groups[name]
			fmt.Fprintf(w, "[%s]\n", name)
			for _, c := range g.Comments {
				w.WriteString(c)
				w.WriteByte('\n')
			}
			for _, r := range g.Remaining() {
				w.WriteString(r)
				w.WriteByte('\n')
			}
			w.WriteByte('\n')
		}
	})
}
