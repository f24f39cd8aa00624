package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterlharding/dserver/pkg/audit"
)

const commentMarker = "#"

func isComment(line string) bool {
	return strings.HasPrefix(line, commentMarker)
}

// checkRecord rejects a stored value that would not load back as the same
// single record after a flush.
func checkRecord(source, record string, keyed bool) error {
	switch {
	case record == "":
		return &RecordError{Source: source, Value: record, Reason: "empty"}
	case strings.ContainsAny(record, "\r\n"):
		return &RecordError{Source: source, Value: record, Reason: "contains a line break"}
	case strings.TrimSpace(record) != record:
		return &RecordError{Source: source, Value: record, Reason: "surrounding whitespace"}
	case isComment(record):
		return &RecordError{Source: source, Value: record, Reason: "reads as a comment"}
	}
	if _, ok := groupHeader(record); keyed && ok {
		return &RecordError{Source: source, Value: record, Reason: "reads as a group header"}
	}
	return nil
}

// checkGroup rejects a group name that would not survive as a header or
// as the key of a trail line.
func checkGroup(source, group string) error {
	switch {
	case group == "":
		return &RecordError{Source: source, Value: group, Reason: "empty group"}
	case strings.ContainsAny(group, "[]\r\n"):
		return &RecordError{Source: source, Value: group, Reason: "group contains a bracket or line break"}
	case strings.Contains(group, audit.KeySeparator):
		return &RecordError{Source: source, Value: group, Reason: "group contains the key separator"}
	case strings.TrimSpace(group) != group:
		return &RecordError{Source: source, Value: group, Reason: "group has surrounding whitespace"}
	}
	return nil
}

// readLines returns the lines of path with surrounding whitespace and line
// terminators removed.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// parseCount parses an integer field, logging and returning 0 when the
// field is malformed.
func (b *base) parseCount(field string, lineNo int) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	if err != nil {
		b.logger.Warn("malformed integer, using 0", "line", lineNo, "value", field)
		return 0
	}
	return n
}

// rewrite replaces the backing file with the comments followed by whatever
// body writes. The previous file is copied to the backup first; if that
// copy fails the file is left untouched. Must be called with b.mu held.
func (b *base) rewrite(body func(w *bufio.Writer)) error {
	if err := b.backup(); err != nil {
		return fmt.Errorf("source %q: backup failed: %w", b.name, err)
	}

	path := b.Path()
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("source %q: failed to write temporary file: %w", b.name, err)
	}

	w := bufio.NewWriter(f)
	for _, c := range b.comments {
		w.WriteString(c)
		w.WriteByte('\n')
	}
	body(w)

	if err := w.Flush(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("source %q: failed to write temporary file: %w", b.name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("source %q: failed to sync temporary file: %w", b.name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("source %q: failed to close temporary file: %w", b.name, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("source %q: failed to rename temporary file: %w", b.name, err)
	}

	b.logger.Debug("source flushed", "path", path)
	return nil
}

// BackupPath returns where a flush at the current time copies the
// previous backing file.
func (b *base) BackupPath() string {
	ts := b.now().Format(audit.TimestampLayout)
	return filepath.Join(b.TmpDir(), ts+"_"+b.name+".bak")
}

func (b *base) backup() error {
	src, err := os.Open(b.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(b.TmpDir(), 0755); err != nil {
		return err
	}

	dst, err := os.OpenFile(b.BackupPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
