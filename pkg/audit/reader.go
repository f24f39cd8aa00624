package audit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Scan calls fn for every well-formed line read from r. Blank and
// malformed lines are skipped and counted.
func Scan(r io.Reader, keyed bool, fn func(Entry) error) (skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, perr := ParseLine(line, keyed)
		if perr != nil {
			skipped++
			continue
		}
		if err := fn(entry); err != nil {
			return skipped, err
		}
	}
	return skipped, sc.Err()
}

// ReadFile returns all entries of a trail file. A missing file yields no
// entries and no error.
func ReadFile(path string, keyed bool) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: failed to open %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	if _, err := Scan(f, keyed, func(e Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("audit: failed to read %s: %w", path, err)
	}
	return entries, nil
}
