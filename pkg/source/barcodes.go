package source

import (
	"bufio"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Barcodes issues checksummed barcodes, one serial series per key.
type Barcodes struct {
	*base
	groups map[string]*BarcodeGroup
}

var _ BarcodeReader = (*Barcodes)(nil)

func loadBarcodes(b *base) (*Barcodes, error) {
	lines, err := readLines(b.Path())
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", b.name, err)
	}

	bc := &Barcodes{base: b, groups: make(map[string]*BarcodeGroup)}
	for i, line := range lines {
		switch {
		case isComment(line):
			b.comments = append(b.comments, line)
		case line == "":
		default:
			key, serial, ok := strings.Cut(line, b.opts.TagDelimiter)
			if !ok {
				b.logger.Warn("line without tag delimiter skipped", "line", i+1)
				continue
			}
			key = strings.TrimSpace(key)
			g, perr := ParseBarcodeKey(key)
			if perr != nil {
				b.logger.Warn("bad barcode key skipped", "line", i+1, "error", perr)
				continue
			}
			g.Serial = b.parseCount(serial, i+1)
			bc.groups[key] = g
		}
	}
	return bc, nil
}

// NextBarcode issues the barcode for the current serial of key and
// advances the serial. A series whose number no longer fits eight digits
// is exhausted.
func (bc *Barcodes) NextBarcode(key string) (string, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	var (
		barcode string
		err     error
	)
	g, ok := bc.groups[key]
	if !ok {
		err = newError(KindNoValidKey, bc.name, key)
	} else if barcode, ok = g.Issue(); !ok {
		err = newError(KindExhausted, bc.name, key)
	}
	bc.recordRead(key, true, barcode, err)
	return barcode, err
}

// Group returns a copy of the series for key.
func (bc *Barcodes) Group(key string) (BarcodeGroup, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if g, ok := bc.groups[key]; ok {
		return *g, true
	}
	return BarcodeGroup{}, false
}

// Keys returns the series keys in sorted order.
func (bc *Barcodes) Keys() []string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return slices.Sorted(maps.Keys(bc.groups))
}

func (bc *Barcodes) Attributes() Attributes {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.attributes(len(bc.groups))
}

func (bc *Barcodes) Summary() string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return fmt.Sprintf("%9d groups", len(bc.groups))
}

// Flush writes key<tag delimiter>serial lines in key order.
func (bc *Barcodes) Flush() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	return bc.rewrite(func(w *bufio.Writer) {
		for _, key := range slices.Sorted(maps.Keys(bc.groups)) {
			fmt.Fprintf(w, "%s%s%d\n", key, bc.opts.TagDelimiter, bc.groups[key].Serial)
		}
	})
}
