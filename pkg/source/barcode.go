package source

import (
	"fmt"
	"strconv"
	"strings"
)

// barcodeWeights are applied to the eight digits of the barcode number.
var barcodeWeights = [8]int{8, 6, 4, 2, 3, 5, 9, 7}

// maxBarcodeNumber is the largest number that fits the eight digit field.
const maxBarcodeNumber = 99_999_999

// BarcodeGroup issues barcodes for one PREFIX-RANGE-COUNTRY key.
type BarcodeGroup struct {
	Prefix  string
	Range   int
	Country string

	// Serial is the next serial to issue.
	Serial int64
}

// ParseBarcodeKey parses a key of the form PREFIX-RANGE-COUNTRY, e.g.
// "EE-16-AU".
func ParseBarcodeKey(key string) (*BarcodeGroup, error) {
	parts := strings.Split(strings.TrimSpace(key), "-")
	if len(parts) != 3 {
		return nil, fmt.Errorf("barcode key %q: want PREFIX-RANGE-COUNTRY", key)
	}
	rng, err := strconv.Atoi(parts[1])
	if err != nil || rng < 0 || rng > 99 {
		return nil, fmt.Errorf("barcode key %q: range must be 0-99", key)
	}
	if parts[0] == "" || parts[2] == "" {
		return nil, fmt.Errorf("barcode key %q: empty prefix or country", key)
	}
	return &BarcodeGroup{Prefix: parts[0], Range: rng, Country: parts[2]}, nil
}

// Number returns the eight digit barcode number for serial.
func (g *BarcodeGroup) Number(serial int64) int64 {
	return int64(g.Range)*1_000_000 + serial
}

// Barcode renders the barcode for the current serial without issuing it.
// ok is false when the number no longer fits eight digits.
func (g *BarcodeGroup) Barcode() (barcode string, ok bool) {
	n := g.Number(g.Serial)
	if n < 0 || n > maxBarcodeNumber {
		return "", false
	}
	return fmt.Sprintf("%s%08d%d%s", g.Prefix, n, Checksum(n), g.Country), true
}

// Issue renders the current barcode and advances the serial.
func (g *BarcodeGroup) Issue() (string, bool) {
	b, ok := g.Barcode()
	if ok {
		g.Serial++
	}
	return b, ok
}

// SerialOf extracts the serial from a barcode issued by this group.
func (g *BarcodeGroup) SerialOf(barcode string) (int64, bool) {
	if !strings.HasPrefix(barcode, g.Prefix) || !strings.HasSuffix(barcode, g.Country) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(barcode, g.Prefix), g.Country)
	if len(digits) != 9 {
		return 0, false
	}
	n, err := strconv.ParseInt(digits[:8], 10, 64)
	if err != nil {
		return 0, false
	}
	if strconv.Itoa(Checksum(n)) != digits[8:] {
		return 0, false
	}
	return n - int64(g.Range)*1_000_000, true
}

// Checksum computes the check digit for an eight digit barcode number:
// the weighted digit sum modulo 11, with 0 mapped to 5, 1 to 0 and any
// other remainder r to 11-r.
func Checksum(number int64) int {
	digits := fmt.Sprintf("%08d", number)
	sum := 0
	for i, w := range barcodeWeights {
		sum += w * int(digits[i]-'0')
	}
	switch r := sum % 11; r {
	case 0:
		return 5
	case 1:
		return 0
	default:
		return 11 - r
	}
}
