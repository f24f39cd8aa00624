package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stream identifies one of the two trails a source keeps.
type Stream string

// Trail names, also used as file extensions.
const (
	StreamUsed   Stream = "used"
	StreamStored Stream = "stored"
)

// TimestampLayout is the layout of the timestamp that starts every line.
const TimestampLayout = "20060102150405"

const fieldSep = " - "

// KeySeparator joins the key and value of a keyed line.
const KeySeparator = "::"

// ErrMalformedLine is returned by ParseLine for lines that do not follow
// the trail format.
var ErrMalformedLine = errors.New("audit: malformed line")

// Entry is a single trail record.
type Entry struct {
	// Time is when the value was read or written.
	Time time.Time

	// Key is the group, hash key, index or barcode key. Only meaningful
	// when Keyed is true.
	Key   string
	Keyed bool

	// Value is the value handed out or stored, or the reply token of a
	// failed read.
	Value string
}

// NewEntry creates an unkeyed entry.
func NewEntry(t time.Time, value string) Entry {
	return Entry{Time: t, Value: value}
}

// NewKeyedEntry creates an entry qualified by key.
func NewKeyedEntry(t time.Time, key, value string) Entry {
	return Entry{Time: t, Key: key, Keyed: true, Value: value}
}

// Line renders the entry without a trailing newline.
func (e Entry) Line() string {
	ts := e.Time.Format(TimestampLayout)
	if e.Keyed {
		return ts + fieldSep + e.Key + KeySeparator + e.Value
	}
	return ts + fieldSep + e.Value
}

// String implements fmt.Stringer.
func (e Entry) String() string {
	return e.Line()
}

// ParseLine parses one trail line. When keyed is true the payload must
// carry a "key::" qualifier.
func ParseLine(line string, keyed bool) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")
	ts, payload, ok := strings.Cut(line, fieldSep)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	t, err := time.ParseInLocation(TimestampLayout, ts, time.Local)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedLine, ts)
	}

	if !keyed {
		return NewEntry(t, payload), nil
	}

	key, value, ok := strings.Cut(payload, KeySeparator)
	if !ok {
		return Entry{}, fmt.Errorf("%w: missing key in %q", ErrMalformedLine, line)
	}
	return NewKeyedEntry(t, key, value), nil
}
