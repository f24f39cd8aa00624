package source

import "fmt"

// Kind classifies a failed read.
type Kind int

// Read failure kinds.
const (
	KindExhausted Kind = iota + 1
	KindGroupExhausted
	KindUnknownGroup
	KindUndefinedKey
	KindInvalidIndex
	KindIndexOutOfRange
	KindNoValidKey
)

var kindTokens = map[Kind]string{
	KindExhausted:       "*Exhausted*",
	KindGroupExhausted:  "*GROUP*EXHAUSTED*",
	KindUnknownGroup:    "*INVALID*GROUP*",
	KindUndefinedKey:    "*UNDEFINED*HASH*",
	KindInvalidIndex:    "*INVALID*INDEX*",
	KindIndexOutOfRange: "*INDEX*OUT*OF*RANGE*",
	KindNoValidKey:      "*NO*VALID*KEY*",
}

var kindText = map[Kind]string{
	KindExhausted:       "exhausted",
	KindGroupExhausted:  "group exhausted",
	KindUnknownGroup:    "unknown group",
	KindUndefinedKey:    "undefined key",
	KindInvalidIndex:    "invalid index",
	KindIndexOutOfRange: "index out of range",
	KindNoValidKey:      "no valid key",
}

// Token returns the reply token clients receive for this kind.
func (k Kind) Token() string {
	if t, ok := kindTokens[k]; ok {
		return t
	}
	return "*ERROR*"
}

func (k Kind) String() string {
	if t, ok := kindText[k]; ok {
		return t
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by read operations that cannot produce a value.
// It is recorded in the used trail as its Token.
type Error struct {
	Kind   Kind
	Source string
	Key    string
}

func (e *Error) Error() string {
	switch {
	case e.Source != "" && e.Key != "":
		return fmt.Sprintf("source %q: %s %q", e.Source, e.Kind, e.Key)
	case e.Source != "":
		return fmt.Sprintf("source %q: %s", e.Source, e.Kind)
	default:
		return e.Kind.String()
	}
}

// Token returns the reply token for the error.
func (e *Error) Token() string {
	return e.Kind.Token()
}

// Is matches any *Error of the same kind, so that errors.Is works against
// the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrExhausted       = &Error{Kind: KindExhausted}
	ErrGroupExhausted  = &Error{Kind: KindGroupExhausted}
	ErrUnknownGroup    = &Error{Kind: KindUnknownGroup}
	ErrUndefinedKey    = &Error{Kind: KindUndefinedKey}
	ErrInvalidIndex    = &Error{Kind: KindInvalidIndex}
	ErrIndexOutOfRange = &Error{Kind: KindIndexOutOfRange}
	ErrNoValidKey      = &Error{Kind: KindNoValidKey}
)

func newError(kind Kind, source, key string) *Error {
	return &Error{Kind: kind, Source: source, Key: key}
}

// StoreError is returned when a write could not be recorded. Nothing is
// appended in that case.
type StoreError struct {
	Source string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("source %q: store not recorded: %v", e.Source, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// RecordError is returned when a stored value or group name would not load
// back unchanged after a flush. Nothing is recorded or appended.
type RecordError struct {
	Source string
	Value  string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("source %q: cannot store %q: %s", e.Source, e.Value, e.Reason)
}
