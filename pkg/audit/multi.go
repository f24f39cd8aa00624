package audit

import (
	"errors"
	"strings"
)

// MultiWriter writes every entry to several loggers, in order. The first
// logger is the authoritative one; later ones are mirrors.
type MultiWriter struct {
	writers []Logger
}

// NewMultiWriter creates a MultiWriter. Nil loggers are dropped.
func NewMultiWriter(writers ...Logger) *MultiWriter {
	valid := make([]Logger, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			valid = append(valid, w)
		}
	}
	return &MultiWriter{writers: valid}
}

// Log writes the entry to all loggers. All loggers receive the entry even
// if some fail; the failures are returned as a *MultiError.
func (m *MultiWriter) Log(entry Entry) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Log(entry); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

// Close closes all loggers, even if some fail to close.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

// Len returns the number of loggers.
func (m *MultiWriter) Len() int {
	return len(m.writers)
}

// MultiError represents multiple errors from MultiWriter operations.
type MultiError struct {
	Errors []error
}

// Error returns a string representation of all errors.
func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var b strings.Builder
	b.WriteString("multiple errors:")
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying errors for use with errors.Is/As.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// Is reports whether any error in the chain matches target.
func (e *MultiError) Is(target error) bool {
	for _, err := range e.Errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Ensure MultiWriter implements Logger.
var _ Logger = (*MultiWriter)(nil)
