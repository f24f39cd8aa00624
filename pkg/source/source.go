package source

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/peterlharding/dserver/pkg/audit"
	"github.com/peterlharding/dserver/pkg/logging"
)

// Source is a named, typed dataset loaded from <dir>/<name>.dat.
//
// Reads and writes are exposed through the capability interfaces below;
// a source implements exactly the ones its type supports. Every method is
// safe for concurrent use, and each read or write together with its trail
// line is atomic with respect to other callers of the same source.
type Source interface {
	Name() string
	Type() Type

	// Attributes returns the registration metadata.
	Attributes() Attributes

	// Summary returns a one line description for listings.
	Summary() string

	// Flush rewrites the backing file from memory after copying the
	// previous file to tmp/<timestamp>_<name>.bak. Lookup-only types do
	// nothing.
	Flush() error

	// Close releases the trail files. The source must not be used after.
	Close() error
}

// NextReader hands out the next value of a List, Sequence, Indexer or
// Counter.
type NextReader interface {
	Next() (string, error)
}

// GroupReader reads from the groups of a Keyed source.
type GroupReader interface {
	NextInGroup(group string) (string, error)
	RandomInGroup(group string) (string, error)
}

// KeyReader hands out the next integer of a KeyedSequence key.
type KeyReader interface {
	NextForKey(key string) (string, error)
}

// HashReader looks a key up in a Hashed source.
type HashReader interface {
	Lookup(key string) (string, error)
}

// IndexReader returns an Indexed record by position. The position is
// passed as received so that unparsable values can be reported.
type IndexReader interface {
	At(index string) (string, error)
}

// BarcodeReader issues the next barcode for a key.
type BarcodeReader interface {
	NextBarcode(key string) (string, error)
}

// Appender stores a record at the end of a List.
type Appender interface {
	Append(record string) error
}

// GroupAppender stores a record at the end of a Keyed group, creating the
// group if needed.
type GroupAppender interface {
	AppendToGroup(group, record string) error
}

// Keyer lists the keys or group names of a keyed source.
type Keyer interface {
	Keys() []string
}

// Option configures a source at Open.
type Option func(*base)

// WithLogger sets the logger for load warnings and trail failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the time source used for trail lines and backups.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// WithAudit sets how trail loggers are opened. The default appends to
// files in <dir>/tmp.
func WithAudit(f audit.Factory) Option {
	return func(b *base) {
		if f != nil {
			b.trails = f
		}
	}
}

// WithRand overrides the random choice used by RandomInGroup.
func WithRand(intn func(n int) int) Option {
	return func(b *base) {
		if intn != nil {
			b.intn = intn
		}
	}
}

// Open loads the named source from dir and opens its trails.
// Any failure to read the backing file is returned; malformed lines are
// logged and degrade to zero values or are skipped.
func Open(name, dir string, typ Type, opts Options, options ...Option) (Source, error) {
	if name == "" {
		return nil, errors.New("source name is required")
	}

	b := &base{
		name:   name,
		typ:    typ,
		dir:    dir,
		opts:   opts.withDefaults(),
		now:    time.Now,
		intn:   rand.IntN,
		logger: logging.Nop(),
	}
	b.trails = audit.FileFactory(b.TmpDir(), false)
	for _, o := range options {
		o(b)
	}
	b.logger = b.logger.With("source", name, "type", string(typ))

	var (
		src Source
		err error
	)
	switch typ {
	case TypeList:
		src, err = loadList(b)
	case TypeSequence:
		src, err = loadSequence(b)
	case TypeIndexer:
		src = newIndexer(b)
	case TypeCounter:
		src, err = loadCounter(b)
	case TypeHashed:
		src, err = loadHashed(b)
	case TypeIndexed:
		src, err = loadIndexed(b)
	case TypeKeyed:
		src, err = loadKeyed(b)
	case TypeKeyedSequence:
		src, err = loadKeyedSequence(b)
	case TypeBarcodes:
		src, err = loadBarcodes(b)
	default:
		return nil, fmt.Errorf("source %q: unknown type %q", name, typ)
	}
	if err != nil {
		return nil, err
	}

	if err := b.openTrails(); err != nil {
		return nil, err
	}

	b.logger.Debug("source loaded", "summary", src.Summary())
	return src, nil
}

// base holds what every source type shares: identity, the lock guarding
// the payload and trails, and the comment lines of the backing file.
type base struct {
	mu sync.Mutex

	name string
	typ  Type
	dir  string
	opts Options

	comments []string

	trails audit.Factory
	used   audit.Logger
	stored audit.Logger

	now    func() time.Time
	intn   func(int) int
	logger *slog.Logger
}

func (b *base) Name() string { return b.name }
func (b *base) Type() Type   { return b.typ }

// Options returns the attributes the source was opened with.
func (b *base) Options() Options { return b.opts }

// Dir returns the directory holding the backing file.
func (b *base) Dir() string { return b.dir }

// Path returns the backing file.
func (b *base) Path() string {
	return filepath.Join(b.dir, b.name+".dat")
}

// TmpDir returns the directory holding trails and backups.
func (b *base) TmpDir() string {
	return filepath.Join(b.dir, "tmp")
}

// Comments returns the file level comment lines.
func (b *base) Comments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.comments...)
}

func (b *base) attributes(size int) Attributes {
	return Attributes{Type: b.typ, Delimiter: b.opts.Delimiter, Size: size}
}

func (b *base) openTrails() error {
	used, err := b.trails(b.name, audit.StreamUsed)
	if err != nil {
		return fmt.Errorf("source %q: %w", b.name, err)
	}
	stored, err := b.trails(b.name, audit.StreamStored)
	if err != nil {
		_ = used.Close()
		return fmt.Errorf("source %q: %w", b.name, err)
	}
	b.used, b.stored = used, stored
	return nil
}

// recordRead appends the outcome of a read to the used trail. Must be
// called with b.mu held. A trail failure is logged; the value has already
// been taken from the payload and is still returned to the caller.
func (b *base) recordRead(key string, keyed bool, value string, err error) {
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			value = se.Token()
		} else {
			value = "*ERROR*"
		}
	}
	ts := b.now()
	entry := audit.NewEntry(ts, value)
	if keyed {
		entry = audit.NewKeyedEntry(ts, key, value)
	}
	if lerr := b.used.Log(entry); lerr != nil {
		b.logger.Error("failed to record read", "error", lerr)
	}
}

// recordStore appends a write to the stored trail. Must be called with
// b.mu held and before the payload is changed.
func (b *base) recordStore(key string, keyed bool, value string) error {
	ts := b.now()
	entry := audit.NewEntry(ts, value)
	if keyed {
		entry = audit.NewKeyedEntry(ts, key, value)
	}
	if err := b.stored.Log(entry); err != nil {
		return &StoreError{Source: b.name, Err: err}
	}
	return nil
}

func (b *base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return errors.Join(b.used.Close(), b.stored.Close())
}
