// Package recovery reconciles source files with their trails after an
// unclean shutdown, and prints the current contents of a source.
//
// Both operations work on the files directly and must not run while a
// server has the same data directory loaded.
package recovery

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/peterlharding/dserver/pkg/audit"
	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/logging"
	"github.com/peterlharding/dserver/pkg/source"
)

// Options control a recovery run.
type Options struct {
	// DryRun replays in memory and reports the result without flushing
	// the source or archiving its trails.
	DryRun bool

	// Now stamps backups and archived trails. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.Nop()
}

// Result describes what recovering one source did.
type Result struct {
	Source string      `json:"source"`
	Type   source.Type `json:"type"`

	// Used and Stored count the trail entries read.
	Used   int `json:"used"`
	Stored int `json:"stored"`

	// Skipped counts malformed trail lines.
	Skipped int `json:"skipped"`

	source.ReplayResult

	// Replayable is false for types whose trails carry nothing to replay.
	Replayable bool `json:"replayable"`

	// Flushed reports whether the backing file was rewritten.
	Flushed bool `json:"flushed"`

	// Archived lists the new paths of the trails moved aside.
	Archived []string `json:"archived,omitempty"`
}

// String renders the result as a single report line.
func (r *Result) String() string {
	if !r.Replayable {
		return fmt.Sprintf("%s (%s): nothing to replay", r.Source, r.Type)
	}
	return fmt.Sprintf("%s (%s): %d used, %d stored, %d skipped; %d appended, %d consumed",
		r.Source, r.Type, r.Used, r.Stored, r.Skipped, r.Appended, r.Consumed)
}

// Recover replays the trails of the declared source in dir into its
// backing file. After a successful run that is not a dry run the trails
// are archived, so running it again changes nothing.
func Recover(dir string, decl config.SourceConfig, opts Options) (*Result, error) {
	typ, err := decl.SourceType()
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", decl.Name, err)
	}
	logger := opts.logger().With("source", decl.Name)

	src, err := open(dir, decl, typ, opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	res := &Result{Source: decl.Name, Type: typ}
	replayer, ok := src.(source.Replayer)
	if !ok {
		logger.Debug("type has nothing to replay", "type", string(typ))
		return res, nil
	}
	res.Replayable = true

	tmp := trailDir(dir)
	usedKeyed, storedKeyed := source.KeyedTrails(typ)
	used, skipped, err := readTrail(audit.Path(tmp, decl.Name, audit.StreamUsed), usedKeyed)
	if err != nil {
		return nil, err
	}
	res.Used, res.Skipped = len(used), skipped

	stored, skipped, err := readTrail(audit.Path(tmp, decl.Name, audit.StreamStored), storedKeyed)
	if err != nil {
		return nil, err
	}
	res.Stored, res.Skipped = len(stored), res.Skipped+skipped

	res.ReplayResult = replayer.Replay(used, stored)
	logger.Info("trails replayed",
		"used", res.Used, "stored", res.Stored, "skipped", res.Skipped,
		"appended", res.Appended, "consumed", res.Consumed, "dry_run", opts.DryRun)

	if opts.DryRun {
		return res, nil
	}

	if res.Changed() {
		if err := src.Flush(); err != nil {
			return nil, fmt.Errorf("source %q: %w", decl.Name, err)
		}
		res.Flushed = true
	}

	stamp := opts.now().Format(audit.TimestampLayout)
	for _, stream := range []audit.Stream{audit.StreamUsed, audit.StreamStored} {
		archived, err := archive(tmp, decl.Name, stream, stamp)
		if err != nil {
			return nil, err
		}
		if archived != "" {
			res.Archived = append(res.Archived, archived)
		}
	}
	return res, nil
}

// RecoverAll recovers every declared source. It stops at the first error
// and returns the results gathered so far.
func RecoverAll(dir string, decls []config.SourceConfig, opts Options) ([]*Result, error) {
	results := make([]*Result, 0, len(decls))
	for _, d := range decls {
		res, err := Recover(dir, d, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// open loads a source without trail loggers so that neither recovery nor
// listing appends to the files being read.
func open(dir string, decl config.SourceConfig, typ source.Type, opts Options) (source.Source, error) {
	src, err := source.Open(decl.Name, dir, typ, decl.Options(),
		source.WithAudit(audit.NoOpFactory()),
		source.WithClock(opts.Now),
		source.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load source %q: %w", decl.Name, err)
	}
	return src, nil
}

func trailDir(dir string) string {
	return filepath.Join(dir, "tmp")
}

func readTrail(path string, keyed bool) (entries []audit.Entry, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open trail %s: %w", path, err)
	}
	defer f.Close()

	skipped, err = audit.Scan(f, keyed, func(e audit.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, skipped, fmt.Errorf("failed to read trail %s: %w", path, err)
	}
	return entries, skipped, nil
}

// archive renames tmp/<name>.<stream> to tmp/<stamp>_<name>.<stream> and
// returns the new path, or "" when there was no trail.
func archive(tmp, name string, stream audit.Stream, stamp string) (string, error) {
	from := audit.Path(tmp, name, stream)
	if _, err := os.Stat(from); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat trail %s: %w", from, err)
	}
	to := filepath.Join(tmp, stamp+"_"+name+"."+string(stream))
	if err := os.Rename(from, to); err != nil {
		return "", fmt.Errorf("failed to archive trail %s: %w", from, err)
	}
	return to, nil
}

// List writes the current contents of the declared source to w in the
// layout of its backing file. Keyed groups are abbreviated to their first
// and last remaining record and a count.
func List(w io.Writer, dir string, decl config.SourceConfig) error {
	typ, err := decl.SourceType()
	if err != nil {
		return fmt.Errorf("source %q: %w", decl.Name, err)
	}
	src, err := open(dir, decl, typ, Options{})
	if err != nil {
		return err
	}
	defer src.Close()

	fmt.Fprintf(w, "# %s (%s): %s\n", src.Name(), src.Type(), src.Summary())
	if c, ok := src.(interface{ Comments() []string }); ok {
		for _, line := range c.Comments() {
			fmt.Fprintln(w, line)
		}
	}

	tag := decl.Options().TagDelimiter
	switch s := src.(type) {
	case *source.List:
		for _, r := range s.Remaining() {
			fmt.Fprintln(w, r)
		}
	case *source.Keyed:
		for _, name := range s.GroupNames() {
			records := s.Remaining(name)
			fmt.Fprintf(w, "[%s]\n", name)
			switch len(records) {
			case 0:
			case 1:
				fmt.Fprintln(w, records[0])
			default:
				fmt.Fprintln(w, records[0])
				if len(records) > 2 {
					fmt.Fprintln(w, "...")
				}
				fmt.Fprintln(w, records[len(records)-1])
			}
			fmt.Fprintf(w, "# %d records\n\n", len(records))
		}
	case *source.Sequence:
		fmt.Fprintln(w, s.Value())
	case *source.Counter:
		fmt.Fprintln(w, s.Value())
	case *source.Indexer:
		fmt.Fprintln(w, s.Value())
	case *source.Hashed:
		for _, k := range s.Keys() {
			v, _ := s.Lookup(k)
			fmt.Fprintf(w, "%s%s%s\n", k, tag, v)
		}
	case *source.Indexed:
		for i := range s.Len() {
			v, _ := s.At(strconv.Itoa(i))
			fmt.Fprintln(w, v)
		}
	case *source.KeyedSequence:
		for _, k := range s.Keys() {
			v, _ := s.Value(k)
			fmt.Fprintf(w, "%s%s%d\n", k, tag, v)
		}
	case *source.Barcodes:
		for _, k := range s.Keys() {
			g, _ := s.Group(k)
			fmt.Fprintf(w, "%s%s%d\n", k, tag, g.Serial)
		}
	default:
		return fmt.Errorf("source %q: listing not supported for type %s", decl.Name, typ)
	}
	return nil
}
