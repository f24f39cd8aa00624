package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Logger defines the interface for trail implementations.
type Logger interface {
	// Log records an entry. Implementations must be thread-safe and must
	// not buffer: when Log returns nil the line has reached the OS.
	Log(entry Entry) error

	// Close releases any resources held by the logger.
	Close() error
}

// Factory opens the logger for one trail of one source.
type Factory func(source string, stream Stream) (Logger, error)

// NoOpLogger is a Logger that discards all entries.
// Use this when a source is loaded read-only.
type NoOpLogger struct{}

// Log discards the entry. Always returns nil.
func (l *NoOpLogger) Log(_ Entry) error {
	return nil
}

// Close is a no-op. Always returns nil.
func (l *NoOpLogger) Close() error {
	return nil
}

// Ensure NoOpLogger implements Logger.
var _ Logger = (*NoOpLogger)(nil)

// NoOpFactory returns a Factory producing NoOpLoggers.
func NoOpFactory() Factory {
	return func(string, Stream) (Logger, error) {
		return &NoOpLogger{}, nil
	}
}

// FileLogger appends trail lines to a file.
type FileLogger struct {
	path  string
	file  *os.File
	sync  bool
	lines atomic.Int64
	mu    sync.Mutex
}

// NewFileLogger creates a FileLogger that appends to path.
// The file is created if it doesn't exist. When sync is true every line is
// fsynced before Log returns.
func NewFileLogger(path string, sync bool) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open trail: %w", err)
	}

	return &FileLogger{
		path: path,
		file: file,
		sync: sync,
	}, nil
}

// Path returns the file the logger appends to.
func (l *FileLogger) Path() string {
	return l.path
}

// Lines returns the number of lines written by this logger.
func (l *FileLogger) Lines() int64 {
	return l.lines.Load()
}

// Log appends the entry as a single write.
func (l *FileLogger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit: logger is closed")
	}

	if _, err := l.file.WriteString(entry.Line() + "\n"); err != nil {
		return fmt.Errorf("audit: failed to write %s: %w", l.path, err)
	}
	if l.sync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("audit: failed to sync %s: %w", l.path, err)
		}
	}

	l.lines.Add(1)
	return nil
}

// Close syncs and closes the underlying file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	_ = l.file.Sync()

	err := l.file.Close()
	l.file = nil
	return err
}

// Ensure FileLogger implements Logger.
var _ Logger = (*FileLogger)(nil)

// Path returns the trail file for source and stream inside dir.
func Path(dir, source string, stream Stream) string {
	return filepath.Join(dir, source+"."+string(stream))
}

// FileFactory returns a Factory that opens FileLoggers inside dir,
// creating dir on first use.
func FileFactory(dir string, sync bool) Factory {
	return func(source string, stream Stream) (Logger, error) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("audit: failed to create %s: %w", dir, err)
		}
		return NewFileLogger(Path(dir, source, stream), sync)
	}
}

// Tee returns a Factory whose loggers write to the loggers of every given
// factory. A nil factory is skipped.
func Tee(factories ...Factory) Factory {
	return func(source string, stream Stream) (Logger, error) {
		var writers []Logger
		for _, f := range factories {
			if f == nil {
				continue
			}
			w, err := f(source, stream)
			if err != nil {
				for _, opened := range writers {
					_ = opened.Close()
				}
				return nil, err
			}
			writers = append(writers, w)
		}
		if len(writers) == 1 {
			return writers[0], nil
		}
		return NewMultiWriter(writers...), nil
	}
}
