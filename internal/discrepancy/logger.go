// Package discrepancy records identifiers one backend served while its
// counterpart failed.
package discrepancy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Evidence file headers.
const (
	HeaderFetch     = "CID"
	HeaderProviders = "CID,PeerIDs"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("discrepancy log closed")

// Record is one evidence row.
type Record struct {
	Identifier string
	Providers  []string
}

// Line renders the row without its trailing newline. Provider IDs are joined
// with commas inside one quoted field.
func (r Record) Line() string {
	if r.Providers == nil {
		return r.Identifier
	}
	return r.Identifier + `,"` + strings.Join(r.Providers, ",") + `"`
}

// Option customises a Logger.
type Option func(*Logger)

func WithLogger(logger *log.Logger) Option {
	return func(l *Logger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBuffer sets the capacity of the queue between workers and the writer.
func WithBuffer(n int) Option {
	return func(l *Logger) {
		if n >= 0 {
			l.buffer = n
		}
	}
}

// Logger is an append-only evidence file with a single writer goroutine.
type Logger struct {
	path   string
	file   *os.File
	w      *bufio.Writer
	logger *log.Logger
	buffer int

	rows chan string
	done chan struct{}

	mu      sync.RWMutex
	closed  bool
	written int
	err     error

	closeOnce sync.Once
	closeErr  error
}

// Open truncates path, writes header and starts the writer. It must be called
// before any worker appends.
func Open(path, header string, opts ...Option) (*Logger, error) {
	l := &Logger{
		path:   path,
		logger: log.New(io.Discard, "", 0),
		buffer: 256,
	}
	for _, opt := range opts {
		opt(l)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create evidence dir %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open evidence file %q: %w", path, err)
	}
	l.file = f
	l.w = bufio.NewWriter(f)
	if _, err := l.w.WriteString(header + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write evidence header %q: %w", path, err)
	}
	if err := l.w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write evidence header %q: %w", path, err)
	}

	l.rows = make(chan string, l.buffer)
	l.done = make(chan struct{})
	go l.run()
	return l, nil
}

func (l *Logger) Path() string {
	return l.path
}

// Append queues one row. Rows are written whole, never interleaved.
func (l *Logger) Append(rec Record) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	l.rows <- rec.Line()
	return nil
}

// Close drains queued rows, flushes and closes the file. Further calls are no-ops.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.rows)
		l.mu.Unlock()

		<-l.done
		err := l.err
		if cerr := l.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close evidence file %q: %w", l.path, cerr)
		}
		l.closeErr = err
	})
	return l.closeErr
}

// Written reports how many rows reached the file. Valid after Close.
func (l *Logger) Written() int {
	<-l.done
	return l.written
}

func (l *Logger) run() {
	defer close(l.done)
	for row := range l.rows {
		if l.err != nil {
			continue
		}
		if _, err := l.w.WriteString(row + "\n"); err != nil {
			l.err = fmt.Errorf("append evidence %q: %w", l.path, err)
			l.logger.Printf("%v", l.err)
			continue
		}
		l.written++
		// Flush whenever the queue drains.
		if len(l.rows) == 0 {
			if err := l.w.Flush(); err != nil {
				l.err = fmt.Errorf("flush evidence %q: %w", l.path, err)
				l.logger.Printf("%v", l.err)
			}
		}
	}
	if l.err == nil {
		if err := l.w.Flush(); err != nil {
			l.err = fmt.Errorf("flush evidence %q: %w", l.path, err)
		}
	}
}
