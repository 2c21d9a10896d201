package logbook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "LEVEL(" + fmt.Sprint(int(l)) + ")"
	}
}

const timestampLayout = "2006-01-02 15:04:05"

// Logger is the leveled logging contract every grading component accepts.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Logbook writes timestamped, leveled lines to one or more writers. It is
// safe for concurrent use by the grading workers.
type Logbook struct {
	mu      sync.Mutex
	writers []io.Writer
	file    *os.File
	min     Level
	now     func() time.Time
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithFile additionally appends every entry to path, creating parent
// directories as needed.
func WithFile(path string) Option {
	return func(l *Logbook) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logbook: ensure log dir: %v\n", err)
			return
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logbook: open log file: %v\n", err)
			return
		}
		l.file = f
		l.writers = append(l.writers, f)
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logbook) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a logbook that writes entries at or above min to w.
func New(w io.Writer, min Level, opts ...Option) *Logbook {
	l := &Logbook{min: min, now: time.Now}
	if w != nil {
		l.writers = append(l.writers, w)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close releases the log file, if any.
func (l *Logbook) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	kept := l.writers[:0]
	for _, w := range l.writers {
		if w != io.Writer(l.file) {
			kept = append(kept, w)
		}
	}
	l.writers = kept
	err := l.file.Close()
	l.file = nil
	return err
}

// Enabled reports whether entries at level would be written.
func (l *Logbook) Enabled(level Level) bool {
	return l != nil && level >= l.min
}

// Append writes a single entry. Multi-line messages keep their line breaks so
// captured command output stays readable.
func (l *Logbook) Append(level Level, message string) {
	if !l.Enabled(level) {
		return
	}
	line := fmt.Sprintf("%s %s | %s\n",
		l.now().Format(timestampLayout),
		level.String(),
		strings.TrimRight(message, "\n"),
	)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.writers {
		_, _ = io.WriteString(w, line)
	}
}

func (l *Logbook) Debugf(format string, args ...any) {
	l.Append(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logbook) Infof(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logbook) Warnf(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logbook) Errorf(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// Discard drops every entry.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debugf(string, ...any) {}
func (discard) Infof(string, ...any)  {}
func (discard) Warnf(string, ...any)  {}
func (discard) Errorf(string, ...any) {}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}
