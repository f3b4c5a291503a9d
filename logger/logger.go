package logger

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// MaxLogLines is the number of lines kept in a log file before the oldest
// lines are dropped.
const MaxLogLines = 5000

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel, defaulting to INFO
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LogLevelTrace
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger is a leveled logger. When it writes to a file, the file is capped
// at MaxLogLines lines.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	file      *os.File // non-nil when out is a rotatable log file
	lineCount int
	level     LogLevel
	now       func() time.Time
}

var (
	globalMu sync.RWMutex
	global   = New(os.Stderr, LogLevelInfo)
)

// New creates a Logger writing to w. Files opened for reading and writing
// are trimmed to MaxLogLines as they grow.
func New(w io.Writer, level LogLevel) *Logger {
	l := &Logger{out: w, level: level, now: time.Now}
	if f, ok := w.(*os.File); ok && f != os.Stderr && f != os.Stdout {
		l.file = f
		l.lineCount = countLines(f)
	}
	return l
}

// Setup opens (or creates) the log file at path, installs a Logger for it as
// the package logger and routes the standard library log package through
// it. An empty path logs to stderr. Callers must Close the returned Logger.
func Setup(path string, level LogLevel) (*Logger, error) {
	var l *Logger
	if path == "" {
		l = New(os.Stderr, level)
	} else {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l = New(f, level)
	}

	SetGlobal(l)
	log.SetFlags(0)
	log.SetOutput(stdlibWriter{l})
	return l, nil
}

// SetGlobal replaces the package logger
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

func current() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *Logger) logf(level LogLevel, format string, v ...any) {
	if !l.enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, v...)
	l.writeLine(fmt.Sprintf("%s [%s] %s\n", l.now().Format("2006/01/02 15:04:05"), level, msg))
}

func (l *Logger) writeLine(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := io.WriteString(l.out, line); err != nil {
		return
	}
	if l.file == nil {
		return
	}
	l.lineCount += strings.Count(line, "\n")
	if l.lineCount > MaxLogLines {
		l.trim()
	}
}

func (l *Logger) Trace(format string, v ...any) { l.logf(LogLevelTrace, format, v...) }
func (l *Logger) Debug(format string, v ...any) { l.logf(LogLevelDebug, format, v...) }
func (l *Logger) Info(format string, v ...any)  { l.logf(LogLevelInfo, format, v...) }
func (l *Logger) Warn(format string, v ...any)  { l.logf(LogLevelWarn, format, v...) }
func (l *Logger) Error(format string, v ...any) { l.logf(LogLevelError, format, v...) }

// Close closes the underlying log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// trim keeps only the last MaxLogLines lines of the log file
func (l *Logger) trim() {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	var lines []string
	scanner := bufio.NewScanner(l.file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) > MaxLogLines {
		lines = lines[len(lines)-MaxLogLines:]
	}

	l.file.Truncate(0)
	l.file.Seek(0, io.SeekStart)
	w := bufio.NewWriter(l.file)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	w.Flush()
	l.lineCount = len(lines)
}

func countLines(f *os.File) int {
	defer f.Seek(0, io.SeekEnd)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0
	}
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n
}

// stdlibWriter adapts the standard log package (used by the neovim client)
// to INFO lines of a Logger.
type stdlibWriter struct{ l *Logger }

func (w stdlibWriter) Write(p []byte) (int, error) {
	w.l.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

var noop = func() {}

// Trace returns a function that logs the time since Trace was called.
// Usage: defer logger.Trace("operation")()
func Trace(name string) func() {
	l := current()
	if !l.enabled(LogLevelTrace) {
		return noop
	}
	start := time.Now()
	return func() {
		l.Trace("%s: %v", name, time.Since(start))
	}
}

// Enabled reports whether the package logger writes messages at level
func Enabled(level LogLevel) bool { return current().enabled(level) }

func Debug(format string, v ...any) { current().Debug(format, v...) }
func Info(format string, v ...any)  { current().Info(format, v...) }
func Warn(format string, v ...any)  { current().Warn(format, v...) }
func Error(format string, v ...any) { current().Error(format, v...) }

// Fatal logs at ERROR level and exits with status 1
func Fatal(format string, v ...any) {
	current().Error(format, v...)
	os.Exit(1)
}
