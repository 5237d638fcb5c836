package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

// FallbackLogFile is used when a log file option is present but empty.
const FallbackLogFile = "/tmp/STProxy.log"

// LogConfig holds logging configuration from YAML.
type LogConfig struct {
	Level      string            `yaml:"level,omitempty"`
	Components map[string]string `yaml:"components,omitempty"`
	// File redirects log output. Nil keeps the console; an empty string
	// selects FallbackLogFile.
	File *string `yaml:"file,omitempty"`
}

// Logger provides per-component log level filtering.
type Logger struct {
	mu          sync.RWMutex
	globalLevel LogLevel
	components  map[string]LogLevel // lowercase component name → level
	out         *log.Logger
}

// ParseLevel converts a string level name to LogLevel.
// Returns LevelInfo for unrecognized values.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "off", "none":
		return LevelOff
	default:
		return LevelInfo
	}
}

// NewLogger creates a Logger from config writing to the standard logger.
func NewLogger(cfg LogConfig) *Logger {
	l := &Logger{
		globalLevel: ParseLevel(cfg.Level),
		components:  make(map[string]LogLevel, len(cfg.Components)),
	}
	for name, level := range cfg.Components {
		l.components[strings.ToLower(name)] = ParseLevel(level)
	}
	return l
}

// NewLoggerTo creates a Logger writing to w instead of the standard logger.
func NewLoggerTo(cfg LogConfig, w io.Writer) *Logger {
	l := NewLogger(cfg)
	l.out = log.New(w, "", log.LstdFlags|log.Lmicroseconds)
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLogger(LogConfig{Level: "off"})
}

// OpenLogOutput applies cfg.File to the standard logger.
// The returned closer must be closed on shutdown; it is a no-op when
// logging stays on the console.
func OpenLogOutput(cfg LogConfig) (io.Closer, error) {
	if cfg.File == nil {
		return nopCloser{}, nil
	}
	path := *cfg.File
	if path == "" {
		path = FallbackLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("[Core] failed to open log file %s: %w", path, err)
	}
	log.SetOutput(f)
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetLevel replaces the global level. Component overrides are kept.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.globalLevel = level
	l.mu.Unlock()
}

// levelFor returns the effective log level for a component tag.
func (l *Logger) levelFor(tag string) LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.components[strings.ToLower(tag)]; ok {
		return lvl
	}
	return l.globalLevel
}

func (l *Logger) printf(tag, format string, args ...any) {
	if l.out != nil {
		l.out.Printf("["+tag+"] "+format, args...)
		return
	}
	log.Printf("["+tag+"] "+format, args...)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(tag, format string, args ...any) {
	if l.levelFor(tag) <= LevelDebug {
		l.printf(tag, format, args...)
	}
}

// Infof logs at info level.
func (l *Logger) Infof(tag, format string, args ...any) {
	if l.levelFor(tag) <= LevelInfo {
		l.printf(tag, format, args...)
	}
}

// Warnf logs at warn level.
func (l *Logger) Warnf(tag, format string, args ...any) {
	if l.levelFor(tag) <= LevelWarn {
		l.printf(tag, format, args...)
	}
}

// Errorf logs at error level.
func (l *Logger) Errorf(tag, format string, args ...any) {
	if l.levelFor(tag) <= LevelError {
		l.printf(tag, format, args...)
	}
}

// Fatalf always logs and calls os.Exit(1).
func (l *Logger) Fatalf(tag, format string, args ...any) {
	l.printf(tag, format, args...)
	os.Exit(1)
}

// FormatBytes renders a byte count with binary units (e.g. "1.5 KiB").
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Log is the global logger instance. Initialized with default (info level).
var Log = NewLogger(LogConfig{})
