package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps LOG_LEVEL style strings onto a Level, defaulting to INFO
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Config configures the logger with rotation settings
type Config struct {
	// Filename is the file to write logs to ("", "-" or "stdout" for stdout)
	Filename string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated logs should be compressed
	Compress bool

	// Level is the minimum logging level
	Level Level

	// Output overrides the destination (tests)
	Output io.Writer
}

// DefaultConfig returns sensible defaults
func DefaultConfig(filename string) Config {
	return Config{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Level:      INFO,
	}
}

// Logger provides structured logging with optional file rotation.
// Loggers derived through WithField/WithFields share the writer and level
// but carry their own copy of the fields.
type Logger struct {
	logger  *log.Logger
	level   Level
	fields  map[string]any
	rotator *lumberjack.Logger
}

// NewWithConfig creates a new logger with rotation configuration
func NewWithConfig(cfg Config) (*Logger, error) {
	var (
		writer  io.Writer
		rotator *lumberjack.Logger
	)

	switch {
	case cfg.Output != nil:
		writer = cfg.Output
	case cfg.Filename == "" || cfg.Filename == "-" || cfg.Filename == "stdout":
		writer = os.Stdout
	default:
		logDir := filepath.Dir(cfg.Filename)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
		rotator = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		writer = rotator
	}

	return &Logger{
		logger:  log.New(writer, "", 0),
		level:   cfg.Level,
		fields:  make(map[string]any),
		rotator: rotator,
	}, nil
}

// New creates a new logger with default rotation settings, falling back to
// stdout when the file cannot be opened
func New(logfile string) *Logger {
	l, err := NewWithConfig(DefaultConfig(logfile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create log file %s: %v. Falling back to stdout.\n", logfile, err)
		l, _ = NewWithConfig(Config{Output: os.Stdout, Level: INFO})
	}
	return l
}

// Rotate triggers an immediate log rotation
func (l *Logger) Rotate() error {
	if l.rotator != nil {
		return l.rotator.Rotate()
	}
	return nil
}

// Close closes the log file if using rotation
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// SetLevel sets the minimum logging level
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// Writer exposes the underlying destination (used by the HTTP access log)
func (l *Logger) Writer() io.Writer {
	return l.logger.Writer()
}

func (l *Logger) derive(extra map[string]any) *Logger {
	n := &Logger{
		logger:  l.logger,
		level:   l.level,
		fields:  make(map[string]any, len(l.fields)+len(extra)),
		rotator: l.rotator,
	}
	for k, v := range l.fields {
		n.fields[k] = v
	}
	for k, v := range extra {
		n.fields[k] = v
	}
	return n
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value any) *Logger {
	return l.derive(map[string]any{key: value})
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.derive(fields)
}

func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err)
}

// Component tags every entry with the subsystem that produced it
func (l *Logger) Component(name string) *Logger {
	return l.WithField("component", name)
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if level < l.level {
		return
	}

	message := msg
	if len(args) > 0 {
		message = fmt.Sprintf(msg, args...)
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	entry := fmt.Sprintf("[%s] %s: %s", timestamp, level.String(), message)

	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+formatValue(l.fields[k]))
		}
		entry += " | " + strings.Join(parts, " | ")
	}

	l.logger.Println(entry)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.log(DEBUG, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.log(INFO, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.log(WARN, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.log(ERROR, msg, args...)
}

// Global default logger
var defaultLogger *Logger

func init() {
	defaultLogger, _ = NewWithConfig(Config{Output: os.Stdout, Level: INFO})
}

// SetDefault sets the default global logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// GetDefault returns the default global logger
func GetDefault() *Logger {
	return defaultLogger
}

// Discard returns a logger that drops everything (tests)
func Discard() *Logger {
	l, _ := NewWithConfig(Config{Output: io.Discard, Level: ERROR + 1})
	return l
}

// Info logs using the default logger
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs using the default logger
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs using the default logger
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// Debug logs using the default logger
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// WithField returns a logger with a field using the default logger
func WithField(key string, value any) *Logger {
	return defaultLogger.WithField(key, value)
}

// WithFields returns a logger with fields using the default logger
func WithFields(fields map[string]any) *Logger {
	return defaultLogger.WithFields(fields)
}

func WithError(err error) *Logger {
	return defaultLogger.WithError(err)
}
