// Package logger provides the component loggers shared by the server and client
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is the minimum severity that gets written
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR to a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch s {
	case "DEBUG", "debug":
		return DEBUG
	case "WARN", "warn":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger is a named component logger backed by zerolog
type Logger struct {
	component string
	mu        sync.RWMutex
	zl        zerolog.Logger
	file      *os.File
}

var console io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

// Component loggers
var (
	Server  = New("server")
	Match   = New("match")
	Game    = New("game")
	Storage = New("storage")
	Client  = New("client")
)

func all() []*Logger {
	return []*Logger{Server, Match, Game, Storage, Client}
}

// New creates a logger writing to the console
func New(component string) *Logger {
	return &Logger{
		component: component,
		zl:        build(console, component),
	}
}

func build(w io.Writer, component string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// SetGlobalLogLevel sets the level for every logger
func SetGlobalLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(level.zerolog())
}

// SetOutput redirects the logger, mostly useful in tests
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = build(w, l.component)
}

// SetFile makes the logger write to both the console and the given file
func (l *Logger) SetFile(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.zl = build(zerolog.MultiLevelWriter(f, console), l.component)
	return nil
}

// InitializeFileLogging gives each component its own file under dir
func InitializeFileLogging(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	for _, l := range all() {
		if err := l.SetFile(filepath.Join(dir, l.component+".log")); err != nil {
			return err
		}
	}
	return nil
}

// With returns a child logger carrying an extra structured field
func (l *Logger) With(key string, value interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		component: l.component,
		zl:        l.zl.With().Interface(key, value).Logger(),
	}
}

func (l *Logger) get() *zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	zl := l.zl
	return &zl
}

// Debug logs at debug level
func (l *Logger) Debug(format string, args ...interface{}) {
	l.get().Debug().Msgf(format, args...)
}

// Info logs at info level
func (l *Logger) Info(format string, args ...interface{}) {
	l.get().Info().Msgf(format, args...)
}

// Warn logs at warn level
func (l *Logger) Warn(format string, args ...interface{}) {
	l.get().Warn().Msgf(format, args...)
}

// Error logs at error level
func (l *Logger) Error(format string, args ...interface{}) {
	l.get().Error().Msgf(format, args...)
}

// Fatal logs and exits the process
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.get().Fatal().Msgf(format, args...)
}
