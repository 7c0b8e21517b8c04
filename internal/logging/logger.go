package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// DebugLogName is the JSON log file created inside the log directory.
const DebugLogName = "debug.log"

// Logger writes JSON log lines through log/slog. Children made with
// WithSession, WithMember, WithPhase and With share the parent's output.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	file   *rotatingFile
	dir    string
}

// NewLogger creates a Logger that writes JSON-formatted logs to
// {dir}/debug.log, rotated with DefaultRotationConfig. If dir is empty,
// logs are written to stderr and member transcripts are disabled.
func NewLogger(dir string, level string) (*Logger, error) {
	return NewLoggerWithRotation(dir, level, DefaultRotationConfig())
}

// NewLoggerWithRotation is NewLogger with explicit rotation limits.
func NewLoggerWithRotation(dir string, level string, rotation RotationConfig) (*Logger, error) {
	l := &Logger{dir: dir}
	var w io.Writer = os.Stderr
	if dir != "" {
		f, err := openRotating(filepath.Join(dir, DebugLogName), rotation)
		if err != nil {
			return nil, err
		}
		l.file, w = f, f
	}
	l.logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)}))
	return l, nil
}

func slogLevel(level string) slog.Level {
	switch ParseLevel(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Dir returns the directory the logger writes to, or "" for stderr.
func (l *Logger) Dir() string {
	return l.dir
}

// WithSession tags every entry with the session ID.
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.With("session_id", sessionID)
}

// WithMember tags every entry with a council member.
func (l *Logger) WithMember(memberID string) *Logger {
	return l.With("member", memberID)
}

// WithPhase tags every entry with the session phase ("stage1", "merge", ...).
func (l *Logger) WithPhase(phase string) *Logger {
	return l.With("phase", phase)
}

// With returns a child Logger carrying the given key-value pairs. The
// receiver is returned unchanged when args is empty.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	child := *l
	child.logger = l.logger.With(args...)
	return &child
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Close flushes and closes debug.log. Children share the file, so closing
// any of them closes it for all. Stderr loggers ignore Close.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NopLogger discards everything. Use it in tests and when logging is off.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.DiscardHandler)}
}

// ParseLevel normalizes a level name to one of the Level* constants,
// falling back to LevelInfo.
func ParseLevel(level string) string {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case LevelDebug, LevelWarn, LevelError:
		return l
	case "WARNING":
		return LevelWarn
	}
	return LevelInfo
}
