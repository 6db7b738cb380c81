package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/housereg/pkg/errors"
)

// Output formats accepted by NewZerologLogger and SetupLogger.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger returns a Logger writing to w. format is FormatJSON or
// FormatConsole; anything else falls back to JSON.
func NewZerologLogger(w io.Writer, level Level, format string) Logger {
	return &zerologLogger{zl: newZerolog(w, level, format)}
}

func newZerolog(w io.Writer, level Level, format string) zerolog.Logger {
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (l *zerologLogger) Debug(msg string, fields ...any) { emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { emit(l.zl.Error(), msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i < len(fields); i += 2 {
		key, value := pair(fields, i)
		if err, ok := value.(error); ok {
			ctx = ctx.AnErr(key, err)
			continue
		}
		ctx = ctx.Interface(key, value)
	}
	return &zerologLogger{zl: ctx.Logger()}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

// emit appends key/value fields to a zerolog event. A nil event means the
// level is disabled.
func emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(fields); i += 2 {
		key, value := pair(fields, i)
		switch v := value.(type) {
		case error:
			e.AnErr(key, v)
			if key == ErrAttrKey {
				if st := extractStacktrace(v); st != "" {
					e.Str(StacktraceAttrKey, st)
				}
			}
		case zerolog.LogObjectMarshaler:
			e.Object(key, v)
		default:
			e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

// pair returns the key/value at position i; a dangling value gets the
// "!BADKEY" key, as slog does.
func pair(fields []any, i int) (string, any) {
	if i+1 >= len(fields) {
		return "!BADKEY", fields[i]
	}
	return fmt.Sprint(fields[i]), fields[i+1]
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err)
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// ErrAttr returns the key/value pair used to log an error with its stack trace.
func ErrAttr(err error) []any {
	return []any{ErrAttrKey, err}
}

// zerologProvider implements LoggerProvider.
type zerologProvider struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	level  Level
	root   Logger
}

// NewProvider returns a LoggerProvider whose loggers write to w.
func NewProvider(w io.Writer, level Level, format string) LoggerProvider {
	p := &zerologProvider{w: w, format: format}
	p.SetLevel(level)
	return p
}

func (p *zerologProvider) GetLogger() Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.root
}

func (p *zerologProvider) GetLoggerWithName(name string) Logger {
	return p.GetLogger().With(ComponentKey, name)
}

func (p *zerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	p.root = NewZerologLogger(p.w, level, p.format)
}

var (
	providerMu sync.RWMutex
	provider   = NewProvider(os.Stderr, LevelInfo, FormatConsole)
)

// SetupLogger installs a process-wide zerolog provider writing to stderr and
// routes errors.Warn through it.
func SetupLogger(level, format string) error {
	lvl, ok := ParseLevel(level)
	if !ok {
		return errors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
	switch format {
	case FormatJSON, FormatConsole:
	default:
		return errors.NewValidationError("log_format", "must be json or console", format)
	}
	SetProvider(NewProvider(os.Stderr, lvl, format))
	return nil
}

// SetProvider replaces the process-wide provider and routes warnings to it.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	provider = p
	providerMu.Unlock()

	warnLogger := p.GetLoggerWithName("warnings")
	errors.SetZerologWarnFunc(func(w error) {
		fields := []any{ErrorTypeKey, fmt.Sprintf("%T", w)}
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			fields = append(fields, "warning", m)
		}
		warnLogger.Warn(w.Error(), fields...)
	})
}

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns the default logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}
