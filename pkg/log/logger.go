package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// Config selects the process-wide log backend.
type Config struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // "console", "json" or "slog"
	Verbose bool   `yaml:"-"`
}

// Setup installs the provider described by cfg writing to w.
func Setup(w io.Writer, cfg Config) error {
	level := LevelInfo
	if cfg.Level != "" {
		l, ok := ParseLevel(cfg.Level)
		if !ok {
			return errors.Newf("invalid log level: %q", cfg.Level)
		}
		level = l
	}
	if cfg.Verbose {
		level = LevelDebug
	}

	switch cfg.Format {
	case "", "console":
		SetProvider(NewZerologProvider(w, level, true))
	case "json":
		SetProvider(NewZerologProvider(w, level, false))
	case "slog":
		SetupLogger(w, level)
		SetProvider(NewSlogProvider(slog.Default()))
	default:
		return errors.Newf("invalid log format: %q", cfg.Format)
	}
	return nil
}

// slogLevel is the threshold of the handler installed by SetupLogger.
var slogLevel = new(slog.LevelVar)

// SetupLogger installs a JSON slog default handler in Cloud Logging format.
func SetupLogger(w io.Writer, level Level) {
	slogLevel.Set(slog.Level(level))
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     slogLevel,
		// Replace attributes to convert to CloudLogging format.
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{Key: "severity", Value: attr.Value}
			case slog.MessageKey:
				attr = slog.Attr{Key: "message", Value: attr.Value}
			case slog.SourceKey:
				attr = slog.Attr{Key: "logging.googleapis.com/sourceLocation", Value: attr.Value}
			}
			return attr
		},
	}
	handler := slog.NewJSONHandler(w, &ops)
	slog.SetDefault(slog.New(WrapByErrFmtHandler(handler)))
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

func (s *SlogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, slogArgs(fields)...) }
func (s *SlogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, slogArgs(fields)...) }
func (s *SlogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, slogArgs(fields)...) }
func (s *SlogLogger) Error(msg string, fields ...any) { s.l.Error(msg, slogArgs(fields)...) }

func (s *SlogLogger) With(fields ...any) Logger {
	return &SlogLogger{l: s.l.With(slogArgs(fields)...)}
}

func (s *SlogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

func slogArgs(fields []any) []any {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			return append([]any{ErrAttr(err)}, fields[1:]...)
		}
	}
	return fields
}

// SlogProvider implements LoggerProvider over a *slog.Logger.
type SlogProvider struct {
	root *slog.Logger
}

// NewSlogProvider wraps root.
func NewSlogProvider(root *slog.Logger) *SlogProvider {
	return &SlogProvider{root: root}
}

func (p *SlogProvider) GetLogger() Logger { return &SlogLogger{l: p.root} }

func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	return &SlogLogger{l: p.root.With(ComponentKey, name)}
}

// SetLevel adjusts the threshold of the handler installed by SetupLogger.
func (p *SlogProvider) SetLevel(level Level) { slogLevel.Set(slog.Level(level)) }
