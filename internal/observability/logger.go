package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

type LogConfig struct {
	Level   string
	Verbose bool
	// Output defaults to stdout.
	Output io.Writer
}

// Logger is a component-scoped wrapper around the default slog logger.
// Every record carries the component, the calling function and, when the
// context has them, the request and user IDs.
type Logger struct {
	base      *slog.Logger
	component string
}

func Init(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.Verbose,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Component loggers are usually created at package init, before Init runs,
// so the default slog logger is resolved on every call.
func Component(name string) *Logger {
	return &Logger{component: name}
}

// With returns a child logger that always includes attrs.
func (l *Logger) With(attrs ...any) *Logger {
	return &Logger{base: l.slog().With(attrs...), component: l.component}
}

func (l *Logger) slog() *slog.Logger {
	if l.base != nil {
		return l.base
	}
	return slog.Default()
}

func (l *Logger) Debug(ctx context.Context, msg string, attrs ...any) {
	l.log(ctx, slog.LevelDebug, msg, attrs...)
}

func (l *Logger) Info(ctx context.Context, msg string, attrs ...any) {
	l.log(ctx, slog.LevelInfo, msg, attrs...)
}

func (l *Logger) Warn(ctx context.Context, msg string, attrs ...any) {
	l.log(ctx, slog.LevelWarn, msg, attrs...)
}

func (l *Logger) Error(ctx context.Context, msg string, attrs ...any) {
	l.log(ctx, slog.LevelError, msg, attrs...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	base := l.slog()
	if !base.Enabled(ctx, level) {
		return
	}
	args := make([]any, 0, len(attrs)+8)
	args = append(args, "component", l.component)
	args = append(args, "function", caller(4))
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if userID := UserIDFromContext(ctx); userID != "" {
		args = append(args, "user_id", userID)
	}
	args = append(args, attrs...)
	base.Log(ctx, level, msg, args...)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func caller(depth int) string {
	pc := make([]uintptr, 1)
	n := runtime.Callers(depth, pc)
	if n == 0 {
		return "unknown"
	}
	frames := runtime.CallersFrames(pc[:n])
	frame, _ := frames.Next()
	fn := frame.Function
	if fn == "" {
		return "unknown"
	}
	parts := strings.Split(fn, "/")
	return parts[len(parts)-1]
}

// AttrErr renders an error for log attributes; nil becomes an empty string.
func AttrErr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Preview shortens free text (prompts, replies) before it reaches the logs.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
