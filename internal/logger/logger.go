package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	RequestIDKey    contextKey = "request_id"
	AWSRequestIDKey contextKey = "aws_request_id"
	FunctionARNKey  contextKey = "function_arn"
	SourceIPKey     contextKey = "source_ip"
	SubjectKey      contextKey = "subject"
)

var (
	level         = new(slog.LevelVar)
	defaultLogger = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetOutput redirects all package level logging to w.
func SetOutput(w io.Writer) {
	defaultLogger = newLogger(w)
}

// SetDebug toggles debug level output.
func SetDebug(debug bool) {
	if debug {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelInfo)
}

func Info(ctx context.Context, msg string, attrs ...any) {
	attrs = appendContextAttrs(ctx, attrs)
	defaultLogger.InfoContext(ctx, msg, attrs...)
}

func Warn(ctx context.Context, msg string, attrs ...any) {
	attrs = appendContextAttrs(ctx, attrs)
	defaultLogger.WarnContext(ctx, msg, attrs...)
}

func Error(ctx context.Context, msg string, attrs ...any) {
	attrs = appendContextAttrs(ctx, attrs)
	defaultLogger.ErrorContext(ctx, msg, attrs...)
}

func Debug(ctx context.Context, msg string, attrs ...any) {
	attrs = appendContextAttrs(ctx, attrs)
	defaultLogger.DebugContext(ctx, msg, attrs...)
}

func appendContextAttrs(ctx context.Context, attrs []any) []any {
	if ctx == nil {
		return attrs
	}
	for _, key := range []contextKey{RequestIDKey, AWSRequestIDKey, FunctionARNKey, SourceIPKey, SubjectKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}
