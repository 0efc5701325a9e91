package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// slogLogger writes glog calls as JSON records on stderr.
type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func (l slogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.logger.Log(ctx, level, msg, args...)
}

func (l slogLogger) Trace(msg string, args ...any) { l.log(slog.LevelDebug-4, msg, args...) }
func (l slogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l slogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l slogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l slogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l slogLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError+4, msg, args...)
	os.Exit(1)
}

func (l slogLogger) WithContext(ctx context.Context) glog.Logger {
	return slogLogger{logger: l.logger, ctx: ctx}
}

type slogProvider struct {
	root *slog.Logger
}

func newLoggerProvider(level string) glog.LoggerProvider {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})
	return slogProvider{root: slog.New(handler)}
}

func (p slogProvider) GetLogger(name string) glog.Logger {
	return slogLogger{logger: p.root.With("logger", name)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return slog.LevelDebug - 4
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
