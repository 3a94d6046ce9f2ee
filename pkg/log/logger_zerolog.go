package log

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ZeroLogger writes leveled, structured lines through zerolog. Notice maps to info with a
// notice flag, Critical to error with a critical flag; zerolog has no such levels.
type ZeroLogger struct {
	logger zerolog.Logger
	level  atomic.Int32
}

type ZeroOptions struct {
	Level     string
	Pretty    bool
	Output    io.Writer
	Component string
}

func NewZeroLogger(opts ZeroOptions) (*ZeroLogger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	level := ParseLevel(opts.Level)
	ctx := zerolog.New(out).Level(zerolog.TraceLevel).With().Timestamp()
	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}
	l := &ZeroLogger{logger: ctx.Logger()}
	l.level.Store(int32(level))
	return l, nil
}

// SetLevel changes the minimum level; config reloads call it.
func (l *ZeroLogger) SetLevel(level string) {
	l.level.Store(int32(ParseLevel(level)))
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *ZeroLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, zerolog.DebugLevel, "", format, args)
}

func (l *ZeroLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, zerolog.InfoLevel, "", format, args)
}

func (l *ZeroLogger) Notice(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, zerolog.InfoLevel, "notice", format, args)
}

func (l *ZeroLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, zerolog.WarnLevel, "", format, args)
}

func (l *ZeroLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, zerolog.ErrorLevel, "", format, args)
}

func (l *ZeroLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.write(ctx, zerolog.ErrorLevel, "critical", format, args)
}

func (l *ZeroLogger) write(ctx context.Context, level zerolog.Level, flag, format string, args []interface{}) {
	if level < zerolog.Level(l.level.Load()) {
		return
	}
	event := l.logger.WithLevel(level)
	if flag != "" {
		event = event.Bool(flag, true)
	}
	if fields := Fields(ctx); len(fields) > 0 {
		event = event.Fields(fields)
	}
	event.Msgf(format, args...)
}
