// Package monstralog provides the leveled structured logger every
// task-facing component (singleflighttask, keyedtaskmanager, and
// optionally cacheengine) accepts as a collaborator. It wraps
// github.com/rs/zerolog the way GabrielNunesIT/go-libs/logger does: a
// small leveled interface over a zerolog.Logger, with a console writer as
// the default implementation and a no-op default so components never need
// a nil check on their hot path.
package monstralog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the leveled logging surface Monstra components depend on.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)

	// With returns a derived Logger that always attaches the given
	// key/value pairs, e.g. With("component", "keyedtaskmanager").
	With(kv ...any) Logger
}

// Noop discards every log call. It is the default used by components
// whose Options.Logger is left nil, mirroring metrics.NoopCache.
type Noop struct{}

func (Noop) Debug(string, ...any)        {}
func (Noop) Info(string, ...any)         {}
func (Noop) Warn(string, ...any)         {}
func (Noop) Error(string, error, ...any) {}
func (n Noop) With(...any) Logger        { return n }

// zl adapts a zerolog.Logger to the Logger interface.
type zl struct {
	z zerolog.Logger
}

// NewConsole returns a Logger backed by zerolog's console writer, writing
// RFC3339 UTC timestamps to out.
func NewConsole(out io.Writer, level zerolog.Level) Logger {
	writer := zerolog.ConsoleWriter{
		Out:          out,
		TimeFormat:   time.RFC3339,
		TimeLocation: time.UTC,
	}
	z := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return &zl{z: z}
}

// Default returns a console Logger writing to stderr at Info level.
func Default() Logger {
	return NewConsole(os.Stderr, zerolog.InfoLevel)
}

func (l *zl) Debug(msg string, kv ...any) { l.event(l.z.Debug(), kv).Msg(msg) }
func (l *zl) Info(msg string, kv ...any)  { l.event(l.z.Info(), kv).Msg(msg) }
func (l *zl) Warn(msg string, kv ...any)  { l.event(l.z.Warn(), kv).Msg(msg) }

func (l *zl) Error(msg string, err error, kv ...any) {
	ev := l.z.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	l.event(ev, kv).Msg(msg)
}

func (l *zl) With(kv ...any) Logger {
	ctx := l.z.With()
	ctx = applyFields(ctx, kv)
	return &zl{z: ctx.Logger()}
}

func (l *zl) event(ev *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	return ev
}

func applyFields(ctx zerolog.Context, kv []any) zerolog.Context {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return ctx
}

var (
	_ Logger = (*zl)(nil)
	_ Logger = Noop{}
)
