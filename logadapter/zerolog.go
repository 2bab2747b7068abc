// Package logadapter maps core.Logger onto third-party logging backends.
package logadapter

import (
	"github.com/Swind/go-task-engine/core"
	"github.com/rs/zerolog"
)

// Zerolog writes core.Logger calls to a zerolog.Logger.
type Zerolog struct {
	logger zerolog.Logger
}

var _ core.Logger = (*Zerolog)(nil)

func NewZerolog(logger zerolog.Logger) *Zerolog {
	return &Zerolog{logger: logger}
}

func (z *Zerolog) Debug(msg string, fields ...core.Field) {
	withFields(z.logger.Debug(), fields).Msg(msg)
}

func (z *Zerolog) Info(msg string, fields ...core.Field) {
	withFields(z.logger.Info(), fields).Msg(msg)
}

func (z *Zerolog) Warn(msg string, fields ...core.Field) {
	withFields(z.logger.Warn(), fields).Msg(msg)
}

func (z *Zerolog) Error(msg string, fields ...core.Field) {
	withFields(z.logger.Error(), fields).Msg(msg)
}

// withFields is a no-op on a disabled event (nil *zerolog.Event).
func withFields(ev *zerolog.Event, fields []core.Field) *zerolog.Event {
	if ev == nil {
		return ev
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			ev = ev.AnErr(f.Key, v)
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case bool:
			ev = ev.Bool(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	return ev
}

// ZerologLevel converts a core.LogLevel to the zerolog equivalent.
func ZerologLevel(level core.LogLevel) zerolog.Level {
	switch level {
	case core.LevelDebug:
		return zerolog.DebugLevel
	case core.LevelInfo:
		return zerolog.InfoLevel
	case core.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
