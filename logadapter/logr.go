package logadapter

import (
	"errors"

	"github.com/Swind/go-task-engine/core"
	"github.com/go-logr/logr"
)

// logr verbosity used for Debug messages.
const debugV = 1

// Logr writes core.Logger calls to a logr.Logger. Warn is reported as Info
// with a "severity" key since logr has no warning severity.
type Logr struct {
	logger logr.Logger
}

var _ core.Logger = (*Logr)(nil)

func NewLogr(logger logr.Logger) *Logr {
	return &Logr{logger: logger}
}

func (l *Logr) Debug(msg string, fields ...core.Field) {
	l.logger.V(debugV).Info(msg, keysAndValues(fields)...)
}

func (l *Logr) Info(msg string, fields ...core.Field) {
	l.logger.Info(msg, keysAndValues(fields)...)
}

func (l *Logr) Warn(msg string, fields ...core.Field) {
	l.logger.Info(msg, append([]any{"severity", "warn"}, keysAndValues(fields)...)...)
}

// Error passes the first error-valued field as logr's err argument.
func (l *Logr) Error(msg string, fields ...core.Field) {
	var err error
	rest := make([]core.Field, 0, len(fields))
	for _, f := range fields {
		if e, ok := f.Value.(error); ok && err == nil {
			err = e
			continue
		}
		rest = append(rest, f)
	}
	if err == nil {
		err = errors.New(msg)
	}
	l.logger.Error(err, msg, keysAndValues(rest)...)
}

func keysAndValues(fields []core.Field) []any {
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}
