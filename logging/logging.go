// Package logging adapts zap loggers to the orm query hooks.
package logging

import (
	"context"

	"go.uber.org/zap"

	"github.com/mickamy/ormgraph/orm"
)

// Observer returns an orm.Observer that writes one entry per event to l.
// Failed statements are logged at error level, everything else at debug.
func Observer(l *zap.Logger) orm.Observer {
	return func(_ context.Context, e orm.Event) {
		fields := []zap.Field{
			zap.Stringer("kind", e.Kind),
			zap.Duration("duration", e.Duration),
		}
		if e.SQL != "" {
			fields = append(fields, zap.String("sql", e.SQL))
		}
		if len(e.Args) > 0 {
			fields = append(fields, zap.Any("args", e.Args))
		}
		if e.Err != nil {
			l.Error("orm", append(fields, zap.Error(e.Err))...)
			return
		}
		l.Debug("orm", fields...)
	}
}

// Logger implements orm.Logger on top of zap, for use with DB.Debug.
type Logger struct {
	l *zap.Logger
}

// NewLogger wraps l. A nil l logs nothing.
func NewLogger(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{l: l}
}

func (z *Logger) Log(_ context.Context, query string, args ...any) {
	z.l.Info(query, zap.Any("args", args))
}

var _ orm.Logger = (*Logger)(nil)
