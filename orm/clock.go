package orm

import (
	"context"
	"time"
)

// Clock stamps created_at and updated_at and feeds the Now default.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type clockKey struct{}

// WithClock returns a child context whose writes read the time from c.
func WithClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, c)
}

// now reads the Clock of ctx, falling back to the wall clock. Times are
// truncated to microseconds, the finest precision any dialect stores, so
// an instance holds the same value a reload would return.
func now(ctx context.Context) time.Time {
	if c, ok := ctx.Value(clockKey{}).(Clock); ok {
		return c.Now().Truncate(time.Microsecond)
	}
	return time.Now().Truncate(time.Microsecond)
}
