package logging

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Throttled wraps base so that Warn and Error records are emitted at most at
// the given rate. Suppressed records are counted and the count is attached to
// the next record that gets through as "suppressed". Debug and Info pass
// through unchanged.
//
// The packet path uses this so malformed samples arriving every slot cannot
// flood the log.
func Throttled(base Logger, limit rate.Limit, burst int) Logger {
	return &throttled{
		base:    OrNoop(base),
		limiter: rate.NewLimiter(limit, burst),
		dropped: new(atomic.Uint64),
	}
}

type throttled struct {
	base    Logger
	limiter *rate.Limiter
	dropped *atomic.Uint64
}

func (t *throttled) With(fields ...Field) Logger {
	// Derived loggers share the limiter so the budget stays global.
	return &throttled{base: t.base.With(fields...), limiter: t.limiter, dropped: t.dropped}
}

func (t *throttled) Debug(ctx context.Context, msg string, fields ...Field) {
	t.base.Debug(ctx, msg, fields...)
}

func (t *throttled) Info(ctx context.Context, msg string, fields ...Field) {
	t.base.Info(ctx, msg, fields...)
}

func (t *throttled) Warn(ctx context.Context, msg string, fields ...Field) {
	if fields, ok := t.admit(fields); ok {
		t.base.Warn(ctx, msg, fields...)
	}
}

func (t *throttled) Error(ctx context.Context, msg string, fields ...Field) {
	if fields, ok := t.admit(fields); ok {
		t.base.Error(ctx, msg, fields...)
	}
}

func (t *throttled) admit(fields []Field) ([]Field, bool) {
	if !t.limiter.Allow() {
		t.dropped.Add(1)
		return nil, false
	}
	if n := t.dropped.Swap(0); n > 0 {
		fields = append(fields, Uint64("suppressed", n))
	}
	return fields, true
}
