package llm

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Middleware decorates an Engine with a cross-cutting concern.
type Middleware func(Engine) Engine

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Engine, mws ...Middleware) Engine {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit throttles Complete calls to rps with the given burst.
// rps <= 0 disables the limiter.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Engine) Engine {
		rl := newRPSLimiter(rps, burst)
		if rl == nil {
			return next
		}
		return &rateLimited{next: next, rl: rl}
	}
}

type rateLimited struct {
	next Engine
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }

func (c *rateLimited) Complete(ctx context.Context, r Request) (io.ReadCloser, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.Complete(ctx, r)
}

// -------- Logging --------

// WithLogging logs request size, time to first byte and total bytes streamed.
func WithLogging(logger *slog.Logger) Middleware {
	return func(next Engine) Engine {
		if logger == nil {
			return next
		}
		return &logged{next: next, log: logger}
	}
}

type logged struct {
	next Engine
	log  *slog.Logger
}

func (l *logged) Name() string { return l.next.Name() }

func (l *logged) Complete(ctx context.Context, r Request) (io.ReadCloser, error) {
	start := time.Now()
	body, err := l.next.Complete(ctx, r)
	if err != nil {
		l.log.WarnContext(ctx, "llm request failed",
			slog.String("engine", l.next.Name()),
			slog.Int("prompt_bytes", len(r.Prompt)),
			slog.Any("error", err))
		return nil, err
	}
	l.log.DebugContext(ctx, "llm request started",
		slog.String("engine", l.next.Name()),
		slog.Int("prompt_bytes", len(r.Prompt)),
		slog.Duration("ttfb", time.Since(start)))
	return &countingBody{ReadCloser: body, onClose: func(n int64) {
		l.log.DebugContext(ctx, "llm response drained",
			slog.String("engine", l.next.Name()),
			slog.Int64("bytes", n),
			slog.Duration("elapsed", time.Since(start)))
	}}, nil
}

type countingBody struct {
	io.ReadCloser
	n       int64
	onClose func(n int64)
	closed  bool
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingBody) Close() error {
	if !c.closed {
		c.closed = true
		c.onClose(c.n)
	}
	return c.ReadCloser.Close()
}
