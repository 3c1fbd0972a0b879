package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"
)

// HandlerMiddleware wraps a Handler, adding cross-cutting behaviour
// (logging, timeout, recovery, metrics) without changing the signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper (executed first on the request path).
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call to service with its duration.
func Logging(logger *slog.Logger, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			dur := time.Since(start)

			if err != nil {
				logger.WarnContext(ctx, "call failed",
					"service", service,
					"duration_ms", dur.Milliseconds(),
					"payload_bytes", len(payload),
					"error", err)
			} else {
				logger.DebugContext(ctx, "call ok",
					"service", service,
					"duration_ms", dur.Milliseconds(),
					"payload_bytes", len(payload),
					"response_bytes", len(resp))
			}
			return resp, err
		}
	}
}

// Timeout bounds each call to d. A call that runs out of time returns
// *ErrCallTimeout; cancellation by the caller is passed through unchanged.
func Timeout(d time.Duration, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			callCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			resp, err := next(callCtx, payload)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return nil, &ErrCallTimeout{Service: service, After: d, Cause: err}
			}
			return resp, err
		}
	}
}

// Recovery returns a middleware that catches panics in downstream handlers
// and converts them into errors instead of crashing the process.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "handler panic recovered",
						"panic", r,
						"stack", string(debug.Stack()))
					resp = nil
					err = &ErrPanic{Value: r}
				}
			}()
			return next(ctx, payload)
		}
	}
}
