package connectivity

import (
	"context"
	"log/slog"
)

// FallbackHook is told about every remote failure that was answered locally.
type FallbackHook func(ctx context.Context, service string, remoteErr error)

// WithFallback answers from local when the wrapped (remote) handler fails.
// A nil local disables the fallback. Context cancellation is not retried
// locally: the caller gave up, the remote did not fail.
func WithFallback(local Handler, service string, logger *slog.Logger, hooks ...FallbackHook) HandlerMiddleware {
	return func(next Handler) Handler {
		if local == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			resp, err := next(ctx, payload)
			if err == nil {
				return resp, nil
			}
			if ctx.Err() != nil {
				return nil, err
			}

			if logger != nil {
				logger.WarnContext(ctx, "remote failed, falling back to local",
					"service", service,
					"remote_error", err)
			}
			for _, h := range hooks {
				h(ctx, service, err)
			}
			return local(ctx, payload)
		}
	}
}
