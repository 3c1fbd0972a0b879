package connectivity

import (
	"context"
	"time"

	"github.com/hazyhaar/originality/observability"
)

// WithObservability records the duration of every call to service and
// counts the failures. A nil manager disables recording.
func WithObservability(mm *observability.MetricsManager, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		if mm == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			mm.Observe(observability.MetricProviderDurationMs,
				float64(time.Since(start).Milliseconds()), "milliseconds", "provider", service)
			if err != nil {
				mm.Count(observability.MetricProviderError, "provider", service)
			}
			return resp, err
		}
	}
}
