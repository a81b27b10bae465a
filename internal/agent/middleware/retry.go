package middleware

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy wraps a single invocation with bounded retries, exponential
// backoff and jitter. Every error is treated as potentially transient; no
// classification by error kind happens here. When the budget is exhausted
// the last error is returned to the caller unchanged.
type RetryPolicy struct {
	// Middleware names the policy in emitted events, e.g. "retry_model".
	Middleware    string
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64

	// Sleep overrides the backoff wait. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration)
	// Jitter overrides jitter sampling. Nil draws uniformly from
	// [0, 0.5*delay).
	Jitter func(delay time.Duration) time.Duration
}

// Do executes fn until it succeeds or the attempt budget runs out. subject
// is the human-readable name of the wrapped call ("Model call",
// "Tool 'get_weather_forecast'") and base carries details attached to every
// emitted event.
func (p RetryPolicy) Do(ctx context.Context, sink *Sink, subject string, base map[string]interface{}, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				sink.Emit(p.Middleware, StatusRecovered,
					fmt.Sprintf("%s succeeded after %d attempts", subject, attempt+1),
					withDetails(base, map[string]interface{}{"attempts": attempt + 1}))
			} else {
				sink.Emit(p.Middleware, StatusSuccess,
					fmt.Sprintf("%s succeeded on first attempt", subject), base)
			}
			return nil
		}
		if attempt == attempts-1 {
			sink.Emit(p.Middleware, StatusFailed,
				fmt.Sprintf("%s failed after %d attempts", subject, attempts),
				withDetails(base, map[string]interface{}{"error": err.Error(), "attempts": attempts}))
			return err
		}
		delay := time.Duration(float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt)))
		wait := delay + p.jitter(delay)
		sink.Emit(p.Middleware, StatusRetrying,
			fmt.Sprintf("%s attempt %d/%d failed, retrying in %.1fs", subject, attempt+1, attempts, wait.Seconds()),
			withDetails(base, map[string]interface{}{
				"error":   err.Error(),
				"attempt": attempt + 1,
				"delay_s": wait.Seconds(),
			}))
		p.sleep(ctx, wait)
	}
}

func (p RetryPolicy) jitter(delay time.Duration) time.Duration {
	if p.Jitter != nil {
		return p.Jitter(delay)
	}
	return time.Duration(rand.Float64() * 0.5 * float64(delay))
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(ctx, d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func withDetails(base, extra map[string]interface{}) map[string]interface{} {
	if base == nil && extra == nil {
		return nil
	}
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
