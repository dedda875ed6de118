package retry

import (
	"context"
	"time"

	"subsbuzz-client-go/internal/apierr"
)

// Defaults for the two policies. Automatic request-level retries cap the
// backoff at 10s; the manual helper used between polling rounds caps at 30s.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1000 * time.Millisecond
	RequestCapDelay   = 10 * time.Second
	ManualCapDelay    = 30 * time.Second
)

// Policy decides, per failed attempt, whether and after how long to retry.
// MaxRetries counts retries after the first attempt, so the total attempt
// budget is MaxRetries+1.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration
}

// Requests returns the policy applied automatically inside the request
// pipeline: 3 retries, 1s base delay, 10s cap.
func Requests() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		CapDelay:   RequestCapDelay,
	}
}

// Manual returns the policy for caller-driven retry loops such as the digest
// poller. Same delay formula, its own attempt budget, 30s cap.
func Manual(maxRetries int) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  DefaultBaseDelay,
		CapDelay:   ManualCapDelay,
	}
}

// ShouldRetry reports whether another attempt is permitted. attempt is the
// number of retries already performed for this logical request.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	return apierr.IsRetryable(err)
}

// Delay returns the backoff before retry n (0-based): min(base*2^n, cap).
// No jitter.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.CapDelay {
			return p.CapDelay
		}
	}
	if d > p.CapDelay {
		return p.CapDelay
	}
	return d
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
