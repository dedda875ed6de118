// Package poller periodically fetches the latest digest so the application
// layer always has a current one to render.
package poller

import (
	"context"
	"log"
	"time"

	"subsbuzz-client-go/internal/digest"
	"subsbuzz-client-go/internal/retry"
	"subsbuzz-client-go/pkg/models"
)

// Poller polls the latest digest on a fixed interval. Failed rounds are
// retried under the manual backoff policy (30s cap) before the poller goes
// back to sleep until the next round.
type Poller struct {
	digests  *digest.Service
	interval time.Duration
	policy   retry.Policy
	logger   *log.Logger
	onDigest func(*models.Digest)

	lastID string
}

// New creates a Poller. onDigest is invoked once per newly observed digest.
func New(digests *digest.Service, interval time.Duration, policy retry.Policy, logger *log.Logger, onDigest func(*models.Digest)) *Poller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Poller{
		digests:  digests,
		interval: interval,
		policy:   policy,
		logger:   logger,
		onDigest: onDigest,
	}
}

// Run polls until ctx is done. The first round runs immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one round, retrying under the manual policy.
func (p *Poller) poll(ctx context.Context) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		d, err := p.digests.Latest(ctx)
		if err == nil {
			p.deliver(d)
			return
		}
		lastErr = err

		if ctx.Err() != nil || !p.policy.ShouldRetry(err, attempt) {
			break
		}
		delay := p.policy.Delay(attempt)
		p.logger.Printf("poller: fetch failed (%v), retrying in %s", err, delay)
		if retry.Sleep(ctx, delay) != nil {
			break
		}
	}
	p.logger.Printf("poller: round failed: %v", lastErr)
}

func (p *Poller) deliver(d *models.Digest) {
	if d == nil || d.ID == p.lastID {
		return
	}
	p.lastID = d.ID
	if p.onDigest != nil {
		p.onDigest(d)
	}
}
