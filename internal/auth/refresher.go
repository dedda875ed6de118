package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"subsbuzz-client-go/internal/metrics"
)

// ErrNoRefreshToken is returned when a refresh is requested but no refresh
// token is stored. There is nothing to refresh with, so no transport call is
// made; the session cannot be recovered.
var ErrNoRefreshToken = errors.New("no refresh token available")

// RefreshFunc performs the actual refresh transport call and returns the new
// token pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

type refreshResult struct {
	pair TokenPair
	err  error
}

// Refresher guarantees at most one refresh transport call is outstanding at a
// time. Concurrent callers are queued and settled with the single shared
// outcome, in the order they arrived.
//
// On success the new pair is stored before any waiter is settled, so a settled
// caller always observes the new token in the Store. On failure the store is
// cleared once and every waiter receives the same error.
type Refresher struct {
	store   Store
	refresh RefreshFunc
	timeout time.Duration
	logger  *log.Logger

	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshResult
}

// NewRefresher creates a Refresher around the given store and transport call.
// timeout bounds the shared refresh call; it keeps running even if the caller
// that started it goes away, because the queued waiters still need the result.
func NewRefresher(store Store, fn RefreshFunc, timeout time.Duration, logger *log.Logger) *Refresher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Refresher{
		store:   store,
		refresh: fn,
		timeout: timeout,
		logger:  logger,
	}
}

// Refresh obtains a fresh token pair. If a refresh is already in flight the
// call joins its queue instead of issuing a second transport call. Cancelling
// ctx abandons only this caller; the shared refresh continues for the rest.
func (r *Refresher) Refresh(ctx context.Context) (TokenPair, error) {
	ch := make(chan refreshResult, 1)

	r.mu.Lock()
	r.waiters = append(r.waiters, ch)
	leader := !r.inFlight
	if leader {
		r.inFlight = true
	}
	r.mu.Unlock()

	if leader {
		go r.run(ctx)
	} else {
		metrics.RefreshWaiters.Inc()
		defer metrics.RefreshWaiters.Dec()
	}

	select {
	case res := <-ch:
		return res.pair, res.err
	case <-ctx.Done():
		return TokenPair{}, ctx.Err()
	}
}

// run executes the single shared refresh attempt and settles the queue.
// It is detached from the initiating caller's cancellation.
func (r *Refresher) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	pair, err := r.attempt(ctx)
	if err != nil {
		// Uniform failure: no waiter proceeds with a half-valid session.
		if clearErr := r.store.Clear(ctx); clearErr != nil {
			r.logger.Printf("refresher: failed to clear token store: %v", clearErr)
		}
		r.settle(TokenPair{}, err)
		return
	}

	if setErr := r.store.Set(ctx, pair); setErr != nil {
		r.settle(TokenPair{}, fmt.Errorf("failed to store refreshed tokens: %w", setErr))
		return
	}
	r.settle(pair, nil)
}

// attempt performs one refresh transport call using the stored refresh token.
func (r *Refresher) attempt(ctx context.Context) (TokenPair, error) {
	current, err := r.store.Get(ctx)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to read token store: %w", err)
	}
	if current == nil || current.RefreshToken == "" {
		return TokenPair{}, ErrNoRefreshToken
	}

	metrics.TokenRefreshes.Inc()
	fresh, err := r.refresh(ctx, current.RefreshToken)
	if err != nil {
		metrics.TokenRefreshFailures.Inc()
		return TokenPair{}, fmt.Errorf("token refresh failed: %w", err)
	}
	if fresh.AccessToken == "" {
		metrics.TokenRefreshFailures.Inc()
		return TokenPair{}, errors.New("token refresh returned an empty access token")
	}

	// Keep the old refresh token when the server rotates only the access token.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}
	return fresh, nil
}

// settle delivers the shared outcome to every queued waiter in FIFO order,
// clears the queue, and reopens the gate.
func (r *Refresher) settle(pair TokenPair, err error) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.inFlight = false
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{pair: pair, err: err}
	}
}
