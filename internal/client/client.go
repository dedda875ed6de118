// Package client implements the authenticated request pipeline for the
// SubsBuzz API: it attaches credentials to every outbound request, recovers
// from expired access tokens through a single shared refresh, retries
// transient failures with capped exponential backoff, and surfaces every
// terminal failure as one normalized error shape.
package client

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"subsbuzz-client-go/internal/auth"
	"subsbuzz-client-go/internal/config"
	"subsbuzz-client-go/internal/retry"
)

// Client is the public entry point for all API calls. It is safe for
// concurrent use; per-request state never lives on the Client itself.
type Client struct {
	baseURL   string
	http      *http.Client
	store     auth.Store
	refresher *auth.Refresher
	policy    retry.Policy
	logger    *log.Logger
	onSignOut func()
}

// New creates a Client from configuration and a token store. The store is the
// only shared mutable resource; it is read at dispatch time and written only
// by the refresher or an explicit sign-out.
func New(cfg *config.Config, store auth.Store, logger *log.Logger) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("token store cannot be nil")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "subsbuzz: ", log.LstdFlags)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.RequestTimeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	policy := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay.Duration,
		CapDelay:   cfg.Retry.CapDelay.Duration,
	}
	if policy.BaseDelay <= 0 || policy.CapDelay <= 0 {
		policy = retry.Requests()
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		store:   store,
		policy:  policy,
		logger:  logger,
	}
	c.refresher = auth.NewRefresher(store, c.refreshTokens, timeout, logger)
	return c, nil
}

// SetSignOutHandler registers the hook fired when the session becomes
// unrecoverable, so the application layer can redirect to its signed-out
// state. Must be called before the client is shared between goroutines.
func (c *Client) SetSignOutHandler(fn func()) {
	c.onSignOut = fn
}

// AccessToken returns the current access token, or "" when anonymous.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	pair, err := c.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if pair == nil {
		return "", nil
	}
	return pair.AccessToken, nil
}

// SetTokens replaces the stored credential pair, e.g. after the application
// completes a sign-in through the identity provider.
func (c *Client) SetTokens(ctx context.Context, access, refresh string) error {
	if access == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	return c.store.Set(ctx, auth.TokenPair{AccessToken: access, RefreshToken: refresh})
}

// SignOut clears both stored tokens and notifies the application layer.
func (c *Client) SignOut(ctx context.Context) error {
	return c.signOut(ctx)
}

// TokenSource exposes the client's credentials as an oauth2.TokenSource for
// interop with transports built on golang.org/x/oauth2.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return auth.NewTokenSource(ctx, c.store, c.refresher)
}

func (c *Client) signOut(ctx context.Context) error {
	err := c.store.Clear(ctx)
	if err != nil {
		c.logger.Printf("sign-out: failed to clear token store: %v", err)
	}
	if c.onSignOut != nil {
		c.onSignOut()
	}
	return err
}
