package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// tokenSource adapts the Store/Refresher pair to oauth2.TokenSource, so the
// credential set can be plugged into transports built on golang.org/x/oauth2.
type tokenSource struct {
	ctx       context.Context
	store     Store
	refresher *Refresher
}

// NewTokenSource returns an oauth2.TokenSource backed by the store. When no
// access token is stored it falls back to a coordinated refresh.
func NewTokenSource(ctx context.Context, store Store, refresher *Refresher) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, store: store, refresher: refresher}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	pair, err := ts.store.Get(ts.ctx)
	if err != nil {
		return nil, err
	}
	if pair == nil || pair.AccessToken == "" {
		fresh, err := ts.refresher.Refresh(ts.ctx)
		if err != nil {
			return nil, err
		}
		pair = &fresh
	}
	return &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}
