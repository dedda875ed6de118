package client

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsbuzz-client-go/internal/apierr"
	"subsbuzz-client-go/internal/auth"
	"subsbuzz-client-go/internal/config"
)

func newTestClient(t *testing.T, baseURL string, store auth.Store) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.RequestTimeout = config.Duration{Duration: 2 * time.Second}
	cfg.Retry.MaxRetries = 3
	cfg.Retry.BaseDelay = config.Duration{Duration: time.Millisecond}
	cfg.Retry.CapDelay = config.Duration{Duration: 5 * time.Millisecond}

	c, err := New(cfg, store, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return c
}

func signedInStore(t *testing.T) *auth.MemoryStore {
	t.Helper()
	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), auth.TokenPair{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-1",
	}))
	return store
}

func TestExecute_EnvelopeTolerance(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"enveloped", `{"data": {"id": 1}}`},
		{"bare", `{"id": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, auth.NewMemoryStore())
			var out struct {
				ID int `json:"id"`
			}
			require.NoError(t, c.Execute(context.Background(), http.MethodGet, "/thing", nil, &out))
			assert.Equal(t, 1, out.ID)
		})
	}
}

func TestExecute_AttachesCredentialsAndRequestID(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, signedInStore(t))
	require.NoError(t, c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil))
	assert.Equal(t, "Bearer stale-access", gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestExecute_AnonymousWithoutToken(t *testing.T) {
	var gotAuth string
	var sawHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, sawHeader = r.Header["Authorization"]
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth.NewMemoryStore())
	require.NoError(t, c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil))
	assert.Empty(t, gotAuth)
	assert.False(t, sawHeader, "anonymous requests carry no Authorization header")
}

func TestExecute_RefreshAndReplayOn401(t *testing.T) {
	var refreshCalls, apiCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-1", body.RefreshToken)
		io.WriteString(w, `{"accessToken": "fresh-access", "refreshToken": "refresh-2"}`)
	})
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh-access" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail": "Token has expired"}`)
			return
		}
		io.WriteString(w, `{"data": {"id": 7}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := signedInStore(t)
	c := newTestClient(t, srv.URL, store)

	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, c.Execute(context.Background(), http.MethodGet, "/thing", nil, &out))
	assert.Equal(t, 7, out.ID)
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, int32(2), apiCalls.Load(), "original dispatch plus one replay")

	pair, err := store.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "fresh-access", pair.AccessToken)
	assert.Equal(t, "refresh-2", pair.RefreshToken)
}

func TestExecute_SecondAuthFailureSurfaces(t *testing.T) {
	var refreshCalls, apiCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		io.WriteString(w, `{"accessToken": "fresh-access"}`)
	})
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail": "still unauthorized"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, signedInStore(t))
	err := c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil)

	require.Error(t, err)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusUnauthorized, e.Status)
	assert.Equal(t, int32(1), refreshCalls.Load(), "only one refresh per request chain")
	assert.Equal(t, int32(2), apiCalls.Load(), "no second auth replay")
}

func TestExecute_RefreshFailureSignsOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"detail": "refresh token revoked"}`)
	})
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := signedInStore(t)
	c := newTestClient(t, srv.URL, store)

	var signedOut atomic.Bool
	c.SetSignOutHandler(func() { signedOut.Store(true) })

	err := c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil)
	require.Error(t, err)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.CodeAuthFailed, e.Code)
	assert.True(t, signedOut.Load(), "sign-out hook must fire")

	pair, getErr := store.Get(context.Background())
	require.NoError(t, getErr)
	assert.Nil(t, pair, "tokens cleared on fatal auth failure")
}

func TestExecute_CancellationDuringRefreshDoesNotSignOut(t *testing.T) {
	refreshStarted := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		close(refreshStarted)
		<-release
		io.WriteString(w, `{"accessToken": "fresh-access", "refreshToken": "refresh-2"}`)
	})
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-access" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail": "Token has expired"}`)
			return
		}
		io.WriteString(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := signedInStore(t)
	c := newTestClient(t, srv.URL, store)

	var signedOut atomic.Bool
	c.SetSignOutHandler(func() { signedOut.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-refreshStarted
		cancel()
	}()

	err := c.Execute(ctx, http.MethodGet, "/thing", nil, nil)
	require.Error(t, err)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.CodeCanceled, e.Code, "a cancelled wait is cancellation, not auth failure")
	assert.False(t, signedOut.Load(), "cancellation must not fire the global sign-out")

	// The shared refresh keeps running and its result still lands in the
	// store, untouched by the cancelled caller.
	close(release)
	require.Eventually(t, func() bool {
		pair, getErr := store.Get(context.Background())
		return getErr == nil && pair != nil && pair.AccessToken == "fresh-access"
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, signedOut.Load())
}

func TestExecute_NoRefreshTokenIsFatal(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), auth.TokenPair{AccessToken: "access-only"}))
	c := newTestClient(t, srv.URL, store)

	err := c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil)
	require.Error(t, err)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.CodeAuthFailed, e.Code)
	assert.ErrorIs(t, err, auth.ErrNoRefreshToken, "the sentinel stays reachable through the normalized error")
	assert.Equal(t, int32(0), refreshCalls.Load(), "no transport call without a refresh token")
}

func TestExecute_RetriesTransientServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, `{"ok": true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth.NewMemoryStore())
	require.NoError(t, c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil))
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_RetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth.NewMemoryStore())
	err := c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil)

	require.Error(t, err)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusServiceUnavailable, e.Status)
	assert.Equal(t, int32(4), calls.Load(), "first attempt plus three retries")
}

func TestExecute_ClientErrorsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code": "VALIDATION", "message": "bad field"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, auth.NewMemoryStore())
	err := c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil)

	require.Error(t, err)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "VALIDATION", e.Code)
	assert.Equal(t, "bad field", e.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_NetworkFailureRetriedThenNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing is listening anymore

	c := newTestClient(t, url, auth.NewMemoryStore())
	err := c.Execute(context.Background(), http.MethodGet, "/thing", nil, nil)

	require.Error(t, err)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.CodeNetwork, e.Code)
	assert.Zero(t, e.Status)
}

func TestExecute_CancellationDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.BaseURL = srv.URL
	cfg.Retry.MaxRetries = 3
	cfg.Retry.BaseDelay = config.Duration{Duration: time.Minute}
	cfg.Retry.CapDelay = config.Duration{Duration: time.Minute}
	c, err := New(cfg, auth.NewMemoryStore(), log.New(io.Discard, "", 0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	execErr := c.Execute(ctx, http.MethodGet, "/thing", nil, nil)
	require.Error(t, execErr)
	assert.Less(t, time.Since(start), 5*time.Second, "backoff must abort on cancellation")

	var e *apierr.Error
	require.ErrorAs(t, execErr, &e)
	assert.Equal(t, apierr.CodeCanceled, e.Code)
}
