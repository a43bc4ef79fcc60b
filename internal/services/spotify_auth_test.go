package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/pkce"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"
	tu "github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/testing"
)

var now = time.Date(2025, 12, 1, 20, 0, 0, 0, time.UTC)

type authFixture struct {
	auth      *SpotifyAuth
	store     *store.Store
	transport *tu.CountingTransport
	opened    []string
}

func newAuthFixture(t *testing.T, tokenURL string) *authFixture {
	t.Helper()
	f := &authFixture{
		store:     store.New(store.NewMemoryBackend(), tu.NewFakeClock(now).Now),
		transport: tu.NewCountingTransport(http.DefaultTransport),
	}

	auth, err := NewSpotifyAuth(SpotifyAuthOptions{
		ClientID:    "top2000-client",
		RedirectURI: "http://127.0.0.1:8080/callback",
		Store:       f.store,
		HTTPClient:  &http.Client{Transport: f.transport},
		Navigator: func(target string) error {
			f.opened = append(f.opened, target)
			return nil
		},
		Clock:    tu.NewFakeClock(now).Now,
		TokenURL: tokenURL,
	})
	if err != nil {
		t.Fatalf("failed to create auth: %v", err)
	}
	f.auth = auth
	return f
}

func tokenServer(t *testing.T, status int, body map[string]any, form *url.Values) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if form != nil {
			*form = r.PostForm
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSpotifyAuth(t *testing.T) {
	t.Run("NewSpotifyAuth", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyAuth(SpotifyAuthOptions{Store: store.New(nil, nil)})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			auth, err := NewSpotifyAuth(SpotifyAuthOptions{ClientID: "id", Store: store.New(nil, nil)})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if auth.RedirectURI() != DefaultRedirectURI {
				t.Errorf("expected default redirect URI, got %s", auth.RedirectURI())
			}
		})
	})

	t.Run("BeginAuthorization", func(t *testing.T) {
		f := newAuthFixture(t, "")

		state, err := f.auth.BeginAuthorization(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.opened) != 1 {
			t.Fatalf("expected authorize page opened once, got %d", len(f.opened))
		}

		u, err := url.Parse(f.opened[0])
		if err != nil {
			t.Fatalf("invalid authorize URL: %v", err)
		}
		if u.Host != "accounts.spotify.com" || u.Path != "/authorize" {
			t.Errorf("unexpected authorize endpoint %s", u)
		}

		q := u.Query()
		verifier, ok, _ := f.store.TakeVerifier()
		if !ok || len(verifier) != pkce.DefaultVerifierLength {
			t.Fatalf("expected stored %d char verifier, got %q", pkce.DefaultVerifierLength, verifier)
		}

		want := map[string]string{
			"response_type":         "code",
			"client_id":             "top2000-client",
			"redirect_uri":          "http://127.0.0.1:8080/callback",
			"code_challenge_method": "S256",
			"code_challenge":        pkce.DeriveChallenge(verifier),
			"state":                 state,
			"scope":                 strings.Join(SpotifyScopes, " "),
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("%s: expected %q, got %q", k, v, got)
			}
		}
		if state == "" {
			t.Error("expected non-empty state")
		}
		if f.transport.Total() != 0 {
			t.Error("expected no network calls")
		}
	})

	t.Run("ExchangeCodeForToken", func(t *testing.T) {
		t.Run("Missing Verifier Makes No Calls", func(t *testing.T) {
			f := newAuthFixture(t, "http://accounts.test/api/token")

			_, err := f.auth.ExchangeCodeForToken(context.Background(), "code-1")
			if !errors.Is(err, shared.ErrMissingVerifier) {
				t.Fatalf("expected ErrMissingVerifier, got %v", err)
			}
			if f.transport.Total() != 0 {
				t.Errorf("expected zero network calls, got %d", f.transport.Total())
			}
			if _, ok := f.store.SpotifyToken(); ok {
				t.Error("expected no spotify token")
			}
		})

		t.Run("Success", func(t *testing.T) {
			var form url.Values
			server := tokenServer(t, http.StatusOK, map[string]any{
				"access_token": "S1",
				"token_type":   "Bearer",
				"expires_in":   3600,
			}, &form)
			f := newAuthFixture(t, server.URL)
			f.store.SaveVerifier("verifier-123")

			cred, err := f.auth.ExchangeCodeForToken(context.Background(), "code-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cred.AccessToken != "S1" || !cred.ExpiresAt.Equal(now.Add(time.Hour)) {
				t.Errorf("unexpected credential %+v", cred)
			}

			want := map[string]string{
				"grant_type":    "authorization_code",
				"code":          "code-1",
				"redirect_uri":  "http://127.0.0.1:8080/callback",
				"client_id":     "top2000-client",
				"code_verifier": "verifier-123",
			}
			for k, v := range want {
				if got := form.Get(k); got != v {
					t.Errorf("%s: expected %q, got %q", k, v, got)
				}
			}
			if form.Get("client_secret") != "" {
				t.Error("expected no client secret")
			}

			if token, ok := f.store.SpotifyToken(); !ok || token != "S1" {
				t.Errorf("expected stored token S1, got %q", token)
			}
			if _, ok, _ := f.store.TakeVerifier(); ok {
				t.Error("expected verifier consumed")
			}
		})

		t.Run("Rejected", func(t *testing.T) {
			server := tokenServer(t, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid authorization code",
			}, nil)
			f := newAuthFixture(t, server.URL)
			f.store.SaveVerifier("verifier-123")

			_, err := f.auth.ExchangeCodeForToken(context.Background(), "used-code")
			if !errors.Is(err, shared.ErrTokenExchangeRejected) {
				t.Fatalf("expected ErrTokenExchangeRejected, got %v", err)
			}

			var exchangeErr *TokenExchangeError
			if !errors.As(err, &exchangeErr) {
				t.Fatalf("expected *TokenExchangeError, got %T", err)
			}
			if exchangeErr.StatusCode != http.StatusBadRequest || exchangeErr.Code != "invalid_grant" ||
				exchangeErr.Description != "Invalid authorization code" {
				t.Errorf("unexpected exchange error %+v", exchangeErr)
			}

			_, err = f.auth.ExchangeCodeForToken(context.Background(), "used-code")
			if !errors.Is(err, shared.ErrMissingVerifier) {
				t.Errorf("expected second attempt to find no verifier, got %v", err)
			}
		})

		t.Run("Missing Access Token", func(t *testing.T) {
			server := tokenServer(t, http.StatusOK, map[string]any{"token_type": "Bearer", "expires_in": 3600}, nil)
			f := newAuthFixture(t, server.URL)
			f.store.SaveVerifier("verifier-123")

			_, err := f.auth.ExchangeCodeForToken(context.Background(), "code-1")
			if !errors.Is(err, shared.ErrMalformedTokenResponse) {
				t.Errorf("expected ErrMalformedTokenResponse, got %v", err)
			}
			if _, ok := f.store.SpotifyToken(); ok {
				t.Error("expected no spotify token")
			}
		})

		t.Run("Network Failure", func(t *testing.T) {
			server := tokenServer(t, http.StatusOK, nil, nil)
			server.Close()
			f := newAuthFixture(t, server.URL)
			f.store.SaveVerifier("verifier-123")

			_, err := f.auth.ExchangeCodeForToken(context.Background(), "code-1")
			if !errors.Is(err, shared.ErrNetwork) {
				t.Errorf("expected ErrNetwork, got %v", err)
			}
		})

		t.Run("Missing Code", func(t *testing.T) {
			f := newAuthFixture(t, "")
			f.store.SaveVerifier("verifier-123")

			if _, err := f.auth.ExchangeCodeForToken(context.Background(), ""); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
			if _, ok, _ := f.store.TakeVerifier(); !ok {
				t.Error("expected verifier kept")
			}
		})
	})
}
