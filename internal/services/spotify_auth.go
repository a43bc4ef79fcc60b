package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/pkce"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// DefaultRedirectURI must match the redirect registered for the Spotify app.
	DefaultRedirectURI = "http://127.0.0.1:8080/callback"

	// fallbackExpiry applies when the provider omits expires_in.
	fallbackExpiry = time.Hour
)

// SpotifyScopes are requested on every authorization.
var SpotifyScopes = []string{
	"streaming",
	"user-read-email",
	"user-read-private",
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-library-read",
	"user-library-modify",
	"playlist-read-private",
	"playlist-modify-private",
	"playlist-modify-public",
}

// VerifierStore is the part of the credential store used by the authorization code exchange.
type VerifierStore interface {
	SaveVerifier(verifier string) error
	TakeVerifier() (string, bool, error)
	WriteSpotify(cred models.SpotifyCredential) error
}

// TokenExchangeError is returned when the accounts service rejects the code exchange.
type TokenExchangeError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenExchangeError) Error() string {
	msg := fmt.Sprintf("%s: status %d", shared.ErrTokenExchangeRejected, e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error {
	return shared.ErrTokenExchangeRejected
}

// SpotifyAuthOptions configures [SpotifyAuth].
type SpotifyAuthOptions struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	Store       VerifierStore
	HTTPClient  *http.Client
	Navigator   shared.Navigator
	Logger      *log.Logger
	Clock       shared.Clock
	// AuthURL and TokenURL override the accounts service endpoints.
	AuthURL  string
	TokenURL string
}

// SpotifyAuth runs the authorization code flow with PKCE for a public Spotify client.
type SpotifyAuth struct {
	config     *oauth2.Config
	store      VerifierStore
	httpClient *http.Client
	navigate   shared.Navigator
	logger     *log.Logger
	now        shared.Clock
}

// NewSpotifyAuth creates a [SpotifyAuth]. The client id is required; there is no client secret.
func NewSpotifyAuth(opts SpotifyAuthOptions) (*SpotifyAuth, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: credential store", shared.ErrMissingArgument)
	}
	if opts.RedirectURI == "" {
		opts.RedirectURI = DefaultRedirectURI
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = SpotifyScopes
	}
	if opts.AuthURL == "" {
		opts.AuthURL = spotifyAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Navigator == nil {
		opts.Navigator = shared.OpenBrowser
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock
	}

	return &SpotifyAuth{
		config: &oauth2.Config{
			ClientID:    opts.ClientID,
			RedirectURL: opts.RedirectURI,
			Scopes:      opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:      opts.Store,
		httpClient: opts.HTTPClient,
		navigate:   opts.Navigator,
		logger:     shared.WithLogger(opts.Logger, "component", "spotify-auth"),
		now:        opts.Clock,
	}, nil
}

// RedirectURI returns the callback URL sent with every authorization.
func (a *SpotifyAuth) RedirectURI() string {
	return a.config.RedirectURL
}

// AuthorizationURL builds the authorize URL for state and a PKCE pair.
func (a *SpotifyAuth) AuthorizationURL(state string, pair pkce.Pair) string {
	return a.config.AuthCodeURL(state, pair.AuthCodeOptions()...)
}

// BeginAuthorization persists a fresh verifier and sends the user to the authorize page.
// It returns the state the callback must echo back.
func (a *SpotifyAuth) BeginAuthorization(ctx context.Context) (string, error) {
	pair, err := pkce.New()
	if err != nil {
		return "", err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return "", err
	}

	if err := a.store.SaveVerifier(pair.Verifier); err != nil {
		return "", fmt.Errorf("failed to save verifier: %w", err)
	}

	authURL := a.AuthorizationURL(state, pair)
	a.logger.Debug("starting spotify authorization", "redirect_uri", a.config.RedirectURL)

	if err := a.navigate(authURL); err != nil {
		return "", fmt.Errorf("failed to open authorization page: %w", err)
	}
	return state, nil
}

// ExchangeCodeForToken trades an authorization code for a Spotify access token and stores it.
//
// The stored verifier is consumed before any network call, so a code can be exchanged at most once.
func (a *SpotifyAuth) ExchangeCodeForToken(ctx context.Context, code string) (*models.SpotifyCredential, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	verifier, ok, err := a.store.TakeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to read verifier: %w", err)
	}
	if !ok {
		return nil, shared.ErrMissingVerifier
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := a.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	if token.AccessToken == "" {
		return nil, shared.ErrMalformedTokenResponse
	}

	cred := &models.SpotifyCredential{
		AccessToken: token.AccessToken,
		ExpiresAt:   a.now().Add(tokenLifetime(token, a.now())),
	}
	if err := a.store.WriteSpotify(*cred); err != nil {
		return nil, fmt.Errorf("failed to store spotify token: %w", err)
	}

	a.logger.Info("spotify authorized", "expires_at", cred.ExpiresAt)
	return cred, nil
}

func tokenLifetime(token *oauth2.Token, now time.Time) time.Duration {
	if token.ExpiresIn > 0 {
		return time.Duration(token.ExpiresIn) * time.Second
	}
	if !token.Expiry.IsZero() && token.Expiry.After(now) {
		return token.Expiry.Sub(now)
	}
	return fallbackExpiry
}

func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &TokenExchangeError{
			StatusCode:  status,
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}

	return fmt.Errorf("%w: %v", shared.ErrMalformedTokenResponse, err)
}
