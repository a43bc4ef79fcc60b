package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/events"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"
)

// Navigation targets.
const (
	RouteHome  = "/"
	RouteLogin = "/login"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
)

// ProviderOptions configures a [Provider].
type ProviderOptions struct {
	BaseURL     string
	HTTPClient  *http.Client
	Store       *store.Store
	Events      *events.Broadcaster
	Coordinator *Coordinator
	Navigator   shared.Navigator
	Logger      *log.Logger
	Clock       shared.Clock
}

// Provider owns the application session: login, registration, logout and the response to invalidation.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	store      *store.Store
	events     *events.Broadcaster
	coord      *Coordinator
	navigate   shared.Navigator
	logger     *log.Logger
	now        shared.Clock

	mu      sync.RWMutex
	isAdmin bool

	unsubscribe []events.Unsubscribe
}

// NewProvider creates a [Provider] and registers it as the session invalidated listener.
func NewProvider(opts ProviderOptions) *Provider {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	if opts.Events == nil {
		opts.Events = events.New(opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock
	}
	if opts.Navigator == nil {
		opts.Navigator = func(string) error { return nil }
	}
	if opts.Coordinator == nil {
		opts.Coordinator = NewCoordinator(CoordinatorOptions{
			BaseURL:    opts.BaseURL,
			HTTPClient: opts.HTTPClient,
			Store:      opts.Store,
			Events:     opts.Events,
			Logger:     opts.Logger,
			Clock:      opts.Clock,
		})
	}

	p := &Provider{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		events:     opts.Events,
		coord:      opts.Coordinator,
		navigate:   opts.Navigator,
		logger:     shared.WithLogger(opts.Logger, "component", "auth"),
		now:        opts.Clock,
	}

	p.unsubscribe = append(p.unsubscribe,
		opts.Events.OnSessionInvalidated(p.HandleInvalidation),
		opts.Events.OnTokenRefreshed(func(e events.TokenRefreshed) { p.setAdmin(e.Token) }),
	)
	return p
}

// Coordinator returns the refresh coordinator backing this provider.
func (p *Provider) Coordinator() *Coordinator {
	return p.coord
}

// Login exchanges email and password for an application credential and navigates home.
//
// A rejected login returns an error wrapping [shared.ErrAuthFailed] and, when the API sent one,
// the parsed *gateway.Problem.
func (p *Provider) Login(ctx context.Context, email, password string) (models.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return models.Session{}, fmt.Errorf("%w: email and password", shared.ErrMissingArgument)
	}

	cred, err := p.authenticate(ctx, loginPath, map[string]string{"email": email, "password": password})
	if err != nil {
		return models.Session{}, err
	}
	if cred.AccessToken == "" {
		return models.Session{}, fmt.Errorf("%w: login response has no token", shared.ErrMalformedTokenResponse)
	}

	if err := p.establish(cred); err != nil {
		return models.Session{}, err
	}
	p.logger.Info("logged in", "email", email)
	p.redirect(RouteHome)
	return p.Session(), nil
}

// Register creates an account. When the API withholds a token (email confirmation pending) it
// navigates to the login route and returns [shared.ErrConfirmationRequired].
func (p *Provider) Register(ctx context.Context, email, password, confirm string) (models.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return models.Session{}, fmt.Errorf("%w: email and password", shared.ErrMissingArgument)
	}
	if password != confirm {
		return models.Session{}, fmt.Errorf("%w: passwords do not match", shared.ErrInvalidInput)
	}

	cred, err := p.authenticate(ctx, registerPath, map[string]string{
		"email":           email,
		"password":        password,
		"confirmPassword": confirm,
	})
	if err != nil {
		return models.Session{}, err
	}

	if cred.AccessToken == "" {
		p.logger.Info("registered, confirmation pending", "email", email)
		p.redirect(RouteLogin)
		return models.Session{}, shared.ErrConfirmationRequired
	}

	if err := p.establish(cred); err != nil {
		return models.Session{}, err
	}
	p.logger.Info("registered", "email", email)
	p.redirect(RouteHome)
	return p.Session(), nil
}

func (p *Provider) authenticate(ctx context.Context, path string, payload map[string]string) (models.ApplicationCredential, error) {
	status, body, err := postJSON(ctx, p.httpClient, p.baseURL+path, payload)
	if err != nil {
		return models.ApplicationCredential{}, err
	}
	if !shared.Is2xx(status) {
		return models.ApplicationCredential{}, statusError(shared.ErrAuthFailed, status, body)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return models.ApplicationCredential{}, nil
	}
	return parseTokenResponse(body, p.now())
}

// establish persists a fresh credential and arms the proactive refresh.
func (p *Provider) establish(cred models.ApplicationCredential) error {
	if err := p.store.WriteApplication(cred); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	p.setAdmin(cred.AccessToken)
	p.coord.ScheduleProactiveRefresh(cred.ExpiresAt)
	return nil
}

// Logout ends the session locally and navigates to the login route.
func (p *Provider) Logout() error {
	if err := p.end(); err != nil {
		return err
	}
	p.logger.Info("logged out")
	p.redirect(RouteLogin)
	return nil
}

// HandleInvalidation is the canonical session invalidated listener.
func (p *Provider) HandleInvalidation(e events.SessionInvalidated) {
	p.logger.Warn("session invalidated", "reason", e.Reason)
	if err := p.end(); err != nil {
		p.logger.Error("failed to clear session", "error", err)
	}
	p.redirect(RouteLogin)
}

func (p *Provider) end() error {
	p.coord.Stop()
	p.mu.Lock()
	p.isAdmin = false
	p.mu.Unlock()
	if err := p.store.ClearApplication(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// Restore resumes a stored session at startup, scheduling its refresh.
func (p *Provider) Restore() models.Session {
	cred, err := p.store.ReadApplication()
	if err != nil {
		p.logger.Warn("failed to read stored session", "error", err)
		return models.Session{}
	}
	if cred == nil {
		return models.Session{}
	}

	p.setAdmin(cred.AccessToken)
	p.coord.ScheduleProactiveRefresh(cred.ExpiresAt)
	return p.Session()
}

// Session returns a snapshot of the current login state.
func (p *Provider) Session() models.Session {
	cred, err := p.store.ReadApplication()
	if err != nil || cred == nil {
		return models.Session{}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return models.Session{Authenticated: true, IsAdmin: p.isAdmin, ExpiresAt: cred.ExpiresAt}
}

// Close unregisters the provider's listeners and stops the coordinator.
func (p *Provider) Close() {
	for _, unsub := range p.unsubscribe {
		unsub()
	}
	p.unsubscribe = nil
	p.coord.Stop()
}

func (p *Provider) setAdmin(token string) {
	admin := IsAdmin(token)
	if v, ok := adminOverride(p.store); ok {
		admin = v
	}

	p.mu.Lock()
	p.isAdmin = admin
	p.mu.Unlock()
}

func (p *Provider) redirect(route string) {
	if err := p.navigate(route); err != nil {
		p.logger.Warn("navigation failed", "route", route, "error", err)
	}
}
