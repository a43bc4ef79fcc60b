// Package auth keeps the application session alive.
//
// The [Coordinator] refreshes the application credential ahead of its expiry and on demand for the
// request gateway; concurrent refresh requests share one in-flight attempt. The [Provider] implements
// login, registration and logout on top of it and listens for the session invalidated signal.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/events"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"
)

const (
	// DefaultLeadTime is how long before expiry the proactive refresh fires.
	DefaultLeadTime = 60 * time.Second
	// DefaultRetryDelay re-arms the proactive refresh after a transport failure.
	DefaultRetryDelay = 15 * time.Second
	// minReschedule keeps a server that issues tokens shorter than the lead time from causing a refresh loop.
	minReschedule = 5 * time.Second

	refreshPath = "/auth/refresh-token"
)

// ErrMalformedRefresh is returned when a 2xx refresh response carries no access token.
var ErrMalformedRefresh = fmt.Errorf("%w: %w", shared.ErrRefreshRejected, shared.ErrMalformedTokenResponse)

// State is the coordinator lifecycle state.
type State int

const (
	Idle State = iota
	ScheduledPending
	Refreshing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ScheduledPending:
		return "scheduled"
	case Refreshing:
		return "refreshing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a [Timer] that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// CoordinatorOptions configures a [Coordinator].
type CoordinatorOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      *store.Store
	Events     *events.Broadcaster
	Logger     *log.Logger
	Clock      shared.Clock
	AfterFunc  AfterFunc
	LeadTime   time.Duration
	RetryDelay time.Duration
}

// Coordinator owns the refresh timer and the single in-flight refresh attempt.
type Coordinator struct {
	baseURL    string
	httpClient *http.Client
	store      *store.Store
	events     *events.Broadcaster
	logger     *log.Logger
	now        shared.Clock
	afterFunc  AfterFunc
	lead       time.Duration
	retryDelay time.Duration

	mu       sync.Mutex
	state    State
	timer    Timer
	fireAt   time.Time
	gen      uint64
	inflight *flight
	stopped  bool
}

type flight struct {
	done chan struct{}
	err  error
}

// NewCoordinator creates a [Coordinator] in the Idle state.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
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
	if opts.AfterFunc == nil {
		opts.AfterFunc = systemAfterFunc
	}
	if opts.LeadTime <= 0 {
		opts.LeadTime = DefaultLeadTime
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	return &Coordinator{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		events:     opts.Events,
		logger:     shared.WithLogger(opts.Logger, "component", "refresh"),
		now:        opts.Clock,
		afterFunc:  opts.AfterFunc,
		lead:       opts.LeadTime,
		retryDelay: opts.RetryDelay,
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NextRefresh returns when the pending proactive refresh fires, false when none is armed.
func (c *Coordinator) NextRefresh() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fireAt, c.timer != nil
}

// ScheduleProactiveRefresh replaces any pending timer with one firing LeadTime before expiresAt.
//
// A nil expiry leaves nothing scheduled. An expiry already inside the lead window refreshes right away.
func (c *Coordinator) ScheduleProactiveRefresh(expiresAt *time.Time) {
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()

	c.schedule(expiresAt, 0)
}

func (c *Coordinator) schedule(expiresAt *time.Time, floor time.Duration) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.cancelTimerLocked()

	if expiresAt == nil {
		if c.inflight == nil {
			c.state = Idle
		}
		c.mu.Unlock()
		return
	}

	delay := expiresAt.Add(-c.lead).Sub(c.now())
	if delay < floor {
		delay = floor
	}
	if delay <= 0 {
		c.mu.Unlock()
		c.logger.Debug("expiry inside lead window, refreshing now", "expires_at", expiresAt)
		go c.fire(context.Background())
		return
	}

	c.armLocked(delay)
	c.mu.Unlock()
	c.logger.Debug("refresh scheduled", "in", delay)
}

func (c *Coordinator) armLocked(delay time.Duration) {
	gen := c.gen
	c.fireAt = c.now().Add(delay)
	c.timer = c.afterFunc(delay, func() { c.onTimer(gen) })
	if c.inflight == nil {
		c.state = ScheduledPending
	}
}

func (c *Coordinator) cancelTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.fireAt = time.Time{}
}

func (c *Coordinator) onTimer(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.fireAt = time.Time{}
	c.mu.Unlock()

	c.fire(context.Background())
}

// fire runs a timer-initiated refresh. Rejections end the session; transport failures retry later.
func (c *Coordinator) fire(ctx context.Context) {
	err := c.RefreshNow(ctx)
	if err == nil {
		return
	}

	if errors.Is(err, shared.ErrNetwork) {
		c.retryLater()
		return
	}

	reason := events.ReasonRefreshFailed
	if errors.Is(err, shared.ErrRefreshUnavailable) {
		reason = events.ReasonRefreshUnavailable
	}
	c.logger.Warn("proactive refresh failed, ending session", "error", err)
	c.events.EmitSessionInvalidated(events.SessionInvalidated{Reason: reason})
}

func (c *Coordinator) retryLater() {
	cred, err := c.store.ReadApplication()
	if err != nil || cred == nil || cred.Expired(c.now()) {
		c.logger.Warn("refresh unreachable and token expired, ending session")
		c.events.EmitSessionInvalidated(events.SessionInvalidated{Reason: events.ReasonRefreshFailed})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.timer != nil || c.inflight != nil {
		return
	}
	c.logger.Info("refresh endpoint unreachable, retrying", "in", c.retryDelay)
	c.armLocked(c.retryDelay)
}

// RefreshNow refreshes the application credential, joining an attempt already in flight.
//
// On success the new credential is persisted before the token refreshed signal is emitted. A rejection
// purges the application credential; a transport failure keeps it and returns an error wrapping
// [shared.ErrNetwork].
func (c *Coordinator) RefreshNow(ctx context.Context) error {
	c.mu.Lock()
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.inflight = f
	c.state = Refreshing
	c.cancelTimerLocked()
	c.mu.Unlock()

	cred, err := c.refresh(ctx)

	c.mu.Lock()
	c.inflight = nil
	if err != nil {
		c.state = Failed
	} else {
		c.state = Idle
	}
	c.mu.Unlock()

	if err == nil {
		c.schedule(cred.ExpiresAt, minReschedule)
		c.events.EmitTokenRefreshed(events.TokenRefreshed{Token: cred.AccessToken})
	}

	f.err = err
	close(f.done)
	return err
}

func (c *Coordinator) refresh(ctx context.Context) (models.ApplicationCredential, error) {
	current, err := c.store.ReadApplication()
	if err != nil {
		return models.ApplicationCredential{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	if !current.HasRefreshToken() {
		c.purge()
		return models.ApplicationCredential{}, shared.ErrRefreshUnavailable
	}

	status, body, err := postJSON(ctx, c.httpClient, c.baseURL+refreshPath, map[string]string{
		"refreshToken": current.RefreshToken,
	})
	if err != nil {
		c.logger.Warn("refresh request failed", "error", err)
		return models.ApplicationCredential{}, err
	}

	if !shared.Is2xx(status) {
		c.purge()
		return models.ApplicationCredential{}, statusError(shared.ErrRefreshRejected, status, body)
	}

	next, err := parseTokenResponse(body, c.now())
	if err != nil || next.AccessToken == "" {
		c.purge()
		return models.ApplicationCredential{}, ErrMalformedRefresh
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}

	if err := c.store.WriteApplication(next); err != nil {
		return models.ApplicationCredential{}, fmt.Errorf("failed to store credentials: %w", err)
	}

	c.logger.Info("token refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

func (c *Coordinator) purge() {
	if err := c.store.ClearApplication(); err != nil {
		c.logger.Error("failed to clear credentials", "error", err)
	}
	c.mu.Lock()
	c.cancelTimerLocked()
	c.mu.Unlock()
}

// Stop cancels the pending timer. Callbacks from timers armed before Stop are ignored.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked()
	c.stopped = true
	if c.inflight == nil {
		c.state = Idle
	}
}
