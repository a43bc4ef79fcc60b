// Package events is the session broadcaster: a process-wide bus with two signals,
// token refreshed and session invalidated.
//
// Delivery is synchronous on the emitting goroutine, in registration order, to the listeners registered
// at the moment of the emit. Nothing is queued or replayed for listeners that subscribe later.
package events

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

// TokenRefreshed is emitted after every successful refresh of the application credential.
type TokenRefreshed struct {
	Token string
}

// InvalidationReason describes why the session ended.
type InvalidationReason string

const (
	ReasonUnauthorized       InvalidationReason = "unauthorized"
	ReasonRefreshFailed      InvalidationReason = "refresh_failed"
	ReasonRefreshUnavailable InvalidationReason = "refresh_unavailable"
)

// SessionInvalidated is emitted when authentication can no longer be maintained.
type SessionInvalidated struct {
	Reason InvalidationReason
}

// Unsubscribe removes a listener. Calling it more than once is harmless.
type Unsubscribe func()

type listener[E any] struct {
	id int
	fn func(E)
}

type topic[E any] struct {
	mu        sync.Mutex
	next      int
	listeners []listener[E]
}

func (t *topic[E]) add(fn func(E)) Unsubscribe {
	t.mu.Lock()
	t.next++
	id := t.next
	t.listeners = append(t.listeners, listener[E]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, l := range t.listeners {
				if l.id == id {
					t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (t *topic[E]) snapshot() []listener[E] {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]listener[E], len(t.listeners))
	copy(out, t.listeners)
	return out
}

func (t *topic[E]) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// Broadcaster fans session signals out to registered listeners. The zero value is not usable; see [New].
type Broadcaster struct {
	logger      *log.Logger
	refreshed   topic[TokenRefreshed]
	invalidated topic[SessionInvalidated]
}

// New creates a [Broadcaster]. A nil logger discards output.
func New(logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Broadcaster{logger: shared.WithLogger(logger, "component", "events")}
}

// OnTokenRefreshed registers fn for token refreshed signals.
func (b *Broadcaster) OnTokenRefreshed(fn func(TokenRefreshed)) Unsubscribe {
	return b.refreshed.add(fn)
}

// OnSessionInvalidated registers fn for session invalidated signals.
func (b *Broadcaster) OnSessionInvalidated(fn func(SessionInvalidated)) Unsubscribe {
	return b.invalidated.add(fn)
}

// EmitTokenRefreshed delivers e to every current listener.
func (b *Broadcaster) EmitTokenRefreshed(e TokenRefreshed) {
	b.logger.Debug("token refreshed")
	for _, l := range b.refreshed.snapshot() {
		deliver(b.logger, "token_refreshed", l.fn, e)
	}
}

// EmitSessionInvalidated delivers e to every current listener.
func (b *Broadcaster) EmitSessionInvalidated(e SessionInvalidated) {
	b.logger.Info("session invalidated", "reason", e.Reason)
	for _, l := range b.invalidated.snapshot() {
		deliver(b.logger, "session_invalidated", l.fn, e)
	}
}

// Listeners returns how many listeners are registered per signal.
func (b *Broadcaster) Listeners() (refreshed, invalidated int) {
	return b.refreshed.count(), b.invalidated.count()
}

// deliver calls fn, recovering a panic so one listener cannot starve the rest.
func deliver[E any](logger *log.Logger, signal string, fn func(E), e E) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("listener panicked", "signal", signal, "panic", fmt.Sprint(r))
		}
	}()
	fn(e)
}
