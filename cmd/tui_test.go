package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/events"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/playback"
)

type idlePlayer struct {
	disconnected atomic.Bool
}

func (p *idlePlayer) Connect(context.Context) error             { return nil }
func (p *idlePlayer) Disconnect()                               { p.disconnected.Store(true) }
func (p *idlePlayer) TogglePlay(context.Context) error          { return nil }
func (p *idlePlayer) Next(context.Context) error                { return nil }
func (p *idlePlayer) Previous(context.Context) error            { return nil }
func (p *idlePlayer) Seek(context.Context, time.Duration) error { return nil }
func (p *idlePlayer) SetVolume(context.Context, int) error      { return nil }

func TestStopOnLogout(t *testing.T) {
	r, _, st := testRunner(t, "http://localhost")
	st.WriteSpotify(models.SpotifyCredential{AccessToken: "S1", ExpiresAt: time.Now().Add(time.Hour)})

	player := &idlePlayer{}
	session := playback.NewSession(playback.Options{
		Store:   st,
		Factory: func(string, playback.TokenFunc, playback.Listener) playback.Player { return player },
	})
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, before := r.events.Listeners()

	unsubscribe := r.stopOnLogout(session)
	if _, after := r.events.Listeners(); after != before+1 {
		t.Fatalf("expected one more invalidation listener, got %d -> %d", before, after)
	}

	r.events.EmitSessionInvalidated(events.SessionInvalidated{Reason: events.ReasonRefreshFailed})

	if session.State() != playback.Uninitialized {
		t.Errorf("expected playback stopped, got %v", session.State())
	}
	if !player.disconnected.Load() {
		t.Error("expected player disconnected")
	}
	if _, ok := st.SpotifyToken(); !ok {
		t.Error("expected spotify credential kept on application logout")
	}

	unsubscribe()
	if _, after := r.events.Listeners(); after != before {
		t.Errorf("expected listener removed, got %d", after)
	}
}
