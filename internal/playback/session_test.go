package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"
	tu "github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/testing"
)

var now = time.Date(2025, 12, 1, 20, 0, 0, 0, time.UTC)

type fakePlayer struct {
	mu           sync.Mutex
	name         string
	token        TokenFunc
	listener     Listener
	connectErr   error
	calls        []string
	disconnected bool
	volume       int
	volumeErr    error
}

func (p *fakePlayer) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return nil
}

func (p *fakePlayer) Connect(context.Context) error { p.record("connect"); return p.connectErr }
func (p *fakePlayer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
}
func (p *fakePlayer) TogglePlay(context.Context) error { return p.record("toggle") }
func (p *fakePlayer) Next(context.Context) error       { return p.record("next") }
func (p *fakePlayer) Previous(context.Context) error   { return p.record("previous") }
func (p *fakePlayer) Seek(context.Context, time.Duration) error {
	return p.record("seek")
}
func (p *fakePlayer) SetVolume(_ context.Context, percent int) error {
	p.mu.Lock()
	p.volume = percent
	err := p.volumeErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return p.record("volume")
}

func (p *fakePlayer) callCount(call string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeTransferer struct {
	mu      sync.Mutex
	devices []string
	err     error
}

func (f *fakeTransferer) TransferPlayback(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, deviceID)
	return f.err
}

type sessionFixture struct {
	session    *Session
	store      *store.Store
	players    []*fakePlayer
	transferer *fakeTransferer
}

func newSessionFixture(t *testing.T, withToken bool) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		store:      store.New(store.NewMemoryBackend(), tu.NewFakeClock(now).Now),
		transferer: &fakeTransferer{},
	}
	if withToken {
		f.store.WriteSpotify(models.SpotifyCredential{AccessToken: "S1", ExpiresAt: now.Add(time.Hour)})
	}
	f.session = NewSession(Options{
		Store:      f.store,
		Transferer: f.transferer,
		Factory: func(name string, token TokenFunc, l Listener) Player {
			p := &fakePlayer{name: name, token: token, listener: l}
			f.players = append(f.players, p)
			return p
		},
	})
	return f
}

func (f *sessionFixture) start(t *testing.T) *fakePlayer {
	t.Helper()
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	return f.players[len(f.players)-1]
}

func TestSessionStart(t *testing.T) {
	t.Run("without token stays uninitialized", func(t *testing.T) {
		f := newSessionFixture(t, false)

		err := f.session.Start(context.Background())
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if f.session.State() != Uninitialized || len(f.players) != 0 {
			t.Error("expected no player and uninitialized state")
		}
	})

	t.Run("creates one connecting player", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)

		if f.session.State() != Connecting {
			t.Errorf("expected connecting, got %v", f.session.State())
		}
		if p.name != DefaultPlayerName || p.callCount("connect") != 1 {
			t.Errorf("unexpected player %q connect calls %d", p.name, p.callCount("connect"))
		}
		if token, ok := p.token(); !ok || token != "S1" {
			t.Errorf("expected token func to return S1, got %q", token)
		}

		f.start(t)
		if len(f.players) != 1 {
			t.Errorf("expected a single player, got %d", len(f.players))
		}
	})

	t.Run("token func reads latest token", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)

		f.store.WriteSpotify(models.SpotifyCredential{AccessToken: "S2", ExpiresAt: now.Add(time.Hour)})
		if token, _ := p.token(); token != "S2" {
			t.Errorf("expected S2, got %q", token)
		}
	})

	t.Run("connect failure", func(t *testing.T) {
		f := newSessionFixture(t, true)
		f.session.factory = func(name string, token TokenFunc, l Listener) Player {
			return &fakePlayer{connectErr: errors.New("boom")}
		}

		if err := f.session.Start(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		snap := f.session.Snapshot()
		if snap.State != Uninitialized || snap.LastError == "" {
			t.Errorf("expected uninitialized with error, got %+v", snap)
		}
	})
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("ready records device and transfers once", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)
		p.listener.AccountError("previous failure")

		p.listener.Ready("d1")

		snap := f.session.Snapshot()
		if snap.State != Ready || snap.DeviceID != "d1" || snap.LastError != "" {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if id, ok := f.store.DeviceID(); !ok || id != "d1" {
			t.Errorf("expected device marker d1, got %q", id)
		}
		if len(f.transferer.devices) != 1 || f.transferer.devices[0] != "d1" {
			t.Errorf("expected one transfer to d1, got %v", f.transferer.devices)
		}
	})

	t.Run("transfer failure is recorded", func(t *testing.T) {
		f := newSessionFixture(t, true)
		f.transferer.err = errors.New("no active device")
		p := f.start(t)

		p.listener.Ready("d1")

		snap := f.session.Snapshot()
		if snap.State != Ready || snap.LastError == "" {
			t.Errorf("expected ready with error, got %+v", snap)
		}
	})

	t.Run("commands are no-ops unless ready", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)
		ctx := context.Background()

		if err := f.session.TogglePlay(ctx); err != nil {
			t.Errorf("expected nil from no-op, got %v", err)
		}
		if p.callCount("toggle") != 0 {
			t.Error("expected no toggle before ready")
		}

		p.listener.Ready("d1")
		f.session.TogglePlay(ctx)
		f.session.Next(ctx)
		f.session.Previous(ctx)
		f.session.Seek(ctx, 30*time.Second)
		if p.callCount("toggle") != 1 || p.callCount("next") != 1 || p.callCount("previous") != 1 || p.callCount("seek") != 1 {
			t.Errorf("expected commands forwarded, got %v", p.calls)
		}

		p.listener.NotReady("d1")
		if f.session.State() != Disconnected {
			t.Errorf("expected disconnected, got %v", f.session.State())
		}
		f.session.Next(ctx)
		if p.callCount("next") != 1 {
			t.Error("expected next ignored while disconnected")
		}

		p.listener.Ready("d1")
		if f.session.State() != Ready {
			t.Error("expected ready again")
		}
	})

	t.Run("volume is clamped", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)
		p.listener.Ready("d1")

		f.session.SetVolume(context.Background(), 140)
		if p.volume != 100 {
			t.Errorf("expected 100, got %d", p.volume)
		}
		f.session.SetVolume(context.Background(), -3)
		if p.volume != 0 {
			t.Errorf("expected 0, got %d", p.volume)
		}
		if got := f.session.Snapshot().Volume; got != 0 {
			t.Errorf("expected snapshot volume 0, got %d", got)
		}
	})

	t.Run("volume is recorded", func(t *testing.T) {
		f := newSessionFixture(t, true)
		if got := f.session.Snapshot().Volume; got != DefaultVolume {
			t.Errorf("expected default volume, got %d", got)
		}
		p := f.start(t)

		f.session.SetVolume(context.Background(), 30)
		if got := f.session.Snapshot().Volume; got != DefaultVolume {
			t.Errorf("expected volume unchanged before ready, got %d", got)
		}

		p.listener.Ready("d1")
		f.session.SetVolume(context.Background(), 70)
		if got := f.session.Snapshot().Volume; got != 70 {
			t.Errorf("expected 70, got %d", got)
		}

		p.mu.Lock()
		p.volumeErr = errors.New("device busy")
		p.mu.Unlock()
		if err := f.session.SetVolume(context.Background(), 10); err == nil {
			t.Error("expected error")
		}
		if got := f.session.Snapshot().Volume; got != 70 {
			t.Errorf("expected failed change ignored, got %d", got)
		}

		device := 42
		p.listener.StateChanged(&models.PlayerState{Volume: &device})
		if got := f.session.Snapshot().Volume; got != 42 {
			t.Errorf("expected device volume 42, got %d", got)
		}
		p.listener.StateChanged(&models.PlayerState{})
		if got := f.session.Snapshot().Volume; got != 42 {
			t.Errorf("expected unreported volume to keep 42, got %d", got)
		}
	})

	t.Run("state changes", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)
		p.listener.Ready("d1")

		p.listener.StateChanged(&models.PlayerState{
			Track:    &models.Track{ID: "t1", Name: "Bohemian Rhapsody", Artists: []string{"Queen"}},
			Position: time.Minute,
			Duration: 6 * time.Minute,
		})
		snap := f.session.Snapshot()
		if snap.Track == nil || snap.Track.Name != "Bohemian Rhapsody" || !snap.Playing || snap.Position != time.Minute {
			t.Errorf("unexpected snapshot %+v", snap)
		}

		p.listener.StateChanged(nil)
		snap = f.session.Snapshot()
		if snap.Track != nil {
			t.Error("expected track cleared")
		}
		if snap.Duration != 6*time.Minute || !snap.Playing {
			t.Errorf("expected other fields kept, got %+v", snap)
		}
	})

	t.Run("errors become messages", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)

		p.listener.InitializationError("init failed")
		if got := f.session.Snapshot().LastError; got != "init failed" {
			t.Errorf("unexpected error %q", got)
		}
		p.listener.PlaybackError("playback failed")
		if got := f.session.Snapshot().LastError; got != "playback failed" {
			t.Errorf("unexpected error %q", got)
		}

		f.session.ClearError()
		if f.session.Snapshot().LastError != "" {
			t.Error("expected error dismissed")
		}
	})

	t.Run("authentication error invalidates spotify session", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)
		p.listener.Ready("d1")

		p.listener.AuthenticationError("token expired")

		snap := f.session.Snapshot()
		if snap.State != Uninitialized || snap.LastError == "" {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if _, ok := f.store.SpotifyToken(); ok {
			t.Error("expected spotify token cleared")
		}
		if !p.disconnected {
			t.Error("expected player disconnected")
		}
	})

	t.Run("stop tears down and ignores stale events", func(t *testing.T) {
		f := newSessionFixture(t, true)
		p := f.start(t)
		p.listener.Ready("d1")

		f.session.Stop()

		if f.session.State() != Uninitialized || !p.disconnected {
			t.Error("expected uninitialized and disconnected")
		}
		if _, ok := f.store.DeviceID(); ok {
			t.Error("expected device marker cleared")
		}
		if _, ok := f.store.SpotifyToken(); !ok {
			t.Error("expected spotify token kept on stop")
		}

		p.listener.Ready("d1")
		if f.session.State() != Uninitialized {
			t.Error("expected stale ready ignored")
		}

		f.start(t)
		if len(f.players) != 2 {
			t.Errorf("expected a new player after stop, got %d", len(f.players))
		}
	})

	t.Run("subscribers see changes", func(t *testing.T) {
		f := newSessionFixture(t, true)
		var states []State
		unsub := f.session.Subscribe(func(s Snapshot) { states = append(states, s.State) })
		p := f.start(t)
		p.listener.Ready("d1")
		unsub()
		p.listener.NotReady("d1")

		if len(states) != 2 || states[0] != Connecting || states[1] != Ready {
			t.Errorf("unexpected states %v", states)
		}
	})
}
