// Package playback drives one Spotify streaming device for the signed in user.
//
// A [Session] owns at most one [Player], created once a Spotify token is available. The player reports
// its lifecycle through a [Listener]; the session turns those callbacks into a small state machine:
//
//	Uninitialized -> Connecting -> Ready <-> Disconnected
//
// Transport commands are silently ignored unless the session is Ready. Errors are kept as messages on
// the snapshot for display and are never returned from callbacks.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

const (
	// DefaultPlayerName is the device name shown in Spotify clients.
	DefaultPlayerName = "Top2000 Web Player"
	// DefaultVolume is reported until the device tells us otherwise.
	DefaultVolume = 50
)

// State is the playback session state.
type State int

const (
	Uninitialized State = iota
	Connecting
	Ready
	Disconnected
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// TokenFunc returns the current Spotify access token.
type TokenFunc func() (string, bool)

// Listener receives player lifecycle events.
type Listener interface {
	InitializationError(message string)
	AuthenticationError(message string)
	AccountError(message string)
	PlaybackError(message string)
	Ready(deviceID string)
	NotReady(deviceID string)
	StateChanged(state *models.PlayerState)
}

// Player is a streaming device.
type Player interface {
	Connect(ctx context.Context) error
	Disconnect()
	TogglePlay(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, percent int) error
}

// PlayerFactory builds a [Player] reporting to l.
type PlayerFactory func(name string, token TokenFunc, l Listener) Player

// Transferer moves playback to a device.
type Transferer interface {
	TransferPlayback(ctx context.Context, deviceID string) error
}

// CredentialStore is the spotify side of the credential store.
type CredentialStore interface {
	ReadSpotify() (*models.SpotifyCredential, error)
	SpotifyToken() (string, bool)
	SaveDeviceID(id string) error
	ClearDeviceID() error
	ClearSpotify() error
}

// Snapshot is a copy of the session state for display.
type Snapshot struct {
	State     State
	DeviceID  string
	Track     *models.Track
	Position  time.Duration
	Duration  time.Duration
	Playing   bool
	Volume    int
	LastError string
}

// Options configures a [Session].
type Options struct {
	Name       string
	Store      CredentialStore
	Factory    PlayerFactory
	Transferer Transferer
	Logger     *log.Logger
}

// Session is the Spotify playback session.
type Session struct {
	name       string
	store      CredentialStore
	factory    PlayerFactory
	transferer Transferer
	logger     *log.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	gen      uint64
	player   Player
	snapshot Snapshot
	subs     map[uint64]func(Snapshot)
	nextSub  uint64
}

// NewSession creates an Uninitialized [Session].
func NewSession(opts Options) *Session {
	if opts.Name == "" {
		opts.Name = DefaultPlayerName
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	return &Session{
		name:       opts.Name,
		store:      opts.Store,
		factory:    opts.Factory,
		transferer: opts.Transferer,
		logger:     shared.WithLogger(opts.Logger, "component", "playback"),
		snapshot:   Snapshot{Volume: DefaultVolume},
		subs:       map[uint64]func(Snapshot){},
	}
}

// Start creates and connects the player. Without a valid Spotify token the session stays Uninitialized
// and [shared.ErrNotAuthenticated] is returned. Starting an already started session does nothing.
func (s *Session) Start(ctx context.Context) error {
	cred, err := s.store.ReadSpotify()
	if err != nil {
		return fmt.Errorf("failed to read spotify credentials: %w", err)
	}
	if cred == nil {
		return shared.ErrNotAuthenticated
	}

	s.mu.Lock()
	if s.player != nil {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	s.ctx, s.cancel = context.WithCancel(ctx)
	player := s.factory(s.name, s.store.SpotifyToken, &listener{s: s, gen: s.gen})
	s.player = player
	s.snapshot.State = Connecting
	s.snapshot.LastError = ""
	connectCtx := s.ctx
	s.mu.Unlock()
	s.notify()

	s.logger.Debug("connecting player", "name", s.name)
	if err := player.Connect(connectCtx); err != nil {
		s.logger.Warn("player failed to connect", "error", err)
		s.teardown(fmt.Sprintf("Could not connect to Spotify: %v", err))
		return err
	}
	return nil
}

// Stop disconnects the player and forgets the device.
func (s *Session) Stop() {
	s.teardown("")
}

// Invalidate tears the session down after Spotify rejected its token and clears the Spotify credential.
func (s *Session) Invalidate() {
	s.teardown("")
	if err := s.store.ClearSpotify(); err != nil {
		s.logger.Error("failed to clear spotify credentials", "error", err)
	}
}

func (s *Session) teardown(lastErr string) {
	s.mu.Lock()
	player, cancel := s.player, s.cancel
	s.player, s.cancel = nil, nil
	s.gen++
	s.snapshot = Snapshot{State: Uninitialized, Volume: s.snapshot.Volume, LastError: lastErr}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if player != nil {
		player.Disconnect()
	}
	if err := s.store.ClearDeviceID(); err != nil {
		s.logger.Error("failed to clear device id", "error", err)
	}
	s.notify()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot
	if snap.Track != nil {
		t := *snap.Track
		snap.Track = &t
	}
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.State
}

// ClearError dismisses the last error message.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.snapshot.LastError = ""
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers fn for every state change. The returned func unregisters it.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for i := range s.nextSub {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	snap := s.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

// readyPlayer returns the player when commands may be sent to it.
func (s *Session) readyPlayer() Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.State != Ready {
		return nil
	}
	return s.player
}

func (s *Session) command(name string, fn func(Player) error) error {
	player := s.readyPlayer()
	if player == nil {
		return nil
	}
	if err := fn(player); err != nil {
		s.logger.Warn("playback command failed", "command", name, "error", err)
		return err
	}
	return nil
}

// TogglePlay pauses or resumes playback.
func (s *Session) TogglePlay(ctx context.Context) error {
	return s.command("toggle", func(p Player) error { return p.TogglePlay(ctx) })
}

// Next skips to the next track.
func (s *Session) Next(ctx context.Context) error {
	return s.command("next", func(p Player) error { return p.Next(ctx) })
}

// Previous skips to the previous track.
func (s *Session) Previous(ctx context.Context) error {
	return s.command("previous", func(p Player) error { return p.Previous(ctx) })
}

// Seek moves the playhead.
func (s *Session) Seek(ctx context.Context, position time.Duration) error {
	if position < 0 {
		position = 0
	}
	return s.command("seek", func(p Player) error { return p.Seek(ctx, position) })
}

// SetVolume sets the volume in percent, clamped to 0-100. The snapshot records it once the player accepts it.
func (s *Session) SetVolume(ctx context.Context, percent int) error {
	percent = min(max(percent, 0), 100)
	applied := false
	err := s.command("volume", func(p Player) error {
		if err := p.SetVolume(ctx, percent); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil || !applied {
		return err
	}

	s.mu.Lock()
	s.snapshot.Volume = percent
	s.mu.Unlock()
	s.notify()
	return nil
}

// listener adapts player callbacks to the session, dropping events from players it no longer owns.
type listener struct {
	s   *Session
	gen uint64
}

func (l *listener) update(fn func(snap *Snapshot)) bool {
	l.s.mu.Lock()
	if l.gen != l.s.gen {
		l.s.mu.Unlock()
		return false
	}
	fn(&l.s.snapshot)
	l.s.mu.Unlock()
	l.s.notify()
	return true
}

func (l *listener) fail(kind, message string) {
	l.s.logger.Warn("player error", "kind", kind, "message", message)
	l.update(func(snap *Snapshot) { snap.LastError = message })
}

func (l *listener) InitializationError(message string) {
	l.fail("initialization", message)
}

func (l *listener) AuthenticationError(message string) {
	l.s.mu.Lock()
	current := l.gen == l.s.gen
	l.s.mu.Unlock()
	if !current {
		return
	}
	l.s.logger.Warn("spotify rejected the token", "message", message)
	l.s.Invalidate()
	l.s.mu.Lock()
	l.s.snapshot.LastError = "Spotify session expired, connect again: " + message
	l.s.mu.Unlock()
	l.s.notify()
}

func (l *listener) AccountError(message string) {
	l.fail("account", message)
}

func (l *listener) PlaybackError(message string) {
	l.fail("playback", message)
}

func (l *listener) Ready(deviceID string) {
	if !l.update(func(snap *Snapshot) {
		snap.State = Ready
		snap.DeviceID = deviceID
		snap.LastError = ""
	}) {
		return
	}

	l.s.logger.Info("player ready", "device_id", deviceID)
	if err := l.s.store.SaveDeviceID(deviceID); err != nil {
		l.s.logger.Error("failed to save device id", "error", err)
	}

	if l.s.transferer == nil {
		return
	}
	l.s.mu.Lock()
	ctx := l.s.ctx
	l.s.mu.Unlock()
	if ctx == nil {
		return
	}
	if err := l.s.transferer.TransferPlayback(ctx, deviceID); err != nil {
		l.fail("transfer", fmt.Sprintf("Could not transfer playback: %v", err))
	}
}

func (l *listener) NotReady(deviceID string) {
	if l.update(func(snap *Snapshot) { snap.State = Disconnected }) {
		l.s.logger.Info("player went offline", "device_id", deviceID)
	}
}

func (l *listener) StateChanged(state *models.PlayerState) {
	l.update(func(snap *Snapshot) {
		if state == nil {
			snap.Track = nil
			return
		}
		if state.Track != nil {
			t := *state.Track
			snap.Track = &t
		} else {
			snap.Track = nil
		}
		snap.Position = state.Position
		snap.Duration = state.Duration
		snap.Playing = !state.Paused
		if state.Volume != nil {
			snap.Volume = min(max(*state.Volume, 0), 100)
		}
	})
}
