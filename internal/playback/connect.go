package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/services"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

// DefaultPollInterval is how often a [ConnectPlayer] polls device and playback state.
const DefaultPollInterval = 2 * time.Second

// WebAPI is the part of the Spotify Web API a [ConnectPlayer] drives.
type WebAPI interface {
	Devices(ctx context.Context) ([]services.SpotifyDevice, error)
	PlayerState(ctx context.Context) (*services.SpotifyPlaybackState, error)
	Play(ctx context.Context, deviceID string, uris []string) error
	Pause(ctx context.Context, deviceID string) error
	Next(ctx context.Context, deviceID string) error
	Previous(ctx context.Context, deviceID string) error
	Seek(ctx context.Context, deviceID string, positionMS int) error
	SetVolume(ctx context.Context, deviceID string, percent int) error
}

// ConnectPlayer is a [Player] backed by a Spotify Connect device, found by name, and driven through the
// Web API. Device presence and playback state are polled.
type ConnectPlayer struct {
	api      WebAPI
	name     string
	token    TokenFunc
	listener Listener
	interval time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	deviceID string
	ready    bool
	playing  bool
}

// NewConnectFactory returns a [PlayerFactory] building [ConnectPlayer]s over api.
func NewConnectFactory(api WebAPI, interval time.Duration, logger *log.Logger) PlayerFactory {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = shared.NopLogger()
	}
	return func(name string, token TokenFunc, l Listener) Player {
		return &ConnectPlayer{
			api:      api,
			name:     name,
			token:    token,
			listener: l,
			interval: interval,
			logger:   shared.WithLogger(logger, "component", "connect", "device", name),
		}
	}
}

// Connect resolves the device once and starts polling. It fails only when no token is available.
func (p *ConnectPlayer) Connect(ctx context.Context) error {
	if _, ok := p.token(); !ok {
		p.listener.InitializationError("no Spotify token available")
		return shared.ErrNotAuthenticated
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	if !p.poll(ctx) {
		return nil
	}
	go p.loop(ctx)
	return nil
}

// Disconnect stops polling. Safe to call from a listener callback.
func (p *ConnectPlayer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.ready = false
}

func (p *ConnectPlayer) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.poll(ctx) {
				return
			}
		}
	}
}

// poll refreshes device presence and playback state. It returns false once polling should stop.
func (p *ConnectPlayer) poll(ctx context.Context) bool {
	devices, err := p.api.Devices(ctx)
	if err != nil {
		return p.report(ctx, err)
	}

	device := p.pick(devices)

	p.mu.Lock()
	wasReady, prevID := p.ready, p.deviceID
	if device == nil {
		p.ready = false
	} else {
		p.ready, p.deviceID = true, device.ID
	}
	p.mu.Unlock()

	switch {
	case device == nil && wasReady:
		p.listener.NotReady(prevID)
		return true
	case device == nil:
		return true
	case !wasReady || prevID != device.ID:
		p.listener.Ready(device.ID)
	}

	state, err := p.api.PlayerState(ctx)
	if err != nil {
		return p.report(ctx, err)
	}
	if state == nil || state.Device.ID != device.ID {
		p.listener.StateChanged(nil)
		return true
	}

	p.mu.Lock()
	p.playing = state.IsPlaying
	p.mu.Unlock()

	ps := &models.PlayerState{
		Position: time.Duration(state.ProgressMS) * time.Millisecond,
		Paused:   !state.IsPlaying,
	}
	if v := state.Device.VolumePercent; v != nil {
		volume := *v
		ps.Volume = &volume
	}
	if state.Item != nil {
		track := state.Item.Model()
		ps.Track = &track
		ps.Duration = time.Duration(state.Item.DurationMS) * time.Millisecond
	}
	p.listener.StateChanged(ps)
	return true
}

func (p *ConnectPlayer) pick(devices []services.SpotifyDevice) *services.SpotifyDevice {
	for i := range devices {
		if strings.EqualFold(devices[i].Name, p.name) {
			return &devices[i]
		}
	}
	return nil
}

// report routes an API error to the listener. Token and account errors stop polling.
func (p *ConnectPlayer) report(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	switch {
	case errors.Is(err, shared.ErrTokenExpired), errors.Is(err, shared.ErrNotAuthenticated):
		p.Disconnect()
		p.listener.AuthenticationError(err.Error())
		return false
	case services.IsPremiumRequired(err):
		p.Disconnect()
		p.listener.AccountError("Spotify Premium is required for playback")
		return false
	default:
		p.logger.Debug("poll failed", "error", err)
		p.listener.PlaybackError(err.Error())
		return true
	}
}

func (p *ConnectPlayer) device() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return "", shared.ErrNotReady
	}
	return p.deviceID, nil
}

func (p *ConnectPlayer) run(ctx context.Context, name string, fn func(deviceID string) error) error {
	id, err := p.device()
	if err != nil {
		return err
	}
	if err := fn(id); err != nil {
		p.report(ctx, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// TogglePlay pauses when playing, otherwise resumes.
func (p *ConnectPlayer) TogglePlay(ctx context.Context) error {
	p.mu.Lock()
	playing := p.playing
	p.mu.Unlock()

	return p.run(ctx, "toggle", func(id string) error {
		var err error
		if playing {
			err = p.api.Pause(ctx, id)
		} else {
			err = p.api.Play(ctx, id, nil)
		}
		if err == nil {
			p.mu.Lock()
			p.playing = !playing
			p.mu.Unlock()
		}
		return err
	})
}

func (p *ConnectPlayer) Next(ctx context.Context) error {
	return p.run(ctx, "next", func(id string) error { return p.api.Next(ctx, id) })
}

func (p *ConnectPlayer) Previous(ctx context.Context) error {
	return p.run(ctx, "previous", func(id string) error { return p.api.Previous(ctx, id) })
}

func (p *ConnectPlayer) Seek(ctx context.Context, position time.Duration) error {
	return p.run(ctx, "seek", func(id string) error { return p.api.Seek(ctx, id, int(position.Milliseconds())) })
}

func (p *ConnectPlayer) SetVolume(ctx context.Context, percent int) error {
	return p.run(ctx, "volume", func(id string) error { return p.api.SetVolume(ctx, id, percent) })
}

var _ WebAPI = (*services.SpotifyService)(nil)
