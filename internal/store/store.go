// Package store implements the process-wide credential store.
//
// A [Store] keeps two independent namespaces, application and spotify, on top of a pluggable [Backend].
// Every write of a namespace goes through a single [Backend.Apply] call so readers never observe a
// partially updated credential.
package store

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

// Storage keys. Each belongs to exactly one namespace.
const (
	KeyAppToken        = "top2000.app.token"
	KeyAppRefreshToken = "top2000.app.refresh_token"
	KeyAppExpiresAt    = "top2000.app.expires_at"

	KeySpotifyVerifier  = "top2000.spotify.code_verifier"
	KeySpotifyToken     = "top2000.spotify.access_token"
	KeySpotifyExpiresAt = "top2000.spotify.expires_at"
	KeySpotifyDeviceID  = "top2000.spotify.device_id"

	KeyDevAdmin = "top2000.dev.is_admin"
)

var namespaceKeys = map[models.Namespace][]string{
	models.NamespaceApplication: {KeyAppToken, KeyAppRefreshToken, KeyAppExpiresAt},
	models.NamespaceSpotify:     {KeySpotifyToken, KeySpotifyExpiresAt, KeySpotifyVerifier, KeySpotifyDeviceID},
}

// Store is the credential store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	now     shared.Clock
}

// New creates a [Store] over backend. A nil clock uses the system clock.
func New(backend Backend, clock shared.Clock) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Store{backend: backend, now: clock}
}

// ReadApplication returns the stored application credential, or nil when no access token is stored.
func (s *Store) ReadApplication() (*models.ApplicationCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok, err := s.backend.Get(KeyAppToken)
	if err != nil || !ok || token == "" {
		return nil, err
	}

	cred := &models.ApplicationCredential{AccessToken: token}

	if refresh, ok, err := s.backend.Get(KeyAppRefreshToken); err != nil {
		return nil, err
	} else if ok {
		cred.RefreshToken = refresh
	}

	if raw, ok, err := s.backend.Get(KeyAppExpiresAt); err != nil {
		return nil, err
	} else if ok {
		// an unreadable expiry is dropped rather than failing the whole read
		if t, err := parseTime(raw); err == nil {
			cred.ExpiresAt = &t
		}
	}

	return cred, nil
}

// WriteApplication overwrites every application field at once. Absent optional fields are removed.
func (s *Store) WriteApplication(cred models.ApplicationCredential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", shared.ErrInvalidInput)
	}

	set := map[string]string{KeyAppToken: cred.AccessToken}
	var del []string

	if cred.RefreshToken != "" {
		set[KeyAppRefreshToken] = cred.RefreshToken
	} else {
		del = append(del, KeyAppRefreshToken)
	}

	if cred.ExpiresAt != nil {
		set[KeyAppExpiresAt] = formatTime(*cred.ExpiresAt)
	} else {
		del = append(del, KeyAppExpiresAt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Apply(set, del)
}

// ClearApplication removes every application key.
func (s *Store) ClearApplication() error {
	return s.Clear(models.NamespaceApplication)
}

// ReadSpotify returns the stored Spotify credential while it is unexpired.
//
// A credential read at or after its expiry is purged and reported as absent.
func (s *Store) ReadSpotify() (*models.SpotifyCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, tokOK, err := s.backend.Get(KeySpotifyToken)
	if err != nil {
		return nil, err
	}
	raw, expOK, err := s.backend.Get(KeySpotifyExpiresAt)
	if err != nil {
		return nil, err
	}

	if !tokOK && !expOK {
		return nil, nil
	}

	var expiresAt time.Time
	if expOK {
		expiresAt, err = parseTime(raw)
	}

	if !tokOK || token == "" || !expOK || err != nil || !s.now().Before(expiresAt) {
		if err := s.backend.Apply(nil, []string{KeySpotifyToken, KeySpotifyExpiresAt}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &models.SpotifyCredential{AccessToken: token, ExpiresAt: expiresAt}, nil
}

// SpotifyToken returns the current valid Spotify access token. Intended as a token supplier callback.
func (s *Store) SpotifyToken() (string, bool) {
	cred, err := s.ReadSpotify()
	if err != nil || cred == nil {
		return "", false
	}
	return cred.AccessToken, true
}

// WriteSpotify stores a Spotify credential. The PKCE verifier and device marker are left untouched.
func (s *Store) WriteSpotify(cred models.SpotifyCredential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", shared.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Apply(map[string]string{
		KeySpotifyToken:     cred.AccessToken,
		KeySpotifyExpiresAt: formatTime(cred.ExpiresAt),
	}, nil)
}

// ClearSpotify removes every spotify key including the verifier and device marker.
func (s *Store) ClearSpotify() error {
	return s.Clear(models.NamespaceSpotify)
}

// Clear removes all keys of the namespace.
func (s *Store) Clear(ns models.Namespace) error {
	keys, ok := namespaceKeys[ns]
	if !ok {
		return fmt.Errorf("%w: unknown namespace %q", shared.ErrInvalidArgument, ns)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Apply(nil, keys)
}

// SaveVerifier persists the PKCE code verifier across the authorization redirect.
func (s *Store) SaveVerifier(verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Apply(map[string]string{KeySpotifyVerifier: verifier}, nil)
}

// TakeVerifier returns and removes the stored verifier so it can only be used once.
func (s *Store) TakeVerifier() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok, err := s.backend.Get(KeySpotifyVerifier)
	if err != nil || !ok || v == "" {
		return "", false, err
	}
	if err := s.backend.Apply(nil, []string{KeySpotifyVerifier}); err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SaveDeviceID records the active playback device.
func (s *Store) SaveDeviceID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Apply(map[string]string{KeySpotifyDeviceID: id}, nil)
}

// DeviceID returns the recorded playback device, if any.
func (s *Store) DeviceID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.backend.Get(KeySpotifyDeviceID)
	if err != nil || v == "" {
		return "", false
	}
	return v, ok
}

// ClearDeviceID removes the device marker.
func (s *Store) ClearDeviceID() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Apply(nil, []string{KeySpotifyDeviceID})
}

// DevAdminOverride reports the development admin flag. Only consulted by builds with the devadmin tag.
func (s *Store) DevAdminOverride() (value bool, set bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok, err := s.backend.Get(KeyDevAdmin)
	if err != nil || !ok {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return b, true
}

// SetDevAdminOverride stores the development admin flag.
func (s *Store) SetDevAdminOverride(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Apply(map[string]string{KeyDevAdmin: strconv.FormatBool(v)}, nil)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
