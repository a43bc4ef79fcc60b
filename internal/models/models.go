// package models defines the credential and catalog data shared across the token core
package models

import (
	"time"
)

// Namespace identifies an independent group of credential storage keys.
type Namespace string

const (
	NamespaceApplication Namespace = "application"
	NamespaceSpotify     Namespace = "spotify"
)

// ApplicationCredential is the JWT pair issued by the Top2000 API.
//
// AccessToken is non-empty iff the user is authenticated. ExpiresAt is an absolute instant.
type ApplicationCredential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// HasRefreshToken reports whether a refresh is possible.
func (c *ApplicationCredential) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// Expired reports whether the credential has an expiry at or before now.
func (c *ApplicationCredential) Expired(now time.Time) bool {
	return c != nil && c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// SpotifyCredential is a short-lived Spotify access token obtained through the PKCE exchange.
type SpotifyCredential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token may still be presented at now.
func (c *SpotifyCredential) Valid(now time.Time) bool {
	return c != nil && c.AccessToken != "" && now.Before(c.ExpiresAt)
}

// Session is a read-only snapshot of the application login state.
type Session struct {
	Authenticated bool
	IsAdmin       bool
	ExpiresAt     *time.Time
}

// Track is a minimal track description used by the playback session.
type Track struct {
	ID       string
	URI      string
	Name     string
	Artists  []string
	Album    string
	ImageURL string
}

// Artist returns the first artist name or an empty string.
func (t Track) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// PlayerState is a playback-state notification from the streaming device.
type PlayerState struct {
	Track    *Track
	Position time.Duration
	Duration time.Duration
	Paused   bool
	Volume   *int // nil when the device does not report it
}
