package services

import (
	"context"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/gateway"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
)

// Authorizer starts and completes the Spotify authorization; implemented by [SpotifyAuth].
type Authorizer interface {
	BeginAuthorization(ctx context.Context) (string, error)
	ExchangeCodeForToken(ctx context.Context, code string) (*models.SpotifyCredential, error)
}

// Transferer moves Spotify playback to a device; implemented by [SpotifyService].
type Transferer interface {
	TransferPlayback(ctx context.Context, deviceID string) error
}

var (
	_ Authorizer = (*SpotifyAuth)(nil)
	_ Transferer = (*SpotifyService)(nil)
	_ Doer       = (*gateway.Client)(nil)
)
