package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/server"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/services"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultAuthTimeout = 2 * time.Minute

// SpotifyAuth connects a Spotify account.
//
// Starts a local HTTP server on the redirect URI, opens the browser for authorization, and exchanges the code.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	if r.spotifyAuth == nil {
		return fmt.Errorf("%w: set credentials.spotify.client_id in config.toml or %s", shared.ErrMissingCredentials, shared.EnvSpotifyClientID)
	}

	cred, err := r.doOAuth(ctx, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	r.writePlainln("✓ Spotify connected")
	r.writePlain("Token valid until %s\n\n", cred.ExpiresAt.Local().Format(time.Kitchen))
	r.writePlain("You can now use: top2000 player\n")
	return nil
}

func (r *Runner) doOAuth(ctx context.Context, timeout time.Duration) (*models.SpotifyCredential, error) {
	redirect := r.spotifyAuth.RedirectURI()
	handler := server.NewCallbackHandler(r.spotifyAuth, redirect, r.logger)

	router := server.NewBasicRouter()
	router.Use(server.RecoverMiddleware(r.logger), server.LoggingMiddleware(r.logger))
	router.Handler(handler)

	addr, err := callbackAddr(redirect, r.config.Server.Addr())
	if err != nil {
		return nil, err
	}

	srv, err := server.Listen(addr, router, r.logger)
	if err != nil {
		return nil, err
	}
	defer srv.Shutdown()
	r.logger.Infof("waiting for spotify callback at %v", redirect)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	state, err := r.spotifyAuth.BeginAuthorization(ctx)
	if err != nil {
		return nil, err
	}
	handler.Expect(state)

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)
	result, err := server.AwaitCallback(ctx, srv, handler, timeout)
	if err != nil {
		return nil, err
	}
	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Credential == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrMalformedTokenResponse)
	}
	return result.Credential, nil
}

// callbackAddr is the host:port of the redirect URI, falling back to the [server] config.
func callbackAddr(redirectURI, fallback string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: redirect uri: %v", shared.ErrInvalidConfig, err)
	}
	if u.Host == "" {
		return fallback, nil
	}
	if u.Port() == "" {
		return "", fmt.Errorf("%w: redirect uri %q needs an explicit port", shared.ErrInvalidConfig, redirectURI)
	}
	return u.Host, nil
}

// SpotifyMe shows the connected profile.
func (r *Runner) SpotifyMe(ctx context.Context, cmd *cli.Command) error {
	user, err := r.spotify.UserProfile(ctx)
	if err != nil {
		return r.spotifyError(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, cmd.Bool("pretty"))
	}

	r.writePlain("%s (%s)\n", user.DisplayName, user.ID)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	r.writePlain("Plan: %s\n", user.Product)
	if !user.Premium() {
		r.writePlain("⚠ Playback control requires Spotify Premium\n")
	}
	return nil
}

// SpotifyPlaylists lists Spotify playlists with optional limit.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")

	r.logger.Infof("listing spotify playlists with limit %v", limit)

	page, err := r.spotify.UserPlaylists(ctx, limit, 0)
	if err != nil {
		return r.spotifyError(err)
	}
	playlists := page.Items
	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
	}
	return nil
}

// SpotifySearch searches tracks.
func (r *Runner) SpotifySearch(ctx context.Context, cmd *cli.Command) error {
	tracks, err := r.spotify.SearchTracks(ctx, cmd.StringArg("query"), cmd.Int("limit"))
	if err != nil {
		return r.spotifyError(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	for i, t := range tracks {
		track := t.Model()
		r.writePlain("%2d. %s - %s\n    %s\n", i+1, strings.Join(track.Artists, ", "), track.Name, track.URI)
	}
	return nil
}

// SpotifySaved lists the tracks in the user's library.
func (r *Runner) SpotifySaved(ctx context.Context, cmd *cli.Command) error {
	page, err := r.spotify.SavedTracks(ctx, cmd.Int("limit"), cmd.Int("offset"))
	if err != nil {
		return r.spotifyError(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(page, cmd.Bool("pretty"))
	}

	r.writePlain("Saved tracks %d-%d of %d:\n\n", page.Offset+1, page.Offset+len(page.Items), page.Total)
	for i, saved := range page.Items {
		track := saved.Track.Model()
		r.writePlain("%2d. %s - %s\n    %s\n", page.Offset+i+1, strings.Join(track.Artists, ", "), track.Name, track.URI)
	}
	return nil
}

// SpotifyPlay starts the given track URIs, or resumes playback, on a device.
func (r *Runner) SpotifyPlay(ctx context.Context, cmd *cli.Command) error {
	uris := cmd.StringArgs("uris")
	device := cmd.String("device")
	if device == "" {
		if id, ok := r.store.DeviceID(); ok {
			device = id
		}
	}

	if err := r.spotify.Play(ctx, device, uris); err != nil {
		return r.spotifyError(err)
	}

	if len(uris) == 0 {
		return r.writePlain("▶ Resumed\n")
	}
	return r.writePlain("▶ Playing %d track(s)\n", len(uris))
}

// SpotifyLogout forgets the Spotify token and device.
func (r *Runner) SpotifyLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.store.ClearSpotify(); err != nil {
		return err
	}
	return r.writePlain("✓ Spotify disconnected\n")
}

// spotifyError explains the errors a user can act on.
func (r *Runner) spotifyError(err error) error {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrTokenExpired):
		return fmt.Errorf("%w: run: top2000 spotify auth", err)
	case services.IsPremiumRequired(err):
		return fmt.Errorf("%w: this needs Spotify Premium", err)
	default:
		return err
	}
}
