package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/events"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/playback"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
)

const defaultPollInterval = playback.DefaultPollInterval

// Player launches the interactive playback panel.
func (r *Runner) Player(ctx context.Context, cmd *cli.Command) error {
	if cred, err := r.store.ReadSpotify(); err != nil {
		return err
	} else if cred == nil {
		return fmt.Errorf("%w: run: top2000 spotify auth", shared.ErrNotAuthenticated)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	session := playback.NewSession(playback.Options{
		Name:       r.config.Credentials.Spotify.DeviceName,
		Store:      r.store,
		Factory:    playback.NewConnectFactory(r.spotify, cmd.Duration("poll"), fileLogger),
		Transferer: r.spotify,
		Logger:     fileLogger,
	})
	defer session.Stop()
	defer r.stopOnLogout(session)()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the panel shows connection failures itself, so only a missing token is fatal
	if err := session.Start(ctx); errors.Is(err, shared.ErrNotAuthenticated) {
		return err
	}

	model := ui.NewModel(ctx, session, r.spotify)
	defer model.Close()

	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// stopOnLogout ends playback when the application session is invalidated.
func (r *Runner) stopOnLogout(session *playback.Session) events.Unsubscribe {
	return r.events.OnSessionInvalidated(func(e events.SessionInvalidated) {
		r.logger.Info("application session ended, stopping playback", "reason", e.Reason)
		session.Stop()
	})
}
