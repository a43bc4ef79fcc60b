package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/gateway"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin logs in with --email and --password and stores the session.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")

	r.logger.Info("logging in", "email", email)
	session, err := r.provider.Login(ctx, email, cmd.String("password"))
	if err != nil {
		return r.authError("login", err)
	}

	r.writePlain("✓ Logged in as %s\n", email)
	r.printSession(session)
	return nil
}

// AuthRegister creates an account. Accounts pending email confirmation are reported, not treated as failure.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	password := cmd.String("password")
	confirm := cmd.String("confirm")
	if confirm == "" {
		confirm = password
	}

	session, err := r.provider.Register(ctx, email, password, confirm)
	switch {
	case errors.Is(err, shared.ErrConfirmationRequired):
		return r.writePlain("✓ Account created. Confirm your email, then run: top2000 auth login\n")
	case err != nil:
		return r.authError("registration", err)
	}

	r.writePlain("✓ Registered and logged in as %s\n", email)
	r.printSession(session)
	return nil
}

// AuthLogout forgets the stored application session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.provider.Logout(); err != nil {
		return err
	}
	return r.writePlain("✓ Logged out\n")
}

// AuthStatus prints the local session and checks it against the API.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	session := r.provider.Restore()
	if !session.Authenticated {
		return r.writePlain("Session: ✗ Not logged in\n")
	}
	r.printSession(session)

	valid, err := r.catalog.AuthStatus(ctx)
	switch {
	case errors.Is(err, shared.ErrNetwork):
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	case err != nil:
		return err
	case valid:
		r.writePlain("API: ✓ Token accepted\n")
	default:
		r.writePlain("API: ✗ Token rejected, run: top2000 auth login\n")
	}
	return nil
}

// AuthRefresh runs a refresh immediately.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	if session := r.provider.Restore(); !session.Authenticated {
		return shared.ErrNotAuthenticated
	}

	if err := r.provider.Coordinator().RefreshNow(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	r.writePlain("✓ Token refreshed\n")
	r.printSession(r.provider.Session())
	return nil
}

func (r *Runner) printSession(s models.Session) {
	r.writePlain("Session: ✓ Logged in\n")
	if s.IsAdmin {
		r.writePlain("Role: admin\n")
	}
	if s.ExpiresAt != nil {
		r.writePlain("Expires: %s (in %s)\n", s.ExpiresAt.Local().Format(time.RFC1123), time.Until(*s.ExpiresAt).Round(time.Second))
	}
}

// authError adds the API's own message to a failed login or registration.
func (r *Runner) authError(action string, err error) error {
	var problem *gateway.Problem
	if errors.As(err, &problem) {
		if msg := problem.Summary(); msg != "" {
			return fmt.Errorf("%s failed: %s: %w", action, msg, err)
		}
	}
	return fmt.Errorf("%s failed: %w", action, err)
}
