//go:build devadmin

package main

import (
	"context"
	"fmt"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/urfave/cli/v3"
)

func init() {
	devCommands = append(devCommands, devCommand)
}

func devCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "dev",
		Usage: "Development helpers",
		Commands: []*cli.Command{
			{
				Name:      "admin",
				Usage:     "Force the admin flag on or off",
				Arguments: []cli.Argument{&cli.StringArg{Name: "state"}},
				Action:    r.DevAdmin,
			},
		},
	}
}

// DevAdmin stores the admin override read by devadmin builds of the session provider.
func (r *Runner) DevAdmin(ctx context.Context, cmd *cli.Command) error {
	var value bool
	switch state := cmd.StringArg("state"); state {
	case "on":
		value = true
	case "off":
	default:
		return fmt.Errorf("%w: state must be on or off, got %q", shared.ErrInvalidArgument, state)
	}

	if err := r.store.SetDevAdminOverride(value); err != nil {
		return err
	}
	r.writePlain("✓ Admin override %v\n", value)
	return nil
}
