package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/gateway"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIGet makes an authorized GET request through the gateway.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	r.logger.Info("GET request", "path", path)

	resp, err := r.api.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}

	return r.writeBody(resp, cmd.Bool("pretty") && !cmd.Bool("json"))
}

// APIPost makes an authorized POST request through the gateway.
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	data := cmd.String("data")

	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	if data == "" {
		return fmt.Errorf("%w: --data flag is required", shared.ErrMissingArgument)
	}
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("%w: data is not valid JSON", shared.ErrInvalidInput)
	}

	r.logger.Info("POST request", "path", path)

	resp, err := r.api.Post(ctx, path, json.RawMessage(data))
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}

	return r.writeBody(resp, true)
}

// writeBody prints a JSON body re-encoded, or any other body as is.
func (r *Runner) writeBody(resp *gateway.Response, pretty bool) error {
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return r.writePlain("%d (empty body)\n", resp.StatusCode)
	}

	var data any
	if err := json.Unmarshal(resp.Body, &data); err == nil {
		return r.writeJSON(data, pretty)
	}

	if _, err := r.output.Write(resp.Body); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return r.writePlain("\n")
}
