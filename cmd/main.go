package main

import (
	"context"
	"errors"
	"os"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

const envConfigPath = "TOP2000_CONFIG"

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnv(".env"); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}

	configPath := "config.toml"
	if v := os.Getenv(envConfigPath); v != "" {
		configPath = v
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}
	config.ApplyEnv()
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	backend, closeBackend := openBackend(config, logger)
	defer closeBackend()

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Store:      store.New(backend, nil),
		Logger:     logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:    "top2000",
		Usage:   "Top2000 catalog, session and Spotify playback from the terminal",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			return
		}
		runner.Close()
		closeBackend()
		logger.Fatalf("application error: %v", err)
	}
}

// openBackend opens the configured credential backend, falling back to memory when sqlite cannot be opened.
func openBackend(config *shared.Config, logger *log.Logger) (store.Backend, func()) {
	if config.Storage.Backend == "memory" {
		return store.NewMemoryBackend(), func() {}
	}

	backend, err := store.OpenSQLite(config.Storage.Path)
	if err != nil {
		logger.Warn("credential database unavailable, credentials will not persist", "path", config.Storage.Path, "error", err)
		return store.NewMemoryBackend(), func() {}
	}
	return backend, func() {
		if err := backend.Close(); err != nil {
			logger.Debug("failed to close credential database", "error", err)
		}
	}
}
