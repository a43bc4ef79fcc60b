// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

// setupCommand handles setup operations for configuration and the credential database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml from the built-in template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the credential database and run migrations",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{Name: "rollback", Usage: "Revert the most recently applied migration"},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles the application session.
func authCommand(r *Runner) *cli.Command {
	credentials := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "email",
				Aliases: []string{"e"},
				Usage:   "Account email",
				Sources: cli.EnvVars("TOP2000_EMAIL"),
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Account password",
				Sources: cli.EnvVars("TOP2000_PASSWORD"),
			},
		}
	}

	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Top2000 session",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Log in with email and password",
				Flags:  credentials(),
				Action: r.AuthLogin,
			},
			{
				Name:  "register",
				Usage: "Create an account",
				Flags: append(credentials(), &cli.StringFlag{
					Name:  "confirm",
					Usage: "Password confirmation (defaults to --password)",
				}),
				Action: r.AuthRegister,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored session",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show the local session and ask the API whether it is still valid",
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Refresh the access token now",
				Action: r.AuthRefresh,
			},
		},
	}
}

// apiCommand handles direct authorized API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct authorized calls to the Top2000 API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "GET a path, prints the response body",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags:  outputFlags(),
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "POST a JSON body to a path",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// catalogCommand reads the song and artist catalog.
func catalogCommand(r *Runner) *cli.Command {
	paging := func() []cli.Flag {
		return []cli.Flag{
			&cli.IntFlag{Name: "page", Usage: "Page number", Value: 1},
			&cli.IntFlag{Name: "page-size", Usage: "Items per page", Value: 20},
		}
	}

	return &cli.Command{
		Name:    "catalog",
		Aliases: []string{"cat"},
		Usage:   "Browse the Top2000 catalog",
		Commands: []*cli.Command{
			{
				Name:  "songs",
				Usage: "List songs, optionally for one edition",
				Flags: append(append(paging(), &cli.IntFlag{
					Name:  "year",
					Usage: "Edition year",
				}), outputFlags()...),
				Action: r.CatalogSongs,
			},
			{
				Name:  "song",
				Usage: "Show one song",
				Arguments: []cli.Argument{
					&cli.IntArg{Name: "id"},
				},
				Flags:  outputFlags(),
				Action: r.CatalogSong,
			},
			{
				Name:  "artist",
				Usage: "Show one artist",
				Arguments: []cli.Argument{
					&cli.IntArg{Name: "id"},
				},
				Flags:  outputFlags(),
				Action: r.CatalogArtist,
			},
			{
				Name:   "artists",
				Usage:  "List artists",
				Flags:  append(paging(), outputFlags()...),
				Action: r.CatalogArtists,
			},
			{
				Name:   "years",
				Usage:  "List available editions",
				Flags:  outputFlags(),
				Action: r.CatalogYears,
			},
		},
	}
}

// spotifyCommand handles Spotify operations
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify account and playback operations",
		Commands: []*cli.Command{
			{
				Name:  "auth",
				Usage: "Connect a Spotify account (authorization code with PKCE)",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: defaultAuthTimeout,
					},
				},
				Action: r.SpotifyAuth,
			},
			{
				Name:   "me",
				Usage:  "Show the connected Spotify profile",
				Flags:  outputFlags(),
				Action: r.SpotifyMe,
			},
			{
				Name:  "playlists",
				Usage: "List Spotify playlists",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to return",
						Value: 50,
					},
				}, outputFlags()...),
				Action: r.SpotifyPlaylists,
			},
			{
				Name:  "saved",
				Usage: "List tracks saved in your Spotify library",
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Page size", Value: 20},
					&cli.IntFlag{Name: "offset", Usage: "Index of the first track"},
				}, outputFlags()...),
				Action: r.SpotifySaved,
			},
			{
				Name:  "search",
				Usage: "Search Spotify tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "query"},
				},
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tracks",
						Value: 10,
					},
				}, outputFlags()...),
				Action: r.SpotifySearch,
			},
			{
				Name:  "play",
				Usage: "Start playback of track URIs, or resume when none are given",
				Arguments: []cli.Argument{
					&cli.StringArgs{Name: "uris", Min: 0, Max: -1},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "device",
						Usage: "Device id (defaults to the active device)",
					},
				},
				Action: r.SpotifyPlay,
			},
			{
				Name:   "logout",
				Usage:  "Forget the Spotify token",
				Action: r.SpotifyLogout,
			},
		},
	}
}

// playerCommand returns the top-level playback panel command.
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "player",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive playback panel",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "poll",
				Usage: "Playback state poll interval",
				Value: defaultPollInterval,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the panel is open",
				Value: "./tmp/top2000-player.log",
			},
		},
		Action: r.Player,
	}
}
