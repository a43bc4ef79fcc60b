package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/auth"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/events"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/gateway"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/services"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	store       *store.Store
	events      *events.Broadcaster
	provider    *auth.Provider
	api         *gateway.Client
	catalog     *services.CatalogService
	spotify     *services.SpotifyService
	spotifyAuth *services.SpotifyAuth
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	navigate    shared.Navigator
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Every nil dependency is built from Config, so tests can pass only what they care about.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Store       *store.Store
	Events      *events.Broadcaster
	Provider    *auth.Provider
	API         *gateway.Client
	Spotify     *services.SpotifyService
	SpotifyAuth *services.SpotifyAuth
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Navigator   shared.Navigator
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.API.Timeout()}
	}
	if opts.Store == nil {
		opts.Store = store.New(store.NewMemoryBackend(), nil)
	}
	if opts.Events == nil {
		opts.Events = events.New(opts.Logger)
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		store:      opts.Store,
		events:     opts.Events,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}

	r.navigate = opts.Navigator
	if r.navigate == nil {
		r.navigate = r.openOrPrint
	}

	if opts.Provider == nil {
		coord := auth.NewCoordinator(auth.CoordinatorOptions{
			BaseURL:    opts.Config.API.BaseURL,
			HTTPClient: opts.HTTPClient,
			Store:      opts.Store,
			Events:     opts.Events,
			Logger:     opts.Logger,
			LeadTime:   opts.Config.Refresh.Lead(),
		})
		opts.Provider = auth.NewProvider(auth.ProviderOptions{
			BaseURL:     opts.Config.API.BaseURL,
			HTTPClient:  opts.HTTPClient,
			Store:       opts.Store,
			Events:      opts.Events,
			Coordinator: coord,
			Navigator:   r.route,
			Logger:      opts.Logger,
		})
	}
	r.provider = opts.Provider

	if opts.API == nil {
		opts.API = gateway.New(gateway.Options{
			BaseURL:    opts.Config.API.BaseURL,
			HTTPClient: opts.HTTPClient,
			Store:      opts.Store,
			Refresher:  opts.Provider.Coordinator(),
			Events:     opts.Events,
			Logger:     opts.Logger,
		})
	}
	r.api = opts.API
	r.catalog = services.NewCatalogService(opts.API)

	if opts.Spotify == nil {
		opts.Spotify = services.NewSpotifyService(services.SpotifyServiceOptions{
			HTTPClient: opts.HTTPClient,
			Store:      opts.Store,
			Logger:     opts.Logger,
		})
	}
	r.spotify = opts.Spotify

	if opts.SpotifyAuth == nil && opts.Config.Credentials.Spotify.Configured() {
		sa, err := services.NewSpotifyAuth(services.SpotifyAuthOptions{
			ClientID:    opts.Config.Credentials.Spotify.ClientID,
			RedirectURI: opts.Config.Credentials.Spotify.RedirectURI,
			Store:       opts.Store,
			HTTPClient:  opts.HTTPClient,
			Navigator:   r.navigate,
			Logger:      opts.Logger,
		})
		if err != nil {
			opts.Logger.Warn("spotify authorization unavailable", "error", err)
		} else {
			opts.SpotifyAuth = sa
		}
	}
	r.spotifyAuth = opts.SpotifyAuth

	return r
}

// SetLogger replaces the logger used by the runner itself.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close stops background refresh and releases listeners.
func (r *Runner) Close() {
	r.provider.Close()
}

// devCommands are registered by development builds only.
var devCommands []func(*Runner) *cli.Command

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range append([](func(*Runner) *cli.Command){
		setupCommand, authCommand, apiCommand, catalogCommand, spotifyCommand, playerCommand,
	}, devCommands...) {
		commands = append(commands, fn(r))
	}

	return commands
}

// route is the provider's navigator. A terminal has no pages, so route changes are only logged.
func (r *Runner) route(target string) error {
	r.logger.Debug("navigate", "route", target)
	return nil
}

// openOrPrint opens target in the browser, printing it when no browser can be launched.
func (r *Runner) openOrPrint(target string) error {
	if err := shared.OpenBrowser(target); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", target)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
