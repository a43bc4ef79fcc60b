package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/services"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"
	tu "github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/testing"
	"github.com/urfave/cli/v3"
)

// run executes args against a fresh root command built from r.
func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "top2000", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"top2000"}, args...))
}

func testRunner(t *testing.T, apiURL string) (*Runner, *bytes.Buffer, *store.Store) {
	t.Helper()
	config := shared.DefaultConfig()
	config.API.BaseURL = apiURL
	output := &bytes.Buffer{}
	st := store.New(store.NewMemoryBackend(), nil)
	r := NewRunner(RunnerOpts{
		Config: config,
		Store:  st,
		Logger: shared.NopLogger(),
		Output: output,
	})
	t.Cleanup(r.Close)
	return r, output, st
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			st := store.New(nil, nil)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Store:      st,
			})
			defer runner.Close()

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.store != st {
				t.Error("expected store to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			defer runner.Close()

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.provider == nil || runner.api == nil || runner.catalog == nil || runner.spotify == nil {
				t.Error("expected the service stack to be built")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			defer runner.Close()

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses configured timeout", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.API.TimeoutSeconds = 7
			runner := NewRunner(RunnerOpts{Config: config})
			defer runner.Close()

			if runner.httpClient.Timeout != 7*time.Second {
				t.Errorf("expected 7s timeout, got %s", runner.httpClient.Timeout)
			}
		})

		t.Run("without a client id spotify auth is unavailable", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			defer runner.Close()

			if runner.spotifyAuth != nil {
				t.Error("expected nil spotify auth for the template client id")
			}
		})

		t.Run("with a client id spotify auth is built", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = "abc"
			runner := NewRunner(RunnerOpts{Config: config})
			defer runner.Close()

			if runner.spotifyAuth == nil {
				t.Fatal("expected spotify auth")
			}
			if runner.spotifyAuth.RedirectURI() != config.Credentials.Spotify.RedirectURI {
				t.Errorf("unexpected redirect uri %s", runner.spotifyAuth.RedirectURI())
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			if err := runner.writeJSON(data, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		defer runner.Close()

		names := map[string]bool{}
		for i, cmd := range runner.register() {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "auth", "api", "catalog", "spotify", "player"} {
			if !names[want] {
				t.Errorf("expected %q command", want)
			}
		}
	})
}

func TestAuthCommands(t *testing.T) {
	var refreshed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"title":"Unauthorized","detail":"Invalid email or password"}`))
				return
			}
			w.Write([]byte(`{"token":"T1","refreshToken":"R1","expiresIn":3600}`))
		case "/auth/register":
			w.WriteHeader(http.StatusOK)
		case "/auth/refresh-token":
			refreshed.Add(1)
			w.Write([]byte(`{"token":"T2","refreshToken":"R2","expiresIn":3600}`))
		case "/auth/me":
			if r.Header.Get("Authorization") == "Bearer T1" || r.Header.Get("Authorization") == "Bearer T2" {
				w.Write([]byte(`{"email":"a@b.c"}`))
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Run("login stores the session", func(t *testing.T) {
		r, out, st := testRunner(t, srv.URL)

		if err := run(t, r, "auth", "login", "--email", "a@b.c", "--password", "secret"); err != nil {
			t.Fatalf("login: %v", err)
		}
		cred, _ := st.ReadApplication()
		if cred == nil || cred.AccessToken != "T1" || cred.RefreshToken != "R1" {
			t.Fatalf("unexpected credential %+v", cred)
		}
		if !strings.Contains(out.String(), "Logged in as a@b.c") {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("rejected login shows the API message", func(t *testing.T) {
		r, _, st := testRunner(t, srv.URL)

		err := run(t, r, "auth", "login", "--email", "a@b.c", "--password", "wrong")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if !strings.Contains(err.Error(), "Invalid email or password") {
			t.Errorf("expected API detail in %q", err.Error())
		}
		if cred, _ := st.ReadApplication(); cred != nil {
			t.Error("expected nothing stored")
		}
	})

	t.Run("register pending confirmation is not an error", func(t *testing.T) {
		r, out, _ := testRunner(t, srv.URL)

		if err := run(t, r, "auth", "register", "--email", "a@b.c", "--password", "pw"); err != nil {
			t.Fatalf("register: %v", err)
		}
		if !strings.Contains(out.String(), "Confirm your email") {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("status reports a valid token", func(t *testing.T) {
		r, out, st := testRunner(t, srv.URL)
		exp := time.Now().Add(time.Hour)
		st.WriteApplication(models.ApplicationCredential{AccessToken: "T1", RefreshToken: "R1", ExpiresAt: &exp})

		if err := run(t, r, "auth", "status"); err != nil {
			t.Fatalf("status: %v", err)
		}
		if !strings.Contains(out.String(), "Token accepted") {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("status without session", func(t *testing.T) {
		r, out, _ := testRunner(t, srv.URL)

		if err := run(t, r, "auth", "status"); err != nil {
			t.Fatalf("status: %v", err)
		}
		if !strings.Contains(out.String(), "Not logged in") {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("refresh rotates the token", func(t *testing.T) {
		r, _, st := testRunner(t, srv.URL)
		exp := time.Now().Add(time.Hour)
		st.WriteApplication(models.ApplicationCredential{AccessToken: "T1", RefreshToken: "R1", ExpiresAt: &exp})

		before := refreshed.Load()
		if err := run(t, r, "auth", "refresh"); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if got := refreshed.Load() - before; got != 1 {
			t.Errorf("expected one refresh call, got %d", got)
		}
		cred, _ := st.ReadApplication()
		if cred == nil || cred.AccessToken != "T2" {
			t.Errorf("expected T2, got %+v", cred)
		}
	})

	t.Run("logout clears the session", func(t *testing.T) {
		r, _, st := testRunner(t, srv.URL)
		st.WriteApplication(models.ApplicationCredential{AccessToken: "T1"})

		if err := run(t, r, "auth", "logout"); err != nil {
			t.Fatalf("logout: %v", err)
		}
		if cred, _ := st.ReadApplication(); cred != nil {
			t.Error("expected session cleared")
		}
	})
}

func TestCatalogAndAPICommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/songs":
			if r.URL.Query().Get("year") != "2024" {
				t.Errorf("expected year 2024, got %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"items":[{"id":1,"title":"Bohemian Rhapsody","artistName":"Queen","releaseYear":1975,"position":1}],"page":1,"pageSize":20,"totalCount":2000}`))
		case "/years":
			w.Write([]byte(`[2023,2024]`))
		case "/artists/7":
			w.Write([]byte(`{"id":7,"name":"Queen","biography":"British rock band."}`))
		case "/echo":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"auth":"` + r.Header.Get("Authorization") + `"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Run("songs prints ranked entries", func(t *testing.T) {
		r, out, _ := testRunner(t, srv.URL)

		if err := run(t, r, "catalog", "songs", "--year", "2024"); err != nil {
			t.Fatalf("songs: %v", err)
		}
		for _, want := range []string{"Top2000 2024", "1. Queen - Bohemian Rhapsody (1975)", "next: --page 2"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("missing %q in %q", want, out.String())
			}
		}
	})

	t.Run("artist prints the biography", func(t *testing.T) {
		r, out, _ := testRunner(t, srv.URL)

		if err := run(t, r, "catalog", "artist", "7"); err != nil {
			t.Fatalf("artist: %v", err)
		}
		for _, want := range []string{"Queen", "British rock band."} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("missing %q in %q", want, out.String())
			}
		}
		if err := run(t, r, "catalog", "artist"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("years as JSON", func(t *testing.T) {
		r, out, _ := testRunner(t, srv.URL)

		if err := run(t, r, "catalog", "years", "--json", "--pretty=false"); err != nil {
			t.Fatalf("years: %v", err)
		}
		if strings.TrimSpace(out.String()) != "[2023,2024]" {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("api get sends the bearer token", func(t *testing.T) {
		r, out, st := testRunner(t, srv.URL)
		st.WriteApplication(models.ApplicationCredential{AccessToken: "T1"})

		if err := run(t, r, "api", "get", "/echo", "--json"); err != nil {
			t.Fatalf("get: %v", err)
		}
		if !strings.Contains(out.String(), `"auth":"Bearer T1"`) {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("api get surfaces status errors", func(t *testing.T) {
		r, _, _ := testRunner(t, srv.URL)

		if err := run(t, r, "api", "get", "/missing"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("api post rejects invalid JSON", func(t *testing.T) {
		r, _, _ := testRunner(t, srv.URL)

		if err := run(t, r, "api", "post", "/echo", "--data", "{nope"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestSpotifyCommands(t *testing.T) {
	var (
		mu     sync.Mutex
		device string
		uris   []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer S1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/me":
			w.Write([]byte(`{"id":"u1","display_name":"Listener","product":"free"}`))
		case "/me/tracks":
			if r.URL.Query().Get("offset") != "5" {
				t.Errorf("expected offset 5, got %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"items":[{"added_at":"2024-12-25T00:00:00Z","track":{"id":"t1","name":"Africa","uri":"spotify:track:t1","artists":[{"name":"Toto"}]}}],"total":9,"limit":20,"offset":5}`))
		case "/me/player/play":
			var body struct {
				URIs []string `json:"uris"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			device, uris = r.URL.Query().Get("device_id"), body.URIs
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	newRunner := func(t *testing.T) (*Runner, *bytes.Buffer, *store.Store) {
		t.Helper()
		st := store.New(store.NewMemoryBackend(), nil)
		out := &bytes.Buffer{}
		r := NewRunner(RunnerOpts{
			Store:  st,
			Logger: shared.NopLogger(),
			Output: out,
			Spotify: services.NewSpotifyService(services.SpotifyServiceOptions{
				BaseURL: srv.URL,
				Store:   st,
			}),
		})
		t.Cleanup(r.Close)
		return r, out, st
	}

	t.Run("me warns about free accounts", func(t *testing.T) {
		r, out, st := newRunner(t)
		st.WriteSpotify(models.SpotifyCredential{AccessToken: "S1", ExpiresAt: time.Now().Add(time.Hour)})

		if err := run(t, r, "spotify", "me"); err != nil {
			t.Fatalf("me: %v", err)
		}
		if !strings.Contains(out.String(), "requires Spotify Premium") {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("me without a token points at spotify auth", func(t *testing.T) {
		r, _, _ := newRunner(t)

		err := run(t, r, "spotify", "me")
		if !errors.Is(err, shared.ErrNotAuthenticated) || !strings.Contains(err.Error(), "spotify auth") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("saved lists library tracks", func(t *testing.T) {
		r, out, st := newRunner(t)
		st.WriteSpotify(models.SpotifyCredential{AccessToken: "S1", ExpiresAt: time.Now().Add(time.Hour)})

		if err := run(t, r, "spotify", "saved", "--offset", "5"); err != nil {
			t.Fatalf("saved: %v", err)
		}
		for _, want := range []string{"Saved tracks 6-6 of 9", " 6. Toto - Africa", "spotify:track:t1"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("missing %q in %q", want, out.String())
			}
		}
	})

	t.Run("play uses the remembered device", func(t *testing.T) {
		r, _, st := newRunner(t)
		st.WriteSpotify(models.SpotifyCredential{AccessToken: "S1", ExpiresAt: time.Now().Add(time.Hour)})
		st.SaveDeviceID("dev-1")

		if err := run(t, r, "spotify", "play", "spotify:track:1", "spotify:track:2"); err != nil {
			t.Fatalf("play: %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if device != "dev-1" || len(uris) != 2 {
			t.Errorf("unexpected play %s %v", device, uris)
		}
	})

	t.Run("logout clears the token", func(t *testing.T) {
		r, _, st := newRunner(t)
		st.WriteSpotify(models.SpotifyCredential{AccessToken: "S1", ExpiresAt: time.Now().Add(time.Hour)})

		if err := run(t, r, "spotify", "logout"); err != nil {
			t.Fatalf("logout: %v", err)
		}
		if _, ok := st.SpotifyToken(); ok {
			t.Error("expected spotify token cleared")
		}
	})

	t.Run("auth requires a client id", func(t *testing.T) {
		r, _, _ := newRunner(t)

		if err := run(t, r, "spotify", "auth"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestCallbackAddr(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:3000/callback", "127.0.0.1:3000", false},
		{"http://localhost:8080/cb", "localhost:8080", false},
		{"/callback", "127.0.0.1:3000", false},
		{"http://localhost/callback", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := callbackAddr(tt.uri, "127.0.0.1:3000")
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("callbackAddr(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the template once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		r, _, _ := testRunner(t, "http://localhost")

		if err := run(t, r, "setup", "config", "--config", path); err != nil {
			t.Fatalf("setup config: %v", err)
		}
		if _, err := shared.LoadConfig(path); err != nil {
			t.Fatalf("written config does not load: %v", err)
		}
		if err := run(t, r, "setup", "config", "--config", path); err == nil {
			t.Error("expected error when config exists")
		}
	})

	t.Run("database runs migrations", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		config := shared.DefaultConfig()
		config.Storage.Path = filepath.Join(dir, "creds.db")
		if err := shared.SaveConfig(path, config); err != nil {
			t.Fatal(err)
		}
		t.Setenv(shared.EnvStoragePath, "")

		r, _, _ := testRunner(t, "http://localhost")
		if err := run(t, r, "setup", "database", "--config", path); err != nil {
			t.Fatalf("setup database: %v", err)
		}
		if _, err := os.Stat(config.Storage.Path); err != nil {
			t.Errorf("expected database file: %v", err)
		}

		if err := run(t, r, "setup", "database", "--config", path, "--rollback"); err != nil {
			t.Fatalf("rollback: %v", err)
		}
		if err := run(t, r, "setup", "database", "--config", path, "--rollback"); err == nil {
			t.Error("expected error when nothing is left to roll back")
		}
	})
}
