package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"
	tu "github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/testing"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

type spotifyAPI struct {
	mu       sync.Mutex
	requests []recorded
	handler  http.HandlerFunc
}

func (a *spotifyAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	a.mu.Lock()
	a.requests = append(a.requests, recorded{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization"), string(body)})
	a.mu.Unlock()
	a.handler(w, r)
}

func (a *spotifyAPI) last() recorded {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[len(a.requests)-1]
}

func (a *spotifyAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func newSpotifyFixture(t *testing.T, handler http.HandlerFunc) (*SpotifyService, *spotifyAPI, *store.Store) {
	t.Helper()
	api := &spotifyAPI{handler: handler}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	s := store.New(store.NewMemoryBackend(), tu.NewFakeClock(now).Now)
	s.WriteSpotify(models.SpotifyCredential{AccessToken: "S1", ExpiresAt: now.Add(time.Hour)})

	srv := NewSpotifyService(SpotifyServiceOptions{
		BaseURL: server.URL + "/v1",
		Store:   s,
		Limiter: rate.NewLimiter(rate.Inf, 1),
	})
	return srv, api, s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestSpotifyService(t *testing.T) {
	t.Run("UserProfile", func(t *testing.T) {
		srv, api, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "display_name": "Jan", "product": "premium"})
		})

		user, err := srv.UserProfile(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != "u1" || !user.Premium() {
			t.Errorf("unexpected user %+v", user)
		}
		if got := api.last(); got.Path != "/v1/me" || got.Auth != "Bearer S1" {
			t.Errorf("unexpected request %+v", got)
		}
	})

	t.Run("Not Authenticated", func(t *testing.T) {
		srv, api, s := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {})
		s.ClearSpotify()

		if _, err := srv.UserProfile(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if api.count() != 0 {
			t.Error("expected no request")
		}
	})

	t.Run("Unauthorized Clears Token", func(t *testing.T) {
		srv, _, s := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401, "message": "The access token expired"}})
		})

		if _, err := srv.UserPlaylists(context.Background(), 10, 0); !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
		if _, ok := s.SpotifyToken(); ok {
			t.Error("expected spotify token cleared")
		}
	})

	t.Run("Premium Required", func(t *testing.T) {
		srv, _, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": map[string]any{"status": 403, "message": "Player command failed: Premium required", "reason": "PREMIUM_REQUIRED"}})
		})

		err := srv.Play(context.Background(), "d1", nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if !IsPremiumRequired(err) {
			t.Errorf("expected premium required, got %v", err)
		}
	})

	t.Run("Play", func(t *testing.T) {
		srv, api, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		if err := srv.Play(context.Background(), "d1", []string{"spotify:track:1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := api.last()
		if got.Method != http.MethodPut || got.Path != "/v1/me/player/play" || got.Query != "device_id=d1" {
			t.Errorf("unexpected request %+v", got)
		}
		if !strings.Contains(got.Body, `"spotify:track:1"`) {
			t.Errorf("expected uris in body, got %s", got.Body)
		}
	})

	t.Run("PlayerState", func(t *testing.T) {
		t.Run("Nothing Active", func(t *testing.T) {
			srv, _, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})

			state, err := srv.PlayerState(context.Background())
			if err != nil || state != nil {
				t.Errorf("expected nil state, got %+v %v", state, err)
			}
		})

		t.Run("Playing", func(t *testing.T) {
			srv, _, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{
					"device":      map[string]any{"id": "d1", "name": "top2000"},
					"progress_ms": 1000,
					"is_playing":  true,
					"item":        map[string]any{"id": "t1", "name": "Bohemian Rhapsody", "duration_ms": 354000, "artists": []any{map[string]any{"name": "Queen"}}},
				})
			})

			state, err := srv.PlayerState(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state == nil || !state.IsPlaying || state.Device.ID != "d1" || state.Item.Model().Artist() != "Queen" {
				t.Errorf("unexpected state %+v", state)
			}
		})
	})

	t.Run("Seek And Volume", func(t *testing.T) {
		srv, api, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		srv.Seek(context.Background(), "d1", 42000)
		if got := api.last(); got.Path != "/v1/me/player/seek" || !strings.Contains(got.Query, "position_ms=42000") {
			t.Errorf("unexpected seek request %+v", got)
		}

		srv.SetVolume(context.Background(), "d1", 150)
		if got := api.last(); got.Path != "/v1/me/player/volume" || !strings.Contains(got.Query, "volume_percent=100") {
			t.Errorf("expected clamped volume, got %+v", got)
		}
	})

	t.Run("TransferPlayback", func(t *testing.T) {
		srv, api, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		if err := srv.TransferPlayback(context.Background(), "d1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := api.last()
		if got.Method != http.MethodPut || got.Path != "/v1/me/player" || !strings.Contains(got.Body, `"device_ids":["d1"]`) {
			t.Errorf("unexpected request %+v", got)
		}
	})

	t.Run("SearchTracks", func(t *testing.T) {
		srv, api, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"tracks": map[string]any{"items": []any{map[string]any{"id": "t1", "name": "Hotel California"}}}})
		})

		tracks, err := srv.SearchTracks(context.Background(), "hotel california", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 1 || tracks[0].Name != "Hotel California" {
			t.Errorf("unexpected tracks %+v", tracks)
		}
		if q := api.last().Query; !strings.Contains(q, "type=track") || !strings.Contains(q, "limit=5") {
			t.Errorf("unexpected query %s", q)
		}
	})

	t.Run("Library", func(t *testing.T) {
		srv, api, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/me/tracks/contains" {
				ids := strings.Split(r.URL.Query().Get("ids"), ",")
				out := make([]bool, len(ids))
				for i := range out {
					out[i] = i%2 == 0
				}
				writeJSON(w, http.StatusOK, out)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		ids := make([]string, 60)
		for i := range ids {
			ids[i] = "t" + string(rune('a'+i%26))
		}
		if err := srv.SaveTracks(context.Background(), ids); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if api.count() != 2 {
			t.Errorf("expected 2 batched requests, got %d", api.count())
		}

		saved, err := srv.ContainsSavedTracks(context.Background(), ids)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(saved) != 60 {
			t.Errorf("expected 60 results, got %d", len(saved))
		}

		if err := srv.RemoveSavedTracks(context.Background(), ids[:1]); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := api.last(); got.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", got.Method)
		}

		if err := srv.SaveTracks(context.Background(), nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		srv, api, _ := newSpotifyFixture(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/tracks"):
				writeJSON(w, http.StatusCreated, map[string]any{"snapshot_id": "snap1"})
			case r.Method == http.MethodPost:
				writeJSON(w, http.StatusCreated, map[string]any{"id": "p1", "name": "Top 2000"})
			default:
				writeJSON(w, http.StatusOK, map[string]any{"items": []any{map[string]any{"id": "p1"}}, "total": 1})
			}
		})

		playlist, err := srv.CreatePlaylist(context.Background(), "u1", "Top 2000", "", false)
		if err != nil || playlist.ID != "p1" {
			t.Fatalf("unexpected result %+v %v", playlist, err)
		}
		if api.last().Path != "/v1/users/u1/playlists" {
			t.Errorf("unexpected path %s", api.last().Path)
		}

		snapshot, err := srv.AddTracksToPlaylist(context.Background(), "p1", []string{"spotify:track:1"})
		if err != nil || snapshot != "snap1" {
			t.Errorf("unexpected snapshot %q %v", snapshot, err)
		}

		page, err := srv.UsersPlaylists(context.Background(), "u1", 0, 0)
		if err != nil || page.Total != 1 {
			t.Errorf("unexpected page %+v %v", page, err)
		}
		if q := api.last().Query; q != "limit=20&offset=0" {
			t.Errorf("expected default paging, got %s", q)
		}
	})
}
