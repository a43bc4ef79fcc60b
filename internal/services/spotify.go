// Spotify Web API client
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	maxPageSize = 50
	// maxBatch is the Web API limit for id lists on library endpoints.
	maxBatch = 50
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// Premium reports whether the account can stream through Spotify Connect.
func (u *SpotifyUser) Premium() bool {
	return u.Product == "premium"
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	URI        string          `json:"uri"`
}

// Model converts the track to the playback model.
func (t SpotifyTrack) Model() models.Track {
	track := models.Track{ID: t.ID, URI: t.URI, Name: t.Name, Album: t.Album.Name}
	for _, a := range t.Artists {
		track.Artists = append(track.Artists, a.Name)
	}
	if len(t.Album.Images) > 0 {
		track.ImageURL = t.Album.Images[0].URL
	}
	return track
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type playlistTracks struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a simplified playlist object.
type SpotifyPlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Owner       Owner          `json:"owner"`
	Public      bool           `json:"public"`
	Tracks      playlistTracks `json:"tracks"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// SpotifyPage is a paginated Web API response.
type SpotifyPage[T any] struct {
	Items    []T     `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyDevice is a Spotify Connect device.
type SpotifyDevice struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	VolumePercent *int   `json:"volume_percent"`
}

// SpotifyPlaybackState is the response of GET /me/player.
type SpotifyPlaybackState struct {
	Device     SpotifyDevice `json:"device"`
	ProgressMS int           `json:"progress_ms"`
	IsPlaying  bool          `json:"is_playing"`
	Item       *SpotifyTrack `json:"item"`
}

// APIError is a non-2xx Web API response other than 401.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: spotify status %d", shared.ErrAPIRequest, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return shared.ErrAPIRequest
}

// PremiumRequired reports the Connect restriction for free accounts.
func (e *APIError) PremiumRequired() bool {
	return e.StatusCode == http.StatusForbidden && strings.EqualFold(e.Reason, "premium_required")
}

// SpotifyTokenStore supplies the bearer token and drops it once the Web API rejects it.
type SpotifyTokenStore interface {
	SpotifyToken() (string, bool)
	ClearSpotify() error
}

// SpotifyServiceOptions configures [SpotifyService].
type SpotifyServiceOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      SpotifyTokenStore
	Limiter    *rate.Limiter
	Logger     *log.Logger
}

// SpotifyService is a rate limited Spotify Web API client authorized by the stored Spotify token.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
	store      SpotifyTokenStore
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewSpotifyService creates a [SpotifyService]. Without a limiter requests are limited to 10/s.
func NewSpotifyService(opts SpotifyServiceOptions) *SpotifyService {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(10), 5)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}

	return &SpotifyService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		limiter:    opts.Limiter,
		logger:     shared.WithLogger(opts.Logger, "component", "spotify"),
	}
}

// doRequest performs an authenticated request. A nil result skips decoding; 204 leaves result untouched.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	if s.store == nil {
		return shared.ErrNotAuthenticated
	}
	token, ok := s.store.SpotifyToken()
	if !ok {
		return shared.ErrNotAuthenticated
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", shared.ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		s.logger.Warn("spotify token rejected, clearing", "endpoint", endpoint)
		if err := s.store.ClearSpotify(); err != nil {
			s.logger.Error("failed to clear spotify credentials", "error", err)
		}
		return shared.ErrTokenExpired
	}

	if !shared.Is2xx(resp.StatusCode) {
		return parseAPIError(resp.StatusCode, data)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Error) == 0 {
		return apiErr
	}

	var detail struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(payload.Error, &detail); err == nil {
		apiErr.Message, apiErr.Reason = detail.Message, detail.Reason
		return apiErr
	}

	// the accounts style error is a bare string
	json.Unmarshal(payload.Error, &apiErr.Message)
	return apiErr
}

// IsPremiumRequired reports whether err is the Connect restriction for free accounts.
func IsPremiumRequired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.PremiumRequired()
}

func pageQuery(limit, offset int) url.Values {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
}

func deviceQuery(deviceID string) url.Values {
	if deviceID == "" {
		return nil
	}
	return url.Values{"device_id": {deviceID}}
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPage[SpotifyPlaylist], error) {
	var page SpotifyPage[SpotifyPlaylist]
	if err := s.doRequest(ctx, http.MethodGet, "/me/playlists", pageQuery(limit, offset), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UsersPlaylists retrieves another user's public playlists.
func (s *SpotifyService) UsersPlaylists(ctx context.Context, userID string, limit, offset int) (*SpotifyPage[SpotifyPlaylist], error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	var page SpotifyPage[SpotifyPlaylist]
	endpoint := "/users/" + url.PathEscape(userID) + "/playlists"
	if err := s.doRequest(ctx, http.MethodGet, endpoint, pageQuery(limit, offset), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreatePlaylist creates a playlist owned by userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (*SpotifyPlaylist, error) {
	if userID == "" || name == "" {
		return nil, fmt.Errorf("%w: user id and name", shared.ErrMissingArgument)
	}
	body := map[string]any{"name": name, "description": description, "public": public}

	var playlist SpotifyPlaylist
	endpoint := "/users/" + url.PathEscape(userID) + "/playlists"
	if err := s.doRequest(ctx, http.MethodPost, endpoint, nil, body, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// AddTracksToPlaylist appends track URIs to a playlist and returns the new snapshot id.
func (s *SpotifyService) AddTracksToPlaylist(ctx context.Context, playlistID string, uris []string) (string, error) {
	if playlistID == "" || len(uris) == 0 {
		return "", fmt.Errorf("%w: playlist id and track uris", shared.ErrMissingArgument)
	}

	var snapshot string
	for chunk := range slices.Chunk(uris, 100) {
		var resp struct {
			SnapshotID string `json:"snapshot_id"`
		}
		endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
		if err := s.doRequest(ctx, http.MethodPost, endpoint, nil, map[string]any{"uris": chunk}, &resp); err != nil {
			return "", err
		}
		snapshot = resp.SnapshotID
	}
	return snapshot, nil
}

// SearchTracks searches the catalog for tracks.
func (s *SpotifyService) SearchTracks(ctx context.Context, q string, limit int) ([]SpotifyTrack, error) {
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	query := pageQuery(limit, 0)
	query.Set("q", q)
	query.Set("type", "track")

	var resp struct {
		Tracks SpotifyPage[SpotifyTrack] `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/search", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks.Items, nil
}

// Play starts playback of uris on deviceID. Empty uris resumes the current context.
func (s *SpotifyService) Play(ctx context.Context, deviceID string, uris []string) error {
	var body any
	if len(uris) > 0 {
		body = map[string]any{"uris": uris}
	}
	return s.doRequest(ctx, http.MethodPut, "/me/player/play", deviceQuery(deviceID), body, nil)
}

// Pause pauses playback on deviceID.
func (s *SpotifyService) Pause(ctx context.Context, deviceID string) error {
	return s.doRequest(ctx, http.MethodPut, "/me/player/pause", deviceQuery(deviceID), nil, nil)
}

// Next skips to the next track.
func (s *SpotifyService) Next(ctx context.Context, deviceID string) error {
	return s.doRequest(ctx, http.MethodPost, "/me/player/next", deviceQuery(deviceID), nil, nil)
}

// Previous skips to the previous track.
func (s *SpotifyService) Previous(ctx context.Context, deviceID string) error {
	return s.doRequest(ctx, http.MethodPost, "/me/player/previous", deviceQuery(deviceID), nil, nil)
}

// Seek moves the playhead to positionMS.
func (s *SpotifyService) Seek(ctx context.Context, deviceID string, positionMS int) error {
	query := deviceQuery(deviceID)
	if query == nil {
		query = url.Values{}
	}
	query.Set("position_ms", strconv.Itoa(max(positionMS, 0)))
	return s.doRequest(ctx, http.MethodPut, "/me/player/seek", query, nil, nil)
}

// SetVolume sets the device volume, clamped to 0-100.
func (s *SpotifyService) SetVolume(ctx context.Context, deviceID string, percent int) error {
	query := deviceQuery(deviceID)
	if query == nil {
		query = url.Values{}
	}
	query.Set("volume_percent", strconv.Itoa(min(max(percent, 0), 100)))
	return s.doRequest(ctx, http.MethodPut, "/me/player/volume", query, nil, nil)
}

// PlayerState returns the current playback state, nil when nothing is active.
func (s *SpotifyService) PlayerState(ctx context.Context) (*SpotifyPlaybackState, error) {
	var state SpotifyPlaybackState
	var present bool
	if err := s.doRequest(ctx, http.MethodGet, "/me/player", nil, nil, &probe{v: &state, seen: &present}); err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return &state, nil
}

// Devices lists the user's Connect devices.
func (s *SpotifyService) Devices(ctx context.Context) ([]SpotifyDevice, error) {
	var resp struct {
		Devices []SpotifyDevice `json:"devices"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// TransferPlayback moves playback to deviceID without starting it.
func (s *SpotifyService) TransferPlayback(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id", shared.ErrMissingArgument)
	}
	body := map[string]any{"device_ids": []string{deviceID}, "play": false}
	return s.doRequest(ctx, http.MethodPut, "/me/player", nil, body, nil)
}

// SavedTracks retrieves the user's saved tracks with pagination.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPage[SpotifySavedTrack], error) {
	var page SpotifyPage[SpotifySavedTrack]
	if err := s.doRequest(ctx, http.MethodGet, "/me/tracks", pageQuery(limit, offset), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SaveTracks adds track ids to the user's library.
func (s *SpotifyService) SaveTracks(ctx context.Context, ids []string) error {
	return s.library(ctx, http.MethodPut, ids)
}

// RemoveSavedTracks removes track ids from the user's library.
func (s *SpotifyService) RemoveSavedTracks(ctx context.Context, ids []string) error {
	return s.library(ctx, http.MethodDelete, ids)
}

func (s *SpotifyService) library(ctx context.Context, method string, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: track ids", shared.ErrMissingArgument)
	}
	for chunk := range slices.Chunk(ids, maxBatch) {
		if err := s.doRequest(ctx, method, "/me/tracks", nil, map[string]any{"ids": chunk}, nil); err != nil {
			return err
		}
	}
	return nil
}

// ContainsSavedTracks reports for each id whether it is in the user's library.
func (s *SpotifyService) ContainsSavedTracks(ctx context.Context, ids []string) ([]bool, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: track ids", shared.ErrMissingArgument)
	}

	out := make([]bool, 0, len(ids))
	for chunk := range slices.Chunk(ids, maxBatch) {
		var saved []bool
		query := url.Values{"ids": {strings.Join(chunk, ",")}}
		if err := s.doRequest(ctx, http.MethodGet, "/me/tracks/contains", query, nil, &saved); err != nil {
			return nil, err
		}
		out = append(out, saved...)
	}
	return out, nil
}

// probe records whether a body was decoded, to tell 204 from an empty object.
type probe struct {
	v    any
	seen *bool
}

func (p *probe) UnmarshalJSON(data []byte) error {
	*p.seen = true
	return json.Unmarshal(data, p.v)
}
