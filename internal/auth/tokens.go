package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/gateway"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

// Field aliases accepted in token responses from the API.
var (
	accessTokenFields  = []string{"token", "accessToken", "access_token", "jwt"}
	refreshTokenFields = []string{"refreshToken", "refresh_token"}
	expiresAtFields    = []string{"expiresAt", "expires_at", "expiration", "expiry"}
	expiresInFields    = []string{"expiresIn", "expires_in"}
)

// epoch values above this are milliseconds
const millisThreshold = 1e12

// parseTokenResponse reads a login, register or refresh response body.
// The returned credential has an empty AccessToken when the body carries none.
func parseTokenResponse(body []byte, now time.Time) (models.ApplicationCredential, error) {
	var cred models.ApplicationCredential

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return cred, fmt.Errorf("%w: %v", shared.ErrMalformedTokenResponse, err)
	}

	cred.AccessToken = firstString(fields, accessTokenFields)
	cred.RefreshToken = firstString(fields, refreshTokenFields)

	for _, name := range expiresAtFields {
		if t, ok := parseInstant(fields[name]); ok {
			cred.ExpiresAt = &t
			return cred, nil
		}
	}
	for _, name := range expiresInFields {
		if secs, ok := number(fields[name]); ok && secs > 0 {
			t := now.Add(time.Duration(secs * float64(time.Second)))
			cred.ExpiresAt = &t
			return cred, nil
		}
	}
	return cred, nil
}

func firstString(fields map[string]any, names []string) string {
	for _, name := range names {
		if s, ok := fields[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func parseInstant(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range instantLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(n), true
		}
		return time.Time{}, false
	}

	if n, ok := number(v); ok && n > 0 {
		return epoch(n), true
	}
	return time.Time{}, false
}

func epoch(n float64) time.Time {
	if n > millisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// postJSON sends an unauthenticated JSON POST to the API and returns status and body.
// Transport failures wrap [shared.ErrNetwork].
func postJSON(ctx context.Context, client *http.Client, url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", shared.GenerateID())

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrNetwork, err)
	}
	return resp.StatusCode, body, nil
}

// statusError builds an error for a non-2xx API response, carrying its parsed problem when present.
func statusError(base error, status int, body []byte) error {
	if p := gateway.ParseProblem(body); p != nil {
		return fmt.Errorf("%w: status %d: %w", base, status, p)
	}
	return fmt.Errorf("%w: status %d", base, status)
}
