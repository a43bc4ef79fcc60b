package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed           = fmt.Errorf("authentication failed")
	ErrNotAuthenticated     = fmt.Errorf("not authenticated")
	ErrUnauthorized         = fmt.Errorf("unauthorized")
	ErrTokenExpired         = fmt.Errorf("access token expired")
	ErrConfirmationRequired = fmt.Errorf("account requires email confirmation")
	ErrTimeout              = fmt.Errorf("operation timed out")

	// Refresh errors
	ErrRefreshUnavailable = fmt.Errorf("no refresh token available")
	ErrRefreshRejected    = fmt.Errorf("token refresh rejected")

	// Spotify authorization errors
	ErrMissingVerifier        = fmt.Errorf("missing PKCE code verifier")
	ErrTokenExchangeRejected  = fmt.Errorf("token exchange rejected")
	ErrMalformedTokenResponse = fmt.Errorf("malformed token response")
	ErrEntropyUnavailable     = fmt.Errorf("secure random source unavailable")

	// API and service errors
	ErrNetwork            = fmt.Errorf("network error")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNotReady           = fmt.Errorf("playback device not ready")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
