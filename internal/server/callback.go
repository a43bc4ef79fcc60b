package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/charmbracelet/log"
)

// DefaultCallbackPath is served when the redirect URI carries no path.
const DefaultCallbackPath = "/callback"

// Exchanger trades an authorization code for a stored Spotify credential.
type Exchanger interface {
	ExchangeCodeForToken(ctx context.Context, code string) (*models.SpotifyCredential, error)
}

// CallbackResult contains the outcome of a Spotify authorization callback.
type CallbackResult struct {
	Credential *models.SpotifyCredential
	err        error
}

func (c CallbackResult) Error() error {
	return c.err
}

// CallbackHandler receives the Spotify redirect, checks the state and exchanges the code.
// Implements the [Handler] interface for registration with a [Router].
type CallbackHandler struct {
	exchanger Exchanger
	path      string
	logger    *log.Logger
	results   chan CallbackResult
	once      sync.Once

	mu          sync.Mutex
	state       string
	callbackHit bool
}

// NewCallbackHandler creates a handler serving the path of redirectURI.
func NewCallbackHandler(exchanger Exchanger, redirectURI string, logger *log.Logger) *CallbackHandler {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &CallbackHandler{
		exchanger: exchanger,
		path:      CallbackPath(redirectURI),
		logger:    shared.WithLogger(logger, "component", "callback"),
		results:   make(chan CallbackResult, 1),
	}
}

// CallbackPath extracts the route from a redirect URI.
func CallbackPath(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Path == "" || u.Path == "/" {
		return DefaultCallbackPath
	}
	return u.Path
}

// Expect sets the state value the callback must echo back.
func (h *CallbackHandler) Expect(state string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP handles the redirect from the Spotify authorize page. Only the first hit is processed.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	expected := h.state
	h.mu.Unlock()

	query := r.URL.Query()
	if expected == "" || query.Get("state") != expected {
		h.Send(CallbackResult{err: fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	if reason := query.Get("error"); reason != "" {
		err := fmt.Errorf("%w: %s", shared.ErrAuthFailed, reason)
		if desc := query.Get("error_description"); desc != "" {
			err = fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, reason, desc)
		}
		h.Send(CallbackResult{err: err})
		h.render(w, http.StatusBadRequest, "Authorization failed", reason)
		return
	}

	cred, err := h.exchanger.ExchangeCodeForToken(r.Context(), query.Get("code"))
	if err != nil {
		h.logger.Warn("code exchange failed", "error", err)
		h.Send(CallbackResult{err: err})
		h.render(w, http.StatusBadGateway, "Authorization failed", "The token exchange did not succeed.")
		return
	}

	h.Send(CallbackResult{Credential: cred})
	h.render(w, http.StatusOK, "Spotify connected", "You can close this window and return to the terminal.")
}

// Send delivers the result through the channel (only once).
func (h *CallbackHandler) Send(result CallbackResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result returns the channel that receives exactly one result and is then closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.results
}

var page = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: {{if .OK}}#1DB954{{else}}#C0392B{{end}}; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

func (h *CallbackHandler) render(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := struct {
		Title, Message string
		OK             bool
	}{title, message, status == http.StatusOK}
	if err := page.Execute(w, data); err != nil {
		h.logger.Debug("failed to render callback page", "error", err)
	}
}
