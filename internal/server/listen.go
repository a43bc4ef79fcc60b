package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"github.com/charmbracelet/log"
)

// Local is a short-lived HTTP server bound to a loopback address.
type Local struct {
	srv      *http.Server
	listener net.Listener
	errs     chan error
	logger   *log.Logger
}

// Listen binds addr and starts serving handler in the background.
//
// The port is bound before Listen returns, so a browser redirect cannot arrive before the server is up.
func Listen(addr string, handler http.Handler, logger *log.Logger) (*Local, error) {
	if logger == nil {
		logger = shared.NopLogger()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l := &Local{
		srv:      &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		listener: ln,
		errs:     make(chan error, 1),
		logger:   logger,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.errs <- err
		}
	}()

	logger.Debug("callback server listening", "addr", ln.Addr().String())
	return l, nil
}

// Addr returns the bound address.
func (l *Local) Addr() string {
	return l.listener.Addr().String()
}

// Errors reports a failure of the serve loop.
func (l *Local) Errors() <-chan error {
	return l.errs
}

// Shutdown stops the server, waiting up to five seconds for in-flight requests.
func (l *Local) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.srv.Shutdown(ctx); err != nil {
		l.logger.Warn("error shutting down server", "error", err)
	}
}

// AwaitCallback waits for the handler's result, a server failure, the timeout or ctx cancellation.
func AwaitCallback(ctx context.Context, l *Local, h *CallbackHandler, timeout time.Duration) (CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-h.Result():
		return result, nil
	case err := <-l.Errors():
		return CallbackResult{}, fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return CallbackResult{}, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}
