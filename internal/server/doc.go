// Package server provides the loopback HTTP server that completes the Spotify authorization flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [LoggingMiddleware] and [RecoverMiddleware] are the two the CLI installs.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Callback Handler
//
// [CallbackHandler] serves the redirect URI path. It validates the state parameter, surfaces
// provider errors (error, error_description), hands the code to an [Exchanger] and sends
// exactly one [CallbackResult] through a channel. Repeat hits are rejected so a code is never
// exchanged twice.
//
// # Usage
//
// The CLI binds the server with [Listen] before opening the browser, then blocks in
// [AwaitCallback] until the result arrives or the timeout fires, and shuts the server down.
package server
