// Package ui implements the terminal playback panel using bubbletea's Elm architecture.
//
// The panel has two views:
//  1. [NowPlayingView] : the current track, a position bar and the session state
//  2. [SearchView] : a track search whose results play on the panel's device
//
// The [Model] subscribes to a [playback.Session]-like [Controller]; every snapshot the session
// publishes is forwarded over a channel and arrives in Update as a message, so rendering never
// touches session state directly.
//
// Keyboard navigation uses single-key bindings (space, n, p, h/l, +/-, /) with contextual help
// displayed via charmbracelet/bubbles/help.
package ui
