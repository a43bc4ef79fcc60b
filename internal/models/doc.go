// Package models defines the data carried through the token core.
//
// Credentials:
//   - [ApplicationCredential] : the Top2000 API JWT pair with absolute expiry
//   - [SpotifyCredential] : a Spotify access token valid until ExpiresAt
//
// Playback:
//   - [Track], [PlayerState] : what the streaming device reports
//
// Catalog:
//   - [Song], [Artist], [Page] : Top2000 API payloads
//
// Credentials live in two independent [Namespace] values so clearing one never touches the other.
package models
