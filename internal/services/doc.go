// Package services talks to the two HTTP collaborators of the token core: the Spotify accounts and
// Web API services, and the Top2000 catalog API.
//
// # Spotify Authorization
//
// [SpotifyAuth] runs the authorization code flow with PKCE for a public client. [SpotifyAuth.BeginAuthorization]
// stores a fresh code verifier and opens the authorize page; [SpotifyAuth.ExchangeCodeForToken] consumes the
// verifier and trades the code for an access token through [oauth2.Config.Exchange].
//
// Spotify tokens are never refreshed: when one expires the user authorizes again.
//
// # Spotify Web API
//
// [SpotifyService] reads the bearer token from the credential store on every request and is throttled with a
// [rate.Limiter]. A 401 clears the Spotify credential and returns [shared.ErrTokenExpired].
//
// # Catalog
//
// [CatalogService] goes through the authorized request gateway, so catalog calls share its refresh and
// invalidation behaviour.
//
// # Error Handling
//
//   - [shared.ErrMissingVerifier] : exchange attempted without a stored verifier
//   - [TokenExchangeError] : the accounts service rejected the code (wraps [shared.ErrTokenExchangeRejected])
//   - [shared.ErrMalformedTokenResponse] : success status without a usable token
//   - [shared.ErrNetwork] : transport failure
//   - [APIError] : non-2xx Web API response (wraps [shared.ErrAPIRequest])
package services
