// Package pkce generates Proof Key for Code Exchange values (RFC 7636) for the Spotify
// authorization-code flow.
package pkce

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
	"golang.org/x/oauth2"
)

const (
	// ChallengeMethod is the only method this package produces.
	ChallengeMethod = "S256"

	MinVerifierLength     = 43
	MaxVerifierLength     = 128
	DefaultVerifierLength = MaxVerifierLength
)

// unreserved is the RFC 3986 unreserved character set allowed in a code verifier.
const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// maxUnbiased is the largest multiple of len(unreserved) that fits in a byte.
const maxUnbiased = 256 - (256 % len(unreserved))

var randReader io.Reader = rand.Reader

// GenerateVerifier returns a random code verifier of length characters drawn from the unreserved alphabet.
//
// length is clamped to [MinVerifierLength, MaxVerifierLength]. A failing entropy source is returned as
// [shared.ErrEntropyUnavailable]; there is no weaker fallback.
func GenerateVerifier(length int) (string, error) {
	if length < MinVerifierLength {
		length = MinVerifierLength
	}
	if length > MaxVerifierLength {
		length = MaxVerifierLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrEntropyUnavailable, err)
		}
		for _, b := range buf {
			// rejection sampling keeps every character equally likely
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, unreserved[int(b)%len(unreserved)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}

// DeriveChallenge returns base64url(SHA-256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// Pair is a verifier with its derived challenge.
type Pair struct {
	Verifier  string
	Challenge string
}

// New generates a verifier of [DefaultVerifierLength] and its challenge.
func New() (Pair, error) {
	v, err := GenerateVerifier(DefaultVerifierLength)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Verifier: v, Challenge: DeriveChallenge(v)}, nil
}

// AuthCodeOptions returns the oauth2 options that put the challenge on an authorization URL.
func (p Pair) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(p.Verifier)}
}
