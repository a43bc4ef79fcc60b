package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// roleClaims are checked in order for an admin role.
var roleClaims = []string{
	"role",
	"roles",
	"http://schemas.microsoft.com/ws/2008/06/identity/claims/role",
}

// flagClaims are boolean style admin markers.
var flagClaims = []string{"isAdmin", "is_admin", "admin"}

const adminRole = "admin"

// IsAdmin reports whether the token's claims grant the admin role.
//
// The signature is not verified: the API is the authority and only the display decision depends on this.
// Malformed tokens are never admin.
func IsAdmin(token string) bool {
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	for _, name := range roleClaims {
		if hasAdminRole(claims[name]) {
			return true
		}
	}
	for _, name := range flagClaims {
		if truthy(claims[name]) {
			return true
		}
	}
	return false
}

func hasAdminRole(v any) bool {
	switch r := v.(type) {
	case string:
		return strings.EqualFold(r, adminRole)
	case []any:
		for _, item := range r {
			if s, ok := item.(string); ok && strings.EqualFold(s, adminRole) {
				return true
			}
		}
	}
	return false
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true") || b == "1"
	case float64:
		return b == 1
	}
	return false
}
