//go:build devadmin

package auth

import "github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/store"

// adminOverride honours the stored developer flag in devadmin builds.
func adminOverride(s *store.Store) (bool, bool) {
	if s == nil {
		return false, false
	}
	return s.DevAdminOverride()
}
