package client

import "github.com/transcope/fleet-auth/internal/core/domain"

// SessionRole converts a wire role ("safety_officer") to session form
// ("SAFETY_OFFICER"). Unknown values are returned unchanged.
func SessionRole(wire string) string {
	if r, err := domain.ParseWireRole(wire); err == nil {
		return r.Session()
	}
	return wire
}

// WireRole converts a session role to wire form. Unknown values are returned
// unchanged and left for the server to reject.
func WireRole(session string) string {
	if r, err := domain.ParseSessionRole(session); err == nil {
		return r.Wire()
	}
	return session
}

// RoleDisplayName returns the dashboard label for a session role, or the
// role itself when unknown.
func RoleDisplayName(session string) string {
	if r, err := domain.ParseSessionRole(session); err == nil {
		return r.DisplayName()
	}
	return session
}
