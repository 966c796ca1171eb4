// Package eligibility computes which roles a user may still claim on a jam.
// This is part of the functional core: no I/O, only pure functions.
package eligibility

import (
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
)

// OpenSlots counts the unfilled slots per role. Slots of the same role are
// fungible, so only counts matter.
func OpenSlots(jam *model.Jam) map[role.Role]int {
	open := make(map[role.Role]int)
	for _, r := range jam.RequiredRoles {
		open[r]++
	}
	for _, e := range jam.FilledRoles {
		if open[e.Role] > 0 {
			open[e.Role]--
		}
	}
	for r, n := range open {
		if n == 0 {
			delete(open, r)
		}
	}
	return open
}

// PossibleRoles returns the user's capabilities that still have an open slot,
// in capability order without duplicates. An empty result is not an error.
func PossibleRoles(jam *model.Jam, user *model.User) []role.Role {
	open := OpenSlots(jam)
	out := make([]role.Role, 0, len(user.Roles))
	seen := make(map[role.Role]bool, len(user.Roles))
	for _, r := range user.Roles {
		if seen[r] {
			continue
		}
		seen[r] = true
		if open[r] > 0 {
			out = append(out, r)
		}
	}
	return out
}

// CanClaim reports whether r is among the user's possible roles.
func CanClaim(jam *model.Jam, user *model.User, r role.Role) bool {
	for _, p := range PossibleRoles(jam, user) {
		if p == r {
			return true
		}
	}
	return false
}
