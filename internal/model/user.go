package model

import (
	"slices"
	"time"

	"github.com/jamsession/api/internal/role"
)

// User is a registered musician. Roles lists the parts they can play.
type User struct {
	ID           int64       `json:"id"`
	Username     string      `json:"userName"`
	PasswordHash string      `json:"passwordHash,omitempty"`
	Roles        []role.Role `json:"roles"`
	PastJamIDs   []int64     `json:"pastJamIds"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// HasPlayedIn reports whether jamID is already in the user's history.
func (u *User) HasPlayedIn(jamID int64) bool {
	return slices.Contains(u.PastJamIDs, jamID)
}

func (u *User) Clone() *User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.PastJamIDs = slices.Clone(u.PastJamIDs)
	return &c
}

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID       int64
	Username string
}
