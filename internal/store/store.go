// Package store persists jams and users. Every jam mutation is a
// read-modify-write transaction on the freshest stored copy, so concurrent
// requests for one jam are serialized by the backend.
package store

import (
	"context"
	"errors"

	"github.com/jamsession/api/internal/model"
)

var (
	// ErrNotFound means no record has the requested key.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict means the transaction kept losing to concurrent writers.
	ErrConflict = errors.New("store: concurrent update")
	// ErrDuplicate means a unique key is already taken.
	ErrDuplicate = errors.New("store: duplicate key")
)

// JamFilter narrows ListJams. Zero fields match everything; set fields are
// combined with OR so a scheduling check can fetch venue and host candidates
// in one call.
type JamFilter struct {
	Status model.JamStatus
	HostID int64
	Venue  string
}

// Matches reports whether j satisfies the filter. Status is ANDed with the
// OR of HostID and Venue.
func (f JamFilter) Matches(j *model.Jam) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.HostID == 0 && f.Venue == "" {
		return true
	}
	return (f.HostID != 0 && j.HostID == f.HostID) || (f.Venue != "" && j.VenueLocation == f.Venue)
}

// CreateCheck inspects the jams that share the candidate's venue or host and
// vetoes the insert by returning an error.
type CreateCheck func(existing []model.Jam) error

// MutateFunc edits a fresh copy of a jam in place. Returning an error aborts
// the transaction and leaves the stored jam untouched.
type MutateFunc func(jam *model.Jam) error

// DeleteCheck vetoes a delete by returning an error.
type DeleteCheck func(jam *model.Jam) error

// Store is the persistence contract of the engine.
type Store interface {
	GetJam(ctx context.Context, id int64) (*model.Jam, error)
	ListJams(ctx context.Context, f JamFilter) ([]model.Jam, error)
	// CreateJam runs check against the jams at the same venue or with the same
	// host and inserts jam if it passes. The new ID and Version are set on jam.
	CreateJam(ctx context.Context, jam *model.Jam, check CreateCheck) error
	// UpdateJam applies mutate to the stored jam and commits it with Version+1.
	UpdateJam(ctx context.Context, id int64, mutate MutateFunc) (*model.Jam, error)
	DeleteJam(ctx context.Context, id int64, check DeleteCheck) error

	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	// AppendPastJam adds jamID to the user's history unless already present.
	AppendPastJam(ctx context.Context, userID, jamID int64) error

	Close() error
}
