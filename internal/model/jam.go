package model

import (
	"slices"
	"time"

	"github.com/jamsession/api/internal/role"
	"github.com/jamsession/api/internal/roster"
)

// JamStatus is the lifecycle state of a jam. It only ever moves forward.
type JamStatus string

const (
	JamStatusPending JamStatus = "PENDING"
	JamStatusActive  JamStatus = "ACTIVE"
	JamStatusEnded   JamStatus = "ENDED"
)

// JoinType selects which roster a join request targets.
type JoinType string

const (
	JoinTypePlayer   JoinType = "PLAYER"
	JoinTypeAttendee JoinType = "ATTENDEE"
)

// Jam is a scheduled, role-based session.
type Jam struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Status        JamStatus      `json:"status"`
	VenueLocation string         `json:"venueLocation"`
	BasedOnSong   string         `json:"basedOnSong"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       time.Time      `json:"endTime"`
	HostID        int64          `json:"hostId"`
	RequiredRoles []role.Role    `json:"requiredRoles"`
	FilledRoles   []roster.Entry `json:"filledRoles"`
	PerformerIDs  []int64        `json:"performerIds"`
	AttendeeIDs   []int64        `json:"attendeeIds"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// IsFull reports whether every required slot has a holder.
func (j *Jam) IsFull() bool {
	return len(j.FilledRoles) == len(j.RequiredRoles)
}

// RequiredCount is the number of slots requiring r.
func (j *Jam) RequiredCount(r role.Role) int {
	n := 0
	for _, req := range j.RequiredRoles {
		if req == r {
			n++
		}
	}
	return n
}

// FillCount is the number of filled slots bearing r.
func (j *Jam) FillCount(r role.Role) int {
	return len(j.HolderOf(r))
}

// HolderOf lists the users holding a slot of role r.
func (j *Jam) HolderOf(r role.Role) []int64 {
	var out []int64
	for _, e := range j.FilledRoles {
		if e.Role == r {
			out = append(out, e.HolderID)
		}
	}
	return out
}

func (j *Jam) IsHost(userID int64) bool      { return j.HostID == userID }
func (j *Jam) IsPerformer(userID int64) bool { return slices.Contains(j.PerformerIDs, userID) }
func (j *Jam) IsAttendee(userID int64) bool  { return slices.Contains(j.AttendeeIDs, userID) }

// HasParticipant reports whether userID is on either roster.
func (j *Jam) HasParticipant(userID int64) bool {
	return j.IsPerformer(userID) || j.IsAttendee(userID)
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (j *Jam) Clone() *Jam {
	c := *j
	c.RequiredRoles = slices.Clone(j.RequiredRoles)
	c.FilledRoles = slices.Clone(j.FilledRoles)
	c.PerformerIDs = slices.Clone(j.PerformerIDs)
	c.AttendeeIDs = slices.Clone(j.AttendeeIDs)
	return &c
}
