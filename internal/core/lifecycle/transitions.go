package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
	"github.com/jamsession/api/internal/roster"
)

// NewJam builds the initial PENDING jam for a validated draft.
func NewJam(d Draft, hostID int64, now time.Time) *model.Jam {
	roles := make([]role.Role, len(d.RequiredRoles))
	for i, r := range d.RequiredRoles {
		roles[i] = role.Role(r)
	}
	return &model.Jam{
		Title:         d.Title,
		Status:        model.JamStatusPending,
		VenueLocation: d.VenueLocation,
		BasedOnSong:   d.BasedOnSong,
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		HostID:        hostID,
		RequiredRoles: roles,
		FilledRoles:   []roster.Entry{},
		PerformerIDs:  []int64{},
		AttendeeIDs:   []int64{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// JoinAsPlayer adds the user to the performers and records the slot they fill.
func JoinAsPlayer(jam *model.Jam, userID int64, r role.Role) {
	jam.PerformerIDs = append(jam.PerformerIDs, userID)
	jam.FilledRoles = append(jam.FilledRoles, roster.Entry{Role: r, HolderID: userID})
}

// JoinAsAttendee adds the user to the attendees.
func JoinAsAttendee(jam *model.Jam, userID int64) {
	jam.AttendeeIDs = append(jam.AttendeeIDs, userID)
}

// Leave removes the user from whichever rosters hold them. For a performer it
// drops exactly one filled slot keyed by holder, even if more exist. It returns
// the role that was vacated, if any.
func Leave(jam *model.Jam, userID int64) (role.Role, bool) {
	if i := slices.Index(jam.AttendeeIDs, userID); i >= 0 {
		jam.AttendeeIDs = slices.Delete(jam.AttendeeIDs, i, i+1)
	}
	i := slices.Index(jam.PerformerIDs, userID)
	if i < 0 {
		return "", false
	}
	jam.PerformerIDs = slices.Delete(jam.PerformerIDs, i, i+1)

	j := slices.IndexFunc(jam.FilledRoles, func(e roster.Entry) bool { return e.HolderID == userID })
	if j < 0 {
		return "", false
	}
	vacated := jam.FilledRoles[j].Role
	jam.FilledRoles = slices.Delete(jam.FilledRoles, j, j+1)
	return vacated, true
}

// Start moves the jam to ACTIVE and stamps the actual start time.
func Start(jam *model.Jam, now time.Time) {
	jam.Status = model.JamStatusActive
	jam.StartTime = now
}

// End moves the jam to ENDED, stamps the actual end time and returns the
// performers whose history must record this jam.
func End(jam *model.Jam, now time.Time) []int64 {
	jam.Status = model.JamStatusEnded
	jam.EndTime = now
	return slices.Clone(jam.PerformerIDs)
}

// Verify checks the roster invariants of a jam.
func Verify(jam *model.Jam) error {
	if len(jam.FilledRoles) > len(jam.RequiredRoles) {
		return fmt.Errorf("jam %d: %d filled slots exceed %d required", jam.ID, len(jam.FilledRoles), len(jam.RequiredRoles))
	}
	for _, e := range jam.FilledRoles {
		if jam.FillCount(e.Role) > jam.RequiredCount(e.Role) {
			return fmt.Errorf("jam %d: %s is over-filled", jam.ID, e.Role)
		}
	}
	if jam.IsPerformer(jam.HostID) || jam.IsAttendee(jam.HostID) {
		return fmt.Errorf("jam %d: host %d is on a roster", jam.ID, jam.HostID)
	}

	holders := make(map[int64]int, len(jam.FilledRoles))
	for _, e := range jam.FilledRoles {
		holders[e.HolderID]++
	}
	performers := make(map[int64]int, len(jam.PerformerIDs))
	for _, id := range jam.PerformerIDs {
		performers[id]++
	}
	if len(holders) != len(performers) {
		return fmt.Errorf("jam %d: performers and slot holders differ", jam.ID)
	}
	for id, n := range performers {
		if holders[id] != n {
			return fmt.Errorf("jam %d: performer %d holds %d slots", jam.ID, id, holders[id])
		}
	}
	return nil
}
