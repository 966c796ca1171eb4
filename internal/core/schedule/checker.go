// Package schedule detects venue collisions and host double-booking when a
// jam is created. This is part of the functional core: no I/O.
package schedule

import (
	"time"

	"github.com/jamsession/api/internal/model"
)

// Verdict is the outcome of a creation check.
type Verdict string

const (
	None              Verdict = ""
	InvalidSchedule   Verdict = "INVALID_SCHEDULE"
	VenueConflict     Verdict = "VENUE_CONFLICT"
	HostDoubleBooking Verdict = "HOST_DOUBLE_BOOKING"
)

// Candidate is the schedule of a jam that does not exist yet.
type Candidate struct {
	VenueLocation string
	StartTime     time.Time
	EndTime       time.Time
}

// Check evaluates the candidate against existing jams. Checks run in order and
// the first match wins: schedule sanity, venue collision, host overlap.
func Check(c Candidate, hostID int64, existing []model.Jam, now time.Time) Verdict {
	if !c.StartTime.After(now) || !c.StartTime.Before(c.EndTime) {
		return InvalidSchedule
	}
	for i := range existing {
		j := &existing[i]
		if j.VenueLocation == c.VenueLocation && j.StartTime.Equal(c.StartTime) {
			return VenueConflict
		}
	}
	for i := range existing {
		j := &existing[i]
		if j.HostID == hostID && Contains(j.StartTime, j.EndTime, c.StartTime) {
			return HostDoubleBooking
		}
	}
	return None
}

// Contains reports whether t lies in the half-open interval [start, end).
func Contains(start, end, t time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
