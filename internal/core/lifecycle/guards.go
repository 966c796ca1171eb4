// Package lifecycle contains the pure business rules of the jam state machine.
// This is part of the Functional Core - no I/O, only pure functions.
//
// Guards (Can*) decide whether an action is allowed and never mutate. The
// transition functions in transitions.go apply an allowed action to a jam.
// Callers run the guard and the transition against the same fresh copy of the
// jam inside one store transaction.
package lifecycle

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jamsession/api/internal/apperr"
	"github.com/jamsession/api/internal/core/eligibility"
	"github.com/jamsession/api/internal/core/schedule"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
)

// Action names an engine operation.
type Action string

const (
	ActionCreate         Action = "create"
	ActionJoinAsPlayer   Action = "joinAsPlayer"
	ActionJoinAsAttendee Action = "joinAsAttendee"
	ActionLeave          Action = "leave"
	ActionStart          Action = "start"
	ActionEnd            Action = "end"
	ActionDelete         Action = "delete"
	ActionRecordHistory  Action = "recordHistory"
)

// allowedFrom is the state each action requires. Create has no source state.
var allowedFrom = map[Action]model.JamStatus{
	ActionJoinAsPlayer:   model.JamStatusPending,
	ActionJoinAsAttendee: model.JamStatusPending,
	ActionLeave:          model.JamStatusPending,
	ActionStart:          model.JamStatusPending,
	ActionEnd:            model.JamStatusActive,
	ActionDelete:         model.JamStatusPending,
	ActionRecordHistory:  model.JamStatusEnded,
}

var invalidStateReasons = map[Action]string{
	ActionJoinAsPlayer:   "Unable to join the jam as it has already started",
	ActionJoinAsAttendee: "Unable to join the jam as it has already started",
	ActionLeave:          "Unable to leave the jam as it has already started",
	ActionStart:          "Unable to start jam because it is not pending",
	ActionEnd:            "Unable to end jam because it is not active",
	ActionDelete:         "Unable to delete jam because it has already started",
	ActionRecordHistory:  "Unable to record history because the jam has not ended",
}

// Policy holds the engine switches that are deliberately configurable.
type Policy struct {
	// AllowDualMembership lets one user be both performer and attendee.
	AllowDualMembership bool
}

// DefaultPolicy keeps dual membership permitted.
func DefaultPolicy() Policy {
	return Policy{AllowDualMembership: true}
}

// RequireStatus fails with InvalidState unless the jam is in the state the
// action starts from.
func RequireStatus(jam *model.Jam, a Action) error {
	want, ok := allowedFrom[a]
	if !ok {
		return fmt.Errorf("lifecycle: action %q has no source state", a)
	}
	if jam.Status != want {
		return apperr.InvalidState("%s", invalidStateReasons[a])
	}
	return nil
}

// Draft is the caller-supplied content of a jam to be created.
type Draft struct {
	Title         string
	VenueLocation string
	BasedOnSong   string
	StartTime     time.Time
	EndTime       time.Time
	RequiredRoles []string
}

// ValidateDraft checks required fields and role names.
func ValidateDraft(d Draft) error {
	fields := []struct {
		name    string
		missing bool
	}{
		{"title", strings.TrimSpace(d.Title) == ""},
		{"venueLocation", strings.TrimSpace(d.VenueLocation) == ""},
		{"basedOnSong", strings.TrimSpace(d.BasedOnSong) == ""},
		{"startTime", d.StartTime.IsZero()},
		{"endTime", d.EndTime.IsZero()},
		{"requiredRoles", len(d.RequiredRoles) == 0},
	}
	for _, f := range fields {
		if f.missing {
			return apperr.Validation("Invalid creation data - missing attribute value: %q", f.name)
		}
	}
	for _, r := range d.RequiredRoles {
		if !role.IsValid(r) {
			return apperr.Validation("Invalid role choice: %s", r)
		}
	}
	return nil
}

// CheckSchedule maps the scheduling verdict onto the error taxonomy.
func CheckSchedule(d Draft, hostID int64, existing []model.Jam, now time.Time) error {
	c := schedule.Candidate{VenueLocation: d.VenueLocation, StartTime: d.StartTime, EndTime: d.EndTime}
	switch schedule.Check(c, hostID, existing, now) {
	case schedule.InvalidSchedule:
		if !d.StartTime.After(now) {
			return apperr.Validation("Start time must be in the future")
		}
		return apperr.Validation("Start time must be before end time")
	case schedule.VenueConflict:
		return apperr.Conflict(apperr.ConflictVenue, "There is already a jam at the specified venue at the specified time")
	case schedule.HostDoubleBooking:
		return apperr.Conflict(apperr.ConflictHostDoubleBooking, "Invalid jam start time - you already have a jam booked for this time")
	}
	return nil
}

// CanCreate runs every creation check. existing must hold at least the jams
// sharing the draft's venue or host.
func CanCreate(d Draft, hostID int64, existing []model.Jam, now time.Time) error {
	if err := ValidateDraft(d); err != nil {
		return err
	}
	return CheckSchedule(d, hostID, existing, now)
}

// CanJoinAsPlayer evaluates a player join for the chosen role.
func CanJoinAsPlayer(jam *model.Jam, user *model.User, chosenRole string, p Policy) error {
	if err := RequireStatus(jam, ActionJoinAsPlayer); err != nil {
		return err
	}
	if jam.IsHost(user.ID) {
		return apperr.Forbidden("The host cannot join the jam")
	}
	r, err := role.Parse(chosenRole)
	if err != nil {
		return apperr.Validation("Invalid role choice: %s", chosenRole)
	}
	if jam.IsPerformer(user.ID) {
		return apperr.Conflict(apperr.ConflictAlreadyJoined, "You already hold a role in this jam")
	}
	if !p.AllowDualMembership && jam.IsAttendee(user.ID) {
		return apperr.Conflict(apperr.ConflictAlreadyJoined, "You are already attending this jam")
	}
	if !slices.Contains(user.Roles, r) {
		return apperr.Validation("Invalid role choice - you do not play %s", r)
	}
	if jam.RequiredCount(r) == 0 {
		return apperr.Validation("Invalid role choice - %s is not required by this jam", r)
	}
	if !eligibility.CanClaim(jam, user, r) {
		return apperr.Conflict(apperr.ConflictRoleTaken, "Every %s slot in this jam is already filled", r)
	}
	return nil
}

// CanJoinAsAttendee evaluates an attendee join.
func CanJoinAsAttendee(jam *model.Jam, userID int64, p Policy) error {
	if err := RequireStatus(jam, ActionJoinAsAttendee); err != nil {
		return err
	}
	if jam.IsHost(userID) {
		return apperr.Forbidden("The host cannot join the jam")
	}
	if jam.IsAttendee(userID) {
		return apperr.Conflict(apperr.ConflictAlreadyJoined, "You are already attending this jam")
	}
	if !p.AllowDualMembership && jam.IsPerformer(userID) {
		return apperr.Conflict(apperr.ConflictAlreadyJoined, "You already hold a role in this jam")
	}
	return nil
}

// CanLeave evaluates a leave request.
func CanLeave(jam *model.Jam, userID int64) error {
	if err := RequireStatus(jam, ActionLeave); err != nil {
		return err
	}
	if !jam.HasParticipant(userID) {
		return apperr.Validation("You have not joined this jam")
	}
	return nil
}

// CanStart evaluates a start request.
func CanStart(jam *model.Jam, actorID int64) error {
	if err := RequireStatus(jam, ActionStart); err != nil {
		return err
	}
	if !jam.IsHost(actorID) {
		return apperr.Forbidden("Unable to start jam - only the host may start the jam")
	}
	if !jam.IsFull() {
		return apperr.InvalidState("Unable to start jam because not all required roles are filled")
	}
	return nil
}

// CanEnd evaluates an end request.
func CanEnd(jam *model.Jam, actorID int64) error {
	if err := RequireStatus(jam, ActionEnd); err != nil {
		return err
	}
	if !jam.IsHost(actorID) {
		return apperr.Forbidden("Unable to end jam - only the host may end the jam")
	}
	return nil
}

// CanDelete evaluates a delete request.
func CanDelete(jam *model.Jam, actorID int64) error {
	if err := RequireStatus(jam, ActionDelete); err != nil {
		return err
	}
	if !jam.IsHost(actorID) {
		return apperr.Forbidden("Unable to delete jam - only the host may delete the jam")
	}
	return nil
}

// CanRecordHistory evaluates a request to rerun the history fan-out of an
// ended jam.
func CanRecordHistory(jam *model.Jam, actorID int64) error {
	if err := RequireStatus(jam, ActionRecordHistory); err != nil {
		return err
	}
	if !jam.IsHost(actorID) {
		return apperr.Forbidden("Unable to record history - only the host may record the jam history")
	}
	return nil
}
