package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jamsession/api/internal/apperr"
	"github.com/jamsession/api/internal/core/eligibility"
	"github.com/jamsession/api/internal/core/lifecycle"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
	"github.com/jamsession/api/internal/store"
	"github.com/rs/zerolog/log"
)

// Notifier is told about every committed jam change.
type Notifier interface {
	JamChanged(event string, jam *model.Jam)
}

// JamService runs the jam lifecycle. Every mutation loads the jam fresh
// inside a store transaction, runs the guard, applies the transition and
// commits, so two requests never act on the same stale copy.
type JamService struct {
	store    store.Store
	history  HistoryRecorder
	notifier Notifier
	policy   lifecycle.Policy
	now      func() time.Time
}

func NewJamService(s store.Store, history HistoryRecorder, notifier Notifier, policy lifecycle.Policy) *JamService {
	return &JamService{
		store:    s,
		history:  history,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *JamService) WithClock(now func() time.Time) *JamService {
	s.now = now
	return s
}

func (s *JamService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func draftFrom(req *model.CreateJamRequest) lifecycle.Draft {
	return lifecycle.Draft{
		Title:         req.Title,
		VenueLocation: req.VenueLocation,
		BasedOnSong:   req.BasedOnSong,
		StartTime:     req.StartTime.UTC().Truncate(time.Millisecond),
		EndTime:       req.EndTime.UTC().Truncate(time.Millisecond),
		RequiredRoles: req.RequiredRoles,
	}
}

// Create schedules a new PENDING jam hosted by the actor.
func (s *JamService) Create(ctx context.Context, actor model.Actor, req *model.CreateJamRequest) (*model.Jam, error) {
	d := draftFrom(req)
	if err := lifecycle.ValidateDraft(d); err != nil {
		return nil, err
	}

	now := s.clock()
	jam := lifecycle.NewJam(d, actor.ID, now)
	err := s.store.CreateJam(ctx, jam, func(existing []model.Jam) error {
		return lifecycle.CheckSchedule(d, actor.ID, existing, now)
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Int64("jam_id", jam.ID).Int64("host_id", actor.ID).Str("venue", jam.VenueLocation).Msg("jam created")
	return jam, nil
}

// ValidateCreate runs the creation checks without writing anything.
func (s *JamService) ValidateCreate(ctx context.Context, actor model.Actor, req *model.CreateJamRequest) error {
	d := draftFrom(req)
	if err := lifecycle.ValidateDraft(d); err != nil {
		return err
	}
	existing, err := s.store.ListJams(ctx, store.JamFilter{HostID: actor.ID, Venue: d.VenueLocation})
	if err != nil {
		return translate(err)
	}
	return lifecycle.CanCreate(d, actor.ID, existing, s.clock())
}

// Get returns one jam.
func (s *JamService) Get(ctx context.Context, jamID int64) (*model.Jam, error) {
	jam, err := s.store.GetJam(ctx, jamID)
	if err != nil {
		return nil, translate(err)
	}
	return jam, nil
}

// Detail returns a jam together with the viewer's relationship to it.
func (s *JamService) Detail(ctx context.Context, actor model.Actor, jamID int64) (*model.JamDetailResponse, error) {
	jam, err := s.Get(ctx, jamID)
	if err != nil {
		return nil, err
	}
	user, err := s.user(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	possible := eligibility.PossibleRoles(jam, user)
	canJoin := len(possible) > 0 &&
		lifecycle.CanJoinAsPlayer(jam, user, string(possible[0]), s.policy) == nil

	return &model.JamDetailResponse{
		Jam:                 jam,
		IsHost:              jam.IsHost(actor.ID),
		HasJoinedAsPlayer:   jam.IsPerformer(actor.ID),
		HasJoinedAsAttendee: jam.IsAttendee(actor.ID),
		PossibleRoles:       possible,
		CanJoinAsPlayer:     canJoin,
	}, nil
}

// PossibleRoles lists the roles the actor could still claim on the jam.
func (s *JamService) PossibleRoles(ctx context.Context, actor model.Actor, jamID int64) ([]role.Role, error) {
	jam, err := s.Get(ctx, jamID)
	if err != nil {
		return nil, err
	}
	user, err := s.user(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return eligibility.PossibleRoles(jam, user), nil
}

// ListByStatus lists jams in one state: pending by start, active by end and
// ended jams most recent first.
func (s *JamService) ListByStatus(ctx context.Context, status model.JamStatus) ([]model.Jam, error) {
	var order func(a, b model.Jam) int
	switch status {
	case model.JamStatusPending:
		order = func(a, b model.Jam) int { return a.StartTime.Compare(b.StartTime) }
	case model.JamStatusActive:
		order = func(a, b model.Jam) int { return a.EndTime.Compare(b.EndTime) }
	case model.JamStatusEnded:
		order = func(a, b model.Jam) int { return b.EndTime.Compare(a.EndTime) }
	default:
		return nil, apperr.Validation("Unknown jam status: %s", status)
	}

	jams, err := s.store.ListJams(ctx, store.JamFilter{Status: status})
	if err != nil {
		return nil, translate(err)
	}
	slices.SortStableFunc(jams, func(a, b model.Jam) int {
		if c := order(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return jams, nil
}

// Join dispatches on the requested join type.
func (s *JamService) Join(ctx context.Context, actor model.Actor, jamID int64, req *model.JoinJamRequest) (*model.Jam, error) {
	switch req.JoinType {
	case model.JoinTypePlayer:
		return s.JoinAsPlayer(ctx, actor, jamID, req.ChosenRole)
	case model.JoinTypeAttendee:
		return s.JoinAsAttendee(ctx, actor, jamID)
	}
	return nil, apperr.Validation("Invalid join type: %s", req.JoinType)
}

// ValidateJoin runs the join guards against the current jam.
func (s *JamService) ValidateJoin(ctx context.Context, actor model.Actor, jamID int64, req *model.JoinJamRequest) error {
	jam, err := s.Get(ctx, jamID)
	if err != nil {
		return err
	}
	switch req.JoinType {
	case model.JoinTypePlayer:
		user, err := s.user(ctx, actor.ID)
		if err != nil {
			return err
		}
		return lifecycle.CanJoinAsPlayer(jam, user, req.ChosenRole, s.policy)
	case model.JoinTypeAttendee:
		return lifecycle.CanJoinAsAttendee(jam, actor.ID, s.policy)
	}
	return apperr.Validation("Invalid join type: %s", req.JoinType)
}

// JoinAsPlayer claims one open slot of chosenRole for the actor.
func (s *JamService) JoinAsPlayer(ctx context.Context, actor model.Actor, jamID int64, chosenRole string) (*model.Jam, error) {
	user, err := s.user(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	jam, err := s.store.UpdateJam(ctx, jamID, func(j *model.Jam) error {
		if err := lifecycle.CanJoinAsPlayer(j, user, chosenRole, s.policy); err != nil {
			return err
		}
		lifecycle.JoinAsPlayer(j, user.ID, role.Role(chosenRole))
		return lifecycle.Verify(j)
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Int64("jam_id", jamID).Int64("user_id", actor.ID).Str("role", chosenRole).Msg("player joined")
	s.notify(model.JamEventJoined, jam)
	return jam, nil
}

// JoinAsAttendee adds the actor to the audience.
func (s *JamService) JoinAsAttendee(ctx context.Context, actor model.Actor, jamID int64) (*model.Jam, error) {
	jam, err := s.store.UpdateJam(ctx, jamID, func(j *model.Jam) error {
		if err := lifecycle.CanJoinAsAttendee(j, actor.ID, s.policy); err != nil {
			return err
		}
		lifecycle.JoinAsAttendee(j, actor.ID)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Int64("jam_id", jamID).Int64("user_id", actor.ID).Msg("attendee joined")
	s.notify(model.JamEventJoined, jam)
	return jam, nil
}

// Leave removes the actor from the jam and frees their slot.
func (s *JamService) Leave(ctx context.Context, actor model.Actor, jamID int64) (*model.Jam, error) {
	var vacated role.Role
	jam, err := s.store.UpdateJam(ctx, jamID, func(j *model.Jam) error {
		if err := lifecycle.CanLeave(j, actor.ID); err != nil {
			return err
		}
		vacated, _ = lifecycle.Leave(j, actor.ID)
		if err := lifecycle.Verify(j); err != nil {
			log.Warn().Err(err).Int64("jam_id", j.ID).Int64("user_id", actor.ID).Msg("roster still inconsistent after leave")
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Int64("jam_id", jamID).Int64("user_id", actor.ID).Str("vacated", string(vacated)).Msg("participant left")
	s.notify(model.JamEventLeft, jam)
	return jam, nil
}

func (s *JamService) ValidateLeave(ctx context.Context, actor model.Actor, jamID int64) error {
	return s.check(ctx, jamID, func(j *model.Jam) error { return lifecycle.CanLeave(j, actor.ID) })
}

// Start moves a full PENDING jam to ACTIVE.
func (s *JamService) Start(ctx context.Context, actor model.Actor, jamID int64) (*model.Jam, error) {
	now := s.clock()
	jam, err := s.store.UpdateJam(ctx, jamID, func(j *model.Jam) error {
		if err := lifecycle.CanStart(j, actor.ID); err != nil {
			return err
		}
		lifecycle.Start(j, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Int64("jam_id", jamID).Msg("jam started")
	s.notify(model.JamEventStarted, jam)
	return jam, nil
}

func (s *JamService) ValidateStart(ctx context.Context, actor model.Actor, jamID int64) error {
	return s.check(ctx, jamID, func(j *model.Jam) error { return lifecycle.CanStart(j, actor.ID) })
}

// End closes an ACTIVE jam and records it in every performer's history.
// A history failure is logged and does not undo the transition.
func (s *JamService) End(ctx context.Context, actor model.Actor, jamID int64) (*model.Jam, error) {
	now := s.clock()
	var performers []int64
	jam, err := s.store.UpdateJam(ctx, jamID, func(j *model.Jam) error {
		if err := lifecycle.CanEnd(j, actor.ID); err != nil {
			return err
		}
		performers = lifecycle.End(j, now)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Int64("jam_id", jamID).Int("performers", len(performers)).Msg("jam ended")
	if s.history != nil && len(performers) > 0 {
		if err := s.history.RecordJamHistory(ctx, jam.ID, performers); err != nil {
			log.Error().Err(err).Int64("jam_id", jam.ID).Msg("failed to record jam history")
		}
	}
	s.notify(model.JamEventEnded, jam)
	return jam, nil
}

// RecordHistory reruns the history fan-out of an ENDED jam. Appends are
// idempotent, so it is safe to call after a partial failure.
func (s *JamService) RecordHistory(ctx context.Context, actor model.Actor, jamID int64) (*model.Jam, error) {
	jam, err := s.Get(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanRecordHistory(jam, actor.ID); err != nil {
		return nil, err
	}
	if s.history != nil && len(jam.PerformerIDs) > 0 {
		if err := s.history.RecordJamHistory(ctx, jam.ID, jam.PerformerIDs); err != nil {
			return nil, fmt.Errorf("failed to record history of jam %d: %w", jam.ID, err)
		}
	}

	log.Info().Int64("jam_id", jamID).Int("performers", len(jam.PerformerIDs)).Msg("jam history recorded")
	return jam, nil
}

func (s *JamService) ValidateRecordHistory(ctx context.Context, actor model.Actor, jamID int64) error {
	return s.check(ctx, jamID, func(j *model.Jam) error { return lifecycle.CanRecordHistory(j, actor.ID) })
}

func (s *JamService) ValidateEnd(ctx context.Context, actor model.Actor, jamID int64) error {
	return s.check(ctx, jamID, func(j *model.Jam) error { return lifecycle.CanEnd(j, actor.ID) })
}

// Delete removes a PENDING jam.
func (s *JamService) Delete(ctx context.Context, actor model.Actor, jamID int64) error {
	var deleted *model.Jam
	err := s.store.DeleteJam(ctx, jamID, func(j *model.Jam) error {
		deleted = j
		return lifecycle.CanDelete(j, actor.ID)
	})
	if err != nil {
		return translate(err)
	}

	log.Info().Int64("jam_id", jamID).Msg("jam deleted")
	s.notify(model.JamEventDeleted, deleted)
	return nil
}

func (s *JamService) ValidateDelete(ctx context.Context, actor model.Actor, jamID int64) error {
	return s.check(ctx, jamID, func(j *model.Jam) error { return lifecycle.CanDelete(j, actor.ID) })
}

func (s *JamService) check(ctx context.Context, jamID int64, guard func(*model.Jam) error) error {
	jam, err := s.Get(ctx, jamID)
	if err != nil {
		return err
	}
	return guard(jam)
}

func (s *JamService) user(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return u, nil
}

func (s *JamService) notify(event string, jam *model.Jam) {
	if s.notifier != nil && jam != nil {
		s.notifier.JamChanged(event, jam)
	}
}

// translate maps store sentinels onto the engine taxonomy. Guard errors
// raised inside a transaction pass through unchanged.
func translate(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("Jam not found")
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict(apperr.ConflictConcurrentUpdate, "The jam was changed by another request, please retry")
	}
	return err
}
