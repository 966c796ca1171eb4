package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jamsession/api/internal/apperr"
	"github.com/jamsession/api/internal/core/lifecycle"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
	"github.com/jamsession/api/internal/roster"
	"github.com/jamsession/api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

type recordedEvent struct {
	event string
	jamID int64
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) JamChanged(event string, jam *model.Jam) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{event, jam.ID})
}

type countingHistory struct {
	inner HistoryRecorder
	mu    sync.Mutex
	calls int
}

func (h *countingHistory) RecordJamHistory(ctx context.Context, jamID int64, performerIDs []int64) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return h.inner.RecordJamHistory(ctx, jamID, performerIDs)
}

type fixture struct {
	store    *store.MemoryStore
	svc      *JamService
	history  *countingHistory
	notifier *recordingNotifier
	host     model.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	history := &countingHistory{inner: NewDirectHistory(s)}
	notifier := &recordingNotifier{}
	svc := NewJamService(s, history, notifier, lifecycle.DefaultPolicy()).
		WithClock(func() time.Time { return now })

	f := &fixture{store: s, svc: svc, history: history, notifier: notifier}
	f.host = f.user(t, "host", role.LeadVocals)
	return f
}

func (f *fixture) user(t *testing.T, name string, roles ...role.Role) model.Actor {
	t.Helper()
	u := &model.User{Username: name, PasswordHash: "x", Roles: roles}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return model.Actor{ID: u.ID, Username: u.Username}
}

func createReq(venue string, start time.Time, roles ...string) *model.CreateJamRequest {
	return &model.CreateJamRequest{
		Title:         "Blue Monday",
		VenueLocation: venue,
		BasedOnSong:   "Blue in Green",
		StartTime:     start,
		EndTime:       start.Add(3 * time.Hour),
		RequiredRoles: roles,
	}
}

func (f *fixture) jam(t *testing.T, roles ...string) *model.Jam {
	t.Helper()
	jam, err := f.svc.Create(context.Background(), f.host, createReq("The Cellar", now.Add(24*time.Hour), roles...))
	require.NoError(t, err)
	return jam
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	jam := f.jam(t, "BASS", "HORNS")
	assert.Equal(t, model.JamStatusPending, jam.Status)
	assert.Equal(t, f.host.ID, jam.HostID)
	assert.Empty(t, jam.FilledRoles)

	t.Run("venue taken at the same start", func(t *testing.T) {
		other := f.user(t, "other", role.Bass)
		_, err := f.svc.Create(ctx, other, createReq("The Cellar", jam.StartTime, "BASS"))
		assert.ErrorIs(t, err, apperr.ErrConflict)
		assert.Equal(t, apperr.ConflictVenue, apperr.ConflictOf(err))
	})

	t.Run("host already booked", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.host, createReq("Elsewhere", jam.StartTime.Add(time.Hour), "BASS"))
		assert.Equal(t, apperr.ConflictHostDoubleBooking, apperr.ConflictOf(err))
	})

	t.Run("host free after previous jam ends", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.host, createReq("Elsewhere", jam.EndTime, "BASS"))
		assert.NoError(t, err)
	})

	t.Run("start in the past", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.host, createReq("Attic", now.Add(-time.Hour), "BASS"))
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.host, createReq("Attic", now.Add(72*time.Hour), "KAZOO"))
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.EqualError(t, err, "Invalid role choice: KAZOO")
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		before, err := f.store.ListJams(ctx, store.JamFilter{})
		require.NoError(t, err)
		require.NoError(t, f.svc.ValidateCreate(ctx, f.host, createReq("Attic", now.Add(96*time.Hour), "BASS")))
		after, err := f.store.ListJams(ctx, store.JamFilter{})
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})
}

func TestJoinAsPlayer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS", "BASS")
	alice := f.user(t, "alice", role.Bass)
	bob := f.user(t, "bob", role.Bass, role.Horns)

	got, err := f.svc.JoinAsPlayer(ctx, alice, jam.ID, "BASS")
	require.NoError(t, err)
	assert.Equal(t, []roster.Entry{{Role: role.Bass, HolderID: alice.ID}}, got.FilledRoles)
	assert.False(t, got.IsFull())

	_, err = f.svc.JoinAsPlayer(ctx, alice, jam.ID, "BASS")
	assert.Equal(t, apperr.ConflictAlreadyJoined, apperr.ConflictOf(err))

	_, err = f.svc.JoinAsPlayer(ctx, bob, jam.ID, "HORNS")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err = f.svc.JoinAsPlayer(ctx, bob, jam.ID, "BASS")
	require.NoError(t, err)
	assert.True(t, got.IsFull())
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID}, got.PerformerIDs)

	carol := f.user(t, "carol", role.Bass)
	_, err = f.svc.JoinAsPlayer(ctx, carol, jam.ID, "BASS")
	assert.Equal(t, apperr.ConflictRoleTaken, apperr.ConflictOf(err))

	_, err = f.svc.JoinAsPlayer(ctx, f.host, jam.ID, "BASS")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.JoinAsPlayer(ctx, alice, 999, "BASS")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.JoinAsPlayer(ctx, model.Actor{ID: 999}, jam.ID, "BASS")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestJoinDispatchAndAttendees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS")
	alice := f.user(t, "alice", role.Bass)

	got, err := f.svc.Join(ctx, alice, jam.ID, &model.JoinJamRequest{JoinType: model.JoinTypeAttendee})
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, got.AttendeeIDs)

	_, err = f.svc.JoinAsAttendee(ctx, alice, jam.ID)
	assert.Equal(t, apperr.ConflictAlreadyJoined, apperr.ConflictOf(err))

	got, err = f.svc.Join(ctx, alice, jam.ID, &model.JoinJamRequest{JoinType: model.JoinTypePlayer, ChosenRole: "BASS"})
	require.NoError(t, err)
	assert.True(t, got.IsPerformer(alice.ID))
	assert.True(t, got.IsAttendee(alice.ID))

	_, err = f.svc.Join(ctx, alice, jam.ID, &model.JoinJamRequest{JoinType: "DANCER"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDualMembershipPolicy(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := NewJamService(s, nil, nil, lifecycle.Policy{AllowDualMembership: false}).
		WithClock(func() time.Time { return now })

	host := &model.User{Username: "host"}
	alice := &model.User{Username: "alice", Roles: []role.Role{role.Bass}}
	require.NoError(t, s.CreateUser(ctx, host))
	require.NoError(t, s.CreateUser(ctx, alice))

	jam, err := svc.Create(ctx, model.Actor{ID: host.ID}, createReq("Cellar", now.Add(time.Hour), "BASS"))
	require.NoError(t, err)

	_, err = svc.JoinAsAttendee(ctx, model.Actor{ID: alice.ID}, jam.ID)
	require.NoError(t, err)
	_, err = svc.JoinAsPlayer(ctx, model.Actor{ID: alice.ID}, jam.ID, "BASS")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS", "HORNS")
	alice := f.user(t, "alice", role.Bass)
	bob := f.user(t, "bob", role.Horns)

	_, err := f.svc.Leave(ctx, alice, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.JoinAsPlayer(ctx, alice, jam.ID, "BASS")
	require.NoError(t, err)
	_, err = f.svc.JoinAsPlayer(ctx, bob, jam.ID, "HORNS")
	require.NoError(t, err)

	got, err := f.svc.Leave(ctx, alice, jam.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, got.PerformerIDs)
	assert.Equal(t, []roster.Entry{{Role: role.Horns, HolderID: bob.ID}}, got.FilledRoles)

	got, err = f.svc.JoinAsPlayer(ctx, alice, jam.ID, "BASS")
	require.NoError(t, err)
	assert.True(t, got.IsFull())
}

func TestLeaveDropsOneOfDuplicateEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS", "BASS")
	alice := f.user(t, "alice", role.Bass)

	_, err := f.store.UpdateJam(ctx, jam.ID, func(j *model.Jam) error {
		j.FilledRoles = []roster.Entry{
			{Role: role.Bass, HolderID: alice.ID},
			{Role: role.Bass, HolderID: alice.ID},
		}
		j.PerformerIDs = []int64{alice.ID}
		return nil
	})
	require.NoError(t, err)

	got, err := f.svc.Leave(ctx, alice, jam.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PerformerIDs)
	assert.Equal(t, []roster.Entry{{Role: role.Bass, HolderID: alice.ID}}, got.FilledRoles)

	stored, err := f.store.GetJam(ctx, jam.ID)
	require.NoError(t, err)
	assert.Len(t, stored.FilledRoles, 1)
}

func TestStartEndAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS")
	alice := f.user(t, "alice", role.Bass)

	_, err := f.svc.Start(ctx, f.host, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.JoinAsPlayer(ctx, alice, jam.ID, "BASS")
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, alice, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.End(ctx, f.host, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	started, err := f.svc.Start(ctx, f.host, jam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JamStatusActive, started.Status)
	assert.True(t, started.StartTime.Equal(now))

	_, err = f.svc.Leave(ctx, alice, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	ended, err := f.svc.End(ctx, f.host, jam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JamStatusEnded, ended.Status)
	assert.True(t, ended.EndTime.Equal(now))

	_, err = f.svc.End(ctx, f.host, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, 1, f.history.calls)

	u, err := f.store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{jam.ID}, u.PastJamIDs)

	host, err := f.store.GetUser(ctx, f.host.ID)
	require.NoError(t, err)
	assert.Empty(t, host.PastJamIDs)

	_, err = f.svc.JoinAsAttendee(ctx, f.user(t, "late", role.Bass), jam.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	var events []string
	for _, e := range f.notifier.events {
		events = append(events, e.event)
	}
	assert.Equal(t, []string{model.JamEventJoined, model.JamEventStarted, model.JamEventEnded}, events)
}

func TestEndHistorySurvivesTransientFailure(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{MemoryStore: store.NewMemoryStore(), failures: 2}
	svc := NewJamService(s, NewDirectHistory(s).WithBackOff(fastBackOff), nil, lifecycle.DefaultPolicy()).
		WithClock(func() time.Time { return now })

	users := seedUsers(t, s.MemoryStore, 2)
	host := model.Actor{ID: users[0]}
	alice := model.Actor{ID: users[1]}

	jam, err := svc.Create(ctx, host, createReq("The Cellar", now.Add(time.Hour), "BASS"))
	require.NoError(t, err)
	_, err = svc.JoinAsPlayer(ctx, alice, jam.ID, "BASS")
	require.NoError(t, err)
	_, err = svc.Start(ctx, host, jam.ID)
	require.NoError(t, err)
	_, err = svc.End(ctx, host, jam.ID)
	require.NoError(t, err)

	u, err := s.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{jam.ID}, u.PastJamIDs)
}

// failOnceHistory loses the first fan-out and delegates afterwards.
type failOnceHistory struct {
	inner  HistoryRecorder
	failed bool
}

func (h *failOnceHistory) RecordJamHistory(ctx context.Context, jamID int64, performerIDs []int64) error {
	if !h.failed {
		h.failed = true
		return errStoreDown
	}
	return h.inner.RecordJamHistory(ctx, jamID, performerIDs)
}

func TestRecordHistoryRerunsFanOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.history = &failOnceHistory{inner: NewDirectHistory(f.store)}
	jam := f.jam(t, "BASS")
	alice := f.user(t, "alice", role.Bass)

	_, err := f.svc.RecordHistory(ctx, f.host, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.JoinAsPlayer(ctx, alice, jam.ID, "BASS")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, f.host, jam.ID)
	require.NoError(t, err)
	_, err = f.svc.End(ctx, f.host, jam.ID)
	require.NoError(t, err)

	u, err := f.store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, u.PastJamIDs)

	_, err = f.svc.RecordHistory(ctx, alice, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.NoError(t, f.svc.ValidateRecordHistory(ctx, f.host, jam.ID))

	_, err = f.svc.RecordHistory(ctx, f.host, jam.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordHistory(ctx, f.host, jam.ID)
	require.NoError(t, err)

	u, err = f.store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{jam.ID}, u.PastJamIDs)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS")
	alice := f.user(t, "alice", role.Bass)

	assert.ErrorIs(t, f.svc.Delete(ctx, alice, jam.ID), apperr.ErrForbidden)
	require.NoError(t, f.svc.ValidateDelete(ctx, f.host, jam.ID))
	require.NoError(t, f.svc.Delete(ctx, f.host, jam.ID))

	_, err := f.svc.Get(ctx, jam.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.host, jam.ID), apperr.ErrNotFound)

	active := f.jam(t, "BASS")
	_, err = f.svc.JoinAsPlayer(ctx, alice, active.ID, "BASS")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, f.host, active.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.host, active.ID), apperr.ErrInvalidState)
}

func TestValidateDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS")
	alice := f.user(t, "alice", role.Bass)

	require.NoError(t, f.svc.ValidateJoin(ctx, alice, jam.ID, &model.JoinJamRequest{JoinType: model.JoinTypePlayer, ChosenRole: "BASS"}))
	assert.ErrorIs(t, f.svc.ValidateStart(ctx, f.host, jam.ID), apperr.ErrInvalidState)
	assert.ErrorIs(t, f.svc.ValidateEnd(ctx, f.host, jam.ID), apperr.ErrInvalidState)
	assert.ErrorIs(t, f.svc.ValidateLeave(ctx, alice, jam.ID), apperr.ErrValidation)

	got, err := f.svc.Get(ctx, jam.ID)
	require.NoError(t, err)
	assert.Equal(t, jam.Version, got.Version)
	assert.Empty(t, got.PerformerIDs)
}

func TestDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS", "HORNS")
	alice := f.user(t, "alice", role.Horns, role.Bass, role.Strings)

	d, err := f.svc.Detail(ctx, alice, jam.ID)
	require.NoError(t, err)
	assert.False(t, d.IsHost)
	assert.Equal(t, []role.Role{role.Horns, role.Bass}, d.PossibleRoles)
	assert.True(t, d.CanJoinAsPlayer)

	_, err = f.svc.JoinAsPlayer(ctx, alice, jam.ID, "HORNS")
	require.NoError(t, err)
	d, err = f.svc.Detail(ctx, alice, jam.ID)
	require.NoError(t, err)
	assert.True(t, d.HasJoinedAsPlayer)
	assert.False(t, d.CanJoinAsPlayer)

	d, err = f.svc.Detail(ctx, f.host, jam.ID)
	require.NoError(t, err)
	assert.True(t, d.IsHost)
	assert.Empty(t, d.PossibleRoles)
	assert.False(t, d.CanJoinAsPlayer)

	roles, err := f.svc.PossibleRoles(ctx, f.user(t, "bob", role.Bass, role.Bass), jam.ID)
	require.NoError(t, err)
	assert.Equal(t, []role.Role{role.Bass}, roles)
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	later, err := f.svc.Create(ctx, f.host, createReq("A", now.Add(48*time.Hour), "BASS"))
	require.NoError(t, err)
	sooner, err := f.svc.Create(ctx, f.host, createReq("B", now.Add(24*time.Hour), "BASS"))
	require.NoError(t, err)

	pending, err := f.svc.ListByStatus(ctx, model.JamStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, sooner.ID, pending[0].ID)
	assert.Equal(t, later.ID, pending[1].ID)

	active, err := f.svc.ListByStatus(ctx, model.JamStatusActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.svc.ListByStatus(ctx, "PAUSED")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestConcurrentJoinsFillOneSlotOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	jam := f.jam(t, "BASS")

	const contenders = 20
	actors := make([]model.Actor, contenders)
	for i := range actors {
		actors[i] = f.user(t, "bassist"+string(rune('a'+i)), role.Bass)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		taken     int
	)
	for _, a := range actors {
		wg.Add(1)
		go func(a model.Actor) {
			defer wg.Done()
			_, err := f.svc.JoinAsPlayer(ctx, a, jam.ID, "BASS")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.ConflictOf(err) == apperr.ConflictRoleTaken:
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(a)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, contenders-1, taken)

	got, err := f.svc.Get(ctx, jam.ID)
	require.NoError(t, err)
	assert.Len(t, got.FilledRoles, 1)
	assert.NoError(t, lifecycle.Verify(got))
}

func TestTranslate(t *testing.T) {
	assert.ErrorIs(t, translate(store.ErrNotFound), apperr.ErrNotFound)
	assert.Equal(t, apperr.ConflictConcurrentUpdate, apperr.ConflictOf(translate(store.ErrConflict)))

	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}
