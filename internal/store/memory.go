package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jamsession/api/internal/model"
)

// MemoryStore keeps everything in process. One mutex serializes all writes,
// which is enough for tests and single-instance development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	jams    map[int64]*model.Jam
	users   map[int64]*model.User
	byName  map[string]int64
	jamSeq  int64
	userSeq int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jams:   make(map[int64]*model.Jam),
		users:  make(map[int64]*model.User),
		byName: make(map[string]int64),
		now:    time.Now,
	}
}

func (s *MemoryStore) GetJam(ctx context.Context, id int64) (*model.Jam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) ListJams(ctx context.Context, f JamFilter) ([]model.Jam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(f), nil
}

func (s *MemoryStore) listLocked(f JamFilter) []model.Jam {
	out := make([]model.Jam, 0)
	for _, j := range s.jams {
		if f.Matches(j) {
			out = append(out, *j.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Jam) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *MemoryStore) CreateJam(ctx context.Context, jam *model.Jam, check CreateCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if check != nil {
		if err := check(s.listLocked(JamFilter{HostID: jam.HostID, Venue: jam.VenueLocation})); err != nil {
			return err
		}
	}
	s.jamSeq++
	jam.ID = s.jamSeq
	jam.Version = 1
	s.jams[jam.ID] = jam.Clone()
	return nil
}

func (s *MemoryStore) UpdateJam(ctx context.Context, id int64, mutate MutateFunc) (*model.Jam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jams[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now()
	s.jams[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) DeleteJam(ctx context.Context, id int64, check DeleteCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jams[id]
	if !ok {
		return ErrNotFound
	}
	if check != nil {
		if err := check(cur.Clone()); err != nil {
			return err
		}
	}
	delete(s.jams, id)
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[u.Username]; taken {
		return ErrDuplicate
	}
	s.userSeq++
	u.ID = s.userSeq
	if u.PastJamIDs == nil {
		u.PastJamIDs = []int64{}
	}
	s.users[u.ID] = u.Clone()
	s.byName[u.Username] = u.ID
	return nil
}

func (s *MemoryStore) AppendPastJam(ctx context.Context, userID, jamID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.HasPlayedIn(jamID) {
		return nil
	}
	u.PastJamIDs = append(u.PastJamIDs, jamID)
	u.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
