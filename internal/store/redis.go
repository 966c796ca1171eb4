package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/jamsession/api/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	keyJamSeq  = "jam:seq"
	keyJamsAll = "jams:all"
	keyUserSeq = "user:seq"
)

func jamKey(id int64) string                     { return fmt.Sprintf("jam:%d", id) }
func jamStatusKey(status model.JamStatus) string { return fmt.Sprintf("jams:status:%s", status) }
func jamHostKey(hostID int64) string             { return fmt.Sprintf("jams:host:%d", hostID) }
func jamVenueKey(venue string) string            { return fmt.Sprintf("jams:venue:%s", venue) }
func userKey(id int64) string                    { return fmt.Sprintf("user:%d", id) }
func userNameKey(name string) string             { return fmt.Sprintf("user:name:%s", name) }

// RedisStore keeps jams and users as JSON documents with set indexes per
// status, host and venue. Mutations use WATCH/MULTI/EXEC and retry when a
// concurrent writer invalidates the watched keys.
type RedisStore struct {
	redis      *redis.Client
	maxRetries int
	now        func() time.Time
}

func NewRedisStore(redisClient *redis.Client, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &RedisStore{
		redis:      redisClient,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// watch runs fn optimistically until it commits or the retry budget is spent.
func (s *RedisStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *RedisStore) GetJam(ctx context.Context, id int64) (*model.Jam, error) {
	return getJam(ctx, s.redis, id)
}

func getJam(ctx context.Context, c redis.Cmdable, id int64) (*model.Jam, error) {
	data, err := c.Get(ctx, jamKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get jam %d: %w", id, err)
	}

	var jam model.Jam
	if err := json.Unmarshal(data, &jam); err != nil {
		return nil, fmt.Errorf("failed to unmarshal jam %d: %w", id, err)
	}
	return &jam, nil
}

func (s *RedisStore) ListJams(ctx context.Context, f JamFilter) ([]model.Jam, error) {
	return listJams(ctx, s.redis, f)
}

func listJams(ctx context.Context, c redis.Cmdable, f JamFilter) ([]model.Jam, error) {
	var (
		ids []string
		err error
	)
	switch {
	case f.HostID != 0 || f.Venue != "":
		var keys []string
		if f.HostID != 0 {
			keys = append(keys, jamHostKey(f.HostID))
		}
		if f.Venue != "" {
			keys = append(keys, jamVenueKey(f.Venue))
		}
		ids, err = c.SUnion(ctx, keys...).Result()
	case f.Status != "":
		ids, err = c.SMembers(ctx, jamStatusKey(f.Status)).Result()
	default:
		ids, err = c.SMembers(ctx, keyJamsAll).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read jam index: %w", err)
	}

	jams := make([]model.Jam, 0, len(ids))
	if len(ids) == 0 {
		return jams, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "jam:" + id
	}
	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jams: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry outlived its document.
			continue
		}
		var jam model.Jam
		if err := json.Unmarshal([]byte(raw), &jam); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", keys[i], err)
		}
		if f.Matches(&jam) {
			jams = append(jams, jam)
		}
	}
	slices.SortFunc(jams, func(a, b model.Jam) int { return cmp.Compare(a.ID, b.ID) })
	return jams, nil
}

func (s *RedisStore) CreateJam(ctx context.Context, jam *model.Jam, check CreateCheck) error {
	id, err := s.redis.Incr(ctx, keyJamSeq).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate jam id: %w", err)
	}
	jam.ID = id
	jam.Version = 1

	data, err := json.Marshal(jam)
	if err != nil {
		return fmt.Errorf("failed to marshal jam: %w", err)
	}

	hostKey, venueKey := jamHostKey(jam.HostID), jamVenueKey(jam.VenueLocation)
	member := strconv.FormatInt(id, 10)

	return s.watch(ctx, func(tx *redis.Tx) error {
		if check != nil {
			existing, err := listJams(ctx, tx, JamFilter{HostID: jam.HostID, Venue: jam.VenueLocation})
			if err != nil {
				return err
			}
			if err := check(existing); err != nil {
				return err
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jamKey(id), data, 0)
			pipe.SAdd(ctx, keyJamsAll, member)
			pipe.SAdd(ctx, jamStatusKey(jam.Status), member)
			pipe.SAdd(ctx, hostKey, member)
			pipe.SAdd(ctx, venueKey, member)
			return nil
		})
		return err
	}, hostKey, venueKey)
}

func (s *RedisStore) UpdateJam(ctx context.Context, id int64, mutate MutateFunc) (*model.Jam, error) {
	key := jamKey(id)
	var updated *model.Jam

	err := s.watch(ctx, func(tx *redis.Tx) error {
		cur, err := getJam(ctx, tx, id)
		if err != nil {
			return err
		}
		next := cur.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.ID = id
		next.Version = cur.Version + 1
		next.UpdatedAt = s.now()

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal jam: %w", err)
		}
		member := strconv.FormatInt(id, 10)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if next.Status != cur.Status {
				pipe.SMove(ctx, jamStatusKey(cur.Status), jamStatusKey(next.Status), member)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RedisStore) DeleteJam(ctx context.Context, id int64, check DeleteCheck) error {
	key := jamKey(id)
	return s.watch(ctx, func(tx *redis.Tx) error {
		cur, err := getJam(ctx, tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(cur); err != nil {
				return err
			}
		}
		member := strconv.FormatInt(id, 10)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, keyJamsAll, member)
			pipe.SRem(ctx, jamStatusKey(cur.Status), member)
			pipe.SRem(ctx, jamHostKey(cur.HostID), member)
			pipe.SRem(ctx, jamVenueKey(cur.VenueLocation), member)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return getUser(ctx, s.redis, id)
}

func getUser(ctx context.Context, c redis.Cmdable, id int64) (*model.User, error) {
	data, err := c.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}

	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %d: %w", id, err)
	}
	return &u, nil
}

func (s *RedisStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	id, err := s.redis.Get(ctx, userNameKey(username)).Int64()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve user %q: %w", username, err)
	}
	return s.GetUser(ctx, id)
}

func (s *RedisStore) CreateUser(ctx context.Context, u *model.User) error {
	nameKey := userNameKey(u.Username)
	if u.PastJamIDs == nil {
		u.PastJamIDs = []int64{}
	}

	return s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, nameKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		id, err := tx.Incr(ctx, keyUserSeq).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate user id: %w", err)
		}
		u.ID = id
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(id), data, 0)
			pipe.Set(ctx, nameKey, id, 0)
			return nil
		})
		return err
	}, nameKey)
}

func (s *RedisStore) AppendPastJam(ctx context.Context, userID, jamID int64) error {
	key := userKey(userID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		u, err := getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u.HasPlayedIn(jamID) {
			return nil
		}
		u.PastJamIDs = append(u.PastJamIDs, jamID)
		u.UpdatedAt = s.now()

		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) Close() error {
	return nil
}
