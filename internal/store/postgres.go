package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jamsession/api/internal/model"
	"github.com/jamsession/api/internal/role"
	"github.com/jamsession/api/internal/roster"
)

// DB defines the database operations the Postgres store needs.
// It is implemented by *pgxpool.Pool and can be mocked for testing.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// createLockKey serializes jam creation so scheduling checks see every
// committed jam.
const createLockKey int64 = 0x6a616d73

const jamColumns = `id, title, status, venue_location, based_on_song, start_time, end_time, host_id,
	required_roles, filled_roles, performer_ids, attendee_ids, version, created_at, updated_at`

const userColumns = `id, username, password_hash, roles, past_jam_ids, created_at, updated_at`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS app_users (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		roles         TEXT[] NOT NULL DEFAULT '{}',
		past_jam_ids  BIGINT[] NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS jams (
		id             BIGSERIAL PRIMARY KEY,
		title          TEXT NOT NULL,
		status         TEXT NOT NULL,
		venue_location TEXT NOT NULL,
		based_on_song  TEXT NOT NULL,
		start_time     TIMESTAMPTZ NOT NULL,
		end_time       TIMESTAMPTZ NOT NULL,
		host_id        BIGINT NOT NULL,
		required_roles TEXT[] NOT NULL,
		filled_roles   TEXT[] NOT NULL DEFAULT '{}',
		performer_ids  BIGINT[] NOT NULL DEFAULT '{}',
		attendee_ids   BIGINT[] NOT NULL DEFAULT '{}',
		version        BIGINT NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS jams_status_idx ON jams (status)`,
	`CREATE INDEX IF NOT EXISTS jams_host_idx ON jams (host_id)`,
	`CREATE INDEX IF NOT EXISTS jams_venue_idx ON jams (venue_location)`,
}

// PostgresStore keeps jams and users in two tables. Roster columns are
// Postgres arrays and filled slots use the ROLE|holder token form.
type PostgresStore struct {
	db    DB
	close func()
	now   func() time.Time
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenPostgres connects a pool and wraps it in a store that owns the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	s := NewPostgresStore(pool)
	s.close = pool.Close
	return s, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJam(row rowScanner) (*model.Jam, error) {
	var (
		jam      model.Jam
		status   string
		required []string
		filled   []string
	)
	err := row.Scan(&jam.ID, &jam.Title, &status, &jam.VenueLocation, &jam.BasedOnSong,
		&jam.StartTime, &jam.EndTime, &jam.HostID, &required, &filled,
		&jam.PerformerIDs, &jam.AttendeeIDs, &jam.Version, &jam.CreatedAt, &jam.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	jam.Status = model.JamStatus(status)
	if jam.RequiredRoles, err = role.ParseAll(required); err != nil {
		return nil, fmt.Errorf("jam %d: %w", jam.ID, err)
	}
	if jam.FilledRoles, err = roster.DecodeAll(filled); err != nil {
		return nil, fmt.Errorf("jam %d: %w", jam.ID, err)
	}
	if jam.PerformerIDs == nil {
		jam.PerformerIDs = []int64{}
	}
	if jam.AttendeeIDs == nil {
		jam.AttendeeIDs = []int64{}
	}
	return &jam, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u     model.User
		roles []string
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.PastJamIDs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if u.Roles, err = role.ParseAll(roles); err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	if u.PastJamIDs == nil {
		u.PastJamIDs = []int64{}
	}
	return &u, nil
}

func (s *PostgresStore) GetJam(ctx context.Context, id int64) (*model.Jam, error) {
	return scanJam(s.db.QueryRow(ctx, `SELECT `+jamColumns+` FROM jams WHERE id = $1`, id))
}

const listJamsSQL = `SELECT ` + jamColumns + ` FROM jams
	WHERE ($1 = '' OR status = $1)
	  AND (($2::bigint = 0 AND $3 = '') OR host_id = $2 OR venue_location = $3)
	ORDER BY id`

func (s *PostgresStore) ListJams(ctx context.Context, f JamFilter) ([]model.Jam, error) {
	return listPostgresJams(ctx, s.db, f)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listPostgresJams(ctx context.Context, q querier, f JamFilter) ([]model.Jam, error) {
	rows, err := q.Query(ctx, listJamsSQL, string(f.Status), f.HostID, f.Venue)
	if err != nil {
		return nil, fmt.Errorf("failed to list jams: %w", err)
	}
	defer rows.Close()

	jams := make([]model.Jam, 0)
	for rows.Next() {
		jam, err := scanJam(rows)
		if err != nil {
			return nil, err
		}
		jams = append(jams, *jam)
	}
	return jams, rows.Err()
}

func (s *PostgresStore) CreateJam(ctx context.Context, jam *model.Jam, check CreateCheck) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, createLockKey); err != nil {
		return fmt.Errorf("failed to lock jam schedule: %w", err)
	}
	if check != nil {
		existing, err := listPostgresJams(ctx, tx, JamFilter{HostID: jam.HostID, Venue: jam.VenueLocation})
		if err != nil {
			return err
		}
		if err := check(existing); err != nil {
			return err
		}
	}

	err = tx.QueryRow(ctx, `INSERT INTO jams (title, status, venue_location, based_on_song, start_time, end_time,
			host_id, required_roles, filled_roles, performer_ids, attendee_ids, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $12)
		RETURNING id`,
		jam.Title, string(jam.Status), jam.VenueLocation, jam.BasedOnSong, jam.StartTime, jam.EndTime,
		jam.HostID, role.Names(jam.RequiredRoles), roster.EncodeAll(jam.FilledRoles),
		jam.PerformerIDs, jam.AttendeeIDs, jam.CreatedAt,
	).Scan(&jam.ID)
	if err != nil {
		return fmt.Errorf("failed to insert jam: %w", err)
	}
	jam.Version = 1
	return tx.Commit(ctx)
}

func (s *PostgresStore) UpdateJam(ctx context.Context, id int64, mutate MutateFunc) (*model.Jam, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cur, err := scanJam(tx.QueryRow(ctx, `SELECT `+jamColumns+` FROM jams WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now()

	_, err = tx.Exec(ctx, `UPDATE jams SET status = $2, start_time = $3, end_time = $4,
			filled_roles = $5, performer_ids = $6, attendee_ids = $7, version = $8, updated_at = $9
		WHERE id = $1`,
		id, string(next.Status), next.StartTime, next.EndTime, roster.EncodeAll(next.FilledRoles),
		next.PerformerIDs, next.AttendeeIDs, next.Version, next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update jam %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit jam %d: %w", id, err)
	}
	return next, nil
}

func (s *PostgresStore) DeleteJam(ctx context.Context, id int64, check DeleteCheck) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cur, err := scanJam(tx.QueryRow(ctx, `SELECT `+jamColumns+` FROM jams WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(cur); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM jams WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete jam %d: %w", id, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM app_users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM app_users WHERE username = $1`, username))
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	if u.PastJamIDs == nil {
		u.PastJamIDs = []int64{}
	}
	err := s.db.QueryRow(ctx, `INSERT INTO app_users (username, password_hash, roles, past_jam_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`,
		u.Username, u.PasswordHash, role.Names(u.Roles), u.PastJamIDs, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendPastJam(ctx context.Context, userID, jamID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE app_users
		SET past_jam_ids = array_append(past_jam_ids, $2), updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(past_jam_ids))`, userID, jamID)
	if err != nil {
		return fmt.Errorf("failed to append history for user %d: %w", userID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM app_users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user %d: %w", userID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
