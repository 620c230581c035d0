package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fcpbot/fcpbot/internal/models"
)

var ErrNotFound = errors.New("not found")

// TimerStore is the durable mapping from proposal number to FCP end time.
// Writes are synchronous; the scheduler relies on a persisted row existing
// before a timer is considered scheduled.
type TimerStore interface {
	UpsertTimer(ctx context.Context, t models.Timer) error
	DeleteTimer(ctx context.Context, proposalNum int) error
	ListTimers(ctx context.Context) ([]models.Timer, error)
	Ping(ctx context.Context) error
}

// PGStore persists timers in Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the fcp_timers table when missing. End timestamps are
// stored as unix seconds.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const q = `
		CREATE TABLE IF NOT EXISTS fcp_timers (
			proposal_num  INTEGER PRIMARY KEY,
			end_timestamp BIGINT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create fcp_timers: %w", err)
	}
	return nil
}

func (s *PGStore) UpsertTimer(ctx context.Context, t models.Timer) error {
	const q = `
		INSERT INTO fcp_timers (proposal_num, end_timestamp)
		VALUES ($1, $2)
		ON CONFLICT (proposal_num) DO UPDATE SET end_timestamp = EXCLUDED.end_timestamp
	`
	if _, err := s.db.ExecContext(ctx, q, t.ProposalNum, t.EndsAt.Unix()); err != nil {
		return fmt.Errorf("upsert timer: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteTimer(ctx context.Context, proposalNum int) error {
	const q = `DELETE FROM fcp_timers WHERE proposal_num = $1`
	res, err := s.db.ExecContext(ctx, q, proposalNum)
	if err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete timer rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListTimers(ctx context.Context) ([]models.Timer, error) {
	const q = `SELECT proposal_num, end_timestamp FROM fcp_timers ORDER BY proposal_num`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	defer rows.Close()

	var timers []models.Timer
	for rows.Next() {
		var (
			num int
			ts  int64
		)
		if err := rows.Scan(&num, &ts); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		timers = append(timers, models.Timer{ProposalNum: num, EndsAt: time.Unix(ts, 0).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return timers, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
