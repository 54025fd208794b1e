package results

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"pairlab/internal/event"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const defaultRecentLimit = 100

// SQLStore keeps trial results in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	closed  atomic.Bool
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	dialect, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect.name, err)
	}
	db.SetMaxOpenConns(dialect.maxConns)
	db.SetMaxIdleConns(dialect.maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", dialect.name, err)
	}

	store := &SQLStore{db: db, dialect: dialect}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

func (s *SQLStore) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, s.dialect.schema)
	return err
}

// SaveTrial inserts record. Saving the same pair and trial index twice keeps
// the first row.
func (s *SQLStore) SaveTrial(ctx context.Context, record event.TrialRecord) error {
	if s.closed.Load() {
		return ErrClosed
	}
	query := s.dialect.rebind(`
	INSERT INTO trials
		(pair_id, trial_index, director_id, matcher_id, director_external_id, matcher_external_id,
		 target, label, guess, score, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (pair_id, trial_index) DO NOTHING
	`)
	completedAt := record.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		record.PairID,
		record.Index,
		record.DirectorID,
		record.MatcherID,
		record.DirectorExternalID,
		record.MatcherExternalID,
		record.Target,
		record.Label,
		record.Guess,
		record.Score,
		s.dialect.timeColumn(completedAt),
	)
	if err != nil {
		return fmt.Errorf("saving trial %s/%d: %w", record.PairID, record.Index, err)
	}
	return nil
}

func (s *SQLStore) PairTrials(ctx context.Context, pairID string) ([]event.TrialRecord, error) {
	return s.query(ctx, `
		SELECT pair_id, trial_index, director_id, matcher_id, director_external_id, matcher_external_id,
			target, label, guess, score, completed_at
		FROM trials
		WHERE pair_id = ?
		ORDER BY trial_index
	`, pairID)
}

// RecentTrials returns up to limit trials, newest first.
func (s *SQLStore) RecentTrials(ctx context.Context, limit int) ([]event.TrialRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.query(ctx, `
		SELECT pair_id, trial_index, director_id, matcher_id, director_external_id, matcher_external_id,
			target, label, guess, score, completed_at
		FROM trials
		ORDER BY id DESC
		LIMIT ?
	`, limit)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]event.TrialRecord, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []event.TrialRecord
	for rows.Next() {
		var (
			record      event.TrialRecord
			completedAt any
		)
		if err := rows.Scan(
			&record.PairID,
			&record.Index,
			&record.DirectorID,
			&record.MatcherID,
			&record.DirectorExternalID,
			&record.MatcherExternalID,
			&record.Target,
			&record.Label,
			&record.Guess,
			&record.Score,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if record.CompletedAt, err = scanTime(completedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
