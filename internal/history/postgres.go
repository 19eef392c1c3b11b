package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"sales-live-gateway/internal/models"
)

var _ Store = (*PostgresStore)(nil)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS transcription_sessions (
    id               TEXT         PRIMARY KEY,
    commercial_id    TEXT         NOT NULL,
    commercial_name  TEXT         NOT NULL DEFAULT '',
    start_time       TIMESTAMPTZ  NOT NULL,
    end_time         TIMESTAMPTZ,
    full_transcript  TEXT         NOT NULL DEFAULT '',
    duration_seconds BIGINT       NOT NULL DEFAULT 0,
    building_id      TEXT         NOT NULL DEFAULT '',
    building_name    TEXT         NOT NULL DEFAULT '',
    visited_doors    TEXT[]       NOT NULL DEFAULT '{}',
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcription_sessions_commercial
    ON transcription_sessions (commercial_id, start_time DESC);
`

// PostgresStore persists sessions in a transcription_sessions table. A
// session row is rewritten on every backup pass while the session runs, so
// the upsert replaces every mutable column.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresStore connects to the database at dsn and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	s := &PostgresStore{pool: pool, log: log.With().Str("component", "history.postgres").Logger()}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool without running schema
// setup. The caller owns the pool's lifecycle.
func NewPostgresStoreFromPool(pool *pgxpool.Pool, log zerolog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, log: log.With().Str("component", "history.postgres").Logger()}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddlSessions); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertSession(ctx context.Context, session models.TranscriptionSession) error {
	var endTime *time.Time
	if !session.EndTime.IsZero() {
		endTime = &session.EndTime
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcription_sessions
			(id, commercial_id, commercial_name, start_time, end_time,
			 full_transcript, duration_seconds, building_id, building_name,
			 visited_doors, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (id) DO UPDATE SET
			commercial_name  = EXCLUDED.commercial_name,
			end_time         = EXCLUDED.end_time,
			full_transcript  = EXCLUDED.full_transcript,
			duration_seconds = EXCLUDED.duration_seconds,
			building_id      = EXCLUDED.building_id,
			building_name    = EXCLUDED.building_name,
			visited_doors    = EXCLUDED.visited_doors,
			updated_at       = now()`,
		session.ID, session.CommercialID, session.CommercialName,
		session.StartTime, endTime, session.FullTranscript,
		session.DurationSeconds, session.BuildingID, session.BuildingName,
		session.VisitedDoors,
	)
	if err != nil {
		return fmt.Errorf("history: upsert session %s: %w", session.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (models.TranscriptionSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, commercial_id, commercial_name, start_time, end_time,
		       full_transcript, duration_seconds, building_id, building_name,
		       visited_doors
		FROM transcription_sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TranscriptionSession{}, ErrNotFound
	}
	if err != nil {
		return models.TranscriptionSession{}, fmt.Errorf("history: get session %s: %w", id, err)
	}
	return session, nil
}

func (s *PostgresStore) SessionsForCommercial(ctx context.Context, commercialID string, limit int) ([]models.TranscriptionSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, commercial_id, commercial_name, start_time, end_time,
		       full_transcript, duration_seconds, building_id, building_name,
		       visited_doors
		FROM transcription_sessions
		WHERE commercial_id = $1
		ORDER BY start_time DESC
		LIMIT $2`, commercialID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list sessions for %s: %w", commercialID, err)
	}
	defer rows.Close()

	var sessions []models.TranscriptionSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list sessions for %s: %w", commercialID, err)
	}
	return sessions, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanSession(row pgx.Row) (models.TranscriptionSession, error) {
	var (
		session models.TranscriptionSession
		endTime *time.Time
	)
	err := row.Scan(
		&session.ID, &session.CommercialID, &session.CommercialName,
		&session.StartTime, &endTime, &session.FullTranscript,
		&session.DurationSeconds, &session.BuildingID, &session.BuildingName,
		&session.VisitedDoors,
	)
	if err != nil {
		return models.TranscriptionSession{}, err
	}
	if endTime != nil {
		session.EndTime = *endTime
	}
	return session, nil
}
