// Package history persists finished and in-progress transcription sessions
// and optionally reworks their transcripts through an LLM after the fact.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sales-live-gateway/internal/models"
)

// ErrNotFound is returned when a session id has no stored record.
var ErrNotFound = errors.New("history: session not found")

// SaveResult is the acknowledgement payload for a persisted session.
type SaveResult struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// Store persists session records keyed by session id. Upserting the same id
// replaces the stored record; sessions are written repeatedly while still
// running, so replacement is the common path.
type Store interface {
	UpsertSession(ctx context.Context, session models.TranscriptionSession) error
	GetSession(ctx context.Context, id string) (models.TranscriptionSession, error)
	SessionsForCommercial(ctx context.Context, commercialID string, limit int) ([]models.TranscriptionSession, error)
	Close() error
}

// Driver names accepted by NewStore.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// StoreConfig selects and configures a history driver.
type StoreConfig struct {
	Driver      string
	PostgresDSN string
	RedisAddr   string
	RedisTTL    time.Duration
}

// NewStore builds the configured driver. The memory driver is for tests and
// single-box development only.
func NewStore(ctx context.Context, cfg StoreConfig, log zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, log)
	case DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("history: redis ping: %w", err)
		}
		return NewRedisStore(client, cfg.RedisTTL), nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("history: unknown driver %q", cfg.Driver)
	}
}
