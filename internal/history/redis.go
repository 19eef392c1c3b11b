package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"sales-live-gateway/internal/models"
)

var _ Store = (*RedisStore)(nil)

const (
	sessionKeyPrefix    = "session:"
	commercialKeyPrefix = "commercial_sessions:"
	defaultSessionTTL   = 7 * 24 * time.Hour
)

// RedisStore keeps session records as JSON values with a TTL, plus a per
// commercial set of session ids for listing. Deployments without a durable
// database use it as a bounded recent-history window.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. A non-positive ttl falls
// back to seven days.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) UpsertSession(ctx context.Context, session models.TranscriptionSession) error {
	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("history: marshal session %s: %w", session.ID, err)
	}
	key := sessionKeyPrefix + session.ID
	indexKey := commercialKeyPrefix + session.CommercialID

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, val, s.ttl)
		pipe.SAdd(ctx, indexKey, session.ID)
		pipe.Expire(ctx, indexKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("history: upsert session %s: %w", session.ID, err)
	}
	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (models.TranscriptionSession, error) {
	val, err := s.client.Get(ctx, sessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return models.TranscriptionSession{}, ErrNotFound
	}
	if err != nil {
		return models.TranscriptionSession{}, fmt.Errorf("history: get session %s: %w", id, err)
	}
	var session models.TranscriptionSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return models.TranscriptionSession{}, fmt.Errorf("history: decode session %s: %w", id, err)
	}
	return session, nil
}

func (s *RedisStore) SessionsForCommercial(ctx context.Context, commercialID string, limit int) ([]models.TranscriptionSession, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.SMembers(ctx, commercialKeyPrefix+commercialID).Result()
	if err != nil {
		return nil, fmt.Errorf("history: list sessions for %s: %w", commercialID, err)
	}

	sessions := make([]models.TranscriptionSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// The value expired while its index entry lingered.
			s.client.SRem(ctx, commercialKeyPrefix+commercialID, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
