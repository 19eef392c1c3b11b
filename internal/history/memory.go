package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"sales-live-gateway/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and development. Latency and
// FailUpserts exist so scheduler tests can shape the store's behavior.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.TranscriptionSession

	// Latency is added to every UpsertSession call.
	Latency time.Duration
	// FailUpserts makes UpsertSession return this error when non-nil.
	FailUpserts error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.TranscriptionSession)}
}

func (s *MemoryStore) UpsertSession(ctx context.Context, session models.TranscriptionSession) error {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts != nil {
		return s.FailUpserts
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (models.TranscriptionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.TranscriptionSession{}, ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) SessionsForCommercial(_ context.Context, commercialID string, limit int) ([]models.TranscriptionSession, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []models.TranscriptionSession
	for _, session := range s.sessions {
		if session.CommercialID == commercialID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
