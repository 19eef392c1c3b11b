package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sales-live-gateway/internal/models"
	"sales-live-gateway/internal/observability/metrics"
	"sales-live-gateway/internal/textproc"
)

// minEnhanceChars is the transcript length below which enhancement is not
// worth a model call.
const minEnhanceChars = 50

// enhanceTimeout bounds a single background enhancement, retries included.
const enhanceTimeout = 2 * time.Minute

// Service is the write path for session records. Every save persists the raw
// transcript first; enhancement runs in the background afterwards and, when
// it succeeds, rewrites the stored record. A failed enhancement leaves the
// raw transcript in place.
type Service struct {
	store    Store
	enhancer Enhancer
	log      zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup

	onUpdated func(models.TranscriptionSession)
}

// NewService wraps a store. enhancer may be nil to disable enhancement.
func NewService(store Store, enhancer Enhancer, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		enhancer: enhancer,
		log:      log.With().Str("component", "history").Logger(),
		inFlight: make(map[string]bool),
	}
}

// OnSessionUpdated registers a callback fired after a background enhancement
// rewrites a stored session. Set it before the first Save.
func (s *Service) OnSessionUpdated(fn func(models.TranscriptionSession)) {
	s.onUpdated = fn
}

// Save persists the session and, unless skipEnhancement is set, schedules a
// background enhancement of its transcript. The returned SaveResult mirrors
// what callers acknowledge over the wire.
func (s *Service) Save(ctx context.Context, session models.TranscriptionSession, skipEnhancement bool) (SaveResult, error) {
	session.FullTranscript = textproc.FinalizeSentence(session.FullTranscript)

	if err := s.store.UpsertSession(ctx, session); err != nil {
		metrics.DefaultMetrics.RecordSessionSave(false)
		return SaveResult{Success: false, SessionID: session.ID}, err
	}
	metrics.DefaultMetrics.RecordSessionSave(true)

	if !skipEnhancement && s.enhancer != nil && len(session.FullTranscript) > minEnhanceChars {
		s.scheduleEnhancement(session)
	}
	return SaveResult{Success: true, SessionID: session.ID}, nil
}

// Get returns a stored session.
func (s *Service) Get(ctx context.Context, id string) (models.TranscriptionSession, error) {
	return s.store.GetSession(ctx, id)
}

// History lists a commercial's most recent sessions, newest first.
func (s *Service) History(ctx context.Context, commercialID string, limit int) ([]models.TranscriptionSession, error) {
	return s.store.SessionsForCommercial(ctx, commercialID, limit)
}

// Wait blocks until all background enhancements finish. Used on shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) scheduleEnhancement(session models.TranscriptionSession) {
	s.mu.Lock()
	if s.inFlight[session.ID] {
		s.mu.Unlock()
		return
	}
	s.inFlight[session.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, session.ID)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), enhanceTimeout)
		defer cancel()

		enhanced, err := s.enhancer.Enhance(ctx, session.FullTranscript)
		if err != nil {
			metrics.DefaultMetrics.RecordEnhancement(false)
			s.log.Warn().Err(err).Str("sessionId", session.ID).Msg("enhancement failed, keeping raw transcript")
			return
		}

		session.FullTranscript = textproc.FormatDialogueWithLineBreaks(enhanced)
		if err := s.store.UpsertSession(ctx, session); err != nil {
			metrics.DefaultMetrics.RecordEnhancement(false)
			s.log.Error().Err(err).Str("sessionId", session.ID).Msg("persisting enhanced transcript failed")
			return
		}
		metrics.DefaultMetrics.RecordEnhancement(true)
		s.log.Info().Str("sessionId", session.ID).Msg("transcript enhanced")

		if s.onUpdated != nil {
			s.onUpdated(session)
		}
	}()
}
