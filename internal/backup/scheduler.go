// Package backup periodically flushes every open transcription session to
// the history store so a process crash loses at most one interval of speech.
package backup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sales-live-gateway/internal/history"
	"sales-live-gateway/internal/models"
	"sales-live-gateway/internal/observability/metrics"
)

// DefaultInterval is the flush cadence when the configuration leaves it
// unset.
const DefaultInterval = 30 * time.Second

// Snapshotter yields point-in-time copies of every open session.
type Snapshotter interface {
	SnapshotAll() []models.TranscriptionSession
}

// Saver persists a single session snapshot. *history.Service satisfies it.
type Saver interface {
	Save(ctx context.Context, session models.TranscriptionSession, skipEnhancement bool) (history.SaveResult, error)
}

// Scheduler runs a periodic backup pass. Sessions in a pass are persisted
// concurrently; one session's failure never blocks the others, and
// enhancement is always skipped because the sessions are still running.
type Scheduler struct {
	snapshots Snapshotter
	saver     Saver
	interval  time.Duration
	log       zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a scheduler. A non-positive interval falls back to
// DefaultInterval.
func New(snapshots Snapshotter, saver Saver, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		snapshots: snapshots,
		saver:     saver,
		interval:  interval,
		log:       log.With().Str("component", "backup").Logger(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the ticker loop. It returns immediately.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts the ticker. It does not wait for an in-flight pass; saves
// already started run to completion on their own contexts.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done is closed once the ticker loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.FlushAll(context.Background())
		}
	}
}

// FlushAll persists a snapshot of every open session and returns how many
// saves succeeded and failed. An empty snapshot is a no-op.
func (s *Scheduler) FlushAll(ctx context.Context) (saved, failed int) {
	sessions := s.snapshots.SnapshotAll()
	if len(sessions) == 0 {
		return 0, 0
	}

	start := time.Now()
	var okCount, failCount atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for _, session := range sessions {
		session := session
		g.Go(func() error {
			// Errors are counted, not returned: a returned error would
			// cancel the sibling saves through the group context.
			if _, err := s.saver.Save(ctx, session, true); err != nil {
				failCount.Add(1)
				s.log.Error().Err(err).
					Str("sessionId", session.ID).
					Str("commercialId", session.CommercialID).
					Msg("backup save failed")
				return nil
			}
			okCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	metrics.DefaultMetrics.RecordBackupRun(len(sessions), elapsed.Seconds())
	s.log.Info().
		Int("sessions", len(sessions)).
		Int64("saved", okCount.Load()).
		Int64("failed", failCount.Load()).
		Dur("elapsed", elapsed).
		Msg("backup pass complete")

	return int(okCount.Load()), int(failCount.Load())
}
