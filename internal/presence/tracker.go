// Package presence tracks which commercials are currently reporting GPS
// positions and applies a grace period before declaring one offline, so a
// brief network drop does not flap the map view.
package presence

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sales-live-gateway/internal/models"
	"sales-live-gateway/internal/observability/metrics"
)

// DefaultGrace is the offline grace period when the configuration leaves it
// unset.
const DefaultGrace = 30 * time.Second

type record struct {
	update   models.LocationUpdate
	socketID string
	lastSeen time.Time
}

// Tracker holds the latest known position per commercial and a pending
// offline timer per disconnected commercial. All methods are safe for
// concurrent use.
type Tracker struct {
	grace     time.Duration
	onOffline func(commercialID string)
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	records map[string]*record
	timers  map[string]*time.Timer
	closed  bool
}

// New creates a tracker. onOffline fires at most once per disconnect, after
// the grace period elapses without the commercial reconnecting. A
// non-positive grace falls back to DefaultGrace.
func New(grace time.Duration, onOffline func(commercialID string), log zerolog.Logger) *Tracker {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Tracker{
		grace:     grace,
		onOffline: onOffline,
		log:       log.With().Str("component", "presence").Logger(),
		now:       time.Now,
		records:   make(map[string]*record),
		timers:    make(map[string]*time.Timer),
	}
}

// SetOnOffline replaces the offline callback. The tracker and its consumer
// reference each other, so the callback is often bound after construction.
func (t *Tracker) SetOnOffline(fn func(commercialID string)) {
	t.mu.Lock()
	t.onOffline = fn
	t.mu.Unlock()
}

// Update records a position report and cancels any pending offline timer
// for the commercial.
func (t *Tracker) Update(update models.LocationUpdate, socketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelTimerLocked(update.CommercialID)
	t.records[update.CommercialID] = &record{
		update:   update,
		socketID: socketID,
		lastSeen: t.now(),
	}
	metrics.DefaultMetrics.RecordLocationUpdate()
}

// Touch refreshes the last-seen time without changing the stored position.
// It cancels a pending offline timer, if any.
func (t *Tracker) Touch(commercialID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelTimerLocked(commercialID)
	if rec, ok := t.records[commercialID]; ok {
		rec.lastSeen = t.now()
	}
}

// Disconnect starts the offline grace timer for every commercial whose last
// position came through socketID. The affected commercial ids are returned.
func (t *Tracker) Disconnect(socketID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var affected []string
	for id, rec := range t.records {
		if rec.socketID != socketID {
			continue
		}
		affected = append(affected, id)
		t.startTimerLocked(id)
	}
	return affected
}

// MarkOffline removes a commercial immediately, cancelling any pending
// timer. Used when the client reports going offline explicitly.
func (t *Tracker) MarkOffline(commercialID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelTimerLocked(commercialID)
	if _, ok := t.records[commercialID]; !ok {
		return false
	}
	delete(t.records, commercialID)
	return true
}

// Online reports whether a commercial has a known position.
func (t *Tracker) Online(commercialID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.records[commercialID]
	return ok
}

// Positions returns the latest known position of every online commercial.
func (t *Tracker) Positions() []models.LocationUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.LocationUpdate, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec.update)
	}
	return out
}

// Count reports the number of online commercials.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Shutdown cancels all pending timers. No onOffline callbacks fire after it
// returns.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *Tracker) startTimerLocked(commercialID string) {
	if t.closed {
		return
	}
	t.cancelTimerLocked(commercialID)
	t.timers[commercialID] = time.AfterFunc(t.grace, func() {
		t.expire(commercialID)
	})
}

func (t *Tracker) cancelTimerLocked(commercialID string) {
	if timer, ok := t.timers[commercialID]; ok {
		timer.Stop()
		delete(t.timers, commercialID)
	}
}

func (t *Tracker) expire(commercialID string) {
	t.mu.Lock()
	// A reconnect cancels the timer and removes it from the map; a timer
	// that already fired into this method can still lose that race, so
	// membership is re-checked under the lock.
	if _, pending := t.timers[commercialID]; !pending || t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.timers, commercialID)
	delete(t.records, commercialID)
	onOffline := t.onOffline
	t.mu.Unlock()

	metrics.DefaultMetrics.RecordOfflineExpiry()
	t.log.Info().Str("commercialId", commercialID).Msg("offline grace period elapsed")
	if onOffline != nil {
		onOffline(commercialID)
	}
}
