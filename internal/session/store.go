// Package session holds the in-memory registry of active transcription
// sessions, one per commercial. The store owns all live session state;
// persisted rows are snapshots and finalizations produced from it, never the
// other way around.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sales-live-gateway/internal/models"
	"sales-live-gateway/internal/textproc"
)

// Store is the active-session registry. Safe for concurrent use. Construct
// one per process with New and hand it to the gateway and the backup
// scheduler; there are no package-level registries.
type Store struct {
	mu     sync.Mutex
	active map[string]*record

	// doorTexts accumulates a separately deduplicated transcript per
	// (sessionID, doorID); discarded when the session is finalized.
	doorTexts map[string]map[string]string

	now func() time.Time
	log zerolog.Logger
}

type record struct {
	session models.TranscriptionSession
}

// New creates an empty session store.
func New(log zerolog.Logger) *Store {
	return &Store{
		active:    make(map[string]*record),
		doorTexts: make(map[string]map[string]string),
		now:       time.Now,
		log:       log.With().Str("component", "session-store").Logger(),
	}
}

// StartOrResume returns the active session for commercialID, creating one if
// none exists. Starting twice without an intervening Finalize is idempotent:
// the existing session keeps its id and accumulated transcript. Building
// metadata is backfilled only when previously unset.
func (s *Store) StartOrResume(commercialID, name, buildingID, buildingName string) models.TranscriptionSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.active[commercialID]; ok {
		if rec.session.BuildingID == "" && buildingID != "" {
			rec.session.BuildingID = buildingID
		}
		if rec.session.BuildingName == "" && buildingName != "" {
			rec.session.BuildingName = buildingName
		}
		return rec.session
	}

	now := s.now()
	sess := models.TranscriptionSession{
		ID:             fmt.Sprintf("%s_%d", commercialID, now.UnixMilli()),
		CommercialID:   commercialID,
		CommercialName: name,
		StartTime:      now,
		BuildingID:     buildingID,
		BuildingName:   buildingName,
	}
	s.active[commercialID] = &record{session: sess}

	s.log.Info().
		Str("commercialId", commercialID).
		Str("sessionId", sess.ID).
		Msg("transcription session created")
	return sess
}

// AppendTranscript merges a final fragment into the active session's
// transcript. Non-final fragments and fragments for idle commercials are
// ignored. Returns the updated session and whether one was found.
func (s *Store) AppendTranscript(commercialID, fragment string, isFinal bool, doorID, doorLabel string) (models.TranscriptionSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.active[commercialID]
	if !ok {
		return models.TranscriptionSession{}, false
	}
	if !isFinal {
		return rec.session, true
	}

	rec.session.FullTranscript = textproc.DedupAppend(rec.session.FullTranscript, fragment)

	if doorLabel != "" {
		doors := rec.session.VisitedDoors
		if len(doors) == 0 || doors[len(doors)-1] != doorLabel {
			rec.session.VisitedDoors = append(doors, doorLabel)
		}
	}
	if doorID != "" {
		byDoor := s.doorTexts[rec.session.ID]
		if byDoor == nil {
			byDoor = make(map[string]string)
			s.doorTexts[rec.session.ID] = byDoor
		}
		byDoor[doorID] = textproc.DedupAppend(byDoor[doorID], fragment)
	}
	return rec.session, true
}

// Finalize stamps the session's end time, removes it from the active set and
// discards its per-door texts. Returns the finalized snapshot for
// persistence, or false if the commercial has no active session.
func (s *Store) Finalize(commercialID string) (models.TranscriptionSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.active[commercialID]
	if !ok {
		return models.TranscriptionSession{}, false
	}

	sess := rec.session
	sess.EndTime = s.now()
	sess.DurationSeconds = int(sess.EndTime.Sub(sess.StartTime).Round(time.Second) / time.Second)

	delete(s.active, commercialID)
	delete(s.doorTexts, sess.ID)

	s.log.Info().
		Str("commercialId", commercialID).
		Str("sessionId", sess.ID).
		Int("durationSeconds", sess.DurationSeconds).
		Int("transcriptChars", len(sess.FullTranscript)).
		Msg("transcription session finalized")
	return sess, true
}

// Snapshot returns a copy of the active session with a synthetic end time of
// now and the corresponding duration, leaving the live session untouched.
// Used for periodic and emergency backups.
func (s *Store) Snapshot(commercialID string) (models.TranscriptionSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.active[commercialID]
	if !ok {
		return models.TranscriptionSession{}, false
	}
	return s.snapshotLocked(rec), true
}

// SnapshotAll returns backup snapshots of every active session.
func (s *Store) SnapshotAll() []models.TranscriptionSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) == 0 {
		return nil
	}
	snaps := make([]models.TranscriptionSession, 0, len(s.active))
	for _, rec := range s.active {
		snaps = append(snaps, s.snapshotLocked(rec))
	}
	return snaps
}

func (s *Store) snapshotLocked(rec *record) models.TranscriptionSession {
	snap := rec.session
	snap.EndTime = s.now()
	snap.DurationSeconds = int(snap.EndTime.Sub(snap.StartTime).Round(time.Second) / time.Second)
	snap.VisitedDoors = append([]string(nil), rec.session.VisitedDoors...)
	return snap
}

// Get returns the active session for commercialID, if any.
func (s *Store) Get(commercialID string) (models.TranscriptionSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.active[commercialID]
	if !ok {
		return models.TranscriptionSession{}, false
	}
	return rec.session, true
}

// ActiveCount returns the number of active sessions.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// DoorTexts returns a copy of the per-door transcript map for a session.
func (s *Store) DoorTexts(sessionID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDoor, ok := s.doorTexts[sessionID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(byDoor))
	for k, v := range byDoor {
		out[k] = v
	}
	return out
}
