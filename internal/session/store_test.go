package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore() *Store {
	return New(zerolog.Nop())
}

func TestStartOrResume_Idempotent(t *testing.T) {
	s := newTestStore()

	first := s.StartOrResume("com-1", "Alice Martin", "", "")
	s.AppendTranscript("com-1", "Bonjour monsieur", true, "", "")
	second := s.StartOrResume("com-1", "Alice Martin", "", "")

	if first.ID != second.ID {
		t.Errorf("second start forked a new session: %s != %s", first.ID, second.ID)
	}
	got, _ := s.Get("com-1")
	if got.FullTranscript != "Bonjour monsieur" {
		t.Errorf("accumulated transcript lost on restart: %q", got.FullTranscript)
	}
	if s.ActiveCount() != 1 {
		t.Errorf("expected 1 active session, got %d", s.ActiveCount())
	}
}

func TestStartOrResume_BuildingBackfill(t *testing.T) {
	s := newTestStore()

	s.StartOrResume("com-1", "Alice", "", "")
	withBuilding := s.StartOrResume("com-1", "Alice", "b-1", "12 rue Victor Hugo")
	if withBuilding.BuildingID != "b-1" || withBuilding.BuildingName != "12 rue Victor Hugo" {
		t.Errorf("building not backfilled: %+v", withBuilding)
	}

	// Once set, later starts must not overwrite.
	overwritten := s.StartOrResume("com-1", "Alice", "b-2", "other")
	if overwritten.BuildingID != "b-1" {
		t.Errorf("building overwritten: %+v", overwritten)
	}
}

func TestAppendTranscript(t *testing.T) {
	s := newTestStore()
	s.StartOrResume("com-1", "Alice", "", "")

	s.AppendTranscript("com-1", "Bonjour", true, "", "")
	s.AppendTranscript("com-1", "Bonjour tout le monde", true, "", "")
	got, _ := s.Get("com-1")
	if got.FullTranscript != "Bonjour tout le monde" {
		t.Errorf("dedup merge failed: %q", got.FullTranscript)
	}

	// Interim fragments must not accumulate.
	s.AppendTranscript("com-1", "du bruit", false, "", "")
	got, _ = s.Get("com-1")
	if got.FullTranscript != "Bonjour tout le monde" {
		t.Errorf("non-final fragment accumulated: %q", got.FullTranscript)
	}
}

func TestAppendTranscript_NoSession(t *testing.T) {
	s := newTestStore()
	if _, ok := s.AppendTranscript("idle", "texte", true, "", ""); ok {
		t.Error("expected no-op for idle commercial")
	}
}

func TestAppendTranscript_Doors(t *testing.T) {
	s := newTestStore()
	sess := s.StartOrResume("com-1", "Alice", "", "")

	s.AppendTranscript("com-1", "porte un", true, "d-1", "Porte 1")
	s.AppendTranscript("com-1", "personne ne répond", true, "d-1", "Porte 1")
	s.AppendTranscript("com-1", "porte deux", true, "d-2", "Porte 2")

	got, _ := s.Get("com-1")
	if len(got.VisitedDoors) != 2 || got.VisitedDoors[0] != "Porte 1" || got.VisitedDoors[1] != "Porte 2" {
		t.Errorf("unexpected visited doors: %v", got.VisitedDoors)
	}

	byDoor := s.DoorTexts(sess.ID)
	if byDoor["d-1"] != "porte un personne ne répond" {
		t.Errorf("unexpected door text: %q", byDoor["d-1"])
	}
	if byDoor["d-2"] != "porte deux" {
		t.Errorf("unexpected door text: %q", byDoor["d-2"])
	}
}

func TestFinalize(t *testing.T) {
	s := newTestStore()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	sess := s.StartOrResume("com-1", "Alice", "", "")
	s.AppendTranscript("com-1", "Bonjour", true, "d-1", "Porte 1")

	current = base.Add(95 * time.Second)
	done, ok := s.Finalize("com-1")
	if !ok {
		t.Fatal("expected finalized session")
	}
	if done.DurationSeconds != 95 {
		t.Errorf("expected 95s duration, got %d", done.DurationSeconds)
	}
	if done.Active() {
		t.Error("finalized session still reports active")
	}
	if s.ActiveCount() != 0 {
		t.Errorf("session not removed from active set")
	}
	if s.DoorTexts(sess.ID) != nil {
		t.Error("per-door map not discarded on finalize")
	}
	if _, ok := s.Finalize("com-1"); ok {
		t.Error("second finalize should report no active session")
	}
}

func TestSnapshot_LeavesSessionActive(t *testing.T) {
	s := newTestStore()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	s.StartOrResume("com-1", "Alice", "", "")
	s.AppendTranscript("com-1", "Bonjour", true, "", "")

	current = base.Add(30 * time.Second)
	snap, ok := s.Snapshot("com-1")
	if !ok {
		t.Fatal("expected snapshot")
	}
	if snap.Active() || snap.DurationSeconds != 30 {
		t.Errorf("unexpected snapshot: end=%v duration=%d", snap.EndTime, snap.DurationSeconds)
	}

	live, ok := s.Get("com-1")
	if !ok || !live.Active() {
		t.Error("snapshot altered live session state")
	}
}

func TestSnapshotAll(t *testing.T) {
	s := newTestStore()
	if snaps := s.SnapshotAll(); snaps != nil {
		t.Errorf("expected nil for empty store, got %v", snaps)
	}

	s.StartOrResume("com-1", "Alice", "", "")
	s.StartOrResume("com-2", "Bob", "", "")
	snaps := s.SnapshotAll()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if s.ActiveCount() != 2 {
		t.Error("SnapshotAll must not remove sessions")
	}
}
