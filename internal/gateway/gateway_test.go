package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sales-live-gateway/internal/events"
	"sales-live-gateway/internal/hierarchy"
	"sales-live-gateway/internal/history"
	"sales-live-gateway/internal/models"
	"sales-live-gateway/internal/presence"
	"sales-live-gateway/internal/session"
	"sales-live-gateway/internal/stream"
	"sales-live-gateway/internal/stt"
	"sales-live-gateway/internal/stt/mock"
	"sales-live-gateway/internal/visibility"
)

type testHub struct {
	*Hub
	dir      *hierarchy.StaticDirectory
	store    *history.MemoryStore
	sessions *session.Store
	streams  *stream.Registry
	presence *presence.Tracker
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	log := zerolog.Nop()
	dir := hierarchy.NewStatic()
	store := history.NewMemoryStore()
	sessions := session.New(log)
	streams := stream.New()
	tracker := presence.New(time.Hour, nil, log)
	t.Cleanup(tracker.Shutdown)

	h := New(Config{
		Sessions:   sessions,
		Streams:    streams,
		Visibility: visibility.New(dir, log),
		History:    history.NewService(store, nil, log),
		Presence:   tracker,
		Directory:  dir,
		Publisher:  events.New(&events.Config{Enabled: false}),
		Log:        log,
	})
	tracker.SetOnOffline(h.NotifyOffline)
	return &testHub{Hub: h, dir: dir, store: store, sessions: sessions, streams: streams, presence: tracker}
}

func (h *testHub) connect(t *testing.T) *Conn {
	t.Helper()
	c := newConn(nil, zerolog.Nop())
	h.addConn(c)
	return c
}

// observe connects a socket and puts it in the audio-streaming room, the
// way dashboard clients do before watching streams.
func (h *testHub) observe(t *testing.T) *Conn {
	t.Helper()
	c := h.connect(t)
	h.dispatch(t, c, "joinRoom", map[string]any{"room": RoomAudio})
	return c
}

func env(t *testing.T, event string, payload any) Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{Event: event, Data: data}
}

func (h *testHub) dispatch(t *testing.T, c *Conn, event string, payload any) {
	t.Helper()
	h.handleEvent(context.Background(), c, env(t, event, payload))
}

// received drains and decodes everything queued on the connection.
func received(t *testing.T, c *Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame := <-c.out:
			var e Envelope
			if err := json.Unmarshal(frame, &e); err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventsOf(envs []Envelope) []string {
	names := make([]string, len(envs))
	for i, e := range envs {
		names[i] = e.Event
	}
	return names
}

func countEvent(envs []Envelope, name string) int {
	n := 0
	for _, e := range envs {
		if e.Event == name {
			n++
		}
	}
	return n
}

func TestDisconnectDuringStreamFlushesBeforeStopBroadcast(t *testing.T) {
	h := newTestHub(t)
	h.dir.Assign("mgr-1", "com-1", "Alice Martin")

	rep := h.connect(t)
	observer := h.observe(t)

	h.dispatch(t, rep, "start_streaming", map[string]any{"commercialId": "com-1"})
	h.dispatch(t, rep, "transcription_update", map[string]any{
		"commercial_id": "com-1",
		"transcript":    "bonjour madame je passe pour la fibre",
		"is_final":      true,
	})
	received(t, observer) // clear the start broadcast

	h.disconnect(rep)

	// Exactly one snapshot persisted, not finalized.
	if h.store.Len() != 1 {
		t.Fatalf("store has %d sessions, want 1", h.store.Len())
	}
	sess, ok := h.sessions.Get("com-1")
	if !ok {
		t.Fatal("session was finalized by disconnect, want it resumable")
	}
	saved, err := h.store.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if saved.EndTime.IsZero() {
		t.Error("snapshot has no synthetic end time")
	}
	if saved.FullTranscript == "" {
		t.Error("snapshot lost the transcript")
	}

	// The stream is gone immediately and observers were told.
	if _, live := h.streams.Get("com-1"); live {
		t.Error("stream entry survived disconnect")
	}
	if got := countEvent(received(t, observer), "stop_streaming"); got != 1 {
		t.Errorf("observer got %d stop_streaming events, want 1", got)
	}
}

func TestStopStreamingFinalizesAndCompletes(t *testing.T) {
	h := newTestHub(t)
	rep := h.connect(t)
	observer := h.observe(t)

	h.dispatch(t, rep, "start_streaming", map[string]any{"commercialId": "com-1"})
	h.dispatch(t, rep, "transcription_update", map[string]any{
		"commercial_id": "com-1",
		"transcript":    "bonjour madame",
		"is_final":      true,
	})
	received(t, observer)

	h.dispatch(t, rep, "stop_streaming", map[string]any{"commercialId": "com-1"})

	if _, active := h.sessions.Get("com-1"); active {
		t.Error("session still active after stop")
	}
	got := eventsOf(received(t, observer))
	if len(got) < 2 || got[0] != "stop_streaming" || got[1] != "transcription_session_completed" {
		t.Errorf("observer events = %v, want stop_streaming then transcription_session_completed", got)
	}
	if h.store.Len() != 1 {
		t.Errorf("store has %d sessions, want 1", h.store.Len())
	}
}

func TestManagerScopedBroadcast(t *testing.T) {
	h := newTestHub(t)
	h.dir.Assign("mgr-1", "com-1", "Alice Martin")
	h.dir.Assign("mgr-2", "com-2", "Bob Durand")

	rep := h.connect(t)
	owner := h.observe(t)   // manager of com-1
	other := h.observe(t)   // manager of com-2
	admin := h.observe(t)   // unidentified, default-allow

	h.dispatch(t, owner, "request_manager_streaming_status", map[string]any{"managerId": "mgr-1"})
	h.dispatch(t, other, "request_manager_streaming_status", map[string]any{"managerId": "mgr-2"})
	received(t, owner)
	received(t, other)

	h.dispatch(t, rep, "start_streaming", map[string]any{"commercialId": "com-1"})

	if got := countEvent(received(t, owner), "start_streaming"); got != 1 {
		t.Errorf("owning manager got %d start events, want 1", got)
	}
	if got := countEvent(received(t, other), "start_streaming"); got != 0 {
		t.Errorf("other manager got %d start events, want 0", got)
	}
	if got := countEvent(received(t, admin), "start_streaming"); got != 1 {
		t.Errorf("unidentified observer got %d start events, want 1", got)
	}
}

func TestManagerStreamingStatusFiltersAndRevokes(t *testing.T) {
	h := newTestHub(t)
	h.dir.Assign("mgr-1", "com-1", "Alice Martin")
	h.dir.Assign("mgr-2", "com-2", "Bob Durand")

	repA := h.connect(t)
	repB := h.connect(t)
	mgr := h.connect(t)

	h.dispatch(t, repA, "start_streaming", map[string]any{"commercialId": "com-1"})
	h.dispatch(t, repB, "start_streaming", map[string]any{"commercialId": "com-2"})

	h.dispatch(t, mgr, "request_manager_streaming_status", map[string]any{"managerId": "mgr-1"})

	envs := received(t, mgr)
	var status struct {
		ManagerID string                `json:"manager_id"`
		Streams   []models.ActiveStream `json:"streams"`
	}
	found := false
	for _, e := range envs {
		if e.Event == "streaming_status_response" {
			if err := json.Unmarshal(e.Data, &status); err != nil {
				t.Fatalf("decode status: %v", err)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("no streaming_status_response, got %v", eventsOf(envs))
	}
	if len(status.Streams) != 1 || status.Streams[0].CommercialID != "com-1" {
		t.Errorf("streams = %+v, want only com-1", status.Streams)
	}
	// com-2 was never shown to mgr-1, so no revocation notice.
	if got := countEvent(envs, "manager_streams_removed"); got != 0 {
		t.Errorf("got %d manager_streams_removed, want 0", got)
	}

	// Reassign com-1 away from mgr-1; it was previously reported, so the
	// next status request revokes it.
	h.dir.Assign("mgr-2", "com-1", "Alice Martin")
	h.dispatch(t, mgr, "request_manager_streaming_status", map[string]any{"managerId": "mgr-1"})
	envs = received(t, mgr)
	if got := countEvent(envs, "manager_streams_removed"); got != 1 {
		t.Errorf("got %d manager_streams_removed, want 1: %v", got, eventsOf(envs))
	}
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	h := newTestHub(t)
	c := h.connect(t)

	h.handleEvent(context.Background(), c, Envelope{
		Event: "start_streaming",
		Data:  json.RawMessage(`{"commercialId": 42}`),
	})
	h.dispatch(t, c, "start_streaming", map[string]any{"commercialId": "  "})

	envs := received(t, c)
	if got := countEvent(envs, "error"); got != 2 {
		t.Fatalf("got %d error events, want 2: %v", got, eventsOf(envs))
	}
	if h.streams.Count() != 0 {
		t.Error("stream registered from invalid payload")
	}
}

func TestGPSRoomReplayAndBroadcast(t *testing.T) {
	h := newTestHub(t)
	rep := h.connect(t)
	watcherA := h.connect(t)
	watcherB := h.connect(t)

	h.dispatch(t, watcherA, "joinRoom", map[string]any{"room": RoomGPS})
	h.dispatch(t, rep, "joinRoom", map[string]any{"room": RoomGPS})
	h.dispatch(t, rep, "locationUpdate", models.LocationUpdate{
		CommercialID: "com-1",
		Position:     [2]float64{48.8566, 2.3522},
		Timestamp:    "2026-03-12T09:00:00Z",
	})

	// A already in the room gets the live broadcast; the sender does not.
	if got := countEvent(received(t, watcherA), "locationUpdate"); got != 1 {
		t.Errorf("watcherA got %d locationUpdate, want 1", got)
	}
	if got := countEvent(received(t, rep), "locationUpdate"); got != 0 {
		t.Errorf("sender got %d locationUpdate, want 0", got)
	}

	// A late joiner gets the current position replayed.
	h.dispatch(t, watcherB, "joinRoom", map[string]any{"room": RoomGPS})
	if got := countEvent(received(t, watcherB), "locationUpdate"); got != 1 {
		t.Errorf("late joiner got %d locationUpdate, want 1", got)
	}
}

func TestEmergencySaveIsBenignWithoutSession(t *testing.T) {
	h := newTestHub(t)
	c := h.connect(t)

	h.dispatch(t, c, "emergency_save_session", map[string]any{"commercialId": "com-9"})

	envs := received(t, c)
	if got := countEvent(envs, "emergency_save_response"); got != 1 {
		t.Fatalf("got %d emergency_save_response, want 1", got)
	}
	if h.store.Len() != 0 {
		t.Error("idle emergency save persisted something")
	}
}

func TestStartStreamingIsIdempotentForSession(t *testing.T) {
	h := newTestHub(t)
	rep := h.connect(t)

	h.dispatch(t, rep, "start_streaming", map[string]any{"commercialId": "com-1"})
	first, _ := h.sessions.Get("com-1")
	h.dispatch(t, rep, "start_streaming", map[string]any{"commercialId": "com-1"})
	second, _ := h.sessions.Get("com-1")

	if first.ID != second.ID {
		t.Errorf("second start forked session %s -> %s", first.ID, second.ID)
	}
	if h.streams.Count() != 1 {
		t.Errorf("stream count = %d, want 1", h.streams.Count())
	}
}

func TestCommercialsStatus(t *testing.T) {
	h := newTestHub(t)
	rep := h.connect(t)
	boss := h.connect(t)

	h.dispatch(t, rep, "locationUpdate", models.LocationUpdate{
		CommercialID: "com-1",
		Position:     [2]float64{48.85, 2.35},
		Timestamp:    "2026-03-12T09:00:00Z",
	})
	h.dispatch(t, rep, "start_streaming", map[string]any{"commercialId": "com-1"})

	h.dispatch(t, boss, "request_commercials_status", map[string]any{
		"commercialIds": []string{"com-1", "com-2"},
	})

	envs := received(t, boss)
	var resp struct {
		Statuses []models.CommercialStatus `json:"statuses"`
	}
	for _, e := range envs {
		if e.Event == "commercials_status_response" {
			if err := json.Unmarshal(e.Data, &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
	}
	if len(resp.Statuses) != 2 {
		t.Fatalf("statuses = %+v, want 2 entries", resp.Statuses)
	}
	if !resp.Statuses[0].IsOnline || !resp.Statuses[0].IsTranscribing {
		t.Errorf("com-1 status = %+v, want online and transcribing", resp.Statuses[0])
	}
	if resp.Statuses[1].IsOnline || resp.Statuses[1].IsTranscribing {
		t.Errorf("com-2 status = %+v, want offline and idle", resp.Statuses[1])
	}
}

func TestStreamEventsStayInsideAudioRoom(t *testing.T) {
	h := newTestHub(t)
	rep := h.connect(t)
	member := h.observe(t)
	bystander := h.connect(t) // connected, but never joined a room

	h.dispatch(t, rep, "start_streaming", map[string]any{"commercialId": "com-1"})
	h.dispatch(t, rep, "transcription_update", map[string]any{
		"commercial_id": "com-1",
		"transcript":    "bonjour madame",
		"is_final":      true,
	})
	h.dispatch(t, rep, "stop_streaming", map[string]any{"commercialId": "com-1"})

	memberEvents := received(t, member)
	for _, name := range []string{"start_streaming", "transcription_update", "stop_streaming", "transcription_session_completed"} {
		if got := countEvent(memberEvents, name); got != 1 {
			t.Errorf("room member got %d %s events, want 1", got, name)
		}
	}
	if got := received(t, bystander); len(got) != 0 {
		t.Errorf("socket outside audio-streaming room got %v, want nothing", eventsOf(got))
	}
}

func TestRelayAttachesDoorContext(t *testing.T) {
	h := newTestHub(t)
	h.sttProvider = &mock.Provider{Script: []stt.Result{
		{Text: "bonjour madame je passe pour la fibre.", IsFinal: true},
	}}
	rep := h.connect(t)

	h.dispatch(t, rep, "transcription_start", map[string]any{"commercialId": "com-1"})
	h.dispatch(t, rep, "transcription_audio_chunk", map[string]any{
		"commercialId": "com-1",
		"doorId":       "door-12",
		"doorLabel":    "Porte 12",
		"chunk":        base64.StdEncoding.EncodeToString([]byte{0x01, 0x02}),
	})

	// The relay result travels through a goroutine before reaching the
	// session, so poll with a deadline.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sess, ok := h.sessions.Get("com-1")
		if ok && len(sess.VisitedDoors) > 0 {
			if sess.VisitedDoors[0] != "door-12" {
				t.Errorf("visited doors = %v, want [door-12]", sess.VisitedDoors)
			}
			if !strings.Contains(sess.FullTranscript, "bonjour madame") {
				t.Errorf("transcript = %q, want relay text merged", sess.FullTranscript)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("relay transcript never carried its door into the session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSignalRelayTargetsSocket(t *testing.T) {
	h := newTestHub(t)
	listener := h.connect(t)
	rep := h.connect(t)
	bystander := h.connect(t)

	h.dispatch(t, listener, "suivi:webrtc_offer", map[string]any{
		"to_socket_id": rep.ID,
		"sdp":          "v=0 o=- 46117 2",
		"type":         "offer",
	})

	envs := received(t, rep)
	if got := countEvent(envs, "suivi:webrtc_offer"); got != 1 {
		t.Fatalf("target got %d offers, want 1: %v", got, eventsOf(envs))
	}
	var offer struct {
		FromSocketID string `json:"from_socket_id"`
		SDP          string `json:"sdp"`
		Type         string `json:"type"`
	}
	if err := json.Unmarshal(envs[0].Data, &offer); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if offer.FromSocketID != listener.ID || offer.SDP != "v=0 o=- 46117 2" || offer.Type != "offer" {
		t.Errorf("offer = %+v, want sender id and sdp forwarded", offer)
	}
	if got := received(t, bystander); len(got) != 0 {
		t.Errorf("bystander got %v, want nothing", eventsOf(got))
	}
	if got := received(t, listener); len(got) != 0 {
		t.Errorf("sender got echo %v, want nothing", eventsOf(got))
	}

	h.dispatch(t, rep, "suivi:webrtc_answer", map[string]any{
		"to_socket_id": listener.ID,
		"sdp":          "v=0 o=- 46118 2",
		"type":         "answer",
	})
	if got := countEvent(received(t, listener), "suivi:webrtc_answer"); got != 1 {
		t.Errorf("listener got %d answers, want 1", got)
	}

	// End-of-candidates is a null candidate and must still be forwarded.
	h.dispatch(t, listener, "suivi:webrtc_ice_candidate", map[string]any{
		"to_socket_id": rep.ID,
		"candidate":    nil,
	})
	h.dispatch(t, listener, "suivi:leave", map[string]any{"to_socket_id": rep.ID})
	envs = received(t, rep)
	if got := countEvent(envs, "suivi:webrtc_ice_candidate"); got != 1 {
		t.Errorf("target got %d ice candidates, want 1", got)
	}
	if got := countEvent(envs, "suivi:leave"); got != 1 {
		t.Errorf("target got %d leave notices, want 1", got)
	}

	// A vanished target is dropped without an error frame.
	h.dispatch(t, listener, "suivi:leave", map[string]any{"to_socket_id": "gone"})
	if got := received(t, listener); len(got) != 0 {
		t.Errorf("sender got %v for vanished target, want nothing", eventsOf(got))
	}
}

func TestPing(t *testing.T) {
	h := newTestHub(t)
	c := h.connect(t)

	h.dispatch(t, c, "ping", map[string]any{})
	if got := countEvent(received(t, c), "pong"); got != 1 {
		t.Errorf("got %d pong, want 1", got)
	}
}
