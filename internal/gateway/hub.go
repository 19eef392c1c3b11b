// Package gateway implements the WebSocket dispatch layer: connection and
// room management, event routing, manager-scoped broadcast targeting and
// the disconnect lifecycle.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"sales-live-gateway/internal/events"
	"sales-live-gateway/internal/hierarchy"
	"sales-live-gateway/internal/history"
	"sales-live-gateway/internal/models"
	"sales-live-gateway/internal/observability/metrics"
	"sales-live-gateway/internal/presence"
	"sales-live-gateway/internal/session"
	"sales-live-gateway/internal/stream"
	"sales-live-gateway/internal/stt"
	"sales-live-gateway/internal/visibility"
)

// Room names clients may join.
const (
	RoomGPS   = "gps-tracking"
	RoomAudio = "audio-streaming"
)

// Config wires the hub's collaborators.
type Config struct {
	Sessions   *session.Store
	Streams    *stream.Registry
	Visibility *visibility.Filter
	History    *history.Service
	Presence   *presence.Tracker
	Directory  hierarchy.Directory
	Publisher  *events.Publisher

	// STT is optional; without it the server-side transcription relay
	// rejects audio events.
	STT         stt.Provider
	STTLanguage string

	// AllowedOrigins is passed through to the WebSocket accept handshake.
	AllowedOrigins []string

	Log zerolog.Logger
}

// Hub owns every connected socket and routes events between them and the
// in-memory registries.
type Hub struct {
	sessions   *session.Store
	streams    *stream.Registry
	visibility *visibility.Filter
	history    *history.Service
	presence   *presence.Tracker
	directory  hierarchy.Directory
	publisher  *events.Publisher

	sttProvider stt.Provider
	sttLanguage string

	allowedOrigins []string
	log            zerolog.Logger

	mu     sync.Mutex
	conns  map[string]*Conn            // socketID -> conn
	rooms  map[string]map[string]*Conn // room -> socketID -> conn
	owners map[string]string           // socketID -> streaming commercialID
	relays map[string]*relay           // commercialID -> live STT relay
}

// relay couples a live STT session with the door context last reported by
// the audio chunks feeding it. Provider results carry no door information,
// so transcripts inherit the door of the most recent chunk.
type relay struct {
	sess stt.Session

	mu        sync.Mutex
	doorID    string
	doorLabel string
}

func (r *relay) setDoor(id, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "" {
		r.doorID = id
	}
	if label != "" {
		r.doorLabel = label
	}
}

func (r *relay) door() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doorID, r.doorLabel
}

// New creates a hub and registers the enhancement-completed callback on the
// history service.
func New(cfg Config) *Hub {
	h := &Hub{
		sessions:       cfg.Sessions,
		streams:        cfg.Streams,
		visibility:     cfg.Visibility,
		history:        cfg.History,
		presence:       cfg.Presence,
		directory:      cfg.Directory,
		publisher:      cfg.Publisher,
		sttProvider:    cfg.STT,
		sttLanguage:    cfg.STTLanguage,
		allowedOrigins: cfg.AllowedOrigins,
		log:            cfg.Log.With().Str("component", "gateway").Logger(),
		conns:          make(map[string]*Conn),
		rooms: map[string]map[string]*Conn{
			RoomGPS:   {},
			RoomAudio: {},
		},
		owners: make(map[string]string),
		relays: make(map[string]*relay),
	}
	if h.history != nil {
		h.history.OnSessionUpdated(h.notifySessionUpdated)
	}
	return h
}

// ServeWS upgrades the request and runs the connection until it drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket accept failed")
		return
	}

	c := newConn(ws, h.log)
	h.addConn(c)
	defer h.disconnect(c)

	ctx := r.Context()
	go c.writeLoop(ctx)
	c.readLoop(ctx, h)
}

func (h *Hub) addConn(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	metrics.DefaultMetrics.RecordConnection()
	c.log.Info().Msg("client connected")
}

// disconnect runs the full teardown for a dropped socket. An active audio
// stream is flushed to persistence before its stop is broadcast; GPS
// presence gets the grace period instead.
func (h *Hub) disconnect(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.ID)
	for _, members := range h.rooms {
		delete(members, c.ID)
	}
	commercialID, wasStreaming := h.owners[c.ID]
	delete(h.owners, c.ID)
	h.mu.Unlock()

	if wasStreaming {
		h.emergencyFlush(context.Background(), commercialID)
		h.stopRelay(commercialID)
		h.streams.Stop(commercialID)
		h.broadcastToObservers(context.Background(), commercialID, "stop_streaming",
			map[string]string{"commercial_id": commercialID})
		metrics.DefaultMetrics.RecordStreamEnd(0)
	}

	for _, id := range h.presence.Disconnect(c.ID) {
		c.log.Debug().Str("commercialId", id).Msg("grace period started")
	}

	if managerID, ok := h.visibility.UnregisterSocket(c.ID); ok {
		c.log.Info().Str("managerId", managerID).Msg("manager connection dropped")
	}

	c.close()
	metrics.DefaultMetrics.RecordDisconnection()
	c.log.Info().Msg("client disconnected")
}

// emergencyFlush persists a snapshot of the commercial's active session
// without finalizing it, so a reconnect can resume where it left off.
func (h *Hub) emergencyFlush(ctx context.Context, commercialID string) {
	snap, ok := h.sessions.Snapshot(commercialID)
	if !ok {
		h.log.Warn().Str("commercialId", commercialID).Msg("no active session to flush")
		return
	}
	if _, err := h.history.Save(ctx, snap, true); err != nil {
		h.log.Error().Err(err).
			Str("commercialId", commercialID).
			Str("sessionId", snap.ID).
			Msg("emergency flush failed")
		return
	}
	h.log.Info().
		Str("commercialId", commercialID).
		Str("sessionId", snap.ID).
		Msg("emergency flush complete")
}

// NotifyOffline broadcasts a commercial's offline transition to the GPS
// room. It is the presence tracker's grace-expiry callback.
func (h *Hub) NotifyOffline(commercialID string) {
	h.broadcastRoom(RoomGPS, "commercialOffline",
		map[string]string{"commercialId": commercialID}, "")
}

func (h *Hub) notifySessionUpdated(sess models.TranscriptionSession) {
	h.broadcastToObservers(context.Background(), sess.CommercialID,
		"transcription_session_updated", sess)
}

func (h *Hub) joinRoom(c *Conn, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, already := members[c.ID]; already {
		h.mu.Unlock()
		return
	}
	members[c.ID] = c
	h.mu.Unlock()

	metrics.DefaultMetrics.RecordRoomJoin(room)
	c.log.Debug().Str("room", room).Msg("joined room")

	// New GPS observers get the current picture immediately.
	if room == RoomGPS {
		for _, update := range h.presence.Positions() {
			c.Send("locationUpdate", update)
		}
	}
}

func (h *Hub) leaveRoom(c *Conn, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if ok {
		if _, in := members[c.ID]; in {
			delete(members, c.ID)
			ok = true
		} else {
			ok = false
		}
	}
	h.mu.Unlock()

	if ok {
		metrics.DefaultMetrics.RecordRoomLeave(room)
		c.log.Debug().Str("room", room).Msg("left room")
	}
}

// broadcastRoom sends an event to every member of a room except the socket
// named by exceptID.
func (h *Hub) broadcastRoom(room, event string, payload any, exceptID string) {
	h.mu.Lock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for id, member := range h.rooms[room] {
		if id != exceptID {
			members = append(members, member)
		}
	}
	h.mu.Unlock()

	for _, member := range members {
		member.Send(event, payload)
	}
}

// broadcastToObservers sends an event about a commercial to every member of
// the audio-streaming room allowed to observe it. Manager sockets only see
// commercials in their roster; other members follow the default-allow
// policy. Managers that receive the event are recorded so later revocations
// stay accurate.
func (h *Hub) broadcastToObservers(ctx context.Context, commercialID, event string, payload any) {
	managerID := h.managerFor(ctx, commercialID)

	h.mu.Lock()
	members := make([]*Conn, 0, len(h.rooms[RoomAudio]))
	for _, c := range h.rooms[RoomAudio] {
		members = append(members, c)
	}
	h.mu.Unlock()

	for _, c := range members {
		if !h.visibility.CanObserve(c.ID, managerID) {
			continue
		}
		if mgr, isManager := h.visibility.ManagerForSocket(c.ID); isManager {
			h.visibility.MarkReported(mgr, commercialID)
		}
		c.Send(event, payload)
	}
}

// managerFor resolves and caches which manager a commercial belongs to. An
// unresolvable commercial gets an empty manager id, which only unrestricted
// observers match.
func (h *Hub) managerFor(ctx context.Context, commercialID string) string {
	if managerID, ok := h.visibility.AssignedManager(commercialID); ok {
		return managerID
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	managerID, err := h.directory.CommercialManagerID(lookupCtx, commercialID)
	if err != nil {
		h.log.Warn().Err(err).Str("commercialId", commercialID).Msg("manager lookup failed")
		return ""
	}
	h.visibility.Assign(commercialID, managerID)
	return managerID
}

// startRelay opens a provider stream for a commercial and pumps its results
// back through the normal transcription path.
func (h *Hub) startRelay(ctx context.Context, commercialID string, cfg stt.StreamConfig) error {
	h.mu.Lock()
	if _, exists := h.relays[commercialID]; exists {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	sess, err := h.sttProvider.StartStream(ctx, cfg)
	if err != nil {
		return err
	}

	r := &relay{sess: sess}
	h.mu.Lock()
	if _, exists := h.relays[commercialID]; exists {
		h.mu.Unlock()
		sess.Close()
		return nil
	}
	h.relays[commercialID] = r
	h.mu.Unlock()

	go func() {
		for result := range sess.Results() {
			doorID, doorLabel := r.door()
			update := models.TranscriptionUpdate{
				CommercialID: commercialID,
				Transcript:   result.Text,
				IsFinal:      result.IsFinal,
				Timestamp:    time.Now().UTC().Format(time.RFC3339),
				DoorID:       doorID,
				DoorLabel:    doorLabel,
			}
			h.applyTranscriptionUpdate(context.Background(), update)
		}
	}()
	return nil
}

func (h *Hub) relayFor(commercialID string) (*relay, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.relays[commercialID]
	return r, ok
}

func (h *Hub) stopRelay(commercialID string) {
	h.mu.Lock()
	r, ok := h.relays[commercialID]
	delete(h.relays, commercialID)
	h.mu.Unlock()

	if ok {
		if err := r.sess.Close(); err != nil {
			h.log.Warn().Err(err).Str("commercialId", commercialID).Msg("closing STT relay")
		}
	}
}

// Shutdown closes every connection and relay. Registries are left intact
// for the final flush.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	relays := make([]*relay, 0, len(h.relays))
	for _, r := range h.relays {
		relays = append(relays, r)
	}
	h.relays = make(map[string]*relay)
	h.mu.Unlock()

	for _, r := range relays {
		r.sess.Close()
	}
	for _, c := range conns {
		c.close()
	}
}
