package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"sales-live-gateway/internal/models"
	"sales-live-gateway/internal/observability/metrics"
	"sales-live-gateway/internal/stt"
)

// handleEvent routes one decoded envelope. Payload validation failures are
// answered with an error event and never escalate.
func (h *Hub) handleEvent(ctx context.Context, c *Conn, env Envelope) {
	var err error
	switch env.Event {
	case "joinRoom":
		err = handle(c, env, func(p roomPayload) { h.joinRoom(c, p.Room) })
	case "leaveRoom":
		err = handle(c, env, func(p roomPayload) { h.leaveRoom(c, p.Room) })
	case "locationUpdate":
		err = h.handleLocationUpdate(c, env)
	case "locationError":
		err = h.handleLocationError(c, env)
	case "commercialOffline":
		err = handle(c, env, func(p commercialPayload) { h.handleCommercialOffline(c, p) })
	case "request_gps_state":
		h.handleGPSState(c)
	case "start_streaming":
		err = handle(c, env, func(p startStreamingPayload) { h.handleStartStreaming(ctx, c, p) })
	case "stop_streaming":
		err = handle(c, env, func(p commercialPayload) { h.handleStopStreaming(ctx, c, p.CommercialID) })
	case "transcription_update":
		err = h.handleTranscriptionUpdate(ctx, c, env)
	case "transcription_start":
		err = handle(c, env, func(p transcriptionStartPayload) { h.handleTranscriptionStart(ctx, c, p) })
	case "transcription_audio_chunk":
		err = handle(c, env, func(p audioChunkPayload) { h.handleAudioChunk(c, p) })
	case "transcription_stop":
		err = handle(c, env, func(p commercialPayload) { h.handleTranscriptionStop(ctx, c, p.CommercialID) })
	case "emergency_save_session":
		err = handle(c, env, func(p commercialPayload) { h.handleEmergencySave(ctx, c, p.CommercialID) })
	case "request_streaming_status":
		h.handleStreamingStatus(c)
	case "request_manager_streaming_status":
		err = handle(c, env, func(p managerStatusPayload) { h.handleManagerStreamingStatus(ctx, c, p.ManagerID) })
	case "suivi:webrtc_offer", "suivi:webrtc_answer", "suivi:webrtc_ice_candidate", "suivi:leave":
		err = handle(c, env, func(p signalPayload) { h.handleSignal(c, env.Event, p) })
	case "request_transcription_history":
		err = handle(c, env, func(p historyRequestPayload) { h.handleTranscriptionHistory(ctx, c, p) })
	case "request_commercials_status":
		err = handle(c, env, func(p commercialsStatusPayload) { h.handleCommercialsStatus(c, p) })
	case "ping":
		c.Send("pong", map[string]int64{"timestamp": time.Now().UnixMilli()})
	default:
		c.log.Warn().Str("event", env.Event).Msg("unknown event")
		c.SendError("unknown event: " + env.Event)
		metrics.DefaultMetrics.RecordEvent(env.Event, true)
		return
	}
	metrics.DefaultMetrics.RecordEvent(env.Event, err != nil)
}

type validator interface {
	validate() error
}

// handle decodes and validates a typed payload before running fn.
func handle[P validator](c *Conn, env Envelope, fn func(P)) error {
	var p P
	if err := json.Unmarshal(env.Data, &p); err != nil {
		c.log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload")
		c.SendError("malformed " + env.Event + " payload")
		return err
	}
	if err := p.validate(); err != nil {
		c.log.Warn().Err(err).Str("event", env.Event).Msg("invalid payload")
		c.SendError("invalid " + env.Event + " payload: " + err.Error())
		return err
	}
	fn(p)
	return nil
}

func (h *Hub) handleLocationUpdate(c *Conn, env Envelope) error {
	var update models.LocationUpdate
	if err := json.Unmarshal(env.Data, &update); err != nil {
		c.SendError("malformed locationUpdate payload")
		return err
	}
	if update.CommercialID == "" {
		c.SendError("invalid locationUpdate payload: commercialId is required")
		return errMissingCommercial
	}
	h.presence.Update(update, c.ID)
	h.broadcastRoom(RoomGPS, "locationUpdate", update, c.ID)
	return nil
}

func (h *Hub) handleLocationError(c *Conn, env Envelope) error {
	var locErr models.LocationError
	if err := json.Unmarshal(env.Data, &locErr); err != nil {
		c.SendError("malformed locationError payload")
		return err
	}
	if locErr.CommercialID == "" {
		c.SendError("invalid locationError payload: commercialId is required")
		return errMissingCommercial
	}
	h.presence.Touch(locErr.CommercialID)
	h.broadcastRoom(RoomGPS, "locationError", locErr, c.ID)
	return nil
}

func (h *Hub) handleCommercialOffline(c *Conn, p commercialPayload) {
	if h.presence.MarkOffline(p.CommercialID) {
		h.broadcastRoom(RoomGPS, "commercialOffline",
			map[string]string{"commercialId": p.CommercialID}, c.ID)
	}
}

func (h *Hub) handleGPSState(c *Conn) {
	for _, update := range h.presence.Positions() {
		c.Send("locationUpdate", update)
	}
}

func (h *Hub) handleStartStreaming(ctx context.Context, c *Conn, p startStreamingPayload) {
	name := h.commercialName(ctx, p.CommercialID)
	sess := h.sessions.StartOrResume(p.CommercialID, name, p.BuildingID, p.BuildingName)
	h.streams.Start(p.CommercialID, p.CommercialInfo, c.ID)

	h.mu.Lock()
	h.owners[c.ID] = p.CommercialID
	h.mu.Unlock()

	metrics.DefaultMetrics.RecordStreamStart()
	metrics.DefaultMetrics.SessionsActive.Set(float64(h.sessions.ActiveCount()))
	c.log.Info().
		Str("commercialId", p.CommercialID).
		Str("sessionId", sess.ID).
		Msg("streaming started")

	h.broadcastToObservers(ctx, p.CommercialID, "start_streaming", models.ActiveStream{
		CommercialID:   p.CommercialID,
		CommercialInfo: p.CommercialInfo,
		SocketID:       c.ID,
	})
}

func (h *Hub) handleStopStreaming(ctx context.Context, c *Conn, commercialID string) {
	entry, hadStream := h.streams.Get(commercialID)
	h.streams.Stop(commercialID)
	h.stopRelay(commercialID)

	h.mu.Lock()
	if hadStream {
		delete(h.owners, entry.SocketID)
	}
	delete(h.owners, c.ID)
	h.mu.Unlock()

	sess, hadSession := h.sessions.Finalize(commercialID)
	if hadSession {
		metrics.DefaultMetrics.RecordStreamEnd(float64(sess.DurationSeconds))
		metrics.DefaultMetrics.SessionsActive.Set(float64(h.sessions.ActiveCount()))
		// Persist first so the completed broadcast never precedes the
		// write attempt. Enhancement runs in the background and must
		// not hold up the room.
		if _, err := h.history.Save(ctx, sess, false); err != nil {
			h.log.Error().Err(err).Str("sessionId", sess.ID).Msg("finalize persist failed")
		}
	} else if hadStream {
		metrics.DefaultMetrics.RecordStreamEnd(0)
	}

	h.broadcastToObservers(ctx, commercialID, "stop_streaming",
		map[string]string{"commercial_id": commercialID})

	if hadSession {
		h.broadcastToObservers(ctx, commercialID, "transcription_session_completed", sess)
		if err := h.publisher.PublishSessionCompleted(ctx, commercialID, models.SessionCompletedEvent{
			EventType: "session_completed",
			Session:   sess,
			Timestamp: time.Now().UnixMilli(),
		}); err != nil {
			h.log.Warn().Err(err).Str("sessionId", sess.ID).Msg("session export failed")
		}
	} else if !hadStream {
		c.log.Warn().Str("commercialId", commercialID).Msg("stop for idle commercial")
	}
}

func (h *Hub) handleTranscriptionUpdate(ctx context.Context, c *Conn, env Envelope) error {
	var update models.TranscriptionUpdate
	if err := json.Unmarshal(env.Data, &update); err != nil {
		c.SendError("malformed transcription_update payload")
		return err
	}
	if update.CommercialID == "" || update.Transcript == "" {
		c.SendError("invalid transcription_update payload")
		return errMissingCommercial
	}
	h.applyTranscriptionUpdate(ctx, update)
	return nil
}

// applyTranscriptionUpdate is shared between client-sent fragments and the
// server-side STT relay. Final fragments are merged into the session and
// exported; every fragment is rebroadcast.
func (h *Hub) applyTranscriptionUpdate(ctx context.Context, update models.TranscriptionUpdate) {
	metrics.DefaultMetrics.RecordTranscript(update.IsFinal)

	if update.IsFinal {
		sess, ok := h.sessions.AppendTranscript(
			update.CommercialID, update.Transcript, update.IsFinal,
			update.DoorID, update.DoorLabel)
		if !ok {
			h.log.Warn().
				Str("commercialId", update.CommercialID).
				Msg("transcript for commercial without active session")
		} else {
			if err := h.publisher.PublishTranscript(ctx, update.CommercialID, models.TranscriptEvent{
				EventType:    "transcript_final",
				CommercialID: update.CommercialID,
				SessionID:    sess.ID,
				Text:         update.Transcript,
				IsFinal:      true,
				DoorID:       update.DoorID,
				DoorLabel:    update.DoorLabel,
				Timestamp:    time.Now().UnixMilli(),
			}); err != nil {
				h.log.Warn().Err(err).Str("commercialId", update.CommercialID).Msg("transcript export failed")
			}
		}
	}

	h.broadcastToObservers(ctx, update.CommercialID, "transcription_update", update)
}

func (h *Hub) handleTranscriptionStart(ctx context.Context, c *Conn, p transcriptionStartPayload) {
	name := h.commercialName(ctx, p.CommercialID)
	sess := h.sessions.StartOrResume(p.CommercialID, name, p.BuildingID, p.BuildingName)
	metrics.DefaultMetrics.SessionsActive.Set(float64(h.sessions.ActiveCount()))

	if h.sttProvider == nil {
		c.log.Info().Str("sessionId", sess.ID).Msg("transcription session started without relay")
		return
	}

	cfg := stt.StreamConfig{
		Language:   p.Language,
		SampleRate: p.SampleRate,
	}
	if cfg.Language == "" {
		cfg.Language = h.sttLanguage
	}
	if err := h.startRelay(ctx, p.CommercialID, cfg); err != nil {
		c.log.Error().Err(err).Str("commercialId", p.CommercialID).Msg("STT relay start failed")
		c.Send("transcription_error", map[string]string{
			"commercial_id": p.CommercialID,
			"message":       "transcription service unavailable",
		})
	}
}

func (h *Hub) handleAudioChunk(c *Conn, p audioChunkPayload) {
	r, ok := h.relayFor(p.CommercialID)
	if !ok {
		c.Send("transcription_error", map[string]string{
			"commercial_id": p.CommercialID,
			"message":       "no transcription session",
		})
		return
	}
	r.setDoor(p.DoorID, p.DoorLabel)
	chunk, err := base64.StdEncoding.DecodeString(p.Chunk)
	if err != nil {
		c.SendError("invalid transcription_audio_chunk payload: bad base64")
		return
	}
	if err := r.sess.SendAudio(chunk); err != nil {
		c.log.Warn().Err(err).Str("commercialId", p.CommercialID).Msg("relay audio failed")
	}
}

// handleSignal forwards a listen-only signaling frame to the socket it is
// addressed to, stamped with the sender's socket id. A vanished target is
// dropped silently so tearing-down listeners never surface errors.
func (h *Hub) handleSignal(c *Conn, event string, p signalPayload) {
	h.mu.Lock()
	target, ok := h.conns[p.ToSocketID]
	h.mu.Unlock()
	if !ok {
		c.log.Debug().Str("event", event).Str("toSocketId", p.ToSocketID).Msg("signal target gone")
		return
	}

	out := map[string]any{"from_socket_id": c.ID}
	switch event {
	case "suivi:webrtc_offer", "suivi:webrtc_answer":
		out["sdp"] = p.SDP
		out["type"] = p.Type
	case "suivi:webrtc_ice_candidate":
		// A null candidate marks end-of-candidates and is forwarded as-is.
		out["candidate"] = p.Candidate
	}
	target.Send(event, out)
}

func (h *Hub) handleTranscriptionStop(ctx context.Context, c *Conn, commercialID string) {
	h.stopRelay(commercialID)

	sess, ok := h.sessions.Finalize(commercialID)
	if !ok {
		c.log.Warn().Str("commercialId", commercialID).Msg("transcription stop for idle commercial")
		return
	}
	metrics.DefaultMetrics.SessionsActive.Set(float64(h.sessions.ActiveCount()))

	if _, err := h.history.Save(ctx, sess, false); err != nil {
		h.log.Error().Err(err).Str("sessionId", sess.ID).Msg("finalize persist failed")
	}
	h.broadcastToObservers(ctx, commercialID, "transcription_session_completed", sess)
	if err := h.publisher.PublishSessionCompleted(ctx, commercialID, models.SessionCompletedEvent{
		EventType: "session_completed",
		Session:   sess,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		h.log.Warn().Err(err).Str("sessionId", sess.ID).Msg("session export failed")
	}
}

func (h *Hub) handleEmergencySave(ctx context.Context, c *Conn, commercialID string) {
	snap, ok := h.sessions.Snapshot(commercialID)
	if !ok {
		c.log.Warn().Str("commercialId", commercialID).Msg("emergency save for idle commercial")
		c.Send("emergency_save_response", map[string]any{"success": false})
		return
	}
	result, err := h.history.Save(ctx, snap, true)
	if err != nil {
		h.log.Error().Err(err).Str("sessionId", snap.ID).Msg("emergency save failed")
	}
	c.Send("emergency_save_response", result)
}

func (h *Hub) handleStreamingStatus(c *Conn) {
	c.Send("streaming_status_response", map[string]any{
		"streams": h.streams.List(),
	})
}

func (h *Hub) handleManagerStreamingStatus(ctx context.Context, c *Conn, managerID string) {
	h.visibility.RegisterManager(managerID, c.ID)

	all := h.streams.List()
	filtered, err := h.visibility.FilterForManager(ctx, managerID, all)
	if err != nil {
		h.log.Error().Err(err).Str("managerId", managerID).Msg("roster lookup failed")
		c.SendError("streaming status unavailable")
		return
	}
	c.Send("streaming_status_response", map[string]any{
		"manager_id": managerID,
		"streams":    filtered,
	})

	if revoked := h.visibility.Reconcile(ctx, managerID, all); len(revoked) > 0 {
		c.Send("manager_streams_removed", map[string]any{
			"commercial_ids": revoked,
		})
	}
}

func (h *Hub) handleTranscriptionHistory(ctx context.Context, c *Conn, p historyRequestPayload) {
	sessions, err := h.history.History(ctx, p.CommercialID, p.Limit)
	if err != nil {
		h.log.Error().Err(err).Str("commercialId", p.CommercialID).Msg("history lookup failed")
		c.SendError("transcription history unavailable")
		return
	}
	c.Send("transcription_history_response", map[string]any{
		"commercial_id": p.CommercialID,
		"sessions":      sessions,
	})
}

func (h *Hub) handleCommercialsStatus(c *Conn, p commercialsStatusPayload) {
	statuses := make([]models.CommercialStatus, 0, len(p.CommercialIDs))
	for _, id := range p.CommercialIDs {
		status := models.CommercialStatus{
			CommercialID: id,
			IsOnline:     h.presence.Online(id),
		}
		if sess, ok := h.sessions.Get(id); ok {
			status.IsTranscribing = true
			status.CurrentSession = sess.ID
		}
		statuses = append(statuses, status)
	}
	c.Send("commercials_status_response", map[string]any{
		"statuses": statuses,
	})
}

func (h *Hub) commercialName(ctx context.Context, commercialID string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	name, err := h.directory.CommercialName(lookupCtx, commercialID)
	if err != nil {
		h.log.Debug().Err(err).Str("commercialId", commercialID).Msg("name lookup failed")
		return ""
	}
	return name
}
