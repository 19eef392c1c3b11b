package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sales-live-gateway/internal/observability/metrics"
)

const outboundBuffer = 64

// Conn is one connected WebSocket client. Outbound messages go through a
// buffered channel drained by a single writer goroutine; a client that
// cannot keep up has messages dropped rather than stalling the hub.
type Conn struct {
	ID  string
	ws  *websocket.Conn
	log zerolog.Logger

	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, log zerolog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		ID:     id,
		ws:     ws,
		log:    log.With().Str("socketId", id).Logger(),
		out:    make(chan []byte, outboundBuffer),
		closed: make(chan struct{}),
	}
}

// Send queues an event for delivery. It never blocks; a full buffer drops
// the message and counts it.
func (c *Conn) Send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("marshal outbound payload")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("marshal outbound envelope")
		return
	}

	select {
	case <-c.closed:
	case c.out <- frame:
	default:
		metrics.DefaultMetrics.RecordMessageDropped("slow_consumer")
		c.log.Warn().Str("event", event).Msg("outbound buffer full, dropping message")
	}
}

// SendError reports a handler-level failure back to the client.
func (c *Conn) SendError(message string) {
	c.Send("error", map[string]string{"message": message})
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			c.ws.Close(websocket.StatusNormalClosure, "closing")
		}
	})
}

// writeLoop drains the outbound channel onto the socket.
func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		case frame := <-c.out:
			if err := c.ws.Write(ctx, websocket.MessageText, frame); err != nil {
				c.log.Debug().Err(err).Msg("write failed, closing connection")
				c.close()
				return
			}
		}
	}
}

// readLoop decodes inbound envelopes and hands them to the hub until the
// socket errors out.
func (c *Conn) readLoop(ctx context.Context, h *Hub) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			metrics.DefaultMetrics.RecordEvent("malformed", true)
			c.log.Warn().Err(err).Msg("malformed envelope")
			c.SendError("malformed envelope")
			continue
		}
		h.handleEvent(ctx, c, env)
	}
}
