// Package stream tracks which commercials are currently broadcasting audio.
// The registry is purely in-memory; stream state never survives the process.
package stream

import (
	"encoding/json"
	"sync"

	"sales-live-gateway/internal/models"
)

// Registry is the active-stream table, keyed by commercial id. Safe for
// concurrent use.
type Registry struct {
	mu      sync.Mutex
	streams map[string]models.ActiveStream
}

// New creates an empty stream registry.
func New() *Registry {
	return &Registry{streams: make(map[string]models.ActiveStream)}
}

// Start records that a commercial is broadcasting. Starting while already
// active replaces the entry (last writer wins, no stacking).
func (r *Registry) Start(commercialID string, info json.RawMessage, socketID string) models.ActiveStream {
	if len(info) == 0 {
		info = json.RawMessage(`{}`)
	}
	st := models.ActiveStream{
		CommercialID:   commercialID,
		CommercialInfo: info,
		SocketID:       socketID,
	}

	r.mu.Lock()
	r.streams[commercialID] = st
	r.mu.Unlock()
	return st
}

// Stop removes a commercial's stream entry. Idempotent.
func (r *Registry) Stop(commercialID string) {
	r.mu.Lock()
	delete(r.streams, commercialID)
	r.mu.Unlock()
}

// Get returns the active stream for commercialID, if any.
func (r *Registry) Get(commercialID string) (models.ActiveStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.streams[commercialID]
	return st, ok
}

// List returns all active streams.
func (r *Registry) List() []models.ActiveStream {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ActiveStream, 0, len(r.streams))
	for _, st := range r.streams {
		out = append(out, st)
	}
	return out
}

// Count returns the number of active streams.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
