// Package mock provides a scripted stt.Provider for tests and development
// deployments without provider credentials.
package mock

import (
	"context"
	"errors"
	"sync"

	"sales-live-gateway/internal/stt"
)

// Provider replays a fixed script of results, one per received audio chunk.
type Provider struct {
	// Script is cycled through as audio arrives. Empty means every chunk
	// is swallowed silently.
	Script []stt.Result
}

func (p *Provider) Name() string { return "mock" }

func (p *Provider) StartStream(_ context.Context, _ stt.StreamConfig) (stt.Session, error) {
	return &session{
		script:  append([]stt.Result(nil), p.Script...),
		results: make(chan stt.Result, 16),
	}, nil
}

type session struct {
	script  []stt.Result
	results chan stt.Result

	mu     sync.Mutex
	next   int
	closed bool
}

func (s *session) SendAudio(_ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("mock: session is closed")
	}
	if s.next >= len(s.script) {
		return nil
	}
	result := s.script[s.next]
	s.next++

	select {
	case s.results <- result:
	default:
		// Nobody is draining fast enough; a mock is allowed to drop.
	}
	return nil
}

func (s *session) Results() <-chan stt.Result { return s.results }

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.results)
	return nil
}
