// Package stt defines the streaming speech-to-text provider interface used
// by the transcription relay.
package stt

import "context"

// Result is one recognition hypothesis from the provider. Partial results
// replace each other; final results are stable.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// StreamConfig configures a single recognition stream.
type StreamConfig struct {
	Language   string
	SampleRate int
	Diarize    bool
}

// Provider opens live recognition streams.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// StartStream opens a recognition stream. The returned session owns
	// the provider connection until Close.
	StartStream(ctx context.Context, cfg StreamConfig) (Session, error)
}

// Session is one live recognition stream. SendAudio may block briefly under
// backpressure; Results is closed when the provider ends the stream.
type Session interface {
	SendAudio(chunk []byte) error
	Results() <-chan Result
	Close() error
}
