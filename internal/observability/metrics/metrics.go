// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sales_live_gateway"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Connection metrics
	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	RoomMembers       *prometheus.GaugeVec
	MessagesDropped   *prometheus.CounterVec

	// Event dispatch metrics
	EventsReceived *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec

	// Stream metrics
	StreamsStarted prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamDuration prometheus.Histogram

	// GPS presence metrics
	LocationUpdates prometheus.Counter
	OfflineExpiries prometheus.Counter

	// Transcription metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	SessionsActive     prometheus.Gauge

	// Persistence metrics
	SessionSaves       *prometheus.CounterVec
	Enhancements       *prometheus.CounterVec
	BackupRuns         prometheus.Counter
	BackupDuration     prometheus.Histogram
	BackupSessionsSeen prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT relay metrics
	AudioBytesRelayed prometheus.Counter
	STTErrors         *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of WebSocket connections accepted",
		}),
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently connected WebSocket clients",
		}),
		RoomMembers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_members",
			Help:      "Number of sockets joined to each room",
		}, []string{"room"}),
		MessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of outbound messages dropped",
		}, []string{"reason"}),

		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of inbound events by name",
		}, []string{"event"}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Total number of inbound events rejected by validation",
		}, []string{"event"}),

		StreamsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_started_total",
			Help:      "Total number of audio streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active audio streams",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of audio streams in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		LocationUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_updates_total",
			Help:      "Total number of GPS location updates received",
		}),
		OfflineExpiries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_expiries_total",
			Help:      "Total number of commercials marked offline after the grace period",
		}),

		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcript fragments received",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcript fragments received",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open transcription sessions",
		}),

		SessionSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_saves_total",
			Help:      "Total number of session persistence attempts",
		}, []string{"outcome"}),
		Enhancements: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhancements_total",
			Help:      "Total number of transcript enhancement attempts",
		}, []string{"outcome"}),
		BackupRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_runs_total",
			Help:      "Total number of periodic backup passes",
		}),
		BackupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of a periodic backup pass in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		BackupSessionsSeen: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_sessions",
			Help:      "Number of sessions flushed per backup pass",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		AudioBytesRelayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_relayed_total",
			Help:      "Total audio bytes relayed to the STT provider",
		}),
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT relay errors",
		}, []string{"provider", "error_type"}),
	}
}

// RecordConnection records a client connecting.
func (m *Metrics) RecordConnection() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordDisconnection records a client disconnecting.
func (m *Metrics) RecordDisconnection() {
	m.ConnectionsActive.Dec()
}

// RecordRoomJoin records a socket joining a room.
func (m *Metrics) RecordRoomJoin(room string) {
	m.RoomMembers.WithLabelValues(room).Inc()
}

// RecordRoomLeave records a socket leaving a room.
func (m *Metrics) RecordRoomLeave(room string) {
	m.RoomMembers.WithLabelValues(room).Dec()
}

// RecordMessageDropped records an outbound message dropped.
func (m *Metrics) RecordMessageDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordEvent records an inbound event, flagging it when rejected.
func (m *Metrics) RecordEvent(event string, rejected bool) {
	m.EventsReceived.WithLabelValues(event).Inc()
	if rejected {
		m.EventsRejected.WithLabelValues(event).Inc()
	}
}

// RecordStreamStart records an audio stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsStarted.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records an audio stream ending.
func (m *Metrics) RecordStreamEnd(durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordLocationUpdate records a GPS position update.
func (m *Metrics) RecordLocationUpdate() {
	m.LocationUpdates.Inc()
}

// RecordOfflineExpiry records a grace period elapsing.
func (m *Metrics) RecordOfflineExpiry() {
	m.OfflineExpiries.Inc()
}

// RecordTranscript records a transcript fragment received.
func (m *Metrics) RecordTranscript(isFinal bool) {
	if isFinal {
		m.TranscriptsFinal.Inc()
	} else {
		m.TranscriptsPartial.Inc()
	}
}

// RecordSessionSave records a session persistence attempt.
func (m *Metrics) RecordSessionSave(success bool) {
	m.SessionSaves.WithLabelValues(outcome(success)).Inc()
}

// RecordEnhancement records a transcript enhancement attempt.
func (m *Metrics) RecordEnhancement(success bool) {
	m.Enhancements.WithLabelValues(outcome(success)).Inc()
}

// RecordBackupRun records a periodic backup pass.
func (m *Metrics) RecordBackupRun(sessions int, durationSeconds float64) {
	m.BackupRuns.Inc()
	m.BackupSessionsSeen.Observe(float64(sessions))
	m.BackupDuration.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordAudioRelayed records audio bytes forwarded to the STT provider.
func (m *Metrics) RecordAudioRelayed(bytes int) {
	m.AudioBytesRelayed.Add(float64(bytes))
}

// RecordSTTError records an STT relay error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
