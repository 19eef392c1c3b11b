package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration, loaded from environment variables.
type Config struct {
	Service       ServiceConfig
	Realtime      RealtimeConfig
	History       HistoryConfig
	Enhance       EnhanceConfig
	STT           STTConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the process and its listeners.
type ServiceConfig struct {
	Principal      string
	HTTPPort       string
	MetricsAddr    string
	AllowedOrigins []string
}

// RealtimeConfig tunes the gateway's timing behavior.
type RealtimeConfig struct {
	BackupInterval    time.Duration
	OfflineGrace      time.Duration
	AllowUnidentified bool
}

// HistoryConfig selects the session persistence driver.
type HistoryConfig struct {
	Driver      string // postgres, redis, memory
	PostgresDSN string
	RedisAddr   string
	RedisTTL    time.Duration
}

// EnhanceConfig configures the post-hoc transcript enhancement.
type EnhanceConfig struct {
	Enabled bool
	APIKey  string
	Model   string
	BaseURL string
}

// STTConfig configures the server-side transcription relay.
type STTConfig struct {
	Provider string // deepgram, mock, none
	APIKey   string
	Language string
}

// KafkaConfig configures the analytics event export.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicSession    string
	Principal       string
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel string
}

// Load reads the configuration from the environment, falling back to
// defaults suitable for local development.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-sales-live-gateway")

	return &Config{
		Service: ServiceConfig{
			Principal:      principal,
			HTTPPort:       envOrDefault("HTTP_PORT", "8080"),
			MetricsAddr:    envOrDefault("METRICS_ADDR", ":9090"),
			AllowedOrigins: envOrDefaultList("WS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Realtime: RealtimeConfig{
			BackupInterval:    envOrDefaultDuration("BACKUP_INTERVAL", 30*time.Second),
			OfflineGrace:      envOrDefaultDuration("OFFLINE_GRACE", 30*time.Second),
			AllowUnidentified: envOrDefaultBool("ALLOW_UNIDENTIFIED", true),
		},
		History: HistoryConfig{
			Driver:      envOrDefault("HISTORY_DRIVER", "memory"),
			PostgresDSN: envOrDefault("POSTGRES_DSN", ""),
			RedisAddr:   envOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisTTL:    envOrDefaultDuration("REDIS_TTL", 7*24*time.Hour),
		},
		Enhance: EnhanceConfig{
			Enabled: envOrDefaultBool("ENHANCE_ENABLED", false),
			APIKey:  envOrDefault("LLM_API_KEY", ""),
			Model:   envOrDefault("LLM_MODEL", "gpt-4o-mini"),
			BaseURL: envOrDefault("LLM_BASE_URL", ""),
		},
		STT: STTConfig{
			Provider: envOrDefault("STT_PROVIDER", "none"),
			APIKey:   envOrDefault("DEEPGRAM_API_KEY", ""),
			Language: envOrDefault("STT_LANGUAGE", "fr"),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "sales.transcripts"),
			TopicSession:    envOrDefault("KAFKA_TOPIC_SESSION", "sales.sessions"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel: envOrDefault("LOG_LEVEL", "info"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
