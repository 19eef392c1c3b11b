package config

import (
	"os"
	"testing"
	"time"
)

var allEnvVars = []string{
	"SERVICE_PRINCIPAL", "HTTP_PORT", "METRICS_ADDR", "WS_ALLOWED_ORIGINS",
	"BACKUP_INTERVAL", "OFFLINE_GRACE", "ALLOW_UNIDENTIFIED",
	"HISTORY_DRIVER", "POSTGRES_DSN", "REDIS_ADDR", "REDIS_TTL",
	"ENHANCE_ENABLED", "LLM_API_KEY", "LLM_MODEL", "LLM_BASE_URL",
	"STT_PROVIDER", "DEEPGRAM_API_KEY", "STT_LANGUAGE",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_TRANSCRIPT",
	"KAFKA_TOPIC_SESSION", "KAFKA_PRINCIPAL", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range allEnvVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Service.Principal != "svc-sales-live-gateway" {
		t.Errorf("expected default principal 'svc-sales-live-gateway', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics addr ':9090', got %s", cfg.Service.MetricsAddr)
	}

	if cfg.Realtime.BackupInterval != 30*time.Second {
		t.Errorf("expected default backup interval 30s, got %v", cfg.Realtime.BackupInterval)
	}
	if cfg.Realtime.OfflineGrace != 30*time.Second {
		t.Errorf("expected default offline grace 30s, got %v", cfg.Realtime.OfflineGrace)
	}
	if !cfg.Realtime.AllowUnidentified {
		t.Error("expected default allow unidentified true")
	}

	if cfg.History.Driver != "memory" {
		t.Errorf("expected default history driver 'memory', got %s", cfg.History.Driver)
	}
	if cfg.STT.Provider != "none" {
		t.Errorf("expected default STT provider 'none', got %s", cfg.STT.Provider)
	}
	if cfg.STT.Language != "fr" {
		t.Errorf("expected default STT language 'fr', got %s", cfg.STT.Language)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("HTTP_PORT", "9999")
	os.Setenv("BACKUP_INTERVAL", "10s")
	os.Setenv("OFFLINE_GRACE", "15s")
	os.Setenv("ALLOW_UNIDENTIFIED", "false")
	os.Setenv("HISTORY_DRIVER", "postgres")
	os.Setenv("POSTGRES_DSN", "postgres://localhost/sales")
	os.Setenv("STT_PROVIDER", "deepgram")
	os.Setenv("STT_LANGUAGE", "fr-CA")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	defer clearEnv(t)

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Realtime.BackupInterval != 10*time.Second {
		t.Errorf("expected backup interval 10s, got %v", cfg.Realtime.BackupInterval)
	}
	if cfg.Realtime.OfflineGrace != 15*time.Second {
		t.Errorf("expected offline grace 15s, got %v", cfg.Realtime.OfflineGrace)
	}
	if cfg.Realtime.AllowUnidentified {
		t.Error("expected allow unidentified false")
	}
	if cfg.History.Driver != "postgres" {
		t.Errorf("expected history driver 'postgres', got %s", cfg.History.Driver)
	}
	if cfg.History.PostgresDSN != "postgres://localhost/sales" {
		t.Errorf("unexpected DSN %s", cfg.History.PostgresDSN)
	}
	if cfg.STT.Provider != "deepgram" {
		t.Errorf("expected STT provider 'deepgram', got %s", cfg.STT.Provider)
	}
	if cfg.STT.Language != "fr-CA" {
		t.Errorf("expected STT language 'fr-CA', got %s", cfg.STT.Language)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "kafka-1:9092" || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("BACKUP_INTERVAL", "not-a-duration")
	os.Setenv("OFFLINE_GRACE", "-5s")
	os.Setenv("ALLOW_UNIDENTIFIED", "maybe")
	defer clearEnv(t)

	cfg := Load()

	if cfg.Realtime.BackupInterval != 30*time.Second {
		t.Errorf("expected fallback backup interval 30s, got %v", cfg.Realtime.BackupInterval)
	}
	if cfg.Realtime.OfflineGrace != 30*time.Second {
		t.Errorf("expected fallback offline grace 30s, got %v", cfg.Realtime.OfflineGrace)
	}
	if !cfg.Realtime.AllowUnidentified {
		t.Error("expected fallback allow unidentified true")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	defer clearEnv(t)

	cfg := Load()
	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"empty uses default", "", true, true},
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"garbage uses default", "banana", true, true},
	}

	const key = "TEST_BOOL_VAR"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, tt.envValue)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
