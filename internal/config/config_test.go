package config

import (
	"path/filepath"
	"testing"
	"time"

	"coinbot/internal/economy"
)

var envKeys = []string{
	"PORT", "COINBOT_API_ADDR", "COINBOT_API_KEY_HASH",
	"COINBOT_STORE", "COINBOT_STORE_PATH", "DATABASE_URL", "COINBOT_DB_MAX_CONNS",
	"COINBOT_EARN_COOLDOWN", "COINBOT_EARN_REWARD", "COINBOT_CATALOG_FILE",
	"COINBOT_PREFIX", "COINBOT_WHATSAPP_ENABLED", "COINBOT_WHATSAPP_SESSION",
	"COINBOT_DISCORD_TOKEN", "COINBOT_METRICS_ADDR", "COINBOT_REACTION_CLEAR_WAIT",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME",
	"COIN_API_BASE_URL", "COIN_API_KEY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadBotDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadBotFromEnv()
	if err != nil {
		t.Fatalf("LoadBotFromEnv: %v", err)
	}
	if cfg.Prefix != "/" {
		t.Fatalf("prefix got=%q want=/", cfg.Prefix)
	}
	if cfg.Store.Driver != "file" || cfg.Store.Path != filepath.Join("data", "economia.json") {
		t.Fatalf("store got=%+v", cfg.Store)
	}
	if cfg.Economy.Cooldown != economy.DefaultCooldown || cfg.Economy.Reward != economy.DefaultReward {
		t.Fatalf("economy got=%+v", cfg.Economy)
	}
	if !cfg.WhatsAppEnabled || cfg.ReactionClearWait != 4*time.Second {
		t.Fatalf("transport defaults got=%+v", cfg)
	}
	if cfg.Telemetry.ServiceName != "coinbot" || cfg.Telemetry.OTLPEndpoint != "" {
		t.Fatalf("telemetry got=%+v", cfg.Telemetry)
	}
}

func TestLoadBotOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("COINBOT_PREFIX", "!")
	t.Setenv("COINBOT_STORE", "SQLite")
	t.Setenv("COINBOT_EARN_COOLDOWN", "90s")
	t.Setenv("COINBOT_EARN_REWARD", "10,50")
	t.Setenv("COINBOT_WHATSAPP_ENABLED", "false")
	t.Setenv("COINBOT_DISCORD_TOKEN", "token")
	t.Setenv("COINBOT_REACTION_CLEAR_WAIT", "not-a-duration")

	cfg, err := LoadBotFromEnv()
	if err != nil {
		t.Fatalf("LoadBotFromEnv: %v", err)
	}
	if cfg.Prefix != "!" || cfg.Store.Driver != "sqlite" || cfg.Store.Path != filepath.Join("data", "economia.db") {
		t.Fatalf("got=%+v", cfg)
	}
	if cfg.Economy.Cooldown != 90*time.Second || cfg.Economy.Reward != 1050 {
		t.Fatalf("economy got=%+v", cfg.Economy)
	}
	if cfg.WhatsAppEnabled || cfg.DiscordToken != "token" {
		t.Fatalf("transport got=%+v", cfg)
	}
	if cfg.ReactionClearWait != 4*time.Second {
		t.Fatalf("bad duration should fall back, got=%s", cfg.ReactionClearWait)
	}
}

func TestLoadBotErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "no transport", env: map[string]string{"COINBOT_WHATSAPP_ENABLED": "false"}},
		{name: "unknown store", env: map[string]string{"COINBOT_STORE": "redis"}},
		{name: "postgres without url", env: map[string]string{"COINBOT_STORE": "postgres"}},
		{name: "bad reward", env: map[string]string{"COINBOT_EARN_REWARD": "-3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadBotFromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadAPI(t *testing.T) {
	clearEnv(t)
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected error without key hash")
	}

	t.Setenv("COINBOT_API_KEY_HASH", "$2a$10$hash")
	t.Setenv("PORT", "9000")
	t.Setenv("COINBOT_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/coinbot")
	t.Setenv("COINBOT_DB_MAX_CONNS", "3")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("LoadAPIFromEnv: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Store.MaxConns != 3 || cfg.Telemetry.ServiceName != "coinbot-api" {
		t.Fatalf("got=%+v", cfg)
	}
}

func TestLoadCLI(t *testing.T) {
	clearEnv(t)
	t.Setenv("COIN_API_BASE_URL", "https://coin.example.com/")
	t.Setenv("COIN_API_KEY", " coin_abc ")

	cfg := LoadCLIFromEnv()
	if cfg.APIBaseURL != "https://coin.example.com" || cfg.APIKey != "coin_abc" {
		t.Fatalf("got=%+v", cfg)
	}
}
