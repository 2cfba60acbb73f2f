package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"coinbot/internal/economy"
)

type StoreConfig struct {
	Driver      string // file, sqlite or postgres
	Path        string
	DatabaseURL string
	MaxConns    int32
}

type EconomyConfig struct {
	Cooldown    time.Duration
	Reward      economy.Amount
	CatalogFile string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	OTLPInsecure bool
	ServiceName  string
}

type APIConfig struct {
	Addr       string
	APIKeyHash string
	Store      StoreConfig
	Economy    EconomyConfig
	Telemetry  TelemetryConfig
}

type BotConfig struct {
	Prefix            string
	Store             StoreConfig
	Economy           EconomyConfig
	Telemetry         TelemetryConfig
	WhatsAppEnabled   bool
	WhatsAppSession   string
	DiscordToken      string
	MetricsAddr       string
	ReactionClearWait time.Duration
}

type CLIConfig struct {
	APIBaseURL string
	APIKey     string
}

// LoadDotEnv reads a .env file when present. Real environment variables win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("COINBOT_API_ADDR", ":8080")
	}

	store, err := loadStore()
	if err != nil {
		return APIConfig{}, err
	}
	econ, err := loadEconomy()
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Addr:       addr,
		APIKeyHash: strings.TrimSpace(os.Getenv("COINBOT_API_KEY_HASH")),
		Store:      store,
		Economy:    econ,
		Telemetry:  loadTelemetry("coinbot-api"),
	}
	if cfg.APIKeyHash == "" {
		return cfg, fmt.Errorf("COINBOT_API_KEY_HASH is required")
	}
	return cfg, nil
}

func LoadBotFromEnv() (BotConfig, error) {
	store, err := loadStore()
	if err != nil {
		return BotConfig{}, err
	}
	econ, err := loadEconomy()
	if err != nil {
		return BotConfig{}, err
	}
	cfg := BotConfig{
		Prefix:            envDefault("COINBOT_PREFIX", "/"),
		Store:             store,
		Economy:           econ,
		Telemetry:         loadTelemetry("coinbot"),
		WhatsAppEnabled:   envBoolDefault("COINBOT_WHATSAPP_ENABLED", true),
		WhatsAppSession:   envDefault("COINBOT_WHATSAPP_SESSION", "file:data/whatsapp.db?_pragma=foreign_keys(1)"),
		DiscordToken:      strings.TrimSpace(os.Getenv("COINBOT_DISCORD_TOKEN")),
		MetricsAddr:       strings.TrimSpace(os.Getenv("COINBOT_METRICS_ADDR")),
		ReactionClearWait: envDurationDefault("COINBOT_REACTION_CLEAR_WAIT", 4*time.Second),
	}
	if !cfg.WhatsAppEnabled && cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("no transport enabled: set COINBOT_WHATSAPP_ENABLED=true or COINBOT_DISCORD_TOKEN")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("COIN_API_BASE_URL", "http://localhost:8080"), "/"),
		APIKey:     strings.TrimSpace(os.Getenv("COIN_API_KEY")),
	}
}

// LoadStoreFromEnv is used by tools that open the store directly.
func LoadStoreFromEnv() (StoreConfig, error) {
	return loadStore()
}

func loadStore() (StoreConfig, error) {
	cfg := StoreConfig{
		Driver:      strings.ToLower(envDefault("COINBOT_STORE", "file")),
		Path:        os.Getenv("COINBOT_STORE_PATH"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MaxConns:    int32(envIntDefault("COINBOT_DB_MAX_CONNS", 8)),
	}
	switch cfg.Driver {
	case "file":
		if cfg.Path == "" {
			cfg.Path = filepath.Join("data", "economia.json")
		}
	case "sqlite":
		if cfg.Path == "" {
			cfg.Path = filepath.Join("data", "economia.db")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return cfg, fmt.Errorf("unknown COINBOT_STORE %q (want file, sqlite or postgres)", cfg.Driver)
	}
	return cfg, nil
}

func loadEconomy() (EconomyConfig, error) {
	cfg := EconomyConfig{
		Cooldown:    envDurationDefault("COINBOT_EARN_COOLDOWN", economy.DefaultCooldown),
		Reward:      economy.DefaultReward,
		CatalogFile: strings.TrimSpace(os.Getenv("COINBOT_CATALOG_FILE")),
	}
	if v := strings.TrimSpace(os.Getenv("COINBOT_EARN_REWARD")); v != "" {
		reward, err := economy.ParseAmount(v)
		if err != nil {
			return cfg, fmt.Errorf("COINBOT_EARN_REWARD: %w", err)
		}
		cfg.Reward = reward
	}
	return cfg, nil
}

func loadTelemetry(service string) TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure: envBoolDefault("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:  envDefault("OTEL_SERVICE_NAME", service),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
