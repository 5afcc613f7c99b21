package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"
)

// DefaultProgramID is the Phoenix v1 program on mainnet-beta.
const DefaultProgramID = "PhoeNiXZ8ByJGLkxNfZRnkUfjvmuYqLR89jjFHGqdXY"

type Config struct {
	Solana  SolanaConfig
	Market  MarketConfig
	Poller  PollerConfig
	Sink    SinkConfig
	Alert   AlertConfig
	Tracing TracingConfig
	Server  ServerConfig
	Log     LogConfig
}

type SolanaConfig struct {
	RPCURL         string
	RateLimitRPS   float64
	RateLimitBurst int
}

type MarketConfig struct {
	ProgramID string
	Addresses []string
}

type PollerConfig struct {
	IntervalMs    int
	QueueCapacity int
}

type SinkConfig struct {
	RedisEnabled bool
	RedisURL     string
	RedisStream  string
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type ServerConfig struct {
	HealthPort int
}

type LogConfig struct {
	Level string
}

// fileConfig is the optional YAML overlay pointed at by POLLER_CONFIG_FILE.
// It exists mainly so market lists do not have to be squeezed into a single
// environment variable.
type fileConfig struct {
	ProgramID      string   `yaml:"program_id"`
	Markets        []string `yaml:"markets"`
	PollIntervalMs int      `yaml:"poll_interval_ms"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Solana: SolanaConfig{
			RPCURL:         getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			RateLimitRPS:   getEnvFloat("RPC_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvInt("RPC_RATE_LIMIT_BURST", 20),
		},
		Market: MarketConfig{
			ProgramID: getEnv("PHOENIX_PROGRAM_ID", DefaultProgramID),
		},
		Poller: PollerConfig{
			IntervalMs:    getEnvInt("POLL_INTERVAL_MS", 1000),
			QueueCapacity: getEnvInt("QUEUE_CAPACITY", 1024),
		},
		Sink: SinkConfig{
			RedisEnabled: getEnvBool("SINK_REDIS_ENABLED", false),
			RedisURL:     getEnv("SINK_REDIS_URL", "redis://localhost:6379"),
			RedisStream:  getEnv("SINK_REDIS_STREAM", "phoenix:events"),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:        time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 300)) * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_ENDPOINT", ""),
			Insecure:    getEnvBool("TRACING_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1.0),
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8080),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if markets := getEnv("WATCHED_MARKETS", ""); markets != "" {
		for _, addr := range strings.Split(markets, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				cfg.Market.Addresses = append(cfg.Market.Addresses, addr)
			}
		}
	}

	if path := getEnv("POLLER_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	// A missing or non-positive interval falls back to the 1000ms default.
	if cfg.Poller.IntervalMs <= 0 {
		cfg.Poller.IntervalMs = 1000
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ProgramID != "" {
		c.Market.ProgramID = fc.ProgramID
	}
	if len(fc.Markets) > 0 {
		c.Market.Addresses = append(c.Market.Addresses, fc.Markets...)
	}
	if fc.PollIntervalMs > 0 {
		c.Poller.IntervalMs = fc.PollIntervalMs
	}
	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalMs) * time.Millisecond
}

func (c *Config) validate() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("SOLANA_RPC_URL is required")
	}
	if len(c.Market.Addresses) == 0 {
		return fmt.Errorf("at least one watched market is required (WATCHED_MARKETS or config file)")
	}
	if err := validateAddress(c.Market.ProgramID); err != nil {
		return fmt.Errorf("invalid program id %q: %w", c.Market.ProgramID, err)
	}
	for _, addr := range c.Market.Addresses {
		if err := validateAddress(addr); err != nil {
			return fmt.Errorf("invalid market address %q: %w", addr, err)
		}
	}
	if c.Sink.RedisEnabled && c.Sink.RedisURL == "" {
		return fmt.Errorf("SINK_REDIS_URL is required when the redis sink is enabled")
	}
	return nil
}

// validateAddress checks that an address is a base58-encoded 32-byte key.
func validateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("not base58: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("decoded to %d bytes, want 32", len(raw))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
