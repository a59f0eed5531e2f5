// Package config loads service settings from a YAML file or the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rawblock/ring-engine/internal/heuristics"
)

// Config holds all configuration for the ring engine service
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Database  DatabaseConfig    `yaml:"database"`
	Redis     RedisConfig       `yaml:"redis"`
	Detection heuristics.Config `yaml:"detection"`
	Alerts    AlertsConfig      `yaml:"alerts"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AuthToken      string        `yaml:"auth_token"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RateLimit      int           `yaml:"rate_limit_per_min"`
	RateBurst      int           `yaml:"rate_burst"`
	AnalyzeTimeout time.Duration `yaml:"analyze_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration. An empty URL disables report storage.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds result cache configuration. An empty URL disables caching.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// AlertsConfig holds ring alert delivery configuration
type AlertsConfig struct {
	HistorySize int             `yaml:"history_size"`
	MaxPerRun   int             `yaml:"max_per_run"`
	Webhooks    []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound alert receiver
type WebhookConfig struct {
	Name        string            `yaml:"name"`
	URL         string            `yaml:"url"`
	MinSeverity string            `yaml:"min_severity"`
	Headers     map[string]string `yaml:"headers"`
}

// Default returns the settings used when nothing overrides them
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "5339",
			MaxUploadBytes: 16 << 20,
			RateLimit:      30,
			RateBurst:      10,
			AnalyzeTimeout: 60 * time.Second,
		},
		Redis: RedisConfig{
			KeyPrefix: "ring-engine",
			TTL:       time.Hour,
		},
		Detection: heuristics.DefaultConfig(),
		Alerts: AlertsConfig{
			HistorySize: 1000,
			MaxPerRun:   50,
		},
	}
}

// Load loads configuration from a YAML file. Values missing from the file keep
// their defaults; ${VAR} references are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	d := Default()
	det := d.Detection

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", d.Server.Port),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
			AuthToken:      getEnv("API_AUTH_TOKEN", ""),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", int(d.Server.MaxUploadBytes))),
			RateLimit:      getEnvInt("RATE_LIMIT_PER_MIN", d.Server.RateLimit),
			RateBurst:      getEnvInt("RATE_LIMIT_BURST", d.Server.RateBurst),
			AnalyzeTimeout: getEnvDuration("ANALYZE_TIMEOUT", d.Server.AnalyzeTimeout),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", d.Redis.KeyPrefix),
			TTL:       getEnvDuration("REDIS_TTL", d.Redis.TTL),
		},
		Detection: heuristics.Config{
			MaxCycleCandidates:    getEnvInt("CYCLE_MAX_CANDIDATES", det.MaxCycleCandidates),
			MinCycleLength:        getEnvInt("CYCLE_MIN_LENGTH", det.MinCycleLength),
			MaxCycleDepth:         getEnvInt("CYCLE_MAX_DEPTH", det.MaxCycleDepth),
			CycleVisitBudget:      getEnvInt("CYCLE_VISIT_BUDGET", det.CycleVisitBudget),
			CycleWorkers:          getEnvInt("CYCLE_WORKERS", det.CycleWorkers),
			CycleTimeout:          getEnvDuration("CYCLE_TIMEOUT", det.CycleTimeout),
			FanThreshold:          getEnvInt("SMURF_FAN_THRESHOLD", det.FanThreshold),
			WindowCount:           getEnvInt("SMURF_WINDOW_COUNT", det.WindowCount),
			WindowSpan:            getEnvDuration("SMURF_WINDOW_SPAN", det.WindowSpan),
			LegitMinDegree:        getEnvInt("LEGIT_MIN_DEGREE", det.LegitMinDegree),
			LegitMaxCounterDegree: getEnvInt("LEGIT_MAX_COUNTER_DEGREE", det.LegitMaxCounterDegree),
			ShellMinTx:            getEnvInt("SHELL_MIN_TX", det.ShellMinTx),
			ShellMaxTx:            getEnvInt("SHELL_MAX_TX", det.ShellMaxTx),
			ShellMinChain:         getEnvInt("SHELL_MIN_CHAIN", det.ShellMinChain),
			SmurfNeighborLimit:    getEnvInt("SMURF_NEIGHBOR_LIMIT", det.SmurfNeighborLimit),
			DedupeSmurfMembers:    getEnvBool("DEDUPE_SMURF_MEMBERS", det.DedupeSmurfMembers),
			HighVelocityMinTx:     getEnvInt("HIGH_VELOCITY_MIN_TX", det.HighVelocityMinTx),
			SuspiciousNodeScore:   getEnvInt("SUSPICIOUS_NODE_SCORE", det.SuspiciousNodeScore),
			StrictTimestamps:      getEnvBool("STRICT_TIMESTAMPS", det.StrictTimestamps),
		},
		Alerts: AlertsConfig{
			HistorySize: getEnvInt("ALERT_HISTORY_SIZE", d.Alerts.HistorySize),
			MaxPerRun:   getEnvInt("ALERT_MAX_PER_RUN", d.Alerts.MaxPerRun),
			Webhooks:    webhookFromEnv(),
		},
	}
}

// webhookFromEnv supports a single receiver via ALERT_WEBHOOK_URL
func webhookFromEnv() []WebhookConfig {
	url := getEnv("ALERT_WEBHOOK_URL", "")
	if url == "" {
		return nil
	}
	return []WebhookConfig{{
		Name:        getEnv("ALERT_WEBHOOK_NAME", "default"),
		URL:         url,
		MinSeverity: getEnv("ALERT_WEBHOOK_MIN_SEVERITY", "high"),
	}}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
