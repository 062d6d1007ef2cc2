// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfigMissing is returned when a required setting is absent. Fatal at startup.
var ErrConfigMissing = errors.New("required configuration missing")

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Workers  int     `yaml:"workers"`
	AdminIDs []int64 `yaml:"admin_ids"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type QuotaConfig struct {
	DailyLimit           int  `yaml:"daily_limit"`
	HistoryDays          int  `yaml:"history_days"`
	CountUsageForPremium bool `yaml:"count_usage_for_premium"`
}

type EntitlementConfig struct {
	CodeLength          int           `yaml:"code_length"`
	CodeTTL             time.Duration `yaml:"code_ttl"` // 0: codes never expire
	StackRedemptions    bool          `yaml:"stack_redemptions"`
	MaxGenerateAttempts int           `yaml:"max_generate_attempts"`
}

type UpstreamConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	UserAgent       string        `yaml:"user_agent"`
}

type HealthConfig struct {
	Port int `yaml:"port"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty: in-memory stores
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	CommandsPerMinute  int `yaml:"commands_per_minute"`
	CallbacksPerMinute int `yaml:"callbacks_per_minute"`
}

type BroadcastConfig struct {
	Workers   int  `yaml:"workers"`
	PerSecond int  `yaml:"per_second"`
	DryRun    bool `yaml:"dry_run"`
}

type SchedulerConfig struct {
	PruneCron string `yaml:"prune_cron"`
}

type Config struct {
	Bot         BotConfig         `yaml:"bot"`
	Log         LogConfig         `yaml:"log"`
	Quota       QuotaConfig       `yaml:"quota"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Health      HealthConfig      `yaml:"health"`
	Redis       RedisConfig       `yaml:"redis"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Broadcast   BroadcastConfig   `yaml:"broadcast"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the optional YAML file at path, then .env, then the process
// environment. Environment values win over the file.
func LoadConfig(path string, dev bool) (*Config, error) {
	cfg := Config{
		Quota:       QuotaConfig{CountUsageForPremium: true},
		Entitlement: EntitlementConfig{StackRedemptions: true},
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only deployment
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN", ErrConfigMissing)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v, ok := os.LookupEnv("ADMIN_IDS"); ok {
		cfg.Bot.AdminIDs = ParseAdminIDs(v)
	}
	if v := os.Getenv("FREE_TIER_LIMIT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("FREE_TIER_LIMIT: %w", err)
		}
		cfg.Quota.DailyLimit = n
	}
	if v := os.Getenv("COUNT_USAGE_FOR_PREMIUM"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("COUNT_USAGE_FOR_PREMIUM: %w", err)
		}
		cfg.Quota.CountUsageForPremium = b
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Health.Port = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Quota.DailyLimit <= 0 {
		cfg.Quota.DailyLimit = 20
	}
	if cfg.Quota.HistoryDays <= 0 {
		cfg.Quota.HistoryDays = 7
	}
	if cfg.Entitlement.CodeLength <= 0 {
		cfg.Entitlement.CodeLength = 8
	}
	if cfg.Entitlement.MaxGenerateAttempts <= 0 {
		cfg.Entitlement.MaxGenerateAttempts = 5
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 60 * time.Second
	}
	if cfg.Upstream.ConcurrentLimit <= 0 {
		cfg.Upstream.ConcurrentLimit = 16
	}
	if cfg.Upstream.MaxBodyBytes <= 0 {
		cfg.Upstream.MaxBodyBytes = 4 << 20
	}
	if cfg.Health.Port == 0 {
		cfg.Health.Port = 8000
	}
	if cfg.RateLimit.CommandsPerMinute <= 0 {
		cfg.RateLimit.CommandsPerMinute = 20
	}
	if cfg.RateLimit.CallbacksPerMinute <= 0 {
		cfg.RateLimit.CallbacksPerMinute = 30
	}
	if cfg.Broadcast.Workers <= 0 {
		cfg.Broadcast.Workers = 4
	}
	if cfg.Broadcast.PerSecond <= 0 {
		cfg.Broadcast.PerSecond = 25
	}
	if cfg.Scheduler.PruneCron == "" {
		cfg.Scheduler.PruneCron = "@hourly"
	}
}

// ParseAdminIDs splits a comma-separated id list, skipping entries that are not
// plain non-negative integers.
func ParseAdminIDs(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
