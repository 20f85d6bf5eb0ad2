package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/utils"
)

type ServerConfig struct {
	Port         string   `yaml:"port"`
	CORSOrigins  []string `yaml:"cors_origins"`
	JWTSecretKey string   `yaml:"jwt_secret_key"`
}

type StoreConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c StoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type RedisConfig struct {
	Addr           string `yaml:"addr"`
	EdgeTTLMinutes int    `yaml:"edge_ttl_minutes"`
}

func (c RedisConfig) EdgeTTL() time.Duration {
	return time.Duration(c.EdgeTTLMinutes) * time.Minute
}

// AggregationConfig carries the remote store's practical request ceilings.
// Chunk and page sizes are host limits, not tuning knobs; verify them against
// the actual backing store before raising.
type AggregationConfig struct {
	ChunkSize   int `yaml:"chunk_size"`
	PageSize    int `yaml:"page_size"`
	Concurrency int `yaml:"concurrency"`
	PageRetries int `yaml:"page_retries"`
}

type LeaderboardConfig struct {
	TopN         int    `yaml:"top_n"`
	CacheVersion string `yaml:"cache_version"`
}

type RefresherConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
	TimeoutMinutes  int  `yaml:"timeout_minutes"`
}

func (c RefresherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c RefresherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Redis       RedisConfig       `yaml:"redis"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Refresher   RefresherConfig   `yaml:"refresher"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Store: StoreConfig{
			TimeoutSeconds: 30,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			EdgeTTLMinutes: 45,
		},
		Aggregation: AggregationConfig{
			ChunkSize:   200,
			PageSize:    1000,
			Concurrency: 4,
			PageRetries: 2,
		},
		Leaderboard: LeaderboardConfig{
			TopN:         5,
			CacheVersion: "v2",
		},
		Refresher: RefresherConfig{
			Enabled:         true,
			IntervalMinutes: 30,
			TimeoutMinutes:  10,
		},
	}
}

// Load builds the config from defaults, an optional YAML file (CONFIG_PATH)
// and environment overrides for the deploy-specific values.
func Load(log *logger.Logger) (Config, error) {
	cfg := defaults()

	if path := utils.GetEnv("CONFIG_PATH", "", log); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}

	cfg.Server.Port = utils.GetEnv("PORT", cfg.Server.Port, log)
	cfg.Server.JWTSecretKey = utils.GetEnv("JWT_SECRET_KEY", cfg.Server.JWTSecretKey, log)
	cfg.Store.BaseURL = utils.GetEnv("STORE_BASE_URL", cfg.Store.BaseURL, log)
	cfg.Store.APIKey = utils.GetEnv("STORE_API_KEY", cfg.Store.APIKey, log)
	cfg.Redis.Addr = utils.GetEnv("REDIS_ADDR", cfg.Redis.Addr, log)
	cfg.Refresher.IntervalMinutes = utils.GetEnvAsInt("REFRESH_INTERVAL_MINUTES", cfg.Refresher.IntervalMinutes, log)

	if cfg.Aggregation.ChunkSize < 1 {
		return cfg, fmt.Errorf("aggregation.chunk_size must be positive")
	}
	if cfg.Aggregation.PageSize < 1 {
		return cfg, fmt.Errorf("aggregation.page_size must be positive")
	}
	if cfg.Aggregation.Concurrency < 1 {
		cfg.Aggregation.Concurrency = 1
	}
	return cfg, nil
}
