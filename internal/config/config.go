package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// Settlement sinks
const (
	SinkLog   = "log"
	SinkRedis = "redis"
	SinkS3    = "s3"
)

// Config is the server configuration read from the environment
type Config struct {
	Port     int
	LogLevel slog.Level

	StorageType string
	RedisURL    string
	DatabaseURL string

	CommitTimeout time.Duration
	RevealTimeout time.Duration
	DefaultFeeBps int
	MaxDrawRounds int
	SweepInterval time.Duration

	AdminToken            string
	EscrowContractAddress string

	SettlementSinks  []string
	SettlementStream string
	S3Bucket         string
	S3Prefix         string
	S3Region         string
	S3Endpoint       string
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Port:                  8080,
		LogLevel:              slog.LevelInfo,
		StorageType:           StorageTypeMemory,
		CommitTimeout:         60 * time.Second,
		RevealTimeout:         60 * time.Second,
		DefaultFeeBps:         100,
		MaxDrawRounds:         10,
		SweepInterval:         15 * time.Second,
		EscrowContractAddress: "escrow",
		SettlementSinks:       []string{SinkLog},
		SettlementStream:      "stakegame:settlements",
		S3Prefix:              "settlements",
	}
}

// Load reads a .env file if one exists, then the process environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from a getenv-style lookup, applying defaults
// for unset variables
func FromLookup(getenv func(string) string) (Config, error) {
	cfg := Default()
	var errs []error

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT: invalid port %q", v))
		}
		cfg.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if v := getenv("STORAGE_TYPE"); v != "" {
		cfg.StorageType = strings.ToLower(v)
	}
	cfg.RedisURL = getenv("REDIS_URL")
	cfg.DatabaseURL = getenv("DATABASE_URL")
	switch cfg.StorageType {
	case StorageTypeMemory:
	case StorageTypeRedis:
		if cfg.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL required when STORAGE_TYPE=redis"))
		}
	case StorageTypePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL required when STORAGE_TYPE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_TYPE: unknown storage type %q", cfg.StorageType))
	}

	durations := []struct {
		name string
		dest *time.Duration
	}{
		{"COMMIT_TIMEOUT", &cfg.CommitTimeout},
		{"REVEAL_TIMEOUT", &cfg.RevealTimeout},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
	}
	for _, d := range durations {
		v := getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", d.name, v))
			continue
		}
		*d.dest = parsed
	}

	if v := getenv("DEFAULT_FEE_BPS"); v != "" {
		fee, err := strconv.Atoi(v)
		if err != nil || fee < 0 || fee > 10000 {
			errs = append(errs, fmt.Errorf("DEFAULT_FEE_BPS: must be 0-10000, got %q", v))
		}
		cfg.DefaultFeeBps = fee
	}
	if v := getenv("MAX_DRAW_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, fmt.Errorf("MAX_DRAW_ROUNDS: must be a positive integer, got %q", v))
		}
		cfg.MaxDrawRounds = n
	}

	cfg.AdminToken = getenv("ADMIN_TOKEN")
	if v := getenv("ESCROW_CONTRACT_ADDRESS"); v != "" {
		cfg.EscrowContractAddress = v
	}

	if v := getenv("SETTLEMENT_SINKS"); v != "" {
		cfg.SettlementSinks = nil
		for _, sink := range strings.Split(v, ",") {
			sink = strings.ToLower(strings.TrimSpace(sink))
			switch sink {
			case "":
				continue
			case SinkLog, SinkRedis, SinkS3:
				cfg.SettlementSinks = append(cfg.SettlementSinks, sink)
			default:
				errs = append(errs, fmt.Errorf("SETTLEMENT_SINKS: unknown sink %q", sink))
			}
		}
	}
	if v := getenv("SETTLEMENT_STREAM"); v != "" {
		cfg.SettlementStream = v
	}
	cfg.S3Bucket = getenv("SETTLEMENT_S3_BUCKET")
	if v := getenv("SETTLEMENT_S3_PREFIX"); v != "" {
		cfg.S3Prefix = v
	}
	cfg.S3Region = getenv("SETTLEMENT_S3_REGION")
	cfg.S3Endpoint = getenv("SETTLEMENT_S3_ENDPOINT")

	if cfg.HasSink(SinkRedis) && cfg.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL required for the redis settlement sink"))
	}
	if cfg.HasSink(SinkS3) && cfg.S3Bucket == "" {
		errs = append(errs, errors.New("SETTLEMENT_S3_BUCKET required for the s3 settlement sink"))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// HasSink reports whether a settlement sink is enabled
func (c Config) HasSink(name string) bool {
	for _, s := range c.SettlementSinks {
		if s == name {
			return true
		}
	}
	return false
}

// Addr returns the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
