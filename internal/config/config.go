package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Storage   StorageConfig
	Blob      BlobConfig
	Engine    EngineConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
}

// StorageConfig selects and parameterizes the persistent store.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// BlobConfig selects and parameterizes the run-archive blob store.
type BlobConfig struct {
	Driver      string
	FSRoot      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// EngineConfig tunes the computation engines.
type EngineConfig struct {
	HorizonCapDays       int
	RecomputeParallelism int
}

// SchedulerConfig holds the nightly recompute schedule.
type SchedulerConfig struct {
	CronSchedule string
}

// LoggingConfig holds structured logging options.
type LoggingConfig struct {
	Level string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from the
		// environment directly.
		_ = godotenv.Load()
	}

	horizonCap, err := getenvInt("GROWTHCORE_HORIZON_CAP_DAYS", 3650)
	if err != nil {
		return nil, err
	}
	parallelism, err := getenvInt("GROWTHCORE_RECOMPUTE_PARALLELISM", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Storage: StorageConfig{
			Driver:      getenvWithDefault("GROWTHCORE_STORAGE_DRIVER", "sqlite"),
			SQLitePath:  getenvWithDefault("GROWTHCORE_SQLITE_PATH", "./growthcore.db"),
			PostgresDSN: os.Getenv("GROWTHCORE_POSTGRES_DSN"),
		},
		Blob: BlobConfig{
			Driver:      getenvWithDefault("GROWTHCORE_BLOB_DRIVER", "fs"),
			FSRoot:      getenvWithDefault("GROWTHCORE_BLOB_FS_ROOT", "./blobdata"),
			S3Bucket:    os.Getenv("GROWTHCORE_BLOB_S3_BUCKET"),
			S3Region:    getenvWithDefault("GROWTHCORE_BLOB_S3_REGION", "us-east-1"),
			S3Endpoint:  os.Getenv("GROWTHCORE_BLOB_S3_ENDPOINT"),
			S3PathStyle: os.Getenv("GROWTHCORE_BLOB_S3_PATH_STYLE") == "true",
		},
		Engine: EngineConfig{
			HorizonCapDays:       horizonCap,
			RecomputeParallelism: parallelism,
		},
		Scheduler: SchedulerConfig{
			CronSchedule: getenvWithDefault("GROWTHCORE_RECOMPUTE_SCHEDULE", "30 2 * * *"),
		},
		Logging: LoggingConfig{
			Level: getenvWithDefault("GROWTHCORE_LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated and
// consistent. Validation is fail-fast: the first problem found is returned.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("GROWTHCORE_STORAGE_DRIVER must be memory, sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		return errors.New("GROWTHCORE_SQLITE_PATH must be provided for the sqlite driver")
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return errors.New("GROWTHCORE_POSTGRES_DSN must be provided for the postgres driver")
	}

	switch c.Blob.Driver {
	case "fs", "s3", "memory":
	default:
		return fmt.Errorf("GROWTHCORE_BLOB_DRIVER must be fs, s3 or memory, got %q", c.Blob.Driver)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3Bucket == "" {
		return errors.New("GROWTHCORE_BLOB_S3_BUCKET must be provided for the s3 driver")
	}

	if c.Engine.HorizonCapDays <= 0 {
		return errors.New("GROWTHCORE_HORIZON_CAP_DAYS must be positive")
	}
	if c.Engine.RecomputeParallelism <= 0 {
		return errors.New("GROWTHCORE_RECOMPUTE_PARALLELISM must be positive")
	}

	if c.Scheduler.CronSchedule == "" {
		return errors.New("GROWTHCORE_RECOMPUTE_SCHEDULE must be provided")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("GROWTHCORE_LOG_LEVEL must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}
