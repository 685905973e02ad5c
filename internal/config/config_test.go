package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearGrowthcoreEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(key, "GROWTHCORE_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearGrowthcoreEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != "./growthcore.db" {
		t.Fatalf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != "fs" || cfg.Blob.FSRoot != "./blobdata" {
		t.Fatalf("blob defaults = %+v", cfg.Blob)
	}
	if cfg.Engine.HorizonCapDays != 3650 || cfg.Engine.RecomputeParallelism != 4 {
		t.Fatalf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Scheduler.CronSchedule != "30 2 * * *" {
		t.Fatalf("scheduler default = %+v", cfg.Scheduler)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("logging default = %+v", cfg.Logging)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearGrowthcoreEnv(t)

	envFile := filepath.Join(t.TempDir(), "growthcore.env")
	contents := strings.Join([]string{
		"GROWTHCORE_STORAGE_DRIVER=postgres",
		"GROWTHCORE_POSTGRES_DSN=postgres://localhost/growthcore",
		"GROWTHCORE_HORIZON_CAP_DAYS=730",
		"GROWTHCORE_LOG_LEVEL=debug",
	}, "\n")
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.PostgresDSN != "postgres://localhost/growthcore" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Engine.HorizonCapDays != 730 {
		t.Fatalf("horizon cap = %d, want 730", cfg.Engine.HorizonCapDays)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "unknown storage driver",
			env:  map[string]string{"GROWTHCORE_STORAGE_DRIVER": "oracle"},
			want: "GROWTHCORE_STORAGE_DRIVER",
		},
		{
			name: "postgres without dsn",
			env:  map[string]string{"GROWTHCORE_STORAGE_DRIVER": "postgres"},
			want: "GROWTHCORE_POSTGRES_DSN",
		},
		{
			name: "s3 without bucket",
			env:  map[string]string{"GROWTHCORE_BLOB_DRIVER": "s3"},
			want: "GROWTHCORE_BLOB_S3_BUCKET",
		},
		{
			name: "non-numeric horizon cap",
			env:  map[string]string{"GROWTHCORE_HORIZON_CAP_DAYS": "a lot"},
			want: "GROWTHCORE_HORIZON_CAP_DAYS",
		},
		{
			name: "zero parallelism",
			env:  map[string]string{"GROWTHCORE_RECOMPUTE_PARALLELISM": "0"},
			want: "GROWTHCORE_RECOMPUTE_PARALLELISM",
		},
		{
			name: "unknown log level",
			env:  map[string]string{"GROWTHCORE_LOG_LEVEL": "verbose"},
			want: "GROWTHCORE_LOG_LEVEL",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGrowthcoreEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}
