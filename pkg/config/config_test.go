package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Training.HiddenSize != 16 || cfg.Training.Iter != 100 {
		t.Errorf("unexpected training defaults: %+v", cfg.Training)
	}
	if cfg.Session.TopRanks != 10 {
		t.Errorf("expected 10 top ranks, got %d", cfg.Session.TopRanks)
	}
	if cfg.Redis.Enabled || cfg.Postgres.Enabled || cfg.Kafka.Enabled {
		t.Error("external stores should default to disabled")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
training:
  hiddenSize: 32
  skipGram: true
session:
  topRanks: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Training.HiddenSize != 32 || !cfg.Training.SkipGram {
		t.Errorf("file overrides not applied: %+v", cfg.Training)
	}
	// Untouched fields keep their defaults.
	if cfg.Training.Alpha != 0.2 {
		t.Errorf("expected default alpha 0.2, got %v", cfg.Training.Alpha)
	}
	if cfg.Session.TopRanks != 5 {
		t.Errorf("expected 5 top ranks, got %d", cfg.Session.TopRanks)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WL_SERVER_PORT", "7070")
	t.Setenv("WL_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("WL_TRAINING_SEED", "99")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env port override not applied, got %d", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("redis env override should enable redis: %+v", cfg.Redis)
	}
	if cfg.Training.Seed != 99 {
		t.Errorf("seed override not applied, got %d", cfg.Training.Seed)
	}
}

func TestValidateTraining(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TrainingConfig)
		ok     bool
	}{
		{"defaults", func(c *TrainingConfig) {}, true},
		{"zero hidden", func(c *TrainingConfig) { c.HiddenSize = 0 }, false},
		{"zero min count", func(c *TrainingConfig) { c.MinCount = 0 }, false},
		{"negative window", func(c *TrainingConfig) { c.Window = -1 }, false},
		{"zero window", func(c *TrainingConfig) { c.Window = 0 }, true},
		{"negative negatives", func(c *TrainingConfig) { c.Negative = -1 }, false},
		{"zero negatives", func(c *TrainingConfig) { c.Negative = 0 }, true},
		{"zero iter", func(c *TrainingConfig) { c.Iter = 0 }, false},
		{"alpha below floor", func(c *TrainingConfig) { c.Alpha = 0.00001 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultTraining()
			tc.mutate(&cfg)
			err := Validate(cfg)
			if tc.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5433, Database: "lab", User: "u", Password: "p", SSLMode: "disable",
	}
	want := "host=db port=5433 user=u password=p dbname=lab sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN mismatch:\n got %q\nwant %q", got, want)
	}
}
