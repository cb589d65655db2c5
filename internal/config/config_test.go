package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"MONGO_URI", "MONGO_DATABASE", "REDIS_ADDR", "HTTP_PORT", "SESSION_MAX_AGE", "SWEEP_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("unexpected mongo uri %q", cfg.MongoURI)
	}
	if cfg.MongoDatabase != "liveclass" {
		t.Errorf("unexpected database %q", cfg.MongoDatabase)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected redis addr %q", cfg.RedisAddr)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("unexpected port %q", cfg.HTTPPort)
	}
	if cfg.SessionMaxAge != 6*time.Hour {
		t.Errorf("unexpected max age %s", cfg.SessionMaxAge)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("unexpected sweep interval %s", cfg.SweepInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("SESSION_MAX_AGE", "30m")

	cfg := Load()
	if cfg.MongoURI != "mongodb://db:27017" {
		t.Errorf("unexpected mongo uri %q", cfg.MongoURI)
	}
	if cfg.HTTPPort != "9999" {
		t.Errorf("unexpected port %q", cfg.HTTPPort)
	}
	if cfg.SessionMaxAge != 30*time.Minute {
		t.Errorf("unexpected max age %s", cfg.SessionMaxAge)
	}
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_MAX_AGE", "not-a-duration")

	cfg := Load()
	if cfg.SessionMaxAge != 6*time.Hour {
		t.Errorf("expected default on bad duration, got %s", cfg.SessionMaxAge)
	}
}
