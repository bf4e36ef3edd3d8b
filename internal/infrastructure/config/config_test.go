package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source != "turso" {
		t.Errorf("expected source turso, got %s", cfg.Source)
	}
	if cfg.Fetch.MinRefreshInterval != time.Hour || cfg.Fetch.MaxAttempts != 3 || cfg.Fetch.BaseDelay != time.Second {
		t.Errorf("unexpected fetch defaults %+v", cfg.Fetch)
	}
	if cfg.Catalog.Key != "experiments" || cfg.Catalog.RefreshInterval != 5*time.Minute || cfg.Catalog.FailureTTL != 30*time.Second {
		t.Errorf("unexpected catalog defaults %+v", cfg.Catalog)
	}
	if cfg.AssignmentCacheSize != 10000 {
		t.Errorf("expected cache size 10000, got %d", cfg.AssignmentCacheSize)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("MVARIANT_SOURCE", "redis")
	t.Setenv("MVARIANT_REDIS_ADDR", "localhost:6379")
	t.Setenv("MVARIANT_FETCH_MAX_ATTEMPTS", "5")
	t.Setenv("MVARIANT_CATALOG_REFRESH_INTERVAL", "90s")
	t.Setenv("MVARIANT_DATABASE_URL", "libsql://db.turso.io")
	t.Setenv("MVARIANT_LOG_HASH_USER_IDS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Fetch.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Fetch.MaxAttempts)
	}
	if cfg.Catalog.RefreshInterval != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Catalog.RefreshInterval)
	}
	if cfg.Database.URL != "libsql://db.turso.io" {
		t.Errorf("expected database url, got %q", cfg.Database.URL)
	}
	if !cfg.Log.HashUserIDs {
		t.Error("expected user id hashing enabled")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"redis without addr", map[string]string{"MVARIANT_SOURCE": "redis"}},
		{"unknown source", map[string]string{"MVARIANT_SOURCE": "etcd"}},
		{"zero attempts", map[string]string{"MVARIANT_FETCH_MAX_ATTEMPTS": "0"}},
		{"bad duration", map[string]string{"MVARIANT_FETCH_BASE_DELAY": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
