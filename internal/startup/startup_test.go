package startup

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	storage := t.TempDir()
	dbDir := t.TempDir()
	t.Setenv("STORAGE_DIR", storage)
	t.Setenv("DATABASE_DIR", dbDir)
	t.Setenv("PORT", "8181")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("PROBE_TIMEOUT", "10s")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8181" {
		t.Errorf("Port = %q, want 8181", cfg.Port)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %s, want 30m", cfg.SessionTTL)
	}
	if cfg.ProbeTimeout != 10*time.Second {
		t.Errorf("ProbeTimeout = %s, want 10s", cfg.ProbeTimeout)
	}
	if cfg.MaxUploadBytes != 1048576 {
		t.Errorf("MaxUploadBytes = %d, want 1048576", cfg.MaxUploadBytes)
	}
	if cfg.DatabasePath != filepath.Join(dbDir, "media-share.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.IntakeDir != filepath.Join(storage, "in") {
		t.Errorf("IntakeDir = %q", cfg.IntakeDir)
	}
}

func TestLoadConfigBadDurationFallsBack(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("DATABASE_DIR", t.TempDir())
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SessionTTL != DefaultSessionTTL {
		t.Errorf("SessionTTL = %s, want default %s", cfg.SessionTTL, DefaultSessionTTL)
	}
}

func TestLoadConfigCreatesIntakeDir(t *testing.T) {
	storage := t.TempDir()
	t.Setenv("STORAGE_DIR", storage)
	t.Setenv("DATABASE_DIR", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.IntakeDir == "" {
		t.Fatal("IntakeDir not set")
	}
	if err := testWriteAccess(cfg.IntakeDir); err != nil {
		t.Fatalf("intake dir not writable: %v", err)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	if got := getEnv("TEST_STR", "fallback"); got != "value" {
		t.Errorf("getEnv = %q", got)
	}
	if got := getEnv("TEST_STR_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv missing = %q", got)
	}

	t.Setenv("TEST_BOOL", "garbage")
	if got := getEnvBool("TEST_BOOL", true); got != true {
		t.Error("bad bool did not fall back")
	}

	t.Setenv("TEST_INT", "-5")
	if got := getEnvInt64("TEST_INT", 42); got != 42 {
		t.Errorf("non-positive int = %d, want fallback 42", got)
	}
}
