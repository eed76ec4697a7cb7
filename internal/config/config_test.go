package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_PATH", "WATCH_DIR", "DB_DRIVER", "DB_DSN", "HTTP_PORT",
		"WORKER_COUNT", "QUEUE_SIZE", "CANDIDATE_TIMEOUT_SEC",
		"POLL_INTERVAL_SEC", "LOG_LEVEL", "LOG_FORMAT", "STRICT_CONFIG",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("driver = %s", cfg.DBDriver)
	}
	if cfg.WorkerCount != defaultWorkerCount {
		t.Fatalf("workers = %d", cfg.WorkerCount)
	}
	if cfg.HTTPPort != defaultPort {
		t.Fatalf("port = %s", cfg.HTTPPort)
	}
	if cfg.PollIntervalSec != defaultPollSec {
		t.Fatalf("poll = %d", cfg.PollIntervalSec)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("watch_dir: /from/file\nhttp_port: \"9000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("WATCH_DIR", "/from/env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WatchDir != "/from/env" {
		t.Fatalf("watch dir = %s, env must win", cfg.WatchDir)
	}
	if cfg.HTTPPort != ":9000" {
		t.Fatalf("port = %s, file value should apply with colon prefix", cfg.HTTPPort)
	}
}

func TestWorkerCountClamped(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("WORKER_COUNT", "500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkerCount != maxWorkerCount {
		t.Fatalf("workers = %d, expected clamp to %d", cfg.WorkerCount, maxWorkerCount)
	}
}

func TestInvalidWorkerCountFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("WORKER_COUNT", "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkerCount != defaultWorkerCount {
		t.Fatalf("workers = %d", cfg.WorkerCount)
	}
}

func TestInvalidIntervalsFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CANDIDATE_TIMEOUT_SEC", "soon")
	t.Setenv("POLL_INTERVAL_SEC", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CandidateTimeoutSec != defaultTimeoutSec {
		t.Fatalf("timeout = %d", cfg.CandidateTimeoutSec)
	}
	if cfg.PollIntervalSec != defaultPollSec {
		t.Fatalf("poll = %d", cfg.PollIntervalSec)
	}
}

func TestStrictConfigRejectsBadIntervals(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STRICT_CONFIG", "1")
	t.Setenv("CANDIDATE_TIMEOUT_SEC", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected strict mode to reject invalid CANDIDATE_TIMEOUT_SEC")
	}
}

func TestStrictConfigRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STRICT_CONFIG", "1")
	t.Setenv("WORKER_COUNT", "lots")

	if _, err := Load(); err == nil {
		t.Fatal("expected strict mode to reject invalid WORKER_COUNT")
	}
}

func TestStrictConfigRejectsUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STRICT_CONFIG", "1")
	t.Setenv("DB_DRIVER", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected strict mode to reject unknown driver")
	}
}

func TestQueueSizeAtLeastWorkerCount(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("WORKER_COUNT", "16")
	t.Setenv("QUEUE_SIZE", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueueSize < cfg.WorkerCount {
		t.Fatalf("queue size %d smaller than worker count %d", cfg.QueueSize, cfg.WorkerCount)
	}
}
