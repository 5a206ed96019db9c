package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"watchparty/internal/logger"
)

// TestDefaultValid 测试默认配置合法
func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Coordinator.Listen != ":5555" {
		t.Errorf("default listen mismatch: %s", cfg.Coordinator.Listen)
	}
	if cfg.Coordinator.SyncThreshold != 1.0 {
		t.Errorf("default threshold mismatch: %v", cfg.Coordinator.SyncThreshold)
	}
	if cfg.Relay.ReportInterval != 5*time.Second || cfg.Relay.SyncInterval != 2*time.Second {
		t.Errorf("default relay intervals mismatch: %v %v", cfg.Relay.ReportInterval, cfg.Relay.SyncInterval)
	}
	if !strings.HasPrefix(cfg.Relay.Username, "User") {
		t.Errorf("default username mismatch: %s", cfg.Relay.Username)
	}
}

// TestLoadFile 测试从YAML文件加载并覆盖默认值
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchparty.yaml")
	content := `
coordinator:
  listen: ":6000"
  sync_threshold: 2.5
  write_timeout: 3s
http:
  engine: hertz
relay:
  report_interval: 1500ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Coordinator.Listen != ":6000" {
		t.Errorf("listen mismatch: %s", cfg.Coordinator.Listen)
	}
	if cfg.Coordinator.SyncThreshold != 2.5 {
		t.Errorf("threshold mismatch: %v", cfg.Coordinator.SyncThreshold)
	}
	if cfg.Coordinator.WriteTimeout != 3*time.Second {
		t.Errorf("write timeout mismatch: %v", cfg.Coordinator.WriteTimeout)
	}
	if cfg.HTTP.Engine != "hertz" {
		t.Errorf("engine mismatch: %s", cfg.HTTP.Engine)
	}
	if cfg.Relay.ReportInterval != 1500*time.Millisecond {
		t.Errorf("report interval mismatch: %v", cfg.Relay.ReportInterval)
	}
	// untouched sections keep their defaults
	if cfg.Coordinator.ChatHistory != 100 {
		t.Errorf("chat history default lost: %d", cfg.Coordinator.ChatHistory)
	}
}

// TestLoadEnvOverride 测试环境变量覆盖
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WATCHPARTY_SYNC_THRESHOLD", "0.5")
	t.Setenv("WATCHPARTY_HOST", "true")
	t.Setenv("WATCHPARTY_SERVER", "ws://example.org:8080/ws")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Coordinator.SyncThreshold != 0.5 {
		t.Errorf("threshold mismatch: %v", cfg.Coordinator.SyncThreshold)
	}
	if !cfg.Relay.Host {
		t.Error("host flag should be set")
	}
	if cfg.Relay.Server != "ws://example.org:8080/ws" {
		t.Errorf("server mismatch: %s", cfg.Relay.Server)
	}
}

// TestLoadInvalid 测试非法配置被拒绝
func TestLoadInvalid(t *testing.T) {
	t.Setenv("WATCHPARTY_SYNC_THRESHOLD", "-1")
	if _, err := Load(""); err == nil {
		t.Error("expected error for negative threshold")
	}

	cfg := Default()
	cfg.HTTP.Engine = "gin"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown engine")
	}
}

// TestLoadMissingFile 测试配置文件不存在
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// TestWatchReload 测试配置文件修改后热加载
func TestWatchReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchparty.yaml")
	if err := os.WriteFile(path, []byte("coordinator:\n  sync_threshold: 1.0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan float64, 8)
	go Watch(ctx, path, logger.Discard(), func(cfg *Config) {
		reloaded <- cfg.Coordinator.SyncThreshold
	})

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case v := <-reloaded:
			if v == 3.0 {
				return
			}
		case <-tick.C:
			// the watcher may not be registered yet, so keep rewriting
			os.WriteFile(path, []byte("coordinator:\n  sync_threshold: 3.0\n"), 0o600)
		case <-deadline:
			t.Fatal("config change was not picked up")
		}
	}
}
