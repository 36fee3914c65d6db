package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GHOST_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "ghost-secret-123" {
		t.Errorf("api key = %q", cfg.Server.APIKey)
	}
	if cfg.Upstream.Model != "Qwen3-8B-Instruct-2507" {
		t.Errorf("model = %q", cfg.Upstream.Model)
	}
	if cfg.Upstream.MaxContext != 65536 {
		t.Errorf("max context = %d", cfg.Upstream.MaxContext)
	}
	if cfg.Agent.MaxTurns != 20 {
		t.Errorf("max turns = %d", cfg.Agent.MaxTurns)
	}
	if cfg.Network.TorProxy != "socks5://127.0.0.1:9050" {
		t.Errorf("tor proxy = %q", cfg.Network.TorProxy)
	}
	if cfg.Database.DefaultDSN != "postgresql://ghost@127.0.0.1:5432/agent" {
		t.Errorf("default dsn = %q", cfg.Database.DefaultDSN)
	}
	if cfg.Sandbox.Timeout != 120*time.Second {
		t.Errorf("sandbox timeout = %v", cfg.Sandbox.Timeout)
	}
	if cfg.Memory.StorePath != filepath.Join(cfg.Home, "memory") {
		t.Errorf("memory path = %q", cfg.Memory.StorePath)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GHOST_HOME", t.TempDir())
	t.Setenv("GHOST_MODEL", "CustomModel-32B")
	t.Setenv("GHOST_API_KEY", "other-key")
	t.Setenv("GHOST_DEFAULT_DB", "postgresql://x@db/y")
	t.Setenv("TOR_PROXY", "socks5://10.0.0.1:9050")
	t.Setenv("GHOST_SERVER_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.Model != "CustomModel-32B" {
		t.Errorf("model = %q", cfg.Upstream.Model)
	}
	if cfg.Server.APIKey != "other-key" {
		t.Errorf("api key = %q", cfg.Server.APIKey)
	}
	if cfg.Database.DefaultDSN != "postgresql://x@db/y" {
		t.Errorf("dsn = %q", cfg.Database.DefaultDSN)
	}
	if cfg.Network.TorProxy != "socks5://10.0.0.1:9050" {
		t.Errorf("tor proxy = %q", cfg.Network.TorProxy)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoad_HomeConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GHOST_HOME", home)
	os.WriteFile(filepath.Join(home, "config.yaml"), []byte(
		"server:\n  port: 8443\nupstream:\n  swarm_nodes:\n    - http://127.0.0.1:8081\n"), 0644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("port from file = %d", cfg.Server.Port)
	}
	if len(cfg.Upstream.SwarmNodes) != 1 {
		t.Errorf("swarm nodes = %v", cfg.Upstream.SwarmNodes)
	}
	if cfg.Server.APIKey != "ghost-secret-123" {
		t.Error("defaults should survive a partial config file")
	}
}

func TestBootstrap(t *testing.T) {
	home := filepath.Join(t.TempDir(), "ghost_home")
	if err := Bootstrap(home, zap.NewNop()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	for _, dir := range []string{"sandbox", "memory", "logs", "state"} {
		if info, err := os.Stat(filepath.Join(home, dir)); err != nil || !info.IsDir() {
			t.Errorf("missing dir %s", dir)
		}
	}
	configPath := filepath.Join(home, "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Fatal("default config.yaml not written")
	}

	os.WriteFile(configPath, []byte("server:\n  port: 1\n"), 0644)
	if err := Bootstrap(home, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(configPath)
	if string(data) != "server:\n  port: 1\n" {
		t.Error("bootstrap must not overwrite user edits")
	}
}
