package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name
const AppName = "ghost"

// Bootstrap ensures GHOST_HOME exists with its directory tree and a
// default config.yaml. Safe to call repeatedly; user edits are never
// overwritten.
func Bootstrap(home string, logger *zap.Logger) error {
	dirs := []string{
		home,
		filepath.Join(home, "sandbox"),
		filepath.Join(home, "memory"),
		filepath.Join(home, "logs"),
		filepath.Join(home, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(home, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		logger.Info("Ghost home initialized",
			zap.String("home", home),
			zap.String("config", configPath),
		)
	} else {
		logger.Debug("Ghost home directory OK", zap.String("home", home))
	}
	return nil
}

// defaultConfig is written on first launch.
const defaultConfig = `# ───────────────────────────────────────────────
# Ghost configuration
# Auto-generated on first launch; edit freely.
# Env overrides: GHOST_MODEL, GHOST_API_KEY,
# GHOST_DEFAULT_DB, TOR_PROXY, GHOST_HOME.
# ───────────────────────────────────────────────

server:
  host: 0.0.0.0
  port: 8000
  api_key: ghost-secret-123
  max_concurrent: 10

upstream:
  url: http://127.0.0.1:8080   # main pool node
  swarm_nodes: []              # parallel delegation workers
  worker_nodes: []             # distillation / background chores
  vision_nodes: []             # enables vision_analysis when non-empty
  coding_nodes: []
  embedding_nodes: []
  model: Qwen3-8B-Instruct-2507
  temperature: 0.7
  max_context: 65536

agent:
  max_turns: 20
  smart_memory: 0.0            # 0 = built-in importance threshold
  perfect_it: false
  no_memory: false

memory:
  store_type: lancedb          # lancedb | memory
  embed_model: ""              # empty = local hash embedder

database:
  default_dsn: postgresql://ghost@127.0.0.1:5432/agent

sandbox:
  backend: auto                # auto | docker | process
  image: python:3.11-slim-bookworm
  network: none
  timeout: 120s

network:
  tor_proxy: socks5://127.0.0.1:9050
  anonymous: true

log:
  level: info
  format: console
`
