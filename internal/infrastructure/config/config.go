package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Database DatabaseConfig `mapstructure:"database"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Network  NetworkConfig  `mapstructure:"network"`
	Log      LogConfig      `mapstructure:"log"`
	Home     string         `mapstructure:"home"`
}

// ServerConfig is the HTTP API surface.
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	APIKey        string `mapstructure:"api_key"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// UpstreamConfig describes the llama.cpp node fleet by pool.
type UpstreamConfig struct {
	URL            string   `mapstructure:"url"` // main pool node
	SwarmNodes     []string `mapstructure:"swarm_nodes"`
	WorkerNodes    []string `mapstructure:"worker_nodes"`
	VisionNodes    []string `mapstructure:"vision_nodes"`
	CodingNodes    []string `mapstructure:"coding_nodes"`
	EmbeddingNodes []string `mapstructure:"embedding_nodes"`

	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxContext  int     `mapstructure:"max_context"`
}

// AgentConfig tunes the reasoning loop.
type AgentConfig struct {
	MaxTurns    int     `mapstructure:"max_turns"`
	SmartMemory float64 `mapstructure:"smart_memory"` // importance gate, 0 disables
	PerfectIt   bool    `mapstructure:"perfect_it"`
	NoMemory    bool    `mapstructure:"no_memory"`
}

// MemoryConfig selects the vector store backing long-term memory.
type MemoryConfig struct {
	StoreType  string `mapstructure:"store_type"` // lancedb | memory
	StorePath  string `mapstructure:"store_path"` // default $GHOST_HOME/memory
	EmbedModel string `mapstructure:"embed_model"`
}

// DatabaseConfig covers postgres_admin and the scheduler store.
type DatabaseConfig struct {
	DefaultDSN    string `mapstructure:"default_dsn"`    // postgres_admin default target
	SchedulerPath string `mapstructure:"scheduler_path"` // default $GHOST_HOME/tasks.db
}

// SandboxConfig tunes script execution.
type SandboxConfig struct {
	Backend string        `mapstructure:"backend"` // auto | docker | process
	Image   string        `mapstructure:"image"`
	Network string        `mapstructure:"network"` // none | host | bridge
	Timeout time.Duration `mapstructure:"timeout"`
}

// NetworkConfig controls tool egress.
type NetworkConfig struct {
	TorProxy  string `mapstructure:"tor_proxy"`
	Anonymous bool   `mapstructure:"anonymous"` // route tool traffic through Tor
}

// LogConfig controls the zap setup.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"` // console | json
	Debug   bool   `mapstructure:"debug"`
	Verbose bool   `mapstructure:"verbose"`
}

// DefaultHome resolves GHOST_HOME, defaulting to ~/ghost_llamacpp.
func DefaultHome() string {
	if home := os.Getenv("GHOST_HOME"); home != "" {
		return home
	}
	userHome, _ := os.UserHomeDir()
	if userHome == "" {
		userHome = "/tmp"
	}
	return filepath.Join(userHome, "ghost_llamacpp")
}

func (c *Config) SandboxDir() string { return filepath.Join(c.Home, "sandbox") }
func (c *Config) MemoryDir() string  { return filepath.Join(c.Home, "memory") }
func (c *Config) LogsDir() string    { return filepath.Join(c.Home, "logs") }
func (c *Config) StateDir() string   { return filepath.Join(c.Home, "state") }

// Load reads configuration in layers: defaults, $GHOST_HOME/config.yaml,
// ./config.yaml, then GHOST_* environment variables.
func Load() (*Config, error) {
	v := viper.New()
	home := DefaultHome()
	setDefaults(v, home)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read %s/config.yaml: %w", home, err)
		}
	}

	// project-local overlay
	if _, err := os.Stat("config.yaml"); err == nil {
		local := viper.New()
		local.SetConfigFile("config.yaml")
		if err := local.ReadInConfig(); err == nil {
			_ = v.MergeConfigMap(local.AllSettings())
		}
	}

	v.SetEnvPrefix("GHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// short env names kept from the original deployment scripts
	_ = v.BindEnv("upstream.model", "GHOST_MODEL")
	_ = v.BindEnv("server.api_key", "GHOST_API_KEY")
	_ = v.BindEnv("database.default_dsn", "GHOST_DEFAULT_DB")
	_ = v.BindEnv("network.tor_proxy", "TOR_PROXY")
	_ = v.BindEnv("home", "GHOST_HOME")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Home == "" {
		cfg.Home = home
	}
	if cfg.Memory.StorePath == "" {
		cfg.Memory.StorePath = cfg.MemoryDir()
	}
	if cfg.Database.SchedulerPath == "" {
		cfg.Database.SchedulerPath = filepath.Join(cfg.Home, "tasks.db")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("home", home)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.api_key", "ghost-secret-123")
	v.SetDefault("server.max_concurrent", 10)

	v.SetDefault("upstream.url", "http://127.0.0.1:8080")
	v.SetDefault("upstream.swarm_nodes", []string{})
	v.SetDefault("upstream.worker_nodes", []string{})
	v.SetDefault("upstream.vision_nodes", []string{})
	v.SetDefault("upstream.coding_nodes", []string{})
	v.SetDefault("upstream.embedding_nodes", []string{})
	v.SetDefault("upstream.model", "Qwen3-8B-Instruct-2507")
	v.SetDefault("upstream.temperature", 0.7)
	v.SetDefault("upstream.max_context", 65536)

	v.SetDefault("agent.max_turns", 20)
	v.SetDefault("agent.smart_memory", 0.0)
	v.SetDefault("agent.perfect_it", false)
	v.SetDefault("agent.no_memory", false)

	v.SetDefault("memory.store_type", "lancedb")
	v.SetDefault("memory.embed_model", "")

	v.SetDefault("database.default_dsn", "postgresql://ghost@127.0.0.1:5432/agent")

	v.SetDefault("sandbox.backend", "auto")
	v.SetDefault("sandbox.image", "python:3.11-slim-bookworm")
	v.SetDefault("sandbox.network", "none")
	v.SetDefault("sandbox.timeout", "120s")

	v.SetDefault("network.tor_proxy", "socks5://127.0.0.1:9050")
	v.SetDefault("network.anonymous", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
