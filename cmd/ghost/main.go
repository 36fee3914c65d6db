package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ghostagent/ghost/internal/application"
	"github.com/ghostagent/ghost/internal/infrastructure/config"
	"github.com/ghostagent/ghost/internal/infrastructure/logger"
)

const (
	appName    = "ghost"
	appVersion = "0.1.0"
)

func main() {
	rootCmd := newRootCmd()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Ghost — autonomous agent runtime for a llama.cpp fleet",
		Long: "Ghost runs a planner/responder reasoning loop over a pool of\n" +
			"llama.cpp nodes and serves it through an OpenAI-compatible API.",
		RunE: runServer,
	}

	f := cmd.Flags()
	f.String("host", "0.0.0.0", "listen address")
	f.Int("port", 8000, "listen port")
	f.String("upstream-url", "http://127.0.0.1:8080", "main pool node URL")
	f.StringSlice("swarm-nodes", nil, "swarm pool nodes (url|model)")
	f.StringSlice("worker-nodes", nil, "worker pool nodes (url|model)")
	f.StringSlice("visual-nodes", nil, "vision pool nodes (url|model)")
	f.StringSlice("coding-nodes", nil, "coding pool nodes (url|model)")
	f.StringSlice("embedding-nodes", nil, "embeddings pool nodes (url|model)")
	f.String("model", "", "default model name (env GHOST_MODEL)")
	f.Float64("temperature", 0.7, "base sampling temperature")
	f.Int("max-context", 65536, "upstream context window in tokens")
	f.String("api-key", "", "API key for X-Ghost-Key (env GHOST_API_KEY)")
	f.String("default-db", "", "default postgres DSN for postgres_admin (env GHOST_DEFAULT_DB)")
	f.Float64("smart-memory", 0.0, "memory importance threshold, 0 disables")
	f.Bool("anonymous", true, "route tool egress through Tor")
	f.Bool("perfect-it", false, "run the revision pass on final answers")
	f.Bool("no-memory", false, "disable the long-term memory writer")
	f.Bool("daemon", false, "JSON logs to file, no console niceties")
	f.Bool("debug", false, "debug logging")
	f.Bool("verbose", false, "verbose request logging")

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlags(cmd, cfg)

	logCfg := logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: "stdout",
	}
	if cfg.Log.Debug {
		logCfg.Level = "debug"
	}
	if daemon, _ := cmd.Flags().GetBool("daemon"); daemon {
		logCfg.Format = "json"
		logCfg.HomeDir = cfg.Home
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Ghost",
		zap.String("version", appVersion),
		zap.String("model", cfg.Upstream.Model),
		zap.String("home", cfg.Home),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}
	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}
	return nil
}

// applyFlags overlays explicitly set flags on the loaded config. Flags
// outrank config files and environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Server.Port, _ = f.GetInt("port")
	}
	if f.Changed("upstream-url") {
		cfg.Upstream.URL, _ = f.GetString("upstream-url")
	}
	if f.Changed("swarm-nodes") {
		cfg.Upstream.SwarmNodes, _ = f.GetStringSlice("swarm-nodes")
	}
	if f.Changed("worker-nodes") {
		cfg.Upstream.WorkerNodes, _ = f.GetStringSlice("worker-nodes")
	}
	if f.Changed("visual-nodes") {
		cfg.Upstream.VisionNodes, _ = f.GetStringSlice("visual-nodes")
	}
	if f.Changed("coding-nodes") {
		cfg.Upstream.CodingNodes, _ = f.GetStringSlice("coding-nodes")
	}
	if f.Changed("embedding-nodes") {
		cfg.Upstream.EmbeddingNodes, _ = f.GetStringSlice("embedding-nodes")
	}
	if f.Changed("model") {
		cfg.Upstream.Model, _ = f.GetString("model")
	}
	if f.Changed("temperature") {
		cfg.Upstream.Temperature, _ = f.GetFloat64("temperature")
	}
	if f.Changed("max-context") {
		cfg.Upstream.MaxContext, _ = f.GetInt("max-context")
	}
	if f.Changed("api-key") {
		cfg.Server.APIKey, _ = f.GetString("api-key")
	}
	if f.Changed("default-db") {
		cfg.Database.DefaultDSN, _ = f.GetString("default-db")
	}
	if f.Changed("smart-memory") {
		cfg.Agent.SmartMemory, _ = f.GetFloat64("smart-memory")
	}
	if f.Changed("anonymous") {
		cfg.Network.Anonymous, _ = f.GetBool("anonymous")
	}
	if f.Changed("perfect-it") {
		cfg.Agent.PerfectIt, _ = f.GetBool("perfect-it")
	}
	if f.Changed("no-memory") {
		cfg.Agent.NoMemory, _ = f.GetBool("no-memory")
	}
	if f.Changed("debug") {
		cfg.Log.Debug, _ = f.GetBool("debug")
	}
	if f.Changed("verbose") {
		cfg.Log.Verbose, _ = f.GetBool("verbose")
	}
}
