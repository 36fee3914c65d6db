// Package application wires the infrastructure into a running agent:
// upstream fleet, memory, state stores, sandbox, scheduler, tool layer,
// the reasoning loop and the HTTP surface.
package application

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	contextpkg "github.com/ghostagent/ghost/internal/domain/context"
	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/memory"
	"github.com/ghostagent/ghost/internal/domain/service"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"github.com/ghostagent/ghost/internal/infrastructure/config"
	"github.com/ghostagent/ghost/internal/infrastructure/embedding"
	"github.com/ghostagent/ghost/internal/infrastructure/eventbus"
	"github.com/ghostagent/ghost/internal/infrastructure/llm"
	"github.com/ghostagent/ghost/internal/infrastructure/llm/openai"
	"github.com/ghostagent/ghost/internal/infrastructure/monitoring"
	"github.com/ghostagent/ghost/internal/infrastructure/prompt"
	"github.com/ghostagent/ghost/internal/infrastructure/sandbox"
	"github.com/ghostagent/ghost/internal/infrastructure/scheduler"
	"github.com/ghostagent/ghost/internal/infrastructure/state"
	"github.com/ghostagent/ghost/internal/infrastructure/tool"
	"github.com/ghostagent/ghost/internal/infrastructure/vectorstore"
	httpiface "github.com/ghostagent/ghost/internal/interfaces/http"
	"github.com/ghostagent/ghost/internal/interfaces/websocket"
	"github.com/ghostagent/ghost/pkg/safego"
	"go.uber.org/zap"
)

// hashEmbedderDim is the local fallback dimension when no embedding
// model is configured.
const hashEmbedderDim = 384

// App is the dependency container. Build with NewApp, then Start/Stop.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	router   *llm.Router
	memory   *memory.Manager
	profile  *state.ProfileStore
	playbook *state.PlaybookStore
	scratch  *state.Scratchpad
	prompts  *prompt.Provider
	runner   tool.ScriptRunner
	sched    *scheduler.Scheduler
	registry domaintool.Registry
	dreamer  *service.Dreamer
	loop     *service.Loop

	monitor *monitoring.Monitor
	bus     eventbus.Bus
	hub     *websocket.Hub
	http    *httpiface.Server

	cancelBg context.CancelFunc
}

func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		cfg:    cfg,
		logger: logger,
	}

	if err := config.Bootstrap(cfg.Home, logger); err != nil {
		return nil, fmt.Errorf("bootstrap home: %w", err)
	}

	for _, step := range []struct {
		name string
		fn   func() error
	}{
		{"upstream", app.initUpstream},
		{"memory", app.initMemory},
		{"state", app.initState},
		{"sandbox", app.initSandbox},
		{"scheduler", app.initScheduler},
		{"tools", app.initTools},
		{"loop", app.initLoop},
		{"interfaces", app.initInterfaces},
	} {
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("init %s: %w", step.name, err)
		}
	}
	return app, nil
}

// initUpstream builds the pool router from the node fleet config.
func (app *App) initUpstream() error {
	app.router = llm.NewRouter(app.logger)

	mainNode := llm.Node{URL: strings.TrimRight(app.cfg.Upstream.URL, "/"), Model: app.cfg.Upstream.Model}
	mainClient, err := app.newNodeClient(mainNode)
	if err != nil {
		return err
	}
	app.router.AddNodes(service.PoolMain, mainClient)

	pools := []struct {
		pool  service.Pool
		specs []string
	}{
		{service.PoolSwarm, app.cfg.Upstream.SwarmNodes},
		{service.PoolWorker, app.cfg.Upstream.WorkerNodes},
		{service.PoolVision, app.cfg.Upstream.VisionNodes},
		{service.PoolCoding, app.cfg.Upstream.CodingNodes},
		{service.PoolEmbeddings, app.cfg.Upstream.EmbeddingNodes},
	}
	for _, p := range pools {
		for _, spec := range p.specs {
			for _, node := range llm.ParseNodes(spec) {
				client, err := app.newNodeClient(node)
				if err != nil {
					return err
				}
				app.router.AddNodes(p.pool, client)
			}
		}
		if n := app.router.PoolSize(p.pool); n > 0 {
			app.logger.Info("Pool registered",
				zap.String("pool", string(p.pool)),
				zap.Int("nodes", n),
			)
		}
	}
	return nil
}

// newNodeClient dials remote upstreams through the Tor socks5 proxy in
// anonymous mode. Loopback nodes always dial direct; a broken proxy is
// an error, not a silent direct fallback, so anonymity never leaks.
func (app *App) newNodeClient(node llm.Node) (llm.NodeClient, error) {
	if app.cfg.Network.Anonymous && !llm.Loopback(node.URL) {
		client, err := openai.NewProxied(node, app.cfg.Network.TorProxy, app.logger)
		if err != nil {
			return nil, fmt.Errorf("proxy upstream %s: %w", node.URL, err)
		}
		return client, nil
	}
	return openai.New(node, app.logger), nil
}

// initMemory selects the embedder and vector store. A configured embed
// model routes through the embeddings pool; otherwise the deterministic
// local hash embedder keeps memory functional offline.
func (app *App) initMemory() error {
	var embedder memory.EmbeddingProvider
	if app.cfg.Memory.EmbedModel != "" {
		up, err := embedding.NewUpstreamEmbedder(app.router, app.cfg.Memory.EmbedModel, app.logger)
		if err != nil {
			return fmt.Errorf("probe embed model: %w", err)
		}
		embedder = up
	} else {
		embedder = memory.NewHashEmbedder(hashEmbedderDim)
	}

	var store memory.VectorStore
	switch app.cfg.Memory.StoreType {
	case "memory":
		store = memory.NewInMemoryVectorStore()
	default:
		lance, err := vectorstore.NewLanceDBVectorStore(app.cfg.Memory.StorePath, embedder.Dimension(), app.logger)
		if err != nil {
			app.logger.Warn("LanceDB unavailable, memory is process-local", zap.Error(err))
			store = memory.NewInMemoryVectorStore()
		} else {
			store = lance
		}
	}

	app.memory = memory.NewManager(store, embedder, app.logger)
	return nil
}

func (app *App) initState() error {
	profile, err := state.NewProfileStore(app.cfg.StateDir(), app.logger)
	if err != nil {
		return err
	}
	playbook, err := state.NewPlaybookStore(app.cfg.StateDir(), app.memory, app.logger)
	if err != nil {
		return err
	}
	app.profile = profile
	app.playbook = playbook
	app.scratch = state.NewScratchpad()
	app.prompts = prompt.NewProvider(app.cfg.Upstream.Model, app.cfg.SandboxDir())
	if err := app.prompts.LoadOverrides(app.promptOverridesPath()); err != nil {
		app.logger.Warn("Ignoring unreadable prompt overrides", zap.Error(err))
	}
	return nil
}

func (app *App) promptOverridesPath() string {
	return filepath.Join(app.cfg.Home, prompt.OverridesFile)
}

func (app *App) initSandbox() error {
	sbCfg := sandbox.DefaultConfig(app.cfg.SandboxDir())
	sbCfg.Backend = app.cfg.Sandbox.Backend
	sbCfg.Network = app.cfg.Sandbox.Network
	if app.cfg.Sandbox.Image != "" {
		sbCfg.Image = app.cfg.Sandbox.Image
	}
	if app.cfg.Sandbox.Timeout > 0 {
		sbCfg.Timeout = app.cfg.Sandbox.Timeout
	}

	runner, err := sandbox.New(sbCfg, app.logger)
	if err != nil {
		return err
	}
	app.runner = runner
	app.logger.Info("Sandbox ready", zap.String("backend", runner.Backend()))
	return nil
}

// initScheduler arms persisted tasks. The run callback resolves the
// loop at fire time since the loop is built later in the init sequence.
func (app *App) initScheduler() error {
	sched, err := scheduler.New(app.cfg.Database.SchedulerPath, app.runBackground, app.logger)
	if err != nil {
		return err
	}
	app.sched = sched
	return nil
}

func (app *App) initTools() error {
	torProxy := ""
	if app.cfg.Network.Anonymous {
		torProxy = app.cfg.Network.TorProxy
	}
	egress := tool.NewEgress(torProxy, 60*time.Second, app.logger)

	app.dreamer = service.NewDreamer(
		app.router, app.memory, app.playbook, app.prompts,
		app.runDirect, app.cfg.Upstream.Model, app.logger,
	)

	app.registry = domaintool.NewInMemoryRegistry()
	count := tool.RegisterAllTools(tool.ToolLayerDeps{
		Registry:         app.registry,
		Logger:           app.logger,
		Workspace:        app.cfg.SandboxDir(),
		Egress:           egress,
		Upstream:         app.router,
		Model:            app.cfg.Upstream.Model,
		Memory:           app.memory,
		Profile:          app.profile,
		Playbook:         app.playbook,
		Pad:              app.scratch,
		Runner:           app.runner,
		Scheduler:        app.sched,
		Dreamer:          app.dreamer,
		DefaultDB:        app.cfg.Database.DefaultDSN,
		FactCheckPersona: app.prompts.FactCheck(),
	})
	app.logger.Info("Tool layer ready", zap.Int("tools", count))
	return nil
}

func (app *App) initLoop() error {
	window := contextpkg.NewWindow(contextpkg.WindowConfig{
		MaxContext: app.cfg.Upstream.MaxContext,
		Buffer:     500,
		KeepRecent: 4,
	})
	condenser := contextpkg.NewCondenser(&workerClient{router: app.router, model: app.cfg.Upstream.Model})

	var memWriter *service.MemoryWriter
	if !app.cfg.Agent.NoMemory {
		memWriter = service.NewMemoryWriter(
			app.router, app.memory, app.profile,
			app.prompts.SmartMemory(), app.cfg.Upstream.Model,
			app.cfg.Agent.SmartMemory, app.logger,
		)
	}
	postMort := service.NewPostMortem(
		app.router, app.playbook,
		app.prompts.PostMortem(), app.cfg.Upstream.Model, app.logger,
	)

	app.monitor = monitoring.NewMonitor(app.logger)
	hooks := service.NewHookChain(monitoring.NewMetricsHook(app.monitor))

	app.bus = app.buildBus()
	app.loop = service.NewLoop(
		app.router, app.registry, window, condenser,
		app.prompts, app.profile, app.playbook, app.scratch,
		memWriter, postMort, hooks, eventbus.NewSink(app.bus),
		service.LoopConfig{
			Model:                app.cfg.Upstream.Model,
			MaxTurns:             app.cfg.Agent.MaxTurns,
			Temperature:          app.cfg.Upstream.Temperature,
			MaxConcurrent:        app.cfg.Server.MaxConcurrent,
			SmartMemoryThreshold: app.cfg.Agent.SmartMemory,
			PerfectIt:            app.cfg.Agent.PerfectIt,
		},
		app.logger,
	)
	return nil
}

// buildBus prefers the journaled bus so the event feed survives
// restarts; an unopenable journal degrades to the in-memory bus.
func (app *App) buildBus() eventbus.Bus {
	bus, err := eventbus.NewJournalBus(eventbus.JournalConfig{
		Dir: app.cfg.LogsDir(),
	}, app.logger)
	if err != nil {
		app.logger.Warn("Event journal unavailable, events are volatile", zap.Error(err))
		return eventbus.NewInMemoryBus(app.logger, 256)
	}
	return bus
}

func (app *App) initInterfaces() error {
	app.hub = websocket.NewHub(app.logger)
	app.hub.Attach(app.bus)

	app.http = httpiface.NewServer(
		httpiface.Config{
			Host:   app.cfg.Server.Host,
			Port:   app.cfg.Server.Port,
			APIKey: app.cfg.Server.APIKey,
			Debug:  app.cfg.Log.Debug,
		},
		httpiface.Deps{
			Loop:           app.loop,
			Router:         app.router,
			Monitor:        app.monitor,
			Hub:            app.hub,
			Model:          app.cfg.Upstream.Model,
			SandboxBackend: app.runner.Backend(),
		},
		app.logger,
	)
	return nil
}

// runBackground executes a scheduler-originated prompt through the loop.
func (app *App) runBackground(ctx context.Context, promptText string) error {
	req := &entity.RunRequest{
		RequestID:  "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Messages:   []entity.Message{entity.UserMessage(promptText)},
		Background: true,
	}
	_, err := app.loop.Run(ctx, req, nil)
	return err
}

// runDirect is the dream cycle's entry into the loop.
func (app *App) runDirect(ctx context.Context, req *entity.RunRequest) (*entity.RunResult, error) {
	return app.loop.Run(ctx, req, nil)
}

// Start brings up the background services and the HTTP listener.
func (app *App) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	app.cancelBg = cancel

	safego.Go(app.logger, "ws-hub", func() { app.hub.Run(bgCtx) })
	safego.Go(app.logger, "metrics-collector", func() {
		app.monitor.StartCollector(bgCtx, time.Minute)
	})
	if err := app.prompts.WatchOverrides(bgCtx, app.promptOverridesPath(), app.logger); err != nil {
		app.logger.Warn("Prompt override watcher unavailable", zap.Error(err))
	}

	if err := app.http.Start(ctx); err != nil {
		return err
	}
	app.logger.Info("Ghost is up",
		zap.String("host", app.cfg.Server.Host),
		zap.Int("port", app.cfg.Server.Port),
		zap.String("model", app.cfg.Upstream.Model),
	)
	return nil
}

// Stop shuts the surface down first so no new runs arrive, then the
// subsystems.
func (app *App) Stop(ctx context.Context) error {
	var firstErr error
	if err := app.http.Stop(ctx); err != nil {
		firstErr = err
	}
	if app.cancelBg != nil {
		app.cancelBg()
	}
	if app.sched != nil {
		app.sched.Close()
	}
	if closer, ok := app.runner.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if app.bus != nil {
		app.bus.Close()
	}
	app.logger.Info("Ghost stopped")
	return firstErr
}

// Loop exposes the reasoning engine for embedded callers.
func (app *App) Loop() *service.Loop { return app.loop }

// Dreamer exposes the consolidation cycle for CLI triggers.
func (app *App) Dreamer() *service.Dreamer { return app.dreamer }

// workerClient adapts the router's worker pool to the condenser's
// one-shot generation surface.
type workerClient struct {
	router *llm.Router
	model  string
}

func (w *workerClient) Generate(ctx context.Context, promptText string) (string, error) {
	resp, err := w.router.Chat(ctx, service.PoolWorker, &service.ChatRequest{
		Model:       w.model,
		Messages:    []entity.Message{entity.UserMessage(promptText)},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
