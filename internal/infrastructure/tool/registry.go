package tool

import (
	"github.com/ghostagent/ghost/internal/domain/memory"
	"github.com/ghostagent/ghost/internal/domain/service"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// ToolLayerDeps aggregates all external dependencies needed by the tool
// layer. This is the single configuration point for the tool subsystem.
type ToolLayerDeps struct {
	// Required
	Registry domaintool.Registry
	Logger   *zap.Logger

	// Workspace & network
	Workspace string  // sandbox root all file paths are jailed under
	Egress    *Egress // Tor-capable HTTP client factory

	// Upstream fleet
	Upstream service.UpstreamClient
	Model    string // default model name for worker calls

	// Memory & state
	Memory   *memory.Manager
	Profile  ProfileAdmin
	Playbook service.PlaybookSource
	Pad      ScratchPad

	// Subsystems (nil disables the dependent tools)
	Runner    ScriptRunner  // nil = execute not registered
	Scheduler TaskScheduler // nil = manage_tasks not registered
	Dreamer   DreamRunner   // nil = dream_mode/self_play not registered

	// Database
	DefaultDB string // default postgres DSN for postgres_admin

	// Prompt texts
	FactCheckPersona string
}

// RegisterAllTools registers all tools in one place. This is the ONLY
// tool registration entry point. Adding a new tool? Add it here.
//
// Registration order:
//  1. Sandbox (file_system, execute)
//  2. Network (web_search, deep_research, fact_check, system_utility)
//  3. Memory (knowledge_base, recall, update_profile, delete_profile_key,
//     learn_skill, scratchpad)
//  4. Orchestration (manage_tasks, delegate_to_swarm, replan)
//  5. Self-improvement (dream_mode, self_play)
//  6. Vision (only when the vision pool has nodes)
//  7. Database (postgres_admin)
func RegisterAllTools(deps ToolLayerDeps) int {
	log := deps.Logger
	var tools []domaintool.Tool

	// ── 1. Sandbox ──
	tools = append(tools, NewFileSystemTool(deps.Workspace, deps.Egress, log))
	if deps.Runner != nil {
		tools = append(tools, NewExecuteTool(deps.Runner, log))
	}

	// ── 2. Network ──
	search := NewWebSearchTool(deps.Egress, log)
	research := NewDeepResearchTool(search, deps.Egress, deps.Upstream, deps.Model, log)
	tools = append(tools,
		search,
		research,
		NewFactCheckTool(research, deps.Upstream, deps.FactCheckPersona, deps.Model, log),
		NewSystemUtilityTool(deps.Egress, deps.Upstream, deps.Runner, log),
	)

	// ── 3. Memory ──
	tools = append(tools,
		NewKnowledgeBaseTool(deps.Memory, deps.Egress, deps.Workspace, log),
		NewRecallTool(deps.Memory, log),
		NewUpdateProfileTool(deps.Profile, log),
		NewDeleteProfileKeyTool(deps.Profile, log),
		NewLearnSkillTool(deps.Playbook, log),
		NewScratchpadTool(deps.Pad, log),
	)

	// ── 4. Orchestration ──
	if deps.Scheduler != nil {
		tools = append(tools, NewManageTasksTool(deps.Scheduler, log))
	}
	tools = append(tools,
		NewDelegateToSwarmTool(deps.Upstream, deps.Pad, deps.Model, log),
		NewReplanTool(),
	)

	// ── 5. Self-improvement ──
	if deps.Dreamer != nil {
		tools = append(tools,
			NewDreamModeTool(deps.Dreamer, log),
			NewSelfPlayTool(deps.Dreamer, log),
		)
	}

	// ── 6. Vision ──
	if deps.Upstream != nil && deps.Upstream.PoolSize(service.PoolVision) > 0 {
		tools = append(tools, NewVisionAnalysisTool(deps.Upstream, deps.Egress, deps.Workspace, deps.Model, log))
	}

	// ── 7. Postgres ──
	tools = append(tools, NewPostgresAdminTool(deps.DefaultDB, log))

	// ── Register everything, schema-validated ──
	registered := 0
	for _, t := range tools {
		if err := deps.Registry.Register(WithValidation(t, log)); err != nil {
			log.Warn("Failed to register tool",
				zap.String("tool", t.Name()),
				zap.Error(err),
			)
		} else {
			log.Info("Registered tool", zap.String("tool", t.Name()))
			registered++
		}
	}

	log.Info("Tool layer initialized", zap.Int("total_registered", registered))
	return registered
}
