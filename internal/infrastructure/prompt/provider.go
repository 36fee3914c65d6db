package prompt

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ghostagent/ghost/internal/domain/service"
)

// Provider assembles the persona and subsystem prompts. It implements
// service.PromptProvider. Any prompt can be overridden through
// $GHOST_HOME/prompts.yaml, see overrides.go.
type Provider struct {
	modelName string
	workspace string

	mu        sync.RWMutex
	overrides map[string]string
}

func NewProvider(modelName, workspace string) *Provider {
	return &Provider{
		modelName: modelName,
		workspace: workspace,
	}
}

// Compile-time interface check
var _ service.PromptProvider = (*Provider)(nil)

// System returns the persona for the intent with the profile substituted
// and the playbook and runtime environment appended. DBA and coding
// intents activate their specialist subsystems; everything else gets the
// base Ghost persona.
func (p *Provider) System(intent service.Intent, profile, playbook string) string {
	var persona string
	switch intent {
	case service.IntentDBA:
		persona = p.text("dba", dbaSystemPrompt)
	case service.IntentCoding:
		persona = p.text("coding", codeSystemPrompt)
	default:
		persona = p.text("system", systemPrompt)
	}

	if strings.TrimSpace(profile) == "" {
		profile = "(no profile on record yet)"
	}
	out := strings.ReplaceAll(persona, "{{PROFILE}}", profile)

	if pb := strings.TrimSpace(playbook); pb != "" {
		out += "\n\n### LEARNED PLAYBOOK (APPLY THESE RULES)\n" + pb
	}
	return out + "\n\n" + p.runtimeBlock()
}

func (p *Provider) Planner() string             { return p.text("planner", planningSystemPrompt) }
func (p *Provider) Critic() string              { return p.text("critic", criticSystemPrompt) }
func (p *Provider) SmartMemory() string         { return p.text("smart_memory", smartMemoryPrompt) }
func (p *Provider) PostMortem() string          { return p.text("post_mortem", postMortemPrompt) }
func (p *Provider) PerfectIt() string           { return p.text("perfect_it", perfectItPrompt) }
func (p *Provider) Dream() string               { return p.text("dream", dreamPrompt) }
func (p *Provider) SelfPlayChallenge() string   { return p.text("self_play", selfPlayChallengePrompt) }
func (p *Provider) Judge() string               { return p.text("judge", judgePrompt) }
func (p *Provider) PlaybookCompression() string { return p.text("playbook_compression", playbookCompressionPrompt) }

// FactCheck returns the forensic investigator persona for the fact_check
// tool's restricted sub-run.
func (p *Provider) FactCheck() string { return p.text("fact_check", factCheckSystemPrompt) }

// text returns the override for key when one is loaded, the built-in
// prompt otherwise.
func (p *Provider) text(key, builtin string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.overrides[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return builtin
}

// runtimeBlock is the factual environment section: host, OS, model and
// workspace. No behavioral directives belong here.
func (p *Provider) runtimeBlock() string {
	hostname, _ := os.Hostname()
	model := p.modelName
	if model == "" {
		model = "unknown"
	}
	workspace := p.workspace
	if workspace == "" {
		workspace, _ = os.UserHomeDir()
	}
	return fmt.Sprintf(
		"### RUNTIME ENVIRONMENT\nHost: %s (%s/%s)\nModel: %s\nSandbox workspace: %s\nStarted: %s",
		hostname, runtime.GOOS, runtime.GOARCH,
		model, workspace,
		time.Now().Format("2006-01-02 15:04:05 MST"),
	)
}
