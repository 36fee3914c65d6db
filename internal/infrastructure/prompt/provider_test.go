package prompt

import (
	"strings"
	"testing"

	"github.com/ghostagent/ghost/internal/domain/service"
)

func TestSystem_IntentSelectsPersona(t *testing.T) {
	p := NewProvider("test-model", "/tmp/ws")

	tests := []struct {
		name   string
		intent service.Intent
		want   string
	}{
		{"conversational gets base persona", service.IntentConversational, "You are Ghost, an autonomous"},
		{"action gets base persona", service.IntentAction, "You are Ghost, an autonomous"},
		{"meta gets base persona", service.IntentMeta, "You are Ghost, an autonomous"},
		{"coding gets engineering subsystem", service.IntentCoding, "Advanced Engineering Subsystem"},
		{"dba gets database subsystem", service.IntentDBA, "Principal PostgreSQL Administrator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.System(tt.intent, "", "")
			if !strings.Contains(out, tt.want) {
				t.Errorf("persona for %s missing %q", tt.intent, tt.want)
			}
		})
	}
}

func TestSystem_ProfileSubstitution(t *testing.T) {
	p := NewProvider("test-model", "/tmp/ws")

	out := p.System(service.IntentConversational, "Name: Dana. Timezone: CET.", "")
	if strings.Contains(out, "{{PROFILE}}") {
		t.Error("profile placeholder must be substituted")
	}
	if !strings.Contains(out, "Name: Dana") {
		t.Error("profile content missing from persona")
	}

	empty := p.System(service.IntentCoding, "   ", "")
	if strings.Contains(empty, "{{PROFILE}}") {
		t.Error("empty profile must still substitute the placeholder")
	}
	if !strings.Contains(empty, "no profile on record") {
		t.Error("empty profile should be stated explicitly")
	}
}

func TestSystem_PlaybookAppended(t *testing.T) {
	p := NewProvider("test-model", "/tmp/ws")

	withRules := p.System(service.IntentAction, "", "SITUATION: docker\nSOLUTION: absolute paths")
	if !strings.Contains(withRules, "LEARNED PLAYBOOK") {
		t.Error("playbook section missing")
	}

	without := p.System(service.IntentAction, "", "")
	if strings.Contains(without, "LEARNED PLAYBOOK") {
		t.Error("empty playbook must not add a section header")
	}
}

func TestSystem_RuntimeBlock(t *testing.T) {
	p := NewProvider("Qwen3-8B-Instruct-2507", "/srv/ghost/sandbox")
	out := p.System(service.IntentConversational, "", "")

	for _, want := range []string{"RUNTIME ENVIRONMENT", "Qwen3-8B-Instruct-2507", "/srv/ghost/sandbox"} {
		if !strings.Contains(out, want) {
			t.Errorf("runtime block missing %q", want)
		}
	}
}

func TestStaticPrompts_Nonempty(t *testing.T) {
	p := NewProvider("m", "w")

	prompts := map[string]string{
		"Planner":             p.Planner(),
		"Critic":              p.Critic(),
		"SmartMemory":         p.SmartMemory(),
		"PostMortem":          p.PostMortem(),
		"PerfectIt":           p.PerfectIt(),
		"Dream":               p.Dream(),
		"SelfPlayChallenge":   p.SelfPlayChallenge(),
		"Judge":               p.Judge(),
		"PlaybookCompression": p.PlaybookCompression(),
		"FactCheck":           p.FactCheck(),
	}
	for name, text := range prompts {
		if strings.TrimSpace(text) == "" {
			t.Errorf("%s prompt is empty", name)
		}
	}
}

func TestPlanner_DeclaresOutputContract(t *testing.T) {
	p := NewProvider("m", "w")
	planner := p.Planner()
	for _, want := range []string{"required_tool", "tree_update", "next_action_id", "NO REGRESSION"} {
		if !strings.Contains(planner, want) {
			t.Errorf("planner prompt missing %q", want)
		}
	}
}
