package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	contextpkg "github.com/ghostagent/ghost/internal/domain/context"
	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/tool"
	apperrors "github.com/ghostagent/ghost/pkg/errors"
	"github.com/ghostagent/ghost/pkg/safego"
	"go.uber.org/zap"
)

// Per-run invocation caps. Heavy network tools get a higher allowance
// than the default because research runs legitimately fan wide.
const (
	defaultUsageCap  = 10
	executeUsageCap  = 20
	researchUsageCap = 10

	maxParallelTools = 4

	// Three identical calls or three execution failures and the run is
	// force-stopped.
	maxRedundancyStrikes = 3
	maxExecFailures      = 3
)

// system_utility answers change with the clock, so identical calls are
// never redundant.
var redundancyExempt = map[string]bool{
	"system_utility": true,
}

// Tools whose raw output the model must see verbatim. Condensing these
// would destroy exact lines, search hits, or schema dumps.
var condenseExempt = map[string]bool{
	"file_system":    true,
	"recall":         true,
	"deep_research":  true,
	"web_search":     true,
	"knowledge_base": true,
	"postgres_admin": true,
}

// redundancyHints steer the model to a different strategy after a
// blocked duplicate call.
var redundancyHints = map[string]string{
	"web_search":  "Rephrase the query or use deep_research for a synthesized report.",
	"recall":      "The vector store already answered this. Use file_system(operation='search') for exact matches.",
	"file_system": "You already performed this exact file operation. Check the previous output above.",
	"execute":     "Identical code was already executed. Change the logic before retrying.",
}

var exitCodePattern = regexp.MustCompile(`EXIT CODE:\s*(\d+)`)

// DispatchStats accumulates guardrail counters across one run.
type DispatchStats struct {
	RedundancyStrikes int
	ExecFailures      int
	CapBreaches       int
	Usage             map[string]int
}

// ForceStop reports whether a strike counter tripped or a tool blew
// through its per-run usage cap. A capped run has stopped making
// progress and must wrap up with what it has.
func (s *DispatchStats) ForceStop() bool {
	return s.RedundancyStrikes >= maxRedundancyStrikes ||
		s.ExecFailures >= maxExecFailures ||
		s.CapBreaches > 0
}

// Dispatcher fans a batch of tool calls out to the registry, enforcing
// the redundancy guard, usage caps, and the critic gate. Results come
// back in call order regardless of completion order.
type Dispatcher struct {
	registry  tool.Registry
	enforcer  *tool.PolicyEnforcer
	condenser *contextpkg.Condenser
	critic    *Critic
	logger    *zap.Logger

	mu    sync.Mutex
	seen  map[string]bool
	stats DispatchStats
}

func NewDispatcher(registry tool.Registry, condenser *contextpkg.Condenser, critic *Critic, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:  registry,
		condenser: condenser,
		critic:    critic,
		logger:    logger.With(zap.String("component", "dispatcher")),
		seen:      make(map[string]bool),
		stats:     DispatchStats{Usage: make(map[string]int)},
	}
}

// SetPolicy narrows the visible tool set for specialist runs.
func (d *Dispatcher) SetPolicy(p *tool.Policy) {
	if p == nil {
		d.enforcer = nil
		return
	}
	d.enforcer = tool.NewPolicyEnforcer(p, d.registry)
}

// Stats returns a snapshot of the guardrail counters.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	usage := make(map[string]int, len(d.stats.Usage))
	for k, v := range d.stats.Usage {
		usage[k] = v
	}
	return DispatchStats{
		RedundancyStrikes: d.stats.RedundancyStrikes,
		ExecFailures:      d.stats.ExecFailures,
		CapBreaches:       d.stats.CapBreaches,
		Usage:             usage,
	}
}

// ActionHash is the redundancy fingerprint of one call: the tool name
// plus its arguments serialized with sorted keys. Two calls with the
// same hash would observe the same world, so the second is noise.
func ActionHash(name string, args map[string]interface{}) string {
	return name + ":" + canonicalJSON(args)
}

func canonicalJSON(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%q:%s", k, canonicalJSON(t[k])))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, canonicalJSON(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// toolOutcome pairs one call with its finished result.
type toolOutcome struct {
	call    entity.ToolCall
	message entity.Message
	failed  bool
}

// Dispatch executes every call in the batch and returns one tool message
// per call, in the original order. Guard rejections become tool messages
// too: the model reads its own mistakes out of the transcript.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []entity.ToolCall) []entity.Message {
	outcomes := make([]toolOutcome, len(calls))

	sem := make(chan struct{}, maxParallelTools)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc entity.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[idx] = d.runOne(ctx, tc)
		}(i, call)
	}
	wg.Wait()

	messages := make([]entity.Message, len(outcomes))
	for i, o := range outcomes {
		messages[i] = o.message
	}
	return messages
}

func (d *Dispatcher) runOne(ctx context.Context, call entity.ToolCall) toolOutcome {
	name := call.Function.Name
	reply := func(content string, failed bool) toolOutcome {
		return toolOutcome{
			call:    call,
			message: entity.ToolMessage(call.ID, name, content),
			failed:  failed,
		}
	}

	if d.enforcer != nil && !d.enforcer.CanExecute(name) {
		return reply(fmt.Sprintf("Error: tool '%s' is not available in this context.", name), true)
	}

	t, ok := d.registry.Get(name)
	if !ok {
		return reply(fmt.Sprintf("Error: unknown tool '%s'. Use only the tools listed in your catalog.", name), true)
	}

	args, err := call.ParseArguments()
	if err != nil {
		d.logger.Warn("Malformed tool arguments",
			zap.String("tool", name), zap.Error(err))
		return reply(fmt.Sprintf("Error: arguments for '%s' are not valid JSON: %v", name, err), true)
	}

	if gerr := d.admit(name, args); gerr != nil {
		d.logger.Warn("Tool call blocked",
			zap.String("tool", name), zap.Error(gerr))
		return reply(guardMessage(name, gerr), true)
	}

	// Critic gate: substantial scripts get one adversarial review before
	// they touch the sandbox. The critic may rewrite the code in place,
	// or veto the call; a vetoed script never reaches the sandbox.
	if d.critic != nil && name == "execute" {
		var blocked string
		args, blocked = d.critic.Review(ctx, args, d.execFailures())
		if blocked != "" {
			return reply(fmt.Sprintf("RED TEAM BLOCK: %s. Rewrite the code.", blocked), true)
		}
	}

	d.logger.Info("Tool dispatch",
		zap.String("tool", name), zap.String("call_id", call.ID))

	var result *tool.Result
	rerr := safego.Run("tool:"+name, func() error {
		var execErr error
		result, execErr = t.Execute(ctx, args)
		return execErr
	})
	if rerr != nil {
		d.recordExecFailure(name)
		return reply(fmt.Sprintf("Error: tool '%s' failed: %v", name, rerr), true)
	}
	if result == nil {
		result = &tool.Result{Output: "", Success: true}
	}

	output := strings.TrimRight(result.Output, "\n")
	failed := !result.Success || isFailureOutput(name, output, result)
	if failed {
		d.recordExecFailure(name)
	} else if tool.CallMutates(t, args) {
		// The world changed; every previous fingerprint is stale.
		d.clearSeen()
	}

	if d.condenser != nil && !condenseExempt[name] {
		output = d.condenser.Condense(ctx, output)
	}
	if result.Error != "" && !strings.Contains(output, result.Error) {
		output = strings.TrimSpace(output + "\nError: " + result.Error)
	}
	if output == "" {
		output = "(no output)"
	}
	return reply(output, failed)
}

// admit applies the usage cap and the redundancy guard under one lock.
func (d *Dispatcher) admit(name string, args map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cap := defaultUsageCap
	switch name {
	case "execute":
		cap = executeUsageCap
	case "deep_research", "web_search":
		cap = researchUsageCap
	}
	if d.stats.Usage[name] >= cap {
		d.stats.CapBreaches++
		return apperrors.NewUsageCap(
			fmt.Sprintf("tool '%s' exceeded its per-run limit of %d calls", name, cap))
	}

	if !redundancyExempt[name] {
		hash := ActionHash(name, args)
		if d.seen[hash] {
			d.stats.RedundancyStrikes++
			return apperrors.NewRedundancyBlocked(
				fmt.Sprintf("identical '%s' call already executed this run", name))
		}
		d.seen[hash] = true
	}

	d.stats.Usage[name]++
	return nil
}

func (d *Dispatcher) clearSeen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]bool)
}

func (d *Dispatcher) recordExecFailure(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.ExecFailures++
}

func (d *Dispatcher) execFailures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats.ExecFailures
}

func guardMessage(name string, err error) string {
	if apperrors.IsRedundancy(err) {
		msg := fmt.Sprintf("SYSTEM GUARD: Blocked redundant call to '%s'. You already ran this exact action and have its result above.", name)
		if hint, ok := redundancyHints[name]; ok {
			msg += " " + hint
		}
		return msg
	}
	if apperrors.IsUsageCap(err) {
		return fmt.Sprintf("SYSTEM GUARD: '%s' hit its usage limit for this run. Work with the data you already gathered.", name)
	}
	return fmt.Sprintf("SYSTEM GUARD: call to '%s' rejected: %v", name, err)
}

// isFailureOutput classifies an execution result the tool itself marked
// successful. Sandbox runs report through the EXIT CODE banner; a
// traceback without a banner counts as a failure too.
func isFailureOutput(name, output string, result *tool.Result) bool {
	if name != "execute" {
		return false
	}
	if code, ok := result.Metadata["exit_code"]; ok {
		switch v := code.(type) {
		case int:
			return v != 0
		case float64:
			return v != 0
		}
	}
	return ScrapeExitCode(output) != 0
}

// ScrapeExitCode extracts the exit code from an execution banner. No
// banner means the output itself is inspected for failure markers.
func ScrapeExitCode(output string) int {
	if m := exitCodePattern.FindStringSubmatch(output); m != nil {
		code := 0
		fmt.Sscanf(m[1], "%d", &code)
		return code
	}
	for _, marker := range []string{"Traceback (most recent call last)", "Error:", "Exception:"} {
		if strings.Contains(output, marker) {
			return 1
		}
	}
	return 0
}
