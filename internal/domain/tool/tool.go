package tool

import (
	"context"
	"fmt"
	"sync"
)

// Kind classifies what a tool does to the world. The dispatcher uses it to
// decide when the redundancy seen-set must be invalidated.
type Kind string

const (
	KindRead     Kind = "read"     // read-only (file reads, searches, lookups)
	KindMutate   Kind = "mutate"   // changes sandbox or store state (write, delete, db writes)
	KindExecute  Kind = "execute"  // runs code
	KindNetwork  Kind = "network"  // outbound fetches
	KindDelegate Kind = "delegate" // hands work to other nodes
	KindMemory   Kind = "memory"   // profile / playbook / vector store writes
)

// MutatorKinds invalidate the redundancy seen-set: once the world changed,
// an identical call can legitimately return a different result.
var MutatorKinds = map[Kind]bool{
	KindMutate:  true,
	KindExecute: true,
	KindMemory:  true,
}

// ConditionalMutator is implemented by tools whose mutation depends on
// the call arguments: file_system mutates on write but not on read.
type ConditionalMutator interface {
	Mutates(args map[string]interface{}) bool
}

// CallMutates resolves whether one call with these arguments mutates
// state, preferring the tool's own per-call answer over its Kind.
func CallMutates(t Tool, args map[string]interface{}) bool {
	if cm, ok := t.(ConditionalMutator); ok {
		return cm.Mutates(args)
	}
	return MutatorKinds[t.Kind()]
}

// Tool is the contract every agent tool implements.
type Tool interface {
	// Name returns the function name exposed to the model.
	Name() string
	// Description returns the model-facing description.
	Description() string
	// Kind classifies the tool for dispatcher bookkeeping.
	Kind() Kind
	// Schema returns the JSON Schema of the arguments object.
	Schema() map[string]interface{}
	// Execute runs the tool. Errors are runtime failures; model-addressable
	// problems come back as a Result with Success=false.
	Execute(ctx context.Context, args map[string]interface{}) (*Result, error)
}

// Result is what a tool hands back to the reasoning loop.
type Result struct {
	Output   string                 // model-facing result text
	Success  bool                   //
	Metadata map[string]interface{} // exit codes and other structured extras
	Error    string                 //
}

// Definition is the OpenAI function-format entry sent upstream.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry holds the tool set. List preserves registration order so the
// model always sees a stable tool catalog.
type Registry interface {
	Register(tool Tool) error
	Get(name string) (Tool, bool)
	List() []Definition
	Names() []string
	Has(name string) bool
}

// InMemoryRegistry is the standard Registry implementation.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		tools: make(map[string]Tool),
	}
}

func (r *InMemoryRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

func (r *InMemoryRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

func (r *InMemoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Policy restricts which tools a given run may see. Specialist flows
// (fact checking, self-play) run with a narrowed catalog.
type Policy struct {
	AllowList []string // empty = everything allowed
	DenyList  []string
}

func (p *Policy) IsAllowed(toolName string) bool {
	for _, denied := range p.DenyList {
		if denied == toolName {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, allowed := range p.AllowList {
		if allowed == toolName {
			return true
		}
	}
	return false
}

// PolicyEnforcer applies a Policy over a Registry.
type PolicyEnforcer struct {
	policy   *Policy
	registry Registry
}

func NewPolicyEnforcer(policy *Policy, registry Registry) *PolicyEnforcer {
	return &PolicyEnforcer{policy: policy, registry: registry}
}

// FilteredList returns the tool catalog with the policy applied.
func (e *PolicyEnforcer) FilteredList() []Definition {
	all := e.registry.List()
	filtered := make([]Definition, 0, len(all))
	for _, def := range all {
		if e.policy.IsAllowed(def.Name) {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

func (e *PolicyEnforcer) CanExecute(toolName string) bool {
	return e.policy.IsAllowed(toolName)
}
