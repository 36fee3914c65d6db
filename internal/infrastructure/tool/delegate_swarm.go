package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/domain/service"
	"github.com/ghostagent/ghost/internal/domain/swarm"
	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"github.com/ghostagent/ghost/pkg/safego"
	"go.uber.org/zap"
)

const (
	swarmInputCap     = 20000
	swarmTaskTimeout  = 5 * time.Minute
	swarmGraphTimeout = 15 * time.Minute
	swarmMaxParallel  = 4
)

// DelegateToSwarmTool fans subtasks out to the swarm pool. Tasks may
// name other tasks in depends_on; dependent tasks wait for their inputs
// and receive the upstream results inline. The tool returns
// immediately; workers write their output to the scratchpad under each
// task's output_key, where the next planning turn picks it up.
type DelegateToSwarmTool struct {
	upstream service.UpstreamClient
	pad      ScratchPad
	model    string
	logger   *zap.Logger
}

func NewDelegateToSwarmTool(upstream service.UpstreamClient, pad ScratchPad, model string, logger *zap.Logger) *DelegateToSwarmTool {
	return &DelegateToSwarmTool{
		upstream: upstream,
		pad:      pad,
		model:    model,
		logger:   logger.With(zap.String("tool", "delegate_to_swarm")),
	}
}

func (t *DelegateToSwarmTool) Name() string          { return "delegate_to_swarm" }
func (t *DelegateToSwarmTool) Kind() domaintool.Kind { return domaintool.KindDelegate }
func (t *DelegateToSwarmTool) Description() string {
	return "Delegate subtasks to parallel swarm workers. Independent tasks run concurrently; a task listing other output_keys in depends_on runs after them and sees their results. Results appear on the scratchpad under each output_key. Check the scratchpad on a later turn; do not re-delegate."
}

func (t *DelegateToSwarmTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tasks": map[string]interface{}{
				"type":        "array",
				"description": "Subtasks to run. Tasks without depends_on run in parallel.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"instruction": map[string]interface{}{
							"type":        "string",
							"description": "What the worker should do.",
						},
						"input_data": map[string]interface{}{
							"type":        "string",
							"description": "The data the worker operates on.",
						},
						"output_key": map[string]interface{}{
							"type":        "string",
							"description": "Scratchpad key the result is written to.",
						},
						"depends_on": map[string]interface{}{
							"type":        "array",
							"items":       map[string]interface{}{"type": "string"},
							"description": "output_keys of tasks in this batch whose results this task needs.",
						},
						"target_model": map[string]interface{}{
							"type":        "string",
							"description": "Optional model affinity hint.",
						},
					},
					"required": []string{"instruction", "input_data", "output_key"},
				},
			},
		},
		"required": []string{"tasks"},
	}
}

func (t *DelegateToSwarmTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	rawTasks, okCast := args["tasks"].([]interface{})
	if !okCast || len(rawTasks) == 0 {
		return fail("Error: 'tasks' parameter must be a non-empty array")
	}

	var tasks []swarm.Task
	for i, raw := range rawTasks {
		m, okCast := raw.(map[string]interface{})
		if !okCast {
			return fail("Error: task %d is not an object", i)
		}
		task := swarm.Task{
			Key:         strings.TrimSpace(strArg(m, "output_key")),
			Instruction: strArg(m, "instruction"),
			Input:       strArg(m, "input_data"),
			Model:       strArg(m, "target_model"),
		}
		if deps, okCast := m["depends_on"].([]interface{}); okCast {
			for _, d := range deps {
				if key, okCast := d.(string); okCast && strings.TrimSpace(key) != "" {
					task.DependsOn = append(task.DependsOn, strings.TrimSpace(key))
				}
			}
		}
		if task.Instruction == "" || task.Key == "" {
			return fail("Error: task %d is missing 'instruction' or 'output_key'", i)
		}
		if len(task.Input) > swarmInputCap {
			task.Input = task.Input[:swarmInputCap]
		}
		tasks = append(tasks, task)
	}

	graph, err := swarm.NewGraph(tasks, t.runWorker, swarm.GraphConfig{
		MaxParallel: swarmMaxParallel,
		OnTaskDone:  t.publish,
	}, t.logger)
	if err != nil {
		return fail("Error: invalid task graph: %v", err)
	}

	keys := make([]string, len(tasks))
	for i, task := range tasks {
		keys[i] = task.Key
		t.pad.Set(task.Key, "[PENDING: swarm worker running...]")
	}

	// Detached from the dispatching request: delegated work outlives
	// the turn that scheduled it.
	safego.Go(t.logger, "swarm-graph", func() {
		ctx, cancel := context.WithTimeout(context.Background(), swarmGraphTimeout)
		defer cancel()
		graph.Run(ctx)
	})

	return ok(fmt.Sprintf(
		"Dispatched %d task(s) to the swarm. Results will appear on the scratchpad under: %s. Continue with other work and check the scratchpad on a later turn.",
		len(tasks), strings.Join(keys, ", ")))
}

// runWorker executes one delegated task on its own deadline. Results
// from dependency tasks are spliced into the worker prompt.
func (t *DelegateToSwarmTool) runWorker(ctx context.Context, task swarm.Task, deps map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, swarmTaskTimeout)
	defer cancel()

	model := t.model
	if task.Model != "" {
		model = task.Model
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSTRUCTION: %s\n\nINPUT DATA:\n%s", task.Instruction, task.Input)
	for _, dep := range task.DependsOn {
		fmt.Fprintf(&b, "\n\nRESULT OF '%s':\n%s", dep, deps[dep])
	}

	resp, err := t.upstream.Chat(ctx, service.PoolSwarm, &service.ChatRequest{
		Messages: []entity.Message{
			entity.SystemMessage("You are a focused worker node. Complete the instruction against the input data. Output only the result, no preamble."),
			entity.UserMessage(b.String()),
		},
		Model:       model,
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// publish mirrors each settled task onto the scratchpad.
func (t *DelegateToSwarmTool) publish(out swarm.Outcome) {
	switch out.Status {
	case swarm.StatusDone:
		t.pad.Set(out.Key, out.Result)
	case swarm.StatusSkipped:
		t.pad.Set(out.Key, fmt.Sprintf("[SKIPPED: %v]", out.Err))
		t.logger.Warn("Swarm task skipped",
			zap.String("output_key", out.Key), zap.Error(out.Err))
	default:
		t.pad.Set(out.Key, fmt.Sprintf("[FAILED: %v]", out.Err))
		t.logger.Warn("Swarm task failed",
			zap.String("output_key", out.Key), zap.Error(out.Err))
	}
}
