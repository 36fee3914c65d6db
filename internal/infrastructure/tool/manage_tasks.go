package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	domaintool "github.com/ghostagent/ghost/internal/domain/tool"
	"go.uber.org/zap"
)

// ScheduledTask is the tool-facing view of a persistent job.
type ScheduledTask struct {
	ID       string
	Name     string
	Schedule string
	Prompt   string
	Enabled  bool
	NextRun  time.Time
}

// TaskScheduler is what manage_tasks needs from the cron scheduler.
type TaskScheduler interface {
	CreateTask(name, schedule, prompt string) (string, error)
	ListTasks() []ScheduledTask
	StopTask(id string) error
	StopAll() int
}

// ManageTasksTool drives the persistent job scheduler.
type ManageTasksTool struct {
	sched  TaskScheduler
	logger *zap.Logger
}

func NewManageTasksTool(sched TaskScheduler, logger *zap.Logger) *ManageTasksTool {
	return &ManageTasksTool{
		sched:  sched,
		logger: logger.With(zap.String("tool", "manage_tasks")),
	}
}

func (t *ManageTasksTool) Name() string          { return "manage_tasks" }
func (t *ManageTasksTool) Kind() domaintool.Kind { return domaintool.KindMutate }
func (t *ManageTasksTool) Description() string {
	return "Manage scheduled background tasks: create recurring jobs, list them, or stop them."
}

func (t *ManageTasksTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"create", "list", "stop", "stop_all"},
			},
			"task_name": map[string]interface{}{
				"type":        "string",
				"description": "Human-readable name for the new task.",
			},
			"cron_expression": map[string]interface{}{
				"type":        "string",
				"description": "Standard cron format OR 'interval:seconds' (e.g. 'interval:300' for every 5 minutes).",
			},
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "The instruction the agent executes each time the task fires.",
			},
			"task_identifier": map[string]interface{}{
				"type":        "string",
				"description": "Task id (task_xxxx) for 'stop'.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ManageTasksTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	switch strArg(args, "action") {
	case "create":
		name := strings.TrimSpace(strArg(args, "task_name"))
		schedule := strings.TrimSpace(strArg(args, "cron_expression"))
		prompt := strings.TrimSpace(strArg(args, "prompt"))
		if name == "" || schedule == "" || prompt == "" {
			return fail("Error: 'task_name', 'cron_expression' and 'prompt' are required for create")
		}
		id, err := t.sched.CreateTask(name, schedule, prompt)
		if err != nil {
			return fail("Error: cannot schedule task: %v", err)
		}
		t.logger.Info("Task scheduled", zap.String("id", id), zap.String("schedule", schedule))
		return ok(fmt.Sprintf("Task '%s' scheduled as %s (%s).", name, id, schedule))

	case "list":
		tasks := t.sched.ListTasks()
		if len(tasks) == 0 {
			return ok("No scheduled tasks.")
		}
		var lines []string
		for _, task := range tasks {
			status := "enabled"
			if !task.Enabled {
				status = "disabled"
			}
			next := "n/a"
			if !task.NextRun.IsZero() {
				next = task.NextRun.Format("2006-01-02 15:04:05")
			}
			lines = append(lines, fmt.Sprintf("- %s | %s | %s | %s | next: %s | %s",
				task.ID, task.Name, task.Schedule, status, next, truncate(task.Prompt, 100)))
		}
		return ok(fmt.Sprintf("Scheduled tasks (%d):\n%s", len(tasks), strings.Join(lines, "\n")))

	case "stop":
		id := strings.TrimSpace(strArg(args, "task_identifier"))
		if id == "" {
			return fail("Error: 'task_identifier' parameter is required for stop")
		}
		if err := t.sched.StopTask(id); err != nil {
			return fail("Error: cannot stop task %s: %v", id, err)
		}
		return ok(fmt.Sprintf("Task %s stopped and removed.", id))

	case "stop_all":
		n := t.sched.StopAll()
		return ok(fmt.Sprintf("Stopped %d scheduled task(s).", n))

	default:
		return fail("Error: unknown action '%s'", strArg(args, "action"))
	}
}
