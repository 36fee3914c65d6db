// Package swarm orders delegated subtasks by their data dependencies
// and fans independent ones out to parallel worker calls. The graph is
// validated up front; execution settles every task exactly once, with
// failed dependencies skipping their downstream tasks instead of
// running them on missing input.
package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one delegated unit of work. Key doubles as the scratchpad
// slot the result is published under and as the handle other tasks
// name in DependsOn.
type Task struct {
	Key         string
	Instruction string
	Input       string
	DependsOn   []string
	Model       string // optional affinity hint for the router
}

// Status is the settlement state of one task.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the settled result of one task.
type Outcome struct {
	Key      string
	Status   Status
	Result   string
	Err      error
	Duration time.Duration
}

// WorkerFunc executes one task. deps maps each dependency key to its
// finished result; it is only called once every dependency is Done.
type WorkerFunc func(ctx context.Context, task Task, deps map[string]string) (string, error)

// GraphConfig tunes one execution.
type GraphConfig struct {
	MaxParallel int           // simultaneous workers, default 4
	OnTaskDone  func(Outcome) // called from the coordinator as each task settles
}

// Graph is a validated set of tasks ready to run.
type Graph struct {
	tasks      []Task
	dependents map[string][]string
	worker     WorkerFunc
	onDone     func(Outcome)
	parallel   int
	logger     *zap.Logger
}

// NewGraph validates the task set: keys must be unique and non-empty,
// every dependency must name a task in the set, and the dependency
// relation must be acyclic.
func NewGraph(tasks []Task, worker WorkerFunc, cfg GraphConfig, logger *zap.Logger) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks")
	}
	if worker == nil {
		return nil, fmt.Errorf("no worker function")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}

	keys := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Key == "" {
			return nil, fmt.Errorf("task with empty key")
		}
		if keys[t.Key] {
			return nil, fmt.Errorf("duplicate task key %q", t.Key)
		}
		keys[t.Key] = true
	}

	dependents := make(map[string][]string)
	inDegree := make(map[string]int, len(tasks))
	for _, t := range tasks {
		inDegree[t.Key] = len(t.DependsOn)
		for _, dep := range t.DependsOn {
			if !keys[dep] {
				return nil, fmt.Errorf("task %q depends on unknown task %q", t.Key, dep)
			}
			if dep == t.Key {
				return nil, fmt.Errorf("task %q depends on itself", t.Key)
			}
			dependents[dep] = append(dependents[dep], t.Key)
		}
	}

	// Kahn's algorithm; anything left unvisited sits on a cycle.
	queue := make([]string, 0, len(tasks))
	degree := make(map[string]int, len(inDegree))
	for k, d := range inDegree {
		degree[k] = d
		if d == 0 {
			queue = append(queue, k)
		}
	}
	visited := 0
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[curr] {
			degree[next]--
			if degree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(tasks) {
		return nil, fmt.Errorf("dependency cycle among tasks (settled %d of %d)", visited, len(tasks))
	}

	return &Graph{
		tasks:      tasks,
		dependents: dependents,
		worker:     worker,
		onDone:     cfg.OnTaskDone,
		parallel:   cfg.MaxParallel,
		logger:     logger.With(zap.String("component", "swarm-graph")),
	}, nil
}

// Run executes the graph to completion and returns one Outcome per
// task. Tasks whose dependencies failed or were skipped settle as
// Skipped without invoking the worker. A cancelled context fails the
// running tasks and skips the rest.
func (g *Graph) Run(ctx context.Context) map[string]Outcome {
	byKey := make(map[string]Task, len(g.tasks))
	remaining := make(map[string]int, len(g.tasks))
	for _, t := range g.tasks {
		byKey[t.Key] = t
		remaining[t.Key] = len(t.DependsOn)
	}

	outcomes := make(map[string]Outcome, len(g.tasks))
	results := make(map[string]string, len(g.tasks))
	doneCh := make(chan Outcome)
	sem := make(chan struct{}, g.parallel)
	var wg sync.WaitGroup

	launch := func(task Task) {
		deps := make(map[string]string, len(task.DependsOn))
		for _, dep := range task.DependsOn {
			deps[dep] = results[dep]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				doneCh <- Outcome{Key: task.Key, Status: StatusSkipped, Err: ctx.Err()}
				return
			}
			start := time.Now()
			result, err := g.worker(ctx, task, deps)
			out := Outcome{Key: task.Key, Duration: time.Since(start)}
			if err != nil {
				out.Status = StatusFailed
				out.Err = err
			} else {
				out.Status = StatusDone
				out.Result = result
			}
			doneCh <- out
		}()
	}

	for _, t := range g.tasks {
		if remaining[t.Key] == 0 {
			launch(t)
		}
	}

	// Coordinator: single goroutine owns outcomes/results, so worker
	// goroutines never touch shared maps.
	settled := 0
	var settle func(out Outcome)
	settle = func(out Outcome) {
		outcomes[out.Key] = out
		settled++
		if g.onDone != nil {
			g.onDone(out)
		}
		g.logger.Info("Swarm task settled",
			zap.String("key", out.Key),
			zap.String("status", out.Status.String()),
			zap.Duration("duration", out.Duration),
		)
		switch out.Status {
		case StatusDone:
			results[out.Key] = out.Result
			for _, next := range g.dependents[out.Key] {
				if _, done := outcomes[next]; done {
					// already skipped through another dependency
					continue
				}
				remaining[next]--
				if remaining[next] == 0 {
					launch(byKey[next])
				}
			}
		case StatusFailed, StatusSkipped:
			for _, next := range g.dependents[out.Key] {
				if _, done := outcomes[next]; done {
					continue
				}
				settle(Outcome{
					Key:    next,
					Status: StatusSkipped,
					Err:    fmt.Errorf("dependency %q %s", out.Key, out.Status),
				})
			}
		}
	}

	for settled < len(g.tasks) {
		settle(<-doneCh)
	}
	wg.Wait()
	return outcomes
}
