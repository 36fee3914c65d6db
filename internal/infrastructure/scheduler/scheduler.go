// Package scheduler runs persistent background jobs. Tasks survive
// restarts in a sqlite table and fire agent runs through the injected
// RunFunc.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ghostagent/ghost/internal/domain/entity"
	"github.com/ghostagent/ghost/internal/infrastructure/tool"
)

// one background run may chain many tool calls
const taskRunTimeout = 10 * time.Minute

// RunFunc executes one background prompt through the agent loop.
type RunFunc func(ctx context.Context, prompt string) error

type taskModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Schedule  string
	Prompt    string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (taskModel) TableName() string { return "scheduled_tasks" }

// Scheduler arms cron entries for every enabled task and keeps the
// sqlite table in sync with what is armed.
type Scheduler struct {
	db     *gorm.DB
	cron   *cron.Cron
	run    RunFunc
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(dbPath string, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open scheduler db: %w", err)
	}
	if err := db.AutoMigrate(&taskModel{}); err != nil {
		return nil, fmt.Errorf("migrate scheduler db: %w", err)
	}

	s := &Scheduler{
		db:      db,
		cron:    cron.New(),
		run:     run,
		logger:  logger.With(zap.String("component", "scheduler")),
		entries: make(map[string]cron.EntryID),
	}
	if err := s.restore(); err != nil {
		return nil, err
	}
	s.cron.Start()
	return s, nil
}

// Compile-time interface check
var _ tool.TaskScheduler = (*Scheduler)(nil)

// restore rearms every enabled task from the table.
func (s *Scheduler) restore() error {
	var tasks []taskModel
	if err := s.db.Where("enabled = ?", true).Order("created_at").Find(&tasks).Error; err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	for _, task := range tasks {
		if err := s.arm(task); err != nil {
			s.logger.Warn("Stored task no longer schedulable, disabling",
				zap.String("id", task.ID), zap.Error(err))
			s.db.Model(&taskModel{}).Where("id = ?", task.ID).Update("enabled", false)
		}
	}
	if len(tasks) > 0 {
		s.logger.Info("Scheduled tasks restored", zap.Int("count", len(tasks)))
	}
	return nil
}

// Unparseable interval values fall back to this stride instead of
// rejecting the task outright.
const defaultInterval = 60 * time.Second

// parseSchedule accepts standard 5-field cron or "interval:seconds".
// A malformed interval value arms at the 60s default: background tasks
// come from model output and a typo should degrade, not vanish.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if raw, isInterval := strings.CutPrefix(schedule, "interval:"); isInterval {
		secs, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || secs < 1 {
			return cron.Every(defaultInterval), nil
		}
		return cron.Every(time.Duration(secs) * time.Second), nil
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", entity.ErrInvalidStride, schedule, err)
	}
	return sched, nil
}

func (s *Scheduler) arm(task taskModel) error {
	sched, err := parseSchedule(task.Schedule)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID := s.cron.Schedule(sched, cron.FuncJob(func() {
		s.fire(task)
	}))
	s.entries[task.ID] = entryID
	return nil
}

func (s *Scheduler) fire(task taskModel) {
	if s.run == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), taskRunTimeout)
	defer cancel()

	s.logger.Info("Background task firing",
		zap.String("id", task.ID), zap.String("name", task.Name))
	if err := s.run(ctx, "BACKGROUND TASK: "+task.Prompt); err != nil {
		s.logger.Warn("Background task failed",
			zap.String("id", task.ID), zap.Error(err))
		return
	}
	s.logger.Info("Background task completed", zap.String("id", task.ID))
}

// CreateTask validates the schedule, persists the task and arms it.
func (s *Scheduler) CreateTask(name, schedule, prompt string) (string, error) {
	if _, err := parseSchedule(schedule); err != nil {
		return "", err
	}
	task := taskModel{
		ID:       "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Name:     name,
		Schedule: schedule,
		Prompt:   prompt,
		Enabled:  true,
	}
	if err := s.db.Create(&task).Error; err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}
	if err := s.arm(task); err != nil {
		s.db.Delete(&taskModel{}, "id = ?", task.ID)
		return "", err
	}
	s.logger.Info("Task created",
		zap.String("id", task.ID), zap.String("schedule", schedule))
	return task.ID, nil
}

func (s *Scheduler) ListTasks() []tool.ScheduledTask {
	var models []taskModel
	if err := s.db.Order("created_at").Find(&models).Error; err != nil {
		s.logger.Warn("Failed to list tasks", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tool.ScheduledTask, 0, len(models))
	for _, m := range models {
		task := tool.ScheduledTask{
			ID:       m.ID,
			Name:     m.Name,
			Schedule: m.Schedule,
			Prompt:   m.Prompt,
			Enabled:  m.Enabled,
		}
		if entryID, armed := s.entries[m.ID]; armed {
			task.NextRun = s.cron.Entry(entryID).Next
		}
		out = append(out, task)
	}
	return out
}

// StopTask disarms and deletes one task.
func (s *Scheduler) StopTask(id string) error {
	s.mu.Lock()
	entryID, armed := s.entries[id]
	if armed {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	res := s.db.Delete(&taskModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if !armed && res.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, entity.ErrJobNotFound)
	}
	s.logger.Info("Task stopped", zap.String("id", id))
	return nil
}

// StopAll disarms and deletes every task, returning how many went away.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	res := s.db.Where("1 = 1").Delete(&taskModel{})
	if res.Error != nil {
		s.logger.Warn("Failed to clear tasks", zap.Error(res.Error))
		return 0
	}
	n := int(res.RowsAffected)
	if n > 0 {
		s.logger.Info("All tasks stopped", zap.Int("count", n))
	}
	return n
}

// Close stops the cron runner and waits for in-flight jobs.
func (s *Scheduler) Close() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
