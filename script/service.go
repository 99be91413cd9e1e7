package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vidanalyzer/scriptgen"
	"vidanalyzer/task"
)

// ErrTaskNotReady is returned when script generation is requested for a task
// that has not completed analysis.
var ErrTaskNotReady = errors.New("task has no completed analysis result")

const generateAttempts = 3

// ScriptGenerator produces a production script from a completed task.
// Satisfied by scriptgen.Generator.
type ScriptGenerator interface {
	Generate(ctx context.Context, t *task.Task, scriptType scriptgen.ScriptType) (*scriptgen.ProductionScript, error)
}

// TaskGetter loads a task by id. Satisfied by task.Store.
type TaskGetter interface {
	Get(ctx context.Context, id string) (*task.Task, error)
}

// Service resolves script requests: cached scripts are served from the
// store, otherwise one is generated synchronously and cached.
type Service struct {
	store     *Store
	tasks     TaskGetter
	generator ScriptGenerator
	logger    *zap.Logger
	sleep     func(time.Duration)
}

func NewService(store *Store, tasks TaskGetter, generator ScriptGenerator, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		tasks:     tasks,
		generator: generator,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Get returns the cached script for a task, or ErrNotFound.
func (s *Service) Get(ctx context.Context, taskID string) (*Record, error) {
	return s.store.Get(ctx, taskID)
}

// GetOrGenerate returns the cached script when one exists, unless regenerate
// is set. Otherwise it generates a new script from the task's analysis
// result, retrying transient model failures, and caches it. Requires the
// task to be completed with a result.
func (s *Service) GetOrGenerate(ctx context.Context, taskID string, scriptType scriptgen.ScriptType, regenerate bool) (*Record, error) {
	if !regenerate {
		rec, err := s.store.Get(ctx, taskID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusCompleted || t.Result == nil {
		return nil, fmt.Errorf("%w: task %s is %s", ErrTaskNotReady, taskID, t.Status)
	}

	var script *scriptgen.ProductionScript
	var lastErr error
	for attempt := 1; attempt <= generateAttempts; attempt++ {
		script, lastErr = s.generator.Generate(ctx, t, scriptType)
		if lastErr == nil {
			break
		}
		s.logger.Warn("script generation attempt failed",
			zap.String("task_id", taskID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < generateAttempts {
			s.sleep(time.Duration(attempt) * 5 * time.Second)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("script generation failed after %d attempts: %w", generateAttempts, lastErr)
	}

	return s.store.Save(ctx, taskID, scriptType, script)
}
