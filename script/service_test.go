package script

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vidanalyzer/scriptgen"
	"vidanalyzer/task"
)

type stubTasks struct {
	tasks map[string]*task.Task
}

func (s *stubTasks) Get(_ context.Context, id string) (*task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	return t, nil
}

type stubGenerator struct {
	calls    int
	failures int
	script   *scriptgen.ProductionScript
}

func (s *stubGenerator) Generate(_ context.Context, _ *task.Task, _ scriptgen.ScriptType) (*scriptgen.ProductionScript, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("model overloaded")
	}
	return s.script, nil
}

func sampleScript() *scriptgen.ProductionScript {
	return &scriptgen.ProductionScript{
		ScriptVersion: "1.0",
		VideoInfo:     scriptgen.VideoInfo{OriginalURL: "https://www.tiktok.com/@u/video/1", Title: "t"},
		SuccessFormula: scriptgen.SuccessFormula{
			HookType: "悬念型",
		},
	}
}

func newTestService(t *testing.T, tasks map[string]*task.Task, gen *stubGenerator) (*Service, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, 30*24*time.Hour)
	svc := NewService(store, &stubTasks{tasks: tasks}, gen, zap.NewNop())
	svc.sleep = func(time.Duration) {}
	return svc, store
}

func completedTask(id string) *task.Task {
	return &task.Task{
		ID:     id,
		URL:    "https://www.tiktok.com/@u/video/1",
		Status: task.StatusCompleted,
		Result: &task.AnalysisResult{VideoTitle: "t", Author: "a", Duration: 30},
	}
}

func TestGetOrGenerateCreatesAndCaches(t *testing.T) {
	gen := &stubGenerator{script: sampleScript()}
	svc, store := newTestService(t, map[string]*task.Task{"task_1": completedTask("task_1")}, gen)

	ctx := context.Background()
	rec, err := svc.GetOrGenerate(ctx, "task_1", scriptgen.ScriptTypeFull, false)
	require.NoError(t, err)
	assert.Equal(t, "task_1", rec.VideoAnalysisID)
	assert.Equal(t, scriptgen.ScriptTypeFull, rec.ScriptType)
	assert.True(t, len(rec.ScriptID) > len("script_"))
	assert.Equal(t, "悬念型", rec.ScriptData.SuccessFormula.HookType)

	// Second call is served from cache without invoking the model again.
	again, err := svc.GetOrGenerate(ctx, "task_1", scriptgen.ScriptTypeFull, false)
	require.NoError(t, err)
	assert.Equal(t, rec.ScriptID, again.ScriptID)
	assert.Equal(t, 1, gen.calls)

	stored, err := store.Get(ctx, "task_1")
	require.NoError(t, err)
	assert.Equal(t, rec.ScriptID, stored.ScriptID)
}

func TestGetOrGenerateRegenerateBypassesCache(t *testing.T) {
	gen := &stubGenerator{script: sampleScript()}
	svc, _ := newTestService(t, map[string]*task.Task{"task_1": completedTask("task_1")}, gen)

	ctx := context.Background()
	first, err := svc.GetOrGenerate(ctx, "task_1", scriptgen.ScriptTypeFull, false)
	require.NoError(t, err)

	second, err := svc.GetOrGenerate(ctx, "task_1", scriptgen.ScriptTypeSimple, true)
	require.NoError(t, err)

	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, scriptgen.ScriptTypeSimple, second.ScriptType)
	// Regeneration keeps the script identity but bumps updated_at.
	assert.Equal(t, first.ScriptID, second.ScriptID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestGetOrGenerateRetriesTransientFailures(t *testing.T) {
	gen := &stubGenerator{script: sampleScript(), failures: 2}
	svc, _ := newTestService(t, map[string]*task.Task{"task_1": completedTask("task_1")}, gen)

	rec, err := svc.GetOrGenerate(context.Background(), "task_1", scriptgen.ScriptTypeFull, false)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)
	assert.NotNil(t, rec.ScriptData)
}

func TestGetOrGenerateGivesUpAfterMaxAttempts(t *testing.T) {
	gen := &stubGenerator{script: sampleScript(), failures: 10}
	svc, _ := newTestService(t, map[string]*task.Task{"task_1": completedTask("task_1")}, gen)

	_, err := svc.GetOrGenerate(context.Background(), "task_1", scriptgen.ScriptTypeFull, false)
	require.Error(t, err)
	assert.Equal(t, generateAttempts, gen.calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestGetOrGenerateTaskNotFound(t *testing.T) {
	svc, _ := newTestService(t, map[string]*task.Task{}, &stubGenerator{script: sampleScript()})

	_, err := svc.GetOrGenerate(context.Background(), "task_missing", scriptgen.ScriptTypeFull, false)
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestGetOrGenerateRejectsUnfinishedTask(t *testing.T) {
	pending := &task.Task{ID: "task_1", Status: task.StatusAnalyzing}
	svc, _ := newTestService(t, map[string]*task.Task{"task_1": pending}, &stubGenerator{script: sampleScript()})

	_, err := svc.GetOrGenerate(context.Background(), "task_1", scriptgen.ScriptTypeFull, false)
	assert.ErrorIs(t, err, ErrTaskNotReady)
}

func TestStoreTTLAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, 30*24*time.Hour)

	ctx := context.Background()
	_, err := store.Save(ctx, "task_1", scriptgen.ScriptTypeFull, sampleScript())
	require.NoError(t, err)

	ttl := mr.TTL("video:script:task_1")
	assert.Equal(t, 30*24*time.Hour, ttl)

	mr.FastForward(31 * 24 * time.Hour)
	_, err = store.Get(ctx, "task_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreGetMissing(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, time.Hour)

	_, err := store.Get(context.Background(), "task_none")
	assert.ErrorIs(t, err, ErrNotFound)
}
