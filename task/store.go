package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/redis/go-redis/v9"
)

const (
	taskKeyPrefix = "video:task:"

	// Concurrent writers to the same key are rare (one worker owns a task
	// during its pipeline run), so a handful of optimistic retries is plenty.
	maxTxRetries = 5
)

// Store persists task records as flat JSON documents in redis, keyed by task
// id with a sliding TTL. It is the single source of truth read by the API.
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func newTaskID() string {
	return fmt.Sprintf("task_%s", shortuuid.New())
}

// Create writes a fresh pending record and returns it. It fails only when
// the store itself is unreachable.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Task, error) {
	now := s.now().UTC()
	t := &Task{
		ID:             newTaskID(),
		URL:            p.URL,
		CallbackURL:    p.CallbackURL,
		AnalysisPrompt: p.AnalysisPrompt,
		SyncToFeishu:   p.SyncToFeishu,
		SyncToNotion:   p.SyncToNotion,
		Status:         StatusPending,
		Progress:       0,
		Message:        "Task created, waiting to start",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, taskKey(t.ID), raw, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store task: %w", err)
	}
	return t, nil
}

// Get loads a task record. Expired records are indistinguishable from ones
// that never existed.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	raw, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}

	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

// Update merges the provided fields into the stored record, refreshes
// updated_at and re-applies the TTL. The read-merge-write runs under
// WATCH/MULTI so concurrent writers cannot clobber each other's fields.
func (s *Store) Update(ctx context.Context, id string, upd Update) (*Task, error) {
	return s.mutate(ctx, id, func(t *Task) error {
		upd.apply(t)
		return nil
	})
}

// Cancel moves a pending task to failed with a fixed cancellation error.
// Any task already claimed by the pipeline cannot be cancelled.
func (s *Store) Cancel(ctx context.Context, id string) (*Task, error) {
	return s.mutate(ctx, id, func(t *Task) error {
		if t.Status != StatusPending {
			return ErrConflict
		}
		t.Status = StatusFailed
		t.Message = "Task cancelled by user"
		t.Error = CancelledError
		return nil
	})
}

func (s *Store) mutate(ctx context.Context, id string, fn func(*Task) error) (*Task, error) {
	key := taskKey(id)
	var out *Task

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("decode task %s: %w", id, err)
		}
		if err := fn(&t); err != nil {
			return err
		}
		t.UpdatedAt = s.now().UTC()

		updated, err := json.Marshal(&t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		out = &t
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update task %s: too many contended writes", id)
}
