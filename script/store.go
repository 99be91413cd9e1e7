// Package script stores generated production scripts and provides the
// get-or-generate service used by the API layer. Scripts are keyed by the
// analysis task they were derived from, so each analysis holds at most one
// script.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/redis/go-redis/v9"

	"vidanalyzer/scriptgen"
)

// ErrNotFound is returned when no script exists for a task id.
var ErrNotFound = errors.New("script not found")

const scriptKeyPrefix = "video:script:"

// Record is the persisted script envelope.
type Record struct {
	ScriptID        string                      `json:"script_id"`
	VideoAnalysisID string                      `json:"video_analysis_id"`
	ScriptType      scriptgen.ScriptType        `json:"script_type"`
	ScriptData      *scriptgen.ProductionScript `json:"script_data"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// Store persists script records in redis with a sliding TTL.
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

func scriptKey(taskID string) string { return scriptKeyPrefix + taskID }

func newScriptID() string { return "script_" + shortuuid.New() }

// Save writes the script for a task, replacing any previous one. An existing
// record keeps its script id and created_at.
func (s *Store) Save(ctx context.Context, taskID string, scriptType scriptgen.ScriptType, data *scriptgen.ProductionScript) (*Record, error) {
	now := s.now().UTC()
	rec := &Record{
		ScriptID:        newScriptID(),
		VideoAnalysisID: taskID,
		ScriptType:      scriptType,
		ScriptData:      data,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if prev, err := s.Get(ctx, taskID); err == nil {
		rec.ScriptID = prev.ScriptID
		rec.CreatedAt = prev.CreatedAt
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode script record: %w", err)
	}
	if err := s.rdb.Set(ctx, scriptKey(taskID), raw, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("persist script record: %w", err)
	}
	return rec, nil
}

// Get returns the script derived from the given analysis task.
func (s *Store) Get(ctx context.Context, taskID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, scriptKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load script record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode script record: %w", err)
	}
	return &rec, nil
}

// Delete removes the script for a task. Missing records are not an error.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	return s.rdb.Del(ctx, scriptKey(taskID)).Err()
}
