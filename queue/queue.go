// Package queue wraps the asynq task queue: the API process enqueues
// analysis jobs, worker processes consume them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"vidanalyzer/config"
)

// TypeAnalyzeVideo is the queue task type for one full analysis pipeline
// run.
const TypeAnalyzeVideo = "video:analyze"

// AnalyzePayload carries only the task id; the worker reloads the full
// record from the store so queue payloads never go stale.
type AnalyzePayload struct {
	TaskID string `json:"task_id"`
}

// Client enqueues pipeline jobs.
type Client struct {
	inner   *asynq.Client
	retries int
	timeout time.Duration
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		inner:   asynq.NewClient(redisOpt(cfg)),
		retries: cfg.MaxAttempts - 1,
		timeout: cfg.PipelineTimeout,
	}
}

func (c *Client) Close() error { return c.inner.Close() }

// EnqueueAnalyze schedules the pipeline for a task. The queue task id equals
// the store task id, so re-enqueueing the same task while it is pending or
// running is rejected by the queue.
func (c *Client) EnqueueAnalyze(ctx context.Context, taskID string) error {
	payload, err := json.Marshal(AnalyzePayload{TaskID: taskID})
	if err != nil {
		return err
	}

	t := asynq.NewTask(TypeAnalyzeVideo, payload)
	_, err = c.inner.EnqueueContext(ctx, t,
		asynq.TaskID(taskID),
		asynq.MaxRetry(c.retries),
		asynq.Timeout(c.timeout),
	)
	if err != nil {
		return fmt.Errorf("enqueue analysis task: %w", err)
	}
	return nil
}

// Processor runs one pipeline for a task id. Satisfied by
// pipeline.Orchestrator.
type Processor interface {
	Process(ctx context.Context, taskID string) error
}

// NewServer builds the worker-side queue server. Retries wait a fixed delay
// rather than asynq's default exponential backoff.
func NewServer(cfg *config.Config, logger *zap.Logger) *asynq.Server {
	retryDelay := cfg.RetryDelay
	return asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
			return retryDelay
		},
		Logger: logger.Sugar(),
	})
}

// NewMux routes queue task types to their handlers.
func NewMux(proc Processor, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAnalyzeVideo, func(ctx context.Context, t *asynq.Task) error {
		var p AnalyzePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode analyze payload: %v: %w", err, asynq.SkipRetry)
		}
		logger.Info("processing analysis task", zap.String("task_id", p.TaskID))
		return proc.Process(ctx, p.TaskID)
	})
	return mux
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
