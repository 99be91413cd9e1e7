// Package pipeline runs the analysis state machine for one task: download,
// analyze, optional sync, callback. Every stage transition is persisted
// before the stage runs so status polling always reflects live progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"vidanalyzer/analyzer"
	"vidanalyzer/downloader"
	"vidanalyzer/task"
)

// Progress milestones per stage.
const (
	progressDownloading = 10
	progressDownloaded  = 30
	progressAnalyzing   = 40
	progressAnalyzed    = 70
	progressSyncing     = 80
	progressCompleted   = 100
)

type VideoDownloader interface {
	Download(ctx context.Context, url string) (*downloader.Result, error)
}

type VideoAnalyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error)
}

// RecordSyncer pushes a finished analysis to one destination and returns the
// destination's record identifier.
type RecordSyncer interface {
	Name() string
	Sync(ctx context.Context, t *task.Task) (string, error)
}

// Notifier delivers completion callbacks. Implementations must not block the
// pipeline on delivery failures.
type Notifier interface {
	Notify(ctx context.Context, t *task.Task)
}

// Timeouts bound each external stage independently of the overall task
// deadline.
type Timeouts struct {
	Download time.Duration
	Analysis time.Duration
	Sync     time.Duration
}

type Orchestrator struct {
	store      *task.Store
	downloader VideoDownloader
	analyzer   VideoAnalyzer
	feishu     RecordSyncer
	notion     RecordSyncer
	notifier   Notifier
	timeouts   Timeouts
	logger     *zap.Logger
}

type Options struct {
	Store      *task.Store
	Downloader VideoDownloader
	Analyzer   VideoAnalyzer
	Feishu     RecordSyncer
	Notion     RecordSyncer
	Notifier   Notifier
	Timeouts   Timeouts
	Logger     *zap.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		store:      opts.Store,
		downloader: opts.Downloader,
		analyzer:   opts.Analyzer,
		feishu:     opts.Feishu,
		notion:     opts.Notion,
		notifier:   opts.Notifier,
		timeouts:   opts.Timeouts,
		logger:     opts.Logger,
	}
}

// Process runs the whole pipeline for one task. A returned error signals the
// queue to retry the task from the beginning; a nil return marks the attempt
// final.
func (o *Orchestrator) Process(ctx context.Context, taskID string) error {
	t, err := o.store.Get(ctx, taskID)
	if errors.Is(err, task.ErrNotFound) {
		// The record expired or was never created. Retrying cannot help.
		o.logger.Warn("task record missing, dropping", zap.String("task_id", taskID))
		return fmt.Errorf("task %s not found: %w", taskID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	// A previously failed task is re-delivered by the queue and re-enters the
	// pipeline from the top. Completed and cancelled tasks stay final.
	if t.Status == task.StatusCompleted || t.Cancelled() {
		o.logger.Info("task already final, skipping",
			zap.String("task_id", taskID), zap.String("status", string(t.Status)))
		return nil
	}

	log := o.logger.With(zap.String("task_id", taskID), zap.String("url", t.URL))
	log.Info("starting analysis pipeline")

	t, err = o.run(ctx, log, t)
	if err != nil {
		return o.fail(ctx, log, taskID, err)
	}

	t, perr := o.update(ctx, taskID, task.Update{
		Status:   statusPtr(task.StatusCompleted),
		Progress: intPtr(progressCompleted),
		Message:  strPtr("Analysis completed successfully"),
		Error:    strPtr(""),
	})
	if perr != nil {
		return perr
	}

	log.Info("pipeline completed")
	o.notify(ctx, t)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, t *task.Task) (*task.Task, error) {
	taskID := t.ID

	// Download stage. Clearing the error also resets state left by a failed
	// earlier attempt.
	t, err := o.update(ctx, taskID, task.Update{
		Status:   statusPtr(task.StatusDownloading),
		Progress: intPtr(progressDownloading),
		Message:  strPtr("Downloading video"),
		Error:    strPtr(""),
	})
	if err != nil {
		return nil, err
	}

	dctx, cancel := context.WithTimeout(ctx, o.timeouts.Download)
	dl, err := o.downloader.Download(dctx, t.URL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	log.Info("video downloaded",
		zap.String("path", dl.VideoPath), zap.String("source", dl.Source))

	t, err = o.update(ctx, taskID, task.Update{
		Progress:  intPtr(progressDownloaded),
		Message:   strPtr("Video downloaded"),
		VideoPath: strPtr(dl.VideoPath),
	})
	if err != nil {
		return nil, err
	}

	// Analysis stage.
	t, err = o.update(ctx, taskID, task.Update{
		Status:   statusPtr(task.StatusAnalyzing),
		Progress: intPtr(progressAnalyzing),
		Message:  strPtr("Analyzing video content"),
	})
	if err != nil {
		return nil, err
	}

	actx, cancel := context.WithTimeout(ctx, o.timeouts.Analysis)
	analysis, err := o.analyzer.Analyze(actx, analyzer.Request{
		VideoPath: dl.VideoPath,
		Prompt:    t.AnalysisPrompt,
		Metadata:  dl.Metadata,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	result := assembleResult(dl, analysis)
	t, err = o.update(ctx, taskID, task.Update{
		Progress: intPtr(progressAnalyzed),
		Message:  strPtr("Analysis finished"),
		Result:   result,
	})
	if err != nil {
		return nil, err
	}

	// Sync stage. Destination failures are reported but never fail the task.
	if t.SyncToFeishu || t.SyncToNotion {
		t, err = o.update(ctx, taskID, task.Update{
			Status:   statusPtr(task.StatusSyncing),
			Progress: intPtr(progressSyncing),
			Message:  strPtr("Syncing results"),
		})
		if err != nil {
			return nil, err
		}

		if t.SyncToFeishu && o.feishu != nil {
			if recordID, ok := o.sync(ctx, log, o.feishu, t); ok {
				t, err = o.update(ctx, taskID, task.Update{FeishuRecordID: strPtr(recordID)})
				if err != nil {
					return nil, err
				}
			}
		}
		if t.SyncToNotion && o.notion != nil {
			if pageID, ok := o.sync(ctx, log, o.notion, t); ok {
				t, err = o.update(ctx, taskID, task.Update{NotionPageID: strPtr(pageID)})
				if err != nil {
					return nil, err
				}
			}
		}
	}

	return t, nil
}

func (o *Orchestrator) sync(ctx context.Context, log *zap.Logger, dest RecordSyncer, t *task.Task) (string, bool) {
	sctx, cancel := context.WithTimeout(ctx, o.timeouts.Sync)
	defer cancel()

	recordID, err := dest.Sync(sctx, t)
	if err != nil {
		log.Warn("result sync failed", zap.String("destination", dest.Name()), zap.Error(err))
		return "", false
	}
	log.Info("result synced",
		zap.String("destination", dest.Name()), zap.String("record_id", recordID))
	return recordID, true
}

// fail records the failure and reports it to the queue for retry. The
// persisted error keeps the stage error verbatim so clients see the cause.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, taskID string, cause error) error {
	log.Error("pipeline failed", zap.Error(cause))

	t, err := o.update(ctx, taskID, task.Update{
		Status:  statusPtr(task.StatusFailed),
		Message: strPtr("Task failed: " + cause.Error()),
		Error:   strPtr(cause.Error()),
	})
	if err != nil {
		log.Error("failed to persist failure state", zap.Error(err))
	} else {
		o.notify(ctx, t)
	}
	return cause
}

func (o *Orchestrator) update(ctx context.Context, taskID string, upd task.Update) (*task.Task, error) {
	t, err := o.store.Update(ctx, taskID, upd)
	if err != nil {
		return nil, fmt.Errorf("persist task state: %w", err)
	}
	return t, nil
}

func (o *Orchestrator) notify(ctx context.Context, t *task.Task) {
	if o.notifier == nil || t.CallbackURL == "" {
		return
	}
	o.notifier.Notify(ctx, t)
}

// assembleResult merges resolver metadata with the model output into the
// persisted analysis record.
func assembleResult(dl *downloader.Result, analysis *analyzer.Result) *task.AnalysisResult {
	meta := dl.Metadata
	return &task.AnalysisResult{
		VideoTitle:           meta.Title,
		Author:               meta.Author,
		Duration:             meta.Duration,
		Description:          meta.Description,
		Hashtags:             meta.Hashtags,
		AIAnalysis:           analysis.Analysis,
		ContentSummary:       analysis.Summary,
		KeyTopics:            analysis.Topics,
		Sentiment:            analysis.Sentiment,
		EngagementPrediction: analysis.EngagementLevel,
		Recommendations:      analysis.Recommendations,
		RawMetadata:          meta.Map(),
	}
}

func statusPtr(s task.Status) *task.Status { return &s }
func intPtr(v int) *int                    { return &v }
func strPtr(s string) *string              { return &s }
