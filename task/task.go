package task

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a task id does not resolve, either because
	// it never existed or because the record expired.
	ErrNotFound = errors.New("task not found")
	// ErrConflict is returned when an operation is not allowed in the task's
	// current status, e.g. cancelling a task that is already running.
	ErrConflict = errors.New("task is not in a cancellable state")
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusAnalyzing   Status = "analyzing"
	StatusSyncing     Status = "syncing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// CancelledError is the error value recorded on user-cancelled tasks. It
// distinguishes cancellation from pipeline failures, which may be retried.
const CancelledError = "Cancelled"

// Terminal reports whether no further pipeline transition may occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AnalysisResult is the normalized output of the analysis stage. It is set
// once by the pipeline after analysis succeeds; record identifiers produced
// by the sync stage live on the Task itself.
type AnalysisResult struct {
	VideoTitle           string         `json:"video_title,omitempty"`
	Author               string         `json:"author,omitempty"`
	Duration             float64        `json:"duration,omitempty"`
	Description          string         `json:"description,omitempty"`
	Hashtags             []string       `json:"hashtags,omitempty"`
	AIAnalysis           string         `json:"ai_analysis,omitempty"`
	ContentSummary       string         `json:"content_summary,omitempty"`
	KeyTopics            []string       `json:"key_topics,omitempty"`
	Sentiment            string         `json:"sentiment,omitempty"`
	EngagementPrediction string         `json:"engagement_prediction,omitempty"`
	Recommendations      []string       `json:"recommendations,omitempty"`
	RawMetadata          map[string]any `json:"raw_metadata,omitempty"`
}

// Task is the persisted unit of work. The store owns the persisted
// representation; the pipeline holds a transient copy during execution and
// reconciles every stage back through Store.Update.
type Task struct {
	ID             string          `json:"task_id"`
	URL            string          `json:"url"`
	CallbackURL    string          `json:"callback_url,omitempty"`
	AnalysisPrompt string          `json:"analysis_prompt,omitempty"`
	SyncToFeishu   bool            `json:"sync_to_feishu"`
	SyncToNotion   bool            `json:"sync_to_notion"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	Message        string          `json:"message"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Result         *AnalysisResult `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	VideoPath      string          `json:"video_path,omitempty"`
	FeishuRecordID string          `json:"feishu_record_id,omitempty"`
	NotionPageID   string          `json:"notion_page_id,omitempty"`
}

// Cancelled reports whether the task was cancelled by the user rather than
// failed by the pipeline.
func (t *Task) Cancelled() bool {
	return t.Status == StatusFailed && t.Error == CancelledError
}

// CreateParams is the creation-time configuration of a task. All fields are
// immutable after creation.
type CreateParams struct {
	URL            string
	CallbackURL    string
	AnalysisPrompt string
	SyncToFeishu   bool
	SyncToNotion   bool
}

// Update is a partial mutation of a task record. Nil fields are left
// untouched; the store merges the rest atomically and refreshes updated_at.
type Update struct {
	Status         *Status
	Progress       *int
	Message        *string
	Result         *AnalysisResult
	Error          *string
	VideoPath      *string
	FeishuRecordID *string
	NotionPageID   *string
}

func (u Update) apply(t *Task) {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.Message != nil {
		t.Message = *u.Message
	}
	if u.Result != nil {
		t.Result = u.Result
	}
	if u.Error != nil {
		t.Error = *u.Error
	}
	if u.VideoPath != nil {
		t.VideoPath = *u.VideoPath
	}
	if u.FeishuRecordID != nil {
		t.FeishuRecordID = *u.FeishuRecordID
	}
	if u.NotionPageID != nil {
		t.NotionPageID = *u.NotionPageID
	}
}
