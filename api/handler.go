package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vidanalyzer/downloader"
	"vidanalyzer/script"
	"vidanalyzer/scriptgen"
	"vidanalyzer/task"
)

// Enqueuer schedules a created task onto the queue. Satisfied by
// queue.Client.
type Enqueuer interface {
	EnqueueAnalyze(ctx context.Context, taskID string) error
}

// ScriptService resolves script requests. Satisfied by script.Service.
type ScriptService interface {
	Get(ctx context.Context, taskID string) (*script.Record, error)
	GetOrGenerate(ctx context.Context, taskID string, scriptType scriptgen.ScriptType, regenerate bool) (*script.Record, error)
}

type Handler struct {
	store   *task.Store
	queue   Enqueuer
	scripts ScriptService
	logger  *zap.Logger
}

func NewHandler(store *task.Store, queue Enqueuer, scripts ScriptService, logger *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		queue:   queue,
		scripts: scripts,
		logger:  logger,
	}
}

type AnalyzeRequest struct {
	URL            string `json:"url" binding:"required"`
	CallbackURL    string `json:"callback_url"`
	AnalysisPrompt string `json:"analysis_prompt"`
	SyncToFeishu   bool   `json:"sync_to_feishu"`
	SyncToNotion   bool   `json:"sync_to_notion"`
}

// handleAnalyze creates a new analysis task and queues it.
func (h *Handler) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := downloader.ValidateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL. Must be a TikTok or Douyin video URL."})
		return
	}

	t, err := h.store.Create(c.Request.Context(), task.CreateParams{
		URL:            req.URL,
		CallbackURL:    req.CallbackURL,
		AnalysisPrompt: req.AnalysisPrompt,
		SyncToFeishu:   req.SyncToFeishu,
		SyncToNotion:   req.SyncToNotion,
	})
	if err != nil {
		h.logger.Error("task creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	if err := h.queue.EnqueueAnalyze(c.Request.Context(), t.ID); err != nil {
		h.logger.Error("task enqueue failed", zap.String("task_id", t.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue task"})
		return
	}

	h.logger.Info("task created and queued", zap.String("task_id", t.ID), zap.String("url", t.URL))
	c.JSON(http.StatusOK, gin.H{
		"task_id": t.ID,
		"status":  t.Status,
		"message": "Task created and queued for processing",
	})
}

// handleStatus returns the full persisted task record.
func (h *Handler) handleStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	t, err := h.store.Get(c.Request.Context(), taskID)
	if errors.Is(err, task.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task " + taskID + " not found"})
		return
	}
	if err != nil {
		h.logger.Error("task lookup failed", zap.String("task_id", taskID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load task"})
		return
	}
	c.JSON(http.StatusOK, t)
}

// handleCancel cancels a pending task. Tasks already picked up by a worker
// cannot be cancelled.
func (h *Handler) handleCancel(c *gin.Context) {
	taskID := c.Param("taskId")
	_, err := h.store.Cancel(c.Request.Context(), taskID)
	switch {
	case errors.Is(err, task.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task " + taskID + " not found"})
	case errors.Is(err, task.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot cancel a task that has already started"})
	case err != nil:
		h.logger.Error("task cancel failed", zap.String("task_id", taskID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel task"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Task " + taskID + " cancelled"})
	}
}

type ScriptRequest struct {
	VideoAnalysisID string `json:"video_analysis_id" binding:"required"`
	ScriptType      string `json:"script_type"`
	Regenerate      bool   `json:"regenerate"`
}

// handleGenerateScript returns the cached script for an analysis, generating
// one synchronously when none exists or regeneration is requested.
func (h *Handler) handleGenerateScript(c *gin.Context) {
	var req ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scriptType := scriptgen.ScriptType(req.ScriptType)
	if req.ScriptType == "" {
		scriptType = scriptgen.ScriptTypeFull
	}
	if !scriptType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script_type must be \"full\" or \"simple\""})
		return
	}

	rec, err := h.scripts.GetOrGenerate(c.Request.Context(), req.VideoAnalysisID, scriptType, req.Regenerate)
	switch {
	case errors.Is(err, task.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task " + req.VideoAnalysisID + " not found"})
	case errors.Is(err, script.ErrTaskNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "Task has no completed analysis result"})
	case err != nil:
		h.logger.Error("script generation failed",
			zap.String("task_id", req.VideoAnalysisID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Script generation failed"})
	default:
		c.JSON(http.StatusOK, rec)
	}
}

// handleGetScript returns the cached script for an analysis task.
func (h *Handler) handleGetScript(c *gin.Context) {
	taskID := c.Param("taskId")
	rec, err := h.scripts.Get(c.Request.Context(), taskID)
	if errors.Is(err, script.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No script found for task " + taskID})
		return
	}
	if err != nil {
		h.logger.Error("script lookup failed", zap.String("task_id", taskID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load script"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
