package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vidanalyzer/task"
)

// CallbackNotifier posts the terminal task state to the task's callback URL.
// Delivery is best effort: failures are logged and dropped.
type CallbackNotifier struct {
	client *http.Client
	logger *zap.Logger
}

func NewCallbackNotifier(timeout time.Duration, logger *zap.Logger) *CallbackNotifier {
	return &CallbackNotifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type callbackPayload struct {
	TaskID string               `json:"task_id"`
	Status task.Status          `json:"status"`
	Result *task.AnalysisResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func (n *CallbackNotifier) Notify(ctx context.Context, t *task.Task) {
	payload := callbackPayload{
		TaskID: t.ID,
		Status: t.Status,
		Result: t.Result,
		Error:  t.Error,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("encode callback payload", zap.String("task_id", t.ID), zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.CallbackURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("build callback request", zap.String("task_id", t.ID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("callback delivery failed",
			zap.String("task_id", t.ID), zap.String("callback_url", t.CallbackURL), zap.Error(err))
		return
	}
	resp.Body.Close()

	n.logger.Info("callback delivered",
		zap.String("task_id", t.ID), zap.Int("status_code", resp.StatusCode))
}
