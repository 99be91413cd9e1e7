package datasync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"vidanalyzer/task"
)

const (
	defaultNotionBaseURL = "https://api.notion.com/v1"
	notionAPIVersion     = "2022-06-28"
)

// NotionSyncer upserts analysis results as pages in a Notion database, keyed
// by the 任务ID rich text property.
type NotionSyncer struct {
	apiKey     string
	databaseID string
	baseURL    string
	client     *http.Client
	logger     *zap.Logger
}

type NotionConfig struct {
	APIKey     string
	DatabaseID string
	BaseURL    string
	Timeout    time.Duration
}

func NewNotionSyncer(cfg NotionConfig, logger *zap.Logger) *NotionSyncer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultNotionBaseURL
	}
	return &NotionSyncer{
		apiKey:     cfg.APIKey,
		databaseID: cfg.DatabaseID,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (n *NotionSyncer) Name() string { return "notion" }

// Sync creates or updates the page for the task and returns its page id.
func (n *NotionSyncer) Sync(ctx context.Context, t *task.Task) (string, error) {
	if t.Result == nil {
		return "", fmt.Errorf("task %s has no analysis result to sync", t.ID)
	}
	props := notionProperties(t)

	pageID, err := n.findPage(ctx, t.ID)
	if err != nil {
		n.logger.Warn("notion page lookup failed", zap.String("task_id", t.ID), zap.Error(err))
	}
	if pageID != "" {
		if err := n.updatePage(ctx, pageID, props); err != nil {
			return "", err
		}
		return pageID, nil
	}
	return n.createPage(ctx, props)
}

func notionProperties(t *task.Task) map[string]any {
	r := t.Result
	return map[string]any{
		"视频标题":  titleProp(defaultIfEmpty(truncate(r.VideoTitle, 100), "未知标题")),
		"任务ID":  richTextProp(t.ID),
		"视频链接":  urlProp(t.URL),
		"作者":    richTextProp(defaultIfEmpty(truncate(r.Author, 50), "未知作者")),
		"时长(秒)": numberProp(r.Duration),
		"视频描述":  richTextProp(truncate(r.Description, 2000)),
		"话题标签":  richTextProp(truncate(strings.Join(r.Hashtags, ", "), 500)),
		"内容摘要":  richTextProp(truncate(r.ContentSummary, 2000)),
		"关键话题":  richTextProp(truncate(strings.Join(r.KeyTopics, ", "), 500)),
		"情感倾向":  selectProp(defaultIfEmpty(r.Sentiment, "neutral")),
		"互动潜力":  selectProp(defaultIfEmpty(r.EngagementPrediction, "medium")),
		"改进建议":  richTextProp(truncate(bulletList(r.Recommendations), 2000)),
		"创建时间":  dateProp(time.Now()),
	}
}

func titleProp(s string) map[string]any {
	return map[string]any{"title": []map[string]any{{"text": map[string]any{"content": s}}}}
}

func richTextProp(s string) map[string]any {
	return map[string]any{"rich_text": []map[string]any{{"text": map[string]any{"content": s}}}}
}

func numberProp(v float64) map[string]any {
	return map[string]any{"number": v}
}

func urlProp(s string) map[string]any {
	return map[string]any{"url": s}
}

func selectProp(s string) map[string]any {
	return map[string]any{"select": map[string]any{"name": s}}
}

func dateProp(t time.Time) map[string]any {
	return map[string]any{"date": map[string]any{"start": t.Format(time.RFC3339)}}
}

type notionQueryResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

func (n *NotionSyncer) findPage(ctx context.Context, taskID string) (string, error) {
	payload := map[string]any{
		"filter": map[string]any{
			"property":  "任务ID",
			"rich_text": map[string]any{"equals": taskID},
		},
		"page_size": 1,
	}

	var out notionQueryResponse
	url := fmt.Sprintf("%s/databases/%s/query", n.baseURL, n.databaseID)
	if err := n.send(ctx, http.MethodPost, url, payload, &out); err != nil {
		return "", err
	}
	if len(out.Results) == 0 {
		return "", nil
	}
	return out.Results[0].ID, nil
}

type notionPageResponse struct {
	ID string `json:"id"`
}

func (n *NotionSyncer) createPage(ctx context.Context, props map[string]any) (string, error) {
	payload := map[string]any{
		"parent":     map[string]any{"database_id": n.databaseID},
		"properties": props,
	}

	var out notionPageResponse
	if err := n.send(ctx, http.MethodPost, n.baseURL+"/pages", payload, &out); err != nil {
		return "", err
	}
	n.logger.Info("created notion page", zap.String("page_id", out.ID))
	return out.ID, nil
}

func (n *NotionSyncer) updatePage(ctx context.Context, pageID string, props map[string]any) error {
	payload := map[string]any{"properties": props}
	var out notionPageResponse
	url := fmt.Sprintf("%s/pages/%s", n.baseURL, pageID)
	if err := n.send(ctx, http.MethodPatch, url, payload, &out); err != nil {
		return err
	}
	n.logger.Info("updated notion page", zap.String("page_id", pageID))
	return nil
}

func (n *NotionSyncer) send(ctx context.Context, method, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Notion-Version", notionAPIVersion)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notion API returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
