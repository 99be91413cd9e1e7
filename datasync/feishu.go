package datasync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"vidanalyzer/task"
)

const defaultFeishuBaseURL = "https://open.feishu.cn/open-apis"

// FeishuSyncer upserts analysis results into a Feishu Bitable table. Records
// are keyed by task id so repeated pipeline attempts update in place.
type FeishuSyncer struct {
	appID     string
	appSecret string
	appToken  string
	tableID   string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger

	mu           sync.Mutex
	tenantToken  string
	tokenExpires time.Time
}

type FeishuConfig struct {
	AppID     string
	AppSecret string
	AppToken  string
	TableID   string
	BaseURL   string
	Timeout   time.Duration
}

func NewFeishuSyncer(cfg FeishuConfig, logger *zap.Logger) *FeishuSyncer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultFeishuBaseURL
	}
	return &FeishuSyncer{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		appToken:  cfg.AppToken,
		tableID:   cfg.TableID,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

func (f *FeishuSyncer) Name() string { return "feishu" }

// Sync upserts the task's analysis into the Bitable table and returns the
// record id.
func (f *FeishuSyncer) Sync(ctx context.Context, t *task.Task) (string, error) {
	if t.Result == nil {
		return "", fmt.Errorf("task %s has no analysis result to sync", t.ID)
	}
	fields := feishuFields(t)

	recordID, err := f.findRecord(ctx, t.ID)
	if err != nil {
		// Lookup failures degrade to create; worst case is a duplicate row,
		// never a lost result.
		f.logger.Warn("feishu record lookup failed", zap.String("task_id", t.ID), zap.Error(err))
	}
	if recordID != "" {
		return f.updateRecord(ctx, recordID, fields)
	}
	return f.createRecord(ctx, fields)
}

// feishuFields maps the analysis result onto the table's Chinese field names.
func feishuFields(t *task.Task) map[string]any {
	r := t.Result
	fields := map[string]any{
		"任务ID": t.ID,
		"视频链接": map[string]any{
			"link": t.URL,
			"text": truncate(t.URL, 50),
		},
		"视频标题":  defaultIfEmpty(truncate(r.VideoTitle, 100), "未知标题"),
		"作者":    defaultIfEmpty(truncate(r.Author, 50), "未知作者"),
		"时长(秒)": r.Duration,
		"视频描述":  truncate(r.Description, 2000),
		"话题标签":  truncate(strings.Join(r.Hashtags, ", "), 500),
		"创建时间":  time.Now().UnixMilli(),
		"内容摘要":  truncate(r.ContentSummary, 2000),
		"关键话题":  truncate(strings.Join(r.KeyTopics, ", "), 500),
		"情感倾向":  defaultIfEmpty(r.Sentiment, "neutral"),
		"互动潜力":  defaultIfEmpty(r.EngagementPrediction, "medium"),
		"改进建议":  truncate(bulletList(r.Recommendations), 2000),
	}
	return fields
}

type feishuTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
}

func (f *FeishuSyncer) accessToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tenantToken != "" && time.Now().Before(f.tokenExpires) {
		return f.tenantToken, nil
	}

	payload := map[string]string{"app_id": f.appID, "app_secret": f.appSecret}
	var out feishuTokenResponse
	if err := f.post(ctx, f.baseURL+"/auth/v3/tenant_access_token/internal", "", payload, &out); err != nil {
		return "", err
	}
	if out.Code != 0 {
		return "", fmt.Errorf("feishu token request failed: %s", out.Msg)
	}

	// Tokens live two hours; refresh at ninety minutes.
	f.tenantToken = out.TenantAccessToken
	f.tokenExpires = time.Now().Add(90 * time.Minute)
	return f.tenantToken, nil
}

type feishuSearchResponse struct {
	Code int `json:"code"`
	Data struct {
		Items []struct {
			RecordID string `json:"record_id"`
		} `json:"items"`
	} `json:"data"`
}

func (f *FeishuSyncer) findRecord(ctx context.Context, taskID string) (string, error) {
	token, err := f.accessToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"filter": map[string]any{
			"conjunction": "and",
			"conditions": []map[string]any{{
				"field_name": "任务ID",
				"operator":   "is",
				"value":      []string{taskID},
			}},
		},
		"page_size": 1,
	}

	url := fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records/search", f.baseURL, f.appToken, f.tableID)
	var out feishuSearchResponse
	if err := f.post(ctx, url, token, payload, &out); err != nil {
		return "", err
	}
	if out.Code != 0 || len(out.Data.Items) == 0 {
		return "", nil
	}
	return out.Data.Items[0].RecordID, nil
}

type feishuRecordResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Record struct {
			RecordID string `json:"record_id"`
		} `json:"record"`
	} `json:"data"`
}

func (f *FeishuSyncer) createRecord(ctx context.Context, fields map[string]any) (string, error) {
	token, err := f.accessToken(ctx)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records", f.baseURL, f.appToken, f.tableID)
	var out feishuRecordResponse
	if err := f.post(ctx, url, token, map[string]any{"fields": fields}, &out); err != nil {
		return "", err
	}
	if out.Code != 0 {
		return "", fmt.Errorf("feishu create record failed: %s", out.Msg)
	}
	f.logger.Info("created feishu record", zap.String("record_id", out.Data.Record.RecordID))
	return out.Data.Record.RecordID, nil
}

func (f *FeishuSyncer) updateRecord(ctx context.Context, recordID string, fields map[string]any) (string, error) {
	token, err := f.accessToken(ctx)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records/%s", f.baseURL, f.appToken, f.tableID, recordID)
	var out feishuRecordResponse
	if err := f.send(ctx, http.MethodPut, url, token, map[string]any{"fields": fields}, &out); err != nil {
		return "", err
	}
	if out.Code != 0 {
		return "", fmt.Errorf("feishu update record failed: %s", out.Msg)
	}
	f.logger.Info("updated feishu record", zap.String("record_id", recordID))
	return recordID, nil
}

func (f *FeishuSyncer) post(ctx context.Context, url, token string, payload, out any) error {
	return f.send(ctx, http.MethodPost, url, token, payload, out)
}

func (f *FeishuSyncer) send(ctx context.Context, method, url, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feishu API returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
