package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"vidanalyzer/downloader"
)

// defaultPrompt drives the structured analysis when the caller supplies no
// custom prompt. The JSON contract at the end is what parseResponse expects.
const defaultPrompt = `你是一个专业的短视频内容分析师。请分析这个TikTok/抖音视频并提供以下信息：

1. 内容摘要（100字以内）
2. 内容分类（主题类型、目标受众）
3. 关键话题（3-5个）
4. 情感基调（positive/neutral/negative，简述原因）
5. 互动潜力评估（high/medium/low，分析原因）
6. 营销价值分析（是否适合品牌合作、适合的品牌类型、植入方式建议）
7. 改进建议（2-3条）

请用JSON格式输出，确保可以被解析：
` + "```json" + `
{
    "summary": "内容摘要",
    "category": "内容分类",
    "target_audience": "目标受众",
    "topics": ["话题1", "话题2"],
    "sentiment": "positive/neutral/negative",
    "sentiment_reason": "情感基调原因",
    "engagement_level": "high/medium/low",
    "engagement_reason": "互动潜力原因",
    "marketing_value": {
        "suitable_for_brands": true,
        "brand_types": ["品牌类型1"],
        "integration_suggestions": ["植入建议1"]
    },
    "recommendations": ["建议1", "建议2"]
}
` + "```"

var jsonFencePatterns = []*regexp.Regexp{
	regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```"),
	regexp.MustCompile("```\\s*([\\s\\S]*?)\\s*```"),
	regexp.MustCompile(`\{[\s\S]*\}`),
}

type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	Timeout      time.Duration
	MaxVideoSize int64
}

// Client talks to the Gemini generateContent endpoint through a configurable
// proxy base URL.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Request carries one analysis invocation: a downloaded file, an optional
// custom prompt, and the acquisition metadata used for prompt context.
type Request struct {
	VideoPath string
	Prompt    string
	Metadata  downloader.Metadata
}

// Result is the normalized analysis output.
type Result struct {
	Analysis        string
	Summary         string
	Topics          []string
	Sentiment       string
	EngagementLevel string
	Recommendations []string
	Parsed          map[string]any
}

type generateContentRequest struct {
	Contents         []content      `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze uploads the video inline (base64) together with the prompt and
// parses the model's JSON answer into a normalized result.
func (c *Client) Analyze(ctx context.Context, req Request) (*Result, error) {
	info, err := os.Stat(req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("video file not found: %s", req.VideoPath)
	}
	if c.cfg.MaxVideoSize > 0 && info.Size() > c.cfg.MaxVideoSize {
		return nil, fmt.Errorf("video file too large for inline upload: %d bytes", info.Size())
	}

	raw, err := os.ReadFile(req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("read video file: %w", err)
	}

	payload := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: "video/mp4",
					Data:     base64.StdEncoding.EncodeToString(raw),
				}},
				{Text: buildPrompt(req.Prompt, req.Metadata)},
			},
		}},
		GenerationConfig: map[string]any{
			"temperature":     0.7,
			"topP":            0.95,
			"topK":            40,
			"maxOutputTokens": 4096,
		},
	}

	text, err := c.generate(ctx, payload)
	if err != nil {
		return nil, err
	}

	parsed := parseResponse(text)
	return &Result{
		Analysis:        text,
		Summary:         stringField(parsed, "summary"),
		Topics:          stringSliceField(parsed, "topics"),
		Sentiment:       stringFieldOr(parsed, "sentiment", "neutral"),
		EngagementLevel: stringFieldOr(parsed, "engagement_level", "medium"),
		Recommendations: stringSliceField(parsed, "recommendations"),
		Parsed:          parsed,
	}, nil
}

// GenerateText runs a text-only prompt through the same model. Used by the
// script generator, which builds its prompt from a finished analysis rather
// than from video bytes.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	payload := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: map[string]any{
			"temperature":     0.7,
			"topP":            0.95,
			"topK":            40,
			"maxOutputTokens": 8192,
		},
	}
	return c.generate(ctx, payload)
}

func (c *Client) generate(ctx context.Context, payload generateContentRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("analysis API request failed: status %d", resp.StatusCode)
	}

	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode analysis response: %w", err)
	}

	var text strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		break
	}
	if text.Len() == 0 {
		return "", errors.New("empty response from analysis API")
	}
	return text.String(), nil
}

// buildPrompt prefixes the analysis prompt with a metadata context block so
// the model sees the resolver-extracted video facts.
func buildPrompt(custom string, meta downloader.Metadata) string {
	var parts []string

	var ctxLines []string
	if meta.Title != "" {
		ctxLines = append(ctxLines, "- 标题: "+meta.Title)
	}
	if meta.Author != "" {
		ctxLines = append(ctxLines, "- 作者: "+meta.Author)
	}
	if meta.Description != "" && meta.Description != meta.Title {
		ctxLines = append(ctxLines, "- 描述: "+meta.Description)
	}
	if len(meta.Hashtags) > 0 {
		ctxLines = append(ctxLines, "- 标签: "+strings.Join(meta.Hashtags, ", "))
	}
	if meta.Duration > 0 {
		ctxLines = append(ctxLines, fmt.Sprintf("- 时长: %.0f秒", meta.Duration))
	}
	if len(ctxLines) > 0 {
		parts = append(parts, "## 视频元数据\n"+strings.Join(ctxLines, "\n"))
	}

	if custom != "" {
		parts = append(parts, "## 分析要求\n"+custom, "请用JSON格式输出分析结果。")
	} else {
		parts = append(parts, defaultPrompt)
	}
	return strings.Join(parts, "\n\n")
}

// ExtractJSON pulls the first parsable JSON object out of a model answer,
// stripping markdown fences when present. Returns "" when no candidate
// parses.
func ExtractJSON(text string) string {
	for _, pattern := range jsonFencePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := m[0]
		if len(m) > 1 {
			candidate = m[1]
		}
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return ""
}

// parseResponse decodes the JSON object in the model answer. Free text with
// no JSON degrades to a summary-only map.
func parseResponse(text string) map[string]any {
	if candidate := ExtractJSON(text); candidate != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return parsed
		}
	}

	// Truncate on rune boundaries; model answers are usually Chinese.
	summary := text
	if runes := []rune(summary); len(runes) > 500 {
		summary = string(runes[:500])
	}
	return map[string]any{"summary": summary, "raw_response": text}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stringFieldOr(m map[string]any, key, fallback string) string {
	if v := stringField(m, key); v != "" {
		return v
	}
	return fallback
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
