package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vidanalyzer/downloader"
)

func writeTestVideo(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func geminiReply(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}},
	}
}

func TestAnalyzeParsesFencedJSON(t *testing.T) {
	reply := "Here is the analysis:\n```json\n" + `{
		"summary": "一个跳舞视频",
		"topics": ["舞蹈", "音乐"],
		"sentiment": "positive",
		"engagement_level": "high",
		"recommendations": ["加字幕"]
	}` + "\n```"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Path, "models/gemini-test:generateContent")

		var req generateContentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.NotEmpty(t, req.Contents[0].Parts[0].InlineData.Data)
		assert.Contains(t, req.Contents[0].Parts[1].Text, "视频元数据")

		json.NewEncoder(w).Encode(geminiReply(reply))
	}))
	defer srv.Close()

	c := New(Config{
		APIKey:       "test-key",
		Model:        "gemini-test",
		BaseURL:      srv.URL,
		Timeout:      5 * time.Second,
		MaxVideoSize: 1 << 20,
	}, zap.NewNop())

	res, err := c.Analyze(context.Background(), Request{
		VideoPath: writeTestVideo(t, 2048),
		Metadata:  downloader.Metadata{Title: "dance", Author: "someone", Duration: 15},
	})
	require.NoError(t, err)
	assert.Equal(t, "一个跳舞视频", res.Summary)
	assert.Equal(t, []string{"舞蹈", "音乐"}, res.Topics)
	assert.Equal(t, "positive", res.Sentiment)
	assert.Equal(t, "high", res.EngagementLevel)
	assert.Equal(t, []string{"加字幕"}, res.Recommendations)
	assert.Equal(t, reply, res.Analysis)
}

func TestAnalyzeFreeTextFallsBackToDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiReply("just plain prose, no structure"))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", Model: "m", BaseURL: srv.URL, Timeout: 5 * time.Second, MaxVideoSize: 1 << 20}, zap.NewNop())

	res, err := c.Analyze(context.Background(), Request{VideoPath: writeTestVideo(t, 2048)})
	require.NoError(t, err)
	assert.Equal(t, "neutral", res.Sentiment)
	assert.Equal(t, "medium", res.EngagementLevel)
	assert.Equal(t, "just plain prose, no structure", res.Summary)
}

func TestAnalyzeRejectsOversizedFile(t *testing.T) {
	c := New(Config{MaxVideoSize: 1024, Timeout: time.Second, BaseURL: "http://unused"}, zap.NewNop())

	_, err := c.Analyze(context.Background(), Request{VideoPath: writeTestVideo(t, 4096)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestAnalyzeSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxVideoSize: 1 << 20}, zap.NewNop())

	_, err := c.Analyze(context.Background(), Request{VideoPath: writeTestVideo(t, 2048)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestBuildPromptCustomVsDefault(t *testing.T) {
	meta := downloader.Metadata{Title: "t", Hashtags: []string{"a", "b"}}

	withCustom := buildPrompt("分析营销价值", meta)
	assert.Contains(t, withCustom, "分析营销价值")
	assert.Contains(t, withCustom, "- 标签: a, b")
	assert.NotContains(t, withCustom, "短视频内容分析师")

	withDefault := buildPrompt("", downloader.Metadata{})
	assert.True(t, strings.HasPrefix(withDefault, "你是一个专业的短视频内容分析师"))
}

func TestParseResponseBareJSON(t *testing.T) {
	parsed := parseResponse(`{"summary": "ok", "sentiment": "negative"}`)
	assert.Equal(t, "ok", parsed["summary"])
	assert.Equal(t, "negative", parsed["sentiment"])
}

func TestParseResponseFallbackTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("视频分析", 200)
	parsed := parseResponse(long)

	summary, ok := parsed["summary"].(string)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(summary))
	assert.Equal(t, 500, utf8.RuneCountInString(summary))
	assert.Equal(t, long, parsed["raw_response"])
}
