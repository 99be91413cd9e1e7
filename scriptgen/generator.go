// Package scriptgen turns a finished video analysis into a shoot-ready
// production script via the same Gemini model the analyzer uses.
package scriptgen

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vidanalyzer/analyzer"
	"vidanalyzer/task"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// TextGenerator produces model text from a prompt. Satisfied by
// analyzer.Client.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	model  TextGenerator
	logger *zap.Logger
}

func NewGenerator(model TextGenerator, logger *zap.Logger) *Generator {
	return &Generator{model: model, logger: logger}
}

// Generate builds the prompt from the task's analysis result, runs the
// model, and decodes the returned JSON into a ProductionScript. Fields the
// model omits for video_info are backfilled from the task.
func (g *Generator) Generate(ctx context.Context, t *task.Task, scriptType ScriptType) (*ProductionScript, error) {
	if t.Result == nil {
		return nil, fmt.Errorf("task %s has no analysis result", t.ID)
	}
	if !scriptType.Valid() {
		return nil, fmt.Errorf("unknown script type %q", scriptType)
	}

	prompt, err := buildPrompt(t, scriptType)
	if err != nil {
		return nil, err
	}

	g.logger.Info("generating production script",
		zap.String("task_id", t.ID),
		zap.String("script_type", string(scriptType)))

	text, err := g.model.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("script generation failed: %w", err)
	}

	raw := analyzer.ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("script response contained no parsable JSON")
	}

	var script ProductionScript
	if err := json.Unmarshal([]byte(raw), &script); err != nil {
		return nil, fmt.Errorf("decode production script: %w", err)
	}

	applyDefaults(&script, t)
	return &script, nil
}

func buildPrompt(t *task.Task, scriptType ScriptType) (string, error) {
	name := "prompts/full_script.txt"
	if scriptType == ScriptTypeSimple {
		name = "prompts/simple_script.txt"
	}
	raw, err := promptFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("load prompt template: %w", err)
	}

	r := t.Result
	prompt := string(raw)
	prompt = strings.ReplaceAll(prompt, "{{video_url}}", t.URL)
	prompt = strings.ReplaceAll(prompt, "{{duration}}", strconv.FormatFloat(r.Duration, 'f', -1, 64))
	prompt = strings.ReplaceAll(prompt, "{{author}}", r.Author)
	prompt = strings.ReplaceAll(prompt, "{{title}}", r.VideoTitle)
	prompt = strings.ReplaceAll(prompt, "{{existing_analysis}}", formatAnalysis(r))
	return prompt, nil
}

// formatAnalysis renders the stored analysis as the readable block the
// prompt templates expect.
func formatAnalysis(r *task.AnalysisResult) string {
	var parts []string

	if r.ContentSummary != "" {
		parts = append(parts, "**内容摘要**: "+r.ContentSummary)
	}
	if len(r.KeyTopics) > 0 {
		parts = append(parts, "**关键话题**: "+strings.Join(r.KeyTopics, ", "))
	}
	if r.Sentiment != "" {
		parts = append(parts, "**情感基调**: "+r.Sentiment)
	}
	if r.EngagementPrediction != "" {
		parts = append(parts, "**互动潜力**: "+r.EngagementPrediction)
	}
	if len(r.Recommendations) > 0 {
		parts = append(parts, "**改进建议**: "+strings.Join(r.Recommendations, ", "))
	}
	if r.Description != "" {
		parts = append(parts, "**视频描述**: "+r.Description)
	}
	if len(r.Hashtags) > 0 {
		parts = append(parts, "**话题标签**: "+strings.Join(r.Hashtags, ", "))
	}
	if r.AIAnalysis != "" {
		parts = append(parts, "**完整分析**:\n"+r.AIAnalysis)
	}

	if len(parts) == 0 {
		return "暂无分析结果"
	}
	return strings.Join(parts, "\n")
}

func applyDefaults(s *ProductionScript, t *task.Task) {
	if s.ScriptVersion == "" {
		s.ScriptVersion = "1.0"
	}
	if s.VideoInfo.OriginalURL == "" {
		s.VideoInfo.OriginalURL = t.URL
	}
	if s.VideoInfo.Author == "" {
		s.VideoInfo.Author = t.Result.Author
	}
	if s.VideoInfo.Title == "" {
		s.VideoInfo.Title = t.Result.VideoTitle
	}
	if s.VideoInfo.Duration == 0 {
		s.VideoInfo.Duration = t.Result.Duration
	}
}
