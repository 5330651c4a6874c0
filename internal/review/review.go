package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lamim/campaignforge/internal/api"
	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/internal/util"
	"github.com/lamim/campaignforge/pkg/models"
)

// Reviewer scores a finished campaign document against the review rubric
// using the configured review model.
type Reviewer struct {
	cfg       *config.Config
	secrets   *config.Secrets
	apiClient *api.Client
	logger    *slog.Logger
}

// New creates a reviewer
func New(cfg *config.Config, secrets *config.Secrets, apiClient *api.Client, logger *slog.Logger) *Reviewer {
	return &Reviewer{
		cfg:       cfg,
		secrets:   secrets,
		apiClient: apiClient,
		logger:    logger.With("component", "review"),
	}
}

// Enabled reports whether a review model is configured and switched on.
func Enabled(cfg *config.Config) bool {
	mc, ok := cfg.Models["review"]
	return ok && mc.Enabled
}

// Evaluate scores the document. The content is truncated to fit the review
// model's context before prompting.
func (r *Reviewer) Evaluate(ctx context.Context, content string) (*models.ReviewResult, error) {
	reviewModel := r.cfg.Models["review"]

	// Rough 4 chars/token budget, leaving room for rubric and response
	maxChars := (reviewModel.ContextSize - reviewModel.MaxOutputTokens) * 4 * 3 / 4
	if maxChars > 0 && len(content) > maxChars {
		r.logger.Warn("Truncating document for review",
			"content_length", len(content),
			"max_chars", maxChars)
		content = util.TruncateString(content, maxChars)
	}

	prompt, err := util.RenderTemplate(r.cfg.PromptTemplates.ReviewRubric, map[string]interface{}{
		"Content": content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render review template: %w", err)
	}

	apiKey := r.secrets.GetAPIKey(reviewModel.BaseURL)
	responseText, err := r.apiClient.Complete(ctx, reviewModel, apiKey, []api.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	scores, err := r.parseResponse(responseText)
	if err != nil {
		r.logger.Error("Failed to parse review response",
			"error", err,
			"response_length", len(responseText))
		return nil, fmt.Errorf("failed to parse review response: %w", err)
	}

	return &models.ReviewResult{
		Scores: scores,
		Total:  averageScore(scores),
	}, nil
}

func (r *Reviewer) parseResponse(response string) (map[string]models.CriteriaScore, error) {
	jsonStr := util.ExtractJSON(util.StripThinkTags(response))
	jsonStr = util.SanitizeJSON(jsonStr)

	// Any criteria the model returns are accepted; the rubric names four but
	// models sometimes add their own
	var scores map[string]models.CriteriaScore
	if err := json.Unmarshal([]byte(jsonStr), &scores); err != nil {
		repaired := util.RepairJSON(jsonStr)
		if err := json.Unmarshal([]byte(repaired), &scores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("review returned no criteria")
	}
	return scores, nil
}

func averageScore(scores map[string]models.CriteriaScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, score := range scores {
		sum += score.Score
	}
	return float64(sum) / float64(len(scores))
}
