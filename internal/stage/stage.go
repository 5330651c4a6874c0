package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lamim/campaignforge/internal/api"
	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/internal/library"
	"github.com/lamim/campaignforge/internal/metrics"
	"github.com/lamim/campaignforge/internal/util"
	"github.com/lamim/campaignforge/pkg/models"
)

// largeContextThreshold decides whether a model gets the full exemplar
// documents or a condensed digest.
const largeContextThreshold = 32768

// State carries the accumulated pipeline results into each stage. Stages
// read what earlier stages produced and fill in their own fields.
type State struct {
	Request  string
	Outline  *models.Outline
	Plot     *models.PlotStructure
	Sections map[string]string
	Elements *models.ElementSet
	Draft    string
	Polished string
}

// Stage is one step of the campaign pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

// Deps bundles everything a stage needs to talk to models.
type Deps struct {
	Client  *api.Client
	Cfg     *config.Config
	Secrets *config.Secrets
	Library *library.Loader
	Logger  *slog.Logger
	Metrics *metrics.Collector

	// Progress is called as section work completes. May be nil.
	Progress func(completed, total int, label string)
}

// completeText renders nothing, just runs the prompt against the role's model
// and strips reasoning tags from the answer.
func (d *Deps) completeText(ctx context.Context, role, prompt string) (string, error) {
	modelCfg, ok := d.Cfg.Models[role]
	if !ok {
		return "", fmt.Errorf("no model configured for role %q", role)
	}
	apiKey := d.Secrets.GetAPIKey(modelCfg.BaseURL)

	messages := d.buildMessages(prompt)
	content, err := d.Client.Complete(ctx, modelCfg, apiKey, messages)
	if err != nil {
		return "", err
	}
	return util.StripThinkTags(content), nil
}

// completeJSON runs the prompt expecting a JSON object back, applies the
// extraction and repair chain, and unmarshals into v. The role's structure
// temperature is used when set.
func (d *Deps) completeJSON(ctx context.Context, role, prompt string, v interface{}) error {
	modelCfg, ok := d.Cfg.Models[role]
	if !ok {
		return fmt.Errorf("no model configured for role %q", role)
	}
	if modelCfg.StructureTemperature > 0 {
		modelCfg.Temperature = modelCfg.StructureTemperature
	}
	apiKey := d.Secrets.GetAPIKey(modelCfg.BaseURL)

	messages := d.buildMessages(prompt)
	content, err := d.Client.Complete(ctx, modelCfg, apiKey, messages)
	if err != nil {
		return err
	}

	return parseJSONResponse(content, v)
}

func (d *Deps) buildMessages(prompt string) []api.Message {
	var messages []api.Message
	if d.Cfg.PromptTemplates.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: d.Cfg.PromptTemplates.SystemPrompt})
	}
	return append(messages, api.Message{Role: "user", Content: prompt})
}

// exemplarContext picks the context shape for a role: complete documents for
// large-context models, a condensed digest otherwise.
func (d *Deps) exemplarContext(role string) string {
	if d.Library == nil {
		return ""
	}
	modelCfg := d.Cfg.Models[role]
	if modelCfg.ContextSize >= largeContextThreshold {
		return d.Library.Full(d.Cfg.Library.FullCount)
	}
	return d.Library.Condensed(d.Cfg.Library.CondensedCount)
}

// parseJSONResponse runs the full extraction and repair chain on a model
// response and unmarshals the result.
func parseJSONResponse(content string, v interface{}) error {
	s := util.ExtractJSON(util.StripThinkTags(content))
	s = util.SanitizeJSON(s)

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	repaired := util.RepairJSON(s)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("failed to parse JSON response after repair: %w", err)
	}
	return nil
}
