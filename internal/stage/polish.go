package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lamim/campaignforge/internal/util"
)

// PolishStage feeds the assembled draft back through a model for consistency
// and formatting cleanup. The polished text only replaces the draft when it
// is substantial; a degenerate short answer means the draft stands.
type PolishStage struct {
	deps *Deps
}

// NewPolishStage creates the polish stage
func NewPolishStage(deps *Deps) *PolishStage {
	return &PolishStage{deps: deps}
}

func (s *PolishStage) Name() string { return "polish" }

func (s *PolishStage) Run(ctx context.Context, st *State) error {
	if strings.TrimSpace(st.Draft) == "" {
		return fmt.Errorf("polish stage requires an assembled draft")
	}
	logger := s.deps.Logger.With("stage", s.Name())

	prompt, err := util.RenderTemplate(s.deps.Cfg.PromptTemplates.Polish, map[string]interface{}{
		"Content": st.Draft,
	})
	if err != nil {
		return fmt.Errorf("failed to render polish template: %w", err)
	}

	polished, err := s.deps.completeText(ctx, "polish", prompt)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Polish failed, keeping draft", "error", err)
		return nil
	}

	minLen := s.deps.Cfg.Generation.MinPolishLength
	if len(polished) <= minLen {
		logger.Warn("Polished text too short, keeping draft",
			"polished_length", len(polished),
			"min_length", minLen)
		return nil
	}

	st.Polished = polished
	logger.Info("Draft polished",
		"draft_length", len(st.Draft),
		"polished_length", len(polished))
	return nil
}
