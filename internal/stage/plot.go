package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lamim/campaignforge/internal/util"
	"github.com/lamim/campaignforge/pkg/models"
)

// PlotStage expands the outline into per-act narratives plus the structural
// plot elements. Acts are generated sequentially: each act's prompt carries
// the narratives of the acts before it.
type PlotStage struct {
	deps *Deps
}

// NewPlotStage creates the plot stage
func NewPlotStage(deps *Deps) *PlotStage {
	return &PlotStage{deps: deps}
}

func (s *PlotStage) Name() string { return "plot" }

func (s *PlotStage) Run(ctx context.Context, st *State) error {
	if st.Outline == nil {
		return fmt.Errorf("plot stage requires an outline")
	}
	logger := s.deps.Logger.With("stage", s.Name())

	plot := &models.PlotStructure{}
	if st.Plot != nil {
		// Resume: keep already generated narratives
		plot = st.Plot
	}

	for i, act := range st.Outline.Acts {
		if i < len(plot.ActNarratives) {
			continue
		}

		start := time.Now()
		narrative, err := s.generateActNarrative(ctx, st.Outline, act, plot.ActNarratives)
		if err != nil {
			return fmt.Errorf("failed to generate narrative for act %d: %w", act.Number, err)
		}

		plot.ActNarratives = append(plot.ActNarratives, models.ActNarrative{
			Number:    act.Number,
			Title:     act.Title,
			Narrative: narrative,
		})
		st.Plot = plot
		if s.deps.Progress != nil {
			s.deps.Progress(len(plot.ActNarratives), len(st.Outline.Acts), act.Title)
		}

		logger.Info("Act narrative generated",
			"act", act.Number,
			"length", len(narrative),
			"duration", time.Since(start))
	}

	s.generatePlotElements(ctx, logger, st, plot)
	st.Plot = plot
	return nil
}

func (s *PlotStage) generateActNarrative(ctx context.Context, outline *models.Outline, act models.Act, previous []models.ActNarrative) (string, error) {
	prompt, err := util.RenderTemplate(s.deps.Cfg.PromptTemplates.ActNarrative, map[string]interface{}{
		"Title":          outline.Title,
		"CoreConcept":    outline.CoreConcept,
		"CentralMystery": outline.CentralMystery,
		"ActNumber":      act.Number,
		"ActTitle":       act.Title,
		"Sessions":       act.Sessions,
		"PreviousActs":   formatPreviousActs(previous),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render act narrative template: %w", err)
	}

	narrative, err := s.deps.completeText(ctx, "plot", prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(narrative) == "" {
		return "", fmt.Errorf("empty narrative returned")
	}
	return narrative, nil
}

// generatePlotElements fills turning points, player agency moments, and
// cliffhangers. Failures leave the lists empty; they are supplementary.
func (s *PlotStage) generatePlotElements(ctx context.Context, logger *slog.Logger, st *State, plot *models.PlotStructure) {
	if len(plot.TurningPoints) > 0 {
		return
	}

	var summaries strings.Builder
	for _, an := range plot.ActNarratives {
		summaries.WriteString(fmt.Sprintf("Act %d: %s\n%s\n\n", an.Number, an.Title, util.TruncateString(an.Narrative, 600)))
	}

	prompt, err := util.RenderTemplate(s.deps.Cfg.PromptTemplates.PlotElements, map[string]interface{}{
		"Title":        st.Outline.Title,
		"ActSummaries": summaries.String(),
	})
	if err != nil {
		logger.Warn("Failed to render plot elements template", "error", err)
		return
	}

	response, err := s.deps.completeText(ctx, "plot", prompt)
	if err != nil {
		logger.Warn("Plot elements generation failed, continuing without them", "error", err)
		return
	}

	// Parsed field by field so one malformed list does not discard the rest
	jsonStr := util.SanitizeJSON(util.ExtractJSON(response))
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		repaired := util.RepairJSON(jsonStr)
		if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
			logger.Warn("Plot elements response unparseable, continuing without them", "error", err)
			return
		}
	}

	plot.TurningPoints = stringList(fields["turning_points"])
	plot.PlayerAgency = stringList(fields["player_agency"])
	plot.Cliffhangers = stringList(fields["cliffhangers"])
}

func stringList(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	items, err := util.ParseStringArray(string(raw), 0)
	if err != nil {
		return nil
	}
	return util.DeduplicateStrings(items)
}

func formatPreviousActs(previous []models.ActNarrative) string {
	if len(previous) == 0 {
		return "This is the first act."
	}

	var b strings.Builder
	b.WriteString("Narratives of the acts so far:\n\n")
	for _, an := range previous {
		b.WriteString(fmt.Sprintf("Act %d: %s\n%s\n\n", an.Number, an.Title, an.Narrative))
	}
	return b.String()
}
