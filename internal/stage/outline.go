package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lamim/campaignforge/internal/util"
	"github.com/lamim/campaignforge/pkg/models"
)

// OutlineStage produces the structured campaign skeleton every later stage
// builds on.
type OutlineStage struct {
	deps *Deps
}

// NewOutlineStage creates the outline stage
func NewOutlineStage(deps *Deps) *OutlineStage {
	return &OutlineStage{deps: deps}
}

func (s *OutlineStage) Name() string { return "outline" }

// Run generates the outline. A parse failure does not abort the pipeline: a
// skeleton outline derived from the request keeps generation going.
func (s *OutlineStage) Run(ctx context.Context, st *State) error {
	logger := s.deps.Logger.With("stage", s.Name())

	prompt, err := util.RenderTemplate(s.deps.Cfg.PromptTemplates.Outline, map[string]interface{}{
		"Request": st.Request,
		"Context": s.deps.exemplarContext("outline"),
	})
	if err != nil {
		return fmt.Errorf("failed to render outline template: %w", err)
	}

	var outline models.Outline
	if err := s.deps.completeJSON(ctx, "outline", prompt, &outline); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Outline generation failed, using skeleton outline", "error", err)
		st.Outline = skeletonOutline(st.Request)
		return nil
	}

	if err := validateOutline(&outline); err != nil {
		logger.Warn("Outline incomplete, using skeleton outline", "error", err)
		st.Outline = skeletonOutline(st.Request)
		return nil
	}

	normalizeOutline(&outline)
	st.Outline = &outline

	logger.Info("Outline generated",
		"title", outline.Title,
		"acts", len(outline.Acts),
		"npcs", len(outline.NPCs),
		"locations", len(outline.Locations))
	return nil
}

func validateOutline(o *models.Outline) error {
	if strings.TrimSpace(o.Title) == "" {
		return fmt.Errorf("outline has no title")
	}
	if len(o.Acts) == 0 {
		return fmt.Errorf("outline has no acts")
	}
	return nil
}

// normalizeOutline fixes act numbering the model got wrong and drops
// nameless NPCs and locations. Duplicate or missing act numbers would
// collide on the per-act section keys, so any conflict renumbers all acts
// sequentially.
func normalizeOutline(o *models.Outline) {
	numbers := make(map[int]bool, len(o.Acts))
	renumber := false
	for _, a := range o.Acts {
		if a.Number == 0 || numbers[a.Number] {
			renumber = true
			break
		}
		numbers[a.Number] = true
	}
	for i := range o.Acts {
		if renumber {
			o.Acts[i].Number = i + 1
		}
		if o.Acts[i].Sessions == 0 {
			o.Acts[i].Sessions = 3
		}
	}

	npcs := o.NPCs[:0]
	for _, n := range o.NPCs {
		if strings.TrimSpace(n.Name) != "" {
			npcs = append(npcs, n)
		}
	}
	o.NPCs = npcs

	locs := o.Locations[:0]
	for _, l := range o.Locations {
		if strings.TrimSpace(l.Name) != "" {
			locs = append(locs, l)
		}
	}
	o.Locations = locs

	if o.EstimatedSessions == 0 {
		for _, a := range o.Acts {
			o.EstimatedSessions += a.Sessions
		}
	}
}

// skeletonOutline is the fallback when the model's outline cannot be parsed.
// Minimal but structurally complete, so the rest of the pipeline runs.
func skeletonOutline(request string) *models.Outline {
	title := util.TruncateString(strings.TrimSpace(request), 60)
	if title == "" {
		title = "Untitled Campaign"
	}

	return &models.Outline{
		Title:             title,
		CoreConcept:       request,
		Themes:            []string{"adventure", "mystery"},
		EstimatedSessions: 9,
		CentralMystery:    "What lies behind the events the players have been drawn into?",
		Acts: []models.Act{
			{Number: 1, Title: "Act 1: The Hook", Sessions: 3},
			{Number: 2, Title: "Act 2: Rising Stakes", Sessions: 3},
			{Number: 3, Title: "Act 3: Resolution", Sessions: 3},
		},
	}
}
