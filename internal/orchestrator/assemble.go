package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/lamim/campaignforge/internal/stage"
	"github.com/lamim/campaignforge/pkg/models"
)

// assembleDraft stitches the generated sections into one markdown body in
// outline order: acts first, then NPC write-ups, then location write-ups.
// Sections that failed to generate are simply absent.
func assembleDraft(st *stage.State) string {
	var b strings.Builder

	for _, act := range st.Outline.Acts {
		text, ok := st.Sections[fmt.Sprintf("act:%d", act.Number)]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("## Act %d: %s\n\n", act.Number, act.Title))
		b.WriteString(strings.TrimSpace(text))
		b.WriteString("\n\n")
	}

	writeDetailGroup(&b, "## Notable NPCs\n\n", npcNames(st.Outline), "npc:", st.Sections)
	writeDetailGroup(&b, "## Notable Locations\n\n", locationNames(st.Outline), "loc:", st.Sections)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeDetailGroup(b *strings.Builder, heading string, names []string, prefix string, sections map[string]string) {
	var present []string
	for _, name := range names {
		if _, ok := sections[prefix+name]; ok {
			present = append(present, name)
		}
	}
	if len(present) == 0 {
		return
	}

	b.WriteString(heading)
	for _, name := range present {
		b.WriteString(fmt.Sprintf("### %s\n\n", name))
		b.WriteString(strings.TrimSpace(sections[prefix+name]))
		b.WriteString("\n\n")
	}
}

func npcNames(outline *models.Outline) []string {
	names := make([]string, 0, len(outline.NPCs))
	for _, npc := range outline.NPCs {
		names = append(names, npc.Name)
	}
	return names
}

func locationNames(outline *models.Outline) []string {
	names := make([]string, 0, len(outline.Locations))
	for _, loc := range outline.Locations {
		names = append(names, loc.Name)
	}
	return names
}

// buildCampaign wraps the pipeline output into the final campaign document
// model.
func buildCampaign(st *stage.State, review *models.ReviewResult, meta models.GenerationMeta) *models.Campaign {
	content := st.Polished
	if content == "" {
		content = st.Draft
	}

	meta.ContentLength = len(content)
	meta.WordCount = len(strings.Fields(content))
	meta.LineCount = strings.Count(content, "\n") + 1

	return &models.Campaign{
		Title:             st.Outline.Title,
		Description:       st.Outline.CoreConcept,
		Themes:            st.Outline.Themes,
		EstimatedSessions: st.Outline.EstimatedSessions,
		CentralMystery:    st.Outline.CentralMystery,
		Acts:              st.Outline.Acts,
		NPCs:              st.Outline.NPCs,
		Locations:         st.Outline.Locations,
		Elements:          st.Elements,
		Content:           content,
		Review:            review,
		Meta:              meta,
	}
}

// statsMeta converts session stats into generation metadata.
func statsMeta(sessionID string, stats *models.SessionStats, stages []string) models.GenerationMeta {
	return models.GenerationMeta{
		Method:          "staged",
		SessionID:       sessionID,
		Duration:        time.Since(stats.StartTime),
		StagesCompleted: stages,
	}
}
