package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lamim/campaignforge/internal/util"
	"github.com/lamim/campaignforge/pkg/models"
)

// RenderCampaign produces the final markdown document: overview, campaign
// structure, NPC roster, location gazetteer, the content body, and a
// generation metadata footer.
func RenderCampaign(c *models.Campaign) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# %s\n\n", c.Title))

	b.WriteString("## Overview\n\n")
	b.WriteString(c.Description)
	b.WriteString("\n\n")
	if c.CentralMystery != "" {
		b.WriteString(fmt.Sprintf("**Central mystery:** %s\n\n", c.CentralMystery))
	}
	if len(c.Themes) > 0 {
		b.WriteString(fmt.Sprintf("**Themes:** %s\n\n", strings.Join(c.Themes, ", ")))
	}
	if c.EstimatedSessions > 0 {
		b.WriteString(fmt.Sprintf("**Estimated sessions:** %d\n\n", c.EstimatedSessions))
	}

	if len(c.Acts) > 0 {
		b.WriteString("## Campaign Structure\n\n")
		for _, act := range c.Acts {
			b.WriteString(fmt.Sprintf("- **Act %d: %s** (%d sessions)", act.Number, act.Title, act.Sessions))
			if len(act.KeyScenes) > 0 {
				b.WriteString(fmt.Sprintf(" — key scenes: %s", strings.Join(act.KeyScenes, "; ")))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(c.NPCs) > 0 {
		b.WriteString("## Key NPCs\n\n")
		for _, npc := range c.NPCs {
			b.WriteString(fmt.Sprintf("- **%s** — %s", npc.Name, npc.Role))
			if npc.Importance != "" {
				b.WriteString(fmt.Sprintf(" (%s)", npc.Importance))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(c.Locations) > 0 {
		b.WriteString("## Key Locations\n\n")
		for _, loc := range c.Locations {
			b.WriteString(fmt.Sprintf("- **%s** — %s", loc.Name, loc.Type))
			if loc.Importance != "" {
				b.WriteString(fmt.Sprintf(" (%s)", loc.Importance))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(c.Content)
	if !strings.HasSuffix(c.Content, "\n") {
		b.WriteString("\n")
	}

	if c.Elements != nil {
		b.WriteString("\n## Campaign Elements\n\n")
		writeElementList(&b, "Recurring themes", c.Elements.RecurringThemes)
		writeElementList(&b, "Player agency moments", c.Elements.PlayerAgencyMoments)
		writeElementList(&b, "Potential betrayals", c.Elements.PotentialBetrayals)
		writeElementList(&b, "Side quests", c.Elements.SideQuests)
		writeElementList(&b, "Recurring villains", c.Elements.RecurringVillains)
		if c.Elements.CampaignTone != "" {
			b.WriteString(fmt.Sprintf("**Tone:** %s\n\n", c.Elements.CampaignTone))
		}
	}

	b.WriteString("\n---\n\n")
	b.WriteString("## Generation Metadata\n\n")
	b.WriteString(fmt.Sprintf("- Method: %s\n", c.Meta.Method))
	b.WriteString(fmt.Sprintf("- Session: %s\n", c.Meta.SessionID))
	b.WriteString(fmt.Sprintf("- Duration: %s\n", c.Meta.Duration.Round(time.Second)))
	b.WriteString(fmt.Sprintf("- Length: %d characters, %d words, %d lines\n",
		c.Meta.ContentLength, c.Meta.WordCount, c.Meta.LineCount))
	if len(c.Meta.StagesCompleted) > 0 {
		b.WriteString(fmt.Sprintf("- Stages: %s\n", strings.Join(c.Meta.StagesCompleted, ", ")))
	}
	if c.Review != nil {
		b.WriteString(fmt.Sprintf("- Review score: %.2f/5\n", c.Review.Total))
		for name, cs := range c.Review.Scores {
			b.WriteString(fmt.Sprintf("  - %s: %d/5 — %s\n", name, cs.Score, cs.Reasoning))
		}
	}

	return b.String()
}

func writeElementList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("**%s:**\n\n", label))
	for _, item := range items {
		b.WriteString(fmt.Sprintf("- %s\n", item))
	}
	b.WriteString("\n")
}

// WriteCampaignFile atomically writes the rendered document into dir as
// <sanitized_title>.md and returns the file path.
func WriteCampaignFile(dir, title, content string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create campaigns directory: %w", err)
	}

	name := util.SanitizeTitle(title)
	path := filepath.Join(dir, name+".md")

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write campaign file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close campaign file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move campaign file into place: %w", err)
	}

	return path, nil
}
