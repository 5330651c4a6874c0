package orchestrator

import (
	"strings"
	"testing"

	"github.com/lamim/campaignforge/internal/stage"
	"github.com/lamim/campaignforge/pkg/models"
)

func testState() *stage.State {
	return &stage.State{
		Request: "a sunken library campaign",
		Outline: &models.Outline{
			Title:       "The Drowned Archive",
			CoreConcept: "A sunken library resurfaces.",
			Acts: []models.Act{
				{Number: 1, Title: "Low Tide", Sessions: 3},
				{Number: 2, Title: "The Stacks", Sessions: 3},
			},
			NPCs: []models.NPCStub{
				{Name: "Warden Oshel", Role: "keeper"},
				{Name: "The Tidecaller", Role: "antagonist"},
			},
			Locations: []models.LocationStub{
				{Name: "The Reading Well", Type: "dungeon"},
			},
		},
		Sections: map[string]string{
			"act:1":                "Act one content.",
			"act:2":                "Act two content.",
			"npc:Warden Oshel":     "Oshel write-up.",
			"loc:The Reading Well": "Well write-up.",
		},
	}
}

func TestAssembleDraft(t *testing.T) {
	draft := assembleDraft(testState())

	for _, want := range []string{
		"## Act 1: Low Tide",
		"Act one content.",
		"## Act 2: The Stacks",
		"## Notable NPCs",
		"### Warden Oshel",
		"Oshel write-up.",
		"## Notable Locations",
		"### The Reading Well",
	} {
		if !strings.Contains(draft, want) {
			t.Errorf("draft missing %q", want)
		}
	}

	// The Tidecaller has no section (failed generation): no empty heading
	if strings.Contains(draft, "The Tidecaller") {
		t.Error("draft contains heading for a missing section")
	}

	// Acts come before NPCs, NPCs before locations
	actIdx := strings.Index(draft, "## Act 1")
	npcIdx := strings.Index(draft, "## Notable NPCs")
	locIdx := strings.Index(draft, "## Notable Locations")
	if !(actIdx < npcIdx && npcIdx < locIdx) {
		t.Errorf("section order wrong: act=%d npc=%d loc=%d", actIdx, npcIdx, locIdx)
	}
}

func TestAssembleDraftNoDetails(t *testing.T) {
	st := testState()
	delete(st.Sections, "npc:Warden Oshel")
	delete(st.Sections, "loc:The Reading Well")

	draft := assembleDraft(st)
	if strings.Contains(draft, "## Notable NPCs") || strings.Contains(draft, "## Notable Locations") {
		t.Error("empty detail groups should not render headings")
	}
}

func TestBuildCampaignPrefersPolished(t *testing.T) {
	st := testState()
	st.Draft = "draft body"
	st.Polished = "polished body with more words here"

	c := buildCampaign(st, nil, models.GenerationMeta{Method: "staged"})
	if c.Content != st.Polished {
		t.Errorf("Content = %q, want polished text", c.Content)
	}
	if c.Meta.WordCount != 6 {
		t.Errorf("WordCount = %d, want 6", c.Meta.WordCount)
	}
	if c.Title != "The Drowned Archive" || len(c.Acts) != 2 {
		t.Errorf("outline fields not carried: %+v", c)
	}
}

func TestBuildCampaignFallsBackToDraft(t *testing.T) {
	st := testState()
	st.Draft = "draft body"

	c := buildCampaign(st, nil, models.GenerationMeta{})
	if c.Content != "draft body" {
		t.Errorf("Content = %q, want draft", c.Content)
	}
}
