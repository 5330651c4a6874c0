package stage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lamim/campaignforge/internal/api"
	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/pkg/models"
)

// narrativesFor builds a complete plot for an outline so the content stage
// can run standalone.
func narrativesFor(outline *models.Outline) *models.PlotStructure {
	plot := &models.PlotStructure{TurningPoints: []string{"placeholder"}}
	for _, act := range outline.Acts {
		plot.ActNarratives = append(plot.ActNarratives, models.ActNarrative{
			Number:    act.Number,
			Title:     act.Title,
			Narrative: "Narrative for " + act.Title,
		})
	}
	return plot
}

// fakeModel serves chat completions from a function of the user prompt.
func fakeModel(t *testing.T, respond func(prompt string) (string, int)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		prompt := req.Messages[len(req.Messages)-1].Content

		content, status := respond(prompt)
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": {"message": "forced failure"}}`))
			return
		}
		json.NewEncoder(w).Encode(api.ChatCompletionResponse{
			Choices: []api.Choice{{Message: api.Message{Role: "assistant", Content: content}}},
		})
	}))
}

func testDeps(serverURL string) *Deps {
	modelCfg := config.ModelConfig{
		BaseURL:            serverURL,
		ModelName:          "test-model",
		Temperature:        0.8,
		TopP:               1.0,
		MaxOutputTokens:    1024,
		ContextSize:        8192,
		RateLimitPerMinute: 6000,
		HTTPTimeoutSeconds: 10,
		MaxRetries:         1,
	}
	cfg := &config.Config{
		Generation: config.GenerationConfig{
			Concurrency:        2,
			MaxDetailNPCs:      8,
			MaxDetailLocations: 8,
			MinPolishLength:    50,
		},
		Models: map[string]config.ModelConfig{
			"outline": modelCfg,
			"plot":    modelCfg,
			"content": modelCfg,
			"polish":  modelCfg,
		},
		PromptTemplates: config.PromptTemplates{
			Outline:            config.GetDefaultOutlineTemplate(),
			ActNarrative:       config.GetDefaultActNarrativeTemplate(),
			PlotElements:       config.GetDefaultPlotElementsTemplate(),
			ActContent:         config.GetDefaultActContentTemplate(),
			NPCDetail:          config.GetDefaultNPCDetailTemplate(),
			LocationDetail:     config.GetDefaultLocationDetailTemplate(),
			AdditionalElements: config.GetDefaultAdditionalElementsTemplate(),
			Polish:             config.GetDefaultPolishTemplate(),
		},
	}

	return &Deps{
		Client:  api.NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), nil),
		Cfg:     cfg,
		Secrets: &config.Secrets{APIKeys: map[string]string{}},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

const outlineJSON = `{
	"title": "The Drowned Archive",
	"core_concept": "A sunken library resurfaces with its librarians still inside",
	"themes": ["memory", "sacrifice"],
	"central_mystery": "Who raised the archive, and what did they come back for?",
	"acts": [
		{"title": "Low Tide", "sessions": 2},
		{"number": 2, "title": "The Stacks", "sessions": 4}
	],
	"key_npcs": [
		{"name": "Warden Oshel", "role": "keeper of the archive"},
		{"name": "", "role": "should be dropped"}
	],
	"key_locations": [
		{"name": "The Reading Well", "type": "dungeon"}
	]
}`

func TestOutlineStage(t *testing.T) {
	server := fakeModel(t, func(prompt string) (string, int) {
		return outlineJSON, http.StatusOK
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{Request: "a campaign about a sunken library"}

	if err := NewOutlineStage(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	o := st.Outline
	if o.Title != "The Drowned Archive" {
		t.Errorf("Title = %q", o.Title)
	}
	if o.Acts[0].Number != 1 || o.Acts[1].Number != 2 {
		t.Errorf("act numbers not normalized: %+v", o.Acts)
	}
	if o.EstimatedSessions != 6 {
		t.Errorf("EstimatedSessions = %d, want sum of acts (6)", o.EstimatedSessions)
	}
	if len(o.NPCs) != 1 {
		t.Errorf("nameless NPC not dropped: %+v", o.NPCs)
	}
}

func TestOutlineStageFallsBackToSkeleton(t *testing.T) {
	server := fakeModel(t, func(prompt string) (string, int) {
		return "I cannot produce an outline right now, sorry.", http.StatusOK
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{Request: "a heist in a city of glass"}

	if err := NewOutlineStage(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run() should not fail on unparseable output: %v", err)
	}
	if st.Outline == nil || len(st.Outline.Acts) != 3 {
		t.Fatalf("expected 3-act skeleton outline, got %+v", st.Outline)
	}
	if st.Outline.Title != "a heist in a city of glass" {
		t.Errorf("skeleton title = %q", st.Outline.Title)
	}
}

func TestOutlineStageExtractsFencedJSON(t *testing.T) {
	server := fakeModel(t, func(prompt string) (string, int) {
		return "<think>planning the acts</think>\nHere is the outline:\n```json\n" + outlineJSON + "\n```", http.StatusOK
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{Request: "sunken library"}

	if err := NewOutlineStage(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if st.Outline.Title != "The Drowned Archive" {
		t.Errorf("fenced JSON not extracted, got title %q", st.Outline.Title)
	}
}

func TestNormalizeOutlineRenumbersDuplicateActs(t *testing.T) {
	o := &models.Outline{
		Title: "Duplicated",
		Acts: []models.Act{
			{Number: 1, Title: "One", Sessions: 3},
			{Number: 1, Title: "Also One", Sessions: 3},
			{Number: 3, Title: "Three", Sessions: 3},
		},
	}
	normalizeOutline(o)
	for i, a := range o.Acts {
		if a.Number != i+1 {
			t.Errorf("act %q numbered %d, want %d", a.Title, a.Number, i+1)
		}
	}
}

func TestPlotStageSequentialNarratives(t *testing.T) {
	var prompts []string
	server := fakeModel(t, func(prompt string) (string, int) {
		prompts = append(prompts, prompt)
		if strings.Contains(prompt, "turning point") || strings.Contains(prompt, "turning_points") {
			return `{"turning_points": ["the archive speaks"], "player_agency": [], "cliffhangers": []}`, http.StatusOK
		}
		return "Narrative for this act.", http.StatusOK
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{Request: "sunken library", Outline: skeletonOutline("sunken library")}

	if err := NewPlotStage(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(st.Plot.ActNarratives) != 3 {
		t.Fatalf("got %d narratives, want 3", len(st.Plot.ActNarratives))
	}

	// Later acts carry earlier narratives in the prompt
	foundContinuation := false
	for _, p := range prompts[1:] {
		if strings.Contains(p, "Narratives of the acts so far") {
			foundContinuation = true
		}
	}
	if !foundContinuation {
		t.Error("later act prompts do not carry previous narratives")
	}

	if len(st.Plot.TurningPoints) != 1 {
		t.Errorf("turning points not parsed: %+v", st.Plot.TurningPoints)
	}
}

func TestPlotStageResumeSkipsDoneActs(t *testing.T) {
	calls := 0
	server := fakeModel(t, func(prompt string) (string, int) {
		calls++
		if strings.Contains(prompt, "turning point") || strings.Contains(prompt, "turning_points") {
			return `{"turning_points": ["x"], "player_agency": [], "cliffhangers": []}`, http.StatusOK
		}
		return "Fresh narrative.", http.StatusOK
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{Request: "resume test", Outline: skeletonOutline("resume test")}
	if err := NewPlotStage(deps).Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	firstRunCalls := calls

	// Second run with two acts already present only generates the third
	calls = 0
	st2 := &State{Request: "resume test", Outline: st.Outline}
	st2.Plot = st.Plot
	st2.Plot.ActNarratives = st2.Plot.ActNarratives[:2]
	st2.Plot.TurningPoints = nil
	if err := NewPlotStage(deps).Run(context.Background(), st2); err != nil {
		t.Fatal(err)
	}
	if calls >= firstRunCalls {
		t.Errorf("resume run made %d calls, first run made %d", calls, firstRunCalls)
	}
	if len(st2.Plot.ActNarratives) != 3 {
		t.Errorf("resume did not complete narratives: %d", len(st2.Plot.ActNarratives))
	}
}

func TestContentStage(t *testing.T) {
	server := fakeModel(t, func(prompt string) (string, int) {
		switch {
		case strings.Contains(prompt, "recurring_themes"):
			return `{"recurring_themes": ["tide"], "campaign_tone": "grim", "side_quests": []}`, http.StatusOK
		default:
			return "Generated section text.", http.StatusOK
		}
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{
		Request: "sunken library",
		Outline: skeletonOutline("sunken library"),
	}
	st.Outline.NPCs = append(st.Outline.NPCs,
		models.NPCStub{Name: "Warden Oshel", Role: "keeper"},
		models.NPCStub{Name: "The Tidecaller", Role: "antagonist"})
	st.Plot = narrativesFor(st.Outline)

	if err := NewContentStage(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	for _, key := range []string{"act:1", "act:2", "act:3", "npc:Warden Oshel", "npc:The Tidecaller"} {
		if _, ok := st.Sections[key]; !ok {
			t.Errorf("section %q missing", key)
		}
	}
	if st.Elements == nil || st.Elements.CampaignTone != "grim" {
		t.Errorf("elements not parsed: %+v", st.Elements)
	}
}

func TestContentStageToleratesPartialDetailFailure(t *testing.T) {
	server := fakeModel(t, func(prompt string) (string, int) {
		switch {
		case strings.Contains(prompt, "The Tidecaller"):
			return "", http.StatusBadRequest
		case strings.Contains(prompt, "recurring_themes"):
			return `{"recurring_themes": [], "campaign_tone": "grim"}`, http.StatusOK
		default:
			return "Generated section text.", http.StatusOK
		}
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{
		Request: "partial failure",
		Outline: skeletonOutline("partial failure"),
	}
	st.Outline.NPCs = append(st.Outline.NPCs,
		models.NPCStub{Name: "Warden Oshel", Role: "keeper"},
		models.NPCStub{Name: "The Tidecaller", Role: "antagonist"})
	st.Plot = narrativesFor(st.Outline)

	if err := NewContentStage(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("partial detail failure should not abort: %v", err)
	}
	if _, ok := st.Sections["npc:Warden Oshel"]; !ok {
		t.Error("surviving NPC section missing")
	}
	if _, ok := st.Sections["npc:The Tidecaller"]; ok {
		t.Error("failed NPC section should be absent")
	}
}

func TestContentStageActFailureAborts(t *testing.T) {
	server := fakeModel(t, func(prompt string) (string, int) {
		return "", http.StatusBadRequest
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{
		Request: "act failure",
		Outline: skeletonOutline("act failure"),
	}
	st.Plot = narrativesFor(st.Outline)

	if err := NewContentStage(deps).Run(context.Background(), st); err == nil {
		t.Fatal("act generation failure must abort the stage")
	}
}

func TestContentStageReportsFinishedActs(t *testing.T) {
	server := fakeModel(t, func(prompt string) (string, int) {
		if strings.Contains(prompt, "Rising Stakes") {
			return "", http.StatusBadRequest
		}
		return "Act text.", http.StatusOK
	})
	defer server.Close()

	deps := testDeps(server.URL)
	var ticked []string
	deps.Progress = func(completed, total int, label string) {
		ticked = append(ticked, label)
	}
	st := &State{Request: "progress", Outline: skeletonOutline("progress")}
	st.Plot = narrativesFor(st.Outline)

	if err := NewContentStage(deps).Run(context.Background(), st); err == nil {
		t.Fatal("act failure must abort the stage")
	}
	if len(ticked) != 1 || ticked[0] != "Act 1: The Hook" {
		t.Fatalf("progress ticks = %v, want only the finished first act", ticked)
	}
	if _, ok := st.Sections["act:1"]; !ok {
		t.Error("finished act section missing from state")
	}
}

func TestPolishStage(t *testing.T) {
	long := strings.Repeat("A polished paragraph of campaign prose. ", 10)
	server := fakeModel(t, func(prompt string) (string, int) {
		return long, http.StatusOK
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{Draft: "## Act 1\n\nThe rough draft."}

	if err := NewPolishStage(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if st.Polished != strings.TrimSpace(long) {
		t.Errorf("polished text not adopted")
	}
}

func TestPolishStageKeepsDraftWhenShort(t *testing.T) {
	server := fakeModel(t, func(prompt string) (string, int) {
		return "Too short.", http.StatusOK
	})
	defer server.Close()

	deps := testDeps(server.URL)
	st := &State{Draft: "## Act 1\n\nThe rough draft."}

	if err := NewPolishStage(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if st.Polished != "" {
		t.Errorf("degenerate polish output should leave the draft standing, got %q", st.Polished)
	}
}

func TestPolishStageRequiresDraft(t *testing.T) {
	deps := testDeps("http://unused")
	if err := NewPolishStage(deps).Run(context.Background(), &State{}); err == nil {
		t.Fatal("expected error without a draft")
	}
}
