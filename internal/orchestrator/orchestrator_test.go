package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamim/campaignforge/internal/api"
	"github.com/lamim/campaignforge/internal/checkpoint"
	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/internal/writer"
	"github.com/lamim/campaignforge/pkg/models"
)

const pipelineOutline = `{
	"title": "The Hollow Crown",
	"core_concept": "A kingdom without a king.",
	"themes": ["succession", "loyalty"],
	"central_mystery": "Who poisoned the regent?",
	"acts": [
		{"number": 1, "title": "The Funeral", "sessions": 3},
		{"number": 2, "title": "The Crypts", "sessions": 3}
	],
	"key_npcs": [{"name": "Seneschal Vane", "role": "steward"}],
	"key_locations": [{"name": "The Old Crypts", "type": "dungeon"}]
}`

// pipelineServer answers every stage of a full run from the prompt shape.
func pipelineServer(t *testing.T) *httptest.Server {
	t.Helper()
	longPolish := strings.Repeat("Polished campaign prose flows here. ", 40)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		prompt := req.Messages[len(req.Messages)-1].Content

		var content string
		switch {
		case strings.Contains(prompt, "turning_points"):
			content = `{"turning_points": ["the crown surfaces"], "player_agency": [], "cliffhangers": []}`
		case strings.Contains(prompt, "recurring_themes"):
			content = `{"recurring_themes": ["succession"], "campaign_tone": "political", "side_quests": []}`
		case strings.Contains(prompt, "DRAFT:"):
			content = longPolish
		case strings.Contains(prompt, "structured campaign outline"):
			content = pipelineOutline
		default:
			content = "Generated text for this section."
		}
		json.NewEncoder(w).Encode(api.ChatCompletionResponse{
			Choices: []api.Choice{{Message: api.Message{Role: "assistant", Content: content}}},
		})
	}))
}

func pipelineConfig(serverURL, outputDir string) *config.Config {
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
	return &config.Config{
		Generation: config.GenerationConfig{
			Concurrency:         2,
			MaxDetailNPCs:       8,
			MaxDetailLocations:  8,
			MinPolishLength:     100,
			EnableCheckpointing: true,
			CheckpointInterval:  1,
			OutputDir:           outputDir,
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
			ReviewRubric:       config.GetDefaultReviewTemplate(),
		},
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	server := pipelineServer(t)
	defer server.Close()

	outputDir := t.TempDir()
	cfg := pipelineConfig(server.URL, outputDir)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	secrets := &config.Secrets{APIKeys: map[string]string{}}

	sessionMgr, err := writer.NewSessionManager(logger, outputDir, "")
	if err != nil {
		t.Fatal(err)
	}
	checkpointMgr := checkpoint.NewManager(sessionMgr.GetSessionDir(), "a succession crisis campaign", cfg, logger)

	orch := New(cfg, secrets, api.NewClient(logger, nil), sessionMgr, checkpointMgr, nil,
		false, Options{}, logger)

	campaign, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if campaign.Title != "The Hollow Crown" {
		t.Errorf("Title = %q", campaign.Title)
	}
	if !strings.Contains(campaign.Content, "Polished campaign prose") {
		t.Error("polished content not adopted")
	}
	if campaign.Elements == nil || campaign.Elements.CampaignTone != "political" {
		t.Errorf("elements missing: %+v", campaign.Elements)
	}
	if campaign.Meta.Method != "staged" || campaign.Meta.WordCount == 0 {
		t.Errorf("metadata incomplete: %+v", campaign.Meta)
	}

	// Checkpoint on disk reflects the finished run
	cp, err := checkpoint.Load(sessionMgr.GetSessionDir(), logger)
	if err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}
	if cp.CurrentPhase != models.PhaseComplete {
		t.Errorf("checkpoint phase = %q, want complete", cp.CurrentPhase)
	}
	if len(cp.Sections) < 3 {
		t.Errorf("checkpoint has %d sections", len(cp.Sections))
	}

	// Draft landed in the session directory
	if _, err := os.Stat(filepath.Join(sessionMgr.GetSessionDir(), "draft.md")); err != nil {
		t.Errorf("draft not written: %v", err)
	}
}

func TestPipelineSkipOptions(t *testing.T) {
	server := pipelineServer(t)
	defer server.Close()

	outputDir := t.TempDir()
	cfg := pipelineConfig(server.URL, outputDir)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessionMgr, err := writer.NewSessionManager(logger, outputDir, "")
	if err != nil {
		t.Fatal(err)
	}
	checkpointMgr := checkpoint.NewManager(sessionMgr.GetSessionDir(), "skip test", cfg, logger)

	orch := New(cfg, &config.Secrets{APIKeys: map[string]string{}}, api.NewClient(logger, nil),
		sessionMgr, checkpointMgr, nil, false, Options{SkipPolish: true, SkipReview: true}, logger)

	campaign, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if strings.Contains(campaign.Content, "Polished campaign prose") {
		t.Error("polish ran despite SkipPolish")
	}
	for _, s := range campaign.Meta.StagesCompleted {
		if s == "polish" || s == "review" {
			t.Errorf("skipped stage %q reported as completed", s)
		}
	}
}

func TestPipelineResume(t *testing.T) {
	server := pipelineServer(t)
	defer server.Close()

	outputDir := t.TempDir()
	cfg := pipelineConfig(server.URL, outputDir)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	secrets := &config.Secrets{APIKeys: map[string]string{}}

	sessionMgr, err := writer.NewSessionManager(logger, outputDir, "")
	if err != nil {
		t.Fatal(err)
	}

	// Seed a checkpoint that finished outline and plot
	seed := checkpoint.NewManager(sessionMgr.GetSessionDir(), "resume pipeline", cfg, logger)
	outline := &models.Outline{
		Title:       "Seeded Campaign",
		CoreConcept: "seeded",
		Acts:        []models.Act{{Number: 1, Title: "Only Act", Sessions: 3}},
	}
	if err := seed.MarkOutlineComplete(outline); err != nil {
		t.Fatal(err)
	}
	plot := &models.PlotStructure{ActNarratives: []models.ActNarrative{
		{Number: 1, Title: "Only Act", Narrative: "seeded narrative"},
	}}
	if err := seed.MarkPlotComplete(plot); err != nil {
		t.Fatal(err)
	}
	if err := seed.Close(); err != nil {
		t.Fatal(err)
	}

	cp, err := checkpoint.Load(sessionMgr.GetSessionDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	checkpointMgr := checkpoint.NewManagerFromCheckpoint(sessionMgr.GetSessionDir(), cp, cfg, logger)

	orch := New(cfg, secrets, api.NewClient(logger, nil), sessionMgr, checkpointMgr, nil,
		true, Options{SkipPolish: true, SkipReview: true}, logger)

	campaign, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// The seeded outline survives: the outline stage did not rerun
	if campaign.Title != "Seeded Campaign" {
		t.Errorf("Title = %q, want seeded outline title", campaign.Title)
	}
	if !strings.Contains(campaign.Content, "## Act 1: Only Act") {
		t.Errorf("content stage did not run for the seeded act: %q", campaign.Content)
	}
}
