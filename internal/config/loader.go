package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return &cfg, secrets, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Generation.Concurrency == 0 {
		cfg.Generation.Concurrency = 4
	}
	if cfg.Generation.MaxDetailNPCs == 0 {
		cfg.Generation.MaxDetailNPCs = 8
	}
	if cfg.Generation.MaxDetailLocations == 0 {
		cfg.Generation.MaxDetailLocations = 8
	}
	if cfg.Generation.MinPolishLength == 0 {
		cfg.Generation.MinPolishLength = 1000
	}
	if cfg.Generation.CheckpointInterval == 0 {
		cfg.Generation.CheckpointInterval = 5
	}
	if cfg.Generation.OutputDir == "" {
		cfg.Generation.OutputDir = "output"
	}

	for name, model := range cfg.Models {
		if model.Temperature == 0 {
			model.Temperature = 0.8
		}
		if model.TopP == 0 {
			model.TopP = 1.0
		}
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 4096
		}
		if model.ContextSize == 0 {
			model.ContextSize = 16384
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 60
		}
		if model.MaxBackoffSeconds == 0 {
			model.MaxBackoffSeconds = 120
		}
		// In TOML, 0 is indistinguishable from unset: 0 means default (3),
		// -1 means unlimited retries
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
		}
		// structure_temperature of 0 falls back to temperature at call time
		cfg.Models[name] = model
	}

	if cfg.Library.Dir == "" {
		cfg.Library.Dir = "library"
	}
	if cfg.Library.CondensedCount == 0 {
		cfg.Library.CondensedCount = 3
	}
	if cfg.Library.FullCount == 0 {
		cfg.Library.FullCount = 2
	}
	if cfg.Library.CondensedLines == 0 {
		cfg.Library.CondensedLines = 3
	}

	if cfg.Storage.CampaignsDir == "" {
		cfg.Storage.CampaignsDir = "campaigns"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = "campaigns/catalog.db"
	}
	if cfg.Storage.ChunkSize == 0 {
		cfg.Storage.ChunkSize = 1024
	}
	if cfg.Storage.ChunkOverlap == 0 {
		cfg.Storage.ChunkOverlap = 20
	}
	if cfg.Storage.TopK == 0 {
		cfg.Storage.TopK = 5
	}

	if cfg.PromptTemplates.Outline == "" {
		cfg.PromptTemplates.Outline = GetDefaultOutlineTemplate()
	}
	if cfg.PromptTemplates.ActNarrative == "" {
		cfg.PromptTemplates.ActNarrative = GetDefaultActNarrativeTemplate()
	}
	if cfg.PromptTemplates.PlotElements == "" {
		cfg.PromptTemplates.PlotElements = GetDefaultPlotElementsTemplate()
	}
	if cfg.PromptTemplates.ActContent == "" {
		cfg.PromptTemplates.ActContent = GetDefaultActContentTemplate()
	}
	if cfg.PromptTemplates.NPCDetail == "" {
		cfg.PromptTemplates.NPCDetail = GetDefaultNPCDetailTemplate()
	}
	if cfg.PromptTemplates.LocationDetail == "" {
		cfg.PromptTemplates.LocationDetail = GetDefaultLocationDetailTemplate()
	}
	if cfg.PromptTemplates.AdditionalElements == "" {
		cfg.PromptTemplates.AdditionalElements = GetDefaultAdditionalElementsTemplate()
	}
	if cfg.PromptTemplates.Polish == "" {
		cfg.PromptTemplates.Polish = GetDefaultPolishTemplate()
	}
	if cfg.PromptTemplates.ReviewRubric == "" {
		cfg.PromptTemplates.ReviewRubric = GetDefaultReviewTemplate()
	}
}
