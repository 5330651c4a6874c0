package config

import (
	"fmt"
	"os"
	"strings"
)

// Config represents the complete application configuration
type Config struct {
	Generation           GenerationConfig       `toml:"generation"`
	Models               map[string]ModelConfig `toml:"models"`
	PromptTemplates      PromptTemplates        `toml:"prompt_templates"`
	Library              LibraryConfig          `toml:"library"`
	Storage              StorageConfig          `toml:"storage"`
	ProviderRateLimits   map[string]int         `toml:"provider_rate_limits"`   // Global rate limits per provider (requests per minute)
	ProviderBurstPercent int                    `toml:"provider_burst_percent"` // Burst capacity as percentage (1-50, default: 15)
}

// GenerationConfig holds pipeline-wide generation settings
type GenerationConfig struct {
	Concurrency         int    `toml:"concurrency"`           // Worker pool size for section generation
	MaxDetailNPCs       int    `toml:"max_detail_npcs"`       // Cap on NPCs given full write-ups (default: 8)
	MaxDetailLocations  int    `toml:"max_detail_locations"`  // Cap on locations given full write-ups (default: 8)
	MinPolishLength     int    `toml:"min_polish_length"`     // Polished text shorter than this is discarded (default: 1000)
	EnableCheckpointing bool   `toml:"enable_checkpointing"`  // Enable checkpoint/resume support
	CheckpointInterval  int    `toml:"checkpoint_interval"`   // Save checkpoint every N completed sections (default: 5)
	OutputDir           string `toml:"output_dir"`            // Root for session directories (default: "output")
	DisableLimits       bool   `toml:"disable_limits"`        // Disable upper bound validation (use with caution)
}

// ModelConfig represents configuration for a single model endpoint
type ModelConfig struct {
	BaseURL              string  `toml:"base_url"`
	ModelName            string  `toml:"model_name"`
	Temperature          float64 `toml:"temperature"`
	StructureTemperature float64 `toml:"structure_temperature"` // Temperature for JSON generation (optional, defaults to temperature)
	TopP                 float64 `toml:"top_p"`
	MaxOutputTokens      int     `toml:"max_output_tokens"`
	ContextSize          int     `toml:"context_size"`
	RateLimitPerMinute   int     `toml:"rate_limit_per_minute"`
	MaxBackoffSeconds    int     `toml:"max_backoff_seconds"`  // Optional: max backoff duration (default 120)
	MaxRetries           int     `toml:"max_retries"`          // Optional: max retry attempts (default 3, -1 = unlimited)
	HTTPTimeoutSeconds   int     `toml:"http_timeout_seconds"` // Optional: HTTP request timeout (default 120, 0 = no timeout)
	UseJSONMode          bool    `toml:"use_json_mode"`        // Enable structured JSON output mode (optional)
	UseStreaming         bool    `toml:"use_streaming"`        // Enable streaming mode (bypasses gateway timeouts)
	Enabled              bool    `toml:"enabled"`              // Only used for optional roles (polish, review)
}

// PromptTemplates holds all customizable prompt templates
type PromptTemplates struct {
	Outline            string `toml:"outline"`
	ActNarrative       string `toml:"act_narrative"`
	PlotElements       string `toml:"plot_elements"`
	ActContent         string `toml:"act_content"`
	NPCDetail          string `toml:"npc_detail"`
	LocationDetail     string `toml:"location_detail"`
	AdditionalElements string `toml:"additional_elements"`
	Polish             string `toml:"polish"`
	ReviewRubric       string `toml:"review_rubric"`
	SystemPrompt       string `toml:"system_prompt"` // Optional system prompt applied to all stages
}

// LibraryConfig points at the exemplar campaign library used for few-shot
// context.
type LibraryConfig struct {
	Dir            string   `toml:"dir"`             // Directory of exemplar markdown files
	Priority       []string `toml:"priority"`        // Preferred exemplars, in order
	CondensedCount int      `toml:"condensed_count"` // Exemplars in a condensed context (default: 3)
	FullCount      int      `toml:"full_count"`      // Exemplars in a full context (default: 2)
	CondensedLines int      `toml:"condensed_lines"` // Lines kept per section in condensed mode (default: 3)
}

// StorageConfig holds document and index storage settings
type StorageConfig struct {
	CampaignsDir string `toml:"campaigns_dir"` // Where finished campaign markdown lands (default: "campaigns")
	CatalogPath  string `toml:"catalog_path"`  // SQLite catalog database path (default: "campaigns/catalog.db")
	ChunkSize    int    `toml:"chunk_size"`    // Max characters per index chunk (default: 1024)
	ChunkOverlap int    `toml:"chunk_overlap"` // Overlap characters between adjacent chunks (default: 20)
	TopK         int    `toml:"top_k"`         // Chunks returned per retrieval query (default: 5)
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys map[string]string
}

const (
	// MaxConcurrency is the maximum allowed worker pool size
	MaxConcurrency = 64
	// MaxDetailSections is the maximum NPC or location write-ups per campaign
	MaxDetailSections = 100
)

// requiredRoles must each have a model configured. Optional roles (polish,
// review) participate only when present and enabled; embedding is required
// only for indexing commands.
var requiredRoles = []string{"outline", "plot", "content"}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ProviderBurstPercent == 0 {
		c.ProviderBurstPercent = 15
	}
	if c.ProviderBurstPercent < 1 || c.ProviderBurstPercent > 50 {
		return fmt.Errorf("provider_burst_percent must be between 1 and 50 (got %d)", c.ProviderBurstPercent)
	}

	if c.Generation.Concurrency < 1 {
		return fmt.Errorf("generation.concurrency must be at least 1")
	}
	if !c.Generation.DisableLimits {
		if c.Generation.Concurrency > MaxConcurrency {
			return fmt.Errorf("generation.concurrency must not exceed %d (got %d)", MaxConcurrency, c.Generation.Concurrency)
		}
		if c.Generation.MaxDetailNPCs > MaxDetailSections {
			return fmt.Errorf("generation.max_detail_npcs must not exceed %d (got %d)", MaxDetailSections, c.Generation.MaxDetailNPCs)
		}
		if c.Generation.MaxDetailLocations > MaxDetailSections {
			return fmt.Errorf("generation.max_detail_locations must not exceed %d (got %d)", MaxDetailSections, c.Generation.MaxDetailLocations)
		}
	}
	if c.Generation.MaxDetailNPCs < 1 {
		return fmt.Errorf("generation.max_detail_npcs must be at least 1")
	}
	if c.Generation.MaxDetailLocations < 1 {
		return fmt.Errorf("generation.max_detail_locations must be at least 1")
	}
	if c.Generation.MinPolishLength < 0 {
		return fmt.Errorf("generation.min_polish_length must not be negative")
	}
	if c.Generation.CheckpointInterval < 1 {
		c.Generation.CheckpointInterval = 5
	}

	for _, role := range requiredRoles {
		mc, ok := c.Models[role]
		if !ok {
			return fmt.Errorf("models.%s is required", role)
		}
		if err := validateModelConfig(role, mc); err != nil {
			return err
		}
	}

	for _, role := range []string{"polish", "review"} {
		if mc, ok := c.Models[role]; ok && mc.Enabled {
			if err := validateModelConfig(role, mc); err != nil {
				return err
			}
		}
	}

	if mc, ok := c.Models["embedding"]; ok {
		if mc.BaseURL == "" {
			return fmt.Errorf("models.embedding.base_url is required")
		}
		if mc.ModelName == "" {
			return fmt.Errorf("models.embedding.model_name is required")
		}
	}

	if c.Storage.ChunkSize < 64 {
		return fmt.Errorf("storage.chunk_size must be at least 64 (got %d)", c.Storage.ChunkSize)
	}
	if c.Storage.ChunkOverlap < 0 || c.Storage.ChunkOverlap >= c.Storage.ChunkSize {
		return fmt.Errorf("storage.chunk_overlap must be between 0 and chunk_size (got %d)", c.Storage.ChunkOverlap)
	}
	if c.Storage.TopK < 1 {
		return fmt.Errorf("storage.top_k must be at least 1")
	}

	if c.Library.CondensedCount < 0 || c.Library.FullCount < 0 {
		return fmt.Errorf("library counts must not be negative")
	}

	return nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.StructureTemperature < 0 || mc.StructureTemperature > 2 {
		return fmt.Errorf("models.%s.structure_temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.ContextSize < 1 {
		return fmt.Errorf("models.%s.context_size must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	if mc.MaxOutputTokens > mc.ContextSize {
		return fmt.Errorf("models.%s.max_output_tokens (%d) must not exceed context_size (%d)", name, mc.MaxOutputTokens, mc.ContextSize)
	}
	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Generic key works for any OpenAI-compatible provider
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}

	// Provider-specific keys override the generic one
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("NVIDIA_API_KEY"); key != "" {
		secrets.APIKeys["nvidia"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		secrets.APIKeys["groq"] = key
	}

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	if strings.Contains(baseURL, "openai.com") {
		if key := s.APIKeys["openai"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "nvidia.com") {
		if key := s.APIKeys["nvidia"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "together.xyz") || strings.Contains(baseURL, "together.ai") {
		if key := s.APIKeys["together"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "groq.com") {
		if key := s.APIKeys["groq"]; key != "" {
			return key
		}
	}

	if key := s.APIKeys["generic"]; key != "" {
		return key
	}

	// Local servers often run without auth
	return ""
}

// GetProviderName extracts a provider name from a base URL for rate limiting
func GetProviderName(baseURL string) string {
	if strings.Contains(baseURL, "openai.com") {
		return "openai"
	}
	if strings.Contains(baseURL, "nvidia.com") {
		return "nvidia"
	}
	if strings.Contains(baseURL, "together.xyz") || strings.Contains(baseURL, "together.ai") {
		return "together"
	}
	if strings.Contains(baseURL, "groq.com") {
		return "groq"
	}
	// Localhost and unknown providers keep the full base URL as the name
	return baseURL
}
