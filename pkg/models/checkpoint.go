package models

import "time"

// CheckpointPhase represents the current phase of campaign generation
type CheckpointPhase string

const (
	PhaseOutline  CheckpointPhase = "outline"
	PhasePlot     CheckpointPhase = "plot"
	PhaseContent  CheckpointPhase = "content"
	PhasePolish   CheckpointPhase = "polish"
	PhaseReview   CheckpointPhase = "review"
	PhaseIndex    CheckpointPhase = "index"
	PhaseComplete CheckpointPhase = "complete"
)

// Checkpoint represents the saved state of a generation session
type Checkpoint struct {
	// Session identification
	SessionID   string    `json:"session_id"`    // UUID for this session
	CreatedAt   time.Time `json:"created_at"`    // When session started
	LastSavedAt time.Time `json:"last_saved_at"` // Last checkpoint time

	// The user's campaign request, preserved so resume does not depend on
	// the original command line
	Request string `json:"request"`

	// Pipeline phase tracking
	CurrentPhase CheckpointPhase `json:"current_phase"`

	// Stage 1: Outline
	OutlineComplete bool     `json:"outline_complete"`
	Outline         *Outline `json:"outline,omitempty"`

	// Stage 2: Plot structure
	PlotComplete bool           `json:"plot_complete"`
	Plot         *PlotStructure `json:"plot,omitempty"`

	// Stage 3: Content sections (section key -> generated text)
	ContentComplete bool              `json:"content_complete"`
	Sections        map[string]string `json:"sections"`
	Elements        *ElementSet       `json:"elements,omitempty"`
	DraftContent    string            `json:"draft_content,omitempty"`

	// Stage 4: Polish
	PolishComplete  bool   `json:"polish_complete"`
	PolishedContent string `json:"polished_content,omitempty"`

	// Optional review pass
	ReviewComplete bool          `json:"review_complete"`
	Review         *ReviewResult `json:"review,omitempty"`

	// Statistics (cumulative)
	Stats SessionStats `json:"stats"`

	// Configuration snapshot (for validation)
	ConfigHash string `json:"config_hash"` // SHA256 of config for mismatch detection
}
