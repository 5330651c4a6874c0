package models

import "time"

// Outline is the structured campaign skeleton produced by the outline stage.
type Outline struct {
	Title             string         `json:"title"`
	CoreConcept       string         `json:"core_concept"`
	Themes            []string       `json:"themes"`
	EstimatedSessions int            `json:"estimated_sessions"`
	CentralMystery    string         `json:"central_mystery"`
	Acts              []Act          `json:"acts"`
	NPCs              []NPCStub      `json:"key_npcs"`
	Locations         []LocationStub `json:"key_locations"`
}

// Act describes one act of the campaign arc.
type Act struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Sessions  int      `json:"sessions"`
	Summary   string   `json:"summary,omitempty"`
	KeyScenes []string `json:"key_scenes,omitempty"`
}

// NPCStub is an outline-level NPC reference, expanded by the content stage.
type NPCStub struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Importance string `json:"importance,omitempty"`
}

// LocationStub is an outline-level location reference.
type LocationStub struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Importance string `json:"importance,omitempty"`
}

// ActNarrative is the detailed plot narrative for a single act.
type ActNarrative struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Narrative string `json:"narrative"`
}

// PlotStructure is the output of the plot stage.
type PlotStructure struct {
	ActNarratives []ActNarrative `json:"act_narratives"`
	TurningPoints []string       `json:"turning_points,omitempty"`
	PlayerAgency  []string       `json:"player_agency,omitempty"`
	Cliffhangers  []string       `json:"cliffhangers,omitempty"`
}

// SectionKind distinguishes content stage section types.
type SectionKind string

const (
	SectionAct      SectionKind = "act"
	SectionNPC      SectionKind = "npc"
	SectionLocation SectionKind = "location"
)

// SectionJob is a unit of work for the content stage worker pool.
// Key uniquely identifies the section within the campaign (e.g. "npc:3").
type SectionJob struct {
	Key  string
	Kind SectionKind
	Name string
	Hint string // role/type/importance hint carried from the outline
}

// SectionResult carries a generated section back from a worker.
type SectionResult struct {
	Job      SectionJob
	Text     string
	Err      error
	Duration time.Duration
}

// ElementSet holds the supplementary campaign elements generated at the end
// of the content stage.
type ElementSet struct {
	RecurringThemes     []string `json:"recurring_themes"`
	PlayerAgencyMoments []string `json:"player_agency_moments"`
	PotentialBetrayals  []string `json:"potential_betrayals"`
	CampaignTone        string   `json:"campaign_tone"`
	SideQuests          []string `json:"side_quests"`
	RecurringVillains   []string `json:"recurring_villains"`
}

// CriteriaScore is the score and reasoning for one review rubric criterion.
type CriteriaScore struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// ReviewResult is the output of the optional LLM review pass.
type ReviewResult struct {
	Scores map[string]CriteriaScore `json:"scores"`
	Total  float64                  `json:"total"`
}

// GenerationMeta records how a campaign document was produced.
type GenerationMeta struct {
	Method          string        `json:"method"`
	SessionID       string        `json:"session_id"`
	Duration        time.Duration `json:"duration"`
	ContentLength   int           `json:"content_length"`
	WordCount       int           `json:"word_count"`
	LineCount       int           `json:"line_count"`
	StagesCompleted []string      `json:"stages_completed"`
}

// Campaign is the fully assembled campaign document.
type Campaign struct {
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Themes            []string       `json:"themes"`
	EstimatedSessions int            `json:"estimated_sessions"`
	CentralMystery    string         `json:"central_mystery"`
	Acts              []Act          `json:"acts"`
	NPCs              []NPCStub      `json:"key_npcs"`
	Locations         []LocationStub `json:"key_locations"`
	Elements          *ElementSet    `json:"elements,omitempty"`
	Content           string         `json:"content"`
	Review            *ReviewResult  `json:"review,omitempty"`
	Meta              GenerationMeta `json:"metadata"`
}

// SessionStats tracks statistics for a generation session.
type SessionStats struct {
	StartTime      time.Time                `json:"start_time"`
	EndTime        time.Time                `json:"end_time"`
	StageDurations map[string]time.Duration `json:"stage_durations,omitempty"`
	SectionSuccess int                      `json:"section_success"`
	SectionFailure int                      `json:"section_failure"`
	TotalDuration  time.Duration            `json:"total_duration"`
}
