package checkpoint

import (
	"fmt"

	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/pkg/models"
)

// ValidateCheckpoint verifies a checkpoint is compatible with the current
// config before resuming from it.
func ValidateCheckpoint(cp *models.Checkpoint, cfg *config.Config) error {
	expectedHash := computeConfigHash(cfg)
	if cp.ConfigHash != expectedHash {
		return fmt.Errorf("checkpoint config mismatch: checkpoint was created with different models/limits (hash: %s vs %s)", cp.ConfigHash, expectedHash)
	}

	if cp.CurrentPhase == models.PhaseComplete {
		return fmt.Errorf("checkpoint is already complete, nothing to resume")
	}

	if cp.Request == "" {
		return fmt.Errorf("checkpoint has no campaign request recorded")
	}

	return nil
}

// PendingSectionCount reports how many expected content sections are still
// missing from the checkpoint.
func PendingSectionCount(cp *models.Checkpoint, cfg *config.Config) int {
	if cp.Outline == nil {
		return 0
	}

	total := len(cp.Outline.Acts)
	npcs := len(cp.Outline.NPCs)
	if npcs > cfg.Generation.MaxDetailNPCs {
		npcs = cfg.Generation.MaxDetailNPCs
	}
	locs := len(cp.Outline.Locations)
	if locs > cfg.Generation.MaxDetailLocations {
		locs = cfg.Generation.MaxDetailLocations
	}
	total += npcs + locs

	pending := total - len(cp.Sections)
	if pending < 0 {
		pending = 0
	}
	return pending
}

// Describe summarizes a checkpoint for session inspection output.
func Describe(cp *models.Checkpoint) string {
	title := "(no outline yet)"
	if cp.Outline != nil {
		title = cp.Outline.Title
	}
	return fmt.Sprintf("session %s: phase=%s title=%q sections=%d created=%s",
		cp.SessionID, cp.CurrentPhase, title, len(cp.Sections),
		cp.CreatedAt.Format("2006-01-02 15:04:05"))
}
