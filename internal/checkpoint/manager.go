package checkpoint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/pkg/models"
)

const CheckpointFilename = "checkpoint.json"

// Manager handles checkpoint operations with async write support
type Manager struct {
	sessionDir     string
	checkpoint     *models.Checkpoint
	mu             sync.RWMutex
	logger         *slog.Logger
	interval       int // Save every N completed sections
	sectionCounter int // Counter since last save
	enabled        bool

	// Async write support
	writeChan   chan *models.Checkpoint
	writeWg     sync.WaitGroup
	stopWriter  chan struct{}
	writerError error
	errorMu     sync.Mutex
	writeMu     sync.Mutex // Protects concurrent disk writes
}

// NewManager creates a checkpoint manager for a fresh session
func NewManager(sessionDir, request string, cfg *config.Config, logger *slog.Logger) *Manager {
	m := &Manager{
		sessionDir: sessionDir,
		checkpoint: &models.Checkpoint{
			SessionID:    uuid.New().String(),
			CreatedAt:    time.Now(),
			Request:      request,
			CurrentPhase: models.PhaseOutline,
			Sections:     make(map[string]string),
			ConfigHash:   computeConfigHash(cfg),
		},
		logger:     logger,
		interval:   cfg.Generation.CheckpointInterval,
		enabled:    cfg.Generation.EnableCheckpointing,
		writeChan:  make(chan *models.Checkpoint, 10),
		stopWriter: make(chan struct{}),
	}

	if m.enabled {
		m.startAsyncWriter()
	}

	return m
}

// NewManagerFromCheckpoint creates a manager around a loaded checkpoint
func NewManagerFromCheckpoint(sessionDir string, cp *models.Checkpoint, cfg *config.Config, logger *slog.Logger) *Manager {
	if cp.Sections == nil {
		cp.Sections = make(map[string]string)
	}
	m := &Manager{
		sessionDir: sessionDir,
		checkpoint: cp,
		logger:     logger,
		interval:   cfg.Generation.CheckpointInterval,
		enabled:    cfg.Generation.EnableCheckpointing,
		writeChan:  make(chan *models.Checkpoint, 10),
		stopWriter: make(chan struct{}),
	}

	if m.enabled {
		m.startAsyncWriter()
	}

	return m
}

func (m *Manager) startAsyncWriter() {
	m.writeWg.Add(1)
	go func() {
		defer m.writeWg.Done()
		for {
			select {
			case cp := <-m.writeChan:
				if err := m.writeCheckpointToDisk(cp); err != nil {
					m.errorMu.Lock()
					m.writerError = err
					m.errorMu.Unlock()
					m.logger.Error("Failed to write checkpoint", "error", err)
				}
			case <-m.stopWriter:
				// Drain remaining writes before stopping
				for len(m.writeChan) > 0 {
					cp := <-m.writeChan
					if err := m.writeCheckpointToDisk(cp); err != nil {
						m.logger.Error("Failed to write checkpoint during shutdown", "error", err)
					}
				}
				return
			}
		}
	}()
}

func (m *Manager) writeCheckpointToDisk(cp *models.Checkpoint) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Atomic write: temp file, then rename
	checkpointPath := filepath.Join(m.sessionDir, CheckpointFilename)
	tempPath := checkpointPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}

	if err := os.Rename(tempPath, checkpointPath); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint saved", "path", checkpointPath, "phase", cp.CurrentPhase)
	return nil
}

// Save queues the checkpoint for async write
func (m *Manager) Save() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	m.checkpoint.LastSavedAt = time.Now()
	cpCopy := m.copyCheckpoint()
	m.mu.Unlock()

	select {
	case m.writeChan <- cpCopy:
		return nil
	default:
		m.logger.Warn("Checkpoint write buffer full, writing synchronously")
		return m.writeCheckpointToDisk(cpCopy)
	}
}

// SaveSync performs a synchronous checkpoint write. Used at phase transitions.
func (m *Manager) SaveSync() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	m.checkpoint.LastSavedAt = time.Now()
	cpCopy := m.copyCheckpoint()
	m.mu.Unlock()

	return m.writeCheckpointToDisk(cpCopy)
}

func (m *Manager) copyCheckpoint() *models.Checkpoint {
	cp := *m.checkpoint
	cp.Sections = make(map[string]string, len(m.checkpoint.Sections))
	for k, v := range m.checkpoint.Sections {
		cp.Sections[k] = v
	}
	return &cp
}

// Load reads a checkpoint from a session directory
func Load(sessionDir string, logger *slog.Logger) (*models.Checkpoint, error) {
	checkpointPath := filepath.Join(sessionDir, CheckpointFilename)

	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	logger.Info("Checkpoint loaded",
		"session_id", cp.SessionID,
		"phase", cp.CurrentPhase,
		"completed_sections", len(cp.Sections))

	return &cp, nil
}

// MarkOutlineComplete records the outline and advances to the plot phase
func (m *Manager) MarkOutlineComplete(outline *models.Outline) error {
	m.mu.Lock()
	m.checkpoint.OutlineComplete = true
	m.checkpoint.Outline = outline
	m.checkpoint.CurrentPhase = models.PhasePlot
	m.mu.Unlock()

	return m.SaveSync()
}

// MarkPlotComplete records the plot structure and advances to the content phase
func (m *Manager) MarkPlotComplete(plot *models.PlotStructure) error {
	m.mu.Lock()
	m.checkpoint.PlotComplete = true
	m.checkpoint.Plot = plot
	m.checkpoint.CurrentPhase = models.PhaseContent
	m.mu.Unlock()

	return m.SaveSync()
}

// UpdatePlot records in-progress act narratives without a phase transition
func (m *Manager) UpdatePlot(plot *models.PlotStructure) error {
	m.mu.Lock()
	m.checkpoint.Plot = plot
	m.mu.Unlock()

	return m.Save()
}

// MarkSectionComplete records a finished content section, saving at the
// configured interval.
func (m *Manager) MarkSectionComplete(key, text string) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	m.checkpoint.Sections[key] = text
	m.sectionCounter++
	shouldSave := m.sectionCounter >= m.interval
	if shouldSave {
		m.sectionCounter = 0
	}
	m.mu.Unlock()

	if shouldSave {
		return m.Save()
	}
	return nil
}

// MarkContentComplete records the assembled draft and advances to polish
func (m *Manager) MarkContentComplete(sections map[string]string, elements *models.ElementSet, draft string) error {
	m.mu.Lock()
	m.checkpoint.ContentComplete = true
	m.checkpoint.Sections = sections
	m.checkpoint.Elements = elements
	m.checkpoint.DraftContent = draft
	m.checkpoint.CurrentPhase = models.PhasePolish
	m.mu.Unlock()

	return m.SaveSync()
}

// MarkPolishComplete records the polished document and advances to review
func (m *Manager) MarkPolishComplete(polished string) error {
	m.mu.Lock()
	m.checkpoint.PolishComplete = true
	m.checkpoint.PolishedContent = polished
	m.checkpoint.CurrentPhase = models.PhaseReview
	m.mu.Unlock()

	return m.SaveSync()
}

// MarkReviewComplete records the review result and advances to indexing
func (m *Manager) MarkReviewComplete(result *models.ReviewResult) error {
	m.mu.Lock()
	m.checkpoint.ReviewComplete = true
	m.checkpoint.Review = result
	m.checkpoint.CurrentPhase = models.PhaseIndex
	m.mu.Unlock()

	return m.SaveSync()
}

// MarkComplete marks the whole run as finished
func (m *Manager) MarkComplete(stats *models.SessionStats) error {
	m.mu.Lock()
	m.checkpoint.CurrentPhase = models.PhaseComplete
	m.checkpoint.Stats = *stats
	m.mu.Unlock()

	return m.SaveSync()
}

// UpdateStats records session statistics without a phase transition
func (m *Manager) UpdateStats(stats *models.SessionStats) {
	m.mu.Lock()
	m.checkpoint.Stats = *stats
	m.mu.Unlock()
}

// GetCheckpoint returns a copy of the current checkpoint
func (m *Manager) GetCheckpoint() *models.Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyCheckpoint()
}

// Close stops the async writer and waits for pending writes
func (m *Manager) Close() error {
	if !m.enabled {
		return nil
	}

	close(m.stopWriter)
	m.writeWg.Wait()

	m.errorMu.Lock()
	defer m.errorMu.Unlock()
	return m.writerError
}

func computeConfigHash(cfg *config.Config) string {
	// Hash the config fields that change what gets generated
	data := fmt.Sprintf("%d:%d:%d:%s:%s",
		cfg.Generation.MaxDetailNPCs,
		cfg.Generation.MaxDetailLocations,
		cfg.Generation.MinPolishLength,
		cfg.Models["outline"].ModelName,
		cfg.Models["content"].ModelName)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:8]) // First 8 bytes
}
