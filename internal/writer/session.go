package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionManager manages session directories and files
type SessionManager struct {
	sessionDir string
	logger     *slog.Logger
}

// NewSessionManager creates a session directory under outputDir, or reopens
// an existing one when resuming.
func NewSessionManager(logger *slog.Logger, outputDir, resumeFromSession string) (*SessionManager, error) {
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var sessionDir string
	if resumeFromSession != "" {
		// The resume argument may be a bare session name or a full path
		sessionDir = resumeFromSession
		if _, err := os.Stat(sessionDir); os.IsNotExist(err) {
			sessionDir = filepath.Join(outputDir, resumeFromSession)
		}
		if _, err := os.Stat(sessionDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("session directory not found: %s", resumeFromSession)
		}
		logger.Info("Resuming from existing session", "path", sessionDir)
	} else {
		timestamp := time.Now().Format("2006-01-02T15-04-05")
		sessionDir = filepath.Join(outputDir, "session_"+timestamp)

		if err := os.MkdirAll(sessionDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}

		logger.Info("Created new session directory", "path", sessionDir)
	}

	return &SessionManager{
		sessionDir: sessionDir,
		logger:     logger,
	}, nil
}

// ValidateSessionPath rejects session names that could escape the output
// directory.
func ValidateSessionPath(name string) error {
	if name == "" {
		return fmt.Errorf("session name is empty")
	}
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return fmt.Errorf("session name must be a plain directory name: %s", name)
	}
	return nil
}

// GetSessionDir returns the session directory path
func (sm *SessionManager) GetSessionDir() string {
	return sm.sessionDir
}

// GetLogPath returns the full path to the session log file
func (sm *SessionManager) GetLogPath() string {
	return filepath.Join(sm.sessionDir, "session.log")
}

// GetConfigBackupPath returns the full path to the config backup
func (sm *SessionManager) GetConfigBackupPath() string {
	return filepath.Join(sm.sessionDir, "config.toml.bak")
}

// GetDraftPath returns the full path to the in-progress campaign draft
func (sm *SessionManager) GetDraftPath() string {
	return filepath.Join(sm.sessionDir, "draft.md")
}

// BackupConfig copies the config file to the session directory
func (sm *SessionManager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := sm.GetConfigBackupPath()
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	sm.logger.Info("Backed up config file", "path", backupPath)
	return nil
}

// WriteDraft persists the current draft document to the session directory.
func (sm *SessionManager) WriteDraft(content string) error {
	if err := os.WriteFile(sm.GetDraftPath(), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}
