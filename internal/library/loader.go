package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lamim/campaignforge/internal/config"
)

// Loader serves exemplar campaign documents as few-shot context for the
// generation stages. Small-context models get condensed digests; large-context
// models get whole documents.
type Loader struct {
	cfg    config.LibraryConfig
	logger *slog.Logger
}

// NewLoader creates a library loader
func NewLoader(cfg config.LibraryConfig, logger *slog.Logger) *Loader {
	return &Loader{
		cfg:    cfg,
		logger: logger.With("component", "library"),
	}
}

// Load reads one exemplar by name (with or without the .md extension).
func (l *Loader) Load(name string) (string, error) {
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	path := filepath.Join(l.cfg.Dir, filepath.Base(name))

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read exemplar %s: %w", name, err)
	}
	return string(data), nil
}

// List returns available exemplar names, priority entries first, the rest
// alphabetical.
func (l *Loader) List() []string {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		l.logger.Warn("Library directory unavailable", "dir", l.cfg.Dir, "error", err)
		return nil
	}

	available := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		available[strings.TrimSuffix(e.Name(), ".md")] = true
	}

	var names []string
	for _, p := range l.cfg.Priority {
		p = strings.TrimSuffix(p, ".md")
		if available[p] {
			names = append(names, p)
			delete(available, p)
		} else {
			l.logger.Warn("Priority exemplar not found, skipping", "name", p)
		}
	}

	rest := make([]string, 0, len(available))
	for name := range available {
		rest = append(rest, name)
	}
	sort.Strings(rest)

	return append(names, rest...)
}

// Condensed builds a compact digest of up to n exemplars: every heading plus
// the first few lines under it. Suitable for small-context models.
func (l *Loader) Condensed(n int) string {
	names := l.take(n)
	if len(names) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Reference campaigns (condensed):\n\n")
	for _, name := range names {
		content, err := l.Load(name)
		if err != nil {
			l.logger.Warn("Skipping exemplar", "name", name, "error", err)
			continue
		}
		b.WriteString(fmt.Sprintf("--- %s ---\n", name))
		b.WriteString(condense(content, l.cfg.CondensedLines))
		b.WriteString("\n")
	}
	return b.String()
}

// Full builds a context block with up to n complete exemplar documents,
// fenced as markdown. Only sensible for large-context models.
func (l *Loader) Full(n int) string {
	names := l.take(n)
	if len(names) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Reference campaigns (complete documents):\n\n")
	for _, name := range names {
		content, err := l.Load(name)
		if err != nil {
			l.logger.Warn("Skipping exemplar", "name", name, "error", err)
			continue
		}
		b.WriteString(fmt.Sprintf("### Reference: %s\n\n```markdown\n", name))
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}
	return b.String()
}

func (l *Loader) take(n int) []string {
	names := l.List()
	if n > 0 && len(names) > n {
		names = names[:n]
	}
	return names
}

// condense keeps headings and the first linesPerSection non-empty lines under
// each heading.
func condense(content string, linesPerSection int) string {
	if linesPerSection < 1 {
		linesPerSection = 3
	}

	var b strings.Builder
	kept := 0
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			b.WriteString(trimmed)
			b.WriteString("\n")
			kept = 0
			continue
		}
		if trimmed == "" {
			continue
		}
		if kept < linesPerSection {
			b.WriteString(trimmed)
			b.WriteString("\n")
			kept++
		}
	}
	return b.String()
}
