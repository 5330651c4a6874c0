package stage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lamim/campaignforge/internal/util"
	"github.com/lamim/campaignforge/pkg/models"
)

// ContentStage writes the long-form body of the campaign: act expansions,
// NPC write-ups, location write-ups, and the supplementary elements. Acts run
// sequentially so each expansion can follow the one before it; NPC and
// location details are independent and go through a bounded worker pool.
type ContentStage struct {
	deps *Deps
}

// NewContentStage creates the content stage
func NewContentStage(deps *Deps) *ContentStage {
	return &ContentStage{deps: deps}
}

func (s *ContentStage) Name() string { return "content" }

func (s *ContentStage) Run(ctx context.Context, st *State) error {
	if st.Outline == nil || st.Plot == nil {
		return fmt.Errorf("content stage requires outline and plot")
	}
	logger := s.deps.Logger.With("stage", s.Name())

	if st.Sections == nil {
		st.Sections = make(map[string]string)
	}

	// Acts first, in order
	for i, act := range st.Outline.Acts {
		key := fmt.Sprintf("act:%d", act.Number)
		if _, done := st.Sections[key]; done {
			continue
		}

		narrative := ""
		if i < len(st.Plot.ActNarratives) {
			narrative = st.Plot.ActNarratives[i].Narrative
		}

		start := time.Now()
		text, err := s.generateActContent(ctx, st.Outline, act, narrative)
		if err != nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.IncrementSection(string(models.SectionAct), false)
			}
			return fmt.Errorf("failed to generate content for act %d: %w", act.Number, err)
		}

		st.Sections[key] = text
		if s.deps.Metrics != nil {
			s.deps.Metrics.IncrementSection(string(models.SectionAct), true)
		}
		if s.deps.Progress != nil {
			s.deps.Progress(i+1, len(st.Outline.Acts), act.Title)
		}
		logger.Info("Act content generated", "act", act.Number, "length", len(text), "duration", time.Since(start))
	}

	// NPC and location details through the worker pool
	jobs := s.pendingDetailJobs(st)
	if len(jobs) > 0 {
		if err := s.runDetailPool(ctx, st, jobs); err != nil {
			return err
		}
	}

	// Supplementary elements, with a static fallback
	if st.Elements == nil {
		st.Elements = s.generateElements(ctx, st.Outline)
	}

	return nil
}

// pendingDetailJobs builds the NPC and location jobs not yet present in the
// section map, capped by config.
func (s *ContentStage) pendingDetailJobs(st *State) []models.SectionJob {
	var jobs []models.SectionJob

	npcs := st.Outline.NPCs
	if len(npcs) > s.deps.Cfg.Generation.MaxDetailNPCs {
		npcs = npcs[:s.deps.Cfg.Generation.MaxDetailNPCs]
	}
	for _, npc := range npcs {
		key := "npc:" + npc.Name
		if _, done := st.Sections[key]; done {
			continue
		}
		hint := npc.Role
		if npc.Importance != "" {
			hint = fmt.Sprintf("%s, %s", npc.Role, npc.Importance)
		}
		jobs = append(jobs, models.SectionJob{Key: key, Kind: models.SectionNPC, Name: npc.Name, Hint: hint})
	}

	locs := st.Outline.Locations
	if len(locs) > s.deps.Cfg.Generation.MaxDetailLocations {
		locs = locs[:s.deps.Cfg.Generation.MaxDetailLocations]
	}
	for _, loc := range locs {
		key := "loc:" + loc.Name
		if _, done := st.Sections[key]; done {
			continue
		}
		hint := loc.Type
		if loc.Importance != "" {
			hint = fmt.Sprintf("%s, %s", loc.Type, loc.Importance)
		}
		jobs = append(jobs, models.SectionJob{Key: key, Kind: models.SectionLocation, Name: loc.Name, Hint: hint})
	}

	return jobs
}

func (s *ContentStage) runDetailPool(ctx context.Context, st *State, pending []models.SectionJob) error {
	logger := s.deps.Logger.With("stage", s.Name())

	concurrency := s.deps.Cfg.Generation.Concurrency
	if concurrency > len(pending) {
		concurrency = len(pending)
	}

	jobs := make(chan models.SectionJob, len(pending))
	results := make(chan models.SectionResult, len(pending))

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go s.detailWorker(ctx, w, st.Outline, jobs, results, &wg)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetActiveWorkers(concurrency)
	}

	for _, job := range pending {
		jobs <- job
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
		if s.deps.Metrics != nil {
			s.deps.Metrics.SetActiveWorkers(0)
		}
	}()

	completed := 0
	failures := 0
	var firstErr error
	for result := range results {
		completed++
		if s.deps.Progress != nil {
			s.deps.Progress(completed, len(pending), result.Job.Name)
		}

		if result.Err != nil {
			failures++
			if firstErr == nil {
				firstErr = result.Err
			}
			if s.deps.Metrics != nil {
				s.deps.Metrics.IncrementSection(string(result.Job.Kind), false)
			}
			logger.Error("Section generation failed",
				"section", result.Job.Key,
				"error", result.Err)
			continue
		}

		st.Sections[result.Job.Key] = result.Text
		if s.deps.Metrics != nil {
			s.deps.Metrics.IncrementSection(string(result.Job.Kind), true)
		}
		logger.Debug("Section generated",
			"section", result.Job.Key,
			"length", len(result.Text),
			"duration", result.Duration)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Partial failures are tolerated: the document assembles from what
	// succeeded. Total failure aborts.
	if failures == len(pending) && firstErr != nil {
		return fmt.Errorf("all %d detail sections failed: %w", failures, firstErr)
	}
	return nil
}

func (s *ContentStage) detailWorker(
	ctx context.Context,
	workerID int,
	outline *models.Outline,
	jobs <-chan models.SectionJob,
	results chan<- models.SectionResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	workerLogger := s.deps.Logger.With("worker_id", workerID)
	workerLogger.Debug("Worker started")

	for job := range jobs {
		select {
		case <-ctx.Done():
			results <- models.SectionResult{Job: job, Err: ctx.Err()}
			continue
		default:
		}

		start := time.Now()
		text, err := s.generateDetail(ctx, outline, job)
		results <- models.SectionResult{
			Job:      job,
			Text:     text,
			Err:      err,
			Duration: time.Since(start),
		}
	}

	workerLogger.Debug("Worker finished")
}

func (s *ContentStage) generateDetail(ctx context.Context, outline *models.Outline, job models.SectionJob) (string, error) {
	tmpl := s.deps.Cfg.PromptTemplates.NPCDetail
	if job.Kind == models.SectionLocation {
		tmpl = s.deps.Cfg.PromptTemplates.LocationDetail
	}

	prompt, err := util.RenderTemplate(tmpl, map[string]interface{}{
		"Title":          outline.Title,
		"CoreConcept":    outline.CoreConcept,
		"CentralMystery": outline.CentralMystery,
		"Name":           job.Name,
		"Hint":           job.Hint,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render detail template: %w", err)
	}

	text, err := s.deps.completeText(ctx, "content", prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty detail returned for %s", job.Key)
	}
	return text, nil
}

func (s *ContentStage) generateActContent(ctx context.Context, outline *models.Outline, act models.Act, narrative string) (string, error) {
	prompt, err := util.RenderTemplate(s.deps.Cfg.PromptTemplates.ActContent, map[string]interface{}{
		"Title":     outline.Title,
		"ActNumber": act.Number,
		"ActTitle":  act.Title,
		"Narrative": narrative,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render act content template: %w", err)
	}

	text, err := s.deps.completeText(ctx, "content", prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty content returned for act %d", act.Number)
	}
	return text, nil
}

// generateElements produces the supplementary campaign elements. Never fails:
// a static fallback stands in when the model's JSON cannot be parsed.
func (s *ContentStage) generateElements(ctx context.Context, outline *models.Outline) *models.ElementSet {
	logger := s.deps.Logger.With("stage", s.Name())

	prompt, err := util.RenderTemplate(s.deps.Cfg.PromptTemplates.AdditionalElements, map[string]interface{}{
		"Title":       outline.Title,
		"CoreConcept": outline.CoreConcept,
	})
	if err != nil {
		logger.Warn("Failed to render elements template, using fallback", "error", err)
		return fallbackElements(outline)
	}

	var elements models.ElementSet
	if err := s.deps.completeJSON(ctx, "content", prompt, &elements); err != nil {
		logger.Warn("Elements generation failed, using fallback", "error", err)
		return fallbackElements(outline)
	}

	elements.RecurringThemes = util.DeduplicateStrings(elements.RecurringThemes)
	elements.SideQuests = util.DeduplicateStrings(elements.SideQuests)
	elements.RecurringVillains = util.DeduplicateStrings(elements.RecurringVillains)
	return &elements
}

func fallbackElements(outline *models.Outline) *models.ElementSet {
	return &models.ElementSet{
		RecurringThemes:     outline.Themes,
		PlayerAgencyMoments: []string{"Key decisions at each act transition shape how the finale plays out."},
		CampaignTone:        "Adaptable to the table; defaults to adventurous with an undercurrent of mystery.",
	}
}
