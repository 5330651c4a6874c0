package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/campaignforge/internal/api"
	"github.com/lamim/campaignforge/internal/checkpoint"
	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/internal/library"
	"github.com/lamim/campaignforge/internal/metrics"
	"github.com/lamim/campaignforge/internal/review"
	"github.com/lamim/campaignforge/internal/stage"
	"github.com/lamim/campaignforge/internal/writer"
	"github.com/lamim/campaignforge/pkg/models"
)

// Options toggles optional pipeline stages for a single run.
type Options struct {
	SkipPolish bool
	SkipReview bool
}

// Orchestrator drives the campaign pipeline: outline, plot, content, polish,
// review. Each phase transition is checkpointed so an interrupted run can
// resume where it stopped.
type Orchestrator struct {
	cfg           *config.Config
	secrets       *config.Secrets
	apiClient     *api.Client
	reviewer      *review.Reviewer
	sessionMgr    *writer.SessionManager
	checkpointMgr *checkpoint.Manager
	collector     *metrics.Collector
	logger        *slog.Logger
	stats         *models.SessionStats
	opts          Options
	resumeMode    bool
}

// New creates an orchestrator for a fresh or resumed session.
func New(
	cfg *config.Config,
	secrets *config.Secrets,
	apiClient *api.Client,
	sessionMgr *writer.SessionManager,
	checkpointMgr *checkpoint.Manager,
	collector *metrics.Collector,
	resumeMode bool,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	var reviewer *review.Reviewer
	if !opts.SkipReview && review.Enabled(cfg) {
		reviewer = review.New(cfg, secrets, apiClient, logger)
	}

	stats := &models.SessionStats{
		StartTime:      time.Now(),
		StageDurations: make(map[string]time.Duration),
	}
	if resumeMode && checkpointMgr != nil {
		cp := checkpointMgr.GetCheckpoint()
		stats = &cp.Stats
		stats.StartTime = time.Now()
		if stats.StageDurations == nil {
			stats.StageDurations = make(map[string]time.Duration)
		}
	}

	return &Orchestrator{
		cfg:           cfg,
		secrets:       secrets,
		apiClient:     apiClient,
		reviewer:      reviewer,
		sessionMgr:    sessionMgr,
		checkpointMgr: checkpointMgr,
		collector:     collector,
		logger:        logger,
		stats:         stats,
		opts:          opts,
		resumeMode:    resumeMode,
	}
}

// Run executes the pipeline and returns the assembled campaign.
func (o *Orchestrator) Run(ctx context.Context) (*models.Campaign, error) {
	defer func() {
		if o.checkpointMgr == nil {
			return
		}
		if err := o.checkpointMgr.SaveSync(); err != nil {
			o.logger.Error("Failed to save final checkpoint", "error", err)
		}
		if err := o.checkpointMgr.Close(); err != nil {
			o.logger.Error("Failed to close checkpoint manager", "error", err)
		}
	}()

	cp := o.checkpointMgr.GetCheckpoint()
	st := restoreState(cp)

	o.logger.Info("Starting campaign pipeline",
		"session_id", cp.SessionID,
		"request", st.Request,
		"resume_mode", o.resumeMode,
		"phase", cp.CurrentPhase)

	libLoader := library.NewLoader(o.cfg.Library, o.logger)
	deps := &stage.Deps{
		Client:  o.apiClient,
		Cfg:     o.cfg,
		Secrets: o.secrets,
		Library: libLoader,
		Logger:  o.logger,
		Metrics: o.collector,
	}

	// Outline
	if !cp.OutlineComplete {
		if err := o.runStage(ctx, stage.NewOutlineStage(deps), st); err != nil {
			return nil, fmt.Errorf("outline stage failed: %w", err)
		}
		if err := o.checkpointMgr.MarkOutlineComplete(st.Outline); err != nil {
			o.logger.Warn("Failed to checkpoint outline", "error", err)
		}
	} else {
		o.logger.Info("Resuming: outline already complete", "title", st.Outline.Title)
	}

	// Plot
	if !cp.PlotComplete {
		deps.Progress = func(completed, total int, label string) {
			if err := o.checkpointMgr.UpdatePlot(st.Plot); err != nil {
				o.logger.Warn("Failed to checkpoint plot progress", "error", err)
			}
		}
		err := o.runStage(ctx, stage.NewPlotStage(deps), st)
		deps.Progress = nil
		if err != nil {
			return nil, fmt.Errorf("plot stage failed: %w", err)
		}
		if err := o.checkpointMgr.MarkPlotComplete(st.Plot); err != nil {
			o.logger.Warn("Failed to checkpoint plot", "error", err)
		}
	} else {
		o.logger.Info("Resuming: plot already complete", "acts", len(st.Plot.ActNarratives))
	}

	// Content
	if !cp.ContentComplete {
		pending := checkpoint.PendingSectionCount(o.checkpointMgr.GetCheckpoint(), o.cfg)
		bar := progressbar.Default(int64(pending), "Generating sections")
		seen := make(map[string]bool, len(st.Sections))
		for k := range st.Sections {
			seen[k] = true
		}
		deps.Progress = func(completed, total int, label string) {
			bar.Add(1)
			bar.Describe(fmt.Sprintf("Generating sections (%s)", label))
			o.checkpointSections(st, seen)
		}

		err := o.runStage(ctx, stage.NewContentStage(deps), st)
		deps.Progress = nil
		bar.Finish()
		if err != nil {
			return nil, fmt.Errorf("content stage failed: %w", err)
		}

		st.Draft = assembleDraft(st)
		if err := o.sessionMgr.WriteDraft(st.Draft); err != nil {
			o.logger.Warn("Failed to write draft file", "error", err)
		}
		if err := o.checkpointMgr.MarkContentComplete(st.Sections, st.Elements, st.Draft); err != nil {
			o.logger.Warn("Failed to checkpoint content", "error", err)
		}
	} else {
		o.logger.Info("Resuming: content already complete", "sections", len(st.Sections))
	}

	// Polish
	if !cp.PolishComplete {
		if o.opts.SkipPolish {
			o.logger.Info("Polish stage skipped")
			st.Polished = st.Draft
		} else if err := o.runStage(ctx, stage.NewPolishStage(deps), st); err != nil {
			return nil, fmt.Errorf("polish stage failed: %w", err)
		}
		if err := o.checkpointMgr.MarkPolishComplete(st.Polished); err != nil {
			o.logger.Warn("Failed to checkpoint polish", "error", err)
		}
	} else {
		o.logger.Info("Resuming: polish already complete")
	}

	// Review
	reviewResult := cp.Review
	if !cp.ReviewComplete {
		if o.reviewer != nil {
			content := st.Polished
			if content == "" {
				content = st.Draft
			}
			start := time.Now()
			result, err := o.reviewer.Evaluate(ctx, content)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				o.logger.Warn("Review failed, continuing without scores", "error", err)
			} else {
				reviewResult = result
				o.logger.Info("Review complete", "total", result.Total)
			}
			o.recordStage("review", time.Since(start))
		}
		if err := o.checkpointMgr.MarkReviewComplete(reviewResult); err != nil {
			o.logger.Warn("Failed to checkpoint review", "error", err)
		}
	}

	o.stats.EndTime = time.Now()
	o.stats.TotalDuration = o.stats.EndTime.Sub(o.stats.StartTime)

	meta := statsMeta(cp.SessionID, o.stats, o.completedStages())
	campaign := buildCampaign(st, reviewResult, meta)

	if err := o.checkpointMgr.MarkComplete(o.stats); err != nil {
		o.logger.Warn("Failed to mark session complete", "error", err)
	}

	o.logger.Info("Pipeline finished",
		"title", campaign.Title,
		"words", campaign.Meta.WordCount,
		"duration", o.stats.TotalDuration.Round(time.Second))

	return campaign, nil
}

func (o *Orchestrator) runStage(ctx context.Context, s stage.Stage, st *stage.State) error {
	start := time.Now()
	o.logger.Info("Stage starting", "stage", s.Name())

	err := s.Run(ctx, st)
	elapsed := time.Since(start)
	o.recordStage(s.Name(), elapsed)

	if err != nil {
		o.logger.Error("Stage failed", "stage", s.Name(), "duration", elapsed, "error", err)
		return err
	}
	o.logger.Info("Stage complete", "stage", s.Name(), "duration", elapsed)
	return nil
}

func (o *Orchestrator) recordStage(name string, d time.Duration) {
	o.stats.StageDurations[name] += d
	if o.collector != nil {
		o.collector.RecordStageDuration(name, d)
	}
	o.checkpointMgr.UpdateStats(o.stats)
}

// checkpointSections records sections that finished since the last progress
// tick. Runs on the content stage's result loop, the same goroutine that
// writes the section map.
func (o *Orchestrator) checkpointSections(st *stage.State, seen map[string]bool) {
	for key, text := range st.Sections {
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := o.checkpointMgr.MarkSectionComplete(key, text); err != nil {
			o.logger.Warn("Failed to checkpoint section", "section", key, "error", err)
		}
	}
}

func (o *Orchestrator) completedStages() []string {
	stages := []string{"outline", "plot", "content"}
	if !o.opts.SkipPolish {
		stages = append(stages, "polish")
	}
	if o.reviewer != nil {
		stages = append(stages, "review")
	}
	return stages
}

// restoreState rebuilds pipeline state from a checkpoint. For a fresh session
// the checkpoint only carries the request.
func restoreState(cp *models.Checkpoint) *stage.State {
	st := &stage.State{
		Request:  cp.Request,
		Outline:  cp.Outline,
		Plot:     cp.Plot,
		Sections: cp.Sections,
		Elements: cp.Elements,
		Draft:    cp.DraftContent,
		Polished: cp.PolishedContent,
	}
	if st.Sections == nil {
		st.Sections = make(map[string]string)
	}
	return st
}
