package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lamim/campaignforge/internal/api"
	"github.com/lamim/campaignforge/internal/checkpoint"
	"github.com/lamim/campaignforge/internal/config"
	"github.com/lamim/campaignforge/internal/metrics"
	"github.com/lamim/campaignforge/internal/orchestrator"
	"github.com/lamim/campaignforge/internal/store"
	"github.com/lamim/campaignforge/internal/writer"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	skipPolish bool
	skipReview bool
	skipIndex  bool
	topK       int
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campaignforge",
		Short: "CampaignForge - Staged TTRPG Campaign Generator",
		Long: `CampaignForge generates long-form tabletop RPG campaign documents
through a staged LLM pipeline: outline, plot, content, polish, review.
Finished campaigns are stored in a local catalog and indexed for
semantic retrieval.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	generateCmd := &cobra.Command{
		Use:   "generate <request>",
		Short: "Generate a campaign from a request",
		Long: `Run the complete campaign generation pipeline:
1. Generate the structured outline
2. Expand each act into a plot narrative
3. Write act content, NPC and location details
4. Optional: polish the full document
5. Optional: score the result against a review rubric
6. Store and index the finished campaign`,
		Args: cobra.MinimumNArgs(1),
		RunE: runGenerate,
	}
	generateCmd.Flags().BoolVar(&skipPolish, "skip-polish", false, "Skip the polish stage")
	generateCmd.Flags().BoolVar(&skipReview, "skip-review", false, "Skip the review stage")
	generateCmd.Flags().BoolVar(&skipIndex, "skip-index", false, "Skip vector indexing of the result")

	resumeCmd := &cobra.Command{
		Use:   "resume <session-dir>",
		Short: "Resume an interrupted generation session",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	resumeCmd.Flags().BoolVar(&skipPolish, "skip-polish", false, "Skip the polish stage")
	resumeCmd.Flags().BoolVar(&skipReview, "skip-review", false, "Skip the review stage")
	resumeCmd.Flags().BoolVar(&skipIndex, "skip-index", false, "Skip vector indexing of the result")

	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage generation sessions",
	}
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List session directories and their checkpoint state",
		RunE:  listSessions,
	})
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "inspect <session-dir>",
		Short: "Show checkpoint details for a session",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectSession,
	})

	libraryCmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the campaign catalog",
	}
	libraryCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Register and index campaign files found on disk",
		RunE:  runSync,
	})
	libraryCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cataloged campaigns",
		RunE:  listCampaigns,
	})

	queryCmd := &cobra.Command{
		Use:   "query <campaign> <question>",
		Short: "Retrieve the campaign sections most relevant to a question",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runQuery,
	}
	queryCmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (0 = config default)")

	deleteCmd := &cobra.Command{
		Use:   "delete <campaign>",
		Short: "Delete a campaign, its catalog entry, and its index",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(deleteCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfigAndEnv()
	if err != nil {
		return err
	}
	request := strings.Join(args, " ")
	return runPipeline(cfg, secrets, request, "")
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfigAndEnv()
	if err != nil {
		return err
	}

	sessionDir, err := resolveSessionDir(cfg.Generation.OutputDir, args[0])
	if err != nil {
		return err
	}

	cp, err := checkpoint.Load(sessionDir, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.ValidateCheckpoint(cp, cfg); err != nil {
		return fmt.Errorf("checkpoint validation failed: %w", err)
	}

	fmt.Printf("Resuming session %s\n%s\n\n", filepath.Base(sessionDir), checkpoint.Describe(cp))
	return runPipeline(cfg, secrets, cp.Request, sessionDir)
}

// resolveSessionDir accepts either a path to a session directory or a bare
// session name under the output directory.
func resolveSessionDir(outputDir, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return arg, nil
	}
	if err := writer.ValidateSessionPath(arg); err != nil {
		return "", fmt.Errorf("invalid session directory: %w", err)
	}
	full := filepath.Join(outputDir, arg)
	if info, err := os.Stat(full); err != nil || !info.IsDir() {
		return "", fmt.Errorf("session directory not found: %s", arg)
	}
	return full, nil
}

// runPipeline drives a generation run, fresh or resumed, through to the
// stored and indexed campaign.
func runPipeline(cfg *config.Config, secrets *config.Secrets, request, resumeSession string) error {
	resumeMode := resumeSession != ""

	sessionMgr, err := writer.NewSessionManager(slog.Default(), cfg.Generation.OutputDir, resumeSession)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger, logFile, err := writer.SetupLogger(sessionMgr, logLevel)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		if logFile != nil {
			_ = logFile.Sync()
			_ = logFile.Close()
		}
	}()

	logger.Info("CampaignForge starting",
		"version", Version,
		"config", configPath,
		"session_dir", sessionMgr.GetSessionDir(),
		"resume_mode", resumeMode)

	if !resumeMode {
		if err := sessionMgr.BackupConfig(configPath); err != nil {
			logger.Warn("Failed to backup config", "error", err)
		}
	}

	collector := metrics.NewCollector(logger)
	apiClient := api.NewClient(logger, collector)
	if len(cfg.ProviderRateLimits) > 0 {
		apiClient.SetProviderRateLimits(cfg.ProviderRateLimits, cfg.ProviderBurstPercent)
		logger.Info("Provider rate limits configured",
			"providers", cfg.ProviderRateLimits,
			"burst_percent", cfg.ProviderBurstPercent)
	}

	var checkpointMgr *checkpoint.Manager
	if resumeMode {
		cp, err := checkpoint.Load(sessionMgr.GetSessionDir(), logger)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if err := checkpoint.ValidateCheckpoint(cp, cfg); err != nil {
			return fmt.Errorf("checkpoint validation failed: %w", err)
		}
		checkpointMgr = checkpoint.NewManagerFromCheckpoint(sessionMgr.GetSessionDir(), cp, cfg, logger)
	} else {
		checkpointMgr = checkpoint.NewManager(sessionMgr.GetSessionDir(), request, cfg, logger)
	}

	orch := orchestrator.New(cfg, secrets, apiClient, sessionMgr, checkpointMgr, collector,
		resumeMode, orchestrator.Options{SkipPolish: skipPolish, SkipReview: skipReview}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	campaign, err := orch.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			sessionName := filepath.Base(sessionMgr.GetSessionDir())
			logger.Warn("Generation interrupted",
				"session_dir", sessionName,
				"resume_command", fmt.Sprintf("campaignforge resume %s", sessionName))
			return fmt.Errorf("generation interrupted (resume with: campaignforge resume %s)", sessionName)
		}
		return fmt.Errorf("generation failed: %w", err)
	}

	s, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open campaign store: %w", err)
	}
	defer s.Close()

	path, err := s.SaveCampaign(campaign)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}

	if !skipIndex {
		embedder, err := newEmbedder(cfg, secrets, apiClient)
		if err != nil {
			logger.Warn("Skipping index", "reason", err)
		} else {
			name := strings.TrimSuffix(filepath.Base(path), ".md")
			chunks, err := s.IndexCampaign(ctx, embedder, name, writer.RenderCampaign(campaign))
			if err != nil {
				logger.Warn("Indexing failed, campaign saved without index", "error", err)
			} else {
				collector.AddChunksIndexed(name, chunks)
			}
		}
	}

	logger.Info("Campaign complete",
		"title", campaign.Title,
		"path", path,
		"words", campaign.Meta.WordCount,
		"duration", campaign.Meta.Duration)
	return nil
}

func listSessions(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndEnv()
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(cfg.Generation.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No output directory found. Run a generation first.")
			return nil
		}
		return fmt.Errorf("failed to read output directory: %w", err)
	}

	found := false
	fmt.Printf("%-35s %-12s %s\n", "SESSION", "PHASE", "REQUEST")
	fmt.Println(strings.Repeat("-", 80))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "session_") {
			continue
		}
		found = true

		phase := "no checkpoint"
		request := ""
		sessionPath := filepath.Join(cfg.Generation.OutputDir, entry.Name())
		if cp, err := checkpoint.Load(sessionPath, slog.New(slog.DiscardHandler)); err == nil {
			phase = string(cp.CurrentPhase)
			request = cp.Request
			if len(request) > 40 {
				request = request[:40] + "..."
			}
		}
		fmt.Printf("%-35s %-12s %s\n", entry.Name(), phase, request)
	}
	if !found {
		fmt.Println("No session directories found.")
	}
	return nil
}

func inspectSession(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndEnv()
	if err != nil {
		return err
	}

	sessionDir, err := resolveSessionDir(cfg.Generation.OutputDir, args[0])
	if err != nil {
		return err
	}

	cp, err := checkpoint.Load(sessionDir, slog.New(slog.DiscardHandler))
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	fmt.Printf("Session %s\n", sessionDir)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Session ID:     %s\n", cp.SessionID)
	fmt.Printf("Created:        %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Last saved:     %s\n", cp.LastSavedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Request:        %s\n", cp.Request)
	fmt.Printf("Config hash:    %s\n", cp.ConfigHash)
	fmt.Println()
	fmt.Println(checkpoint.Describe(cp))
	fmt.Println()
	if cp.CurrentPhase == "complete" {
		fmt.Println("This session is complete.")
	} else {
		fmt.Printf("Resume with: campaignforge resume %s\n", sessionDir)
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, secrets, err := loadConfigAndEnv()
	if err != nil {
		return err
	}

	logger := newCLILogger()
	collector := metrics.NewCollector(logger)
	apiClient := api.NewClient(logger, collector)
	embedder, err := newEmbedder(cfg, secrets, apiClient)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open campaign store: %w", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexed, err := s.Sync(ctx, embedder)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Printf("Sync complete: %d campaign(s) indexed\n", indexed)
	return nil
}

func listCampaigns(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndEnv()
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Storage, newCLILogger())
	if err != nil {
		return fmt.Errorf("failed to open campaign store: %w", err)
	}
	defer s.Close()

	entries, err := s.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No campaigns cataloged.")
		return nil
	}

	fmt.Printf("%-30s %-10s %s\n", "CAMPAIGN", "INDEXED", "DESCRIPTION")
	fmt.Println(strings.Repeat("-", 80))
	for _, e := range entries {
		indexed := "no"
		if e.IndexedAt != nil {
			indexed = "yes"
		}
		desc := e.Description
		if len(desc) > 38 {
			desc = desc[:38] + "..."
		}
		fmt.Printf("%-30s %-10s %s\n", e.Name, indexed, desc)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	campaign := args[0]
	question := strings.Join(args[1:], " ")

	cfg, secrets, err := loadConfigAndEnv()
	if err != nil {
		return err
	}

	logger := newCLILogger()
	collector := metrics.NewCollector(logger)
	apiClient := api.NewClient(logger, collector)
	embedder, err := newEmbedder(cfg, secrets, apiClient)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open campaign store: %w", err)
	}
	defer s.Close()

	if _, err := s.Get(campaign); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := s.Query(ctx, embedder, campaign, question, topK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No matching sections found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("[%d] %s (similarity %.3f)\n\n", i+1, r.Heading, r.Similarity)
		fmt.Println(strings.TrimSpace(r.Content))
		fmt.Println()
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndEnv()
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Storage, newCLILogger())
	if err != nil {
		return fmt.Errorf("failed to open campaign store: %w", err)
	}
	defer s.Close()

	if err := s.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted campaign %s\n", args[0])
	return nil
}

func loadConfigAndEnv() (*config.Config, *config.Secrets, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if verbose {
		for provider, key := range secrets.APIKeys {
			if key != "" {
				fmt.Fprintf(os.Stderr, "Loaded API key for: %s (length: %d)\n", provider, len(key))
			}
		}
	}
	return cfg, secrets, nil
}

func newCLILogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// apiEmbedder adapts the API client to the store's Embedder interface,
// binding the configured embedding model and its key.
type apiEmbedder struct {
	client   *api.Client
	modelCfg config.ModelConfig
	apiKey   string
}

func (e *apiEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return e.client.Embeddings(ctx, e.modelCfg, e.apiKey, inputs)
}

func newEmbedder(cfg *config.Config, secrets *config.Secrets, client *api.Client) (store.Embedder, error) {
	modelCfg, ok := cfg.Models["embedding"]
	if !ok || !modelCfg.Enabled {
		return nil, fmt.Errorf("no embedding model configured (add an enabled [models.embedding] section)")
	}
	return &apiEmbedder{
		client:   client,
		modelCfg: modelCfg,
		apiKey:   secrets.GetAPIKey(modelCfg.BaseURL),
	}, nil
}

// loadEnvFile loads KEY=VALUE pairs from a file into the environment.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = trimQuotes(strings.TrimSpace(value))
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
