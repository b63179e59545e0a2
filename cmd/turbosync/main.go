package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/turbosync/pkg/config"
	"github.com/cuemby/turbosync/pkg/history"
	"github.com/cuemby/turbosync/pkg/log"
	"github.com/cuemby/turbosync/pkg/manager"
	"github.com/cuemby/turbosync/pkg/metrics"
	"github.com/cuemby/turbosync/pkg/pipeline"
	"github.com/cuemby/turbosync/pkg/primary"
	"github.com/cuemby/turbosync/pkg/reconciler"
	"github.com/cuemby/turbosync/pkg/scheduler"
	"github.com/cuemby/turbosync/pkg/search"
	"github.com/cuemby/turbosync/pkg/storage"
	"github.com/cuemby/turbosync/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "turbosync [integrationId]",
	Short: "turbosync - bulk catalog sync: FTP -> CSV transform -> Mongo + Elasticsearch",
	Long: `turbosync fetches vendor CSV catalogs over FTP, normalizes them into a
common part-listing shape, and loads the result into MongoDB and an
Elasticsearch-compatible search index.

Run with no subcommand to execute one sync to completion for a single
integration (the first enabled FTP integration if none is given).`,
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runSyncOnce,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"turbosync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory for history/schedule-recovery state (overrides DATA_DIR)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(integrationCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadConfig reads Config from the environment and applies the --data-dir
// override, if given.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Load()
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg
}

// syncSummary is the final JSON payload printed to stdout on exit,
// per spec.md §6's external-interface contract.
type syncSummary struct {
	Success    bool  `json:"success"`
	Records    int64 `json:"records"`
	DurationMs int64 `json:"duration_ms"`
	RatePerSec int64 `json:"rate_per_sec"`
}

func runSyncOnce(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := context.Background()

	primaryClient, hist, searchClient, err := connectStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer primaryClient.Close(ctx)

	integ, err := resolveIntegration(ctx, primaryClient, args)
	if err != nil {
		return err
	}

	engine := pipeline.New(primaryClient, searchClient, hist, pipelineOptions(cfg))

	start := time.Now()
	runErr := engine.RunOnce(ctx, integ, types.TriggeredByManual, nil)

	summary := syncSummary{Success: runErr == nil}
	if rec, err := hist.RecentByIntegration(integ.ID, 1); err == nil && len(rec) > 0 {
		summary.Records = rec[0].Stats.Processed
	}
	summary.DurationMs = time.Since(start).Milliseconds()
	if summary.DurationMs > 0 {
		summary.RatePerSec = summary.Records * 1000 / summary.DurationMs
	}

	out, _ := json.Marshal(summary)
	fmt.Println(string(out))

	if runErr != nil {
		return fmt.Errorf("sync failed: %w", runErr)
	}
	return nil
}

func resolveIntegration(ctx context.Context, primaryClient *primary.Client, args []string) (*types.Integration, error) {
	if len(args) == 1 {
		return primaryClient.Get(ctx, args[0])
	}
	integrations, err := primaryClient.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled integrations: %w", err)
	}
	for _, integ := range integrations {
		if integ.Transport == types.TransportFTP {
			return integ, nil
		}
	}
	return nil, fmt.Errorf("no enabled FTP integration found")
}

// integrationManifest is the YAML shape an operator writes to declare one
// or more integrations, filling the gap left by the excluded admin CRUD UI
// with a file an operator can review and check into source control.
type integrationManifest struct {
	Integrations []integrationManifestEntry `yaml:"integrations"`
}

type integrationManifestEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	FTP     *struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Secure   bool   `yaml:"secure"`
		Path     string `yaml:"path"`
		Glob     string `yaml:"glob"`
	} `yaml:"ftp"`
	Schedule struct {
		Frequency  string `yaml:"frequency"`
		EveryNHour int    `yaml:"everyNHour"`
		TimeOfDay  string `yaml:"timeOfDay"`
		DaysOfWeek []int  `yaml:"daysOfWeek"`
		DayOfMonth int    `yaml:"dayOfMonth"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"schedule"`
}

func (e integrationManifestEntry) toIntegration() *types.Integration {
	integ := &types.Integration{
		ID:        e.ID,
		Name:      e.Name,
		Transport: types.TransportAPI,
		Enabled:   e.Enabled,
		Schedule: types.Schedule{
			Frequency:  types.ScheduleFrequency(e.Schedule.Frequency),
			EveryNHour: e.Schedule.EveryNHour,
			TimeOfDay:  e.Schedule.TimeOfDay,
			DayOfMonth: e.Schedule.DayOfMonth,
			Timezone:   e.Schedule.Timezone,
		},
	}
	for _, d := range e.Schedule.DaysOfWeek {
		integ.Schedule.DaysOfWeek = append(integ.Schedule.DaysOfWeek, time.Weekday(d))
	}
	if e.FTP != nil {
		integ.Transport = types.TransportFTP
		integ.FTP = &types.FTPConfig{
			Host:     e.FTP.Host,
			Port:     e.FTP.Port,
			Username: e.FTP.Username,
			Password: e.FTP.Password,
			Secure:   e.FTP.Secure,
			Path:     e.FTP.Path,
			Glob:     e.FTP.Glob,
		}
	}
	return integ
}

var integrationCmd = &cobra.Command{
	Use:   "integration",
	Short: "Manage integration configuration",
}

var integrationApplyCmd = &cobra.Command{
	Use:   "apply <manifest.yaml>",
	Short: "Create or update integrations from a YAML manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntegrationApply,
}

func init() {
	integrationCmd.AddCommand(integrationApplyCmd)
}

func runIntegrationApply(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := context.Background()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var manifest integrationManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if len(manifest.Integrations) == 0 {
		return fmt.Errorf("manifest has no integrations")
	}

	primaryClient, err := primary.Connect(ctx, primary.Options{
		URI: cfg.MongoURI, Database: cfg.MongoDatabase,
	})
	if err != nil {
		return fmt.Errorf("connect primary store: %w", err)
	}
	defer primaryClient.Close(ctx)

	for _, entry := range manifest.Integrations {
		if entry.ID == "" {
			return fmt.Errorf("manifest entry %q missing id", entry.Name)
		}
		if err := primaryClient.UpsertIntegration(ctx, entry.toIntegration()); err != nil {
			return fmt.Errorf("apply integration %s: %w", entry.ID, err)
		}
		fmt.Printf("applied %s (%s)\n", entry.ID, entry.Name)
	}
	return nil
}

// schedulerCmd starts the cron scheduler, health-check ticker, and
// /metrics HTTP endpoint, blocking until SIGINT/SIGTERM.
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the cron scheduler and health-check daemon",
}

var schedulerServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler, health checker, and metrics endpoint and block",
	RunE:  runSchedulerServe,
}

func init() {
	schedulerCmd.AddCommand(schedulerServeCmd)
}

func runSchedulerServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := context.Background()

	primaryClient, hist, searchClient, err := connectStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer primaryClient.Close(ctx)

	engine := pipeline.New(primaryClient, searchClient, hist, pipelineOptions(cfg))
	mgr := manager.New(primaryClient, hist, engine, cfg.UseWorker, cfg.HistoryRetention)
	rec := reconciler.New(primaryClient, hist, mgr, cfg.HealthCheckEvery, cfg.StuckSyncThreshold, cfg.OverdueGrace)
	sched := scheduler.New(primaryClient, hist, mgr, rec, cfg.StartupDelay, cfg.OverdueGrace)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	fmt.Println("turbosync scheduler started")

	collector := metrics.NewCollector(hist.Store())
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("mongo", true, "connected")
	if searchClient != nil {
		metrics.RegisterComponent("elasticsearch", true, "connected")
	}

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/healthz", metrics.LivenessHandler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	fmt.Printf("metrics endpoint: http://%s/metrics\n", cfg.MetricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nshutting down...")

	sched.Stop()
	fmt.Println("shutdown complete")
	return nil
}

// historyCmd wraps the History Store for operator debugging.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect sync history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sync history for an integration",
	RunE:  runHistoryList,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated sync stats for an integration",
	RunE:  runHistoryStats,
}

func init() {
	historyListCmd.Flags().String("integration", "", "Integration ID (required)")
	historyListCmd.Flags().Int("limit", 20, "Maximum records to show")
	historyListCmd.MarkFlagRequired("integration")

	historyStatsCmd.Flags().String("integration", "", "Integration ID (required)")
	historyStatsCmd.Flags().Int("days", 7, "Number of days to aggregate over")
	historyStatsCmd.MarkFlagRequired("integration")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	integrationID, _ := cmd.Flags().GetString("integration")
	limit, _ := cmd.Flags().GetInt("limit")

	hist, err := openHistory(cfg)
	if err != nil {
		return err
	}

	recs, err := hist.RecentByIntegration(integrationID, limit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No history found")
		return nil
	}

	fmt.Printf("%-36s %-12s %-10s %-20s %s\n", "ID", "STATUS", "RECORDS", "STARTED", "DURATION")
	for _, r := range recs {
		fmt.Printf("%-36s %-12s %-10d %-20s %s\n",
			r.ID, r.Status, r.Stats.Processed,
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Duration())
	}
	return nil
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	integrationID, _ := cmd.Flags().GetString("integration")
	days, _ := cmd.Flags().GetInt("days")

	hist, err := openHistory(cfg)
	if err != nil {
		return err
	}

	stats, err := hist.Stats(integrationID, days)
	if err != nil {
		return fmt.Errorf("compute history stats: %w", err)
	}
	if len(stats) == 0 {
		fmt.Println("No history in range")
		return nil
	}

	fmt.Printf("%-12s %-8s %-14s %s\n", "STATUS", "COUNT", "TOTAL RECORDS", "AVG DURATION")
	for _, s := range stats {
		fmt.Printf("%-12s %-8d %-14d %s\n", s.Status, s.Count, s.TotalRecords, s.AvgDuration)
	}
	return nil
}

func openHistory(cfg config.Config) (*history.History, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return history.New(store), nil
}

// connectStores dials MongoDB (always) and the search node (best-effort;
// a nil *search.Client is never returned — Ping failures are handled by
// the pipeline engine itself, per spec.md §4.5's "log but do not abort").
func connectStores(ctx context.Context, cfg config.Config) (*primary.Client, *history.History, *search.Client, error) {
	primaryClient, err := primary.Connect(ctx, primary.Options{
		URI: cfg.MongoURI, Database: cfg.MongoDatabase, BulkLoaderBin: cfg.BulkLoaderBin,
		MongoWorkers: cfg.MongoWorkers, MongoConcurrent: cfg.MongoConcurrent,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect primary store: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open history store: %w", err)
	}
	hist := history.New(store)

	searchClient := search.New(search.Options{
		Node: cfg.ESNode, Username: cfg.ESUsername, Password: cfg.ESPassword,
		IndexPrefix: cfg.ESIndexPrefix, KeepOldIndexes: cfg.ESKeepOldIndexes,
		ChunkLines: cfg.ESChunkLines, BulkConcurrent: cfg.ESBulkConcurrent,
	})

	return primaryClient, hist, searchClient, nil
}

func pipelineOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		ScratchRoot:       os.TempDir(),
		FTPParallel:       cfg.FTPParallel,
		FTPRetries:        cfg.FTPRetries,
		FTPTimeout:        cfg.FTPTimeout,
		TransformParallel: cfg.TransformParallel,
		MongoConcurrent:   cfg.MongoConcurrent,
		ESBulkConcurrent:  cfg.ESBulkConcurrent,
		HistoryRetention:  cfg.HistoryRetention,
	}
}
