// Package pipeline implements the Pipeline Engine (C5): the runOnce
// orchestration that takes one integration through
// Clean -> Fetch -> (Transform || PrimaryLoad || SearchLoad) -> Finalize.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/turbosync/pkg/ftp"
	"github.com/cuemby/turbosync/pkg/health"
	"github.com/cuemby/turbosync/pkg/history"
	"github.com/cuemby/turbosync/pkg/log"
	"github.com/cuemby/turbosync/pkg/metrics"
	"github.com/cuemby/turbosync/pkg/primary"
	"github.com/cuemby/turbosync/pkg/search"
	"github.com/cuemby/turbosync/pkg/transform"
	"github.com/cuemby/turbosync/pkg/types"
)

// Options bounds the concurrency and timing knobs runOnce needs; it is
// populated from pkg/config.Config by the caller (scheduler or CLI).
type Options struct {
	ScratchRoot string

	FTPParallel, FTPRetries int
	FTPTimeout              time.Duration

	TransformParallel int

	MongoConcurrent int
	ESBulkConcurrent int

	ProgressThrottle time.Duration // default 2s
	HistoryRetention time.Duration // default 90 days
}

func (o Options) withDefaults() Options {
	if o.ProgressThrottle <= 0 {
		o.ProgressThrottle = 2 * time.Second
	}
	if o.MongoConcurrent <= 0 {
		o.MongoConcurrent = 4
	}
	if o.ESBulkConcurrent <= 0 {
		o.ESBulkConcurrent = 8
	}
	if o.HistoryRetention <= 0 {
		o.HistoryRetention = 90 * 24 * time.Hour
	}
	return o
}

// Engine runs one integration's sync to completion.
type Engine struct {
	primary *primary.Client
	search  *search.Client
	history *history.History
	opts    Options
}

// New builds an Engine bound to already-connected store clients.
func New(primaryClient *primary.Client, searchClient *search.Client, hist *history.History, opts Options) *Engine {
	return &Engine{primary: primaryClient, search: searchClient, history: hist, opts: opts.withDefaults()}
}

const poisonPath = "\x00POISON\x00"

// RunOnce executes the full Clean->Fetch->Pipeline->Finalize algorithm for
// one integration and reports throttled progress via report. It always
// deletes its scratch directory before returning, on every exit path.
func (e *Engine) RunOnce(ctx context.Context, integ *types.Integration, triggeredBy types.TriggerSource, report func(types.ProgressEvent)) error {
	logger := log.WithIntegration(integ.ID)
	rec, err := e.history.Create(integ.ID, integ.Name, integ.Transport, triggeredBy, e.opts.HistoryRetention)
	if err != nil {
		return fmt.Errorf("pipeline: create history: %w", err)
	}
	runStart := time.Now()
	metrics.SchedulerRunsTotal.WithLabelValues(string(triggeredBy)).Inc()

	reporter := newThrottledReporter(e.opts.ProgressThrottle, func(ev types.ProgressEvent) {
		ev.Status = rec.Status
		_ = e.history.UpdateProgress(rec, ev)
		if report != nil {
			report(ev)
		}
	})

	scratchDir := filepath.Join(e.opts.ScratchRoot, rec.ID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		e.fail(rec, integ, err)
		return fmt.Errorf("pipeline: create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			logger.Warn().Err(err).Str("dir", scratchDir).Msg("scratch cleanup failed")
		}
	}()

	if err := e.preflight(ctx, integ); err != nil {
		e.fail(rec, integ, err)
		return fmt.Errorf("pipeline: preflight: %w", err)
	}

	if err := e.history.MarkRunning(rec); err != nil {
		logger.Warn().Err(err).Msg("mark running failed")
	}
	if err := e.primary.UpdateStatus(ctx, integ, types.IntegrationSyncing); err != nil {
		logger.Warn().Err(err).Msg("update integration status failed")
	}
	reporter.emit(types.ProgressEvent{Phase: types.PhaseConnecting, Message: "connecting", Force: true})

	searchAvailable := true
	if err := e.search.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("search store unreachable, continuing with primary store only")
		searchAvailable = false
	}

	runIndex := ""
	if searchAvailable {
		runIndex, err = e.search.PrepareRun(ctx, integ.Name)
		if err != nil {
			logger.Warn().Err(err).Msg("prepare search run failed, continuing with primary store only")
			searchAvailable = false
		}
	}
	if err := e.primary.Drop(ctx); err != nil {
		e.fail(rec, integ, err)
		return fmt.Errorf("pipeline: drop primary collection: %w", err)
	}

	reporter.emit(types.ProgressEvent{Phase: types.PhaseDownloading, Message: "downloading", Force: true})
	ftpResult, err := ftp.FetchAll(ctx, *integ.FTP, scratchDir, ftp.Options{
		Parallel: e.opts.FTPParallel, Retries: e.opts.FTPRetries, Timeout: e.opts.FTPTimeout,
	})
	if err != nil {
		e.fail(rec, integ, err)
		return fmt.Errorf("pipeline: ftp fetch: %w", err)
	}
	for _, f := range ftpResult.Failed {
		rec.Files = append(rec.Files, types.FileStatus{Name: f.Name, Status: "failed", Reason: f.Reason})
		metrics.FTPFailuresTotal.WithLabelValues(integ.ID).Inc()
	}

	var csvPaths []string
	for _, name := range ftpResult.Downloaded {
		csvPaths = append(csvPaths, filepath.Join(scratchDir, name))
	}

	stats, err := e.runShardPipeline(ctx, integ, rec, scratchDir, runIndex, searchAvailable, csvPaths, reporter)
	if err != nil {
		e.fail(rec, integ, err)
		return fmt.Errorf("pipeline: shard pipeline: %w", err)
	}

	reporter.emit(types.ProgressEvent{Phase: types.PhaseFinalizing, Message: "finalizing", Force: true})
	inserted, err := e.primary.CountDocuments(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("count primary documents failed")
	} else {
		stats.Inserted = inserted
	}
	e.primary.BuildIndexes(ctx)

	if searchAvailable && runIndex != "" {
		if err := e.search.Promote(ctx, integ.Name, runIndex); err != nil {
			logger.Warn().Err(err).Msg("promote search alias failed")
		} else {
			e.search.CleanupOldIndexes(ctx, integ.Name, runIndex)
		}
	}

	if err := e.primary.UpdateStatus(ctx, integ, types.IntegrationActive); err != nil {
		logger.Warn().Err(err).Msg("update integration status failed")
	}
	last := types.LastSync{
		Date: runStart, Status: types.SyncCompleted,
		RecordsProcessed: stats.Processed, RecordsInserted: stats.Inserted,
	}
	if err := e.primary.UpdateLastSync(ctx, integ, last); err != nil {
		logger.Warn().Err(err).Msg("update last sync failed")
	}
	if err := e.primary.UpdateStats(ctx, integ, 1, 0, stats.Processed, stats.Processed); err != nil {
		logger.Warn().Err(err).Msg("update integration stats failed")
	}

	if err := e.history.MarkCompleted(rec, stats); err != nil {
		logger.Warn().Err(err).Msg("mark completed failed")
	}
	metrics.SyncDuration.WithLabelValues(string(types.SyncCompleted)).Observe(time.Since(runStart).Seconds())
	reporter.emit(types.ProgressEvent{Phase: types.PhaseDone, Status: types.SyncCompleted, Message: "done", Force: true})
	return nil
}

// preflight raises config problems after the pending history record is
// created but before it is marked running or the integration is set to
// syncing, so a bad binary path or unreachable FTP host surfaces as a
// single clean ConfigError instead of failing every shard mid-run.
func (e *Engine) preflight(ctx context.Context, integ *types.Integration) error {
	if err := e.primary.Preflight(ctx); err != nil {
		return err
	}
	if integ.FTP == nil {
		return fmt.Errorf("pipeline: integration %s has no FTP config", integ.ID)
	}
	checker := health.NewTCPChecker(fmt.Sprintf("%s:%d", integ.FTP.Host, integ.FTP.Port))
	result := checker.Check(ctx)
	if !result.Healthy {
		return fmt.Errorf("pipeline: FTP host %s:%d unreachable: %s", integ.FTP.Host, integ.FTP.Port, result.Message)
	}
	return nil
}

func (e *Engine) fail(rec *types.SyncHistoryRecord, integ *types.Integration, cause error) {
	logger := log.WithRun(rec.ID)
	if err := e.history.MarkFailed(rec, cause); err != nil {
		logger.Warn().Err(err).Msg("mark failed failed")
	}
	if err := e.primary.UpdateStatus(context.Background(), integ, types.IntegrationError); err != nil {
		logger.Warn().Err(err).Msg("update integration status to error failed")
	}
	if err := e.primary.UpdateStats(context.Background(), integ, 0, 1, 0, 0); err != nil {
		logger.Warn().Err(err).Msg("update integration stats failed")
	}
	metrics.SyncDuration.WithLabelValues(string(types.SyncFailed)).Observe(rec.Duration().Seconds())
}

// runShardPipeline drives the overlapping Transform/PrimaryLoad/SearchLoad
// stage: the transformer streams twin shards, a bounded pool of primary
// loaders consumes Qmongo, a bounded pool of search streamers consumes
// Qsearch, and POISON sentinels (one per consumer) signal drain.
func (e *Engine) runShardPipeline(ctx context.Context, integ *types.Integration, rec *types.SyncHistoryRecord, scratchDir, runIndex string, searchAvailable bool, csvPaths []string, reporter *throttledReporter) (types.RunStats, error) {
	logger := log.WithIntegration(integ.ID)
	stats := types.RunStats{Total: int64(len(csvPaths))}
	if len(csvPaths) == 0 {
		return stats, nil
	}

	qMongo := make(chan string, len(csvPaths)+e.opts.MongoConcurrent)
	qSearch := make(chan string, len(csvPaths)+e.opts.ESBulkConcurrent)

	var wg sync.WaitGroup
	var statsMu sync.Mutex

	wg.Add(e.opts.MongoConcurrent)
	for i := 0; i < e.opts.MongoConcurrent; i++ {
		go func() {
			defer wg.Done()
			for path := range qMongo {
				if path == poisonPath {
					return
				}
				timer := metrics.NewTimer()
				result, err := e.primary.LoadShards(ctx, []string{path})
				timer.ObserveDuration(metrics.PrimaryLoadDuration)
				statsMu.Lock()
				if err != nil {
					stats.Failed++
					metrics.RecordsFailedTotal.WithLabelValues(integ.ID).Inc()
					logger.Warn().Err(err).Str("shard", path).Msg("primary load failed")
				} else {
					stats.Inserted += result.Inserted
					metrics.RecordsInsertedTotal.WithLabelValues(integ.ID).Add(float64(result.Inserted))
				}
				statsMu.Unlock()
			}
		}()
	}

	wg.Add(e.opts.ESBulkConcurrent)
	for i := 0; i < e.opts.ESBulkConcurrent; i++ {
		go func() {
			defer wg.Done()
			for path := range qSearch {
				if path == poisonPath {
					return
				}
				if !searchAvailable {
					continue
				}
				indexed, err := e.search.IngestShard(ctx, path)
				statsMu.Lock()
				if err != nil {
					metrics.SearchBulkErrorsTotal.WithLabelValues(integ.ID).Inc()
					logger.Warn().Err(err).Str("shard", path).Msg("search ingest failed")
				} else {
					stats.Indexed += indexed
					metrics.SearchIndexedTotal.WithLabelValues(integ.ID).Add(float64(indexed))
				}
				statsMu.Unlock()
			}
		}()
	}

	reporter.emit(types.ProgressEvent{Phase: types.PhasePipeline, Message: "transforming", FilesTotal: len(csvPaths), Force: true})

	events := transform.TransformAll(csvPaths, scratchDir, integ, runIndex, time.Now(), transform.Options{Parallel: e.opts.TransformParallel})
	var processed int
	for ev := range events {
		processed++
		if ev.Err != nil {
			logger.Error().Err(ev.Err).Str("file", ev.File).Msg("transform failed")
			statsMu.Lock()
			stats.Skipped++
			statsMu.Unlock()
			rec.Files = append(rec.Files, types.FileStatus{Name: ev.File, Status: "skipped", Reason: ev.Err.Error()})
			metrics.QueueDepth.WithLabelValues("transform").Set(float64(len(csvPaths) - processed))
			continue
		}
		statsMu.Lock()
		stats.Processed += ev.Records
		statsMu.Unlock()
		metrics.RecordsProcessedTotal.WithLabelValues(integ.ID).Add(float64(ev.Records))
		rec.Files = append(rec.Files, types.FileStatus{Name: ev.File, Status: "transformed", Records: ev.Records})

		qMongo <- ev.Result.PrimaryShardPath
		if searchAvailable {
			qSearch <- ev.Result.SearchShardPath
		}
		metrics.QueueDepth.WithLabelValues("mongo").Set(float64(len(qMongo)))
		metrics.QueueDepth.WithLabelValues("search").Set(float64(len(qSearch)))

		reporter.emit(types.ProgressEvent{
			Phase: types.PhasePipeline, Message: "pipeline", FilesTotal: len(csvPaths),
			FilesProcessed: processed, RecordsProcessed: stats.Processed, CurrentFile: ev.File,
		})
	}

	for i := 0; i < e.opts.MongoConcurrent; i++ {
		qMongo <- poisonPath
	}
	for i := 0; i < e.opts.ESBulkConcurrent; i++ {
		qSearch <- poisonPath
	}
	close(qMongo)
	close(qSearch)

	reporter.emit(types.ProgressEvent{Phase: types.PhaseDraining, Message: "draining", Force: true})
	wg.Wait()
	metrics.QueueDepth.WithLabelValues("mongo").Set(0)
	metrics.QueueDepth.WithLabelValues("search").Set(0)

	return stats, nil
}

// throttledReporter coalesces progress events to at most one emission per
// interval, except a Force:true event which always passes through.
type throttledReporter struct {
	interval time.Duration
	sink     func(types.ProgressEvent)
	mu       sync.Mutex
	start    time.Time
	last     time.Time
}

func newThrottledReporter(interval time.Duration, sink func(types.ProgressEvent)) *throttledReporter {
	now := time.Now()
	return &throttledReporter{interval: interval, sink: sink, start: now}
}

func (r *throttledReporter) emit(ev types.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if !ev.Force && now.Sub(r.last) < r.interval {
		return
	}
	r.last = now
	ev.ElapsedMs = now.Sub(r.start).Milliseconds()
	r.sink(ev)
}
