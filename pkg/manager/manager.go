// Package manager ties the scheduler, history store, and pipeline engine
// together: TriggerSync is the single entry point that turns a trigger
// ("scheduler", "manual", "startup-recovery", ...) into either an
// in-process run of the Pipeline Engine or a queued out-of-process
// SyncRequest, guarding against two concurrent runs of the same
// integration.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/turbosync/pkg/history"
	"github.com/cuemby/turbosync/pkg/log"
	"github.com/cuemby/turbosync/pkg/pipeline"
	"github.com/cuemby/turbosync/pkg/primary"
	"github.com/cuemby/turbosync/pkg/types"
)

// Manager is the orchestration root for triggering syncs.
type Manager struct {
	primary   *primary.Client
	history   *history.History
	engine    *pipeline.Engine
	useWorker bool
	retention time.Duration

	mu      sync.Mutex
	running map[string]bool
}

// New builds a Manager. useWorker mirrors SYNC_USE_WORKER: when true,
// TriggerSync enqueues a SyncRequest for an out-of-process worker instead
// of running the engine in this process. retention is the history TTL
// applied to the record created for a queued SyncRequest.
func New(primaryClient *primary.Client, hist *history.History, engine *pipeline.Engine, useWorker bool, retention time.Duration) *Manager {
	return &Manager{
		primary:   primaryClient,
		history:   hist,
		engine:    engine,
		useWorker: useWorker,
		retention: retention,
		running:   make(map[string]bool),
	}
}

// ErrAlreadyRunning is returned when TriggerSync is asked to start a
// second concurrent run for an integration that already has one.
var ErrAlreadyRunning = fmt.Errorf("manager: integration already has a run in progress")

// TriggerSync loads integrationID, and either runs the pipeline engine
// in-process (blocking the caller's goroutine — callers that want
// fire-and-forget should invoke this in their own goroutine, as the
// scheduler does) or enqueues a SyncRequest for an out-of-process worker.
// A second trigger for an integration with a run already in flight is
// rejected with ErrAlreadyRunning rather than racing the history store.
func (m *Manager) TriggerSync(ctx context.Context, integrationID string, source types.TriggerSource) error {
	if !m.claim(integrationID) {
		return ErrAlreadyRunning
	}
	defer m.release(integrationID)

	logger := log.WithIntegration(integrationID)
	integ, err := m.primary.Get(ctx, integrationID)
	if err != nil {
		return fmt.Errorf("manager: load integration: %w", err)
	}

	if running, err := m.history.RunningFor(integrationID); err != nil {
		logger.Warn().Err(err).Msg("check running history failed")
	} else if running != nil {
		return ErrAlreadyRunning
	}

	if m.useWorker {
		rec, err := m.history.Create(integ.ID, integ.Name, integ.Transport, source, m.retention)
		if err != nil {
			return fmt.Errorf("manager: create history for queued request: %w", err)
		}
		req := &types.SyncRequest{
			IntegrationID: integ.ID, Status: types.RequestPending,
			Source: source, HistoryRecordID: rec.ID,
		}
		if err := m.primary.CreateSyncRequest(ctx, req); err != nil {
			return fmt.Errorf("manager: enqueue sync request: %w", err)
		}
		return nil
	}

	return m.engine.RunOnce(ctx, integ, source, func(types.ProgressEvent) {})
}

func (m *Manager) claim(integrationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[integrationID] {
		return false
	}
	m.running[integrationID] = true
	return true
}

func (m *Manager) release(integrationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, integrationID)
}
