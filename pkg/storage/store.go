package storage

import (
	"time"

	"github.com/cuemby/turbosync/pkg/types"
)

// Store defines the embedded persistence turbosync needs beyond the
// primary/search stores: durable sync history and the per-integration
// schedule-recovery bookkeeping the scheduler consults on startup.
type Store interface {
	// History
	CreateHistory(rec *types.SyncHistoryRecord) error
	GetHistory(id string) (*types.SyncHistoryRecord, error)
	UpdateHistory(rec *types.SyncHistoryRecord) error
	ListHistoryByIntegration(integrationID string, limit int) ([]*types.SyncHistoryRecord, error)
	ListRunningHistory() ([]*types.SyncHistoryRecord, error)
	DeleteExpiredHistory(now time.Time) (int, error)

	// Schedule bookkeeping: last time each integration's cron entry fired,
	// recorded on every fire and logged as a diagnostic during startup
	// recovery. Overdue-ness itself is always derived from the durable
	// LastSync in pkg/primary, not from this value.
	SetLastScheduled(integrationID string, at time.Time) error
	GetLastScheduled(integrationID string) (time.Time, bool, error)

	Close() error
}
