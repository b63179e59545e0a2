// Package types holds the data model shared by every turbosync component:
// the Integration configuration the scheduler reads, the PartListing record
// the pipeline produces, and the SyncHistoryRecord / SyncRequest records
// that track a run's lifecycle.
package types

import "time"

// TransportKind identifies how an Integration's source data is reached.
// Only TransportFTP is exercised by the core pipeline; the others are
// recognized so the scheduler can skip non-FTP integrations cleanly.
type TransportKind string

const (
	TransportFTP    TransportKind = "ftp"
	TransportAPI    TransportKind = "api"
	TransportSheets TransportKind = "sheets"
)

// IntegrationStatus mirrors the lifecycle the pipeline drives; only the
// pipeline mutates this field.
type IntegrationStatus string

const (
	IntegrationActive   IntegrationStatus = "active"
	IntegrationInactive IntegrationStatus = "inactive"
	IntegrationError    IntegrationStatus = "error"
	IntegrationSyncing  IntegrationStatus = "syncing"
)

// ScheduleFrequency enumerates the supported cron cadences.
type ScheduleFrequency string

const (
	FrequencyManual  ScheduleFrequency = "manual"
	FrequencyHourly  ScheduleFrequency = "hourly"
	FrequencyEveryN  ScheduleFrequency = "everyNhours"
	FrequencyDaily   ScheduleFrequency = "daily"
	FrequencyWeekly  ScheduleFrequency = "weekly"
	FrequencyMonthly ScheduleFrequency = "monthly"
)

// Schedule describes when an Integration should be synced.
type Schedule struct {
	Frequency  ScheduleFrequency
	EveryNHour int            // only meaningful when Frequency == FrequencyEveryN, 1..12
	TimeOfDay  string         // "HH:MM", 24h, interpreted in Timezone
	DaysOfWeek []time.Weekday // for FrequencyWeekly; defaults to {Monday}
	DayOfMonth int            // for FrequencyMonthly, 1..28
	Timezone   string         // IANA zone name, e.g. "Asia/Dubai"
}

// FTPConfig holds the remote source coordinates for a TransportFTP
// integration.
type FTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Secure   bool // implicit TLS
	Path     string
	Glob     string // default "*.csv"
}

// LastSync is the advisory snapshot of the most recent run, embedded on the
// Integration document for quick display without joining history.
type LastSync struct {
	Date             time.Time
	Status           SyncStatus
	DurationMs       int64
	RecordsProcessed int64
	RecordsInserted  int64
	Error            string
}

// IntegrationStats tracks running counters across all runs of an
// integration.
type IntegrationStats struct {
	TotalSyncs      int64
	SuccessfulSyncs int64
	FailedSyncs     int64
	TotalRecords    int64
	LastSyncRecords int64
}

// Integration is the external, read-mostly configuration record. The core
// pipeline reads Transport/FTP/Schedule and writes only Status/LastSync/
// Stats, via compare-and-swap style updates (see pkg/primary) so a
// concurrent edit from the (out-of-scope) admin UI cannot clobber Stats.
type Integration struct {
	ID        string
	Name      string
	Transport TransportKind
	FTP       *FTPConfig
	Schedule  Schedule
	Enabled   bool
	Status    IntegrationStatus
	LastSync  *LastSync
	Stats     IntegrationStats
	Version   int64 // optimistic-concurrency token, bumped on every write
}

// PartListing is one normalized catalog row, keyed conceptually by
// (PartNumber, Supplier, FileName). A run replaces the entire primary
// collection; this struct carries both the business attributes and the
// provenance fields recorded alongside them.
type PartListing struct {
	PartNumber   string  `json:"partNumber"`
	Description  string  `json:"description,omitempty"`
	Brand        string  `json:"brand,omitempty"`
	Supplier     string  `json:"supplier,omitempty"`
	Category     string  `json:"category,omitempty"`
	Subcategory  string  `json:"subcategory,omitempty"`
	Stock        string  `json:"stock"`
	StockCode    string  `json:"stockCode,omitempty"`
	WeightUnit   string  `json:"weightUnit"`
	Price        float64 `json:"price"`
	Quantity     int32   `json:"quantity"`
	MinOrderQty  int32   `json:"minOrderQty"`
	Weight       float64 `json:"weight,omitempty"`
	Volume       float64 `json:"volume,omitempty"`
	DeliveryDays int32   `json:"deliveryDays,omitempty"`
	Currency     string  `json:"currency"`

	IntegrationID   string    `json:"integrationId"`
	IntegrationName string    `json:"integrationName"`
	FileName        string    `json:"fileName"`
	ImportedAt      time.Time `json:"importedAt"`
}

// SyncStatus is the top-level state machine for a SyncHistoryRecord.
type SyncStatus string

const (
	SyncPending     SyncStatus = "pending"
	SyncRunning     SyncStatus = "running"
	SyncCompleted   SyncStatus = "completed"
	SyncFailed      SyncStatus = "failed"
	SyncInterrupted SyncStatus = "interrupted"
	SyncCancelled   SyncStatus = "cancelled"
)

// Terminal reports whether s is a terminal state (no further transitions).
func (s SyncStatus) Terminal() bool {
	switch s {
	case SyncCompleted, SyncFailed, SyncInterrupted, SyncCancelled:
		return true
	default:
		return false
	}
}

// SyncPhase is the finer-grained progress marker reported within a running
// sync; it advances monotonically within one run.
type SyncPhase string

const (
	PhaseQueued      SyncPhase = "queued"
	PhaseConnecting  SyncPhase = "connecting"
	PhaseDownloading SyncPhase = "downloading"
	PhasePipeline    SyncPhase = "pipeline"
	PhaseDraining    SyncPhase = "draining"
	PhaseFinalizing  SyncPhase = "finalizing"
	PhaseDone        SyncPhase = "done"
)

// TriggerSource identifies who asked for a run.
type TriggerSource string

const (
	TriggeredByScheduler       TriggerSource = "scheduler"
	TriggeredByManual          TriggerSource = "manual"
	TriggeredByAPI             TriggerSource = "api"
	TriggeredByStartupRecovery TriggerSource = "startup-recovery"
	TriggeredBySystem          TriggerSource = "system"
)

// FileStatus records the outcome of one fetched/transformed file within a
// run, enough to reconstruct S6-style partial-failure reporting.
type FileStatus struct {
	Name    string
	Status  string // "downloaded", "failed", "transformed", "skipped"
	Records int64
	Reason  string
	Bytes   int64
}

// RunStats is the set of counters carried on a SyncHistoryRecord and echoed
// in progress events.
type RunStats struct {
	Total     int64
	Processed int64
	Inserted  int64
	Updated   int64
	Skipped   int64
	Failed    int64
	Indexed   int64
}

// SyncHistoryRecord is the durable per-run lifecycle record (C6).
type SyncHistoryRecord struct {
	ID              string
	IntegrationID   string
	IntegrationName string
	IntegrationKind TransportKind

	Status      SyncStatus
	Phase       SyncPhase
	TriggeredBy TriggerSource

	StartedAt   time.Time
	CompletedAt time.Time
	DurationMs  int64

	Files []FileStatus
	Stats RunStats

	Errors       []string
	ErrorSummary string

	ExpiresAt time.Time // retention horizon (StartedAt + retention period)
}

// Duration returns CompletedAt-StartedAt; callers should only trust this
// once Status.Terminal() is true.
func (r *SyncHistoryRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// SyncRequestStatus is the lifecycle of an inter-process SyncRequest.
type SyncRequestStatus string

const (
	RequestPending    SyncRequestStatus = "pending"
	RequestProcessing SyncRequestStatus = "processing"
	RequestStale      SyncRequestStatus = "stale"
	RequestDone       SyncRequestStatus = "done"
)

// SyncRequest is a queue entry consumed by an out-of-process worker when
// SYNC_USE_WORKER is enabled; see pkg/primary for the "sync_requests"
// collection this maps to.
type SyncRequest struct {
	ID              string
	IntegrationID   string
	Status          SyncRequestStatus
	CreatedAt       time.Time
	Source          TriggerSource
	HistoryRecordID string
	Progress        ProgressEvent
}

// ProgressEvent is the stable progress-callback payload shape (spec §4.5).
// Force bypasses the engine's 2s throttle for a phase's final emission.
type ProgressEvent struct {
	Status           SyncStatus
	Phase            SyncPhase
	Message          string
	FilesTotal       int
	FilesProcessed   int
	RecordsProcessed int64
	RecordsInserted  int64
	CurrentFile      string
	ElapsedMs        int64
	Force            bool `json:"-"`
}
