package entity

import "time"

// RunStatus is the lifecycle state of a CatalogRun.
type RunStatus string

const (
	RunProcessing RunStatus = "processing"
	RunPaused     RunStatus = "paused"
	RunStopped    RunStatus = "stopped"
	RunBlocked    RunStatus = "blocked"
	RunCompleted  RunStatus = "completed"
)

// CurrentRunStatuses are the statuses under which a run is still the brand's
// current run for state queries.
var CurrentRunStatuses = []RunStatus{RunProcessing, RunPaused, RunStopped, RunBlocked}

// OpenRunStatuses are the statuses that prevent a new run from being created.
var OpenRunStatuses = []RunStatus{RunProcessing, RunPaused, RunBlocked}

// Run stages recorded in CatalogRun.LastStage.
const (
	StageDiscover  = "discover"
	StageClaim     = "claim"
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StagePersist   = "persist"
)

// CatalogRun mirrors the `catalog_runs` PostgreSQL table schema.
type CatalogRun struct {
	ID                string
	BrandID           string
	Status            RunStatus
	Platform          string
	TotalItems        int
	CompletedItems    int
	FailedItems       int
	StartedAt         time.Time
	UpdatedAt         time.Time
	FinishedAt        *time.Time
	LastURL           string
	LastStage         string
	LastError         string
	BlockReason       string
	ConsecutiveErrors int
}

// RunProgress is the per-item update folded into a run after every attempt.
type RunProgress struct {
	LastURL   string
	LastStage string
	// LastError is written only when non-empty.
	LastError string
	// ResetErrors zeroes ConsecutiveErrors; otherwise ErrorDelta is added.
	ResetErrors bool
	ErrorDelta  int
	Completed   int
	Failed      int
}

// RunSummary is computed from item rows grouped by status. Pending counts
// every non-terminal item, so Completed+Failed+Pending == Total.
type RunSummary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}

// IsDone reports whether every item reached a terminal status.
func (s RunSummary) IsDone() bool {
	return s.Pending == 0
}
