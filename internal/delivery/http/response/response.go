package response

import (
	"time"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/usecase"
)

// Run is the admin view of a catalog run.
type Run struct {
	ID                string           `json:"id"`
	BrandID           string           `json:"brandId"`
	Status            entity.RunStatus `json:"status"`
	Platform          string           `json:"platform"`
	TotalItems        int              `json:"totalItems"`
	CompletedItems    int              `json:"completedItems"`
	FailedItems       int              `json:"failedItems"`
	StartedAt         time.Time        `json:"startedAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	FinishedAt        *time.Time       `json:"finishedAt,omitempty"`
	LastURL           string           `json:"lastUrl,omitempty"`
	LastStage         string           `json:"lastStage,omitempty"`
	LastError         string           `json:"lastError,omitempty"`
	BlockReason       string           `json:"blockReason,omitempty"`
	ConsecutiveErrors int              `json:"consecutiveErrors"`
}

// RunState is a brand's current run and its ground-truth counts. Run and
// Summary are null when the brand has no current run.
type RunState struct {
	BrandID string             `json:"brandId"`
	Run     *Run               `json:"run"`
	Summary *entity.RunSummary `json:"summary"`
}

// StateResponse wraps a run state.
type StateResponse struct {
	State RunState `json:"state"`
}

// StopResponse reports the status a stop left the run in.
type StopResponse struct {
	Status entity.RunStatus `json:"status"`
	State  RunState         `json:"state"`
}

// FinishResponse reports a closed brand.
type FinishResponse struct {
	BrandID    string     `json:"brandId"`
	FinishedAt *time.Time `json:"finishedAt"`
	Reason     string     `json:"reason"`
}

// RefreshResponse combines the scheduler pass and the drain that followed it.
type RefreshResponse struct {
	Refresh *usecase.RefreshResult `json:"refresh"`
	Drain   *usecase.DrainResult   `json:"drain"`
}

// NewRunState converts a use case run state.
func NewRunState(s *usecase.RunState) RunState {
	out := RunState{BrandID: s.BrandID, Summary: s.Summary}
	if s.Run != nil {
		out.Run = NewRun(s.Run)
	}
	return out
}

// NewRun converts a catalog run.
func NewRun(r *entity.CatalogRun) *Run {
	return &Run{
		ID:                r.ID,
		BrandID:           r.BrandID,
		Status:            r.Status,
		Platform:          r.Platform,
		TotalItems:        r.TotalItems,
		CompletedItems:    r.CompletedItems,
		FailedItems:       r.FailedItems,
		StartedAt:         r.StartedAt,
		UpdatedAt:         r.UpdatedAt,
		FinishedAt:        r.FinishedAt,
		LastURL:           r.LastURL,
		LastStage:         r.LastStage,
		LastError:         r.LastError,
		BlockReason:       r.BlockReason,
		ConsecutiveErrors: r.ConsecutiveErrors,
	}
}
