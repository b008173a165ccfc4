package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/delivery/http/request"
	"github.com/user/catalog-service/internal/delivery/http/response"
	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/usecase"
)

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	runs      usecase.RunManager
	drain     usecase.DrainController
	processor usecase.ItemProcessor
	checks    map[string]Pinger
	logger    *zap.Logger
}

func NewHandler(
	runs usecase.RunManager,
	drain usecase.DrainController,
	processor usecase.ItemProcessor,
	checks map[string]Pinger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		runs:      runs,
		drain:     drain,
		processor: processor,
		checks:    checks,
		logger:    logger,
	}
}

func (h *Handler) HandleDrain(w http.ResponseWriter, r *http.Request) {
	var req request.DrainRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	if req.DrainBatch < 0 || req.DrainConcurrency < 0 || req.DrainMaxMs < 0 {
		h.writeJSONError(w, "drain limits must not be negative", http.StatusBadRequest)
		return
	}

	res, err := h.drain.Drain(r.Context(), usecase.DrainRequest{
		BrandID:      strings.TrimSpace(req.BrandID),
		BatchSize:    req.DrainBatch,
		Concurrency:  req.DrainConcurrency,
		MaxWallClock: time.Duration(req.DrainMaxMs) * time.Millisecond,
	})
	if err != nil {
		h.writeUseCaseError(w, "drain", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req request.StartRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if !h.requireBrand(w, req.BrandID) {
		return
	}
	if req.BatchSize < 0 {
		h.writeJSONError(w, "batchSize must not be negative", http.StatusBadRequest)
		return
	}

	state, err := h.runs.Start(r.Context(), usecase.StartRequest{
		BrandID:     strings.TrimSpace(req.BrandID),
		BatchSize:   req.BatchSize,
		ForceDetect: req.ForceDetect,
	})
	if err != nil {
		h.writeUseCaseError(w, "start", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, response.StateResponse{State: response.NewRunState(state)})
}

func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pause", h.runs.Pause)
}

func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resume", h.runs.Resume)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reset", h.runs.Reset)
}

func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	var req request.BrandRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if !h.requireBrand(w, req.BrandID) {
		return
	}

	state, err := h.runs.Stop(r.Context(), strings.TrimSpace(req.BrandID))
	if err != nil {
		h.writeUseCaseError(w, "stop", err)
		return
	}
	resp := response.StopResponse{State: response.NewRunState(state)}
	if state.Run != nil {
		resp.Status = state.Run.Status
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	brandID := strings.TrimSpace(r.URL.Query().Get("brandId"))
	if !h.requireBrand(w, brandID) {
		return
	}

	state, err := h.runs.State(r.Context(), brandID)
	if err != nil {
		h.writeUseCaseError(w, "state", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.StateResponse{State: response.NewRunState(state)})
}

func (h *Handler) HandleProcessItem(w http.ResponseWriter, r *http.Request) {
	var req request.ProcessItemRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	itemID := strings.TrimSpace(req.ItemID)
	if itemID == "" {
		h.writeJSONError(w, "itemId is required", http.StatusBadRequest)
		return
	}

	res, err := h.processor.ProcessItem(r.Context(), itemID)
	if err != nil {
		h.writeUseCaseError(w, "process item", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	var req request.FinishRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if !h.requireBrand(w, req.BrandID) {
		return
	}

	brand, err := h.runs.Finish(r.Context(), strings.TrimSpace(req.BrandID), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeUseCaseError(w, "finish", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.FinishResponse{
		BrandID:    brand.ID,
		FinishedAt: brand.CatalogFinishedAt,
		Reason:     brand.CatalogFinishReason,
	})
}

// HandleCronRefresh starts runs for due brands and then drains one slice.
func (h *Handler) HandleCronRefresh(w http.ResponseWriter, r *http.Request) {
	var req request.RefreshRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	if req.Limit < 0 || req.DrainBatch < 0 || req.DrainConcurrency < 0 || req.DrainMaxMs < 0 {
		h.writeJSONError(w, "limits must not be negative", http.StatusBadRequest)
		return
	}

	refresh, err := h.runs.StartDueRuns(r.Context(), req.Limit)
	if err != nil {
		h.writeUseCaseError(w, "refresh", err)
		return
	}
	drained, err := h.drain.Drain(r.Context(), usecase.DrainRequest{
		BatchSize:    req.DrainBatch,
		Concurrency:  req.DrainConcurrency,
		MaxWallClock: time.Duration(req.DrainMaxMs) * time.Millisecond,
	})
	if err != nil {
		h.writeUseCaseError(w, "refresh drain", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.RefreshResponse{Refresh: refresh, Drain: drained})
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	healthy := true
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			status[name] = "unhealthy"
			healthy = false
			continue
		}
		status[name] = "healthy"
	}

	if !healthy {
		status["status"] = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, brandID string) (*usecase.RunState, error),
) {
	var req request.BrandRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if !h.requireBrand(w, req.BrandID) {
		return
	}

	state, err := fn(r.Context(), strings.TrimSpace(req.BrandID))
	if err != nil {
		h.writeUseCaseError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.StateResponse{State: response.NewRunState(state)})
}

// decode reads a JSON body into dst. With allowEmpty an absent body leaves dst zero.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
	return false
}

func (h *Handler) requireBrand(w http.ResponseWriter, brandID string) bool {
	if strings.TrimSpace(brandID) == "" {
		h.writeJSONError(w, "brandId is required", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeUseCaseError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		h.writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, entity.ErrActiveRunExists),
		errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrBrandFinished),
		errors.Is(err, entity.ErrItemNotEligible):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, entity.ErrNoProductsDiscovered):
		h.writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("catalog request failed", zap.String("op", op), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
