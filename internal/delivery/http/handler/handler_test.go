package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/delivery/http/handler"
	"github.com/user/catalog-service/internal/delivery/http/router"
	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/mock"
	"github.com/user/catalog-service/internal/usecase"
)

const adminToken = "admin-secret"

type fixture struct {
	runs      *mock.RunManager
	drain     *mock.DrainController
	processor *mock.ItemProcessor
	checks    map[string]handler.Pinger
}

func newFixture() *fixture {
	return &fixture{
		runs:      &mock.RunManager{},
		drain:     &mock.DrainController{},
		processor: &mock.ItemProcessor{},
		checks:    map[string]handler.Pinger{},
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	h := handler.NewHandler(f.runs, f.drain, f.processor, f.checks, zap.NewNop())
	srv := router.New(h, router.Options{
		AdminToken:          adminToken,
		CronSecret:          "cron-secret",
		CronSchedulerHeader: "X-Scheduler-Cron",
	}, zap.NewNop())

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func admin() map[string]string {
	return map[string]string{"Authorization": "Bearer " + adminToken}
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func processingState(brandID string, status entity.RunStatus) *usecase.RunState {
	return &usecase.RunState{
		BrandID: brandID,
		Run: &entity.CatalogRun{
			ID:          "run-1",
			BrandID:     brandID,
			Status:      status,
			TotalItems:  3,
		},
		Summary: &entity.RunSummary{Total: 3, Completed: 1, Pending: 2},
	}
}

func TestDrain_PassesLimits(t *testing.T) {
	f := newFixture()
	var got usecase.DrainRequest
	f.drain.DrainFn = func(ctx context.Context, req usecase.DrainRequest) (*usecase.DrainResult, error) {
		got = req
		return &usecase.DrainResult{
			Processed:  2,
			LastResult: &usecase.ItemResult{ItemID: "item-2", Outcome: "completed"},
			StoppedBy:  usecase.StopBatchFull,
		}, nil
	}

	rec, body := f.do(t, http.MethodPost, "/catalog-extractor/drain",
		`{"brandId":"b1","drainBatch":2,"drainConcurrency":2,"drainMaxMs":1500}`, admin())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecase.DrainRequest{BrandID: "b1", BatchSize: 2, Concurrency: 2, MaxWallClock: 1500 * time.Millisecond}, got)
	assert.EqualValues(t, 2, body["processed"])
	assert.Equal(t, "item-2", body["lastResult"].(map[string]any)["itemId"])
}

func TestDrain_RejectsNegativeLimits(t *testing.T) {
	f := newFixture()
	rec, body := f.do(t, http.MethodPost, "/catalog-extractor/drain", `{"drainBatch":-1}`, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture()
	rec, body := f.do(t, http.MethodPost, "/catalog-extractor/drain", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["error"])

	rec, _ = f.do(t, http.MethodPost, "/catalog-extractor/drain", `{}`, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Cron credentials do not open admin routes.
	rec, _ = f.do(t, http.MethodPost, "/catalog-extractor/drain", `{}`, map[string]string{"X-Cron-Secret": "cron-secret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCronDrain_Auth(t *testing.T) {
	f := newFixture()
	calls := 0
	f.drain.DrainFn = func(ctx context.Context, req usecase.DrainRequest) (*usecase.DrainResult, error) {
		calls++
		return &usecase.DrainResult{StoppedBy: usecase.StopNoRun}, nil
	}

	rec, _ := f.do(t, http.MethodPost, "/catalog-extractor/cron/drain", "", map[string]string{"X-Cron-Secret": "cron-secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/catalog-extractor/cron/drain", "", map[string]string{"X-Scheduler-Cron": "true"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/catalog-extractor/cron/drain", "", map[string]string{"X-Cron-Secret": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/catalog-extractor/cron/drain", "", admin())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, 2, calls)
}

func TestCronRefresh_StartsDueRunsThenDrains(t *testing.T) {
	f := newFixture()
	var order []string
	f.runs.StartDueRunsFn = func(ctx context.Context, limit int) (*usecase.RefreshResult, error) {
		order = append(order, "refresh")
		assert.Equal(t, 5, limit)
		return &usecase.RefreshResult{Started: []string{"b1"}, Skipped: map[string]string{}}, nil
	}
	f.drain.DrainFn = func(ctx context.Context, req usecase.DrainRequest) (*usecase.DrainResult, error) {
		order = append(order, "drain")
		assert.Empty(t, req.BrandID)
		return &usecase.DrainResult{Processed: 1, StoppedBy: usecase.StopIdle}, nil
	}

	rec, body := f.do(t, http.MethodPost, "/catalog-extractor/cron/refresh", `{"limit":5}`, map[string]string{"X-Cron-Secret": "cron-secret"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"refresh", "drain"}, order)
	assert.Equal(t, []any{"b1"}, body["refresh"].(map[string]any)["started"])
	assert.EqualValues(t, 1, body["drain"].(map[string]any)["processed"])
}

func TestGetState(t *testing.T) {
	f := newFixture()
	f.runs.StateFn = func(ctx context.Context, brandID string) (*usecase.RunState, error) {
		return processingState(brandID, entity.RunProcessing), nil
	}

	rec, body := f.do(t, http.MethodGet, "/catalog-extractor/state?brandId=b1", "", admin())

	require.Equal(t, http.StatusOK, rec.Code)
	state := body["state"].(map[string]any)
	assert.Equal(t, "b1", state["brandId"])
	assert.Equal(t, "processing", state["run"].(map[string]any)["status"])
	assert.EqualValues(t, 2, state["summary"].(map[string]any)["pending"])
}

func TestGetState_NoRun(t *testing.T) {
	f := newFixture()
	f.runs.StateFn = func(ctx context.Context, brandID string) (*usecase.RunState, error) {
		return &usecase.RunState{BrandID: brandID}, nil
	}

	rec, body := f.do(t, http.MethodGet, "/catalog-extractor/state?brandId=b1", "", admin())

	require.Equal(t, http.StatusOK, rec.Code)
	state := body["state"].(map[string]any)
	assert.Nil(t, state["run"])
	assert.Nil(t, state["summary"])
}

func TestGetState_RequiresBrand(t *testing.T) {
	f := newFixture()
	rec, body := f.do(t, http.MethodGet, "/catalog-extractor/state", "", admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "brandId is required", body["error"])
}

func TestStop_ReportsStatus(t *testing.T) {
	f := newFixture()
	f.runs.StopFn = func(ctx context.Context, brandID string) (*usecase.RunState, error) {
		return processingState(brandID, entity.RunStopped), nil
	}

	rec, body := f.do(t, http.MethodPost, "/catalog-extractor/stop", `{"brandId":"b1"}`, admin())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", body["status"])
}

func TestTransitions_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", entity.ErrNotFound, http.StatusNotFound},
		{"invalid transition", entity.ErrInvalidTransition, http.StatusConflict},
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.runs.PauseFn = func(ctx context.Context, brandID string) (*usecase.RunState, error) {
				return nil, tt.err
			}

			rec, body := f.do(t, http.MethodPost, "/catalog-extractor/pause", `{"brandId":"b1"}`, admin())

			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, body["error"])
			if tt.code == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", body["error"])
			}
		})
	}
}

func TestResumeAndReset(t *testing.T) {
	f := newFixture()
	var calls []string
	f.runs.ResumeFn = func(ctx context.Context, brandID string) (*usecase.RunState, error) {
		calls = append(calls, "resume:"+brandID)
		return processingState(brandID, entity.RunProcessing), nil
	}
	f.runs.ResetFn = func(ctx context.Context, brandID string) (*usecase.RunState, error) {
		calls = append(calls, "reset:"+brandID)
		return processingState(brandID, entity.RunProcessing), nil
	}

	rec, _ := f.do(t, http.MethodPost, "/catalog-extractor/resume", `{"brandId":"b1"}`, admin())
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/catalog-extractor/reset", `{"brandId":" b2 "}`, admin())
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"resume:b1", "reset:b2"}, calls)
}

func TestStart(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"created", nil, http.StatusCreated},
		{"open run", entity.ErrActiveRunExists, http.StatusConflict},
		{"finished brand", entity.ErrBrandFinished, http.StatusConflict},
		{"nothing discovered", entity.ErrNoProductsDiscovered, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.runs.StartFn = func(ctx context.Context, req usecase.StartRequest) (*usecase.RunState, error) {
				assert.Equal(t, usecase.StartRequest{BrandID: "b1", BatchSize: 10, ForceDetect: true}, req)
				if tt.err != nil {
					return nil, tt.err
				}
				return processingState(req.BrandID, entity.RunProcessing), nil
			}

			rec, _ := f.do(t, http.MethodPost, "/catalog-extractor/start",
				`{"brandId":"b1","batchSize":10,"forceDetect":true}`, admin())
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestProcessItem(t *testing.T) {
	f := newFixture()
	f.processor.ProcessItemFn = func(ctx context.Context, itemID string) (*usecase.ItemResult, error) {
		return &usecase.ItemResult{ItemID: itemID, Outcome: "failed", Kind: entity.KindSoft, Attempts: 1}, nil
	}

	rec, body := f.do(t, http.MethodPost, "/catalog-extractor/process-item", `{"itemId":"item-9"}`, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "item-9", body["itemId"])
	assert.Equal(t, "soft", body["kind"])

	rec, _ = f.do(t, http.MethodPost, "/catalog-extractor/process-item", `{}`, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/catalog-extractor/process-item", `{not json`, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinish(t *testing.T) {
	f := newFixture()
	finishedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.runs.FinishFn = func(ctx context.Context, brandID, reason string) (*entity.Brand, error) {
		assert.Equal(t, "closed store", reason)
		return &entity.Brand{ID: brandID, CatalogFinishedAt: &finishedAt, CatalogFinishReason: reason}, nil
	}

	rec, body := f.do(t, http.MethodPost, "/catalog-extractor/finish", `{"brandId":"b1","reason":"closed store"}`, admin())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b1", body["brandId"])
	assert.Equal(t, "closed store", body["reason"])
	assert.Equal(t, "2026-03-01T12:00:00Z", body["finishedAt"])
}

func TestPanicBecomesServerError(t *testing.T) {
	f := newFixture()
	f.drain.DrainFn = func(ctx context.Context, req usecase.DrainRequest) (*usecase.DrainResult, error) {
		panic("boom")
	}

	rec, _ := f.do(t, http.MethodPost, "/catalog-extractor/drain", `{}`, admin())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	f.checks["postgres"] = pingFunc(func(ctx context.Context) error { return nil })

	rec, body := f.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "healthy", body["postgres"])

	f.checks["redis"] = pingFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") })
	rec, body = f.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["redis"])
}
