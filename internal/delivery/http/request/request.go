package request

// DrainRequest triggers one bounded drain slice. Zero values use the configured defaults.
type DrainRequest struct {
	BrandID          string `json:"brandId"`
	DrainBatch       int    `json:"drainBatch"`
	DrainConcurrency int    `json:"drainConcurrency"`
	DrainMaxMs       int64  `json:"drainMaxMs"`
}

// BrandRequest addresses the current run of one brand (pause, resume, stop, reset).
type BrandRequest struct {
	BrandID string `json:"brandId"`
}

// StartRequest discovers candidate urls and opens a run.
type StartRequest struct {
	BrandID     string `json:"brandId"`
	BatchSize   int    `json:"batchSize"`
	ForceDetect bool   `json:"forceDetect"`
}

// ProcessItemRequest is the queue worker callback payload.
type ProcessItemRequest struct {
	ItemID string `json:"itemId"`
}

// FinishRequest closes catalog extraction for a brand.
type FinishRequest struct {
	BrandID string `json:"brandId"`
	Reason  string `json:"reason"`
}

// RefreshRequest starts due runs, then drains. The body is optional.
type RefreshRequest struct {
	Limit            int   `json:"limit"`
	DrainBatch       int   `json:"drainBatch"`
	DrainConcurrency int   `json:"drainConcurrency"`
	DrainMaxMs       int64 `json:"drainMaxMs"`
}
