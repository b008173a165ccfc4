// Package memory is an in-process implementation of the run, brand and
// product repositories for tests and STORE_DRIVER=memory.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/catalog-service/internal/entity"
)

// Store keeps every table in maps guarded by one mutex. Reads return copies.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	brands     map[string]*entity.Brand
	runs       map[string]*entity.CatalogRun
	items      map[string]*entity.CatalogItem
	itemsByRun map[string][]string

	products      map[productKey]*entity.Product
	nextProductID int64
	nextVariantID int64
	priceHistory  []entity.PriceChange
	stockHistory  []entity.StockChange
}

type productKey struct {
	brandID    string
	externalID string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		brands:     make(map[string]*entity.Brand),
		runs:       make(map[string]*entity.CatalogRun),
		items:      make(map[string]*entity.CatalogItem),
		itemsByRun: make(map[string][]string),
		products:   make(map[productKey]*entity.Product),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetClock replaces the row timestamp clock.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// AddBrand inserts or replaces a brand.
func (s *Store) AddBrand(b *entity.Brand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *b
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}
	c.UpdatedAt = c.CreatedAt
	s.brands[c.ID] = &c
}

func (s *Store) GetBrand(_ context.Context, id string) (*entity.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brands[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (s *Store) UpdatePlatform(_ context.Context, id, platform string) error {
	return s.updateBrand(id, func(b *entity.Brand) { b.Platform = platform })
}

func (s *Store) MarkCatalogCompleted(_ context.Context, id string, completedAt, nextDueAt time.Time) error {
	return s.updateBrand(id, func(b *entity.Brand) {
		b.CatalogLastCompletedAt = &completedAt
		b.CatalogNextDueAt = &nextDueAt
	})
}

func (s *Store) MarkCatalogFinished(_ context.Context, id, reason string, at time.Time) error {
	return s.updateBrand(id, func(b *entity.Brand) {
		b.CatalogFinishedAt = &at
		b.CatalogFinishReason = reason
	})
}

func (s *Store) updateBrand(id string, fn func(*entity.Brand)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brands[id]
	if !ok {
		return entity.ErrNotFound
	}
	fn(b)
	b.UpdatedAt = s.clock()
	return nil
}

func (s *Store) ListDueBrands(_ context.Context, now time.Time, limit int) ([]*entity.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*entity.Brand
	for _, b := range s.brands {
		if b.IsFinished() || (b.CatalogNextDueAt != nil && b.CatalogNextDueAt.After(now)) {
			continue
		}
		if s.openRunLocked(b.ID) != nil {
			continue
		}
		c := *b
		due = append(due, &c)
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].CatalogNextDueAt, due[j].CatalogNextDueAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) CreateRun(_ context.Context, run *entity.CatalogRun, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openRunLocked(run.BrandID) != nil {
		return entity.ErrActiveRunExists
	}

	now := s.clock()
	seen := make(map[string]bool, len(urls))
	ids := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		item := &entity.CatalogItem{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			URL:       u,
			Status:    entity.ItemPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.items[item.ID] = item
		ids = append(ids, item.ID)
	}
	s.itemsByRun[run.ID] = ids

	run.TotalItems = len(ids)
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.UpdatedAt = now
	c := *run
	s.runs[run.ID] = &c
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (*entity.CatalogRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *Store) FindCurrentRun(_ context.Context, brandID string) (*entity.CatalogRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRun(s.newestRunLocked(brandID, entity.CurrentRunStatuses))
}

func (s *Store) FindOpenRun(_ context.Context, brandID string) (*entity.CatalogRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRun(s.openRunLocked(brandID))
}

func (s *Store) FindOldestProcessingRun(_ context.Context, brandID string) (*entity.CatalogRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *entity.CatalogRun
	for _, r := range s.runs {
		if r.Status != entity.RunProcessing || (brandID != "" && r.BrandID != brandID) {
			continue
		}
		if oldest == nil || r.UpdatedAt.Before(oldest.UpdatedAt) ||
			(r.UpdatedAt.Equal(oldest.UpdatedAt) && r.ID < oldest.ID) {
			oldest = r
		}
	}
	return copyRun(oldest)
}

func (s *Store) openRunLocked(brandID string) *entity.CatalogRun {
	return s.newestRunLocked(brandID, entity.OpenRunStatuses)
}

func (s *Store) newestRunLocked(brandID string, statuses []entity.RunStatus) *entity.CatalogRun {
	var newest *entity.CatalogRun
	for _, r := range s.runs {
		if r.BrandID != brandID || !slices.Contains(statuses, r.Status) {
			continue
		}
		if newest == nil || r.StartedAt.After(newest.StartedAt) {
			newest = r
		}
	}
	return newest
}

func copyRun(r *entity.CatalogRun) (*entity.CatalogRun, error) {
	if r == nil {
		return nil, entity.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *Store) TransitionRun(_ context.Context, id string, from []entity.RunStatus, to entity.RunStatus, reason string) (*entity.CatalogRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if !slices.Contains(from, r.Status) {
		return nil, entity.ErrInvalidTransition
	}
	now := s.clock()
	r.Status = to
	r.UpdatedAt = now
	switch to {
	case entity.RunBlocked:
		r.BlockReason = reason
	case entity.RunStopped, entity.RunCompleted:
		r.FinishedAt = &now
	}
	c := *r
	return &c, nil
}

func (s *Store) ResetRun(_ context.Context, id string) (*entity.CatalogRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if r.Status != entity.RunBlocked {
		return nil, entity.ErrInvalidTransition
	}
	r.Status = entity.RunProcessing
	r.BlockReason = ""
	r.ConsecutiveErrors = 0
	r.UpdatedAt = s.clock()
	c := *r
	return &c, nil
}

func (s *Store) RecordProgress(_ context.Context, id string, p entity.RunProgress) (*entity.CatalogRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if p.LastURL != "" {
		r.LastURL = p.LastURL
	}
	if p.LastStage != "" {
		r.LastStage = p.LastStage
	}
	if p.LastError != "" {
		r.LastError = p.LastError
	}
	if p.ResetErrors {
		r.ConsecutiveErrors = 0
	} else {
		r.ConsecutiveErrors += p.ErrorDelta
	}
	r.CompletedItems += p.Completed
	r.FailedItems += p.Failed
	r.UpdatedAt = s.clock()
	c := *r
	return &c, nil
}

func (s *Store) CompleteRun(_ context.Context, id string, at time.Time) (*entity.CatalogRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if r.Status != entity.RunProcessing {
		return nil, entity.ErrInvalidTransition
	}
	r.Status = entity.RunCompleted
	r.FinishedAt = &at
	r.UpdatedAt = at
	c := *r
	return &c, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*entity.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	c := *it
	return &c, nil
}

func (s *Store) ListPendingItems(_ context.Context, runID string, maxAttempts, limit int) ([]*entity.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.CatalogItem
	for _, id := range s.itemsByRun[runID] {
		it := s.items[id]
		if it.Status != entity.ItemPending || it.Attempts >= maxAttempts || it.QueuedAt != nil {
			continue
		}
		c := *it
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) StartItem(_ context.Context, id string, maxAttempts int) (*entity.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	if it.Status != entity.ItemPending || it.Attempts >= maxAttempts {
		return nil, entity.ErrItemNotEligible
	}
	it.Status = entity.ItemProcessing
	it.Attempts++
	it.QueuedAt = nil
	it.UpdatedAt = s.clock()
	c := *it
	return &c, nil
}

func (s *Store) FinishItem(_ context.Context, id string, status entity.ItemStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return entity.ErrNotFound
	}
	it.Status = status
	it.LastError = lastError
	it.UpdatedAt = s.clock()
	return nil
}

func (s *Store) RequeueItem(_ context.Context, id string, maxAttempts int, lastError string) (entity.ItemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return "", entity.ErrNotFound
	}
	it.Status = entity.ItemPending
	if it.Attempts >= maxAttempts {
		it.Status = entity.ItemFailed
	}
	it.LastError = lastError
	it.UpdatedAt = s.clock()
	return it.Status, nil
}

func (s *Store) MarkItemsQueued(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if it, ok := s.items[id]; ok && it.Status == entity.ItemPending {
			queuedAt := at
			it.QueuedAt = &queuedAt
		}
	}
	return nil
}

func (s *Store) UnmarkItemsQueued(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if it, ok := s.items[id]; ok && it.Status == entity.ItemPending {
			it.QueuedAt = nil
		}
	}
	return nil
}

func (s *Store) ResetStuckItems(_ context.Context, runID string, olderThan time.Time, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.clock()
	for _, id := range s.itemsByRun[runID] {
		it := s.items[id]
		if it.Status != entity.ItemProcessing || !it.UpdatedAt.Before(olderThan) {
			continue
		}
		it.Status = entity.ItemPending
		if it.Attempts >= maxAttempts {
			it.Status = entity.ItemFailed
		}
		it.LastError = "reset after being stuck in processing"
		it.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *Store) ResetQueuedItems(_ context.Context, runID string, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.itemsByRun[runID] {
		it := s.items[id]
		if it.Status != entity.ItemPending || it.QueuedAt == nil || !it.QueuedAt.Before(olderThan) {
			continue
		}
		it.QueuedAt = nil
		n++
	}
	return n, nil
}

func (s *Store) CountItemsByStatus(_ context.Context, runID string) (map[entity.ItemStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[entity.ItemStatus]int)
	for _, id := range s.itemsByRun[runID] {
		counts[s.items[id].Status]++
	}
	return counts, nil
}
