package memory

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/user/catalog-service/internal/entity"
)

func (s *Store) UpsertProduct(_ context.Context, p *entity.Product) (*entity.UpsertResult, error) {
	if p.BrandID == "" || p.ExternalID == "" {
		return nil, errors.New("product needs a brand and an external id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	key := productKey{brandID: p.BrandID, externalID: p.ExternalID}
	res := &entity.UpsertResult{}

	stored, ok := s.products[key]
	if !ok {
		s.nextProductID++
		stored = &entity.Product{ID: s.nextProductID, CreatedAt: now}
		s.products[key] = stored
		res.Created = true
	}
	id, createdAt, variants := stored.ID, stored.CreatedAt, stored.Variants
	*stored = *p
	stored.ID, stored.CreatedAt, stored.Variants = id, createdAt, variants
	stored.UpdatedAt = now
	res.ProductID = id

	for _, v := range p.Variants {
		i := slices.IndexFunc(stored.Variants, func(sv entity.Variant) bool { return sv.VariantKey == v.VariantKey })
		var old *entity.Variant
		if i >= 0 {
			prev := stored.Variants[i]
			old = &prev
		}

		next := v
		next.ProductID = stored.ID
		next.Images = slices.Clone(v.Images)
		if old != nil {
			next.ID = old.ID
			stored.Variants[i] = next
		} else {
			s.nextVariantID++
			next.ID = s.nextVariantID
			stored.Variants = append(stored.Variants, next)
		}
		res.Variants++

		if change, ok := entity.DiffPrice(old, next, now); ok {
			s.priceHistory = append(s.priceHistory, change)
			res.PriceChanges++
		}
		if change, ok := entity.DiffStock(old, next, now); ok {
			s.stockHistory = append(s.stockHistory, change)
			res.StockChanges++
		}
	}
	return res, nil
}

// Products returns copies of all stored products ordered by id.
func (s *Store) Products() []*entity.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Product, 0, len(s.products))
	for _, p := range s.products {
		c := *p
		c.Variants = slices.Clone(p.Variants)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PriceHistory returns the appended price history rows.
func (s *Store) PriceHistory() []entity.PriceChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.priceHistory)
}

// StockHistory returns the appended stock history rows.
func (s *Store) StockHistory() []entity.StockChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.stockHistory)
}
