package service

import (
	"context"

	"github.com/iliyamo/seat-booking/internal/cache"
	"github.com/iliyamo/seat-booking/internal/model"
)

// CatalogService serves the read path through the cache-aside guard.
type CatalogService struct {
	catalog CatalogStore
	seats   SeatStore
	guard   *cache.Guard
}

func NewCatalogService(catalog CatalogStore, seats SeatStore, guard *cache.Guard) *CatalogService {
	return &CatalogService{catalog: catalog, seats: seats, guard: guard}
}

func (s *CatalogService) Movies(ctx context.Context) ([]model.Movie, error) {
	return cache.GetOrLoadJSON(ctx, s.guard, cache.MoviesKey, s.catalog.ListMovies)
}

// Seats returns the seat map of a screening.  model.ErrScreeningNotFound
// is never cached.
func (s *CatalogService) Seats(ctx context.Context, screeningID uint64) ([]model.SeatAvailability, error) {
	return cache.GetOrLoadJSON(ctx, s.guard, cache.SeatsKey(screeningID), func(ctx context.Context) ([]model.SeatAvailability, error) {
		return s.seats.ListAvailability(ctx, screeningID)
	})
}

func (s *CatalogService) Screening(ctx context.Context, id uint64) (*model.Screening, error) {
	return s.catalog.GetScreening(ctx, id)
}
