// Package repository contains data access for the booking system: the
// seat ledger, the booking store and the read-only movie catalog.  All
// queries target MySQL (InnoDB) through database/sql.
package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/seat-booking/internal/model"
)

// CatalogRepo reads movies and screenings.  The catalog is maintained
// outside this service.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo returns a CatalogRepo bound to db.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// ListMovies returns every movie ordered by title.
func (r *CatalogRepo) ListMovies(ctx context.Context) ([]model.Movie, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, duration_minutes FROM movies ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Movie, 0)
	for rows.Next() {
		var m model.Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.DurationMinutes); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetScreening returns a screening by id or model.ErrScreeningNotFound.
func (r *CatalogRepo) GetScreening(ctx context.Context, id uint64) (*model.Screening, error) {
	var s model.Screening
	err := r.db.QueryRowContext(ctx, `SELECT id, movie_id, show_time FROM screenings WHERE id = ?`, id).
		Scan(&s.ID, &s.MovieID, &s.ShowTime)
	if err == sql.ErrNoRows {
		return nil, model.ErrScreeningNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
