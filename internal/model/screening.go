package model

import "time"

// Movie is a catalog entry.  The catalog is read-only to this service and
// served through the cache.
type Movie struct {
	ID              uint64 `json:"id"`
	Title           string `json:"title"`
	DurationMinutes uint32 `json:"duration_minutes"`
}

// Screening is a scheduled showing of a movie.  Seats belong to exactly
// one screening.
type Screening struct {
	ID       uint64    `json:"id"`
	MovieID  uint64    `json:"movie_id"`
	ShowTime time.Time `json:"show_time"`
}
