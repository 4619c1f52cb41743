package cache

import "fmt"

// MoviesKey holds the movie catalog.
const MoviesKey = "movies"

// SeatsKey holds the seat availability map of a screening.  It is
// invalidated whenever a claim or release for the screening commits.
func SeatsKey(screeningID uint64) string {
	return fmt.Sprintf("screening:%d:seats", screeningID)
}
