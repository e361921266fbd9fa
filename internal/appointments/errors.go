package appointments

import "errors"

var (
	// ErrNotFound is returned when an appointment id is unknown.
	ErrNotFound = errors.New("appointment not found")

	// ErrStatusConflict is returned by a compare-and-set status update that lost the race.
	ErrStatusConflict = errors.New("appointment status changed concurrently")
)
