package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rently/internal/calendar"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrListingNotFound        = errors.New("listing not found")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
	ErrDatesUnavailable       = errors.New("dates unavailable")

	// ErrTxAborted wraps unexpected storage failures inside a transaction.
	// The transaction is fully rolled back; callers may retry.
	ErrTxAborted = errors.New("transaction aborted")
)

// DatesUnavailableError carries the exact conflicting days so callers can
// suggest alternatives. Matches errors.Is(err, ErrDatesUnavailable).
type DatesUnavailableError struct {
	Dates []time.Time
}

func (e *DatesUnavailableError) Error() string {
	keys := make([]string, 0, len(e.Dates))
	for _, d := range e.Dates {
		keys = append(keys, calendar.FormatDay(d))
	}
	return fmt.Sprintf("dates unavailable: %s", strings.Join(keys, ", "))
}

func (e *DatesUnavailableError) Unwrap() error {
	return ErrDatesUnavailable
}

func txAbort(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTxAborted, op, err)
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
