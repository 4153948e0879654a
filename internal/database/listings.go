package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rently/internal/calendar"
	"rently/internal/models"
)

func (db *DB) CreateListing(ctx context.Context, listing *models.Listing) error {
	months, err := encodeStrings(listing.Availability.Months)
	if err != nil {
		return err
	}
	daysOfWeek, err := encodeStrings(listing.Availability.DaysOfWeek)
	if err != nil {
		return err
	}

	query := `INSERT INTO listings (
				owner_id, title, description, price_per_day, deposit, status,
				months, days_of_week, pickup_hours, return_hours, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		listing.OwnerID,
		listing.Title,
		listing.Description,
		listing.PricePerDay,
		listing.Deposit,
		listing.Status,
		months,
		daysOfWeek,
		listing.Availability.PickupHours,
		listing.Availability.ReturnHours,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	listing.ID = id
	listing.CreatedAt = now
	listing.UpdatedAt = now
	return nil
}

// SyncListings seeds listings from configuration. A listing already present
// for the same owner and title is left untouched so operator edits survive
// restarts.
func (db *DB) SyncListings(ctx context.Context, listings []models.Listing) error {
	for i := range listings {
		l := listings[i]
		var existing int64
		err := db.QueryRowContext(ctx,
			`SELECT id FROM listings WHERE owner_id = ? AND title = ?`,
			l.OwnerID, l.Title).Scan(&existing)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check listing %q: %w", l.Title, err)
		}
		if err := db.CreateListing(ctx, &l); err != nil {
			return err
		}
	}
	return nil
}

const listingColumns = `id, owner_id, title, description, price_per_day, deposit, status,
                 months, days_of_week, pickup_hours, return_hours, created_at, updated_at`

func scanListing(row interface{ Scan(...any) error }) (*models.Listing, error) {
	var l models.Listing
	var months, daysOfWeek string
	var pickupHours, returnHours sql.NullString
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.PricePerDay, &l.Deposit, &l.Status,
		&months, &daysOfWeek, &pickupHours, &returnHours, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if l.Availability.Months, err = decodeStrings(months); err != nil {
		return nil, err
	}
	if l.Availability.DaysOfWeek, err = decodeStrings(daysOfWeek); err != nil {
		return nil, err
	}
	l.Availability.PickupHours = pickupHours.String
	l.Availability.ReturnHours = returnHours.String
	return &l, nil
}

func (db *DB) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	listing, err := scanListing(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

func (db *DB) GetListingsByOwner(ctx context.Context, ownerID int64) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE owner_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listings by owner: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (db *DB) UpdateListingStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE listings SET status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update listing status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrListingNotFound
	}
	return nil
}

// UpdatePricing changes only the pricing field group.
func (db *DB) UpdatePricing(ctx context.Context, id, pricePerDay, deposit int64) error {
	query := `UPDATE listings SET price_per_day = ?, deposit = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, pricePerDay, deposit, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update pricing: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrListingNotFound
	}
	return nil
}

// UpdateAvailabilitySettings changes only the availability field group.
func (db *DB) UpdateAvailabilitySettings(ctx context.Context, id int64, settings models.AvailabilitySettings) error {
	months, err := encodeStrings(settings.Months)
	if err != nil {
		return err
	}
	daysOfWeek, err := encodeStrings(settings.DaysOfWeek)
	if err != nil {
		return err
	}

	query := `UPDATE listings SET months = ?, days_of_week = ?, pickup_hours = ?, return_hours = ?, updated_at = ?
              WHERE id = ?`
	result, err := db.ExecContext(ctx, query,
		months, daysOfWeek, settings.PickupHours, settings.ReturnHours, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update availability settings: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrListingNotFound
	}
	return nil
}

// GetCalendar returns the blocked days of a listing within [from, to].
func (db *DB) GetCalendar(ctx context.Context, listingID int64, from, to time.Time) ([]models.CalendarDay, error) {
	query := `SELECT day, state, booking_id FROM listing_dates
              WHERE listing_id = ? AND day >= ? AND day <= ? ORDER BY day`
	rows, err := db.QueryContext(ctx, query, listingID,
		calendar.FormatDay(from), calendar.FormatDay(to))
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar: %w", err)
	}
	defer rows.Close()

	var days []models.CalendarDay
	for rows.Next() {
		var d models.CalendarDay
		var dayStr string
		if err := rows.Scan(&dayStr, &d.State, &d.BookingID); err != nil {
			return nil, fmt.Errorf("failed to scan calendar day: %w", err)
		}
		if d.Day, err = calendar.ParseDay(dayStr); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// GetAvailabilityForPeriod returns a day-by-day availability view.
func (db *DB) GetAvailabilityForPeriod(ctx context.Context, listingID int64, startDate time.Time, days int) ([]*models.DayAvailability, error) {
	if _, err := db.GetListing(ctx, listingID); err != nil {
		return nil, err
	}

	endDate := calendar.DayKey(startDate).AddDate(0, 0, days-1)
	blocked, err := db.GetCalendar(ctx, listingID, startDate, endDate)
	if err != nil {
		return nil, err
	}

	states := make(map[time.Time]string, len(blocked))
	for _, b := range blocked {
		states[b.Day] = b.State
	}

	var availability []*models.DayAvailability
	for i := 0; i < days; i++ {
		date := calendar.DayKey(startDate).AddDate(0, 0, i)
		state := states[date]
		availability = append(availability, &models.DayAvailability{
			Date:      date,
			ListingID: listingID,
			Available: state == "",
			State:     state,
		})
	}
	return availability, nil
}
