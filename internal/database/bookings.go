package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rently/internal/calendar"
	"rently/internal/models"
)

const bookingColumns = `id, code, listing_id, renter_id, owner_id, start_date, end_date, date_range,
                 total_amount, deposit, status, pickup_status, return_status,
                 contact_phone, contact_email, special_requests, payment_url,
                 hold_expires_at, confirmed_at, rejected_at, rejection_reason,
                 cancelled_at, cancelled_by, cancellation_reason,
                 pickup_completed_at, return_completed_at, created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	var b models.Booking
	var startStr, endStr, rangeRaw string
	var phone, email, requests, paymentURL, rejectionReason, cancelReason sql.NullString
	var holdExpires, confirmedAt, rejectedAt, cancelledAt, pickupDone, returnDone sql.NullTime
	var cancelledBy sql.NullInt64

	err := row.Scan(
		&b.ID, &b.Code, &b.ListingID, &b.RenterID, &b.OwnerID, &startStr, &endStr, &rangeRaw,
		&b.TotalAmount, &b.Deposit, &b.Status, &b.PickupStatus, &b.ReturnStatus,
		&phone, &email, &requests, &paymentURL,
		&holdExpires, &confirmedAt, &rejectedAt, &rejectionReason,
		&cancelledAt, &cancelledBy, &cancelReason,
		&pickupDone, &returnDone, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	if b.StartDate, err = calendar.ParseDay(startStr); err != nil {
		return nil, err
	}
	if b.EndDate, err = calendar.ParseDay(endStr); err != nil {
		return nil, err
	}
	if b.DateRange, err = decodeDays(rangeRaw); err != nil {
		return nil, err
	}

	b.Contact.Phone = phone.String
	b.Contact.Email = email.String
	b.SpecialRequests = requests.String
	b.PaymentURL = paymentURL.String
	b.RejectionReason = rejectionReason.String
	b.CancelReason = cancelReason.String
	b.CancelledBy = cancelledBy.Int64
	b.HoldExpiresAt = timePtr(holdExpires)
	b.ConfirmedAt = timePtr(confirmedAt)
	b.RejectedAt = timePtr(rejectedAt)
	b.CancelledAt = timePtr(cancelledAt)
	b.PickupCompletedAt = timePtr(pickupDone)
	b.ReturnCompletedAt = timePtr(returnDone)
	return &b, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// CreateBookingHold atomically checks availability, reserves the booking's
// days on the listing calendar and inserts the booking in state hold.
// Either everything commits or nothing happened.
func (db *DB) CreateBookingHold(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return txAbort("begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Conflict check inside the transaction.
	conflicts, err := conflictingDaysTx(ctx, tx, booking.ListingID, booking.DateRange)
	if err != nil {
		return txAbort("check availability", err)
	}
	if len(conflicts) > 0 {
		return &DatesUnavailableError{Dates: conflicts}
	}

	// 2. Insert the booking.
	rangeRaw, err := encodeDays(booking.DateRange)
	if err != nil {
		return err
	}

	queryInsert := `INSERT INTO bookings (
				code, listing_id, renter_id, owner_id, start_date, end_date, date_range,
				total_amount, deposit, status, pickup_status, return_status,
				contact_phone, contact_email, special_requests, hold_expires_at,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.Code,
		booking.ListingID,
		booking.RenterID,
		booking.OwnerID,
		calendar.FormatDay(booking.StartDate),
		calendar.FormatDay(booking.EndDate),
		rangeRaw,
		booking.TotalAmount,
		booking.Deposit,
		models.StatusHold,
		models.StepPending,
		models.StepPending,
		booking.Contact.Phone,
		booking.Contact.Email,
		booking.SpecialRequests,
		booking.HoldExpiresAt,
		now,
		now,
		1,
	)
	if err != nil {
		return txAbort("insert booking", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return txAbort("last insert id", err)
	}

	// 3. Reserve the days. The primary key on (listing_id, day) is the
	// backstop against anything the check above could have missed.
	if err := insertDaysTx(ctx, tx, booking.ListingID, id, booking.DateRange); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return txAbort("commit", err)
	}

	booking.ID = id
	booking.Status = models.StatusHold
	booking.PickupStatus = models.StepPending
	booking.ReturnStatus = models.StepPending
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func conflictingDaysTx(ctx context.Context, tx *sql.Tx, listingID int64, days []time.Time) ([]time.Time, error) {
	if len(days) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(days))
	args := make([]any, 0, len(days)+1)
	args = append(args, listingID)
	for i, d := range days {
		placeholders[i] = "?"
		args = append(args, calendar.FormatDay(d))
	}

	query := `SELECT day FROM listing_dates WHERE listing_id = ? AND day IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY day`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []time.Time
	for rows.Next() {
		var dayStr string
		if err := rows.Scan(&dayStr); err != nil {
			return nil, err
		}
		day, err := calendar.ParseDay(dayStr)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, day)
	}
	return conflicts, rows.Err()
}

func insertDaysTx(ctx context.Context, tx *sql.Tx, listingID, bookingID int64, days []time.Time) error {
	query := `INSERT INTO listing_dates (listing_id, day, state, booking_id) VALUES (?, ?, ?, ?)`
	for _, d := range days {
		if _, err := tx.ExecContext(ctx, query,
			listingID, calendar.FormatDay(d), models.DayReserved, bookingID); err != nil {
			if isConstraintError(err) {
				return &DatesUnavailableError{Dates: []time.Time{calendar.DayKey(d)}}
			}
			return txAbort("reserve day", err)
		}
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// ConfirmBooking moves a pending booking to confirmed and its calendar days
// from reserved to confirmed in one transaction.
func (db *DB) ConfirmBooking(ctx context.Context, id, fromVersion int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return txAbort("begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE bookings SET status = ?, confirmed_at = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		models.StatusConfirmed, now, now, id, fromVersion, models.StatusPending)
	if err != nil {
		return txAbort("confirm booking", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	queryDays := `UPDATE listing_dates SET state = ? WHERE booking_id = ? AND state = ?`
	if _, err := tx.ExecContext(ctx, queryDays, models.DayConfirmed, id, models.DayReserved); err != nil {
		return txAbort("confirm days", err)
	}

	return tx.Commit()
}

// RejectBooking moves a pending booking to rejected and releases its
// reserved days in one transaction.
func (db *DB) RejectBooking(ctx context.Context, id, fromVersion int64, reason string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return txAbort("begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE bookings SET status = ?, rejected_at = ?, rejection_reason = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		models.StatusRejected, now, reason, now, id, fromVersion, models.StatusPending)
	if err != nil {
		return txAbort("reject booking", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	if err := releaseDaysTx(ctx, tx, id, models.DayReserved); err != nil {
		return err
	}

	return tx.Commit()
}

// CancelBooking moves a pending or confirmed booking to cancelled. The
// released day state depends on the prior booking status: reserved for
// pending, confirmed for confirmed.
func (db *DB) CancelBooking(ctx context.Context, id, fromVersion int64, fromStatus string, cancelledBy int64, reason string) error {
	dayState := models.DayReserved
	if fromStatus == models.StatusConfirmed {
		dayState = models.DayConfirmed
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return txAbort("begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE bookings SET status = ?, cancelled_at = ?, cancelled_by = ?, cancellation_reason = ?,
                     version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		models.StatusCancelled, now, cancelledBy, reason, now, id, fromVersion, fromStatus)
	if err != nil {
		return txAbort("cancel booking", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	if err := releaseDaysTx(ctx, tx, id, dayState); err != nil {
		return err
	}

	return tx.Commit()
}

// releaseDaysTx removes a booking's day rows in the given state. Removing
// already-removed days is a no-op.
func releaseDaysTx(ctx context.Context, tx *sql.Tx, bookingID int64, state string) error {
	query := `DELETE FROM listing_dates WHERE booking_id = ? AND state = ?`
	if _, err := tx.ExecContext(ctx, query, bookingID, state); err != nil {
		return txAbort("release days", err)
	}
	return nil
}

// MarkHoldPaid transitions a paid hold to pending and clears its expiry.
func (db *DB) MarkHoldPaid(ctx context.Context, id, fromVersion int64) error {
	query := `UPDATE bookings SET status = ?, hold_expires_at = NULL, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusPending, time.Now(), id, fromVersion, models.StatusHold)
	if err != nil {
		return fmt.Errorf("failed to mark hold paid: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// UpdatePaymentURL stores the generated payment link. Not part of the hold
// transaction on purpose: link generation happens after commit.
func (db *DB) UpdatePaymentURL(ctx context.Context, id int64, url string) error {
	query := `UPDATE bookings SET payment_url = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, url, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update payment url: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// UpdateBookingProgress writes the pickup/return sub-statuses and the derived
// booking status computed by the service. Explicit field list only.
func (db *DB) UpdateBookingProgress(ctx context.Context, id, fromVersion int64,
	status, pickupStatus, returnStatus string, pickupCompletedAt, returnCompletedAt *time.Time) error {
	query := `UPDATE bookings SET status = ?, pickup_status = ?, return_status = ?,
                     pickup_completed_at = ?, return_completed_at = ?,
                     version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query,
		status, pickupStatus, returnStatus, pickupCompletedAt, returnCompletedAt,
		time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking progress: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) GetBookingsForRenter(ctx context.Context, renterID int64, status string, sortBy string) ([]*models.Booking, error) {
	return db.listBookings(ctx, "renter_id", renterID, status, sortBy)
}

func (db *DB) GetBookingsForOwner(ctx context.Context, ownerID int64, status string, sortBy string) ([]*models.Booking, error) {
	return db.listBookings(ctx, "owner_id", ownerID, status, sortBy)
}

func (db *DB) listBookings(ctx context.Context, column string, userID int64, status, sortBy string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + column + ` = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if sortBy == "oldest" {
		query += ` ORDER BY created_at ASC`
	} else {
		query += ` ORDER BY created_at DESC`
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetBookingsInPeriod returns bookings whose date range overlaps [from, to].
func (db *DB) GetBookingsInPeriod(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE start_date <= ? AND end_date >= ?
              ORDER BY start_date ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, calendar.FormatDay(to), calendar.FormatDay(from))
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings in period: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ListExpiredHolds returns holds whose expiry has passed.
func (db *DB) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at <= ?
              ORDER BY hold_expires_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.StatusHold, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}
	defer rows.Close()

	var holds []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		holds = append(holds, b)
	}
	return holds, rows.Err()
}

// ReapHold deletes an expired hold and releases its reserved days in one
// transaction. Returns false when the booking no longer is an expired hold,
// which makes the reaper idempotent.
func (db *DB) ReapHold(ctx context.Context, bookingID int64, now time.Time) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, txAbort("begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	queryDelete := `DELETE FROM bookings
              WHERE id = ? AND status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at <= ?`
	result, err := tx.ExecContext(ctx, queryDelete, bookingID, models.StatusHold, now)
	if err != nil {
		return false, txAbort("delete hold", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	// Deleting the hold must release its dates. This is the compensating
	// action the model otherwise hides in a storage hook.
	if err := releaseDaysTx(ctx, tx, bookingID, models.DayReserved); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, txAbort("commit", err)
	}
	return true, nil
}
