package domain

import (
	"context"
	"time"

	"rently/internal/models"
)

type Repository interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	GetListingsByOwner(ctx context.Context, ownerID int64) ([]*models.Listing, error)
	UpdateListingStatus(ctx context.Context, id int64, status string) error
	UpdatePricing(ctx context.Context, id, pricePerDay, deposit int64) error
	UpdateAvailabilitySettings(ctx context.Context, id int64, settings models.AvailabilitySettings) error
	GetCalendar(ctx context.Context, listingID int64, from, to time.Time) ([]models.CalendarDay, error)
	GetAvailabilityForPeriod(ctx context.Context, listingID int64, startDate time.Time, days int) ([]*models.DayAvailability, error)

	CreateBookingHold(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, id, fromVersion int64) error
	RejectBooking(ctx context.Context, id, fromVersion int64, reason string) error
	CancelBooking(ctx context.Context, id, fromVersion int64, fromStatus string, cancelledBy int64, reason string) error
	MarkHoldPaid(ctx context.Context, id, fromVersion int64) error
	UpdatePaymentURL(ctx context.Context, id int64, url string) error
	UpdateBookingProgress(ctx context.Context, id, fromVersion int64,
		status, pickupStatus, returnStatus string, pickupCompletedAt, returnCompletedAt *time.Time) error
	GetBookingsForRenter(ctx context.Context, renterID int64, status string, sortBy string) ([]*models.Booking, error)
	GetBookingsForOwner(ctx context.Context, ownerID int64, status string, sortBy string) ([]*models.Booking, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	ReapHold(ctx context.Context, bookingID int64, now time.Time) (bool, error)
}

// PaymentLinkProvider turns a persisted hold into a checkout URL. Implemented
// by the tpay client; swap for a fake in tests.
type PaymentLinkProvider interface {
	CreatePaymentLink(ctx context.Context, booking *models.Booking) (string, error)
}

// HoldIndex tracks hold deadlines outside the database so the reaper can wake
// up close to the exact expiry instead of relying on polling alone.
type HoldIndex interface {
	Track(ctx context.Context, bookingID int64, expiresAt time.Time) error
	Forget(ctx context.Context, bookingID int64) error
	Due(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers booking lifecycle messages to owners and renters.
type Notifier interface {
	NotifyOwner(ctx context.Context, ownerID int64, text string) error
	NotifyRenter(ctx context.Context, renterID int64, text string) error
}

type SheetsWriter interface {
	AppendBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.Booking, error)
	MarkHoldPaid(ctx context.Context, bookingID int64) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, bookingID, ownerID int64) (*models.Booking, error)
	RejectBooking(ctx context.Context, bookingID, ownerID int64, reason string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, userID int64, reason string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID, userID int64, pickupStatus, returnStatus string) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID, userID int64) (*models.Booking, error)
	GetRenterBookings(ctx context.Context, renterID int64, status, sortBy string) ([]*models.Booking, error)
	GetOwnerBookings(ctx context.Context, ownerID int64, status, sortBy string) ([]*models.Booking, error)
	ReapExpiredHolds(ctx context.Context, now time.Time) (int, error)
}

type ListingService interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	GetOwnerListings(ctx context.Context, ownerID int64) ([]*models.Listing, error)
	PublishListing(ctx context.Context, id, ownerID int64) error
	UpdatePricing(ctx context.Context, id, ownerID, pricePerDay, deposit int64) error
	UpdateAvailability(ctx context.Context, id, ownerID int64, settings models.AvailabilitySettings) error
	GetCalendar(ctx context.Context, listingID int64, from, to time.Time) ([]models.CalendarDay, error)
	GetAvailability(ctx context.Context, listingID int64, startDate time.Time, days int) ([]*models.DayAvailability, error)
}
