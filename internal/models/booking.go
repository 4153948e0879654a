package models

import "time"

// ContactInfo is the renter contact passed to the payment provider.
type ContactInfo struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type Booking struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	ListingID int64  `json:"listing_id"`
	RenterID  int64  `json:"renter_id"`
	// OwnerID is denormalized from the listing so authorization checks do
	// not need a second lookup.
	OwnerID int64 `json:"owner_id"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	// DateRange is the materialized list of every day in [StartDate, EndDate].
	// Immutable once the booking is created; the listing calendar is the
	// mutable side.
	DateRange []time.Time `json:"date_range"`

	TotalAmount int64 `json:"total_amount"`
	Deposit     int64 `json:"deposit"`

	Status       string `json:"status"`
	PickupStatus string `json:"pickup_status"`
	ReturnStatus string `json:"return_status"`

	Contact         ContactInfo `json:"contact"`
	SpecialRequests string      `json:"special_requests,omitempty"`

	PaymentURL string `json:"payment_url,omitempty"`

	HoldExpiresAt     *time.Time `json:"hold_expires_at,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy       int64      `json:"cancelled_by,omitempty"`
	CancelReason      string     `json:"cancellation_reason,omitempty"`
	PickupCompletedAt *time.Time `json:"pickup_completed_at,omitempty"`
	ReturnCompletedAt *time.Time `json:"return_completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// Duration returns the number of billable days in the range.
func (b *Booking) Duration() int {
	return len(b.DateRange)
}

// IsParticipant reports whether userID is the renter or the owner.
func (b *Booking) IsParticipant(userID int64) bool {
	return userID == b.RenterID || userID == b.OwnerID
}

// BookingRequest is the renter's input for a new booking.
type BookingRequest struct {
	ListingID       int64       `json:"listing_id"`
	RenterID        int64       `json:"renter_id"`
	StartDate       time.Time   `json:"start_date"`
	EndDate         time.Time   `json:"end_date"`
	Contact         ContactInfo `json:"contact"`
	SpecialRequests string      `json:"special_requests,omitempty"`
}
