package models

import "time"

// Booking statuses.
const (
	StatusHold      = "hold"
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

// Pickup/return sub-statuses.
const (
	StepPending    = "pending"
	StepInProgress = "in-progress"
	StepCompleted  = "completed"
	StepCancelled  = "cancelled"
)

// Listing statuses.
const (
	ListingDraft     = "draft"
	ListingPublished = "published"
	ListingBoosted   = "boosted"
	ListingExpired   = "expired"
)

// Calendar day states.
const (
	DayReserved  = "reserved"
	DayConfirmed = "confirmed"
)

const (
	// DefaultHoldWindow время жизни неоплаченного холда
	DefaultHoldWindow = 30 * time.Minute

	// DefaultMaxBookingDays максимальная длительность аренды
	DefaultMaxBookingDays = 90

	// DefaultReaperInterval период обхода просроченных холдов
	DefaultReaperInterval = time.Minute

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitRPS и RateLimitBurst значения по умолчанию для API
	RateLimitRPS   = 10
	RateLimitBurst = 20
)

// IsTerminal reports whether a booking status permits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}
