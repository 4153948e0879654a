package models

import "time"

// AvailabilitySettings restricts which calendar days a listing can be booked
// on. Empty lists mean no restriction.
type AvailabilitySettings struct {
	Months      []string `yaml:"months" json:"months"`
	DaysOfWeek  []string `yaml:"days_of_week" json:"days_of_week"`
	PickupHours string   `yaml:"pickup_hours" json:"pickup_hours"`
	ReturnHours string   `yaml:"return_hours" json:"return_hours"`
}

type Listing struct {
	ID           int64                `yaml:"id" json:"id"`
	OwnerID      int64                `yaml:"owner_id" json:"owner_id"`
	Title        string               `yaml:"title" json:"title"`
	Description  string               `yaml:"description" json:"description"`
	PricePerDay  int64                `yaml:"price_per_day" json:"price_per_day"` // minor currency units
	Deposit      int64                `yaml:"deposit" json:"deposit"`
	Status       string               `yaml:"status" json:"status"`
	Availability AvailabilitySettings `yaml:"availability" json:"availability"`
	CreatedAt    time.Time            `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time            `yaml:"updated_at" json:"updated_at"`
}

// CalendarDay is one day of a listing's calendar with the booking that holds it.
type CalendarDay struct {
	Day       time.Time `json:"day"`
	State     string    `json:"state"` // reserved or confirmed
	BookingID int64     `json:"booking_id"`
}

// DayAvailability is the per-day view returned for a period query.
type DayAvailability struct {
	Date      time.Time `json:"date"`
	ListingID int64     `json:"listing_id"`
	Available bool      `json:"available"`
	State     string    `json:"state,omitempty"`
}
