package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rently/internal/calendar"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	logger zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// _txlock=immediate makes write transactions take the writer lock at
	// BEGIN, so the availability check and the date insert inside one
	// transaction cannot interleave with another writer.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "database").Logger()
	}
	base.Info().Str("path", path).Msg("database initialized")

	return &DB{DB: db, logger: base}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS listings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            owner_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT,
            price_per_day INTEGER NOT NULL,
            deposit INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'draft',
            months TEXT NOT NULL DEFAULT '[]',
            days_of_week TEXT NOT NULL DEFAULT '[]',
            pickup_hours TEXT,
            return_hours TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		// One row per blocked calendar day. The primary key is the
		// no-double-booking backstop: two bookings can never hold the same
		// day on the same listing.
		`CREATE TABLE IF NOT EXISTS listing_dates (
            listing_id INTEGER NOT NULL,
            day TEXT NOT NULL,
            state TEXT NOT NULL DEFAULT 'reserved',
            booking_id INTEGER NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (listing_id, day)
        )`,

		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT UNIQUE NOT NULL,
            listing_id INTEGER NOT NULL,
            renter_id INTEGER NOT NULL,
            owner_id INTEGER NOT NULL,
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            date_range TEXT NOT NULL,
            total_amount INTEGER NOT NULL,
            deposit INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'hold',
            pickup_status TEXT NOT NULL DEFAULT 'pending',
            return_status TEXT NOT NULL DEFAULT 'pending',
            contact_phone TEXT,
            contact_email TEXT,
            special_requests TEXT,
            payment_url TEXT,
            hold_expires_at DATETIME,
            confirmed_at DATETIME,
            rejected_at DATETIME,
            rejection_reason TEXT,
            cancelled_at DATETIME,
            cancelled_by INTEGER,
            cancellation_reason TEXT,
            pickup_completed_at DATETIME,
            return_completed_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            next_retry_at DATETIME,
            processed_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_listing_dates_booking ON listing_dates(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_listing_status ON bookings(listing_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_renter_status ON bookings(renter_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_owner_status ON bookings(owner_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_hold_expiry ON bookings(status, hold_expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// encodeDays serializes day keys as a JSON array of YYYY-MM-DD strings.
func encodeDays(days []time.Time) (string, error) {
	keys := make([]string, 0, len(days))
	for _, d := range days {
		keys = append(keys, calendar.FormatDay(d))
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("failed to encode date range: %w", err)
	}
	return string(raw), nil
}

func decodeDays(raw string) ([]time.Time, error) {
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("failed to decode date range: %w", err)
	}
	days := make([]time.Time, 0, len(keys))
	for _, k := range keys {
		d, err := calendar.ParseDay(k)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

func encodeStrings(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	raw, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(raw), nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}
