package repository

import (
	"context"
	"sync/atomic"
	"time"

	"rently/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverHoldIndex keeps the reaper working when redis is down by falling
// back to the in-memory index. Holds tracked while redis was unavailable are
// still covered by the periodic database sweep.
type FailoverHoldIndex struct {
	primary   domain.HoldIndex
	fallback  domain.HoldIndex
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverHoldIndex(primary, fallback domain.HoldIndex, logger *zerolog.Logger) *FailoverHoldIndex {
	return &FailoverHoldIndex{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverHoldIndex) Track(ctx context.Context, bookingID int64, expiresAt time.Time) error {
	if !r.isDown.Load() {
		err := r.primary.Track(ctx, bookingID, expiresAt)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary hold index failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.Track(ctx, bookingID, expiresAt)
}

func (r *FailoverHoldIndex) Forget(ctx context.Context, bookingID int64) error {
	if !r.isDown.Load() {
		err := r.primary.Forget(ctx, bookingID)
		if err == nil {
			// Remove from both sides so a hold tracked during an outage
			// does not linger in memory.
			_ = r.fallback.Forget(ctx, bookingID)
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary hold index failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.Forget(ctx, bookingID)
}

func (r *FailoverHoldIndex) Due(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	if !r.isDown.Load() {
		ids, err := r.primary.Due(ctx, now, limit)
		if err == nil {
			return ids, nil
		}
		r.logger.Error().Err(err).Msg("Primary hold index failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		ids, err := r.primary.Due(ctx, now, limit)
		if err == nil {
			r.isDown.Store(false)
			return ids, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.Due(ctx, now, limit)
}
