package worker

import (
	"context"
	"time"

	"rently/internal/domain"
	"rently/internal/metrics"

	"github.com/rs/zerolog"
)

// reaperService is the slice of the booking service the reaper needs.
type reaperService interface {
	ReapExpiredHolds(ctx context.Context, now time.Time) (int, error)
	ReapHoldByID(ctx context.Context, bookingID int64, now time.Time) (bool, error)
}

// HoldReaper removes booking holds whose payment window ran out. The redis
// index gives near-exact expiry timing; the database sweep catches anything
// the index lost.
type HoldReaper struct {
	svc       reaperService
	index     domain.HoldIndex
	interval  time.Duration
	batchSize int
	logger    *zerolog.Logger
}

func NewHoldReaper(svc reaperService, index domain.HoldIndex, interval time.Duration, batchSize int, logger *zerolog.Logger) *HoldReaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &HoldReaper{
		svc:       svc,
		index:     index,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start runs the reap loop until ctx is done.
func (r *HoldReaper) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("hold reaper started")
	defer r.logger.Info().Msg("hold reaper stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce(ctx, time.Now())
		}
	}
}

// ReapOnce drains the expiry index, then sweeps the database.
func (r *HoldReaper) ReapOnce(ctx context.Context, now time.Time) {
	reaped := 0

	if r.index != nil {
		due, err := r.index.Due(ctx, now, r.batchSize)
		if err != nil {
			r.logger.Warn().Err(err).Msg("hold index read failed, relying on db sweep")
		}
		for _, id := range due {
			removed, err := r.svc.ReapHoldByID(ctx, id, now)
			if err != nil {
				r.logger.Error().Err(err).Int64("booking_id", id).Msg("reap indexed hold")
				continue
			}
			if removed {
				reaped++
			}
		}
	}

	n, err := r.svc.ReapExpiredHolds(ctx, now)
	if err != nil {
		r.logger.Error().Err(err).Msg("db hold sweep failed")
	}
	reaped += n

	if reaped > 0 {
		metrics.AddHoldsReaped(reaped)
		r.logger.Info().Int("count", reaped).Msg("expired holds reaped")
	}
}
