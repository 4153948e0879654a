package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rently/internal/calendar"
	"rently/internal/database"
	"rently/internal/domain"
	"rently/internal/events"
	"rently/internal/metrics"
	"rently/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BookingService struct {
	repo           domain.Repository
	payments       domain.PaymentLinkProvider
	holdIndex      domain.HoldIndex
	eventBus       domain.EventPublisher
	notifier       domain.Notifier
	sheetsWorker   domain.SyncWorker
	holdWindow     time.Duration
	maxBookingDays int
	logger         *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	payments domain.PaymentLinkProvider,
	holdIndex domain.HoldIndex,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	sheetsWorker domain.SyncWorker,
	holdWindow time.Duration,
	maxBookingDays int,
	logger *zerolog.Logger,
) *BookingService {
	if holdWindow <= 0 {
		holdWindow = models.DefaultHoldWindow
	}
	if maxBookingDays <= 0 {
		maxBookingDays = models.DefaultMaxBookingDays
	}
	return &BookingService{
		repo:           repo,
		payments:       payments,
		holdIndex:      holdIndex,
		eventBus:       eventBus,
		notifier:       notifier,
		sheetsWorker:   sheetsWorker,
		holdWindow:     holdWindow,
		maxBookingDays: maxBookingDays,
		logger:         logger,
	}
}

// newBookingCode produces a short human-readable reference for support chats.
func newBookingCode() string {
	return "BK-" + strings.ToUpper(uuid.NewString()[:8])
}

func (s *BookingService) validateRequest(req *models.BookingRequest) error {
	if req == nil || req.ListingID <= 0 || req.RenterID <= 0 {
		return fmt.Errorf("%w: listing and renter are required", ErrInvalidInput)
	}
	if req.Contact.Phone == "" && req.Contact.Email == "" {
		return fmt.Errorf("%w: contact phone or email is required", ErrInvalidInput)
	}

	start := calendar.DayKey(req.StartDate)
	end := calendar.DayKey(req.EndDate)
	today := calendar.DayKey(time.Now())

	if start.Before(today) {
		return fmt.Errorf("%w: start date is in the past", ErrInvalidInput)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end date must be after start date", ErrInvalidInput)
	}
	if int(end.Sub(start).Hours()/24)+1 > s.maxBookingDays {
		return fmt.Errorf("%w: booking longer than %d days", ErrInvalidInput, s.maxBookingDays)
	}
	return nil
}

// CreateBooking places a hold on the requested dates and asks the payment
// provider for a checkout link. The hold is durable the moment the
// transaction commits; a failed link generation leaves it awaiting payment
// or expiry and is reported via ErrPaymentLinkFailed alongside the booking.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.Booking, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	listing, err := s.repo.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != models.ListingPublished && listing.Status != models.ListingBoosted {
		return nil, fmt.Errorf("%w: listing is not published", ErrInvalidInput)
	}
	if listing.OwnerID == req.RenterID {
		return nil, fmt.Errorf("%w: cannot book your own listing", ErrUnauthorized)
	}

	start := calendar.DayKey(req.StartDate)
	end := calendar.DayKey(req.EndDate)
	dateRange := calendar.ExpandRange(start, end)

	if violations := calendar.ConstraintViolations(listing.Availability, dateRange); len(violations) > 0 {
		return nil, fmt.Errorf("%w: %d day(s) fall outside the listing's availability settings",
			ErrInvalidInput, len(violations))
	}

	expiresAt := time.Now().Add(s.holdWindow)
	booking := &models.Booking{
		Code:            newBookingCode(),
		ListingID:       listing.ID,
		RenterID:        req.RenterID,
		OwnerID:         listing.OwnerID,
		StartDate:       start,
		EndDate:         end,
		DateRange:       dateRange,
		TotalAmount:     listing.PricePerDay * int64(len(dateRange)),
		Deposit:         listing.Deposit,
		Contact:         req.Contact,
		SpecialRequests: req.SpecialRequests,
		HoldExpiresAt:   &expiresAt,
	}

	if err := s.repo.CreateBookingHold(ctx, booking); err != nil {
		var conflict *database.DatesUnavailableError
		if errors.As(err, &conflict) {
			metrics.IncDateConflicts()
		}
		return nil, err
	}
	metrics.IncBookingsCreated()

	if s.holdIndex != nil {
		if err := s.holdIndex.Track(ctx, booking.ID, expiresAt); err != nil {
			// The periodic DB sweep still reaps this hold.
			s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("hold index track failed")
		}
	}

	s.publishEvent(events.EventBookingCreated, booking, 0, "")
	s.enqueueSync(ctx, booking, "upsert")
	s.notify(ctx, booking.OwnerID, true,
		fmt.Sprintf("New booking request %s for listing %d (%s to %s)",
			booking.Code, booking.ListingID,
			calendar.FormatDay(booking.StartDate), calendar.FormatDay(booking.EndDate)))

	url, err := s.payments.CreatePaymentLink(ctx, booking)
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("payment link generation failed")
		return booking, fmt.Errorf("%w: %v", ErrPaymentLinkFailed, err)
	}

	booking.PaymentURL = url
	if err := s.repo.UpdatePaymentURL(ctx, booking.ID, url); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("persist payment url failed")
	}
	return booking, nil
}

// MarkHoldPaid is the payment webhook path: a paid hold stops expiring and
// waits for the owner's decision.
func (s *BookingService) MarkHoldPaid(ctx context.Context, bookingID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusHold {
		return nil, fmt.Errorf("%w: cannot mark paid from %q", ErrInvalidStateTransition, booking.Status)
	}

	if err := s.repo.MarkHoldPaid(ctx, booking.ID, booking.Version); err != nil {
		return nil, err
	}
	if s.holdIndex != nil {
		if err := s.holdIndex.Forget(ctx, booking.ID); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("hold index forget failed")
		}
	}

	booking, err = s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingPaid, booking, booking.RenterID, "")
	s.enqueueSync(ctx, booking, "update_status")
	s.notify(ctx, booking.OwnerID, true,
		fmt.Sprintf("Booking %s is paid and awaiting your confirmation", booking.Code))
	return booking, nil
}

func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID, ownerID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: only the owner can confirm", ErrUnauthorized)
	}
	if booking.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot confirm from %q", ErrInvalidStateTransition, booking.Status)
	}

	if err := s.repo.ConfirmBooking(ctx, booking.ID, booking.Version); err != nil {
		return nil, err
	}

	booking, err = s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingConfirmed, booking, ownerID, "")
	s.enqueueSync(ctx, booking, "update_status")
	s.notify(ctx, booking.RenterID, false,
		fmt.Sprintf("Booking %s was confirmed by the owner", booking.Code))
	return booking, nil
}

func (s *BookingService) RejectBooking(ctx context.Context, bookingID, ownerID int64, reason string) (*models.Booking, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: only the owner can reject", ErrUnauthorized)
	}
	if booking.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot reject from %q", ErrInvalidStateTransition, booking.Status)
	}

	if err := s.repo.RejectBooking(ctx, booking.ID, booking.Version, reason); err != nil {
		return nil, err
	}

	booking, err = s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingRejected, booking, ownerID, reason)
	s.enqueueSync(ctx, booking, "update_status")
	s.notify(ctx, booking.RenterID, false,
		fmt.Sprintf("Booking %s was rejected: %s", booking.Code, reason))
	return booking, nil
}

func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID int64, reason string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: only the renter or the owner can cancel", ErrUnauthorized)
	}
	if booking.Status != models.StatusPending && booking.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("%w: cannot cancel from %q", ErrInvalidStateTransition, booking.Status)
	}

	if err := s.repo.CancelBooking(ctx, booking.ID, booking.Version, booking.Status, userID, reason); err != nil {
		return nil, err
	}

	booking, err = s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingCancelled, booking, userID, reason)
	s.enqueueSync(ctx, booking, "update_status")
	counterparty := booking.OwnerID
	toOwner := true
	if userID == booking.OwnerID {
		counterparty = booking.RenterID
		toOwner = false
	}
	s.notify(ctx, counterparty, toOwner,
		fmt.Sprintf("Booking %s was cancelled", booking.Code))
	return booking, nil
}

var stepRank = map[string]int{
	models.StepPending:    0,
	models.StepInProgress: 1,
	models.StepCompleted:  2,
}

// advanceStep validates a forward-only move in a pickup/return sub-machine.
func advanceStep(current, next string) error {
	nextRank, ok := stepRank[next]
	if !ok {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidInput, next)
	}
	if nextRank <= stepRank[current] {
		return fmt.Errorf("%w: cannot move %q -> %q", ErrInvalidStateTransition, current, next)
	}
	if next == models.StepCompleted && current != models.StepInProgress {
		return fmt.Errorf("%w: completed is only reachable from in_progress", ErrInvalidStateTransition)
	}
	return nil
}

// UpdateBookingStatus advances the pickup and/or return sub-state. The
// booking status follows: a completed pickup makes the rental active, a
// completed return completes it.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, bookingID, userID int64, pickupStatus, returnStatus string) (*models.Booking, error) {
	if pickupStatus == "" && returnStatus == "" {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: only the renter or the owner can update progress", ErrUnauthorized)
	}
	if booking.Status != models.StatusConfirmed && booking.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: cannot track pickup/return from %q", ErrInvalidStateTransition, booking.Status)
	}

	now := time.Now()
	newPickup := booking.PickupStatus
	newReturn := booking.ReturnStatus
	pickupAt := booking.PickupCompletedAt
	returnAt := booking.ReturnCompletedAt

	if pickupStatus != "" {
		if err := advanceStep(booking.PickupStatus, pickupStatus); err != nil {
			return nil, err
		}
		newPickup = pickupStatus
		if pickupStatus == models.StepCompleted {
			pickupAt = &now
		}
	}
	if returnStatus != "" {
		if newPickup != models.StepCompleted {
			return nil, fmt.Errorf("%w: return cannot start before pickup is completed", ErrInvalidStateTransition)
		}
		if err := advanceStep(booking.ReturnStatus, returnStatus); err != nil {
			return nil, err
		}
		newReturn = returnStatus
		if returnStatus == models.StepCompleted {
			returnAt = &now
		}
	}

	if err := s.checkHandoverHours(ctx, booking.ListingID, pickupStatus != "", returnStatus != "", now); err != nil {
		return nil, err
	}

	status := booking.Status
	if newPickup == models.StepCompleted {
		status = models.StatusActive
	}
	if newReturn == models.StepCompleted {
		status = models.StatusCompleted
	}

	if err := s.repo.UpdateBookingProgress(ctx, booking.ID, booking.Version,
		status, newPickup, newReturn, pickupAt, returnAt); err != nil {
		return nil, err
	}

	booking, err = s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.StatusCompleted {
		s.publishEvent(events.EventBookingCompleted, booking, userID, "")
	}
	s.enqueueSync(ctx, booking, "update_status")
	return booking, nil
}

// checkHandoverHours rejects pickup/return progress outside the listing's
// configured handover windows. A stored spec that no longer parses is
// treated as always open.
func (s *BookingService) checkHandoverHours(ctx context.Context, listingID int64, pickup, ret bool, now time.Time) error {
	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return err
	}

	if pickup {
		ok, err := calendar.WithinHours(listing.Availability.PickupHours, now)
		if err != nil {
			s.logger.Warn().Err(err).Int64("listing_id", listingID).Msg("unparseable pickup hours")
		} else if !ok {
			return fmt.Errorf("%w: pickup is only possible during %s",
				ErrInvalidInput, listing.Availability.PickupHours)
		}
	}
	if ret {
		ok, err := calendar.WithinHours(listing.Availability.ReturnHours, now)
		if err != nil {
			s.logger.Warn().Err(err).Int64("listing_id", listingID).Msg("unparseable return hours")
		} else if !ok {
			return fmt.Errorf("%w: return is only possible during %s",
				ErrInvalidInput, listing.Availability.ReturnHours)
		}
	}
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: booking belongs to someone else", ErrUnauthorized)
	}
	return booking, nil
}

func (s *BookingService) GetRenterBookings(ctx context.Context, renterID int64, status, sortBy string) ([]*models.Booking, error) {
	return s.repo.GetBookingsForRenter(ctx, renterID, status, sortBy)
}

func (s *BookingService) GetOwnerBookings(ctx context.Context, ownerID int64, status, sortBy string) ([]*models.Booking, error) {
	return s.repo.GetBookingsForOwner(ctx, ownerID, status, sortBy)
}

// ReapExpiredHolds removes expired holds in their own transactions and
// returns how many were reaped. Safe to run concurrently with webhooks:
// a hold paid mid-sweep is skipped by the status guard in the repository.
func (s *BookingService) ReapExpiredHolds(ctx context.Context, now time.Time) (int, error) {
	holds, err := s.repo.ListExpiredHolds(ctx, now, 100)
	if err != nil {
		return 0, err
	}

	var reaped int
	for _, hold := range holds {
		removed, err := s.repo.ReapHold(ctx, hold.ID, now)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", hold.ID).Msg("reap hold failed")
			continue
		}
		if !removed {
			continue
		}
		reaped++
		if s.holdIndex != nil {
			if err := s.holdIndex.Forget(ctx, hold.ID); err != nil {
				s.logger.Warn().Err(err).Int64("booking_id", hold.ID).Msg("hold index forget failed")
			}
		}
		s.publishEvent(events.EventHoldExpired, hold, 0, "")
	}
	return reaped, nil
}

// ReapHoldByID reaps a single hold, used by the redis-driven reaper path.
func (s *BookingService) ReapHoldByID(ctx context.Context, bookingID int64, now time.Time) (bool, error) {
	removed, err := s.repo.ReapHold(ctx, bookingID, now)
	if err != nil {
		return false, err
	}
	if removed {
		s.publishEvent(events.EventHoldExpired, &models.Booking{ID: bookingID}, 0, "")
	}
	if s.holdIndex != nil {
		if err := s.holdIndex.Forget(ctx, bookingID); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("hold index forget failed")
		}
	}
	return removed, nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy int64, reason string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		Code:        booking.Code,
		ListingID:   booking.ListingID,
		RenterID:    booking.RenterID,
		OwnerID:     booking.OwnerID,
		Status:      booking.Status,
		StartDate:   booking.StartDate,
		EndDate:     booking.EndDate,
		TotalAmount: booking.TotalAmount,
		Reason:      reason,
		ChangedBy:   changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == "update_status" {
		status = booking.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking.ID, booking, status); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func (s *BookingService) notify(ctx context.Context, userID int64, owner bool, text string) {
	if s.notifier == nil {
		return
	}

	var err error
	if owner {
		err = s.notifier.NotifyOwner(ctx, userID, text)
	} else {
		err = s.notifier.NotifyRenter(ctx, userID, text)
	}
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("notification failed")
	}
}
