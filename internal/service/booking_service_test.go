package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"rently/internal/calendar"
	"rently/internal/events"
	"rently/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	svc    *BookingService
	repo   *mockRepo
	pay    *mockPayments
	index  *mockHoldIndex
	bus    *mockEventBus
	notif  *mockNotifier
	worker *mockWorker
}

func newBookingFixture() *bookingFixture {
	f := &bookingFixture{
		repo:   new(mockRepo),
		pay:    new(mockPayments),
		index:  new(mockHoldIndex),
		bus:    new(mockEventBus),
		notif:  new(mockNotifier),
		worker: new(mockWorker),
	}
	logger := zerolog.New(io.Discard)
	f.svc = NewBookingService(f.repo, f.pay, f.index, f.bus, f.notif, f.worker,
		30*time.Minute, 90, &logger)
	return f
}

func publishedListing() *models.Listing {
	return &models.Listing{
		ID:          1,
		OwnerID:     100,
		Title:       "Pressure washer",
		PricePerDay: 1500,
		Deposit:     5000,
		Status:      models.ListingPublished,
	}
}

func bookingReq(renterID int64, daysFromNow, nights int) *models.BookingRequest {
	start := calendar.DayKey(time.Now().AddDate(0, 0, daysFromNow))
	return &models.BookingRequest{
		ListingID: 1,
		RenterID:  renterID,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, nights),
		Contact:   models.ContactInfo{Phone: "+48123456789"},
	}
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetListing", ctx, int64(1)).Return(publishedListing(), nil).Once()
		f.repo.On("CreateBookingHold", ctx, mock.AnythingOfType("*models.Booking")).
			Run(func(args mock.Arguments) {
				b := args.Get(1).(*models.Booking)
				b.ID = 42
				b.Status = models.StatusHold
				b.Version = 1
			}).Return(nil).Once()
		f.index.On("Track", ctx, int64(42), mock.AnythingOfType("time.Time")).Return(nil).Once()
		f.bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "upsert", int64(42), mock.Anything, "").Return(nil).Once()
		f.notif.On("NotifyOwner", ctx, int64(100), mock.AnythingOfType("string")).Return(nil).Once()
		f.pay.On("CreatePaymentLink", ctx, mock.Anything).Return("https://pay.example/42", nil).Once()
		f.repo.On("UpdatePaymentURL", ctx, int64(42), "https://pay.example/42").Return(nil).Once()

		booking, err := f.svc.CreateBooking(ctx, bookingReq(200, 10, 2))
		require.NoError(t, err)

		// 3 inclusive days at 1500 each.
		assert.Equal(t, int64(4500), booking.TotalAmount)
		assert.Equal(t, int64(5000), booking.Deposit)
		assert.Equal(t, models.StatusHold, booking.Status)
		assert.Len(t, booking.DateRange, 3)
		assert.True(t, strings.HasPrefix(booking.Code, "BK-"))
		require.NotNil(t, booking.HoldExpiresAt)
		assert.WithinDuration(t, time.Now().Add(30*time.Minute), *booking.HoldExpiresAt, time.Minute)
		assert.Equal(t, "https://pay.example/42", booking.PaymentURL)

		f.repo.AssertExpectations(t)
		f.pay.AssertExpectations(t)
		f.index.AssertExpectations(t)
	})

	t.Run("PaymentLinkFailureKeepsHold", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetListing", ctx, int64(1)).Return(publishedListing(), nil).Once()
		f.repo.On("CreateBookingHold", ctx, mock.Anything).
			Run(func(args mock.Arguments) { args.Get(1).(*models.Booking).ID = 43 }).
			Return(nil).Once()
		f.index.On("Track", ctx, int64(43), mock.Anything).Return(nil).Once()
		f.bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "upsert", int64(43), mock.Anything, "").Return(nil).Once()
		f.notif.On("NotifyOwner", ctx, int64(100), mock.Anything).Return(nil).Once()
		f.pay.On("CreatePaymentLink", ctx, mock.Anything).Return("", errors.New("gateway down")).Once()

		booking, err := f.svc.CreateBooking(ctx, bookingReq(200, 10, 2))
		assert.ErrorIs(t, err, ErrPaymentLinkFailed)
		require.NotNil(t, booking)
		assert.Equal(t, int64(43), booking.ID)
		assert.Empty(t, booking.PaymentURL)

		f.repo.AssertNotCalled(t, "UpdatePaymentURL", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("RejectsPastStart", func(t *testing.T) {
		f := newBookingFixture()
		req := bookingReq(200, 10, 2)
		req.StartDate = time.Now().AddDate(0, 0, -2)

		_, err := f.svc.CreateBooking(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("RejectsEndNotAfterStart", func(t *testing.T) {
		f := newBookingFixture()
		req := bookingReq(200, 10, 0)

		_, err := f.svc.CreateBooking(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("RejectsTooLongRange", func(t *testing.T) {
		f := newBookingFixture()
		req := bookingReq(200, 10, 120)

		_, err := f.svc.CreateBooking(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("RejectsMissingContact", func(t *testing.T) {
		f := newBookingFixture()
		req := bookingReq(200, 10, 2)
		req.Contact = models.ContactInfo{}

		_, err := f.svc.CreateBooking(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("RejectsUnpublishedListing", func(t *testing.T) {
		f := newBookingFixture()
		draft := publishedListing()
		draft.Status = models.ListingDraft
		f.repo.On("GetListing", ctx, int64(1)).Return(draft, nil).Once()

		_, err := f.svc.CreateBooking(ctx, bookingReq(200, 10, 2))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("RejectsOwnListing", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetListing", ctx, int64(1)).Return(publishedListing(), nil).Once()

		_, err := f.svc.CreateBooking(ctx, bookingReq(100, 10, 2))
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("RejectsDaysOutsideAvailabilitySettings", func(t *testing.T) {
		f := newBookingFixture()
		listing := publishedListing()
		listing.Availability = models.AvailabilitySettings{DaysOfWeek: []string{"saturday"}}
		f.repo.On("GetListing", ctx, int64(1)).Return(listing, nil).Once()

		// A 3-day range always includes a non-Saturday.
		_, err := f.svc.CreateBooking(ctx, bookingReq(200, 10, 2))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestMarkHoldPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("HoldBecomesPending", func(t *testing.T) {
		f := newBookingFixture()
		hold := &models.Booking{ID: 7, Code: "BK-TEST", OwnerID: 100, RenterID: 200,
			Status: models.StatusHold, Version: 1}
		pending := &models.Booking{ID: 7, Code: "BK-TEST", OwnerID: 100, RenterID: 200,
			Status: models.StatusPending, Version: 2}

		f.repo.On("GetBooking", ctx, int64(7)).Return(hold, nil).Once()
		f.repo.On("MarkHoldPaid", ctx, int64(7), int64(1)).Return(nil).Once()
		f.index.On("Forget", ctx, int64(7)).Return(nil).Once()
		f.repo.On("GetBooking", ctx, int64(7)).Return(pending, nil).Once()
		f.bus.On("PublishJSON", events.EventBookingPaid, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(7), pending, models.StatusPending).Return(nil).Once()
		f.notif.On("NotifyOwner", ctx, int64(100), mock.Anything).Return(nil).Once()

		result, err := f.svc.MarkHoldPaid(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, result.Status)
		f.repo.AssertExpectations(t)
		f.index.AssertExpectations(t)
	})

	t.Run("OnlyFromHold", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetBooking", ctx, int64(7)).
			Return(&models.Booking{ID: 7, Status: models.StatusPending}, nil).Once()

		_, err := f.svc.MarkHoldPaid(ctx, 7)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}

func TestConfirmBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnerConfirmsPending", func(t *testing.T) {
		f := newBookingFixture()
		pending := &models.Booking{ID: 8, Code: "BK-C", OwnerID: 100, RenterID: 200,
			Status: models.StatusPending, Version: 2}
		confirmed := &models.Booking{ID: 8, Code: "BK-C", OwnerID: 100, RenterID: 200,
			Status: models.StatusConfirmed, Version: 3}

		f.repo.On("GetBooking", ctx, int64(8)).Return(pending, nil).Once()
		f.repo.On("ConfirmBooking", ctx, int64(8), int64(2)).Return(nil).Once()
		f.repo.On("GetBooking", ctx, int64(8)).Return(confirmed, nil).Once()
		f.bus.On("PublishJSON", events.EventBookingConfirmed, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(8), confirmed, models.StatusConfirmed).Return(nil).Once()
		f.notif.On("NotifyRenter", ctx, int64(200), mock.Anything).Return(nil).Once()

		result, err := f.svc.ConfirmBooking(ctx, 8, 100)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, result.Status)
		f.repo.AssertExpectations(t)
	})

	t.Run("RenterCannotConfirm", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetBooking", ctx, int64(8)).
			Return(&models.Booking{ID: 8, OwnerID: 100, RenterID: 200, Status: models.StatusPending}, nil).Once()

		_, err := f.svc.ConfirmBooking(ctx, 8, 200)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("NotFromHold", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetBooking", ctx, int64(8)).
			Return(&models.Booking{ID: 8, OwnerID: 100, Status: models.StatusHold}, nil).Once()

		_, err := f.svc.ConfirmBooking(ctx, 8, 100)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}

func TestRejectBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("ReasonRequired", func(t *testing.T) {
		f := newBookingFixture()
		_, err := f.svc.RejectBooking(ctx, 9, 100, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("OwnerRejectsPending", func(t *testing.T) {
		f := newBookingFixture()
		pending := &models.Booking{ID: 9, OwnerID: 100, RenterID: 200,
			Status: models.StatusPending, Version: 2}
		rejected := &models.Booking{ID: 9, OwnerID: 100, RenterID: 200,
			Status: models.StatusRejected, Version: 3, RejectionReason: "double booked"}

		f.repo.On("GetBooking", ctx, int64(9)).Return(pending, nil).Once()
		f.repo.On("RejectBooking", ctx, int64(9), int64(2), "double booked").Return(nil).Once()
		f.repo.On("GetBooking", ctx, int64(9)).Return(rejected, nil).Once()
		f.bus.On("PublishJSON", events.EventBookingRejected, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(9), rejected, models.StatusRejected).Return(nil).Once()
		f.notif.On("NotifyRenter", ctx, int64(200), mock.Anything).Return(nil).Once()

		result, err := f.svc.RejectBooking(ctx, 9, 100, "double booked")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, result.Status)
		f.repo.AssertExpectations(t)
	})
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("RenterCancelsConfirmed", func(t *testing.T) {
		f := newBookingFixture()
		confirmed := &models.Booking{ID: 10, OwnerID: 100, RenterID: 200,
			Status: models.StatusConfirmed, Version: 3}
		cancelled := &models.Booking{ID: 10, OwnerID: 100, RenterID: 200,
			Status: models.StatusCancelled, Version: 4}

		f.repo.On("GetBooking", ctx, int64(10)).Return(confirmed, nil).Once()
		f.repo.On("CancelBooking", ctx, int64(10), int64(3), models.StatusConfirmed, int64(200), "plans changed").Return(nil).Once()
		f.repo.On("GetBooking", ctx, int64(10)).Return(cancelled, nil).Once()
		f.bus.On("PublishJSON", events.EventBookingCancelled, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(10), cancelled, models.StatusCancelled).Return(nil).Once()
		f.notif.On("NotifyOwner", ctx, int64(100), mock.Anything).Return(nil).Once()

		result, err := f.svc.CancelBooking(ctx, 10, 200, "plans changed")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, result.Status)
		f.repo.AssertExpectations(t)
	})

	t.Run("OwnerCancelNotifiesRenter", func(t *testing.T) {
		f := newBookingFixture()
		pending := &models.Booking{ID: 11, OwnerID: 100, RenterID: 200,
			Status: models.StatusPending, Version: 1}
		cancelled := &models.Booking{ID: 11, OwnerID: 100, RenterID: 200,
			Status: models.StatusCancelled, Version: 2}

		f.repo.On("GetBooking", ctx, int64(11)).Return(pending, nil).Once()
		f.repo.On("CancelBooking", ctx, int64(11), int64(1), models.StatusPending, int64(100), "").Return(nil).Once()
		f.repo.On("GetBooking", ctx, int64(11)).Return(cancelled, nil).Once()
		f.bus.On("PublishJSON", events.EventBookingCancelled, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(11), cancelled, models.StatusCancelled).Return(nil).Once()
		f.notif.On("NotifyRenter", ctx, int64(200), mock.Anything).Return(nil).Once()

		_, err := f.svc.CancelBooking(ctx, 11, 100, "")
		require.NoError(t, err)
		f.notif.AssertExpectations(t)
	})

	t.Run("StrangerCannotCancel", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetBooking", ctx, int64(10)).
			Return(&models.Booking{ID: 10, OwnerID: 100, RenterID: 200, Status: models.StatusConfirmed}, nil).Once()

		_, err := f.svc.CancelBooking(ctx, 10, 999, "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("HoldIsNotCancellable", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetBooking", ctx, int64(10)).
			Return(&models.Booking{ID: 10, OwnerID: 100, RenterID: 200, Status: models.StatusHold}, nil).Once()

		_, err := f.svc.CancelBooking(ctx, 10, 200, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}

func TestUpdateBookingStatus(t *testing.T) {
	ctx := context.Background()

	confirmedBooking := func() *models.Booking {
		return &models.Booking{ID: 20, ListingID: 1, OwnerID: 100, RenterID: 200,
			Status: models.StatusConfirmed, Version: 3,
			PickupStatus: models.StepPending, ReturnStatus: models.StepPending}
	}

	// A window guaranteed not to contain the current wall-clock time.
	closedWindow := func() string {
		if time.Now().Hour() < 12 {
			return "10:00 PM - 11:00 PM"
		}
		return "1:00 AM - 2:00 AM"
	}

	t.Run("PickupCompletedActivates", func(t *testing.T) {
		f := newBookingFixture()
		booking := confirmedBooking()
		booking.PickupStatus = models.StepInProgress
		active := &models.Booking{ID: 20, OwnerID: 100, RenterID: 200,
			Status: models.StatusActive, Version: 4, PickupStatus: models.StepCompleted}

		f.repo.On("GetBooking", ctx, int64(20)).Return(booking, nil).Once()
		f.repo.On("GetListing", ctx, int64(1)).Return(publishedListing(), nil).Once()
		f.repo.On("UpdateBookingProgress", ctx, int64(20), int64(3),
			models.StatusActive, models.StepCompleted, models.StepPending,
			mock.AnythingOfType("*time.Time"), (*time.Time)(nil)).Return(nil).Once()
		f.repo.On("GetBooking", ctx, int64(20)).Return(active, nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(20), active, models.StatusActive).Return(nil).Once()

		result, err := f.svc.UpdateBookingStatus(ctx, 20, 100, models.StepCompleted, "")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, result.Status)
		f.repo.AssertExpectations(t)
	})

	t.Run("ReturnCompletedCompletes", func(t *testing.T) {
		f := newBookingFixture()
		booking := confirmedBooking()
		booking.Status = models.StatusActive
		booking.PickupStatus = models.StepCompleted
		booking.ReturnStatus = models.StepInProgress
		done := &models.Booking{ID: 20, OwnerID: 100, RenterID: 200,
			Status: models.StatusCompleted, Version: 4}

		f.repo.On("GetBooking", ctx, int64(20)).Return(booking, nil).Once()
		f.repo.On("GetListing", ctx, int64(1)).Return(publishedListing(), nil).Once()
		f.repo.On("UpdateBookingProgress", ctx, int64(20), int64(3),
			models.StatusCompleted, models.StepCompleted, models.StepCompleted,
			(*time.Time)(nil), mock.AnythingOfType("*time.Time")).Return(nil).Once()
		f.repo.On("GetBooking", ctx, int64(20)).Return(done, nil).Once()
		f.bus.On("PublishJSON", events.EventBookingCompleted, mock.Anything).Return(nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(20), done, models.StatusCompleted).Return(nil).Once()

		result, err := f.svc.UpdateBookingStatus(ctx, 20, 200, "", models.StepCompleted)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, result.Status)
		f.bus.AssertExpectations(t)
	})

	t.Run("CompletedOnlyFromInProgress", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetBooking", ctx, int64(20)).Return(confirmedBooking(), nil).Once()

		_, err := f.svc.UpdateBookingStatus(ctx, 20, 100, models.StepCompleted, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("NoBackwardMoves", func(t *testing.T) {
		f := newBookingFixture()
		booking := confirmedBooking()
		booking.PickupStatus = models.StepInProgress
		f.repo.On("GetBooking", ctx, int64(20)).Return(booking, nil).Once()

		_, err := f.svc.UpdateBookingStatus(ctx, 20, 100, models.StepPending, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("ReturnRequiresPickupCompleted", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetBooking", ctx, int64(20)).Return(confirmedBooking(), nil).Once()

		_, err := f.svc.UpdateBookingStatus(ctx, 20, 100, "", models.StepInProgress)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("PickupOutsideHoursRejected", func(t *testing.T) {
		f := newBookingFixture()
		listing := publishedListing()
		listing.Availability.PickupHours = closedWindow()

		f.repo.On("GetBooking", ctx, int64(20)).Return(confirmedBooking(), nil).Once()
		f.repo.On("GetListing", ctx, int64(1)).Return(listing, nil).Once()

		_, err := f.svc.UpdateBookingStatus(ctx, 20, 100, models.StepInProgress, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("ReturnOutsideHoursRejected", func(t *testing.T) {
		f := newBookingFixture()
		listing := publishedListing()
		listing.Availability.ReturnHours = closedWindow()
		booking := confirmedBooking()
		booking.Status = models.StatusActive
		booking.PickupStatus = models.StepCompleted

		f.repo.On("GetBooking", ctx, int64(20)).Return(booking, nil).Once()
		f.repo.On("GetListing", ctx, int64(1)).Return(listing, nil).Once()

		_, err := f.svc.UpdateBookingStatus(ctx, 20, 200, "", models.StepInProgress)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("PickupWithinHoursAllowed", func(t *testing.T) {
		f := newBookingFixture()
		listing := publishedListing()
		listing.Availability.PickupHours = "12:00 AM - 11:59 PM"
		updated := confirmedBooking()
		updated.PickupStatus = models.StepInProgress
		updated.Version = 4

		f.repo.On("GetBooking", ctx, int64(20)).Return(confirmedBooking(), nil).Once()
		f.repo.On("GetListing", ctx, int64(1)).Return(listing, nil).Once()
		f.repo.On("UpdateBookingProgress", ctx, int64(20), int64(3),
			models.StatusConfirmed, models.StepInProgress, models.StepPending,
			(*time.Time)(nil), (*time.Time)(nil)).Return(nil).Once()
		f.repo.On("GetBooking", ctx, int64(20)).Return(updated, nil).Once()
		f.worker.On("EnqueueTask", ctx, "update_status", int64(20), updated, models.StatusConfirmed).Return(nil).Once()

		result, err := f.svc.UpdateBookingStatus(ctx, 20, 100, models.StepInProgress, "")
		require.NoError(t, err)
		assert.Equal(t, models.StepInProgress, result.PickupStatus)
		f.repo.AssertExpectations(t)
	})

	t.Run("NothingToUpdate", func(t *testing.T) {
		f := newBookingFixture()
		_, err := f.svc.UpdateBookingStatus(ctx, 20, 100, "", "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("NotBeforeConfirmation", func(t *testing.T) {
		f := newBookingFixture()
		f.repo.On("GetBooking", ctx, int64(20)).
			Return(&models.Booking{ID: 20, OwnerID: 100, RenterID: 200, Status: models.StatusPending}, nil).Once()

		_, err := f.svc.UpdateBookingStatus(ctx, 20, 100, models.StepInProgress, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}

func TestGetBookingAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture()
	booking := &models.Booking{ID: 30, OwnerID: 100, RenterID: 200}
	f.repo.On("GetBooking", ctx, int64(30)).Return(booking, nil).Times(3)

	result, err := f.svc.GetBooking(ctx, 30, 200)
	require.NoError(t, err)
	assert.Equal(t, booking, result)

	_, err = f.svc.GetBooking(ctx, 30, 100)
	assert.NoError(t, err)

	_, err = f.svc.GetBooking(ctx, 30, 999)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestReapExpiredHolds(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("ReapsAndPublishes", func(t *testing.T) {
		f := newBookingFixture()
		holds := []*models.Booking{
			{ID: 1, Status: models.StatusHold},
			{ID: 2, Status: models.StatusHold},
		}
		f.repo.On("ListExpiredHolds", ctx, now, 100).Return(holds, nil).Once()
		f.repo.On("ReapHold", ctx, int64(1), now).Return(true, nil).Once()
		f.repo.On("ReapHold", ctx, int64(2), now).Return(false, nil).Once()
		f.index.On("Forget", ctx, int64(1)).Return(nil).Once()
		f.bus.On("PublishJSON", events.EventHoldExpired, mock.Anything).Return(nil).Once()

		reaped, err := f.svc.ReapExpiredHolds(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, reaped)
		f.repo.AssertExpectations(t)
		f.index.AssertExpectations(t)
	})

	t.Run("SurvivesPerHoldErrors", func(t *testing.T) {
		f := newBookingFixture()
		holds := []*models.Booking{
			{ID: 1, Status: models.StatusHold},
			{ID: 2, Status: models.StatusHold},
		}
		f.repo.On("ListExpiredHolds", ctx, now, 100).Return(holds, nil).Once()
		f.repo.On("ReapHold", ctx, int64(1), now).Return(false, errors.New("db locked")).Once()
		f.repo.On("ReapHold", ctx, int64(2), now).Return(true, nil).Once()
		f.index.On("Forget", ctx, int64(2)).Return(nil).Once()
		f.bus.On("PublishJSON", events.EventHoldExpired, mock.Anything).Return(nil).Once()

		reaped, err := f.svc.ReapExpiredHolds(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, reaped)
	})
}
