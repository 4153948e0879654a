package service

import (
	"context"
	"time"

	"rently/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateListing(ctx context.Context, l *models.Listing) error {
	return m.Called(ctx, l).Error(0)
}
func (m *mockRepo) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *mockRepo) GetListingsByOwner(ctx context.Context, ownerID int64) ([]*models.Listing, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Listing), args.Error(1)
}
func (m *mockRepo) UpdateListingStatus(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}
func (m *mockRepo) UpdatePricing(ctx context.Context, id, price, deposit int64) error {
	return m.Called(ctx, id, price, deposit).Error(0)
}
func (m *mockRepo) UpdateAvailabilitySettings(ctx context.Context, id int64, s models.AvailabilitySettings) error {
	return m.Called(ctx, id, s).Error(0)
}
func (m *mockRepo) GetCalendar(ctx context.Context, listingID int64, from, to time.Time) ([]models.CalendarDay, error) {
	args := m.Called(ctx, listingID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CalendarDay), args.Error(1)
}
func (m *mockRepo) GetAvailabilityForPeriod(ctx context.Context, listingID int64, start time.Time, days int) ([]*models.DayAvailability, error) {
	args := m.Called(ctx, listingID, start, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DayAvailability), args.Error(1)
}
func (m *mockRepo) CreateBookingHold(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) ConfirmBooking(ctx context.Context, id, v int64) error {
	return m.Called(ctx, id, v).Error(0)
}
func (m *mockRepo) RejectBooking(ctx context.Context, id, v int64, reason string) error {
	return m.Called(ctx, id, v, reason).Error(0)
}
func (m *mockRepo) CancelBooking(ctx context.Context, id, v int64, fromStatus string, by int64, reason string) error {
	return m.Called(ctx, id, v, fromStatus, by, reason).Error(0)
}
func (m *mockRepo) MarkHoldPaid(ctx context.Context, id, v int64) error {
	return m.Called(ctx, id, v).Error(0)
}
func (m *mockRepo) UpdatePaymentURL(ctx context.Context, id int64, url string) error {
	return m.Called(ctx, id, url).Error(0)
}
func (m *mockRepo) UpdateBookingProgress(ctx context.Context, id, v int64, status, pickup, ret string, pickupAt, returnAt *time.Time) error {
	return m.Called(ctx, id, v, status, pickup, ret, pickupAt, returnAt).Error(0)
}
func (m *mockRepo) GetBookingsForRenter(ctx context.Context, renterID int64, status, sortBy string) ([]*models.Booking, error) {
	args := m.Called(ctx, renterID, status, sortBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) GetBookingsForOwner(ctx context.Context, ownerID int64, status, sortBy string) ([]*models.Booking, error) {
	args := m.Called(ctx, ownerID, status, sortBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) ReapHold(ctx context.Context, bookingID int64, now time.Time) (bool, error) {
	args := m.Called(ctx, bookingID, now)
	return args.Bool(0), args.Error(1)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) CreatePaymentLink(ctx context.Context, b *models.Booking) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}

type mockHoldIndex struct {
	mock.Mock
}

func (m *mockHoldIndex) Track(ctx context.Context, bookingID int64, expiresAt time.Time) error {
	return m.Called(ctx, bookingID, expiresAt).Error(0)
}
func (m *mockHoldIndex) Forget(ctx context.Context, bookingID int64) error {
	return m.Called(ctx, bookingID).Error(0)
}
func (m *mockHoldIndex) Due(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyOwner(ctx context.Context, ownerID int64, text string) error {
	return m.Called(ctx, ownerID, text).Error(0)
}
func (m *mockNotifier) NotifyRenter(ctx context.Context, renterID int64, text string) error {
	return m.Called(ctx, renterID, text).Error(0)
}

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error {
	return m.Called(ctx, taskType, bookingID, booking, status).Error(0)
}
