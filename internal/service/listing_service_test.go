package service

import (
	"context"
	"io"
	"testing"
	"time"

	"rently/internal/calendar"
	"rently/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newListingService() (*ListingService, *mockRepo) {
	repo := new(mockRepo)
	logger := zerolog.New(io.Discard)
	return NewListingService(repo, &logger), repo
}

func TestCreateListingValidation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newListingService()

	cases := []struct {
		name    string
		mutate  func(*models.Listing)
		wantErr error
	}{
		{"MissingOwner", func(l *models.Listing) { l.OwnerID = 0 }, ErrInvalidInput},
		{"MissingTitle", func(l *models.Listing) { l.Title = "" }, ErrInvalidInput},
		{"ZeroPrice", func(l *models.Listing) { l.PricePerDay = 0 }, ErrInvalidInput},
		{"NegativeDeposit", func(l *models.Listing) { l.Deposit = -1 }, ErrInvalidInput},
		{"BadHours", func(l *models.Listing) { l.Availability.PickupHours = "morningish" }, ErrInvalidInput},
		{"BadInitialStatus", func(l *models.Listing) { l.Status = models.ListingBoosted }, ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			listing := &models.Listing{
				OwnerID:     100,
				Title:       "Ladder",
				PricePerDay: 500,
			}
			tc.mutate(listing)
			err := svc.CreateListing(ctx, listing)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("DefaultsToDraft", func(t *testing.T) {
		listing := &models.Listing{OwnerID: 100, Title: "Ladder", PricePerDay: 500,
			Availability: models.AvailabilitySettings{PickupHours: "9:00 AM - 5:00 PM"}}
		repo.On("CreateListing", ctx, listing).Return(nil).Once()

		require.NoError(t, svc.CreateListing(ctx, listing))
		assert.Equal(t, models.ListingDraft, listing.Status)
		repo.AssertExpectations(t)
	})
}

func TestPublishListing(t *testing.T) {
	ctx := context.Background()

	t.Run("DraftPublishes", func(t *testing.T) {
		svc, repo := newListingService()
		repo.On("GetListing", ctx, int64(1)).
			Return(&models.Listing{ID: 1, OwnerID: 100, Status: models.ListingDraft}, nil).Once()
		repo.On("UpdateListingStatus", ctx, int64(1), models.ListingPublished).Return(nil).Once()

		require.NoError(t, svc.PublishListing(ctx, 1, 100))
		repo.AssertExpectations(t)
	})

	t.Run("NotTheOwner", func(t *testing.T) {
		svc, repo := newListingService()
		repo.On("GetListing", ctx, int64(1)).
			Return(&models.Listing{ID: 1, OwnerID: 100, Status: models.ListingDraft}, nil).Once()

		err := svc.PublishListing(ctx, 1, 200)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("AlreadyPublished", func(t *testing.T) {
		svc, repo := newListingService()
		repo.On("GetListing", ctx, int64(1)).
			Return(&models.Listing{ID: 1, OwnerID: 100, Status: models.ListingPublished}, nil).Once()

		err := svc.PublishListing(ctx, 1, 100)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})
}

func TestUpdatePricingValidation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newListingService()

	err := svc.UpdatePricing(ctx, 1, 100, 0, 100)
	assert.ErrorIs(t, err, ErrInvalidInput)

	repo.On("GetListing", ctx, int64(1)).
		Return(&models.Listing{ID: 1, OwnerID: 100}, nil).Once()
	repo.On("UpdatePricing", ctx, int64(1), int64(2500), int64(0)).Return(nil).Once()
	require.NoError(t, svc.UpdatePricing(ctx, 1, 100, 2500, 0))
	repo.AssertExpectations(t)
}

func TestUpdateAvailability(t *testing.T) {
	ctx := context.Background()
	svc, repo := newListingService()

	bad := models.AvailabilitySettings{ReturnHours: "sometime"}
	err := svc.UpdateAvailability(ctx, 1, 100, bad)
	assert.ErrorIs(t, err, ErrInvalidInput)

	good := models.AvailabilitySettings{Months: []string{"june"}, ReturnHours: "10:00 AM - 6:00 PM"}
	repo.On("GetListing", ctx, int64(1)).
		Return(&models.Listing{ID: 1, OwnerID: 100}, nil).Once()
	repo.On("UpdateAvailabilitySettings", ctx, int64(1), good).Return(nil).Once()
	require.NoError(t, svc.UpdateAvailability(ctx, 1, 100, good))
	repo.AssertExpectations(t)
}

func TestGetAvailabilityNormalizesStart(t *testing.T) {
	ctx := context.Background()
	svc, repo := newListingService()

	noisy := time.Date(2025, 6, 1, 15, 42, 0, 0, time.Local)
	repo.On("GetAvailabilityForPeriod", ctx, int64(1), calendar.DayKey(noisy), 7).
		Return([]*models.DayAvailability{}, nil).Once()

	_, err := svc.GetAvailability(ctx, 1, noisy, 7)
	require.NoError(t, err)
	repo.AssertExpectations(t)

	_, err = svc.GetAvailability(ctx, 1, noisy, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	repo.AssertNotCalled(t, "GetAvailabilityForPeriod", mock.Anything, mock.Anything, mock.Anything, 0)
}
