package service

import (
	"context"
	"fmt"
	"time"

	"rently/internal/calendar"
	"rently/internal/domain"
	"rently/internal/models"

	"github.com/rs/zerolog"
)

type ListingService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewListingService(repo domain.Repository, logger *zerolog.Logger) *ListingService {
	return &ListingService{repo: repo, logger: logger}
}

func (s *ListingService) CreateListing(ctx context.Context, listing *models.Listing) error {
	if listing.OwnerID <= 0 {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if listing.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if listing.PricePerDay <= 0 {
		return fmt.Errorf("%w: price per day must be positive", ErrInvalidInput)
	}
	if listing.Deposit < 0 {
		return fmt.Errorf("%w: deposit cannot be negative", ErrInvalidInput)
	}
	if err := validateHours(listing.Availability); err != nil {
		return err
	}
	if listing.Status == "" {
		listing.Status = models.ListingDraft
	}
	if listing.Status != models.ListingDraft && listing.Status != models.ListingPublished {
		return fmt.Errorf("%w: new listings start as draft or published", ErrInvalidInput)
	}
	return s.repo.CreateListing(ctx, listing)
}

func (s *ListingService) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	return s.repo.GetListing(ctx, id)
}

func (s *ListingService) GetOwnerListings(ctx context.Context, ownerID int64) ([]*models.Listing, error) {
	return s.repo.GetListingsByOwner(ctx, ownerID)
}

func (s *ListingService) PublishListing(ctx context.Context, id, ownerID int64) error {
	listing, err := s.ownedListing(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if listing.Status != models.ListingDraft && listing.Status != models.ListingExpired {
		return fmt.Errorf("%w: cannot publish from %q", ErrInvalidStateTransition, listing.Status)
	}
	return s.repo.UpdateListingStatus(ctx, id, models.ListingPublished)
}

func (s *ListingService) UpdatePricing(ctx context.Context, id, ownerID, pricePerDay, deposit int64) error {
	if pricePerDay <= 0 || deposit < 0 {
		return fmt.Errorf("%w: invalid pricing", ErrInvalidInput)
	}
	if _, err := s.ownedListing(ctx, id, ownerID); err != nil {
		return err
	}
	return s.repo.UpdatePricing(ctx, id, pricePerDay, deposit)
}

func (s *ListingService) UpdateAvailability(ctx context.Context, id, ownerID int64, settings models.AvailabilitySettings) error {
	if err := validateHours(settings); err != nil {
		return err
	}
	if _, err := s.ownedListing(ctx, id, ownerID); err != nil {
		return err
	}
	return s.repo.UpdateAvailabilitySettings(ctx, id, settings)
}

func (s *ListingService) GetCalendar(ctx context.Context, listingID int64, from, to time.Time) ([]models.CalendarDay, error) {
	return s.repo.GetCalendar(ctx, listingID, calendar.DayKey(from), calendar.DayKey(to))
}

func (s *ListingService) GetAvailability(ctx context.Context, listingID int64, startDate time.Time, days int) ([]*models.DayAvailability, error) {
	if days <= 0 || days > 366 {
		return nil, fmt.Errorf("%w: days must be between 1 and 366", ErrInvalidInput)
	}
	return s.repo.GetAvailabilityForPeriod(ctx, listingID, calendar.DayKey(startDate), days)
}

func (s *ListingService) ownedListing(ctx context.Context, id, ownerID int64) (*models.Listing, error) {
	listing, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: listing belongs to someone else", ErrUnauthorized)
	}
	return listing, nil
}

func validateHours(settings models.AvailabilitySettings) error {
	for _, spec := range []string{settings.PickupHours, settings.ReturnHours} {
		if spec == "" {
			continue
		}
		if !calendar.ValidHoursSpec(spec) {
			return fmt.Errorf("%w: malformed hours %q", ErrInvalidInput, spec)
		}
	}
	return nil
}
