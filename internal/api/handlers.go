package api

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rently/internal/calendar"
	"rently/internal/database"
	"rently/internal/models"
	"rently/internal/service"
)

const userIDHeader = "x-user-id"

// userID reads the authenticated user forwarded by the gateway.
func userID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(userIDHeader))
	if raw == "" {
		return 0, fmt.Errorf("missing %s header", userIDHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s header", userIDHeader)
	}
	return id, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var datesErr *database.DatesUnavailableError
	switch {
	case errors.As(err, &datesErr):
		dates := make([]string, 0, len(datesErr.Dates))
		for _, d := range datesErr.Dates {
			dates = append(dates, calendar.FormatDay(d))
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "dates unavailable",
			"dates": dates,
		})
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrBookingNotFound), errors.Is(err, database.ErrListingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrTxAborted):
		writeError(w, http.StatusServiceUnavailable, "temporary storage failure, retry")
	default:
		s.logger.Error().Err(err).Msg("unhandled api error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type createBookingRequest struct {
	ListingID       int64              `json:"listing_id"`
	StartDate       string             `json:"start_date"`
	EndDate         string             `json:"end_date"`
	Contact         models.ContactInfo `json:"contact"`
	SpecialRequests string             `json:"special_requests"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	renterID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var body createBookingRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start, err := calendar.ParseDay(body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date; expected YYYY-MM-DD")
		return
	}
	end, err := calendar.ParseDay(body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date; expected YYYY-MM-DD")
		return
	}

	booking, err := s.bookings.CreateBooking(r.Context(), &models.BookingRequest{
		ListingID:       body.ListingID,
		RenterID:        renterID,
		StartDate:       start,
		EndDate:         end,
		Contact:         body.Contact,
		SpecialRequests: body.SpecialRequests,
	})
	if err != nil {
		// The hold exists even when the payment provider is down; the
		// client can retry payment or let the hold expire.
		if errors.Is(err, service.ErrPaymentLinkFailed) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":   "payment link unavailable",
				"booking": booking,
			})
			return
		}
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	actorID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.bookings.GetBooking(r.Context(), id, actorID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	actorID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	sortBy := strings.TrimSpace(r.URL.Query().Get("sort"))

	var bookings []*models.Booking
	switch role := r.URL.Query().Get("role"); role {
	case "owner":
		bookings, err = s.bookings.GetOwnerBookings(r.Context(), actorID, status, sortBy)
	case "", "renter":
		bookings, err = s.bookings.GetRenterBookings(r.Context(), actorID, status, sortBy)
	default:
		writeError(w, http.StatusBadRequest, "role must be renter or owner")
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	s.handleOwnerDecision(w, r, func(id, ownerID int64, _ string) (*models.Booking, error) {
		return s.bookings.ConfirmBooking(r.Context(), id, ownerID)
	})
}

func (s *HTTPServer) handleRejectBooking(w http.ResponseWriter, r *http.Request) {
	s.handleOwnerDecision(w, r, func(id, ownerID int64, reason string) (*models.Booking, error) {
		return s.bookings.RejectBooking(r.Context(), id, ownerID, reason)
	})
}

func (s *HTTPServer) handleOwnerDecision(w http.ResponseWriter, r *http.Request,
	decide func(id, ownerID int64, reason string) (*models.Booking, error),
) {
	actorID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	booking, err := decide(id, actorID, body.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	actorID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	booking, err := s.bookings.CancelBooking(r.Context(), id, actorID, body.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	actorID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		PickupStatus string `json:"pickup_status"`
		ReturnStatus string `json:"return_status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.bookings.UpdateBookingStatus(r.Context(), id, actorID, body.PickupStatus, body.ReturnStatus)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type createListingRequest struct {
	Title        string                      `json:"title"`
	Description  string                      `json:"description"`
	PricePerDay  int64                       `json:"price_per_day"`
	Deposit      int64                       `json:"deposit"`
	Status       string                      `json:"status"`
	Availability models.AvailabilitySettings `json:"availability"`
}

func (s *HTTPServer) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var body createListingRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing := &models.Listing{
		OwnerID:      ownerID,
		Title:        body.Title,
		Description:  body.Description,
		PricePerDay:  body.PricePerDay,
		Deposit:      body.Deposit,
		Status:       body.Status,
		Availability: body.Availability,
	}
	if err := s.listings.CreateListing(r.Context(), listing); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (s *HTTPServer) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listing, err := s.listings.GetListing(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *HTTPServer) handleOwnerListings(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	listings, err := s.listings.GetOwnerListings(r.Context(), ownerID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func (s *HTTPServer) handlePublishListing(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.listings.PublishListing(r.Context(), id, ownerID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.ListingPublished})
}

func (s *HTTPServer) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		PricePerDay int64 `json:"price_per_day"`
		Deposit     int64 `json:"deposit"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.listings.UpdatePricing(r.Context(), id, ownerID, body.PricePerDay, body.Deposit); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *HTTPServer) handleUpdateAvailability(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var settings models.AvailabilitySettings
	if err := decodeBody(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.listings.UpdateAvailability(r.Context(), id, ownerID, settings); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	from, err := calendar.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := calendar.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}

	days, err := s.listings.GetCalendar(r.Context(), id, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendar": days})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	if raw := strings.TrimSpace(r.URL.Query().Get("start")); raw != "" {
		if start, err = calendar.ParseDay(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid start; expected YYYY-MM-DD")
			return
		}
	}

	days := 30
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
	}

	availability, err := s.listings.GetAvailability(r.Context(), id, start, days)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": availability})
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "exports are not configured")
		return
	}

	from, err := calendar.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := calendar.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	path, err := s.exporter.ExportBookings(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// handlePaymentWebhook receives the payment provider callback. The provider
// expects a plain text body and retries anything else.
func (s *HTTPServer) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	trID := r.PostFormValue("tr_id")
	trAmount := r.PostFormValue("tr_amount")
	trCRC := r.PostFormValue("tr_crc")
	merchantID := r.PostFormValue("id")

	if secret := s.cfg.Payments.Secret; secret != "" {
		expected := fmt.Sprintf("%x", md5.Sum([]byte(merchantID+trID+trAmount+trCRC+secret)))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(r.PostFormValue("md5sum"))) != 1 {
			http.Error(w, "invalid checksum", http.StatusBadRequest)
			return
		}
	}

	bookingID, err := strconv.ParseInt(trCRC, 10, 64)
	if err != nil || bookingID <= 0 {
		http.Error(w, "invalid tr_crc", http.StatusBadRequest)
		return
	}

	if r.PostFormValue("tr_status") != "TRUE" || r.PostFormValue("tr_paid") != "1" {
		s.logger.Warn().
			Int64("booking_id", bookingID).
			Str("tr_error", r.PostFormValue("tr_error")).
			Msg("payment failed callback")
		fmt.Fprint(w, "OK")
		return
	}

	if _, err := s.bookings.MarkHoldPaid(r.Context(), bookingID); err != nil {
		// Paying twice or paying an already reaped hold is the
		// provider's retry, not a server fault.
		if errors.Is(err, service.ErrInvalidStateTransition) || errors.Is(err, database.ErrBookingNotFound) {
			s.logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("payment callback ignored")
			fmt.Fprint(w, "OK")
			return
		}
		s.logger.Error().Err(err).Int64("booking_id", bookingID).Msg("payment callback failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	fmt.Fprint(w, "OK")
}
