package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"rently/internal/config"
	"rently/internal/domain"
	"rently/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "x-request-id"

// BookingExporter writes a period report and returns the file path.
type BookingExporter interface {
	ExportBookings(ctx context.Context, from, to time.Time) (string, error)
}

// HTTPServer exposes the marketplace API over HTTP.
type HTTPServer struct {
	cfg      config.Config
	bookings domain.BookingService
	listings domain.ListingService
	exporter BookingExporter
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.Config, bookings domain.BookingService, listings domain.ListingService, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, bookings: bookings, listings: listings, logger: logger}
	srv.auth = NewHTTPAuth(cfg.API)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", srv.handleListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", srv.handleConfirmBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/reject", srv.handleRejectBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", srv.handleCancelBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/status", srv.handleBookingStatus)

	mux.HandleFunc("POST /api/v1/listings", srv.handleCreateListing)
	mux.HandleFunc("GET /api/v1/listings", srv.handleOwnerListings)
	mux.HandleFunc("GET /api/v1/listings/{id}", srv.handleGetListing)
	mux.HandleFunc("POST /api/v1/listings/{id}/publish", srv.handlePublishListing)
	mux.HandleFunc("PUT /api/v1/listings/{id}/pricing", srv.handleUpdatePricing)
	mux.HandleFunc("PUT /api/v1/listings/{id}/availability", srv.handleUpdateAvailability)
	mux.HandleFunc("GET /api/v1/listings/{id}/calendar", srv.handleCalendar)
	mux.HandleFunc("GET /api/v1/listings/{id}/availability", srv.handleAvailability)

	mux.HandleFunc("POST /api/v1/payments/webhook", srv.handlePaymentWebhook)
	mux.HandleFunc("GET /api/v1/exports/bookings", srv.handleExportBookings)
	mux.HandleFunc("GET /health", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// SetExporter enables the report download endpoint.
func (s *HTTPServer) SetExporter(e BookingExporter) {
	s.exporter = e
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
