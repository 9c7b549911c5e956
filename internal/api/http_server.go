package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rentbook/internal/admission"
	"rentbook/internal/config"
	"rentbook/internal/export"
	"rentbook/internal/interval"
	"rentbook/internal/metrics"
	"rentbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	codeInvalidRequest      = "InvalidRequest"
	codeUnauthorized        = "Unauthorized"
	codeRateLimited         = "RateLimited"
	codeInfrastructureError = "InfrastructureError"

	maxBodyBytes   = 1 << 16
	maxExportDays  = 366
	exportMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ReservationService is the admission API the transports expose.
type ReservationService interface {
	Admit(ctx context.Context, req admission.Request, userID string) (*admission.Admission, error)
	Advise(ctx context.Context, req admission.Request) (*admission.Advice, error)
	Cancel(ctx context.Context, reservationID, requesterID string) error
	Reservations(ctx context.Context, listingID string) ([]models.Reservation, error)
	ReservationsInRange(ctx context.Context, listingID string, from, to time.Time) ([]models.Reservation, error)
	Calendar(ctx context.Context, listingID string, day time.Time) (*admission.Calendar, error)
	Listing(ctx context.Context, id string) (*models.Listing, error)
}

// HTTPServer exposes the reservation API over JSON/HTTP.
type HTTPServer struct {
	cfg      *config.APIConfig
	service  ReservationService
	exporter *export.Exporter
	auth     *Authenticator
	ready    func(context.Context) error
	server   *http.Server
	log      zerolog.Logger
	now      func() time.Time
}

// NewHTTPServer builds the HTTP API. ready backs /readyz and may be nil.
func NewHTTPServer(
	cfg *config.APIConfig,
	service ReservationService,
	exporter *export.Exporter,
	ready func(context.Context) error,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		service:  service,
		exporter: exporter,
		auth:     NewAuthenticator(cfg),
		ready:    ready,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the routed handler with logging applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/reservations", s.protect(permWriteReservations, s.handleAdmit))
	mux.Handle("POST /api/v1/reservations/check", s.protect(permCheckReservations, s.handleCheck))
	mux.Handle("DELETE /api/v1/reservations/{id}", s.protect(permWriteReservations, s.handleCancel))
	mux.Handle("GET /api/v1/listings/{id}/reservations", s.protect(permReadCalendar, s.handleReservations))
	mux.Handle("GET /api/v1/listings/{id}/calendar", s.protect(permReadCalendar, s.handleCalendar))
	mux.Handle("GET /api/v1/listings/{id}/export", s.protect(permExport, s.handleExport))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	return s.loggingMiddleware(mux)
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// protect applies API-key auth, the permission check and the rate limit.
func (s *HTTPServer) protect(permission string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := strings.TrimSpace(r.Header.Get(s.auth.apiKeyHeader))
		extra := strings.TrimSpace(r.Header.Get(s.auth.extraHeader))

		if err := s.auth.Check(apiKey, extra, permission); err != nil {
			statusCode := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				statusCode = http.StatusForbidden
			}
			writeError(w, statusCode, codeUnauthorized, err.Error())
			return
		}

		if !s.auth.Allow(clientKey(apiKey, r)) {
			writeError(w, http.StatusTooManyRequests, codeRateLimited, errRateLimitExceeded.Error())
			return
		}
		next(w, r)
	})
}

func clientKey(apiKey string, r *http.Request) string {
	if apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(s.auth.userIDHeader))
	if id == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "user id header is required")
		return "", false
	}
	return id, true
}

func (s *HTTPServer) handleAdmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req admission.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)); key != "" {
		req.IdempotencyKey = key
	}

	adm, err := s.service.Admit(r.Context(), req, userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	statusCode := http.StatusCreated
	if adm.Replayed {
		statusCode = http.StatusOK
	}
	writeJSON(w, statusCode, map[string]any{
		"reservation": newReservationResponse(adm.Reservation),
		"replayed":    adm.Replayed,
	})
}

func (s *HTTPServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.userID(w, r); !ok {
		return
	}

	var req admission.Request
	if !decodeBody(w, r, &req) {
		return
	}

	advice, err := s.service.Advise(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advice)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	if err := s.service.Cancel(r.Context(), r.PathValue("id"), userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.userID(w, r); !ok {
		return
	}

	reservations, err := s.service.Reservations(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]reservationResponse, 0, len(reservations))
	for i := range reservations {
		out = append(out, newReservationResponse(&reservations[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": out})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	day := interval.Day(s.now())
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := interval.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(admission.CodeInvalidDateFormat), "invalid date format; expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	cal, err := s.service.Calendar(r.Context(), r.PathValue("id"), day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, codeInvalidRequest, "export is disabled")
		return
	}

	today := interval.Day(s.now())
	from, ok := queryDate(w, r, "from", today)
	if !ok {
		return
	}
	to, ok := queryDate(w, r, "to", from.AddDate(0, 0, models.DefaultCalendarDays-1))
	if !ok {
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "from must not be after to")
		return
	}
	if interval.DayNumber(to)-interval.DayNumber(from) >= maxExportDays {
		writeError(w, http.StatusBadRequest, codeInvalidRequest,
			fmt.Sprintf("export period is limited to %d days", maxExportDays))
		return
	}

	listingID := r.PathValue("id")
	listing, err := s.service.Listing(r.Context(), listingID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	reservations, err := s.service.ReservationsInRange(r.Context(), listingID, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("save") == "1" {
		filePath, err := s.exporter.Save(listing, reservations, from, to)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.log.Info().Str("listing_id", listingID).Str("path", filePath).Msg("Export saved")
		writeJSON(w, http.StatusCreated, map[string]string{"file": filepath.Base(filePath)})
		return
	}

	w.Header().Set("Content-Type", exportMIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(listing, from, to)))
	if err := s.exporter.Write(w, listing, reservations, from, to); err != nil {
		// headers are already sent
		s.log.Error().Err(err).Str("listing_id", listingID).Msg("Failed to write export")
	}
}

func queryDate(w http.ResponseWriter, r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	t, err := interval.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(admission.CodeInvalidDateFormat),
			fmt.Sprintf("invalid %s date; expected YYYY-MM-DD", name))
		return time.Time{}, false
	}
	return t, true
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps admission errors onto HTTP statuses.
// Infrastructure details are logged, never returned to the client.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := admission.AsRejection(err); ok {
		writeJSON(w, statusForCode(rej.Code), rej)
		return
	}

	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, codeInfrastructureError, "Internal error, please retry later")
}

func statusForCode(code admission.Code) int {
	switch code {
	case admission.CodeListingNotFound, admission.CodeReservationNotFound:
		return http.StatusNotFound
	case admission.CodeForbidden:
		return http.StatusForbidden
	case admission.CodeIdempotencyConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// reservationResponse is the wire shape of a reservation: dates as YYYY-MM-DD, hours as HH:MM.
type reservationResponse struct {
	ID              string    `json:"id"`
	ListingID       string    `json:"listingId"`
	UserID          string    `json:"userId"`
	BookingType     string    `json:"bookingType"`
	StartDate       string    `json:"startDate"`
	EndDate         string    `json:"endDate"`
	StartTime       string    `json:"startTime,omitempty"`
	EndTime         string    `json:"endTime,omitempty"`
	TotalPrice      int64     `json:"totalPrice"`
	HasLateCheckout bool      `json:"hasLateCheckout"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newReservationResponse(r *models.Reservation) reservationResponse {
	resp := reservationResponse{
		ID:              r.ID,
		ListingID:       r.ListingID,
		UserID:          r.UserID,
		BookingType:     string(r.BookingType),
		StartDate:       interval.DayKey(r.StartDate),
		EndDate:         interval.DayKey(r.EndDate),
		TotalPrice:      r.TotalPrice,
		HasLateCheckout: r.HasLateCheckout,
		CreatedAt:       r.CreatedAt,
	}
	if r.HasHours() {
		resp.StartTime = interval.FormatHour(*r.StartHour)
		resp.EndTime = interval.FormatHour(*r.EndHour)
	}
	return resp
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.IncHTTP(pattern, strconv.Itoa(recorder.status))

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"code": code, "message": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
