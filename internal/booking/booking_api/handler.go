package booking_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type BookingService interface {
	Book(ctx context.Context, userID, eventID string) (*models.Booking, error)
	Cancel(ctx context.Context, caller models.Identity, bookingID string) (*models.Booking, error)
}

type QueryService interface {
	ListMyBookings(ctx context.Context, userID string) ([]models.Booking, error)
	EventBookings(ctx context.Context, eventID string) ([]models.Booking, error)
	EventStats(ctx context.Context, eventID string) (*models.EventStats, error)
}

type Handler struct {
	Bookings BookingService
	Queries  QueryService
	Logger   *logger.Logger
}

func NewHandler(bookings BookingService, queries QueryService, log *logger.Logger) *Handler {
	return &Handler{Bookings: bookings, Queries: queries, Logger: log}
}

// RegisterRoutes mounts the booking endpoints. The router must already run
// auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/bookings", h.CreateBooking)
	r.Get("/bookings/me", h.ListMyBookings)
	r.Delete("/bookings/{bookingId}", h.CancelBooking)
	r.Get("/events/{eventId}/stats", h.GetEventStats)
	r.With(auth.RequireRole(models.RoleAdmin)).Get("/events/{eventId}/bookings", h.ListEventBookings)
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req models.BookingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	if req.EventID == "" {
		h.writeError(w, http.StatusBadRequest, "event_id is required")
		return
	}

	b, err := h.Bookings.Book(r.Context(), identity.UserID, req.EventID)
	if err != nil {
		h.writeServiceError(w, "CreateBooking", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateBooking: booking %s confirmed for user %s", b.ID, identity.UserID))
	h.writeSuccess(w, http.StatusCreated, "Booking confirmed", b)
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	bookings, err := h.Queries.ListMyBookings(r.Context(), identity.UserID)
	if err != nil {
		h.writeServiceError(w, "ListMyBookings", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Bookings retrieved", bookings)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")

	b, err := h.Bookings.Cancel(r.Context(), identity, bookingID)
	if err != nil {
		h.writeServiceError(w, "CancelBooking", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CancelBooking: booking %s cancelled by %s", bookingID, identity.UserID))
	h.writeSuccess(w, http.StatusOK, "Booking cancelled", b)
}

func (h *Handler) GetEventStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}

	stats, err := h.Queries.EventStats(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeServiceError(w, "GetEventStats", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Event stats retrieved", stats)
}

func (h *Handler) ListEventBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Queries.EventBookings(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeServiceError(w, "ListEventBookings", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, "Event bookings retrieved", bookings)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return identity, ok
}

// writeServiceError maps domain errors to status codes. Anything unexpected
// becomes a 500 with a generic message; the cause only goes to the log.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrBookingNotFound):
		h.Logger.Info("API", fmt.Sprintf("%s: %v", op, err))
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrNoCapacity),
		errors.Is(err, booking.ErrAlreadyBooked),
		errors.Is(err, booking.ErrInvalidRequest):
		h.Logger.Info("API", fmt.Sprintf("%s: %v", op, err))
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		h.writeError(w, http.StatusInternalServerError, "could not process the booking, please try again")
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	if err := utils.WriteSuccess(w, status, message, data); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errMsg string) {
	if err := utils.WriteError(w, status, errMsg); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode error response: %v", err))
	}
}
