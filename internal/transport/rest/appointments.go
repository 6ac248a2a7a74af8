package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service/booking"
)

const idempotencyHeader = "Idempotency-Key"

type appointmentResponse struct {
	ID              string     `json:"id"`
	ProviderID      string     `json:"provider_id"`
	ShopID          string     `json:"shop_id"`
	ClientID        string     `json:"client_id"`
	ServiceID       string     `json:"service_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationSeconds int        `json:"duration_seconds"`
	PriceCents      int64      `json:"price_cents"`
	Status          string     `json:"status"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:              a.ID.String(),
		ProviderID:      a.ProviderID,
		ShopID:          a.ShopID,
		ClientID:        a.ClientID,
		ServiceID:       a.ServiceID.String(),
		StartTime:       a.StartTime.UTC(),
		EndTime:         a.EndTime.UTC(),
		DurationSeconds: a.DurationSeconds,
		PriceCents:      a.PriceCents,
		Status:          string(a.Status),
		CancelReason:    a.CancelReason,
		ConfirmedAt:     a.ConfirmedAt,
		CompletedAt:     a.CompletedAt,
		CancelledAt:     a.CancelledAt,
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

func (h *handler) getSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID, err := uuid.Parse(q.Get("service_id"))
	if err != nil {
		h.badRequest(w, "service_id must be a UUID")
		return
	}

	slots, err := h.slots.AvailableSlots(r.Context(), booking.SlotsQuery{
		ProviderID: chi.URLParam(r, "providerID"),
		ShopID:     q.Get("shop_id"),
		ServiceID:  serviceID,
		Date:       q.Get("date"),
	})
	if err != nil {
		h.writeError(r.Context(), w, "available_slots", err)
		return
	}

	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"slots": out})
}

type createAppointmentRequest struct {
	ProviderID string    `json:"provider_id"`
	ShopID     string    `json:"shop_id"`
	ClientID   string    `json:"client_id"`
	ServiceID  string    `json:"service_id"`
	StartTime  time.Time `json:"start_time"`
}

func (h *handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		h.badRequest(w, "service_id must be a UUID")
		return
	}
	if req.StartTime.IsZero() {
		h.badRequest(w, "start_time is required")
		return
	}

	appt, err := h.bookings.CreateBooking(r.Context(), booking.CreateInput{
		ProviderID:     req.ProviderID,
		ShopID:         req.ShopID,
		ClientID:       req.ClientID,
		ServiceID:      serviceID,
		Start:          req.StartTime,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	})
	if err != nil {
		h.writeError(r.Context(), w, "create_appointment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.bookings.GetBooking(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "get_appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		h.badRequest(w, "from must be an RFC3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		h.badRequest(w, "to must be an RFC3339 timestamp")
		return
	}

	appts, err := h.bookings.ListBookings(r.Context(), chi.URLParam(r, "providerID"), from, to)
	if err != nil {
		h.writeError(r.Context(), w, "list_appointments", err)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

func (h *handler) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.bookings.ConfirmBooking(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "confirm_appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handler) completeAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.bookings.CompleteBooking(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "complete_appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, err.Error())
		return
	}
	appt, err := h.bookings.CancelBooking(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(r.Context(), w, "cancel_appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handler) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.badRequest(w, param+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON returns io.EOF for an empty body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return errors.New("malformed JSON body")
	}
	return nil
}
