package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service/availability"
	"chairbook/backend/internal/service/catalog"
)

type windowResponse struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	ShopID     string `json:"shop_id"`
	Weekday    int    `json:"weekday"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Active     bool   `json:"active"`
}

func toWindowResponse(w domain.AvailabilityWindow) windowResponse {
	return windowResponse{
		ID:         w.ID.String(),
		ProviderID: w.ProviderID,
		ShopID:     w.ShopID,
		Weekday:    int(w.Weekday),
		Start:      w.Start.String(),
		End:        w.End.String(),
		Active:     w.Active,
	}
}

func (h *handler) getWindows(w http.ResponseWriter, r *http.Request) {
	weekday, err := strconv.Atoi(r.URL.Query().Get("weekday"))
	if err != nil {
		h.badRequest(w, "weekday must be 0 (Sunday) through 6 (Saturday)")
		return
	}
	windows, err := h.templates.GetWindows(r.Context(), chi.URLParam(r, "providerID"), time.Weekday(weekday))
	if err != nil {
		h.writeError(r.Context(), w, "get_windows", err)
		return
	}
	out := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		out = append(out, toWindowResponse(win))
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": out})
}

type upsertWindowRequest struct {
	ID      string `json:"id"`
	ShopID  string `json:"shop_id"`
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func (h *handler) upsertWindow(w http.ResponseWriter, r *http.Request) {
	var req upsertWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	in := availability.UpsertWindowInput{
		ProviderID: chi.URLParam(r, "providerID"),
		ShopID:     req.ShopID,
		Weekday:    time.Weekday(req.Weekday),
	}
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			h.badRequest(w, "id must be a UUID")
			return
		}
		in.ID = id
	}
	var err error
	if in.Start, err = domain.ParseClock(req.Start); err != nil {
		h.badRequest(w, "start must be HH:MM")
		return
	}
	if in.End, err = domain.ParseClock(req.End); err != nil {
		h.badRequest(w, "end must be HH:MM")
		return
	}

	win, err := h.templates.UpsertWindow(r.Context(), in)
	if err != nil {
		h.writeError(r.Context(), w, "upsert_window", err)
		return
	}
	status := http.StatusOK
	if in.ID == uuid.Nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, toWindowResponse(win))
}

func (h *handler) deactivateWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	win, err := h.templates.DeactivateWindow(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "deactivate_window", err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowResponse(win))
}

type serviceResponse struct {
	ID              string `json:"id"`
	ShopID          string `json:"shop_id"`
	Name            string `json:"name"`
	DurationSeconds int    `json:"duration_seconds"`
	PriceCents      int64  `json:"price_cents"`
	Active          bool   `json:"active"`
}

func toServiceResponse(s domain.Service) serviceResponse {
	return serviceResponse{
		ID:              s.ID.String(),
		ShopID:          s.ShopID,
		Name:            s.Name,
		DurationSeconds: s.DurationSeconds,
		PriceCents:      s.PriceCents,
		Active:          s.Active,
	}
}

func (h *handler) getService(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	svc, err := h.catalog.GetService(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "get_service", err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceResponse(svc))
}

type upsertServiceRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationSeconds int    `json:"duration_seconds"`
	PriceCents      int64  `json:"price_cents"`
}

func (h *handler) upsertService(w http.ResponseWriter, r *http.Request) {
	var req upsertServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	in := catalog.UpsertServiceInput{
		ShopID:     chi.URLParam(r, "shopID"),
		Name:       req.Name,
		Duration:   time.Duration(req.DurationSeconds) * time.Second,
		PriceCents: req.PriceCents,
	}
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			h.badRequest(w, "id must be a UUID")
			return
		}
		in.ID = id
	}

	svc, err := h.catalog.UpsertService(r.Context(), in)
	if err != nil {
		h.writeError(r.Context(), w, "upsert_service", err)
		return
	}
	status := http.StatusOK
	if in.ID == uuid.Nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, toServiceResponse(svc))
}

func (h *handler) deactivateService(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	svc, err := h.catalog.DeactivateService(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, "deactivate_service", err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceResponse(svc))
}
