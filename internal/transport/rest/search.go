package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chairbook/backend/internal/service/booking"
)

type providerSlotsResponse struct {
	ProviderID string   `json:"provider_id"`
	Slots      []string `json:"slots"`
}

type nextSlotResponse struct {
	ProviderID string `json:"provider_id"`
	StartTime  string `json:"start_time"`
}

type providerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *handler) getShopSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID, err := uuid.Parse(q.Get("service_id"))
	if err != nil {
		h.badRequest(w, "service_id must be a UUID")
		return
	}

	found, err := h.search.ShopSlots(r.Context(), booking.ShopSlotsQuery{
		ShopID:    chi.URLParam(r, "shopID"),
		ServiceID: serviceID,
		Date:      q.Get("date"),
	})
	if err != nil {
		h.writeError(r.Context(), w, "shop_slots", err)
		return
	}

	out := make([]providerSlotsResponse, 0, len(found))
	for _, ps := range found {
		slots := make([]string, 0, len(ps.Slots))
		for _, s := range ps.Slots {
			slots = append(slots, s.UTC().Format(time.RFC3339))
		}
		out = append(out, providerSlotsResponse{ProviderID: ps.ProviderID, Slots: slots})
	}
	writeJSON(w, http.StatusOK, map[string][]providerSlotsResponse{"providers": out})
}

func (h *handler) getNextSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID, err := uuid.Parse(q.Get("service_id"))
	if err != nil {
		h.badRequest(w, "service_id must be a UUID")
		return
	}

	next, err := h.search.NextAvailableSlot(r.Context(), booking.NextSlotQuery{
		ProviderID: q.Get("provider_id"),
		ShopID:     chi.URLParam(r, "shopID"),
		ServiceID:  serviceID,
		From:       q.Get("from"),
	})
	if err != nil {
		h.writeError(r.Context(), w, "next_available_slot", err)
		return
	}
	writeJSON(w, http.StatusOK, nextSlotResponse{
		ProviderID: next.ProviderID,
		StartTime:  next.Start.UTC().Format(time.RFC3339),
	})
}

func (h *handler) getAvailableProviders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID, err := uuid.Parse(q.Get("service_id"))
	if err != nil {
		h.badRequest(w, "service_id must be a UUID")
		return
	}
	start, err := time.Parse(time.RFC3339, q.Get("start_time"))
	if err != nil {
		h.badRequest(w, "start_time must be an RFC3339 timestamp")
		return
	}

	providers, err := h.search.AvailableProviders(r.Context(), booking.AvailableProvidersQuery{
		ShopID:    chi.URLParam(r, "shopID"),
		ServiceID: serviceID,
		Start:     start,
	})
	if err != nil {
		h.writeError(r.Context(), w, "available_providers", err)
		return
	}

	out := make([]providerResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerResponse{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, http.StatusOK, map[string][]providerResponse{"providers": out})
}
