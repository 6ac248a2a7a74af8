// Package rest exposes the engine over JSON/HTTP.
package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service/availability"
	"chairbook/backend/internal/service/booking"
	"chairbook/backend/internal/service/catalog"
)

type Bookings interface {
	CreateBooking(ctx context.Context, in booking.CreateInput) (domain.Appointment, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CompleteBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CancelBooking(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListBookings(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error)
}

type Slots interface {
	AvailableSlots(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error)
}

// Search finds availability across days and across a shop's providers.
type Search interface {
	NextAvailableSlot(ctx context.Context, q booking.NextSlotQuery) (booking.ProviderSlot, error)
	ShopSlots(ctx context.Context, q booking.ShopSlotsQuery) ([]booking.ProviderSlots, error)
	AvailableProviders(ctx context.Context, q booking.AvailableProvidersQuery) ([]domain.Provider, error)
}

type Templates interface {
	GetWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error)
	UpsertWindow(ctx context.Context, in availability.UpsertWindowInput) (domain.AvailabilityWindow, error)
	DeactivateWindow(ctx context.Context, id uuid.UUID) (domain.AvailabilityWindow, error)
}

type Catalog interface {
	GetService(ctx context.Context, id uuid.UUID) (domain.Service, error)
	UpsertService(ctx context.Context, in catalog.UpsertServiceInput) (domain.Service, error)
	DeactivateService(ctx context.Context, id uuid.UUID) (domain.Service, error)
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	Bookings       Bookings
	Slots          Slots
	Search         Search
	Templates      Templates
	Catalog        Catalog
	MetricsHandler http.Handler
	ReadyChecks    map[string]ReadyCheck
	RequestTimeout time.Duration
	// BodyLimit caps request bodies in bytes.
	BodyLimit int64
}

type handler struct {
	log       *slog.Logger
	bookings  Bookings
	slots     Slots
	search    Search
	templates Templates
	catalog   Catalog
}

func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "http"))
	h := &handler{
		log:       logger,
		bookings:  cfg.Bookings,
		slots:     cfg.Slots,
		templates: cfg.Templates,
		catalog:   cfg.Catalog,
		search:    cfg.Search,
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withAccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(cfg.ReadyChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(api chi.Router) {
		if cfg.RequestTimeout > 0 {
			api.Use(withDefaultTimeout(cfg.RequestTimeout))
		}
		api.Use(middleware.RequestSize(bodyLimit))

		api.Route("/providers/{providerID}", func(p chi.Router) {
			p.Get("/slots", h.getSlots)
			p.Get("/appointments", h.listAppointments)
			p.Get("/windows", h.getWindows)
			p.Post("/windows", h.upsertWindow)
		})
		api.Route("/appointments", func(a chi.Router) {
			a.Post("/", h.createAppointment)
			a.Get("/{id}", h.getAppointment)
			a.Post("/{id}/confirm", h.confirmAppointment)
			a.Post("/{id}/complete", h.completeAppointment)
			a.Post("/{id}/cancel", h.cancelAppointment)
		})
		api.Post("/windows/{id}/deactivate", h.deactivateWindow)
		api.Route("/shops/{shopID}", func(sh chi.Router) {
			sh.Post("/services", h.upsertService)
			sh.Get("/slots", h.getShopSlots)
			sh.Get("/next-slot", h.getNextSlot)
			sh.Get("/providers/available", h.getAvailableProviders)
		})
		api.Get("/services/{id}", h.getService)
		api.Post("/services/{id}/deactivate", h.deactivateService)
	})

	return otelhttp.NewHandler(r, "chairbook.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func readyHandler(checks map[string]ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
