package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service"
	"chairbook/backend/internal/service/availability"
	"chairbook/backend/internal/service/booking"
	"chairbook/backend/internal/service/catalog"
	"chairbook/backend/internal/store"
)

var (
	apptID    = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	serviceID = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	start     = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
)

func sampleAppointment(status domain.Status) domain.Appointment {
	return domain.Appointment{
		ID:              apptID,
		ProviderID:      "p1",
		ShopID:          "s1",
		ClientID:        "c1",
		ServiceID:       serviceID,
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
		DurationSeconds: 1800,
		PriceCents:      2500,
		Status:          status,
	}
}

func newTestRouter(b *fakeBookings, t *fakeTemplates, c *fakeCatalog) http.Handler {
	if b == nil {
		b = &fakeBookings{}
	}
	if t == nil {
		t = &fakeTemplates{}
	}
	if c == nil {
		c = &fakeCatalog{}
	}
	return NewRouter(Config{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Bookings:       b,
		Slots:          b,
		Templates:      t,
		Catalog:        c,
		RequestTimeout: time.Second,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetSlots(t *testing.T) {
	var got booking.SlotsQuery
	h := newTestRouter(&fakeBookings{
		slotsFn: func(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error) {
			got = q
			return []time.Time{start, start.Add(15 * time.Minute)}, nil
		},
	}, nil, nil)

	rec := do(t, h, http.MethodGet, "/v1/providers/p1/slots?shop_id=s1&service_id="+serviceID.String()+"&date=2026-01-05", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Slots []string `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"2026-01-05T10:00:00Z", "2026-01-05T10:15:00Z"}, body.Slots)
	assert.Equal(t, booking.SlotsQuery{ProviderID: "p1", ShopID: "s1", ServiceID: serviceID, Date: "2026-01-05"}, got)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestGetSlots_BadServiceID(t *testing.T) {
	h := newTestRouter(nil, nil, nil)
	rec := do(t, h, http.MethodGet, "/v1/providers/p1/slots?shop_id=s1&service_id=nope&date=2026-01-05", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAppointment(t *testing.T) {
	var got booking.CreateInput
	h := newTestRouter(&fakeBookings{
		createFn: func(ctx context.Context, in booking.CreateInput) (domain.Appointment, error) {
			got = in
			return sampleAppointment(domain.StatusPending), nil
		},
	}, nil, nil)

	body := fmt.Sprintf(`{"provider_id":"p1","shop_id":"s1","client_id":"c1","service_id":%q,"start_time":"2026-01-05T10:00:00Z"}`, serviceID)
	rec := do(t, h, http.MethodPost, "/v1/appointments", body, "Idempotency-Key", " k1 ")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, "k1", got.IdempotencyKey)
	assert.True(t, got.Start.Equal(start))
	assert.Equal(t, serviceID, got.ServiceID)

	var resp appointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, 1800, resp.DurationSeconds)
	assert.Equal(t, int64(2500), resp.PriceCents)
}

func TestCreateAppointment_LeavesDomainLoggingToService(t *testing.T) {
	var logs bytes.Buffer
	h := NewRouter(Config{
		Logger: slog.New(slog.NewJSONHandler(&logs, nil)),
		Bookings: &fakeBookings{
			createFn: func(ctx context.Context, in booking.CreateInput) (domain.Appointment, error) {
				return sampleAppointment(domain.StatusPending), nil
			},
		},
		RequestTimeout: time.Second,
	})

	body := fmt.Sprintf(`{"provider_id":"p1","shop_id":"s1","client_id":"c1","service_id":%q,"start_time":"2026-01-05T10:00:00Z"}`, serviceID)
	rec := do(t, h, http.MethodPost, "/v1/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, 1, strings.Count(logs.String(), "\n"), logs.String())
	assert.Contains(t, logs.String(), `"msg":"http request"`)
	assert.NotContains(t, logs.String(), "appointment created")
}

func TestCreateAppointment_RejectsMalformedBody(t *testing.T) {
	h := newTestRouter(nil, nil, nil)

	rec := do(t, h, http.MethodPost, "/v1/appointments", `{"provider_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/appointments", fmt.Sprintf(`{"service_id":%q}`, serviceID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"validation", service.Invalid("client_id is required"), http.StatusBadRequest, "invalid_request"},
		{"not found", fmt.Errorf("service x: %w", store.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", store.ErrConflict, http.StatusConflict, "conflict"},
		{"idempotency", store.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
		{"slot unavailable", store.ErrSlotUnavailable, http.StatusUnprocessableEntity, "slot_unavailable"},
		{"transient", fmt.Errorf("%w: serialization", store.ErrTransient), http.StatusServiceUnavailable, "unavailable"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&fakeBookings{
				createFn: func(ctx context.Context, in booking.CreateInput) (domain.Appointment, error) {
					return domain.Appointment{}, tt.err
				},
			}, nil, nil)
			body := fmt.Sprintf(`{"provider_id":"p1","shop_id":"s1","client_id":"c1","service_id":%q,"start_time":"2026-01-05T10:00:00Z"}`, serviceID)
			rec := do(t, h, http.MethodPost, "/v1/appointments", body)
			require.Equal(t, tt.want, rec.Code)

			var resp errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
		})
	}
}

func TestTransitions(t *testing.T) {
	var reason string
	h := newTestRouter(&fakeBookings{
		confirmFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
			return sampleAppointment(domain.StatusConfirmed), nil
		},
		completeFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrInvalidTransition
		},
		cancelFn: func(ctx context.Context, id uuid.UUID, r string) (domain.Appointment, error) {
			reason = r
			a := sampleAppointment(domain.StatusCancelled)
			a.CancelReason = r
			return a, nil
		},
	}, nil, nil)
	base := "/v1/appointments/" + apptID.String()

	rec := do(t, h, http.MethodPost, base+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"CONFIRMED"`)

	rec = do(t, h, http.MethodPost, base+"/complete", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_transition")

	rec = do(t, h, http.MethodPost, base+"/cancel", `{"reason":"sick"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sick", reason)

	rec = do(t, h, http.MethodPost, base+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", reason)

	rec = do(t, h, http.MethodPost, "/v1/appointments/not-a-uuid/confirm", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAppointments(t *testing.T) {
	h := newTestRouter(&fakeBookings{
		listFn: func(ctx context.Context, providerID string, from, to time.Time) ([]domain.Appointment, error) {
			assert.Equal(t, "p1", providerID)
			assert.True(t, to.Sub(from) == 24*time.Hour)
			return []domain.Appointment{sampleAppointment(domain.StatusPending)}, nil
		},
	}, nil, nil)

	rec := do(t, h, http.MethodGet, "/v1/providers/p1/appointments?from=2026-01-05T00:00:00Z&to=2026-01-06T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), apptID.String())

	rec = do(t, h, http.MethodGet, "/v1/providers/p1/appointments?from=yesterday&to=2026-01-06T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWindows(t *testing.T) {
	var got availability.UpsertWindowInput
	h := newTestRouter(nil, &fakeTemplates{
		upsertFn: func(ctx context.Context, in availability.UpsertWindowInput) (domain.AvailabilityWindow, error) {
			got = in
			return domain.AvailabilityWindow{ID: uuid.New(), ProviderID: in.ProviderID, ShopID: in.ShopID, Weekday: in.Weekday, Start: in.Start, End: in.End, Active: true}, nil
		},
		getFn: func(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error) {
			assert.Equal(t, time.Monday, weekday)
			return nil, nil
		},
	}, nil)

	rec := do(t, h, http.MethodPost, "/v1/providers/p1/windows", `{"shop_id":"s1","weekday":1,"start":"09:00","end":"12:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.NewClock(9, 0), got.Start)
	assert.Equal(t, domain.NewClock(12, 0), got.End)
	assert.Contains(t, rec.Body.String(), `"start":"09:00"`)

	rec = do(t, h, http.MethodPost, "/v1/providers/p1/windows", `{"shop_id":"s1","weekday":1,"start":"9am","end":"12:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/providers/p1/windows?weekday=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"windows":[]}`, rec.Body.String())
}

func TestWindowOverlapIsConflict(t *testing.T) {
	h := newTestRouter(nil, &fakeTemplates{
		upsertFn: func(ctx context.Context, in availability.UpsertWindowInput) (domain.AvailabilityWindow, error) {
			return domain.AvailabilityWindow{}, store.ErrOverlap
		},
	}, nil)
	rec := do(t, h, http.MethodPost, "/v1/providers/p1/windows", `{"shop_id":"s1","weekday":1,"start":"09:00","end":"12:00"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServices(t *testing.T) {
	var got catalog.UpsertServiceInput
	h := newTestRouter(nil, nil, &fakeCatalog{
		upsertFn: func(ctx context.Context, in catalog.UpsertServiceInput) (domain.Service, error) {
			got = in
			return domain.Service{ID: serviceID, ShopID: in.ShopID, Name: in.Name, DurationSeconds: int(in.Duration / time.Second), Active: true}, nil
		},
		deactivateFn: func(ctx context.Context, id uuid.UUID) (domain.Service, error) {
			return domain.Service{}, store.ErrNotFound
		},
	})

	rec := do(t, h, http.MethodPost, "/v1/shops/s1/services", `{"name":"Haircut","duration_seconds":1800,"price_cents":2500}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 30*time.Minute, got.Duration)
	assert.Equal(t, "s1", got.ShopID)

	rec = do(t, h, http.MethodPost, "/v1/services/"+serviceID.String()+"/deactivate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadyz(t *testing.T) {
	h := NewRouter(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ReadyChecks: map[string]ReadyCheck{
			"postgres": func(ctx context.Context) error { return nil },
			"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
		},
	})

	rec := do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
