package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service"
	"chairbook/backend/internal/service/booking"
	"chairbook/backend/internal/store"
)

type SchedulingServer struct {
	bookings bookingService
	slots    slotSource
	log      *slog.Logger
}

type bookingService interface {
	CreateBooking(ctx context.Context, in booking.CreateInput) (domain.Appointment, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CompleteBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CancelBooking(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
}

type slotSource interface {
	AvailableSlots(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error)
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

func NewSchedulingServer(bookings bookingService, slots slotSource, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		bookings: bookings,
		slots:    slots,
		log:      log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) GetAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAvailableSlots"))
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	f := req.GetFields()

	serviceID, err := uuid.Parse(stringField(f, "service_id"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_service_id"))
		return nil, status.Error(codes.InvalidArgument, "service_id must be a UUID")
	}

	slots, err := s.slots.AvailableSlots(ctx, booking.SlotsQuery{
		ProviderID: stringField(f, "provider_id"),
		ShopID:     stringField(f, "shop_id"),
		ServiceID:  serviceID,
		Date:       stringField(f, "date"),
	})
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("provider_id", stringField(f, "provider_id")))
	}

	out := make([]any, 0, len(slots))
	for _, t := range slots {
		out = append(out, t.UTC().Format(time.RFC3339))
	}
	log.Debug("slots listed", slog.String("provider_id", stringField(f, "provider_id")), slog.Int("count", len(out)))
	return structpb.NewStruct(map[string]any{"slots": out})
}

func (s *SchedulingServer) CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	f := req.GetFields()

	serviceID, err := uuid.Parse(stringField(f, "service_id"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_service_id"))
		return nil, status.Error(codes.InvalidArgument, "service_id must be a UUID")
	}
	start, err := time.Parse(time.RFC3339, stringField(f, "start_time"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_start_time"))
		return nil, status.Error(codes.InvalidArgument, "start_time must be an RFC3339 timestamp")
	}

	appt, err := s.bookings.CreateBooking(ctx, booking.CreateInput{
		ProviderID:     stringField(f, "provider_id"),
		ShopID:         stringField(f, "shop_id"),
		ClientID:       stringField(f, "client_id"),
		ServiceID:      serviceID,
		Start:          start,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.statusFor(log, err,
			slog.String("provider_id", stringField(f, "provider_id")),
			slog.Time("start_time", start),
		)
	}

	return appointmentResponse(appt)
}

func (s *SchedulingServer) ConfirmAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, "ConfirmAppointment", req, func(ctx context.Context, id uuid.UUID, _ string) (domain.Appointment, error) {
		return s.bookings.ConfirmBooking(ctx, id)
	})
}

func (s *SchedulingServer) CompleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, "CompleteAppointment", req, func(ctx context.Context, id uuid.UUID, _ string) (domain.Appointment, error) {
		return s.bookings.CompleteBooking(ctx, id)
	})
}

func (s *SchedulingServer) CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, "CancelAppointment", req, s.bookings.CancelBooking)
}

func (s *SchedulingServer) transition(ctx context.Context, rpc string, req *structpb.Struct, apply func(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", rpc))
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	f := req.GetFields()
	id, err := uuid.Parse(stringField(f, "appointment_id"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	appt, err := apply(ctx, id, stringField(f, "reason"))
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("appointment_id", id.String()))
	}
	log.Debug("appointment updated", slog.String("appointment_id", id.String()), slog.String("status", string(appt.Status)))
	return appointmentResponse(appt)
}

// statusFor maps engine errors onto gRPC codes, logging at the level the outcome deserves.
func (s *SchedulingServer) statusFor(log *slog.Logger, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrInvalidRequest):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", args...)
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", args...)
		return status.Error(codes.AlreadyExists, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrConflict):
		log.Info("booking conflict", args...)
		return status.Error(codes.FailedPrecondition, "The provider already has an appointment during that time. Pick a different slot.")
	case errors.Is(err, store.ErrSlotUnavailable):
		log.Info("slot unavailable", args...)
		return status.Error(codes.FailedPrecondition, "The provider is not working at that time.")
	case errors.Is(err, store.ErrInvalidTransition):
		log.Info("invalid transition", args...)
		return status.Error(codes.FailedPrecondition, "The appointment cannot move to that status.")
	case errors.Is(err, store.ErrTransient):
		log.Warn("transient failure", args...)
		return status.Error(codes.Unavailable, "temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("deadline exceeded", args...)
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		log.Error("request failed", args...)
		return status.Error(codes.Internal, "internal error")
	}
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func stringField(fields map[string]*structpb.Value, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func appointmentResponse(a domain.Appointment) (*structpb.Struct, error) {
	appt := map[string]any{
		"id":               a.ID.String(),
		"provider_id":      a.ProviderID,
		"shop_id":          a.ShopID,
		"client_id":        a.ClientID,
		"service_id":       a.ServiceID.String(),
		"start_time":       a.StartTime.UTC().Format(time.RFC3339),
		"end_time":         a.EndTime.UTC().Format(time.RFC3339),
		"duration_seconds": a.DurationSeconds,
		"price_cents":      a.PriceCents,
		"status":           string(a.Status),
	}
	if a.CancelReason != "" {
		appt["cancel_reason"] = a.CancelReason
	}
	return structpb.NewStruct(map[string]any{"appointment": appt})
}
