package grpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"chairbook/backend/internal/domain"
	"chairbook/backend/internal/service"
	"chairbook/backend/internal/service/booking"
	"chairbook/backend/internal/store"
)

type fakeBookingService struct {
	createFn   func(ctx context.Context, in booking.CreateInput) (domain.Appointment, error)
	confirmFn  func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	completeFn func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	cancelFn   func(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	slotsFn    func(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error)
}

func (f *fakeBookingService) CreateBooking(ctx context.Context, in booking.CreateInput) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("CreateBooking not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeBookingService) ConfirmBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.confirmFn == nil {
		panic("ConfirmBooking not configured")
	}
	return f.confirmFn(ctx, id)
}

func (f *fakeBookingService) CompleteBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.completeFn == nil {
		panic("CompleteBooking not configured")
	}
	return f.completeFn(ctx, id)
}

func (f *fakeBookingService) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	if f.cancelFn == nil {
		panic("CancelBooking not configured")
	}
	return f.cancelFn(ctx, id, reason)
}

func (f *fakeBookingService) AvailableSlots(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error) {
	if f.slotsFn == nil {
		panic("AvailableSlots not configured")
	}
	return f.slotsFn(ctx, q)
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func validCreate(t *testing.T) *structpb.Struct {
	return mustStruct(t, map[string]any{
		"provider_id": "p1",
		"shop_id":     "s1",
		"client_id":   "c1",
		"service_id":  "00000000-0000-0000-0000-0000000000aa",
		"start_time":  "2026-01-05T10:00:00Z",
	})
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestCreateAppointment_RejectsMissingStart(t *testing.T) {
	srv := NewSchedulingServer(&fakeBookingService{}, nil, testLogger)

	req := validCreate(t)
	delete(req.Fields, "start_time")
	_, err := srv.CreateAppointment(context.Background(), req)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCreateAppointment_PassesIdempotencyKeyToService(t *testing.T) {
	var got booking.CreateInput
	fake := &fakeBookingService{
		createFn: func(ctx context.Context, in booking.CreateInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{ID: uuid.MustParse("00000000-0000-0000-0000-000000000010"), Status: domain.StatusPending, DurationSeconds: 1800}, nil
		},
	}
	srv := NewSchedulingServer(fake, fake, testLogger)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k1"))
	resp, err := srv.CreateAppointment(ctx, validCreate(t))
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if got.IdempotencyKey != "k1" {
		t.Fatalf("idempotency_key = %q, want %q", got.IdempotencyKey, "k1")
	}
	if !got.Start.Equal(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", got.Start)
	}
	appt := resp.Fields["appointment"].GetStructValue().GetFields()
	if appt["status"].GetStringValue() != "PENDING" || appt["duration_seconds"].GetNumberValue() != 1800 {
		t.Fatalf("appointment = %v", appt)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{service.Invalid("client_id is required"), codes.InvalidArgument},
		{store.ErrNotFound, codes.NotFound},
		{store.ErrConflict, codes.FailedPrecondition},
		{store.ErrIdempotencyConflict, codes.AlreadyExists},
		{store.ErrSlotUnavailable, codes.FailedPrecondition},
		{store.ErrInvalidTransition, codes.FailedPrecondition},
		{store.ErrTransient, codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{io.ErrUnexpectedEOF, codes.Internal},
	}
	for _, tt := range tests {
		srv := NewSchedulingServer(&fakeBookingService{
			createFn: func(ctx context.Context, in booking.CreateInput) (domain.Appointment, error) {
				return domain.Appointment{}, tt.err
			},
		}, nil, testLogger)
		_, err := srv.CreateAppointment(context.Background(), validCreate(t))
		if status.Code(err) != tt.want {
			t.Fatalf("%v: code = %s, want %s", tt.err, status.Code(err), tt.want)
		}
	}
}

func TestCancelAppointment_RejectsInvalidUUID(t *testing.T) {
	srv := NewSchedulingServer(&fakeBookingService{}, nil, testLogger)

	_, err := srv.CancelAppointment(context.Background(), mustStruct(t, map[string]any{"appointment_id": "not-a-uuid"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func dialBufconn(t *testing.T, srv SchedulingServiceServer, opts ...grpc.ServerOption) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(opts...)
	RegisterSchedulingServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServiceDesc_RoundTrip(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000042")
	var (
		mu          sync.Mutex
		gotReason   string
		intercepted []string
	)
	fake := &fakeBookingService{
		cancelFn: func(ctx context.Context, got uuid.UUID, reason string) (domain.Appointment, error) {
			if got != id {
				t.Errorf("id = %s, want %s", got, id)
			}
			mu.Lock()
			gotReason = reason
			mu.Unlock()
			return domain.Appointment{ID: id, Status: domain.StatusCancelled, CancelReason: reason}, nil
		},
		slotsFn: func(ctx context.Context, q booking.SlotsQuery) ([]time.Time, error) {
			return []time.Time{time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}, nil
		},
	}
	conn := dialBufconn(t, NewSchedulingServer(fake, fake, testLogger),
		grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			mu.Lock()
			intercepted = append(intercepted, info.FullMethod)
			mu.Unlock()
			return handler(ctx, req)
		}),
	)
	ctx := context.Background()

	out := new(structpb.Struct)
	in := mustStruct(t, map[string]any{"appointment_id": id.String(), "reason": "running late"})
	if err := conn.Invoke(ctx, FullMethod("CancelAppointment"), in, out); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	mu.Lock()
	reason := gotReason
	mu.Unlock()
	if reason != "running late" {
		t.Fatalf("reason = %q", reason)
	}
	if s := out.Fields["appointment"].GetStructValue().Fields["status"].GetStringValue(); s != "CANCELLED" {
		t.Fatalf("status = %q", s)
	}

	in = mustStruct(t, map[string]any{"provider_id": "p1", "shop_id": "s1", "service_id": "00000000-0000-0000-0000-0000000000aa", "date": "2026-01-05"})
	if err := conn.Invoke(ctx, FullMethod("GetAvailableSlots"), in, out); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	slots := out.Fields["slots"].GetListValue().GetValues()
	if len(slots) != 1 || slots[0].GetStringValue() != "2026-01-05T09:00:00Z" {
		t.Fatalf("slots = %v", slots)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(intercepted) != 2 || intercepted[0] != "/chairbook.v1.SchedulingService/CancelAppointment" {
		t.Fatalf("intercepted = %v", intercepted)
	}
}
