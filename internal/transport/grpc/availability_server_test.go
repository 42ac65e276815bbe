package grpctransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
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

	"meetly/backend/internal/domain"
	"meetly/backend/internal/store"
)

type fakeAvailabilityService struct {
	availabilityFn func(ctx context.Context, eventID uuid.UUID) ([]domain.DayAvailability, error)
}

func (f *fakeAvailabilityService) EventAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.DayAvailability, error) {
	if f.availabilityFn == nil {
		panic("EventAvailability not configured")
	}
	return f.availabilityFn(ctx, eventID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventRequest(t *testing.T, id string) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{"event_id": id})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestGetEventAvailability(t *testing.T) {
	eventID := uuid.New()
	svc := &fakeAvailabilityService{availabilityFn: func(_ context.Context, id uuid.UUID) ([]domain.DayAvailability, error) {
		if id != eventID {
			t.Fatalf("event id = %s", id)
		}
		return []domain.DayAvailability{
			{Date: "2026-01-05", Slots: []string{"09:00", "09:30"}},
			{Date: "2026-01-06", Slots: []string{}},
		}, nil
	}}
	srv := NewAvailabilityServer(svc, testLogger())

	resp, err := srv.GetEventAvailability(context.Background(), eventRequest(t, eventID.String()))
	if err != nil {
		t.Fatalf("GetEventAvailability: %v", err)
	}

	days := resp.GetFields()["days"].GetListValue().GetValues()
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2", len(days))
	}
	first := days[0].GetStructValue().GetFields()
	if first["date"].GetStringValue() != "2026-01-05" {
		t.Fatalf("date = %q", first["date"].GetStringValue())
	}
	slots := first["slots"].GetListValue().GetValues()
	if len(slots) != 2 || slots[1].GetStringValue() != "09:30" {
		t.Fatalf("slots = %v", slots)
	}
	if n := len(days[1].GetStructValue().GetFields()["slots"].GetListValue().GetValues()); n != 0 {
		t.Fatalf("empty day has %d slots", n)
	}
}

func TestGetEventAvailabilityStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		id   string
		err  error
		want codes.Code
	}{
		{name: "bad id", id: "nope", want: codes.InvalidArgument},
		{name: "missing event", id: uuid.NewString(), err: store.ErrNotFound, want: codes.NotFound},
		{name: "invalid engine input", id: uuid.NewString(), err: &domain.InvalidRequestError{Field: "days", Reason: "must be positive"}, want: codes.InvalidArgument},
		{name: "deadline", id: uuid.NewString(), err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "unexpected", id: uuid.NewString(), err: errors.New("boom"), want: codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAvailabilityService{availabilityFn: func(context.Context, uuid.UUID) ([]domain.DayAvailability, error) {
				return nil, tc.err
			}}
			srv := NewAvailabilityServer(svc, testLogger())

			_, err := srv.GetEventAvailability(context.Background(), eventRequest(t, tc.id))
			if status.Code(err) != tc.want {
				t.Fatalf("code = %s, want %s (err=%v)", status.Code(err), tc.want, err)
			}
		})
	}
}

func TestAvailabilityServiceOverBufconn(t *testing.T) {
	eventID := uuid.New()
	var gotRequestID string
	svc := &fakeAvailabilityService{availabilityFn: func(ctx context.Context, _ uuid.UUID) ([]domain.DayAvailability, error) {
		gotRequestID = RequestIDFromContext(ctx)
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected a default deadline")
		}
		return []domain.DayAvailability{{Date: "2026-01-05", Slots: []string{"09:00"}}}, nil
	}}

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(RequestIDInterceptor(), DefaultTimeoutInterceptor(time.Second)))
	RegisterAvailabilityServer(s, NewAvailabilityServer(svc, testLogger()))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-42")
	var header metadata.MD
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, GetEventAvailabilityRoute, eventRequest(t, eventID.String()), out, grpc.Header(&header)); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if gotRequestID != "req-42" {
		t.Fatalf("request id = %q", gotRequestID)
	}
	if got := header.Get("x-request-id"); len(got) != 1 || got[0] != "req-42" {
		t.Fatalf("response header = %v", got)
	}
	if n := len(out.GetFields()["days"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("days = %d", n)
	}
}

func TestDefaultTimeoutKeepsCallerDeadline(t *testing.T) {
	interceptor := DefaultTimeoutInterceptor(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	want, _ := ctx.Deadline()

	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		got, ok := ctx.Deadline()
		if !ok || !got.Equal(want) {
			t.Fatalf("deadline = %v, want %v", got, want)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
}
