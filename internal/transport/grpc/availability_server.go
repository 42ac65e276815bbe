package grpctransport

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"meetly/backend/internal/domain"
	"meetly/backend/internal/service"
	"meetly/backend/internal/store"
)

const (
	AvailabilityServiceName   = "meetly.v1.AvailabilityService"
	GetEventAvailabilityRoute = "/" + AvailabilityServiceName + "/GetEventAvailability"
)

type availabilityService interface {
	EventAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.DayAvailability, error)
}

// AvailabilityServer exposes slot computation to internal callers. Messages are
// google.protobuf.Struct: {"event_id": "..."} in, {"days": [{"date", "slots"}]} out.
type AvailabilityServer struct {
	svc availabilityService
	log *slog.Logger
}

func NewAvailabilityServer(svc availabilityService, log *slog.Logger) *AvailabilityServer {
	if log == nil {
		log = slog.Default()
	}
	return &AvailabilityServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.availability")),
	}
}

type availabilityServer interface {
	GetEventAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: AvailabilityServiceName,
	HandlerType: (*availabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetEventAvailability", Handler: getEventAvailabilityHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "meetly/v1/availability.proto",
}

func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv *AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

func getEventAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(availabilityServer).GetEventAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetEventAvailabilityRoute}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(availabilityServer).GetEventAvailability(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func (s *AvailabilityServer) GetEventAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetEventAvailability"), slog.String("request_id", RequestIDFromContext(ctx)))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	raw := strings.TrimSpace(req.GetFields()["event_id"].GetStringValue())
	eventID, err := uuid.Parse(raw)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_event_id"), slog.String("event_id", raw))
		return nil, status.Error(codes.InvalidArgument, "event_id must be a UUID")
	}

	days, err := s.svc.EventAvailability(ctx, eventID)
	if err != nil {
		return nil, s.statusError(log, eventID, err)
	}

	out, err := availabilityStruct(days)
	if err != nil {
		log.Error("encode availability failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	log.Debug("availability served", slog.String("event_id", eventID.String()), slog.Int("days", len(days)))
	return out, nil
}

func (s *AvailabilityServer) statusError(log *slog.Logger, eventID uuid.UUID, err error) error {
	var vErr *service.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("event not found", slog.String("event_id", eventID.String()))
		return status.Error(codes.NotFound, "event not found")
	case errors.Is(err, domain.ErrInvalidRequest), errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err), slog.String("event_id", eventID.String()))
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	default:
		log.Error("availability failed", slog.Any("err", err), slog.String("event_id", eventID.String()))
		return status.Error(codes.Internal, "internal error")
	}
}

func availabilityStruct(days []domain.DayAvailability) (*structpb.Struct, error) {
	list := make([]any, 0, len(days))
	for _, d := range days {
		slots := make([]any, 0, len(d.Slots))
		for _, s := range d.Slots {
			slots = append(slots, s)
		}
		list = append(list, map[string]any{"date": d.Date, "slots": slots})
	}
	return structpb.NewStruct(map[string]any{"days": list})
}
