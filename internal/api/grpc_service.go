package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"rentbook/internal/admission"

	"github.com/rs/zerolog"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	admissionServiceName = "rentbook.admission.v1.AdmissionService"
	checkFullMethod      = "/" + admissionServiceName + "/Check"
	admitFullMethod      = "/" + admissionServiceName + "/Admit"
	errorDomain          = "rentbook"
)

// AdmissionServer is the gRPC contract. Requests and responses are google.protobuf.Struct
// carrying the same JSON fields as the HTTP API.
type AdmissionServer interface {
	Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Admit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var admissionServiceDesc = grpc.ServiceDesc{
	ServiceName: admissionServiceName,
	HandlerType: (*AdmissionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: checkHandler},
		{MethodName: "Admit", Handler: admitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rentbook/admission/v1/admission.proto",
}

func RegisterAdmissionServer(s grpc.ServiceRegistrar, srv AdmissionServer) {
	s.RegisterService(&admissionServiceDesc, srv)
}

func checkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdmissionServer).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func admitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServer).Admit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: admitFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdmissionServer).Admit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AdmissionService adapts the reservation service to gRPC.
type AdmissionService struct {
	service      ReservationService
	userIDHeader string
	log          zerolog.Logger
}

func NewAdmissionService(service ReservationService, userIDHeader string, logger *zerolog.Logger) *AdmissionService {
	s := &AdmissionService{
		service:      service,
		userIDHeader: headerName(userIDHeader, userIDHeaderDefault),
		log:          zerolog.Nop(),
	}
	if logger != nil {
		s.log = logger.With().Str("component", "grpc").Logger()
	}
	return s
}

func (s *AdmissionService) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.userID(ctx) == "" {
		return nil, status.Errorf(codes.Unauthenticated, "%s metadata is required", s.userIDHeader)
	}

	req, err := decodeStruct(in)
	if err != nil {
		return nil, err
	}

	advice, err := s.service.Advise(ctx, req)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return encodeStruct(advice)
}

func (s *AdmissionService) Admit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID := s.userID(ctx)
	if userID == "" {
		return nil, status.Errorf(codes.Unauthenticated, "%s metadata is required", s.userIDHeader)
	}

	req, err := decodeStruct(in)
	if err != nil {
		return nil, err
	}

	adm, err := s.service.Admit(ctx, req, userID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return encodeStruct(map[string]any{
		"reservation": newReservationResponse(adm.Reservation),
		"replayed":    adm.Replayed,
	})
}

func (s *AdmissionService) userID(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	return first(md.Get(s.userIDHeader))
}

// decodeStruct reads the Struct through its JSON form so field names and types
// match the HTTP request body exactly.
func decodeStruct(in *structpb.Struct) (admission.Request, error) {
	var req admission.Request
	if in == nil {
		return req, status.Error(codes.InvalidArgument, "request is required")
	}
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return req, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return req, nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps admission errors to gRPC statuses; rejections carry an ErrorInfo
// whose Reason is the rejection code.
func (s *AdmissionService) toStatus(err error) error {
	rej, ok := admission.AsRejection(err)
	if !ok {
		s.log.Error().Err(err).Msg("Admission request failed")
		return status.Error(codes.Unavailable, "internal error, please retry later")
	}

	st := status.New(grpcCode(rej.Code), rej.Message)
	info := &errdetails.ErrorInfo{Reason: string(rej.Code), Domain: errorDomain}
	if rej.ConflictID != "" {
		info.Metadata = map[string]string{"conflict_id": rej.ConflictID}
	}
	if detailed, derr := st.WithDetails(info); derr == nil {
		return detailed.Err()
	}
	return st.Err()
}

func grpcCode(code admission.Code) codes.Code {
	switch code {
	case admission.CodeMissingFields, admission.CodeMissingTimes, admission.CodeInvalidBookingType,
		admission.CodeInvalidDateFormat, admission.CodeInvalidTimeFormat:
		return codes.InvalidArgument
	case admission.CodeListingNotFound, admission.CodeReservationNotFound:
		return codes.NotFound
	case admission.CodeForbidden:
		return codes.PermissionDenied
	case admission.CodeIdempotencyConflict:
		return codes.AlreadyExists
	default:
		// availability rejections
		return codes.FailedPrecondition
	}
}

// rejectionCode extracts the rejection code from a gRPC error, if any.
func rejectionCode(err error) (string, error) {
	st, ok := status.FromError(err)
	if !ok {
		return "", fmt.Errorf("not a grpc status: %w", err)
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && strings.EqualFold(info.Domain, errorDomain) {
			return info.Reason, nil
		}
	}
	return "", fmt.Errorf("no rejection details in status %s", st.Code())
}
