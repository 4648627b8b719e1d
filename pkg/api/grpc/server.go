// Package grpcapi implements the fieldrules.v1.Validator gRPC service.
// Requests and responses are google.protobuf.Struct messages, so any gRPC
// client can call it without generated stubs:
//
//	Validate({value, constraint})  -> {valid, expression?, error?}
//	ValidateRule({rule, value})    -> {valid, expression?, error?, checkId}
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/fieldrules/pkg/constraint"
	"github.com/lemonberrylabs/fieldrules/pkg/metrics"
	"github.com/lemonberrylabs/fieldrules/pkg/store"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fieldrules.v1.Validator"

const (
	validateMethod     = "/" + ServiceName + "/Validate"
	validateRuleMethod = "/" + ServiceName + "/ValidateRule"
)

// ValidatorServer is the server API of the Validator service.
type ValidatorServer interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var validatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ValidatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Validate", Handler: validateHandler},
		{MethodName: "ValidateRule", Handler: validateRuleHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fieldrules/v1/validator.proto",
}

// RegisterValidatorServer registers srv on s.
func RegisterValidatorServer(s grpc.ServiceRegistrar, srv ValidatorServer) {
	s.RegisterService(&validatorServiceDesc, srv)
}

func validateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ValidatorServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: validateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ValidatorServer).Validate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func validateRuleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ValidatorServer).ValidateRule(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: validateRuleMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ValidatorServer).ValidateRule(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server implements the Validator service on top of a rule store.
type Server struct {
	store   *store.Store
	log     *zap.Logger
	metrics *metrics.Metrics
	grpc    *grpc.Server
}

// New creates a new gRPC server wrapping the given store. A nil logger
// disables logging and nil metrics disable recording.
func New(s *store.Store, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{store: s, log: log, metrics: m}

	gs := grpc.NewServer(grpc.UnaryInterceptor(srv.logUnary))
	RegisterValidatorServer(gs, srv)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("gRPC call",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.Stringer("code", status.Code(err)))
	return resp, err
}

// Validate evaluates a value against an ad-hoc constraint.
func (s *Server) Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	value, err := stringField(req, "value")
	if err != nil {
		return nil, err
	}
	expr, err := stringField(req, "constraint")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := constraint.Explain(value, expr)
	s.metrics.ObserveValidation(metrics.SourceAdHoc, res, time.Since(start))
	return resultToStruct(res, nil)
}

// ValidateRule evaluates a value against a stored rule and records the check.
func (s *Server) ValidateRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := stringField(req, "rule")
	if err != nil {
		return nil, err
	}
	value, err := stringField(req, "value")
	if err != nil {
		return nil, err
	}

	r, err := s.store.GetRule(name)
	if err != nil {
		return nil, storeStatus(err)
	}
	prog, err := constraint.Compile(r.Constraint)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "rule '%s': stored constraint does not compile: %v", name, err)
	}

	start := time.Now()
	res := prog.Explain(value)
	s.metrics.ObserveValidation(metrics.SourceRule, res, time.Since(start))
	check, err := s.store.RecordCheck(name, value, res.Valid, res.Err)
	if err != nil {
		return nil, storeStatus(err)
	}
	return resultToStruct(res, map[string]any{"checkId": check.ID})
}

// --- Helpers ---

func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", name)
	}
	if sv.StringValue == "" && name != "value" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return sv.StringValue, nil
}

func storeStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func resultToStruct(res constraint.Result, extra map[string]any) (*structpb.Struct, error) {
	m := map[string]any{"valid": res.Valid}
	if res.Expression != "" {
		m["expression"] = res.Expression
	}
	if d := constraint.DetailOf(res.Err); d != nil {
		m["error"] = map[string]any{
			"kind":     d.Kind,
			"position": d.Position,
			"message":  d.Message,
		}
	}
	for k, v := range extra {
		m[k] = v
	}

	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}
