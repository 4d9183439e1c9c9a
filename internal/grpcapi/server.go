// Package grpcapi serves read-only ledger queries over gRPC.
package grpcapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/verify"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "verisure.ledger.v1.LedgerQuery"

// LedgerQuery is the read-only ledger service.
type LedgerQuery interface {
	CheckProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListProducts(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Ledger is the read side of the ledger the service exposes.
type Ledger interface {
	All() []model.Product
	Stats() model.Stats
}

type LedgerQueryServer struct {
	ledger   Ledger
	verifier *verify.Verifier
}

func NewLedgerQueryServer(ledger Ledger, verifier *verify.Verifier) *LedgerQueryServer {
	return &LedgerQueryServer{ledger: ledger, verifier: verifier}
}

// Register adds the LedgerQuery service to server.
func Register(server grpc.ServiceRegistrar, svc LedgerQuery) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*LedgerQuery)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "CheckProduct", Handler: unary("CheckProduct", newStruct, svc.CheckProduct)},
			{MethodName: "ListProducts", Handler: unary("ListProducts", newEmpty, svc.ListProducts)},
			{MethodName: "GetStats", Handler: unary("GetStats", newEmpty, svc.GetStats)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "verisure/ledger/v1/ledger_query.proto",
	}, svc)
}

// NewServer builds a gRPC server with the ledger service and the standard
// health service registered.
func NewServer(svc LedgerQuery) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	Register(srv, svc)
	return srv, healthSrv
}

// CheckProduct accepts {"qr": payload} or {"id": number|string}.
func (s *LedgerQueryServer) CheckProduct(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	var (
		res verify.Result
		err error
	)
	switch {
	case fields["qr"] != nil:
		res, err = s.verifier.CheckQR(fields["qr"].GetStringValue())
	case fields["id"] != nil:
		res, err = s.verifier.Check(idArg(fields["id"]))
	default:
		return nil, status.Error(codes.InvalidArgument, "id or qr is required")
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return build(map[string]any{
		"id":      res.ID,
		"name":    res.Name,
		"qrHash":  res.QRHash,
		"isFake":  res.IsFake,
		"verdict": res.Verdict,
		"message": res.Message,
	})
}

func (s *LedgerQueryServer) ListProducts(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	all := s.ledger.All()
	items := make([]any, 0, len(all))
	for _, p := range all {
		items = append(items, map[string]any{
			"id":     p.ID,
			"name":   p.Name,
			"qrHash": p.QRHash,
			"isFake": p.IsFake,
		})
	}
	return build(map[string]any{"products": items})
}

func (s *LedgerQueryServer) GetStats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.ledger.Stats()
	return build(map[string]any{
		"total":   st.Total,
		"genuine": st.Genuine,
		"fake":    st.Fake,
	})
}

// idArg renders a struct value as the textual id the verifier parses.
func idArg(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f != float64(int64(f)) {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strconv.FormatInt(int64(f), 10)
	case *structpb.Value_StringValue:
		return k.StringValue
	default:
		return ""
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrMissingField):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func build(m map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func newStruct() *structpb.Struct { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty { return &emptypb.Empty{} }

type methodHandler = func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error)

func unary[Req any](method string, newReq func() Req, call func(context.Context, Req) (*structpb.Struct, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, r any) (any, error) {
			typed, ok := r.(Req)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	obs.Logger.Info("grpc_request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return resp, err
}
