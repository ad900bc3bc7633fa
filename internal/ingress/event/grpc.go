package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const errorDomain = "github.com/vietddude/relay"

// InvokeRequest carries one raw event payload and an optional execution
// budget.
type InvokeRequest struct {
	Payload   json.RawMessage `json:"payload"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`
}

// InvokeResponse carries the response envelope exactly as the dispatcher
// produced it.
type InvokeResponse struct {
	Envelope json.RawMessage `json:"envelope"`
}

// RunnerServer is the relay.v1.Runner service interface.
type RunnerServer interface {
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
}

// Runner serves function invocations over gRPC. Transport-level problems
// (empty payload, encoding) surface as gRPC statuses; everything that reaches
// the dispatcher comes back inside the envelope, success or not.
type Runner struct {
	adapter *Adapter
	log     *slog.Logger
}

func NewRunner(adapter *Adapter) *Runner {
	return &Runner{
		adapter: adapter,
		log:     slog.Default().With("component", "runner"),
	}
}

// Invoke handles one relay.v1.Runner/Invoke call.
func (r *Runner) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	if len(req.Payload) == 0 {
		return nil, invalidArgument("EMPTY_PAYLOAD", "request carries no event payload")
	}

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	env := r.adapter.HandleEvent(ctx, req.Payload)

	raw, err := json.Marshal(env)
	if err != nil {
		r.log.Error("Failed to encode envelope", "error", err)
		return nil, status.Error(codes.Internal, "failed to encode envelope")
	}
	return &InvokeResponse{Envelope: raw}, nil
}

// invalidArgument builds an InvalidArgument status with a structured reason.
func invalidArgument(reason, msg string) error {
	st := status.New(codes.InvalidArgument, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: reason,
		Domain: errorDomain,
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

// RunnerConfig holds the gRPC runner listener settings.
type RunnerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

var runnerServiceDesc = grpc.ServiceDesc{
	ServiceName: "relay.v1.Runner",
	HandlerType: (*RunnerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    runnerInvokeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relay/v1/runner.proto",
}

func runnerInvokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InvokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RunnerServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/relay.v1.Runner/Invoke",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RunnerServer).Invoke(ctx, req.(*InvokeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// NewGRPCServer builds the runner gRPC server with the hybrid codec and the
// standard health service.
func NewGRPCServer(adapter *Adapter) *grpc.Server {
	srv := grpc.NewServer(grpc.ForceServerCodec(hybridCodec{}))
	srv.RegisterService(&runnerServiceDesc, NewRunner(adapter))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("relay.v1.Runner", grpc_health_v1.HealthCheckResponse_SERVING)

	return srv
}
