package control

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer wraps the standard gRPC health and reflection services.
// shadowd defines no service-specific RPCs here; the sync protocol this
// server would otherwise carry is a separate, out-of-scope concern (see
// pkg/cloud's Transport boundary), so this server exists purely to give
// operators the same liveness-probe and introspection surface a gRPC
// deployment expects.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
}

// NewGRPCServer constructs a GRPCServer with the overall serving status
// set to SERVING.
func NewGRPCServer() *GRPCServer {
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	return &GRPCServer{server: grpcSrv, health: healthSrv}
}

// SetServing updates the overall serving status, used to flip to
// NOT_SERVING while the local store or cloud connection is unavailable.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Serve blocks accepting connections on lis until the server is stopped.
func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *GRPCServer) Stop() {
	s.server.GracefulStop()
}
