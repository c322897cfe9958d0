package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Health probes are exempt from token auth.
const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// SchedulerService is the health service name reported alongside the
// overall "" status.
const SchedulerService = "planline.v1.Scheduler"

// NewGRPCServer returns a gRPC server carrying the health service and
// reflection. Both the overall status and SchedulerService start as
// SERVING; Shutdown on the returned health server flips them on exit.
func NewGRPCServer(authToken string) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor,
			StreamAuthInterceptor(authToken),
		),
	)

	hs := health.NewServer()
	for _, svc := range []string{"", SchedulerService} {
		hs.SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}
