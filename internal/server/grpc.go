package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported alongside the overall "" entry.
const ServiceName = "faxintake.Intake"

// ReadinessChecker reports whether one dependency is usable.
type ReadinessChecker interface {
	Name() string
	CheckReady(ctx context.Context) error
}

// NewGRPCServer returns a server exposing only the health and reflection services.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return gs, hs
}

// setHealth is the grpc.health subset updated by WatchReadiness.
type setHealth interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// WatchReadiness probes checkers every interval and mirrors the result into hs until ctx is done.
func WatchReadiness(ctx context.Context, hs setHealth, interval time.Duration, logger *zap.Logger, checkers ...ReadinessChecker) {
	if logger == nil {
		logger = zap.NewNop()
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	probe := func() {
		status := healthpb.HealthCheckResponse_SERVING
		for _, c := range checkers {
			if err := c.CheckReady(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("health.check.failed", zap.String("check", c.Name()), zap.Error(err))
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		if status != last {
			logger.Info("health.status.changed", zap.Stringer("status", status))
			last = status
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
	}

	probe()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			probe()
		}
	}
}
