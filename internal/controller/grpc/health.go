package grpc

import (
	"context"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"imucap/internal/acquisition"
)

// ServiceName is the health service name reported for the acquisition.
const ServiceName = "imucap.Acquisition"

type healthListener struct {
	hs *health.Server
}

// NewHealthServer returns a health server with the acquisition marked
// NOT_SERVING until the first sampling stage is reached.
func NewHealthServer() *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// NewHealthListener maps acquisition stages onto hs.
func NewHealthListener(hs *health.Server) acquisition.Listener {
	return &healthListener{hs: hs}
}

func (l *healthListener) StageChanged(stage acquisition.Stage, status acquisition.Status) {
	servingStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if stage == acquisition.StageSampling {
		servingStatus = healthpb.HealthCheckResponse_SERVING
	}
	log.Debugf("health: stage=%s status=%s -> %s", stage, status, servingStatus)
	l.hs.SetServingStatus(ServiceName, servingStatus)
}

// Register installs hs on s.
func Register(s *grpc.Server, hs *health.Server) {
	healthpb.RegisterHealthServer(s, hs)
}

// Check dials address and returns the acquisition's serving status.
func Check(ctx context.Context, address string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer func() { _ = conn.Close() }()
	res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return res.Status, nil
}

// Watch streams serving status changes to fn until ctx is done or the
// stream breaks.
func Watch(ctx context.Context, address string, fn func(healthpb.HealthCheckResponse_ServingStatus)) error {
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	s, err := healthpb.NewHealthClient(conn).Watch(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	for {
		resp, err := s.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(resp.Status)
	}
}
