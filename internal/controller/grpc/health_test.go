package grpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"imucap/internal/acquisition"
)

func check(t *testing.T, c healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	res, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatal(err)
	}
	return res.Status
}

func TestHealthFollowsStages(t *testing.T) {
	hs := NewHealthServer()
	s := grpc.NewServer()
	Register(s, hs)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.Dial(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	c := healthpb.NewHealthClient(conn)

	if st := check(t, c); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status %v", st)
	}

	l := NewHealthListener(hs)
	steps := []struct {
		stage acquisition.Stage
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{acquisition.StageInitializing, healthpb.HealthCheckResponse_NOT_SERVING},
		{acquisition.StageReady, healthpb.HealthCheckResponse_NOT_SERVING},
		{acquisition.StageSampling, healthpb.HealthCheckResponse_SERVING},
		{acquisition.StageStopped, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, step := range steps {
		l.StageChanged(step.stage, acquisition.StatusOk)
		if st := check(t, c); st != step.want {
			t.Errorf("stage %s: status %v, want %v", step.stage, st, step.want)
		}
	}
}

func TestCheckAndWatch(t *testing.T) {
	hs := NewHealthServer()
	s := grpc.NewServer()
	Register(s, hs)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()
	addr := lis.Addr().String()

	st, err := Check(context.Background(), addr)
	if err != nil || st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("check: %v %v", st, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan healthpb.HealthCheckResponse_ServingStatus, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, addr, func(st healthpb.HealthCheckResponse_ServingStatus) { seen <- st })
	}()

	if st := <-seen; st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("first watch status %v", st)
	}
	NewHealthListener(hs).StageChanged(acquisition.StageSampling, acquisition.StatusOk)
	if st := <-seen; st != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("second watch status %v", st)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch returned %v", err)
	}
}
