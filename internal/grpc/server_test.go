package grpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type flagChecker struct{ ok atomic.Bool }

func (p *flagChecker) Serving(ctx context.Context) bool { return p.ok.Load() }

func startBufconn(t *testing.T, checker ServingChecker) (*Server, healthpb.HealthClient) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	srv, err := NewServer(cfg, checker, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(context.Background(), lis)
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func statusOf(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Logf("health check %q: %v", service, err)
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestHealthFollowsChecker(t *testing.T) {
	checker := &flagChecker{}
	checker.ok.Store(true)
	srv, client := startBufconn(t, checker)

	assert.Eventually(t, func() bool {
		return statusOf(t, client, "") == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(t, client, ServiceName))
	assert.True(t, srv.IsServing())

	checker.ok.Store(false)
	assert.Eventually(t, func() bool {
		return statusOf(t, client, ServiceName) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)
	assert.False(t, srv.IsServing())
}

func TestNilCheckerServes(t *testing.T) {
	_, client := startBufconn(t, nil)
	assert.Eventually(t, func() bool {
		return statusOf(t, client, "") == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)
}

func TestGracefulStopIsIdempotent(t *testing.T) {
	srv, err := NewServer(nil, nil, nil)
	require.NoError(t, err)
	srv.GracefulStop()
	srv.GracefulStop()
	assert.False(t, srv.IsServing())
}

func TestBadTLSConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TLSCertFile = "/nonexistent/cert.pem"
	cfg.TLSKeyFile = "/nonexistent/key.pem"
	_, err := NewServer(cfg, nil, nil)
	assert.Error(t, err)
}
