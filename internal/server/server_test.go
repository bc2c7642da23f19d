package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"estatecore/internal/adapters/httpapi"
	"estatecore/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T, cfg Config) (*Server, *core.Service) {
	t.Helper()
	reg := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	svc := core.NewInMemoryService(core.WithMetricsRecorder(recorder))

	srv := New(cfg, httpapi.WithRequestID(httpapi.NewHandler(svc, nil, nil)), reg, zaptest.NewLogger(t))
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, svc
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerServesAPIHealthAndMetrics(t *testing.T) {
	srv, _ := startServer(t, Config{HTTPAddr: "127.0.0.1:0", MetricsPath: "/metrics"})
	base := "http://" + srv.HTTPAddr().String()

	status, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"ok"`)

	resp, err := http.Post(base+"/api/v1/tenants", "application/json", strings.NewReader(`{"name":"Alice"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	status, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `estatecore_service_operations_total{operation="add_tenant",status="success"} 1`)

	assert.Nil(t, srv.GRPCAddr())
}

func TestServerWithoutMetrics(t *testing.T) {
	srv, _ := startServer(t, Config{HTTPAddr: "127.0.0.1:0"})
	status, _ := get(t, "http://"+srv.HTTPAddr().String()+"/metrics")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGRPCHealth(t *testing.T) {
	srv, _ := startServer(t, Config{HTTPAddr: "127.0.0.1:0", GRPCAddr: "127.0.0.1:0"})
	require.NotNil(t, srv.GRPCAddr())

	conn, err := grpc.NewClient(srv.GRPCAddr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)
	for _, name := range []string{"", ServiceName} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: name})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus(), name)
	}
}

func TestShutdownStopsListeners(t *testing.T) {
	srv := New(Config{HTTPAddr: "127.0.0.1:0", GRPCAddr: "127.0.0.1:0"}, nil, nil, nil)
	require.NoError(t, srv.Start())
	addr := srv.HTTPAddr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	client := http.Client{Timeout: time.Second}
	_, err := client.Get("http://" + addr + "/healthz")
	assert.Error(t, err)
}

func TestStartFailsOnBadAddress(t *testing.T) {
	srv := New(Config{HTTPAddr: "256.0.0.1:bad"}, nil, nil, nil)
	assert.Error(t, srv.Start())
}
