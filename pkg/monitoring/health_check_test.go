package monitoring

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type recordingEmitter struct {
	mutex    sync.Mutex
	thoughts []thoughts.Thought
}

func (r *recordingEmitter) Emit(source, eventType string, priority int, payload map[string]interface{}) thoughts.Thought {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	thought := thoughts.Thought{Source: source, EventType: eventType, Priority: priority, Payload: payload}
	r.thoughts = append(r.thoughts, thought)
	return thought
}

func (r *recordingEmitter) last() thoughts.Thought {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.thoughts[len(r.thoughts)-1]
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)
	return parsed.Hostname(), port
}

func newMonitor(t *testing.T, timeout time.Duration) (*HealthMonitor, *fleet.Registry, *recordingEmitter) {
	t.Helper()
	registry := fleet.NewRegistry(fleet.RegistryOptions{}, logging.Nop())
	emitter := &recordingEmitter{}
	monitor := NewHealthMonitor(registry, emitter, HealthMonitorOptions{Timeout: timeout}, logging.Nop())
	return monitor, registry, emitter
}

func TestHealthMonitor_PollHealthyService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","cpu_usage":0.35,"response_time":120}`))
	}))
	defer server.Close()

	monitor, registry, emitter := newMonitor(t, time.Second)
	host, port := hostPort(t, server.URL)
	_, err := registry.Register(fleet.Registration{Name: "svc-a", Host: host, Port: port})
	require.NoError(t, err)

	result, err := monitor.Poll(context.Background(), "svc-a")
	require.NoError(t, err)
	assert.Equal(t, fleet.StatusHealthy, result.Status)
	assert.Empty(t, result.Error)

	service, _ := registry.Get("svc-a")
	assert.Equal(t, fleet.StatusHealthy, service.Status)
	require.NotNil(t, service.LastHealthCheck)
	assert.Equal(t, 0.35, *service.Metrics.CPUUsage)
	assert.Equal(t, 120.0, *service.Metrics.ResponseTime)

	thought := emitter.last()
	assert.Equal(t, "svc-a", thought.Source)
	assert.Equal(t, thoughts.EventHealthCheck, thought.EventType)
	assert.Equal(t, thoughts.PriorityHealthCheck, thought.Priority)
}

func TestHealthMonitor_UnhealthyResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantEvent string
	}{
		{name: "server_error", status: http.StatusServiceUnavailable, body: `{"status":"ok"}`, wantEvent: thoughts.EventHealthError},
		{name: "payload_status_down", status: http.StatusOK, body: `{"status":"down"}`, wantEvent: thoughts.EventHealthCheck},
		{name: "payload_healthy_false", status: http.StatusOK, body: `{"healthy":false}`, wantEvent: thoughts.EventHealthCheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			monitor, registry, emitter := newMonitor(t, time.Second)
			host, port := hostPort(t, server.URL)
			_, err := registry.Register(fleet.Registration{Name: "svc-a", Host: host, Port: port})
			require.NoError(t, err)

			result, err := monitor.Poll(context.Background(), "svc-a")
			require.NoError(t, err)
			assert.Equal(t, fleet.StatusUnhealthy, result.Status)

			service, _ := registry.Get("svc-a")
			assert.Equal(t, fleet.StatusUnhealthy, service.Status)
			assert.Equal(t, tt.wantEvent, emitter.last().EventType)
		})
	}
}

func TestHealthMonitor_ServerErrorTakesUrgentPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"healthy","cpu_usage":0.1}`))
	}))
	defer server.Close()

	monitor, registry, emitter := newMonitor(t, time.Second)
	host, port := hostPort(t, server.URL)
	_, err := registry.Register(fleet.Registration{Name: "svc-a", Host: host, Port: port})
	require.NoError(t, err)

	result, err := monitor.Poll(context.Background(), "svc-a")
	require.NoError(t, err)
	assert.Equal(t, fleet.StatusUnhealthy, result.Status)
	assert.Contains(t, result.Error, "status 500")

	thought := emitter.last()
	assert.Equal(t, thoughts.EventHealthError, thought.EventType)
	assert.Equal(t, thoughts.PriorityHealthError, thought.Priority)

	service, _ := registry.Get("svc-a")
	assert.Nil(t, service.Metrics.CPUUsage)
}

func TestHealthMonitor_PlainTextBodyIsHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	monitor, _, _ := newMonitor(t, time.Second)
	host, port := hostPort(t, server.URL)
	result := monitor.Check(context.Background(), fleet.Service{
		Name: "svc-a", Host: host, Port: port, HealthEndpoint: "/health", Protocol: fleet.ProtocolHTTP,
	})
	assert.Equal(t, fleet.StatusHealthy, result.Status)
	assert.Nil(t, result.Payload)
}

func TestHealthMonitor_TimeoutIsUnhealthy(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	monitor, registry, emitter := newMonitor(t, 50*time.Millisecond)
	host, port := hostPort(t, server.URL)
	_, err := registry.Register(fleet.Registration{Name: "svc-a", Host: host, Port: port})
	require.NoError(t, err)
	_, err = registry.Update("svc-a", func(service *fleet.Service) error {
		service.Metrics.CPUUsage = fleet.Float(0.2)
		return nil
	})
	require.NoError(t, err)

	result, err := monitor.Poll(context.Background(), "svc-a")
	require.NoError(t, err)
	assert.Equal(t, fleet.StatusUnhealthy, result.Status)
	assert.Contains(t, result.Error, "timed out")

	service, _ := registry.Get("svc-a")
	assert.Equal(t, fleet.StatusUnhealthy, service.Status)
	assert.Equal(t, 0.2, *service.Metrics.CPUUsage, "prior metrics are kept")
	assert.Nil(t, service.Metrics.ResponseTime)

	thought := emitter.last()
	assert.Equal(t, thoughts.EventHealthError, thought.EventType)
	assert.Equal(t, thoughts.PriorityHealthError, thought.Priority)
	assert.Equal(t, "svc-a", thought.Source)
}

func TestHealthMonitor_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	monitor, _, _ := newMonitor(t, time.Second)
	result := monitor.Check(context.Background(), fleet.Service{
		Name: "svc-a", Host: "127.0.0.1", Port: port, HealthEndpoint: "/health",
	})
	assert.Equal(t, fleet.StatusUnhealthy, result.Status)
	assert.Contains(t, result.Error, "unreachable")
}

func TestHealthMonitor_SkippedServiceKeepsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	monitor, registry, _ := newMonitor(t, time.Second)
	host, port := hostPort(t, server.URL)
	_, err := registry.Register(fleet.Registration{Name: "svc-a", Host: host, Port: port})
	require.NoError(t, err)
	_, err = registry.Update("svc-a", func(service *fleet.Service) error {
		service.Status = fleet.StatusRestarting
		return nil
	})
	require.NoError(t, err)

	_, err = monitor.Poll(context.Background(), "svc-a")
	require.NoError(t, err)

	service, _ := registry.Get("svc-a")
	assert.Equal(t, fleet.StatusRestarting, service.Status)
}

func TestHealthMonitor_GRPC(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	go func() { _ = server.Serve(listener) }()
	defer server.Stop()

	monitor, _, _ := newMonitor(t, 2*time.Second)
	service := fleet.Service{
		Name:           "svc-grpc",
		Host:           "127.0.0.1",
		Port:           listener.Addr().(*net.TCPAddr).Port,
		HealthEndpoint: "/health",
		Protocol:       fleet.ProtocolGRPC,
	}

	result := monitor.Check(context.Background(), service)
	assert.Equal(t, fleet.StatusHealthy, result.Status)
	assert.Equal(t, "SERVING", result.Payload["status"])

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	result = monitor.Check(context.Background(), service)
	assert.Equal(t, fleet.StatusUnhealthy, result.Status)
	assert.Empty(t, result.Error)

	service.HealthEndpoint = "/missing.Service"
	result = monitor.Check(context.Background(), service)
	assert.Equal(t, fleet.StatusUnhealthy, result.Status)
	assert.NotEmpty(t, result.Error)
}
