package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/scheduler"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const maxHealthBody = 1 << 20

// Payload status values that mark a 2xx response as unhealthy.
var unhealthyPayloadStatuses = map[string]bool{
	"unhealthy": true,
	"down":      true,
	"error":     true,
	"failing":   true,
}

type HealthMonitorOptions struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Clock      scheduler.Clock
}

// HealthMonitor probes managed services and folds the results into the
// registry. It never retries; repeated failures are the decision engine's
// concern.
type HealthMonitor struct {
	registry *fleet.Registry
	emitter  thoughts.Emitter
	client   *http.Client
	timeout  time.Duration
	clock    scheduler.Clock
	logger   logging.Logger
}

func NewHealthMonitor(registry *fleet.Registry, emitter thoughts.Emitter, options HealthMonitorOptions, logger logging.Logger) *HealthMonitor {
	if options.Timeout <= 0 {
		options.Timeout = 5 * time.Second
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{}
	}
	if options.Clock == nil {
		options.Clock = scheduler.RealClock()
	}
	return &HealthMonitor{
		registry: registry,
		emitter:  emitter,
		client:   options.HTTPClient,
		timeout:  options.Timeout,
		clock:    options.Clock,
		logger:   logger,
	}
}

// Poll checks one service, merges the extracted metrics, updates the
// registry and emits a health_check or health_error thought under the
// service's name.
func (h *HealthMonitor) Poll(ctx context.Context, serviceName string) (fleet.HealthCheckResult, error) {
	service, err := h.registry.Get(serviceName)
	if err != nil {
		return fleet.HealthCheckResult{}, err
	}

	result := h.Check(ctx, service)
	// A failed probe measured the timeout, not the service.
	var metrics fleet.Metrics
	if result.Error == "" {
		metrics = ExtractMetrics(result.Payload, result.Latency)
	}

	if _, err := h.registry.RecordHealth(result, metrics); err != nil {
		return result, err
	}

	if result.Error != "" {
		h.emitter.Emit(serviceName, thoughts.EventHealthError, thoughts.PriorityHealthError, map[string]interface{}{
			"status":    string(result.Status),
			"error":     result.Error,
			"timestamp": result.Timestamp,
		})
		return result, nil
	}

	h.emitter.Emit(serviceName, thoughts.EventHealthCheck, thoughts.PriorityHealthCheck, map[string]interface{}{
		"status":        string(result.Status),
		"response_time": result.LatencyMs(),
		"timestamp":     result.Timestamp,
		"data":          result.Payload,
	})
	return result, nil
}

// Check probes a service once within the monitor's timeout. Unreachable
// services produce an unhealthy result carrying the error text.
func (h *HealthMonitor) Check(ctx context.Context, service fleet.Service) fleet.HealthCheckResult {
	h.logger.Debugf("Performing health check, service: %s, protocol: %s, address: %s",
		service.Name, service.Protocol, service.Address())

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	started := h.clock.Now()
	var (
		status  fleet.Status
		payload map[string]interface{}
		err     error
	)
	if err = ValidateTarget(service); err == nil {
		switch service.Protocol {
		case fleet.ProtocolGRPC:
			status, payload, err = h.checkGRPC(ctx, service)
		default:
			status, payload, err = h.checkHTTP(ctx, service)
		}
	}

	result := fleet.HealthCheckResult{
		Service:   service.Name,
		Status:    status,
		Latency:   h.clock.Now().Sub(started),
		Timestamp: started,
		Payload:   payload,
	}
	if err != nil {
		result.Status = fleet.StatusUnhealthy
		result.Error = err.Error()
		h.logger.Warnf("Health check failed, service: %s, error: %v", service.Name, err)
	} else if status != fleet.StatusHealthy {
		h.logger.Warnf("Health check reported unhealthy, service: %s, latency: %v", service.Name, result.Latency)
	} else {
		h.logger.Debugf("Health check passed, service: %s, latency: %v", service.Name, result.Latency)
	}
	return result
}

func (h *HealthMonitor) checkHTTP(ctx context.Context, service fleet.Service) (fleet.Status, map[string]interface{}, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, service.HealthURL(), nil)
	if err != nil {
		return fleet.StatusUnhealthy, nil, errors.NewValidationError("failed to create health request", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := h.client.Do(request)
	if err != nil {
		return fleet.StatusUnhealthy, nil, transientError(ctx, service, err)
	}
	defer response.Body.Close()

	payload := decodePayload(response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fleet.StatusUnhealthy, payload, errors.NewTransientServiceError(
			fmt.Sprintf("health endpoint returned status %d", response.StatusCode), nil).
			WithContext("service", service.Name).
			WithContext("status_code", response.StatusCode)
	}
	return statusFromPayload(payload), payload, nil
}

// checkGRPC uses the standard gRPC health protocol. The health endpoint
// names the checked gRPC service; "/" and "/health" check the whole server.
func (h *HealthMonitor) checkGRPC(ctx context.Context, service fleet.Service) (fleet.Status, map[string]interface{}, error) {
	conn, err := grpc.NewClient(service.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fleet.StatusUnhealthy, nil, errors.NewValidationError("invalid gRPC target", err).
			WithContext("address", service.Address())
	}
	defer conn.Close()

	name := strings.TrimPrefix(service.HealthEndpoint, "/")
	if name == "health" {
		name = ""
	}

	response, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: name})
	if err != nil {
		return fleet.StatusUnhealthy, nil, transientError(ctx, service, err)
	}

	payload := map[string]interface{}{"status": response.GetStatus().String()}
	if response.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fleet.StatusUnhealthy, payload, nil
	}
	return fleet.StatusHealthy, payload, nil
}

func transientError(ctx context.Context, service fleet.Service, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewTransientServiceError("health check timed out", errors.NewTimeoutError("deadline exceeded", err)).
			WithContext("service", service.Name)
	}
	return errors.NewTransientServiceError("health check unreachable", err).WithContext("service", service.Name)
}

// decodePayload reads a JSON object body. Anything else yields nil, which
// is treated as "no metrics" rather than a failure.
func decodePayload(body io.Reader) map[string]interface{} {
	data, err := io.ReadAll(io.LimitReader(body, maxHealthBody))
	if err != nil || len(data) == 0 {
		return nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return payload
}

func statusFromPayload(payload map[string]interface{}) fleet.Status {
	if healthy, ok := payload["healthy"].(bool); ok && !healthy {
		return fleet.StatusUnhealthy
	}
	if status, ok := payload["status"].(string); ok && unhealthyPayloadStatuses[strings.ToLower(status)] {
		return fleet.StatusUnhealthy
	}
	return fleet.StatusHealthy
}
