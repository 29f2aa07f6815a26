package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
	"github.com/core-tools/hsu-orchestrator/pkg/decision"
	"github.com/core-tools/hsu-orchestrator/pkg/domain"
	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/syncbridge"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"
)

// NewHTTPClientGateway returns a domain.Contract that calls a remote
// orchestrator. Error responses are turned back into domain errors of the
// same type.
func NewHTTPClientGateway(baseURL string, client *http.Client, logger logging.Logger) domain.Contract {
	if client == nil {
		client = &http.Client{}
	}
	return &httpClientGateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type httpClientGateway struct {
	baseURL string
	client  *http.Client
	logger  logging.Logger
}

func (gw *httpClientGateway) Health(ctx context.Context) (domain.SelfStatus, error) {
	var status domain.SelfStatus
	err := gw.call(ctx, "Health", http.MethodGet, "/health", nil, &status)
	return status, err
}

func (gw *httpClientGateway) Register(ctx context.Context, registration fleet.Registration) (fleet.Service, error) {
	var response struct {
		Service fleet.Service `json:"service"`
	}
	err := gw.call(ctx, "Register", http.MethodPost, "/register", registration, &response)
	return response.Service, err
}

func (gw *httpClientGateway) Services(ctx context.Context) ([]fleet.Service, error) {
	var response servicesResponse
	err := gw.call(ctx, "Services", http.MethodGet, "/services", nil, &response)
	return response.Services, err
}

func (gw *httpClientGateway) ResetService(ctx context.Context, name string) (fleet.Service, error) {
	var service fleet.Service
	err := gw.call(ctx, "ResetService", http.MethodPost, "/services/"+url.PathEscape(name)+"/reset", nil, &service)
	return service, err
}

func (gw *httpClientGateway) Decisions(ctx context.Context) ([]decision.Decision, error) {
	var response struct {
		Decisions []decision.Decision `json:"decisions"`
	}
	err := gw.call(ctx, "Decisions", http.MethodGet, "/decisions", nil, &response)
	return response.Decisions, err
}

func (gw *httpClientGateway) Action(ctx context.Context, service, action, reason string) (actions.Result, error) {
	var result actions.Result
	path := "/action/" + url.PathEscape(service) + "/" + url.PathEscape(action)
	err := gw.call(ctx, "Action", http.MethodPost, path, ActionRequest{Reason: reason}, &result)
	return result, err
}

func (gw *httpClientGateway) Intelligence(ctx context.Context, service string) (domain.Intelligence, error) {
	var intelligence domain.Intelligence
	err := gw.call(ctx, "Intelligence", http.MethodGet, "/intelligence/"+url.PathEscape(service), nil, &intelligence)
	return intelligence, err
}

func (gw *httpClientGateway) Analyze(ctx context.Context) (domain.AnalysisReport, error) {
	var report domain.AnalysisReport
	err := gw.call(ctx, "Analyze", http.MethodPost, "/analyze", nil, &report)
	return report, err
}

func (gw *httpClientGateway) Ingest(ctx context.Context, request domain.IngestRequest) (thoughts.Thought, error) {
	var thought thoughts.Thought
	err := gw.call(ctx, "Ingest", http.MethodPost, "/ingest", request, &thought)
	return thought, err
}

func (gw *httpClientGateway) SyncForce(ctx context.Context) (syncbridge.SyncLogEntry, error) {
	var entry syncbridge.SyncLogEntry
	err := gw.call(ctx, "SyncForce", http.MethodPost, "/sync/force", nil, &entry)
	return entry, err
}

func (gw *httpClientGateway) SyncStatus(ctx context.Context) (domain.SyncStatus, error) {
	var status domain.SyncStatus
	err := gw.call(ctx, "SyncStatus", http.MethodGet, "/sync/status", nil, &status)
	return status, err
}

func (gw *httpClientGateway) SyncHealth(ctx context.Context) (syncbridge.Health, error) {
	var health syncbridge.Health
	err := gw.call(ctx, "SyncHealth", http.MethodGet, "/sync/health", nil, &health)
	return health, err
}

func (gw *httpClientGateway) BridgeThought(ctx context.Context, request domain.BridgeRequest) (domain.BridgeResult, error) {
	var result domain.BridgeResult
	err := gw.call(ctx, "BridgeThought", http.MethodPost, "/sync/bridge-thought", request, &result)
	return result, err
}

func (gw *httpClientGateway) call(ctx context.Context, operation, method, path string, body, out interface{}) error {
	err := gw.do(ctx, method, path, body, out)
	if err != nil {
		gw.logger.Errorf("%s client gateway: %v", operation, err)
		return err
	}
	gw.logger.Debugf("%s client gateway done", operation)
	return nil
}

func (gw *httpClientGateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, gw.baseURL+path, reader)
	if err != nil {
		return errors.NewValidationError("invalid request", err).WithContext("path", path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := gw.client.Do(req)
	if err != nil {
		return errors.NewIOError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewIOError("failed to decode response", err).WithContext("path", path)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var response ErrorResponse
	if err := json.Unmarshal(data, &response); err != nil || response.Type == "" {
		return errors.NewInternalError(fmt.Sprintf("unexpected response %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}
	return errors.NewDomainError(response.Type, response.Error, nil).WithContext("status", resp.StatusCode)
}
