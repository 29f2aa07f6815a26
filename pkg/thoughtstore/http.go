package thoughtstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
)

// HTTPStore talks to another orchestrator's /thoughts API, letting two
// orchestrators act as each other's remote store.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

func NewHTTPStore(baseURL string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPStore{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// LinkRequest is the body of POST /thoughts/link.
type LinkRequest struct {
	FromID       string `json:"from_id"`
	ToID         string `json:"to_id"`
	Relationship string `json:"relationship"`
}

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Thoughts []Record `json:"thoughts"`
}

func (s *HTTPStore) Create(ctx context.Context, request CreateRequest) (string, error) {
	request, err := Normalize(request)
	if err != nil {
		return "", err
	}
	var response createResponse
	if err := s.do(ctx, http.MethodPost, "/thoughts", request, &response); err != nil {
		return "", err
	}
	return response.ID, nil
}

func (s *HTTPStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := url.Values{}
	if filter.Source != "" {
		query.Set("source", filter.Source)
	}
	if filter.Query != "" {
		query.Set("query", filter.Query)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/thoughts"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var response listResponse
	if err := s.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Thoughts, nil
}

func (s *HTTPStore) Link(ctx context.Context, fromID, toID, relationship string) error {
	if err := validateLink(fromID, toID, relationship); err != nil {
		return err
	}
	return s.do(ctx, http.MethodPost, "/thoughts/link", LinkRequest{FromID: fromID, ToID: toID, Relationship: relationship}, nil)
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body, out interface{}) error {
	return doJSON(ctx, s.client, method, s.baseURL+path, body, out)
}

// doJSON sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses map back onto the error taxonomy: 400 validation, 404 not found,
// anything else store unavailable.
func doJSON(ctx context.Context, client *http.Client, method, target string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.NewValidationError("invalid request", err).WithContext("url", target)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.NewStoreUnavailableError(method+" "+target+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		detail := fmt.Sprintf("%s %s returned %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(message)))
		switch resp.StatusCode {
		case http.StatusBadRequest:
			return errors.NewValidationError(detail, nil)
		case http.StatusNotFound:
			return errors.NewNotFoundError(detail, nil)
		default:
			return errors.NewStoreUnavailableError(detail, nil)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewStoreUnavailableError("failed to decode response", err).WithContext("url", target)
	}
	return nil
}

// RegistryClient forwards service registrations to the external registry that
// fronts the thought store.
type RegistryClient struct {
	url    string
	client *http.Client
}

func NewRegistryClient(url string, client *http.Client) *RegistryClient {
	if client == nil {
		client = &http.Client{}
	}
	return &RegistryClient{url: url, client: client}
}

// ServiceRegistration is the payload forwarded to the registry.
type ServiceRegistration struct {
	ServiceName    string `json:"service_name"`
	Port           int    `json:"port"`
	HealthEndpoint string `json:"health_endpoint"`
}

func (c *RegistryClient) Register(ctx context.Context, registration ServiceRegistration) error {
	return doJSON(ctx, c.client, http.MethodPost, c.url, registration, nil)
}
