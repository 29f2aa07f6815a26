package thoughtstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGistAPI serves the subset of the GitHub gist API the store uses.
type fakeGistAPI struct {
	mutex    sync.Mutex
	gists    map[string]map[string]interface{}
	order    []string
	comments map[string][]string
}

func newFakeGistAPI() *fakeGistAPI {
	return &fakeGistAPI{gists: map[string]map[string]interface{}{}, comments: map[string][]string{}}
}

func (f *fakeGistAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	w.Header().Set("Content-Type", "application/json")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.Method == http.MethodPost && len(parts) == 1:
		var gist map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&gist)
		id := "g" + string(rune('a'+len(f.order)))
		gist["id"] = id
		gist["created_at"] = time.Now().UTC().Format(time.RFC3339)
		f.gists[id] = gist
		f.order = append(f.order, id)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(gist)

	case r.Method == http.MethodGet && len(parts) == 1:
		summaries := make([]map[string]interface{}, 0)
		for i := len(f.order) - 1; i >= 0; i-- {
			gist := f.gists[f.order[i]]
			summaries = append(summaries, map[string]interface{}{"id": gist["id"], "description": gist["description"]})
		}
		_ = json.NewEncoder(w).Encode(summaries)

	case r.Method == http.MethodGet && len(parts) == 2:
		gist, ok := f.gists[parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(gist)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "comments":
		if _, ok := f.gists[parts[1]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		var comment map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&comment)
		body, _ := comment["body"].(string)
		f.comments[parts[1]] = append(f.comments[parts[1]], body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestGistStore(t *testing.T) {
	api := newFakeGistAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	ctx := context.Background()
	store, err := NewGistStore(ctx, GistOptions{Origin: "hosting-toolkit", HTTPClient: server.Client(), BaseURL: server.URL})
	require.NoError(t, err)

	id, err := store.Create(ctx, CreateRequest{
		Intent:         "api-performance: Hosting insight",
		Content:        "# Report\nresponse_time is high",
		Priority:       12,
		Source:         "orchestrator",
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	again, err := store.Create(ctx, CreateRequest{Intent: "api-performance: Hosting insight", IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := store.Create(ctx, CreateRequest{Intent: "scaling: Orchestrator", Content: "scale up", Priority: 6})
	require.NoError(t, err)

	records, err := store.List(ctx, Filter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, other, records[0].ID)

	report := records[1]
	assert.Equal(t, "api-performance: Hosting insight", report.Intent)
	assert.Equal(t, "# Report\nresponse_time is high", report.Content)
	assert.Equal(t, 10, report.Priority)
	assert.Equal(t, "orchestrator", report.Source)

	require.NoError(t, store.Link(ctx, id, other, RelationshipCrossNetwork))
	require.Len(t, api.comments[id], 1)
	assert.Contains(t, api.comments[id][0], other)

	err = store.Link(ctx, "missing", other, RelationshipCrossNetwork)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGistStore_RequiresToken(t *testing.T) {
	_, err := NewGistStore(context.Background(), GistOptions{})
	assert.True(t, errors.IsValidationError(err))
}

func TestSplitFrontmatter(t *testing.T) {
	body, err := renderGist(gistMetadata{Intent: "x", Priority: 3, Origin: "o"}, "hello\n---\nworld")
	require.NoError(t, err)

	metadata, content, ok := splitFrontmatter(body)
	require.True(t, ok)
	assert.Equal(t, "x", metadata.Intent)
	assert.Equal(t, 3, metadata.Priority)
	assert.Equal(t, "hello\n---\nworld", content)

	_, content, ok = splitFrontmatter("no header")
	assert.False(t, ok)
	assert.Equal(t, "no header", content)
}

// thoughtsAPI mimics the orchestrator's /thoughts surface over a MemoryStore.
func thoughtsAPI(store *MemoryStore) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/thoughts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var request CreateRequest
			_ = json.NewDecoder(r.Body).Decode(&request)
			id, err := store.Create(r.Context(), request)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
		default:
			records, _ := store.List(r.Context(), Filter{Query: r.URL.Query().Get("query")})
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"thoughts": records})
		}
	})
	mux.HandleFunc("/thoughts/link", func(w http.ResponseWriter, r *http.Request) {
		var request LinkRequest
		_ = json.NewDecoder(r.Body).Decode(&request)
		if err := store.Link(r.Context(), request.FromID, request.ToID, request.Relationship); err != nil {
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return mux
}

func TestHTTPStore(t *testing.T) {
	backend := NewMemoryStore()
	server := httptest.NewServer(thoughtsAPI(backend))
	defer server.Close()

	ctx := context.Background()
	store := NewHTTPStore(server.URL+"/", server.Client())

	a, err := store.Create(ctx, CreateRequest{Intent: "scaling: svc-a", Content: "scaling", Priority: 6})
	require.NoError(t, err)
	b, err := store.Create(ctx, CreateRequest{Intent: "deployment: svc-b", Content: "deploy", Priority: 6})
	require.NoError(t, err)

	records, err := store.List(ctx, Filter{Query: "scaling"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, a, records[0].ID)

	require.NoError(t, store.Link(ctx, a, b, RelationshipCrossNetwork))
	assert.Len(t, backend.Links(), 1)

	assert.True(t, errors.IsNotFoundError(store.Link(ctx, "nope", a, RelationshipCrossNetwork)))
}

func TestHTTPStore_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := NewHTTPStore(server.URL, nil).Create(context.Background(), CreateRequest{Intent: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsStoreUnavailableError(err))
}

func TestRegistryClient(t *testing.T) {
	var received ServiceRegistration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
	}))
	defer server.Close()

	err := NewRegistryClient(server.URL+"/register", nil).Register(context.Background(),
		ServiceRegistration{ServiceName: "svc-a", Port: 8081, HealthEndpoint: "/health"})
	require.NoError(t, err)
	assert.Equal(t, "svc-a", received.ServiceName)
}

type slowStore struct{ Store }

func (slowStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	store := WithTimeout(slowStore{Store: NewMemoryStore()}, 10*time.Millisecond)

	_, err := store.List(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, errors.IsStoreUnavailableError(err))
	assert.True(t, errors.IsTimeoutError(err))

	_, err = store.Create(context.Background(), CreateRequest{Intent: "fast"})
	assert.NoError(t, err)
}

func TestRateLimited(t *testing.T) {
	store := NewRateLimited(NewMemoryStore(), 1000, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, CreateRequest{Intent: "throttled"})
		require.NoError(t, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := NewRateLimited(NewMemoryStore(), 0.001, 1).List(cancelled, Filter{})
	assert.True(t, errors.IsStoreUnavailableError(err))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("THOUGHTSTORE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("THOUGHTSTORE_POSTGRES_DSN not set")
	}
	store, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store)
}
