package thoughtstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

const (
	gistDescriptionPrefix = "thought: "
	gistFrontmatterFence  = "---"
	gistListPageSize      = 100
)

// gistMetadata is the frontmatter block at the top of every thought gist.
type gistMetadata struct {
	Origin         string `yaml:"origin_hydra"`
	Intent         string `yaml:"intent"`
	Priority       int    `yaml:"priority"`
	Timestamp      string `yaml:"timestamp"`
	Version        string `yaml:"version"`
	Status         string `yaml:"status"`
	NodeID         string `yaml:"node_id,omitempty"`
	ParentGist     string `yaml:"parent_gist,omitempty"`
	Source         string `yaml:"source,omitempty"`
	IdempotencyKey string `yaml:"idempotency_key,omitempty"`
}

// GistStore keeps each thought as a private GitHub gist with a YAML
// frontmatter header. Links are recorded as comments on the source gist.
type GistStore struct {
	client *github.Client
	origin string
	now    func() time.Time

	// Remembers ids of idempotency keys created by this process. Gists have
	// no server-side uniqueness, so duplicates across restarts are possible.
	mutex sync.Mutex
	keys  map[string]string
}

type GistOptions struct {
	Token  string
	Origin string
	// HTTPClient overrides the transport; Token is ignored when set.
	HTTPClient *http.Client
	// BaseURL points the client at a GitHub Enterprise or test server.
	BaseURL string
}

func NewGistStore(ctx context.Context, options GistOptions) (*GistStore, error) {
	httpClient := options.HTTPClient
	if httpClient == nil {
		if options.Token == "" {
			return nil, errors.NewValidationError("gist store requires a GitHub token", nil)
		}
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: options.Token})
		httpClient = oauth2.NewClient(ctx, tokenSource)
	}

	client := github.NewClient(httpClient)
	if options.BaseURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(options.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.NewValidationError("invalid gist base url", err).WithContext("url", options.BaseURL)
		}
		client.BaseURL = baseURL
	}

	origin := options.Origin
	if origin == "" {
		origin = "hsu-orchestrator"
	}

	return &GistStore{
		client: client,
		origin: origin,
		now:    time.Now,
		keys:   make(map[string]string),
	}, nil
}

func (s *GistStore) Create(ctx context.Context, request CreateRequest) (string, error) {
	request, err := Normalize(request)
	if err != nil {
		return "", err
	}

	if request.IdempotencyKey != "" {
		s.mutex.Lock()
		id, exists := s.keys[request.IdempotencyKey]
		s.mutex.Unlock()
		if exists {
			return id, nil
		}
	}

	metadata := gistMetadata{
		Origin:         s.origin,
		Intent:         request.Intent,
		Priority:       request.Priority,
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		Version:        "1.0.0",
		Status:         StatusNew,
		NodeID:         request.IdempotencyKey,
		ParentGist:     request.ParentID,
		Source:         request.Source,
		IdempotencyKey: request.IdempotencyKey,
	}
	body, err := renderGist(metadata, request.Content)
	if err != nil {
		return "", errors.NewInternalError("failed to render gist frontmatter", err)
	}

	gist := &github.Gist{
		Description: github.String(fmt.Sprintf("%s%s | origin: %s", gistDescriptionPrefix, request.Intent, s.origin)),
		Public:      github.Bool(false),
		Files: map[github.GistFilename]github.GistFile{
			github.GistFilename(gistFilename(request.Intent)): {Content: github.String(body)},
		},
	}

	created, _, err := s.client.Gists.Create(ctx, gist)
	if err != nil {
		return "", unavailable("gist create", err)
	}

	id := created.GetID()
	if request.IdempotencyKey != "" {
		s.mutex.Lock()
		s.keys[request.IdempotencyKey] = id
		s.mutex.Unlock()
	}
	return id, nil
}

func (s *GistStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	options := &github.GistListOptions{ListOptions: github.ListOptions{PerPage: gistListPageSize}}
	gists, _, err := s.client.Gists.List(ctx, "", options)
	if err != nil {
		return nil, unavailable("gist list", err)
	}

	records := make([]Record, 0)
	for _, summary := range gists {
		if !strings.HasPrefix(summary.GetDescription(), gistDescriptionPrefix) {
			continue
		}
		// List omits file contents.
		gist, _, err := s.client.Gists.Get(ctx, summary.GetID())
		if err != nil {
			return nil, unavailable("gist get", err)
		}
		record, ok := parseGist(gist)
		if !ok || !filter.Matches(record) {
			continue
		}
		records = append(records, record)
		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}
	}
	return records, nil
}

func (s *GistStore) Link(ctx context.Context, fromID, toID, relationship string) error {
	if err := validateLink(fromID, toID, relationship); err != nil {
		return err
	}
	body := fmt.Sprintf("link: %s\nrelationship: %s\n", toID, relationship)
	_, resp, err := s.client.Gists.CreateComment(ctx, fromID, &github.GistComment{Body: github.String(body)})
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return errors.NewNotFoundError("thought not found", err).WithContext("id", fromID)
	}
	return unavailable("gist link", err)
}

func gistFilename(intent string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(intent) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == ':':
			b.WriteRune('_')
		}
		if b.Len() >= 50 {
			break
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "untitled"
	}
	return name + "_thought.md"
}

func renderGist(metadata gistMetadata, content string) (string, error) {
	header, err := yaml.Marshal(metadata)
	if err != nil {
		return "", err
	}
	var b bytes.Buffer
	b.WriteString(gistFrontmatterFence + "\n")
	b.Write(header)
	b.WriteString(gistFrontmatterFence + "\n\n")
	b.WriteString(content)
	return b.String(), nil
}

// parseGist reads a thought back from a gist. Gists without frontmatter keep
// their description as intent.
func parseGist(gist *github.Gist) (Record, bool) {
	var body string
	for _, file := range gist.Files {
		body = file.GetContent()
		break
	}

	record := Record{
		ID:       gist.GetID(),
		Intent:   strings.TrimPrefix(gist.GetDescription(), gistDescriptionPrefix),
		Priority: 5,
		Status:   StatusNew,
	}
	if gist.CreatedAt != nil {
		record.Timestamp = gist.CreatedAt.Time
	}

	metadata, content, ok := splitFrontmatter(body)
	if !ok {
		record.Content = body
		return record, true
	}
	record.Content = content
	if metadata.Intent != "" {
		record.Intent = metadata.Intent
	}
	if metadata.Priority != 0 {
		record.Priority = ClampPriority(metadata.Priority)
	}
	if metadata.Status != "" {
		record.Status = metadata.Status
	}
	record.Source = metadata.Source
	if record.Source == "" {
		record.Source = metadata.Origin
	}
	record.ParentID = metadata.ParentGist
	if ts, err := time.Parse(time.RFC3339, metadata.Timestamp); err == nil {
		record.Timestamp = ts
	}
	return record, true
}

func splitFrontmatter(body string) (gistMetadata, string, bool) {
	var metadata gistMetadata
	if !strings.HasPrefix(body, gistFrontmatterFence+"\n") {
		return metadata, body, false
	}
	rest := body[len(gistFrontmatterFence)+1:]
	end := strings.Index(rest, "\n"+gistFrontmatterFence+"\n")
	if end < 0 {
		return metadata, body, false
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), &metadata); err != nil {
		return metadata, body, false
	}
	content := strings.TrimPrefix(rest[end+len(gistFrontmatterFence)+2:], "\n")
	return metadata, content, true
}
