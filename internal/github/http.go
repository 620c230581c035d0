package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fcpbot/fcpbot/internal/models"
)

type HTTPClientConfig struct {
	BaseURL    string
	Owner      string
	Repo       string
	TeamSlug   string
	Tokens     TokenSource
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// HTTPClient talks to a GitHub-compatible REST API. Reads are retried a
// bounded number of times; writes are attempted once, since the state
// machine re-reads fresh state on the next event anyway.
type HTTPClient struct {
	baseURL  string
	owner    string
	repo     string
	teamSlug string
	tokens   TokenSource
	client   *http.Client
	timeout  time.Duration
	retries  int
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("github base url required")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github owner and repo required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("github token source required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		teamSlug: cfg.TeamSlug,
		tokens:   cfg.Tokens,
		client:   client,
		timeout:  timeout,
		retries:  retries,
	}, nil
}

type issuePayload struct {
	Number int    `json:"number"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

type commentPayload struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
}

type memberPayload struct {
	Login string `json:"login"`
}

func (c *HTTPClient) GetIssue(ctx context.Context, number int) (models.Issue, error) {
	var payload issuePayload
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.repo, number)
	if err := c.get(ctx, path, &payload); err != nil {
		return models.Issue{}, fmt.Errorf("get issue #%d: %w", number, err)
	}
	issue := models.Issue{Number: payload.Number, State: payload.State}
	for _, l := range payload.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}
	return issue, nil
}

func (c *HTTPClient) ListComments(ctx context.Context, number int) ([]models.Comment, error) {
	var payload []commentPayload
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?per_page=100", c.owner, c.repo, number)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("list comments for #%d: %w", number, err)
	}
	comments := make([]models.Comment, 0, len(payload))
	for _, p := range payload {
		comments = append(comments, models.Comment{
			ID:      p.ID,
			Body:    p.Body,
			Author:  p.User.Login,
			HTMLURL: p.HTMLURL,
		})
	}
	return comments, nil
}

func (c *HTTPClient) CreateComment(ctx context.Context, number int, body string) (models.Comment, error) {
	var payload commentPayload
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, c.repo, number)
	if err := c.write(ctx, http.MethodPost, path, map[string]string{"body": body}, &payload); err != nil {
		return models.Comment{}, fmt.Errorf("create comment on #%d: %w", number, err)
	}
	return models.Comment{
		ID:      payload.ID,
		Body:    payload.Body,
		Author:  payload.User.Login,
		HTMLURL: payload.HTMLURL,
	}, nil
}

func (c *HTTPClient) EditComment(ctx context.Context, commentID int64, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d", c.owner, c.repo, commentID)
	if err := c.write(ctx, http.MethodPatch, path, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("edit comment %d: %w", commentID, err)
	}
	return nil
}

func (c *HTTPClient) SetLabels(ctx context.Context, number int, labels []string) error {
	if labels == nil {
		labels = []string{}
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", c.owner, c.repo, number)
	if err := c.write(ctx, http.MethodPut, path, map[string][]string{"labels": labels}, nil); err != nil {
		return fmt.Errorf("set labels on #%d: %w", number, err)
	}
	return nil
}

func (c *HTTPClient) CloseIssue(ctx context.Context, number int) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.repo, number)
	if err := c.write(ctx, http.MethodPatch, path, map[string]string{"state": "closed"}, nil); err != nil {
		return fmt.Errorf("close issue #%d: %w", number, err)
	}
	return nil
}

func (c *HTTPClient) TeamMembers(ctx context.Context) ([]models.TeamMember, error) {
	var payload []memberPayload
	path := fmt.Sprintf("/orgs/%s/teams/%s/members?per_page=100", c.owner, c.teamSlug)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	members := make([]models.TeamMember, 0, len(payload))
	for _, p := range payload {
		members = append(members, models.TeamMember{Login: p.Login})
	}
	return members, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return lastErr
}

func (c *HTTPClient) write(ctx context.Context, method, path string, in, out interface{}) error {
	return c.do(ctx, method, path, in, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var bodyReader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(body)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetch token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
