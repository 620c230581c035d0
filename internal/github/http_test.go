package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcpbot/fcpbot/internal/github"
)

func newClient(t *testing.T, srv *httptest.Server, retries int) *github.HTTPClient {
	t.Helper()
	c, err := github.NewHTTPClient(github.HTTPClientConfig{
		BaseURL:  srv.URL,
		Owner:    "example",
		Repo:     "proposals",
		TeamSlug: "spec-core",
		Tokens:   github.StaticToken("tok-123"),
		Retries:  retries,
	})
	require.NoError(t, err)
	return c
}

func TestGetIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/example/proposals/issues/42", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"number":42,"state":"open","labels":[{"name":"proposal"},{"name":"final-comment-period"}]}`))
	}))
	defer srv.Close()

	issue, err := newClient(t, srv, 0).GetIssue(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "open", issue.State)
	assert.Equal(t, []string{"proposal", "final-comment-period"}, issue.Labels)
}

func TestGetIssueNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 0).GetIssue(context.Background(), 1)
	assert.True(t, errors.Is(err, github.ErrNotFound))
}

func TestListCommentsMapsAuthor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"body":"hello","html_url":"https://x/7","user":{"login":"alice"}}]`))
	}))
	defer srv.Close()

	comments, err := newClient(t, srv, 0).ListComments(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, int64(7), comments[0].ID)
	assert.Equal(t, "alice", comments[0].Author)
	assert.Equal(t, "https://x/7", comments[0].HTMLURL)
}

func TestSetLabelsSendsFullReplacement(t *testing.T) {
	var got struct {
		Labels []string `json:"labels"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/repos/example/proposals/issues/42/labels", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	err := newClient(t, srv, 0).SetLabels(context.Background(), 42, []string{"proposal", "final-comment-period"})
	require.NoError(t, err)
	assert.Equal(t, []string{"proposal", "final-comment-period"}, got.Labels)
}

func TestCloseIssue(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	require.NoError(t, newClient(t, srv, 0).CloseIssue(context.Background(), 42))
	assert.Equal(t, "closed", got["state"])
}

func TestGetRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	members, err := newClient(t, srv, 2).TeamMembers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
