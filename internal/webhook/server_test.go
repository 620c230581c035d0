package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fcpbot/fcpbot/internal/config"
	"github.com/fcpbot/fcpbot/internal/fcp"
)

const testSecret = "hunter2"

type captureHandler struct {
	events []fcp.CommentEvent
	err    error
}

func (h *captureHandler) HandleComment(ctx context.Context, ev fcp.CommentEvent) error {
	h.events = append(h.events, ev)
	return h.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func testServerConfig() config.Config {
	return config.Config{
		BotLogin:      "fcpbot",
		WebhookSecret: testSecret,
		Labels:        config.Labels{Proposal: "proposal"},
	}
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, s *Server, body, signature, eventType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	req.Header.Set("X-GitHub-Event", eventType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

const commentCreated = `{
	"action": "created",
	"issue": {"number": 42, "labels": [{"name": "proposal"}, {"name": "proposal-in-review"}]},
	"comment": {"id": 7, "body": "@fcpbot fcp merge", "html_url": "https://example.test/c/7", "user": {"login": "alice"}},
	"sender": {"login": "alice"}
}`

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := &captureHandler{}
	s := New(testServerConfig(), h, nil)

	rec := deliver(t, s, commentCreated, "sha256=deadbeef", "issue_comment")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.events)

	rec = deliver(t, s, commentCreated, "", "issue_comment")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookDispatchesComment(t *testing.T) {
	h := &captureHandler{}
	s := New(testServerConfig(), h, nil)

	rec := deliver(t, s, commentCreated, sign(commentCreated), "issue_comment")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, h.events, 1)
	ev := h.events[0]
	assert.Equal(t, "created", ev.Action)
	assert.Equal(t, 42, ev.IssueNumber)
	assert.Equal(t, []string{"proposal", "proposal-in-review"}, ev.Labels)
	assert.Equal(t, int64(7), ev.CommentID)
	assert.Equal(t, "@fcpbot fcp merge", ev.CommentBody)
	assert.Equal(t, "alice", ev.CommentAuthor)
	assert.Equal(t, "alice", ev.Sender)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	h := &captureHandler{}
	s := New(testServerConfig(), h, nil)

	rec := deliver(t, s, commentCreated, sign(commentCreated), "issues")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, h.events)
}

func TestWebhookIgnoresBotOwnComments(t *testing.T) {
	h := &captureHandler{}
	s := New(testServerConfig(), h, nil)

	body := strings.ReplaceAll(commentCreated, `"sender": {"login": "alice"}`, `"sender": {"login": "fcpbot"}`)
	rec := deliver(t, s, body, sign(body), "issue_comment")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, h.events)
}

func TestWebhookIgnoresNonProposalIssues(t *testing.T) {
	h := &captureHandler{}
	s := New(testServerConfig(), h, nil)

	body := strings.ReplaceAll(commentCreated, `{"name": "proposal"}, `, "")
	rec := deliver(t, s, body, sign(body), "issue_comment")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, h.events)
}

func TestWebhookIgnoresDeletedComments(t *testing.T) {
	h := &captureHandler{}
	s := New(testServerConfig(), h, nil)

	body := strings.ReplaceAll(commentCreated, `"action": "created"`, `"action": "deleted"`)
	rec := deliver(t, s, body, sign(body), "issue_comment")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, h.events)
}

func TestWebhookHandlerFailureAnswers500(t *testing.T) {
	h := &captureHandler{err: errors.New("platform down")}
	s := New(testServerConfig(), h, nil)

	rec := deliver(t, s, commentCreated, sign(commentCreated), "issue_comment")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s := New(testServerConfig(), &captureHandler{}, fakePinger{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	s = New(testServerConfig(), &captureHandler{}, fakePinger{err: errors.New("no db")})
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
