// package webhook is the HTTP surface of the bot: it receives issue-comment
// events from the platform, authenticates them, filters out the ones the FCP
// state machine does not care about, and hands the rest to the handler.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fcpbot/fcpbot/internal/config"
	"github.com/fcpbot/fcpbot/internal/fcp"
)

const maxPayloadBytes = 1 << 20

// CommentHandler is the slice of the FCP state machine the server drives.
type CommentHandler interface {
	HandleComment(ctx context.Context, ev fcp.CommentEvent) error
}

// Pinger reports backing-store health for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg     config.Config
	handler CommentHandler
	pinger  Pinger
	router  chi.Router
}

func New(cfg config.Config, handler CommentHandler, pinger Pinger) *Server {
	s := &Server{cfg: cfg, handler: handler, pinger: pinger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)

	s.router = r
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			log.Printf("[webhook] health check: store ping failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook authenticates the delivery, filters it, and runs the handler
// synchronously. A handler failure answers 500 so the platform redelivers;
// the state machine is idempotent enough to absorb the replay.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !verifySignature(s.cfg.WebhookSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		log.Printf("[webhook] rejected delivery with bad signature from %s", r.RemoteAddr)
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	if ev := r.Header.Get("X-GitHub-Event"); ev != "issue_comment" {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "reason": "event type"})
		return
	}

	var p commentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if reason, ok := s.filter(p); !ok {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "reason": reason})
		return
	}

	if err := s.handler.HandleComment(r.Context(), p.toEvent()); err != nil {
		log.Printf("[webhook] handling comment on #%d failed: %v", p.Issue.Number, err)
		http.Error(w, "handler error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// filter drops deliveries the state machine must not see: deletions, the
// bot's own comments (except edits of its status document, which users
// trigger by checking boxes), and issues that are not proposals.
func (s *Server) filter(p commentPayload) (string, bool) {
	if p.Action != "created" && p.Action != "edited" {
		return "action", false
	}
	if p.Sender.Login == s.cfg.BotLogin {
		return "own comment", false
	}
	hasProposal := false
	for _, l := range p.Issue.Labels {
		if l.Name == s.cfg.Labels.Proposal {
			hasProposal = true
			break
		}
	}
	if !hasProposal {
		return "not a proposal", false
	}
	return "", true
}

type commentPayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number int `json:"number"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"issue"`
	Comment struct {
		ID      int64  `json:"id"`
		Body    string `json:"body"`
		HTMLURL string `json:"html_url"`
		User    struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"comment"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

func (p commentPayload) toEvent() fcp.CommentEvent {
	labels := make([]string, 0, len(p.Issue.Labels))
	for _, l := range p.Issue.Labels {
		labels = append(labels, l.Name)
	}
	return fcp.CommentEvent{
		Action:        p.Action,
		IssueNumber:   p.Issue.Number,
		Labels:        labels,
		CommentID:     p.Comment.ID,
		CommentBody:   p.Comment.Body,
		CommentURL:    p.Comment.HTMLURL,
		CommentAuthor: p.Comment.User.Login,
		Sender:        p.Sender.Login,
	}
}

// verifySignature checks the X-Hub-Signature-256 header: "sha256=" followed
// by the hex HMAC-SHA256 of the raw body under the shared secret.
func verifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(header))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[webhook] writing response failed: %v", err)
	}
}
