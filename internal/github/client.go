// package github is the bot's client for the issue-tracking platform's REST
// API: issues, comments, labels, and the voting team roster.
package github

import (
	"context"
	"errors"

	"github.com/fcpbot/fcpbot/internal/models"
)

var ErrNotFound = errors.New("not found")

// Client is the capability surface the FCP state machine needs. External-call
// failures are returned as errors; retry policy lives inside the
// implementation, not in the callers.
type Client interface {
	GetIssue(ctx context.Context, number int) (models.Issue, error)
	ListComments(ctx context.Context, number int) ([]models.Comment, error)
	CreateComment(ctx context.Context, number int, body string) (models.Comment, error)
	EditComment(ctx context.Context, commentID int64, body string) error
	SetLabels(ctx context.Context, number int, labels []string) error
	CloseIssue(ctx context.Context, number int) error
	TeamMembers(ctx context.Context) ([]models.TeamMember, error)
}

// TokenSource supplies the bearer token for API requests. A static personal
// access token and a GitHub-App JWT source are provided.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed personal access token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}
