package models

import (
	"time"
)

// Disposition is the outcome proposed for a final comment period.
type Disposition string

const (
	DispositionMerge    Disposition = "merge"
	DispositionPostpone Disposition = "postpone"
	DispositionClose    Disposition = "close"
)

// ParseDisposition maps a raw command argument to a Disposition.
func ParseDisposition(s string) (Disposition, bool) {
	switch Disposition(s) {
	case DispositionMerge, DispositionPostpone, DispositionClose:
		return Disposition(s), true
	}
	return "", false
}

// Issue is the platform's view of a proposal. The bot references issues by
// number and never owns them.
type Issue struct {
	Number int      `json:"number"`
	State  string   `json:"state"`
	Labels []string `json:"labels"`
}

// Comment is a single comment on a proposal issue.
type Comment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	Author  string `json:"author"`
	HTMLURL string `json:"htmlUrl"`
}

// TeamMember is one entry of the voting team roster.
type TeamMember struct {
	Login string `json:"login"`
}

// Timer is a persisted (proposal, fire time) pair. At most one per proposal.
type Timer struct {
	ProposalNum int       `json:"proposalNum"`
	EndsAt      time.Time `json:"endsAt"`
}
