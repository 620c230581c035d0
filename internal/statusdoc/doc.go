// package statusdoc renders and parses the status comment: the single
// structured comment per proposal that carries live vote and concern state.
// The text is both the human-facing artifact and the source of truth, so
// decode(render(state)) must be lossless for votes and concerns.
package statusdoc

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/fcpbot/fcpbot/internal/models"
)

var (
	ErrDuplicateConcern = errors.New("concern already raised")
	ErrUnknownConcern   = errors.New("no such concern")
	ErrNoPreamble       = errors.New("body is not a status document")
)

// PreamblePrefix identifies a live status document. A comment is the status
// document iff its body starts with this token and was authored by the bot.
const PreamblePrefix = "Team member @"

// CancelNotice is prepended (never replacing the body) when an FCP proposal
// is cancelled. The original document stays intact below it for audit, but
// no longer starts with the preamble and so stops being live.
const CancelNotice = "**This FCP proposal has been cancelled.**"

// Vote is one roster row: a team member and whether they have reviewed.
type Vote struct {
	Login string
	Voted bool
}

// Concern is a named objection. Text is the identity key, exact match.
type Concern struct {
	Text     string
	Resolved bool
}

// Document is the decoded state of a status comment.
type Document struct {
	Author      string
	Disposition models.Disposition
	Votes       []Vote
	Concerns    []Concern
}

// New builds a fresh document for a newly proposed FCP. The proposing member
// is seeded as the sole voter; the vote list covers the full roster in
// roster order.
func New(author string, disposition models.Disposition, roster []models.TeamMember) *Document {
	d := &Document{
		Author:      author,
		Disposition: disposition,
	}
	for _, m := range roster {
		d.Votes = append(d.Votes, Vote{Login: m.Login, Voted: m.Login == author})
	}
	return d
}

var (
	preambleRe = regexp.MustCompile(`^Team member @(\S+) has proposed to (merge|postpone|close) this`)
	voteRe     = regexp.MustCompile(`(?i)^[-*] \[x\] @(\S+)`)
)

// IsStatusBody reports whether a comment body looks like a live status
// document. Authorship must be checked separately by the caller.
func IsStatusBody(body string) bool {
	return strings.HasPrefix(body, PreamblePrefix)
}

// Cancelled builds the body of a cancelled document. The notice is prepended
// above the existing rendered body; the parseable suffix is preserved
// structurally for audit.
func Cancelled(body string) string {
	return CancelNotice + "\n\n" + body
}

// Render produces the document text. Vote rows reflect the roster the
// document currently holds, concerns are listed unresolved-first (stable
// within each class).
func (d *Document) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Team member @%s has proposed to %s this. The next step is review by the rest of the tagged people:\n\n",
		d.Author, d.Disposition)

	for _, v := range d.Votes {
		mark := " "
		if v.Voted {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] @%s\n", mark, v.Login)
	}

	if len(d.Concerns) > 0 {
		sorted := make([]Concern, len(d.Concerns))
		copy(sorted, d.Concerns)
		sort.SliceStable(sorted, func(i, j int) bool {
			return !sorted[i].Resolved && sorted[j].Resolved
		})

		b.WriteString("\nConcerns:\n\n")
		for _, c := range sorted {
			if c.Resolved {
				fmt.Fprintf(&b, "* ~~%s~~\n", c.Text)
			} else {
				fmt.Fprintf(&b, "* %s\n", c.Text)
			}
		}
	}

	b.WriteString("\nOnce enough tagged reviewers have approved and all concerns are resolved, the final comment period will begin.\n")
	return b.String()
}

// Parse decodes a status document body. Votes are collected from checked
// checkbox lines anywhere in the body; concern lines are only considered
// after the first "Concerns:" marker so the roster list above cannot be
// misread as concerns. A malformed strike-through line is skipped with a
// warning, never fatal.
func Parse(body string) (*Document, error) {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	m := preambleRe.FindStringSubmatch(body)
	if m == nil {
		return nil, ErrNoPreamble
	}
	d := &Document{
		Author:      m[1],
		Disposition: models.Disposition(m[2]),
	}

	inConcerns := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, " \t")

		if vm := voteRe.FindStringSubmatch(line); vm != nil {
			d.Votes = append(d.Votes, Vote{Login: vm[1], Voted: true})
			continue
		}

		if !inConcerns {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "concerns:") {
				inConcerns = true
			}
			continue
		}

		if !strings.HasPrefix(line, "* ") && !strings.HasPrefix(line, "- ") {
			continue
		}
		text := line[2:]
		if strings.HasPrefix(text, "~~") {
			if len(text) < 5 || !strings.HasSuffix(text, "~~") {
				log.Printf("[statusdoc] skipping malformed strike-through line: %q", line)
				continue
			}
			d.Concerns = append(d.Concerns, Concern{Text: text[2 : len(text)-2], Resolved: true})
			continue
		}
		d.Concerns = append(d.Concerns, Concern{Text: text, Resolved: false})
	}

	return d, nil
}

// HasVoted reports whether login is in the voted set.
func (d *Document) HasVoted(login string) bool {
	for _, v := range d.Votes {
		if v.Login == login && v.Voted {
			return true
		}
	}
	return false
}

// SetVoted marks login as having reviewed. Returns false if the vote was
// already recorded (idempotent, not an error). A login missing from the
// roster rows is appended; re-rendering against a live roster will place it
// properly or drop it if no longer a member.
func (d *Document) SetVoted(login string) bool {
	for i, v := range d.Votes {
		if v.Login == login {
			if v.Voted {
				return false
			}
			d.Votes[i].Voted = true
			return true
		}
	}
	d.Votes = append(d.Votes, Vote{Login: login, Voted: true})
	return true
}

// VoteCount returns the number of distinct voters.
func (d *Document) VoteCount() int {
	n := 0
	for _, v := range d.Votes {
		if v.Voted {
			n++
		}
	}
	return n
}

// AddConcern appends an unresolved concern. Identity is exact text match.
func (d *Document) AddConcern(text string) error {
	for _, c := range d.Concerns {
		if c.Text == text {
			return ErrDuplicateConcern
		}
	}
	d.Concerns = append(d.Concerns, Concern{Text: text})
	return nil
}

// ResolveConcern flips a concern to resolved. Concerns are never deleted
// within one document's lifetime.
func (d *Document) ResolveConcern(text string) error {
	for i, c := range d.Concerns {
		if c.Text == text {
			d.Concerns[i].Resolved = true
			return nil
		}
	}
	return ErrUnknownConcern
}

// UnresolvedConcerns returns how many concerns still block FCP start.
func (d *Document) UnresolvedConcerns() int {
	n := 0
	for _, c := range d.Concerns {
		if !c.Resolved {
			n++
		}
	}
	return n
}

// ApplyRoster rebuilds the vote rows against the live roster, preserving
// recorded votes. Members added since the last render gain an unchecked row;
// members removed drop off.
func (d *Document) ApplyRoster(roster []models.TeamMember) {
	voted := map[string]bool{}
	for _, v := range d.Votes {
		if v.Voted {
			voted[v.Login] = true
		}
	}
	rows := make([]Vote, 0, len(roster))
	for _, m := range roster {
		rows = append(rows, Vote{Login: m.Login, Voted: voted[m.Login]})
	}
	d.Votes = rows
}
