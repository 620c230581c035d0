// package fcp drives the final comment period lifecycle for proposals:
// proposed -> FCP proposed -> FCP -> finished, with a disposition enacted at
// the end. State lives in the proposal's labels and its status comment; this
// package reconciles both against incoming comment events and timer firings.
package fcp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fcpbot/fcpbot/internal/archive"
	"github.com/fcpbot/fcpbot/internal/command"
	"github.com/fcpbot/fcpbot/internal/config"
	"github.com/fcpbot/fcpbot/internal/events"
	"github.com/fcpbot/fcpbot/internal/github"
	"github.com/fcpbot/fcpbot/internal/models"
	"github.com/fcpbot/fcpbot/internal/statusdoc"
)

// TimerScheduler is the slice of the scheduler the state machine drives.
type TimerScheduler interface {
	Schedule(ctx context.Context, proposalNum int, at time.Time) error
	Cancel(ctx context.Context, proposalNum int) error
}

// CommentEvent is one inbound comment event, as delivered by the webhook
// layer. Labels is the label snapshot the platform attached to the payload.
type CommentEvent struct {
	Action        string
	IssueNumber   int
	Labels        []string
	CommentID     int64
	CommentBody   string
	CommentURL    string
	CommentAuthor string
	Sender        string
}

// Handler is the FCP state machine. All operations for one proposal are
// serialized by a per-proposal mutex; operations on different proposals may
// run concurrently.
type Handler struct {
	cfg      config.Config
	client   github.Client
	timers   TimerScheduler
	events   events.Publisher
	archiver archive.Archiver
	now      func() time.Time

	commands map[string]func(*eventContext, []string) error

	locksMu sync.Mutex
	locks   map[int]*sync.Mutex
}

func New(cfg config.Config, client github.Client, timers TimerScheduler, pub events.Publisher, arch archive.Archiver) *Handler {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if arch == nil {
		arch = archive.NopArchiver{}
	}
	h := &Handler{
		cfg:      cfg,
		client:   client,
		timers:   timers,
		events:   pub,
		archiver: arch,
		now:      time.Now,
		locks:    map[int]*sync.Mutex{},
	}
	h.commands = map[string]func(*eventContext, []string) error{
		"fcp":      h.cmdFCP,
		"review":   h.cmdReview,
		"reviewed": h.cmdReview,
		"concern":  h.cmdConcern,
		"resolve":  h.cmdResolve,
		"resolved": h.cmdResolve,
	}
	return h
}

// eventContext is the unit of work for one inbound event. Label edits
// accumulate on the working copy and are written back once, and only if the
// set actually changed.
type eventContext struct {
	ctx      context.Context
	ev       CommentEvent
	labels   []string
	original []string
}

func newEventContext(ctx context.Context, ev CommentEvent) *eventContext {
	ec := &eventContext{ctx: ctx, ev: ev}
	ec.original = append([]string(nil), ev.Labels...)
	ec.labels = append([]string(nil), ev.Labels...)
	return ec
}

func (ec *eventContext) hasLabel(name string) bool {
	for _, l := range ec.labels {
		if l == name {
			return true
		}
	}
	return false
}

func (ec *eventContext) addLabel(name string) {
	if !ec.hasLabel(name) {
		ec.labels = append(ec.labels, name)
	}
}

func (ec *eventContext) removeLabel(name string) {
	kept := ec.labels[:0]
	for _, l := range ec.labels {
		if l != name {
			kept = append(kept, l)
		}
	}
	ec.labels = kept
}

func (ec *eventContext) changed() bool {
	if len(ec.labels) != len(ec.original) {
		return true
	}
	for i := range ec.labels {
		if ec.labels[i] != ec.original[i] {
			return true
		}
	}
	return false
}

// lockProposal serializes work per proposal id and returns the unlock func.
func (h *Handler) lockProposal(num int) func() {
	h.locksMu.Lock()
	l, ok := h.locks[num]
	if !ok {
		l = &sync.Mutex{}
		h.locks[num] = l
	}
	h.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

// HandleComment processes one comment event: runs any bot commands it
// contains, or — for an edit of the live status document — re-evaluates
// whether FCP should start. The label diff is written once at the end; if
// any platform call fails the event aborts and no diff is written, so the
// next event re-reads fresh state.
func (h *Handler) HandleComment(ctx context.Context, ev CommentEvent) error {
	defer h.lockProposal(ev.IssueNumber)()

	ec := newEventContext(ctx, ev)

	cmds := command.Parse(ev.CommentBody, h.cfg.BotLogin)
	if len(cmds) == 0 {
		if ev.Action == "edited" && ev.CommentAuthor == h.cfg.BotLogin && statusdoc.IsStatusBody(ev.CommentBody) {
			doc, err := statusdoc.Parse(ev.CommentBody)
			if err != nil {
				log.Printf("[fcp] proposal #%d: edited status document unparseable: %v", ev.IssueNumber, err)
				return nil
			}
			roster, err := h.client.TeamMembers(ctx)
			if err != nil {
				return fmt.Errorf("fetch team roster: %w", err)
			}
			doc.ApplyRoster(roster)
			if err := h.evaluateStart(ec, doc, roster, ev.CommentURL); err != nil {
				return err
			}
			return ec.flushLabels(h.client)
		}
		return nil
	}

	for _, cmd := range cmds {
		fn, ok := h.commands[cmd.Name]
		if !ok {
			// Unknown commands are ignored, same as non-command lines.
			continue
		}
		if err := fn(ec, cmd.Args); err != nil {
			return fmt.Errorf("command %q on #%d: %w", cmd.Name, ev.IssueNumber, err)
		}
	}

	return ec.flushLabels(h.client)
}

func (ec *eventContext) flushLabels(client github.Client) error {
	if !ec.changed() {
		return nil
	}
	if err := client.SetLabels(ec.ctx, ec.ev.IssueNumber, ec.labels); err != nil {
		return fmt.Errorf("update labels on #%d: %w", ec.ev.IssueNumber, err)
	}
	return nil
}

// HandleTimerFired enacts the stored disposition when an FCP deadline
// passes. Label state is re-fetched: it may have changed since scheduling.
func (h *Handler) HandleTimerFired(ctx context.Context, proposalNum int) {
	defer h.lockProposal(proposalNum)()

	issue, err := h.client.GetIssue(ctx, proposalNum)
	if err != nil {
		log.Printf("[fcp] proposal #%d: timer fired but issue fetch failed: %v", proposalNum, err)
		return
	}

	ec := newEventContext(ctx, CommentEvent{IssueNumber: proposalNum, Labels: issue.Labels})

	disposition, dispositionLabel, ok := h.dispositionFromLabels(ec)
	if !ok {
		// Terminal inconsistency; nothing to enact and nothing to retry.
		log.Printf("[fcp] proposal #%d: timer fired but no disposition label present", proposalNum)
		return
	}

	var text string
	switch disposition {
	case models.DispositionMerge:
		text = msgFinishedMerge
	case models.DispositionPostpone:
		text = msgFinishedPostpone
	case models.DispositionClose:
		text = msgFinishedClose
	}
	if _, err := h.client.CreateComment(ctx, proposalNum, text); err != nil {
		log.Printf("[fcp] proposal #%d: posting completion comment failed: %v", proposalNum, err)
		return
	}

	if disposition == models.DispositionClose {
		if err := h.client.CloseIssue(ctx, proposalNum); err != nil {
			log.Printf("[fcp] proposal #%d: closing issue failed: %v", proposalNum, err)
			return
		}
	}

	ec.removeLabel(h.cfg.Labels.FCP)
	ec.removeLabel(dispositionLabel)
	ec.addLabel(h.cfg.Labels.FCPFinished)
	if err := ec.flushLabels(h.client); err != nil {
		log.Printf("[fcp] proposal #%d: %v", proposalNum, err)
		return
	}

	if c, found, err := h.findStatusComment(ctx, proposalNum); err == nil && found {
		if err := h.archiver.ArchiveStatusDocument(ctx, proposalNum, c.Body); err != nil {
			log.Printf("[fcp] proposal #%d: archiving status document failed: %v", proposalNum, err)
		}
	}

	h.publish(ctx, events.New(events.TypeFCPFinished, proposalNum, disposition, ""))
	log.Printf("[fcp] proposal #%d: FCP finished with disposition %s", proposalNum, disposition)
}

func (h *Handler) dispositionFromLabels(ec *eventContext) (models.Disposition, string, bool) {
	switch {
	case ec.hasLabel(h.cfg.Labels.DispositionMerge):
		return models.DispositionMerge, h.cfg.Labels.DispositionMerge, true
	case ec.hasLabel(h.cfg.Labels.DispositionPostpone):
		return models.DispositionPostpone, h.cfg.Labels.DispositionPostpone, true
	case ec.hasLabel(h.cfg.Labels.DispositionClose):
		return models.DispositionClose, h.cfg.Labels.DispositionClose, true
	}
	return "", "", false
}

func (h *Handler) dispositionLabel(d models.Disposition) string {
	switch d {
	case models.DispositionMerge:
		return h.cfg.Labels.DispositionMerge
	case models.DispositionPostpone:
		return h.cfg.Labels.DispositionPostpone
	case models.DispositionClose:
		return h.cfg.Labels.DispositionClose
	}
	return ""
}

// findStatusComment locates the current status document: the most recent
// comment authored by the bot whose body starts with the preamble. Older
// matches are historical and ignored.
func (h *Handler) findStatusComment(ctx context.Context, proposalNum int) (models.Comment, bool, error) {
	comments, err := h.client.ListComments(ctx, proposalNum)
	if err != nil {
		return models.Comment{}, false, fmt.Errorf("list comments: %w", err)
	}
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		if c.Author == h.cfg.BotLogin && statusdoc.IsStatusBody(c.Body) {
			return c, true, nil
		}
	}
	return models.Comment{}, false, nil
}

func (h *Handler) isTeamMember(roster []models.TeamMember, login string) bool {
	for _, m := range roster {
		if m.Login == login {
			return true
		}
	}
	return false
}

func (h *Handler) postComment(ec *eventContext, text string) error {
	if _, err := h.client.CreateComment(ec.ctx, ec.ev.IssueNumber, text); err != nil {
		return fmt.Errorf("post comment on #%d: %w", ec.ev.IssueNumber, err)
	}
	return nil
}

func (h *Handler) publish(ctx context.Context, ev events.Event) {
	if err := h.events.Publish(ctx, ev); err != nil {
		log.Printf("[fcp] publishing %s for #%d failed: %v", ev.Type, ev.ProposalNum, err)
	}
}
