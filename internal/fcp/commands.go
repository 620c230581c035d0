package fcp

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fcpbot/fcpbot/internal/events"
	"github.com/fcpbot/fcpbot/internal/models"
	"github.com/fcpbot/fcpbot/internal/scheduler"
	"github.com/fcpbot/fcpbot/internal/statusdoc"
)

// cmdFCP starts, with a disposition, a new FCP proposal cycle — or cancels
// the current one.
func (h *Handler) cmdFCP(ec *eventContext, args []string) error {
	if len(args) == 0 {
		return h.postComment(ec, msgUsageFCP)
	}
	if args[0] == "cancel" {
		return h.cancelFCP(ec)
	}

	disposition, ok := models.ParseDisposition(args[0])
	if !ok {
		return h.postComment(ec, fmt.Sprintf("Unknown disposition %q. %s", args[0], msgUsageFCP))
	}

	if ec.hasLabel(h.cfg.Labels.FCP) {
		return h.postComment(ec, msgAlreadyInFCP)
	}
	if ec.hasLabel(h.cfg.Labels.FCPProposed) {
		return h.postComment(ec, msgAlreadyProposed)
	}

	roster, err := h.client.TeamMembers(ec.ctx)
	if err != nil {
		return fmt.Errorf("fetch team roster: %w", err)
	}
	if !h.isTeamMember(roster, ec.ev.Sender) {
		return h.postComment(ec, msgNotTeamMember)
	}

	doc := statusdoc.New(ec.ev.Sender, disposition, roster)
	if _, err := h.client.CreateComment(ec.ctx, ec.ev.IssueNumber, doc.Render()); err != nil {
		return fmt.Errorf("post status document: %w", err)
	}

	// A fresh cycle clears leftovers from any previous one.
	ec.removeLabel(h.cfg.Labels.FCPFinished)
	ec.removeLabel(h.cfg.Labels.UnresolvedConcerns)
	ec.removeLabel(h.cfg.Labels.DispositionMerge)
	ec.removeLabel(h.cfg.Labels.DispositionPostpone)
	ec.removeLabel(h.cfg.Labels.DispositionClose)

	ec.addLabel(h.cfg.Labels.FCPProposed)
	ec.addLabel(h.dispositionLabel(disposition))

	h.publish(ec.ctx, events.New(events.TypeFCPProposed, ec.ev.IssueNumber, disposition, ec.ev.Sender))
	log.Printf("[fcp] proposal #%d: FCP proposed with disposition %s by %s", ec.ev.IssueNumber, disposition, ec.ev.Sender)
	return nil
}

func (h *Handler) cancelFCP(ec *eventContext) error {
	switch {
	case ec.hasLabel(h.cfg.Labels.FCPProposed):
		// Invalidate the status document by prepending the notice; the body
		// below it stays intact for audit.
		c, found, err := h.findStatusComment(ec.ctx, ec.ev.IssueNumber)
		if err != nil {
			return err
		}
		if found {
			if err := h.client.EditComment(ec.ctx, c.ID, statusdoc.Cancelled(c.Body)); err != nil {
				return fmt.Errorf("cancel status document: %w", err)
			}
		} else {
			log.Printf("[fcp] proposal #%d: cancelling proposed FCP but no status document found", ec.ev.IssueNumber)
		}

		ec.removeLabel(h.cfg.Labels.FCPProposed)
		h.stripDispositionLabels(ec)
		ec.addLabel(h.cfg.Labels.InReview)

	case ec.hasLabel(h.cfg.Labels.FCP):
		if err := h.timers.Cancel(ec.ctx, ec.ev.IssueNumber); err != nil {
			if errors.Is(err, scheduler.ErrNotScheduled) {
				log.Printf("[fcp] proposal #%d: cancelling active FCP but no timer was scheduled", ec.ev.IssueNumber)
			} else {
				return fmt.Errorf("cancel timer: %w", err)
			}
		}
		if err := h.postComment(ec, msgFCPCancelled); err != nil {
			return err
		}

		ec.removeLabel(h.cfg.Labels.FCP)
		h.stripDispositionLabels(ec)
		ec.addLabel(h.cfg.Labels.InReview)

	default:
		return h.postComment(ec, msgNotInFCPOrProposed)
	}

	h.publish(ec.ctx, events.New(events.TypeFCPCancelled, ec.ev.IssueNumber, "", ec.ev.Sender))
	log.Printf("[fcp] proposal #%d: FCP cancelled by %s", ec.ev.IssueNumber, ec.ev.Sender)
	return nil
}

func (h *Handler) stripDispositionLabels(ec *eventContext) {
	ec.removeLabel(h.cfg.Labels.DispositionMerge)
	ec.removeLabel(h.cfg.Labels.DispositionPostpone)
	ec.removeLabel(h.cfg.Labels.DispositionClose)
}

// cmdReview records the commenter's vote on the proposed FCP. Voting twice
// is a no-op, not an error.
func (h *Handler) cmdReview(ec *eventContext, args []string) error {
	if !ec.hasLabel(h.cfg.Labels.FCPProposed) {
		return h.postComment(ec, msgNotProposed)
	}

	roster, err := h.client.TeamMembers(ec.ctx)
	if err != nil {
		return fmt.Errorf("fetch team roster: %w", err)
	}
	if !h.isTeamMember(roster, ec.ev.Sender) {
		return h.postComment(ec, msgNotTeamMember)
	}

	c, found, err := h.findStatusComment(ec.ctx, ec.ev.IssueNumber)
	if err != nil {
		return err
	}
	if !found {
		return h.postComment(ec, msgNoStatusDocument)
	}
	doc, err := statusdoc.Parse(c.Body)
	if err != nil {
		return fmt.Errorf("parse status document: %w", err)
	}
	doc.ApplyRoster(roster)

	if doc.SetVoted(ec.ev.Sender) {
		if err := h.client.EditComment(ec.ctx, c.ID, doc.Render()); err != nil {
			return fmt.Errorf("update status document: %w", err)
		}
	}

	return h.evaluateStart(ec, doc, roster, c.HTMLURL)
}

// cmdConcern raises a blocking concern. Concerns are accepted while an FCP
// is proposed or active; once a cycle is finished or cancelled its document
// is historical and must not be mutated.
func (h *Handler) cmdConcern(ec *eventContext, args []string) error {
	if !ec.hasLabel(h.cfg.Labels.FCPProposed) && !ec.hasLabel(h.cfg.Labels.FCP) {
		return h.postComment(ec, msgNotInFCPOrProposed)
	}

	text := strings.Join(args, " ")
	if text == "" {
		return h.postComment(ec, msgConcernTextRequired)
	}

	roster, err := h.client.TeamMembers(ec.ctx)
	if err != nil {
		return fmt.Errorf("fetch team roster: %w", err)
	}
	if !h.isTeamMember(roster, ec.ev.Sender) {
		return h.postComment(ec, msgNotTeamMember)
	}

	c, found, err := h.findStatusComment(ec.ctx, ec.ev.IssueNumber)
	if err != nil {
		return err
	}
	if !found {
		return h.postComment(ec, msgNoStatusDocument)
	}
	doc, err := statusdoc.Parse(c.Body)
	if err != nil {
		return fmt.Errorf("parse status document: %w", err)
	}
	doc.ApplyRoster(roster)

	if err := doc.AddConcern(text); err != nil {
		if errors.Is(err, statusdoc.ErrDuplicateConcern) {
			return h.postComment(ec, msgDuplicateConcern)
		}
		return err
	}
	if err := h.client.EditComment(ec.ctx, c.ID, doc.Render()); err != nil {
		return fmt.Errorf("update status document: %w", err)
	}
	ec.addLabel(h.cfg.Labels.UnresolvedConcerns)

	h.publish(ec.ctx, events.New(events.TypeConcernRaised, ec.ev.IssueNumber, doc.Disposition, ec.ev.Sender))
	log.Printf("[fcp] proposal #%d: concern raised by %s: %s", ec.ev.IssueNumber, ec.ev.Sender, text)
	return nil
}

// cmdResolve flips a concern to resolved and re-checks whether FCP can
// start, exactly as an edit-triggered recheck would. Same state guard as
// cmdConcern.
func (h *Handler) cmdResolve(ec *eventContext, args []string) error {
	if !ec.hasLabel(h.cfg.Labels.FCPProposed) && !ec.hasLabel(h.cfg.Labels.FCP) {
		return h.postComment(ec, msgNotInFCPOrProposed)
	}

	text := strings.Join(args, " ")
	if text == "" {
		return h.postComment(ec, msgResolveTextRequired)
	}

	roster, err := h.client.TeamMembers(ec.ctx)
	if err != nil {
		return fmt.Errorf("fetch team roster: %w", err)
	}
	if !h.isTeamMember(roster, ec.ev.Sender) {
		return h.postComment(ec, msgNotTeamMember)
	}

	c, found, err := h.findStatusComment(ec.ctx, ec.ev.IssueNumber)
	if err != nil {
		return err
	}
	if !found {
		return h.postComment(ec, msgNoStatusDocument)
	}
	doc, err := statusdoc.Parse(c.Body)
	if err != nil {
		return fmt.Errorf("parse status document: %w", err)
	}
	doc.ApplyRoster(roster)

	if err := doc.ResolveConcern(text); err != nil {
		if errors.Is(err, statusdoc.ErrUnknownConcern) {
			return h.postComment(ec, msgUnknownConcern)
		}
		return err
	}
	if err := h.client.EditComment(ec.ctx, c.ID, doc.Render()); err != nil {
		return fmt.Errorf("update status document: %w", err)
	}
	if doc.UnresolvedConcerns() == 0 {
		ec.removeLabel(h.cfg.Labels.UnresolvedConcerns)
	}

	h.publish(ec.ctx, events.New(events.TypeConcernResolved, ec.ev.IssueNumber, doc.Disposition, ec.ev.Sender))
	log.Printf("[fcp] proposal #%d: concern resolved by %s: %s", ec.ev.IssueNumber, ec.ev.Sender, text)

	return h.evaluateStart(ec, doc, roster, c.HTMLURL)
}

// evaluateStart checks the automatic-start condition against the current
// document: enough distinct voters relative to the live roster and no
// unresolved concerns. When met, FCP starts and the disposition timer is
// scheduled. Only a proposed cycle can start; documents from finished or
// cancelled cycles still carry the preamble, so the label is the guard.
func (h *Handler) evaluateStart(ec *eventContext, doc *statusdoc.Document, roster []models.TeamMember, docURL string) error {
	if !ec.hasLabel(h.cfg.Labels.FCPProposed) {
		return nil
	}
	if len(roster) == 0 {
		return fmt.Errorf("team roster is empty")
	}

	ratio := float64(doc.VoteCount()) / float64(len(roster))
	if ratio < h.cfg.VoteRatio {
		return nil
	}
	if doc.UnresolvedConcerns() > 0 {
		return nil
	}
	if ec.hasLabel(h.cfg.Labels.FCP) {
		log.Printf("[fcp] proposal #%d: start condition met but FCP already active", ec.ev.IssueNumber)
		return nil
	}

	endsAt := h.now().Add(h.cfg.FCPDuration + h.cfg.GracePeriod)
	if err := h.timers.Schedule(ec.ctx, ec.ev.IssueNumber, endsAt); err != nil {
		return fmt.Errorf("schedule FCP timer: %w", err)
	}

	text := fmt.Sprintf(
		"The final comment period, with a disposition to **%s**, is now **started**. It will conclude in %s.\n\nThe current status is tracked [here](%s).",
		doc.Disposition, h.cfg.FCPDuration, docURL,
	)
	if err := h.postComment(ec, text); err != nil {
		return err
	}

	ec.addLabel(h.cfg.Labels.FCP)
	ec.removeLabel(h.cfg.Labels.FCPProposed)
	ec.removeLabel(h.cfg.Labels.InReview)

	h.publish(ec.ctx, events.New(events.TypeFCPStarted, ec.ev.IssueNumber, doc.Disposition, ec.ev.Sender))
	log.Printf("[fcp] proposal #%d: FCP started, ends at %s", ec.ev.IssueNumber, endsAt.UTC().Format("2006-01-02 15:04:05"))
	return nil
}
