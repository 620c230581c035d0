// package events publishes FCP lifecycle events for downstream consumers
// (dashboards, audit). Publishing is best-effort from the state machine's
// point of view: a failed publish is logged, never blocks a transition.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fcpbot/fcpbot/internal/models"
)

// Event types emitted by the state machine.
const (
	TypeFCPProposed     = "fcp.proposed"
	TypeFCPCancelled    = "fcp.cancelled"
	TypeFCPStarted      = "fcp.started"
	TypeFCPFinished     = "fcp.finished"
	TypeConcernRaised   = "concern.raised"
	TypeConcernResolved = "concern.resolved"
)

// Event is one lifecycle transition on a proposal.
type Event struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	ProposalNum int                `json:"proposalNum"`
	Disposition models.Disposition `json:"disposition,omitempty"`
	Actor       string             `json:"actor,omitempty"`
	Ts          time.Time          `json:"ts"`
}

// New fills in the generated fields of an event.
func New(eventType string, proposalNum int, disposition models.Disposition, actor string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		ProposalNum: proposalNum,
		Disposition: disposition,
		Actor:       actor,
		Ts:          time.Now().UTC(),
	}
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev Event) error { return nil }
func (NopPublisher) Close() error                                { return nil }
