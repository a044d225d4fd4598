// Package notify delivers reconciliation state-change events to session
// participants over WebSocket.
package notify

import (
	"context"

	"github.com/ashureev/accord-labs/internal/domain"
)

// Event types published by the reconciliation engine.
const (
	EventReconcilerCompleted = "reconciler.completed"
	EventShareOffered        = "share.offered"
	EventContextShared       = "context.shared"
	EventEmpathyRevealed     = "empathy.revealed"
)

// TransitionNatural marks a reconciler.completed event caused by the
// refinement budget running out. Clients render it as ordinary forward
// progress, never as a limit being hit.
const TransitionNatural = "natural"

// DirectionRef identifies a direction inside an event payload.
type DirectionRef struct {
	GuesserID string `json:"guesser_id"`
	SubjectID string `json:"subject_id"`
}

// Event is one notification delivered to a participant. Delivery is
// fire-and-forget and at-least-once; consumers poll session state as a
// fallback and must tolerate duplicates.
type Event struct {
	Type       string       `json:"type"`
	SessionID  string       `json:"session_id"`
	Direction  DirectionRef `json:"direction"`
	Revision   int          `json:"revision,omitempty"`
	Severity   string       `json:"severity,omitempty"`
	Optional   bool         `json:"optional,omitempty"`
	Focus      string       `json:"focus,omitempty"`
	Context    string       `json:"context,omitempty"`
	Transition string       `json:"transition,omitempty"`
}

// Publisher is the outbound notification channel consumed by the engine.
type Publisher interface {
	// Publish delivers an event to every active connection of one
	// participant. Best effort; failures are logged, never returned.
	Publish(ctx context.Context, participantID string, event Event)
}

func ref(d domain.Direction) DirectionRef {
	return DirectionRef{GuesserID: d.GuesserID, SubjectID: d.SubjectID}
}

// EmpathyRevealed builds the reveal event for a direction reaching READY.
//
// This is the only constructor for the event: a decline and a no-gap verdict
// both funnel through it, so the guesser-observable payload is structurally
// identical in both cases. Never add a field here that encodes how READY was
// reached.
func EmpathyRevealed(d domain.Direction, revision int) Event {
	return Event{
		Type:      EventEmpathyRevealed,
		SessionID: d.SessionID,
		Direction: ref(d),
		Revision:  revision,
	}
}

// ReconcilerCompleted reports a completed analysis pass to the subject.
func ReconcilerCompleted(d domain.Direction, severity domain.Severity) Event {
	return Event{
		Type:      EventReconcilerCompleted,
		SessionID: d.SessionID,
		Direction: ref(d),
		Severity:  string(severity),
	}
}

// NaturalTransition reports a direction settling because its refinement
// budget is spent. Distinct from the normal reveal, framed as forward
// progress.
func NaturalTransition(d domain.Direction, revision int) Event {
	return Event{
		Type:       EventReconcilerCompleted,
		SessionID:  d.SessionID,
		Direction:  ref(d),
		Revision:   revision,
		Transition: TransitionNatural,
	}
}

// ShareOffered invites the subject to add context. Delivered to the subject
// only; the guesser never observes the offer flow.
func ShareOffered(d domain.Direction, optional bool, focus string) Event {
	return Event{
		Type:      EventShareOffered,
		SessionID: d.SessionID,
		Direction: ref(d),
		Optional:  optional,
		Focus:     focus,
	}
}

// ContextShared tells the guesser the subject added context and a refinement
// is available.
func ContextShared(d domain.Direction, contextText string) Event {
	return Event{
		Type:      EventContextShared,
		SessionID: d.SessionID,
		Direction: ref(d),
		Context:   contextText,
	}
}
