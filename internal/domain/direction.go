package domain

import (
	"time"
)

// Direction identifies one of the two independent guesser->subject flows of
// a session. The two directions of a session share nothing but the session
// id.
type Direction struct {
	SessionID string `json:"session_id"`
	GuesserID string `json:"guesser_id"`
	SubjectID string `json:"subject_id"`
}

// Key returns the stable composite key for the direction.
func (d Direction) Key() string {
	return d.SessionID + "#" + d.GuesserID + "->" + d.SubjectID
}

// Reverse returns the opposite direction of the same session.
func (d Direction) Reverse() Direction {
	return Direction{SessionID: d.SessionID, GuesserID: d.SubjectID, SubjectID: d.GuesserID}
}

// DirectionStatus is the authoritative state of one direction.
type DirectionStatus string

const (
	StatusDrafting            DirectionStatus = "DRAFTING"
	StatusShared              DirectionStatus = "SHARED"
	StatusAnalyzing           DirectionStatus = "ANALYZING"
	StatusOffering            DirectionStatus = "OFFERING"
	StatusContextDrafting     DirectionStatus = "CONTEXT_DRAFTING"
	StatusContextShared       DirectionStatus = "CONTEXT_SHARED"
	StatusRefinementAvailable DirectionStatus = "REFINEMENT_AVAILABLE"
	StatusResubmitted         DirectionStatus = "RESUBMITTED"
	StatusReady               DirectionStatus = "READY"
)

// Terminal returns true if the direction has reached its final state.
func (s DirectionStatus) Terminal() bool {
	return s == StatusReady
}

// DirectionState is the persisted per-direction record: current status, the
// permanent context-shared guard flag and any subject-supplied context.
type DirectionState struct {
	Direction     Direction       `json:"direction"`
	Status        DirectionStatus `json:"status"`
	ContextShared bool            `json:"context_shared"`
	SharedContext string          `json:"shared_context,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CanSubmitAttempt reports whether a new attempt may be shared from the
// current status. Initial drafts, post-context refinements and revisions
// superseding a pending offer are the entry points into analysis.
func (s *DirectionState) CanSubmitAttempt() bool {
	switch s.Status {
	case StatusDrafting, StatusShared, StatusRefinementAvailable, StatusOffering:
		return true
	default:
		return false
	}
}
