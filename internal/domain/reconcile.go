package domain

import (
	"time"
)

// Severity is the gap analyzer's verdict on how far an attempt diverges from
// the subject's expressed perspective. The moderate/significant boundary is
// owned entirely by the external service.
type Severity string

const (
	SeverityNone        Severity = "none"
	SeverityModerate    Severity = "moderate"
	SeveritySignificant Severity = "significant"
)

// Valid reports whether the severity is one of the three known values.
func (s Severity) Valid() bool {
	switch s {
	case SeverityNone, SeverityModerate, SeveritySignificant:
		return true
	}
	return false
}

// Action is the interpreted outcome of one analysis pass.
type Action string

const (
	// ActionForceReady ends the direction because the refinement budget is
	// exhausted. Surfaced to participants as ordinary forward progress.
	ActionForceReady Action = "FORCE_READY"
	// ActionReady reveals the attempt as-is.
	ActionReady Action = "READY"
	// ActionOfferOptional invites the subject to add context, softly.
	ActionOfferOptional Action = "OFFER_OPTIONAL"
	// ActionOfferSharing urges the subject to add context.
	ActionOfferSharing Action = "OFFER_SHARING"
)

// IsOffer reports whether the action opens the share-offer flow.
func (a Action) IsOffer() bool {
	return a == ActionOfferOptional || a == ActionOfferSharing
}

// ReconcilerResult is the recorded verdict of one analysis pass for a
// direction.
type ReconcilerResult struct {
	ID             int64     `json:"id"`
	Direction      Direction `json:"direction"`
	Attempt        int       `json:"attempt"`
	Severity       Severity  `json:"severity"`
	SuggestedFocus string    `json:"suggested_share_focus,omitempty"`
	Action         Action    `json:"action"`
	CreatedAt      time.Time `json:"created_at"`
}

// OfferState tracks the lifecycle of a context-share offer.
type OfferState string

const (
	OfferOffered  OfferState = "OFFERED"
	OfferAccepted OfferState = "ACCEPTED"
	OfferDeclined OfferState = "DECLINED"
	// OfferSuperseded closes an offer because the guesser resubmitted a new
	// revision before the subject responded. Not a subject decision.
	OfferSuperseded OfferState = "SUPERSEDED"
)

// ShareOffer is an invitation for the subject to add context for a
// direction. At most one open (OFFERED) offer exists per direction.
type ShareOffer struct {
	ID         int64      `json:"id"`
	Direction  Direction  `json:"direction"`
	State      OfferState `json:"state"`
	Optional   bool       `json:"optional"`
	Focus      string     `json:"focus,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Open reports whether the offer is still awaiting the subject's decision.
func (o *ShareOffer) Open() bool {
	return o.State == OfferOffered
}

// ValidationVerdict is the subject's judgment of a revealed attempt.
type ValidationVerdict string

const (
	VerdictAccurate   ValidationVerdict = "accurate"
	VerdictPartial    ValidationVerdict = "partial"
	VerdictInaccurate ValidationVerdict = "inaccurate"
)

// Valid reports whether the verdict is one of the known values.
func (v ValidationVerdict) Valid() bool {
	switch v {
	case VerdictAccurate, VerdictPartial, VerdictInaccurate:
		return true
	}
	return false
}

// ValidationFeedback records the subject's verdict on a revealed attempt.
// It does not re-enter the refine loop.
type ValidationFeedback struct {
	ID        int64             `json:"id"`
	Direction Direction         `json:"direction"`
	Verdict   ValidationVerdict `json:"verdict"`
	CreatedAt time.Time         `json:"created_at"`
}
