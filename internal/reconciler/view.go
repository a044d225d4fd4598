package reconciler

import (
	"context"

	"github.com/ashureev/accord-labs/internal/domain"
)

// OfferView is the subject-facing summary of an open share offer.
type OfferView struct {
	Optional bool   `json:"optional"`
	Focus    string `json:"focus,omitempty"`
}

// DirectionView is one direction as seen by a specific participant. Statuses
// and payloads are masked so the guesser cannot observe the offer flow.
type DirectionView struct {
	GuesserID      string                 `json:"guesser_id"`
	SubjectID      string                 `json:"subject_id"`
	Status         domain.DirectionStatus `json:"status"`
	Revision       int                    `json:"revision"`
	AttemptContent string                 `json:"attempt_content,omitempty"`
	ContextShared  bool                   `json:"context_shared"`
	SharedContext  string                 `json:"shared_context,omitempty"`
	OpenOffer      *OfferView             `json:"open_offer,omitempty"`
}

// SessionView is the poll-fallback snapshot of a session for one viewer.
// Clients reconcile against it when WebSocket events are delayed or lost.
type SessionView struct {
	SessionID         string          `json:"session_id"`
	ParticipantA      string          `json:"participant_a"`
	ParticipantB      string          `json:"participant_b,omitempty"`
	YouExpressed      bool            `json:"you_expressed"`
	PartnerExpressed  bool            `json:"partner_expressed"`
	Directions        []DirectionView `json:"directions,omitempty"`
	WaitingForPartner bool            `json:"waiting_for_partner"`
}

// SessionView builds the viewer-scoped snapshot of a session.
func (e *Engine) SessionView(ctx context.Context, sessionID, viewerID string) (*SessionView, error) {
	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.HasParticipant(viewerID) {
		return nil, ErrNotParticipant
	}

	view := &SessionView{
		SessionID:         session.SessionID,
		ParticipantA:      session.ParticipantA,
		ParticipantB:      session.ParticipantB,
		WaitingForPartner: !session.IsFull(),
	}

	own, err := e.repo.GetPerspective(ctx, sessionID, viewerID)
	if err != nil {
		return nil, err
	}
	view.YouExpressed = own != nil

	if !session.IsFull() {
		return view, nil
	}

	partnerID := session.OtherParticipant(viewerID)
	partner, err := e.repo.GetPerspective(ctx, sessionID, partnerID)
	if err != nil {
		return nil, err
	}
	view.PartnerExpressed = partner != nil

	for _, d := range []domain.Direction{
		{SessionID: sessionID, GuesserID: viewerID, SubjectID: partnerID},
		{SessionID: sessionID, GuesserID: partnerID, SubjectID: viewerID},
	} {
		dv, err := e.directionView(ctx, d, viewerID)
		if err != nil {
			return nil, err
		}
		if dv != nil {
			view.Directions = append(view.Directions, *dv)
		}
	}

	return view, nil
}

func (e *Engine) directionView(ctx context.Context, d domain.Direction, viewerID string) (*DirectionView, error) {
	state, err := e.repo.GetDirectionState(ctx, d)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	dv := &DirectionView{
		GuesserID:     d.GuesserID,
		SubjectID:     d.SubjectID,
		Status:        maskStatusFor(state.Status, d, viewerID),
		ContextShared: state.ContextShared,
		SharedContext: state.SharedContext,
	}

	attempt, err := e.repo.LatestAttempt(ctx, d)
	if err != nil {
		return nil, err
	}
	if attempt != nil {
		dv.Revision = attempt.Revision
		// The guesser always sees their own draft; the subject only sees
		// revealed content.
		if viewerID == d.GuesserID || attempt.Status == domain.AttemptRevealed {
			dv.AttemptContent = attempt.Content
		}
	}

	if viewerID == d.SubjectID && state.Status == domain.StatusOffering {
		offer, err := e.repo.OpenShareOffer(ctx, d)
		if err != nil {
			return nil, err
		}
		if offer != nil {
			dv.OpenOffer = &OfferView{Optional: offer.Optional, Focus: offer.Focus}
		}
	}

	return dv, nil
}

// maskStatusFor hides offer-flow states from the guesser. A pending or
// accepted offer reads as ANALYZING on the guesser's side; only the reveal
// or a context share ever surfaces there.
func maskStatusFor(status domain.DirectionStatus, d domain.Direction, viewerID string) domain.DirectionStatus {
	if viewerID != d.GuesserID {
		return status
	}
	switch status {
	case domain.StatusOffering, domain.StatusContextDrafting, domain.StatusContextShared:
		return domain.StatusAnalyzing
	default:
		return status
	}
}
