package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/accord-labs/internal/analyzer"
	"github.com/ashureev/accord-labs/internal/audit"
	"github.com/ashureev/accord-labs/internal/domain"
	"github.com/ashureev/accord-labs/internal/notify"
	"github.com/ashureev/accord-labs/internal/store"
)

var (
	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotParticipant indicates the caller does not belong to the session.
	ErrNotParticipant = errors.New("participant does not belong to session")

	// ErrSessionNotFull indicates the second participant has not joined yet.
	ErrSessionNotFull = errors.New("session is waiting for the second participant")

	// ErrDirectionReady indicates the direction already reached its terminal
	// state; no further attempts are accepted.
	ErrDirectionReady = errors.New("direction already ready")

	// ErrNoSubjectPerspective indicates the subject has not expressed their
	// perspective, so there is nothing to analyze against.
	ErrNoSubjectPerspective = errors.New("subject has not expressed their perspective yet")

	// ErrPassInFlight indicates a duplicate submission lost the claim race.
	// The caller should adopt the outcome of the pass already running.
	ErrPassInFlight = errors.New("analysis pass already in flight for direction")

	// ErrNoOpenOffer indicates there is no unresolved share offer to respond
	// to.
	ErrNoOpenOffer = errors.New("no open share offer for direction")

	// ErrInvalidTransition indicates the operation is not valid in the
	// direction's current state.
	ErrInvalidTransition = errors.New("operation not valid in current direction state")

	// ErrContextAlreadyShared indicates a second context share was attempted
	// for a direction. The guard flag is permanent; this is a programming
	// error in correct operation.
	ErrContextAlreadyShared = errors.New("context already shared for direction")

	// ErrEmptyContent indicates blank attempt or context text.
	ErrEmptyContent = errors.New("content must not be empty")

	// ErrInvalidVerdict indicates an unknown validation verdict.
	ErrInvalidVerdict = errors.New("invalid validation verdict")

	// ErrNotRevealed indicates feedback was submitted before the direction
	// was revealed.
	ErrNotRevealed = errors.New("direction has not been revealed yet")
)

// Engine orchestrates the reconciliation flow for both directions of every
// session. Each direction is an independent unit of work; the engine holds
// no state shared between directions beyond the repository itself.
type Engine struct {
	repo     store.Repository
	breaker  *CircuitBreaker
	analyzer analyzer.Analyzer
	pub      notify.Publisher
	audit    audit.Logger
	logger   *slog.Logger

	// directionLocks serializes passes per direction within this process.
	// Cross-process safety comes from the conditional status transitions
	// and the atomic counter claim in the store.
	directionLocks sync.Map
}

// NewEngine creates a reconciliation engine.
func NewEngine(repo store.Repository, an analyzer.Analyzer, pub notify.Publisher, auditLog audit.Logger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:     repo,
		breaker:  NewCircuitBreaker(repo),
		analyzer: an,
		pub:      pub,
		audit:    auditLog,
		logger:   logger,
	}
}

func (e *Engine) lock(d domain.Direction) *sync.Mutex {
	mu, _ := e.directionLocks.LoadOrStore(d.Key(), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// direction resolves and validates the direction where participantID is the
// guesser.
func (e *Engine) direction(ctx context.Context, sessionID, guesserID string) (domain.Direction, *domain.Session, error) {
	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Direction{}, nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return domain.Direction{}, nil, ErrSessionNotFound
	}
	if !session.HasParticipant(guesserID) {
		return domain.Direction{}, nil, ErrNotParticipant
	}
	if !session.IsFull() {
		return domain.Direction{}, nil, ErrSessionNotFull
	}

	return domain.Direction{
		SessionID: sessionID,
		GuesserID: guesserID,
		SubjectID: session.OtherParticipant(guesserID),
	}, session, nil
}

// ShareAttempt submits or resubmits a guesser's empathy attempt and runs one
// full analysis pass for the direction. The circuit breaker is consulted
// strictly before the gap analyzer; a tripped breaker settles the direction
// without the external call.
func (e *Engine) ShareAttempt(ctx context.Context, sessionID, guesserID, text string) (*domain.DirectionState, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	d, _, err := e.direction(ctx, sessionID, guesserID)
	if err != nil {
		return nil, err
	}

	mu := e.lock(d)
	mu.Lock()
	defer mu.Unlock()

	state, err := e.repo.EnsureDirectionState(ctx, d)
	if err != nil {
		return nil, err
	}
	if state.Status == domain.StatusReady {
		return state, ErrDirectionReady
	}

	perspective, err := e.repo.GetPerspective(ctx, d.SessionID, d.SubjectID)
	if err != nil {
		return nil, err
	}
	if perspective == nil || strings.TrimSpace(perspective.Content) == "" {
		return state, ErrNoSubjectPerspective
	}

	// Claim the pass. Losing the conditional transition means another
	// submission already holds the slot; the loser adopts its outcome.
	if err := e.claimPass(ctx, d, state.Status); err != nil {
		current, stateErr := e.repo.GetDirectionState(ctx, d)
		if stateErr != nil || current == nil {
			return state, err
		}
		return current, err
	}

	attempt, err := e.createRevision(ctx, d, text)
	if err != nil {
		// Leave ANALYZING rather than block the direction forever.
		e.failOpen(ctx, d, 0, 0, fmt.Sprintf("create revision: %v", err))
		return e.repo.GetDirectionState(ctx, d)
	}

	verdict, err := e.breaker.CheckAndIncrement(ctx, d)
	if err != nil {
		e.failOpen(ctx, d, attempt.Revision, 0, fmt.Sprintf("breaker: %v", err))
		return e.repo.GetDirectionState(ctx, d)
	}

	if verdict.ShouldSkip {
		e.forceReady(ctx, d, attempt.Revision, verdict.Attempts)
		return e.repo.GetDirectionState(ctx, d)
	}

	subjectContent := perspective.Content
	if state.SharedContext != "" {
		subjectContent += "\n\n" + state.SharedContext
	}

	result, err := e.analyzer.Analyze(ctx, analyzer.Request{
		GuesserAttemptText:      text,
		SubjectExpressedContent: subjectContent,
	})
	if err != nil {
		// Fail open: blocking the session on an unreachable analyzer is
		// worse than skipping one refinement opportunity.
		e.logger.Warn("gap analysis failed, failing open to READY",
			"direction", d.Key(),
			"attempt", verdict.Attempts,
			"error", err)
		e.failOpen(ctx, d, attempt.Revision, verdict.Attempts, err.Error())
		return e.repo.GetDirectionState(ctx, d)
	}

	action := Interpret(verdict, result, state.ContextShared)
	e.applyAction(ctx, d, attempt.Revision, verdict.Attempts, result, action)
	return e.repo.GetDirectionState(ctx, d)
}

// claimPass moves the direction into ANALYZING through the intermediate
// submission state.
func (e *Engine) claimPass(ctx context.Context, d domain.Direction, status domain.DirectionStatus) error {
	var intermediate domain.DirectionStatus
	switch status {
	case domain.StatusDrafting, domain.StatusShared:
		intermediate = domain.StatusShared
		if err := e.repo.TransitionDirection(ctx, d,
			[]domain.DirectionStatus{domain.StatusDrafting, domain.StatusShared}, intermediate); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrPassInFlight
			}
			return err
		}
	case domain.StatusRefinementAvailable:
		intermediate = domain.StatusResubmitted
		if err := e.repo.TransitionDirection(ctx, d,
			[]domain.DirectionStatus{domain.StatusRefinementAvailable}, intermediate); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrPassInFlight
			}
			return err
		}
	case domain.StatusOffering:
		// A resubmission while an offer is pending supersedes the offer.
		// Superseding is engine bookkeeping, not a subject decision.
		intermediate = domain.StatusResubmitted
		if err := e.repo.TransitionDirection(ctx, d,
			[]domain.DirectionStatus{domain.StatusOffering}, intermediate); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrPassInFlight
			}
			return err
		}
		if err := e.repo.ResolveShareOffer(ctx, d, domain.OfferSuperseded); err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
	case domain.StatusAnalyzing:
		return ErrPassInFlight
	default:
		return ErrInvalidTransition
	}

	if err := e.repo.TransitionDirection(ctx, d,
		[]domain.DirectionStatus{intermediate}, domain.StatusAnalyzing); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrPassInFlight
		}
		return err
	}
	return nil
}

func (e *Engine) createRevision(ctx context.Context, d domain.Direction, text string) (*domain.EmpathyAttempt, error) {
	latest, err := e.repo.LatestAttempt(ctx, d)
	if err != nil {
		return nil, err
	}
	revision := 1
	if latest != nil {
		revision = latest.Revision + 1
	}

	attempt := &domain.EmpathyAttempt{
		Direction: d,
		Revision:  revision,
		Content:   text,
		Status:    domain.AttemptShared,
		CreatedAt: time.Now(),
	}
	if err := e.repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

// forceReady settles a direction whose refinement budget is exhausted.
// Participants see a calm forward transition, never a limit being hit.
func (e *Engine) forceReady(ctx context.Context, d domain.Direction, revision, attempts int) {
	e.reveal(ctx, d, revision)

	e.saveResult(ctx, d, attempts, domain.SeverityNone, "", domain.ActionForceReady)

	event := notify.NaturalTransition(d, revision)
	e.pub.Publish(ctx, d.GuesserID, event)
	e.pub.Publish(ctx, d.SubjectID, event)

	e.audit.Log(audit.Event{
		SessionID: d.SessionID,
		Direction: d.Key(),
		EventType: audit.EventBreakerTripped,
		Attempt:   attempts,
		Action:    string(domain.ActionForceReady),
	})
}

// failOpen settles a direction after an analyzer or storage failure inside a
// pass. Presented to participants exactly like a no-gap reveal.
func (e *Engine) failOpen(ctx context.Context, d domain.Direction, revision, attempts int, detail string) {
	e.reveal(ctx, d, revision)
	e.saveResult(ctx, d, attempts, domain.SeverityNone, "", domain.ActionReady)
	e.publishRevealed(ctx, d, revision)

	e.audit.Log(audit.Event{
		SessionID: d.SessionID,
		Direction: d.Key(),
		EventType: audit.EventAnalyzerError,
		Attempt:   attempts,
		Action:    string(domain.ActionReady),
		Detail:    detail,
	})
}

// applyAction applies an interpreted action to the direction.
func (e *Engine) applyAction(ctx context.Context, d domain.Direction, revision, attempts int, result *analyzer.Result, action domain.Action) {
	e.saveResult(ctx, d, attempts, result.Severity, result.SuggestedShareFocus, action)

	e.audit.Log(audit.Event{
		SessionID: d.SessionID,
		Direction: d.Key(),
		EventType: audit.EventPassCompleted,
		Attempt:   attempts,
		Severity:  string(result.Severity),
		Action:    string(action),
	})

	switch {
	case action == domain.ActionReady:
		e.reveal(ctx, d, revision)
		e.pub.Publish(ctx, d.SubjectID, notify.ReconcilerCompleted(d, result.Severity))
		e.publishRevealed(ctx, d, revision)

	case action.IsOffer():
		offer := &domain.ShareOffer{
			Direction: d,
			State:     domain.OfferOffered,
			Optional:  action == domain.ActionOfferOptional,
			Focus:     result.SuggestedShareFocus,
			CreatedAt: time.Now(),
		}
		if err := e.repo.CreateShareOffer(ctx, offer); err != nil {
			e.logger.Error("failed to create share offer, revealing instead",
				"direction", d.Key(), "error", err)
			e.reveal(ctx, d, revision)
			e.publishRevealed(ctx, d, revision)
			return
		}
		if err := e.repo.TransitionDirection(ctx, d,
			[]domain.DirectionStatus{domain.StatusAnalyzing}, domain.StatusOffering); err != nil {
			e.logger.Error("failed to enter OFFERING", "direction", d.Key(), "error", err)
			return
		}
		// Subject only. The guesser never observes the offer flow.
		e.pub.Publish(ctx, d.SubjectID, notify.ReconcilerCompleted(d, result.Severity))
		e.pub.Publish(ctx, d.SubjectID, notify.ShareOffered(d, offer.Optional, offer.Focus))

	default:
		e.logger.Error("unexpected action from interpreter", "direction", d.Key(), "action", action)
		e.reveal(ctx, d, revision)
		e.publishRevealed(ctx, d, revision)
	}
}

// reveal marks the latest attempt revealed and the direction READY.
func (e *Engine) reveal(ctx context.Context, d domain.Direction, revision int) {
	if revision > 0 {
		if err := e.repo.SetAttemptStatus(ctx, d, revision, domain.AttemptRevealed); err != nil {
			e.logger.Error("failed to mark attempt revealed", "direction", d.Key(), "error", err)
		}
	}
	if err := e.repo.SetDirectionStatus(ctx, d, domain.StatusReady); err != nil {
		e.logger.Error("failed to set direction READY", "direction", d.Key(), "error", err)
	}
}

// publishRevealed emits the reveal event to both participants. Every path
// that ends in a normal reveal goes through here so the guesser-observable
// payload is identical regardless of how READY was reached.
func (e *Engine) publishRevealed(ctx context.Context, d domain.Direction, revision int) {
	event := notify.EmpathyRevealed(d, revision)
	e.pub.Publish(ctx, d.GuesserID, event)
	e.pub.Publish(ctx, d.SubjectID, event)
}

func (e *Engine) saveResult(ctx context.Context, d domain.Direction, attempts int, severity domain.Severity, focus string, action domain.Action) {
	result := &domain.ReconcilerResult{
		Direction:      d,
		Attempt:        attempts,
		Severity:       severity,
		SuggestedFocus: focus,
		Action:         action,
		CreatedAt:      time.Now(),
	}
	if err := e.repo.SaveResult(ctx, result); err != nil {
		e.logger.Error("failed to save reconciler result", "direction", d.Key(), "error", err)
	}
}

// RespondToOffer records the subject's decision on the open share offer for
// the direction in which they are the subject.
func (e *Engine) RespondToOffer(ctx context.Context, sessionID, subjectID string, accepted bool) (*domain.DirectionState, error) {
	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.HasParticipant(subjectID) {
		return nil, ErrNotParticipant
	}
	if !session.IsFull() {
		return nil, ErrSessionNotFull
	}

	d := domain.Direction{
		SessionID: sessionID,
		GuesserID: session.OtherParticipant(subjectID),
		SubjectID: subjectID,
	}

	mu := e.lock(d)
	mu.Lock()
	defer mu.Unlock()

	offer, err := e.repo.OpenShareOffer(ctx, d)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, ErrNoOpenOffer
	}

	resolved := domain.OfferDeclined
	if accepted {
		resolved = domain.OfferAccepted
	}
	if err := e.repo.ResolveShareOffer(ctx, d, resolved); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrNoOpenOffer
		}
		return nil, err
	}

	e.audit.Log(audit.Event{
		SessionID: d.SessionID,
		Direction: d.Key(),
		EventType: audit.EventOfferResolved,
		Detail:    string(resolved),
	})

	if accepted {
		if err := e.repo.TransitionDirection(ctx, d,
			[]domain.DirectionStatus{domain.StatusOffering}, domain.StatusContextDrafting); err != nil {
			return nil, err
		}
		return e.repo.GetDirectionState(ctx, d)
	}

	// Decline settles the direction. The guesser's view of this transition
	// is indistinguishable from a no-gap reveal.
	if err := e.repo.TransitionDirection(ctx, d,
		[]domain.DirectionStatus{domain.StatusOffering}, domain.StatusReady); err != nil {
		return nil, err
	}

	revision := 0
	if latest, attemptErr := e.repo.LatestAttempt(ctx, d); attemptErr == nil && latest != nil {
		revision = latest.Revision
		if err := e.repo.SetAttemptStatus(ctx, d, revision, domain.AttemptRevealed); err != nil {
			e.logger.Error("failed to mark attempt revealed", "direction", d.Key(), "error", err)
		}
	}

	e.publishRevealed(ctx, d, revision)
	return e.repo.GetDirectionState(ctx, d)
}

// SubmitContext stores the subject's additional context after an accepted
// offer. The context-shared guard flag is set permanently; a direction can
// share context at most once for the life of the session.
func (e *Engine) SubmitContext(ctx context.Context, sessionID, subjectID, text string) (*domain.DirectionState, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.HasParticipant(subjectID) {
		return nil, ErrNotParticipant
	}

	d := domain.Direction{
		SessionID: sessionID,
		GuesserID: session.OtherParticipant(subjectID),
		SubjectID: subjectID,
	}

	mu := e.lock(d)
	mu.Lock()
	defer mu.Unlock()

	state, err := e.repo.GetDirectionState(ctx, d)
	if err != nil {
		return nil, err
	}
	if state == nil || state.Status != domain.StatusContextDrafting {
		return state, ErrInvalidTransition
	}
	if state.ContextShared {
		// Should be unreachable: the interpreter never reopens the offer
		// flow once the guard is set.
		e.logger.Error("invariant violation: second context share attempted", "direction", d.Key())
		return state, ErrContextAlreadyShared
	}

	if err := e.repo.MarkContextShared(ctx, d, text); err != nil {
		if errors.Is(err, store.ErrGuardAlreadySet) {
			e.logger.Error("invariant violation: guard flag already set", "direction", d.Key())
			return state, ErrContextAlreadyShared
		}
		return nil, err
	}

	if err := e.repo.TransitionDirection(ctx, d,
		[]domain.DirectionStatus{domain.StatusContextDrafting}, domain.StatusContextShared); err != nil {
		return nil, err
	}
	if err := e.repo.TransitionDirection(ctx, d,
		[]domain.DirectionStatus{domain.StatusContextShared}, domain.StatusRefinementAvailable); err != nil {
		return nil, err
	}

	e.audit.Log(audit.Event{
		SessionID: d.SessionID,
		Direction: d.Key(),
		EventType: audit.EventContextShared,
	})

	e.pub.Publish(ctx, d.GuesserID, notify.ContextShared(d, text))
	return e.repo.GetDirectionState(ctx, d)
}

// SubmitValidationFeedback records the subject's verdict on a revealed
// attempt. Feedback never re-enters the refine loop.
func (e *Engine) SubmitValidationFeedback(ctx context.Context, sessionID, subjectID string, verdict domain.ValidationVerdict) error {
	if !verdict.Valid() {
		return ErrInvalidVerdict
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if !session.HasParticipant(subjectID) {
		return ErrNotParticipant
	}

	d := domain.Direction{
		SessionID: sessionID,
		GuesserID: session.OtherParticipant(subjectID),
		SubjectID: subjectID,
	}

	state, err := e.repo.GetDirectionState(ctx, d)
	if err != nil {
		return err
	}
	if state == nil || state.Status != domain.StatusReady {
		return ErrNotRevealed
	}

	fb := &domain.ValidationFeedback{
		Direction: d,
		Verdict:   verdict,
		CreatedAt: time.Now(),
	}
	if err := e.repo.SaveValidationFeedback(ctx, fb); err != nil {
		return err
	}

	e.audit.Log(audit.Event{
		SessionID: d.SessionID,
		Direction: d.Key(),
		EventType: audit.EventFeedback,
		Detail:    string(verdict),
	})
	return nil
}
