// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/accord-labs/internal/domain"
)

var (
	// ErrConflict indicates a conditional update found the row in a
	// different state than required (lost race or invalid transition).
	ErrConflict = errors.New("store: conflicting state")

	// ErrGuardAlreadySet indicates an attempt to share context on a
	// direction whose context-shared flag is already set. The flag is
	// write-once for the life of the session.
	ErrGuardAlreadySet = errors.New("store: context already shared for direction")

	// ErrOpenOffer indicates a new share offer was requested while a prior
	// offer is still unresolved.
	ErrOpenOffer = errors.New("store: open share offer already exists")
)

// Repository defines the interface for persisting sessions, participants and
// all per-direction reconciliation state.
type Repository interface {
	// CreateSession inserts a new session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by id. Returns (nil, nil) if absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// JoinSession sets the second participant on a session that has an
	// empty slot. Returns ErrConflict if the session is already full.
	JoinSession(ctx context.Context, sessionID, participantID string) error

	// GetParticipant retrieves a participant. Returns (nil, nil) if absent.
	GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error)

	// UpsertParticipant creates or updates a participant record.
	UpsertParticipant(ctx context.Context, p *domain.Participant) error

	// UpdateLastSeen updates the last_seen_at timestamp for a participant.
	UpdateLastSeen(ctx context.Context, participantID string, lastSeen time.Time) error

	// UpsertPerspective stores a participant's expressed perspective.
	UpsertPerspective(ctx context.Context, p *domain.Perspective) error

	// GetPerspective retrieves a participant's expressed perspective for a
	// session. Returns (nil, nil) if absent.
	GetPerspective(ctx context.Context, sessionID, participantID string) (*domain.Perspective, error)

	// EnsureDirectionState lazily creates the per-direction row in DRAFTING
	// and returns the current state.
	EnsureDirectionState(ctx context.Context, d domain.Direction) (*domain.DirectionState, error)

	// GetDirectionState retrieves the per-direction row. Returns (nil, nil)
	// if absent.
	GetDirectionState(ctx context.Context, d domain.Direction) (*domain.DirectionState, error)

	// TransitionDirection moves a direction from one of the given statuses
	// to the target status in a single conditional update. Returns
	// ErrConflict when the current status is not in from — the caller lost
	// a race or attempted an invalid transition.
	TransitionDirection(ctx context.Context, d domain.Direction, from []domain.DirectionStatus, to domain.DirectionStatus) error

	// SetDirectionStatus unconditionally sets the direction status.
	SetDirectionStatus(ctx context.Context, d domain.Direction, to domain.DirectionStatus) error

	// MarkContextShared sets the write-once context-shared flag and appends
	// the subject's context. Returns ErrGuardAlreadySet if the flag is
	// already set.
	MarkContextShared(ctx context.Context, d domain.Direction, contextText string) error

	// CreateAttempt inserts a new attempt revision.
	CreateAttempt(ctx context.Context, attempt *domain.EmpathyAttempt) error

	// LatestAttempt returns the highest-revision attempt for a direction.
	// Returns (nil, nil) if no attempt exists.
	LatestAttempt(ctx context.Context, d domain.Direction) (*domain.EmpathyAttempt, error)

	// SetAttemptStatus updates the status of one attempt revision.
	SetAttemptStatus(ctx context.Context, d domain.Direction, revision int, status domain.AttemptStatus) error

	// IncrementRefinementCounter atomically reads-or-creates the counter
	// row for a direction and increments it by exactly one, returning the
	// new value. Single indivisible statement; concurrent calls for the
	// same direction yield strictly increasing, non-duplicated values.
	IncrementRefinementCounter(ctx context.Context, d domain.Direction) (int, error)

	// GetRefinementCounter returns the current counter value (0 if the row
	// does not exist yet).
	GetRefinementCounter(ctx context.Context, d domain.Direction) (int, error)

	// SaveResult records the verdict of one analysis pass.
	SaveResult(ctx context.Context, result *domain.ReconcilerResult) error

	// LatestResult returns the most recent result for a direction. Returns
	// (nil, nil) if none exists.
	LatestResult(ctx context.Context, d domain.Direction) (*domain.ReconcilerResult, error)

	// CreateShareOffer inserts a new open offer. Returns ErrOpenOffer if an
	// unresolved offer already exists for the direction.
	CreateShareOffer(ctx context.Context, offer *domain.ShareOffer) error

	// OpenShareOffer returns the unresolved offer for a direction, or
	// (nil, nil) if there is none.
	OpenShareOffer(ctx context.Context, d domain.Direction) (*domain.ShareOffer, error)

	// ResolveShareOffer moves the open offer for a direction to ACCEPTED or
	// DECLINED. Returns ErrConflict if no open offer exists.
	ResolveShareOffer(ctx context.Context, d domain.Direction, state domain.OfferState) error

	// SaveValidationFeedback records the subject's verdict on a revealed
	// attempt.
	SaveValidationFeedback(ctx context.Context, fb *domain.ValidationFeedback) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
