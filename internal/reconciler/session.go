package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/accord-labs/internal/domain"
	"github.com/ashureev/accord-labs/internal/store"
	"github.com/google/uuid"
)

// ErrSessionFull indicates both participant slots are already taken.
var ErrSessionFull = errors.New("session already has two participants")

// CreateSession starts a new resolution session with the caller as the first
// participant.
func (e *Engine) CreateSession(ctx context.Context, creatorID string) (*domain.Session, error) {
	now := time.Now()
	session := &domain.Session{
		SessionID:    uuid.NewString(),
		ParticipantA: creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// JoinSession adds the caller as the second participant. Joining a session
// one already belongs to is a no-op.
func (e *Engine) JoinSession(ctx context.Context, sessionID, participantID string) (*domain.Session, error) {
	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.HasParticipant(participantID) {
		return session, nil
	}
	if session.IsFull() {
		return nil, ErrSessionFull
	}

	if err := e.repo.JoinSession(ctx, sessionID, participantID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrSessionFull
		}
		return nil, err
	}
	return e.repo.GetSession(ctx, sessionID)
}

// SubmitPerspective stores the caller's own expressed perspective for the
// session. It is the reference content the partner's attempts are analyzed
// against; resubmitting replaces the previous text.
func (e *Engine) SubmitPerspective(ctx context.Context, sessionID, participantID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyContent
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if !session.HasParticipant(participantID) {
		return ErrNotParticipant
	}

	return e.repo.UpsertPerspective(ctx, &domain.Perspective{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Content:       text,
		UpdatedAt:     time.Now(),
	})
}
