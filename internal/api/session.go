package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/accord-labs/internal/domain"
	"github.com/ashureev/accord-labs/internal/identity"
	"github.com/ashureev/accord-labs/internal/reconciler"
	"github.com/go-chi/chi/v5"
)

// SessionHandler handles session and reconciliation endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/join", h.JoinSession)
			r.Post("/perspective", h.SubmitPerspective)
			r.Post("/attempts", h.ShareAttempt)
			r.Post("/offer-response", h.RespondToOffer)
			r.Post("/context", h.SubmitContext)
			r.Post("/feedback", h.SubmitFeedback)
		})
	})
}

// GetMe returns the current participant's information.
func (h *SessionHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	if participantID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := h.repo.GetParticipant(r.Context(), participantID)
	if err != nil || p == nil {
		Error(w, http.StatusUnauthorized, "participant not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"participant_id": p.ParticipantID,
		"display_name":   p.DisplayName,
	})
}

// CreateSession starts a new session with the caller as first participant.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	if participantID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session, err := h.engine.CreateSession(r.Context(), participantID)
	if err != nil {
		slog.Error("Failed to create session", "error", err, "participant_id", participantID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	JSON(w, http.StatusCreated, session)
}

// JoinSession adds the caller as second participant.
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.engine.JoinSession(r.Context(), sessionID, participantID)
	if err != nil {
		h.writeEngineError(w, err, "join session")
		return
	}

	JSON(w, http.StatusOK, session)
}

// GetSession returns the caller-scoped session snapshot. This is the poll
// fallback for clients whose event stream is delayed or disconnected.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	view, err := h.engine.SessionView(r.Context(), sessionID, participantID)
	if err != nil {
		h.writeEngineError(w, err, "session view")
		return
	}

	JSON(w, http.StatusOK, view)
}

// SubmitPerspective stores the caller's expressed perspective.
func (h *SessionHandler) SubmitPerspective(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.engine.SubmitPerspective(r.Context(), sessionID, participantID, req.Content); err != nil {
		h.writeEngineError(w, err, "submit perspective")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ShareAttempt submits or resubmits an empathy attempt and runs one analysis
// pass.
func (h *SessionHandler) ShareAttempt(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	state, err := h.engine.ShareAttempt(r.Context(), sessionID, participantID, req.Content)
	if err != nil {
		// A duplicate submission lost the claim race: the winner's pass is
		// authoritative, so hand back its state as our own outcome.
		if errors.Is(err, reconciler.ErrPassInFlight) && state != nil {
			JSON(w, http.StatusAccepted, h.stateResponse(state, participantID))
			return
		}
		h.writeEngineError(w, err, "share attempt")
		return
	}

	JSON(w, http.StatusOK, h.stateResponse(state, participantID))
}

// RespondToOffer records the subject's accept/decline on the open offer.
func (h *SessionHandler) RespondToOffer(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Accepted bool `json:"accepted"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	state, err := h.engine.RespondToOffer(r.Context(), sessionID, participantID, req.Accepted)
	if err != nil {
		h.writeEngineError(w, err, "respond to offer")
		return
	}

	JSON(w, http.StatusOK, h.stateResponse(state, participantID))
}

// SubmitContext stores the subject's additional context after an accepted
// offer.
func (h *SessionHandler) SubmitContext(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	state, err := h.engine.SubmitContext(r.Context(), sessionID, participantID, req.Content)
	if err != nil {
		h.writeEngineError(w, err, "submit context")
		return
	}

	JSON(w, http.StatusOK, h.stateResponse(state, participantID))
}

// SubmitFeedback records the subject's validation verdict on a revealed
// attempt.
func (h *SessionHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	participantID := identity.ParticipantIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Verdict string `json:"verdict"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.engine.SubmitValidationFeedback(r.Context(), sessionID, participantID, domain.ValidationVerdict(req.Verdict))
	if err != nil {
		h.writeEngineError(w, err, "submit feedback")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stateResponse is the participant-scoped view of one direction state. The
// status is masked the same way the session snapshot masks it.
func (h *SessionHandler) stateResponse(state *domain.DirectionState, viewerID string) map[string]interface{} {
	status := state.Status
	if viewerID == state.Direction.GuesserID {
		switch status {
		case domain.StatusOffering, domain.StatusContextDrafting, domain.StatusContextShared:
			status = domain.StatusAnalyzing
		}
	}
	return map[string]interface{}{
		"session_id": state.Direction.SessionID,
		"guesser_id": state.Direction.GuesserID,
		"subject_id": state.Direction.SubjectID,
		"status":     status,
	}
}

// writeEngineError maps engine sentinel errors onto HTTP responses.
func (h *SessionHandler) writeEngineError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, reconciler.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, reconciler.ErrNotParticipant):
		Error(w, http.StatusForbidden, "not a session participant")
	case errors.Is(err, reconciler.ErrSessionNotFull):
		Error(w, http.StatusConflict, "waiting for the second participant")
	case errors.Is(err, reconciler.ErrSessionFull):
		Error(w, http.StatusConflict, "session already has two participants")
	case errors.Is(err, reconciler.ErrDirectionReady):
		Error(w, http.StatusConflict, "perspective exchange already completed")
	case errors.Is(err, reconciler.ErrNoSubjectPerspective):
		Error(w, http.StatusConflict, "partner has not expressed their perspective yet")
	case errors.Is(err, reconciler.ErrPassInFlight):
		Error(w, http.StatusConflict, "analysis already in progress")
	case errors.Is(err, reconciler.ErrNoOpenOffer):
		Error(w, http.StatusConflict, "no open share offer")
	case errors.Is(err, reconciler.ErrInvalidTransition):
		Error(w, http.StatusConflict, "operation not valid in current state")
	case errors.Is(err, reconciler.ErrContextAlreadyShared):
		Error(w, http.StatusConflict, "context already shared")
	case errors.Is(err, reconciler.ErrNotRevealed):
		Error(w, http.StatusConflict, "attempt has not been revealed yet")
	case errors.Is(err, reconciler.ErrEmptyContent):
		Error(w, http.StatusBadRequest, "content must not be empty")
	case errors.Is(err, reconciler.ErrInvalidVerdict):
		Error(w, http.StatusBadRequest, "invalid verdict")
	default:
		slog.Error("Unexpected engine error", "op", op, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
