package domain

import (
	"time"
)

// Session is a two-party conflict-resolution session. ParticipantB is empty
// until the second participant joins.
type Session struct {
	SessionID    string    `json:"session_id"`
	ParticipantA string    `json:"participant_a"`
	ParticipantB string    `json:"participant_b,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsFull returns true once both participants have joined.
func (s *Session) IsFull() bool {
	return s.ParticipantA != "" && s.ParticipantB != ""
}

// HasParticipant returns true if the given participant belongs to the session.
func (s *Session) HasParticipant(participantID string) bool {
	return participantID != "" &&
		(participantID == s.ParticipantA || participantID == s.ParticipantB)
}

// OtherParticipant returns the counterpart of the given participant, or ""
// if the participant is not a member or the session is not full.
func (s *Session) OtherParticipant(participantID string) string {
	switch participantID {
	case s.ParticipantA:
		return s.ParticipantB
	case s.ParticipantB:
		return s.ParticipantA
	default:
		return ""
	}
}

// Perspective is a participant's own expressed view of the conflict. It is
// the reference content the other side's empathy attempts are analyzed
// against.
type Perspective struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Content       string    `json:"content"`
	UpdatedAt     time.Time `json:"updated_at"`
}
