// Package domain contains core domain types for the Accord application.
package domain

import (
	"time"
)

// Participant represents an anonymous participant in the system.
type Participant struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
