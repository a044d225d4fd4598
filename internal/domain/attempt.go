package domain

import (
	"time"
)

// AttemptStatus is the lifecycle state of one empathy attempt revision.
type AttemptStatus string

const (
	AttemptDrafting AttemptStatus = "DRAFTING"
	AttemptShared   AttemptStatus = "SHARED"
	AttemptRevealed AttemptStatus = "REVEALED"
)

// EmpathyAttempt is one revision of a guesser's interpretation of the
// subject's perspective. Immutable once shared; a refinement creates a new
// revision.
type EmpathyAttempt struct {
	ID        int64         `json:"id"`
	Direction Direction     `json:"direction"`
	Revision  int           `json:"revision"`
	Content   string        `json:"content"`
	Status    AttemptStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
