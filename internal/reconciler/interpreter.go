package reconciler

import (
	"github.com/ashureev/accord-labs/internal/analyzer"
	"github.com/ashureev/accord-labs/internal/domain"
)

// Interpret maps a circuit breaker verdict, a gap analysis result and the
// context-share guard onto the action to apply. Pure function, no side
// effects.
//
// Precedence is load-bearing for termination: the breaker outranks
// everything, the guard outranks severity, and severity alone decides the
// offer strength. Once the guard is set the offer flow can never reopen, so
// every remaining path either reveals immediately or burns breaker budget.
func Interpret(breaker BreakerVerdict, result *analyzer.Result, contextShared bool) domain.Action {
	if breaker.ShouldSkip {
		return domain.ActionForceReady
	}
	if contextShared {
		return domain.ActionReady
	}

	switch result.Severity {
	case domain.SeverityModerate:
		return domain.ActionOfferOptional
	case domain.SeveritySignificant:
		return domain.ActionOfferSharing
	default:
		return domain.ActionReady
	}
}
