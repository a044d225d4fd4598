package reconciler

import (
	"context"
	"testing"

	"github.com/ashureev/accord-labs/internal/analyzer"
	"github.com/ashureev/accord-labs/internal/domain"
)

func findDirection(t *testing.T, view *SessionView, guesserID string) DirectionView {
	t.Helper()
	for _, d := range view.Directions {
		if d.GuesserID == guesserID {
			return d
		}
	}
	t.Fatalf("no direction with guesser %s in %+v", guesserID, view.Directions)
	return DirectionView{}
}

func TestSessionViewMasksOfferFromGuesser(t *testing.T) {
	f := newFixture(&fakeAnalyzer{results: []analyzer.Result{
		{Severity: domain.SeveritySignificant, SuggestedShareFocus: "the budget talk"},
	}})
	sessionID := f.seedSession(t)
	ctx := context.Background()

	if _, err := f.eng.ShareAttempt(ctx, sessionID, "alice", "a guess"); err != nil {
		t.Fatalf("ShareAttempt: %v", err)
	}

	guesserView, err := f.eng.SessionView(ctx, sessionID, "alice")
	if err != nil {
		t.Fatalf("SessionView(alice): %v", err)
	}
	forAlice := findDirection(t, guesserView, "alice")
	if forAlice.Status != domain.StatusAnalyzing {
		t.Errorf("guesser sees %s, want ANALYZING while an offer is pending", forAlice.Status)
	}
	if forAlice.OpenOffer != nil {
		t.Error("guesser can see the open offer")
	}
	if forAlice.AttemptContent == "" {
		t.Error("guesser cannot see their own attempt text")
	}

	subjectView, err := f.eng.SessionView(ctx, sessionID, "bob")
	if err != nil {
		t.Fatalf("SessionView(bob): %v", err)
	}
	forBob := findDirection(t, subjectView, "alice")
	if forBob.Status != domain.StatusOffering {
		t.Errorf("subject sees %s, want OFFERING", forBob.Status)
	}
	if forBob.OpenOffer == nil || forBob.OpenOffer.Focus != "the budget talk" {
		t.Errorf("subject offer view = %+v, want focus carried through", forBob.OpenOffer)
	}
	// Unrevealed attempt text stays hidden from the subject.
	if forBob.AttemptContent != "" {
		t.Errorf("subject sees attempt content %q before reveal", forBob.AttemptContent)
	}
}

func TestSessionViewAfterReveal(t *testing.T) {
	f := newFixture(&fakeAnalyzer{results: []analyzer.Result{{Severity: domain.SeverityNone}}})
	sessionID := f.seedSession(t)
	ctx := context.Background()

	if _, err := f.eng.ShareAttempt(ctx, sessionID, "alice", "a close guess"); err != nil {
		t.Fatalf("ShareAttempt: %v", err)
	}

	view, err := f.eng.SessionView(ctx, sessionID, "bob")
	if err != nil {
		t.Fatalf("SessionView: %v", err)
	}
	d := findDirection(t, view, "alice")
	if d.Status != domain.StatusReady {
		t.Errorf("status = %s, want READY", d.Status)
	}
	if d.AttemptContent != "a close guess" {
		t.Errorf("revealed content = %q, want the attempt text", d.AttemptContent)
	}
}

func TestSessionViewWaitingForPartner(t *testing.T) {
	f := newFixture(&fakeAnalyzer{})
	ctx := context.Background()

	session, err := f.eng.CreateSession(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := f.eng.SubmitPerspective(ctx, session.SessionID, "alice", "my view"); err != nil {
		t.Fatalf("SubmitPerspective: %v", err)
	}

	view, err := f.eng.SessionView(ctx, session.SessionID, "alice")
	if err != nil {
		t.Fatalf("SessionView: %v", err)
	}
	if !view.WaitingForPartner || !view.YouExpressed || len(view.Directions) != 0 {
		t.Fatalf("view = %+v, want waiting with own perspective and no directions", view)
	}
}
