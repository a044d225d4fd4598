package reconciler

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAndJoinSession(t *testing.T) {
	f := newFixture(&fakeAnalyzer{})
	ctx := context.Background()

	session, err := f.eng.CreateSession(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.SessionID == "" || session.ParticipantA != "alice" || session.ParticipantB != "" {
		t.Fatalf("session = %+v, want alice alone", session)
	}

	joined, err := f.eng.JoinSession(ctx, session.SessionID, "bob")
	if err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	if !joined.IsFull() || joined.ParticipantB != "bob" {
		t.Fatalf("joined session = %+v, want full with bob", joined)
	}

	// Rejoining as an existing member is a no-op.
	again, err := f.eng.JoinSession(ctx, session.SessionID, "bob")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.ParticipantB != "bob" {
		t.Fatalf("rejoin changed membership: %+v", again)
	}

	if _, err := f.eng.JoinSession(ctx, session.SessionID, "mallory"); !errors.Is(err, ErrSessionFull) {
		t.Errorf("third participant: err = %v, want ErrSessionFull", err)
	}
	if _, err := f.eng.JoinSession(ctx, "missing", "bob"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session: err = %v, want ErrSessionNotFound", err)
	}
}

func TestSubmitPerspective(t *testing.T) {
	f := newFixture(&fakeAnalyzer{})
	ctx := context.Background()

	session, err := f.eng.CreateSession(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := f.eng.SubmitPerspective(ctx, session.SessionID, "alice", "  "); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("blank perspective: err = %v, want ErrEmptyContent", err)
	}
	if err := f.eng.SubmitPerspective(ctx, session.SessionID, "mallory", "text"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider: err = %v, want ErrNotParticipant", err)
	}

	if err := f.eng.SubmitPerspective(ctx, session.SessionID, "alice", "first version"); err != nil {
		t.Fatalf("SubmitPerspective: %v", err)
	}
	if err := f.eng.SubmitPerspective(ctx, session.SessionID, "alice", "revised version"); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	p, err := f.repo.GetPerspective(ctx, session.SessionID, "alice")
	if err != nil || p == nil {
		t.Fatalf("GetPerspective: %v, %v", p, err)
	}
	if p.Content != "revised version" {
		t.Errorf("content = %q, want the resubmitted text", p.Content)
	}
}
