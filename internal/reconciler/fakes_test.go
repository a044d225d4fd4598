package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/accord-labs/internal/analyzer"
	"github.com/ashureev/accord-labs/internal/audit"
	"github.com/ashureev/accord-labs/internal/domain"
	"github.com/ashureev/accord-labs/internal/notify"
	"github.com/ashureev/accord-labs/internal/store"
)

// memRepo is an in-memory store.Repository honoring the same conditional
// update contracts as the SQLite implementation.
type memRepo struct {
	mu           sync.Mutex
	sessions     map[string]*domain.Session
	participants map[string]*domain.Participant
	perspectives map[string]*domain.Perspective
	states       map[string]*domain.DirectionState
	attempts     map[string][]*domain.EmpathyAttempt
	counters     map[string]int
	results      map[string][]*domain.ReconcilerResult
	offers       map[string][]*domain.ShareOffer
	feedback     []*domain.ValidationFeedback
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions:     make(map[string]*domain.Session),
		participants: make(map[string]*domain.Participant),
		perspectives: make(map[string]*domain.Perspective),
		states:       make(map[string]*domain.DirectionState),
		attempts:     make(map[string][]*domain.EmpathyAttempt),
		counters:     make(map[string]int),
		results:      make(map[string][]*domain.ReconcilerResult),
		offers:       make(map[string][]*domain.ShareOffer),
	}
}

func perspectiveKey(sessionID, participantID string) string {
	return sessionID + "|" + participantID
}

func (r *memRepo) CreateSession(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.SessionID] = &copied
	return nil
}

func (r *memRepo) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[sessionID]
	if s == nil {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *memRepo) JoinSession(_ context.Context, sessionID, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[sessionID]
	if s == nil || s.ParticipantB != "" || s.ParticipantA == participantID {
		return store.ErrConflict
	}
	s.ParticipantB = participantID
	s.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) GetParticipant(_ context.Context, participantID string) (*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participants[participantID]
	if p == nil {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (r *memRepo) UpsertParticipant(_ context.Context, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.participants[p.ParticipantID] = &copied
	return nil
}

func (r *memRepo) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error { return nil }

func (r *memRepo) UpsertPerspective(_ context.Context, p *domain.Perspective) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.perspectives[perspectiveKey(p.SessionID, p.ParticipantID)] = &copied
	return nil
}

func (r *memRepo) GetPerspective(_ context.Context, sessionID, participantID string) (*domain.Perspective, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.perspectives[perspectiveKey(sessionID, participantID)]
	if p == nil {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (r *memRepo) EnsureDirectionState(_ context.Context, d domain.Direction) (*domain.DirectionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[d.Key()]
	if state == nil {
		state = &domain.DirectionState{
			Direction: d,
			Status:    domain.StatusDrafting,
			UpdatedAt: time.Now(),
		}
		r.states[d.Key()] = state
	}
	copied := *state
	return &copied, nil
}

func (r *memRepo) GetDirectionState(_ context.Context, d domain.Direction) (*domain.DirectionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[d.Key()]
	if state == nil {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (r *memRepo) TransitionDirection(_ context.Context, d domain.Direction, from []domain.DirectionStatus, to domain.DirectionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[d.Key()]
	if state == nil {
		return store.ErrConflict
	}
	for _, f := range from {
		if state.Status == f {
			state.Status = to
			state.UpdatedAt = time.Now()
			return nil
		}
	}
	return store.ErrConflict
}

func (r *memRepo) SetDirectionStatus(_ context.Context, d domain.Direction, to domain.DirectionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[d.Key()]
	if state == nil {
		return nil
	}
	state.Status = to
	state.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) MarkContextShared(_ context.Context, d domain.Direction, contextText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[d.Key()]
	if state == nil || state.ContextShared {
		return store.ErrGuardAlreadySet
	}
	state.ContextShared = true
	state.SharedContext = contextText
	state.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) CreateAttempt(_ context.Context, attempt *domain.EmpathyAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *attempt
	r.attempts[attempt.Direction.Key()] = append(r.attempts[attempt.Direction.Key()], &copied)
	return nil
}

func (r *memRepo) LatestAttempt(_ context.Context, d domain.Direction) (*domain.EmpathyAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.EmpathyAttempt
	for _, a := range r.attempts[d.Key()] {
		if latest == nil || a.Revision > latest.Revision {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *memRepo) SetAttemptStatus(_ context.Context, d domain.Direction, revision int, status domain.AttemptStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts[d.Key()] {
		if a.Revision == revision {
			a.Status = status
		}
	}
	return nil
}

func (r *memRepo) IncrementRefinementCounter(_ context.Context, d domain.Direction) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[d.Key()]++
	return r.counters[d.Key()], nil
}

func (r *memRepo) GetRefinementCounter(_ context.Context, d domain.Direction) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[d.Key()], nil
}

func (r *memRepo) SaveResult(_ context.Context, result *domain.ReconcilerResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *result
	r.results[result.Direction.Key()] = append(r.results[result.Direction.Key()], &copied)
	return nil
}

func (r *memRepo) LatestResult(_ context.Context, d domain.Direction) (*domain.ReconcilerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs := r.results[d.Key()]
	if len(rs) == 0 {
		return nil, nil
	}
	copied := *rs[len(rs)-1]
	return &copied, nil
}

func (r *memRepo) CreateShareOffer(_ context.Context, offer *domain.ShareOffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.offers[offer.Direction.Key()] {
		if o.Open() {
			return store.ErrOpenOffer
		}
	}
	copied := *offer
	r.offers[offer.Direction.Key()] = append(r.offers[offer.Direction.Key()], &copied)
	return nil
}

func (r *memRepo) OpenShareOffer(_ context.Context, d domain.Direction) (*domain.ShareOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.offers[d.Key()] {
		if o.Open() {
			copied := *o
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ResolveShareOffer(_ context.Context, d domain.Direction, state domain.OfferState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.offers[d.Key()] {
		if o.Open() {
			now := time.Now()
			o.State = state
			o.ResolvedAt = &now
			return nil
		}
	}
	return store.ErrConflict
}

func (r *memRepo) SaveValidationFeedback(_ context.Context, fb *domain.ValidationFeedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *fb
	r.feedback = append(r.feedback, &copied)
	return nil
}

func (r *memRepo) Ping(_ context.Context) error { return nil }
func (r *memRepo) Close() error                 { return nil }

// fakeAnalyzer returns scripted results in order, repeating the last one once
// the script runs out.
type fakeAnalyzer struct {
	mu      sync.Mutex
	results []analyzer.Result
	err     error
	calls   int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ analyzer.Request) (*analyzer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &analyzer.Result{Severity: domain.SeverityNone}, nil
	}
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	result := f.results[idx]
	return &result, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// published is one captured notification.
type published struct {
	participantID string
	event         notify.Event
}

type capturePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *capturePublisher) Publish(_ context.Context, participantID string, event notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{participantID: participantID, event: event})
}

func (p *capturePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]published, len(p.events))
	copy(out, p.events)
	return out
}

func (p *capturePublisher) forParticipant(participantID string) []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Event
	for _, e := range p.events {
		if e.participantID == participantID {
			out = append(out, e.event)
		}
	}
	return out
}

func (p *capturePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type captureAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *captureAudit) Log(event audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *captureAudit) Close() error { return nil }

func (a *captureAudit) byType(eventType string) []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Event
	for _, e := range a.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
