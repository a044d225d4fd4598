package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/accord-labs/internal/domain"
	"github.com/ashureev/accord-labs/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency. The _pragma
	// form applies to every connection the pool opens, which matters for
	// busy_timeout: a writer colliding with another connection must wait
	// instead of surfacing SQLITE_BUSY immediately.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS participants (
		participant_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		participant_a TEXT NOT NULL,
		participant_b TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS perspectives (
		session_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, participant_id)
	);

	CREATE TABLE IF NOT EXISTS direction_states (
		session_id TEXT NOT NULL,
		guesser_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		status TEXT NOT NULL,
		context_shared INTEGER NOT NULL DEFAULT 0,
		shared_context TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, guesser_id)
	);

	CREATE TABLE IF NOT EXISTS empathy_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		guesser_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		revision INTEGER NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (session_id, guesser_id, revision)
	);

	CREATE TABLE IF NOT EXISTS refinement_counters (
		session_id TEXT NOT NULL,
		guesser_id TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, guesser_id)
	);

	CREATE TABLE IF NOT EXISTS reconciler_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		guesser_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		severity TEXT NOT NULL,
		suggested_focus TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_direction
		ON reconciler_results(session_id, guesser_id, id);

	CREATE TABLE IF NOT EXISTS share_offers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		guesser_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		state TEXT NOT NULL,
		optional INTEGER NOT NULL DEFAULT 0,
		focus TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		resolved_at INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_offer
		ON share_offers(session_id, guesser_id) WHERE state = 'OFFERED';

	CREATE TABLE IF NOT EXISTS validation_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		guesser_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		verdict TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (session_id, participant_a, participant_b, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	var participantB interface{}
	if session.ParticipantB != "" {
		participantB = session.ParticipantB
	}

	_, err := s.db.ExecContext(ctx, query,
		session.SessionID, session.ParticipantA, participantB,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, participant_a, participant_b, created_at, updated_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var session domain.Session
	var participantB sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&session.SessionID, &session.ParticipantA, &participantB, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.ParticipantB = participantB.String
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	return &session, nil
}

// JoinSession fills the empty participant slot of a session.
func (s *SQLiteStore) JoinSession(ctx context.Context, sessionID, participantID string) error {
	query := `
		UPDATE sessions SET participant_b = ?, updated_at = ?
		WHERE session_id = ? AND participant_b IS NULL AND participant_a != ?`

	result, err := s.db.ExecContext(ctx, query, participantID, time.Now().Unix(), sessionID, participantID)
	if err != nil {
		return fmt.Errorf("join session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

// GetParticipant retrieves a participant by id.
func (s *SQLiteStore) GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error) {
	query := `
		SELECT participant_id, display_name, last_seen_at, created_at, updated_at
		FROM participants WHERE participant_id = ?`

	row := s.db.QueryRowContext(ctx, query, participantID)

	var p domain.Participant
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&p.ParticipantID, &p.DisplayName, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan participant row: %w", err)
	}

	p.LastSeenAt = time.Unix(lastSeen, 0)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	return &p, nil
}

// UpsertParticipant creates or updates a participant record.
func (s *SQLiteStore) UpsertParticipant(ctx context.Context, p *domain.Participant) error {
	query := `
	INSERT INTO participants (participant_id, display_name, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(participant_id) DO UPDATE SET
		display_name = excluded.display_name,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		p.ParticipantID, p.DisplayName,
		p.LastSeenAt.Unix(), p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a participant.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, participantID string, lastSeen time.Time) error {
	query := `UPDATE participants SET last_seen_at = ?, updated_at = ? WHERE participant_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), participantID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "participant_id", participantID)
	}

	return nil
}

// UpsertPerspective stores a participant's expressed perspective.
func (s *SQLiteStore) UpsertPerspective(ctx context.Context, p *domain.Perspective) error {
	query := `
	INSERT INTO perspectives (session_id, participant_id, content, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id, participant_id) DO UPDATE SET
		content = excluded.content,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		p.SessionID, p.ParticipantID, p.Content, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert perspective: %w", err)
	}
	return nil
}

// GetPerspective retrieves a participant's expressed perspective.
func (s *SQLiteStore) GetPerspective(ctx context.Context, sessionID, participantID string) (*domain.Perspective, error) {
	query := `
		SELECT session_id, participant_id, content, updated_at
		FROM perspectives WHERE session_id = ? AND participant_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID, participantID)

	var p domain.Perspective
	var updatedAt int64

	err := row.Scan(&p.SessionID, &p.ParticipantID, &p.Content, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan perspective row: %w", err)
	}

	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// EnsureDirectionState lazily creates the direction row in DRAFTING.
func (s *SQLiteStore) EnsureDirectionState(ctx context.Context, d domain.Direction) (*domain.DirectionState, error) {
	query := `
	INSERT INTO direction_states (session_id, guesser_id, subject_id, status, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_id, guesser_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		d.SessionID, d.GuesserID, d.SubjectID, string(domain.StatusDrafting), time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("ensure direction state: %w", err)
	}
	return s.GetDirectionState(ctx, d)
}

// GetDirectionState retrieves the per-direction row.
func (s *SQLiteStore) GetDirectionState(ctx context.Context, d domain.Direction) (*domain.DirectionState, error) {
	query := `
		SELECT status, context_shared, shared_context, updated_at
		FROM direction_states WHERE session_id = ? AND guesser_id = ?`

	row := s.db.QueryRowContext(ctx, query, d.SessionID, d.GuesserID)

	var state domain.DirectionState
	var status string
	var contextShared int
	var updatedAt int64

	err := row.Scan(&status, &contextShared, &state.SharedContext, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan direction state: %w", err)
	}

	state.Direction = d
	state.Status = domain.DirectionStatus(status)
	state.ContextShared = contextShared != 0
	state.UpdatedAt = time.Unix(updatedAt, 0)

	return &state, nil
}

// TransitionDirection performs a conditional status transition.
func (s *SQLiteStore) TransitionDirection(ctx context.Context, d domain.Direction, from []domain.DirectionStatus, to domain.DirectionStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("transition direction: empty from set")
	}

	placeholders := strings.Repeat("?,", len(from))
	placeholders = placeholders[:len(placeholders)-1]

	query := `UPDATE direction_states SET status = ?, updated_at = ?
		WHERE session_id = ? AND guesser_id = ? AND status IN (` + placeholders + `)`

	args := []interface{}{string(to), time.Now().Unix(), d.SessionID, d.GuesserID}
	for _, f := range from {
		args = append(args, string(f))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition direction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

// SetDirectionStatus unconditionally sets the direction status.
func (s *SQLiteStore) SetDirectionStatus(ctx context.Context, d domain.Direction, to domain.DirectionStatus) error {
	query := `UPDATE direction_states SET status = ?, updated_at = ?
		WHERE session_id = ? AND guesser_id = ?`

	result, err := s.db.ExecContext(ctx, query, string(to), time.Now().Unix(), d.SessionID, d.GuesserID)
	if err != nil {
		return fmt.Errorf("set direction status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("SetDirectionStatus affected 0 rows", "direction", d.Key(), "status", to)
	}
	return nil
}

// MarkContextShared sets the write-once guard flag and records the context.
// The WHERE clause enforces write-once at the database level.
func (s *SQLiteStore) MarkContextShared(ctx context.Context, d domain.Direction, contextText string) error {
	query := `UPDATE direction_states
		SET context_shared = 1, shared_context = ?, updated_at = ?
		WHERE session_id = ? AND guesser_id = ? AND context_shared = 0`

	result, err := s.db.ExecContext(ctx, query, contextText, time.Now().Unix(), d.SessionID, d.GuesserID)
	if err != nil {
		return fmt.Errorf("mark context shared: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrGuardAlreadySet
	}
	return nil
}

// CreateAttempt inserts a new attempt revision.
func (s *SQLiteStore) CreateAttempt(ctx context.Context, attempt *domain.EmpathyAttempt) error {
	query := `
	INSERT INTO empathy_attempts (session_id, guesser_id, subject_id, revision, content, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		attempt.Direction.SessionID, attempt.Direction.GuesserID, attempt.Direction.SubjectID,
		attempt.Revision, attempt.Content, string(attempt.Status), attempt.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("attempt last insert id: %w", err)
	}
	attempt.ID = id
	return nil
}

// LatestAttempt returns the highest-revision attempt for a direction.
func (s *SQLiteStore) LatestAttempt(ctx context.Context, d domain.Direction) (*domain.EmpathyAttempt, error) {
	query := `
		SELECT id, revision, content, status, created_at
		FROM empathy_attempts
		WHERE session_id = ? AND guesser_id = ?
		ORDER BY revision DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, d.SessionID, d.GuesserID)

	var attempt domain.EmpathyAttempt
	var status string
	var createdAt int64

	err := row.Scan(&attempt.ID, &attempt.Revision, &attempt.Content, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan attempt row: %w", err)
	}

	attempt.Direction = d
	attempt.Status = domain.AttemptStatus(status)
	attempt.CreatedAt = time.Unix(createdAt, 0)

	return &attempt, nil
}

// SetAttemptStatus updates the status of one attempt revision.
func (s *SQLiteStore) SetAttemptStatus(ctx context.Context, d domain.Direction, revision int, status domain.AttemptStatus) error {
	query := `UPDATE empathy_attempts SET status = ?
		WHERE session_id = ? AND guesser_id = ? AND revision = ?`

	result, err := s.db.ExecContext(ctx, query, string(status), d.SessionID, d.GuesserID, revision)
	if err != nil {
		return fmt.Errorf("set attempt status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("SetAttemptStatus affected 0 rows", "direction", d.Key(), "revision", revision)
	}
	return nil
}

// IncrementRefinementCounter performs the atomic check-and-increment backing
// the circuit breaker. One statement, no separate read-then-write: SQLite
// serializes writers, so concurrent calls for the same direction see
// strictly increasing values. Retries on SQLITE_BUSY with backoff.
func (s *SQLiteStore) IncrementRefinementCounter(ctx context.Context, d domain.Direction) (int, error) {
	query := `
	INSERT INTO refinement_counters (session_id, guesser_id, attempts)
	VALUES (?, ?, 1)
	ON CONFLICT(session_id, guesser_id) DO UPDATE SET attempts = attempts + 1
	RETURNING attempts`

	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		var attempts int
		err := s.db.QueryRowContext(ctx, query, d.SessionID, d.GuesserID).Scan(&attempts)
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("IncrementRefinementCounter hit SQLITE_BUSY, retrying",
				"direction", d.Key(),
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}

	return 0, fmt.Errorf("increment refinement counter for %s: %w", d.Key(), lastErr)
}

// GetRefinementCounter returns the current counter value.
func (s *SQLiteStore) GetRefinementCounter(ctx context.Context, d domain.Direction) (int, error) {
	query := `SELECT attempts FROM refinement_counters WHERE session_id = ? AND guesser_id = ?`

	var attempts int
	err := s.db.QueryRowContext(ctx, query, d.SessionID, d.GuesserID).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan refinement counter: %w", err)
	}
	return attempts, nil
}

// SaveResult records the verdict of one analysis pass.
func (s *SQLiteStore) SaveResult(ctx context.Context, result *domain.ReconcilerResult) error {
	query := `
	INSERT INTO reconciler_results (session_id, guesser_id, subject_id, attempt, severity, suggested_focus, action, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		result.Direction.SessionID, result.Direction.GuesserID, result.Direction.SubjectID,
		result.Attempt, string(result.Severity), result.SuggestedFocus,
		string(result.Action), result.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert reconciler result: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("result last insert id: %w", err)
	}
	result.ID = id
	return nil
}

// LatestResult returns the most recent result for a direction.
func (s *SQLiteStore) LatestResult(ctx context.Context, d domain.Direction) (*domain.ReconcilerResult, error) {
	query := `
		SELECT id, attempt, severity, suggested_focus, action, created_at
		FROM reconciler_results
		WHERE session_id = ? AND guesser_id = ?
		ORDER BY id DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, d.SessionID, d.GuesserID)

	var result domain.ReconcilerResult
	var severity, action string
	var createdAt int64

	err := row.Scan(&result.ID, &result.Attempt, &severity, &result.SuggestedFocus, &action, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan reconciler result: %w", err)
	}

	result.Direction = d
	result.Severity = domain.Severity(severity)
	result.Action = domain.Action(action)
	result.CreatedAt = time.Unix(createdAt, 0)

	return &result, nil
}

// CreateShareOffer inserts a new open offer. The partial unique index on
// open offers turns a double-create into a constraint violation.
func (s *SQLiteStore) CreateShareOffer(ctx context.Context, offer *domain.ShareOffer) error {
	query := `
	INSERT INTO share_offers (session_id, guesser_id, subject_id, state, optional, focus, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	optional := 0
	if offer.Optional {
		optional = 1
	}

	result, err := s.db.ExecContext(ctx, query,
		offer.Direction.SessionID, offer.Direction.GuesserID, offer.Direction.SubjectID,
		string(offer.State), optional, offer.Focus, offer.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrOpenOffer
		}
		return fmt.Errorf("insert share offer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("offer last insert id: %w", err)
	}
	offer.ID = id
	return nil
}

// OpenShareOffer returns the unresolved offer for a direction.
func (s *SQLiteStore) OpenShareOffer(ctx context.Context, d domain.Direction) (*domain.ShareOffer, error) {
	query := `
		SELECT id, state, optional, focus, created_at, resolved_at
		FROM share_offers
		WHERE session_id = ? AND guesser_id = ? AND state = 'OFFERED'`

	row := s.db.QueryRowContext(ctx, query, d.SessionID, d.GuesserID)

	var offer domain.ShareOffer
	var state string
	var optional int
	var createdAt int64
	var resolvedAt sql.NullInt64

	err := row.Scan(&offer.ID, &state, &optional, &offer.Focus, &createdAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan share offer: %w", err)
	}

	offer.Direction = d
	offer.State = domain.OfferState(state)
	offer.Optional = optional != 0
	offer.CreatedAt = time.Unix(createdAt, 0)
	if resolvedAt.Valid {
		ts := time.Unix(resolvedAt.Int64, 0)
		offer.ResolvedAt = &ts
	}

	return &offer, nil
}

// ResolveShareOffer moves the open offer to a resolved state.
func (s *SQLiteStore) ResolveShareOffer(ctx context.Context, d domain.Direction, state domain.OfferState) error {
	query := `UPDATE share_offers SET state = ?, resolved_at = ?
		WHERE session_id = ? AND guesser_id = ? AND state = 'OFFERED'`

	result, err := s.db.ExecContext(ctx, query, string(state), time.Now().Unix(), d.SessionID, d.GuesserID)
	if err != nil {
		return fmt.Errorf("resolve share offer: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

// SaveValidationFeedback records the subject's verdict on a revealed attempt.
func (s *SQLiteStore) SaveValidationFeedback(ctx context.Context, fb *domain.ValidationFeedback) error {
	query := `
	INSERT INTO validation_feedback (session_id, guesser_id, subject_id, verdict, created_at)
	VALUES (?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		fb.Direction.SessionID, fb.Direction.GuesserID, fb.Direction.SubjectID,
		string(fb.Verdict), fb.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert validation feedback: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("feedback last insert id: %w", err)
	}
	fb.ID = id
	return nil
}
