// Package store persists sessions, their todo snapshots, and the raw event
// log in a local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/session"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("session not found")

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Notifier receives a call after every committed change. Calls are made
// with the store lock held, so they arrive in commit order and must not
// block.
type Notifier interface {
	Changed(sessionID string)
	Deleted(sessionID string)
}

type nopNotifier struct{}

func (nopNotifier) Changed(string) {}
func (nopNotifier) Deleted(string) {}

// Store is the single writer of record for session state. One mutex
// serializes every operation; nothing under it touches the network.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	notifier Notifier
}

// Open creates the database file if needed and brings its schema up to
// date.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, notifier: nopNotifier{}}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetNotifier installs n as the receiver of change notifications. A nil n
// disables notifications.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// UpsertParams describes one write to a session row. Empty optional fields
// leave the stored value untouched.
type UpsertParams struct {
	SessionID      string
	ProjectPath    string
	TranscriptPath string
	GitBranch      string
	ToolTarget     string
	Status         session.Status
	EventType      string
	ToolName       string
	Now            time.Time
}

// NextStatus computes the status to store from the stored prior status.
// existed is false for a new row, in which case prior is Starting.
type NextStatus func(prior session.Status, existed bool) session.Status

// Upsert writes p.Status to the session, creating it if needed. A new row
// replaces any placeholder registered for the same project path.
func (s *Store) Upsert(p UpsertParams) (existed bool, err error) {
	_, existed, err = s.UpsertWith(p, func(session.Status, bool) session.Status { return p.Status })
	return existed, err
}

// UpsertWith is Upsert with the status computed by next inside the critical
// section.
func (s *Store) UpsertWith(p UpsertParams, next NextStatus) (session.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := upsertTx(tx, p, next)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	s.publishUpsert(p.SessionID, res)
	return res.status, res.existed, nil
}

type upsertResult struct {
	status     session.Status
	existed    bool
	promotedID string
}

func (s *Store) publishUpsert(id string, res upsertResult) {
	if res.promotedID != "" {
		s.notifier.Deleted(res.promotedID)
	}
	s.notifier.Changed(id)
}

func upsertTx(tx *sql.Tx, p UpsertParams, next NextStatus) (upsertResult, error) {
	now := formatTime(p.Now)

	var prior string
	err := tx.QueryRow(`SELECT status FROM sessions WHERE session_id = ?`, p.SessionID).Scan(&prior)
	switch {
	case err == sql.ErrNoRows:
		res := upsertResult{status: next(session.Starting, false)}
		placeholder := session.PlaceholderID(p.ProjectPath)
		if placeholder != p.SessionID {
			n, err := deleteSessionTx(tx, placeholder)
			if err != nil {
				return res, fmt.Errorf("delete placeholder: %w", err)
			}
			if n > 0 {
				res.promotedID = placeholder
			}
		}
		_, err = tx.Exec(`
			INSERT INTO sessions
			(session_id, project_path, transcript_path, git_branch, tool_target,
			 status, last_event_type, last_tool, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.SessionID, p.ProjectPath, nullString(p.TranscriptPath), nullString(p.GitBranch),
			nullString(p.ToolTarget), res.status.String(), nullString(p.EventType),
			nullString(p.ToolName), now, now)
		if err != nil {
			return res, fmt.Errorf("insert session: %w", err)
		}
		return res, nil
	case err != nil:
		return upsertResult{}, fmt.Errorf("read status: %w", err)
	}

	priorStatus, ok := session.ParseStatus(prior)
	if !ok {
		priorStatus = session.Running
	}
	res := upsertResult{status: next(priorStatus, true), existed: true}
	_, err = tx.Exec(`
		UPDATE sessions SET
			status = ?,
			last_event_type = ?,
			last_tool = ?,
			transcript_path = COALESCE(?, transcript_path),
			git_branch = COALESCE(?, git_branch),
			tool_target = COALESCE(?, tool_target),
			updated_at = ?
		WHERE session_id = ?
	`, res.status.String(), nullString(p.EventType), nullString(p.ToolName),
		nullString(p.TranscriptPath), nullString(p.GitBranch), nullString(p.ToolTarget),
		now, p.SessionID)
	if err != nil {
		return res, fmt.Errorf("update session: %w", err)
	}
	return res, nil
}

// IngestRecord is everything one inbound event writes.
type IngestRecord struct {
	Upsert  UpsertParams
	Next    NextStatus
	Payload []byte
	// Todos, when non-nil, replaces the session's todo snapshot.
	Todos []byte
}

type IngestResult struct {
	Status  session.Status
	Existed bool
}

// Ingest applies the upsert, appends the raw event and refreshes the todo
// snapshot in one transaction, then publishes a single notification.
func (s *Store) Ingest(r IngestRecord) (IngestResult, error) {
	next := r.Next
	if next == nil {
		next = func(session.Status, bool) session.Status { return r.Upsert.Status }
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return IngestResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := upsertTx(tx, r.Upsert, next)
	if err != nil {
		return IngestResult{}, err
	}
	if err := insertEventTx(tx, r.Upsert.SessionID, r.Upsert.EventType, r.Payload, r.Upsert.Now); err != nil {
		return IngestResult{}, err
	}
	if r.Todos != nil {
		if err := upsertTodosTx(tx, r.Upsert.SessionID, r.Todos, r.Upsert.Now); err != nil {
			return IngestResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return IngestResult{}, fmt.Errorf("commit: %w", err)
	}
	s.publishUpsert(r.Upsert.SessionID, res)
	return IngestResult{Status: res.status, Existed: res.existed}, nil
}

// RegisterPlaceholder makes sure a placeholder row exists for projectPath
// and returns its id. An existing placeholder is left unchanged.
func (s *Store) RegisterPlaceholder(projectPath string, now time.Time) (string, error) {
	id := session.PlaceholderID(projectPath)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO sessions (session_id, project_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, projectPath, session.Starting.String(), formatTime(now), formatTime(now))
	if err != nil {
		return "", fmt.Errorf("insert placeholder: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notifier.Changed(id)
	}
	return id, nil
}

// MarkStopped closes every open session for projectPath and returns the ids
// it changed.
func (s *Store) MarkStopped(projectPath string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT session_id FROM sessions
		WHERE project_path = ? AND status != ?
		ORDER BY session_id
	`, projectPath, session.Closed.String())
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		_, err := tx.Exec(`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
			session.Closed.String(), formatTime(now), id)
		if err != nil {
			return nil, fmt.Errorf("close %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	for _, id := range ids {
		s.notifier.Changed(id)
	}
	return ids, nil
}

// InsertEvent appends to the event log.
func (s *Store) InsertEvent(sessionID, eventType string, payload []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := insertEventTx(tx, sessionID, eventType, payload, now); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEventTx(tx *sql.Tx, sessionID, eventType string, payload []byte, now time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO events (session_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, eventType, string(payload), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpsertTodos replaces the session's todo snapshot.
func (s *Store) UpsertTodos(sessionID string, todos []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := upsertTodosTx(tx, sessionID, todos, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.notifier.Changed(sessionID)
	return nil
}

func upsertTodosTx(tx *sql.Tx, sessionID string, todos []byte, now time.Time) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO todos (session_id, todos_json, updated_at)
		VALUES (?, ?, ?)
	`, sessionID, string(todos), formatTime(now))
	if err != nil {
		return fmt.Errorf("upsert todos: %w", err)
	}
	return nil
}

const selectSessions = `
	SELECT s.session_id, s.project_path, s.transcript_path, s.git_branch, s.tool_target,
	       s.status, s.last_event_type, s.last_tool, s.summary, s.goal,
	       s.created_at, s.updated_at, t.todos_json
	FROM sessions s
	LEFT JOIN todos t ON t.session_id = s.session_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess                                     session.Session
		transcript, branch, target               sql.NullString
		lastEvent, lastTool, summary, goal, todo sql.NullString
		status, created, updated                 string
	)
	err := row.Scan(&sess.SessionID, &sess.ProjectPath, &transcript, &branch, &target,
		&status, &lastEvent, &lastTool, &summary, &goal, &created, &updated, &todo)
	if err != nil {
		return nil, err
	}
	st, ok := session.ParseStatus(status)
	if !ok {
		st = session.Running
	}
	sess.Status = st
	sess.TranscriptPath = transcript.String
	sess.GitBranch = branch.String
	sess.ToolTarget = target.String
	sess.LastEventType = lastEvent.String
	sess.LastTool = lastTool.String
	sess.Summary = summary.String
	sess.Goal = goal.String
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)
	if todo.Valid {
		sess.TodoProgress = session.ProgressFromTodos([]byte(todo.String))
	}
	return &sess, nil
}

// ListSessions returns every session, most recently updated first.
func (s *Store) ListSessions() ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectSessions + ` ORDER BY s.updated_at DESC, s.session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Get returns one session or ErrNotFound.
func (s *Store) Get(sessionID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := scanSession(s.db.QueryRow(selectSessions+` WHERE s.session_id = ?`, sessionID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// Delete removes a session together with its events and todo snapshot.
// Deleting an unknown id is not an error.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := deleteSessionTx(tx, sessionID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if n > 0 {
		s.notifier.Deleted(sessionID)
	}
	return nil
}

func deleteSessionTx(tx *sql.Tx, sessionID string) (int64, error) {
	if _, err := tx.Exec(`DELETE FROM todos WHERE session_id = ?`, sessionID); err != nil {
		return 0, fmt.Errorf("delete todos: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return res.RowsAffected()
}

// CompareAndSetStatus writes status to and updated_at now only if the
// session's status and updated_at still match what the caller observed.
// to may equal from, which only refreshes updated_at. It reports whether
// the write happened.
func (s *Store) CompareAndSetStatus(sessionID string, from session.Status, seenUpdatedAt time.Time, to session.Status, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var status, updated string
	err := s.db.QueryRow(`SELECT status, updated_at FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&status, &updated)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}
	if status != from.String() || !parseTime(updated).Equal(seenUpdatedAt) {
		return false, nil
	}

	_, err = s.db.Exec(`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		to.String(), formatTime(now), sessionID)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	s.notifier.Changed(sessionID)
	return true, nil
}

// SetSummary records the summarizer's output. An empty goal keeps the
// cached one.
func (s *Store) SetSummary(sessionID, summary, goal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE sessions SET summary = ?, goal = COALESCE(?, goal)
		WHERE session_id = ?
	`, nullString(summary), nullString(goal), sessionID)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notifier.Changed(sessionID)
	}
	return nil
}

// TranscriptPath returns the recorded transcript path, or "" when the
// session or the path is unknown.
func (s *Store) TranscriptPath(sessionID string) (string, error) {
	return s.field("transcript_path", sessionID)
}

func (s *Store) Summary(sessionID string) (string, error) {
	return s.field("summary", sessionID)
}

func (s *Store) Goal(sessionID string) (string, error) {
	return s.field("goal", sessionID)
}

func (s *Store) field(column, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v sql.NullString
	err := s.db.QueryRow(`SELECT `+column+` FROM sessions WHERE session_id = ?`, sessionID).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", column, err)
	}
	return v.String, nil
}

// EventCount returns how many events were logged for the session.
func (s *Store) EventCount(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// EventCountByType counts the session's logged events of one type.
func (s *Store) EventCountByType(sessionID, eventType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ? AND event_type = ?`,
		sessionID, eventType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts RFC 3339 values written by older releases. An
// unparsable value yields the zero time.
func parseTime(v string) time.Time {
	if t, err := time.Parse(timeLayout, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
