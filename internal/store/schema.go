package store

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	project_path TEXT NOT NULL,
	transcript_path TEXT,
	git_branch TEXT,
	tool_target TEXT,
	status TEXT NOT NULL,
	last_event_type TEXT,
	last_tool TEXT,
	summary TEXT,
	goal TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS todos (
	session_id TEXT PRIMARY KEY REFERENCES sessions(session_id) ON DELETE CASCADE,
	todos_json TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT,
	created_at TEXT NOT NULL
);
`

const indexes = `
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_path);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
`

// optionalColumns were added after the first release; older databases gain
// them on open.
var optionalColumns = []string{
	"transcript_path",
	"git_branch",
	"tool_target",
	"summary",
	"goal",
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) initIndexes() error {
	_, err := s.db.Exec(indexes)
	return err
}
