package session

import (
	"encoding/json"
	"strings"
	"time"
)

// PlaceholderPrefix marks synthetic ids registered before the assistant
// reports its real session id.
const PlaceholderPrefix = "pending:"

// PlaceholderID returns the synthetic id used for projectPath.
func PlaceholderID(projectPath string) string {
	return PlaceholderPrefix + projectPath
}

// IsPlaceholder reports whether id was produced by PlaceholderID.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Session is one tracked coding session. Optional metadata fields use the
// empty string for "not known".
type Session struct {
	SessionID      string        `json:"session_id"`
	ProjectPath    string        `json:"project_path"`
	TranscriptPath string        `json:"transcript_path,omitempty"`
	GitBranch      string        `json:"git_branch,omitempty"`
	ToolTarget     string        `json:"tool_target,omitempty"`
	Status         Status        `json:"status"`
	LastEventType  string        `json:"last_event_type,omitempty"`
	LastTool       string        `json:"last_tool,omitempty"`
	Summary        string        `json:"summary,omitempty"`
	Goal           string        `json:"goal,omitempty"`
	TodoProgress   *TodoProgress `json:"todo_progress,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Clone returns a copy that shares no pointers with s.
func (s *Session) Clone() *Session {
	c := *s
	if s.TodoProgress != nil {
		p := *s.TodoProgress
		c.TodoProgress = &p
	}
	return &c
}

// IsPlaceholder reports whether the session has not yet been claimed by a
// real session id.
func (s *Session) IsPlaceholder() bool {
	return IsPlaceholder(s.SessionID)
}

// TodoProgress is the completed/total pair derived from a todo snapshot.
type TodoProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type todoItem struct {
	Status string `json:"status"`
}

// ProgressFromTodos counts the items of a todo JSON array whose status is
// "completed". Malformed input yields nil.
func ProgressFromTodos(todos []byte) *TodoProgress {
	var items []todoItem
	if err := json.Unmarshal(todos, &items); err != nil {
		return nil
	}
	p := &TodoProgress{Total: len(items)}
	for _, it := range items {
		if it.Status == "completed" {
			p.Completed++
		}
	}
	return p
}
