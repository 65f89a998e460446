package session

import (
	"encoding/json"
	"errors"
)

// HookEvent is the JSON body producers POST to /events.
type HookEvent struct {
	SessionID      string          `json:"session_id"`
	ProjectPath    string          `json:"project_path"`
	EventType      string          `json:"event_type"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolParams     json.RawMessage `json:"tool_params,omitempty"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	GitBranch      string          `json:"git_branch,omitempty"`
	ToolTarget     string          `json:"tool_target,omitempty"`
	Error          *string         `json:"error,omitempty"`
}

var (
	errMissingSessionID   = errors.New("missing session_id")
	errMissingProjectPath = errors.New("missing project_path")
	errMissingEventType   = errors.New("missing event_type")
)

// Validate checks the fields every event must carry.
func (h *HookEvent) Validate() error {
	switch {
	case h.SessionID == "":
		return errMissingSessionID
	case h.ProjectPath == "":
		return errMissingProjectPath
	case h.EventType == "":
		return errMissingEventType
	}
	return nil
}

// HasError reports whether the producer attached an error field at all.
func (h *HookEvent) HasError() bool {
	return h.Error != nil
}

// StatusEvent maps the hook to its status-model event.
func (h *HookEvent) StatusEvent() Event {
	return EventFromHook(h.EventType, h.ToolName, h.HasError())
}

// Todos returns the todo array of a TodoWrite payload, or nil when the
// event carries none.
func (h *HookEvent) Todos() json.RawMessage {
	if h.ToolName != ToolTodoWrite || len(h.ToolParams) == 0 {
		return nil
	}
	var params struct {
		Todos json.RawMessage `json:"todos"`
	}
	if err := json.Unmarshal(h.ToolParams, &params); err != nil {
		return nil
	}
	if len(params.Todos) == 0 || string(params.Todos) == "null" {
		return nil
	}
	return params.Todos
}
