package ws

type MessageType string

const (
	MsgSessionUpdate  MessageType = "session_update"
	MsgSessionDeleted MessageType = "session_deleted"
)

// Message is what viewers receive. It names the session only; viewers fetch
// the current row themselves.
type Message struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type okResponse struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type projectRequest struct {
	ProjectPath string `json:"project_path"`
}

type registerResponse struct {
	Status        string `json:"status"`
	PlaceholderID string `json:"placeholder_id"`
}

type stoppedResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}
