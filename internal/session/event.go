package session

// EventKind classifies the lifecycle events the status model understands.
type EventKind int

const (
	EventSessionStart EventKind = iota
	EventPromptSubmit
	EventToolStart
	EventToolCall
	EventStop
	// EventHealthCheckRecovery is synthesized by the reconciler; hooks never
	// send it.
	EventHealthCheckRecovery
)

// Tools that put a session into a waiting-on-the-user state.
const (
	ToolAskUserQuestion = "AskUserQuestion"
	ToolExitPlanMode    = "ExitPlanMode"
	ToolTodoWrite       = "TodoWrite"
)

// Hook event type names as sent by producers.
const (
	HookSessionStart = "session_start"
	HookPromptSubmit = "prompt_submit"
	HookToolStart    = "tool_start"
	HookToolCall     = "tool_call"
	HookStop         = "stop"
)

// Event is one input to the status model.
type Event struct {
	Kind     EventKind
	Tool     string // set for EventToolStart
	HasError bool   // set for EventStop
}

func SessionStart() Event        { return Event{Kind: EventSessionStart} }
func PromptSubmit() Event        { return Event{Kind: EventPromptSubmit} }
func ToolStart(tool string) Event { return Event{Kind: EventToolStart, Tool: tool} }
func ToolCall() Event            { return Event{Kind: EventToolCall} }
func Stop(hasError bool) Event   { return Event{Kind: EventStop, HasError: hasError} }
func HealthCheckRecovery() Event { return Event{Kind: EventHealthCheckRecovery} }

// EventFromHook maps a producer's event type to a status-model event.
// Unknown event types are treated as a completed tool call.
func EventFromHook(eventType, toolName string, hasError bool) Event {
	switch eventType {
	case HookSessionStart:
		return SessionStart()
	case HookPromptSubmit:
		return PromptSubmit()
	case HookToolStart:
		return ToolStart(toolName)
	case HookToolCall:
		return ToolCall()
	case HookStop:
		return Stop(hasError)
	default:
		return ToolCall()
	}
}

// Transition returns the status that follows s after e. Every event except
// HealthCheckRecovery fully determines the result, so a lost or duplicated
// event is corrected by the next one.
func (s Status) Transition(e Event) Status {
	switch e.Kind {
	case EventSessionStart, EventPromptSubmit, EventToolCall:
		return Running
	case EventToolStart:
		switch e.Tool {
		case ToolAskUserQuestion:
			return AwaitingInput
		case ToolExitPlanMode:
			return AwaitingApproval
		default:
			return Running
		}
	case EventStop:
		if e.HasError {
			return Error
		}
		return Idle
	case EventHealthCheckRecovery:
		if s.Recoverable() {
			return Idle
		}
		return s
	default:
		return s
	}
}

// Reopens reports whether e revives a Closed session.
func (e Event) Reopens() bool {
	return e.Kind == EventSessionStart || e.Kind == EventPromptSubmit
}
