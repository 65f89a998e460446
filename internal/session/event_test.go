package session

import "testing"

func representativeEvents() []Event {
	return []Event{
		SessionStart(),
		PromptSubmit(),
		ToolStart(ToolAskUserQuestion),
		ToolStart(ToolExitPlanMode),
		ToolStart("Bash"),
		ToolCall(),
		Stop(true),
		Stop(false),
		HealthCheckRecovery(),
	}
}

func TestTransitionIsTotal(t *testing.T) {
	valid := make(map[Status]bool)
	for _, s := range AllStatuses() {
		valid[s] = true
	}

	for _, from := range AllStatuses() {
		for _, e := range representativeEvents() {
			got := from.Transition(e)
			if !valid[got] {
				t.Errorf("%v.Transition(%+v) = %d, not a known status", from, e, got)
			}
			if again := from.Transition(e); again != got {
				t.Errorf("%v.Transition(%+v) not deterministic: %v then %v", from, e, got, again)
			}
		}
	}
}

func TestTransitionIgnoresPriorStatus(t *testing.T) {
	tests := []struct {
		event Event
		want  Status
	}{
		{SessionStart(), Running},
		{PromptSubmit(), Running},
		{ToolStart(ToolAskUserQuestion), AwaitingInput},
		{ToolStart(ToolExitPlanMode), AwaitingApproval},
		{ToolStart("Read"), Running},
		{ToolCall(), Running},
		{Stop(true), Error},
		{Stop(false), Idle},
	}

	for _, tt := range tests {
		for _, from := range AllStatuses() {
			if got := from.Transition(tt.event); got != tt.want {
				t.Errorf("%v.Transition(%+v) = %v, want %v", from, tt.event, got, tt.want)
			}
		}
	}
}

func TestHealthCheckRecovery(t *testing.T) {
	tests := []struct {
		from Status
		want Status
	}{
		{Starting, Starting},
		{Running, Running},
		{Idle, Idle},
		{AwaitingInput, Idle},
		{AwaitingApproval, Idle},
		{Error, Idle},
		{Closed, Closed},
	}

	for _, tt := range tests {
		once := tt.from.Transition(HealthCheckRecovery())
		if once != tt.want {
			t.Errorf("%v after recovery = %v, want %v", tt.from, once, tt.want)
		}
		twice := once.Transition(HealthCheckRecovery())
		if twice != once {
			t.Errorf("%v after two recoveries = %v, want %v", tt.from, twice, once)
		}
	}
}

func TestEventFromHook(t *testing.T) {
	tests := []struct {
		eventType string
		tool      string
		hasError  bool
		want      Event
	}{
		{"session_start", "", false, SessionStart()},
		{"prompt_submit", "", false, PromptSubmit()},
		{"tool_start", "AskUserQuestion", false, ToolStart("AskUserQuestion")},
		{"tool_call", "Bash", false, ToolCall()},
		{"stop", "", true, Stop(true)},
		{"stop", "", false, Stop(false)},
		{"notification", "", false, ToolCall()},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got := EventFromHook(tt.eventType, tt.tool, tt.hasError)
			if got != tt.want {
				t.Errorf("EventFromHook(%q, %q, %v) = %+v, want %+v", tt.eventType, tt.tool, tt.hasError, got, tt.want)
			}
		})
	}
}

func TestReopens(t *testing.T) {
	for _, e := range representativeEvents() {
		want := e.Kind == EventSessionStart || e.Kind == EventPromptSubmit
		if got := e.Reopens(); got != want {
			t.Errorf("%+v.Reopens() = %v, want %v", e, got, want)
		}
	}
}
