package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/store"
	"github.com/plate-spinner/plate-spinner/internal/summarizer"
)

type fakeSummarizer struct {
	mu     sync.Mutex
	calls  int
	goals  []string
	result summarizer.Result
	err    error
	block  chan struct{}
}

func (f *fakeSummarizer) Summarize(ctx context.Context, path, goal string) (summarizer.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.goals = append(f.goals, goal)
	return f.result, f.err
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestHandler(t *testing.T, sum Summarizer, cfg Config) (*Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	h := NewHandler(st, sum, cfg)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	h.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return h, st
}

func hook(id, eventType, tool string) *session.HookEvent {
	return &session.HookEvent{
		SessionID:      id,
		ProjectPath:    "/repo",
		EventType:      eventType,
		ToolName:       tool,
		TranscriptPath: "/tmp/" + id + ".jsonl",
	}
}

func TestHandleRejectsIncompleteEvents(t *testing.T) {
	h, _ := newTestHandler(t, nil, Config{})
	for _, ev := range []*session.HookEvent{
		{ProjectPath: "/p", EventType: "stop"},
		{SessionID: "a", EventType: "stop"},
		{SessionID: "a", ProjectPath: "/p"},
	} {
		if _, err := h.Handle(context.Background(), ev, nil); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("Handle(%+v) error = %v, want ErrInvalidEvent", ev, err)
		}
	}
}

func TestHandleTransitions(t *testing.T) {
	h, st := newTestHandler(t, nil, Config{})
	ctx := context.Background()

	steps := []struct {
		ev   *session.HookEvent
		want session.Status
	}{
		{hook("abc", "session_start", ""), session.Running},
		{hook("abc", "tool_start", session.ToolAskUserQuestion), session.AwaitingInput},
		{hook("abc", "tool_call", "AskUserQuestion"), session.Running},
		{hook("abc", "tool_start", session.ToolExitPlanMode), session.AwaitingApproval},
		{hook("abc", "stop", ""), session.Idle},
		{hook("abc", "something_new", ""), session.Running},
	}
	for i, step := range steps {
		res, err := h.Handle(ctx, step.ev, nil)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if res.Status != step.want {
			t.Errorf("step %d (%s): status = %v, want %v", i, step.ev.EventType, res.Status, step.want)
		}
	}

	n, err := st.EventCount("abc")
	if err != nil || n != len(steps) {
		t.Errorf("EventCount = %d, %v; want %d", n, err, len(steps))
	}
}

func TestHandleStopWithError(t *testing.T) {
	h, _ := newTestHandler(t, nil, Config{})
	msg := "tool crashed"
	ev := hook("a", "stop", "")
	ev.Error = &msg
	res, err := h.Handle(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != session.Error {
		t.Errorf("status = %v, want error", res.Status)
	}
}

func TestClosedSessionOnlyReopensOnNewWork(t *testing.T) {
	h, st := newTestHandler(t, nil, Config{})
	ctx := context.Background()

	h.Handle(ctx, hook("a", "session_start", ""), nil)
	if _, err := st.MarkStopped("/repo", time.Now()); err != nil {
		t.Fatal(err)
	}

	res, _ := h.Handle(ctx, hook("a", "tool_call", "Bash"), nil)
	if res.Status != session.Closed {
		t.Errorf("tool_call on closed session: %v, want closed", res.Status)
	}
	res, _ = h.Handle(ctx, hook("a", "stop", ""), nil)
	if res.Status != session.Closed {
		t.Errorf("stop on closed session: %v, want closed", res.Status)
	}
	res, _ = h.Handle(ctx, hook("a", "prompt_submit", ""), nil)
	if res.Status != session.Running {
		t.Errorf("prompt_submit on closed session: %v, want running", res.Status)
	}
}

func TestHandleTodoWrite(t *testing.T) {
	h, st := newTestHandler(t, nil, Config{})
	ev := hook("a", "tool_start", session.ToolTodoWrite)
	ev.ToolParams = []byte(`{"todos":[{"content":"x","status":"completed"},{"content":"y","status":"pending"}]}`)
	if _, err := h.Handle(context.Background(), ev, nil); err != nil {
		t.Fatal(err)
	}
	got, err := st.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if got.TodoProgress == nil || *got.TodoProgress != (session.TodoProgress{Completed: 1, Total: 2}) {
		t.Errorf("TodoProgress = %+v, want 1/2", got.TodoProgress)
	}
}

func TestSummarizeOnAttentionAndSavesGoal(t *testing.T) {
	sum := &fakeSummarizer{result: summarizer.Result{Summary: "Auth: testing", Goal: "Auth"}}
	h, st := newTestHandler(t, sum, Config{Cadence: DefaultCadence})

	if _, err := h.Handle(context.Background(), hook("a", "stop", ""), nil); err != nil {
		t.Fatal(err)
	}
	h.Wait()

	if sum.callCount() != 1 {
		t.Fatalf("summarizer calls = %d, want 1", sum.callCount())
	}
	got, _ := st.Get("a")
	if got.Summary != "Auth: testing" || got.Goal != "Auth" {
		t.Errorf("summary=%q goal=%q", got.Summary, got.Goal)
	}
}

func TestSummarizeCadence(t *testing.T) {
	sum := &fakeSummarizer{result: summarizer.Result{Summary: "Auth: x", Goal: "Auth"}}
	h, st := newTestHandler(t, sum, Config{Cadence: 5})
	ctx := context.Background()

	h.Handle(ctx, hook("a", "session_start", ""), nil)
	h.Wait()
	if sum.callCount() != 1 {
		t.Fatalf("first event without goal: calls = %d, want 1", sum.callCount())
	}
	if goal, _ := st.Goal("a"); goal != "Auth" {
		t.Fatalf("goal = %q", goal)
	}

	for i := 1; i <= 10; i++ {
		h.Handle(ctx, hook("a", "tool_call", "Bash"), nil)
		h.Wait()
	}
	if got := sum.callCount(); got != 3 {
		t.Errorf("calls after 10 tool_calls = %d, want 3", got)
	}
	if sum.goals[len(sum.goals)-1] != "Auth" {
		t.Errorf("cached goal not passed: %v", sum.goals)
	}
}

func TestSummarizeFailureIsSilent(t *testing.T) {
	sum := &fakeSummarizer{err: errors.New("boom")}
	h, st := newTestHandler(t, sum, Config{})

	res, err := h.Handle(context.Background(), hook("a", "stop", ""), nil)
	if err != nil || res.Status != session.Idle {
		t.Fatalf("Handle = %+v, %v", res, err)
	}
	h.Wait()
	got, _ := st.Get("a")
	if got.Status != session.Idle || got.Summary != "" {
		t.Errorf("after failed summary: %+v", got)
	}
}

func TestSummarizeDedupesPerSession(t *testing.T) {
	sum := &fakeSummarizer{result: summarizer.Result{Summary: "s"}, block: make(chan struct{})}
	h, _ := newTestHandler(t, sum, Config{})
	ctx := context.Background()

	h.Handle(ctx, hook("a", "stop", ""), nil)
	h.Handle(ctx, hook("a", "stop", ""), nil)
	time.Sleep(50 * time.Millisecond)
	close(sum.block)
	h.Wait()

	if got := sum.callCount(); got < 1 || got > 2 {
		t.Errorf("calls = %d, want 1 or 2", got)
	}
}
