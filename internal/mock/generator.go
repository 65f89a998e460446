// Package mock feeds scripted hook events into the daemon so the viewer
// surfaces can be exercised without a real assistant running.
package mock

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/ingest"
	"github.com/plate-spinner/plate-spinner/internal/session"
)

const DefaultInterval = 2 * time.Second

// Sink accepts hook events; *ingest.Handler satisfies it.
type Sink interface {
	Handle(ctx context.Context, ev *session.HookEvent, payload []byte) (ingest.Result, error)
}

type pattern int

const (
	steady pattern = iota
	question
	approval
	failing
	todos
)

type mockSession struct {
	id      string
	project string
	branch  string
	pattern pattern
	tools   []string
	toolIdx int
	// period is the length of one work/attention cycle in ticks.
	period int
	// attentionAt is the phase at which the session stops for the user.
	attentionAt int
	todoTotal   int
}

var commonTools = []string{"Read", "Grep", "Edit", "Bash", "Glob", "Write"}

type Generator struct {
	sink     Sink
	interval time.Duration
	sessions []*mockSession
}

func NewGenerator(sink Sink, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Generator{
		sink:     sink,
		interval: interval,
		sessions: []*mockSession{
			{id: "mock-refactor", project: "/home/user/myproject", branch: "main",
				pattern: steady, tools: commonTools, period: 40, attentionAt: 30},
			{id: "mock-question", project: "/home/user/webapp", branch: "feature/login",
				pattern: question, tools: []string{"Read", "Grep", "Read"}, period: 24, attentionAt: 10},
			{id: "mock-plan", project: "/home/user/api-server", branch: "main",
				pattern: approval, tools: []string{"Glob", "Read", "Read"}, period: 30, attentionAt: 8},
			{id: "mock-flaky", project: "/home/user/frontend", branch: "fix/build",
				pattern: failing, tools: []string{"Bash", "Edit", "Bash"}, period: 26, attentionAt: 15},
			{id: "mock-todos", project: "/home/user/library", branch: "docs",
				pattern: todos, tools: []string{"Read", "Write"}, period: 36, attentionAt: 30, todoTotal: 5},
		},
	}
}

// Start sends each session's opening event and then advances every session
// once per interval until ctx is done.
func (g *Generator) Start(ctx context.Context) {
	for _, ms := range g.sessions {
		g.send(ctx, ms.event(session.HookSessionStart))
	}
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			for _, ms := range g.sessions {
				for _, ev := range ms.advance(tick) {
					g.send(ctx, ev)
				}
			}
		}
	}
}

func (g *Generator) send(ctx context.Context, ev *session.HookEvent) {
	if _, err := g.sink.Handle(ctx, ev, nil); err != nil {
		log.Printf("mock: %s %s: %v", ev.SessionID, ev.EventType, err)
	}
}

func (ms *mockSession) event(eventType string) *session.HookEvent {
	return &session.HookEvent{
		SessionID:   ms.id,
		ProjectPath: ms.project,
		EventType:   eventType,
		GitBranch:   ms.branch,
	}
}

func (ms *mockSession) toolEvent(eventType, tool string) *session.HookEvent {
	ev := ms.event(eventType)
	ev.ToolName = tool
	return ev
}

// advance returns the events session ms emits at tick. Phase 0 of every
// cycle is a fresh prompt; the session then works until attentionAt and
// waits for the user until the cycle ends.
func (ms *mockSession) advance(tick int) []*session.HookEvent {
	phase := tick % ms.period
	switch {
	case phase == 0:
		return []*session.HookEvent{ms.event(session.HookPromptSubmit)}
	case phase < ms.attentionAt:
		return ms.work(phase)
	case phase == ms.attentionAt:
		return []*session.HookEvent{ms.attention()}
	}
	return nil
}

func (ms *mockSession) work(phase int) []*session.HookEvent {
	if ms.pattern == todos && phase%3 == 0 {
		return []*session.HookEvent{
			ms.todoEvent(session.HookToolStart, phase),
			ms.toolEvent(session.HookToolCall, session.ToolTodoWrite),
		}
	}
	tool := ms.tools[ms.toolIdx%len(ms.tools)]
	if phase%2 == 1 {
		return []*session.HookEvent{ms.toolEvent(session.HookToolStart, tool)}
	}
	ms.toolIdx++
	return []*session.HookEvent{ms.toolEvent(session.HookToolCall, tool)}
}

func (ms *mockSession) attention() *session.HookEvent {
	switch ms.pattern {
	case question:
		return ms.toolEvent(session.HookToolStart, session.ToolAskUserQuestion)
	case approval:
		return ms.toolEvent(session.HookToolStart, session.ToolExitPlanMode)
	case failing:
		ev := ms.event(session.HookStop)
		msg := "tool execution failed"
		ev.Error = &msg
		return ev
	}
	return ms.event(session.HookStop)
}

type todo struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// todoEvent reports a todo list whose completed count grows through the
// working part of the cycle.
func (ms *mockSession) todoEvent(eventType string, phase int) *session.HookEvent {
	done := phase * ms.todoTotal / ms.attentionAt
	list := make([]todo, ms.todoTotal)
	for i := range list {
		list[i] = todo{Content: "step " + string(rune('A'+i)), Status: "pending"}
		switch {
		case i < done:
			list[i].Status = "completed"
		case i == done:
			list[i].Status = "in_progress"
		}
	}
	params, _ := json.Marshal(map[string]any{"todos": list})

	ev := ms.toolEvent(eventType, session.ToolTodoWrite)
	ev.ToolParams = params
	return ev
}
