package session

import (
	"encoding/json"
	"testing"
)

func TestPlaceholderID(t *testing.T) {
	id := PlaceholderID("/repo")
	if id != "pending:/repo" {
		t.Errorf("PlaceholderID = %q, want %q", id, "pending:/repo")
	}
	if !IsPlaceholder(id) {
		t.Error("IsPlaceholder(PlaceholderID) = false")
	}
	if IsPlaceholder("abc") {
		t.Error("IsPlaceholder(abc) = true")
	}
}

func TestProgressFromTodos(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *TodoProgress
	}{
		{"mixed", `[{"status":"completed"},{"status":"pending"},{"status":"completed"}]`, &TodoProgress{2, 3}},
		{"empty", `[]`, &TodoProgress{0, 0}},
		{"in progress", `[{"status":"in_progress","content":"x"}]`, &TodoProgress{0, 1}},
		{"not an array", `{"status":"completed"}`, nil},
		{"garbage", `nope`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProgressFromTodos([]byte(tt.input))
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ProgressFromTodos = %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ProgressFromTodos = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestCloneCopiesTodoProgress(t *testing.T) {
	s := &Session{SessionID: "a", TodoProgress: &TodoProgress{1, 2}}
	c := s.Clone()
	c.TodoProgress.Completed = 2
	if s.TodoProgress.Completed != 1 {
		t.Error("Clone did not copy TodoProgress; mutation leaked")
	}
}

func TestSessionJSONOmitsAbsentMetadata(t *testing.T) {
	data, err := json.Marshal(Session{SessionID: "a", ProjectPath: "/p", Status: Running})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"transcript_path", "git_branch", "summary", "goal", "todo_progress"} {
		if _, ok := m[k]; ok {
			t.Errorf("key %q present for absent value", k)
		}
	}
	if m["status"] != "running" {
		t.Errorf("status = %v, want running", m["status"])
	}
}
