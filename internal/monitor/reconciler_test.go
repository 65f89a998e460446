package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/store"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type countingNotifier struct {
	mu      sync.Mutex
	changed map[string]int
}

func (c *countingNotifier) Changed(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed[id]++
}

func (c *countingNotifier) Deleted(string) {}

func (c *countingNotifier) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = make(map[string]int)
}

func (c *countingNotifier) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed[id]
}

type fixture struct {
	t        *testing.T
	store    *store.Store
	notifier *countingNotifier
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	n := &countingNotifier{changed: make(map[string]int)}
	st.SetNotifier(n)
	return &fixture{t: t, store: st, notifier: n, dir: dir}
}

// addSession records a session last updated at updated whose transcript
// holds content and was last written at mtime.
func (f *fixture) addSession(id string, status session.Status, updated, mtime time.Time, content string) {
	f.t.Helper()
	path := filepath.Join(f.dir, id+".jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		f.t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		f.t.Fatal(err)
	}
	_, err := f.store.Upsert(store.UpsertParams{
		SessionID:      id,
		ProjectPath:    "/repo/" + id,
		TranscriptPath: path,
		Status:         status,
		EventType:      "test",
		Now:            updated,
	})
	if err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) status(id string) session.Status {
	f.t.Helper()
	s, err := f.store.Get(id)
	if err != nil {
		f.t.Fatal(err)
	}
	return s.Status
}

func (f *fixture) reconciler() *Reconciler {
	r := NewReconciler(f.store, Config{})
	r.now = func() time.Time { return base }
	f.notifier.reset()
	return r
}

const (
	endTurn = `{"type":"assistant","message":{"stop_reason":"end_turn","content":[]}}` + "\n"
	midTool = `{"type":"assistant","message":{"stop_reason":"tool_use","content":[]}}` + "\n"
)

func TestAwaitingApprovalRecoversOnNewerTranscript(t *testing.T) {
	f := newFixture(t)
	f.addSession("a", session.AwaitingApproval, base, base.Add(5*time.Second), midTool)
	r := f.reconciler()

	changed := r.Cycle(base.Add(6 * time.Second))

	if !reflect.DeepEqual(changed, []string{"a"}) {
		t.Errorf("Cycle() = %v, want [a]", changed)
	}
	if got := f.status("a"); got != session.Idle {
		t.Errorf("status = %v, want idle", got)
	}
	if got := f.notifier.count("a"); got != 1 {
		t.Errorf("notifications for a = %d, want 1", got)
	}

	if again := r.Cycle(base.Add(16 * time.Second)); len(again) != 0 {
		t.Errorf("second Cycle() = %v, want nothing", again)
	}
}

func TestAttentionStatesWithinThreshold(t *testing.T) {
	f := newFixture(t)
	f.addSession("input", session.AwaitingInput, base, base.Add(2*time.Second), midTool)
	f.addSession("err", session.Error, base, base.Add(3*time.Second), midTool)
	r := f.reconciler()

	changed := r.Cycle(base.Add(time.Minute))

	if !reflect.DeepEqual(changed, []string{"err"}) {
		t.Errorf("Cycle() = %v, want [err]", changed)
	}
	if got := f.status("input"); got != session.AwaitingInput {
		t.Errorf("input status = %v, want unchanged", got)
	}
}

func TestRunningRequiresCorroboration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		at      time.Duration
		touched bool
	}{
		{"fresh", endTurn, 20 * time.Second, false},
		{"at threshold", endTurn, 30 * time.Second, false},
		{"stale and finished", endTurn, 31 * time.Second, true},
		{"stale mid tool", midTool, 31 * time.Second, false},
		{"past absolute timeout", midTool, 5*time.Minute + time.Second, true},
		{"unparsable transcript", "{not json\n", 31 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addSession("r", session.Running, base, base, tt.content)
			r := f.reconciler()

			now := base.Add(tt.at)
			changed := r.Cycle(now)

			s, err := f.store.Get("r")
			if err != nil {
				t.Fatal(err)
			}
			if s.Status != session.Running {
				t.Errorf("status = %v, want running", s.Status)
			}
			wantUpdated, wantNotes := base, 0
			if tt.touched {
				wantUpdated, wantNotes = now, 1
			}
			if !s.UpdatedAt.Equal(wantUpdated) {
				t.Errorf("updated_at = %v, want %v", s.UpdatedAt, wantUpdated)
			}
			if got := f.notifier.count("r"); got != wantNotes {
				t.Errorf("notifications = %d, want %d", got, wantNotes)
			}
			if (len(changed) == 1) != tt.touched {
				t.Errorf("Cycle() = %v, touched = %v", changed, tt.touched)
			}
		})
	}
}

func TestRecoveredRunningWaitsForNextQuietPeriod(t *testing.T) {
	f := newFixture(t)
	f.addSession("r", session.Running, base, base, endTurn)
	r := f.reconciler()

	if changed := r.Cycle(base.Add(31 * time.Second)); !reflect.DeepEqual(changed, []string{"r"}) {
		t.Fatalf("first Cycle() = %v, want [r]", changed)
	}
	if changed := r.Cycle(base.Add(41 * time.Second)); len(changed) != 0 {
		t.Errorf("Cycle() 10s after refresh = %v, want nothing", changed)
	}
	if changed := r.Cycle(base.Add(62 * time.Second)); !reflect.DeepEqual(changed, []string{"r"}) {
		t.Errorf("Cycle() after another quiet period = %v, want [r]", changed)
	}
	if got := f.status("r"); got != session.Running {
		t.Errorf("status = %v, want running", got)
	}
}

func TestRunningUsesLatestActivity(t *testing.T) {
	f := newFixture(t)
	f.addSession("r", session.Running, base, base.Add(20*time.Second), endTurn)
	r := f.reconciler()

	if changed := r.Cycle(base.Add(45 * time.Second)); len(changed) != 0 {
		t.Errorf("Cycle() = %v; transcript written 25s ago should not be stale", changed)
	}
	if changed := r.Cycle(base.Add(51 * time.Second)); !reflect.DeepEqual(changed, []string{"r"}) {
		t.Errorf("Cycle() = %v, want [r]", changed)
	}
}

func TestWakeGraceExemptsRunning(t *testing.T) {
	f := newFixture(t)
	f.addSession("r", session.Running, base, base, endTurn)
	f.addSession("q", session.AwaitingInput, base, base.Add(10*time.Second), midTool)
	r := f.reconciler()

	r.Cycle(base.Add(time.Second))
	if got := f.status("q"); got != session.Idle {
		t.Fatalf("q status = %v, want idle", got)
	}

	// A 60s gap is more than three intervals: assume the machine slept.
	changed := r.Cycle(base.Add(61 * time.Second))
	if len(changed) != 0 {
		t.Errorf("Cycle() during grace = %v, want nothing", changed)
	}
	r.now = func() time.Time { return base.Add(65 * time.Second) }
	if h := r.Health(); !h.InWakeGrace || h.Wakes != 1 {
		t.Errorf("Health() = %+v, want in grace after one wake", h)
	}

	changed = r.Cycle(base.Add(71 * time.Second))
	if !reflect.DeepEqual(changed, []string{"r"}) {
		t.Errorf("Cycle() after grace = %v, want [r]", changed)
	}
}

func TestOtherStatusesUntouched(t *testing.T) {
	f := newFixture(t)
	for _, st := range []session.Status{session.Starting, session.Idle, session.Closed} {
		f.addSession(st.String(), st, base, base.Add(time.Hour), endTurn)
	}
	r := f.reconciler()

	if changed := r.Cycle(base.Add(2 * time.Hour)); len(changed) != 0 {
		t.Errorf("Cycle() = %v, want nothing", changed)
	}
}

func TestMissingTranscriptIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addSession("gone", session.AwaitingInput, base, base.Add(time.Minute), midTool)
	os.Remove(filepath.Join(f.dir, "gone.jsonl"))
	_, err := f.store.Upsert(store.UpsertParams{SessionID: "nopath", ProjectPath: "/x", Status: session.Error, Now: base})
	if err != nil {
		t.Fatal(err)
	}
	r := f.reconciler()

	if changed := r.Cycle(base.Add(time.Hour)); len(changed) != 0 {
		t.Errorf("Cycle() = %v, want nothing", changed)
	}
}

type failingStore struct {
	listErr error
	casErr  error
	list    []*session.Session
}

func (s *failingStore) ListSessions() ([]*session.Session, error) {
	return s.list, s.listErr
}

func (s *failingStore) CompareAndSetStatus(string, session.Status, time.Time, session.Status, time.Time) (bool, error) {
	return false, s.casErr
}

func TestScanHealth(t *testing.T) {
	st := &failingStore{listErr: errors.New("database is locked")}
	r := NewReconciler(st, Config{})
	r.now = func() time.Time { return base }

	r.Cycle(base)
	if h := r.Health(); h.Status != HealthDegraded || h.LastError != "database is locked" {
		t.Errorf("after one failure: %+v", h)
	}
	r.Cycle(base.Add(10 * time.Second))
	r.Cycle(base.Add(20 * time.Second))
	if h := r.Health(); h.Status != HealthFailed || h.ConsecutiveFailures != 3 {
		t.Errorf("after three failures: %+v", h)
	}

	st.listErr = nil
	r.Cycle(base.Add(30 * time.Second))
	h := r.Health()
	if h.Status != HealthOK || h.ConsecutiveFailures != 0 || !h.LastScan.Equal(base.Add(30*time.Second)) {
		t.Errorf("after recovery: %+v", h)
	}
}

func TestWriteErrorDoesNotAbortScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.jsonl")
	os.WriteFile(path, []byte(midTool), 0644)
	os.Chtimes(path, base.Add(time.Minute), base.Add(time.Minute))

	st := &failingStore{
		casErr: errors.New("disk full"),
		list: []*session.Session{
			{SessionID: "a", Status: session.Error, TranscriptPath: path, UpdatedAt: base},
		},
	}
	r := NewReconciler(st, Config{})
	r.now = func() time.Time { return base }

	if changed := r.Cycle(base.Add(2 * time.Minute)); len(changed) != 0 {
		t.Errorf("Cycle() = %v, want nothing", changed)
	}
	if h := r.Health(); h.Status != HealthOK || h.LastError == "" {
		t.Errorf("Health() = %+v, want ok with last error recorded", h)
	}
}
