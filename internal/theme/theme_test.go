package theme

import (
	"strings"
	"testing"

	"github.com/plate-spinner/plate-spinner/internal/session"
)

func TestEveryStatusHasAColor(t *testing.T) {
	seen := make(map[string]string)
	for _, st := range session.AllStatuses() {
		c := StatusColor(st.String())
		if c == ColorDefault {
			t.Errorf("StatusColor(%q) = default", st)
		}
		if prev, ok := seen[string(c)]; ok {
			t.Errorf("StatusColor(%q) = %s, same as %s", st, c, prev)
		}
		seen[string(c)] = st.String()
	}
	if got := StatusColor("unknown"); got != ColorDefault {
		t.Errorf("StatusColor(unknown) = %s, want default", got)
	}
}

func TestStatusStyleKeepsText(t *testing.T) {
	for _, attention := range []bool{false, true} {
		s := StatusStyle("error", attention)
		if s.GetBold() != attention {
			t.Errorf("StatusStyle(error, %v).GetBold() = %v", attention, s.GetBold())
		}
		if got := s.Render("? input"); !strings.Contains(got, "? input") {
			t.Errorf("Render() = %q, lost text", got)
		}
	}
}
