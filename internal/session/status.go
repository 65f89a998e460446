package session

import (
	"encoding/json"
	"fmt"
)

type Status int

const (
	Starting Status = iota
	Running
	Idle
	AwaitingInput
	AwaitingApproval
	Error
	Closed
)

// statusInfo holds the per-status display data. Dashboards and the CLI read
// from this table instead of switching on the status themselves.
type statusInfo struct {
	name      string
	icon      rune
	short     string
	attention bool
}

var statusTable = map[Status]statusInfo{
	Starting:         {name: "starting", icon: '.', short: "start"},
	Running:          {name: "running", icon: '>', short: "running"},
	Idle:             {name: "idle", icon: '-', short: "idle", attention: true},
	AwaitingInput:    {name: "awaiting_input", icon: '?', short: "input", attention: true},
	AwaitingApproval: {name: "awaiting_approval", icon: '!', short: "approve", attention: true},
	Error:            {name: "error", icon: 'X', short: "error", attention: true},
	Closed:           {name: "closed", icon: 'x', short: "closed", attention: true},
}

var statusFromName = func() map[string]Status {
	m := make(map[string]Status, len(statusTable))
	for st, info := range statusTable {
		m[info.name] = st
	}
	return m
}()

// AllStatuses lists every status in declaration order.
func AllStatuses() []Status {
	return []Status{Starting, Running, Idle, AwaitingInput, AwaitingApproval, Error, Closed}
}

// ParseStatus returns the status with the given wire name.
func ParseStatus(name string) (Status, bool) {
	st, ok := statusFromName[name]
	return st, ok
}

func (s Status) String() string {
	if info, ok := statusTable[s]; ok {
		return info.name
	}
	return "unknown"
}

func (s Status) Icon() rune {
	if info, ok := statusTable[s]; ok {
		return info.icon
	}
	return ' '
}

func (s Status) ShortName() string {
	if info, ok := statusTable[s]; ok {
		return info.short
	}
	return "unknown"
}

// NeedsAttention reports whether a human should look at the session.
func (s Status) NeedsAttention() bool {
	return statusTable[s].attention
}

// Recoverable reports whether HealthCheckRecovery moves s somewhere else.
func (s Status) Recoverable() bool {
	return s == AwaitingInput || s == AwaitingApproval || s == Error
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	st, ok := ParseStatus(name)
	if !ok {
		return fmt.Errorf("unknown session status %q", name)
	}
	*s = st
	return nil
}
