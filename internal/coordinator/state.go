package coordinator

import (
	"fmt"
	"time"
)

// State is the coordinator's position in its sync state machine.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{StateIdle, StateSyncing, StateCompleted, StateFailed} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown sync state %q", b)
}

// Trigger is what started a cycle.
type Trigger string

const (
	TriggerTimer    Trigger = "timer"
	TriggerRefresh  Trigger = "refresh"
	TriggerRollover Trigger = "rollover"
	TriggerManual   Trigger = "manual"
)

// Report summarizes one finished cycle.
type Report struct {
	Trigger  Trigger   `json:"trigger"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Days     []string  `json:"days"`
	Habits   int       `json:"habits"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
	// Failures maps habit id to the error that stopped its reconciliation.
	Failures map[string]string `json:"failures,omitempty"`
	State    State             `json:"state"`
}

// Partial reports a completed cycle in which some habits failed.
func (r Report) Partial() bool {
	return r.State == StateCompleted && len(r.Failures) > 0
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	State        State      `json:"state"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	LastReport   *Report    `json:"last_report,omitempty"`
	Cycles       int64      `json:"cycles"`
}

// Transition is published to subscribers on every state change.
type Transition struct {
	From   State   `json:"from"`
	To     State   `json:"to"`
	Report *Report `json:"report,omitempty"`
}
