package domain

import (
	"fmt"
	"strings"
	"time"
)

// Direction selects which service drives reconciliation.
type Direction string

const (
	DirectionService1To2 Direction = "service1_to_service2"
	DirectionService2To1 Direction = "service2_to_service1"
	// DirectionBoth is recognised so it can be rejected explicitly.
	DirectionBoth Direction = "both"
)

// ParseDirection parses a configured binding direction. Symmetric
// reconciliation is not supported and is rejected.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionService1To2:
		return DirectionService1To2, nil
	case DirectionService2To1:
		return DirectionService2To1, nil
	case DirectionBoth:
		return "", fmt.Errorf("%w: direction %q is not supported, choose one driving service", ErrInvalidInput, s)
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, s)
	}
}

// CycleState is the sync engine's state machine position.
type CycleState string

const (
	CycleIdle        CycleState = "idle"
	CycleLocked      CycleState = "locked"
	CycleFetching    CycleState = "fetching"
	CycleReconciling CycleState = "reconciling"
)

// CycleResult is the outcome of one sync cycle.
type CycleResult struct {
	ID          string        `json:"id"`
	Direction   Direction     `json:"direction"`
	Driving     string        `json:"driving"`
	Counterpart string        `json:"counterpart"`
	Success     bool          `json:"success"`
	New         int           `json:"new"`
	Updated     int           `json:"updated"`
	Duplicate   int           `json:"duplicate"`
	Paired      int           `json:"paired"`
	Propagated  int           `json:"propagated"`
	Failed      int           `json:"failed"`
	Errors      []string      `json:"errors,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// EngineState is a snapshot of the sync engine for operators.
type EngineState struct {
	State      CycleState   `json:"state"`
	AutoSync   bool         `json:"auto_sync"`
	Direction  Direction    `json:"direction"`
	Services   []string     `json:"services"`
	LastResult *CycleResult `json:"last_result,omitempty"`
}
