package queue

import (
	"fmt"
	"strings"
	"time"
)

// Run request reasons.
const (
	ReasonSchedule     = "schedule"
	ReasonContinuation = "continuation"
	ReasonManual       = "manual"
)

// RunRequest asks a worker to execute one automation batch.
type RunRequest struct {
	RunID       string    `json:"runId"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (m RunRequest) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return fmt.Errorf("runId is required")
	}
	switch m.Reason {
	case ReasonSchedule, ReasonContinuation, ReasonManual:
	default:
		return fmt.Errorf("invalid reason %q", m.Reason)
	}
	if m.RequestedAt.IsZero() {
		return fmt.Errorf("requestedAt is required")
	}
	return nil
}
