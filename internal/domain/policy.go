package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AutomationStep moves a shipment to Status once ship date + DayOffset at NotifyAt has passed.
type AutomationStep struct {
	Status    string
	DayOffset int
	// NotifyAt is the local time of day, "HH:MM".
	NotifyAt string
	Channels []Channel
}

// AutomationPolicy is the singleton automation configuration.
type AutomationPolicy struct {
	Enabled              bool
	Steps                []AutomationStep
	FinalStatus          string
	InitialStatus        string
	NotificationsEnabled bool
	Version              int
	LastRunAt            *time.Time
	LastRunSuccess       *bool
	LastRunUpdated       int
	UpdatedAt            time.Time
}

// DueAt returns the instant the step fires for a shipment shipped on shipDate.
// The ship date contributes only its calendar day in loc.
func (s AutomationStep) DueAt(shipDate time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	hour, minute, err := parseClock(s.NotifyAt)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := shipDate.In(loc).Date()
	return time.Date(y, m, d+s.DayOffset, hour, minute, 0, 0, loc), nil
}

// HasChannel reports whether the step notifies over channel.
func (s AutomationStep) HasChannel(channel Channel) bool {
	for _, c := range s.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

func (p *AutomationPolicy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: policy is required", ErrInvalidPolicy)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidPolicy)
	}
	if strings.TrimSpace(p.FinalStatus) == "" {
		return fmt.Errorf("%w: final status is required", ErrInvalidPolicy)
	}

	seen := make(map[string]int, len(p.Steps))
	for i, step := range p.Steps {
		status := strings.ToLower(strings.TrimSpace(step.Status))
		if status == "" {
			return fmt.Errorf("%w: step %d has no status", ErrInvalidPolicy, i)
		}
		if prev, ok := seen[status]; ok {
			return fmt.Errorf("%w: steps %d and %d share status %q", ErrInvalidPolicy, prev, i, step.Status)
		}
		seen[status] = i

		if step.DayOffset < 0 {
			return fmt.Errorf("%w: step %d has negative day offset", ErrInvalidPolicy, i)
		}
		if i > 0 && step.DayOffset < p.Steps[i-1].DayOffset {
			return fmt.Errorf("%w: day offsets must be non-decreasing (step %d: %d < %d)",
				ErrInvalidPolicy, i, step.DayOffset, p.Steps[i-1].DayOffset)
		}
		hour, minute, err := parseClock(step.NotifyAt)
		if err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidPolicy, i, err)
		}
		if i > 0 && step.DayOffset == p.Steps[i-1].DayOffset {
			prevHour, prevMinute, err := parseClock(p.Steps[i-1].NotifyAt)
			if err == nil && hour*60+minute < prevHour*60+prevMinute {
				return fmt.Errorf("%w: step %d notifies at %s, before step %d on the same day (%s)",
					ErrInvalidPolicy, i, step.NotifyAt, i-1, p.Steps[i-1].NotifyAt)
			}
		}
		for _, channel := range step.Channels {
			if !channel.IsValid() {
				return fmt.Errorf("%w: step %d has invalid channel %q", ErrInvalidPolicy, i, channel)
			}
		}
	}

	last := p.Steps[len(p.Steps)-1]
	if !SameStatus(last.Status, p.FinalStatus) {
		return fmt.Errorf("%w: last step status %q must equal final status %q", ErrInvalidPolicy, last.Status, p.FinalStatus)
	}

	return nil
}

func (p *AutomationPolicy) IsTerminal(status string) bool {
	return p != nil && SameStatus(status, p.FinalStatus)
}

// StepIndex returns the position of status in the step sequence, or -1.
func (p *AutomationPolicy) StepIndex(status string) int {
	if p == nil {
		return -1
	}
	for i, step := range p.Steps {
		if SameStatus(step.Status, status) {
			return i
		}
	}
	return -1
}

// DueStep returns the single next step due for the shipment at now.
// Steps at or before the shipment's current position are never returned, a status outside the
// sequence counts as "before the first step", and terminal shipments have nothing due.
// An invalid policy has nothing due.
func (p *AutomationPolicy) DueStep(shipment *Shipment, now time.Time, loc *time.Location) (AutomationStep, int, bool) {
	return p.NextDueStep(shipment, now, loc, nil)
}

// NextDueStep is DueStep with claimed steps passed over. claimed reports whether a dispatch
// already exists for a status; nil means none does. The walk stops at the first unclaimed step
// that is not yet due, so a later step is never taken ahead of an earlier one.
func (p *AutomationPolicy) NextDueStep(shipment *Shipment, now time.Time, loc *time.Location, claimed func(status string) bool) (AutomationStep, int, bool) {
	if shipment == nil || shipment.ShipDate.IsZero() {
		return AutomationStep{}, -1, false
	}
	if err := p.Validate(); err != nil {
		return AutomationStep{}, -1, false
	}
	if p.IsTerminal(shipment.Status) {
		return AutomationStep{}, -1, false
	}

	for i := p.StepIndex(shipment.Status) + 1; i < len(p.Steps); i++ {
		step := p.Steps[i]
		if SameStatus(step.Status, shipment.Status) {
			continue
		}
		if claimed != nil && claimed(step.Status) {
			continue
		}
		dueAt, err := step.DueAt(shipment.ShipDate, loc)
		if err != nil {
			return AutomationStep{}, -1, false
		}
		if dueAt.After(now) {
			return AutomationStep{}, -1, false
		}
		return step, i, true
	}

	return AutomationStep{}, -1, false
}

func parseClock(value string) (int, int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, 0, nil
	}

	hh, mm, ok := strings.Cut(trimmed, ":")
	if !ok {
		return 0, 0, fmt.Errorf("time of day %q must be HH:MM", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time of day %q has invalid hour", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q has invalid minute", value)
	}
	return hour, minute, nil
}
