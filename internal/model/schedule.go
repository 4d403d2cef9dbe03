package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ScheduleKind discriminates the Schedule union.
type ScheduleKind string

const (
	ScheduleNone     ScheduleKind = "none"
	ScheduleDue      ScheduleKind = "due"
	ScheduleEstimate ScheduleKind = "estimate"
)

type TimeUnit string

const (
	UnitMinutes TimeUnit = "minutes"
	UnitHours   TimeUnit = "hours"
	UnitDays    TimeUnit = "days"
	UnitWeeks   TimeUnit = "weeks"
)

// Estimate is a rough effort estimate such as "3 hours".
type Estimate struct {
	Value int      `json:"value"`
	Unit  TimeUnit `json:"unit"`
}

// Label renders the estimate the way cards show it: "1 hr", "3 hrs", "2 days".
func (e Estimate) Label() string {
	if e.Value <= 0 {
		return ""
	}
	unit := string(e.Unit)
	if e.Unit == UnitHours {
		unit = "hr"
	} else {
		unit = strings.TrimSuffix(unit, "s")
	}
	if e.Value != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", e.Value, unit)
}

// Schedule is either nothing, a due date or a time estimate.
// Exactly one of Due/Estimate is set, matching Kind.
type Schedule struct {
	Kind     ScheduleKind
	Due      *time.Time
	Estimate *Estimate
}

func NoSchedule() Schedule { return Schedule{Kind: ScheduleNone} }

func DueOn(t time.Time) Schedule {
	t = t.UTC()
	return Schedule{Kind: ScheduleDue, Due: &t}
}

func EstimateOf(value int, unit TimeUnit) Schedule {
	return Schedule{Kind: ScheduleEstimate, Estimate: &Estimate{Value: value, Unit: unit}}
}

func (s Schedule) IsZero() bool {
	return s.Kind == "" || s.Kind == ScheduleNone
}

func (s Schedule) Clone() Schedule {
	out := Schedule{Kind: s.Kind}
	if s.Due != nil {
		d := *s.Due
		out.Due = &d
	}
	if s.Estimate != nil {
		e := *s.Estimate
		out.Estimate = &e
	}
	return out
}

func (s Schedule) Equal(o Schedule) bool {
	if s.IsZero() || o.IsZero() {
		return s.IsZero() == o.IsZero()
	}
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case ScheduleDue:
		return s.Due != nil && o.Due != nil && s.Due.Equal(*o.Due)
	case ScheduleEstimate:
		return s.Estimate != nil && o.Estimate != nil && *s.Estimate == *o.Estimate
	}
	return false
}

func (s Schedule) Validate() error {
	switch s.Kind {
	case "", ScheduleNone:
		return nil
	case ScheduleDue:
		if s.Due == nil || s.Due.IsZero() {
			return ValidationError{Field: "dueDate", Reason: "due date is required"}
		}
		return nil
	case ScheduleEstimate:
		if s.Estimate == nil || s.Estimate.Value <= 0 {
			return ValidationError{Field: "timeEstimate", Reason: "timeframe is required"}
		}
		switch s.Estimate.Unit {
		case UnitMinutes, UnitHours, UnitDays, UnitWeeks:
			return nil
		default:
			return ValidationError{Field: "timeEstimate", Reason: fmt.Sprintf("unknown unit %q", s.Estimate.Unit)}
		}
	default:
		return ValidationError{Field: "schedule", Reason: fmt.Sprintf("unknown schedule kind %q", s.Kind)}
	}
}

// Label is a short human rendering used by the CLI and the board views.
func (s Schedule) Label() string {
	switch s.Kind {
	case ScheduleDue:
		if s.Due != nil {
			return "due " + s.Due.Format("2006-01-02")
		}
	case ScheduleEstimate:
		if s.Estimate != nil {
			return s.Estimate.Label()
		}
	}
	return ""
}

type scheduleWire struct {
	Kind      ScheduleKind `json:"kind"`
	DueDate   *time.Time   `json:"dueDate,omitempty"`
	Value     int          `json:"value,omitempty"`
	Unit      TimeUnit     `json:"unit,omitempty"`
	Formatted string       `json:"formatted,omitempty"`
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	w := scheduleWire{Kind: s.Kind}
	if w.Kind == "" {
		w.Kind = ScheduleNone
	}
	switch w.Kind {
	case ScheduleDue:
		w.DueDate = s.Due
	case ScheduleEstimate:
		if s.Estimate != nil {
			w.Value = s.Estimate.Value
			w.Unit = s.Estimate.Unit
			w.Formatted = s.Estimate.Label()
		}
	}
	return json.Marshal(w)
}

func (s *Schedule) UnmarshalJSON(b []byte) error {
	if strings.TrimSpace(string(b)) == "null" {
		*s = NoSchedule()
		return nil
	}
	var w scheduleWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "", ScheduleNone:
		*s = NoSchedule()
	case ScheduleDue:
		if w.DueDate == nil {
			return fmt.Errorf("schedule: due without dueDate")
		}
		*s = DueOn(*w.DueDate)
	case ScheduleEstimate:
		*s = EstimateOf(w.Value, w.Unit)
	default:
		return fmt.Errorf("schedule: unknown kind %q", w.Kind)
	}
	return nil
}

var estimatePattern = regexp.MustCompile(`^(\d+)\s*([a-zA-Z]+)$`)

// ParseEstimate accepts "3h", "45m", "2 days", "1w".
func ParseEstimate(s string) (Schedule, error) {
	m := estimatePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Schedule{}, ValidationError{Field: "timeEstimate", Reason: fmt.Sprintf("invalid timeframe %q", s)}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Schedule{}, ValidationError{Field: "timeEstimate", Reason: "timeframe is required"}
	}
	var unit TimeUnit
	switch strings.ToLower(m[2]) {
	case "m", "min", "mins", "minute", "minutes":
		unit = UnitMinutes
	case "h", "hr", "hrs", "hour", "hours":
		unit = UnitHours
	case "d", "day", "days":
		unit = UnitDays
	case "w", "wk", "wks", "week", "weeks":
		unit = UnitWeeks
	default:
		return Schedule{}, ValidationError{Field: "timeEstimate", Reason: fmt.Sprintf("unknown unit %q", m[2])}
	}
	return EstimateOf(n, unit), nil
}

// ParseSchedule builds a schedule from the optional due date and estimate inputs.
// At most one may be set; neither means no schedule.
func ParseSchedule(due, estimate string) (Schedule, error) {
	due, estimate = strings.TrimSpace(due), strings.TrimSpace(estimate)
	switch {
	case due != "" && estimate != "":
		return Schedule{}, ValidationError{Field: "schedule", Reason: "set either a due date or a timeframe, not both"}
	case due != "":
		t, err := ParseDue(due)
		if err != nil {
			return Schedule{}, err
		}
		return DueOn(t), nil
	case estimate != "":
		return ParseEstimate(estimate)
	}
	return NoSchedule(), nil
}
