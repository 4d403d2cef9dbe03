package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEstimateLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   Estimate
		want string
	}{
		{Estimate{Value: 1, Unit: UnitHours}, "1 hr"},
		{Estimate{Value: 3, Unit: UnitHours}, "3 hrs"},
		{Estimate{Value: 1, Unit: UnitDays}, "1 day"},
		{Estimate{Value: 2, Unit: UnitWeeks}, "2 weeks"},
		{Estimate{Value: 45, Unit: UnitMinutes}, "45 minutes"},
		{Estimate{Value: 0, Unit: UnitMinutes}, ""},
	}
	for _, tc := range tests {
		if got := tc.in.Label(); got != tc.want {
			t.Fatalf("Label(%+v) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestScheduleJSON_CarriesDiscriminant(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(EstimateOf(3, UnitHours))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"kind":"estimate"`, `"value":3`, `"unit":"hours"`, `"formatted":"3 hrs"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}

	var back Schedule
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(EstimateOf(3, UnitHours)) {
		t.Fatalf("unexpected schedule: %+v", back)
	}

	var none Schedule
	if err := json.Unmarshal([]byte(`null`), &none); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !none.IsZero() {
		t.Fatalf("expected zero schedule, got %+v", none)
	}
	if err := json.Unmarshal([]byte(`{"kind":"sometime"}`), &none); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestParseEstimate(t *testing.T) {
	t.Parallel()

	s, err := ParseEstimate("2d")
	if err != nil {
		t.Fatalf("ParseEstimate: %v", err)
	}
	if s.Kind != ScheduleEstimate || s.Estimate.Value != 2 || s.Estimate.Unit != UnitDays {
		t.Fatalf("unexpected: %+v", s.Estimate)
	}
	for _, bad := range []string{"", "0h", "3 fortnights", "h3"} {
		if _, err := ParseEstimate(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	if s, err := ParseSchedule("", ""); err != nil || !s.IsZero() {
		t.Fatalf("expected no schedule, got %+v (%v)", s, err)
	}
	s, err := ParseSchedule("2025-03-01", "")
	if err != nil || s.Kind != ScheduleDue || s.Label() != "due 2025-03-01" {
		t.Fatalf("unexpected due schedule: %+v (%v)", s, err)
	}
	s, err = ParseSchedule("", "3h")
	if err != nil || s.Label() != "3 hrs" {
		t.Fatalf("unexpected estimate schedule: %+v (%v)", s, err)
	}
	var ve ValidationError
	if _, err := ParseSchedule("2025-03-01", "3h"); !errors.As(err, &ve) || ve.Field != "schedule" {
		t.Fatalf("expected schedule validation error, got %v", err)
	}
	if _, err := ParseSchedule("tomorrow", ""); !errors.As(err, &ve) || ve.Field != "dueDate" {
		t.Fatalf("expected dueDate validation error, got %v", err)
	}
	if _, err := ParseSchedule("", "0 hours"); !errors.As(err, &ve) || ve.Reason != "timeframe is required" {
		t.Fatalf("expected missing timeframe error, got %v", err)
	}
}

func TestNewTaskValidate(t *testing.T) {
	t.Parallel()

	var ve ValidationError
	if err := (NewTask{Title: "  ", ColumnID: "c"}).Validate(); !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	empty := Schedule{Kind: ScheduleEstimate, Estimate: &Estimate{Unit: UnitHours}}
	if err := (NewTask{Title: "x", ColumnID: "c", Schedule: empty}).Validate(); !errors.As(err, &ve) || ve.Field != "timeEstimate" {
		t.Fatalf("expected timeframe validation error, got %v", err)
	}
	if err := (NewTask{Title: "x", ColumnID: "c", Priority: "urgent"}).Validate(); err == nil {
		t.Fatalf("expected priority error")
	}
	if err := (NewTask{Title: "x", ColumnID: "c", Schedule: DueOn(time.Now())}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBoardClone_IsDeep(t *testing.T) {
	t.Parallel()

	b := Board{Columns: []Column{{ID: "A", Tasks: []Task{{ID: "t1", Assignee: &Assignee{Name: "You"}}}}}}
	c := b.Clone()
	c.Columns[0].Tasks[0].Title = "changed"
	c.Columns[0].Tasks[0].Assignee.Name = "Other"
	if b.Columns[0].Tasks[0].Title != "" || b.Columns[0].Tasks[0].Assignee.Name != "You" {
		t.Fatalf("clone shares memory with original")
	}
}

func TestDiffTask_RoundTrips(t *testing.T) {
	t.Parallel()

	prev := Task{ID: "t", Title: "a", Priority: PriorityLow, Order: 1}
	next := prev.Clone()
	next.Title = "b"
	next.Completed = true
	next.Schedule = EstimateOf(1, UnitDays)

	p := DiffTask(prev, next)
	if p.Order != nil || p.ColumnID != nil {
		t.Fatalf("unexpected fields in patch: %+v", p)
	}
	got := prev.Clone()
	p.ApplyTo(&got)
	if got.Title != "b" || !got.Completed || !got.Schedule.Equal(next.Schedule) {
		t.Fatalf("patch did not reproduce next: %+v", got)
	}
	if !DiffTask(next, next).Empty() {
		t.Fatalf("expected empty diff")
	}
}
