package reorder

import (
	"reflect"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestResolve(t *testing.T) {
	t.Parallel()

	b := sampleBoard()
	tests := []struct {
		name   string
		g      DragEnd
		want   Move
		wantOK bool
	}{
		{
			name: "dropped outside",
			g:    DragEnd{Active: Active{ID: "A", Kind: KindColumn}},
		},
		{
			name:   "column onto column",
			g:      DragEnd{Active: Active{ID: "C", Kind: KindColumn}, Over: &Over{ID: "A"}},
			want:   ColumnMove{Source: 2, Dest: 0},
			wantOK: true,
		},
		{
			name: "column onto itself",
			g:    DragEnd{Active: Active{ID: "B", Kind: KindColumn}, Over: &Over{ID: "B"}},
		},
		{
			name:   "task onto task in same column",
			g:      DragEnd{Active: Active{ID: "t1", Kind: KindTask, ContainerID: "A", Index: 0}, Over: &Over{ID: "t3", ContainerID: "A", Index: intPtr(2)}},
			want:   TaskMove{SourceColumnID: "A", SourceIndex: 0, DestColumnID: "A", DestIndex: 2},
			wantOK: true,
		},
		{
			name:   "task onto empty column body appends",
			g:      DragEnd{Active: Active{ID: "t2", Kind: KindTask, ContainerID: "A", Index: 1}, Over: &Over{ID: "C"}},
			want:   TaskMove{SourceColumnID: "A", SourceIndex: 1, DestColumnID: "C", DestIndex: 0},
			wantOK: true,
		},
		{
			name:   "task onto non-empty column body appends",
			g:      DragEnd{Active: Active{ID: "t1", Kind: KindTask, ContainerID: "A"}, Over: &Over{ID: "B"}},
			want:   TaskMove{SourceColumnID: "A", SourceIndex: 0, DestColumnID: "B", DestIndex: 1},
			wantOK: true,
		},
		{
			name:   "stale container is corrected from the board",
			g:      DragEnd{Active: Active{ID: "t4", Kind: KindTask, ContainerID: "A"}, Over: &Over{ID: "t1", ContainerID: "A", Index: intPtr(0)}},
			want:   TaskMove{SourceColumnID: "B", SourceIndex: 0, DestColumnID: "A", DestIndex: 0},
			wantOK: true,
		},
		{
			name: "unknown task",
			g:    DragEnd{Active: Active{ID: "nope", Kind: KindTask}, Over: &Over{ID: "A"}},
		},
		{
			name: "unknown destination",
			g:    DragEnd{Active: Active{ID: "t1", Kind: KindTask}, Over: &Over{ID: "gone"}},
		},
	}
	for _, tc := range tests {
		got, ok := Resolve(b, tc.g)
		if ok != tc.wantOK {
			t.Fatalf("%s: ok=%v; want %v", tc.name, ok, tc.wantOK)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %#v; want %#v", tc.name, got, tc.want)
		}
	}
}

func TestApply_DispatchesMoves(t *testing.T) {
	t.Parallel()

	b := sampleBoard()
	got, ok := Apply(b, TaskMove{SourceColumnID: "A", SourceIndex: 2, DestColumnID: "C", DestIndex: 0})
	if !ok || len(got.Columns[2].Tasks) != 1 || got.Columns[2].Tasks[0].ID != "t3" {
		t.Fatalf("unexpected task move result: ok=%v %+v", ok, got.Columns[2])
	}
	got, ok = Apply(b, ColumnMove{Source: 0, Dest: 1})
	if !ok || got.Columns[0].ID != "B" {
		t.Fatalf("unexpected column move result: ok=%v %v", ok, columnIDs(got))
	}
}

func TestDiff_ReportsEveryAffectedSibling(t *testing.T) {
	t.Parallel()

	b := sampleBoard()
	after, _ := MoveTask(b, "A", 0, "B", 0)
	ch := Diff(b, after)
	if len(ch.Columns) != 0 {
		t.Fatalf("expected no column rank changes, got %+v", ch.Columns)
	}
	got := map[string]TaskRank{}
	for _, tr := range ch.Tasks {
		got[tr.ID] = tr
	}
	want := map[string]TaskRank{
		"t2": {ID: "t2", ColumnID: "A", Order: 0},
		"t3": {ID: "t3", ColumnID: "A", Order: 1},
		"t1": {ID: "t1", ColumnID: "B", Order: 0},
		"t4": {ID: "t4", ColumnID: "B", Order: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected changes: %+v", got)
	}
	if len(ch.ColumnIDs) != 2 {
		t.Fatalf("expected both columns affected, got %v", ch.ColumnIDs)
	}

	cols, _ := MoveColumn(b, 2, 0)
	if ch := Diff(b, cols); len(ch.Columns) != 3 || len(ch.Tasks) != 0 {
		t.Fatalf("unexpected column move diff: %+v", ch)
	}
	if !Diff(b, b).Empty() {
		t.Fatalf("expected empty diff for identical boards")
	}
}

func TestAffected_ListsWholeSiblingLists(t *testing.T) {
	t.Parallel()

	b := sampleBoard()
	after, _ := MoveTask(b, "A", 2, "A", 1)
	if d := Diff(b, after); len(d.Tasks) != 2 {
		t.Fatalf("expected Diff to see two rank changes, got %+v", d.Tasks)
	}
	ch := Affected(b, after)
	want := []TaskRank{
		{ID: "t1", ColumnID: "A", Order: 0},
		{ID: "t3", ColumnID: "A", Order: 1},
		{ID: "t2", ColumnID: "A", Order: 2},
	}
	if !reflect.DeepEqual(ch.Tasks, want) {
		t.Fatalf("unexpected tasks: %+v", ch.Tasks)
	}
	if len(ch.Columns) != 0 {
		t.Fatalf("expected no column ranks, got %+v", ch.Columns)
	}

	cross, _ := MoveTask(b, "B", 0, "C", 0)
	ch = Affected(b, cross)
	if len(ch.Tasks) != 1 || ch.Tasks[0].ID != "t4" || ch.Tasks[0].ColumnID != "C" {
		t.Fatalf("unexpected cross-column ranks: %+v", ch.Tasks)
	}

	cols, _ := MoveColumn(b, 0, 1)
	ch = Affected(b, cols)
	if len(ch.Columns) != 3 || len(ch.Tasks) != 0 {
		t.Fatalf("expected every column rank and no tasks, got %+v", ch)
	}
	if !Affected(b, b).Empty() {
		t.Fatalf("expected nothing affected for identical boards")
	}
}
