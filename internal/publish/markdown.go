package publish

import (
	"bytes"
	"fmt"
	"strings"

	"kanban-cli/internal/model"
)

// RenderBoardMarkdown renders the board as a single page: one section per column, one
// checklist entry per task linking to its own page.
func RenderBoardMarkdown(b model.Board, title string) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "Board"
	}
	writeLn("# " + title)
	writeLn("")
	writeLn(fmt.Sprintf("%d columns, %d tasks.", len(b.Columns), b.TaskCount()))

	for _, c := range b.Columns {
		writeLn("")
		writeLn(fmt.Sprintf("## %s (%d)", strings.TrimSpace(c.Title), len(c.Tasks)))
		writeLn("")
		if len(c.Tasks) == 0 {
			writeLn("_No tasks._")
			continue
		}
		for _, t := range c.Tasks {
			box := " "
			if t.Completed {
				box = "x"
			}
			line := fmt.Sprintf("- [%s] [%s](tasks/%s.md)", box, escapeLinkText(t.Title), t.ID)
			if meta := metaLine(t); meta != "" {
				line += " " + meta
			}
			writeLn(line)
		}
	}
	return buf.String()
}

// RenderTaskMarkdown renders one task page. column is the title of the task's column.
func RenderTaskMarkdown(t model.Task, column string) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("# " + strings.TrimSpace(t.Title))
	writeLn("")
	writeLn("## Meta")
	writeLn("")
	writeLn("- ID: " + t.ID)
	if column != "" {
		writeLn("- Column: " + column + " (" + t.ColumnID + ")")
	} else {
		writeLn("- Column: " + t.ColumnID)
	}
	writeLn("- Priority: " + string(t.Priority))
	if t.Completed {
		writeLn("- Completed: true")
	}
	if lbl := t.Schedule.Label(); lbl != "" {
		writeLn("- Schedule: " + lbl)
	}
	if t.Assignee != nil && strings.TrimSpace(t.Assignee.Name) != "" {
		writeLn("- Assignee: " + strings.TrimSpace(t.Assignee.Name))
	}

	if d := strings.TrimSpace(t.Description); d != "" {
		writeLn("")
		writeLn("## Description")
		writeLn("")
		writeLn(d)
	}
	return buf.String()
}

func metaLine(t model.Task) string {
	parts := []string{"`" + string(t.Priority) + "`"}
	if lbl := t.Schedule.Label(); lbl != "" {
		parts = append(parts, lbl)
	}
	if t.Assignee != nil && strings.TrimSpace(t.Assignee.Name) != "" {
		parts = append(parts, "@"+strings.TrimSpace(t.Assignee.Name))
	}
	return strings.Join(parts, " · ")
}

var linkEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

func escapeLinkText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(untitled)"
	}
	return linkEscaper.Replace(s)
}
