package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kanban-cli/internal/model"
)

// Write writes output in the requested format.
//
// Supported formats:
// - json (default)
// - text (boards, columns and tasks; anything else falls back to JSON)
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "text":
		return WriteText(w, v)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteJSON writes strict JSON output for CLI commands.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}

// WriteText renders a human-readable listing. Styling is dropped automatically when w is
// not a terminal.
func WriteText(w io.Writer, v any) error {
	r := lipgloss.NewRenderer(w)
	heading := r.NewStyle().Bold(true)
	muted := r.NewStyle().Faint(true)

	var sb strings.Builder
	switch t := v.(type) {
	case model.Board:
		if len(t.Columns) == 0 {
			sb.WriteString(muted.Render("(no columns)") + "\n")
		}
		for i, c := range t.Columns {
			if i > 0 {
				sb.WriteString("\n")
			}
			writeColumn(&sb, c, heading, muted)
		}
	case *model.Board:
		return WriteText(w, *t)
	case model.Column:
		writeColumn(&sb, t, heading, muted)
	case model.Task:
		sb.WriteString(TaskLine(t) + "\n")
		if d := strings.TrimSpace(t.Description); d != "" {
			sb.WriteString("\n" + d + "\n")
		}
	default:
		return WriteJSON(w, v, true)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeColumn(sb *strings.Builder, c model.Column, heading, muted lipgloss.Style) {
	fmt.Fprintf(sb, "%s %s\n", heading.Render(c.Title), muted.Render(fmt.Sprintf("(%s, %d)", c.ID, len(c.Tasks))))
	for _, t := range c.Tasks {
		sb.WriteString("  " + TaskLine(t) + "\n")
	}
}

// TaskLine is the one-line task rendering shared with the terminal board:
// "[x] Title  high  3 hrs  @You  (id)".
func TaskLine(t model.Task) string {
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}
	parts := []string{box + " " + t.Title, string(t.Priority)}
	if l := t.Schedule.Label(); l != "" {
		parts = append(parts, l)
	}
	if t.Assignee != nil && t.Assignee.Name != "" {
		parts = append(parts, "@"+t.Assignee.Name)
	}
	parts = append(parts, "("+t.ID+")")
	return strings.Join(parts, "  ")
}
