package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kanban-cli/internal/model"
)

type selection struct {
	Col  int
	Task int
	// Ids are preferred over indexes so focus follows a card or column across moves
	// and remote refreshes.
	ColumnID string
	TaskID   string
}

func clampSelection(b model.Board, sel selection) selection {
	if len(b.Columns) == 0 {
		return selection{Task: -1}
	}

	if ci, ti, ok := b.FindTask(sel.TaskID); ok && sel.TaskID != "" {
		sel.Col, sel.Task = ci, ti
	} else {
		sel.TaskID = ""
		if ci := b.ColumnIndex(sel.ColumnID); ci >= 0 && sel.ColumnID != "" {
			sel.Col = ci
		}
	}

	if sel.Col < 0 {
		sel.Col = 0
	}
	if sel.Col >= len(b.Columns) {
		sel.Col = len(b.Columns) - 1
	}
	col := b.Columns[sel.Col]
	sel.ColumnID = col.ID

	if len(col.Tasks) == 0 {
		sel.Task = -1
		sel.TaskID = ""
		return sel
	}
	if sel.Task < 0 {
		sel.Task = 0
	}
	if sel.Task >= len(col.Tasks) {
		sel.Task = len(col.Tasks) - 1
	}
	sel.TaskID = col.Tasks[sel.Task].ID
	return sel
}

func selectedColumn(b model.Board, sel selection) (model.Column, bool) {
	sel = clampSelection(b, sel)
	if len(b.Columns) == 0 {
		return model.Column{}, false
	}
	return b.Columns[sel.Col], true
}

func selectedTask(b model.Board, sel selection) (model.Task, bool) {
	sel = clampSelection(b, sel)
	if len(b.Columns) == 0 || sel.Task < 0 {
		return model.Task{}, false
	}
	return b.Columns[sel.Col].Tasks[sel.Task], true
}

func priorityStyle(p model.Priority) lipgloss.Style {
	st := lipgloss.NewStyle()
	switch p {
	case model.PriorityHigh:
		return st.Foreground(colorPriorityHigh).Bold(true)
	case model.PriorityLow:
		return st.Foreground(colorPriorityLow)
	default:
		return st.Foreground(colorPriorityMedium)
	}
}

// renderBoard lays the columns out side by side, each card showing its title and a
// meta line.
func renderBoard(b model.Board, sel selection, width, height int) string {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	n := len(b.Columns)
	if n == 0 {
		msg := styleMuted().Render("No columns yet. Press c to add one.")
		return normalizePane(msg, width, height)
	}
	sel = clampSelection(b, sel)

	gap := 2
	avail := width - gap*(n-1)
	if avail < n {
		avail = n
	}
	colW := avail / n
	if colW < 10 {
		colW = 10
	}
	innerW := colW - 2
	if innerW < 1 {
		innerW = 1
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(colorHeaderFg).Background(colorHeaderBg).Padding(0, 1)
	headerSelectedStyle := headerStyle.Foreground(colorSelectedFg).Background(colorAccent)
	cardStyle := lipgloss.NewStyle().Width(colW).Padding(0, 1)
	cardSelectedStyle := cardStyle.Foreground(colorSelectedFg).Background(colorSelectedBg).Bold(true)
	muted := styleMuted()

	renderCard := func(t model.Task, selected bool) string {
		box := "[ ] "
		if t.Completed {
			box = "[x] "
		}
		title := strings.TrimSpace(t.Title)
		if title == "" {
			title = "(untitled)"
		}
		titleLines := wrapWords(title, innerW-len(box))
		for i := range titleLines {
			if i == 0 {
				titleLines[i] = box + titleLines[i]
			} else {
				titleLines[i] = strings.Repeat(" ", len(box)) + titleLines[i]
			}
		}

		titleStyle := lipgloss.NewStyle()
		if t.Completed && !selected {
			titleStyle = muted.Strikethrough(true)
		}
		lines := make([]string, 0, len(titleLines)+1)
		for _, ln := range titleLines {
			lines = append(lines, titleStyle.Render(ln))
		}

		meta := []string{priorityStyle(t.Priority).Render(string(t.Priority))}
		if lbl := t.Schedule.Label(); lbl != "" {
			meta = append(meta, lbl)
		}
		if t.Assignee != nil && t.Assignee.Name != "" {
			meta = append(meta, "@"+t.Assignee.Name)
		}
		lines = append(lines, "    "+truncateText(strings.Join(meta, "  "), innerW-4))

		inner := normalizePane(strings.Join(lines, "\n"), innerW, 0)
		if selected {
			return cardSelectedStyle.Render(inner)
		}
		return cardStyle.Render(inner)
	}

	rendered := make([]string, 0, n)
	for ci, col := range b.Columns {
		hs := headerStyle
		if ci == sel.Col {
			hs = headerSelectedStyle
		}
		head := truncateText(fmt.Sprintf("%s (%d)", col.Title, len(col.Tasks)), innerW)
		lines := []string{hs.Width(colW).Render(head), ""}
		if len(col.Tasks) == 0 {
			lines = append(lines, muted.Render(" (empty)"))
		}
		for ti, t := range col.Tasks {
			lines = append(lines, strings.Split(renderCard(t, ci == sel.Col && ti == sel.Task), "\n")...)
			if ti < len(col.Tasks)-1 {
				lines = append(lines, "")
			}
		}
		rendered = append(rendered, normalizePane(strings.Join(lines, "\n"), colW, height))
	}

	out := rendered[0]
	sep := strings.Repeat(" ", gap)
	for i := 1; i < len(rendered); i++ {
		out = lipgloss.JoinHorizontal(lipgloss.Top, out, sep, rendered[i])
	}
	return normalizePane(out, width, height)
}
