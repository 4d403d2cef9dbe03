package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left, Right, Up, Down    key.Binding
	TaskLeft, TaskRight      key.Binding
	TaskUp, TaskDown         key.Binding
	ColumnLeft, ColumnRight  key.Binding
	Toggle, Priority         key.Binding
	AddTask, AddColumn       key.Binding
	EditTask, RenameColumn   key.Binding
	DeleteTask, DeleteColumn key.Binding
	Open, Back, Help, Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Left:         key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "column")),
		Right:        key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "column")),
		Up:           key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "task")),
		Down:         key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "task")),
		TaskLeft:     key.NewBinding(key.WithKeys("H", "shift+left"), key.WithHelp("H", "move task left")),
		TaskRight:    key.NewBinding(key.WithKeys("L", "shift+right"), key.WithHelp("L", "move task right")),
		TaskUp:       key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move task up")),
		TaskDown:     key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move task down")),
		ColumnLeft:   key.NewBinding(key.WithKeys("<"), key.WithHelp("<", "move column left")),
		ColumnRight:  key.NewBinding(key.WithKeys(">"), key.WithHelp(">", "move column right")),
		Toggle:       key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "toggle done")),
		Priority:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "cycle priority")),
		AddTask:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add task")),
		AddColumn:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "add column")),
		EditTask:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit title")),
		RenameColumn: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename column")),
		DeleteTask:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete task")),
		DeleteColumn: key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete column")),
		Open:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Back:         key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Help:         key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Down, k.Toggle, k.AddTask, k.Open, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.Up, k.Down},
		{k.TaskLeft, k.TaskRight, k.TaskUp, k.TaskDown, k.ColumnLeft, k.ColumnRight},
		{k.Toggle, k.Priority, k.AddTask, k.AddColumn, k.EditTask, k.RenameColumn},
		{k.DeleteTask, k.DeleteColumn, k.Open, k.Back, k.Help, k.Quit},
	}
}
