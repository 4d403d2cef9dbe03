// Package tui is the interactive terminal board.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"kanban-cli/internal/model"
	"kanban-cli/internal/optimistic"
)

// Run shows the board until the user quits. Changes made elsewhere (remote snapshots,
// settled writes, rollbacks) redraw the board; errs delivers rolled-back writes for the
// status line and may be nil.
func Run(ctrl *optimistic.Controller, errs <-chan *optimistic.SyncError) error {
	applyThemePreference()
	applyColorProfilePreference()

	p := tea.NewProgram(newModel(ctrl), tea.WithAltScreen())

	// Listeners run inside board mutations, some of which happen on the program's own
	// event loop, so they only flag a change and the forwarder sends the snapshot.
	changed := make(chan struct{}, 1)
	cancel := ctrl.State().OnChange(func(model.Board) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-changed:
				p.Send(boardMsg{board: ctrl.State().Snapshot()})
			case se, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				p.Send(syncErrMsg{err: se})
			}
		}
	}()

	_, err := p.Run()
	return err
}
