package cli

import (
	"github.com/spf13/cobra"

	"kanban-cli/internal/optimistic"
	"kanban-cli/internal/tui"
)

// runTUI opens the board in the terminal. Logs go to kanban.log so they do not tear the
// alternate screen.
func runTUI(cmd *cobra.Command, app *App) error {
	s, err := openSession(cmd.Context(), app, nil)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()

	errs := make(chan *optimistic.SyncError, 16)
	s.onSyncError(func(se *optimistic.SyncError) {
		select {
		case errs <- se:
		default:
			// The status line shows one failure at a time; older ones are in the log.
		}
	})

	unwatch, err := s.ctrl.Watch(cmd.Context())
	if err != nil {
		return writeErr(cmd, err)
	}
	defer unwatch()

	return tui.Run(s.ctrl, errs)
}
