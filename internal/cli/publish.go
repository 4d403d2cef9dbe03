package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"kanban-cli/internal/publish"
)

func newBoardPublishCmd(app *App) *cobra.Command {
	var (
		toDir     string
		title     string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "publish --to <dir>",
		Short: "Export the board as Markdown pages (index.md plus one page per task)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			t := strings.TrimSpace(title)
			if t == "" {
				t = s.cfg.Board
			}
			res, err := publish.WriteBoard(s.ctrl.State().Snapshot(), toDir, publish.WriteOptions{
				Title:     t,
				Overwrite: overwrite,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, res)
		},
	}

	cmd.Flags().StringVar(&toDir, "to", "", "Output directory (required)")
	cmd.Flags().StringVar(&title, "title", "", "Page title (default: board name)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	return cmd
}
