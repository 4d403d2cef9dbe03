package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"kanban-cli/internal/web"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over HTTP with a websocket change feed",
		Long: strings.TrimSpace(`
Serve the JSON API under /api and push the whole board to /ws clients after every
change. Writes are applied optimistically: responses return the updated board at once
and a failed backend write is rolled back and announced on /ws. Add ?sync=1 to a
request to wait for the write and get a 502 if it was rolled back.
`),
		Example: strings.TrimSpace(`
kanban serve --addr 127.0.0.1:8080
KANBAN_BACKEND=redis KANBAN_REDIS_URL=redis://localhost:6379/0 kanban serve
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, app, cmd.ErrOrStderr())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			listen := strings.TrimSpace(addr)
			if listen == "" {
				listen = s.cfg.ListenAddr
			}

			srv := web.New(s.ctrl, s.log)
			defer srv.Close()
			s.onSyncError(srv.ReportSyncError)

			unwatch, err := s.ctrl.Watch(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer unwatch()

			if err := srv.Run(ctx, listen); err != nil && !errors.Is(err, context.Canceled) {
				return writeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}
