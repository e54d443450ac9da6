// =============================================================================
// Branch P&L Dashboard - Serve Command
// =============================================================================
//
// COMMAND USAGE:
//   pnl serve [--addr :8080]
//
// Serves the JSON API until interrupted. When inbox.schedule is set, the
// inbox is also processed on that cron schedule in inbox.timezone.
//
// =============================================================================

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/branchpnl/pnl-dashboard/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	// Uploads over HTTP carry their bytes, so this converter never archives.
	uploads, err := newConverter(st, nil, false)
	if err != nil {
		return err
	}

	var inbox *server.InboxScheduler
	if appConfig.Inbox.Schedule != "" {
		fm := newFileManager()
		if err := fm.EnsureDirectories(); err != nil {
			return err
		}
		inboxConv, err := newConverter(st, fm, false)
		if err != nil {
			return err
		}
		inbox, err = server.NewInboxScheduler(appConfig.Inbox.Schedule, appConfig.Location(), inboxConv, batchOptions(nil), logger)
		if err != nil {
			return err
		}
	}

	addr := serveAddr
	if addr == "" {
		addr = appConfig.Server.Addr
	}
	srv := server.New(server.Options{
		Store:          st,
		Converter:      uploads,
		MaxUploadBytes: int64(appConfig.Server.MaxUploadMB) << 20,
		Inbox:          inbox,
		Logger:         logger,
	})
	return srv.ListenAndServe(ctx, addr)
}
