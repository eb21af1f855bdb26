package commands

import (
	"context"
	"os"
	"os/signal"

	"github.com/alan-christopher/e91/internal/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serve: the HTTP demo API, until interrupted.
func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP demo API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			srv, err := server.New(cfg, log.StandardLogger())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}
