package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"vidscribe/internal/api"
	"vidscribe/internal/jobs"
	"vidscribe/internal/logging"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API for a desktop or web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(runtimeOptions{store: true, stderr: true})
			if err != nil {
				return err
			}
			defer rt.Close()
			if b := strings.TrimSpace(bind); b != "" {
				rt.cfg.Server.Bind = b
			}
			if rt.cfg.Logging.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			engine, err := rt.engine()
			if err != nil {
				return err
			}
			orchestrator := rt.orchestrator(jobs.NewBus(0))
			srv, err := api.New(api.Options{
				Config:  rt.cfg,
				Jobs:    orchestrator,
				Engine:  engine,
				Models:  rt.models(),
				Logger:  rt.logger,
				Version: version,
			})
			if err != nil {
				return err
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(sigCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vidscribe %s listening on http://%s\n", version, srv.Addr())

			<-sigCtx.Done()
			rt.logger.Info("vidscribe shutting down", logging.String(logging.FieldEventType, "shutdown"))

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := orchestrator.Shutdown(shutdownCtx); err != nil {
				rt.logger.Warn("batch did not stop cleanly", logging.Error(err))
			}
			srv.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default server.bind)")
	return cmd
}
