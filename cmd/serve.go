package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only dashboard API",
	Long:  "Exposes status, performance aggregates, the automation log and mined negative keywords as JSON for the external dashboard.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "serve"))
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "serve: open store")
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "serve: migrate")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.NewRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("dashboard api listening", zap.Int("port", port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return eris.Wrap(err, "serve: shutdown")
			}
			log.Info("dashboard api stopped")
			return nil
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "serve")
			}
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
