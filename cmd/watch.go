package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/amzn"
	"github.com/hnv-commerce/adpilot/internal/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync on a timer until interrupted",
	Long:  "Runs an immediate sync pass, then repeats on the configured interval (default 3h). SIGINT/SIGTERM stop the loop after the current pass.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "watch"))

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "watch: open store")
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "watch: migrate")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s := scheduler.New(st, amzn.NewClient(cfg.Amazon), cfg.Sync, cfg.Amazon)
		log.Info("watch starting", zap.Int("interval_secs", cfg.Sync.IntervalSecs))

		if err := s.Watch(ctx); err != nil && !eris.Is(err, context.Canceled) {
			return eris.Wrap(err, "watch")
		}
		log.Info("watch stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
