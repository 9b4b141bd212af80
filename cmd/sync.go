package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/amzn"
	"github.com/hnv-commerce/adpilot/internal/scheduler"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass",
	Long: `Pulls entity settings and daily performance reports from the Ads API
into the local store. Without --days the window is derived from how far
behind the store is.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "sync"))
		days, _ := cmd.Flags().GetInt("days")

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "sync: open store")
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "sync: migrate")
		}

		s := scheduler.New(st, amzn.NewClient(cfg.Amazon), cfg.Sync, cfg.Amazon)
		res, err := s.Run(cmd.Context(), days)
		if err != nil {
			return eris.Wrap(err, "sync")
		}

		log.Info("sync finished",
			zap.String("status", res.Status),
			zap.Int("days", res.Days),
			zap.String("detail", res.Detail))
		fmt.Printf("Sync %s (%d days)\n", res.Status, res.Days)

		if res.Status == scheduler.StatusPartial {
			return exitCodeError{code: 1, msg: "sync partial: " + res.Detail}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("days", 0, "days to sync back from yesterday (0 = automatic)")
	rootCmd.AddCommand(syncCmd)
}
