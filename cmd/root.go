package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/config"
	"github.com/hnv-commerce/adpilot/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "adpilot",
	Short: "Amazon Ads sync and autopilot",
	Long:  "Syncs Amazon Ads performance into a local store and runs a rule-based autopilot adjusting bids, budgets and negative keywords.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// exitCodeError carries a process exit code through cobra's error path.
type exitCodeError struct {
	code int
	msg  string
}

func (e exitCodeError) Error() string { return e.msg }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(1)
	}
}

// openStore builds the configured backend. Callers own Close.
func openStore(cmd *cobra.Command) (store.Store, error) {
	if cfg.Store.Driver == "postgres" {
		return store.NewPostgres(cmd.Context(), cfg.Store.DatabaseURL, nil)
	}
	return store.NewSQLite(cfg.Store.Path)
}
