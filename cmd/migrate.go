package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store migrations",
	Long:  "Opens the configured store and applies additive schema migrations. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "migrate"))

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "migrate: open store")
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate: apply")
		}

		log.Info("migrations applied", zap.String("driver", cfg.Store.Driver))
		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
