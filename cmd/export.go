package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export performance to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "export"))
		out, _ := cmd.Flags().GetString("out")
		days, _ := cmd.Flags().GetInt("days")

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "export: open store")
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "export: migrate")
		}

		if err := export.New(st).WriteFile(cmd.Context(), out, days); err != nil {
			return eris.Wrap(err, "export")
		}

		log.Info("export finished", zap.String("out", out), zap.Int("days", days))
		fmt.Printf("Wrote %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "adpilot.xlsx", "output file path")
	exportCmd.Flags().Int("days", 30, "days of performance to include")
	rootCmd.AddCommand(exportCmd)
}
