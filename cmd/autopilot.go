package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/advisor"
	"github.com/hnv-commerce/adpilot/internal/amzn"
	"github.com/hnv-commerce/adpilot/internal/autopilot"
	"github.com/hnv-commerce/adpilot/internal/model"
)

var autopilotCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Run one rule-engine pass",
	Long: `Evaluates every managed product against its ACOS target and budget,
adjusting keyword/target bids and placement percentages. Without --live
(and without the auto_live state flag) decisions are audited but nothing
is submitted.

Exit codes: 0 success, 1 partial failure, 2 autopilot disabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "autopilot"))
		liveFlag, _ := cmd.Flags().GetBool("live")
		negativesFlag, _ := cmd.Flags().GetBool("negatives")

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "autopilot: open store")
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "autopilot: migrate")
		}

		var adv autopilot.Advisor
		if a, err := advisor.New(cfg.Advisor); err == nil {
			adv = a
		} else {
			log.Debug("running without advisor", zap.Error(err))
		}

		engine := autopilot.New(st, amzn.NewClient(cfg.Amazon), cfg.Autopilot, adv)

		enabled, err := engine.Enabled(ctx)
		if err != nil {
			return eris.Wrap(err, "autopilot: read enabled flag")
		}
		if !enabled {
			fmt.Println("Autopilot is disabled")
			return exitCodeError{code: 2, msg: "autopilot disabled"}
		}

		live := liveFlag
		if !live {
			val, err := st.GetState(ctx, model.KeyAutoLive)
			if err != nil {
				return eris.Wrap(err, "autopilot: read live flag")
			}
			live = val == "true" || val == "1"
		}

		entries, err := engine.Run(ctx, live)
		if err != nil {
			return eris.Wrap(err, "autopilot")
		}

		var failed int
		for _, e := range entries {
			if e.Status == model.RunFailed || e.Status == model.RunPartialFailure {
				failed++
			}
		}
		log.Info("rule engine finished",
			zap.Bool("live", live),
			zap.Int("units", len(entries)),
			zap.Int("failed", failed))
		fmt.Printf("Autopilot evaluated %d units (live=%v)\n", len(entries), live)

		mineNegatives := negativesFlag
		if !mineNegatives {
			val, err := st.GetState(ctx, model.KeyNegativeEnabled)
			if err != nil {
				return eris.Wrap(err, "autopilot: read negative flag")
			}
			mineNegatives = val == "true" || val == "1"
		}
		if mineNegatives {
			records, err := engine.MineNegatives(ctx, live)
			if err != nil {
				return eris.Wrap(err, "autopilot: mine negatives")
			}
			if records == nil {
				fmt.Println("Search-term report still generating; negatives deferred to next run")
			} else {
				fmt.Printf("Negative mining produced %d candidates\n", len(records))
			}
		}

		if failed > 0 {
			return exitCodeError{code: 1, msg: fmt.Sprintf("autopilot: %d units failed", failed)}
		}
		return nil
	},
}

func init() {
	autopilotCmd.Flags().Bool("live", false, "submit mutations instead of simulating")
	autopilotCmd.Flags().Bool("negatives", false, "also mine negative keywords this pass")
	rootCmd.AddCommand(autopilotCmd)
}
