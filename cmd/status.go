package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hnv-commerce/adpilot/internal/model"
)

// statusReport is the printable snapshot of sync and autopilot state.
type statusReport struct {
	Sync struct {
		Status     string `yaml:"status" json:"status"`
		Error      string `yaml:"error,omitempty" json:"error,omitempty"`
		Days       string `yaml:"days" json:"days"`
		LastAutoTS string `yaml:"last_auto_ts,omitempty" json:"last_auto_ts,omitempty"`
	} `yaml:"sync" json:"sync"`
	Autopilot struct {
		Enabled    string `yaml:"enabled" json:"enabled"`
		Live       string `yaml:"live" json:"live"`
		LastRun    string `yaml:"last_run,omitempty" json:"last_run,omitempty"`
		TargetACOS string `yaml:"target_acos,omitempty" json:"target_acos,omitempty"`
		MaxBid     string `yaml:"max_bid,omitempty" json:"max_bid,omitempty"`
		StopLoss   string `yaml:"stop_loss,omitempty" json:"stop_loss,omitempty"`
	} `yaml:"autopilot" json:"autopilot"`
	Negatives struct {
		Enabled string `yaml:"enabled" json:"enabled"`
		LastRun string `yaml:"last_run,omitempty" json:"last_run,omitempty"`
	} `yaml:"negatives" json:"negatives"`
	RecentActions []model.AutomationLogEntry `yaml:"recent_actions,omitempty" json:"recent_actions,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync and autopilot state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, _ := cmd.Flags().GetString("format")

		st, err := openStore(cmd)
		if err != nil {
			return eris.Wrap(err, "status: open store")
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "status: migrate")
		}

		var report statusReport
		for key, dst := range map[string]*string{
			model.KeySyncStatus:      &report.Sync.Status,
			model.KeySyncError:       &report.Sync.Error,
			model.KeySyncDays:        &report.Sync.Days,
			model.KeyAutoSyncTS:      &report.Sync.LastAutoTS,
			model.KeyAutoEnabled:     &report.Autopilot.Enabled,
			model.KeyAutoLive:        &report.Autopilot.Live,
			model.KeyAutoLastRun:     &report.Autopilot.LastRun,
			model.KeyAutoTargetACOS:  &report.Autopilot.TargetACOS,
			model.KeyAutoMaxBid:      &report.Autopilot.MaxBid,
			model.KeyAutoStopLoss:    &report.Autopilot.StopLoss,
			model.KeyNegativeEnabled: &report.Negatives.Enabled,
			model.KeyNegativeLastRun: &report.Negatives.LastRun,
		} {
			val, err := st.GetState(ctx, key)
			if err != nil {
				return eris.Wrapf(err, "status: read %s", key)
			}
			*dst = val
		}

		report.RecentActions, err = st.AutomationLogs(ctx, 10)
		if err != nil {
			return eris.Wrap(err, "status: read automation logs")
		}

		switch format {
		case "json":
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return eris.Wrap(err, "status: marshal json")
			}
			fmt.Println(string(out))
		default:
			out, err := yaml.Marshal(report)
			if err != nil {
				return eris.Wrap(err, "status: marshal yaml")
			}
			fmt.Print(string(out))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(statusCmd)
}
