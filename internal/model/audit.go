package model

import "time"

// RunStatus is the outcome recorded for a batch of automation actions.
type RunStatus string

const (
	RunExecuted       RunStatus = "executed"
	RunPartialFailure RunStatus = "partial_failure"
	RunFailed         RunStatus = "failed"
	RunSimulated      RunStatus = "simulated"
)

// AutomationLogEntry is one append-only audit row. Exactly one entry is
// written per managed unit per rule-engine run, even when the unit produced
// zero mutations.
type AutomationLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	OldValue  float64   `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	Reason    string    `json:"reason"`
	Status    RunStatus `json:"status"`
}

// PendingReport is the persisted state of an asynchronous report job that has
// been requested but not yet resolved. At most one exists per logical job;
// its presence lets a later run resume polling instead of re-requesting.
type PendingReport struct {
	ReportID    string   `json:"report_id"`
	StartDate   string   `json:"start"`
	EndDate     string   `json:"end"`
	SalesKeys   []string `json:"sales_keys"`
	OrdersKeys  []string `json:"orders_keys"`
	RequestedAt string   `json:"ts"`
}

// Matches reports whether the pending job covers the given date range.
func (p *PendingReport) Matches(start, end string) bool {
	return p != nil && p.ReportID != "" && p.StartDate == start && p.EndDate == end
}

// SystemState keys. The system state table is a flat key→string map holding
// sync status, autopilot configuration flags and the pending-report record.
const (
	KeySyncStatus = "last_sync_status"
	KeySyncError  = "last_sync_error"
	KeySyncDays   = "last_sync_days"
	KeyAutoSyncTS = "last_auto_sync_ts"

	KeyAutoEnabled    = "auto_enabled"
	KeyAutoTargetACOS = "auto_target_acos"
	KeyAutoMaxBid     = "auto_max_bid"
	KeyAutoStopLoss   = "auto_stop_loss"
	KeyAutoLive       = "auto_live"
	KeyAutoLastRun    = "auto_last_run"

	KeyNegativeEnabled     = "auto_negative_enabled"
	KeyNegativeLevel       = "auto_negative_level"
	KeyNegativeMatch       = "auto_negative_match"
	KeyNegativeSpend       = "auto_negative_spend"
	KeyNegativeClicks      = "auto_negative_clicks"
	KeyNegativeACOSMult    = "auto_negative_acos_mult"
	KeyNegativeDays        = "auto_negative_days"
	KeyNegativeProtect     = "auto_negative_protect_keywords"
	KeyNegativeProtectMode = "auto_negative_protect_mode"
	KeyNegativeLastRun     = "auto_negative_last_run"
	KeyNegativePending     = "auto_negative_pending_report"
)
