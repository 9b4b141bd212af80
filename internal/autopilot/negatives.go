package autopilot

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/hnv-commerce/adpilot/internal/amzn"
	"github.com/hnv-commerce/adpilot/internal/model"
	"github.com/hnv-commerce/adpilot/internal/report"
)

// NegativeConfig is the mining configuration, loaded from system state with
// hard-coded fallbacks.
type NegativeConfig struct {
	Level          model.NegativeLevel
	MatchType      string // NEGATIVE_EXACT or NEGATIVE_PHRASE
	SpendThreshold float64
	ClickThreshold int64
	ACOSMultiplier float64
	Days           int
	Protect        []string
	ProtectMode    string // "contains" or "exact"
}

// minePollAttempts bounds how long one invocation waits on the search-term
// report before persisting the job and yielding to the next run.
const minePollAttempts = 10

// LoadNegativeConfig reads the persisted mining configuration.
func LoadNegativeConfig(ctx context.Context, st interface {
	GetState(ctx context.Context, key string) (string, error)
}) (NegativeConfig, error) {
	cfg := NegativeConfig{
		Level:          model.NegativeLevelAdGroup,
		MatchType:      "NEGATIVE_EXACT",
		SpendThreshold: 3.0,
		ClickThreshold: 8,
		ACOSMultiplier: 1.5,
		Days:           30,
		ProtectMode:    "contains",
	}

	get := func(key string) (string, error) {
		val, err := st.GetState(ctx, key)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(val), nil
	}

	if val, err := get(model.KeyNegativeLevel); err != nil {
		return cfg, err
	} else if val == string(model.NegativeLevelCampaign) {
		cfg.Level = model.NegativeLevelCampaign
	}

	if val, err := get(model.KeyNegativeMatch); err != nil {
		return cfg, err
	} else if val != "" {
		cfg.MatchType = normalizeMatchType(val)
	}

	if val, err := get(model.KeyNegativeSpend); err != nil {
		return cfg, err
	} else if f, perr := strconv.ParseFloat(val, 64); perr == nil && f > 0 {
		cfg.SpendThreshold = f
	}

	if val, err := get(model.KeyNegativeClicks); err != nil {
		return cfg, err
	} else if n, perr := strconv.ParseInt(val, 10, 64); perr == nil && n > 0 {
		cfg.ClickThreshold = n
	}

	if val, err := get(model.KeyNegativeACOSMult); err != nil {
		return cfg, err
	} else if f, perr := strconv.ParseFloat(val, 64); perr == nil && f > 0 {
		cfg.ACOSMultiplier = f
	}

	if val, err := get(model.KeyNegativeDays); err != nil {
		return cfg, err
	} else if n, perr := strconv.Atoi(val); perr == nil {
		cfg.Days = n
	}
	if cfg.Days < 1 {
		cfg.Days = 1
	}
	if cfg.Days > 30 {
		cfg.Days = 30
	}

	if val, err := get(model.KeyNegativeProtect); err != nil {
		return cfg, err
	} else if val != "" {
		for _, term := range strings.Split(val, ",") {
			if t := strings.TrimSpace(term); t != "" {
				cfg.Protect = append(cfg.Protect, t)
			}
		}
	}

	if val, err := get(model.KeyNegativeProtectMode); err != nil {
		return cfg, err
	} else if val == "exact" {
		cfg.ProtectMode = "exact"
	}

	return cfg, nil
}

// normalizeMatchType maps any historical spelling to the v3 enum.
func normalizeMatchType(match string) string {
	switch strings.ToLower(strings.ReplaceAll(match, "_", "")) {
	case "negativephrase", "phrase":
		return "NEGATIVE_PHRASE"
	default:
		return "NEGATIVE_EXACT"
	}
}

var fold = cases.Fold()

// termAggregate is search-term performance summed over the window.
type termAggregate struct {
	campaignID string
	adGroupID  string
	term       string
	perf       model.Performance
}

var searchTermColumns = []string{
	"date", "searchTerm", "campaignId", "adGroupId",
	"cost", "clicks", "sales7d", "purchases7d",
}

// MineNegatives runs one pass of the resumable search-term mining flow. It
// returns the candidate records it persisted; a nil slice with nil error
// means the report is still generating and the run yielded.
func (e *Engine) MineNegatives(ctx context.Context, live bool) ([]model.NegativeKeywordRecord, error) {
	cfg, err := LoadNegativeConfig(ctx, e.store)
	if err != nil {
		return nil, err
	}
	th, err := e.thresholds(ctx)
	if err != nil {
		return nil, err
	}

	end := e.now().AddDate(0, 0, -1).Format("2006-01-02")
	start := e.now().AddDate(0, 0, -cfg.Days).Format("2006-01-02")

	rows, done, err := e.searchTermRows(ctx, start, end)
	if err != nil || !done {
		return nil, err
	}

	candidates := selectCandidates(aggregateTerms(rows), cfg, th)
	if len(candidates) == 0 {
		zap.L().Info("negative mining found no candidates",
			zap.String("start", start), zap.String("end", end))
		return nil, e.store.SetState(ctx, model.KeyNegativeLastRun,
			strconv.FormatInt(e.now().Unix(), 10))
	}

	existing, err := e.remoteNegativeSet(ctx)
	if err != nil {
		return nil, err
	}

	var creates []amzn.NegativeKeywordCreate
	var fresh []int
	for i, c := range candidates {
		if existing[negativeScopeKey(c.CampaignID, c.AdGroupID, c.KeywordText, c.MatchType)] {
			candidates[i].Status = model.NegativePending
			continue
		}
		fresh = append(fresh, i)
		creates = append(creates, amzn.NegativeKeywordCreate{
			CampaignID:  c.CampaignID,
			AdGroupID:   c.AdGroupID,
			KeywordText: c.KeywordText,
			MatchType:   c.MatchType,
			State:       "ENABLED",
		})
	}

	status := model.NegativeDryRun
	if live && len(creates) > 0 {
		status = model.NegativeCreated
		for _, chunk := range chunked(creates, batchSize) {
			if err := e.api.CreateNegativeKeywords(ctx, chunk); err != nil {
				zap.L().Warn("negative keyword batch failed", zap.Error(err))
				status = model.NegativePartial
			}
		}
	}
	for _, i := range fresh {
		candidates[i].Status = status
	}

	if err := e.store.SaveNegativeKeywords(ctx, candidates); err != nil {
		return nil, err
	}
	if err := e.store.SetState(ctx, model.KeyNegativeLastRun,
		strconv.FormatInt(e.now().Unix(), 10)); err != nil {
		return nil, err
	}

	zap.L().Info("negative mining finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("submitted", len(creates)),
		zap.Bool("live", live))
	return candidates, nil
}

// searchTermRows resolves the search-term report for the window: resuming a
// matching pending job, discarding a stale one, or requesting fresh. done is
// false when the job is still generating and has been persisted for the next
// run.
func (e *Engine) searchTermRows(ctx context.Context, start, end string) ([]report.Row, bool, error) {
	pending, err := e.loadPendingReport(ctx)
	if err != nil {
		return nil, false, err
	}

	if pending.Matches(start, end) {
		status, url, err := report.CheckOnce(ctx, e.api, pending.ReportID)
		if err != nil {
			// Terminal failure: clear the record so the next run starts over.
			if clearErr := e.store.SetState(ctx, model.KeyNegativePending, ""); clearErr != nil {
				return nil, false, clearErr
			}
			return nil, false, eris.Wrap(err, "autopilot: pending search-term report")
		}
		if status != report.StatusCompleted {
			zap.L().Info("search-term report still generating",
				zap.String("report_id", pending.ReportID),
				zap.String("status", status))
			return nil, false, nil
		}
		if err := e.store.SetState(ctx, model.KeyNegativePending, ""); err != nil {
			return nil, false, err
		}
		rows, err := report.DownloadRows(ctx, e.api, url)
		return rows, err == nil, err
	}

	if pending != nil && pending.ReportID != "" {
		zap.L().Info("discarding stale pending search-term report",
			zap.String("report_id", pending.ReportID),
			zap.String("stale_range", pending.StartDate+".."+pending.EndDate))
		if err := e.store.SetState(ctx, model.KeyNegativePending, ""); err != nil {
			return nil, false, err
		}
	}

	req := report.NewRequest(start, end, "SPONSORED_PRODUCTS", "spSearchTerm",
		[]string{"searchTerm"}, searchTermColumns)
	reportID, err := report.RequestAdaptive(ctx, e.api, req, report.RequestOptions{
		IdentityColumns: []string{"searchTerm", "campaignId", "adGroupId"},
	})
	if err != nil {
		return nil, false, err
	}

	url, err := report.Poll(ctx, e.api, reportID, minePollAttempts, 2*time.Second)
	if err != nil {
		if eris.Is(err, report.ErrTimeout) {
			return nil, false, e.savePendingReport(ctx, reportID, start, end)
		}
		return nil, false, err
	}
	rows, err := report.DownloadRows(ctx, e.api, url)
	return rows, err == nil, err
}

func (e *Engine) loadPendingReport(ctx context.Context) (*model.PendingReport, error) {
	raw, err := e.store.GetState(ctx, model.KeyNegativePending)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var pending model.PendingReport
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		// Corrupt record: drop it rather than wedging mining forever.
		zap.L().Warn("discarding unreadable pending-report record", zap.Error(err))
		return nil, e.store.SetState(ctx, model.KeyNegativePending, "")
	}
	return &pending, nil
}

func (e *Engine) savePendingReport(ctx context.Context, reportID, start, end string) error {
	record := model.PendingReport{
		ReportID:    reportID,
		StartDate:   start,
		EndDate:     end,
		SalesKeys:   report.SalesKeys,
		OrdersKeys:  report.OrdersKeys,
		RequestedAt: e.now().Format(time.RFC3339),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return eris.Wrap(err, "autopilot: marshal pending report")
	}
	zap.L().Info("search-term report pending, persisting for next run",
		zap.String("report_id", reportID))
	return e.store.SetState(ctx, model.KeyNegativePending, string(raw))
}

// aggregateTerms sums report rows by (campaign, ad group, term).
func aggregateTerms(rows []report.Row) []termAggregate {
	byKey := make(map[string]*termAggregate)
	var order []string
	for _, row := range rows {
		term := report.StringValue(row, []string{"searchTerm", "query"})
		campaignID := report.StringValue(row, []string{"campaignId"})
		adGroupID := report.StringValue(row, []string{"adGroupId"})
		if term == "" || campaignID == "" {
			continue
		}

		key := campaignID + "\x00" + adGroupID + "\x00" + fold.String(term)
		agg, ok := byKey[key]
		if !ok {
			agg = &termAggregate{campaignID: campaignID, adGroupID: adGroupID, term: term}
			byKey[key] = agg
			order = append(order, key)
		}
		addPerf(&agg.perf, model.Performance{
			Cost:   report.MetricValue(row, report.CostKeys),
			Sales:  report.MetricValue(row, report.SalesKeys),
			Clicks: int64(report.MetricValue(row, []string{"clicks"})),
			Orders: int64(report.MetricValue(row, report.OrdersKeys)),
		})
	}

	out := make([]termAggregate, 0, len(byKey))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// selectCandidates applies the metric gate, the protect list and the
// ACOS/zero-sales filter.
func selectCandidates(aggs []termAggregate, cfg NegativeConfig, th Thresholds) []model.NegativeKeywordRecord {
	targetFrac := th.TargetACOS / 100

	var out []model.NegativeKeywordRecord
	for _, agg := range aggs {
		if agg.perf.Cost < cfg.SpendThreshold && agg.perf.Clicks < cfg.ClickThreshold {
			continue
		}
		if isProtected(agg.term, cfg) {
			continue
		}

		var reason string
		switch {
		case agg.perf.Sales == 0:
			reason = "no sales after " + strconv.FormatInt(agg.perf.Clicks, 10) + " clicks"
		case agg.perf.ACOS() > targetFrac*cfg.ACOSMultiplier:
			reason = "term acos " + strconv.FormatFloat(agg.perf.ACOS()*100, 'f', 1, 64) + "% above limit"
		default:
			continue
		}

		rec := model.NegativeKeywordRecord{
			CampaignID:  agg.campaignID,
			AdGroupID:   agg.adGroupID,
			KeywordText: agg.term,
			MatchType:   cfg.MatchType,
			Level:       cfg.Level,
			Source:      model.NegativeSourceAuto,
			Status:      model.NegativePending,
			Reason:      reason,
			Cost:        agg.perf.Cost,
			Sales:       agg.perf.Sales,
			Orders:      agg.perf.Orders,
			Clicks:      agg.perf.Clicks,
		}
		if cfg.Level == model.NegativeLevelCampaign {
			rec.AdGroupID = ""
		}
		out = append(out, rec)
	}
	return out
}

func isProtected(term string, cfg NegativeConfig) bool {
	folded := fold.String(term)
	for _, protect := range cfg.Protect {
		p := fold.String(protect)
		if cfg.ProtectMode == "exact" {
			if folded == p {
				return true
			}
		} else if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}

// remoteNegativeSet fetches the live negatives at the configured level and
// folds them into a dedup set.
func (e *Engine) remoteNegativeSet(ctx context.Context) (map[string]bool, error) {
	adGroupLevel, err := e.api.ListNegativeKeywords(ctx)
	if err != nil {
		return nil, err
	}
	campaignLevel, err := e.api.ListCampaignNegativeKeywords(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(adGroupLevel)+len(campaignLevel))
	for _, nk := range adGroupLevel {
		set[negativeScopeKey(nk.CampaignID, nk.AdGroupID, nk.KeywordText, nk.MatchType)] = true
	}
	for _, nk := range campaignLevel {
		set[negativeScopeKey(nk.CampaignID, "", nk.KeywordText, nk.MatchType)] = true
	}
	return set, nil
}

// negativeScopeKey builds the case-insensitive dedup key: scope + folded
// text + normalized match type.
func negativeScopeKey(campaignID, adGroupID, text, matchType string) string {
	return campaignID + "\x00" + adGroupID + "\x00" + fold.String(text) + "\x00" + normalizeMatchType(matchType)
}
