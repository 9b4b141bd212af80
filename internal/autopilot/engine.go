package autopilot

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/amzn"
	"github.com/hnv-commerce/adpilot/internal/config"
	"github.com/hnv-commerce/adpilot/internal/model"
	"github.com/hnv-commerce/adpilot/internal/report"
	"github.com/hnv-commerce/adpilot/internal/store"
)

// batchSize bounds one mutation submission.
const batchSize = 100

// AdsAPI is the transport surface the engine needs. *amzn.Client satisfies
// it.
type AdsAPI interface {
	report.API
	ListCampaigns(ctx context.Context, adProduct string) ([]amzn.Campaign, error)
	ListKeywords(ctx context.Context) ([]amzn.Keyword, error)
	ListTargets(ctx context.Context) ([]amzn.TargetingClause, error)
	ListNegativeKeywords(ctx context.Context) ([]amzn.NegativeKeyword, error)
	ListCampaignNegativeKeywords(ctx context.Context) ([]amzn.NegativeKeyword, error)
	UpdateKeywordBids(ctx context.Context, updates []amzn.KeywordBidUpdate) error
	UpdateTargetBids(ctx context.Context, updates []amzn.TargetBidUpdate) error
	UpdateCampaignPlacements(ctx context.Context, campaignID string, adjustments []amzn.PlacementAdjustment) error
	CreateNegativeKeywords(ctx context.Context, creates []amzn.NegativeKeywordCreate) error
}

// Advisor may revise a unit's proposed factor. Implementations must never
// block the run: errors fall back to the rule value.
type Advisor interface {
	ReviseFactor(ctx context.Context, subject string, decision string, factor float64, reason string) (float64, string, error)
}

// Engine applies the bid/budget rule ladder to every managed unit.
type Engine struct {
	store   store.Store
	api     AdsAPI
	cfg     config.AutopilotConfig
	advisor Advisor

	now      func() time.Time
	newRunID func() string
}

// New creates an Engine. advisor may be nil.
func New(st store.Store, api AdsAPI, cfg config.AutopilotConfig, advisor Advisor) *Engine {
	return &Engine{
		store:    st,
		api:      api,
		cfg:      cfg,
		advisor:  advisor,
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
}

// Enabled reads the persisted autopilot toggle.
func (e *Engine) Enabled(ctx context.Context) (bool, error) {
	val, err := e.store.GetState(ctx, model.KeyAutoEnabled)
	if err != nil {
		return false, err
	}
	return val == "true" || val == "1", nil
}

// thresholds merges persisted overrides over the configured fallbacks.
func (e *Engine) thresholds(ctx context.Context) (Thresholds, error) {
	th := Thresholds{
		TargetACOS: e.cfg.TargetACOS,
		MaxBid:     e.cfg.MaxBid,
		StopLoss:   e.cfg.StopLoss,
	}
	for key, dst := range map[string]*float64{
		model.KeyAutoTargetACOS: &th.TargetACOS,
		model.KeyAutoMaxBid:     &th.MaxBid,
		model.KeyAutoStopLoss:   &th.StopLoss,
	} {
		val, err := e.store.GetState(ctx, key)
		if err != nil {
			return Thresholds{}, err
		}
		if val == "" {
			continue
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
			*dst = f
		}
	}
	return th, nil
}

// unitMutations collects everything the engine wants to change for one unit.
type unitMutations struct {
	unit       *Unit
	keywords   []amzn.KeywordBidUpdate
	targets    []amzn.TargetBidUpdate
	placements map[string][]amzn.PlacementAdjustment // campaignID -> adjustments
}

// Run executes one rule-engine pass. When live is false every decision is
// computed and audited but nothing is submitted. One audit entry is written
// per unit regardless of mutation count.
func (e *Engine) Run(ctx context.Context, live bool) ([]model.AutomationLogEntry, error) {
	th, err := e.thresholds(ctx)
	if err != nil {
		return nil, err
	}

	runID := e.newRunID()
	zap.L().Info("rule engine starting",
		zap.String("run_id", runID),
		zap.Bool("live", live),
		zap.Float64("target_acos", th.TargetACOS))

	settings, err := e.store.ProductSettingsList(ctx)
	if err != nil {
		return nil, err
	}
	end := e.now().AddDate(0, 0, -1).Format("2006-01-02")
	start := e.now().AddDate(0, 0, -7).Format("2006-01-02")
	perf, err := e.store.ProductPerformance(ctx, start, end)
	if err != nil {
		return nil, err
	}
	ads, err := e.store.ProductAds(ctx)
	if err != nil {
		return nil, err
	}

	units := buildUnits(settings, perf)
	for _, u := range units {
		decide(u, th)
		e.consultAdvisor(ctx, u)
	}
	groupUnit := mapAdGroups(ads, units)

	keywords, err := e.api.ListKeywords(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := e.api.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	campaigns, err := e.api.ListCampaigns(ctx, "sp")
	if err != nil {
		return nil, err
	}

	muts := e.planMutations(units, groupUnit, keywords, targets, campaigns, ads, th)

	entries := make([]model.AutomationLogEntry, 0, len(muts))
	for _, m := range muts {
		entries = append(entries, e.applyUnit(ctx, runID, m, live))
	}

	if err := e.store.AppendAutomationLog(ctx, entries); err != nil {
		return nil, err
	}
	if err := e.store.SetState(ctx, model.KeyAutoLastRun, strconv.FormatInt(e.now().Unix(), 10)); err != nil {
		return nil, err
	}
	return entries, nil
}

func (e *Engine) consultAdvisor(ctx context.Context, u *Unit) {
	if e.advisor == nil || u.Decision == DecisionKeep || u.Decision == DecisionHalt {
		return
	}
	revised, comment, err := e.advisor.ReviseFactor(ctx, u.Subject(), string(u.Decision), u.Factor, u.Reason)
	if err != nil {
		zap.L().Debug("advisor unavailable, keeping rule factor",
			zap.String("unit", u.Subject()), zap.Error(err))
		return
	}
	// Sanity-bound the revision: the advisor comments, it does not override
	// the ladder's direction.
	if revised > 0 && revised <= 2 {
		u.Factor = revised
	}
	if comment != "" {
		u.Reason += "; " + comment
	}
}

// planMutations fans each unit's factor out to keyword bids, target bids and
// placement adjustments.
func (e *Engine) planMutations(units map[string]*Unit, groupUnit map[string]*Unit,
	keywords []amzn.Keyword, targets []amzn.TargetingClause,
	campaigns []amzn.Campaign, ads []model.ProductAd, th Thresholds) []*unitMutations {

	byUnit := make(map[string]*unitMutations)
	forUnit := func(u *Unit) *unitMutations {
		m, ok := byUnit[u.Key()]
		if !ok {
			m = &unitMutations{unit: u, placements: make(map[string][]amzn.PlacementAdjustment)}
			byUnit[u.Key()] = m
		}
		return m
	}

	for _, kw := range keywords {
		u, ok := groupUnit[kw.AdGroupID]
		if !ok || !model.IsServingState(kw.State) {
			continue
		}
		newBid, changed := e.unitBid(u, kw.Bid, th)
		if !changed {
			continue
		}
		forUnit(u).keywords = append(forUnit(u).keywords, amzn.KeywordBidUpdate{
			KeywordID: kw.KeywordID, Bid: newBid,
		})
	}

	for _, tgt := range targets {
		u, ok := groupUnit[tgt.AdGroupID]
		if !ok || !model.IsServingState(tgt.State) {
			continue
		}
		newBid, changed := e.unitBid(u, tgt.Bid, th)
		if !changed {
			continue
		}
		update := amzn.TargetBidUpdate{Bid: newBid}
		if tgt.TargetID != "" {
			update.TargetID = tgt.TargetID
		} else {
			update.TargetingClauseID = tgt.TargetingClauseID
		}
		forUnit(u).targets = append(forUnit(u).targets, update)
	}

	// Placements apply per campaign, and only when every ad group of the
	// campaign maps to the same unit.
	campaignUnit := make(map[string]*Unit)
	campaignAmbiguous := make(map[string]bool)
	for _, ad := range ads {
		u, ok := groupUnit[ad.AdGroupID]
		if !ok {
			campaignAmbiguous[ad.CampaignID] = true
			continue
		}
		if existing, seen := campaignUnit[ad.CampaignID]; seen && existing != u {
			campaignAmbiguous[ad.CampaignID] = true
			continue
		}
		campaignUnit[ad.CampaignID] = u
	}

	for _, c := range campaigns {
		u, ok := campaignUnit[c.CampaignID]
		if !ok || campaignAmbiguous[c.CampaignID] {
			continue
		}
		adjustments := placementAdjustments(c, u)
		if len(adjustments) > 0 {
			forUnit(u).placements[c.CampaignID] = adjustments
		}
	}

	// Every unit gets a mutation record even with nothing to change, so the
	// audit trail distinguishes "no-op" from "never considered".
	for _, u := range sortedUnits(units) {
		forUnit(u)
	}

	out := make([]*unitMutations, 0, len(byUnit))
	for _, u := range sortedUnits(units) {
		out = append(out, byUnit[u.Key()])
	}
	return out
}

// unitBid computes the new bid for one keyword/target under the unit's
// decision.
func (e *Engine) unitBid(u *Unit, oldBid float64, th Thresholds) (float64, bool) {
	switch u.Decision {
	case DecisionHalt:
		if oldBid <= 0 || math.Abs(oldBid-MinBid) < 0.01 {
			return 0, false
		}
		return MinBid, true
	case DecisionKeep:
		return 0, false
	default:
		return NewBid(oldBid, u.Factor, th.MaxBid)
	}
}

// Default percentages for a campaign that never had placement adjustments
// but should expand.
var defaultPlacementPct = map[string]int{
	"placementTop":          20,
	"placementProductPage":  10,
	"placementRestOfSearch": 5,
}

var placementOrder = []string{"placementTop", "placementProductPage", "placementRestOfSearch"}

// placementAdjustments computes new placement percentages for one campaign
// under its unit's decision.
func placementAdjustments(c amzn.Campaign, u *Unit) []amzn.PlacementAdjustment {
	if u.Decision == DecisionKeep {
		return nil
	}

	current := make(map[string]int)
	if c.DynamicBidding != nil {
		for _, p := range c.DynamicBidding.PlacementBidding {
			current[p.Placement] = p.Percentage
		}
	}

	var out []amzn.PlacementAdjustment
	for _, placement := range placementOrder {
		cur := current[placement]
		var next int
		switch {
		case u.Decision == DecisionHalt:
			next = 0
		case cur > 0:
			next = int(math.Round(float64(cur) * u.Factor))
		case u.Decision == DecisionExpand:
			next = defaultPlacementPct[placement]
		default:
			continue
		}
		if next < 0 {
			next = 0
		}
		if next > maxPlacementPct {
			next = maxPlacementPct
		}
		if next == cur {
			continue
		}
		out = append(out, amzn.PlacementAdjustment{Placement: placement, Percentage: next})
	}
	return out
}

// applyUnit submits one unit's mutations in bounded batches and returns its
// audit entry.
func (e *Engine) applyUnit(ctx context.Context, runID string, m *unitMutations, live bool) model.AutomationLogEntry {
	u := m.unit
	total := len(m.keywords) + len(m.targets)
	for _, adj := range m.placements {
		total += len(adj)
	}

	var failures int
	if live && total > 0 {
		for _, chunk := range chunked(m.keywords, batchSize) {
			if err := e.api.UpdateKeywordBids(ctx, chunk); err != nil {
				zap.L().Warn("keyword batch failed",
					zap.String("unit", u.Subject()), zap.Error(err))
				failures += len(chunk)
			}
		}
		for _, chunk := range chunked(m.targets, batchSize) {
			if err := e.api.UpdateTargetBids(ctx, chunk); err != nil {
				zap.L().Warn("target batch failed",
					zap.String("unit", u.Subject()), zap.Error(err))
				failures += len(chunk)
			}
		}
		for campaignID, adjustments := range m.placements {
			if err := e.api.UpdateCampaignPlacements(ctx, campaignID, adjustments); err != nil {
				zap.L().Warn("placement update failed",
					zap.String("unit", u.Subject()),
					zap.String("campaign_id", campaignID), zap.Error(err))
				failures += len(adjustments)
			}
		}
	}

	status := model.RunSimulated
	if live {
		switch {
		case failures == 0:
			status = model.RunExecuted
		case failures >= total:
			status = model.RunFailed
		default:
			status = model.RunPartialFailure
		}
	}

	return model.AutomationLogEntry{
		Timestamp: e.now(),
		RunID:     runID,
		Subject:   u.Subject(),
		Action: fmt.Sprintf("%s keywords=%d targets=%d placements=%d",
			u.Decision, len(m.keywords), len(m.targets), total-len(m.keywords)-len(m.targets)),
		OldValue: u.Perf.ACOS(),
		NewValue: u.Factor,
		Reason:   u.Reason,
		Status:   status,
	}
}

func chunked[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
