package autopilot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnv-commerce/adpilot/internal/amzn"
	"github.com/hnv-commerce/adpilot/internal/config"
	"github.com/hnv-commerce/adpilot/internal/model"
	"github.com/hnv-commerce/adpilot/internal/store"
)

// fakeAds scripts the transport for engine and mining tests.
type fakeAds struct {
	keywords          []amzn.Keyword
	targets           []amzn.TargetingClause
	campaigns         []amzn.Campaign
	negatives         []amzn.NegativeKeyword
	campaignNegatives []amzn.NegativeKeyword

	keywordBatches   [][]amzn.KeywordBidUpdate
	targetBatches    [][]amzn.TargetBidUpdate
	placementCalls   map[string][]amzn.PlacementAdjustment
	negativeBatches  [][]amzn.NegativeKeywordCreate
	failKeywordBatch bool

	reportCreates int
	reportRows    []map[string]any
	reportStatus  string // "" means COMPLETED
	statusChecks  int
}

func newFakeAds() *fakeAds {
	return &fakeAds{placementCalls: make(map[string][]amzn.PlacementAdjustment)}
}

func (f *fakeAds) Post(_ context.Context, path, _ string, _ any) ([]byte, int, error) {
	if path != "/reporting/reports" {
		return nil, 404, nil
	}
	f.reportCreates++
	return []byte(fmt.Sprintf(`{"reportId":"r-%d"}`, f.reportCreates)), 200, nil
}

func (f *fakeAds) Get(_ context.Context, path, _ string) ([]byte, int, error) {
	f.statusChecks++
	id := strings.TrimPrefix(path, "/reporting/reports/")
	status := f.reportStatus
	if status == "" {
		status = "COMPLETED"
	}
	return []byte(fmt.Sprintf(`{"reportId":%q,"status":%q,"url":"dl://%s"}`, id, status, id)), 200, nil
}

func (f *fakeAds) Download(context.Context, string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(f.reportRows); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *fakeAds) ListCampaigns(context.Context, string) ([]amzn.Campaign, error) {
	return f.campaigns, nil
}
func (f *fakeAds) ListKeywords(context.Context) ([]amzn.Keyword, error) { return f.keywords, nil }
func (f *fakeAds) ListTargets(context.Context) ([]amzn.TargetingClause, error) {
	return f.targets, nil
}
func (f *fakeAds) ListNegativeKeywords(context.Context) ([]amzn.NegativeKeyword, error) {
	return f.negatives, nil
}
func (f *fakeAds) ListCampaignNegativeKeywords(context.Context) ([]amzn.NegativeKeyword, error) {
	return f.campaignNegatives, nil
}

func (f *fakeAds) UpdateKeywordBids(_ context.Context, updates []amzn.KeywordBidUpdate) error {
	f.keywordBatches = append(f.keywordBatches, updates)
	if f.failKeywordBatch {
		return fmt.Errorf("batch rejected")
	}
	return nil
}

func (f *fakeAds) UpdateTargetBids(_ context.Context, updates []amzn.TargetBidUpdate) error {
	f.targetBatches = append(f.targetBatches, updates)
	return nil
}

func (f *fakeAds) UpdateCampaignPlacements(_ context.Context, campaignID string, adjustments []amzn.PlacementAdjustment) error {
	f.placementCalls[campaignID] = adjustments
	return nil
}

func (f *fakeAds) CreateNegativeKeywords(_ context.Context, creates []amzn.NegativeKeywordCreate) error {
	f.negativeBatches = append(f.negativeBatches, creates)
	return nil
}

func testThresholds() Thresholds {
	return Thresholds{TargetACOS: 25.0, MaxBid: 2.5, StopLoss: 15.0}
}

func newTestEngine(t *testing.T, api AdsAPI) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	e := New(st, api, config.AutopilotConfig{TargetACOS: 25.0, MaxBid: 2.5, StopLoss: 15.0}, nil)
	e.now = func() time.Time { return time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local) }
	e.newRunID = func() string { return "run-test" }
	return e, st
}

func TestDecide_StarredReduceExample(t *testing.T) {
	// Priority unit at 70% ACOS against a boosted 37.5% target.
	u := &Unit{ASIN: "B00X", Starred: true, TargetACOS: 25,
		Perf: model.Performance{Cost: 70, Sales: 100}}
	decide(u, testThresholds())

	assert.Equal(t, DecisionReduce, u.Decision)
	assert.InDelta(t, 0.8, u.Factor, 1e-9)

	bid, changed := NewBid(2.00, u.Factor, 2.5)
	require.True(t, changed)
	assert.InDelta(t, 1.60, bid, 1e-9)
}

func TestDecide_HaltOnStopLoss(t *testing.T) {
	u := &Unit{ASIN: "B00X", Perf: model.Performance{Cost: 20, Sales: 0}}
	decide(u, testThresholds())
	assert.Equal(t, DecisionHalt, u.Decision)

	// Starred doubles the stop-loss, so the same spend survives.
	starred := &Unit{ASIN: "B00Y", Starred: true, Perf: model.Performance{Cost: 20, Sales: 0}}
	decide(starred, testThresholds())
	assert.NotEqual(t, DecisionHalt, starred.Decision)
}

func TestDecide_ExpandRequiresMargin(t *testing.T) {
	// 22% ACOS vs 25% target: inside the 20% margin band, no expansion.
	u := &Unit{ASIN: "B001", Perf: model.Performance{Cost: 22, Sales: 100}}
	decide(u, testThresholds())
	assert.Equal(t, DecisionKeep, u.Decision)

	// 15% ACOS is under 25%*0.8=20%: expand.
	u2 := &Unit{ASIN: "B002", Perf: model.Performance{Cost: 15, Sales: 100}}
	decide(u2, testThresholds())
	assert.Equal(t, DecisionExpand, u2.Decision)
	assert.InDelta(t, 1.1, u2.Factor, 1e-9)
}

func TestDecide_BudgetBreachDowngradesExpand(t *testing.T) {
	// Expanding on ACOS but spending $10/day against a $5 budget.
	u := &Unit{ASIN: "B00X", DailyBudget: 5, BudgetFlex: 0,
		Perf: model.Performance{Cost: 70, Sales: 1000}}
	decide(u, testThresholds())

	assert.Equal(t, DecisionReduce, u.Decision)
	// budgetFactor = max(5/10, 0.5) = 0.5 beats the expand 1.1.
	assert.InDelta(t, 0.5, u.Factor, 1e-9)
}

func TestDecide_BudgetFlexAllowsOverage(t *testing.T) {
	// $10/day against $8 budget with 30% flex (limit $10.40): no breach.
	u := &Unit{ASIN: "B00X", DailyBudget: 8, BudgetFlex: 30,
		Perf: model.Performance{Cost: 70, Sales: 1000}}
	decide(u, testThresholds())
	assert.Equal(t, DecisionExpand, u.Decision)
}

func TestNewBid_Clamping(t *testing.T) {
	// Clamped to max bid.
	bid, changed := NewBid(2.40, 1.1, 2.5)
	require.True(t, changed)
	assert.InDelta(t, 2.5, bid, 1e-9)

	// Clamped to platform minimum.
	bid, changed = NewBid(0.03, 0.5, 2.5)
	require.True(t, changed)
	assert.InDelta(t, MinBid, bid, 1e-9)

	// Sub-cent change suppressed.
	_, changed = NewBid(1.00, 1.004, 2.5)
	assert.False(t, changed)

	// Factor 1.0 is always a no-op.
	_, changed = NewBid(1.37, 1.0, 2.5)
	assert.False(t, changed)

	// Zero bids are never touched.
	_, changed = NewBid(0, 0.8, 2.5)
	assert.False(t, changed)
}

func TestMapAdGroups(t *testing.T) {
	units := map[string]*Unit{
		unitKey("B00X", "SKU-1"): {ASIN: "B00X", SKU: "SKU-1"},
		unitKey("B00X", ""):      {ASIN: "B00X"},
		unitKey("B00Y", ""):      {ASIN: "B00Y"},
	}
	ads := []model.ProductAd{
		// Single ASIN, single SKU: exact rule.
		{AdGroupID: "ag1", ASIN: "B00X", SKU: "SKU-1", State: "ENABLED"},
		// Single ASIN, two SKUs: ASIN-level rule.
		{AdGroupID: "ag2", ASIN: "B00X", SKU: "SKU-1", State: "ENABLED"},
		{AdGroupID: "ag2", ASIN: "B00X", SKU: "SKU-2", State: "ENABLED"},
		// Two ASINs: ambiguous, skipped.
		{AdGroupID: "ag3", ASIN: "B00X", State: "ENABLED"},
		{AdGroupID: "ag3", ASIN: "B00Y", State: "ENABLED"},
		// Paused ad does not disambiguate: the enabled one wins.
		{AdGroupID: "ag4", ASIN: "B00Y", State: "ENABLED"},
		{AdGroupID: "ag4", ASIN: "B00X", State: "PAUSED"},
		// Pending state still counts as serving.
		{AdGroupID: "ag5", ASIN: "B00Y", State: "ENABLED_WITH_PENDING_CHANGES"},
	}

	mapped := mapAdGroups(ads, units)
	require.Contains(t, mapped, "ag1")
	assert.Equal(t, "SKU-1", mapped["ag1"].SKU)
	require.Contains(t, mapped, "ag2")
	assert.Empty(t, mapped["ag2"].SKU)
	assert.NotContains(t, mapped, "ag3")
	require.Contains(t, mapped, "ag4")
	assert.Equal(t, "B00Y", mapped["ag4"].ASIN)
	assert.Contains(t, mapped, "ag5")
}

func TestPlacementAdjustments(t *testing.T) {
	campaign := amzn.Campaign{CampaignID: "c1", DynamicBidding: &amzn.DynamicBidding{
		PlacementBidding: []amzn.PlacementAdjustment{
			{Placement: "placementTop", Percentage: 50},
		},
	}}

	// Reduce scales the existing percentage; untouched placements at zero
	// stay zero.
	adj := placementAdjustments(campaign, &Unit{Decision: DecisionReduce, Factor: 0.8})
	require.Len(t, adj, 1)
	assert.Equal(t, 40, adj[0].Percentage)

	// Halt zeroes everything that is set.
	adj = placementAdjustments(campaign, &Unit{Decision: DecisionHalt})
	require.Len(t, adj, 1)
	assert.Equal(t, 0, adj[0].Percentage)

	// Expand seeds defaults for unset placements.
	adj = placementAdjustments(amzn.Campaign{CampaignID: "c2"}, &Unit{Decision: DecisionExpand, Factor: 1.1})
	require.Len(t, adj, 3)
	assert.Equal(t, 20, adj[0].Percentage)
	assert.Equal(t, 10, adj[1].Percentage)
	assert.Equal(t, 5, adj[2].Percentage)
}

func seedUnit(t *testing.T, st store.Store, settings model.ProductSettings, dailyCost, dailySales float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SaveProductSettings(ctx, []model.ProductSettings{settings}))

	var facts []model.ProductFact
	for i := 1; i <= 7; i++ {
		date := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local).AddDate(0, 0, -i).Format("2006-01-02")
		facts = append(facts, model.ProductFact{
			Date: date, ASIN: settings.ASIN, SKU: settings.SKU,
			Cost: dailyCost, Sales: dailySales, Clicks: 10,
		})
	}
	require.NoError(t, st.UpsertProductFacts(ctx, facts))
	require.NoError(t, st.UpsertProductAds(ctx, []model.ProductAd{
		{AdID: "ad-" + settings.ASIN, CampaignID: "c-" + settings.ASIN,
			AdGroupID: "ag-" + settings.ASIN, ASIN: settings.ASIN, SKU: settings.SKU, State: "ENABLED"},
	}))
}

func TestEngineRun_DryRunAuditsWithoutSubmitting(t *testing.T) {
	api := newFakeAds()
	e, st := newTestEngine(t, api)
	ctx := context.Background()

	// 70% ACOS on a starred unit: reduce by 0.8.
	seedUnit(t, st, model.ProductSettings{ASIN: "B00X", SKU: "SKU-1", TargetACOS: 25, Starred: true, AutoEnabled: true}, 10, 100.0/7)
	api.keywords = []amzn.Keyword{
		{KeywordID: "k1", AdGroupID: "ag-B00X", Bid: 2.00, State: "ENABLED"},
	}

	entries, err := e.Run(ctx, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RunSimulated, entries[0].Status)
	assert.Equal(t, "B00X:SKU-1", entries[0].Subject)
	assert.InDelta(t, 0.8, entries[0].NewValue, 1e-9)
	assert.Empty(t, api.keywordBatches)

	logs, err := st.AutomationLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "run-test", logs[0].RunID)
}

func TestEngineRun_LiveSubmitsKeywordBids(t *testing.T) {
	api := newFakeAds()
	e, st := newTestEngine(t, api)

	seedUnit(t, st, model.ProductSettings{ASIN: "B00X", SKU: "SKU-1", TargetACOS: 25, Starred: true, AutoEnabled: true}, 10, 100.0/7)
	api.keywords = []amzn.Keyword{
		{KeywordID: "k1", AdGroupID: "ag-B00X", Bid: 2.00, State: "ENABLED"},
		{KeywordID: "k2", AdGroupID: "ag-B00X", Bid: 0.50, State: "ENABLED"},
		{KeywordID: "paused", AdGroupID: "ag-B00X", Bid: 1.00, State: "PAUSED"},
	}

	entries, err := e.Run(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RunExecuted, entries[0].Status)

	require.Len(t, api.keywordBatches, 1)
	updates := api.keywordBatches[0]
	require.Len(t, updates, 2)
	assert.InDelta(t, 1.60, updates[0].Bid, 1e-9)
	assert.InDelta(t, 0.40, updates[1].Bid, 1e-9)
}

func TestEngineRun_BatchFailureRecorded(t *testing.T) {
	api := newFakeAds()
	api.failKeywordBatch = true
	e, st := newTestEngine(t, api)

	seedUnit(t, st, model.ProductSettings{ASIN: "B00X", SKU: "SKU-1", TargetACOS: 25, AutoEnabled: true}, 10, 15)
	api.keywords = []amzn.Keyword{
		{KeywordID: "k1", AdGroupID: "ag-B00X", Bid: 2.00, State: "ENABLED"},
	}

	entries, err := e.Run(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RunFailed, entries[0].Status)
}

func TestEngineRun_ZeroMutationUnitStillAudited(t *testing.T) {
	api := newFakeAds()
	e, st := newTestEngine(t, api)

	// Perfectly on target: keep, no mutations, still one audit entry.
	seedUnit(t, st, model.ProductSettings{ASIN: "B00X", SKU: "SKU-1", TargetACOS: 25, AutoEnabled: true}, 25.0/7, 100.0/7)

	entries, err := e.Run(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RunExecuted, entries[0].Status)
	assert.Contains(t, entries[0].Action, "keywords=0")
}

func TestEngineRun_DisabledUnitSkipped(t *testing.T) {
	api := newFakeAds()
	e, st := newTestEngine(t, api)

	seedUnit(t, st, model.ProductSettings{ASIN: "B00X", SKU: "SKU-1", TargetACOS: 25, AutoEnabled: false}, 10, 5)

	entries, err := e.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_ThresholdOverridesFromState(t *testing.T) {
	e, st := newTestEngine(t, newFakeAds())
	ctx := context.Background()

	require.NoError(t, st.SetState(ctx, model.KeyAutoTargetACOS, "40"))
	require.NoError(t, st.SetState(ctx, model.KeyAutoMaxBid, "1.25"))

	th, err := e.thresholds(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, th.TargetACOS, 1e-9)
	assert.InDelta(t, 1.25, th.MaxBid, 1e-9)
	assert.InDelta(t, 15.0, th.StopLoss, 1e-9) // config fallback
}
