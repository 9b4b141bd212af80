package scheduler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnv-commerce/adpilot/internal/amzn"
	"github.com/hnv-commerce/adpilot/internal/config"
	"github.com/hnv-commerce/adpilot/internal/model"
	"github.com/hnv-commerce/adpilot/internal/store"
)

var testCreds = config.AmazonConfig{
	ClientID: "cid", ClientSecret: "s", RefreshToken: "rt", ProfileID: "p",
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		DefaultDays:      7,
		MaxDays:          30,
		RefreshDays:      2,
		PollMaxAttempts:  3,
		PollIntervalSecs: 0, // floor applies, tests only poll once
		ReportWorkers:    2,
	}
}

// fakeAds answers listings and the full report lifecycle in memory. Report
// rows are produced by rowsFor, keyed by reportTypeId.
type fakeAds struct {
	mu        sync.Mutex
	nextID    int
	pending   map[string]reportJob // reportID -> job
	rowsFor   func(reportTypeID, date string) ([]map[string]any, error)
	campaigns map[string][]amzn.Campaign
	adGroups  []amzn.AdGroup
	ads       []amzn.ProductAd
}

type reportJob struct {
	reportTypeID string
	date         string
}

func newFakeAds() *fakeAds {
	return &fakeAds{
		pending: make(map[string]reportJob),
		rowsFor: func(reportTypeID, date string) ([]map[string]any, error) {
			return nil, nil
		},
		campaigns: map[string][]amzn.Campaign{},
	}
}

func (f *fakeAds) Post(_ context.Context, path, _ string, payload any) ([]byte, int, error) {
	if path != "/reporting/reports" {
		return nil, 404, nil
	}
	raw, _ := json.Marshal(payload)
	var req struct {
		StartDate     string `json:"startDate"`
		Configuration struct {
			ReportTypeID string `json:"reportTypeId"`
		} `json:"configuration"`
	}
	_ = json.Unmarshal(raw, &req)

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("r-%d", f.nextID)
	f.pending[id] = reportJob{reportTypeID: req.Configuration.ReportTypeID, date: req.StartDate}
	f.mu.Unlock()

	return []byte(`{"reportId":"` + id + `"}`), 200, nil
}

func (f *fakeAds) Get(_ context.Context, path, _ string) ([]byte, int, error) {
	id := strings.TrimPrefix(path, "/reporting/reports/")
	return []byte(`{"reportId":"` + id + `","status":"COMPLETED","url":"dl://` + id + `"}`), 200, nil
}

func (f *fakeAds) Download(_ context.Context, rawURL string) ([]byte, error) {
	id := strings.TrimPrefix(rawURL, "dl://")
	f.mu.Lock()
	job := f.pending[id]
	f.mu.Unlock()

	rows, err := f.rowsFor(job.reportTypeID, job.date)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(rows); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *fakeAds) ListCampaigns(_ context.Context, adProduct string) ([]amzn.Campaign, error) {
	return f.campaigns[adProduct], nil
}

func (f *fakeAds) ListAdGroups(context.Context) ([]amzn.AdGroup, error) {
	return f.adGroups, nil
}

func (f *fakeAds) ListProductAds(context.Context) ([]amzn.ProductAd, error) {
	return f.ads, nil
}

func newTestScheduler(t *testing.T, api AdsAPI, creds config.AmazonConfig) (*Scheduler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	s := New(st, api, testSyncConfig(), creds)
	s.now = func() time.Time {
		return time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)
	}
	return s, st
}

func TestRun_NoCredentials(t *testing.T) {
	s, st := newTestScheduler(t, newFakeAds(), config.AmazonConfig{})

	res, err := s.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusNoConfig, res.Status)

	status, err := st.GetState(context.Background(), model.KeySyncStatus)
	require.NoError(t, err)
	assert.Equal(t, StatusNoConfig, status)
}

func TestRun_BusyWhenLocked(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeAds(), testCreds)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusBusy, res.Status)
}

func TestRun_SyncsSettingsAndFacts(t *testing.T) {
	api := newFakeAds()
	api.campaigns["sp"] = []amzn.Campaign{{CampaignID: "c1", Name: "Alpha", State: "ENABLED"}}
	api.campaigns["sb"] = []amzn.Campaign{{CampaignID: "b1", Name: "Brand", State: "ENABLED"}}
	api.adGroups = []amzn.AdGroup{{AdGroupID: "ag1", CampaignID: "c1", Name: "Core", DefaultBid: 0.7, State: "ENABLED"}}
	api.ads = []amzn.ProductAd{{AdID: "ad1", CampaignID: "c1", AdGroupID: "ag1", ASIN: "B00X", SKU: "SKU-1", State: "ENABLED"}}
	api.rowsFor = func(reportTypeID, date string) ([]map[string]any, error) {
		switch reportTypeID {
		case "spCampaigns":
			return []map[string]any{{
				"date": date, "campaignId": "c1", "campaignName": "Alpha",
				"cost": 2.0, "sales7d": 8.0, "clicks": 4.0, "impressions": 100.0, "purchases7d": 1.0,
			}}, nil
		case "spAdvertisedProduct":
			return []map[string]any{{
				"date": date, "advertisedAsin": "B00X", "advertisedSku": "SKU-1",
				"cost": 2.0, "sales7d": 8.0, "clicks": 4.0, "impressions": 100.0, "purchases7d": 1.0,
			}}, nil
		}
		return nil, nil
	}

	s, st := newTestScheduler(t, api, testCreds)
	ctx := context.Background()

	res, err := s.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 2, res.Days)

	groups, err := st.AdGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	ads, err := st.ProductAds(ctx)
	require.NoError(t, err)
	assert.Len(t, ads, 1)

	// Two days of SP campaign facts; lookback padding fetched the rest of
	// the default window too.
	dates, err := st.CampaignFactDates(ctx, model.AdTypeSP, "2026-08-24", "2026-08-30")
	require.NoError(t, err)
	assert.Len(t, dates, 7)

	perf, err := st.ProductPerformance(ctx, "2026-08-29", "2026-08-30")
	require.NoError(t, err)
	require.Len(t, perf, 1)
	assert.InDelta(t, 4.0, perf[0].Cost, 1e-9)

	ts, err := st.GetState(ctx, model.KeyAutoSyncTS)
	require.NoError(t, err)
	assert.NotEmpty(t, ts)
}

func TestRun_ReportFailureDegradesToPartial(t *testing.T) {
	api := newFakeAds()
	api.rowsFor = func(reportTypeID, date string) ([]map[string]any, error) {
		if reportTypeID == "sbCampaigns" {
			return nil, fmt.Errorf("report store unavailable")
		}
		return nil, nil
	}

	s, st := newTestScheduler(t, api, testCreds)

	res, err := s.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Contains(t, res.Detail, "sbCampaigns")

	status, err := st.GetState(context.Background(), model.KeySyncStatus)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, status)

	detail, err := st.GetState(context.Background(), model.KeySyncError)
	require.NoError(t, err)
	assert.Contains(t, detail, "report store unavailable")
}

func TestAutoSyncDays(t *testing.T) {
	s, st := newTestScheduler(t, newFakeAds(), testCreds)
	ctx := context.Background()

	// Empty store: default window.
	days, err := s.autoSyncDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, days)

	// Three days behind: close the gap.
	require.NoError(t, st.UpsertCampaignFacts(ctx, []model.CampaignFact{
		{Date: "2026-08-27", CampaignID: "c1", AdType: model.AdTypeSP},
	}))
	days, err = s.autoSyncDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, days)

	// Current through yesterday: just refresh the attribution tail.
	require.NoError(t, st.UpsertCampaignFacts(ctx, []model.CampaignFact{
		{Date: "2026-08-30", CampaignID: "c1", AdType: model.AdTypeSP},
	}))
	days, err = s.autoSyncDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, days)
}

func TestAutoSyncDays_ZoneIndependent(t *testing.T) {
	// The gap is a calendar-day count and must not shift with the process
	// timezone (day boundaries east or west of UTC).
	for _, zone := range []*time.Location{
		time.FixedZone("UTC+8", 8*3600),
		time.FixedZone("UTC-7", -7*3600),
	} {
		t.Run(zone.String(), func(t *testing.T) {
			orig := time.Local
			time.Local = zone
			t.Cleanup(func() { time.Local = orig })

			s, st := newTestScheduler(t, newFakeAds(), testCreds)
			ctx := context.Background()

			require.NoError(t, st.UpsertCampaignFacts(ctx, []model.CampaignFact{
				{Date: "2026-08-27", CampaignID: "c1", AdType: model.AdTypeSP},
			}))
			days, err := s.autoSyncDays(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, days)

			require.NoError(t, st.UpsertCampaignFacts(ctx, []model.CampaignFact{
				{Date: "2026-08-30", CampaignID: "c1", AdType: model.AdTypeSP},
			}))
			days, err = s.autoSyncDays(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, days)
		})
	}
}

func TestSyncDates_IncludesHoles(t *testing.T) {
	s, st := newTestScheduler(t, newFakeAds(), testCreds)
	ctx := context.Background()

	// Fill the whole default window except one campaign-fact day.
	for i := 1; i <= 7; i++ {
		date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.Local).AddDate(0, 0, -(i - 1)).Format(dateLayout)
		if date != "2026-08-27" {
			require.NoError(t, st.UpsertCampaignFacts(ctx, []model.CampaignFact{
				{Date: date, CampaignID: "c1", AdType: model.AdTypeSP},
			}))
		}
		require.NoError(t, st.UpsertProductFacts(ctx, []model.ProductFact{
			{Date: date, ASIN: "B00X", SKU: "SKU-1"},
		}))
	}

	dates, err := s.syncDates(ctx, 2)
	require.NoError(t, err)
	// The 2 requested days plus the hole.
	assert.Equal(t, []string{"2026-08-30", "2026-08-29", "2026-08-27"}, dates)
}
