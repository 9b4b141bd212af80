package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/hnv-commerce/adpilot/internal/model"
	"github.com/hnv-commerce/adpilot/internal/store"
)

func newTestExporter(t *testing.T) (*Exporter, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	e := New(st)
	e.now = func() time.Time { return time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local) }
	return e, st
}

func TestWriteFile_AllSheets(t *testing.T) {
	e, st := newTestExporter(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertCampaignFacts(ctx, []model.CampaignFact{
		{Date: "2026-08-30", CampaignID: "c1", CampaignName: "Alpha", AdType: model.AdTypeSP,
			Cost: 5.0, Sales: 20.0, Clicks: 10, Impressions: 100, Orders: 2},
	}))
	require.NoError(t, st.UpsertProductFacts(ctx, []model.ProductFact{
		{Date: "2026-08-30", ASIN: "B00X", SKU: "SKU-1", Cost: 5.0, Sales: 20.0, Clicks: 10},
	}))
	require.NoError(t, st.SaveProductSettings(ctx, []model.ProductSettings{
		{ASIN: "B00X", SKU: "SKU-1", DailyBudget: 10, TargetACOS: 25, Starred: true, AutoEnabled: true},
	}))
	require.NoError(t, st.AppendAutomationLog(ctx, []model.AutomationLogEntry{
		{Timestamp: time.Now(), RunID: "r1", Subject: "B00X:SKU-1", Action: "reduce keywords=1",
			OldValue: 0.25, NewValue: 0.8, Reason: "acos above target", Status: model.RunExecuted},
	}))

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, e.WriteFile(ctx, path, 7))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	names := make([]string, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Campaigns", "Products", "Daily Trend", "Autopilot Settings", "Automation Log"}, names)

	campaigns := f.Sheet["Campaigns"]
	require.NotNil(t, campaigns)
	require.GreaterOrEqual(t, len(campaigns.Rows), 2)
	assert.Equal(t, "Campaign ID", campaigns.Rows[0].Cells[0].String())
	assert.Equal(t, "c1", campaigns.Rows[1].Cells[0].String())
	assert.Equal(t, "Alpha", campaigns.Rows[1].Cells[1].String())
	acos, err := campaigns.Rows[1].Cells[8].Float()
	require.NoError(t, err)
	assert.InDelta(t, 25.0, acos, 1e-9)

	logSheet := f.Sheet["Automation Log"]
	require.NotNil(t, logSheet)
	require.Len(t, logSheet.Rows, 2)
	assert.Equal(t, "B00X:SKU-1", logSheet.Rows[1].Cells[2].String())
}

func TestWriteFile_EmptyStoreStillWrites(t *testing.T) {
	e, _ := newTestExporter(t)

	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, e.WriteFile(context.Background(), path, 0))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 5)
}
