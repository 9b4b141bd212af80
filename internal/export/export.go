// Package export writes aggregated performance, settings and the automation
// log to an XLSX workbook for offline analysis.
package export

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/hnv-commerce/adpilot/internal/store"
)

const logLimit = 1000

// Exporter builds workbooks from the store.
type Exporter struct {
	store store.Store
	now   func() time.Time
}

// New creates an Exporter.
func New(st store.Store) *Exporter {
	return &Exporter{store: st, now: time.Now}
}

// WriteFile exports the trailing window of performance data to path.
func (e *Exporter) WriteFile(ctx context.Context, path string, days int) error {
	if days < 1 {
		days = 30
	}
	end := e.now().AddDate(0, 0, -1).Format("2006-01-02")
	start := e.now().AddDate(0, 0, -days).Format("2006-01-02")

	file := xlsx.NewFile()
	if err := e.addCampaignSheet(ctx, file, start, end); err != nil {
		return err
	}
	if err := e.addProductSheet(ctx, file, start, end); err != nil {
		return err
	}
	if err := e.addTrendSheet(ctx, file, start, end); err != nil {
		return err
	}
	if err := e.addSettingsSheet(ctx, file); err != nil {
		return err
	}
	if err := e.addLogSheet(ctx, file); err != nil {
		return err
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	zap.L().Info("workbook exported",
		zap.String("path", path),
		zap.String("start", start),
		zap.String("end", end))
	return nil
}

func (e *Exporter) addCampaignSheet(ctx context.Context, file *xlsx.File, start, end string) error {
	perf, err := e.store.CampaignPerformance(ctx, start, end)
	if err != nil {
		return eris.Wrap(err, "export: campaign performance")
	}

	sheet, err := file.AddSheet("Campaigns")
	if err != nil {
		return eris.Wrap(err, "export: add campaign sheet")
	}
	headerRow(sheet, "Campaign ID", "Campaign", "Ad Type",
		"Cost", "Sales", "Clicks", "Impressions", "Orders", "ACOS %", "CPC")
	for _, p := range perf {
		row := sheet.AddRow()
		row.AddCell().SetString(p.CampaignID)
		row.AddCell().SetString(p.CampaignName)
		row.AddCell().SetString(string(p.AdType))
		row.AddCell().SetFloat(p.Cost)
		row.AddCell().SetFloat(p.Sales)
		row.AddCell().SetInt64(p.Clicks)
		row.AddCell().SetInt64(p.Impressions)
		row.AddCell().SetInt64(p.Orders)
		row.AddCell().SetFloat(round2(p.ACOS() * 100))
		row.AddCell().SetFloat(round2(p.CPC()))
	}
	return nil
}

func (e *Exporter) addProductSheet(ctx context.Context, file *xlsx.File, start, end string) error {
	perf, err := e.store.ProductPerformance(ctx, start, end)
	if err != nil {
		return eris.Wrap(err, "export: product performance")
	}

	sheet, err := file.AddSheet("Products")
	if err != nil {
		return eris.Wrap(err, "export: add product sheet")
	}
	headerRow(sheet, "ASIN", "SKU", "Cost", "Sales", "Clicks",
		"Impressions", "Orders", "ACOS %", "Conversion %")
	for _, p := range perf {
		row := sheet.AddRow()
		row.AddCell().SetString(p.ASIN)
		row.AddCell().SetString(p.SKU)
		row.AddCell().SetFloat(p.Cost)
		row.AddCell().SetFloat(p.Sales)
		row.AddCell().SetInt64(p.Clicks)
		row.AddCell().SetInt64(p.Impressions)
		row.AddCell().SetInt64(p.Orders)
		row.AddCell().SetFloat(round2(p.ACOS() * 100))
		row.AddCell().SetFloat(round2(p.ConversionRate() * 100))
	}
	return nil
}

func (e *Exporter) addTrendSheet(ctx context.Context, file *xlsx.File, start, end string) error {
	trend, err := e.store.TrendByDate(ctx, start, end)
	if err != nil {
		return eris.Wrap(err, "export: trend")
	}

	sheet, err := file.AddSheet("Daily Trend")
	if err != nil {
		return eris.Wrap(err, "export: add trend sheet")
	}
	headerRow(sheet, "Date", "Cost", "Sales", "Clicks", "Impressions", "Orders", "ACOS %")
	for _, p := range trend {
		row := sheet.AddRow()
		row.AddCell().SetString(p.Date)
		row.AddCell().SetFloat(p.Cost)
		row.AddCell().SetFloat(p.Sales)
		row.AddCell().SetInt64(p.Clicks)
		row.AddCell().SetInt64(p.Impressions)
		row.AddCell().SetInt64(p.Orders)
		row.AddCell().SetFloat(round2(p.ACOS() * 100))
	}
	return nil
}

func (e *Exporter) addSettingsSheet(ctx context.Context, file *xlsx.File) error {
	settings, err := e.store.ProductSettingsList(ctx)
	if err != nil {
		return eris.Wrap(err, "export: product settings")
	}

	sheet, err := file.AddSheet("Autopilot Settings")
	if err != nil {
		return eris.Wrap(err, "export: add settings sheet")
	}
	headerRow(sheet, "ASIN", "SKU", "Daily Budget", "Target ACOS %",
		"Budget Flex %", "Starred", "Auto Enabled")
	for _, s := range settings {
		row := sheet.AddRow()
		row.AddCell().SetString(s.ASIN)
		row.AddCell().SetString(s.SKU)
		row.AddCell().SetFloat(s.DailyBudget)
		row.AddCell().SetFloat(s.TargetACOS)
		row.AddCell().SetFloat(s.BudgetFlex)
		row.AddCell().SetBool(s.Starred)
		row.AddCell().SetBool(s.AutoEnabled)
	}
	return nil
}

func (e *Exporter) addLogSheet(ctx context.Context, file *xlsx.File) error {
	logs, err := e.store.AutomationLogs(ctx, logLimit)
	if err != nil {
		return eris.Wrap(err, "export: automation logs")
	}

	sheet, err := file.AddSheet("Automation Log")
	if err != nil {
		return eris.Wrap(err, "export: add log sheet")
	}
	headerRow(sheet, "Timestamp", "Run ID", "Subject", "Action",
		"Old Value", "New Value", "Status", "Reason")
	for _, l := range logs {
		row := sheet.AddRow()
		row.AddCell().SetString(l.Timestamp.Format(time.RFC3339))
		row.AddCell().SetString(l.RunID)
		row.AddCell().SetString(l.Subject)
		row.AddCell().SetString(l.Action)
		row.AddCell().SetFloat(round2(l.OldValue))
		row.AddCell().SetFloat(round2(l.NewValue))
		row.AddCell().SetString(string(l.Status))
		row.AddCell().SetString(l.Reason)
	}
	return nil
}

func headerRow(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, name := range names {
		row.AddCell().SetString(name)
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
