package scheduler

import (
	"context"
	"time"

	"github.com/hnv-commerce/adpilot/internal/model"
	"github.com/hnv-commerce/adpilot/internal/report"
)

// campaignReportSpec describes the per-ad-product daily campaign report.
type campaignReportSpec struct {
	adProduct    string
	reportTypeID string
	adType       model.AdType
}

var campaignReports = []campaignReportSpec{
	{"SPONSORED_PRODUCTS", "spCampaigns", model.AdTypeSP},
	{"SPONSORED_BRANDS", "sbCampaigns", model.AdTypeSB},
	{"SPONSORED_DISPLAY", "sdCampaigns", model.AdTypeSD},
}

var (
	campaignColumns  = []string{"date", "campaignId", "campaignName", "cost", "clicks", "impressions", "sales7d", "purchases7d"}
	campaignIdentity = []string{"date", "campaignId", "campaignName"}

	productColumns  = []string{"date", "advertisedAsin", "advertisedSku", "cost", "clicks", "impressions", "sales7d", "purchases7d"}
	productIdentity = []string{"date", "advertisedAsin", "advertisedSku"}
)

func (s *Scheduler) pollInterval() time.Duration {
	return time.Duration(s.cfg.PollIntervalSecs) * time.Second
}

// syncCampaignFacts fetches one ad product's campaign report for a single
// day and upserts the rows.
func (s *Scheduler) syncCampaignFacts(ctx context.Context, date string, spec campaignReportSpec) error {
	req := report.NewRequest(date, date, spec.adProduct, spec.reportTypeID,
		[]string{"campaign"}, campaignColumns)
	rows, err := report.Fetch(ctx, s.api, req, report.RequestOptions{IdentityColumns: campaignIdentity},
		s.cfg.PollMaxAttempts, s.pollInterval())
	if err != nil {
		return err
	}

	facts := make([]model.CampaignFact, 0, len(rows))
	for _, row := range rows {
		campaignID := report.StringValue(row, []string{"campaignId"})
		if campaignID == "" {
			continue
		}
		rowDate := report.StringValue(row, []string{"date"})
		if rowDate == "" {
			rowDate = date
		}
		facts = append(facts, model.CampaignFact{
			Date:         rowDate,
			CampaignID:   campaignID,
			CampaignName: report.StringValue(row, []string{"campaignName"}),
			AdType:       spec.adType,
			Cost:         report.MetricValue(row, report.CostKeys),
			Sales:        report.MetricValue(row, report.SalesKeys),
			Clicks:       int64(report.MetricValue(row, []string{"clicks"})),
			Impressions:  int64(report.MetricValue(row, []string{"impressions"})),
			Orders:       int64(report.MetricValue(row, report.OrdersKeys)),
		})
	}
	return s.store.UpsertCampaignFacts(ctx, facts)
}

// syncProductFacts fetches the advertised-product (ASIN) report for a single
// day and upserts the rows. The groupBy for this report differs across
// profiles, so adaptation is enabled.
func (s *Scheduler) syncProductFacts(ctx context.Context, date string) error {
	req := report.NewRequest(date, date, "SPONSORED_PRODUCTS", "spAdvertisedProduct",
		[]string{"advertiser"}, productColumns)
	rows, err := report.Fetch(ctx, s.api, req,
		report.RequestOptions{IdentityColumns: productIdentity, AdaptGroupBy: true},
		s.cfg.PollMaxAttempts, s.pollInterval())
	if err != nil {
		return err
	}

	facts := make([]model.ProductFact, 0, len(rows))
	for _, row := range rows {
		asin := report.StringValue(row, []string{"advertisedAsin", "asin"})
		if asin == "" {
			continue
		}
		rowDate := report.StringValue(row, []string{"date"})
		if rowDate == "" {
			rowDate = date
		}
		facts = append(facts, model.ProductFact{
			Date:        rowDate,
			ASIN:        asin,
			SKU:         report.StringValue(row, []string{"advertisedSku", "sku"}),
			Cost:        report.MetricValue(row, report.CostKeys),
			Sales:       report.MetricValue(row, report.SalesKeys),
			Clicks:      int64(report.MetricValue(row, []string{"clicks"})),
			Impressions: int64(report.MetricValue(row, []string{"impressions"})),
			Orders:      int64(report.MetricValue(row, report.OrdersKeys)),
		})
	}
	return s.store.UpsertProductFacts(ctx, facts)
}
