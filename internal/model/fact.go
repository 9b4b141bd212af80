package model

// AdType identifies the ad product a campaign belongs to.
type AdType string

const (
	AdTypeSP AdType = "SP"
	AdTypeSB AdType = "SB"
	AdTypeSD AdType = "SD"
)

// CampaignFact is one day of campaign-level performance. Keyed by
// (date, campaign_id, ad_type) so re-ingesting the same day is idempotent.
type CampaignFact struct {
	Date         string  `json:"date"`
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	AdType       AdType  `json:"ad_type"`
	Cost         float64 `json:"cost"`
	Sales        float64 `json:"sales"`
	Clicks       int64   `json:"clicks"`
	Impressions  int64   `json:"impressions"`
	Orders       int64   `json:"orders"`
}

// ProductFact is one day of advertised-product performance. Keyed by
// (date, asin, sku).
type ProductFact struct {
	Date        string  `json:"date"`
	ASIN        string  `json:"asin"`
	SKU         string  `json:"sku"`
	Cost        float64 `json:"cost"`
	Sales       float64 `json:"sales"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	Orders      int64   `json:"orders"`
}

// Performance is an aggregated slice of facts over a date range, used by the
// rule engine, the dashboard API and the XLSX export.
type Performance struct {
	Cost        float64 `json:"cost"`
	Sales       float64 `json:"sales"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	Orders      int64   `json:"orders"`
}

// ACOS returns cost/sales, or 0 when there are no sales.
func (p Performance) ACOS() float64 {
	if p.Sales <= 0 {
		return 0
	}
	return p.Cost / p.Sales
}

// CPC returns cost per click, or 0 when there are no clicks.
func (p Performance) CPC() float64 {
	if p.Clicks <= 0 {
		return 0
	}
	return p.Cost / float64(p.Clicks)
}

// ConversionRate returns orders/clicks, or 0 when there are no clicks.
func (p Performance) ConversionRate() float64 {
	if p.Clicks <= 0 {
		return 0
	}
	return float64(p.Orders) / float64(p.Clicks)
}

// CampaignPerformance is Performance aggregated per campaign.
type CampaignPerformance struct {
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	AdType       AdType `json:"ad_type"`
	Performance
}

// ProductPerformance is Performance aggregated per advertised product.
type ProductPerformance struct {
	ASIN string `json:"asin"`
	SKU  string `json:"sku"`
	Performance
}

// TrendPoint is account-wide Performance for a single day.
type TrendPoint struct {
	Date string `json:"date"`
	Performance
}
