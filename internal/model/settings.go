package model

// States the Ads API reports for entities that may still serve.
const (
	StateEnabled            = "ENABLED"
	StateEnabledWithPending = "ENABLED_WITH_PENDING_CHANGES"
)

// IsServingState reports whether an entity state should be treated as live.
// An empty state is treated as live because older API versions omit it.
func IsServingState(state string) bool {
	return state == "" || state == StateEnabled || state == StateEnabledWithPending
}

// CampaignSettings is the current remote configuration snapshot of a campaign.
type CampaignSettings struct {
	CampaignID  string  `json:"campaign_id"`
	Name        string  `json:"name"`
	AdType      AdType  `json:"ad_type"`
	BudgetType  string  `json:"budget_type"`
	Budget      float64 `json:"budget"`
	Status      string  `json:"status"`
	Starred     bool    `json:"starred"`
	LastUpdated string  `json:"last_updated"`
}

// AdGroupSettings is the current remote snapshot of an SP ad group.
type AdGroupSettings struct {
	AdGroupID   string  `json:"ad_group_id"`
	CampaignID  string  `json:"campaign_id"`
	Name        string  `json:"name"`
	DefaultBid  float64 `json:"default_bid"`
	State       string  `json:"state"`
	LastUpdated string  `json:"last_updated"`
}

// ProductAd links an advertised ASIN/SKU to its ad group and campaign.
type ProductAd struct {
	AdID           string `json:"ad_id"`
	CampaignID     string `json:"campaign_id"`
	AdGroupID      string `json:"ad_group_id"`
	ASIN           string `json:"asin"`
	SKU            string `json:"sku"`
	State          string `json:"state"`
	ServingStatus  string `json:"serving_status"`
	CreationDate   string `json:"creation_date"`
	LastUpdateDate string `json:"last_update_date"`
	LastSynced     string `json:"last_synced"`
}

// ProductSettings holds the user-configured autopilot targets for a managed
// unit (an ASIN, optionally split by SKU). Keyed by (asin, sku); sku may be
// empty for an ASIN-level row.
type ProductSettings struct {
	ASIN        string  `json:"asin"`
	SKU         string  `json:"sku"`
	DailyBudget float64 `json:"daily_budget"`
	TargetACOS  float64 `json:"target_acos"` // percent, e.g. 25.0
	BudgetFlex  float64 `json:"budget_flex"` // percent headroom over DailyBudget
	Starred     bool    `json:"starred"`
	AutoEnabled bool    `json:"auto_enabled"`
	LastUpdated string  `json:"last_updated"`
}
