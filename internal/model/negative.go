package model

// NegativeStatus is the lifecycle state of a mined negative keyword.
type NegativeStatus string

const (
	NegativePending NegativeStatus = "pending"
	NegativeDryRun  NegativeStatus = "dry_run"
	NegativeCreated NegativeStatus = "created"
	NegativePartial NegativeStatus = "partial"
	NegativeDeleted NegativeStatus = "deleted"
	NegativeEdited  NegativeStatus = "edited"
)

// NegativeLevel is the scope a negative keyword is attached at.
type NegativeLevel string

const (
	NegativeLevelAdGroup  NegativeLevel = "adgroup"
	NegativeLevelCampaign NegativeLevel = "campaign"
)

// Negative keyword sources. Automation-authored and human-authored rows share
// one table; Source keeps them distinguishable.
const (
	NegativeSourceAuto   = "auto"
	NegativeSourceManual = "manual"
)

// NegativeKeywordRecord is a mined (or manually entered) negative keyword
// candidate. Keyed by (campaign_id, ad_group_id, keyword_text, match_type,
// level, source); re-mining the same term updates the row in place.
type NegativeKeywordRecord struct {
	CampaignID  string         `json:"campaign_id"`
	AdGroupID   string         `json:"ad_group_id"`
	KeywordText string         `json:"keyword_text"`
	MatchType   string         `json:"match_type"`
	Level       NegativeLevel  `json:"level"`
	Source      string         `json:"source"`
	Status      NegativeStatus `json:"status"`
	Reason      string         `json:"reason"`
	Cost        float64        `json:"cost"`
	Sales       float64        `json:"sales"`
	Orders      int64          `json:"orders"`
	Clicks      int64          `json:"clicks"`
	CreatedAt   string         `json:"created_at"`
	LastUpdated string         `json:"last_updated"`
}
