package amzn

import (
	"context"

	"go.uber.org/zap"
)

// KeywordBidUpdate sets a new bid on one keyword.
type KeywordBidUpdate struct {
	KeywordID string  `json:"keywordId"`
	Bid       float64 `json:"bid"`
}

// TargetBidUpdate sets a new bid on one targeting clause. Exactly one of the
// two id fields is populated, mirroring whichever the listing returned.
type TargetBidUpdate struct {
	TargetID          string  `json:"targetId,omitempty"`
	TargetingClauseID string  `json:"targetingClauseId,omitempty"`
	Bid               float64 `json:"bid"`
}

// CampaignUpdate adjusts a campaign's placement percentages.
type CampaignUpdate struct {
	CampaignID     string          `json:"campaignId"`
	DynamicBidding *DynamicBidding `json:"dynamicBidding,omitempty"`
}

// NegativeKeywordCreate is one negative keyword to create. AdGroupID empty
// means campaign level.
type NegativeKeywordCreate struct {
	CampaignID  string `json:"campaignId"`
	AdGroupID   string `json:"adGroupId,omitempty"`
	KeywordText string `json:"keywordText"`
	MatchType   string `json:"matchType"`
	State       string `json:"state"`
}

func mutationOK(status int) bool {
	// 207 is a partial success; per-row failures surface in the body but the
	// accepted rows did apply.
	return status == 200 || status == 207
}

// sendEnveloped sends items wrapped as {key: items}; if the API rejects the
// envelope it retries once with the bare array, which older profile versions
// expect.
func (c *Client) sendEnveloped(ctx context.Context, method, path, mediaType, key string, items any) error {
	send := func(payload any) (int, []byte, error) {
		var body []byte
		var status int
		var err error
		if method == "POST" {
			body, status, err = c.Post(ctx, path, mediaType, payload)
		} else {
			body, status, err = c.Put(ctx, path, mediaType, payload)
		}
		return status, body, err
	}

	status, body, err := send(map[string]any{key: items})
	if err != nil {
		return err
	}
	if mutationOK(status) {
		return nil
	}

	zap.L().Debug("enveloped mutation rejected, retrying with bare array",
		zap.String("path", path), zap.Int("status", status))
	status, body, err = send(items)
	if err != nil {
		return err
	}
	if mutationOK(status) {
		return nil
	}
	return &APIError{StatusCode: status, Body: truncate(body, 500)}
}

// UpdateKeywordBids applies keyword bid changes. Partial success (207) counts
// as applied.
func (c *Client) UpdateKeywordBids(ctx context.Context, updates []KeywordBidUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return c.sendEnveloped(ctx, "PUT", "/sp/keywords", MediaSPKeyword, "keywords", updates)
}

// UpdateTargetBids applies targeting clause bid changes.
func (c *Client) UpdateTargetBids(ctx context.Context, updates []TargetBidUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return c.sendEnveloped(ctx, "PUT", "/sp/targets", MediaSPTargeting, "targetingClauses", updates)
}

// UpdateCampaigns applies placement changes.
func (c *Client) UpdateCampaigns(ctx context.Context, updates []CampaignUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return c.sendEnveloped(ctx, "PUT", "/sp/campaigns", MediaSPCampaign, "campaigns", updates)
}

// UpdateCampaignPlacements applies placement percentage adjustments for one
// campaign. Some accounts reject placementRestOfSearch; when the update
// carries more than one adjustment, it is retried once without it.
func (c *Client) UpdateCampaignPlacements(ctx context.Context, campaignID string, adjustments []PlacementAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	update := CampaignUpdate{
		CampaignID:     campaignID,
		DynamicBidding: &DynamicBidding{PlacementBidding: adjustments},
	}
	err := c.UpdateCampaigns(ctx, []CampaignUpdate{update})
	if err == nil || len(adjustments) <= 1 {
		return err
	}

	trimmed := make([]PlacementAdjustment, 0, len(adjustments))
	for _, a := range adjustments {
		if a.Placement != "placementRestOfSearch" {
			trimmed = append(trimmed, a)
		}
	}
	if len(trimmed) == len(adjustments) || len(trimmed) == 0 {
		return err
	}

	zap.L().Warn("placement update rejected, retrying without rest-of-search",
		zap.String("campaign_id", campaignID), zap.Error(err))
	update.DynamicBidding = &DynamicBidding{PlacementBidding: trimmed}
	return c.UpdateCampaigns(ctx, []CampaignUpdate{update})
}

// legacyMatchType maps v3 negative match types to the lower-camel spellings
// the legacy endpoint expects.
var legacyMatchType = map[string]string{
	"NEGATIVE_EXACT":  "negativeExact",
	"NEGATIVE_PHRASE": "negativePhrase",
}

// CreateNegativeKeywords creates ad-group or campaign level negatives. On
// rejection it retries once with legacy match type spellings.
func (c *Client) CreateNegativeKeywords(ctx context.Context, creates []NegativeKeywordCreate) error {
	if len(creates) == 0 {
		return nil
	}

	path, mediaType, key := "/sp/negativeKeywords", MediaSPNegativeKeyword, "negativeKeywords"
	if creates[0].AdGroupID == "" {
		path, mediaType, key = "/sp/campaignNegativeKeywords", MediaSPCampaignNegKw, "campaignNegativeKeywords"
	}

	err := c.sendEnveloped(ctx, "POST", path, mediaType, key, creates)
	if err == nil {
		return nil
	}

	downgraded := make([]NegativeKeywordCreate, len(creates))
	changed := false
	copy(downgraded, creates)
	for i, nk := range downgraded {
		if legacy, ok := legacyMatchType[nk.MatchType]; ok {
			downgraded[i].MatchType = legacy
			changed = true
		}
	}
	if !changed {
		return err
	}

	zap.L().Debug("negative keyword create rejected, retrying with legacy match types",
		zap.Error(err))
	return c.sendEnveloped(ctx, "POST", path, mediaType, key, downgraded)
}
