package amzn

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxListPages bounds pagination so a misbehaving nextToken can never loop
// forever. 50 pages x 100 rows covers any realistic account.
const maxListPages = 50

const listPageSize = 100

// Campaign is the v3 wire shape shared by SP, SB and SD listings.
type Campaign struct {
	CampaignID string `json:"campaignId"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Budget     struct {
		Budget     float64 `json:"budget"`
		BudgetType string  `json:"budgetType"`
	} `json:"budget"`
	DynamicBidding *DynamicBidding `json:"dynamicBidding,omitempty"`
}

// DynamicBidding carries the placement bid adjustments on an SP campaign.
type DynamicBidding struct {
	Strategy         string                `json:"strategy,omitempty"`
	PlacementBidding []PlacementAdjustment `json:"placementBidding,omitempty"`
}

// PlacementAdjustment is one placement percentage on a campaign.
type PlacementAdjustment struct {
	Placement  string `json:"placement"`
	Percentage int    `json:"percentage"`
}

// AdGroup is the spAdGroup.v3 wire shape.
type AdGroup struct {
	AdGroupID  string  `json:"adGroupId"`
	CampaignID string  `json:"campaignId"`
	Name       string  `json:"name"`
	DefaultBid float64 `json:"defaultBid"`
	State      string  `json:"state"`
}

// ProductAd is the spProductAd.v3 wire shape.
type ProductAd struct {
	AdID           string `json:"adId"`
	CampaignID     string `json:"campaignId"`
	AdGroupID      string `json:"adGroupId"`
	ASIN           string `json:"asin"`
	SKU            string `json:"sku"`
	State          string `json:"state"`
	CreationDate   string `json:"creationDateTime"`
	LastUpdateDate string `json:"lastUpdatedDateTime"`
	ExtendedData   struct {
		ServingStatus string `json:"servingStatus"`
	} `json:"extendedData"`
}

// Keyword is the spKeyword.v3 wire shape.
type Keyword struct {
	KeywordID   string  `json:"keywordId"`
	CampaignID  string  `json:"campaignId"`
	AdGroupID   string  `json:"adGroupId"`
	KeywordText string  `json:"keywordText"`
	MatchType   string  `json:"matchType"`
	Bid         float64 `json:"bid"`
	State       string  `json:"state"`
}

// TargetingClause is the spTargetingClause.v3 wire shape. Older profiles
// return targetId, newer ones targetingClauseId; both are kept.
type TargetingClause struct {
	TargetID          string  `json:"targetId"`
	TargetingClauseID string  `json:"targetingClauseId"`
	CampaignID        string  `json:"campaignId"`
	AdGroupID         string  `json:"adGroupId"`
	Bid               float64 `json:"bid"`
	State             string  `json:"state"`
}

// NegativeKeyword is the wire shape for ad-group and campaign negatives.
type NegativeKeyword struct {
	KeywordID   string `json:"keywordId"`
	CampaignID  string `json:"campaignId"`
	AdGroupID   string `json:"adGroupId"`
	KeywordText string `json:"keywordText"`
	MatchType   string `json:"matchType"`
	State       string `json:"state"`
}

type listRequest struct {
	MaxResults                int    `json:"maxResults"`
	IncludeExtendedDataFields bool   `json:"includeExtendedDataFields"`
	NextToken                 string `json:"nextToken,omitempty"`
}

// listAll walks POST <path> pages until nextToken runs out or the page cap is
// hit. key names the array field in the response envelope.
func listAll[T any](ctx context.Context, c *Client, path, mediaType, key string) ([]T, error) {
	var out []T
	nextToken := ""

	for page := 0; page < maxListPages; page++ {
		body, status, err := c.Post(ctx, path, mediaType, listRequest{
			MaxResults:                listPageSize,
			IncludeExtendedDataFields: true,
			NextToken:                 nextToken,
		})
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, &APIError{StatusCode: status, Body: truncate(body, 500)}
		}

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, eris.Wrapf(err, "amzn: decode %s page", path)
		}

		if raw, ok := envelope[key]; ok {
			var items []T
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, eris.Wrapf(err, "amzn: decode %s items", path)
			}
			out = append(out, items...)
		}

		nextToken = ""
		if raw, ok := envelope["nextToken"]; ok {
			_ = json.Unmarshal(raw, &nextToken)
		}
		if nextToken == "" {
			return out, nil
		}
	}

	zap.L().Warn("listing page cap reached, result may be truncated",
		zap.String("path", path), zap.Int("rows", len(out)))
	return out, nil
}

// ListCampaigns lists campaigns for one ad product ("sp", "sb" or "sd").
func (c *Client) ListCampaigns(ctx context.Context, adProduct string) ([]Campaign, error) {
	mediaType := MediaJSON
	if adProduct == "sp" {
		mediaType = MediaSPCampaign
	}
	return listAll[Campaign](ctx, c, "/"+adProduct+"/campaigns/list", mediaType, "campaigns")
}

// ListAdGroups lists all SP ad groups.
func (c *Client) ListAdGroups(ctx context.Context) ([]AdGroup, error) {
	return listAll[AdGroup](ctx, c, "/sp/adGroups/list", MediaSPAdGroup, "adGroups")
}

// ListProductAds lists all SP product ads.
func (c *Client) ListProductAds(ctx context.Context) ([]ProductAd, error) {
	return listAll[ProductAd](ctx, c, "/sp/productAds/list", MediaSPProductAd, "productAds")
}

// ListKeywords lists all SP keywords.
func (c *Client) ListKeywords(ctx context.Context) ([]Keyword, error) {
	return listAll[Keyword](ctx, c, "/sp/keywords/list", MediaSPKeyword, "keywords")
}

// ListTargets lists SP targeting clauses. Some profiles only expose the
// legacy targetingClauses resource, so a 4xx on /sp/targets falls through.
func (c *Client) ListTargets(ctx context.Context) ([]TargetingClause, error) {
	targets, err := listAll[TargetingClause](ctx, c, "/sp/targets/list", MediaSPTargeting, "targetingClauses")
	if err == nil {
		return targets, nil
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode < 400 || apiErr.StatusCode >= 500 {
		return nil, err
	}
	return listAll[TargetingClause](ctx, c, "/sp/targetingClauses/list", MediaSPTargeting, "targetingClauses")
}

// ListNegativeKeywords lists ad-group level SP negative keywords.
func (c *Client) ListNegativeKeywords(ctx context.Context) ([]NegativeKeyword, error) {
	return listAll[NegativeKeyword](ctx, c, "/sp/negativeKeywords/list", MediaSPNegativeKeyword, "negativeKeywords")
}

// ListCampaignNegativeKeywords lists campaign level SP negative keywords.
func (c *Client) ListCampaignNegativeKeywords(ctx context.Context) ([]NegativeKeyword, error) {
	return listAll[NegativeKeyword](ctx, c, "/sp/campaignNegativeKeywords/list", MediaSPCampaignNegKw, "campaignNegativeKeywords")
}
