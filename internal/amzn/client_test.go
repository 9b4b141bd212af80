package amzn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnv-commerce/adpilot/internal/config"
)

// newTestClient wires a Client against an httptest server that answers both
// the LWA token endpoint and the Ads API.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/o2/token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "expires_in": 3600})
	})
	mux.Handle("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(config.AmazonConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "rt",
		ProfileID:    "prof-1",
		TokenURL:     srv.URL + "/auth/o2/token",
		APIBaseURL:   srv.URL,
	})
	return c, srv
}

func TestClient_NoCredentials(t *testing.T) {
	c := NewClient(config.AmazonConfig{TokenURL: "http://unused", APIBaseURL: "http://unused"})
	_, err := c.ListAdGroups(context.Background())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestClient_TokenCachedAcrossCalls(t *testing.T) {
	var tokenCalls, apiCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/o2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/sp/adGroups/list", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "cid", r.Header.Get("Amazon-Advertising-API-ClientId"))
		assert.Equal(t, "prof-1", r.Header.Get("Amazon-Advertising-API-Scope"))
		assert.Equal(t, MediaSPAdGroup, r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(map[string]any{"adGroups": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(config.AmazonConfig{
		ClientID: "cid", ClientSecret: "s", RefreshToken: "rt", ProfileID: "prof-1",
		TokenURL: srv.URL + "/auth/o2/token", APIBaseURL: srv.URL,
	})

	for range 3 {
		_, err := c.ListAdGroups(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, tokenCalls.Load())
	assert.EqualValues(t, 3, apiCalls.Load())
}

func TestClient_ListCampaigns_Paginates(t *testing.T) {
	var pages atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sp/campaigns/list", r.URL.Path)

		var req listRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 100, req.MaxResults)
		assert.True(t, req.IncludeExtendedDataFields)

		switch pages.Add(1) {
		case 1:
			assert.Empty(t, req.NextToken)
			json.NewEncoder(w).Encode(map[string]any{
				"campaigns": []map[string]any{{"campaignId": "c1", "name": "Alpha", "state": "ENABLED"}},
				"nextToken": "page-2",
			})
		default:
			assert.Equal(t, "page-2", req.NextToken)
			json.NewEncoder(w).Encode(map[string]any{
				"campaigns": []map[string]any{{"campaignId": "c2", "name": "Beta", "state": "PAUSED"}},
			})
		}
	})
	c, _ := newTestClient(t, handler)

	campaigns, err := c.ListCampaigns(context.Background(), "sp")
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "c1", campaigns[0].CampaignID)
	assert.Equal(t, "c2", campaigns[1].CampaignID)
	assert.EqualValues(t, 2, pages.Load())
}

func TestClient_ListTargets_FallsBackToLegacyResource(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sp/targets/list":
			http.Error(w, `{"message":"unsupported"}`, http.StatusNotFound)
		case "/sp/targetingClauses/list":
			json.NewEncoder(w).Encode(map[string]any{
				"targetingClauses": []map[string]any{{"targetingClauseId": "t1", "bid": 0.4}},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	c, _ := newTestClient(t, handler)

	targets, err := c.ListTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "t1", targets[0].TargetingClauseID)
	assert.Empty(t, targets[0].TargetID)
}

func TestClient_UpdateKeywordBids_EnvelopeThenBare(t *testing.T) {
	var bodies []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/sp/keywords", r.URL.Path)

		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		bodies = append(bodies, string(raw))

		if len(bodies) == 1 {
			http.Error(w, `{"message":"bad request"}`, http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c, _ := newTestClient(t, handler)

	err := c.UpdateKeywordBids(context.Background(), []KeywordBidUpdate{{KeywordID: "k1", Bid: 0.8}})
	require.NoError(t, err)
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], `"keywords"`) // enveloped first
	assert.True(t, bodies[1][0] == '[')         // bare array on retry
}

func TestClient_UpdateKeywordBids_PartialSuccessIsOK(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
	})
	c, _ := newTestClient(t, handler)

	err := c.UpdateKeywordBids(context.Background(), []KeywordBidUpdate{{KeywordID: "k1", Bid: 0.5}})
	require.NoError(t, err)
}

func TestClient_CreateNegativeKeywords_LegacyMatchTypeFallback(t *testing.T) {
	var attempts []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sp/negativeKeywords", r.URL.Path)

		var envelope map[string][]NegativeKeywordCreate
		var bare []NegativeKeywordCreate
		body := json.NewDecoder(r.Body)
		var raw json.RawMessage
		require.NoError(t, body.Decode(&raw))
		if json.Unmarshal(raw, &envelope) == nil && len(envelope["negativeKeywords"]) > 0 {
			attempts = append(attempts, envelope["negativeKeywords"][0].MatchType)
		} else if json.Unmarshal(raw, &bare) == nil && len(bare) > 0 {
			attempts = append(attempts, bare[0].MatchType)
		}

		if attempts[len(attempts)-1] == "negativeExact" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, `{"message":"invalid matchType"}`, http.StatusUnprocessableEntity)
	})
	c, _ := newTestClient(t, handler)

	err := c.CreateNegativeKeywords(context.Background(), []NegativeKeywordCreate{{
		CampaignID: "c1", AdGroupID: "ag1", KeywordText: "junk", MatchType: "NEGATIVE_EXACT", State: "ENABLED",
	}})
	require.NoError(t, err)
	assert.Contains(t, attempts, "NEGATIVE_EXACT")
	assert.Contains(t, attempts, "negativeExact")
}

func TestClient_UpdateCampaignPlacements_DropsRestOfSearchOnRetry(t *testing.T) {
	var requests []CampaignUpdate
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sp/campaigns", r.URL.Path)

		var envelope map[string][]CampaignUpdate
		var bare []CampaignUpdate
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		if json.Unmarshal(raw, &envelope) == nil && len(envelope["campaigns"]) > 0 {
			requests = append(requests, envelope["campaigns"][0])
		} else if json.Unmarshal(raw, &bare) == nil && len(bare) > 0 {
			requests = append(requests, bare[0])
		}

		last := requests[len(requests)-1]
		for _, p := range last.DynamicBidding.PlacementBidding {
			if p.Placement == "placementRestOfSearch" {
				http.Error(w, `{"message":"placement not allowed"}`, http.StatusUnprocessableEntity)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	c, _ := newTestClient(t, handler)

	err := c.UpdateCampaignPlacements(context.Background(), "c1", []PlacementAdjustment{
		{Placement: "placementTop", Percentage: 20},
		{Placement: "placementRestOfSearch", Percentage: 5},
	})
	require.NoError(t, err)

	final := requests[len(requests)-1]
	require.Len(t, final.DynamicBidding.PlacementBidding, 1)
	assert.Equal(t, "placementTop", final.DynamicBidding.PlacementBidding[0].Placement)
}

func TestClient_UpdateEmptySlicesAreNoOps(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	c, _ := newTestClient(t, handler)

	ctx := context.Background()
	require.NoError(t, c.UpdateKeywordBids(ctx, nil))
	require.NoError(t, c.UpdateTargetBids(ctx, nil))
	require.NoError(t, c.UpdateCampaigns(ctx, nil))
	require.NoError(t, c.CreateNegativeKeywords(ctx, nil))
	require.NoError(t, c.UpdateCampaignPlacements(ctx, "c1", nil))
}
