package amzn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hnv-commerce/adpilot/internal/config"
	"github.com/hnv-commerce/adpilot/internal/resilience"
)

// ErrNoCredentials is returned when the Ads API credentials are not fully
// configured. Callers short-circuit instead of treating it as a failure.
var ErrNoCredentials = eris.New("amzn: credentials not configured")

// Per-entity media types. The Ads API versions its request/response schema
// through Content-Type rather than the URL path.
const (
	MediaSPCampaign        = "application/vnd.spCampaign.v3+json"
	MediaSPAdGroup         = "application/vnd.spAdGroup.v3+json"
	MediaSPProductAd       = "application/vnd.spProductAd.v3+json"
	MediaSPKeyword         = "application/vnd.spKeyword.v3+json"
	MediaSPTargeting       = "application/vnd.spTargetingClause.v3+json"
	MediaSPNegativeKeyword = "application/vnd.spNegativeKeyword.v3+json"
	MediaSPCampaignNegKw   = "application/vnd.spCampaignNegativeKeyword.v3+json"
	MediaJSON              = "application/json"
)

// Client is an authenticated Amazon Ads API client with token refresh,
// bounded retry and per-host rate limiting.
type Client struct {
	httpClient *http.Client
	cfg        config.AmazonConfig
	retry      resilience.RetryConfig
	limiters   map[string]*rate.Limiter
	limiterMu  sync.Mutex

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a Client. The credentials are validated lazily: calls
// return ErrNoCredentials when the config is incomplete.
func NewClient(cfg config.AmazonConfig) *Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("amzn", "request")
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:      cfg,
		retry:    retry,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns (creating if needed) the rate limiter for a host. The
// Ads API throttles per account; 2 rps with a small burst stays well under it.
func (c *Client) limiterFor(host string) *rate.Limiter {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(2, 4)
		c.limiters[host] = l
	}
	return l
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached access token, refreshing via the LWA endpoint when
// missing or within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	if !c.cfg.Complete() {
		return "", ErrNoCredentials
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.cfg.RefreshToken},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}

	tok, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (tokenResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
			strings.NewReader(form.Encode()))
		if err != nil {
			return tokenResponse{}, eris.Wrap(err, "amzn: build token request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return tokenResponse{}, eris.Wrap(err, "amzn: token request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return tokenResponse{}, eris.Wrap(err, "amzn: read token response")
		}
		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("amzn: token exchange failed: status %d: %s", resp.StatusCode, truncate(body, 300))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return tokenResponse{}, resilience.NewTransientError(err, resp.StatusCode)
			}
			return tokenResponse{}, err
		}

		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return tokenResponse{}, eris.Wrap(err, "amzn: decode token response")
		}
		if tr.AccessToken == "" {
			return tokenResponse{}, eris.New("amzn: token response missing access_token")
		}
		return tr, nil
	})
	if err != nil {
		return "", err
	}

	c.accessToken = tok.AccessToken
	expires := tok.ExpiresIn
	if expires <= 0 {
		expires = 3600
	}
	c.tokenExpiry = time.Now().Add(time.Duration(expires) * time.Second)
	zap.L().Debug("refreshed ads api access token",
		zap.Time("expires_at", c.tokenExpiry))
	return c.accessToken, nil
}

// APIError is a non-2xx Ads API response. Transient statuses are additionally
// wrapped as resilience.TransientError so the retry layer picks them up.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("amzn: api status %d: %s", e.StatusCode, e.Body)
}

// do sends one API request relative to the configured base URL and returns
// the response body. mediaType sets both Content-Type and Accept; pass
// MediaJSON for unversioned endpoints. Transient failures are retried.
func (c *Client) do(ctx context.Context, method, path, mediaType string, payload any) ([]byte, int, error) {
	accessToken, err := c.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	var bodyBytes []byte
	if payload != nil {
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "amzn: marshal %s %s", method, path)
		}
	}

	endpoint := strings.TrimRight(c.cfg.APIBaseURL, "/") + path
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "amzn: parse url %s", endpoint)
	}

	type result struct {
		body   []byte
		status int
	}
	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (result, error) {
		if err := c.limiterFor(u.Host).Wait(ctx); err != nil {
			return result{}, eris.Wrap(err, "amzn: rate limit wait")
		}

		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return result{}, eris.Wrapf(err, "amzn: build %s %s", method, path)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Amazon-Advertising-API-ClientId", c.cfg.ClientID)
		req.Header.Set("Amazon-Advertising-API-Scope", c.cfg.ProfileID)
		req.Header.Set("Content-Type", mediaType)
		req.Header.Set("Accept", mediaType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return result{}, eris.Wrapf(err, "amzn: %s %s", method, path)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return result{}, eris.Wrapf(err, "amzn: read %s %s response", method, path)
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: truncate(respBody, 500)}
			return result{}, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return result{body: respBody, status: resp.StatusCode}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.body, res.status, nil
}

// Post sends a POST request and returns the body and status. 4xx/2xx are both
// returned to the caller, which handles schema-adaptive rejections itself.
func (c *Client) Post(ctx context.Context, path, mediaType string, payload any) ([]byte, int, error) {
	return c.do(ctx, http.MethodPost, path, mediaType, payload)
}

// Put sends a PUT request and returns the body and status.
func (c *Client) Put(ctx context.Context, path, mediaType string, payload any) ([]byte, int, error) {
	return c.do(ctx, http.MethodPut, path, mediaType, payload)
}

// Get sends a GET request and returns the body and status.
func (c *Client) Get(ctx context.Context, path, mediaType string) ([]byte, int, error) {
	return c.do(ctx, http.MethodGet, path, mediaType, nil)
}

// Download fetches an absolute URL (a report's S3 link) without the Ads API
// auth headers.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "amzn: build download request")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "amzn: download")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("amzn: download status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return io.ReadAll(io.LimitReader(resp.Body, 256<<20))
	})
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
