package store

import (
	"context"

	"github.com/hnv-commerce/adpilot/internal/model"
)

// Store defines the persistence interface shared by the sync scheduler, the
// rule engine and the read-only dashboard API. Every write is an upsert on a
// natural key so re-running any pass after a crash reproduces the same end
// state.
type Store interface {
	// Performance facts
	UpsertCampaignFacts(ctx context.Context, facts []model.CampaignFact) error
	UpsertProductFacts(ctx context.Context, facts []model.ProductFact) error
	CampaignFactDates(ctx context.Context, adType model.AdType, start, end string) (map[string]bool, error)
	ProductFactDates(ctx context.Context, start, end string) (map[string]bool, error)
	LatestCampaignFactDate(ctx context.Context) (string, error)
	LatestProductFactDate(ctx context.Context) (string, error)
	CampaignPerformance(ctx context.Context, start, end string) ([]model.CampaignPerformance, error)
	ProductPerformance(ctx context.Context, start, end string) ([]model.ProductPerformance, error)
	TrendByDate(ctx context.Context, start, end string) ([]model.TrendPoint, error)

	// Entity settings
	UpsertCampaignSettings(ctx context.Context, campaigns []model.CampaignSettings) error
	UpsertAdGroups(ctx context.Context, groups []model.AdGroupSettings) error
	UpsertProductAds(ctx context.Context, ads []model.ProductAd) error
	AdGroups(ctx context.Context) ([]model.AdGroupSettings, error)
	ProductAds(ctx context.Context) ([]model.ProductAd, error)
	ProductSettingsList(ctx context.Context) ([]model.ProductSettings, error)
	SaveProductSettings(ctx context.Context, settings []model.ProductSettings) error

	// Negative keywords
	SaveNegativeKeywords(ctx context.Context, records []model.NegativeKeywordRecord) error
	UpdateNegativeKeywordStatus(ctx context.Context, records []model.NegativeKeywordRecord, status model.NegativeStatus) error
	NegativeKeywords(ctx context.Context, source string) ([]model.NegativeKeywordRecord, error)

	// Audit log
	AppendAutomationLog(ctx context.Context, entries []model.AutomationLogEntry) error
	AutomationLogs(ctx context.Context, limit int) ([]model.AutomationLogEntry, error)

	// System state
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
	SetSyncStatus(ctx context.Context, status, detail string, days int) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
