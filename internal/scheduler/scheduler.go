package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hnv-commerce/adpilot/internal/amzn"
	"github.com/hnv-commerce/adpilot/internal/config"
	"github.com/hnv-commerce/adpilot/internal/model"
	"github.com/hnv-commerce/adpilot/internal/report"
	"github.com/hnv-commerce/adpilot/internal/store"
)

// Run statuses persisted in system state.
const (
	StatusOK       = "ok"
	StatusPartial  = "partial"
	StatusNoConfig = "no_config"
	StatusBusy     = "busy"
	StatusRunning  = "running"
)

// AdsAPI is the transport surface the scheduler needs. *amzn.Client
// satisfies it.
type AdsAPI interface {
	report.API
	ListCampaigns(ctx context.Context, adProduct string) ([]amzn.Campaign, error)
	ListAdGroups(ctx context.Context) ([]amzn.AdGroup, error)
	ListProductAds(ctx context.Context) ([]amzn.ProductAd, error)
}

// Scheduler pulls settings and daily performance facts into the store. A
// single Scheduler serializes its runs; concurrent triggers get StatusBusy.
type Scheduler struct {
	store store.Store
	api   AdsAPI
	cfg   config.SyncConfig
	creds config.AmazonConfig
	now   func() time.Time
	mu    sync.Mutex
}

// New creates a Scheduler.
func New(st store.Store, api AdsAPI, cfg config.SyncConfig, creds config.AmazonConfig) *Scheduler {
	return &Scheduler{store: st, api: api, cfg: cfg, creds: creds, now: time.Now}
}

// Result summarizes one sync run.
type Result struct {
	Status string
	Days   int
	Detail string
}

// Run executes one sync pass. days <= 0 selects the window automatically
// from the store's freshness. The returned error is reserved for
// infrastructure failures; per-date report errors degrade the status to
// partial instead.
func (s *Scheduler) Run(ctx context.Context, days int) (Result, error) {
	if !s.mu.TryLock() {
		zap.L().Warn("sync already running, skipping trigger")
		return Result{Status: StatusBusy}, nil
	}
	defer s.mu.Unlock()

	if !s.creds.Complete() {
		if err := s.store.SetSyncStatus(ctx, StatusNoConfig, "amazon credentials not configured", 0); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusNoConfig}, nil
	}

	if days <= 0 {
		auto, err := s.autoSyncDays(ctx)
		if err != nil {
			return Result{}, err
		}
		days = auto
	}
	if days > s.cfg.MaxDays {
		days = s.cfg.MaxDays
	}

	if err := s.store.SetSyncStatus(ctx, StatusRunning, "", days); err != nil {
		return Result{}, err
	}

	start := s.now()
	zap.L().Info("sync starting", zap.Int("days", days))

	var errs []string
	record := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	// Settings before facts: the rule engine joins facts against the entity
	// tables, so listings must never lag the metrics.
	record(s.syncSettings(ctx))

	dates, err := s.syncDates(ctx, days)
	if err != nil {
		return Result{}, err
	}

	var dateMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	workers := s.cfg.ReportWorkers
	if workers <= 0 {
		workers = 3
	}
	g.SetLimit(workers)

	for _, date := range dates {
		g.Go(func() error {
			if err := s.syncDate(gctx, date); err != nil {
				zap.L().Warn("date sync failed", zap.String("date", date), zap.Error(err))
				dateMu.Lock()
				errs = append(errs, date+": "+err.Error())
				dateMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Status: StatusOK, Days: days}
	if len(errs) > 0 {
		result.Status = StatusPartial
		result.Detail = errs[0]
	}
	if err := s.store.SetSyncStatus(ctx, result.Status, result.Detail, days); err != nil {
		return Result{}, err
	}
	if result.Status == StatusOK {
		if err := s.store.SetState(ctx, model.KeyAutoSyncTS, strconv.FormatInt(s.now().Unix(), 10)); err != nil {
			return Result{}, err
		}
	}

	zap.L().Info("sync finished",
		zap.String("status", result.Status),
		zap.Int("dates", len(dates)),
		zap.Duration("elapsed", s.now().Sub(start)))
	return result, nil
}

// syncSettings refreshes campaigns across all three ad products, SP ad
// groups and SP product ads.
func (s *Scheduler) syncSettings(ctx context.Context) error {
	adTypes := map[string]model.AdType{
		"sp": model.AdTypeSP,
		"sb": model.AdTypeSB,
		"sd": model.AdTypeSD,
	}

	var campaigns []model.CampaignSettings
	for _, adProduct := range []string{"sp", "sb", "sd"} {
		listed, err := s.api.ListCampaigns(ctx, adProduct)
		if err != nil {
			return eris.Wrapf(err, "scheduler: list %s campaigns", adProduct)
		}
		adType := adTypes[adProduct]
		for _, c := range listed {
			budgetType := c.Budget.BudgetType
			if budgetType == "" {
				budgetType = "DAILY"
			}
			campaigns = append(campaigns, model.CampaignSettings{
				CampaignID: c.CampaignID,
				Name:       c.Name,
				AdType:     adType,
				BudgetType: budgetType,
				Budget:     c.Budget.Budget,
				Status:     c.State,
			})
		}
	}
	if err := s.store.UpsertCampaignSettings(ctx, campaigns); err != nil {
		return err
	}

	adGroups, err := s.api.ListAdGroups(ctx)
	if err != nil {
		return eris.Wrap(err, "scheduler: list ad groups")
	}
	groups := make([]model.AdGroupSettings, 0, len(adGroups))
	for _, g := range adGroups {
		groups = append(groups, model.AdGroupSettings{
			AdGroupID:  g.AdGroupID,
			CampaignID: g.CampaignID,
			Name:       g.Name,
			DefaultBid: g.DefaultBid,
			State:      g.State,
		})
	}
	if err := s.store.UpsertAdGroups(ctx, groups); err != nil {
		return err
	}

	productAds, err := s.api.ListProductAds(ctx)
	if err != nil {
		return eris.Wrap(err, "scheduler: list product ads")
	}
	ads := make([]model.ProductAd, 0, len(productAds))
	for _, a := range productAds {
		ads = append(ads, model.ProductAd{
			AdID:           a.AdID,
			CampaignID:     a.CampaignID,
			AdGroupID:      a.AdGroupID,
			ASIN:           a.ASIN,
			SKU:            a.SKU,
			State:          a.State,
			ServingStatus:  a.ExtendedData.ServingStatus,
			CreationDate:   a.CreationDate,
			LastUpdateDate: a.LastUpdateDate,
		})
	}
	return s.store.UpsertProductAds(ctx, ads)
}

// syncDate pulls every report for one day. Campaign reports for the three
// ad products, then the ASIN report.
func (s *Scheduler) syncDate(ctx context.Context, date string) error {
	for _, spec := range campaignReports {
		if err := s.syncCampaignFacts(ctx, date, spec); err != nil {
			return eris.Wrapf(err, "scheduler: %s report", spec.reportTypeID)
		}
	}
	if err := s.syncProductFacts(ctx, date); err != nil {
		return eris.Wrap(err, "scheduler: spAdvertisedProduct report")
	}
	return nil
}

// Watch runs sync passes on a fixed interval until ctx is cancelled. The
// first pass fires immediately.
func (s *Scheduler) Watch(ctx context.Context) error {
	interval := time.Duration(s.cfg.IntervalSecs) * time.Second
	if interval <= 0 {
		interval = 3 * time.Hour
	}

	for {
		if _, err := s.Run(ctx, 0); err != nil {
			zap.L().Error("scheduled sync failed", zap.Error(err))
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
