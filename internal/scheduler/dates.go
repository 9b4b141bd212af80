package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/hnv-commerce/adpilot/internal/model"
)

const dateLayout = "2006-01-02"

// autoSyncDays decides how far back an automatic sync should reach by
// comparing the newest campaign fact with yesterday. A fresh database gets
// the default window; a store that is already current still refreshes the
// last couple of days because attribution metrics keep moving.
func (s *Scheduler) autoSyncDays(ctx context.Context) (int, error) {
	latest, err := s.store.LatestCampaignFactDate(ctx)
	if err != nil {
		return 0, err
	}
	if latest == "" {
		return s.cfg.DefaultDays, nil
	}

	latestDay, err := time.ParseInLocation(dateLayout, latest, time.Local)
	if err != nil {
		return s.cfg.DefaultDays, nil
	}

	// Truncate works on UTC day boundaries, so rebuild yesterday at local
	// midnight to match the zone latestDay was parsed in. Rounding absorbs
	// the odd hour a DST transition adds or removes.
	y := s.now().AddDate(0, 0, -1)
	yesterday := time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, y.Location())
	gap := int(math.Round(yesterday.Sub(latestDay).Hours() / 24))
	if gap <= 0 {
		return s.cfg.RefreshDays, nil
	}
	if gap > s.cfg.DefaultDays {
		gap = s.cfg.DefaultDays
	}
	if gap > s.cfg.MaxDays {
		gap = s.cfg.MaxDays
	}
	return gap, nil
}

// syncDates expands a day count into the concrete dates to fetch: the
// requested window, plus any older day inside the lookback that is missing
// from either fact table (holes left by earlier partial runs).
func (s *Scheduler) syncDates(ctx context.Context, days int) ([]string, error) {
	lookback := days
	if lookback < s.cfg.DefaultDays {
		lookback = s.cfg.DefaultDays
	}
	if lookback > s.cfg.MaxDays {
		lookback = s.cfg.MaxDays
	}
	if lookback < 1 {
		lookback = 1
	}

	yesterday := s.now().AddDate(0, 0, -1)
	start := yesterday.AddDate(0, 0, -(lookback - 1)).Format(dateLayout)
	end := yesterday.Format(dateLayout)

	haveCampaign, err := s.store.CampaignFactDates(ctx, model.AdTypeSP, start, end)
	if err != nil {
		return nil, err
	}
	haveProduct, err := s.store.ProductFactDates(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var dates []string
	for i := 1; i <= lookback; i++ {
		date := yesterday.AddDate(0, 0, -(i - 1)).Format(dateLayout)
		if i <= days || !haveCampaign[date] || !haveProduct[date] {
			dates = append(dates, date)
		}
	}
	return dates, nil
}
