package autopilot

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hnv-commerce/adpilot/internal/model"
)

// Platform constraints on sponsored-product bids.
const (
	MinBid = 0.02
	// Placement adjustments are percentages in [0, 900].
	maxPlacementPct = 900
)

// Decision is the per-unit action chosen by the rule ladder.
type Decision string

const (
	DecisionHalt   Decision = "halt"
	DecisionReduce Decision = "reduce"
	DecisionExpand Decision = "expand"
	DecisionKeep   Decision = "keep"
)

// Thresholds are the account-wide fallbacks. TargetACOS and StopLoss are
// percentages, MaxBid is dollars.
type Thresholds struct {
	TargetACOS float64
	MaxBid     float64
	StopLoss   float64
}

// Unit is one managed product: an ASIN, optionally split by SKU, with its
// settings and trailing seven-day performance.
type Unit struct {
	ASIN    string
	SKU     string
	Starred bool

	TargetACOS  float64 // percent, 0 means fall back to the account default
	DailyBudget float64
	BudgetFlex  float64

	Perf model.Performance

	Decision Decision
	Factor   float64
	Reason   string
}

// Key returns the map key for rule lookup.
func (u *Unit) Key() string {
	return unitKey(u.ASIN, u.SKU)
}

func unitKey(asin, sku string) string {
	return asin + "|" + sku
}

// Subject renders the audit-log subject for the unit.
func (u *Unit) Subject() string {
	if u.SKU != "" {
		return u.ASIN + ":" + u.SKU
	}
	return u.ASIN
}

// decide runs the rule ladder and the independent budget-pressure check,
// filling Decision, Factor and Reason.
func decide(u *Unit, th Thresholds) {
	target := u.TargetACOS
	if target <= 0 {
		target = th.TargetACOS
	}
	targetFrac := target / 100
	stopLoss := th.StopLoss
	if u.Starred {
		targetFrac *= 1.5
		stopLoss *= 2
	}

	acos := u.Perf.ACOS()
	u.Decision = DecisionKeep
	u.Factor = 1.0

	switch {
	case u.Perf.Cost > stopLoss && u.Perf.Sales == 0:
		u.Decision = DecisionHalt
		u.Reason = fmt.Sprintf("stop-loss: $%.2f spent with no sales", u.Perf.Cost)

	case u.Perf.Sales > 0 && acos > targetFrac:
		u.Decision = DecisionReduce
		u.Factor = math.Max(targetFrac/acos, 0.8)
		u.Reason = fmt.Sprintf("acos %.1f%% above target %.1f%%", acos*100, targetFrac*100)

	case u.Perf.Sales > 0 && acos < targetFrac*expandMargin(u.Starred):
		u.Decision = DecisionExpand
		u.Factor = 1.1
		u.Reason = fmt.Sprintf("acos %.1f%% well under target %.1f%%", acos*100, targetFrac*100)

	default:
		u.Reason = "within target band"
	}

	// Budget pressure caps the factor independently of the ACOS ladder. An
	// expand decision never survives a breach.
	if u.DailyBudget > 0 {
		avg := u.Perf.Cost / 7
		limit := u.DailyBudget * (1 + u.BudgetFlex/100)
		if avg > limit {
			budgetFactor := math.Max(limit/avg, 0.5)
			if u.Decision == DecisionExpand || u.Decision == DecisionKeep {
				u.Decision = DecisionReduce
			}
			if budgetFactor < u.Factor {
				u.Factor = budgetFactor
			}
			u.Reason += fmt.Sprintf("; daily spend $%.2f over budget limit $%.2f", avg, limit)
		}
	}
}

// Starred units expand whenever they beat their (already boosted) target;
// regular units need a 20% margin.
func expandMargin(starred bool) float64 {
	if starred {
		return 1.0
	}
	return 0.8
}

// NewBid applies a factor to an existing bid within the platform bounds,
// rounded to cents. A zero second return means "suppress, change too small".
func NewBid(oldBid, factor, maxBid float64) (float64, bool) {
	if oldBid <= 0 {
		return 0, false
	}
	bid := oldBid * factor
	if bid < MinBid {
		bid = MinBid
	}
	if maxBid > 0 && bid > maxBid {
		bid = maxBid
	}
	bid = math.Round(bid*100) / 100
	if math.Abs(bid-oldBid) < 0.01 {
		return 0, false
	}
	return bid, true
}

// mapAdGroups attributes ad groups to units through their product ads. Only
// serving ads count. An ad group serving more than one distinct ASIN is
// ambiguous and dropped. With exactly one distinct SKU the (asin, sku) rule
// applies when it exists; otherwise the ASIN-level rule.
func mapAdGroups(ads []model.ProductAd, units map[string]*Unit) map[string]*Unit {
	type groupAds struct {
		asins map[string]bool
		skus  map[string]bool
	}
	groups := make(map[string]*groupAds)
	for _, ad := range ads {
		if !model.IsServingState(ad.State) || ad.ASIN == "" {
			continue
		}
		g, ok := groups[ad.AdGroupID]
		if !ok {
			g = &groupAds{asins: map[string]bool{}, skus: map[string]bool{}}
			groups[ad.AdGroupID] = g
		}
		g.asins[ad.ASIN] = true
		if ad.SKU != "" {
			g.skus[ad.SKU] = true
		}
	}

	mapped := make(map[string]*Unit)
	for adGroupID, g := range groups {
		if len(g.asins) != 1 {
			continue
		}
		var asin string
		for a := range g.asins {
			asin = a
		}

		if len(g.skus) == 1 {
			var sku string
			for s := range g.skus {
				sku = s
			}
			if u, ok := units[unitKey(asin, sku)]; ok {
				mapped[adGroupID] = u
				continue
			}
		}
		if u, ok := units[unitKey(asin, "")]; ok {
			mapped[adGroupID] = u
		}
	}
	return mapped
}

// buildUnits joins product settings with seven-day product performance.
// SKU-level settings consume the exact (asin, sku) aggregate; ASIN-level
// settings aggregate every SKU of the ASIN.
func buildUnits(settings []model.ProductSettings, perf []model.ProductPerformance) map[string]*Unit {
	byExact := make(map[string]model.Performance)
	byASIN := make(map[string]model.Performance)
	for _, p := range perf {
		agg := byExact[unitKey(p.ASIN, p.SKU)]
		addPerf(&agg, p.Performance)
		byExact[unitKey(p.ASIN, p.SKU)] = agg

		asinAgg := byASIN[p.ASIN]
		addPerf(&asinAgg, p.Performance)
		byASIN[p.ASIN] = asinAgg
	}

	units := make(map[string]*Unit)
	for _, s := range settings {
		if !s.AutoEnabled {
			continue
		}
		u := &Unit{
			ASIN:        s.ASIN,
			SKU:         s.SKU,
			Starred:     s.Starred,
			TargetACOS:  s.TargetACOS,
			DailyBudget: s.DailyBudget,
			BudgetFlex:  s.BudgetFlex,
		}
		if s.SKU != "" {
			u.Perf = byExact[unitKey(s.ASIN, s.SKU)]
		} else {
			u.Perf = byASIN[s.ASIN]
		}
		units[u.Key()] = u
	}
	return units
}

func addPerf(dst *model.Performance, src model.Performance) {
	dst.Cost += src.Cost
	dst.Sales += src.Sales
	dst.Clicks += src.Clicks
	dst.Impressions += src.Impressions
	dst.Orders += src.Orders
}

// sortedUnits returns units in a stable order for deterministic runs.
func sortedUnits(units map[string]*Unit) []*Unit {
	out := make([]*Unit, 0, len(units))
	for _, u := range units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].Key(), out[j].Key()) < 0
	})
	return out
}
