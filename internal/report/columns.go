package report

import (
	"regexp"
	"strings"
)

// Candidate spellings per logical metric, best first. The reporting API
// renames attribution-window columns across versions and ad products, so
// resolution always works from these priority lists.
var (
	SalesKeys = []string{
		"sales7d", "sales14d", "sales1d", "sales30d", "sales",
		"attributedSales14d", "attributedSales7d", "attributedSales1d",
		"attributedSales14dSameSKU", "attributedSales30d",
	}
	OrdersKeys = []string{
		"purchases7d", "purchases14d", "purchases1d", "orders",
		"attributedConversions14d", "attributedConversions7d",
		"attributedConversions1d", "attributedConversions14dSameSKU",
		"attributedUnitsOrdered14d",
	}
	CostKeys = []string{"cost", "spend"}
)

var (
	allowedParenRe   = regexp.MustCompile(`[Aa]llowed values:?\s*\(([^)]*)\)`)
	allowedBracketRe = regexp.MustCompile(`[Aa]llowed values:?\s*\[([^\]]*)\]`)
	allowedTrailRe   = regexp.MustCompile(`[Aa]llowed values:?\s*([A-Za-z0-9_,\s]+)`)
)

// parseAllowedColumns extracts the allowed column set from a 400 body. The
// API has shipped at least three phrasings of the same message.
func parseAllowedColumns(body string) []string {
	var inner string
	if m := allowedParenRe.FindStringSubmatch(body); m != nil {
		inner = m[1]
	} else if m := allowedBracketRe.FindStringSubmatch(body); m != nil {
		inner = m[1]
	} else if m := allowedTrailRe.FindStringSubmatch(body); m != nil {
		inner = m[1]
	} else {
		return nil
	}

	var out []string
	for _, part := range strings.Split(inner, ",") {
		col := strings.Trim(strings.TrimSpace(part), `"'`)
		if col != "" {
			out = append(out, col)
		}
	}
	return out
}

// resolveColumns rebuilds a column list against the allowed set: the
// requested columns that survive, the identity columns the caller cannot do
// without, and the first allowed candidate for each metric.
func resolveColumns(requested, identity, allowed []string) []string {
	allowedSet := make(map[string]bool, len(allowed))
	for _, col := range allowed {
		allowedSet[col] = true
	}

	seen := make(map[string]bool)
	var out []string
	add := func(col string) {
		if col != "" && allowedSet[col] && !seen[col] {
			seen[col] = true
			out = append(out, col)
		}
	}

	for _, col := range requested {
		add(col)
	}
	for _, col := range identity {
		add(col)
	}
	for _, keys := range [][]string{CostKeys, SalesKeys, OrdersKeys} {
		for _, col := range keys {
			if allowedSet[col] {
				add(col)
				break
			}
		}
	}
	return out
}
