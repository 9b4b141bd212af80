package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAllowedColumns(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "parenthesized",
			body: `{"detail":"configuration columns includes invalid values. Allowed values: (date, campaignId, cost, sales14d)"}`,
			want: []string{"date", "campaignId", "cost", "sales14d"},
		},
		{
			name: "bracketed",
			body: `Allowed values: [date, "campaignId", 'spend']`,
			want: []string{"date", "campaignId", "spend"},
		},
		{
			name: "trailing text",
			body: `columns includes invalid values. Allowed values: date, advertisedAsin, purchases7d`,
			want: []string{"date", "advertisedAsin", "purchases7d"},
		},
		{
			name: "no match",
			body: `{"detail":"something else entirely"}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAllowedColumns(tt.body))
		})
	}
}

func TestResolveColumns(t *testing.T) {
	allowed := []string{"date", "campaignId", "campaignName", "spend", "attributedSales14d", "purchases7d", "clicks"}
	requested := []string{"date", "campaignId", "cost", "sales7d", "orders", "clicks"}
	identity := []string{"date", "campaignId", "campaignName"}

	got := resolveColumns(requested, identity, allowed)

	// Requested survivors first, then missing identity columns, then the
	// first allowed candidate per metric.
	assert.Equal(t, []string{"date", "campaignId", "clicks", "campaignName", "spend", "attributedSales14d", "purchases7d"}, got)
}

func TestResolveColumns_NoUsableColumns(t *testing.T) {
	got := resolveColumns([]string{"cost"}, []string{"date"}, []string{"somethingElse"})
	assert.Empty(t, got)
}

func TestResolveColumns_Dedupes(t *testing.T) {
	got := resolveColumns([]string{"date", "date", "cost"}, []string{"date"}, []string{"date", "cost"})
	assert.Equal(t, []string{"date", "cost"}, got)
}

func TestMetricValue(t *testing.T) {
	row := Row{"sales7d": 12.5, "clicks": float64(8), "nullMetric": nil}

	assert.InDelta(t, 12.5, MetricValue(row, SalesKeys), 1e-9)
	// Exact key missing, lowercased fallback absent too.
	assert.Zero(t, MetricValue(row, []string{"purchases7d"}))
	// Null values are skipped, defaulting to 0.
	assert.Zero(t, MetricValue(row, []string{"nullMetric"}))
	// Lowercase fallback.
	assert.InDelta(t, 8, MetricValue(row, []string{"CLICKS", "clicks"}), 1e-9)
}

func TestStringValue(t *testing.T) {
	row := Row{"campaignId": float64(123456789), "searchTerm": "wireless charger", "empty": ""}

	assert.Equal(t, "wireless charger", StringValue(row, []string{"searchTerm"}))
	assert.Equal(t, "123456789", StringValue(row, []string{"campaignId"}))
	assert.Equal(t, "", StringValue(row, []string{"empty", "missing"}))
}
