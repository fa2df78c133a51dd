package aggregate

import (
	"testing"
	"time"

	"github.com/ortelius/vulnprio/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vuln(score *float64, product string) model.Vulnerability {
	return model.Vulnerability{PriorityScore: score, Product: product}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	items := []model.Vulnerability{
		vuln(model.Float(95), "A"),
		vuln(model.Float(90), "A"),
		vuln(model.Float(89.9), "B"),
		vuln(model.Float(70), "B"),
		vuln(model.Float(69.9), ""),
		vuln(nil, ""),
	}

	s := Summarize(items)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Critical)
	assert.Equal(t, 2, s.High)
	assert.InDelta(t, (95+90+89.9+70+69.9)/6, s.MeanScore, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.AggregateSummary{}, Summarize([]model.Vulnerability{}))
	assert.Equal(t, model.AggregateSummary{}, Summarize[model.Asset](nil))
}

func TestSummarizeAssets(t *testing.T) {
	t.Parallel()

	s := Summarize([]model.Asset{
		{Name: "a", PriorityScore: model.Float(92)},
		{Name: "b", PriorityScore: model.Float(8)},
	})
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Critical)
	assert.InDelta(t, 50.0, s.MeanScore, 1e-9)
}

func TestGroupByProduct(t *testing.T) {
	t.Parallel()

	got := GroupByProduct([]model.Vulnerability{
		vuln(model.Float(80), "Web"),
		vuln(model.Float(40), "Web"),
		vuln(model.Float(10), "Api"),
		vuln(model.Float(99), ""),
		vuln(model.Float(99), "   "),
		vuln(nil, "Api"),
	})

	require.Len(t, got, 2)
	assert.Equal(t, "Api", got[0].Product)
	assert.Equal(t, 2, got[0].Count)
	assert.InDelta(t, 5.0, got[0].AverageScore, 1e-9)
	assert.Equal(t, "Web", got[1].Product)
	assert.Equal(t, 2, got[1].Count)
	assert.InDelta(t, 60.0, got[1].AverageScore, 1e-9)
}

func TestGroupByProductWithoutLabels(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GroupByProduct([]model.Vulnerability{}))
	assert.Empty(t, GroupByProduct([]model.Vulnerability{vuln(model.Float(50), ""), vuln(nil, "")}))
}

func TestBucketBoundaries(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.BucketHigh, Bucket(100))
	assert.Equal(t, model.BucketHigh, Bucket(70.0001))
	assert.Equal(t, model.BucketMedium, Bucket(70))
	assert.Equal(t, model.BucketMedium, Bucket(40.5))
	assert.Equal(t, model.BucketLow, Bucket(40))
	assert.Equal(t, model.BucketLow, Bucket(0))
}

func TestSeverityBuckets(t *testing.T) {
	t.Parallel()

	got := SeverityBuckets([]model.Vulnerability{
		vuln(model.Float(71), ""),
		vuln(model.Float(70), ""),
		vuln(model.Float(41), ""),
		vuln(model.Float(40), ""),
		vuln(nil, ""),
	})
	assert.Equal(t, map[string]int{"High": 1, "Medium": 2, "Low": 2}, got)
}

func TestSeverityBucketsEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]int{"High": 0, "Medium": 0, "Low": 0}, SeverityBuckets([]model.Asset{}))
}

func TestDailyCounts(t *testing.T) {
	t.Parallel()

	day := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }
	mk := func(sev model.Severity, at time.Time) model.Vulnerability {
		return model.Vulnerability{Finding: model.Finding{Severity: sev, CreatedAt: at}}
	}

	vulns := []model.Vulnerability{
		mk(model.SeverityCritical, day(2, 10)),
		mk(model.SeverityCritical, day(1, 23)),
		mk(model.SeverityCritical, day(2, 1)),
		mk(model.SeverityLow, day(1, 5)),
		mk(model.SeverityCritical, time.Time{}),
	}

	got := DailyCounts(vulns, model.SeverityCritical)
	require.Len(t, got, 2)
	assert.Equal(t, day(1, 0), got[0].Date)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, day(2, 0), got[1].Date)
	assert.Equal(t, 2, got[1].Count)

	all := DailyCounts(vulns, "")
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Count)

	assert.Empty(t, DailyCounts(nil, ""))
}
