// Package aggregate derives dashboard statistics from a collection of scored items.
// Every function is pure and total over empty input.
package aggregate

import (
	"sort"
	"time"

	"github.com/ortelius/vulnprio/model"
)

// Score thresholds of the summary counters.
const (
	CriticalThreshold = 90.0
	HighThreshold     = 70.0
)

// Bucket thresholds of the risk distribution. Both are exclusive lower bounds.
const (
	HighBucketAbove   = 70.0
	MediumBucketAbove = 40.0
)

// Scored is implemented by model.Asset and model.Vulnerability.
type Scored interface {
	PriorityValue() (float64, bool)
	ProductLabel() string
}

// value returns the item's score, 0 when it has none.
func value[T Scored](item T) float64 {
	v, _ := item.PriorityValue()
	return v
}

// Summarize counts the items, the critical (>= 90) and high (>= 70, < 90) ones,
// and the mean score. Items without a score count as 0 in the mean.
func Summarize[T Scored](items []T) model.AggregateSummary {
	var s model.AggregateSummary
	if len(items) == 0 {
		return s
	}

	var sum float64
	for _, item := range items {
		v, ok := item.PriorityValue()
		if ok {
			switch {
			case v >= CriticalThreshold:
				s.Critical++
			case v >= HighThreshold:
				s.High++
			}
		}
		sum += v
	}
	s.Total = len(items)
	s.MeanScore = sum / float64(len(items))
	return s
}

// GroupByProduct averages the score per product label. Items without a label are
// left out entirely, they do not count in any average. The result is sorted by product.
func GroupByProduct[T Scored](items []T) []model.ProductScore {
	type acc struct {
		sum   float64
		count int
	}
	groups := make(map[string]*acc)
	for _, item := range items {
		label := item.ProductLabel()
		if label == "" {
			continue
		}
		g, ok := groups[label]
		if !ok {
			g = &acc{}
			groups[label] = g
		}
		g.sum += value(item)
		g.count++
	}

	out := make([]model.ProductScore, 0, len(groups))
	for product, g := range groups {
		out = append(out, model.ProductScore{
			Product:      product,
			AverageScore: g.sum / float64(g.count),
			Count:        g.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Product < out[j].Product
	})
	return out
}

// Bucket returns the risk distribution label of a score:
// above 70 is High, above 40 is Medium, anything else is Low.
func Bucket(score float64) string {
	switch {
	case score > HighBucketAbove:
		return model.BucketHigh
	case score > MediumBucketAbove:
		return model.BucketMedium
	default:
		return model.BucketLow
	}
}

// SeverityBuckets counts items per risk distribution label. All labels are
// present in the result. Items without a score fall into Low.
func SeverityBuckets[T Scored](items []T) map[string]int {
	out := make(map[string]int, len(model.BucketLabels))
	for _, label := range model.BucketLabels {
		out[label] = 0
	}
	for _, item := range items {
		out[Bucket(value(item))]++
	}
	return out
}

// DailyCounts counts vulnerabilities per UTC creation day, oldest first.
// An empty severity counts every vulnerability. Vulnerabilities without a
// creation date are skipped.
func DailyCounts(vulns []model.Vulnerability, severity model.Severity) []model.DailyCount {
	counts := make(map[time.Time]int)
	for _, v := range vulns {
		if v.CreatedAt.IsZero() {
			continue
		}
		if severity != "" && v.Severity != severity {
			continue
		}
		y, m, d := v.CreatedAt.UTC().Date()
		counts[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)]++
	}

	out := make([]model.DailyCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, model.DailyCount{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
