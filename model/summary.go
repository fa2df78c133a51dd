package model

import "time"

// AggregateSummary holds the dashboard counters over a collection.
// It is always derived from its source collection and never stored.
type AggregateSummary struct {
	Total     int     `json:"total"`
	Critical  int     `json:"critical"`
	High      int     `json:"high"`
	MeanScore float64 `json:"mean_score"`
}

// ProductScore is the average priority score of the items sharing a product label.
type ProductScore struct {
	Product      string  `json:"product"`
	AverageScore float64 `json:"average_score"`
	Count        int     `json:"count"`
}

// Risk distribution bucket labels.
const (
	BucketHigh   = "High"
	BucketMedium = "Medium"
	BucketLow    = "Low"
)

// BucketLabels lists the risk distribution labels from most to least severe.
var BucketLabels = []string{BucketHigh, BucketMedium, BucketLow}

// DailyCount is the number of findings created on one calendar day.
type DailyCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// Page is one page of a sorted, filtered collection of vulnerabilities.
type Page struct {
	Items      []Vulnerability `json:"items"`
	TotalCount int             `json:"total"`
	TotalPages int             `json:"pages"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	OutOfRange bool            `json:"out_of_range"`
}

// HasNext reports whether a page follows this one.
func (p Page) HasNext() bool {
	return p.Page < p.TotalPages
}

// HasPrev reports whether a page precedes this one.
func (p Page) HasPrev() bool {
	return p.Page > 1 && p.TotalPages > 0
}

// AssetPage is one page of the asset list.
type AssetPage struct {
	Items      []Asset `json:"items"`
	TotalCount int     `json:"total"`
	TotalPages int     `json:"pages"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	OutOfRange bool    `json:"out_of_range"`
}
