// Package model - API types for requests and responses of the HTTP service
package model

// Response is the generic result of POST operations
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PageResponse is the pagination envelope returned by the vulnerability list endpoint
type PageResponse struct {
	Items      []Vulnerability `json:"items"`
	Total      int             `json:"total"`
	Pages      int             `json:"pages"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	HasNext    bool            `json:"has_next"`
	HasPrev    bool            `json:"has_prev"`
	OutOfRange bool            `json:"out_of_range"`
}

// NewPageResponse wraps a Page in the response envelope.
func NewPageResponse(p Page) PageResponse {
	items := p.Items
	if items == nil {
		items = []Vulnerability{}
	}
	return PageResponse{
		Items:      items,
		Total:      p.TotalCount,
		Pages:      p.TotalPages,
		Page:       p.Page,
		PageSize:   p.PageSize,
		HasNext:    p.HasNext(),
		HasPrev:    p.HasPrev(),
		OutOfRange: p.OutOfRange,
	}
}

// SummaryResponse bundles the dashboard aggregates of the current snapshot
type SummaryResponse struct {
	SnapshotID       string           `json:"snapshot_id"`
	Summary          AggregateSummary `json:"summary"`
	ProductScores    []ProductScore   `json:"product_scores"`
	RiskDistribution map[string]int   `json:"risk_distribution"`
	Warnings         int              `json:"warnings"`

	AssetSummary          AggregateSummary `json:"asset_summary"`
	AssetProductScores    []ProductScore   `json:"asset_product_scores"`
	AssetRiskDistribution map[string]int   `json:"asset_risk_distribution"`
}

// AssetPageResponse is the pagination envelope returned by the asset list endpoint
type AssetPageResponse struct {
	Items      []Asset `json:"items"`
	Total      int     `json:"total"`
	Pages      int     `json:"pages"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	HasNext    bool    `json:"has_next"`
	HasPrev    bool    `json:"has_prev"`
	OutOfRange bool    `json:"out_of_range"`
}

// NewAssetPageResponse wraps an AssetPage in the response envelope.
func NewAssetPageResponse(p AssetPage) AssetPageResponse {
	items := p.Items
	if items == nil {
		items = []Asset{}
	}
	return AssetPageResponse{
		Items:      items,
		Total:      p.TotalCount,
		Pages:      p.TotalPages,
		Page:       p.Page,
		PageSize:   p.PageSize,
		HasNext:    p.Page < p.TotalPages,
		HasPrev:    p.Page > 1 && p.TotalPages > 0,
		OutOfRange: p.OutOfRange,
	}
}

// AssetDetailResponse is one asset with a page of the findings correlated to it
type AssetDetailResponse struct {
	Asset           Asset        `json:"asset"`
	Vulnerabilities PageResponse `json:"vulnerabilities"`
}

// IngestResponse is returned by the ingestion endpoint
type IngestResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Warnings        []Warning       `json:"warnings,omitempty"`
}
