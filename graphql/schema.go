// Package graphql provides the GraphQL schema definition and resolvers
package graphql

import (
	"fmt"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/ortelius/vulnprio/aggregate"
	"github.com/ortelius/vulnprio/engine"
	"github.com/ortelius/vulnprio/model"
	"github.com/ortelius/vulnprio/view"
)

var (
	store       *engine.Store
	maxPageSize int
)

// InitStore sets the snapshot store read by all resolvers and the largest
// page size they accept. maxPage <= 0 leaves page sizes unbounded.
func InitStore(s *engine.Store, maxPage int) {
	store = s
	maxPageSize = maxPage
}

// SeverityType defines the GraphQL enum for vendor severity levels
var SeverityType = graphql.NewEnum(graphql.EnumConfig{
	Name: "Severity",
	Values: graphql.EnumValueConfigMap{
		"CRITICAL": &graphql.EnumValueConfig{Value: string(model.SeverityCritical)},
		"HIGH":     &graphql.EnumValueConfig{Value: string(model.SeverityHigh)},
		"MEDIUM":   &graphql.EnumValueConfig{Value: string(model.SeverityMedium)},
		"LOW":      &graphql.EnumValueConfig{Value: string(model.SeverityLow)},
		"UNKNOWN":  &graphql.EnumValueConfig{Value: string(model.SeverityUnknown)},
	},
})

// StatusType defines the GraphQL enum for workflow status
var StatusType = graphql.NewEnum(graphql.EnumConfig{
	Name: "Status",
	Values: graphql.EnumValueConfigMap{
		"NEW":       &graphql.EnumValueConfig{Value: string(model.StatusNew)},
		"ANALYZING": &graphql.EnumValueConfig{Value: string(model.StatusAnalyzing)},
		"RESOLVED":  &graphql.EnumValueConfig{Value: string(model.StatusResolved)},
		"DISMISSED": &graphql.EnumValueConfig{Value: string(model.StatusDismissed)},
	},
})

// AssetType defines the GraphQL object for a scored software asset
var AssetType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Asset",
	Fields: graphql.Fields{
		"name":                  &graphql.Field{Type: graphql.String},
		"version":               &graphql.Field{Type: graphql.String},
		"product":               &graphql.Field{Type: graphql.String},
		"priority_score":        &graphql.Field{Type: graphql.Float},
		"vulnerabilities_count": &graphql.Field{Type: graphql.Int},
	},
})

// CorrelationType defines the GraphQL object describing how a finding was matched to an asset
var CorrelationType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Correlation",
	Fields: graphql.Fields{
		"matched":    &graphql.Field{Type: graphql.Boolean},
		"strategy":   &graphql.Field{Type: graphql.String},
		"reason":     &graphql.Field{Type: graphql.String},
		"candidates": &graphql.Field{Type: graphql.Int},
		"asset":      &graphql.Field{Type: AssetType},
	},
})

// VulnerabilityType defines the GraphQL object for a prioritized finding
var VulnerabilityType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Vulnerability",
	Fields: graphql.Fields{
		"id":                        &graphql.Field{Type: graphql.String},
		"title":                     &graphql.Field{Type: graphql.String},
		"description":               &graphql.Field{Type: graphql.String},
		"component_name":            &graphql.Field{Type: graphql.String},
		"component_version":         &graphql.Field{Type: graphql.String},
		"severity":                  &graphql.Field{Type: SeverityType},
		"status":                    &graphql.Field{Type: StatusType},
		"cvss_score":                &graphql.Field{Type: graphql.Float},
		"epss_score":                &graphql.Field{Type: graphql.Float},
		"kev_status":                &graphql.Field{Type: graphql.Boolean},
		"priority_score":            &graphql.Field{Type: graphql.Float},
		"score_source":              &graphql.Field{Type: graphql.String},
		"product":                   &graphql.Field{Type: graphql.String},
		"asset_vulnerability_count": &graphql.Field{Type: graphql.Int},
		"created":                   &graphql.Field{Type: graphql.String},
		"last_reviewed_by":          &graphql.Field{Type: graphql.String},
		"package_name":              &graphql.Field{Type: graphql.String},
		"package_version":           &graphql.Field{Type: graphql.String},
		"correlation":               &graphql.Field{Type: CorrelationType},
	},
})

// VulnerabilityPageType defines the GraphQL object for one page of vulnerabilities
var VulnerabilityPageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "VulnerabilityPage",
	Fields: graphql.Fields{
		"items":        &graphql.Field{Type: graphql.NewList(VulnerabilityType)},
		"total":        &graphql.Field{Type: graphql.Int},
		"pages":        &graphql.Field{Type: graphql.Int},
		"page":         &graphql.Field{Type: graphql.Int},
		"page_size":    &graphql.Field{Type: graphql.Int},
		"has_next":     &graphql.Field{Type: graphql.Boolean},
		"has_prev":     &graphql.Field{Type: graphql.Boolean},
		"out_of_range": &graphql.Field{Type: graphql.Boolean},
	},
})

// AssetPageType defines the GraphQL object for one page of assets
var AssetPageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "AssetPage",
	Fields: graphql.Fields{
		"items":        &graphql.Field{Type: graphql.NewList(AssetType)},
		"total":        &graphql.Field{Type: graphql.Int},
		"pages":        &graphql.Field{Type: graphql.Int},
		"page":         &graphql.Field{Type: graphql.Int},
		"page_size":    &graphql.Field{Type: graphql.Int},
		"has_next":     &graphql.Field{Type: graphql.Boolean},
		"has_prev":     &graphql.Field{Type: graphql.Boolean},
		"out_of_range": &graphql.Field{Type: graphql.Boolean},
	},
})

// AssetDetailType defines the GraphQL object for an asset and the findings correlated to it
var AssetDetailType = graphql.NewObject(graphql.ObjectConfig{
	Name: "AssetDetail",
	Fields: graphql.Fields{
		"asset":           &graphql.Field{Type: AssetType},
		"vulnerabilities": &graphql.Field{Type: VulnerabilityPageType},
	},
})

// SummaryType defines the GraphQL object for the dashboard counters
var SummaryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Summary",
	Fields: graphql.Fields{
		"snapshot_id": &graphql.Field{Type: graphql.String},
		"taken_at":    &graphql.Field{Type: graphql.String},
		"total":       &graphql.Field{Type: graphql.Int},
		"critical":    &graphql.Field{Type: graphql.Int},
		"high":        &graphql.Field{Type: graphql.Int},
		"mean_score":  &graphql.Field{Type: graphql.Float},
		"warnings":    &graphql.Field{Type: graphql.Int},
	},
})

// ProductScoreType defines the GraphQL object for the average score of one product
var ProductScoreType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ProductScore",
	Fields: graphql.Fields{
		"product":       &graphql.Field{Type: graphql.String},
		"average_score": &graphql.Field{Type: graphql.Float},
		"count":         &graphql.Field{Type: graphql.Int},
	},
})

// RiskBucketType defines the GraphQL object for one bucket of the risk distribution
var RiskBucketType = graphql.NewObject(graphql.ObjectConfig{
	Name: "RiskBucket",
	Fields: graphql.Fields{
		"label": &graphql.Field{Type: graphql.String},
		"count": &graphql.Field{Type: graphql.Int},
	},
})

// AssetDashboardType defines the GraphQL object for the asset-level dashboard
var AssetDashboardType = graphql.NewObject(graphql.ObjectConfig{
	Name: "AssetDashboard",
	Fields: graphql.Fields{
		"total":             &graphql.Field{Type: graphql.Int},
		"critical":          &graphql.Field{Type: graphql.Int},
		"high":              &graphql.Field{Type: graphql.Int},
		"mean_score":        &graphql.Field{Type: graphql.Float},
		"product_scores":    &graphql.Field{Type: graphql.NewList(ProductScoreType)},
		"risk_distribution": &graphql.Field{Type: graphql.NewList(RiskBucketType)},
	},
})

// DailyCountType defines the GraphQL object for the findings created on one day
var DailyCountType = graphql.NewObject(graphql.ObjectConfig{
	Name: "DailyCount",
	Fields: graphql.Fields{
		"date":  &graphql.Field{Type: graphql.String},
		"count": &graphql.Field{Type: graphql.Int},
	},
})

func floatOrNil(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func assetToMap(a model.Asset) map[string]interface{} {
	return map[string]interface{}{
		"name":                  a.Name,
		"version":               a.Version,
		"product":               a.ProductLabel(),
		"priority_score":        floatOrNil(a.PriorityScore),
		"vulnerabilities_count": a.VulnerabilityCount,
	}
}

func vulnerabilityToMap(v model.Vulnerability) map[string]interface{} {
	correlation := map[string]interface{}{
		"matched":    v.Correlation.Matched,
		"strategy":   string(v.Correlation.Strategy),
		"reason":     string(v.Correlation.Reason),
		"candidates": v.Correlation.Candidates,
	}
	if v.Correlation.Asset != nil {
		correlation["asset"] = assetToMap(*v.Correlation.Asset)
	}

	created := ""
	if !v.CreatedAt.IsZero() {
		created = v.CreatedAt.UTC().Format(time.RFC3339)
	}

	return map[string]interface{}{
		"id":                        v.ID,
		"title":                     v.Title,
		"description":               v.Description,
		"component_name":            v.ComponentName,
		"component_version":         v.ComponentVersion,
		"severity":                  string(v.Severity),
		"status":                    string(v.Status),
		"cvss_score":                v.CVSSScore,
		"epss_score":                v.EPSSScore,
		"kev_status":                v.KEVListed,
		"priority_score":            floatOrNil(v.PriorityScore),
		"score_source":              string(v.ScoreSource),
		"product":                   v.ProductLabel(),
		"asset_vulnerability_count": v.AssetVulnerabilityCount,
		"created":                   created,
		"last_reviewed_by":          v.LastReviewedBy,
		"package_name":              v.PackageName,
		"package_version":           v.PackageVersion,
		"correlation":               correlation,
	}
}

func current() (*engine.Prepared, error) {
	if store == nil {
		return nil, engine.ErrNoSnapshot
	}
	return store.Current()
}

// checkPageSize applies the page size bound configured by InitStore.
func checkPageSize(size int) error {
	if maxPageSize > 0 && size > maxPageSize {
		return &view.ConfigurationError{Field: "page size", Value: fmt.Sprint(size), Reason: "exceeds the maximum page size"}
	}
	return nil
}

func queryFromArgs(args map[string]interface{}) (view.Query, error) {
	q := view.DefaultQuery()
	if v, ok := args["page"].(int); ok {
		q.Page = v
	}
	if v, ok := args["pageSize"].(int); ok {
		q.PageSize = v
	}
	if err := checkPageSize(q.PageSize); err != nil {
		return q, err
	}
	if v, ok := args["sortKey"].(string); ok {
		q.SortKey = view.SortKey(v)
	}
	if v, ok := args["sortDirection"].(string); ok {
		q.Direction = view.Direction(v)
	}
	if v, ok := args["search"].(string); ok {
		q.Filter.Search = v
	}
	if v, ok := args["severity"].(string); ok {
		q.Filter.Severity = model.Severity(v)
	}
	if v, ok := args["status"].(string); ok {
		q.Filter.Status = model.Status(v)
	}
	return q, nil
}

func resolveVulnerabilities(args map[string]interface{}) (map[string]interface{}, error) {
	q, err := queryFromArgs(args)
	if err != nil {
		return nil, err
	}
	p, err := current()
	if err != nil {
		return nil, err
	}
	page, err := p.View(q)
	if err != nil {
		return nil, err
	}
	return pageToMap(page), nil
}

func pageToMap(page model.Page) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(page.Items))
	for _, v := range page.Items {
		items = append(items, vulnerabilityToMap(v))
	}
	return map[string]interface{}{
		"items":        items,
		"total":        page.TotalCount,
		"pages":        page.TotalPages,
		"page":         page.Page,
		"page_size":    page.PageSize,
		"has_next":     page.HasNext(),
		"has_prev":     page.HasPrev(),
		"out_of_range": page.OutOfRange,
	}
}

func resolveSummary() (map[string]interface{}, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"snapshot_id": p.SnapshotID,
		"taken_at":    p.TakenAt.UTC().Format(time.RFC3339),
		"total":       p.Summary.Total,
		"critical":    p.Summary.Critical,
		"high":        p.Summary.High,
		"mean_score":  p.Summary.MeanScore,
		"warnings":    len(p.Warnings),
	}, nil
}

func resolveProductScores() ([]map[string]interface{}, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return productScoresToMaps(p.ProductScores), nil
}

func productScoresToMaps(scores []model.ProductScore) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(scores))
	for _, ps := range scores {
		out = append(out, map[string]interface{}{
			"product":       ps.Product,
			"average_score": ps.AverageScore,
			"count":         ps.Count,
		})
	}
	return out
}

func resolveRiskDistribution() ([]map[string]interface{}, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return bucketsToMaps(p.RiskDistribution), nil
}

// bucketsToMaps lists the buckets from most to least severe.
func bucketsToMaps(buckets map[string]int) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(model.BucketLabels))
	for _, label := range model.BucketLabels {
		out = append(out, map[string]interface{}{
			"label": label,
			"count": buckets[label],
		})
	}
	return out
}

func resolveAssetDashboard() (map[string]interface{}, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"total":             p.AssetSummary.Total,
		"critical":          p.AssetSummary.Critical,
		"high":              p.AssetSummary.High,
		"mean_score":        p.AssetSummary.MeanScore,
		"product_scores":    productScoresToMaps(p.AssetProductScores),
		"risk_distribution": bucketsToMaps(p.AssetRiskDistribution),
	}, nil
}

func resolveAssetPage(args map[string]interface{}) (map[string]interface{}, error) {
	q := view.AssetQuery{Page: 1, PageSize: view.DefaultPageSize}
	if v, ok := args["page"].(int); ok {
		q.Page = v
	}
	if v, ok := args["pageSize"].(int); ok {
		q.PageSize = v
	}
	if v, ok := args["sortDirection"].(string); ok {
		q.Direction = view.Direction(v)
	}
	if v, ok := args["search"].(string); ok {
		q.Search = v
	}
	if err := checkPageSize(q.PageSize); err != nil {
		return nil, err
	}

	p, err := current()
	if err != nil {
		return nil, err
	}
	page, err := p.AssetPage(q)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0, len(page.Items))
	for _, a := range page.Items {
		items = append(items, assetToMap(a))
	}
	return map[string]interface{}{
		"items":        items,
		"total":        page.TotalCount,
		"pages":        page.TotalPages,
		"page":         page.Page,
		"page_size":    page.PageSize,
		"has_next":     page.Page < page.TotalPages,
		"has_prev":     page.Page > 1 && page.TotalPages > 0,
		"out_of_range": page.OutOfRange,
	}, nil
}

// resolveAssetDetail returns nil when the asset does not exist.
func resolveAssetDetail(args map[string]interface{}) (interface{}, error) {
	name, _ := args["name"].(string)
	version, _ := args["version"].(string)
	q, err := queryFromArgs(args)
	if err != nil {
		return nil, err
	}

	p, err := current()
	if err != nil {
		return nil, err
	}
	asset, page, ok, err := p.AssetVulnerabilities(name, version, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return map[string]interface{}{
		"asset":           assetToMap(asset),
		"vulnerabilities": pageToMap(page),
	}, nil
}

func resolveAssets(limit int) ([]map[string]interface{}, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	assets := p.Assets()
	if limit > 0 && limit < len(assets) {
		assets = assets[:limit]
	}
	out := make([]map[string]interface{}, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetToMap(a))
	}
	return out, nil
}

func resolveDailyCounts(severity model.Severity) ([]map[string]interface{}, error) {
	p, err := current()
	if err != nil {
		return nil, err
	}
	counts := aggregate.DailyCounts(p.Vulnerabilities, severity)
	out := make([]map[string]interface{}, 0, len(counts))
	for _, c := range counts {
		out = append(out, map[string]interface{}{
			"date":  c.Date.Format("2006-01-02"),
			"count": c.Count,
		})
	}
	return out, nil
}

// CreateSchema creates and returns the GraphQL schema with all query types
func CreateSchema() (graphql.Schema, error) {
	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"vulnerabilities": &graphql.Field{
				Type: VulnerabilityPageType,
				Args: graphql.FieldConfigArgument{
					"page":          &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
					"pageSize":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: view.DefaultPageSize},
					"sortKey":       &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(view.SortPriority)},
					"sortDirection": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(view.Desc)},
					"search":        &graphql.ArgumentConfig{Type: graphql.String},
					"severity":      &graphql.ArgumentConfig{Type: SeverityType},
					"status":        &graphql.ArgumentConfig{Type: StatusType},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return resolveVulnerabilities(p.Args)
				},
			},
			"vulnerability": &graphql.Field{
				Type: VulnerabilityType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					prepared, err := current()
					if err != nil {
						return nil, err
					}
					v, ok := prepared.Find(id)
					if !ok {
						return nil, nil
					}
					return vulnerabilityToMap(v), nil
				},
			},
			"summary": &graphql.Field{
				Type: SummaryType,
				Resolve: func(_ graphql.ResolveParams) (interface{}, error) {
					return resolveSummary()
				},
			},
			"productScores": &graphql.Field{
				Type: graphql.NewList(ProductScoreType),
				Resolve: func(_ graphql.ResolveParams) (interface{}, error) {
					return resolveProductScores()
				},
			},
			"riskDistribution": &graphql.Field{
				Type: graphql.NewList(RiskBucketType),
				Resolve: func(_ graphql.ResolveParams) (interface{}, error) {
					return resolveRiskDistribution()
				},
			},
			"assets": &graphql.Field{
				Type: graphql.NewList(AssetType),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1000},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit := p.Args["limit"].(int)
					return resolveAssets(limit)
				},
			},
			"assetSummary": &graphql.Field{
				Type: AssetDashboardType,
				Resolve: func(_ graphql.ResolveParams) (interface{}, error) {
					return resolveAssetDashboard()
				},
			},
			"assetPage": &graphql.Field{
				Type: AssetPageType,
				Args: graphql.FieldConfigArgument{
					"page":          &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
					"pageSize":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: view.DefaultPageSize},
					"sortDirection": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(view.Desc)},
					"search":        &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return resolveAssetPage(p.Args)
				},
			},
			"asset": &graphql.Field{
				Type: AssetDetailType,
				Args: graphql.FieldConfigArgument{
					"name":          &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"version":       &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"page":          &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
					"pageSize":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: view.DefaultPageSize},
					"sortKey":       &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(view.SortCVSS)},
					"sortDirection": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(view.Desc)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return resolveAssetDetail(p.Args)
				},
			},
			"dailyCounts": &graphql.Field{
				Type: graphql.NewList(DailyCountType),
				Args: graphql.FieldConfigArgument{
					"severity": &graphql.ArgumentConfig{Type: SeverityType},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					severity, _ := p.Args["severity"].(string)
					return resolveDailyCounts(model.Severity(severity))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery,
	})
}
