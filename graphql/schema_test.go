package graphql

import (
	"context"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/ortelius/vulnprio/engine"
	"github.com/ortelius/vulnprio/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSnapshot() model.Snapshot {
	day := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return model.Snapshot{
		ID:      "snap-graphql",
		TakenAt: day,
		Assets: []model.Asset{
			{Name: "web", Version: "1.0", Product: "Web", PriorityScore: model.Float(92), VulnerabilityCount: 3},
			{Name: "api", Version: "2.0", Product: "Api", PriorityScore: model.Float(55), VulnerabilityCount: 1},
		},
		Findings: []model.Finding{
			{ID: "CVE-1", Title: "Heap overflow", ComponentName: "web", ComponentVersion: "1.0", Severity: model.SeverityCritical, Active: true, CreatedAt: day},
			{ID: "CVE-2", Title: "Open redirect", ComponentName: "api", ComponentVersion: "2.0", Severity: model.SeverityMedium, UnderReview: true, CreatedAt: day.Add(24 * time.Hour)},
			{ID: "CVE-3", Title: "Stale dependency", ComponentName: "cli", Severity: model.SeverityLow, CreatedAt: day},
		},
	}
}

func setup(t *testing.T) graphql.Schema {
	t.Helper()
	p, err := engine.New(zap.NewNop(), 1).Prepare(context.Background(), testSnapshot())
	require.NoError(t, err)

	s := &engine.Store{}
	s.Swap(p)
	InitStore(s, 100)
	t.Cleanup(func() { InitStore(nil, 0) })

	schema, err := CreateSchema()
	require.NoError(t, err)
	return schema
}

func run(t *testing.T, schema graphql.Schema, query string) *graphql.Result {
	t.Helper()
	return graphql.Do(graphql.Params{Schema: schema, RequestString: query})
}

func TestVulnerabilitiesQuery(t *testing.T) {
	schema := setup(t)

	res := run(t, schema, `{ vulnerabilities(pageSize: 2) { total pages page has_next items { id priority_score status severity correlation { matched strategy } } } }`)
	require.Empty(t, res.Errors)

	page := res.Data.(map[string]interface{})["vulnerabilities"].(map[string]interface{})
	assert.Equal(t, 3, page["total"])
	assert.Equal(t, 2, page["pages"])
	assert.Equal(t, true, page["has_next"])

	items := page["items"].([]interface{})
	require.Len(t, items, 2)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "CVE-1", first["id"])
	assert.Equal(t, 92.0, first["priority_score"])
	assert.Equal(t, "NEW", first["status"])
	assert.Equal(t, "CRITICAL", first["severity"])
	assert.Equal(t, "exact", first["correlation"].(map[string]interface{})["strategy"])
}

func TestVulnerabilitiesFilterAndInvalidSort(t *testing.T) {
	schema := setup(t)

	res := run(t, schema, `{ vulnerabilities(status: ANALYZING) { total items { id } } }`)
	require.Empty(t, res.Errors)
	page := res.Data.(map[string]interface{})["vulnerabilities"].(map[string]interface{})
	assert.Equal(t, 1, page["total"])

	res = run(t, schema, `{ vulnerabilities(sortKey: "severity") { total } }`)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0].Message, "severity")
}

func TestVulnerabilityByID(t *testing.T) {
	schema := setup(t)

	res := run(t, schema, `{ vulnerability(id: "CVE-3") { id priority_score correlation { matched reason } } }`)
	require.Empty(t, res.Errors)
	v := res.Data.(map[string]interface{})["vulnerability"].(map[string]interface{})
	assert.Nil(t, v["priority_score"])
	assert.Equal(t, false, v["correlation"].(map[string]interface{})["matched"])
	assert.Equal(t, "no_candidates", v["correlation"].(map[string]interface{})["reason"])

	res = run(t, schema, `{ vulnerability(id: "CVE-404") { id } }`)
	require.Empty(t, res.Errors)
	assert.Nil(t, res.Data.(map[string]interface{})["vulnerability"])
}

func TestAggregateQueries(t *testing.T) {
	schema := setup(t)

	res := run(t, schema, `{
		summary { snapshot_id total critical high mean_score }
		productScores { product average_score count }
		riskDistribution { label count }
		dailyCounts { date count }
	}`)
	require.Empty(t, res.Errors)
	data := res.Data.(map[string]interface{})

	summary := data["summary"].(map[string]interface{})
	assert.Equal(t, "snap-graphql", summary["snapshot_id"])
	assert.Equal(t, 3, summary["total"])
	assert.Equal(t, 1, summary["critical"])
	assert.InDelta(t, (92.0+55.0)/3, summary["mean_score"], 1e-9)

	scores := data["productScores"].([]interface{})
	require.Len(t, scores, 2)
	assert.Equal(t, "Api", scores[0].(map[string]interface{})["product"])

	buckets := data["riskDistribution"].([]interface{})
	require.Len(t, buckets, 3)
	assert.Equal(t, map[string]interface{}{"label": "High", "count": 1}, buckets[0])
	assert.Equal(t, map[string]interface{}{"label": "Medium", "count": 1}, buckets[1])
	assert.Equal(t, map[string]interface{}{"label": "Low", "count": 1}, buckets[2])

	daily := data["dailyCounts"].([]interface{})
	require.Len(t, daily, 2)
	assert.Equal(t, map[string]interface{}{"date": "2024-05-01", "count": 2}, daily[0])
}

func TestAssetsQuery(t *testing.T) {
	schema := setup(t)

	res := run(t, schema, `{ assets(limit: 1) { name version priority_score } }`)
	require.Empty(t, res.Errors)
	assets := res.Data.(map[string]interface{})["assets"].([]interface{})
	require.Len(t, assets, 1)
	assert.Equal(t, "web", assets[0].(map[string]interface{})["name"])
}

func TestNoSnapshot(t *testing.T) {
	InitStore(&engine.Store{}, 100)
	t.Cleanup(func() { InitStore(nil, 0) })

	schema, err := CreateSchema()
	require.NoError(t, err)

	res := graphql.Do(graphql.Params{Schema: schema, RequestString: `{ summary { total } }`})
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0].Message, engine.ErrNoSnapshot.Error())
}

func TestAssetDashboardQuery(t *testing.T) {
	schema := setup(t)

	res := run(t, schema, `{ assetSummary { total critical high mean_score product_scores { product average_score } risk_distribution { label count } } }`)
	require.Empty(t, res.Errors)
	dash := res.Data.(map[string]interface{})["assetSummary"].(map[string]interface{})
	assert.Equal(t, 2, dash["total"])
	assert.Equal(t, 1, dash["critical"])
	assert.Equal(t, 0, dash["high"])
	assert.InDelta(t, (92.0+55.0)/2, dash["mean_score"], 1e-9)

	scores := dash["product_scores"].([]interface{})
	require.Len(t, scores, 2)
	assert.Equal(t, map[string]interface{}{"product": "Web", "average_score": 92.0}, scores[1])

	buckets := dash["risk_distribution"].([]interface{})
	assert.Equal(t, []interface{}{
		map[string]interface{}{"label": "High", "count": 1},
		map[string]interface{}{"label": "Medium", "count": 1},
		map[string]interface{}{"label": "Low", "count": 0},
	}, buckets)
}

func TestAssetPageQuery(t *testing.T) {
	schema := setup(t)

	res := run(t, schema, `{ assetPage(pageSize: 1, page: 2) { total pages page has_prev has_next items { name } } }`)
	require.Empty(t, res.Errors)
	page := res.Data.(map[string]interface{})["assetPage"].(map[string]interface{})
	assert.Equal(t, 2, page["total"])
	assert.Equal(t, 2, page["pages"])
	assert.Equal(t, true, page["has_prev"])
	assert.Equal(t, false, page["has_next"])
	items := page["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "api", items[0].(map[string]interface{})["name"])

	res = run(t, schema, `{ assetPage(sortDirection: "sideways") { total } }`)
	require.NotEmpty(t, res.Errors)
}

func TestAssetDetailQuery(t *testing.T) {
	schema := setup(t)

	res := run(t, schema, `{ asset(name: "web", version: "1.0") { asset { name priority_score } vulnerabilities { total items { id } } } }`)
	require.Empty(t, res.Errors)
	detail := res.Data.(map[string]interface{})["asset"].(map[string]interface{})
	assert.Equal(t, "web", detail["asset"].(map[string]interface{})["name"])
	vulns := detail["vulnerabilities"].(map[string]interface{})
	assert.Equal(t, 1, vulns["total"])
	assert.Equal(t, "CVE-1", vulns["items"].([]interface{})[0].(map[string]interface{})["id"])

	res = run(t, schema, `{ asset(name: "web", version: "9.9") { asset { name } } }`)
	require.Empty(t, res.Errors)
	assert.Nil(t, res.Data.(map[string]interface{})["asset"])
}

func TestPageSizeIsBounded(t *testing.T) {
	schema := setup(t)

	for _, query := range []string{
		`{ vulnerabilities(pageSize: 101) { total } }`,
		`{ vulnerabilities(pageSize: 2147483647, page: 2147483647) { total } }`,
		`{ assetPage(pageSize: 101) { total } }`,
		`{ asset(name: "web", version: "1.0", pageSize: 500) { asset { name } } }`,
	} {
		res := run(t, schema, query)
		require.NotEmpty(t, res.Errors, query)
		assert.Contains(t, res.Errors[0].Message, "exceeds the maximum page size", query)
	}

	res := run(t, schema, `{ vulnerabilities(pageSize: 100) { total } }`)
	assert.Empty(t, res.Errors)
}
