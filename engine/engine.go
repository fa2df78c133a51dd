// Package engine runs the prioritization pass over one snapshot: it indexes the
// assets, correlates every finding, and derives the aggregates once so that
// request handlers only page through precomputed results.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ortelius/vulnprio/aggregate"
	"github.com/ortelius/vulnprio/correlation"
	"github.com/ortelius/vulnprio/model"
	"github.com/ortelius/vulnprio/view"
	"go.uber.org/zap"
)

// Engine prepares snapshots. It holds no snapshot state of its own.
type Engine struct {
	logger *zap.Logger
	shards int
}

// New creates an Engine. shards > 1 builds the asset index in parallel.
func New(logger *zap.Logger, shards int) *Engine {
	if shards < 1 {
		shards = 1
	}
	return &Engine{
		logger: logger.Named("engine"),
		shards: shards,
	}
}

// Prepared is the immutable result of one pass over a snapshot.
type Prepared struct {
	SnapshotID       string
	TakenAt          time.Time
	Vulnerabilities  []model.Vulnerability
	Warnings         []model.Warning
	Summary          model.AggregateSummary
	ProductScores    []model.ProductScore
	RiskDistribution map[string]int
	Matched          int

	AssetSummary          model.AggregateSummary
	AssetProductScores    []model.ProductScore
	AssetRiskDistribution map[string]int

	assets     []model.Asset
	byID       map[string]int
	assetByKey map[string]int
}

// Prepare correlates every finding of snap against its assets and computes the
// aggregates. The snapshot is not modified. Data quality problems are logged
// and kept on the result, they never fail the pass.
func (e *Engine) Prepare(ctx context.Context, snap model.Snapshot) (*Prepared, error) {
	start := time.Now()

	idx, indexWarnings, err := correlation.BuildParallel(ctx, snap.Assets, e.shards)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}

	p := &Prepared{
		SnapshotID:      snap.ID,
		TakenAt:         snap.TakenAt,
		Vulnerabilities: make([]model.Vulnerability, 0, len(snap.Findings)),
		assets:          view.SortAssets(idx.Assets()),
		byID:            make(map[string]int, len(snap.Findings)),
	}
	p.assetByKey = make(map[string]int, len(p.assets))
	for i, a := range p.assets {
		p.assetByKey[a.IndexKey()] = i
	}
	p.Warnings = append(p.Warnings, snap.Warnings...)
	p.Warnings = append(p.Warnings, indexWarnings...)

	for i, f := range snap.Findings {
		v := correlation.Enrich(f, idx)
		switch {
		case v.Correlation.Matched:
			p.Matched++
		case v.Correlation.Reason == model.ReasonAmbiguous:
			p.Warnings = append(p.Warnings, correlation.AmbiguityWarning(f, v.Correlation, i))
		}
		if _, seen := p.byID[f.ID]; !seen {
			p.byID[f.ID] = len(p.Vulnerabilities)
		}
		p.Vulnerabilities = append(p.Vulnerabilities, v)
	}

	p.Summary = aggregate.Summarize(p.Vulnerabilities)
	p.ProductScores = aggregate.GroupByProduct(p.Vulnerabilities)
	p.RiskDistribution = aggregate.SeverityBuckets(p.Vulnerabilities)
	p.AssetSummary = aggregate.Summarize(p.assets)
	p.AssetProductScores = aggregate.GroupByProduct(p.assets)
	p.AssetRiskDistribution = aggregate.SeverityBuckets(p.assets)

	for _, w := range p.Warnings {
		e.logger.Warn("Data quality warning",
			zap.String("snapshot", snap.ID),
			zap.String("kind", string(w.Kind)),
			zap.String("key", w.Key),
			zap.String("field", w.Field),
			zap.String("message", w.Message))
	}
	e.logger.Info("Snapshot prepared",
		zap.String("snapshot", snap.ID),
		zap.Int("assets", idx.Len()),
		zap.Int("findings", len(p.Vulnerabilities)),
		zap.Int("matched", p.Matched),
		zap.Int("warnings", len(p.Warnings)),
		zap.Duration("elapsed", time.Since(start)))

	return p, nil
}

// Find returns the vulnerability with the given finding id.
func (p *Prepared) Find(id string) (model.Vulnerability, bool) {
	i, ok := p.byID[id]
	if !ok {
		return model.Vulnerability{}, false
	}
	return p.Vulnerabilities[i], true
}

// View pages through the prepared vulnerabilities.
func (p *Prepared) View(q view.Query) (model.Page, error) {
	return view.View(p.Vulnerabilities, q)
}

// Assets returns the snapshot's assets ordered by descending priority score.
func (p *Prepared) Assets() []model.Asset {
	out := make([]model.Asset, len(p.assets))
	copy(out, p.assets)
	return out
}

// AssetPage pages through the snapshot's assets.
func (p *Prepared) AssetPage(q view.AssetQuery) (model.AssetPage, error) {
	return view.Assets(p.assets, q)
}

// Asset returns the asset indexed under name:version.
func (p *Prepared) Asset(name, version string) (model.Asset, bool) {
	i, ok := p.assetByKey[model.AssetKey(name, version)]
	if !ok {
		return model.Asset{}, false
	}
	return p.assets[i], true
}

// AssetVulnerabilities pages through the findings correlated to the asset
// name:version. An empty sort key orders them by descending CVSS score. ok is
// false when no such asset exists.
func (p *Prepared) AssetVulnerabilities(name, version string, q view.Query) (model.Asset, model.Page, bool, error) {
	asset, ok := p.Asset(name, version)
	if !ok {
		return model.Asset{}, model.Page{}, false, nil
	}
	if q.SortKey == "" {
		q.SortKey = view.SortCVSS
	}
	q.Filter.AssetKey = asset.IndexKey()
	page, err := view.View(p.Vulnerabilities, q)
	return asset, page, true, err
}

// SummaryResponse bundles the aggregates for the API.
func (p *Prepared) SummaryResponse() model.SummaryResponse {
	return model.SummaryResponse{
		SnapshotID:       p.SnapshotID,
		Summary:          p.Summary,
		ProductScores:    p.ProductScores,
		RiskDistribution: p.RiskDistribution,
		Warnings:         len(p.Warnings),

		AssetSummary:          p.AssetSummary,
		AssetProductScores:    p.AssetProductScores,
		AssetRiskDistribution: p.AssetRiskDistribution,
	}
}
