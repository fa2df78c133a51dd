package correlation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ortelius/vulnprio/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finding(id, name, version string) model.Finding {
	return model.Finding{ID: id, ComponentName: name, ComponentVersion: version, Active: true}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	idx, _ := Build([]model.Asset{
		asset("com.acme:web", "1.0", "Web", model.Float(80)),
		asset("com.acme:web", "2.0", "Web", model.Float(60)),
		asset("solo", "3.1", "Solo", model.Float(45)),
		asset("unscored", "1.0", "", nil),
	})

	tests := []struct {
		name      string
		finding   model.Finding
		matched   bool
		strategy  model.MatchStrategy
		reason    model.UnmatchedReason
		assetKey  string
		candidate int
	}{
		{
			name:     "exact",
			finding:  finding("1", "com.acme:web", "2.0"),
			matched:  true,
			strategy: model.MatchExact,
			assetKey: "com.acme:web:2.0",
		},
		{
			name:     "prefix with missing version",
			finding:  finding("2", "solo", ""),
			matched:  true,
			strategy: model.MatchPrefix,
			assetKey: "solo:3.1",
		},
		{
			name:     "prefix after exact miss",
			finding:  finding("3", "solo", "9.9"),
			matched:  true,
			strategy: model.MatchPrefix,
			assetKey: "solo:3.1",
		},
		{
			name:      "ambiguous prefix",
			finding:   finding("4", "com.acme:web", ""),
			reason:    model.ReasonAmbiguous,
			candidate: 2,
		},
		{
			name:    "no candidates",
			finding: finding("5", "ghost", "1.0"),
			reason:  model.ReasonNoCandidates,
		},
		{
			name:    "missing name",
			finding: finding("6", "", "1.0"),
			reason:  model.ReasonMissingComponentName,
		},
		{
			name:    "case differs",
			finding: finding("7", "SOLO", "3.1"),
			reason:  model.ReasonNoCandidates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.finding, idx)
			assert.Equal(t, tt.matched, got.Matched)
			if tt.matched {
				require.NotNil(t, got.Asset)
				assert.Equal(t, tt.strategy, got.Strategy)
				assert.Equal(t, tt.assetKey, got.Asset.IndexKey())
				return
			}
			assert.Nil(t, got.Asset)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.candidate, got.Candidates)
		})
	}
}

func TestResolveAmbiguityNeverPicksFirst(t *testing.T) {
	t.Parallel()

	idx, _ := Build([]model.Asset{
		asset("lib", "1.0", "A", model.Float(10)),
		asset("lib", "2.0", "B", model.Float(90)),
	})
	v := Enrich(finding("x", "lib", ""), idx)
	assert.False(t, v.Correlation.Matched)
	assert.Nil(t, v.PriorityScore)
	assert.Empty(t, v.Product)
}

func TestEnrichCopiesAssetFields(t *testing.T) {
	t.Parallel()

	assets := []model.Asset{{Name: "lib", Version: "1.0", Product: "Lib", PriorityScore: model.Float(72.5), VulnerabilityCount: 4}}
	idx, _ := Build(assets)

	v := Enrich(finding("f1", "lib", "1.0"), idx)
	require.NotNil(t, v.PriorityScore)
	assert.Equal(t, 72.5, *v.PriorityScore)
	assert.Equal(t, model.ScoreFromAsset, v.ScoreSource)
	assert.Equal(t, "Lib", v.Product)
	assert.Equal(t, 4, v.AssetVulnerabilityCount)
	assert.Equal(t, model.StatusNew, v.Status)

	*v.PriorityScore = 1
	a, _ := idx.Lookup("lib:1.0")
	assert.Equal(t, 72.5, *a.PriorityScore, "projection must not alias the asset")
}

func TestEnrichMatchedWithoutScore(t *testing.T) {
	t.Parallel()

	idx, _ := Build([]model.Asset{asset("lib", "1.0", "Lib", nil)})
	v := Enrich(finding("f1", "lib", "1.0"), idx)
	assert.True(t, v.Correlation.Matched)
	assert.Nil(t, v.PriorityScore)
	assert.Empty(t, v.ScoreSource)
	assert.Equal(t, "Lib", v.Product)
}

func TestEnrichIsIdempotent(t *testing.T) {
	t.Parallel()

	idx, _ := Build([]model.Asset{
		asset("lib", "1.0", "Lib", model.Float(33)),
		asset("app", "1.0", "App", model.Float(91)),
		asset("app", "2.0", "App", model.Float(12)),
	})
	findings := []model.Finding{
		finding("1", "lib", "1.0"),
		finding("2", "app", ""),
		finding("3", "lib", ""),
		finding("4", "", ""),
	}

	first := make([]model.Vulnerability, 0, len(findings))
	for _, f := range findings {
		first = append(first, Enrich(f, idx))
	}
	for i := 0; i < 3; i++ {
		for j, f := range findings {
			assert.Empty(t, cmp.Diff(first[j], Enrich(f, idx)))
		}
	}
}

func TestAmbiguityWarning(t *testing.T) {
	f := finding("CVE-1", "lib", "")
	w := AmbiguityWarning(f, model.Unmatched(model.ReasonAmbiguous, 3), 7)
	assert.Equal(t, model.WarningAmbiguousMatch, w.Kind)
	assert.Equal(t, "CVE-1", w.Key)
	assert.Equal(t, 7, w.Position)
	assert.Contains(t, w.Message, "3 assets")
}

func TestMapStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mitigated, active, review bool
		want                      model.Status
	}{
		{true, true, true, model.StatusResolved},
		{true, false, false, model.StatusResolved},
		{false, true, true, model.StatusNew},
		{false, true, false, model.StatusNew},
		{false, false, true, model.StatusAnalyzing},
		{false, false, false, model.StatusDismissed},
	}
	for _, tt := range tests {
		f := model.Finding{IsMitigated: tt.mitigated, Active: tt.active, UnderReview: tt.review}
		assert.Equal(t, tt.want, MapStatus(f), "%+v", tt)
	}
}
