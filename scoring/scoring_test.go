package scoring

import (
	"math"
	"testing"

	"github.com/ortelius/vulnprio/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, CVSSWeight+EPSSWeight+KEVWeight, 1e-12)
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		features Features
		want     float64
	}{
		{"all zero", Features{}, 0},
		{"max signals", Features{CVSS: 10, EPSS: 1, KEV: true}, 100},
		{"cvss only", Features{CVSS: 5}, 20},
		{"epss only", Features{EPSS: 0.5}, 15},
		{"kev only", Features{KEV: true}, 30},
		{"mixed", Features{CVSS: 9.8, EPSS: 0.97, KEV: true}, 100 * (0.4*0.98 + 0.3*0.97 + 0.3)},
		{"cvss above range is clamped", Features{CVSS: 15}, 40},
		{"negative cvss is clamped", Features{CVSS: -3, EPSS: 0.1}, 3},
		{"epss above range is clamped", Features{EPSS: 7}, 30},
		{"nan is zero", Features{CVSS: math.NaN(), EPSS: math.NaN()}, 0},
		{"infinite cvss is clamped", Features{CVSS: math.Inf(1)}, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.features)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, MinScore)
			assert.LessOrEqual(t, got, MaxScore)
		})
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	f := Features{CVSS: 7.5, EPSS: 0.42, KEV: false}
	first := Score(f)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Score(f))
	}
}

func TestScoreStaysInBounds(t *testing.T) {
	values := []float64{-1e9, -1, 0, 0.5, 1, 5, 10, 11, 1e9, math.NaN(), math.Inf(-1), math.Inf(1)}
	for _, cvss := range values {
		for _, epss := range values {
			for _, kev := range []bool{false, true} {
				s := Score(Features{CVSS: cvss, EPSS: epss, KEV: kev})
				require.False(t, math.IsNaN(s))
				require.GreaterOrEqual(t, s, MinScore)
				require.LessOrEqual(t, s, MaxScore)
			}
		}
	}
}

func TestFeaturesOf(t *testing.T) {
	f := model.Finding{CVSSScore: 8.1, EPSSScore: 0.2, KEVListed: true}
	assert.Equal(t, Features{CVSS: 8.1, EPSS: 0.2, KEV: true}, FeaturesOf(f))
}

func TestValidate(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		v, ok := Validate(nil)
		assert.Nil(t, v)
		assert.True(t, ok)
	})

	t.Run("in range", func(t *testing.T) {
		v, ok := Validate(model.Float(73.5))
		require.NotNil(t, v)
		assert.Equal(t, 73.5, *v)
		assert.True(t, ok)
	})

	t.Run("above range", func(t *testing.T) {
		v, ok := Validate(model.Float(140))
		require.NotNil(t, v)
		assert.Equal(t, 100.0, *v)
		assert.False(t, ok)
	})

	t.Run("below range", func(t *testing.T) {
		v, ok := Validate(model.Float(-2))
		require.NotNil(t, v)
		assert.Equal(t, 0.0, *v)
		assert.False(t, ok)
	})

	t.Run("nan is dropped", func(t *testing.T) {
		v, ok := Validate(model.Float(math.NaN()))
		assert.Nil(t, v)
		assert.False(t, ok)
	})
}

func TestSeverityFromCVSS(t *testing.T) {
	cases := map[float64]model.Severity{
		10:  model.SeverityCritical,
		9:   model.SeverityCritical,
		8.9: model.SeverityHigh,
		7:   model.SeverityHigh,
		6.9: model.SeverityMedium,
		4:   model.SeverityMedium,
		3.9: model.SeverityLow,
		0:   model.SeverityLow,
	}
	for cvss, want := range cases {
		assert.Equal(t, want, SeverityFromCVSS(cvss), "cvss %v", cvss)
	}
}

func TestRiskLevelFor(t *testing.T) {
	assert.Equal(t, RiskCritical, RiskLevelFor(90))
	assert.Equal(t, RiskHigh, RiskLevelFor(89.99))
	assert.Equal(t, RiskHigh, RiskLevelFor(70))
	assert.Equal(t, RiskMedium, RiskLevelFor(50))
	assert.Equal(t, RiskLow, RiskLevelFor(49.9))
	assert.Equal(t, RiskLow, RiskLevelFor(0))
}
