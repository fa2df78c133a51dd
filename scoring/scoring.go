// Package scoring computes the 0-100 priority score of a finding from its threat signals.
package scoring

import (
	"math"

	"github.com/ortelius/vulnprio/model"
)

// Weights of the three signals. They sum to 1.0.
const (
	CVSSWeight = 0.4
	EPSSWeight = 0.3
	KEVWeight  = 0.3
)

// Score bounds.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Features are the threat-intelligence signals of a single finding.
type Features struct {
	CVSS float64 // 0-10
	EPSS float64 // 0-1 exploit probability
	KEV  bool    // listed in the Known Exploited Vulnerabilities catalog
}

// FeaturesOf extracts the scoring features of a finding.
func FeaturesOf(f model.Finding) Features {
	return Features{
		CVSS: f.CVSSScore,
		EPSS: f.EPSSScore,
		KEV:  f.KEVListed,
	}
}

// Score returns 100 * (0.4*cvss/10 + 0.3*epss + 0.3*kev).
// Inputs are clamped to their domain and NaN is treated as 0, so the
// result is always within [0, 100].
func Score(f Features) float64 {
	cvss := clamp01(f.CVSS / 10)
	epss := clamp01(f.EPSS)
	kev := 0.0
	if f.KEV {
		kev = 1
	}
	return clampScore(100 * (CVSSWeight*cvss + EPSSWeight*epss + KEVWeight*kev))
}

// Validate checks a score supplied by upstream. A NaN score is dropped and an
// out-of-range score is clamped. ok is false when the input had to be changed.
func Validate(score *float64) (validated *float64, ok bool) {
	if score == nil {
		return nil, true
	}
	v := *score
	switch {
	case math.IsNaN(v):
		return nil, false
	case v < MinScore || v > MaxScore:
		return model.Float(clampScore(v)), false
	default:
		return model.Float(v), true
	}
}

// SeverityFromCVSS derives a vendor severity from a CVSS base score.
func SeverityFromCVSS(cvss float64) model.Severity {
	switch {
	case cvss >= 9:
		return model.SeverityCritical
	case cvss >= 7:
		return model.SeverityHigh
	case cvss >= 4:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// RiskLevel is the coarse label shown next to a priority score.
type RiskLevel string

// Risk levels.
const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// RiskLevelFor maps a priority score to its risk level.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 90:
		return RiskCritical
	case score >= 70:
		return RiskHigh
	case score >= 50:
		return RiskMedium
	default:
		return RiskLow
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
