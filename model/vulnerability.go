package model

import "strings"

// MatchStrategy names the rule that correlated a finding to an asset.
type MatchStrategy string

const (
	// MatchExact means the finding's name:version equals the asset key.
	MatchExact MatchStrategy = "exact"
	// MatchPrefix means exactly one asset key starts with the finding's name followed by ":".
	MatchPrefix MatchStrategy = "prefix"
)

// UnmatchedReason explains why a finding has no asset.
type UnmatchedReason string

const (
	// ReasonMissingComponentName is used when the finding has no component name at all.
	ReasonMissingComponentName UnmatchedReason = "missing_component_name"
	// ReasonNoCandidates is used when neither the exact nor the prefix lookup found an asset.
	ReasonNoCandidates UnmatchedReason = "no_candidates"
	// ReasonAmbiguous is used when the prefix lookup found more than one asset.
	ReasonAmbiguous UnmatchedReason = "ambiguous"
)

// CorrelationResult is the outcome of resolving a finding against the asset index.
// It is computed per snapshot and never persisted.
type CorrelationResult struct {
	Matched    bool            `json:"matched"`
	Asset      *Asset          `json:"asset,omitempty"`
	Strategy   MatchStrategy   `json:"strategy,omitempty"`
	Reason     UnmatchedReason `json:"reason,omitempty"`
	Candidates int             `json:"candidates,omitempty"`
}

// Matched returns a successful CorrelationResult holding a copy of asset.
func Matched(asset Asset, strategy MatchStrategy) CorrelationResult {
	return CorrelationResult{
		Matched:    true,
		Asset:      &asset,
		Strategy:   strategy,
		Candidates: 1,
	}
}

// Unmatched returns a failed CorrelationResult.
func Unmatched(reason UnmatchedReason, candidates int) CorrelationResult {
	return CorrelationResult{
		Reason:     reason,
		Candidates: candidates,
	}
}

// ScoreSource records where a vulnerability's priority score came from.
type ScoreSource string

const (
	// ScoreFromAsset is a score copied from the correlated asset.
	ScoreFromAsset ScoreSource = "asset"
	// ScoreFromModel is a score computed from the finding's own threat signals at ingestion.
	ScoreFromModel ScoreSource = "model"
)

// Vulnerability is the read-only, enriched view of a Finding that the dashboard lists.
type Vulnerability struct {
	Finding
	Status                  Status            `json:"status"`
	PriorityScore           *float64          `json:"priority_score"`
	ScoreSource             ScoreSource       `json:"score_source,omitempty"`
	Product                 string            `json:"product,omitempty"`
	AssetVulnerabilityCount int               `json:"asset_vulnerability_count"`
	Correlation             CorrelationResult `json:"correlation"`
}

// PriorityValue returns the priority score and whether one is set.
func (v Vulnerability) PriorityValue() (float64, bool) {
	if v.PriorityScore == nil {
		return 0, false
	}
	return *v.PriorityScore, true
}

// ProductLabel returns the product copied from the matched asset.
func (v Vulnerability) ProductLabel() string {
	return strings.TrimSpace(v.Product)
}
