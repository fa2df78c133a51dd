package correlation

import (
	"fmt"

	"github.com/ortelius/vulnprio/model"
)

// Resolve finds the asset a finding belongs to. Strategies are tried in order:
//
//  1. exact name:version lookup, only when both are non-empty
//  2. name prefix lookup, accepted only when exactly one asset matches
//  3. unmatched
//
// Resolve never mutates the index and returns the same result for the same inputs.
func Resolve(f model.Finding, idx *Index) model.CorrelationResult {
	if f.ComponentName == "" {
		return model.Unmatched(model.ReasonMissingComponentName, 0)
	}

	if f.ComponentVersion != "" {
		if a, ok := idx.Lookup(model.AssetKey(f.ComponentName, f.ComponentVersion)); ok {
			return model.Matched(a, model.MatchExact)
		}
	}

	candidates := idx.ByComponentNamePrefix(f.ComponentName)
	switch len(candidates) {
	case 0:
		return model.Unmatched(model.ReasonNoCandidates, 0)
	case 1:
		return model.Matched(candidates[0], model.MatchPrefix)
	default:
		return model.Unmatched(model.ReasonAmbiguous, len(candidates))
	}
}

// Enrich resolves f against idx and builds its read-only projection. On a match
// the asset's priority score, product and vulnerability count are copied over.
func Enrich(f model.Finding, idx *Index) model.Vulnerability {
	result := Resolve(f, idx)
	v := model.Vulnerability{
		Finding:     f,
		Status:      MapStatus(f),
		Correlation: result,
	}
	if result.Matched {
		a := result.Asset
		if a.PriorityScore != nil {
			v.PriorityScore = model.Float(*a.PriorityScore)
			v.ScoreSource = model.ScoreFromAsset
		}
		v.Product = a.Product
		v.AssetVulnerabilityCount = a.VulnerabilityCount
	}
	return v
}

// AmbiguityWarning describes an ambiguous prefix match for the finding at position.
func AmbiguityWarning(f model.Finding, result model.CorrelationResult, position int) model.Warning {
	return model.Warning{
		Kind:     model.WarningAmbiguousMatch,
		Key:      f.ID,
		Field:    "component_name",
		Message:  fmt.Sprintf("%d assets match component %q, finding left unmatched", result.Candidates, f.ComponentName),
		Position: position,
	}
}
