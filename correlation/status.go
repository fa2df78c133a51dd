package correlation

import "github.com/ortelius/vulnprio/model"

// MapStatus derives the workflow status of a finding from its source flags.
// Mitigation takes precedence over activity, which takes precedence over review.
func MapStatus(f model.Finding) model.Status {
	return StatusFromFlags(f.IsMitigated, f.Active, f.UnderReview)
}

// StatusFromFlags is MapStatus on bare flags.
func StatusFromFlags(isMitigated, active, underReview bool) model.Status {
	switch {
	case isMitigated:
		return model.StatusResolved
	case active:
		return model.StatusNew
	case underReview:
		return model.StatusAnalyzing
	default:
		return model.StatusDismissed
	}
}
