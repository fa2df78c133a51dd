// Package ingest turns raw asset and finding records into a normalized snapshot.
// Malformed fields never abort a load: they are defaulted and reported as warnings.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ortelius/vulnprio/model"
	"github.com/ortelius/vulnprio/scoring"
	"github.com/ortelius/vulnprio/util"
)

// NormalizeAsset validates the upstream priority score and fills in a product
// label derived from the name when the record has none.
func NormalizeAsset(a model.Asset, position int) (model.Asset, []model.Warning) {
	var warnings []model.Warning

	score, ok := scoring.Validate(a.PriorityScore)
	if !ok {
		warnings = append(warnings, model.Warning{
			Kind:     model.WarningScoreOutOfRange,
			Key:      a.IndexKey(),
			Field:    "priority_score",
			Message:  fmt.Sprintf("priority score %v outside [0, 100]", *a.PriorityScore),
			Position: position,
		})
	}
	a.PriorityScore = score

	if util.IsEmpty(a.Product) {
		a.Product = util.ProductFromName(a.Name)
	}
	if a.VulnerabilityCount < 0 {
		a.VulnerabilityCount = 0
	}
	if a.ObjType == "" {
		a.ObjType = "Asset"
	}
	return a, warnings
}

// NormalizeFinding converts a raw record. ok is false when the record has no id
// and must be skipped.
func NormalizeFinding(rec model.FindingRecord, position int) (f model.Finding, warnings []model.Warning, ok bool) {
	id := strings.TrimSpace(util.Stringify(rec.ID))
	if id == "" {
		return f, []model.Warning{{
			Kind:     model.WarningMissingID,
			Message:  fmt.Sprintf("finding record at position %d has no id and was skipped", position),
			Position: position,
		}}, false
	}

	unparseable := func(field string, value any) {
		warnings = append(warnings, model.Warning{
			Kind:     model.WarningUnparseableField,
			Key:      id,
			Field:    field,
			Message:  fmt.Sprintf("cannot parse %v, defaulting", value),
			Position: position,
		})
	}
	number := func(field string, value any) float64 {
		n, ok := util.ParseNumber(value)
		if !ok {
			unparseable(field, value)
		}
		return n
	}

	f = model.Finding{
		ID:               id,
		Title:            rec.Title,
		Description:      rec.Description,
		ComponentName:    rec.ComponentName,
		ComponentVersion: rec.ComponentVersion,
		Severity:         model.ParseSeverity(rec.Severity),
		CVSSScore:        number("cvssv3_score", rec.CVSSv3Score),
		EPSSScore:        number("epss_score", rec.EPSSScore),
		KEVListed:        util.ParseFlag(rec.KEVStatus),
		IsMitigated:      util.ParseFlag(rec.IsMitigated),
		Active:           util.ParseFlag(rec.Active),
		UnderReview:      util.ParseFlag(rec.UnderReview),
		LastReviewedBy:   util.Stringify(rec.LastReviewedBy),
	}

	if f.CVSSScore < 0 || f.CVSSScore > 10 {
		warnings = append(warnings, model.Warning{
			Kind:     model.WarningScoreOutOfRange,
			Key:      id,
			Field:    "cvssv3_score",
			Message:  fmt.Sprintf("cvss score %v outside [0, 10], clamping", f.CVSSScore),
			Position: position,
		})
		f.CVSSScore = min(max(f.CVSSScore, 0), 10)
	}

	created, ok := util.ParseTime(rec.Created)
	if !ok {
		unparseable("created", rec.Created)
	}
	f.CreatedAt = created

	if name, version, ok := util.SplitComponentPURL(f.ComponentName); ok {
		f.PackageName, f.PackageVersion = name, version
	}
	return f, warnings, true
}

// NewSnapshot normalizes assets and finding records into an immutable snapshot
// stamped with a fresh id and the given time.
func NewSnapshot(assets []model.Asset, records []model.FindingRecord, takenAt time.Time) model.Snapshot {
	snap := model.Snapshot{
		ID:       uuid.NewString(),
		TakenAt:  takenAt,
		Assets:   make([]model.Asset, 0, len(assets)),
		Findings: make([]model.Finding, 0, len(records)),
	}
	for i, a := range assets {
		normalized, warnings := NormalizeAsset(a, i)
		snap.Assets = append(snap.Assets, normalized)
		snap.Warnings = append(snap.Warnings, warnings...)
	}
	for i, rec := range records {
		f, warnings, ok := NormalizeFinding(rec, i)
		snap.Warnings = append(snap.Warnings, warnings...)
		if ok {
			snap.Findings = append(snap.Findings, f)
		}
	}
	return snap
}
