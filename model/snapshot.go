package model

import (
	"fmt"
	"time"
)

// WarningKind classifies a data quality problem.
type WarningKind string

const (
	// WarningDuplicateAssetKey means two assets share a name:version key; the later one wins.
	WarningDuplicateAssetKey WarningKind = "duplicate_asset_key"
	// WarningAmbiguousMatch means a prefix lookup found several candidate assets.
	WarningAmbiguousMatch WarningKind = "ambiguous_match"
	// WarningUnparseableField means a numeric, flag or date field could not be parsed and was defaulted.
	WarningUnparseableField WarningKind = "unparseable_field"
	// WarningScoreOutOfRange means a score was outside its domain and was clamped.
	WarningScoreOutOfRange WarningKind = "score_out_of_range"
	// WarningMissingID means a finding record without an id was skipped.
	WarningMissingID WarningKind = "missing_id"
)

// Warning is a recorded data quality problem. Processing always continues past it.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Key      string      `json:"key,omitempty"`
	Field    string      `json:"field,omitempty"`
	Message  string      `json:"message"`
	Position int         `json:"position"`
}

func (w Warning) String() string {
	if w.Field != "" {
		return fmt.Sprintf("%s [%s.%s]: %s", w.Kind, w.Key, w.Field, w.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", w.Kind, w.Key, w.Message)
}

// Snapshot is an immutable, point-in-time copy of the inventory and the findings.
type Snapshot struct {
	ID       string    `json:"id"`
	TakenAt  time.Time `json:"taken_at"`
	Assets   []Asset   `json:"assets"`
	Findings []Finding `json:"findings"`
	Warnings []Warning `json:"warnings,omitempty"`
}
