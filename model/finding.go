package model

import (
	"strings"
	"time"
)

// Severity is the normalized vendor severity of a finding.
type Severity string

const (
	// SeverityCritical is the highest vendor severity.
	SeverityCritical Severity = "CRITICAL"
	// SeverityHigh is a high vendor severity.
	SeverityHigh Severity = "HIGH"
	// SeverityMedium is a medium vendor severity.
	SeverityMedium Severity = "MEDIUM"
	// SeverityLow is a low vendor severity.
	SeverityLow Severity = "LOW"
	// SeverityUnknown is used when the source did not supply a recognizable severity.
	SeverityUnknown Severity = "UNKNOWN"
)

// ParseSeverity maps a free-form severity label onto the Severity enum.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH", "IMPORTANT":
		return SeverityHigh
	case "MEDIUM", "MODERATE":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// Rank orders severities, higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Status is the workflow state derived from a finding's source flags.
type Status string

const (
	// StatusNew is an active finding nobody has looked at yet.
	StatusNew Status = "NEW"
	// StatusAnalyzing is a finding under review.
	StatusAnalyzing Status = "ANALYZING"
	// StatusResolved is a mitigated finding.
	StatusResolved Status = "RESOLVED"
	// StatusDismissed is any finding that is neither mitigated, active nor under review.
	StatusDismissed Status = "DISMISSED"
)

// ParseStatus returns the Status for s and whether s named a known status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusNew, StatusAnalyzing, StatusResolved, StatusDismissed:
		return st, true
	default:
		return "", false
	}
}

// FindingRecord is a finding exactly as the scanner export or the database delivers it.
// Several fields arrive with inconsistent types and are normalized by the ingest package.
type FindingRecord struct {
	Key              string `json:"_key,omitempty"`
	ID               any    `json:"id"`
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	ComponentName    string `json:"component_name"`
	ComponentVersion string `json:"component_version"`
	Severity         string `json:"severity"`
	CVSSv3Score      any    `json:"cvssv3_score"`
	EPSSScore        any    `json:"epss_score"`
	KEVStatus        any    `json:"kev_status"`
	IsMitigated      any    `json:"is_mitigated"`
	Active           any    `json:"active"`
	UnderReview      any    `json:"under_review"`
	Created          string `json:"created"`
	LastReviewedBy   any    `json:"last_reviewed_by"`
	ObjType          string `json:"objtype,omitempty"`
}

// Finding is a normalized vulnerability finding reported against a component.
type Finding struct {
	ID               string    `json:"id"`
	Title            string    `json:"title,omitempty"`
	Description      string    `json:"description,omitempty"`
	ComponentName    string    `json:"component_name"`
	ComponentVersion string    `json:"component_version"`
	Severity         Severity  `json:"severity"`
	CVSSScore        float64   `json:"cvss_score"`
	EPSSScore        float64   `json:"epss_score"`
	KEVListed        bool      `json:"kev_status"`
	IsMitigated      bool      `json:"is_mitigated"`
	Active           bool      `json:"active"`
	UnderReview      bool      `json:"under_review"`
	CreatedAt        time.Time `json:"created"`
	LastReviewedBy   string    `json:"last_reviewed_by,omitempty"`
	// PackageName and PackageVersion are decoded from a package URL component
	// name for display. Correlation never reads them.
	PackageName    string `json:"package_name,omitempty"`
	PackageVersion string `json:"package_version,omitempty"`
}
