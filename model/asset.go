// Package model defines the data structures used by vulnprio,
// including inventory assets, scanner findings and their enriched projections.
package model

import "strings"

// Asset is one software component of the inventory, identified by name and version.
// Assets are loaded wholesale per snapshot and never mutated after loading.
type Asset struct {
	Key                string   `json:"_key,omitempty" yaml:"-"`
	Name               string   `json:"name" yaml:"name"`
	Version            string   `json:"version" yaml:"version"`
	Product            string   `json:"product,omitempty" yaml:"product,omitempty"`
	PriorityScore      *float64 `json:"priority_score" yaml:"priority_score"`
	VulnerabilityCount int      `json:"vulnerabilities_count" yaml:"vulnerabilities_count"`
	ObjType            string   `json:"objtype,omitempty" yaml:"-"`
}

// IndexKey returns the correlation key of the asset: name + ":" + version.
// No case or whitespace normalization is applied.
func (a Asset) IndexKey() string {
	return AssetKey(a.Name, a.Version)
}

// PriorityValue returns the asset's priority score and whether one is set.
func (a Asset) PriorityValue() (float64, bool) {
	if a.PriorityScore == nil {
		return 0, false
	}
	return *a.PriorityScore, true
}

// ProductLabel returns the product grouping label, empty when unresolved.
func (a Asset) ProductLabel() string {
	return strings.TrimSpace(a.Product)
}

// AssetKey builds the exact-match key used by the asset index.
func AssetKey(name, version string) string {
	return name + ":" + version
}

// Float returns a pointer to v. Used for nullable scores.
func Float(v float64) *float64 {
	return &v
}
