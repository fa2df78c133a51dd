// Package view sorts, filters and paginates an already enriched collection of
// vulnerabilities. It never correlates or scores anything itself.
package view

import (
	"cmp"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ortelius/vulnprio/model"
)

// ErrConfiguration matches every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("invalid view configuration")

// ConfigurationError reports an invalid view parameter.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// SortKey names a sortable field.
type SortKey string

// Supported sort keys.
const (
	SortPriority SortKey = "priority_score"
	SortCVSS     SortKey = "cvss_score"
	SortCreated  SortKey = "createdAt"
)

// Direction is the sort order.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// DefaultPageSize is used by callers that do not supply one.
const DefaultPageSize = 10

// Filter narrows the collection before it is sorted and paged.
// Zero values disable the corresponding filter.
type Filter struct {
	Search   string         // case-insensitive substring of id, title or description
	Severity model.Severity // exact severity
	Status   model.Status   // exact status
	AssetKey string         // exact name:version of the correlated asset
}

// Query describes one page request. An empty SortKey means priority_score and
// an empty Direction means desc.
type Query struct {
	SortKey   SortKey
	Direction Direction
	Page      int // 1-indexed
	PageSize  int
	Filter    Filter
}

// DefaultQuery returns the first page ordered by descending priority.
func DefaultQuery() Query {
	return Query{
		SortKey:   SortPriority,
		Direction: Desc,
		Page:      1,
		PageSize:  DefaultPageSize,
	}
}

type sortField struct {
	present func(model.Vulnerability) bool
	compare func(a, b model.Vulnerability) int
}

var sortFields = map[SortKey]sortField{
	SortPriority: {
		present: func(v model.Vulnerability) bool { return v.PriorityScore != nil },
		compare: func(a, b model.Vulnerability) int { return cmp.Compare(*a.PriorityScore, *b.PriorityScore) },
	},
	SortCVSS: {
		present: func(model.Vulnerability) bool { return true },
		compare: func(a, b model.Vulnerability) int { return cmp.Compare(a.CVSSScore, b.CVSSScore) },
	},
	SortCreated: {
		present: func(v model.Vulnerability) bool { return !v.CreatedAt.IsZero() },
		compare: func(a, b model.Vulnerability) int { return a.CreatedAt.Compare(b.CreatedAt) },
	},
}

// normalize fills defaults and validates q.
func (q Query) normalize() (Query, error) {
	if q.SortKey == "" {
		q.SortKey = SortPriority
	}
	if q.Direction == "" {
		q.Direction = Desc
	}
	if _, ok := sortFields[q.SortKey]; !ok {
		return q, &ConfigurationError{Field: "sort key", Value: string(q.SortKey), Reason: "must be one of priority_score, cvss_score, createdAt"}
	}
	if q.Direction != Asc && q.Direction != Desc {
		return q, &ConfigurationError{Field: "sort direction", Value: string(q.Direction), Reason: "must be asc or desc"}
	}
	if q.PageSize <= 0 {
		return q, &ConfigurationError{Field: "page size", Value: fmt.Sprint(q.PageSize), Reason: "must be positive"}
	}
	if q.Page < 1 {
		return q, &ConfigurationError{Field: "page", Value: fmt.Sprint(q.Page), Reason: "pages start at 1"}
	}
	return q, nil
}

// Validate checks q without running it.
func (q Query) Validate() error {
	_, err := q.normalize()
	return err
}

// View filters, stably sorts and pages items. Items without a value for the
// sort key always come last, whatever the direction. Equal keys keep their
// input order. A page past the end yields no items with OutOfRange set and
// correct totals. The input slice is not modified.
func View(items []model.Vulnerability, q Query) (model.Page, error) {
	q, err := q.normalize()
	if err != nil {
		return model.Page{}, err
	}

	filtered := applyFilter(items, q.Filter)
	sortItems(filtered, sortFields[q.SortKey], q.Direction)

	total := len(filtered)
	pages, start, end, ok := window(total, q.Page, q.PageSize)
	page := model.Page{
		TotalCount: total,
		TotalPages: pages,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Items:      []model.Vulnerability{},
	}
	if !ok {
		page.OutOfRange = q.Page > 1
		return page, nil
	}
	page.Items = filtered[start:end]
	return page, nil
}

// window returns the page count for total items and the bounds of page. ok is
// false when page lies past the last one.
func window(total, page, size int) (pages, start, end int, ok bool) {
	pages = total / size
	if total%size != 0 {
		pages++
	}
	// Checked before computing offsets, which could overflow for huge pages.
	if page > pages {
		return pages, 0, 0, false
	}
	start = (page - 1) * size
	end = start + min(size, total-start)
	return pages, start, end, true
}

func applyFilter(items []model.Vulnerability, f Filter) []model.Vulnerability {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.Vulnerability, 0, len(items))
	for _, v := range items {
		if f.Severity != "" && v.Severity != f.Severity {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.AssetKey != "" && (!v.Correlation.Matched || v.Correlation.Asset.IndexKey() != f.AssetKey) {
			continue
		}
		if search != "" && !matchesSearch(v, search) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func matchesSearch(v model.Vulnerability, needle string) bool {
	for _, field := range []string{v.ID, v.Title, v.Description} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func sortItems(items []model.Vulnerability, field sortField, dir Direction) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		ap, bp := field.present(a), field.present(b)
		if ap != bp {
			return ap
		}
		if !ap {
			return false
		}
		c := field.compare(a, b)
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
}

// SortAssets returns assets ordered by descending priority score, unscored
// assets last, ties in input order.
func SortAssets(assets []model.Asset) []model.Asset {
	out := make([]model.Asset, len(assets))
	copy(out, assets)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i].PriorityValue()
		b, bok := out[j].PriorityValue()
		if aok != bok {
			return aok
		}
		return aok && a > b
	})
	return out
}

// AssetQuery describes one page of the asset list. Assets are always ordered by
// priority score, unscored assets last. An empty Direction means desc.
type AssetQuery struct {
	Direction Direction
	Page      int // 1-indexed
	PageSize  int
	Search    string // case-insensitive substring of name, version or product
}

// Assets filters, orders and pages assets the same way View does for
// vulnerabilities. The input slice is not modified.
func Assets(assets []model.Asset, q AssetQuery) (model.AssetPage, error) {
	if q.Direction == "" {
		q.Direction = Desc
	}
	if q.Direction != Asc && q.Direction != Desc {
		return model.AssetPage{}, &ConfigurationError{Field: "sort direction", Value: string(q.Direction), Reason: "must be asc or desc"}
	}
	if q.PageSize <= 0 {
		return model.AssetPage{}, &ConfigurationError{Field: "page size", Value: fmt.Sprint(q.PageSize), Reason: "must be positive"}
	}
	if q.Page < 1 {
		return model.AssetPage{}, &ConfigurationError{Field: "page", Value: fmt.Sprint(q.Page), Reason: "pages start at 1"}
	}

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := make([]model.Asset, 0, len(assets))
	for _, a := range assets {
		if needle != "" && !matchesAsset(a, needle) {
			continue
		}
		filtered = append(filtered, a)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		a, aok := filtered[i].PriorityValue()
		b, bok := filtered[j].PriorityValue()
		if aok != bok {
			return aok
		}
		if !aok {
			return false
		}
		if q.Direction == Asc {
			return a < b
		}
		return a > b
	})

	total := len(filtered)
	pages, start, end, ok := window(total, q.Page, q.PageSize)
	page := model.AssetPage{
		TotalCount: total,
		TotalPages: pages,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Items:      []model.Asset{},
	}
	if !ok {
		page.OutOfRange = q.Page > 1
		return page, nil
	}
	page.Items = filtered[start:end]
	return page, nil
}

func matchesAsset(a model.Asset, needle string) bool {
	for _, field := range []string{a.Name, a.Version, a.Product} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
