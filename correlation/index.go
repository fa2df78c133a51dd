// Package correlation joins findings to the inventory assets they affect.
//
// Findings carry a component name and an optional version; assets are keyed by
// name:version. The join is exact when both halves are present and falls back to
// an unambiguous name prefix match otherwise. Both lookups are map reads.
package correlation

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/ortelius/vulnprio/model"
	"golang.org/x/sync/errgroup"
)

// Index is the read-only lookup structure over one snapshot of assets.
// It is built once and may be shared by concurrent readers.
type Index struct {
	exact map[string]model.Asset
	// byPrefix maps every part of a key before one of its ":" separators to
	// the assets under that key, so "a:b:1" is listed under "a" and "a:b".
	byPrefix map[string][]model.Asset
	keys     []string // sorted, unique
}

func newIndex(size int) *Index {
	return &Index{
		exact:    make(map[string]model.Asset, size),
		byPrefix: make(map[string][]model.Asset, size),
	}
}

// Build indexes assets by name:version. When two assets share a key the later
// one wins and a duplicate_asset_key warning is recorded for the earlier one.
func Build(assets []model.Asset) (*Index, []model.Warning) {
	idx := newIndex(len(assets))
	var warnings []model.Warning
	for i, a := range assets {
		if w, dup := idx.put(a, i); dup {
			warnings = append(warnings, w)
		}
	}
	idx.finish()
	return idx, warnings
}

// BuildParallel builds the same index as Build using several goroutines.
// Assets are sharded by key so duplicates always land in the same shard, and
// each shard walks its assets in input order, which keeps later-wins semantics.
// Warnings come back ordered by input position.
func BuildParallel(ctx context.Context, assets []model.Asset, shards int) (*Index, []model.Warning, error) {
	if shards <= 1 || len(assets) < shards {
		idx, warnings := Build(assets)
		return idx, warnings, nil
	}

	positions := make([][]int, shards)
	for i, a := range assets {
		s := shardOf(a.IndexKey(), shards)
		positions[s] = append(positions[s], i)
	}

	parts := make([]*Index, shards)
	partWarnings := make([][]model.Warning, shards)

	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		g.Go(func() error {
			part := newIndex(len(positions[s]))
			for n, i := range positions[s] {
				if n%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				if w, dup := part.put(assets[i], i); dup {
					partWarnings[s] = append(partWarnings[s], w)
				}
			}
			parts[s] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("building asset index: %w", err)
	}

	idx := newIndex(len(assets))
	var warnings []model.Warning
	for s, part := range parts {
		for k, a := range part.exact {
			idx.exact[k] = a
		}
		warnings = append(warnings, partWarnings[s]...)
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		return warnings[i].Position < warnings[j].Position
	})
	idx.finish()
	return idx, warnings, nil
}

func shardOf(key string, shards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(shards))
}

func (idx *Index) put(a model.Asset, position int) (model.Warning, bool) {
	key := a.IndexKey()
	_, dup := idx.exact[key]
	idx.exact[key] = a
	if !dup {
		return model.Warning{}, false
	}
	return model.Warning{
		Kind:     model.WarningDuplicateAssetKey,
		Key:      key,
		Message:  fmt.Sprintf("asset at position %d shadows an earlier asset with the same key", position),
		Position: position,
	}, true
}

func (idx *Index) finish() {
	idx.keys = make([]string, 0, len(idx.exact))
	for k := range idx.exact {
		idx.keys = append(idx.keys, k)
	}
	sort.Strings(idx.keys)
	for _, k := range idx.keys {
		a := idx.exact[k]
		for i := 0; i < len(k); i++ {
			if k[i] == ':' {
				idx.byPrefix[k[:i]] = append(idx.byPrefix[k[:i]], a)
			}
		}
	}
}

// Len returns the number of distinct keys in the index.
func (idx *Index) Len() int {
	return len(idx.keys)
}

// Lookup returns the asset stored under key.
func (idx *Index) Lookup(key string) (model.Asset, bool) {
	a, ok := idx.exact[key]
	return a, ok
}

// ByComponentNamePrefix returns every asset whose key starts with name + ":",
// in key order. The result is a copy.
func (idx *Index) ByComponentNamePrefix(name string) []model.Asset {
	assets := idx.byPrefix[name]
	if len(assets) == 0 {
		return nil
	}
	out := make([]model.Asset, len(assets))
	copy(out, assets)
	return out
}

// Assets returns all indexed assets in key order.
func (idx *Index) Assets() []model.Asset {
	out := make([]model.Asset, 0, len(idx.keys))
	for _, k := range idx.keys {
		out = append(out, idx.exact[k])
	}
	return out
}
