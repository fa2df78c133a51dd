package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/ortelius/vulnprio/model"
	"gopkg.in/yaml.v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// assetEnvelope accepts an inventory wrapped as {"assets": [...]}.
type assetEnvelope struct {
	Assets []model.Asset `json:"assets" yaml:"assets"`
}

// findingEnvelope accepts {"findings": [...]} and the paginated {"results": [...]} export shape.
type findingEnvelope struct {
	Findings []model.FindingRecord `json:"findings"`
	Results  []model.FindingRecord `json:"results"`
}

// LoadAssetsFile reads an asset inventory. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON. Both a bare list and an object with
// an "assets" list are accepted.
func LoadAssetsFile(path string) ([]model.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseAssetsYAML(data)
	default:
		return ParseAssetsJSON(data)
	}
}

// ParseAssetsJSON parses a JSON asset inventory.
func ParseAssetsJSON(data []byte) ([]model.Asset, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var assets []model.Asset
		if err := json.Unmarshal(data, &assets); err != nil {
			return nil, fmt.Errorf("asset file is not valid JSON: %w", err)
		}
		return assets, nil
	}
	var env assetEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("asset file is not valid JSON: %w", err)
	}
	return env.Assets, nil
}

func parseAssetsYAML(data []byte) ([]model.Asset, error) {
	var assets []model.Asset
	if err := yaml.Unmarshal(data, &assets); err == nil {
		return assets, nil
	}
	var env assetEnvelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("asset file is not valid YAML: %w", err)
	}
	return env.Assets, nil
}

// LoadFindingsFile reads a JSON finding export.
func LoadFindingsFile(path string) ([]model.FindingRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read findings file: %w", err)
	}
	return ParseFindingsJSON(data)
}

// ParseFindingsJSON parses a bare list of finding records or an object holding
// them under "findings" or "results".
func ParseFindingsJSON(data []byte) ([]model.FindingRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var records []model.FindingRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("findings file is not valid JSON: %w", err)
		}
		return records, nil
	}
	var env findingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("findings file is not valid JSON: %w", err)
	}
	if len(env.Findings) > 0 {
		return env.Findings, nil
	}
	return env.Results, nil
}

// LoadSnapshotFiles loads both files and normalizes them into a snapshot.
func LoadSnapshotFiles(assetsPath, findingsPath string, clock func() time.Time) (model.Snapshot, error) {
	assets, err := LoadAssetsFile(assetsPath)
	if err != nil {
		return model.Snapshot{}, err
	}
	records, err := LoadFindingsFile(findingsPath)
	if err != nil {
		return model.Snapshot{}, err
	}
	return NewSnapshot(assets, records, clock()), nil
}

// FileSource serves snapshots from an asset file and a findings file.
type FileSource struct {
	AssetsPath   string
	FindingsPath string
	Clock        func() time.Time
}

// LoadSnapshot reads both files again and returns a new snapshot.
func (s FileSource) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	return LoadSnapshotFiles(s.AssetsPath, s.FindingsPath, clock)
}
