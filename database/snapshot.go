package database

import (
	"context"
	"fmt"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/ortelius/vulnprio/ingest"
	"github.com/ortelius/vulnprio/model"
	"go.uber.org/zap"
)

const (
	assetsQuery = `
		FOR a IN asset
			SORT a.name, a.version, a._key
			RETURN a
	`
	findingsQuery = `
		FOR f IN finding
			SORT f.created, f._key
			RETURN f
	`
	// Findings are keyed by their id so that resubmitting a batch replaces
	// the earlier copy instead of duplicating it.
	upsertFindingsQuery = `
		FOR doc IN @docs
			UPSERT { id: doc.id }
			INSERT doc
			UPDATE doc
			IN finding
			OPTIONS { waitForSync: true }
	`
)

func readAll[T any](ctx context.Context, db arangodb.Database, query string, bindVars map[string]interface{}) ([]T, error) {
	var opts *arangodb.QueryOptions
	if bindVars != nil {
		opts = &arangodb.QueryOptions{BindVars: bindVars}
	}

	cursor, err := db.Query(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var out []T
	for cursor.HasMore() {
		var doc T
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// LoadAssets returns every stored asset.
func (c DBConnection) LoadAssets(ctx context.Context) ([]model.Asset, error) {
	assets, err := readAll[model.Asset](ctx, c.Database, assetsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets: %w", err)
	}
	return assets, nil
}

// LoadFindings returns every stored finding record as stored, unnormalized.
func (c DBConnection) LoadFindings(ctx context.Context) ([]model.FindingRecord, error) {
	records, err := readAll[model.FindingRecord](ctx, c.Database, findingsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read findings: %w", err)
	}
	return records, nil
}

// SaveFindings upserts records into the finding collection in one batch.
func (c DBConnection) SaveFindings(ctx context.Context, records []model.FindingRecord) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		r.ObjType = "Finding"
		docs = append(docs, r)
	}

	cursor, err := c.Database.Query(ctx, upsertFindingsQuery, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"docs": docs,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save findings: %w", err)
	}
	cursor.Close()

	c.log().Info("Saved findings", zap.Int("count", len(records)))
	return nil
}

// LoadSnapshot reads the asset and finding collections and normalizes them
// into a snapshot for the engine.
func (c DBConnection) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	assets, err := c.LoadAssets(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	records, err := c.LoadFindings(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}

	snap := ingest.NewSnapshot(assets, records, time.Now())
	c.log().Debug("Loaded snapshot from database",
		zap.String("snapshot", snap.ID),
		zap.Int("assets", len(snap.Assets)),
		zap.Int("findings", len(snap.Findings)))
	return snap, nil
}

func (c DBConnection) log() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}
