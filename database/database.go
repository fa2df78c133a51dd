// Package database - Handles all interaction with ArangoDB
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"github.com/ortelius/vulnprio/config"
	"go.uber.org/zap"
)

// Collection names
const (
	AssetCollection   = "asset"
	FindingCollection = "finding"
)

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
	logger      *zap.Logger
}

// Define a struct to hold the index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxFields  []string
}

// indexList backs the snapshot queries and the upsert of ingested findings
var indexList = []indexConfig{
	{Collection: AssetCollection, IdxName: "asset_name_version", IdxFields: []string{"name", "version"}},
	{Collection: AssetCollection, IdxName: "asset_product", IdxFields: []string{"product"}},
	{Collection: FindingCollection, IdxName: "finding_id", IdxFields: []string{"id"}},
	{Collection: FindingCollection, IdxName: "finding_component", IdxFields: []string{"component_name", "component_version"}},
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func newBackOff(cfg config.DatabaseConfig) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime // 0 retries forever
	return bo
}

// InitializeDatabase connects to the db engine with exponential backoff, then
// creates the database, the collections and their indexes when missing
func InitializeDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (DBConnection, error) {
	logger = logger.Named("database")

	var client arangodb.Client

	//
	// Database connection with backoff retry
	//

	err := backoff.RetryNotify(func() error {
		logger.Info("Attempting to connect to ArangoDB", zap.String("url", cfg.Endpoint()))
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.Endpoint()})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, cfg.User, cfg.Password))

		client = arangodb.NewClient(conn)

		// Ask the version of the server
		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil

	}, backoff.WithContext(newBackOff(cfg), ctx), func(err error, next time.Duration) {
		logger.Warn("Retrying connection to ArangoDB", zap.Error(err), zap.Duration("next", next))
	})
	if err != nil {
		return DBConnection{}, fmt.Errorf("failed to connect to ArangoDB: %w", err)
	}

	//
	// Database creation
	//

	var db arangodb.Database
	dblist, err := client.Databases(ctx)
	if err != nil {
		return DBConnection{}, fmt.Errorf("failed to list databases: %w", err)
	}

	exists := false
	for _, dbinfo := range dblist {
		if dbinfo.Name() == cfg.Name {
			exists = true
			break
		}
	}

	if exists {
		if db, err = client.GetDatabase(ctx, cfg.Name, &arangodb.GetDatabaseOptions{}); err != nil {
			return DBConnection{}, fmt.Errorf("failed to get database: %w", err)
		}
	} else {
		if db, err = client.CreateDatabase(ctx, cfg.Name, nil); err != nil {
			return DBConnection{}, fmt.Errorf("failed to create database: %w", err)
		}
	}

	//
	// Collection creation for document storage
	//

	collections := make(map[string]arangodb.Collection)
	for _, collectionName := range []string{AssetCollection, FindingCollection} {
		var col arangodb.Collection

		exists, err = db.CollectionExists(ctx, collectionName)
		if err != nil {
			return DBConnection{}, fmt.Errorf("failed to check collection %s: %w", collectionName, err)
		}
		if exists {
			col, err = db.GetCollection(ctx, collectionName, &arangodb.GetCollectionOptions{})
		} else {
			col, err = db.CreateCollectionV2(ctx, collectionName, nil)
		}
		if err != nil {
			return DBConnection{}, fmt.Errorf("failed to use collection %s: %w", collectionName, err)
		}

		collections[collectionName] = col
	}

	//
	// Index creation for document collections
	//

	False := false
	for _, idx := range indexList {
		found := false

		if indexes, err := collections[idx.Collection].Indexes(ctx); err == nil {
			for _, index := range indexes {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}

		if !found {
			indexOptions := arangodb.CreatePersistentIndexOptions{
				Unique: &False,
				Sparse: &False,
				Name:   idx.IdxName,
			}
			if _, _, err = collections[idx.Collection].EnsurePersistentIndex(ctx, idx.IdxFields, &indexOptions); err != nil {
				return DBConnection{}, fmt.Errorf("error creating index %s: %w", idx.IdxName, err)
			}
		}
	}

	return DBConnection{
		Database:    db,
		Collections: collections,
		logger:      logger,
	}, nil
}
