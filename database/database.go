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
	"github.com/ortelius/pdvd-enricher/util"
	"go.uber.org/zap"
)

// Collection names
const (
	ColRepository  = "repository"
	ColProduct     = "product"
	ColProductType = "product_type"
	ColAlert       = "alert"
	ColAlertCursor = "alert_cursor"
	ColEngagement  = "engagement"
	ColTest        = "test"
	ColFinding     = "finding"
)

var collectionNames = []string{
	ColRepository, ColProduct, ColProductType, ColAlert, ColAlertCursor, ColEngagement, ColTest, ColFinding,
}

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
}

// Define a struct to hold the index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxFields  []string
	Unique     bool
	Sparse     bool
}

var idxList = []indexConfig{
	// repository lookups and sync ordering
	{Collection: ColRepository, IdxName: "repository_full_name", IdxFields: []string{"full_name"}},
	{Collection: ColRepository, IdxName: "repository_product_key", IdxFields: []string{"product_key"}, Sparse: true},
	{Collection: ColRepository, IdxName: "repository_last_synced_at", IdxFields: []string{"last_synced_at"}, Sparse: true},
	{Collection: ColRepository, IdxName: "repository_last_alert_sync", IdxFields: []string{"last_alert_sync"}},
	{Collection: ColRepository, IdxName: "repository_tier", IdxFields: []string{"tier"}},

	{Collection: ColProduct, IdxName: "product_business_criticality", IdxFields: []string{"business_criticality"}},

	// alert dedup triple
	{Collection: ColAlert, IdxName: "alert_dedup_unique", IdxFields: []string{"repository_key", "taxonomy", "number"}, Unique: true},
	{Collection: ColAlert, IdxName: "alert_state", IdxFields: []string{"state"}},

	{Collection: ColEngagement, IdxName: "engagement_product_key", IdxFields: []string{"product_key"}},
	{Collection: ColTest, IdxName: "test_engagement_key", IdxFields: []string{"engagement_key"}},

	// finding dedup key and triage queries
	{Collection: ColFinding, IdxName: "finding_unique_id_unique", IdxFields: []string{"unique_id_from_tool"}, Unique: true},
	{Collection: ColFinding, IdxName: "finding_test_key", IdxFields: []string{"test_key"}},
	{Collection: ColFinding, IdxName: "finding_active_decision", IdxFields: []string{"active", "auto_triage_decision"}},
	{Collection: ColFinding, IdxName: "finding_cve", IdxFields: []string{"cve"}, Sparse: true},
	{Collection: ColFinding, IdxName: "finding_vuln_id", IdxFields: []string{"vuln_id_from_tool"}, Sparse: true},
}

// Config holds the connection settings.
type Config struct {
	URL          string
	User         string
	Password     string
	DatabaseName string
	// MaxElapsed bounds the connection retries. Zero retries forever.
	MaxElapsed time.Duration
}

// ConfigFromEnv reads the ARANGO_* environment variables.
func ConfigFromEnv() Config {
	dbhost := util.GetEnvDefault("ARANGO_HOST", "localhost")
	dbport := util.GetEnvDefault("ARANGO_PORT", "8529")
	return Config{
		URL:          util.GetEnvDefault("ARANGO_URL", "http://"+dbhost+":"+dbport),
		User:         util.GetEnvDefault("ARANGO_USER", "root"),
		Password:     util.GetEnvDefault("ARANGO_PASS", "mypassword"),
		DatabaseName: util.GetEnvDefault("ARANGO_DB", "pdvd_enricher"),
		MaxElapsed:   util.GetEnvDuration("ARANGO_CONNECT_TIMEOUT", 0),
	}
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

// InitializeDatabase connects to the db engine with backoff, then creates the database, the
// collections and the indexes that are missing.
func InitializeDatabase(ctx context.Context, cfg Config, logger *zap.Logger) (DBConnection, error) {
	const initialInterval = 10 * time.Second
	const maxInterval = 2 * time.Minute

	logger = util.OrNop(logger)
	var client arangodb.Client

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = cfg.MaxElapsed

	err := backoff.RetryNotify(func() error {
		logger.Info("Attempting to connect to ArangoDB", zap.String("url", cfg.URL))
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, cfg.User, cfg.Password))

		client = arangodb.NewClient(conn)

		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil

	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("Retrying connection to ArangoDB", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return DBConnection{}, fmt.Errorf("connecting to ArangoDB: %w", err)
	}

	db, err := ensureDatabase(ctx, client, cfg.DatabaseName)
	if err != nil {
		return DBConnection{}, err
	}

	collections := make(map[string]arangodb.Collection)
	for _, collectionName := range collectionNames {
		var col arangodb.Collection

		exists, _ := db.CollectionExists(ctx, collectionName)
		if exists {
			var options arangodb.GetCollectionOptions
			if col, err = db.GetCollection(ctx, collectionName, &options); err != nil {
				return DBConnection{}, fmt.Errorf("using collection %s: %w", collectionName, err)
			}
		} else {
			if col, err = db.CreateCollectionV2(ctx, collectionName, nil); err != nil {
				return DBConnection{}, fmt.Errorf("creating collection %s: %w", collectionName, err)
			}
		}

		collections[collectionName] = col
	}

	for _, idx := range idxList {
		if err := ensureIndex(ctx, collections[idx.Collection], idx, logger); err != nil {
			return DBConnection{}, err
		}
	}

	logger.Info("Database initialization complete", zap.String("database", cfg.DatabaseName))
	return DBConnection{Database: db, Collections: collections}, nil
}

func ensureDatabase(ctx context.Context, client arangodb.Client, name string) (arangodb.Database, error) {
	exists := false
	dblist, _ := client.Databases(ctx)

	for _, dbinfo := range dblist {
		if dbinfo.Name() == name {
			exists = true
			break
		}
	}

	if exists {
		var options arangodb.GetDatabaseOptions
		db, err := client.GetDatabase(ctx, name, &options)
		if err != nil {
			return nil, fmt.Errorf("getting database %s: %w", name, err)
		}
		return db, nil
	}
	db, err := client.CreateDatabase(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("creating database %s: %w", name, err)
	}
	return db, nil
}

func ensureIndex(ctx context.Context, col arangodb.Collection, idx indexConfig, logger *zap.Logger) error {
	if indexes, err := col.Indexes(ctx); err == nil {
		for _, index := range indexes {
			if idx.IdxName == index.Name {
				return nil
			}
		}
	}

	unique, sparse := idx.Unique, idx.Sparse
	indexOptions := arangodb.CreatePersistentIndexOptions{
		Unique: &unique,
		Sparse: &sparse,
		Name:   idx.IdxName,
	}
	if _, _, err := col.EnsurePersistentIndex(ctx, idx.IdxFields, &indexOptions); err != nil {
		return fmt.Errorf("creating index %s on %s: %w", idx.IdxName, idx.Collection, err)
	}
	logger.Sugar().Infof("Created index: %s on %s.%v", idx.IdxName, idx.Collection, idx.IdxFields)
	return nil
}
