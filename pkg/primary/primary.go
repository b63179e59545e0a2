// Package primary implements the Primary Store Adapter (C1): bulk-loading
// transformed NDJSON shards into MongoDB, dropping/recreating the target
// collection for each run, and building secondary indexes in the
// background once a load completes. It also owns the two collections the
// rest of the system treats MongoDB as the system-of-record for:
// integrations (read-mostly, CAS-updated) and sync_requests (the
// out-of-process worker queue).
package primary

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/cuemby/turbosync/pkg/health"
	"github.com/cuemby/turbosync/pkg/log"
	"github.com/cuemby/turbosync/pkg/types"
)

const (
	partsCollection        = "part_listings"
	integrationsCollection = "integrations"
	syncRequestsCollection = "sync_requests"
	textIndexName          = "parts_text_index"
)

// Client wraps a MongoDB connection for the primary store.
type Client struct {
	mongo           *mongo.Client
	db              *mongo.Database
	uri             string
	bulkLoaderBin   string
	mongoWorkers    int
	mongoConcurrent int
}

// Options configures a Client.
type Options struct {
	URI             string
	Database        string
	BulkLoaderBin   string // external mongoimport-style binary; empty disables it
	MongoWorkers    int    // --numInsertionWorkers passed to the external loader
	MongoConcurrent int    // shards loaded in parallel
	ConnectTimeout  time.Duration
}

// Connect dials MongoDB and verifies connectivity with a ping.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("primary: connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("primary: ping: %w", err)
	}

	return &Client{
		mongo:           client,
		db:              client.Database(opts.Database),
		uri:             opts.URI,
		bulkLoaderBin:   opts.BulkLoaderBin,
		mongoWorkers:    opts.MongoWorkers,
		mongoConcurrent: opts.MongoConcurrent,
	}, nil
}

// Close disconnects the underlying client.
func (c *Client) Close(ctx context.Context) error {
	return c.mongo.Disconnect(ctx)
}

// Preflight verifies the Mongo host is reachable and the external
// bulk-loader binary is callable before a run starts, so either problem
// surfaces as a ConfigError at the top of RunOnce instead of failing every
// shard mid-run. The bulk-loader check is a no-op when no external loader
// is configured (the in-process loader has no external dependency).
func (c *Client) Preflight(ctx context.Context) error {
	if hostPort, ok := mongoHostPort(c.uri); ok {
		checker := health.NewTCPChecker(hostPort)
		result := checker.Check(ctx)
		if !result.Healthy {
			return fmt.Errorf("primary: mongo host %s unreachable: %s", hostPort, result.Message)
		}
	}

	if c.bulkLoaderBin == "" {
		return nil
	}
	checker := health.NewExecChecker([]string{c.bulkLoaderBin, "--version"})
	result := checker.Check(ctx)
	if !result.Healthy {
		return fmt.Errorf("primary: bulk loader %q not usable: %s", c.bulkLoaderBin, result.Message)
	}
	return nil
}

// mongoHostPort extracts a single dialable host:port from a standard
// mongodb:// URI for a TCP preflight probe. SRV-style URIs
// (mongodb+srv://) and multi-host replica-set strings resolve through
// DNS/driver logic this package doesn't duplicate, so the check is
// skipped for those and connectivity is left to Connect's Ping instead.
func mongoHostPort(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "mongodb" || u.Host == "" {
		return "", false
	}
	if strings.Contains(u.Host, ",") {
		return "", false
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":27017"
	}
	return host, true
}

// Drop drops the part-listings collection entirely, the whole-collection
// replace semantics spec.md calls out as orders of magnitude faster than a
// per-document delete.
func (c *Client) Drop(ctx context.Context) error {
	if err := c.db.Collection(partsCollection).Drop(ctx); err != nil {
		return fmt.Errorf("primary: drop: %w", err)
	}
	return nil
}

// LoadResult is the outcome of loading a set of primary shards.
type LoadResult struct {
	Inserted int64
	Elapsed  time.Duration
}

// LoadShards loads every shard in shardPaths into the parts collection,
// preferring the external bulk-loader binary when configured and falling
// back to an in-process ordered:false bulk insert otherwise.
func (c *Client) LoadShards(ctx context.Context, shardPaths []string) (LoadResult, error) {
	start := time.Now()

	var inserted int64
	var err error
	if c.bulkLoaderBin != "" {
		inserted, err = c.loadShardsExternal(ctx, shardPaths)
	} else {
		inserted, err = c.loadShardsInProcess(ctx, shardPaths)
	}
	if err != nil {
		return LoadResult{}, err
	}

	return LoadResult{Inserted: inserted, Elapsed: time.Since(start)}, nil
}

// loadShardsExternal invokes the external bulk-loader binary (a
// mongoimport-style tool) once per shard, up to mongoConcurrent in
// parallel, with --writeConcern {w:0} and --bypassDocumentValidation.
func (c *Client) loadShardsExternal(ctx context.Context, shardPaths []string) (int64, error) {
	sem := make(chan struct{}, max(1, c.mongoConcurrent))
	results := make(chan int64, len(shardPaths))
	errs := make(chan error, len(shardPaths))

	for _, path := range shardPaths {
		sem <- struct{}{}
		go func(shardPath string) {
			defer func() { <-sem }()
			n, err := c.runExternalLoader(ctx, shardPath)
			if err != nil {
				errs <- err
				return
			}
			results <- n
		}(path)
	}
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}

	close(results)
	close(errs)

	var total int64
	for n := range results {
		total += n
	}
	for err := range errs {
		log.WithComponent("primary").Warn().Err(err).Msg("shard load failed, continuing with partial result")
	}
	return total, nil
}

func (c *Client) runExternalLoader(ctx context.Context, shardPath string) (int64, error) {
	args := []string{
		"--collection", partsCollection,
		"--file", shardPath,
		"--writeConcern", `{w:0}`,
		"--bypassDocumentValidation",
		"--numInsertionWorkers", fmt.Sprintf("%d", max(1, c.mongoWorkers)),
	}
	cmd := exec.CommandContext(ctx, c.bulkLoaderBin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("primary: external loader %s: %w: %s", shardPath, err, out)
	}
	return countLines(shardPath)
}

// loadShardsInProcess is the fallback bulk insert used when no external
// loader binary is configured: ordered:false, unacknowledged writes, batches
// of 50000 documents per shard file.
func (c *Client) loadShardsInProcess(ctx context.Context, shardPaths []string) (int64, error) {
	const batchSize = 50000
	coll := c.db.Collection(partsCollection, options.Collection().SetWriteConcern(writeconcern.Unacknowledged()))

	var total int64
	for _, path := range shardPaths {
		n, err := c.loadShardInProcess(ctx, coll, path, batchSize)
		if err != nil {
			log.WithComponent("primary").Warn().Err(err).Str("shard", path).Msg("shard load failed, continuing")
			continue
		}
		total += n
	}
	return total, nil
}

func (c *Client) loadShardInProcess(ctx context.Context, coll *mongo.Collection, path string, batchSize int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("primary: open shard %s: %w", path, err)
	}
	defer f.Close()

	var inserted int64
	batch := make([]interface{}, 0, batchSize)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		opts := options.InsertMany().SetOrdered(false)
		if _, err := coll.InsertMany(ctx, batch, opts); err != nil {
			return err
		}
		inserted += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		var doc types.PartListing
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			continue
		}
		batch = append(batch, doc)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return inserted, fmt.Errorf("primary: insert batch: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return inserted, fmt.Errorf("primary: scan shard %s: %w", path, err)
	}
	if err := flush(); err != nil {
		return inserted, fmt.Errorf("primary: insert final batch: %w", err)
	}
	return inserted, nil
}

// BuildIndexes creates the secondary indexes required by spec.md §4.3 in
// the background. Each index is created independently; a single index's
// failure is logged and does not abort the others.
func (c *Client) BuildIndexes(ctx context.Context) {
	coll := c.db.Collection(partsCollection)
	bg := options.Index().SetBackground(true)

	single := []string{"integration", "integrationName", "-importedAt"}
	for _, field := range single {
		keys := bson.D{{Key: trimSign(field), Value: sortFor(field)}}
		c.createIndex(ctx, coll, mongo.IndexModel{Keys: keys, Options: bg}, field)
	}

	compounds := [][2]string{
		{"partNumber", "supplier"},
		{"partNumber", "integration"},
		{"brand", "supplier"},
	}
	for _, pair := range compounds {
		keys := bson.D{{Key: pair[0], Value: 1}, {Key: pair[1], Value: 1}}
		c.createIndex(ctx, coll, mongo.IndexModel{Keys: keys, Options: bg}, pair[0]+","+pair[1])
	}

	textKeys := bson.D{
		{Key: "partNumber", Value: "text"},
		{Key: "brand", Value: "text"},
		{Key: "description", Value: "text"},
		{Key: "supplier", Value: "text"},
	}
	textOpts := options.Index().
		SetBackground(true).
		SetName(textIndexName).
		SetWeights(bson.D{
			{Key: "partNumber", Value: 10},
			{Key: "brand", Value: 5},
			{Key: "description", Value: 3},
			{Key: "supplier", Value: 2},
		})
	c.createIndex(ctx, coll, mongo.IndexModel{Keys: textKeys, Options: textOpts}, textIndexName)
}

func (c *Client) createIndex(ctx context.Context, coll *mongo.Collection, model mongo.IndexModel, label string) {
	if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
		log.WithComponent("primary").Warn().Err(err).Str("index", label).Msg("index build failed")
	}
}

// CountDocuments returns an estimated document count for the parts
// collection, acceptable per spec.md §4.3.
func (c *Client) CountDocuments(ctx context.Context) (int64, error) {
	n, err := c.db.Collection(partsCollection).EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("primary: count: %w", err)
	}
	return n, nil
}

func trimSign(field string) string {
	if len(field) > 0 && field[0] == '-' {
		return field[1:]
	}
	return field
}

func sortFor(field string) int {
	if len(field) > 0 && field[0] == '-' {
		return -1
	}
	return 1
}

func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
