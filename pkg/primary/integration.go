package primary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cuemby/turbosync/pkg/types"
)

// ErrVersionConflict is returned by the CAS update helpers when another
// writer updated the integration between read and write.
var ErrVersionConflict = errors.New("primary: integration version conflict")

// ErrSyncRequestPending is returned by CreateSyncRequest when a non-terminal
// sync_requests row already exists for the same integration.
var ErrSyncRequestPending = errors.New("primary: sync request already pending for integration")

type integrationDoc struct {
	ID        string                   `bson:"_id"`
	Name      string                   `bson:"name"`
	Transport types.TransportKind      `bson:"transport"`
	FTP       *types.FTPConfig         `bson:"ftp,omitempty"`
	Schedule  types.Schedule           `bson:"schedule"`
	Enabled   bool                     `bson:"enabled"`
	Status    types.IntegrationStatus  `bson:"status"`
	LastSync  *types.LastSync          `bson:"lastSync,omitempty"`
	Stats     types.IntegrationStats   `bson:"stats"`
	Version   int64                    `bson:"version"`
}

func (d integrationDoc) toIntegration() *types.Integration {
	return &types.Integration{
		ID:        d.ID,
		Name:      d.Name,
		Transport: d.Transport,
		FTP:       d.FTP,
		Schedule:  d.Schedule,
		Enabled:   d.Enabled,
		Status:    d.Status,
		LastSync:  d.LastSync,
		Stats:     d.Stats,
		Version:   d.Version,
	}
}

// ListEnabled returns every integration whose Enabled flag is set and whose
// Status is one the scheduler recovers from (active|inactive|error) —
// syncing integrations are included too, since a syncing record found at
// startup is exactly what startup recovery looks for.
func (c *Client) ListEnabled(ctx context.Context) ([]*types.Integration, error) {
	cur, err := c.db.Collection(integrationsCollection).Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return nil, fmt.Errorf("primary: list integrations: %w", err)
	}
	defer cur.Close(ctx)

	var out []*types.Integration
	for cur.Next(ctx) {
		var doc integrationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("primary: decode integration: %w", err)
		}
		out = append(out, doc.toIntegration())
	}
	return out, cur.Err()
}

// Get fetches one integration by ID.
func (c *Client) Get(ctx context.Context, id string) (*types.Integration, error) {
	var doc integrationDoc
	err := c.db.Collection(integrationsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("primary: integration %s: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("primary: get integration: %w", err)
	}
	return doc.toIntegration(), nil
}

// UpsertIntegration creates or replaces an integration's configuration
// fields (name, transport, FTP connection, schedule, enabled flag) by ID,
// used to seed/update integrations from an operator-authored manifest
// instead of the excluded admin CRUD UI. It never touches Status, LastSync,
// Stats, or Version on an existing document — those are owned exclusively
// by the CAS update methods above and by the pipeline/reconciler, not by
// manifest application.
func (c *Client) UpsertIntegration(ctx context.Context, integ *types.Integration) error {
	filter := bson.M{"_id": integ.ID}
	update := bson.M{
		"$set": bson.M{
			"name":      integ.Name,
			"transport": integ.Transport,
			"ftp":       integ.FTP,
			"schedule":  integ.Schedule,
			"enabled":   integ.Enabled,
		},
		"$setOnInsert": bson.M{
			"status":  types.IntegrationActive,
			"stats":   types.IntegrationStats{},
			"version": int64(0),
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := c.db.Collection(integrationsCollection).UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("primary: upsert integration %s: %w", integ.ID, err)
	}
	return nil
}

// UpdateStatus performs a compare-and-swap status update: it only succeeds
// if integ.Version still matches the stored document, bumping Version on
// success so a concurrent writer's own CAS will fail and must re-read.
func (c *Client) UpdateStatus(ctx context.Context, integ *types.Integration, status types.IntegrationStatus) error {
	return c.casUpdate(ctx, integ, bson.M{"$set": bson.M{"status": status}})
}

// UpdateLastSync performs a CAS update of the LastSync snapshot and status.
func (c *Client) UpdateLastSync(ctx context.Context, integ *types.Integration, last types.LastSync) error {
	return c.casUpdate(ctx, integ, bson.M{"$set": bson.M{
		"lastSync": last,
		"status":   types.IntegrationActive,
	}})
}

// UpdateStats performs a CAS update of the running IntegrationStats
// counters, incrementing rather than overwriting so concurrent readers of
// an in-flight Integration value cannot clobber another run's increments
// between read and write (the increments are applied server-side).
func (c *Client) UpdateStats(ctx context.Context, integ *types.Integration, successDelta, failDelta int, recordsDelta, lastSyncRecords int64) error {
	return c.casUpdate(ctx, integ, bson.M{
		"$inc": bson.M{
			"stats.totalSyncs":      1,
			"stats.successfulSyncs": successDelta,
			"stats.failedSyncs":     failDelta,
			"stats.totalRecords":    recordsDelta,
		},
		"$set": bson.M{"stats.lastSyncRecords": lastSyncRecords},
	})
}

func (c *Client) casUpdate(ctx context.Context, integ *types.Integration, update bson.M) error {
	if _, ok := update["$inc"]; ok {
		update["$inc"].(bson.M)["version"] = 1
	} else {
		update["$inc"] = bson.M{"version": 1}
	}

	filter := bson.M{"_id": integ.ID, "version": integ.Version}
	res, err := c.db.Collection(integrationsCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("primary: cas update: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	integ.Version++
	return nil
}

// syncRequestDoc mirrors types.SyncRequest for the sync_requests
// collection, used when SYNC_USE_WORKER routes runs through an
// out-of-process worker instead of the in-process engine.
type syncRequestDoc struct {
	ID              string                   `bson:"_id"`
	IntegrationID   string                   `bson:"integrationId"`
	Status          types.SyncRequestStatus  `bson:"status"`
	CreatedAt       time.Time                `bson:"createdAt"`
	Source          types.TriggerSource      `bson:"source"`
	HistoryRecordID string                   `bson:"historyRecordId"`
	Progress        types.ProgressEvent      `bson:"progress"`
}

// CreateSyncRequest enqueues a pending sync_requests entry for an
// out-of-process worker to pick up. It aborts with ErrSyncRequestPending if
// a non-terminal row already exists for the same integration: the
// sync_requests collection is the cross-process queue, so the in-process
// guards in pkg/manager (which only see this one process's own runs) cannot
// substitute for this check.
func (c *Client) CreateSyncRequest(ctx context.Context, req *types.SyncRequest) error {
	existing, err := c.db.Collection(syncRequestsCollection).CountDocuments(ctx, bson.M{
		"integrationId": req.IntegrationID,
		"status":        bson.M{"$in": []types.SyncRequestStatus{types.RequestPending, types.RequestProcessing}},
	})
	if err != nil {
		return fmt.Errorf("primary: create sync request: check existing: %w", err)
	}
	if existing > 0 {
		return ErrSyncRequestPending
	}

	doc := syncRequestDoc{
		ID:              req.ID,
		IntegrationID:   req.IntegrationID,
		Status:          req.Status,
		CreatedAt:       req.CreatedAt,
		Source:          req.Source,
		HistoryRecordID: req.HistoryRecordID,
		Progress:        req.Progress,
	}
	if _, err := c.db.Collection(syncRequestsCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("primary: create sync request: %w", err)
	}
	return nil
}

// MarkSyncRequestsStale transitions every non-terminal sync_requests entry
// older than threshold to "stale", mirroring the history store's
// MarkStaleAsInterrupted for the out-of-process queue.
func (c *Client) MarkSyncRequestsStale(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := time.Now().Add(-threshold)
	filter := bson.M{
		"status":    bson.M{"$in": []types.SyncRequestStatus{types.RequestPending, types.RequestProcessing}},
		"createdAt": bson.M{"$lt": cutoff},
	}
	res, err := c.db.Collection(syncRequestsCollection).UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"status": types.RequestStale},
	})
	if err != nil {
		return 0, fmt.Errorf("primary: mark sync requests stale: %w", err)
	}
	return res.ModifiedCount, nil
}

// MarkSyncRequestDone marks a single sync_requests entry as done.
func (c *Client) MarkSyncRequestDone(ctx context.Context, id string) error {
	_, err := c.db.Collection(syncRequestsCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": types.RequestDone}},
	)
	if err != nil {
		return fmt.Errorf("primary: mark sync request done: %w", err)
	}
	return nil
}
