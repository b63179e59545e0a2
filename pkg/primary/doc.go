/*
Package primary is the Primary Store Adapter (C1): it owns the part-listings
collection in MongoDB, the integrations collection's CAS-updated status/
lastSync/stats fields, and the sync_requests out-of-process worker queue.

# Load flow

	client.Drop(ctx)                       // whole-collection replace
	client.LoadShards(ctx, shardPaths)      // external loader, or in-process fallback
	client.BuildIndexes(ctx)                // background, per-index error isolation
	n, _ := client.CountDocuments(ctx)      // estimated count is acceptable

LoadShards prefers an external mongoimport-style binary (Options.BulkLoaderBin)
run once per shard with --writeConcern {w:0} and --bypassDocumentValidation,
up to MongoConcurrent in parallel. With no bulk-loader binary configured it
falls back to an in-process InsertMany with ordered:false in 50000-document
batches.

# Optimistic concurrency

Integration.Version gates every status/lastSync/stats write: UpdateStatus,
UpdateLastSync, and UpdateStats all CAS on {_id, version} and bump version
on success, returning ErrVersionConflict on a stale read so a caller can
re-fetch and retry rather than silently clobbering a concurrent update from
outside the pipeline.
*/
package primary
