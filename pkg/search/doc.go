/*
Package search is the Search Store Adapter (C2): index-per-run behind an
alias, created with a fixed load-tuned mapping/settings document, streamed
via `_bulk`, promoted atomically, with stale indexes cleaned up after.

# Run flow

	runIndex, _ := client.PrepareRun(ctx, "automotive_parts")
	indexed, _ := client.IngestShard(ctx, shardPath)   // per shard, called from pkg/pipeline
	client.Promote(ctx, "automotive_parts", runIndex)
	client.CleanupOldIndexes(ctx, "automotive_parts", runIndex)

The alias state machine is: <none> → points to RUN_k → (RUN_k+1 populated)
→ points to RUN_k+1 → RUN_k deleted. Readers always see one consistent
index; Promote's final /_aliases call removes the alias from every index
that currently holds it and adds it to runIndex in one atomic request.

No Elasticsearch client SDK is used: the wire contract (mapping, bulk
chunking, alias swap body) is pinned precisely enough by the spec that a
thin net/http client is the correct and only grounded choice.
*/
package search
