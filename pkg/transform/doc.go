/*
Package transform is the CSV Transformer (C4): detects each file's header
and separator, resolves column roles by case-insensitive substring match,
normalizes rows, and streams two twin shards per input file — never
buffering a whole file in memory.

	events := transform.TransformAll(csvPaths, shardDir, integration, runIndex, importedAt, transform.Options{
		Parallel: cfg.TransformParallel,
	})
	for ev := range events {
		// ev.Result.PrimaryShardPath -> enqueue onto Qmongo
		// ev.Result.SearchShardPath  -> enqueue onto Qsearch
	}

TransformAll bounds concurrency to min(NumCPU, Options.Parallel) and
delivers one FileDoneEvent per file as soon as its shards are complete,
so the caller can pipeline downstream loading without waiting on siblings.
A per-file fatal error (I/O, undecodable content) surfaces as a
zero-record event with Err set; the caller is expected to log it and
continue with the remaining files.
*/
package transform
