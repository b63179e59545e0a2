/*
Package pipeline is the Pipeline Engine (C5): runOnce drives one
integration through Clean -> Fetch -> (Transform || PrimaryLoad ||
SearchLoad) -> Finalize.

	engine := pipeline.New(primaryClient, searchClient, hist, pipeline.Options{
		ScratchRoot:     cfg.DataDir + "/scratch",
		MongoConcurrent: cfg.MongoConcurrent,
		ESBulkConcurrent: cfg.ESBulkConcurrent,
	})
	err := engine.RunOnce(ctx, integration, types.TriggeredByScheduler, func(ev types.ProgressEvent) {
		log.Logger.Info().Interface("progress", ev).Msg("sync progress")
	})

The overlapping stage fans the transformer's per-file completions onto
two bounded channels (Qmongo, Qsearch), each drained by a pool of
loader/streamer goroutines; a POISON sentinel per consumer signals
end-of-stream once the transformer finishes. The scratch directory is
removed on every exit path via a single deferred cleanup, and a fatal
error at any stage marks the run failed and resets the integration to
error before returning.
*/
package pipeline
