/*
Package ftp is the FTP Fetcher (C3): one control connection to list the
remote directory, then a fresh one-shot connection per file download, up to
Options.Parallel concurrent, each with linear-backoff retry.

	result, err := ftp.FetchAll(ctx, integration.FTP, scratchDir, ftp.Options{
		Parallel: cfg.FTPParallel,
		Retries:  cfg.FTPRetries,
		Timeout:  cfg.FTPTimeout,
	})

Only a listing failure fails the stage; per-file failures land in
Result.Failed and the run proceeds with whatever downloaded successfully.
A failed attempt's partial file is removed before the next retry so a
truncated download is never mistaken for a complete one.
*/
package ftp
