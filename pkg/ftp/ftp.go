// Package ftp implements the FTP Fetcher (C3): list the remote directory
// once, then bounded-parallel download each matching file over a fresh
// control connection per file, with linear-backoff retry and a
// per-attempt timeout.
package ftp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/turbosync/pkg/log"
	"github.com/cuemby/turbosync/pkg/types"
)

// FailedFile records one file that could not be downloaded after
// exhausting retries.
type FailedFile struct {
	Name   string
	Reason string
}

// Result is the outcome of FetchAll.
type Result struct {
	Downloaded []string
	Failed     []FailedFile
	Bytes      int64
	Elapsed    time.Duration
}

// Options bounds FetchAll's concurrency and retry behavior.
type Options struct {
	Parallel int           // max concurrent downloads, default 30
	Retries  int           // max attempts per file, default 3
	Timeout  time.Duration // per-attempt timeout, default 60s
}

func (o Options) withDefaults() Options {
	if o.Parallel <= 0 {
		o.Parallel = 30
	}
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return o
}

// FetchAll lists cfg's remote path, filters by cfg.Glob (default "*.csv"),
// and downloads every match into destDir. Only a listing failure fails the
// stage; per-file failures are accumulated into Result.Failed and do not
// abort the run.
func FetchAll(ctx context.Context, cfg types.FTPConfig, destDir string, opts Options) (Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	names, err := listRemoteFiles(ctx, cfg, opts.Timeout)
	if err != nil {
		return Result{}, fmt.Errorf("ftp: list: %w", err)
	}

	var (
		result  Result
		errOnly = make(chan FailedFile, len(names))
		okOnly  = make(chan struct {
			name  string
			bytes int64
		}, len(names))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)

	for _, name := range names {
		name := name
		g.Go(func() error {
			n, err := downloadWithRetry(gctx, cfg, name, destDir, opts)
			if err != nil {
				errOnly <- FailedFile{Name: name, Reason: err.Error()}
				return nil
			}
			okOnly <- struct {
				name  string
				bytes int64
			}{name, n}
			return nil
		})
	}
	// errgroup.Wait only returns an error from a goroutine that itself
	// returns one; this loop never returns an error, so Wait cannot fail.
	_ = g.Wait()

	close(errOnly)
	close(okOnly)
	for f := range errOnly {
		result.Failed = append(result.Failed, f)
	}
	for ok := range okOnly {
		result.Downloaded = append(result.Downloaded, ok.name)
		result.Bytes += ok.bytes
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// listRemoteFiles opens one control connection, lists cfg.Path, filters by
// cfg.Glob, and closes the connection before returning.
func listRemoteFiles(ctx context.Context, cfg types.FTPConfig, timeout time.Duration) ([]string, error) {
	conn, err := dial(cfg, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", cfg.Path, err)
	}

	var fileNames []string
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile {
			continue
		}
		fileNames = append(fileNames, entry.Name)
	}
	return matchGlob(fileNames, cfg.Glob), nil
}

// matchGlob filters names by glob (default "*.csv" when empty), skipping
// any name glob fails to parse against rather than erroring the whole list.
func matchGlob(names []string, glob string) []string {
	if glob == "" {
		glob = "*.csv"
	}
	var out []string
	for _, name := range names {
		if matched, err := filepath.Match(glob, name); err == nil && matched {
			out = append(out, name)
		}
	}
	return out
}

// downloadWithRetry downloads one file with up to opts.Retries attempts,
// 1s*attempt# linear backoff, truncating any partial file before retrying.
func downloadWithRetry(ctx context.Context, cfg types.FTPConfig, name, destDir string, opts Options) (int64, error) {
	destPath := filepath.Join(destDir, name)
	logger := log.WithFile(name)

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			os.Remove(destPath)
			select {
			case <-time.After(time.Duration(attempt-1) * time.Second):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		timer := timerStart()
		n, err := downloadOnce(ctx, cfg, name, destPath, opts.Timeout)
		if err == nil {
			logger.Debug().Int("attempt", attempt).Dur("elapsed", timer()).Msg("downloaded")
			return n, nil
		}
		lastErr = err
		logger.Warn().Int("attempt", attempt).Err(err).Msg("download attempt failed")
	}
	os.Remove(destPath)
	return 0, fmt.Errorf("exhausted %d attempts: %w", opts.Retries, lastErr)
}

// downloadOnce performs a single, one-shot download attempt over a fresh
// control connection, avoiding head-of-line blocking between files.
func downloadOnce(ctx context.Context, cfg types.FTPConfig, name, destPath string, timeout time.Duration) (int64, error) {
	conn, err := dial(cfg, timeout)
	if err != nil {
		return 0, err
	}
	defer conn.Quit()

	resp, err := conn.Retr(filepath.Join(cfg.Path, name))
	if err != nil {
		return 0, fmt.Errorf("retr: %w", err)
	}
	defer resp.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp)
	if err != nil {
		return n, fmt.Errorf("copy: %w", err)
	}
	return n, nil
}

func dial(cfg types.FTPConfig, timeout time.Duration) (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	opts := []ftp.DialOption{ftp.DialWithTimeout(timeout)}
	if cfg.Secure {
		opts = append(opts, ftp.DialWithTLS(nil)) // implicit TLS, per spec.md §4.6
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("login: %w", err)
	}
	return conn, nil
}

func timerStart() func() time.Duration {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}
