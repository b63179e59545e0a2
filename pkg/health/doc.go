/*
Package health provides HTTP, TCP, and exec health checkers used to probe
turbosync's external dependencies before a sync run starts.

# Checker interface

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

TCPChecker dials a host:port and is used for the MongoDB host (pkg/primary's
Preflight) and the configured FTP host (pkg/pipeline's preflight). ExecChecker
runs a command and checks its exit code, used to verify the external
bulk-loader binary is on PATH before a run starts, so a missing binary
surfaces as a clear preflight error instead of a mid-run failure.

HTTPChecker backs the search store's reachability check: pkg/search.Ping
builds one against `/_cluster/health`, adds an Authorization header via
WithHeader when credentials are configured, and treats any status outside
the default 200-399 range (or a timeout) as unreachable. The response body
is not inspected.

# Status and hysteresis

Status tracks consecutive failures/successes and only flips Healthy after
Config.Retries consecutive failures, so a single transient network blip
doesn't take a dependency out of rotation. It's available to callers that
poll a dependency repeatedly and want to debounce flapping; the one-shot
preflight checks above use a Result directly instead, since each runs once
per sync and a failure there should abort that run immediately rather than
ride out a retry budget.

# Usage

	checker := health.NewTCPChecker("localhost:27017")
	result := checker.Check(ctx)
	if !result.Healthy {
		return fmt.Errorf("mongo unreachable: %s", result.Message)
	}
*/
package health
