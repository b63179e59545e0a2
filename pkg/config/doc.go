// Package config loads turbosync's runtime configuration from the
// environment. Every tunable has a default, so a process started with no
// environment at all still runs against localhost Mongo/Elasticsearch with
// the documented concurrency and retention settings.
//
// Load is cheap and side-effect free aside from warning logs on malformed
// values; callers call it once in main and pass the resulting Config's
// fields into the components main constructs.
package config
