package ftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchGlobDefaultsToCSV(t *testing.T) {
	names := []string{"parts_ABC123_part.csv", "readme.txt", "catalog.CSV"}
	assert.Equal(t, []string{"parts_ABC123_part.csv"}, matchGlob(names, ""))
}

func TestMatchGlobCustomPattern(t *testing.T) {
	names := []string{"a.tsv", "b.csv", "c.tsv"}
	assert.Equal(t, []string{"a.tsv", "c.tsv"}, matchGlob(names, "*.tsv"))
}

func TestMatchGlobNoMatches(t *testing.T) {
	names := []string{"a.txt", "b.doc"}
	assert.Empty(t, matchGlob(names, "*.csv"))
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 30, opts.Parallel)
	assert.Equal(t, 3, opts.Retries)
	assert.Equal(t, int64(60), int64(opts.Timeout.Seconds()))
}

func TestOptionsWithDefaultsPreservesSetValues(t *testing.T) {
	opts := Options{Parallel: 5, Retries: 1}.withDefaults()
	assert.Equal(t, 5, opts.Parallel)
	assert.Equal(t, 1, opts.Retries)
}
