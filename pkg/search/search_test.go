package search

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIndexNameFormat(t *testing.T) {
	ts := time.Date(2026, 7, 31, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "automotive_parts_20260731_140509", runIndexName("automotive_parts", ts))
}

func TestLoadTimeIndexBodyIsValidJSON(t *testing.T) {
	body := loadTimeIndexBody()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	settings := decoded["settings"].(map[string]any)
	assert.Equal(t, float64(5), settings["number_of_shards"])
	assert.Equal(t, float64(0), settings["number_of_replicas"])
	assert.Equal(t, float64(-1), settings["refresh_interval"])

	mappings := decoded["mappings"].(map[string]any)
	props := mappings["properties"].(map[string]any)
	partNumber := props["partNumber"].(map[string]any)
	assert.Equal(t, "keyword", partNumber["type"])
}

func TestPromoteSettingsBodyIsValidJSON(t *testing.T) {
	body := promoteSettingsBody()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	index := decoded["index"].(map[string]any)
	assert.Equal(t, "5s", index["refresh_interval"])
}

func TestBulkResponseCountsOnlyNonErrorItems(t *testing.T) {
	raw := []byte(`{
		"errors": true,
		"items": [
			{"index": {}},
			{"index": {"error": {"type": "mapper_parsing_exception"}}},
			{"index": {}}
		]
	}`)

	var resp bulkResponse
	require.NoError(t, json.Unmarshal(raw, &resp))

	var indexed int64
	for _, item := range resp.Items {
		if item.Index.Error == nil {
			indexed++
		}
	}
	assert.Equal(t, int64(2), indexed)
}
