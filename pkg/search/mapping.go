package search

import "encoding/json"

// loadTimeIndexBody is the fixed index-creation mapping/settings document,
// tuned for bulk load throughput (spec.md §4.4, wire-level verbatim).
func loadTimeIndexBody() []byte {
	body := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   5,
			"number_of_replicas": 0,
			"refresh_interval":   -1,
			"max_result_window":  50000,
			"translog": map[string]any{
				"durability":          "async",
				"sync_interval":       "120s",
				"flush_threshold_size": "2gb",
			},
			"merge": map[string]any{
				"scheduler": map[string]any{"max_thread_count": 1},
			},
			"analysis": map[string]any{
				"analyzer": map[string]any{
					"part_number_analyzer": map[string]any{
						"tokenizer":   "keyword",
						"filter":      []string{"lowercase"},
					},
					"autocomplete_analyzer": map[string]any{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "autocomplete_filter"},
					},
					"autocomplete_search_analyzer": map[string]any{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase"},
					},
				},
				"filter": map[string]any{
					"autocomplete_filter": map[string]any{
						"type":     "edge_ngram",
						"min_gram": 2,
						"max_gram": 20,
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"partNumber": map[string]any{
					"type": "keyword",
					"fields": map[string]any{
						"text": map[string]any{
							"type":     "text",
							"analyzer": "part_number_analyzer",
						},
						"autocomplete": map[string]any{
							"type":            "text",
							"analyzer":        "autocomplete_analyzer",
							"search_analyzer": "autocomplete_search_analyzer",
						},
					},
				},
				"description": map[string]any{
					"type": "text",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
				"brand": map[string]any{
					"type": "keyword",
					"fields": map[string]any{
						"text": map[string]any{"type": "text"},
					},
				},
				"supplier": map[string]any{
					"type": "keyword",
					"fields": map[string]any{
						"text": map[string]any{"type": "text"},
					},
				},
				"category":     map[string]any{"type": "keyword"},
				"subcategory":  map[string]any{"type": "keyword"},
				"stock":        map[string]any{"type": "keyword"},
				"stockCode":    map[string]any{"type": "keyword"},
				"weightUnit":   map[string]any{"type": "keyword"},
				"currency":     map[string]any{"type": "keyword"},
				"price":        map[string]any{"type": "double"},
				"quantity":     map[string]any{"type": "integer"},
				"minOrderQty":  map[string]any{"type": "integer"},
				"weight":       map[string]any{"type": "double"},
				"volume":       map[string]any{"type": "double"},
				"deliveryDays": map[string]any{"type": "integer"},
				"importedAt":   map[string]any{"type": "date"},
				"createdAt":    map[string]any{"type": "date"},
			},
		},
	}

	out, _ := json.Marshal(body)
	return out
}

// promoteSettingsBody restores normal runtime settings once a run's bulk
// load has finished, undoing loadTimeIndexBody's load-tuned overrides.
func promoteSettingsBody() []byte {
	body := map[string]any{
		"index": map[string]any{
			"refresh_interval": "5s",
			"translog": map[string]any{
				"durability":    "request",
				"sync_interval": "5s",
			},
			"merge": map[string]any{
				// nil clears the load-time cap, restoring the ES default.
				"scheduler": map[string]any{"max_thread_count": nil},
			},
		},
	}
	out, _ := json.Marshal(body)
	return out
}
