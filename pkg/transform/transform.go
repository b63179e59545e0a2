// Package transform implements the CSV Transformer (C4): per-file column
// auto-detection and row normalization, emitting twin streamed artifacts —
// a primary-shard NDJSON file and a search-shard `_bulk` body — for one
// input CSV.
package transform

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/turbosync/pkg/log"
	"github.com/cuemby/turbosync/pkg/types"
)

// Result is the outcome of transforming one CSV file.
type Result struct {
	PrimaryShardPath string
	SearchShardPath  string
	Records          int64
}

// FileDoneEvent is emitted once per file as soon as its twin shards are
// fully written, so the caller can enqueue them for downstream loading
// without waiting for sibling files to finish.
type FileDoneEvent struct {
	File       string
	Records    int64
	Progress   float64 // processed/total, 0..1
	RatePerSec float64
	Result     Result
	Err        error
}

var stockCodeFromName = regexp.MustCompile(`_([A-Z0-9]+)_part`)

// Options bounds transform concurrency.
type Options struct {
	Parallel int // max concurrent file workers, default 24, capped by runtime.NumCPU
}

func (o Options) withDefaults() Options {
	if o.Parallel <= 0 {
		o.Parallel = 24
	}
	if cores := runtime.NumCPU(); o.Parallel > cores {
		o.Parallel = cores
	}
	return o
}

// TransformAll transforms every csvPath concurrently (bounded by
// opts.Parallel), writing shards under shardDir, and delivers one
// FileDoneEvent per file on the returned channel as soon as it completes.
// The channel is closed once every file has been processed.
func TransformAll(csvPaths []string, shardDir string, integration *types.Integration, runIndex string, importedAt time.Time, opts Options) <-chan FileDoneEvent {
	opts = opts.withDefaults()
	events := make(chan FileDoneEvent, len(csvPaths))

	go func() {
		defer close(events)

		sem := make(chan struct{}, opts.Parallel)
		done := make(chan FileDoneEvent)
		start := time.Now()

		for _, path := range csvPaths {
			path := path
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				res, err := transformOne(path, shardDir, integration, runIndex, importedAt)
				done <- FileDoneEvent{File: filepath.Base(path), Records: res.Records, Result: res, Err: err}
			}()
		}

		var processed int
		for range csvPaths {
			ev := <-done
			processed++
			ev.Progress = float64(processed) / float64(len(csvPaths))
			elapsed := time.Since(start).Seconds()
			if elapsed > 0 {
				ev.RatePerSec = float64(ev.Records) / elapsed
			}
			events <- ev
		}
	}()

	return events
}

// transformOne implements the §4.2 contract for a single file: detect the
// header, resolve column roles, stream-normalize every row into the twin
// primary/search shard files.
func transformOne(csvPath, shardDir string, integration *types.Integration, runIndex string, importedAt time.Time) (Result, error) {
	logger := log.WithFile(filepath.Base(csvPath))

	in, err := os.Open(csvPath)
	if err != nil {
		logger.Error().Err(err).Msg("open csv failed")
		return Result{}, fmt.Errorf("transform: open %s: %w", csvPath, err)
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	sep, header, ok := detectHeader(scanner)
	if !ok {
		if err := scanner.Err(); err != nil {
			logger.Error().Err(err).Msg("read header failed")
			return Result{}, fmt.Errorf("transform: read header %s: %w", csvPath, err)
		}
		return Result{}, nil // empty file: zero records, not an error
	}
	cols := resolveColumns(header, sep)

	base := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
	primaryPath := filepath.Join(shardDir, base+".primary.ndjson")
	searchPath := filepath.Join(shardDir, base+".search.ndjson")

	primaryOut, err := os.Create(primaryPath)
	if err != nil {
		return Result{}, fmt.Errorf("transform: create primary shard: %w", err)
	}
	defer primaryOut.Close()
	searchOut, err := os.Create(searchPath)
	if err != nil {
		return Result{}, fmt.Errorf("transform: create search shard: %w", err)
	}
	defer searchOut.Close()

	primaryW := bufio.NewWriter(primaryOut)
	searchW := bufio.NewWriter(searchOut)

	actionLine, err := json.Marshal(map[string]any{"index": map[string]any{"_index": runIndex}})
	if err != nil {
		return Result{}, fmt.Errorf("transform: marshal bulk action: %w", err)
	}

	fileName := filepath.Base(csvPath)
	var records int64
	for scanner.Scan() {
		cells := splitRow(scanner.Text(), sep)
		row, ok := normalizeRow(cells, cols, fileName)
		if !ok {
			continue // empty partNumber: silent skip
		}
		row.IntegrationID = integration.ID
		row.IntegrationName = integration.Name
		row.FileName = fileName
		row.ImportedAt = importedAt

		if err := writePrimary(primaryW, row); err != nil {
			return Result{}, fmt.Errorf("transform: write primary shard: %w", err)
		}
		if err := writeSearch(searchW, actionLine, row); err != nil {
			return Result{}, fmt.Errorf("transform: write search shard: %w", err)
		}
		records++
	}
	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("decode csv failed")
		return Result{}, fmt.Errorf("transform: decode %s: %w", csvPath, err)
	}

	if err := primaryW.Flush(); err != nil {
		return Result{}, fmt.Errorf("transform: flush primary shard: %w", err)
	}
	if err := searchW.Flush(); err != nil {
		return Result{}, fmt.Errorf("transform: flush search shard: %w", err)
	}

	return Result{PrimaryShardPath: primaryPath, SearchShardPath: searchPath, Records: records}, nil
}

func writePrimary(w *bufio.Writer, row types.PartListing) error {
	doc, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if _, err := w.Write(doc); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// searchDoc mirrors types.PartListing but without ImportedAt, per §4.2's
// "document with importedAt omitted" rule.
type searchDoc struct {
	PartNumber      string  `json:"partNumber"`
	Description     string  `json:"description,omitempty"`
	Brand           string  `json:"brand,omitempty"`
	Supplier        string  `json:"supplier,omitempty"`
	Category        string  `json:"category,omitempty"`
	Subcategory     string  `json:"subcategory,omitempty"`
	Stock           string  `json:"stock"`
	StockCode       string  `json:"stockCode,omitempty"`
	WeightUnit      string  `json:"weightUnit"`
	Price           float64 `json:"price"`
	Quantity        int32   `json:"quantity"`
	MinOrderQty     int32   `json:"minOrderQty"`
	Weight          float64 `json:"weight,omitempty"`
	Volume          float64 `json:"volume,omitempty"`
	DeliveryDays    int32   `json:"deliveryDays,omitempty"`
	Currency        string  `json:"currency"`
	IntegrationID   string  `json:"integrationId"`
	IntegrationName string  `json:"integrationName"`
	FileName        string  `json:"fileName"`
}

func writeSearch(w *bufio.Writer, actionLine []byte, row types.PartListing) error {
	if _, err := w.Write(actionLine); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	doc := searchDoc{
		PartNumber: row.PartNumber, Description: row.Description, Brand: row.Brand,
		Supplier: row.Supplier, Category: row.Category, Subcategory: row.Subcategory,
		Stock: row.Stock, StockCode: row.StockCode, WeightUnit: row.WeightUnit,
		Price: row.Price, Quantity: row.Quantity, MinOrderQty: row.MinOrderQty,
		Weight: row.Weight, Volume: row.Volume, DeliveryDays: row.DeliveryDays,
		Currency: row.Currency, IntegrationID: row.IntegrationID,
		IntegrationName: row.IntegrationName, FileName: row.FileName,
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// detectHeader reads past any leading blank lines, returns the detected
// separator and the parsed header cells. ok is false for an empty file.
func detectHeader(scanner *bufio.Scanner) (sep byte, header []string, ok bool) {
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		sep = byte(',')
		if strings.ContainsRune(line, ';') {
			sep = ';'
		}
		return sep, splitRow(line, sep), true
	}
	return 0, nil, false
}

func splitRow(line string, sep byte) []string {
	parts := strings.Split(line, string(sep))
	for i, p := range parts {
		parts[i] = dequote(strings.TrimSpace(p))
	}
	return parts
}

func dequote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// columnIndex maps each recognized role to its position in the header, or
// -1 if the file has no matching column. Built once per file.
type columnIndex struct {
	partNumber, description, brand, supplier           int
	category, subcategory, stock, stockCode            int
	weightUnit, price, currency, quantity, minOrderQty int
	weight, volume, deliveryDays                       int
}

// roleSubstrings lists, per role, the lowercase substrings (or exact
// matches, prefixed "=") that identify a header token as that role. Roles
// are assigned in the fixed order of resolveColumns, and a column claimed
// by one role is not offered to the roles assigned after it.
var roleSubstrings = map[string][]string{
	"partNumber":   {"vendor code", "part", "sku", "=code"},
	"description":  {"title", "desc", "name"},
	"brand":        {"brand", "manufacturer", "make"},
	"supplier":     {"supplier", "vendor"},
	"category":     {"category"},
	"subcategory":  {"subcategory"},
	"stock":        {"stock status", "availability", "stock"},
	"stockCode":    {"stock code", "stockcode"},
	"weightUnit":   {"weight unit", "weightunit"},
	"price":        {"price", "cost"},
	"currency":     {"currency"},
	"quantity":     {"quantity", "qty"},
	"minOrderQty":  {"min_lot", "moq", "min order", "minorderqty"},
	"weight":       {"weight"},
	"volume":       {"volume"},
	"deliveryDays": {"delivery", "lead_time", "lead time"},
}

func resolveColumns(header []string, _ byte) columnIndex {
	idx := columnIndex{
		partNumber: -1, description: -1, brand: -1, supplier: -1,
		category: -1, subcategory: -1, stock: -1, stockCode: -1,
		weightUnit: -1, price: -1, currency: -1, quantity: -1,
		minOrderQty: -1, weight: -1, volume: -1, deliveryDays: -1,
	}

	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	used := make(map[int]bool, len(header))

	assign := func(role string, dst *int) {
		if *dst >= 0 {
			return
		}
		for _, needle := range roleSubstrings[role] {
			exact := strings.HasPrefix(needle, "=")
			needle = strings.TrimPrefix(needle, "=")
			for i, token := range lower {
				if used[i] {
					continue
				}
				if exact {
					if token == needle {
						*dst, used[i] = i, true
						return
					}
					continue
				}
				if strings.Contains(token, needle) {
					*dst, used[i] = i, true
					return
				}
			}
		}
	}

	// subcategory is matched before category so a header literally named
	// "subcategory" doesn't also satisfy category's "category" substring.
	assign("subcategory", &idx.subcategory)
	assign("stockCode", &idx.stockCode)
	assign("weightUnit", &idx.weightUnit)
	assign("minOrderQty", &idx.minOrderQty)
	assign("deliveryDays", &idx.deliveryDays)
	assign("partNumber", &idx.partNumber)
	assign("description", &idx.description)
	assign("brand", &idx.brand)
	assign("supplier", &idx.supplier)
	assign("category", &idx.category)
	assign("stock", &idx.stock)
	assign("price", &idx.price)
	assign("currency", &idx.currency)
	assign("quantity", &idx.quantity)
	assign("weight", &idx.weight)
	assign("volume", &idx.volume)

	return idx
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// normalizeRow applies the §4.2 row rules to one already-split, already
// trimmed/dequoted row. ok is false when partNumber is empty, meaning the
// row must be silently dropped.
func normalizeRow(cells []string, cols columnIndex, fileName string) (types.PartListing, bool) {
	partNumber := cell(cells, cols.partNumber)
	if partNumber == "" {
		return types.PartListing{}, false
	}

	stockCode := cell(cells, cols.stockCode)
	if stockCode == "" {
		if m := stockCodeFromName.FindStringSubmatch(fileName); m != nil {
			stockCode = m[1]
		}
	}

	currency := strings.ToUpper(cell(cells, cols.currency))
	if currency == "" {
		currency = "AED"
	}
	stock := cell(cells, cols.stock)
	if stock == "" {
		stock = "unknown"
	}
	weightUnit := cell(cells, cols.weightUnit)
	if weightUnit == "" {
		weightUnit = "kg"
	}

	return types.PartListing{
		PartNumber:   partNumber,
		Description:  cell(cells, cols.description),
		Brand:        cell(cells, cols.brand),
		Supplier:     cell(cells, cols.supplier),
		Category:     cell(cells, cols.category),
		Subcategory:  cell(cells, cols.subcategory),
		Stock:        stock,
		StockCode:    stockCode,
		WeightUnit:   weightUnit,
		Price:        parseFloat(cell(cells, cols.price), 0),
		Quantity:     int32(parseInt(cell(cells, cols.quantity), 0)),
		MinOrderQty:  int32(parseInt(cell(cells, cols.minOrderQty), 1)),
		Weight:       parseFloat(cell(cells, cols.weight), 0),
		Volume:       parseFloat(cell(cells, cols.volume), 0),
		DeliveryDays: int32(parseInt(cell(cells, cols.deliveryDays), 0)),
		Currency:     currency,
	}, true
}

func parseFloat(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func parseInt(s string, def int64) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}
