package transform

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/turbosync/pkg/types"
)

func TestDetectHeaderCommaSeparator(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("\n\npartNumber,price\nA-1,10\n"))
	sep, header, ok := detectHeader(scanner)
	require.True(t, ok)
	assert.Equal(t, byte(','), sep)
	assert.Equal(t, []string{"partNumber", "price"}, header)
}

func TestDetectHeaderSemicolonSeparator(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("partNumber;price\nA-1;10\n"))
	sep, header, ok := detectHeader(scanner)
	require.True(t, ok)
	assert.Equal(t, byte(';'), sep)
	assert.Equal(t, []string{"partNumber", "price"}, header)
}

func TestDetectHeaderEmptyFile(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader(""))
	_, _, ok := detectHeader(scanner)
	assert.False(t, ok)
}

func TestResolveColumnsMatchesRoleSubstrings(t *testing.T) {
	cols := resolveColumns([]string{"Vendor Code", "Title", "Brand", "Min Order", "Stock Code", "Subcategory", "Category"}, ',')
	assert.Equal(t, 0, cols.partNumber)
	assert.Equal(t, 1, cols.description)
	assert.Equal(t, 2, cols.brand)
	assert.Equal(t, 3, cols.minOrderQty)
	assert.Equal(t, 4, cols.stockCode)
	assert.Equal(t, 5, cols.subcategory)
	assert.Equal(t, 6, cols.category)
}

func TestResolveColumnsMissingRoleIsNegativeOne(t *testing.T) {
	cols := resolveColumns([]string{"part", "price"}, ',')
	assert.Equal(t, -1, cols.brand)
	assert.Equal(t, -1, cols.stockCode)
}

func TestNormalizeRowSkipsEmptyPartNumber(t *testing.T) {
	cols := resolveColumns([]string{"part", "price"}, ',')
	_, ok := normalizeRow([]string{"", "10"}, cols, "catalog.csv")
	assert.False(t, ok)
}

func TestNormalizeRowAppliesDefaults(t *testing.T) {
	cols := resolveColumns([]string{"part", "price"}, ',')
	row, ok := normalizeRow([]string{"X-9", "12.5"}, cols, "catalog.csv")
	require.True(t, ok)
	assert.Equal(t, "X-9", row.PartNumber)
	assert.Equal(t, 12.5, row.Price)
	assert.Equal(t, "AED", row.Currency)
	assert.Equal(t, int32(1), row.MinOrderQty)
	assert.Equal(t, "unknown", row.Stock)
	assert.Equal(t, "kg", row.WeightUnit)
}

func TestNormalizeRowStockCodeFallsBackToFileName(t *testing.T) {
	cols := resolveColumns([]string{"part"}, ',')
	row, ok := normalizeRow([]string{"X-9"}, cols, "catalog_DS1_part_2024.csv")
	require.True(t, ok)
	assert.Equal(t, "DS1", row.StockCode)
}

func TestNormalizeRowNumericParseFailureUsesDefault(t *testing.T) {
	cols := resolveColumns([]string{"part", "price", "quantity"}, ',')
	row, ok := normalizeRow([]string{"X-9", "not-a-number", "also-bad"}, cols, "catalog.csv")
	require.True(t, ok)
	assert.Equal(t, 0.0, row.Price)
	assert.Equal(t, int32(0), row.Quantity)
}

func TestTransformOneWritesTwinShards(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "catalog.csv")
	content := "part,price,quantity\nBP-001,45.5,12\n,99,1\nBP-002,not-a-number,\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o644))

	integration := &types.Integration{ID: "int-1", Name: "Acme Parts"}
	importedAt := time.Unix(1700000000, 0).UTC()

	result, err := transformOne(csvPath, dir, integration, "automotive_parts_20240101_000000", importedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Records)

	primary, err := os.ReadFile(result.PrimaryShardPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(primary)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"partNumber":"BP-001"`)
	assert.Contains(t, lines[0], `"price":45.5`)
	assert.Contains(t, lines[0], `"importedAt"`)

	search, err := os.ReadFile(result.SearchShardPath)
	require.NoError(t, err)
	searchLines := strings.Split(strings.TrimSpace(string(search)), "\n")
	require.Len(t, searchLines, 4) // 2 rows * (action + doc)
	assert.Contains(t, searchLines[0], `"_index":"automotive_parts_20240101_000000"`)
	assert.NotContains(t, searchLines[1], `"importedAt"`)
}

func TestTransformAllEmitsOneEventPerFile(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.csv", "b.csv"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("part,price\nX-1,5\n"), 0o644))
		paths = append(paths, p)
	}

	integration := &types.Integration{ID: "int-1", Name: "Acme Parts"}
	events := TransformAll(paths, dir, integration, "alias_20240101_000000", time.Now(), Options{Parallel: 2})

	var total int64
	count := 0
	for ev := range events {
		require.NoError(t, ev.Err)
		total += ev.Records
		count++
	}
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(2), total)
}
