package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/backend/internal/domain"
)

func existingItems() []domain.InventoryItem {
	return []domain.InventoryItem{
		{ID: "ITM-1", Name: "Croissant", Price: 60, Category: "Pastry", Stock: 4, TrackStock: true, Image: "croissant.png"},
		{ID: "ITM-2", Name: "Sourdough", Price: 220, Category: "Bread", TrackStock: false},
	}
}

func TestReconcileInsertsAndUpdates(t *testing.T) {
	rows := []Row{
		{Name: "croissant", Price: "65", Category: "", Stock: "10"},
		{Name: "Baguette", Price: "90", Category: "Bread", Stock: "unlimited"},
		{Name: "Muffin", Price: "40", Stock: "abc"},
	}
	plan := Reconcile(rows, existingItems(), false)

	require.Len(t, plan.Updates, 1)
	updated := plan.Updates[0]
	assert.Equal(t, "ITM-1", updated.ID)
	assert.Equal(t, "Croissant", updated.Name)
	assert.Equal(t, "croissant.png", updated.Image)
	assert.Equal(t, 65.0, updated.Price)
	assert.Equal(t, "Pastry", updated.Category)
	assert.Equal(t, 10, updated.Stock)
	assert.True(t, updated.TrackStock)

	require.Len(t, plan.Inserts, 2)
	assert.Equal(t, domain.InventoryItem{Name: "Baguette", Price: 90, Category: "Bread", Stock: 0, TrackStock: false}, plan.Inserts[0])
	assert.Equal(t, domain.InventoryItem{Name: "Muffin", Price: 40, Category: DefaultCategory, Stock: 0, TrackStock: true}, plan.Inserts[1])
	assert.Zero(t, plan.Skipped)
	assert.Zero(t, plan.Duplicates)
}

func TestReconcileSkipDuplicates(t *testing.T) {
	rows := []Row{{Name: "SOURDOUGH", Price: "250", Stock: "3"}, {Name: "Rusk", Price: "30", Stock: "5"}}
	plan := Reconcile(rows, existingItems(), true)
	assert.Empty(t, plan.Updates)
	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, "Rusk", plan.Inserts[0].Name)
	assert.Equal(t, 1, plan.Duplicates)
}

func TestReconcileDropsMalformedRows(t *testing.T) {
	rows := []Row{
		{Name: "", Price: "10"},
		{Name: "Free Sample", Price: "0"},
		{Name: "Refund", Price: "-5"},
		{Name: "Typo", Price: "ten"},
		{Name: "Bun", Price: "15"},
	}
	plan := Reconcile(rows, nil, false)
	assert.Equal(t, 4, plan.Skipped)
	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, "Bun", plan.Inserts[0].Name)
}

func TestReconcileLastRowWinsWithinFile(t *testing.T) {
	rows := []Row{{Name: "Bun", Price: "15", Stock: "3"}, {Name: "bun", Price: "18", Stock: "7"}}
	plan := Reconcile(rows, nil, false)
	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, "bun", plan.Inserts[0].Name)
	assert.Equal(t, 18.0, plan.Inserts[0].Price)
	assert.Equal(t, 7, plan.Inserts[0].Stock)
}

func TestParseStock(t *testing.T) {
	cases := []struct {
		raw   string
		stock int
		track bool
	}{
		{"", 0, false},
		{"Unlimited", 0, false},
		{" INF ", 0, false},
		{"infinity", 0, false},
		{"12", 12, true},
		{"7.9", 7, true},
		{"-3", 0, true},
		{"lots", 0, true},
	}
	for _, tc := range cases {
		stock, track := ParseStock(tc.raw)
		assert.Equal(t, tc.stock, stock, "raw %q", tc.raw)
		assert.Equal(t, tc.track, track, "raw %q", tc.raw)
	}
}

func TestParseCSVWithHeader(t *testing.T) {
	input := "name,PRICE,Category,Stock\nCroissant,60,Pastry,12\n,,,\nSourdough,220,Bread,Unlimited\n"
	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{Name: "Croissant", Price: "60", Category: "Pastry", Stock: "12"},
		{Name: "Sourdough", Price: "220", Category: "Bread", Stock: "Unlimited"},
	}, rows)
}

func TestParseCSVReordersColumnsByHeader(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader("Name,Stock,Price\nBun,5,15\nRoll\n"))
	require.NoError(t, err)
	assert.Equal(t, []Row{{Name: "Bun", Price: "15", Stock: "5"}, {Name: "Roll"}}, rows)
}

func TestCSVExportRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, existingItems()))
	assert.Equal(t, "Name,Price,Category,Stock\nCroissant,60,Pastry,4\nSourdough,220,Bread,Unlimited\n", buf.String())

	rows, err := ParseCSV(&buf)
	require.NoError(t, err)
	plan := Reconcile(rows, existingItems(), false)
	assert.Len(t, plan.Updates, 2)
	assert.Empty(t, plan.Inserts)
}

func TestXLSXExportRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, existingItems()))

	rows, err := ParseXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Croissant", rows[0].Name)
	assert.Equal(t, "60", rows[0].Price)
	assert.Equal(t, "4", rows[0].Stock)
	assert.Equal(t, UnlimitedStock, rows[1].Stock)
}

func TestParseXLSXRejectsGarbage(t *testing.T) {
	_, err := ParseXLSX(strings.NewReader("not a workbook"))
	require.Error(t, err)
}
