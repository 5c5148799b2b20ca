// Package catalog reads and writes the bulk item sheet and reconciles an
// uploaded sheet against the current inventory.
package catalog

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bakerypos/backend/internal/domain"
)

const (
	DefaultCategory = "General"
	UnlimitedStock  = "Unlimited"
)

var Header = []string{"Name", "Price", "Category", "Stock"}

// Row is one sheet line as typed by the operator.
type Row struct {
	Name     string
	Price    string
	Category string
	Stock    string
}

type Plan struct {
	Inserts    []domain.InventoryItem
	Updates    []domain.InventoryItem
	Skipped    int
	Duplicates int
}

// Reconcile decides what each row does to the inventory. Names are compared
// case-insensitively. Rows without a name or with a non-positive price are
// dropped and counted in Skipped. When skipDuplicates is set, rows naming an
// existing item are left alone and counted in Duplicates; otherwise they
// update price, category, stock and tracking of that item.
func Reconcile(rows []Row, existing []domain.InventoryItem, skipDuplicates bool) Plan {
	byName := make(map[string]domain.InventoryItem, len(existing))
	for _, item := range existing {
		byName[nameKey(item.Name)] = item
	}

	var plan Plan
	order := make([]string, 0, len(rows))
	latest := make(map[string]domain.InventoryItem, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		price, ok := parsePrice(row.Price)
		if name == "" || !ok {
			plan.Skipped++
			continue
		}
		stock, track := ParseStock(row.Stock)
		key := nameKey(name)
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = domain.InventoryItem{
			Name:       name,
			Price:      price,
			Category:   strings.TrimSpace(row.Category),
			Stock:      stock,
			TrackStock: track,
		}
	}

	for _, key := range order {
		incoming := latest[key]
		current, exists := byName[key]
		if !exists {
			if incoming.Category == "" {
				incoming.Category = DefaultCategory
			}
			plan.Inserts = append(plan.Inserts, incoming)
			continue
		}
		if skipDuplicates {
			plan.Duplicates++
			continue
		}
		current.Price = incoming.Price
		if incoming.Category != "" {
			current.Category = incoming.Category
		}
		current.Stock = incoming.Stock
		current.TrackStock = incoming.TrackStock
		plan.Updates = append(plan.Updates, current)
	}
	return plan
}

// ParseStock maps a stock cell to (stock, trackStock). Unlimited markers and
// blanks mean untracked; anything else is read as a whole number, defaulting
// to 0 and never negative.
func ParseStock(raw string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "unlimited", "inf", "infinity":
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, true
		}
		n = int(f)
	}
	if n < 0 {
		n = 0
	}
	return n, true
}

func parsePrice(raw string) (float64, bool) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !value.IsPositive() {
		return 0, false
	}
	return value.Round(2).InexactFloat64(), true
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func stockCell(item domain.InventoryItem) string {
	if !item.TrackStock {
		return UnlimitedStock
	}
	return strconv.Itoa(item.Stock)
}

func priceCell(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// rowsFromRecords turns raw sheet records into rows. A first record whose
// first cell reads "name" is a header and is used to locate columns.
func rowsFromRecords(records [][]string) []Row {
	if len(records) == 0 {
		return nil
	}
	cols := map[string]int{"name": 0, "price": 1, "category": 2, "stock": 3}
	start := 0
	if len(records[0]) > 0 && strings.EqualFold(strings.TrimSpace(records[0][0]), "name") {
		cols = map[string]int{}
		for i, cell := range records[0] {
			cols[strings.ToLower(strings.TrimSpace(cell))] = i
		}
		start = 1
	}

	cell := func(record []string, column string) string {
		i, ok := cols[column]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	rows := make([]Row, 0, len(records)-start)
	for _, record := range records[start:] {
		if isBlank(record) {
			continue
		}
		rows = append(rows, Row{
			Name:     cell(record, "name"),
			Price:    cell(record, "price"),
			Category: cell(record, "category"),
			Stock:    cell(record, "stock"),
		})
	}
	return rows
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
