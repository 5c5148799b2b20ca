// Package orders filters, searches and sorts transaction history for the
// orders screen.
package orders

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"bakerypos/backend/internal/domain"
)

const (
	StatusAll     = "all"
	StatusPending = "pending"

	SortDefault      = "default"
	SortPriorityAsc  = "priority-asc"
	SortPriorityDesc = "priority-desc"
	SortAmountDesc   = "amount-desc"
	SortAmountAsc    = "amount-asc"
	SortDateDesc     = "date-desc"
	SortDateAsc      = "date-asc"
)

const defaultDeliveryTime = "23:59"

type Query struct {
	Status   string
	Search   string
	Sort     string
	Location *time.Location
}

// Filter returns the orders and sales in txs that pass q, ordered for display.
// The input slice is not modified.
func Filter(txs []domain.Transaction, q Query) []domain.Transaction {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	term := strings.ToLower(strings.TrimSpace(q.Search))
	idTerm := strings.TrimPrefix(term, "#")
	status := strings.TrimSpace(q.Status)
	if status == "" {
		status = StatusAll
	}

	result := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !isListed(tx.Type) {
			continue
		}
		if !matchesStatus(tx.Status, status) {
			continue
		}
		if term != "" && !matchesSearch(tx, term, idTerm, loc) {
			continue
		}
		result = append(result, tx)
	}

	byKey := comparator(q.Sort, loc)
	slices.SortStableFunc(result, func(a, b domain.Transaction) int {
		if term != "" {
			if c := preferTrue(idEndsWith(a, idTerm), idEndsWith(b, idTerm)); c != 0 {
				return c
			}
			if c := preferTrue(nameStartsWith(a, term), nameStartsWith(b, term)); c != 0 {
				return c
			}
		}
		return byKey(a, b)
	})
	return result
}

func isListed(t domain.TransactionType) bool {
	switch t {
	case domain.TxTypeOrder, domain.TxTypeSale:
		return true
	case domain.TxTypeExpense, domain.TxTypeSettlement:
		return false
	default:
		return false
	}
}

func matchesStatus(status domain.OrderStatus, filter string) bool {
	switch filter {
	case StatusAll:
		return true
	case StatusPending:
		return status == domain.OrderStatusPending || status == domain.OrderStatusReady
	default:
		return string(status) == filter
	}
}

func matchesSearch(tx domain.Transaction, term string, idTerm string, loc *time.Location) bool {
	if strings.Contains(strings.ToLower(tx.ID), idTerm) {
		return true
	}
	if tx.Customer != nil {
		if strings.Contains(strings.ToLower(tx.Customer.Name), term) ||
			strings.Contains(strings.ToLower(tx.Customer.Phone), term) ||
			strings.Contains(strings.ToLower(tx.Customer.Note), term) {
			return true
		}
	}
	for _, rendered := range DateRenderings(tx.Date, loc) {
		if strings.Contains(rendered, term) {
			return true
		}
	}
	for _, item := range tx.Items {
		if strings.Contains(strings.ToLower(item.Name), term) {
			return true
		}
	}
	return false
}

// DateRenderings lists the lowercased forms an operator may type to find an
// order by its date. The ISO form is always UTC.
func DateRenderings(at time.Time, loc *time.Location) []string {
	if at.IsZero() {
		return nil
	}
	local := at.In(loc)
	return []string{
		strings.ToLower(local.Format("02 Jan 2006")),
		local.Format("02/01/2006"),
		local.Format("02-01-2006"),
		local.Format("2006-01-02"),
		strings.ToLower(ordinal(local.Day()) + " " + local.Format("Jan")),
		strings.ToLower(at.UTC().Format("2006-01-02T15:04:05.000Z07:00")),
	}
}

func ordinal(day int) string {
	suffix := "th"
	switch day % 100 {
	case 11, 12, 13:
	default:
		switch day % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", day, suffix)
}

func idEndsWith(tx domain.Transaction, idTerm string) bool {
	return idTerm != "" && strings.HasSuffix(strings.ToLower(tx.ID), idTerm)
}

func nameStartsWith(tx domain.Transaction, term string) bool {
	return tx.Customer != nil && strings.HasPrefix(strings.ToLower(tx.Customer.Name), term)
}

// preferTrue orders true ahead of false.
func preferTrue(a bool, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return -1
	default:
		return 1
	}
}

func comparator(key string, loc *time.Location) func(a, b domain.Transaction) int {
	switch key {
	case SortPriorityAsc:
		return func(a, b domain.Transaction) int { return comparePriority(a, b, loc, false) }
	case SortPriorityDesc:
		return func(a, b domain.Transaction) int { return comparePriority(a, b, loc, true) }
	case SortAmountDesc:
		return func(a, b domain.Transaction) int { return cmpFloat(b.TotalValue, a.TotalValue) }
	case SortAmountAsc:
		return func(a, b domain.Transaction) int { return cmpFloat(a.TotalValue, b.TotalValue) }
	case SortDateAsc:
		return func(a, b domain.Transaction) int { return a.Date.Compare(b.Date) }
	default:
		return func(a, b domain.Transaction) int { return b.Date.Compare(a.Date) }
	}
}

// comparePriority sorts by due moment. Orders without a usable delivery date go
// last when ascending and first when descending.
func comparePriority(a, b domain.Transaction, loc *time.Location, desc bool) int {
	aDue, aOK := dueAt(a, loc)
	bDue, bOK := dueAt(b, loc)
	switch {
	case !aOK && !bOK:
		return 0
	case !aOK:
		if desc {
			return -1
		}
		return 1
	case !bOK:
		if desc {
			return 1
		}
		return -1
	}
	if desc {
		return bDue.Compare(aDue)
	}
	return aDue.Compare(bDue)
}

func dueAt(tx domain.Transaction, loc *time.Location) (time.Time, bool) {
	if tx.Delivery == nil || strings.TrimSpace(tx.Delivery.Date) == "" {
		return time.Time{}, false
	}
	clock := strings.TrimSpace(tx.Delivery.Time)
	if clock == "" {
		clock = defaultDeliveryTime
	}
	due, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(tx.Delivery.Date)+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	return due, true
}

func cmpFloat(a float64, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
