// Package billing turns a cart plus the checkout form into the transaction
// record that gets persisted. Everything here is deterministic and does no I/O.
package billing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bakerypos/backend/internal/domain"
)

var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrInvalidPhone = errors.New("phone number must be exactly 10 digits")
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

type Input struct {
	Cart     []domain.CartLine
	Mode     domain.Mode
	Handover domain.HandoverMode
	Customer domain.CustomerDraft
	Delivery domain.DeliveryDraft
	Payment  domain.PaymentDraft
}

// InputFromDraft lifts a saved draft into derivation input.
func InputFromDraft(d domain.Draft) Input {
	return Input{
		Cart:     d.Cart,
		Mode:     d.Mode,
		Handover: d.Handover,
		Customer: d.Customer,
		Delivery: d.Delivery,
		Payment:  d.Payment,
	}
}

// ValidatePhone accepts an empty phone (not provided) or exactly ten digits.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// Derive builds the transaction for a checkout. The returned record has no ID;
// the repository assigns one on insert.
func Derive(in Input, now time.Time) (domain.Transaction, error) {
	if len(in.Cart) == 0 {
		return domain.Transaction{}, ErrEmptyCart
	}

	mode := in.Mode
	if mode != domain.ModeOrder {
		mode = domain.ModeQuick
	}
	handover := in.Handover
	if handover != domain.HandoverLater {
		handover = domain.HandoverNow
	}

	if mode == domain.ModeOrder {
		if err := ValidatePhone(in.Customer.Phone); err != nil {
			return domain.Transaction{}, err
		}
	}

	total := CartTotal(in.Cart)
	advance := total
	if mode == domain.ModeOrder && handover == domain.HandoverLater {
		advance = ParseAdvance(in.Payment.Advance)
	}
	balance := total.Sub(advance)

	paymentType := in.Payment.Type
	if paymentType != domain.PaymentUPI {
		paymentType = domain.PaymentCash
	}
	paymentStatus := domain.PaymentPaid
	if balance.IsPositive() {
		paymentStatus = domain.PaymentPartial
	}

	tx := domain.Transaction{
		Amount:      money(advance),
		TotalValue:  money(total),
		Items:       sanitizeItems(in.Cart),
		Date:        now.UTC(),
		Description: describe(mode, handover, strings.TrimSpace(in.Customer.Name), in.Cart),
		Payment: domain.Payment{
			Type:    paymentType,
			Advance: money(advance),
			Balance: money(balance),
			Status:  paymentStatus,
		},
		Status: domain.OrderStatusCompleted,
	}

	switch mode {
	case domain.ModeQuick:
		tx.Type = domain.TxTypeSale
	case domain.ModeOrder:
		tx.Type = domain.TxTypeOrder
		tx.Customer = &domain.Customer{
			Name:  strings.TrimSpace(in.Customer.Name),
			Phone: strings.TrimSpace(in.Customer.Phone),
			Note:  strings.TrimSpace(in.Customer.Note),
		}
		if handover == domain.HandoverLater {
			tx.Status = domain.OrderStatusPending
			if date := strings.TrimSpace(in.Delivery.Date); date != "" {
				tx.Delivery = &domain.Delivery{Date: date, Time: strings.TrimSpace(in.Delivery.Time)}
			}
		}
	}

	return tx, nil
}

// CartTotal sums price*qty over the cart, rounded to cents.
func CartTotal(cart []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range cart {
		total = total.Add(decimal.NewFromFloat(line.Price).Mul(decimal.NewFromInt(int64(line.Qty))))
	}
	return total.Round(2)
}

// ParseAdvance reads the operator-typed advance. Blank, garbage or negative
// input counts as nothing collected.
func ParseAdvance(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		return decimal.Zero
	}
	return value.Round(2)
}

func describe(mode domain.Mode, handover domain.HandoverMode, customerName string, cart []domain.CartLine) string {
	names := make([]string, 0, len(cart))
	for _, line := range cart {
		names = append(names, line.Name)
	}
	itemNames := strings.Join(names, ", ")

	switch {
	case mode == domain.ModeQuick:
		return fmt.Sprintf("Quick Sale of %d items (%s)", len(cart), itemNames)
	case handover == domain.HandoverLater:
		if customerName == "" {
			customerName = "Customer"
		}
		return fmt.Sprintf("Booking Order for %s (%s)", customerName, itemNames)
	case customerName != "":
		return fmt.Sprintf("Take Away Order for %s (%s)", customerName, itemNames)
	default:
		return fmt.Sprintf("Take Away Order %d items (%s)", len(cart), itemNames)
	}
}

func sanitizeItems(cart []domain.CartLine) []domain.CartLine {
	items := make([]domain.CartLine, 0, len(cart))
	for _, line := range cart {
		items = append(items, domain.CartLine{
			ID:         line.ID,
			ItemID:     line.ItemID,
			VariantID:  line.VariantID,
			Name:       line.Name,
			Price:      line.Price,
			Qty:        line.Qty,
			Category:   line.Category,
			Stock:      line.Stock,
			TrackStock: line.TrackStock,
			Note:       line.Note,
		})
	}
	return items
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
