package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/backend/internal/domain"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func line(id string, price float64, qty int) domain.CartLine {
	return domain.CartLine{ID: id, ItemID: id, Name: "Item " + id, Price: price, Qty: qty, Category: "Bread", Stock: 10, TrackStock: true}
}

func TestDeriveRejectsEmptyCart(t *testing.T) {
	_, err := Derive(Input{Mode: domain.ModeQuick}, fixedNow)
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestDeriveQuickSale(t *testing.T) {
	tx, err := Derive(Input{
		Cart:    []domain.CartLine{line("a", 100, 2)},
		Mode:    domain.ModeQuick,
		Payment: domain.PaymentDraft{Advance: "15"},
	}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, domain.TxTypeSale, tx.Type)
	assert.Equal(t, 200.0, tx.TotalValue)
	assert.Equal(t, 200.0, tx.Amount)
	assert.Equal(t, 0.0, tx.Payment.Balance)
	assert.Equal(t, domain.PaymentPaid, tx.Payment.Status)
	assert.Equal(t, domain.PaymentCash, tx.Payment.Type)
	assert.Equal(t, domain.OrderStatusCompleted, tx.Status)
	assert.Nil(t, tx.Delivery)
	assert.Nil(t, tx.Customer)
	assert.Equal(t, "Quick Sale of 1 items (Item a)", tx.Description)
	assert.Equal(t, fixedNow, tx.Date)
}

func TestDeriveTakeAwayCollectsFullTotal(t *testing.T) {
	tx, err := Derive(Input{
		Cart:     []domain.CartLine{line("a", 250, 2)},
		Mode:     domain.ModeOrder,
		Handover: domain.HandoverNow,
	}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, domain.TxTypeOrder, tx.Type)
	assert.Equal(t, 500.0, tx.Payment.Advance)
	assert.Equal(t, 0.0, tx.Payment.Balance)
	assert.Equal(t, domain.PaymentPaid, tx.Payment.Status)
	assert.Equal(t, domain.OrderStatusCompleted, tx.Status)
	assert.Equal(t, "Take Away Order 1 items (Item a)", tx.Description)
}

func TestDeriveTakeAwayWithCustomerName(t *testing.T) {
	tx, err := Derive(Input{
		Cart:     []domain.CartLine{line("a", 10, 1), line("b", 20, 1)},
		Mode:     domain.ModeOrder,
		Handover: domain.HandoverNow,
		Customer: domain.CustomerDraft{Name: "  Asha "},
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "Take Away Order for Asha (Item a, Item b)", tx.Description)
	require.NotNil(t, tx.Customer)
	assert.Equal(t, "Asha", tx.Customer.Name)
}

func TestDeriveBookingKeepsBalance(t *testing.T) {
	tx, err := Derive(Input{
		Cart:     []domain.CartLine{line("cake", 1000, 1)},
		Mode:     domain.ModeOrder,
		Handover: domain.HandoverLater,
		Customer: domain.CustomerDraft{Phone: "9876543210"},
		Delivery: domain.DeliveryDraft{Date: "2026-03-20", Time: "17:00"},
		Payment:  domain.PaymentDraft{Type: domain.PaymentUPI, Advance: "300"},
	}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, 300.0, tx.Amount)
	assert.Equal(t, 700.0, tx.Payment.Balance)
	assert.Equal(t, domain.PaymentPartial, tx.Payment.Status)
	assert.Equal(t, domain.PaymentUPI, tx.Payment.Type)
	assert.Equal(t, domain.OrderStatusPending, tx.Status)
	assert.Equal(t, "Booking Order for Customer (Item cake)", tx.Description)
	require.NotNil(t, tx.Delivery)
	assert.Equal(t, domain.Delivery{Date: "2026-03-20", Time: "17:00"}, *tx.Delivery)
}

func TestDeriveBookingWithoutDateHasNoDelivery(t *testing.T) {
	tx, err := Derive(Input{
		Cart:     []domain.CartLine{line("cake", 1000, 1)},
		Mode:     domain.ModeOrder,
		Handover: domain.HandoverLater,
		Delivery: domain.DeliveryDraft{Time: "17:00"},
	}, fixedNow)
	require.NoError(t, err)
	assert.Nil(t, tx.Delivery)
}

func TestDeriveTreatsBadAdvanceAsZero(t *testing.T) {
	for _, advance := range []string{"", "abc", "-50", "  "} {
		tx, err := Derive(Input{
			Cart:     []domain.CartLine{line("a", 40, 1)},
			Mode:     domain.ModeOrder,
			Handover: domain.HandoverLater,
			Payment:  domain.PaymentDraft{Advance: advance},
		}, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, 0.0, tx.Amount, "advance %q", advance)
		assert.Equal(t, 40.0, tx.Payment.Balance, "advance %q", advance)
	}
}

func TestDeriveOverpaidAdvanceIsPaid(t *testing.T) {
	tx, err := Derive(Input{
		Cart:     []domain.CartLine{line("a", 40, 1)},
		Mode:     domain.ModeOrder,
		Handover: domain.HandoverLater,
		Payment:  domain.PaymentDraft{Advance: "50"},
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, -10.0, tx.Payment.Balance)
	assert.Equal(t, domain.PaymentPaid, tx.Payment.Status)
}

func TestDeriveOrderAmountPlusBalanceEqualsTotal(t *testing.T) {
	carts := [][]domain.CartLine{
		{line("a", 0.1, 3)},
		{line("a", 19.99, 7), line("b", 0.35, 11)},
		{line("a", 125.5, 1), line("b", 1, 1), line("c", 3.33, 3)},
	}
	advances := []string{"", "0.2", "10", "33.33", "999"}
	for _, cart := range carts {
		for _, handover := range []domain.HandoverMode{domain.HandoverNow, domain.HandoverLater} {
			for _, advance := range advances {
				tx, err := Derive(Input{Cart: cart, Mode: domain.ModeOrder, Handover: handover, Payment: domain.PaymentDraft{Advance: advance}}, fixedNow)
				require.NoError(t, err)
				assert.InDelta(t, tx.TotalValue, tx.Amount+tx.Payment.Balance, 1e-9)
				if tx.Payment.Balance > 0 {
					assert.Equal(t, domain.PaymentPartial, tx.Payment.Status)
				} else {
					assert.Equal(t, domain.PaymentPaid, tx.Payment.Status)
				}
			}
		}
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	in := Input{
		Cart:     []domain.CartLine{line("a", 12.5, 2), line("b", 3, 1)},
		Mode:     domain.ModeOrder,
		Handover: domain.HandoverLater,
		Customer: domain.CustomerDraft{Name: "Ravi", Phone: "9123456780", Note: "eggless"},
		Delivery: domain.DeliveryDraft{Date: "2026-04-01"},
		Payment:  domain.PaymentDraft{Advance: "10"},
	}
	first, err := Derive(in, fixedNow)
	require.NoError(t, err)
	second, err := Derive(in, fixedNow.Add(time.Hour))
	require.NoError(t, err)

	second.Date = first.Date
	assert.Equal(t, first, second)
}

func TestDeriveCopiesItemsFieldByField(t *testing.T) {
	cart := []domain.CartLine{line("a", 5, 1)}
	tx, err := Derive(Input{Cart: cart, Mode: domain.ModeQuick}, fixedNow)
	require.NoError(t, err)

	cart[0].Name = "mutated"
	assert.Equal(t, "Item a", tx.Items[0].Name)
}

func TestDeriveValidatesPhoneOnlyForOrders(t *testing.T) {
	_, err := Derive(Input{Cart: []domain.CartLine{line("a", 5, 1)}, Mode: domain.ModeOrder, Customer: domain.CustomerDraft{Phone: "12345"}}, fixedNow)
	require.ErrorIs(t, err, ErrInvalidPhone)

	_, err = Derive(Input{Cart: []domain.CartLine{line("a", 5, 1)}, Mode: domain.ModeQuick, Customer: domain.CustomerDraft{Phone: "12345"}}, fixedNow)
	require.NoError(t, err)
}

func TestValidatePhone(t *testing.T) {
	cases := map[string]bool{
		"":              true,
		"9876543210":    true,
		" 9876543210 ":  true,
		"987654321":     false,
		"98765432101":   false,
		"98765abcde":    false,
		"+919876543210": false,
	}
	for phone, ok := range cases {
		err := ValidatePhone(phone)
		if ok {
			assert.NoError(t, err, "phone %q", phone)
		} else {
			assert.ErrorIs(t, err, ErrInvalidPhone, "phone %q", phone)
		}
	}
}
