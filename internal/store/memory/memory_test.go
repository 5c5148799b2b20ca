package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func TestAddTransactionAssignsPrefixedID(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	sale, err := s.AddTransaction(ctx, domain.Transaction{Type: domain.TxTypeSale, Items: []domain.CartLine{{Name: "Bun", Price: 15, Qty: 1}}, Date: now})
	require.NoError(t, err)
	assert.Regexp(t, `^SALE-`, sale.ID)

	expense, err := s.AddTransaction(ctx, domain.Transaction{Type: domain.TxTypeExpense, Amount: 200, Description: "Flour", Date: now})
	require.NoError(t, err)
	assert.Regexp(t, `^EXP-`, expense.ID)

	_, err = s.AddTransaction(ctx, domain.Transaction{Type: "refund", Date: now})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = s.AddTransaction(ctx, domain.Transaction{Type: domain.TxTypeOrder, Date: now})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestListTransactionsNewestFirstWithinRange(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"SALE-A", "SALE-B", "SALE-C"} {
		_, err := s.AddTransaction(ctx, domain.Transaction{ID: id, Type: domain.TxTypeSale, Items: []domain.CartLine{{Name: "Bun", Qty: 1}}, Date: base.Add(time.Duration(i) * 24 * time.Hour)})
		require.NoError(t, err)
	}

	all, err := s.ListTransactions(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "SALE-C", all[0].ID)

	window, err := s.ListTransactions(ctx, base.Add(time.Hour), base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "SALE-B", window[0].ID)
}

func TestDecrementStockFloorsAtZero(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.DecrementStock(ctx, []domain.StockAdjustment{
		{ItemID: "ITM-SOURDOUGH", Qty: 100},
		{ItemID: "ITM-CHOCO-CAKE", VariantID: "VAR-CHOCO-500G", Qty: 1},
		{ItemID: "ITM-COFFEE", Qty: 3},
		{ItemID: "ITM-GONE", Qty: 1},
	})
	require.NoError(t, err)

	bread, err := s.GetItem(ctx, "ITM-SOURDOUGH")
	require.NoError(t, err)
	assert.Equal(t, 0, bread.Stock)

	cake, err := s.GetItem(ctx, "ITM-CHOCO-CAKE")
	require.NoError(t, err)
	assert.Equal(t, 6, cake.Variants[0].Stock)
	assert.Equal(t, 3, cake.Variants[1].Stock)

	coffee, err := s.GetItem(ctx, "ITM-COFFEE")
	require.NoError(t, err)
	assert.Equal(t, 0, coffee.Stock)
	assert.False(t, coffee.TrackStock)
}

func TestUpdateItemAppliesPatchAndKeepsID(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	price := 70.0
	empty := ""

	updated, err := s.UpdateItem(ctx, "ITM-CROISSANT", domain.ItemPatch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "ITM-CROISSANT", updated.ID)
	assert.Equal(t, 70.0, updated.Price)
	assert.Equal(t, "Butter Croissant", updated.Name)

	_, err = s.UpdateItem(ctx, "ITM-CROISSANT", domain.ItemPatch{Name: &empty})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = s.UpdateItem(ctx, "missing", domain.ItemPatch{Price: &price})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteItem(ctx, "ITM-CROISSANT"))
	assert.ErrorIs(t, s.DeleteItem(ctx, "ITM-CROISSANT"), store.ErrNotFound)
}

func TestReturnedItemsAreCopies(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	cake, err := s.GetItem(ctx, "ITM-CHOCO-CAKE")
	require.NoError(t, err)
	cake.Variants[0].Stock = 999

	again, err := s.GetItem(ctx, "ITM-CHOCO-CAKE")
	require.NoError(t, err)
	assert.Equal(t, 6, again.Variants[0].Stock)
}

func TestUpsertCustomerAccumulatesOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertCustomer(ctx, domain.CustomerProfile{Phone: "+919876543210", Name: "Asha", Note: "eggless", LastOrderAt: first}))
	require.NoError(t, s.UpsertCustomer(ctx, domain.CustomerProfile{Phone: "+919876543210", LastOrderAt: first.Add(time.Hour)}))
	require.NoError(t, s.UpsertCustomer(ctx, domain.CustomerProfile{Phone: "+919123456780", Name: "Ravi", LastOrderAt: first}))
	assert.ErrorIs(t, s.UpsertCustomer(ctx, domain.CustomerProfile{}), store.ErrInvalidInput)

	customers, err := s.ListCustomers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "+919876543210", customers[0].Phone)
	assert.Equal(t, 2, customers[0].Orders)
	assert.Equal(t, "Asha", customers[0].Name)
	assert.Equal(t, "eggless", customers[0].Note)
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, domain.UserAccount{Username: " Till2 ", Password: "hash"}))
	assert.ErrorIs(t, s.CreateUser(ctx, domain.UserAccount{Username: "till2", Password: "hash"}), store.ErrConflict)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "till2", users[0].Username)
	assert.Equal(t, "cashier", users[0].Role)
}
