package recommendation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/backend/internal/domain"
)

type mapCache map[string]domain.SuggestionResponse

func (m mapCache) Get(_ context.Context, key string) (*domain.SuggestionResponse, bool, error) {
	v, ok := m[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (m mapCache) Set(_ context.Context, key string, value *domain.SuggestionResponse, _ time.Duration) error {
	m[key] = *value
	return nil
}

var morning = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func catalog() map[string]domain.InventoryItem {
	return map[string]domain.InventoryItem{
		"ITM-CROISSANT": {ID: "ITM-CROISSANT", Name: "Butter Croissant", Price: 60, Category: "Pastry", Stock: 40, TrackStock: true},
		"ITM-COFFEE":    {ID: "ITM-COFFEE", Name: "Filter Coffee", Price: 80, Category: "Beverage"},
		"ITM-MUFFIN":    {ID: "ITM-MUFFIN", Name: "Blueberry Muffin", Price: 75, Category: "Pastry", Stock: 24, TrackStock: true},
		"ITM-SOURDOUGH": {ID: "ITM-SOURDOUGH", Name: "Sourdough Loaf", Price: 220, Category: "Bread", Stock: 0, TrackStock: true},
	}
}

func fixedHistory(pairs []domain.ItemPair, calls *int) History {
	return func(context.Context) (map[string]domain.InventoryItem, []domain.ItemPair, error) {
		*calls++
		return catalog(), pairs, nil
	}
}

func croissantCart() []domain.CartLine {
	return []domain.CartLine{{ID: "L1", ItemID: "ITM-CROISSANT", Name: "Butter Croissant", Qty: 2}}
}

func TestSuggestPicksStrongestPair(t *testing.T) {
	calls := 0
	pairs := []domain.ItemPair{
		{ItemID: "ITM-CROISSANT", TargetID: "ITM-COFFEE", Affinity: 0.8},
		{ItemID: "ITM-CROISSANT", TargetID: "ITM-MUFFIN", Affinity: 0.3},
		{ItemID: "ITM-CROISSANT", TargetID: "ITM-SOURDOUGH", Affinity: 0.9},
		{ItemID: "ITM-MUFFIN", TargetID: "ITM-COFFEE", Affinity: 1},
	}
	engine := NewEngine(nil, time.Minute)

	resp, err := engine.Suggest(context.Background(), Request{Cart: croissantCart(), At: morning}, fixedHistory(pairs, &calls))
	require.NoError(t, err)
	require.NotNil(t, resp.Suggestion)
	assert.Equal(t, "ITM-COFFEE", resp.Suggestion.ItemID)
	assert.Equal(t, 80.0, resp.Suggestion.Price)
	assert.InDelta(t, 0.83, resp.Suggestion.Confidence, 0.001)
	assert.Equal(t, domain.SuggestionPolicy{Show: true, CooldownSeconds: 45}, resp.Policy)
}

func TestSuggestSkipsItemsAlreadyInCart(t *testing.T) {
	calls := 0
	pairs := []domain.ItemPair{{ItemID: "ITM-CROISSANT", TargetID: "ITM-COFFEE", Affinity: 0.8}}
	cart := append(croissantCart(), domain.CartLine{ID: "L2", ItemID: "ITM-COFFEE", Qty: 1})

	resp, err := NewEngine(nil, time.Minute).Suggest(context.Background(), Request{Cart: cart, At: morning}, fixedHistory(pairs, &calls))
	require.NoError(t, err)
	assert.Nil(t, resp.Suggestion)
	assert.False(t, resp.Policy.Show)
}

func TestSuggestStaysQuietWithoutCartOrAfterManyPrompts(t *testing.T) {
	calls := 0
	engine := NewEngine(nil, time.Minute)

	resp, err := engine.Suggest(context.Background(), Request{At: morning}, fixedHistory(nil, &calls))
	require.NoError(t, err)
	assert.Equal(t, domain.SuggestionPolicy{Show: false, CooldownSeconds: 30}, resp.Policy)

	resp, err = engine.Suggest(context.Background(), Request{Cart: croissantCart(), PromptCount: 4, At: morning}, fixedHistory(nil, &calls))
	require.NoError(t, err)
	assert.Equal(t, domain.SuggestionPolicy{Show: false, CooldownSeconds: 90}, resp.Policy)
	assert.Zero(t, calls)
}

func TestSuggestServesRepeatsFromCache(t *testing.T) {
	calls := 0
	pairs := []domain.ItemPair{{ItemID: "ITM-CROISSANT", TargetID: "ITM-COFFEE", Affinity: 0.8}}
	engine := NewEngine(mapCache{}, time.Minute)
	req := Request{Cart: croissantCart(), At: morning}

	first, err := engine.Suggest(context.Background(), req, fixedHistory(pairs, &calls))
	require.NoError(t, err)
	second, err := engine.Suggest(context.Background(), req, fixedHistory(pairs, &calls))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestSuggestReturnsHistoryError(t *testing.T) {
	boom := errors.New("store down")
	_, err := NewEngine(nil, time.Minute).Suggest(context.Background(), Request{Cart: croissantCart(), At: morning},
		func(context.Context) (map[string]domain.InventoryItem, []domain.ItemPair, error) {
			return nil, nil, boom
		})
	assert.ErrorIs(t, err, boom)
}

func TestPairsLearnsFromSalesAndOrders(t *testing.T) {
	line := func(id string) domain.CartLine { return domain.CartLine{ItemID: id, Qty: 1} }
	txs := []domain.Transaction{
		{Type: domain.TxTypeSale, Items: []domain.CartLine{line("ITM-CROISSANT"), line("ITM-COFFEE")}},
		{Type: domain.TxTypeSale, Items: []domain.CartLine{line("ITM-CROISSANT"), line("ITM-COFFEE"), line("ITM-CROISSANT")}},
		{Type: domain.TxTypeOrder, Items: []domain.CartLine{line("ITM-CROISSANT"), line("ITM-MUFFIN")}},
		{Type: domain.TxTypeExpense, Items: []domain.CartLine{line("ITM-CROISSANT"), line("ITM-MUFFIN")}},
	}

	pairs := Pairs(txs, 2)
	assert.Equal(t, []domain.ItemPair{
		{ItemID: "ITM-COFFEE", TargetID: "ITM-CROISSANT", Affinity: 1},
		{ItemID: "ITM-CROISSANT", TargetID: "ITM-COFFEE", Affinity: 0.67},
	}, pairs)

	assert.Len(t, Pairs(txs, 0), 4)
}

func TestDeriveReason(t *testing.T) {
	assert.Equal(t, ReasonBoughtTogether, deriveReason(0.9, 0.5, 0.55))
	assert.Equal(t, ReasonHealthyStock, deriveReason(0.2, 1, 0.55))
	assert.Equal(t, ReasonTimeSlot, deriveReason(0.2, 0.3, 0.95))
}

func TestCategoryHourRelevance(t *testing.T) {
	assert.Equal(t, 0.95, categoryHourRelevance("Beverage", 8))
	assert.Equal(t, 0.80, categoryHourRelevance("Cakes", 19))
	assert.Equal(t, 0.55, categoryHourRelevance("Cakes", 9))
	assert.Equal(t, 0.55, categoryHourRelevance("General", 9))
}
