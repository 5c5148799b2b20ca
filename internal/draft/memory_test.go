package draft

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/backend/internal/checkout"
	"bakerypos/backend/internal/domain"
)

var _ checkout.DraftStore = (*MemoryStore)(nil)
var _ checkout.DraftStore = (*RedisStore)(nil)

func TestMemoryStoreDefaultsForNewSession(t *testing.T) {
	d, err := NewMemoryStore().Load(context.Background(), "admin:till-1")
	require.NoError(t, err)
	assert.Empty(t, d.Cart)
	assert.NotNil(t, d.Cart)
	assert.Equal(t, domain.ModeQuick, d.Mode)
	assert.Equal(t, domain.HandoverNow, d.Handover)
	assert.Equal(t, domain.PaymentCash, d.Payment.Type)
}

func TestMemoryStoreRoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	saved := domain.Draft{
		Cart:     []domain.CartLine{{ID: "ITM-1", ItemID: "ITM-1", Name: "Bun", Price: 15, Qty: 2}},
		Customer: domain.CustomerDraft{Name: "Asha", Phone: "9876543210"},
		Payment:  domain.PaymentDraft{Type: domain.PaymentUPI, Advance: "10"},
		Delivery: domain.DeliveryDraft{Date: "2026-05-01"},
		Mode:     domain.ModeOrder,
		Handover: domain.HandoverLater,
	}
	require.NoError(t, store.Save(ctx, "s1", saved))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	got.Cart[0].Qty = 99
	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Cart[0].Qty)

	other, err := store.Load(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, other.Cart)

	require.NoError(t, store.Clear(ctx, "s1"))
	cleared, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, cleared.Cart)
	assert.Equal(t, domain.ModeQuick, cleared.Mode)
}

func TestRedisKeyLayout(t *testing.T) {
	assert.Equal(t, "draft:admin:till-1:cart", key("admin:till-1", fieldCart))
	assert.Equal(t, "draft:admin:till-1:mode", key("admin:till-1", fieldMode))
}
