package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/backend/internal/domain"
)

func TestRedisReportCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisReportCache(client)
	key := DailyReportKey("2026-03-14")

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	report := &domain.DailyReport{
		Date:       "2026-03-14",
		Sales:      2,
		SalesTotal: 320,
		ByPayment:  []domain.DailyReportPayment{{PaymentType: domain.PaymentCash, Transactions: 2, Total: 320}},
	}
	require.NoError(t, c.Set(ctx, key, report, 30*time.Second))
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report, got)

	require.NoError(t, c.Invalidate(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisReportCacheRejectsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("report:daily:2026-03-14", "nope"))
	_, _, err = NewRedisReportCache(client).Get(ctx, "report:daily:2026-03-14")
	assert.Error(t, err)
}

func TestRedisSuggestionCacheExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisSuggestionCache(client)

	resp := &domain.SuggestionResponse{
		Suggestion: &domain.Suggestion{ItemID: "ITM-COFFEE", Name: "Filter Coffee", Price: 80, ReasonCode: "often_bought_together", Confidence: 0.83},
		Policy:     domain.SuggestionPolicy{Show: true, CooldownSeconds: 45},
	}
	require.NoError(t, c.Set(ctx, "suggestion:abc", resp, 20*time.Second))

	got, ok, err := c.Get(ctx, "suggestion:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, resp, got)

	mr.FastForward(21 * time.Second)
	_, ok, err = c.Get(ctx, "suggestion:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisClientFailsWhenUnreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
