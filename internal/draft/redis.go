package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bakerypos/backend/internal/domain"
)

const (
	fieldCart     = "cart"
	fieldCustomer = "customer"
	fieldDelivery = "delivery"
	fieldPayment  = "payment"
	fieldMode     = "mode"
)

var fields = []string{fieldCart, fieldCustomer, fieldDelivery, fieldPayment, fieldMode}

type modeState struct {
	Mode     domain.Mode         `json:"mode"`
	Handover domain.HandoverMode `json:"handover"`
}

// RedisStore writes each part of a draft under its own key so an operator
// editing the customer form does not rewrite the cart.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(session string, field string) string {
	return fmt.Sprintf("draft:%s:%s", session, field)
}

func (s *RedisStore) Load(ctx context.Context, session string) (domain.Draft, error) {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, key(session, f))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Draft{}, err
	}

	var d domain.Draft
	var mode modeState
	targets := []any{&d.Cart, &d.Customer, &d.Delivery, &d.Payment, &mode}
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok || str == "" {
			continue
		}
		if err := json.Unmarshal([]byte(str), targets[i]); err != nil {
			return domain.Draft{}, fmt.Errorf("decode draft %s: %w", fields[i], err)
		}
	}
	d.Mode = mode.Mode
	d.Handover = mode.Handover
	return normalize(d), nil
}

func (s *RedisStore) Save(ctx context.Context, session string, d domain.Draft) error {
	parts := map[string]any{
		fieldCart:     d.Cart,
		fieldCustomer: d.Customer,
		fieldDelivery: d.Delivery,
		fieldPayment:  d.Payment,
		fieldMode:     modeState{Mode: d.Mode, Handover: d.Handover},
	}

	pipe := s.client.TxPipeline()
	for _, f := range fields {
		payload, err := json.Marshal(parts[f])
		if err != nil {
			return err
		}
		pipe.Set(ctx, key(session, f), payload, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Clear(ctx context.Context, session string) error {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, key(session, f))
	}
	return s.client.Del(ctx, keys...).Err()
}
