package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot lookups: single balances and single orders. Writes go
// to the primary store and invalidate the cache; reads check Redis first
// then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Balances (read-through, invalidate on write) ---

func (s *CachedStore) GetBalance(ctx context.Context, asset, owner string) (decimal.Decimal, error) {
	val, err := s.rdb.Get(ctx, balanceKey(asset, owner)).Result()
	if err == nil {
		if amount, derr := decimal.NewFromString(val); derr == nil {
			return amount, nil
		}
	}

	amount, err := s.primary.GetBalance(ctx, asset, owner)
	if err != nil {
		return decimal.Zero, err
	}

	s.rdb.Set(ctx, balanceKey(asset, owner), amount.String(), s.ttl)
	return amount, nil
}

func (s *CachedStore) SetBalance(ctx context.Context, asset, owner string, amount decimal.Decimal) error {
	if err := s.primary.SetBalance(ctx, asset, owner, amount); err != nil {
		return err
	}
	// Invalidate rather than update; next read re-populates.
	s.rdb.Del(ctx, balanceKey(asset, owner))
	return nil
}

// --- Orders (read-through; invalidate on cancel, the only mutation) ---

func (s *CachedStore) InsertOrder(ctx context.Context, o *model.Order) error {
	if err := s.primary.InsertOrder(ctx, o); err != nil {
		return err
	}
	s.cacheOrder(ctx, o)
	return nil
}

func (s *CachedStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	data, err := s.rdb.Get(ctx, orderKey(id)).Bytes()
	if err == nil {
		var o model.Order
		if json.Unmarshal(data, &o) == nil {
			return &o, nil
		}
	}

	o, err := s.primary.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheOrder(ctx, o)
	return o, nil
}

func (s *CachedStore) MarkOrderCancelled(ctx context.Context, id int64) error {
	if err := s.primary.MarkOrderCancelled(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, orderKey(id))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListBalances(ctx context.Context, owner string) ([]model.Balance, error) {
	return s.primary.ListBalances(ctx, owner)
}

func (s *CachedStore) ListOrders(ctx context.Context, owner string) ([]model.Order, error) {
	return s.primary.ListOrders(ctx, owner)
}

func (s *CachedStore) OrderCount(ctx context.Context) (int64, error) {
	return s.primary.OrderCount(ctx)
}

func (s *CachedStore) AppendEvent(ctx context.Context, e *model.Event) error {
	return s.primary.AppendEvent(ctx, e)
}

func (s *CachedStore) ListEvents(ctx context.Context, user string) ([]model.Event, error) {
	return s.primary.ListEvents(ctx, user)
}

// --- Cache helpers ---

func (s *CachedStore) cacheOrder(ctx context.Context, o *model.Order) {
	if data, err := json.Marshal(o); err == nil {
		s.rdb.Set(ctx, orderKey(o.ID), data, s.ttl)
	}
}

func balanceKey(asset, owner string) string { return fmt.Sprintf("balance:%s:%s", asset, owner) }
func orderKey(id int64) string              { return fmt.Sprintf("order:%d", id) }
