package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]map[string]decimal.Decimal // asset → owner → amount
	orders   []*model.Order                        // orders[i].ID == i+1
	events   []model.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]map[string]decimal.Decimal),
	}
}

func (s *MemoryStore) GetBalance(_ context.Context, asset, owner string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[asset][owner], nil
}

func (s *MemoryStore) SetBalance(_ context.Context, asset, owner string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[asset] == nil {
		s.balances[asset] = make(map[string]decimal.Decimal)
	}
	s.balances[asset][owner] = amount
	return nil
}

func (s *MemoryStore) ListBalances(_ context.Context, owner string) ([]model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Balance
	for asset, holders := range s.balances {
		if amount, ok := holders[owner]; ok {
			out = append(out, model.Balance{Asset: asset, Owner: owner, Amount: amount})
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = int64(len(s.orders)) + 1
	copy := *o
	s.orders = append(s.orders, &copy)
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 1 || id > int64(len(s.orders)) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	copy := *s.orders[id-1]
	return &copy, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, owner string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if owner == "" || s.orders[i].Owner == owner {
			out = append(out, *s.orders[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) OrderCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.orders)), nil
}

func (s *MemoryStore) MarkOrderCancelled(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || id > int64(len(s.orders)) {
		return fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	s.orders[id-1].Cancelled = true
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Seq = int64(len(s.events)) + 1
	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, user string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, e := range s.events {
		if user == "" || e.User == user {
			out = append(out, e)
		}
	}
	return out, nil
}
