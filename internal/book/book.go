// Package book implements the order book: an append-only, sequentially
// numbered registry of trade intents with owner-gated cancellation.
//
// Orders are intents, not escrow — creation performs no validation
// against the ledger. Ids start at 1 and are gapless across all owners;
// cancellation is a single irreversible transition.
package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/model"
	"github.com/clearbook/settlement-engine/internal/store"
)

var (
	// ErrNotFound is returned when an order id has never been assigned.
	ErrNotFound = errors.New("book: order not found")

	// ErrNotOwner is returned when a caller tries to cancel an order
	// they did not create.
	ErrNotOwner = errors.New("book: caller does not own order")

	// ErrAlreadyCancelled is returned on a second cancellation attempt.
	// Cancellation is a single, irreversible transition, not a no-op.
	ErrAlreadyCancelled = errors.New("book: order already cancelled")
)

// Book is the order registry.
type Book struct {
	store store.Store
	now   func() time.Time
}

// New creates an order book over the given store.
func New(st store.Store) *Book {
	return &Book{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// MakeOrder records a new trade intent for owner and returns the stored
// order alongside its Order event. The id is the next in sequence and
// created_at is the current timestamp.
func (b *Book) MakeOrder(ctx context.Context, owner, assetWanted string, amountWanted decimal.Decimal, assetOffered string, amountOffered decimal.Decimal) (*model.Order, *model.Event, error) {
	o := &model.Order{
		Owner:         owner,
		AssetWanted:   assetWanted,
		AmountWanted:  amountWanted,
		AssetOffered:  assetOffered,
		AmountOffered: amountOffered,
		CreatedAt:     b.now(),
	}

	if err := b.store.InsertOrder(ctx, o); err != nil {
		return nil, nil, fmt.Errorf("insert order: %w", err)
	}

	e, err := b.emit(ctx, model.EventOrder, o)
	if err != nil {
		return nil, nil, err
	}
	return o, e, nil
}

// CancelOrder flips an order's cancelled flag. Only the owner may
// cancel, only once; the order record itself is never removed.
func (b *Book) CancelOrder(ctx context.Context, caller string, id int64) (*model.Order, *model.Event, error) {
	o, err := b.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, nil, err
	}

	if o.Owner != caller {
		return nil, nil, fmt.Errorf("%w: order %d belongs to %s", ErrNotOwner, id, o.Owner)
	}
	if o.Cancelled {
		return nil, nil, fmt.Errorf("%w: order %d", ErrAlreadyCancelled, id)
	}

	if err := b.store.MarkOrderCancelled(ctx, id); err != nil {
		return nil, nil, err
	}
	o.Cancelled = true

	e, err := b.emit(ctx, model.EventCancel, o)
	if err != nil {
		return nil, nil, err
	}
	return o, e, nil
}

// GetOrder retrieves an order by id.
func (b *Book) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := b.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, err
	}
	return o, nil
}

// ListOrders returns orders newest first, optionally filtered by owner.
func (b *Book) ListOrders(ctx context.Context, owner string) ([]model.Order, error) {
	return b.store.ListOrders(ctx, owner)
}

// OrderCount returns the number of orders ever created.
func (b *Book) OrderCount(ctx context.Context) (int64, error) {
	return b.store.OrderCount(ctx)
}

// IsCancelled reports whether the order with the given id has been
// cancelled.
func (b *Book) IsCancelled(ctx context.Context, id int64) (bool, error) {
	o, err := b.GetOrder(ctx, id)
	if err != nil {
		return false, err
	}
	return o.Cancelled, nil
}

// emit appends an order/cancel audit record carrying the full order
// field set.
func (b *Book) emit(ctx context.Context, kind string, o *model.Order) (*model.Event, error) {
	e := &model.Event{
		ID:            uuid.New().String(),
		Kind:          kind,
		At:            b.now(),
		User:          o.Owner,
		OrderID:       o.ID,
		AssetWanted:   o.AssetWanted,
		AmountWanted:  o.AmountWanted,
		AssetOffered:  o.AssetOffered,
		AmountOffered: o.AmountOffered,
		CreatedAt:     o.CreatedAt,
	}
	if err := b.store.AppendEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("record %s event: %w", kind, err)
	}
	return e, nil
}
