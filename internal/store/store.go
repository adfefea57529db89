// Package store defines the persistence interface for the settlement
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/model"
)

// ErrNotFound is returned by lookups for records that do not exist.
// Implementations wrap it with context; callers test with errors.Is.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Custodial balances ---

	// GetBalance returns the balance for (asset, owner), zero if the
	// pair has never been deposited.
	GetBalance(ctx context.Context, asset, owner string) (decimal.Decimal, error)

	// SetBalance writes the balance for (asset, owner), creating the
	// entry on first write.
	SetBalance(ctx context.Context, asset, owner string, amount decimal.Decimal) error

	// ListBalances returns every balance entry ever touched for owner.
	ListBalances(ctx context.Context, owner string) ([]model.Balance, error)

	// --- Order registry ---

	// InsertOrder persists a new order and assigns the next sequential
	// id (1, 2, 3, ... with no gaps), written back to o.ID.
	InsertOrder(ctx context.Context, o *model.Order) error

	// GetOrder retrieves an order by id.
	GetOrder(ctx context.Context, id int64) (*model.Order, error)

	// ListOrders returns orders, newest first, optionally filtered by
	// owner (empty string = all).
	ListOrders(ctx context.Context, owner string) ([]model.Order, error)

	// OrderCount returns the number of orders ever created.
	OrderCount(ctx context.Context) (int64, error)

	// MarkOrderCancelled flips an order's cancelled flag to true.
	MarkOrderCancelled(ctx context.Context, id int64) error

	// --- Append-only event log ---

	// AppendEvent appends an audit record, assigning e.Seq.
	AppendEvent(ctx context.Context, e *model.Event) error

	// ListEvents returns events in emission order, optionally filtered
	// by user (empty string = all).
	ListEvents(ctx context.Context, user string) ([]model.Event, error)
}
