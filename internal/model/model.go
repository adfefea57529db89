// Package model defines the core domain types shared across the settlement
// engine. All amounts use shopspring/decimal — never float64 for money —
// and are denominated in an asset's smallest indivisible unit.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the custodial ledger entry for one (asset, owner) pair.
// Created implicitly on first deposit; a zero amount is a valid,
// continuing state, not a deletion.
type Balance struct {
	Asset  string          `json:"asset" db:"asset"`
	Owner  string          `json:"owner" db:"owner"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
}

// Order is a recorded intent to exchange one asset/amount for another.
// Immutable once created except for the Cancelled flag, which flips
// false→true exactly once, only by the owner. Orders are never deleted;
// cancellation is a logical tombstone preserving auditability.
type Order struct {
	ID            int64           `json:"id" db:"id"`
	Owner         string          `json:"owner" db:"owner"`
	AssetWanted   string          `json:"asset_wanted" db:"asset_wanted"`
	AmountWanted  decimal.Decimal `json:"amount_wanted" db:"amount_wanted"`
	AssetOffered  string          `json:"asset_offered" db:"asset_offered"`
	AmountOffered decimal.Decimal `json:"amount_offered" db:"amount_offered"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	Cancelled     bool            `json:"cancelled" db:"cancelled"`
}

// Event kinds emitted by the ledger and the order book.
const (
	EventDeposit  = "deposit"
	EventWithdraw = "withdraw"
	EventOrder    = "order"
	EventCancel   = "cancel"
)

// Event is one record of the append-only audit log. Deposit and withdraw
// events carry the (asset, user, amount, resulting balance) shape; order
// and cancel events carry the full order field set. Seq is assigned by
// the store in insertion order.
type Event struct {
	Seq  int64     `json:"seq" db:"seq"`
	ID   string    `json:"event_id" db:"event_id"` // uuid, for audit cross-referencing
	Kind string    `json:"kind" db:"kind"`
	At   time.Time `json:"at" db:"at"`

	// Deposit / Withdraw fields.
	Asset   string          `json:"asset,omitempty" db:"asset"`
	User    string          `json:"user,omitempty" db:"user_id"`
	Amount  decimal.Decimal `json:"amount" db:"amount"`
	Balance decimal.Decimal `json:"balance" db:"balance"`

	// Order / Cancel fields.
	OrderID       int64           `json:"order_id,omitempty" db:"order_id"`
	AssetWanted   string          `json:"asset_wanted,omitempty" db:"asset_wanted"`
	AmountWanted  decimal.Decimal `json:"amount_wanted" db:"amount_wanted"`
	AssetOffered  string          `json:"asset_offered,omitempty" db:"asset_offered"`
	AmountOffered decimal.Decimal `json:"amount_offered" db:"amount_offered"`
	CreatedAt     time.Time       `json:"order_created_at" db:"order_created_at"`
}
