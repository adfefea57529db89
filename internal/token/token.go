// Package token defines the capability contract the ledger requires from
// external fungible-token assets, plus an in-memory implementation used
// for development and tests.
//
// The ledger never assumes anything about a token's internal
// representation — only that it can pull value into custody (having been
// pre-authorized by the owner) and push value back out, each reporting
// success or failure.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Transferer is the external-token capability injected into the ledger.
// Pull is transfer_from(owner → custody); Push is transfer(custody →
// owner). Both are callable only by the ledger acting as a pre-authorized
// spender, and either fully succeed or fail with no effect.
type Transferer interface {
	Pull(ctx context.Context, token, owner string, amount decimal.Decimal) error
	Push(ctx context.Context, token, owner string, amount decimal.Decimal) error
}

var (
	// ErrInsufficientFunds is returned when a holder's token balance
	// cannot cover a transfer.
	ErrInsufficientFunds = errors.New("token: insufficient funds")

	// ErrInsufficientAllowance is returned when a pull exceeds what the
	// owner has approved for the custody account.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// MemoryBank is an in-memory fungible token bank implementing Transferer
// for any number of token contracts at once. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryBank struct {
	custody string // the ledger's own account on the token side

	mu         sync.RWMutex
	balances   map[string]map[string]decimal.Decimal // token → holder → amount
	allowances map[string]map[string]decimal.Decimal // token → owner → amount approved for custody
}

// NewMemoryBank creates a bank whose custody account is the given
// identity. Pulled value is credited to it; pushed value is debited.
func NewMemoryBank(custody string) *MemoryBank {
	return &MemoryBank{
		custody:    custody,
		balances:   make(map[string]map[string]decimal.Decimal),
		allowances: make(map[string]map[string]decimal.Decimal),
	}
}

// Mint credits freshly created units of tok to holder.
func (b *MemoryBank) Mint(tok, holder string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(tok, holder, amount)
}

// Approve authorizes the custody account to pull up to amount of tok
// from owner. Replaces any prior approval, mirroring approve() semantics
// of common fungible-token contracts.
func (b *MemoryBank) Approve(tok, owner string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allowances[tok] == nil {
		b.allowances[tok] = make(map[string]decimal.Decimal)
	}
	b.allowances[tok][owner] = amount
}

// BalanceOf returns holder's balance of tok on the token side.
func (b *MemoryBank) BalanceOf(tok, holder string) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[tok][holder]
}

// Pull moves amount of tok from owner into custody, consuming allowance.
func (b *MemoryBank) Pull(_ context.Context, tok, owner string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	allowed := b.allowances[tok][owner]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: approved %s, need %s", ErrInsufficientAllowance, allowed, amount)
	}
	if b.balances[tok][owner].LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s of %s", ErrInsufficientFunds, owner, b.balances[tok][owner], tok)
	}

	b.allowances[tok][owner] = allowed.Sub(amount)
	b.balances[tok][owner] = b.balances[tok][owner].Sub(amount)
	b.credit(tok, b.custody, amount)
	return nil
}

// Push moves amount of tok from custody back to owner.
func (b *MemoryBank) Push(_ context.Context, tok, owner string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[tok][b.custody].LessThan(amount) {
		return fmt.Errorf("%w: custody holds %s of %s", ErrInsufficientFunds, b.balances[tok][b.custody], tok)
	}

	b.balances[tok][b.custody] = b.balances[tok][b.custody].Sub(amount)
	b.credit(tok, owner, amount)
	return nil
}

// credit adds amount to holder's balance. Caller holds b.mu.
func (b *MemoryBank) credit(tok, holder string, amount decimal.Decimal) {
	if b.balances[tok] == nil {
		b.balances[tok] = make(map[string]decimal.Decimal)
	}
	b.balances[tok][holder] = b.balances[tok][holder].Add(amount)
}
