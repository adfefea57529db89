// Package ledger implements custodial balance accounting for the native
// asset and external fungible tokens.
//
// Every mutation validates before it writes, and the outbound external
// call always happens after the ledger decrement — the
// check-then-decrement-then-transfer ordering that defeats reentrant
// double-withdraws. A failed outbound transfer re-credits the exact
// amount, so callers observe all-or-nothing behavior.
//
// The caller identity is an explicit parameter on every operation; the
// ledger carries no ambient "current user" state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/asset"
	"github.com/clearbook/settlement-engine/internal/model"
	"github.com/clearbook/settlement-engine/internal/store"
	"github.com/clearbook/settlement-engine/internal/token"
)

var (
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// custodial balance for (asset, owner).
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInvalidAsset is returned when the native sentinel is passed to
	// a token operation. Native value moves only through the native paths.
	ErrInvalidAsset = errors.New("ledger: invalid asset for this operation")

	// ErrTransferFailed is returned when the external collaborator
	// declines a pull or push. The ledger state is unchanged.
	ErrTransferFailed = errors.New("ledger: external transfer failed")
)

// NativeSettler moves native value out of custody to an owner. It is the
// platform-transfer capability required by withdraw_native; pull-side
// native transfers need no collaborator because the deposited value
// arrives as the payload of the deposit call itself.
type NativeSettler interface {
	Payout(ctx context.Context, to string, amount decimal.Decimal) error
}

// NativeSettlerFunc adapts a function to the NativeSettler interface.
type NativeSettlerFunc func(ctx context.Context, to string, amount decimal.Decimal) error

func (f NativeSettlerFunc) Payout(ctx context.Context, to string, amount decimal.Decimal) error {
	return f(ctx, to, amount)
}

// Ledger is the custodial balance ledger. It owns no value itself; it
// keeps the books for value held in custody and drives the external
// transfer capabilities.
type Ledger struct {
	store  store.Store
	tokens token.Transferer
	native NativeSettler // nil → native payouts settle out of band
}

// New creates a ledger over the given store and external-token
// capability. Pass nil for native if the platform settles native
// payouts atomically outside the ledger.
func New(st store.Store, tokens token.Transferer, native NativeSettler) *Ledger {
	return &Ledger{
		store:  st,
		tokens: tokens,
		native: native,
	}
}

// DepositNative credits owner with the attached native value. The amount
// is whatever value accompanied the call — it is trusted as-is, mirroring
// a platform where the transfer and the call are one atomic action.
func (l *Ledger) DepositNative(ctx context.Context, owner string, amount decimal.Decimal) (*model.Event, error) {
	balance, err := l.store.GetBalance(ctx, asset.Native, owner)
	if err != nil {
		return nil, err
	}

	newBalance := balance.Add(amount)
	if err := l.store.SetBalance(ctx, asset.Native, owner, newBalance); err != nil {
		return nil, err
	}

	return l.emit(ctx, model.EventDeposit, asset.Native, owner, amount, newBalance)
}

// WithdrawNative debits owner and pays the value out. The ledger
// decrement happens before the outbound transfer; a declined payout
// restores the balance.
func (l *Ledger) WithdrawNative(ctx context.Context, owner string, amount decimal.Decimal) (*model.Event, error) {
	balance, err := l.store.GetBalance(ctx, asset.Native, owner)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, balance, amount)
	}

	newBalance := balance.Sub(amount)
	if err := l.store.SetBalance(ctx, asset.Native, owner, newBalance); err != nil {
		return nil, err
	}

	if l.native != nil {
		if err := l.native.Payout(ctx, owner, amount); err != nil {
			// Roll back the decrement so the failure is all-or-nothing.
			if rbErr := l.store.SetBalance(ctx, asset.Native, owner, balance); rbErr != nil {
				return nil, fmt.Errorf("rollback after failed payout: %w", rbErr)
			}
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	return l.emit(ctx, model.EventWithdraw, asset.Native, owner, amount, newBalance)
}

// DepositToken pulls amount of tok from owner into custody and credits
// the ledger. The owner must have pre-authorized the custody account on
// the token side; a declined pull leaves the ledger untouched.
func (l *Ledger) DepositToken(ctx context.Context, tok, owner string, amount decimal.Decimal) (*model.Event, error) {
	if asset.IsNative(tok) {
		return nil, fmt.Errorf("%w: native asset must use the native deposit path", ErrInvalidAsset)
	}

	if err := l.tokens.Pull(ctx, tok, owner, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	balance, err := l.store.GetBalance(ctx, tok, owner)
	if err != nil {
		return nil, err
	}
	newBalance := balance.Add(amount)
	if err := l.store.SetBalance(ctx, tok, owner, newBalance); err != nil {
		return nil, err
	}

	return l.emit(ctx, model.EventDeposit, tok, owner, amount, newBalance)
}

// WithdrawToken debits the ledger and pushes amount of tok back to
// owner. Decrement precedes the push; a declined push restores the
// balance.
func (l *Ledger) WithdrawToken(ctx context.Context, tok, owner string, amount decimal.Decimal) (*model.Event, error) {
	if asset.IsNative(tok) {
		return nil, fmt.Errorf("%w: native asset must use the native withdrawal path", ErrInvalidAsset)
	}

	balance, err := l.store.GetBalance(ctx, tok, owner)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, balance, amount)
	}

	newBalance := balance.Sub(amount)
	if err := l.store.SetBalance(ctx, tok, owner, newBalance); err != nil {
		return nil, err
	}

	if err := l.tokens.Push(ctx, tok, owner, amount); err != nil {
		if rbErr := l.store.SetBalance(ctx, tok, owner, balance); rbErr != nil {
			return nil, fmt.Errorf("rollback after failed push: %w", rbErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	return l.emit(ctx, model.EventWithdraw, tok, owner, amount, newBalance)
}

// BalanceOf returns the custodial balance for (asset, owner), zero if
// the pair has never been deposited.
func (l *Ledger) BalanceOf(ctx context.Context, assetID, owner string) (decimal.Decimal, error) {
	return l.store.GetBalance(ctx, assetID, owner)
}

// Balances returns every balance entry ever touched for owner.
func (l *Ledger) Balances(ctx context.Context, owner string) ([]model.Balance, error) {
	return l.store.ListBalances(ctx, owner)
}

// Events returns the append-only audit log in emission order,
// optionally filtered by user. It covers order-book events too — the
// ledger and the book share one log.
func (l *Ledger) Events(ctx context.Context, user string) ([]model.Event, error) {
	return l.store.ListEvents(ctx, user)
}

// emit appends a deposit/withdraw audit record and returns it.
func (l *Ledger) emit(ctx context.Context, kind, assetID, owner string, amount, balance decimal.Decimal) (*model.Event, error) {
	e := &model.Event{
		ID:      uuid.New().String(),
		Kind:    kind,
		At:      time.Now().UTC(),
		Asset:   assetID,
		User:    owner,
		Amount:  amount,
		Balance: balance,
	}
	if err := l.store.AppendEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("record %s event: %w", kind, err)
	}
	return e, nil
}
