package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/asset"
	"github.com/clearbook/settlement-engine/internal/ledger"
	"github.com/clearbook/settlement-engine/internal/model"
	"github.com/clearbook/settlement-engine/internal/store"
	"github.com/clearbook/settlement-engine/internal/token"
)

const tok = "0x5fbdb2315678afecb367f032d93f642f64180aa3"

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

// newLedger builds a ledger over a memory store with a seeded token bank.
func newLedger(t *testing.T) (*ledger.Ledger, *store.MemoryStore, *token.MemoryBank) {
	t.Helper()
	ms := store.NewMemoryStore()
	bank := token.NewMemoryBank("settlement-engine")
	return ledger.New(ms, bank, nil), ms, bank
}

func balance(t *testing.T, l *ledger.Ledger, assetID, owner string) decimal.Decimal {
	t.Helper()
	got, err := l.BalanceOf(context.Background(), assetID, owner)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	return got
}

// --- Native asset ---

func TestDepositNative_CreditsAttachedValue(t *testing.T) {
	l, _, _ := newLedger(t)

	event, err := l.DepositNative(context.Background(), "user1", d(1))
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	if got := balance(t, l, asset.Native, "user1"); !got.Equal(d(1)) {
		t.Errorf("expected balance 1, got %s", got)
	}

	if event.Kind != model.EventDeposit {
		t.Errorf("expected deposit event, got %s", event.Kind)
	}
	if event.Asset != asset.Native {
		t.Errorf("expected native asset in event, got %s", event.Asset)
	}
	if event.User != "user1" || !event.Amount.Equal(d(1)) || !event.Balance.Equal(d(1)) {
		t.Errorf("unexpected event fields: %+v", event)
	}
}

func TestWithdrawNative_ToZeroThenReject(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	if _, err := l.DepositNative(ctx, "user1", d(1)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	event, err := l.WithdrawNative(ctx, "user1", d(1))
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if !event.Balance.IsZero() {
		t.Errorf("expected resulting balance 0 in event, got %s", event.Balance)
	}
	if got := balance(t, l, asset.Native, "user1"); !got.IsZero() {
		t.Errorf("expected balance 0, got %s", got)
	}

	// A second withdrawal of the same amount must be rejected with the
	// balance unchanged.
	if _, err := l.WithdrawNative(ctx, "user1", d(1)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := balance(t, l, asset.Native, "user1"); !got.IsZero() {
		t.Errorf("rejected withdrawal must not change balance, got %s", got)
	}
}

func TestWithdrawNative_PayoutFailureRollsBack(t *testing.T) {
	ms := store.NewMemoryStore()
	bank := token.NewMemoryBank("settlement-engine")
	declined := errors.New("platform declined")
	l := ledger.New(ms, bank, ledger.NativeSettlerFunc(
		func(context.Context, string, decimal.Decimal) error { return declined },
	))
	ctx := context.Background()

	if _, err := l.DepositNative(ctx, "user1", d(5)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	_, err := l.WithdrawNative(ctx, "user1", d(3))
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if got := balance(t, l, asset.Native, "user1"); !got.Equal(d(5)) {
		t.Errorf("failed payout must restore balance to 5, got %s", got)
	}
}

// --- Token assets ---

func TestDepositToken_Succeeds(t *testing.T) {
	l, _, bank := newLedger(t)
	ctx := context.Background()

	bank.Mint(tok, "user1", d(100))
	bank.Approve(tok, "user1", d(10))

	event, err := l.DepositToken(ctx, tok, "user1", d(10))
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	if got := balance(t, l, tok, "user1"); !got.Equal(d(10)) {
		t.Errorf("expected ledger balance 10, got %s", got)
	}
	if got := bank.BalanceOf(tok, "settlement-engine"); !got.Equal(d(10)) {
		t.Errorf("expected custody to hold 10 on the token side, got %s", got)
	}
	if event.Asset != tok || !event.Balance.Equal(d(10)) {
		t.Errorf("unexpected event fields: %+v", event)
	}
}

func TestDepositToken_RejectsNativeSentinel(t *testing.T) {
	l, _, _ := newLedger(t)

	_, err := l.DepositToken(context.Background(), asset.Native, "user1", d(10))
	if !errors.Is(err, ledger.ErrInvalidAsset) {
		t.Errorf("expected ErrInvalidAsset, got %v", err)
	}
}

func TestDepositToken_NoApproval(t *testing.T) {
	l, _, bank := newLedger(t)
	bank.Mint(tok, "user1", d(100))

	_, err := l.DepositToken(context.Background(), tok, "user1", d(10))
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Errorf("expected ErrTransferFailed, got %v", err)
	}
	if got := balance(t, l, tok, "user1"); !got.IsZero() {
		t.Errorf("failed pull must not credit the ledger, got %s", got)
	}
}

func TestWithdrawToken_Succeeds(t *testing.T) {
	l, _, bank := newLedger(t)
	ctx := context.Background()

	bank.Mint(tok, "user1", d(10))
	bank.Approve(tok, "user1", d(10))
	if _, err := l.DepositToken(ctx, tok, "user1", d(10)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	event, err := l.WithdrawToken(ctx, tok, "user1", d(10))
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if !event.Balance.IsZero() {
		t.Errorf("expected resulting balance 0 in event, got %s", event.Balance)
	}
	if got := bank.BalanceOf(tok, "user1"); !got.Equal(d(10)) {
		t.Errorf("expected funds back on the token side, got %s", got)
	}
}

func TestWithdrawToken_RejectsNativeSentinel(t *testing.T) {
	l, _, _ := newLedger(t)

	_, err := l.WithdrawToken(context.Background(), asset.Native, "user1", d(1))
	if !errors.Is(err, ledger.ErrInvalidAsset) {
		t.Errorf("expected ErrInvalidAsset, got %v", err)
	}
}

func TestWithdrawToken_InsufficientBalance(t *testing.T) {
	l, _, _ := newLedger(t)

	_, err := l.WithdrawToken(context.Background(), tok, "user1", d(10))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

// failingTokens declines every push; pulls succeed silently.
type failingTokens struct{}

func (failingTokens) Pull(context.Context, string, string, decimal.Decimal) error { return nil }
func (failingTokens) Push(context.Context, string, string, decimal.Decimal) error {
	return errors.New("token contract declined")
}

func TestWithdrawToken_PushFailureRollsBack(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New(ms, failingTokens{}, nil)
	ctx := context.Background()

	if _, err := l.DepositToken(ctx, tok, "user1", d(10)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	_, err := l.WithdrawToken(ctx, tok, "user1", d(10))
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if got := balance(t, l, tok, "user1"); !got.Equal(d(10)) {
		t.Errorf("failed push must restore balance to 10, got %s", got)
	}
}

// --- Conservation and audit properties ---

func TestBalance_EqualsDepositsMinusWithdrawals(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	deposits := []int64{7, 3, 12}
	withdrawals := []int64{5, 4}

	for _, a := range deposits {
		if _, err := l.DepositNative(ctx, "user1", d(a)); err != nil {
			t.Fatalf("deposit %d failed: %v", a, err)
		}
	}
	for _, a := range withdrawals {
		if _, err := l.WithdrawNative(ctx, "user1", d(a)); err != nil {
			t.Fatalf("withdraw %d failed: %v", a, err)
		}
	}

	// 7 + 3 + 12 - 5 - 4 = 13
	if got := balance(t, l, asset.Native, "user1"); !got.Equal(d(13)) {
		t.Errorf("expected balance 13, got %s", got)
	}
}

func TestBalances_NeverDepositedReadsZero(t *testing.T) {
	l, _, _ := newLedger(t)

	if got := balance(t, l, tok, "nobody"); !got.IsZero() {
		t.Errorf("expected zero for untouched pair, got %s", got)
	}
}

func TestEvents_OnePerSuccessZeroPerRejection(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	l.DepositNative(ctx, "user1", d(2))
	l.WithdrawNative(ctx, "user1", d(1))
	l.WithdrawNative(ctx, "user1", d(100)) // rejected

	events, err := l.Events(ctx, "user1")
	if err != nil {
		t.Fatalf("events read failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != model.EventDeposit || events[1].Kind != model.EventWithdraw {
		t.Errorf("unexpected event kinds: %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[0].Seq >= events[1].Seq {
		t.Errorf("event sequence must increase: %d, %d", events[0].Seq, events[1].Seq)
	}
}
