package token

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

const (
	tok     = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	custody = "settlement-engine"
)

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

func TestPull_MovesFundsAndConsumesAllowance(t *testing.T) {
	b := NewMemoryBank(custody)
	b.Mint(tok, "user1", d(100))
	b.Approve(tok, "user1", d(40))

	if err := b.Pull(context.Background(), tok, "user1", d(30)); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	if got := b.BalanceOf(tok, "user1"); !got.Equal(d(70)) {
		t.Errorf("expected user1 balance 70, got %s", got)
	}
	if got := b.BalanceOf(tok, custody); !got.Equal(d(30)) {
		t.Errorf("expected custody balance 30, got %s", got)
	}

	// Remaining allowance is 10; pulling 20 more must fail.
	if err := b.Pull(context.Background(), tok, "user1", d(20)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestPull_NoApproval(t *testing.T) {
	b := NewMemoryBank(custody)
	b.Mint(tok, "user1", d(100))

	err := b.Pull(context.Background(), tok, "user1", d(10))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}
	if got := b.BalanceOf(tok, "user1"); !got.Equal(d(100)) {
		t.Errorf("failed pull must not move funds, balance %s", got)
	}
}

func TestPull_InsufficientFunds(t *testing.T) {
	b := NewMemoryBank(custody)
	b.Mint(tok, "user1", d(5))
	b.Approve(tok, "user1", d(10))

	err := b.Pull(context.Background(), tok, "user1", d(10))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestPush_RoundTrip(t *testing.T) {
	b := NewMemoryBank(custody)
	b.Mint(tok, "user1", d(50))
	b.Approve(tok, "user1", d(50))

	if err := b.Pull(context.Background(), tok, "user1", d(50)); err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if err := b.Push(context.Background(), tok, "user1", d(50)); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if got := b.BalanceOf(tok, "user1"); !got.Equal(d(50)) {
		t.Errorf("expected user1 balance restored to 50, got %s", got)
	}
	if got := b.BalanceOf(tok, custody); !got.IsZero() {
		t.Errorf("expected empty custody, got %s", got)
	}
}

func TestPush_CustodyShort(t *testing.T) {
	b := NewMemoryBank(custody)

	err := b.Push(context.Background(), tok, "user1", d(1))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}
