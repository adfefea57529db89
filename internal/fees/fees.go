// Package fees holds the fee schedule fixed at system initialization:
// the fee-collection account and the fee percentage. Fee deduction
// itself happens during order filling, which this engine does not
// perform; the schedule is configuration read by downstream fill logic
// and exposed read-only over the API.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyAccount is returned when no fee-collection account is set.
	ErrEmptyAccount = errors.New("fees: fee account must not be empty")

	// ErrInvalidPercent is returned when the fee percentage is outside
	// [0, 100].
	ErrInvalidPercent = errors.New("fees: fee percent must be within [0, 100]")
)

// Schedule is the immutable fee configuration.
type Schedule struct {
	Account string          `json:"fee_account"`
	Percent decimal.Decimal `json:"fee_percent"`
}

// NewSchedule validates and constructs a fee schedule.
func NewSchedule(account string, percent decimal.Decimal) (*Schedule, error) {
	if account == "" {
		return nil, ErrEmptyAccount
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, ErrInvalidPercent
	}
	return &Schedule{Account: account, Percent: percent}, nil
}

// Cut returns the fee owed on amount under this schedule.
func (s *Schedule) Cut(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.Percent).Div(decimal.NewFromInt(100))
}
