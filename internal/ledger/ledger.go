// Package ledger owns the wallet ledger store: user balances, the append-only
// transaction log, balance holds and deposit requests, together with the
// primitives every balance mutation is built from.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for zero, negative or sub-cent amounts.
	ErrInvalidAmount = errors.New("amount must be a positive value with at most two decimals")
	// ErrAmountOutOfRange is returned when an amount falls outside configured bounds.
	ErrAmountOutOfRange = errors.New("amount outside allowed range")

	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrRequestNotFound = errors.New("deposit request not found")
	ErrHoldNotFound    = errors.New("hold not found")

	// ErrInsufficientBalance occurs when the wallet balance cannot cover a debit.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAvailableBalance occurs when funds exist but are reserved by holds.
	ErrInsufficientAvailableBalance = errors.New("insufficient available balance")

	ErrInvalidHoldState = errors.New("hold is no longer active")
	ErrHoldExists       = errors.New("an active hold already exists for this reference")
	ErrAlreadyProcessed = errors.New("deposit request already processed")

	ErrRoleMismatch           = errors.New("user role does not allow this operation")
	ErrSelfApproval           = errors.New("requester cannot process their own request")
	ErrNotRequester           = errors.New("only the requester may cancel this request")
	ErrNotTarget              = errors.New("only the request target may process this request")
	ErrTooManyPendingRequests = errors.New("too many pending deposit requests")

	// ErrDuplicateTransaction indicates the provided idempotency key was already
	// used and the original records were returned instead of posting again.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	ErrInvalidReference = errors.New("invalid reference")
	// ErrInvalidInput wraps any other rejected argument, such as an unknown type.
	ErrInvalidInput = errors.New("invalid input")
)

// CurrencyPlaces is the number of decimal places carried by every amount.
const CurrencyPlaces = 2

// ValidateAmount rejects amounts that are not strictly positive or that carry
// more precision than the currency allows.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(CurrencyPlaces)) {
		return ErrInvalidAmount
	}
	return nil
}

// ParseAmount parses a user supplied amount string.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
