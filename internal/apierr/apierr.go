// Package apierr translates ledger errors into HTTP errors.
package apierr

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/playarena/arena_ledger/internal/ledger"
)

var statuses = []struct {
	err    error
	status int
}{
	{ledger.ErrInvalidAmount, http.StatusBadRequest},
	{ledger.ErrAmountOutOfRange, http.StatusBadRequest},
	{ledger.ErrInvalidReference, http.StatusBadRequest},
	{ledger.ErrInvalidInput, http.StatusBadRequest},
	{ledger.ErrRoleMismatch, http.StatusBadRequest},
	{ledger.ErrUserNotFound, http.StatusNotFound},
	{ledger.ErrRequestNotFound, http.StatusNotFound},
	{ledger.ErrHoldNotFound, http.StatusNotFound},
	{ledger.ErrInsufficientBalance, http.StatusUnprocessableEntity},
	{ledger.ErrInsufficientAvailableBalance, http.StatusUnprocessableEntity},
	{ledger.ErrInvalidHoldState, http.StatusConflict},
	{ledger.ErrHoldExists, http.StatusConflict},
	{ledger.ErrAlreadyProcessed, http.StatusConflict},
	{ledger.ErrDuplicateTransaction, http.StatusConflict},
	{ledger.ErrUserExists, http.StatusConflict},
	{ledger.ErrSelfApproval, http.StatusForbidden},
	{ledger.ErrNotRequester, http.StatusForbidden},
	{ledger.ErrNotTarget, http.StatusForbidden},
	{ledger.ErrTooManyPendingRequests, http.StatusTooManyRequests},
}

// Status returns the HTTP status for err, 500 for unknown errors.
func Status(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// From converts a service error into a fiber error. Unknown errors are
// reported as a generic 500 so storage details never reach clients.
func From(err error) error {
	if err == nil {
		return nil
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return fiber.NewError(s.status, err.Error())
		}
	}
	return fiber.NewError(http.StatusInternalServerError, "internal error")
}

// BadRequest wraps a request decoding error.
func BadRequest(err error) error {
	return fiber.NewError(http.StatusBadRequest, err.Error())
}
