/**
 * @description
 * Typed failures returned by the ledger engine. Callers branch with errors.Is
 * and the HTTP layer maps each sentinel to a status code.
 */

package app

import "errors"

var (
	// ErrInvalidAmount rejects a requested movement before any balance is
	// read: non-positive, or carrying more fractional digits than the
	// account's declared scale.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds rejects a debit that would take the source balance
	// below zero. A debit of exactly the full balance is allowed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSelfTransferRejected rejects a transfer whose source and destination
	// are the same account.
	ErrSelfTransferRejected = errors.New("transfer to the same account")
)
