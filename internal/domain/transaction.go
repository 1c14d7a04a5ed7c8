/**
 * @description
 * This file defines the Transaction journal record, the append-only ledger of
 * committed money movements. A record is immutable once committed: the store
 * only ever inserts them, never updates or deletes.
 *
 * @notes
 * - The sender/recipient shape is enforced by construction: deposits carry a
 *   recipient only, withdrawals a sender only, transfers both. There is no
 *   constructor that can produce any other combination.
 * - Amounts are fixed-point decimals; positivity and scale are validated in
 *   the ledger engine before a constructor is called, but the constructors
 *   still refuse non-positive amounts as a last line of defense.
 */

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType discriminates the three kinds of money movement.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
)

var ErrNonPositiveAmount = errors.New("transaction amount must be positive")

// Transaction is one committed money movement. Sender and Recipient hold
// account numbers; whichever side does not participate is nil.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	Type      TransactionType `json:"type"`
	Sender    *int64          `json:"sender,omitempty"`
	Recipient *int64          `json:"recipient,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewDeposit records money entering the system into one account.
func NewDeposit(recipient int64, amount decimal.Decimal, at time.Time) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return &Transaction{
		ID:        uuid.New(),
		Type:      TransactionDeposit,
		Recipient: &recipient,
		Amount:    amount,
		CreatedAt: at,
	}, nil
}

// NewWithdrawal records money leaving the system from one account.
func NewWithdrawal(sender int64, amount decimal.Decimal, at time.Time) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return &Transaction{
		ID:        uuid.New(),
		Type:      TransactionWithdrawal,
		Sender:    &sender,
		Amount:    amount,
		CreatedAt: at,
	}, nil
}

// NewTransfer records a movement between two accounts as a single journal
// entry; the debit and credit are not journalled separately.
func NewTransfer(sender, recipient int64, amount decimal.Decimal, at time.Time) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if sender == recipient {
		return nil, errors.New("transfer sender and recipient must differ")
	}
	return &Transaction{
		ID:        uuid.New(),
		Type:      TransactionTransfer,
		Sender:    &sender,
		Recipient: &recipient,
		Amount:    amount,
		CreatedAt: at,
	}, nil
}

// Involves reports whether the account participates in the movement as sender
// or recipient.
func (t *Transaction) Involves(accountNumber int64) bool {
	if t.Sender != nil && *t.Sender == accountNumber {
		return true
	}
	if t.Recipient != nil && *t.Recipient == accountNumber {
		return true
	}
	return false
}
