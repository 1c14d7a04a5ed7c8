/**
 * @description
 * This file defines the Account domain model: a balance-holding entity owned
 * by exactly one identity. Balances are fixed-point decimals with a scale
 * declared at creation; floating point never touches money.
 */

package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType tags an account; it has no behavioural meaning in the ledger.
type AccountType string

const (
	AccountSavings  AccountType = "savings"
	AccountChecking AccountType = "checking"
	AccountBusiness AccountType = "business"
)

var ErrUnknownAccountType = errors.New("unknown account type")

// ParseAccountType validates a stored or transported account type tag.
func ParseAccountType(s string) (AccountType, error) {
	switch AccountType(strings.ToLower(strings.TrimSpace(s))) {
	case AccountSavings:
		return AccountSavings, nil
	case AccountChecking:
		return AccountChecking, nil
	case AccountBusiness:
		return AccountBusiness, nil
	default:
		return "", ErrUnknownAccountType
	}
}

// Account is a balance-holding entity. Balance is mutated only by the ledger
// engine inside a store transaction; it is never negative outside an in-flight
// operation.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	Number     int64           `json:"number"`
	IdentityID uuid.UUID       `json:"identity_id"`
	Type       AccountType     `json:"type"`
	Balance    decimal.Decimal `json:"balance"`
	Scale      int32           `json:"scale"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewAccount builds an account for an existing identity with a zero balance
// at the declared scale. The account number is assigned by the store.
func NewAccount(identityID uuid.UUID, accountType AccountType, scale int32) (*Account, error) {
	if identityID == uuid.Nil {
		return nil, ErrMissingField
	}
	if _, err := ParseAccountType(string(accountType)); err != nil {
		return nil, err
	}
	if scale < 0 {
		return nil, errors.New("scale must be non-negative")
	}
	now := time.Now().UTC()
	return &Account{
		ID:         uuid.New(),
		IdentityID: identityID,
		Type:       accountType,
		Balance:    decimal.Zero,
		Scale:      scale,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
