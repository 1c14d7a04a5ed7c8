/**
 * @description
 * This file defines the `Store` interface, the contract for the record-store
 * collaborator the ledger core depends on. Defining an interface decouples the
 * core from the concrete database so every component can be exercised against
 * the in-memory implementation in tests.
 *
 * @notes
 * - `WithinTx` is the transactional unit-of-work the core opens around each
 *   logical operation. Everything a single deposit/withdrawal/transfer/login
 *   reads and writes happens inside one `Tx`, and either all of it commits or
 *   none of it does.
 * - Callers that lock multiple accounts inside one Tx must acquire them in
 *   ascending account-number order; both implementations rely on that to stay
 *   deadlock-free under concurrent transfers.
 */

package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/frappster/ledger-service/internal/domain"
)

var (
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// Store defines the record-store surface consumed by the core.
type Store interface {
	// Lookups outside a unit-of-work. Reads are snapshots; anything that
	// feeds a mutation must be re-read under WithinTx.
	FindIdentityByLoginID(ctx context.Context, loginID string) (*domain.Identity, error)
	FindAccountByNumber(ctx context.Context, number int64) (*domain.Account, error)
	ListIdentities(ctx context.Context) ([]domain.Identity, error)

	// Record creation. CreateAccount assigns the account number.
	CreateIdentity(ctx context.Context, identity *domain.Identity) error
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)

	// TransactionsByAccount returns every journal entry in which the account
	// participates as sender or recipient, ordered by creation time ascending.
	TransactionsByAccount(ctx context.Context, number int64) ([]domain.Transaction, error)

	// WithinTx runs fn inside one transactional boundary: fn returning an
	// error rolls every staged write back, nil commits them all.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the store inside one unit-of-work. The ForUpdate reads
// take exclusive row locks held until the unit-of-work ends.
type Tx interface {
	IdentityForUpdate(ctx context.Context, loginID string) (*domain.Identity, error)
	PersistIdentity(ctx context.Context, identity *domain.Identity) error
	AccountForUpdate(ctx context.Context, number int64) (*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, number int64, balance decimal.Decimal) error
	AppendTransaction(ctx context.Context, txn *domain.Transaction) error
}
