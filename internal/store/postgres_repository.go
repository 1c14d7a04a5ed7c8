/**
 * @description
 * This file provides the PostgreSQL implementation of the `Store` interface.
 * It contains the SQL for the identities, accounts, and transactions tables,
 * and implements the unit-of-work with a pgx transaction whose ForUpdate reads
 * use `SELECT ... FOR UPDATE` row locks.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Fixed-point balances and amounts; values
 *   travel to and from NUMERIC columns as text, never as floats.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/frappster/ledger-service/internal/domain"
)

// PostgresStore is a concrete implementation of the Store interface for PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new instance of PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the required tables when they do not exist yet.
// Idempotent; called once at startup.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS identities (
			id UUID PRIMARY KEY,
			login_id TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			secret_hash TEXT NOT NULL,
			failed_attempts INT NOT NULL DEFAULT 0,
			lockout_until TIMESTAMPTZ,
			last_login TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE SEQUENCE IF NOT EXISTS account_numbers START 100;
		CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			number BIGINT NOT NULL UNIQUE DEFAULT nextval('account_numbers'),
			identity_id UUID NOT NULL REFERENCES identities(id),
			account_type TEXT NOT NULL,
			balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
			scale INT NOT NULL DEFAULT 2,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL,
			sender BIGINT,
			recipient BIGINT,
			amount NUMERIC NOT NULL CHECK (amount > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS transactions_sender_idx ON transactions (sender);
		CREATE INDEX IF NOT EXISTS transactions_recipient_idx ON transactions (recipient);
	`)
	return err
}

type identityRow interface {
	Scan(dest ...any) error
}

func scanIdentity(row identityRow) (*domain.Identity, error) {
	var (
		identity domain.Identity
		role     string
	)
	err := row.Scan(
		&identity.ID,
		&identity.LoginID,
		&role,
		&identity.SecretHash,
		&identity.FailedAttempts,
		&identity.LockoutUntil,
		&identity.LastLogin,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	identity.Role, err = domain.ParseAccessRole(role)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", identity.LoginID, err)
	}
	return &identity, nil
}

const identityColumns = `id, login_id, role, secret_hash, failed_attempts, lockout_until, last_login, created_at, updated_at`

// FindIdentityByLoginID retrieves an identity by its unique login identifier.
func (s *PostgresStore) FindIdentityByLoginID(ctx context.Context, loginID string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE login_id = $1`
	return scanIdentity(s.db.QueryRow(ctx, query, loginID))
}

// ListIdentities returns all identities ordered by login id.
func (s *PostgresStore) ListIdentities(ctx context.Context) ([]domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY login_id`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []domain.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

// CreateIdentity inserts a new identity record.
func (s *PostgresStore) CreateIdentity(ctx context.Context, identity *domain.Identity) error {
	query := `
		INSERT INTO identities (id, login_id, role, secret_hash, failed_attempts, lockout_until, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		identity.ID,
		identity.LoginID,
		identity.Role.String(),
		identity.SecretHash,
		identity.FailedAttempts,
		identity.LockoutUntil,
		identity.LastLogin,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

func scanAccount(row identityRow) (*domain.Account, error) {
	var (
		account     domain.Account
		accountType string
		balance     string
	)
	err := row.Scan(
		&account.ID,
		&account.Number,
		&account.IdentityID,
		&accountType,
		&balance,
		&account.Scale,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	account.Type, err = domain.ParseAccountType(accountType)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", account.Number, err)
	}
	account.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("account %d balance: %w", account.Number, err)
	}
	return &account, nil
}

const accountColumns = `id, number, identity_id, account_type, balance::text, scale, created_at, updated_at`

// FindAccountByNumber retrieves an account by its unique account number.
func (s *PostgresStore) FindAccountByNumber(ctx context.Context, number int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE number = $1`
	return scanAccount(s.db.QueryRow(ctx, query, number))
}

// CreateAccount inserts a new account and returns it with the store-assigned
// account number filled in.
func (s *PostgresStore) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, identity_id, account_type, balance, scale, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING number
	`
	err := s.db.QueryRow(ctx, query,
		account.ID,
		account.IdentityID,
		string(account.Type),
		account.Balance.String(),
		account.Scale,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.Number)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	var txns []domain.Transaction
	for rows.Next() {
		var (
			txn    domain.Transaction
			kind   string
			amount string
		)
		if err := rows.Scan(&txn.ID, &kind, &txn.Sender, &txn.Recipient, &amount, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txn.Type = domain.TransactionType(kind)
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", txn.ID, err)
		}
		txn.Amount = parsed
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// TransactionsByAccount returns the journal entries involving the account,
// oldest first. Ties on the timestamp are broken by id to keep the order
// stable across calls.
func (s *PostgresStore) TransactionsByAccount(ctx context.Context, number int64) ([]domain.Transaction, error) {
	query := `
		SELECT id, type, sender, recipient, amount::text, created_at
		FROM transactions
		WHERE sender = $1 OR recipient = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.Query(ctx, query, number)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// WithinTx runs fn inside one database transaction. fn returning an error
// rolls back every staged write; nil commits them together.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type postgresTx struct {
	tx pgx.Tx
}

// IdentityForUpdate reads an identity under an exclusive row lock.
func (t *postgresTx) IdentityForUpdate(ctx context.Context, loginID string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE login_id = $1 FOR UPDATE`
	return scanIdentity(t.tx.QueryRow(ctx, query, loginID))
}

// PersistIdentity writes back the mutable identity fields: secret hash,
// failed-attempt counter, lockout window, last login, and role.
func (t *postgresTx) PersistIdentity(ctx context.Context, identity *domain.Identity) error {
	query := `
		UPDATE identities
		SET role = $2, secret_hash = $3, failed_attempts = $4, lockout_until = $5, last_login = $6, updated_at = NOW()
		WHERE login_id = $1
	`
	result, err := t.tx.Exec(ctx, query,
		identity.LoginID,
		identity.Role.String(),
		identity.SecretHash,
		identity.FailedAttempts,
		identity.LockoutUntil,
		identity.LastLogin,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// AccountForUpdate reads an account under an exclusive row lock. Callers
// locking two accounts must do so in ascending account-number order.
func (t *postgresTx) AccountForUpdate(ctx context.Context, number int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE number = $1 FOR UPDATE`
	return scanAccount(t.tx.QueryRow(ctx, query, number))
}

// UpdateAccountBalance writes a new balance for a locked account.
func (t *postgresTx) UpdateAccountBalance(ctx context.Context, number int64, balance decimal.Decimal) error {
	query := `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE number = $1`
	result, err := t.tx.Exec(ctx, query, number, balance.String())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AppendTransaction inserts one immutable journal record.
func (t *postgresTx) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO transactions (id, type, sender, recipient, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.Exec(ctx, query,
		txn.ID,
		string(txn.Type),
		txn.Sender,
		txn.Recipient,
		txn.Amount.String(),
		txn.CreatedAt,
	)
	return err
}
