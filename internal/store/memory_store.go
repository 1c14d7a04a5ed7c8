/**
 * @description
 * This file provides an in-memory implementation of the `Store` interface.
 * It backs the test suites and lets the service run locally without a
 * database. A single mutex serializes every unit-of-work, and the unit-of-work
 * operates on staged copies that are applied only on commit, so rollback
 * semantics match the PostgreSQL implementation.
 */

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frappster/ledger-service/internal/domain"
)

// MemoryStore keeps all records in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[string]*domain.Identity
	accounts   map[int64]*domain.Account
	journal    []*domain.Transaction
	nextNumber int64
}

// NewMemoryStore creates an empty in-memory store. Account numbers are
// assigned from 100 upward.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*domain.Identity),
		accounts:   make(map[int64]*domain.Account),
		nextNumber: 100,
	}
}

func cloneIdentity(i *domain.Identity) *domain.Identity {
	cp := *i
	if i.LockoutUntil != nil {
		t := *i.LockoutUntil
		cp.LockoutUntil = &t
	}
	if i.LastLogin != nil {
		t := *i.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}

func cloneAccount(a *domain.Account) *domain.Account {
	cp := *a
	return &cp
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	cp := *t
	if t.Sender != nil {
		n := *t.Sender
		cp.Sender = &n
	}
	if t.Recipient != nil {
		n := *t.Recipient
		cp.Recipient = &n
	}
	return &cp
}

// FindIdentityByLoginID returns a snapshot of the identity.
func (s *MemoryStore) FindIdentityByLoginID(_ context.Context, loginID string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[loginID]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return cloneIdentity(identity), nil
}

// FindAccountByNumber returns a snapshot of the account.
func (s *MemoryStore) FindAccountByNumber(_ context.Context, number int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[number]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

// ListIdentities returns snapshots of all identities ordered by login id.
func (s *MemoryStore) ListIdentities(_ context.Context) ([]domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		out = append(out, *cloneIdentity(identity))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoginID < out[j].LoginID })
	return out, nil
}

// CreateIdentity stores a new identity keyed by login id.
func (s *MemoryStore) CreateIdentity(_ context.Context, identity *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.identities[identity.LoginID]; exists {
		return ErrDuplicateIdentity
	}
	s.identities[identity.LoginID] = cloneIdentity(identity)
	return nil
}

// CreateAccount stores a new account, assigning the next account number.
func (s *MemoryStore) CreateAccount(_ context.Context, account *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.Number = s.nextNumber
	s.nextNumber++
	s.accounts[account.Number] = cloneAccount(account)
	return cloneAccount(account), nil
}

// TransactionsByAccount returns the journal entries involving the account,
// oldest first.
func (s *MemoryStore) TransactionsByAccount(_ context.Context, number int64) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range s.journal {
		if txn.Involves(number) {
			out = append(out, *cloneTransaction(txn))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// WithinTx serializes the unit-of-work under the store mutex. fn works on
// staged copies; they are applied only when fn returns nil.
func (s *MemoryStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:      s,
		identities: make(map[string]*domain.Identity),
		accounts:   make(map[int64]*domain.Account),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for loginID, identity := range tx.identities {
		s.identities[loginID] = identity
	}
	for number, account := range tx.accounts {
		s.accounts[number] = account
	}
	s.journal = append(s.journal, tx.journal...)
	return nil
}

type memoryTx struct {
	store      *MemoryStore
	identities map[string]*domain.Identity
	accounts   map[int64]*domain.Account
	journal    []*domain.Transaction
}

func (t *memoryTx) IdentityForUpdate(_ context.Context, loginID string) (*domain.Identity, error) {
	if staged, ok := t.identities[loginID]; ok {
		return cloneIdentity(staged), nil
	}
	identity, ok := t.store.identities[loginID]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return cloneIdentity(identity), nil
}

func (t *memoryTx) PersistIdentity(_ context.Context, identity *domain.Identity) error {
	if _, staged := t.identities[identity.LoginID]; !staged {
		if _, ok := t.store.identities[identity.LoginID]; !ok {
			return ErrIdentityNotFound
		}
	}
	cp := cloneIdentity(identity)
	cp.UpdatedAt = time.Now().UTC()
	t.identities[identity.LoginID] = cp
	return nil
}

func (t *memoryTx) AccountForUpdate(_ context.Context, number int64) (*domain.Account, error) {
	if staged, ok := t.accounts[number]; ok {
		return cloneAccount(staged), nil
	}
	account, ok := t.store.accounts[number]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (t *memoryTx) UpdateAccountBalance(ctx context.Context, number int64, balance decimal.Decimal) error {
	account, err := t.AccountForUpdate(ctx, number)
	if err != nil {
		return err
	}
	account.Balance = balance
	account.UpdatedAt = time.Now().UTC()
	t.accounts[number] = account
	return nil
}

func (t *memoryTx) AppendTransaction(_ context.Context, txn *domain.Transaction) error {
	cp := cloneTransaction(txn)
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	t.journal = append(t.journal, cp)
	return nil
}
