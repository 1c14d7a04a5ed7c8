package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frappster/ledger-service/internal/domain"
)

func nowUTC() time.Time { return time.Now().UTC() }

func seedAccount(t *testing.T, s *MemoryStore, balance string) int64 {
	t.Helper()
	account, err := domain.NewAccount(uuid.New(), domain.AccountChecking, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created, err := s.CreateAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opening, err := decimal.NewFromString(balance)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", balance, err)
	}
	err = s.WithinTx(context.Background(), func(tx Tx) error {
		return tx.UpdateAccountBalance(context.Background(), created.Number, opening)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return created.Number
}

func TestAccountNumbersStartAtOneHundred(t *testing.T) {
	s := NewMemoryStore()
	first := seedAccount(t, s, "0")
	second := seedAccount(t, s, "0")
	if first != 100 {
		t.Fatalf("expected the first account number to be 100, got %d", first)
	}
	if second != 101 {
		t.Fatalf("expected sequential assignment, got %d", second)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	number := seedAccount(t, s, "50.00")
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateAccountBalance(ctx, number, decimal.NewFromInt(999)); err != nil {
			return err
		}
		txn, err := domain.NewDeposit(number, decimal.NewFromInt(949), nowUTC())
		if err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error back, got %v", err)
	}

	account, err := s.FindAccountByNumber(ctx, number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := decimal.NewFromString("50.00")
	if !account.Balance.Equal(want) {
		t.Fatalf("staged write must be discarded on error, got %s", account.Balance)
	}
	history, err := s.TransactionsByAccount(ctx, number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("staged journal entry must be discarded on error, got %d entries", len(history))
	}
}

func TestSnapshotsAreIsolatedFromTheStore(t *testing.T) {
	s := NewMemoryStore()
	number := seedAccount(t, s, "10.00")
	ctx := context.Background()

	snapshot, err := s.FindAccountByNumber(ctx, number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapshot.Balance = decimal.NewFromInt(1000000)

	fresh, err := s.FindAccountByNumber(ctx, number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := decimal.NewFromString("10.00")
	if !fresh.Balance.Equal(want) {
		t.Fatal("mutating a snapshot must not leak into the store")
	}
}

func TestConcurrentUnitsOfWorkSerialize(t *testing.T) {
	s := NewMemoryStore()
	number := seedAccount(t, s, "0")
	ctx := context.Background()

	const workers = 16
	const incrementsPerWorker = 50
	one := decimal.NewFromInt(1)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < incrementsPerWorker; j++ {
				s.WithinTx(ctx, func(tx Tx) error {
					account, err := tx.AccountForUpdate(ctx, number)
					if err != nil {
						return err
					}
					return tx.UpdateAccountBalance(ctx, number, account.Balance.Add(one))
				})
			}
		}()
	}
	wg.Wait()

	account, err := s.FindAccountByNumber(ctx, number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !account.Balance.Equal(decimal.NewFromInt(workers * incrementsPerWorker)) {
		t.Fatalf("lost update under concurrency: got %s", account.Balance)
	}
}

func TestDuplicateIdentityRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	identity, err := domain.NewIdentity("alice", domain.RoleCustomer, "hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CreateIdentity(ctx, identity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := domain.NewIdentity("alice", domain.RoleCustomer, "other")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CreateIdentity(ctx, again); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected duplicate identity, got %v", err)
	}
}

func TestTransactionsByAccountFiltersParticipants(t *testing.T) {
	s := NewMemoryStore()
	first := seedAccount(t, s, "100.00")
	second := seedAccount(t, s, "100.00")
	third := seedAccount(t, s, "100.00")
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx Tx) error {
		deposit, err := domain.NewDeposit(first, decimal.NewFromInt(5), nowUTC())
		if err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, deposit); err != nil {
			return err
		}
		transfer, err := domain.NewTransfer(first, second, decimal.NewFromInt(3), nowUTC())
		if err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, transfer)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	firstHistory, err := s.TransactionsByAccount(ctx, first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(firstHistory) != 2 {
		t.Fatalf("expected 2 entries for the first account, got %d", len(firstHistory))
	}
	secondHistory, err := s.TransactionsByAccount(ctx, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secondHistory) != 1 {
		t.Fatalf("expected 1 entry for the second account, got %d", len(secondHistory))
	}
	thirdHistory, err := s.TransactionsByAccount(ctx, third)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(thirdHistory) != 0 {
		t.Fatalf("expected no entries for an uninvolved account, got %d", len(thirdHistory))
	}
}
