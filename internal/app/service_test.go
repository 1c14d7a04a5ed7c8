package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappster/ledger-service/internal/auth"
	"github.com/frappster/ledger-service/internal/domain"
	"github.com/frappster/ledger-service/internal/store"
)

// plainHasher compares secrets verbatim so tests never pay bcrypt cost.
type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) { return "plain:" + secret, nil }
func (plainHasher) Verify(secret, hash string) bool    { return "plain:"+secret == hash }

type ledgerFixture struct {
	store    *store.MemoryStore
	sessions *auth.Manager
	service  *Service
	admin    *IdentityService
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	st := store.NewMemoryStore()
	sessions := auth.NewManager(st, plainHasher{}, auth.Config{})
	return &ledgerFixture{
		store:    st,
		sessions: sessions,
		service:  NewService(st, sessions, nil),
		admin:    NewIdentityService(st, sessions, plainHasher{}, 2),
	}
}

// seedCustomer creates an identity with one account and returns the logged-in
// session and the assigned account number.
func (f *ledgerFixture) seedCustomer(t *testing.T, loginID string, role domain.AccessRole, opening string) (*auth.Session, int64) {
	t.Helper()
	ctx := context.Background()

	hash, _ := plainHasher{}.Hash("pw-" + loginID)
	identity, err := domain.NewIdentity(loginID, role, hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.store.CreateIdentity(ctx, identity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	account, err := domain.NewAccount(identity.ID, domain.AccountChecking, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created, err := f.store.CreateAccount(ctx, account)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if opening != "" && opening != "0" {
		amount := mustDecimal(t, opening)
		err = f.store.WithinTx(ctx, func(tx store.Tx) error {
			return tx.UpdateAccountBalance(ctx, created.Number, amount)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	session, err := f.sessions.Login(ctx, nil, loginID, "pw-"+loginID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return session, created.Number
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func (f *ledgerFixture) balance(t *testing.T, number int64) decimal.Decimal {
	t.Helper()
	account, err := f.store.FindAccountByNumber(context.Background(), number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return account.Balance
}

func TestDepositCreditsAndJournals(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "0")
	ctx := context.Background()

	txn, err := f.service.Deposit(ctx, session, number, mustDecimal(t, "250.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Type != domain.TransactionDeposit {
		t.Fatalf("expected deposit, got %s", txn.Type)
	}
	if txn.Sender != nil {
		t.Fatal("deposit must not carry a sender")
	}
	if txn.Recipient == nil || *txn.Recipient != number {
		t.Fatalf("expected recipient %d, got %v", number, txn.Recipient)
	}
	if got := f.balance(t, number); !got.Equal(mustDecimal(t, "250.00")) {
		t.Fatalf("expected balance 250.00, got %s", got)
	}

	history, err := f.service.GetHistory(ctx, session, number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].ID != txn.ID {
		t.Fatalf("expected the deposit in the journal, got %v", history)
	}
}

func TestWithdrawMayDrainBalanceToZero(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")
	ctx := context.Background()

	txn, err := f.service.Withdraw(ctx, session, number, mustDecimal(t, "100.00"))
	if err != nil {
		t.Fatalf("expected withdrawal of the full balance to succeed, got %v", err)
	}
	if txn.Recipient != nil {
		t.Fatal("withdrawal must not carry a recipient")
	}
	if got := f.balance(t, number); !got.IsZero() {
		t.Fatalf("expected zero balance, got %s", got)
	}
}

func TestWithdrawInsufficientFundsLeavesStateUntouched(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")
	ctx := context.Background()

	_, err := f.service.Withdraw(ctx, session, number, mustDecimal(t, "100.01"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := f.balance(t, number); !got.Equal(mustDecimal(t, "100.00")) {
		t.Fatalf("failed withdrawal must not change the balance, got %s", got)
	}
	history, err := f.service.GetHistory(ctx, session, number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed withdrawal must not be journalled, got %d entries", len(history))
	}
}

func TestInvalidAmountsRejectedBeforeAnyMutation(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")
	ctx := context.Background()

	for _, raw := range []string{"0", "-5.00", "10.005"} {
		if _, err := f.service.Deposit(ctx, session, number, mustDecimal(t, raw)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("deposit %s: expected invalid amount, got %v", raw, err)
		}
		if _, err := f.service.Withdraw(ctx, session, number, mustDecimal(t, raw)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("withdraw %s: expected invalid amount, got %v", raw, err)
		}
	}
	if got := f.balance(t, number); !got.Equal(mustDecimal(t, "100.00")) {
		t.Fatalf("rejected amounts must not change the balance, got %s", got)
	}
}

func TestTransferMovesMoneyAtomically(t *testing.T) {
	f := newLedgerFixture(t)
	aliceSession, aliceAcct := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")
	_, bobAcct := f.seedCustomer(t, "bob", domain.RoleCustomer, "20.00")
	ctx := context.Background()

	txn, err := f.service.Transfer(ctx, aliceSession, aliceAcct, bobAcct, mustDecimal(t, "30.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Type != domain.TransactionTransfer {
		t.Fatalf("expected transfer, got %s", txn.Type)
	}
	if got := f.balance(t, aliceAcct); !got.Equal(mustDecimal(t, "70.00")) {
		t.Fatalf("expected sender balance 70.00, got %s", got)
	}
	if got := f.balance(t, bobAcct); !got.Equal(mustDecimal(t, "50.00")) {
		t.Fatalf("expected recipient balance 50.00, got %s", got)
	}

	// One journal entry covers both sides.
	history, err := f.service.GetHistory(ctx, aliceSession, aliceAcct)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected a single journal entry, got %d", len(history))
	}
}

func TestSelfTransferRejected(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")

	_, err := f.service.Transfer(context.Background(), session, number, number, mustDecimal(t, "10.00"))
	if !errors.Is(err, ErrSelfTransferRejected) {
		t.Fatalf("expected self transfer rejection, got %v", err)
	}
	if got := f.balance(t, number); !got.Equal(mustDecimal(t, "100.00")) {
		t.Fatalf("rejected transfer must not change the balance, got %s", got)
	}
}

func TestTransferToUnknownAccount(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")

	_, err := f.service.Transfer(context.Background(), session, number, 9999, mustDecimal(t, "10.00"))
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	if got := f.balance(t, number); !got.Equal(mustDecimal(t, "100.00")) {
		t.Fatalf("failed transfer must not change the balance, got %s", got)
	}
}

func TestTransferRejectedWhenRecipientScaleCannotRepresentAmount(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")
	ctx := context.Background()

	// A whole-unit account cannot hold fractional cents, even when the sender
	// side accepts the amount.
	bobHash, _ := plainHasher{}.Hash("pw-bob")
	bob, err := domain.NewIdentity("bob", domain.RoleCustomer, bobHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.store.CreateIdentity(ctx, bob); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	coarse, err := domain.NewAccount(bob.ID, domain.AccountSavings, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created, err := f.store.CreateAccount(ctx, coarse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = f.service.Transfer(ctx, session, number, created.Number, mustDecimal(t, "10.50"))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if got := f.balance(t, number); !got.Equal(mustDecimal(t, "100.00")) {
		t.Fatalf("rejected transfer must not debit the sender, got %s", got)
	}
	if got := f.balance(t, created.Number); !got.IsZero() {
		t.Fatalf("rejected transfer must not credit the recipient, got %s", got)
	}

	// A whole-unit amount still moves.
	if _, err := f.service.Transfer(ctx, session, number, created.Number, mustDecimal(t, "10")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.balance(t, created.Number); !got.Equal(mustDecimal(t, "10")) {
		t.Fatalf("expected balance 10, got %s", got)
	}
}

func TestCustomerCannotMoveAnotherCustomersMoney(t *testing.T) {
	f := newLedgerFixture(t)
	_, aliceAcct := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")
	bobSession, bobAcct := f.seedCustomer(t, "bob", domain.RoleCustomer, "20.00")
	ctx := context.Background()

	if _, err := f.service.Withdraw(ctx, bobSession, aliceAcct, mustDecimal(t, "10.00")); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := f.service.Transfer(ctx, bobSession, aliceAcct, bobAcct, mustDecimal(t, "10.00")); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := f.service.GetHistory(ctx, bobSession, aliceAcct); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestEmployeeMayInitiateOnAnyAccount(t *testing.T) {
	f := newLedgerFixture(t)
	_, aliceAcct := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")
	tellerSession, _ := f.seedCustomer(t, "teller", domain.RoleEmployee, "0")
	ctx := context.Background()

	if _, err := f.service.Deposit(ctx, tellerSession, aliceAcct, mustDecimal(t, "50.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.balance(t, aliceAcct); !got.Equal(mustDecimal(t, "150.00")) {
		t.Fatalf("expected balance 150.00, got %s", got)
	}
	if _, err := f.service.GetHistory(ctx, tellerSession, aliceAcct); err != nil {
		t.Fatalf("employee must see any account's history: %v", err)
	}
}

func TestUnauthenticatedCallsRejected(t *testing.T) {
	f := newLedgerFixture(t)
	_, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")
	ctx := context.Background()

	if _, err := f.service.Deposit(ctx, nil, number, mustDecimal(t, "10.00")); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated, got %v", err)
	}
	if _, err := f.service.GetHistory(ctx, nil, number); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated, got %v", err)
	}
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	f := newLedgerFixture(t)
	aliceSession, aliceAcct := f.seedCustomer(t, "alice", domain.RoleCustomer, "1000.00")
	bobSession, bobAcct := f.seedCustomer(t, "bob", domain.RoleCustomer, "1000.00")
	ctx := context.Background()

	const workers = 8
	const transfersPerWorker = 25
	amount := mustDecimal(t, "1.00")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(flip bool) {
			defer wg.Done()
			for j := 0; j < transfersPerWorker; j++ {
				if flip {
					f.service.Transfer(ctx, aliceSession, aliceAcct, bobAcct, amount)
				} else {
					f.service.Transfer(ctx, bobSession, bobAcct, aliceAcct, amount)
				}
			}
		}(i%2 == 0)
	}
	wg.Wait()

	total := f.balance(t, aliceAcct).Add(f.balance(t, bobAcct))
	if !total.Equal(mustDecimal(t, "2000.00")) {
		t.Fatalf("transfers must conserve the total: expected 2000.00, got %s", total)
	}
	if f.balance(t, aliceAcct).IsNegative() || f.balance(t, bobAcct).IsNegative() {
		t.Fatal("no balance may go negative")
	}
}

// failingAppendStore wraps the in-memory store and fails every journal
// append, exercising the rollback path of a movement.
type failingAppendStore struct {
	store.Store
}

type failingAppendTx struct {
	store.Tx
}

func (s *failingAppendStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx store.Tx) error {
		return fn(&failingAppendTx{Tx: tx})
	})
}

func (t *failingAppendTx) AppendTransaction(context.Context, *domain.Transaction) error {
	return errors.New("journal write refused")
}

func TestStoreFailureRollsBackTheWholeMovement(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "100.00")

	broken := NewService(&failingAppendStore{Store: f.store}, f.sessions, nil)
	_, err := broken.Deposit(context.Background(), session, number, mustDecimal(t, "50.00"))
	if !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if got := f.balance(t, number); !got.Equal(mustDecimal(t, "100.00")) {
		t.Fatalf("failed movement must roll the balance back, got %s", got)
	}
	history, err := f.store.TransactionsByAccount(context.Background(), number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("failed movement must not be journalled, got %d entries", len(history))
	}
}

func TestHistoryOrderedOldestFirst(t *testing.T) {
	f := newLedgerFixture(t)
	session, number := f.seedCustomer(t, "alice", domain.RoleCustomer, "0")
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	f.service.SetClock(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	})

	for _, raw := range []string{"10.00", "20.00", "30.00"} {
		if _, err := f.service.Deposit(ctx, session, number, mustDecimal(t, raw)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := f.service.GetHistory(ctx, session, number)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].CreatedAt.Before(history[i-1].CreatedAt) {
			t.Fatal("history must be ordered oldest first")
		}
	}
	if !history[0].Amount.Equal(mustDecimal(t, "10.00")) {
		t.Fatalf("expected the first deposit first, got %s", history[0].Amount)
	}
}

func TestGetBalanceVisibility(t *testing.T) {
	f := newLedgerFixture(t)
	aliceSession, aliceAcct := f.seedCustomer(t, "alice", domain.RoleCustomer, "75.00")
	bobSession, _ := f.seedCustomer(t, "bob", domain.RoleCustomer, "0")
	ctx := context.Background()

	balance, err := f.service.GetBalance(ctx, aliceSession, aliceAcct)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !balance.Equal(mustDecimal(t, "75.00")) {
		t.Fatalf("expected 75.00, got %s", balance)
	}
	if _, err := f.service.GetBalance(ctx, bobSession, aliceAcct); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}
