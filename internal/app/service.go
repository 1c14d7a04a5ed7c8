/**
 * @description
 * This file contains the ledger engine, the core business logic for money
 * movement. The `Service` struct orchestrates deposits, withdrawals, and
 * transfers, coordinating between the record store, the session manager, and
 * the message broker.
 *
 * Key features:
 * - Every movement is guarded first: the session must be live and its role
 *   must grant either blanket initiation or own-account initiation.
 * - Balance mutation and journal append happen inside one store unit-of-work;
 *   either both commit or neither does.
 * - Transfers lock both accounts in ascending account-number order so
 *   concurrent opposite-direction transfers cannot deadlock.
 * - Committed movements are published to RabbitMQ after the commit;
 *   publishing is best-effort and never rolls a movement back.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Fixed-point amounts.
 * - internal/auth, internal/domain, internal/store: Collaborators.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frappster/ledger-service/internal/auth"
	"github.com/frappster/ledger-service/internal/domain"
	"github.com/frappster/ledger-service/internal/store"
	"github.com/frappster/ledger-service/pkg/rabbitmq"
)

// Service provides the core ledger operations.
type Service struct {
	store         store.Store
	sessions      *auth.Manager
	eventProducer rabbitmq.Publisher
	now           func() time.Time
}

// NewService creates a new ledger service instance. The producer may be the
// no-op fallback when RabbitMQ is unavailable.
func NewService(st store.Store, sessions *auth.Manager, producer rabbitmq.Publisher) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &Service{
		store:         st,
		sessions:      sessions,
		eventProducer: producer,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// authorizeMovement admits the caller to act on the given account: blanket
// initiation for staff, own-account initiation for customers. It returns the
// account snapshot so the caller can validate the amount against its scale.
func (s *Service) authorizeMovement(ctx context.Context, session *auth.Session, accountNumber int64) (*domain.Account, error) {
	if session == nil {
		return nil, auth.ErrNotAuthenticated
	}

	account, err := s.store.FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, store.ErrAccountNotFound
		}
		log.Printf("level=error component=ledger msg=\"account lookup failed\" account=%d err=%v", accountNumber, err)
		return nil, store.ErrStoreUnavailable
	}

	blanket, err := s.sessions.HasPermission(ctx, session, domain.PermInitiateTransaction)
	if err != nil {
		return nil, err
	}
	if blanket {
		return account, nil
	}

	own, err := s.sessions.HasPermission(ctx, session, domain.PermInitiateOwnTransaction)
	if err != nil {
		return nil, err
	}
	if own && account.IdentityID == session.IdentityID {
		return account, nil
	}
	return nil, auth.ErrPermissionDenied
}

// Deposit credits an account. Money enters the system; only the recipient
// side is journalled.
func (s *Service) Deposit(ctx context.Context, session *auth.Session, accountNumber int64, amount decimal.Decimal) (*domain.Transaction, error) {
	account, err := s.authorizeMovement(ctx, session, accountNumber)
	if err != nil {
		return nil, err
	}
	if err := ValidateAmount(amount, account.Scale); err != nil {
		return nil, err
	}

	var committed *domain.Transaction
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.AccountForUpdate(ctx, accountNumber)
		if err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(ctx, accountNumber, locked.Balance.Add(amount)); err != nil {
			return err
		}
		txn, err := domain.NewDeposit(accountNumber, amount, s.now())
		if err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		committed = txn
		return nil
	})
	if err != nil {
		return nil, s.mapStoreError(err, "deposit")
	}

	s.publishEvent(ctx, session, committed)
	return committed, nil
}

// Withdraw debits an account. The debit may drain the balance to exactly
// zero; anything beyond that is rejected without changing state.
func (s *Service) Withdraw(ctx context.Context, session *auth.Session, accountNumber int64, amount decimal.Decimal) (*domain.Transaction, error) {
	account, err := s.authorizeMovement(ctx, session, accountNumber)
	if err != nil {
		return nil, err
	}
	if err := ValidateAmount(amount, account.Scale); err != nil {
		return nil, err
	}

	var committed *domain.Transaction
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.AccountForUpdate(ctx, accountNumber)
		if err != nil {
			return err
		}
		if locked.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		if err := tx.UpdateAccountBalance(ctx, accountNumber, locked.Balance.Sub(amount)); err != nil {
			return err
		}
		txn, err := domain.NewWithdrawal(accountNumber, amount, s.now())
		if err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		committed = txn
		return nil
	})
	if err != nil {
		return nil, s.mapStoreError(err, "withdrawal")
	}

	s.publishEvent(ctx, session, committed)
	return committed, nil
}

// Transfer moves money between two accounts as one atomic movement: the debit
// and credit commit together and produce a single journal entry.
func (s *Service) Transfer(ctx context.Context, session *auth.Session, from, to int64, amount decimal.Decimal) (*domain.Transaction, error) {
	if from == to {
		return nil, ErrSelfTransferRejected
	}

	// Authorization is anchored on the source account; the caller needs no
	// relationship to the destination.
	source, err := s.authorizeMovement(ctx, session, from)
	if err != nil {
		return nil, err
	}
	if err := ValidateAmount(amount, source.Scale); err != nil {
		return nil, err
	}

	var committed *domain.Transaction
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		// Lock in ascending account-number order regardless of transfer
		// direction; opposite-direction transfers then contend on the same
		// first lock instead of deadlocking.
		first, second := from, to
		if second < first {
			first, second = second, first
		}
		lockedFirst, err := tx.AccountForUpdate(ctx, first)
		if err != nil {
			return err
		}
		lockedSecond, err := tx.AccountForUpdate(ctx, second)
		if err != nil {
			return err
		}

		sender, recipient := lockedFirst, lockedSecond
		if sender.Number != from {
			sender, recipient = lockedSecond, lockedFirst
		}

		// The destination must be able to represent the credited amount too;
		// a coarser-scaled recipient rejects the movement before any mutation.
		if err := ValidateAmount(amount, recipient.Scale); err != nil {
			return err
		}
		if sender.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		if err := tx.UpdateAccountBalance(ctx, sender.Number, sender.Balance.Sub(amount)); err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(ctx, recipient.Number, recipient.Balance.Add(amount)); err != nil {
			return err
		}
		txn, err := domain.NewTransfer(from, to, amount, s.now())
		if err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		committed = txn
		return nil
	})
	if err != nil {
		return nil, s.mapStoreError(err, "transfer")
	}

	s.publishEvent(ctx, session, committed)
	return committed, nil
}

// GetHistory returns the journal entries involving an account, oldest first.
// Customers see only their own accounts; staff with the view-all grant see
// any.
func (s *Service) GetHistory(ctx context.Context, session *auth.Session, accountNumber int64) ([]domain.Transaction, error) {
	if session == nil {
		return nil, auth.ErrNotAuthenticated
	}

	account, err := s.store.FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, store.ErrAccountNotFound
		}
		log.Printf("level=error component=ledger msg=\"account lookup failed\" account=%d err=%v", accountNumber, err)
		return nil, store.ErrStoreUnavailable
	}

	all, err := s.sessions.HasPermission(ctx, session, domain.PermViewAllTransactions)
	if err != nil {
		return nil, err
	}
	if !all {
		own, err := s.sessions.HasPermission(ctx, session, domain.PermViewOwnTransactions)
		if err != nil {
			return nil, err
		}
		if !own || account.IdentityID != session.IdentityID {
			return nil, auth.ErrPermissionDenied
		}
	}

	history, err := s.store.TransactionsByAccount(ctx, accountNumber)
	if err != nil {
		log.Printf("level=error component=ledger msg=\"history read failed\" account=%d err=%v", accountNumber, err)
		return nil, store.ErrStoreUnavailable
	}
	return history, nil
}

// GetBalance returns the current balance of an account under the same
// visibility rules as GetHistory.
func (s *Service) GetBalance(ctx context.Context, session *auth.Session, accountNumber int64) (decimal.Decimal, error) {
	if session == nil {
		return decimal.Zero, auth.ErrNotAuthenticated
	}

	account, err := s.store.FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return decimal.Zero, store.ErrAccountNotFound
		}
		log.Printf("level=error component=ledger msg=\"account lookup failed\" account=%d err=%v", accountNumber, err)
		return decimal.Zero, store.ErrStoreUnavailable
	}

	all, err := s.sessions.HasPermission(ctx, session, domain.PermViewAllTransactions)
	if err != nil {
		return decimal.Zero, err
	}
	if !all {
		own, err := s.sessions.HasPermission(ctx, session, domain.PermViewOwnTransactions)
		if err != nil {
			return decimal.Zero, err
		}
		if !own || account.IdentityID != session.IdentityID {
			return decimal.Zero, auth.ErrPermissionDenied
		}
	}
	return account.Balance, nil
}

// mapStoreError passes the ledger's own typed failures through and collapses
// everything else to the store-unavailable sentinel after logging.
func (s *Service) mapStoreError(err error, op string) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSelfTransferRejected),
		errors.Is(err, domain.ErrNonPositiveAmount),
		errors.Is(err, store.ErrAccountNotFound):
		return err
	default:
		log.Printf("level=error component=ledger msg=\"unit-of-work failed\" op=%s err=%v", op, err)
		return store.ErrStoreUnavailable
	}
}

// publishEvent emits a committed movement to the broker. Failures are logged
// and swallowed; the ledger is the source of truth, not the event stream.
func (s *Service) publishEvent(ctx context.Context, session *auth.Session, txn *domain.Transaction) {
	event := rabbitmq.LedgerEvent{
		TransactionID: txn.ID,
		Type:          string(txn.Type),
		Sender:        txn.Sender,
		Recipient:     txn.Recipient,
		Amount:        txn.Amount,
		InitiatedBy:   session.LoginID,
		Timestamp:     txn.CreatedAt,
	}
	if err := s.eventProducer.PublishLedgerEvent(ctx, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"event publish failed\" transaction_id=%s err=%v", txn.ID, err)
	}
}
