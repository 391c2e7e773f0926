// Package services orchestrates ledger operations across SQLite and AMQP.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/ledger"
	applog "saldo/internal/log"
	"saldo/internal/storage"
)

// LedgerStore is the slice of the storage API the write side depends on.
type LedgerStore interface {
	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	ListAccounts(ctx context.Context, userID core.UserID) ([]core.Account, error)
	GetAccount(ctx context.Context, userID core.UserID, id int64) (core.Account, error)
	DeleteAccount(ctx context.Context, userID core.UserID, id int64) error
	CountTransactionsForAccount(ctx context.Context, accountID int64) (int64, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context, userID core.UserID) ([]core.Category, error)
	GetCategory(ctx context.Context, userID core.UserID, id int64) (core.Category, error)
	DeleteCategory(ctx context.Context, userID core.UserID, id int64) error
	CountTransactionsForCategory(ctx context.Context, categoryID int64) (int64, error)
	TransactionTypeID(ctx context.Context, kind core.TransactionKind) (int64, error)
	CreateTransaction(ctx context.Context, in core.NewTransaction, typeID int64) (core.Transaction, error)
	ApplyBalanceDelta(ctx context.Context, userID core.UserID, accountID, deltaCents int64) error
	Close() error
}

// MessagePublisher sends the ledger's queue messages.
type MessagePublisher interface {
	PublishTransactionRecorded(ctx context.Context, id int64, userID core.UserID) error
	PublishBalanceDrift(ctx context.Context, accountID int64, userID core.UserID) error
	Close() error
}

var (
	_ LedgerStore      = (*storage.SQLiteRepository)(nil)
	_ MessagePublisher = (*amqp.Client)(nil)
)

// LedgerService is the write side of the ledger: it records transactions,
// keeps account balances in step with them, and guards deletes.
type LedgerService struct {
	storage   LedgerStore
	publisher MessagePublisher
}

func NewLedgerService(storage LedgerStore, publisher MessagePublisher) *LedgerService {
	return &LedgerService{
		storage:   storage,
		publisher: publisher,
	}
}

// RecordTransaction validates the input, inserts the transaction row, then
// applies its signed delta to the owning account's cached balance. The two
// writes are not one database transaction: if the balance update fails after
// the insert committed, the caller gets ErrPartialFailure and a drift message
// goes out so the reconcile worker can repair the balance.
func (s *LedgerService) RecordTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	if in.UserID == "" {
		return core.Transaction{}, ledger.ErrNotAuthenticated
	}
	if in.Date.IsEmpty() {
		now := time.Now().UTC()
		in.Date = core.NewDate(now.Year(), int(now.Month()), now.Day())
	}
	if err := in.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}

	// Both references must exist and belong to the caller.
	if _, err := s.storage.GetAccount(ctx, in.UserID, in.AccountID); err != nil {
		return core.Transaction{}, fmt.Errorf("account %d: %w", in.AccountID, err)
	}
	category, err := s.storage.GetCategory(ctx, in.UserID, in.CategoryID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("category %d: %w", in.CategoryID, err)
	}
	if category.Kind != in.Kind {
		return core.Transaction{}, fmt.Errorf("%w: category %q is %s, transaction is %s",
			ledger.ErrValidation, category.Name, category.Kind, in.Kind)
	}

	typeID, err := s.storage.TransactionTypeID(ctx, in.Kind)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: unknown transaction type %q", ledger.ErrValidation, in.Kind)
	}

	tx, err := s.storage.CreateTransaction(ctx, in, typeID)
	if err != nil {
		return core.Transaction{}, err
	}

	if err := s.storage.ApplyBalanceDelta(ctx, in.UserID, in.AccountID, tx.Delta().Cents); err != nil {
		slog.ErrorContext(ctx, "Balance update failed after transaction insert",
			applog.FieldTransactionID, tx.ID,
			applog.FieldAccountID, in.AccountID,
			applog.FieldError, err)
		s.publishBalanceDrift(ctx, in.AccountID, in.UserID)
		return tx, fmt.Errorf("account %d: %w", in.AccountID, ledger.ErrPartialFailure)
	}

	// Async statement export (non-blocking)
	s.publishTransactionRecorded(ctx, tx.ID, in.UserID)

	return tx, nil
}

func (s *LedgerService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if a.UserID == "" {
		return core.Account{}, ledger.ErrNotAuthenticated
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}
	if a.Balance.Cents < 0 {
		return core.Account{}, fmt.Errorf("%w: opening balance cannot be negative", ledger.ErrValidation)
	}
	return s.storage.CreateAccount(ctx, a)
}

func (s *LedgerService) ListAccounts(ctx context.Context, userID core.UserID) ([]core.Account, error) {
	if userID == "" {
		return nil, ledger.ErrNotAuthenticated
	}
	return s.storage.ListAccounts(ctx, userID)
}

// DeleteAccount removes an account only when no transactions reference it.
func (s *LedgerService) DeleteAccount(ctx context.Context, userID core.UserID, id int64) error {
	if userID == "" {
		return ledger.ErrNotAuthenticated
	}
	if _, err := s.storage.GetAccount(ctx, userID, id); err != nil {
		return fmt.Errorf("account %d: %w", id, err)
	}
	n, err := s.storage.CountTransactionsForAccount(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("account %d has %d transactions: %w", id, n, ledger.ErrHasDependents)
	}
	return s.storage.DeleteAccount(ctx, userID, id)
}

func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.UserID == "" {
		return core.Category{}, ledger.ErrNotAuthenticated
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}
	return s.storage.CreateCategory(ctx, c)
}

func (s *LedgerService) ListCategories(ctx context.Context, userID core.UserID) ([]core.Category, error) {
	if userID == "" {
		return nil, ledger.ErrNotAuthenticated
	}
	return s.storage.ListCategories(ctx, userID)
}

// DeleteCategory removes a category only when no transactions reference it.
func (s *LedgerService) DeleteCategory(ctx context.Context, userID core.UserID, id int64) error {
	if userID == "" {
		return ledger.ErrNotAuthenticated
	}
	if _, err := s.storage.GetCategory(ctx, userID, id); err != nil {
		return fmt.Errorf("category %d: %w", id, err)
	}
	n, err := s.storage.CountTransactionsForCategory(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("category %d has %d transactions: %w", id, n, ledger.ErrHasDependents)
	}
	return s.storage.DeleteCategory(ctx, userID, id)
}

func (s *LedgerService) publishTransactionRecorded(ctx context.Context, id int64, userID core.UserID) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping export message")
		return
	}
	if err := s.publisher.PublishTransactionRecorded(ctx, id, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			applog.FieldTransactionID, id, applog.FieldError, err)
		// Don't fail the request - the transaction is recorded locally
	}
}

func (s *LedgerService) publishBalanceDrift(ctx context.Context, accountID int64, userID core.UserID) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping drift message")
		return
	}
	if err := s.publisher.PublishBalanceDrift(ctx, accountID, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish drift message",
			applog.FieldAccountID, accountID, applog.FieldError, err)
	}
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
