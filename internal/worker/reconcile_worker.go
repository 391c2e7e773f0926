// Package worker processes queue messages for the ledger: statement export
// of recorded transactions and balance reconciliation after drift reports.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/export"
	applog "saldo/internal/log"
	"saldo/internal/storage"
)

// ReconcileWorker repairs cached account balances and exports transactions
// to the external statement.
type ReconcileWorker struct {
	storage   *storage.SQLiteRepository
	statement export.StatementWriter
}

func NewReconcileWorker(storage *storage.SQLiteRepository, statement export.StatementWriter) *ReconcileWorker {
	return &ReconcileWorker{
		storage:   storage,
		statement: statement,
	}
}

// HandleExportMessage loads the transaction named by the message and appends
// it to the statement.
func (w *ReconcileWorker) HandleExportMessage(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	slog.InfoContext(ctx, "Processing export message",
		applog.FieldTransactionID, msg.ID,
		applog.FieldUserID, msg.UserID)

	if w.statement == nil {
		slog.WarnContext(ctx, "No statement writer configured, skipping export",
			applog.FieldTransactionID, msg.ID)
		return nil
	}

	tx, err := w.storage.GetTransaction(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	ref, err := w.statement.Append(ctx, tx)
	if err != nil {
		return fmt.Errorf("append to statement: %w", err)
	}

	slog.InfoContext(ctx, "Transaction exported",
		applog.FieldTransactionID, tx.ID,
		applog.FieldSheetsRef, ref,
		applog.FieldAmountCents, tx.Amount.Cents)
	return nil
}

// HandleDriftMessage recomputes the account's balance from its transaction
// history and overwrites the cached value.
func (w *ReconcileWorker) HandleDriftMessage(ctx context.Context, msg *amqp.BalanceDriftMessage) error {
	slog.InfoContext(ctx, "Processing drift message",
		applog.FieldAccountID, msg.AccountID,
		applog.FieldUserID, msg.UserID)

	return w.reconcileAccount(ctx, msg.AccountID, msg.UserID)
}

// ReconcileAll sweeps every account and rewrites any cached balance that
// disagrees with its transaction history. Backup for lost drift messages.
func (w *ReconcileWorker) ReconcileAll(ctx context.Context) error {
	refs, err := w.storage.ListAccountRefs(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	repaired := 0
	for _, ref := range refs {
		fixed, err := w.reconcileIfDrifted(ctx, ref.ID, ref.UserID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile account",
				applog.FieldAccountID, ref.ID, applog.FieldError, err)
			continue
		}
		if fixed {
			repaired++
		}
	}

	if repaired > 0 {
		slog.InfoContext(ctx, "Reconcile sweep completed",
			"accounts", len(refs), "repaired", repaired)
	}
	return nil
}

// RunPeriodicReconcile runs ReconcileAll on a fixed interval until the
// context is cancelled.
func (w *ReconcileWorker) RunPeriodicReconcile(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.ReconcileAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Reconcile sweep failed", applog.FieldError, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *ReconcileWorker) reconcileAccount(ctx context.Context, accountID int64, userID core.UserID) error {
	account, err := w.storage.GetAccount(ctx, userID, accountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	truth, err := w.storage.SumTransactionDeltas(ctx, accountID)
	if err != nil {
		return fmt.Errorf("sum transaction deltas: %w", err)
	}

	if err := w.storage.SetAccountBalance(ctx, userID, accountID, truth); err != nil {
		return fmt.Errorf("set account balance: %w", err)
	}

	slog.InfoContext(ctx, "Account balance reconciled",
		applog.FieldAccountID, accountID,
		applog.FieldUserID, userID,
		applog.FieldDriftCents, account.Balance.Cents-truth,
		"balance_cents", truth)
	return nil
}

func (w *ReconcileWorker) reconcileIfDrifted(ctx context.Context, accountID int64, userID core.UserID) (bool, error) {
	account, err := w.storage.GetAccount(ctx, userID, accountID)
	if err != nil {
		return false, fmt.Errorf("get account: %w", err)
	}

	truth, err := w.storage.SumTransactionDeltas(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("sum transaction deltas: %w", err)
	}
	if account.Balance.Cents == truth {
		return false, nil
	}

	if err := w.storage.SetAccountBalance(ctx, userID, accountID, truth); err != nil {
		return false, fmt.Errorf("set account balance: %w", err)
	}

	slog.WarnContext(ctx, "Repaired drifted balance",
		applog.FieldAccountID, accountID,
		applog.FieldUserID, userID,
		applog.FieldDriftCents, account.Balance.Cents-truth,
		"balance_cents", truth)
	return true, nil
}
