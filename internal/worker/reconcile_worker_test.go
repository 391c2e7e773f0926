package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/storage"
)

type fakeStatement struct {
	appended []core.Transaction
	fail     bool
}

func (f *fakeStatement) Append(_ context.Context, tx core.Transaction) (string, error) {
	if f.fail {
		return "", errors.New("sheets unavailable")
	}
	f.appended = append(f.appended, tx)
	return "Statement!A2:E2", nil
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.CreateUser(context.Background(), "user-1", "user1@example.com"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return repo
}

func seedLedger(t *testing.T, repo *storage.SQLiteRepository, openingCents int64) (core.Account, core.Transaction) {
	t.Helper()
	ctx := context.Background()

	account, err := repo.CreateAccount(ctx, core.Account{
		UserID:  "user-1",
		Name:    "Wallet",
		Type:    core.Cash,
		Balance: core.Money{Cents: openingCents},
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	category, err := repo.CreateCategory(ctx, core.Category{
		UserID: "user-1",
		Name:   "Groceries",
		Kind:   core.Expense,
	})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	typeID, err := repo.TransactionTypeID(ctx, core.Expense)
	if err != nil {
		t.Fatalf("TransactionTypeID() error = %v", err)
	}
	tx, err := repo.CreateTransaction(ctx, core.NewTransaction{
		UserID:      "user-1",
		AccountID:   account.ID,
		CategoryID:  category.ID,
		Kind:        core.Expense,
		Amount:      core.Money{Cents: 2000},
		Description: "weekly shop",
		Date:        core.NewDate(2026, 8, 10),
	}, typeID)
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if err := repo.ApplyBalanceDelta(ctx, "user-1", account.ID, tx.Delta().Cents); err != nil {
		t.Fatalf("ApplyBalanceDelta() error = %v", err)
	}
	return account, tx
}

func TestReconcileWorker_HandleDriftMessage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	account, _ := seedLedger(t, repo, 5000)

	// Force the cached balance out of step with history.
	if err := repo.SetAccountBalance(ctx, "user-1", account.ID, 99999); err != nil {
		t.Fatalf("SetAccountBalance() error = %v", err)
	}

	w := NewReconcileWorker(repo, nil)
	if err := w.HandleDriftMessage(ctx, amqp.NewBalanceDriftMessage(account.ID, "user-1")); err != nil {
		t.Fatalf("HandleDriftMessage() error = %v", err)
	}

	got, err := repo.GetAccount(ctx, "user-1", account.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	// 50.00 opening - 20.00 expense
	if got.Balance.Cents != 3000 {
		t.Errorf("reconciled balance = %d, want 3000", got.Balance.Cents)
	}
}

func TestReconcileWorker_HandleDriftMessage_UnknownAccount(t *testing.T) {
	repo := newTestRepo(t)

	w := NewReconcileWorker(repo, nil)
	if err := w.HandleDriftMessage(context.Background(), amqp.NewBalanceDriftMessage(9999, "user-1")); err == nil {
		t.Error("HandleDriftMessage() for missing account should fail")
	}
}

func TestReconcileWorker_ReconcileAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	drifted, _ := seedLedger(t, repo, 5000)
	healthy, err := repo.CreateAccount(ctx, core.Account{
		UserID:  "user-1",
		Name:    "Bank",
		Type:    core.BankAccount,
		Balance: core.Money{Cents: 12345},
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	if err := repo.SetAccountBalance(ctx, "user-1", drifted.ID, 1); err != nil {
		t.Fatalf("SetAccountBalance() error = %v", err)
	}

	w := NewReconcileWorker(repo, nil)
	if err := w.ReconcileAll(ctx); err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}

	got, err := repo.GetAccount(ctx, "user-1", drifted.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Balance.Cents != 3000 {
		t.Errorf("drifted account balance = %d, want 3000", got.Balance.Cents)
	}

	got, err = repo.GetAccount(ctx, "user-1", healthy.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Balance.Cents != 12345 {
		t.Errorf("healthy account balance = %d, want 12345 untouched", got.Balance.Cents)
	}
}

func TestReconcileWorker_HandleExportMessage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, tx := seedLedger(t, repo, 5000)

	statement := &fakeStatement{}
	w := NewReconcileWorker(repo, statement)

	if err := w.HandleExportMessage(ctx, amqp.NewTransactionRecordedMessage(tx.ID, "user-1")); err != nil {
		t.Fatalf("HandleExportMessage() error = %v", err)
	}
	if len(statement.appended) != 1 {
		t.Fatalf("appended %d rows, want 1", len(statement.appended))
	}
	if statement.appended[0].ID != tx.ID {
		t.Errorf("exported transaction ID = %d, want %d", statement.appended[0].ID, tx.ID)
	}
}

func TestReconcileWorker_HandleExportMessage_Failures(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, tx := seedLedger(t, repo, 5000)

	t.Run("no statement writer configured", func(t *testing.T) {
		w := NewReconcileWorker(repo, nil)
		if err := w.HandleExportMessage(ctx, amqp.NewTransactionRecordedMessage(tx.ID, "user-1")); err != nil {
			t.Errorf("HandleExportMessage() without writer should be a no-op, got %v", err)
		}
	})

	t.Run("missing transaction", func(t *testing.T) {
		w := NewReconcileWorker(repo, &fakeStatement{})
		if err := w.HandleExportMessage(ctx, amqp.NewTransactionRecordedMessage(9999, "user-1")); err == nil {
			t.Error("HandleExportMessage() for missing transaction should fail")
		}
	})

	t.Run("statement append fails", func(t *testing.T) {
		w := NewReconcileWorker(repo, &fakeStatement{fail: true})
		if err := w.HandleExportMessage(ctx, amqp.NewTransactionRecordedMessage(tx.ID, "user-1")); err == nil {
			t.Error("HandleExportMessage() should surface append failure for requeue")
		}
	})
}
