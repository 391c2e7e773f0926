package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"saldo/internal/core"
	"saldo/internal/ledger"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "saldo_test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.CreateUser(context.Background(), "user-1", "user1@example.com"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return repo
}

func mustCreateAccount(t *testing.T, repo *SQLiteRepository, userID core.UserID, name string, balanceCents int64) core.Account {
	t.Helper()
	acc, err := repo.CreateAccount(context.Background(), core.Account{
		UserID:  userID,
		Name:    name,
		Type:    core.BankAccount,
		Balance: core.Money{Cents: balanceCents},
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acc
}

func mustCreateCategory(t *testing.T, repo *SQLiteRepository, userID core.UserID, name string, kind core.TransactionKind) core.Category {
	t.Helper()
	cat, err := repo.CreateCategory(context.Background(), core.Category{
		UserID: userID,
		Name:   name,
		Kind:   kind,
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	return cat
}

func mustRecord(t *testing.T, repo *SQLiteRepository, in core.NewTransaction) core.Transaction {
	t.Helper()
	ctx := context.Background()
	typeID, err := repo.TransactionTypeID(ctx, in.Kind)
	if err != nil {
		t.Fatalf("TransactionTypeID(%s): %v", in.Kind, err)
	}
	tx, err := repo.CreateTransaction(ctx, in, typeID)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return tx
}

func TestAccountRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := mustCreateAccount(t, repo, "user-1", "Checking", 5000)
	if created.ID == 0 {
		t.Fatal("expected non-zero account id")
	}

	got, err := repo.GetAccount(ctx, "user-1", created.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Name != "Checking" || got.Type != core.BankAccount || got.Balance.Cents != 5000 {
		t.Errorf("got account %+v", got)
	}

	list, err := repo.ListAccounts(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("ListAccounts = %+v, want one account with id %d", list, created.ID)
	}

	n, err := repo.CountAccounts(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountAccounts: %v", err)
	}
	if n != 1 {
		t.Errorf("CountAccounts = %d, want 1", n)
	}
}

func TestAccountOwnershipScoping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateUser(ctx, "user-2", "user2@example.com"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	acc := mustCreateAccount(t, repo, "user-1", "Checking", 5000)

	if _, err := repo.GetAccount(ctx, "user-2", acc.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("GetAccount as other user = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteAccount(ctx, "user-2", acc.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("DeleteAccount as other user = %v, want ErrNotFound", err)
	}
	if err := repo.ApplyBalanceDelta(ctx, "user-2", acc.ID, -1000); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("ApplyBalanceDelta as other user = %v, want ErrNotFound", err)
	}

	// The owner still sees the untouched balance.
	got, err := repo.GetAccount(ctx, "user-1", acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Balance.Cents != 5000 {
		t.Errorf("balance = %d, want 5000", got.Balance.Cents)
	}
}

func TestApplyBalanceDelta(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc := mustCreateAccount(t, repo, "user-1", "Checking", 5000)

	// Two expenses applied as relative deltas, not read-modify-write.
	if err := repo.ApplyBalanceDelta(ctx, "user-1", acc.ID, -2000); err != nil {
		t.Fatalf("ApplyBalanceDelta: %v", err)
	}
	if err := repo.ApplyBalanceDelta(ctx, "user-1", acc.ID, -2000); err != nil {
		t.Fatalf("ApplyBalanceDelta: %v", err)
	}

	got, err := repo.GetAccount(ctx, "user-1", acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Balance.Cents != 1000 {
		t.Errorf("balance = %d, want 1000", got.Balance.Cents)
	}

	if err := repo.ApplyBalanceDelta(ctx, "user-1", 9999, 100); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("ApplyBalanceDelta on missing account = %v, want ErrNotFound", err)
	}
}

func TestSetAccountBalance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc := mustCreateAccount(t, repo, "user-1", "Checking", 5000)

	if err := repo.SetAccountBalance(ctx, "user-1", acc.ID, 12345); err != nil {
		t.Fatalf("SetAccountBalance: %v", err)
	}
	got, err := repo.GetAccount(ctx, "user-1", acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Balance.Cents != 12345 {
		t.Errorf("balance = %d, want 12345", got.Balance.Cents)
	}
}

func TestCategoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreateCategory(t, repo, "user-1", "Salary", core.Income)
	groceries := mustCreateCategory(t, repo, "user-1", "Groceries", core.Expense)

	list, err := repo.ListCategories(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListCategories returned %d categories, want 2", len(list))
	}
	// Ordered by name.
	if list[0].Name != "Groceries" || list[1].Name != "Salary" {
		t.Errorf("order = [%s %s], want [Groceries Salary]", list[0].Name, list[1].Name)
	}

	if err := repo.DeleteCategory(ctx, "user-1", groceries.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if _, err := repo.GetCategory(ctx, "user-1", groceries.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("GetCategory after delete = %v, want ErrNotFound", err)
	}
}

func TestTransactionTypeID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	incomeID, err := repo.TransactionTypeID(ctx, core.Income)
	if err != nil {
		t.Fatalf("TransactionTypeID(income): %v", err)
	}
	expenseID, err := repo.TransactionTypeID(ctx, core.Expense)
	if err != nil {
		t.Fatalf("TransactionTypeID(expense): %v", err)
	}
	if incomeID == expenseID {
		t.Errorf("income and expense resolved to the same type id %d", incomeID)
	}
	if _, err := repo.TransactionTypeID(ctx, "transfer"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("TransactionTypeID(transfer) = %v, want ErrNotFound", err)
	}
}

func TestTransactionQueries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := mustCreateAccount(t, repo, "user-1", "Checking", 10000)
	salary := mustCreateCategory(t, repo, "user-1", "Salary", core.Income)
	groceries := mustCreateCategory(t, repo, "user-1", "Groceries", core.Expense)

	mustRecord(t, repo, core.NewTransaction{
		UserID: "user-1", AccountID: acc.ID, CategoryID: salary.ID,
		Kind: core.Income, Amount: core.Money{Cents: 100000},
		Description: "August salary", Date: core.NewDate(2026, 8, 1),
	})
	second := mustRecord(t, repo, core.NewTransaction{
		UserID: "user-1", AccountID: acc.ID, CategoryID: groceries.ID,
		Kind: core.Expense, Amount: core.Money{Cents: 3000},
		Date: core.NewDate(2026, 8, 10),
	})
	mustRecord(t, repo, core.NewTransaction{
		UserID: "user-1", AccountID: acc.ID, CategoryID: groceries.ID,
		Kind: core.Expense, Amount: core.Money{Cents: 2500},
		Date: core.NewDate(2026, 5, 2),
	})

	recent, err := repo.RecentTransactions(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("RecentTransactions: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("RecentTransactions returned %d rows, want 2", len(recent))
	}
	// Newest insert first; the joined snapshots come along.
	if recent[0].Amount.Cents != 2500 || recent[1].ID != second.ID {
		t.Errorf("recent = [%d %d]", recent[0].ID, recent[1].ID)
	}
	if recent[0].Account.Name != "Checking" || recent[0].Category.Name != "Groceries" {
		t.Errorf("snapshots = %q / %q", recent[0].Account.Name, recent[0].Category.Name)
	}

	since, err := repo.TransactionsSince(ctx, "user-1", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("TransactionsSince: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("TransactionsSince returned %d rows, want 2", len(since))
	}
	if !since[0].Date.Equal(core.NewDate(2026, 8, 1).Time) {
		t.Errorf("first transaction dated %v, want 2026-08-01", since[0].Date)
	}

	got, err := repo.GetTransaction(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Kind != core.Expense || got.Amount.Cents != 3000 {
		t.Errorf("GetTransaction = %+v", got)
	}

	nAcc, err := repo.CountTransactionsForAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("CountTransactionsForAccount: %v", err)
	}
	if nAcc != 3 {
		t.Errorf("CountTransactionsForAccount = %d, want 3", nAcc)
	}
	nCat, err := repo.CountTransactionsForCategory(ctx, groceries.ID)
	if err != nil {
		t.Fatalf("CountTransactionsForCategory: %v", err)
	}
	if nCat != 2 {
		t.Errorf("CountTransactionsForCategory = %d, want 2", nCat)
	}
}

func TestSumTransactionDeltas(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := mustCreateAccount(t, repo, "user-1", "Checking", 5000)
	salary := mustCreateCategory(t, repo, "user-1", "Salary", core.Income)
	groceries := mustCreateCategory(t, repo, "user-1", "Groceries", core.Expense)

	// No transactions yet: the truth is the opening balance.
	sum, err := repo.SumTransactionDeltas(ctx, acc.ID)
	if err != nil {
		t.Fatalf("SumTransactionDeltas: %v", err)
	}
	if sum != 5000 {
		t.Errorf("sum = %d, want 5000", sum)
	}

	mustRecord(t, repo, core.NewTransaction{
		UserID: "user-1", AccountID: acc.ID, CategoryID: salary.ID,
		Kind: core.Income, Amount: core.Money{Cents: 10000}, Date: core.NewDate(2026, 8, 1),
	})
	mustRecord(t, repo, core.NewTransaction{
		UserID: "user-1", AccountID: acc.ID, CategoryID: groceries.ID,
		Kind: core.Expense, Amount: core.Money{Cents: 2000}, Date: core.NewDate(2026, 8, 2),
	})

	sum, err = repo.SumTransactionDeltas(ctx, acc.ID)
	if err != nil {
		t.Fatalf("SumTransactionDeltas: %v", err)
	}
	if sum != 13000 {
		t.Errorf("sum = %d, want 13000", sum)
	}

	if _, err := repo.SumTransactionDeltas(ctx, 9999); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("SumTransactionDeltas on missing account = %v, want ErrNotFound", err)
	}
}

func TestListAccountRefs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateUser(ctx, "user-2", "user2@example.com"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	a := mustCreateAccount(t, repo, "user-1", "Checking", 0)
	b := mustCreateAccount(t, repo, "user-2", "Savings", 0)

	refs, err := repo.ListAccountRefs(ctx)
	if err != nil {
		t.Fatalf("ListAccountRefs: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("ListAccountRefs returned %d refs, want 2", len(refs))
	}
	if refs[0].ID != a.ID || refs[0].UserID != "user-1" {
		t.Errorf("refs[0] = %+v", refs[0])
	}
	if refs[1].ID != b.ID || refs[1].UserID != "user-2" {
		t.Errorf("refs[1] = %+v", refs[1])
	}
}

func TestSessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, "tok-live", "user-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := repo.CreateSession(ctx, "tok-dead", "user-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	userID, err := repo.SessionUser(ctx, "tok-live")
	if err != nil {
		t.Fatalf("SessionUser: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("SessionUser = %q, want user-1", userID)
	}

	if _, err := repo.SessionUser(ctx, "tok-dead"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expired session = %v, want ErrNotFound", err)
	}
	if _, err := repo.SessionUser(ctx, "tok-unknown"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("unknown session = %v, want ErrNotFound", err)
	}
}

func TestForeignKeyEnforcement(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	typeID, err := repo.TransactionTypeID(ctx, core.Expense)
	if err != nil {
		t.Fatalf("TransactionTypeID: %v", err)
	}
	_, err = repo.CreateTransaction(ctx, core.NewTransaction{
		UserID: "user-1", AccountID: 9999, CategoryID: 9999,
		Kind: core.Expense, Amount: core.Money{Cents: 100}, Date: core.NewDate(2026, 8, 1),
	}, typeID)
	if !errors.Is(err, ledger.ErrPersistence) {
		t.Errorf("orphan transaction = %v, want ErrPersistence", err)
	}
}
