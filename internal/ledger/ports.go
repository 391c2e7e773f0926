// Package ledger defines the ports between the HTTP layer and the ledger
// implementations (sqlite-backed services or the in-memory store), plus the
// failure taxonomy shared across them.
package ledger

import (
	"context"
	"time"

	"saldo/internal/core"
)

// Ports for the ledger backends.
type (
	// DashboardReader rebuilds the dashboard summary from scratch. Read-only.
	DashboardReader interface {
		DashboardSummary(ctx context.Context, userID core.UserID, now time.Time) (core.DashboardSummary, error)
	}

	// TransactionRecorder records an immutable transaction and applies its
	// delta to the owning account's cached balance.
	TransactionRecorder interface {
		RecordTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error)
	}

	// AccountManager manages a user's accounts. Deletes are guarded: an
	// account with recorded transactions cannot be removed.
	AccountManager interface {
		CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
		ListAccounts(ctx context.Context, userID core.UserID) ([]core.Account, error)
		DeleteAccount(ctx context.Context, userID core.UserID, id int64) error
	}

	// CategoryManager manages a user's categories with the same delete guard.
	CategoryManager interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		ListCategories(ctx context.Context, userID core.UserID) ([]core.Category, error)
		DeleteCategory(ctx context.Context, userID core.UserID, id int64) error
	}
)

// Backend is the unified surface a fully wired ledger exposes.
type Backend interface {
	DashboardReader
	TransactionRecorder
	AccountManager
	CategoryManager
}
