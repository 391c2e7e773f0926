package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/storage"
)

const recentTransactionLimit = 10

// DashboardService rebuilds the dashboard summary from scratch on every call.
// The four reads are independent, so they run concurrently.
type DashboardService struct {
	storage *storage.SQLiteRepository
}

func NewDashboardService(storage *storage.SQLiteRepository) *DashboardService {
	return &DashboardService{storage: storage}
}

func (s *DashboardService) DashboardSummary(ctx context.Context, userID core.UserID, now time.Time) (core.DashboardSummary, error) {
	if userID == "" {
		return core.DashboardSummary{}, ledger.ErrNotAuthenticated
	}

	var (
		accounts []core.Account
		recent   []core.TransactionDetails
		window   []core.Transaction
		total    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = s.storage.ListAccounts(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.storage.RecentTransactions(gctx, userID, recentTransactionLimit)
		return err
	})
	g.Go(func() error {
		var err error
		window, err = s.storage.TransactionsSince(gctx, userID, core.TrendStart(now))
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.storage.CountAccounts(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.DashboardSummary{}, err
	}

	return core.BuildDashboardSummary(core.SummaryInput{
		Now:                now,
		Accounts:           accounts,
		RecentTransactions: recent,
		TotalAccounts:      total,
		WindowTransactions: window,
	}), nil
}
