// Package memory is an in-process ledger backend. It backs local development
// without SQLite and serves as the test double for the HTTP layer.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"saldo/internal/core"
	"saldo/internal/ledger"
)

type Store struct {
	mu           sync.Mutex
	nextID       int64
	accounts     map[int64]core.Account
	categories   map[int64]core.Category
	transactions []core.Transaction
	sessions     map[string]session
}

type session struct {
	userID    core.UserID
	expiresAt time.Time
}

func New() *Store {
	return &Store{
		accounts:   make(map[int64]core.Account),
		categories: make(map[int64]core.Category),
		sessions:   make(map[string]session),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddSession registers a bearer session, mirroring what the auth gateway
// writes to the sessions table.
func (s *Store) AddSession(token string, userID core.UserID, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session{userID: userID, expiresAt: expiresAt}
}

func (s *Store) SessionUser(_ context.Context, token string) (core.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok || time.Now().After(sess.expiresAt) {
		return "", fmt.Errorf("session lookup: %w", ledger.ErrNotFound)
	}
	return sess.userID, nil
}

func (s *Store) CreateAccount(_ context.Context, a core.Account) (core.Account, error) {
	if a.UserID == "" {
		return core.Account{}, ledger.ErrNotAuthenticated
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}
	if a.Balance.Cents < 0 {
		return core.Account{}, fmt.Errorf("%w: opening balance cannot be negative", ledger.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	a.ID = s.id()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context, userID core.UserID) ([]core.Account, error) {
	if userID == "" {
		return nil, ledger.ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteAccount(_ context.Context, userID core.UserID, id int64) error {
	if userID == "" {
		return ledger.ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return fmt.Errorf("account %d: %w", id, ledger.ErrNotFound)
	}
	for _, tx := range s.transactions {
		if tx.AccountID == id {
			return fmt.Errorf("account %d: %w", id, ledger.ErrHasDependents)
		}
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if c.UserID == "" {
		return core.Category{}, ledger.ErrNotAuthenticated
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("%w: %v", ledger.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	c.CreatedAt = time.Now().UTC()
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, userID core.UserID) ([]core.Category, error) {
	if userID == "" {
		return nil, ledger.ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteCategory(_ context.Context, userID core.UserID, id int64) error {
	if userID == "" {
		return ledger.ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return fmt.Errorf("category %d: %w", id, ledger.ErrNotFound)
	}
	for _, tx := range s.transactions {
		if tx.CategoryID == id {
			return fmt.Errorf("category %d: %w", id, ledger.ErrHasDependents)
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) RecordTransaction(_ context.Context, in core.NewTransaction) (core.Transaction, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[in.AccountID]
	if !ok || account.UserID != in.UserID {
		return core.Transaction{}, fmt.Errorf("account %d: %w", in.AccountID, ledger.ErrNotFound)
	}
	category, ok := s.categories[in.CategoryID]
	if !ok || category.UserID != in.UserID {
		return core.Transaction{}, fmt.Errorf("category %d: %w", in.CategoryID, ledger.ErrNotFound)
	}
	if category.Kind != in.Kind {
		return core.Transaction{}, fmt.Errorf("%w: category %q is %s, transaction is %s",
			ledger.ErrValidation, category.Name, category.Kind, in.Kind)
	}

	tx := core.Transaction{
		ID:          s.id(),
		UserID:      in.UserID,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        in.Date,
		CreatedAt:   time.Now().UTC(),
	}
	s.transactions = append(s.transactions, tx)

	account.Balance.Cents += tx.Delta().Cents
	account.UpdatedAt = tx.CreatedAt
	s.accounts[account.ID] = account
	return tx, nil
}

func (s *Store) DashboardSummary(ctx context.Context, userID core.UserID, now time.Time) (core.DashboardSummary, error) {
	accounts, err := s.ListAccounts(ctx, userID)
	if err != nil {
		return core.DashboardSummary{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	start := core.TrendStart(now)
	var window []core.Transaction
	var recent []core.TransactionDetails
	for _, tx := range s.transactions {
		if tx.UserID != userID {
			continue
		}
		if !tx.Date.Before(start) {
			window = append(window, tx)
		}
		recent = append(recent, core.TransactionDetails{
			Transaction: tx,
			Account:     s.accounts[tx.AccountID],
			Category:    s.categories[tx.CategoryID],
		})
	}
	sort.Slice(recent, func(i, j int) bool {
		if !recent[i].CreatedAt.Equal(recent[j].CreatedAt) {
			return recent[i].CreatedAt.After(recent[j].CreatedAt)
		}
		return recent[i].ID > recent[j].ID
	})

	return core.BuildDashboardSummary(core.SummaryInput{
		Now:                now,
		Accounts:           accounts,
		RecentTransactions: recent,
		TotalAccounts:      len(accounts),
		WindowTransactions: window,
	}), nil
}
