package core

import "time"

// trendMonths is the width of the dashboard window: the current calendar
// month plus the five preceding ones.
const trendMonths = 6

const (
	maxRecentTransactions = 10
	maxDashboardAccounts  = 3
)

// MonthlyAmount is one trend bucket, labeled "Jan 2006" so the same month
// name in different years never collides.
type MonthlyAmount struct {
	Month  string
	Amount Money
}

// DashboardSummary is the derived dashboard read-model. It is never
// persisted; every page load rebuilds it from scratch.
type DashboardSummary struct {
	TotalIncome        Money
	TotalExpenses      Money
	TotalBalance       Money
	TotalLiabilities   Money // always zero: there is no liabilities ledger
	RecentTransactions []TransactionDetails
	Accounts           []Account
	TotalAccounts      int
	MonthlyIncome      []MonthlyAmount // oldest month first
	MonthlyExpense     []MonthlyAmount
}

// SummaryInput carries everything BuildDashboardSummary needs, already scoped
// to one user. Accounts holds all of the user's accounts ordered newest
// first; the dashboard shows the first three but sums every balance.
// WindowTransactions must contain every transaction dated on or after
// TrendStart(Now); there is no upper bound on the window.
type SummaryInput struct {
	Now                time.Time
	Accounts           []Account
	RecentTransactions []TransactionDetails
	TotalAccounts      int
	WindowTransactions []Transaction
}

// MonthLabel returns the bucket key for a point in time.
func MonthLabel(t time.Time) string {
	return t.Format("Jan 2006")
}

// TrendStart returns the inclusive lower bound of the dashboard window: the
// first day of the month five months before now's month.
func TrendStart(now time.Time) time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -(trendMonths - 1), 0)
}

// BuildDashboardSummary aggregates a user's accounts and windowed
// transactions into the dashboard view. Pure function of its input.
//
// Period totals sum the whole candidate set split by kind; the trend buckets
// only absorb transactions whose month maps into one of the six constructed
// labels. A transaction dated past the current month therefore counts in the
// totals but silently misses the trend. That asymmetry is kept on purpose.
func BuildDashboardSummary(in SummaryInput) DashboardSummary {
	type bucket struct {
		income  int64
		expense int64
	}

	start := TrendStart(in.Now)
	labels := make([]string, 0, trendMonths)
	buckets := make(map[string]*bucket, trendMonths)
	for i := 0; i < trendMonths; i++ {
		label := MonthLabel(start.AddDate(0, i, 0))
		labels = append(labels, label)
		buckets[label] = &bucket{}
	}

	var totalIncome, totalExpenses int64
	for _, tx := range in.WindowTransactions {
		switch tx.Kind {
		case Income:
			totalIncome += tx.Amount.Cents
		case Expense:
			totalExpenses += tx.Amount.Cents
		default:
			// Unresolvable kind (e.g. a broken type join): skip, never error.
			continue
		}
		b, ok := buckets[MonthLabel(tx.Date.Time)]
		if !ok {
			continue
		}
		if tx.Kind == Income {
			b.income += tx.Amount.Cents
		} else {
			b.expense += tx.Amount.Cents
		}
	}

	var totalBalance int64
	for _, a := range in.Accounts {
		totalBalance += a.Balance.Cents
	}

	monthlyIncome := make([]MonthlyAmount, 0, trendMonths)
	monthlyExpense := make([]MonthlyAmount, 0, trendMonths)
	for _, label := range labels {
		b := buckets[label]
		monthlyIncome = append(monthlyIncome, MonthlyAmount{Month: label, Amount: Money{Cents: b.income}})
		monthlyExpense = append(monthlyExpense, MonthlyAmount{Month: label, Amount: Money{Cents: b.expense}})
	}

	recent := in.RecentTransactions
	if len(recent) > maxRecentTransactions {
		recent = recent[:maxRecentTransactions]
	}
	accounts := in.Accounts
	if len(accounts) > maxDashboardAccounts {
		accounts = accounts[:maxDashboardAccounts]
	}

	return DashboardSummary{
		TotalIncome:        Money{Cents: totalIncome},
		TotalExpenses:      Money{Cents: totalExpenses},
		TotalBalance:       Money{Cents: totalBalance},
		TotalLiabilities:   Money{},
		RecentTransactions: recent,
		Accounts:           accounts,
		TotalAccounts:      in.TotalAccounts,
		MonthlyIncome:      monthlyIncome,
		MonthlyExpense:     monthlyExpense,
	}
}
