package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

const (
	Cash          AccountType = "cash"
	BankAccount   AccountType = "bank_account"
	MobileBanking AccountType = "mobile_banking"
)

type (
	// TransactionKind partitions money movements into income and expense.
	// Categories carry the same kind and must agree with their transactions.
	TransactionKind string

	AccountType string

	UserID string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Account is a named store of money. Balance is a cached running total
	// maintained by the ledger on every recorded transaction, not recomputed
	// on read.
	Account struct {
		ID        int64
		UserID    UserID
		Name      string
		Type      AccountType
		Balance   Money
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Category struct {
		ID        int64
		UserID    UserID
		Name      string
		Kind      TransactionKind
		Color     string // optional display color, may be empty
		CreatedAt time.Time
	}

	// Transaction is immutable once recorded. Amount is always positive;
	// Kind decides the sign applied to the account balance. Date is the
	// business date and is distinct from CreatedAt.
	Transaction struct {
		ID          int64
		UserID      UserID
		AccountID   int64
		CategoryID  int64
		Kind        TransactionKind
		Amount      Money
		Description string
		Date        Date
		CreatedAt   time.Time
	}

	// NewTransaction is the input for recording a transaction. A zero Date
	// defaults to today at record time.
	NewTransaction struct {
		UserID      UserID
		AccountID   int64
		CategoryID  int64
		Kind        TransactionKind
		Amount      Money
		Description string
		Date        Date
	}

	// TransactionDetails is a denormalized read-model row: a transaction with
	// snapshots of its account and category as they were at query time.
	TransactionDetails struct {
		Transaction
		Account  Account
		Category Category
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrInvalidAccount  = errors.New("invalid account reference")
	ErrInvalidCategory = errors.New("invalid category reference")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidDate     = errors.New("invalid date")
)

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty reports whether the date was left unset.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (k TransactionKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (t AccountType) Validate() error {
	switch t {
	case Cash, BankAccount, MobileBanking:
		return nil
	default:
		return errors.New("invalid account type")
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return a.Type.Validate()
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return c.Kind.Validate()
}

func (n NewTransaction) Validate() error {
	if err := n.Kind.Validate(); err != nil {
		return err
	}
	if err := n.Amount.Validate(); err != nil {
		return err
	}
	if n.AccountID <= 0 {
		return ErrInvalidAccount
	}
	if n.CategoryID <= 0 {
		return ErrInvalidCategory
	}
	if len(n.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// Delta returns the signed balance change this transaction applies to its
// account: positive for income, negative for expense.
func (t Transaction) Delta() Money {
	if t.Kind == Expense {
		return Money{Cents: -t.Amount.Cents}
	}
	return Money{Cents: t.Amount.Cents}
}
