package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"saldo/internal/core"
)

const maxBodyBytes = 1 << 20

// transactionRequest is the POST /api/transactions body. Amount is a decimal
// string ("12.34" or "12,34"); date is "2006-01-02" and defaults to today.
type transactionRequest struct {
	AccountID   int64  `json:"account_id"`
	CategoryID  int64  `json:"category_id"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type accountRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Balance string `json:"balance"`
}

type categoryRequest struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Color string `json:"color"`
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (req transactionRequest) toNewTransaction(userID core.UserID) (core.NewTransaction, error) {
	cents, err := core.ParseDecimalToCents(strings.TrimSpace(req.Amount))
	if err != nil {
		return core.NewTransaction{}, fmt.Errorf("amount: %w", err)
	}

	var date core.Date
	if v := strings.TrimSpace(req.Date); v != "" {
		if date, err = parseDate(v); err != nil {
			return core.NewTransaction{}, fmt.Errorf("date: %w", err)
		}
	}

	return core.NewTransaction{
		UserID:      userID,
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Kind:        core.TransactionKind(strings.TrimSpace(req.Kind)),
		Amount:      core.Money{Cents: cents},
		Description: sanitizeInput(req.Description),
		Date:        date,
	}, nil
}

func (req accountRequest) toAccount(userID core.UserID) (core.Account, error) {
	var balance core.Money
	// Unlike transaction amounts, an opening balance of zero is fine.
	if v := strings.TrimSpace(req.Balance); v != "" && !isZeroDecimal(v) {
		cents, err := core.ParseDecimalToCents(v)
		if err != nil {
			return core.Account{}, fmt.Errorf("balance: %w", err)
		}
		balance = core.Money{Cents: cents}
	}

	return core.Account{
		UserID:  userID,
		Name:    sanitizeInput(req.Name),
		Type:    core.AccountType(strings.TrimSpace(req.Type)),
		Balance: balance,
	}, nil
}

func (req categoryRequest) toCategory(userID core.UserID) core.Category {
	return core.Category{
		UserID: userID,
		Name:   sanitizeInput(req.Name),
		Kind:   core.TransactionKind(strings.TrimSpace(req.Kind)),
		Color:  sanitizeInput(req.Color),
	}
}

// isZeroDecimal reports whether s spells zero, like "0", "0.00" or "0,0".
func isZeroDecimal(s string) bool {
	seenDigit := false
	for i, r := range s {
		switch {
		case r == '0':
			seenDigit = true
		case (r == '.' || r == ',') && i > 0:
		default:
			return false
		}
	}
	return seenDigit
}

// parseDate parses a date string in YYYY-MM-DD format.
func parseDate(dateStr string) (core.Date, error) {
	parsedTime, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: parsedTime}, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
