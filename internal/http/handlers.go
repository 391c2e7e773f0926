package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"saldo/internal/auth"
	"saldo/internal/core"
	applog "saldo/internal/log"
)

// --- response models ---

type moneyResponse struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}

func toMoney(m core.Money) moneyResponse {
	return moneyResponse{Cents: m.Cents, Display: m.String()}
}

type accountResponse struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Balance   moneyResponse `json:"balance"`
	CreatedAt time.Time     `json:"created_at"`
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Name:      a.Name,
		Type:      string(a.Type),
		Balance:   toMoney(a.Balance),
		CreatedAt: a.CreatedAt,
	}
}

type categoryResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Kind:      string(c.Kind),
		Color:     c.Color,
		CreatedAt: c.CreatedAt,
	}
}

type transactionResponse struct {
	ID          int64         `json:"id"`
	AccountID   int64         `json:"account_id"`
	CategoryID  int64         `json:"category_id"`
	Kind        string        `json:"kind"`
	Amount      moneyResponse `json:"amount"`
	Description string        `json:"description,omitempty"`
	Date        string        `json:"date"`
	CreatedAt   time.Time     `json:"created_at"`
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		AccountID:   tx.AccountID,
		CategoryID:  tx.CategoryID,
		Kind:        string(tx.Kind),
		Amount:      toMoney(tx.Amount),
		Description: tx.Description,
		Date:        tx.Date.Format("2006-01-02"),
		CreatedAt:   tx.CreatedAt,
	}
}

type transactionDetailsResponse struct {
	transactionResponse
	AccountName  string `json:"account_name"`
	CategoryName string `json:"category_name"`
}

type monthlyAmountResponse struct {
	Month  string        `json:"month"`
	Amount moneyResponse `json:"amount"`
}

type dashboardResponse struct {
	TotalIncome        moneyResponse                `json:"total_income"`
	TotalExpenses      moneyResponse                `json:"total_expenses"`
	TotalBalance       moneyResponse                `json:"total_balance"`
	TotalLiabilities   moneyResponse                `json:"total_liabilities"`
	RecentTransactions []transactionDetailsResponse `json:"recent_transactions"`
	Accounts           []accountResponse            `json:"accounts"`
	TotalAccounts      int                          `json:"total_accounts"`
	MonthlyIncome      []monthlyAmountResponse      `json:"monthly_income"`
	MonthlyExpense     []monthlyAmountResponse      `json:"monthly_expense"`
}

func toDashboardResponse(s core.DashboardSummary) dashboardResponse {
	resp := dashboardResponse{
		TotalIncome:        toMoney(s.TotalIncome),
		TotalExpenses:      toMoney(s.TotalExpenses),
		TotalBalance:       toMoney(s.TotalBalance),
		TotalLiabilities:   toMoney(s.TotalLiabilities),
		RecentTransactions: make([]transactionDetailsResponse, 0, len(s.RecentTransactions)),
		Accounts:           make([]accountResponse, 0, len(s.Accounts)),
		TotalAccounts:      s.TotalAccounts,
		MonthlyIncome:      make([]monthlyAmountResponse, 0, len(s.MonthlyIncome)),
		MonthlyExpense:     make([]monthlyAmountResponse, 0, len(s.MonthlyExpense)),
	}
	for _, d := range s.RecentTransactions {
		resp.RecentTransactions = append(resp.RecentTransactions, transactionDetailsResponse{
			transactionResponse: toTransactionResponse(d.Transaction),
			AccountName:         d.Account.Name,
			CategoryName:        d.Category.Name,
		})
	}
	for _, a := range s.Accounts {
		resp.Accounts = append(resp.Accounts, toAccountResponse(a))
	}
	for _, m := range s.MonthlyIncome {
		resp.MonthlyIncome = append(resp.MonthlyIncome, monthlyAmountResponse{Month: m.Month, Amount: toMoney(m.Amount)})
	}
	for _, m := range s.MonthlyExpense {
		resp.MonthlyExpense = append(resp.MonthlyExpense, monthlyAmountResponse{Month: m.Month, Amount: toMoney(m.Amount)})
	}
	return resp
}

// --- dashboard ---

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := auth.CurrentUser(r.Context())

	if summary, ok := s.summaryCache.Get(string(userID)); ok {
		writeJSON(w, http.StatusOK, toDashboardResponse(summary))
		return
	}

	summary, err := s.backend.DashboardSummary(r.Context(), userID, time.Now().UTC())
	if err != nil {
		slog.ErrorContext(r.Context(), "Dashboard build failed", applog.FieldUserID, userID, applog.FieldError, err)
		writeError(w, err)
		return
	}

	s.summaryCache.Set(string(userID), summary)
	writeJSON(w, http.StatusOK, toDashboardResponse(summary))
}

// --- transactions ---

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.CurrentUser(r.Context())

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	in, err := req.toNewTransaction(userID)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(), Code: "validation_failed",
		})
		return
	}

	tx, err := s.backend.RecordTransaction(r.Context(), in)
	if err != nil {
		slog.ErrorContext(r.Context(), "Record transaction failed",
			applog.FieldUserID, userID, applog.FieldAccountID, in.AccountID, applog.FieldError, err)
		// The balance may have drifted even on partial failure.
		s.invalidateSummary(userID)
		writeError(w, err)
		return
	}

	s.invalidateSummary(userID)
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

// --- accounts ---

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.backend.ListAccounts(r.Context(), auth.CurrentUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID := auth.CurrentUser(r.Context())

	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	in, err := req.toAccount(userID)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(), Code: "validation_failed",
		})
		return
	}

	account, err := s.backend.CreateAccount(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	s.invalidateSummary(userID)
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := auth.CurrentUser(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid account id")
		return
	}

	if err := s.backend.DeleteAccount(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}

	s.invalidateSummary(userID)
	writeJSON(w, http.StatusNoContent, nil)
}

// --- categories ---

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.backend.ListCategories(r.Context(), auth.CurrentUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID := auth.CurrentUser(r.Context())

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	category, err := s.backend.CreateCategory(r.Context(), req.toCategory(userID))
	if err != nil {
		writeError(w, err)
		return
	}

	s.invalidateSummary(userID)
	writeJSON(w, http.StatusCreated, toCategoryResponse(category))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID := auth.CurrentUser(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid category id")
		return
	}

	if err := s.backend.DeleteCategory(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}

	s.invalidateSummary(userID)
	writeJSON(w, http.StatusNoContent, nil)
}
