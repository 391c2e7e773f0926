package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"saldo/internal/core"
	"saldo/internal/ledger"
	applog "saldo/internal/log"

	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection keeps the foreign_keys pragma in effect for every
	// statement and sidesteps SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// wrapStore classifies a database error into the ledger taxonomy.
func wrapStore(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ledger.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, ledger.ErrPersistence, err)
}

// --- users and sessions ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, id core.UserID, email string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email) VALUES (?, ?)`, string(id), email)
	if err != nil {
		return wrapStore("create user", err)
	}
	return nil
}

// CreateSession stores a bearer session minted by the auth gateway.
func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID core.UserID, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, string(userID), expiresAt.UTC().Format(timeLayout))
	if err != nil {
		return wrapStore("create session", err)
	}
	return nil
}

// SessionUser resolves a session token to its user. Expired sessions resolve
// to ErrNotFound; callers treat that the same as a missing token.
func (r *SQLiteRepository) SessionUser(ctx context.Context, token string) (core.UserID, error) {
	var userID, expiresAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&userID, &expiresAt)
	if err != nil {
		return "", wrapStore("session lookup", err)
	}
	exp, err := time.Parse(timeLayout, expiresAt)
	if err != nil {
		return "", fmt.Errorf("session lookup: parse expiry: %w", err)
	}
	if time.Now().After(exp) {
		return "", fmt.Errorf("session lookup: expired: %w", ledger.ErrNotFound)
	}
	return core.UserID(userID), nil
}

// --- accounts ---

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, name, type, balance_cents, opening_balance_cents, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.UserID), a.Name, string(a.Type), a.Balance.Cents, a.Balance.Cents,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return core.Account{}, wrapStore("create account", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Account{}, wrapStore("create account id", err)
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now

	slog.InfoContext(ctx, "Account created",
		applog.FieldAccountID, id,
		applog.FieldUserID, a.UserID,
		"type", a.Type,
		"opening_balance_cents", a.Balance.Cents)
	return a, nil
}

// ListAccounts returns all of the user's accounts, newest first.
func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID core.UserID) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, balance_cents, created_at, updated_at
		 FROM accounts WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`, string(userID))
	if err != nil {
		return nil, wrapStore("list accounts", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStore("list accounts", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, userID core.UserID, id int64) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, balance_cents, created_at, updated_at
		 FROM accounts WHERE id = ? AND user_id = ?`, id, string(userID))
	a, err := scanAccount(row)
	if err != nil {
		return core.Account{}, wrapStore("get account", err)
	}
	return a, nil
}

func (r *SQLiteRepository) CountAccounts(ctx context.Context, userID core.UserID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE user_id = ?`, string(userID)).Scan(&n)
	if err != nil {
		return 0, wrapStore("count accounts", err)
	}
	return n, nil
}

// ApplyBalanceDelta adds a signed amount to the cached balance in a single
// statement, so two concurrent writers never lose an update.
func (r *SQLiteRepository) ApplyBalanceDelta(ctx context.Context, userID core.UserID, accountID, deltaCents int64) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		deltaCents, now, accountID, string(userID))
	if err != nil {
		return wrapStore("apply balance delta", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStore("apply balance delta", err)
	}
	if n == 0 {
		return fmt.Errorf("apply balance delta: account %d: %w", accountID, ledger.ErrNotFound)
	}
	return nil
}

// SetAccountBalance overwrites the cached balance. Used by the reconcile
// worker after recomputing it from transaction history.
func (r *SQLiteRepository) SetAccountBalance(ctx context.Context, userID core.UserID, accountID, cents int64) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		cents, now, accountID, string(userID))
	if err != nil {
		return wrapStore("set account balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStore("set account balance", err)
	}
	if n == 0 {
		return fmt.Errorf("set account balance: account %d: %w", accountID, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, userID core.UserID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, string(userID))
	if err != nil {
		return wrapStore("delete account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStore("delete account", err)
	}
	if n == 0 {
		return fmt.Errorf("delete account %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CountTransactionsForAccount(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = ?`, accountID).Scan(&n)
	if err != nil {
		return 0, wrapStore("count account transactions", err)
	}
	return n, nil
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name, type, color, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(c.UserID), c.Name, string(c.Kind), nullString(c.Color), now.Format(timeLayout))
	if err != nil {
		return core.Category{}, wrapStore("create category", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, wrapStore("create category id", err)
	}
	c.ID = id
	c.CreatedAt = now
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID core.UserID) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, color, created_at
		 FROM categories WHERE user_id = ? ORDER BY name`, string(userID))
	if err != nil {
		return nil, wrapStore("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStore("list categories", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID core.UserID, id int64) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, color, created_at
		 FROM categories WHERE id = ? AND user_id = ?`, id, string(userID))
	c, err := scanCategory(row)
	if err != nil {
		return core.Category{}, wrapStore("get category", err)
	}
	return c, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID core.UserID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id, string(userID))
	if err != nil {
		return wrapStore("delete category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStore("delete category", err)
	}
	if n == 0 {
		return fmt.Errorf("delete category %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CountTransactionsForCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE category_id = ?`, categoryID).Scan(&n)
	if err != nil {
		return 0, wrapStore("count category transactions", err)
	}
	return n, nil
}

// --- transactions ---

// TransactionTypeID resolves a kind against the lookup table.
func (r *SQLiteRepository) TransactionTypeID(ctx context.Context, kind core.TransactionKind) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM transaction_types WHERE type = ?`, string(kind)).Scan(&id)
	if err != nil {
		return 0, wrapStore("resolve transaction type", err)
	}
	return id, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, in core.NewTransaction, typeID int64) (core.Transaction, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, account_id, category_id, type_id, amount_cents, description, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(in.UserID), in.AccountID, in.CategoryID, typeID,
		in.Amount.Cents, nullString(in.Description),
		in.Date.Format(dateLayout), now.Format(timeLayout))
	if err != nil {
		return core.Transaction{}, wrapStore("create transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, wrapStore("create transaction id", err)
	}

	tx := core.Transaction{
		ID:          id,
		UserID:      in.UserID,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        in.Date,
		CreatedAt:   now,
	}
	slog.InfoContext(ctx, "Transaction recorded",
		applog.FieldTransactionID, id,
		applog.FieldUserID, in.UserID,
		applog.FieldAccountID, in.AccountID,
		"kind", in.Kind,
		applog.FieldAmountCents, in.Amount.Cents)
	return tx, nil
}

// RecentTransactions returns the newest transactions by created_at with
// account and category snapshots joined in.
func (r *SQLiteRepository) RecentTransactions(ctx context.Context, userID core.UserID, limit int) ([]core.TransactionDetails, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.user_id, t.account_id, t.category_id, tt.type,
		        t.amount_cents, t.description, t.date, t.created_at,
		        a.id, a.user_id, a.name, a.type, a.balance_cents, a.created_at, a.updated_at,
		        c.id, c.user_id, c.name, c.type, c.color, c.created_at
		 FROM transactions t
		 JOIN transaction_types tt ON tt.id = t.type_id
		 JOIN accounts a ON a.id = t.account_id
		 JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = ?
		 ORDER BY t.created_at DESC, t.id DESC
		 LIMIT ?`, string(userID), limit)
	if err != nil {
		return nil, wrapStore("recent transactions", err)
	}
	defer rows.Close()

	var out []core.TransactionDetails
	for rows.Next() {
		var (
			d                     core.TransactionDetails
			txUser, kind          string
			desc, color           sql.NullString
			date, txCreated       string
			accUser, accType      string
			accCreated, accUpd    string
			catUser, catKind      string
			catCreated            string
		)
		err := rows.Scan(
			&d.ID, &txUser, &d.AccountID, &d.CategoryID, &kind,
			&d.Amount.Cents, &desc, &date, &txCreated,
			&d.Account.ID, &accUser, &d.Account.Name, &accType, &d.Account.Balance.Cents, &accCreated, &accUpd,
			&d.Category.ID, &catUser, &d.Category.Name, &catKind, &color, &catCreated)
		if err != nil {
			return nil, fmt.Errorf("recent transactions: scan: %w", err)
		}
		d.UserID = core.UserID(txUser)
		d.Kind = core.TransactionKind(kind)
		d.Description = desc.String
		d.Account.UserID = core.UserID(accUser)
		d.Account.Type = core.AccountType(accType)
		d.Category.UserID = core.UserID(catUser)
		d.Category.Kind = core.TransactionKind(catKind)
		d.Category.Color = color.String
		if d.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("recent transactions: %w", err)
		}
		if d.CreatedAt, err = time.Parse(timeLayout, txCreated); err != nil {
			return nil, fmt.Errorf("recent transactions: parse created_at: %w", err)
		}
		if d.Account.CreatedAt, err = time.Parse(timeLayout, accCreated); err != nil {
			return nil, fmt.Errorf("recent transactions: parse account created_at: %w", err)
		}
		if d.Account.UpdatedAt, err = time.Parse(timeLayout, accUpd); err != nil {
			return nil, fmt.Errorf("recent transactions: parse account updated_at: %w", err)
		}
		if d.Category.CreatedAt, err = time.Parse(timeLayout, catCreated); err != nil {
			return nil, fmt.Errorf("recent transactions: parse category created_at: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStore("recent transactions", err)
	}
	return out, nil
}

// TransactionsSince returns all transactions dated on or after since. There
// is deliberately no upper bound.
func (r *SQLiteRepository) TransactionsSince(ctx context.Context, userID core.UserID, since time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.user_id, t.account_id, t.category_id, tt.type,
		        t.amount_cents, t.description, t.date, t.created_at
		 FROM transactions t
		 JOIN transaction_types tt ON tt.id = t.type_id
		 WHERE t.user_id = ? AND t.date >= ?
		 ORDER BY t.date`, string(userID), since.Format(dateLayout))
	if err != nil {
		return nil, wrapStore("transactions since", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("transactions since: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStore("transactions since", err)
	}
	return out, nil
}

// GetTransaction loads a single transaction by id, unscoped by user: the
// export worker processes queue messages that already carry the owner.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT t.id, t.user_id, t.account_id, t.category_id, tt.type,
		        t.amount_cents, t.description, t.date, t.created_at
		 FROM transactions t
		 JOIN transaction_types tt ON tt.id = t.type_id
		 WHERE t.id = ?`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, wrapStore("get transaction", err)
	}
	return tx, nil
}

// SumTransactionDeltas recomputes an account's true balance from history:
// the opening balance, plus income, minus expense.
func (r *SQLiteRepository) SumTransactionDeltas(ctx context.Context, accountID int64) (int64, error) {
	var opening int64
	err := r.db.QueryRowContext(ctx,
		`SELECT opening_balance_cents FROM accounts WHERE id = ?`, accountID).Scan(&opening)
	if err != nil {
		return 0, wrapStore("sum transaction deltas", err)
	}

	var sum sql.NullInt64
	err = r.db.QueryRowContext(ctx,
		`SELECT SUM(CASE WHEN tt.type = 'income' THEN t.amount_cents ELSE -t.amount_cents END)
		 FROM transactions t
		 JOIN transaction_types tt ON tt.id = t.type_id
		 WHERE t.account_id = ?`, accountID).Scan(&sum)
	if err != nil {
		return 0, wrapStore("sum transaction deltas", err)
	}
	return opening + sum.Int64, nil
}

// AccountRef identifies an account together with its owner.
type AccountRef struct {
	ID     int64
	UserID core.UserID
}

// ListAccountRefs returns every account in the store. Used by the periodic
// reconcile sweep.
func (r *SQLiteRepository) ListAccountRefs(ctx context.Context) ([]AccountRef, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, wrapStore("list account refs", err)
	}
	defer rows.Close()

	var out []AccountRef
	for rows.Next() {
		var ref AccountRef
		var user string
		if err := rows.Scan(&ref.ID, &user); err != nil {
			return nil, fmt.Errorf("list account refs: scan: %w", err)
		}
		ref.UserID = core.UserID(user)
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStore("list account refs", err)
	}
	return out, nil
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a                  core.Account
		user, typ          string
		createdAt, updated string
	)
	err := row.Scan(&a.ID, &user, &a.Name, &typ, &a.Balance.Cents, &createdAt, &updated)
	if err != nil {
		return core.Account{}, err
	}
	a.UserID = core.UserID(user)
	a.Type = core.AccountType(typ)
	if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Account{}, fmt.Errorf("parse account created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return core.Account{}, fmt.Errorf("parse account updated_at: %w", err)
	}
	return a, nil
}

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c          core.Category
		user, kind string
		color      sql.NullString
		createdAt  string
	)
	err := row.Scan(&c.ID, &user, &c.Name, &kind, &color, &createdAt)
	if err != nil {
		return core.Category{}, err
	}
	c.UserID = core.UserID(user)
	c.Kind = core.TransactionKind(kind)
	c.Color = color.String
	if c.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Category{}, fmt.Errorf("parse category created_at: %w", err)
	}
	return c, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx              core.Transaction
		user, kind      string
		desc            sql.NullString
		date, createdAt string
	)
	err := row.Scan(&tx.ID, &user, &tx.AccountID, &tx.CategoryID, &kind,
		&tx.Amount.Cents, &desc, &date, &createdAt)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.UserID = core.UserID(user)
	tx.Kind = core.TransactionKind(kind)
	tx.Description = desc.String
	if tx.Date, err = parseDate(date); err != nil {
		return core.Transaction{}, err
	}
	if tx.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction created_at: %w", err)
	}
	return tx, nil
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
