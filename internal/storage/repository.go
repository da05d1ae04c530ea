// Package storage persists categories, budgets and transactions in
// SQLite. It is the uniqueness-enforcing collaborator the import
// pipeline relies on: ensure-or-create recovers from unique-constraint
// violations by re-querying.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
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

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
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

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) ListSubcategories(ctx context.Context, userID int64) ([]core.Subcategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, category_id, name FROM subcategories WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer rows.Close()

	var subcategories []core.Subcategory
	for rows.Next() {
		var s core.Subcategory
		if err := rows.Scan(&s.ID, &s.UserID, &s.CategoryID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		subcategories = append(subcategories, s)
	}
	return subcategories, rows.Err()
}

// EnsureCategory returns the id of the category with the given name,
// creating it when absent. A lost insert race against a concurrent
// identical create surfaces as a unique-constraint violation, which is
// recovered by re-querying.
func (r *SQLiteRepository) EnsureCategory(ctx context.Context, userID int64, name string) (int64, error) {
	name = strings.TrimSpace(name)

	id, err := r.categoryID(ctx, userID, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup category: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		if id, qerr := r.categoryID(ctx, userID, name); qerr == nil {
			return id, nil
		}
		return 0, fmt.Errorf("insert category: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) categoryID(ctx context.Context, userID int64, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE user_id = ? AND name = ?`, userID, name).Scan(&id)
	return id, err
}

// EnsureSubcategory mirrors EnsureCategory for (category, name) pairs.
func (r *SQLiteRepository) EnsureSubcategory(ctx context.Context, userID, categoryID int64, name string) (int64, error) {
	name = strings.TrimSpace(name)

	id, err := r.subcategoryID(ctx, userID, categoryID, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup subcategory: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO subcategories (user_id, category_id, name) VALUES (?, ?, ?)`,
		userID, categoryID, name)
	if err != nil {
		if id, qerr := r.subcategoryID(ctx, userID, categoryID, name); qerr == nil {
			return id, nil
		}
		return 0, fmt.Errorf("insert subcategory: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) subcategoryID(ctx context.Context, userID, categoryID int64, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM subcategories WHERE user_id = ? AND category_id = ? AND name = ?`,
		userID, categoryID, name).Scan(&id)
	return id, err
}

const budgetColumns = `id, user_id, type, category_id, COALESCE(subcategory_id, 0),
	amount_cents, currency, is_recurring,
	COALESCE(one_time_date, ''), COALESCE(repeat_unit, ''), COALESCE(repeat_interval, 0),
	COALESCE(day_of_month, 0), COALESCE(weekday, -1),
	COALESCE(start_date, ''), COALESCE(end_date, ''), COALESCE(note, '')`

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func scanBudget(rows *sql.Rows) (core.Budget, error) {
	var b core.Budget
	var oneTime, start, end string
	if err := rows.Scan(&b.ID, &b.UserID, &b.Type, &b.CategoryID, &b.SubcategoryID,
		&b.AmountCents, &b.Currency, &b.IsRecurring,
		&oneTime, &b.RepeatUnit, &b.RepeatInterval,
		&b.DayOfMonth, &b.Weekday,
		&start, &end, &b.Note); err != nil {
		return core.Budget{}, fmt.Errorf("scan budget: %w", err)
	}
	b.OneTimeDate = dateFromColumn(oneTime)
	b.StartDate = dateFromColumn(start)
	b.EndDate = dateFromColumn(end)
	return b, nil
}

func (r *SQLiteRepository) InsertBudget(ctx context.Context, b core.Budget) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (user_id, type, category_id, subcategory_id, amount_cents, currency,
			is_recurring, one_time_date, repeat_unit, repeat_interval, day_of_month, weekday,
			start_date, end_date, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.Type, b.CategoryID, nullableID(b.SubcategoryID), b.AmountCents, b.Currency,
		b.IsRecurring, dateToColumn(b.OneTimeDate), nullableString(string(b.RepeatUnit)),
		nullableInt(b.RepeatInterval), nullableInt(b.DayOfMonth), nullableWeekday(b.Weekday),
		dateToColumn(b.StartDate), dateToColumn(b.EndDate), nullableString(b.Note))
	if err != nil {
		return 0, fmt.Errorf("insert budget: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("budget insert id: %w", err)
	}
	slog.DebugContext(ctx, "Budget saved", "id", id, "user_id", b.UserID, "amount_cents", b.AmountCents)
	return id, nil
}

func (r *SQLiteRepository) DeleteBudgets(ctx context.Context, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := deleteByIDs("budgets", userID, ids)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete budgets: %w", err)
	}
	return nil
}

const transactionColumns = `id, user_id, date, type, category_id, COALESCE(subcategory_id, 0),
	description, amount_cents, currency, COALESCE(note, '')`

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY date, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListTransactionsRange returns the user's transactions with
// from <= date < to.
func (r *SQLiteRepository) ListTransactionsRange(ctx context.Context, userID int64, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND date >= ? AND date < ? ORDER BY date, id`,
		userID, from.Format(core.DateLayout), to.Format(core.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions in range: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var transactions []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var date string
		if err := rows.Scan(&t.ID, &t.UserID, &date, &t.Type, &t.CategoryID, &t.SubcategoryID,
			&t.Description, &t.AmountCents, &t.Currency, &t.Note); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Date = dateFromColumn(date)
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, date, type, category_id, subcategory_id,
			description, amount_cents, currency, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Date.Format(core.DateLayout), t.Type, t.CategoryID, nullableID(t.SubcategoryID),
		t.Description, t.AmountCents, t.Currency, nullableString(t.Note))
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction insert id: %w", err)
	}
	slog.DebugContext(ctx, "Transaction saved", "id", id, "user_id", t.UserID, "amount_cents", t.AmountCents)
	return id, nil
}

func (r *SQLiteRepository) DeleteTransactions(ctx context.Context, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := deleteByIDs("transactions", userID, ids)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	return nil
}

func deleteByIDs(table string, userID int64, ids []int64) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	return fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND id IN (%s)`, table, placeholders), args
}

func dateFromColumn(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	d, err := time.Parse(core.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return d
}

func dateToColumn(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(core.DateLayout)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableWeekday(weekday int) any {
	if weekday == core.NoWeekday {
		return nil
	}
	return weekday
}
