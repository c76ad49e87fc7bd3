// Package ledger reads the user profile, goal, and expense data the coach
// reasons over. Data lives in SQLite; the schema is created on open.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"coach-agent/internal/domain"
)

// dateLayout is the storage format for calendar dates. It sorts lexically.
const dateLayout = "2006-01-02"

// Store answers ledger queries against a SQLite database. It is safe for
// concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at dsn with the pure-Go driver and
// prepares the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing handle, running migrations on first use.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("ledger: db must not be nil")
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("ledger: migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		nickname       TEXT NOT NULL,
		age_group      TEXT NOT NULL DEFAULT '',
		job            TEXT NOT NULL DEFAULT '',
		monthly_budget INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS goals (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        INTEGER NOT NULL REFERENCES users(id),
		goal_type      TEXT NOT NULL,
		target_amount  INTEGER NOT NULL,
		current_amount INTEGER NOT NULL DEFAULT 0,
		start_date     TEXT NOT NULL,
		end_date       TEXT NOT NULL,
		method         TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_goals_user_status ON goals(user_id, status);
	CREATE TABLE IF NOT EXISTS expenses (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        INTEGER NOT NULL REFERENCES users(id),
		name           TEXT NOT NULL,
		amount         INTEGER NOT NULL,
		category       TEXT NOT NULL,
		tag            TEXT NOT NULL DEFAULT '',
		memo           TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		expense_date   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, expense_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// User returns the profile for id, or domain.ErrNotFound.
func (s *Store) User(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	var age, job string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, nickname, age_group, job, monthly_budget FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Nickname, &age, &job, &u.MonthlyBudget)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("ledger: user %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("ledger: query user %d: %w", id, err)
	}
	u.AgeGroup = domain.AgeGroup(age)
	u.Job = domain.Job(job)
	return u, nil
}

// ActiveGoals returns up to limit ACTIVE goals for the user, oldest first.
func (s *Store) ActiveGoals(ctx context.Context, userID int64, limit int) ([]domain.Goal, error) {
	if limit <= 0 {
		return []domain.Goal{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, goal_type, target_amount, current_amount, start_date, end_date, method, status
		 FROM goals
		 WHERE user_id = ? AND status = ?
		 ORDER BY id ASC
		 LIMIT ?`,
		userID, string(domain.GoalActive), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query active goals: %w", err)
	}
	defer rows.Close()

	goals := []domain.Goal{}
	for rows.Next() {
		var g domain.Goal
		var start, end, status string
		if err := rows.Scan(&g.ID, &g.UserID, &g.GoalType, &g.TargetAmount, &g.CurrentAmount, &start, &end, &g.Method, &status); err != nil {
			return nil, fmt.Errorf("ledger: scan goal: %w", err)
		}
		if g.StartDate, err = time.Parse(dateLayout, start); err != nil {
			return nil, fmt.Errorf("ledger: goal %d start date: %w", g.ID, err)
		}
		if g.EndDate, err = time.Parse(dateLayout, end); err != nil {
			return nil, fmt.Errorf("ledger: goal %d end date: %w", g.ID, err)
		}
		g.Status = domain.GoalStatus(status)
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// Expense returns the user's expense with the given id, or
// domain.ErrNotFound when no such row belongs to the user.
func (s *Store) Expense(ctx context.Context, userID, id int64) (domain.Expense, error) {
	var e domain.Expense
	var category, method, date string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, amount, category, tag, memo, payment_method, expense_date
		 FROM expenses WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&e.ID, &e.UserID, &e.Name, &e.Amount, &category, &e.Tag, &e.Memo, &method, &date)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Expense{}, fmt.Errorf("ledger: expense %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Expense{}, fmt.Errorf("ledger: query expense %d: %w", id, err)
	}
	e.Category = domain.ExpenseCategory(category)
	e.PaymentMethod = domain.PaymentMethod(method)
	if e.Date, err = time.Parse(dateLayout, date); err != nil {
		return domain.Expense{}, fmt.Errorf("ledger: expense %d: bad date %q: %w", id, date, err)
	}
	return e, nil
}

// SpendingSince returns per-category totals for expenses dated on or after
// since, largest total first. Ties break by category name.
func (s *Store) SpendingSince(ctx context.Context, userID int64, since time.Time) ([]domain.SpendingAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, SUM(amount), COUNT(*)
		 FROM expenses
		 WHERE user_id = ? AND expense_date >= ?
		 GROUP BY category
		 ORDER BY SUM(amount) DESC, category ASC`,
		userID, since.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query spending: %w", err)
	}
	defer rows.Close()

	aggs := []domain.SpendingAggregate{}
	for rows.Next() {
		var a domain.SpendingAggregate
		var cat string
		if err := rows.Scan(&cat, &a.TotalAmount, &a.Count); err != nil {
			return nil, fmt.Errorf("ledger: scan spending: %w", err)
		}
		a.Category = domain.ExpenseCategory(cat)
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// TotalSince sums all expenses dated on or after since.
func (s *Store) TotalSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE user_id = ? AND expense_date >= ?`,
		userID, since.Format(dateLayout),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ledger: query total: %w", err)
	}
	return total, nil
}

// TagSummarySince counts and sums expenses carrying tag on or after since.
func (s *Store) TagSummarySince(ctx context.Context, userID int64, tag string, since time.Time) (domain.TagSummary, error) {
	ts := domain.TagSummary{Tag: tag}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0)
		 FROM expenses
		 WHERE user_id = ? AND tag = ? AND expense_date >= ?`,
		userID, tag, since.Format(dateLayout),
	).Scan(&ts.Count, &ts.TotalAmount)
	if err != nil {
		return domain.TagSummary{}, fmt.Errorf("ledger: query tag summary: %w", err)
	}
	return ts, nil
}

// InsertUser stores a profile and returns its id.
func (s *Store) InsertUser(ctx context.Context, u domain.User) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (nickname, age_group, job, monthly_budget) VALUES (?, ?, ?, ?)`,
		u.Nickname, string(u.AgeGroup), string(u.Job), u.MonthlyBudget,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert user: %w", err)
	}
	return res.LastInsertId()
}

// InsertGoal stores a goal and returns its id. An empty status means ACTIVE.
func (s *Store) InsertGoal(ctx context.Context, g domain.Goal) (int64, error) {
	if g.Status == "" {
		g.Status = domain.GoalActive
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (user_id, goal_type, target_amount, current_amount, start_date, end_date, method, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, g.GoalType, g.TargetAmount, g.CurrentAmount,
		g.StartDate.Format(dateLayout), g.EndDate.Format(dateLayout), g.Method, string(g.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert goal: %w", err)
	}
	return res.LastInsertId()
}

// InsertExpense stores an expense and returns its id.
func (s *Store) InsertExpense(ctx context.Context, e domain.Expense) (int64, error) {
	if e.Amount < 0 {
		return 0, fmt.Errorf("ledger: insert expense: negative amount %d", e.Amount)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, name, amount, category, tag, memo, payment_method, expense_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Name, e.Amount, string(e.Category), e.Tag, e.Memo, string(e.PaymentMethod),
		e.Date.Format(dateLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert expense: %w", err)
	}
	return res.LastInsertId()
}
