package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/popugtracker/accounting/internal/models"
)

// Store is the PostgreSQL ledger store (source of truth).
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Atomic runs fn inside one database transaction. Any error from fn
// rolls everything back.
func (s *Store) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqlTx{tx: dbTx}); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) CreateUser(u *models.User) error {
	query := `
		INSERT INTO users (public_id, username, role, full_name, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.Exec(query, u.ID, u.Username, u.Role, nullString(u.FullName), nullString(u.Email), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (t *sqlTx) GetUser(id string) (*models.User, error) {
	query := `
		SELECT public_id, username, role, COALESCE(full_name, ''), COALESCE(email, ''), created_at
		FROM users
		WHERE public_id = $1
	`
	var u models.User
	err := t.tx.QueryRow(query, id).Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (t *sqlTx) ListWorkers() ([]models.User, error) {
	query := `
		SELECT public_id, username, role, COALESCE(full_name, ''), COALESCE(email, ''), created_at
		FROM users
		WHERE role NOT IN ($1, $2)
		ORDER BY created_at
	`
	rows, err := t.tx.Query(query, models.RoleAdmin, models.RoleManager)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var workers []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		workers = append(workers, u)
	}
	return workers, rows.Err()
}

func (t *sqlTx) CreateAccount(a *models.Account) error {
	query := `
		INSERT INTO accounts (public_id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(query, a.ID, a.UserID, a.Balance, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// AccountForUser locks the account row (FOR UPDATE), serialising all
// balance mutations per account within concurrent transactions.
func (t *sqlTx) AccountForUser(userID string) (*models.Account, error) {
	query := `
		SELECT public_id, user_id, balance, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE
	`
	var a models.Account
	err := t.tx.QueryRow(query, userID).Scan(&a.ID, &a.UserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account for user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (t *sqlTx) CreateBillingCycle(c *models.BillingCycle) error {
	query := `
		INSERT INTO billing_cycles (public_id, user_id, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.tx.Exec(query, c.ID, c.UserID, c.StartDate, c.EndDate, c.Status)
	if err != nil {
		return fmt.Errorf("failed to create billing cycle: %w", err)
	}
	return nil
}

func (t *sqlTx) CurrentCycle(userID string) (*models.BillingCycle, error) {
	query := `
		SELECT public_id, user_id, start_date, end_date, status
		FROM billing_cycles
		WHERE user_id = $1 AND status = $2
		ORDER BY start_date DESC
		LIMIT 1
	`
	var c models.BillingCycle
	err := t.tx.QueryRow(query, userID, models.CycleOpened).Scan(&c.ID, &c.UserID, &c.StartDate, &c.EndDate, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open billing cycle for user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get billing cycle: %w", err)
	}
	return &c, nil
}

func (t *sqlTx) CloseCycle(cycleID string) (bool, error) {
	query := `
		UPDATE billing_cycles
		SET status = $2
		WHERE public_id = $1 AND status = $3
	`
	result, err := t.tx.Exec(query, cycleID, models.CycleClosed, models.CycleOpened)
	if err != nil {
		return false, fmt.Errorf("failed to close billing cycle: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows == 1, nil
}

func (t *sqlTx) CreateTask(task *models.Task) error {
	query := `
		INSERT INTO tasks (public_id, user_id, description, assigned_price, completed_price, status, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.Exec(query, task.ID, task.UserID, task.Description,
		task.AssignedPrice, task.CompletedPrice, task.Status, task.Date)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (t *sqlTx) GetTask(id string) (*models.Task, error) {
	query := `
		SELECT public_id, user_id, description, assigned_price, completed_price, status, date
		FROM tasks
		WHERE public_id = $1
	`
	var task models.Task
	err := t.tx.QueryRow(query, id).Scan(&task.ID, &task.UserID, &task.Description,
		&task.AssignedPrice, &task.CompletedPrice, &task.Status, &task.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

func (t *sqlTx) SetTaskOwner(taskID, userID string) error {
	return t.updateTask(`UPDATE tasks SET user_id = $2 WHERE public_id = $1`, taskID, userID)
}

func (t *sqlTx) SetTaskStatus(taskID string, status models.TaskStatus) error {
	return t.updateTask(`UPDATE tasks SET status = $2 WHERE public_id = $1`, taskID, status)
}

func (t *sqlTx) updateTask(query string, taskID string, arg any) error {
	result, err := t.tx.Exec(query, taskID, arg)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

func (t *sqlTx) CreateTransaction(txn *models.Transaction) (int64, error) {
	insert := `
		INSERT INTO transactions (public_id, source_event_id, account_id, billing_cycle_id, type, debit, credit, purpose, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := t.tx.Exec(insert, txn.ID, txn.SourceEventID, txn.AccountID, txn.BillingCycleID,
		txn.Type, txn.Debit, txn.Credit, txn.Purpose, txn.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return 0, fmt.Errorf("source event %s: %w", txn.SourceEventID, ErrDuplicateTransaction)
		}
		return 0, fmt.Errorf("failed to create transaction: %w", err)
	}

	update := `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE public_id = $1
		RETURNING balance
	`
	var balance int64
	if err := t.tx.QueryRow(update, txn.AccountID, txn.BalanceDelta()).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to apply balance delta: %w", err)
	}
	return balance, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
