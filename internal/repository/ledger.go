package repository

import (
	"context"
	"errors"

	"github.com/popugtracker/accounting/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTransaction fires when a transaction with the same
	// causing event already exists. Handlers treat it as "already
	// processed" — the barrier against double-charging on redelivery.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// Ledger scopes a group of reads and writes to one atomic transaction:
// either everything inside fn commits, or nothing does.
type Ledger interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view of the ledger store. CreateTransaction is
// the single balance-mutation path; nothing else may touch a balance.
type Tx interface {
	CreateUser(u *models.User) error
	GetUser(id string) (*models.User, error)
	ListWorkers() ([]models.User, error)

	CreateAccount(a *models.Account) error
	// AccountForUser loads the user's account and locks it for the
	// remainder of the transaction.
	AccountForUser(userID string) (*models.Account, error)

	CreateBillingCycle(c *models.BillingCycle) error
	CurrentCycle(userID string) (*models.BillingCycle, error)
	// CloseCycle returns false when the cycle is already closed.
	CloseCycle(cycleID string) (bool, error)

	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	SetTaskOwner(taskID, userID string) error
	SetTaskStatus(taskID string, status models.TaskStatus) error

	// CreateTransaction appends a ledger entry, applies its balance
	// delta to the owning account and returns the new balance.
	CreateTransaction(t *models.Transaction) (int64, error)
}
