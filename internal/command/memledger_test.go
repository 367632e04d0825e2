package command

import (
	"context"
	"fmt"

	"github.com/popugtracker/accounting/internal/models"
	"github.com/popugtracker/accounting/internal/repository"
)

// memLedger is an in-memory repository.Ledger with real transaction
// semantics: Atomic works on a copy and swaps it in only on success, so
// a failed handler rolls back completely.
type memLedger struct {
	state *memState
}

type memState struct {
	users         map[string]models.User
	tasks         map[string]models.Task
	cycles        map[string]models.BillingCycle
	accounts      map[string]models.Account
	accountByUser map[string]string
	transactions  []models.Transaction
	sourceEvents  map[string]bool
	workerOrder   []string
}

func newMemLedger() *memLedger {
	return &memLedger{state: &memState{
		users:         map[string]models.User{},
		tasks:         map[string]models.Task{},
		cycles:        map[string]models.BillingCycle{},
		accounts:      map[string]models.Account{},
		accountByUser: map[string]string{},
		sourceEvents:  map[string]bool{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:         map[string]models.User{},
		tasks:         map[string]models.Task{},
		cycles:        map[string]models.BillingCycle{},
		accounts:      map[string]models.Account{},
		accountByUser: map[string]string{},
		transactions:  append([]models.Transaction(nil), s.transactions...),
		sourceEvents:  map[string]bool{},
		workerOrder:   append([]string(nil), s.workerOrder...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.cycles {
		c.cycles[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.accountByUser {
		c.accountByUser[k] = v
	}
	for k, v := range s.sourceEvents {
		c.sourceEvents[k] = v
	}
	return c
}

func (l *memLedger) Atomic(_ context.Context, fn func(tx repository.Tx) error) error {
	work := l.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	l.state = work
	return nil
}

// Read helpers for assertions (outside any transaction).

func (l *memLedger) account(userID string) models.Account {
	return l.state.accounts[l.state.accountByUser[userID]]
}

func (l *memLedger) openCycles(userID string) []models.BillingCycle {
	var out []models.BillingCycle
	for _, c := range l.state.cycles {
		if c.UserID == userID && c.Status == models.CycleOpened {
			out = append(out, c)
		}
	}
	return out
}

func (l *memLedger) transactionsOf(userID string) []models.Transaction {
	accountID := l.state.accountByUser[userID]
	var out []models.Transaction
	for _, t := range l.state.transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out
}

type memTx struct {
	s *memState
}

func (t *memTx) CreateUser(u *models.User) error {
	if _, ok := t.s.users[u.ID]; ok {
		return fmt.Errorf("user %s exists", u.ID)
	}
	t.s.users[u.ID] = *u
	if u.Role.IsWorker() {
		t.s.workerOrder = append(t.s.workerOrder, u.ID)
	}
	return nil
}

func (t *memTx) GetUser(id string) (*models.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return &u, nil
}

func (t *memTx) ListWorkers() ([]models.User, error) {
	var out []models.User
	for _, id := range t.s.workerOrder {
		out = append(out, t.s.users[id])
	}
	return out, nil
}

func (t *memTx) CreateAccount(a *models.Account) error {
	t.s.accounts[a.ID] = *a
	t.s.accountByUser[a.UserID] = a.ID
	return nil
}

func (t *memTx) AccountForUser(userID string) (*models.Account, error) {
	id, ok := t.s.accountByUser[userID]
	if !ok {
		return nil, fmt.Errorf("account for user %s: %w", userID, repository.ErrNotFound)
	}
	a := t.s.accounts[id]
	return &a, nil
}

func (t *memTx) CreateBillingCycle(c *models.BillingCycle) error {
	t.s.cycles[c.ID] = *c
	return nil
}

func (t *memTx) CurrentCycle(userID string) (*models.BillingCycle, error) {
	var current *models.BillingCycle
	for id := range t.s.cycles {
		c := t.s.cycles[id]
		if c.UserID != userID || c.Status != models.CycleOpened {
			continue
		}
		if current == nil || c.StartDate.After(current.StartDate) {
			current = &c
		}
	}
	if current == nil {
		return nil, fmt.Errorf("open billing cycle for user %s: %w", userID, repository.ErrNotFound)
	}
	return current, nil
}

func (t *memTx) CloseCycle(cycleID string) (bool, error) {
	c, ok := t.s.cycles[cycleID]
	if !ok {
		return false, fmt.Errorf("cycle %s: %w", cycleID, repository.ErrNotFound)
	}
	if c.Status == models.CycleClosed {
		return false, nil
	}
	c.Status = models.CycleClosed
	t.s.cycles[cycleID] = c
	return true, nil
}

func (t *memTx) CreateTask(task *models.Task) error {
	if _, ok := t.s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s exists", task.ID)
	}
	t.s.tasks[task.ID] = *task
	return nil
}

func (t *memTx) GetTask(id string) (*models.Task, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, repository.ErrNotFound)
	}
	return &task, nil
}

func (t *memTx) SetTaskOwner(taskID, userID string) error {
	task, ok := t.s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, repository.ErrNotFound)
	}
	task.UserID = userID
	t.s.tasks[taskID] = task
	return nil
}

func (t *memTx) SetTaskStatus(taskID string, status models.TaskStatus) error {
	task, ok := t.s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, repository.ErrNotFound)
	}
	task.Status = status
	t.s.tasks[taskID] = task
	return nil
}

func (t *memTx) CreateTransaction(txn *models.Transaction) (int64, error) {
	if t.s.sourceEvents[txn.SourceEventID] {
		return 0, fmt.Errorf("source event %s: %w", txn.SourceEventID, repository.ErrDuplicateTransaction)
	}
	a, ok := t.s.accounts[txn.AccountID]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", txn.AccountID, repository.ErrNotFound)
	}
	t.s.sourceEvents[txn.SourceEventID] = true
	t.s.transactions = append(t.s.transactions, *txn)
	a.Balance += txn.BalanceDelta()
	t.s.accounts[txn.AccountID] = a
	return a.Balance, nil
}
