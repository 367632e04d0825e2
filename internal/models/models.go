package models

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTester     Role = "tester"
	RoleDeveloper  Role = "developer"
	RoleAccountant Role = "accountant"
)

// IsManager reports whether the role can assign work but is never billed.
func (r Role) IsManager() bool {
	return r == RoleAdmin || r == RoleManager
}

// IsWorker reports whether the role is billable: workers own an account
// and always have exactly one opened billing cycle.
func (r Role) IsWorker() bool {
	return r == RoleTester || r == RoleDeveloper || r == RoleAccountant
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	FullName  string    `json:"fullName,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdTimestamp"`
}

type TaskStatus string

const (
	TaskCreated   TaskStatus = "created"
	TaskAssigned  TaskStatus = "assigned"
	TaskCompleted TaskStatus = "completed"
)

type Task struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Description    string     `json:"description"`
	AssignedPrice  int64      `json:"assignedPrice"`
	CompletedPrice int64      `json:"completedPrice"`
	Status         TaskStatus `json:"status"`
	Date           time.Time  `json:"date"`
}

type CycleStatus string

const (
	CycleOpened CycleStatus = "opened"
	CycleClosed CycleStatus = "closed"
)

// BillingCycle is the settlement period for one worker. Closing is
// terminal; the next cycle opens with start = end = closed end + 1 day.
type BillingCycle struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	StartDate time.Time   `json:"startDate"`
	EndDate   time.Time   `json:"endDate"`
	Status    CycleStatus `json:"status"`
}

// Account holds the payable balance of one worker, in integral units.
// Negative means the worker owes; positive means the company owes the
// worker. Balance is mutated only through transaction creation.
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdTimestamp"`
	UpdatedAt time.Time `json:"updatedTimestamp"`
}

type TransactionType string

const (
	TransactionDeposit  TransactionType = "deposit"
	TransactionWithdraw TransactionType = "withdraw"
	TransactionPayment  TransactionType = "payment"
)

// Transaction is an immutable ledger entry. SourceEventID identifies the
// causing event and carries a uniqueness constraint in the store, so a
// redelivered event can never charge twice.
type Transaction struct {
	ID             string          `json:"id"`
	SourceEventID  string          `json:"-"`
	AccountID      string          `json:"accountId"`
	BillingCycleID string          `json:"billingCycleId"`
	Type           TransactionType `json:"type"`
	Debit          int64           `json:"debit"`
	Credit         int64           `json:"credit"`
	Purpose        string          `json:"purpose"`
	CreatedAt      time.Time       `json:"createdTimestamp"`
}

// BalanceDelta is the effect of the transaction on its account balance.
// Withdrawals and payments remove money from the payable balance by
// their credit; deposits add money owed to the worker by their debit.
func (t *Transaction) BalanceDelta() int64 {
	if t.Type == TransactionWithdraw || t.Type == TransactionPayment {
		return -t.Credit
	}
	return t.Debit
}

// AccountView is the read-optimised projection of an account, keyed by
// the owning user so collaborators can resolve balances without joins.
type AccountView struct {
	AccountID string    `json:"accountId"`
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updatedTimestamp"`
}
