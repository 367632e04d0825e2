package command

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/popugtracker/accounting/internal/models"
	"github.com/popugtracker/accounting/internal/repository"
	"github.com/popugtracker/accounting/internal/worker"
)

// Retry budgets for asynchronous work.
var (
	HandlerRetry = worker.RetryPolicy{MaxAttempts: 3, Backoff: 5 * time.Second}
	ReportRetry  = worker.RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Second}
)

// EventStreamer emits the outbound domain events. Publishing happens
// after commit and is best-effort; failures are logged, never retried
// against the ledger.
type EventStreamer interface {
	AccountCreated(ctx context.Context, version string, a *models.Account) error
	AccountUpdated(ctx context.Context, version string, a *models.Account) error
	TransactionCreated(ctx context.Context, version string, t *models.Transaction) error
	TaskUpdated(ctx context.Context, version string, t *models.Task) error
}

// ViewCacher warms the account read model after a balance change.
type ViewCacher interface {
	CacheView(ctx context.Context, view *models.AccountView)
}

// JobQueue schedules asynchronous follow-up work.
type JobQueue interface {
	Submit(worker.Job)
}

// errAlreadyProcessed aborts a handler transaction when the event was
// seen before. The rollback undoes any partial writes and the event is
// treated as handled.
var errAlreadyProcessed = errors.New("event already processed")

// noOpOnDuplicate maps duplicate-event outcomes to success so a
// redelivered event is acknowledged instead of double-charging.
func noOpOnDuplicate(name string, err error) error {
	if errors.Is(err, errAlreadyProcessed) || errors.Is(err, repository.ErrDuplicateTransaction) {
		log.Printf("%s: duplicate event, skipping: %v", name, err)
		return nil
	}
	return err
}

func accountView(a *models.Account) *models.AccountView {
	return &models.AccountView{
		AccountID: a.ID,
		UserID:    a.UserID,
		Balance:   a.Balance,
		UpdatedAt: a.UpdatedAt,
	}
}

// dateOnly truncates to a UTC calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
