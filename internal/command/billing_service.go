package command

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/popugtracker/accounting/internal/models"
	"github.com/popugtracker/accounting/internal/repository"
	"github.com/popugtracker/accounting/internal/worker"
)

// ReportSender is the payout report sink. Delivery is fire-and-forget:
// the ledger transaction never waits on it.
type ReportSender interface {
	Send(ctx context.Context, email string, amount int64) error
}

// BillingService drives the billing cycle state machine:
// OPENED --close--> CLOSED, with the next OPENED cycle created
// immediately as a side effect of closing. No cycle ever reopens.
type BillingService struct {
	ledger  repository.Ledger
	stream  EventStreamer
	views   ViewCacher
	pool    JobQueue
	reports ReportSender
	now     func() time.Time
}

func NewBillingService(ledger repository.Ledger, stream EventStreamer, views ViewCacher, pool JobQueue, reports ReportSender) *BillingService {
	return &BillingService{
		ledger:  ledger,
		stream:  stream,
		views:   views,
		pool:    pool,
		reports: reports,
		now:     time.Now,
	}
}

// CloseAll fans out one independent close per worker user. Each close is
// its own job and its own ledger transaction, so one user's failure
// never blocks the others.
func (s *BillingService) CloseAll(ctx context.Context, version string) error {
	var workers []models.User
	err := s.ledger.Atomic(ctx, func(tx repository.Tx) error {
		var err error
		workers, err = tx.ListWorkers()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list workers: %w", err)
	}

	for _, w := range workers {
		w := w
		s.pool.Submit(worker.Job{
			Name:  "close-billing-cycle",
			Key:   w.ID,
			Retry: HandlerRetry,
			Run: func(ctx context.Context) error {
				return s.CloseCycle(ctx, w.ID, version)
			},
		})
	}
	log.Printf("Scheduled billing cycle close for %d workers", len(workers))
	return nil
}

// CloseCycle settles one worker's open cycle: pay out a positive
// balance, close the cycle and open the next one starting the day after
// the closed cycle ends. A cycle already settled in this period is left
// alone — double invocation must never produce a second payout.
func (s *BillingService) CloseCycle(ctx context.Context, userID, version string) error {
	var (
		user    *models.User
		account *models.Account
		payout  *models.Transaction
	)
	err := s.ledger.Atomic(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUser(userID)
		if err != nil {
			return err
		}
		if !user.Role.IsWorker() {
			return nil
		}
		// Lock the account first: settlement serialises against any
		// in-flight accrual for the same worker.
		account, err = tx.AccountForUser(userID)
		if err != nil {
			return err
		}
		cycle, err := tx.CurrentCycle(userID)
		if err != nil {
			return err
		}
		if cycle.EndDate.After(dateOnly(s.now())) {
			return fmt.Errorf("cycle %s already settled this period: %w", cycle.ID, errAlreadyProcessed)
		}

		if account.Balance > 0 {
			payout = &models.Transaction{
				ID:             uuid.NewString(),
				SourceEventID:  "payout:" + cycle.ID,
				AccountID:      account.ID,
				BillingCycleID: cycle.ID,
				Type:           models.TransactionPayment,
				Credit:         account.Balance,
				Purpose:        "Payout for completed tasks",
				CreatedAt:      s.now().UTC(),
			}
			balance, err := tx.CreateTransaction(payout)
			if err != nil {
				return err
			}
			account.Balance = balance
		}

		closed, err := tx.CloseCycle(cycle.ID)
		if err != nil {
			return err
		}
		if !closed {
			return fmt.Errorf("cycle %s: %w", cycle.ID, errAlreadyProcessed)
		}

		next := cycle.EndDate.AddDate(0, 0, 1)
		return tx.CreateBillingCycle(&models.BillingCycle{
			ID:        uuid.NewString(),
			UserID:    userID,
			StartDate: next,
			EndDate:   next,
			Status:    models.CycleOpened,
		})
	})
	if err != nil {
		return noOpOnDuplicate("close-billing-cycle", err)
	}
	if account == nil {
		return nil
	}

	s.views.CacheView(ctx, accountView(account))
	if err := s.stream.AccountUpdated(ctx, version, account); err != nil {
		log.Printf("Failed to publish account updated event: %v", err)
	}
	if payout == nil {
		return nil
	}
	if err := s.stream.TransactionCreated(ctx, version, payout); err != nil {
		log.Printf("Failed to publish transaction created event: %v", err)
	}

	email, amount := user.Email, payout.Credit
	s.pool.Submit(worker.Job{
		Name:  "send-payout-report",
		Key:   userID,
		Retry: ReportRetry,
		Run: func(ctx context.Context) error {
			return s.reports.Send(ctx, email, amount)
		},
	})
	return nil
}
