package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/popugtracker/accounting/internal/events"
	"github.com/popugtracker/accounting/internal/models"
	"github.com/popugtracker/accounting/internal/repository"
)

// AccountingService holds the event handlers of the accounting side.
// Every handler runs its reads and writes as one atomic ledger
// transaction keyed to the causing event, then emits derived events.
type AccountingService struct {
	ledger repository.Ledger
	stream EventStreamer
	views  ViewCacher
	now    func() time.Time
}

func NewAccountingService(ledger repository.Ledger, stream EventStreamer, views ViewCacher) *AccountingService {
	return &AccountingService{
		ledger: ledger,
		stream: stream,
		views:  views,
		now:    time.Now,
	}
}

// CreateUser mirrors a user from the user stream. Workers additionally
// get their first billing cycle (start = end = today) and a zero-balance
// account.
func (s *AccountingService) CreateUser(ctx context.Context, env events.Envelope) error {
	schema, err := events.SchemaFor(env.EventVersion)
	if err != nil {
		return err
	}
	payload, err := schema.DecodeUser(env.Data)
	if err != nil {
		return err
	}

	user := &models.User{
		ID:        payload.ID,
		Username:  payload.Username,
		Role:      models.Role(payload.Role),
		FullName:  payload.FullName,
		Email:     payload.Email,
		CreatedAt: s.now().UTC(),
	}

	var account *models.Account
	err = s.ledger.Atomic(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUser(user.ID); err == nil {
			return fmt.Errorf("user %s: %w", user.ID, errAlreadyProcessed)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := tx.CreateUser(user); err != nil {
			return err
		}
		if !user.Role.IsWorker() {
			return nil
		}
		today := dateOnly(s.now())
		if err := tx.CreateBillingCycle(&models.BillingCycle{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			StartDate: today,
			EndDate:   today,
			Status:    models.CycleOpened,
		}); err != nil {
			return err
		}
		account = &models.Account{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Balance:   0,
			CreatedAt: s.now().UTC(),
			UpdatedAt: s.now().UTC(),
		}
		return tx.CreateAccount(account)
	})
	if err != nil {
		return noOpOnDuplicate("create-user", err)
	}

	if account != nil {
		s.views.CacheView(ctx, accountView(account))
		if err := s.stream.AccountCreated(ctx, env.EventVersion, account); err != nil {
			log.Printf("Failed to publish account created event: %v", err)
		}
	}
	return nil
}

// HandleTaskCreated mirrors the task and charges the assignment fee to
// its owner.
func (s *AccountingService) HandleTaskCreated(ctx context.Context, env events.Envelope) error {
	schema, err := events.SchemaFor(env.EventVersion)
	if err != nil {
		return err
	}
	payload, err := schema.DecodeTask(env.Data)
	if err != nil {
		return err
	}

	task := &models.Task{
		ID:             payload.ID,
		UserID:         payload.UserID,
		Description:    payload.Description,
		AssignedPrice:  payload.AssignedPrice,
		CompletedPrice: payload.CompletedPrice,
		Status:         models.TaskStatus(payload.Status),
		Date:           payload.Date,
	}

	var (
		account *models.Account
		txn     *models.Transaction
	)
	err = s.ledger.Atomic(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetTask(task.ID); err == nil {
			return fmt.Errorf("task %s: %w", task.ID, errAlreadyProcessed)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := tx.CreateTask(task); err != nil {
			return err
		}
		account, txn, err = s.charge(tx, env.EventID, task)
		return err
	})
	if err != nil {
		return noOpOnDuplicate("task-created", err)
	}

	s.announceCharge(ctx, env.EventVersion, account, txn)
	if err := s.stream.TaskUpdated(ctx, env.EventVersion, task); err != nil {
		log.Printf("Failed to publish task updated event: %v", err)
	}
	return nil
}

// HandleTaskAssigned moves the task to its new owner and charges the
// assignment fee again. The previous owner keeps the earlier charge:
// one assignment fee per assignee is the specified billing policy.
func (s *AccountingService) HandleTaskAssigned(ctx context.Context, env events.Envelope) error {
	schema, err := events.SchemaFor(env.EventVersion)
	if err != nil {
		return err
	}
	payload, err := schema.DecodeTask(env.Data)
	if err != nil {
		return err
	}

	var (
		account *models.Account
		txn     *models.Transaction
	)
	err = s.ledger.Atomic(ctx, func(tx repository.Tx) error {
		task, err := tx.GetTask(payload.ID)
		if err != nil {
			return err
		}
		if err := tx.SetTaskOwner(task.ID, payload.UserID); err != nil {
			return err
		}
		if err := tx.SetTaskStatus(task.ID, models.TaskAssigned); err != nil {
			return err
		}
		task.UserID = payload.UserID
		account, txn, err = s.charge(tx, env.EventID, task)
		return err
	})
	if err != nil {
		return noOpOnDuplicate("task-assigned", err)
	}

	s.announceCharge(ctx, env.EventVersion, account, txn)
	return nil
}

// HandleTaskCompleted pays the completion price to the task owner.
// Completion is terminal: a task already completed is a no-op.
func (s *AccountingService) HandleTaskCompleted(ctx context.Context, env events.Envelope) error {
	schema, err := events.SchemaFor(env.EventVersion)
	if err != nil {
		return err
	}
	payload, err := schema.DecodeTask(env.Data)
	if err != nil {
		return err
	}

	var (
		account *models.Account
		txn     *models.Transaction
	)
	err = s.ledger.Atomic(ctx, func(tx repository.Tx) error {
		task, err := tx.GetTask(payload.ID)
		if err != nil {
			return err
		}
		if task.Status == models.TaskCompleted {
			return fmt.Errorf("task %s: %w", task.ID, errAlreadyProcessed)
		}
		if err := tx.SetTaskStatus(task.ID, models.TaskCompleted); err != nil {
			return err
		}
		acc, err := tx.AccountForUser(task.UserID)
		if err != nil {
			return err
		}
		cycle, err := tx.CurrentCycle(task.UserID)
		if err != nil {
			return err
		}
		deposit := &models.Transaction{
			ID:             uuid.NewString(),
			SourceEventID:  env.EventID,
			AccountID:      acc.ID,
			BillingCycleID: cycle.ID,
			Type:           models.TransactionDeposit,
			Debit:          task.CompletedPrice,
			Purpose:        fmt.Sprintf("Deposit for completed task #%s", task.ID),
			CreatedAt:      s.now().UTC(),
		}
		balance, err := tx.CreateTransaction(deposit)
		if err != nil {
			return err
		}
		acc.Balance = balance
		// Only a recorded deposit is ever announced.
		account, txn = acc, deposit
		return nil
	})
	if err != nil {
		return noOpOnDuplicate("task-completed", err)
	}

	s.announceCharge(ctx, env.EventVersion, account, txn)
	return nil
}

// charge withdraws the assignment fee from the task owner's account
// within the owner's current billing cycle.
func (s *AccountingService) charge(tx repository.Tx, eventID string, task *models.Task) (*models.Account, *models.Transaction, error) {
	account, err := tx.AccountForUser(task.UserID)
	if err != nil {
		return nil, nil, err
	}
	cycle, err := tx.CurrentCycle(task.UserID)
	if err != nil {
		return nil, nil, err
	}
	txn := &models.Transaction{
		ID:             uuid.NewString(),
		SourceEventID:  eventID,
		AccountID:      account.ID,
		BillingCycleID: cycle.ID,
		Type:           models.TransactionWithdraw,
		Credit:         task.AssignedPrice,
		Purpose:        fmt.Sprintf("Withdraw for assigned task #%s", task.ID),
		CreatedAt:      s.now().UTC(),
	}
	balance, err := tx.CreateTransaction(txn)
	if err != nil {
		return nil, nil, err
	}
	account.Balance = balance
	return account, txn, nil
}

// announceCharge emits the derived events after a committed balance
// change and warms the read model.
func (s *AccountingService) announceCharge(ctx context.Context, version string, account *models.Account, txn *models.Transaction) {
	if account == nil || txn == nil {
		return
	}
	s.views.CacheView(ctx, accountView(account))
	if err := s.stream.TransactionCreated(ctx, version, txn); err != nil {
		log.Printf("Failed to publish transaction created event: %v", err)
	}
	if err := s.stream.AccountUpdated(ctx, version, account); err != nil {
		log.Printf("Failed to publish account updated event: %v", err)
	}
}
