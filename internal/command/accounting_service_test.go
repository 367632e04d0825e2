package command

import (
	"context"
	"testing"
	"time"

	"github.com/popugtracker/accounting/internal/events"
	"github.com/popugtracker/accounting/internal/models"
)

func TestCreateUserWorker(t *testing.T) {
	ledger := newMemLedger()
	svc, stream, views := newTestAccounting(ledger)

	createWorker(t, svc, "usr-a", "a@popug.inc")

	account := ledger.account("usr-a")
	if account.Balance != 0 {
		t.Errorf("expected zero balance, got %d", account.Balance)
	}
	cycles := ledger.openCycles("usr-a")
	if len(cycles) != 1 {
		t.Fatalf("expected exactly one opened cycle, got %d", len(cycles))
	}
	today := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	if !cycles[0].StartDate.Equal(today) || !cycles[0].EndDate.Equal(today) {
		t.Errorf("expected cycle start=end=today, got start=%v end=%v", cycles[0].StartDate, cycles[0].EndDate)
	}
	if got := stream.names(); len(got) != 1 || got[0] != "account-created" {
		t.Errorf("expected [account-created], got %v", got)
	}
	if len(views.cached) != 1 || views.cached[0].UserID != "usr-a" {
		t.Errorf("expected cached view for usr-a, got %v", views.cached)
	}
}

func TestCreateUserManager(t *testing.T) {
	ledger := newMemLedger()
	svc, stream, _ := newTestAccounting(ledger)

	env := userEnv(t, "evt-mgr", events.UserPayload{ID: "usr-m", Username: "m", Role: string(models.RoleManager)})
	if err := svc.CreateUser(context.Background(), env); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if len(ledger.openCycles("usr-m")) != 0 {
		t.Error("manager must not get a billing cycle")
	}
	if ledger.state.accountByUser["usr-m"] != "" {
		t.Error("manager must not get an account")
	}
	if len(stream.published) != 0 {
		t.Errorf("expected no events, got %v", stream.names())
	}
}

func TestCreateUserDuplicateDelivery(t *testing.T) {
	ledger := newMemLedger()
	svc, stream, _ := newTestAccounting(ledger)

	createWorker(t, svc, "usr-a", "a@popug.inc")
	env := userEnv(t, "evt-user-usr-a", events.UserPayload{
		ID: "usr-a", Username: "usr-a", Role: string(models.RoleDeveloper),
	})
	if err := svc.CreateUser(context.Background(), env); err != nil {
		t.Fatalf("redelivered CreateUser must be a no-op, got %v", err)
	}

	if len(ledger.openCycles("usr-a")) != 1 {
		t.Error("duplicate delivery opened a second cycle")
	}
	if got := stream.names(); len(got) != 1 {
		t.Errorf("duplicate delivery published extra events: %v", got)
	}
}

func TestTaskCreatedChargesAssignmentFee(t *testing.T) {
	ledger := newMemLedger()
	svc, stream, _ := newTestAccounting(ledger)

	createWorker(t, svc, "usr-a", "a@popug.inc")
	createTask(t, svc, "tsk-1", "usr-a", 10, 25)

	if got := ledger.account("usr-a").Balance; got != -10 {
		t.Errorf("expected balance -10, got %d", got)
	}
	txns := ledger.transactionsOf("usr-a")
	if len(txns) != 1 {
		t.Fatalf("expected one transaction, got %d", len(txns))
	}
	txn := txns[0]
	if txn.Type != models.TransactionWithdraw || txn.Credit != 10 || txn.Debit != 0 {
		t.Errorf("expected WITHDRAW credit=10, got %+v", txn)
	}
	cycles := ledger.openCycles("usr-a")
	if txn.BillingCycleID != cycles[0].ID {
		t.Error("transaction not linked to the current cycle")
	}
	want := []string{"account-created", "transaction-created", "account-updated", "task-updated"}
	got := stream.names()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestTaskCompletedDepositsCompletionPrice(t *testing.T) {
	ledger := newMemLedger()
	svc, _, _ := newTestAccounting(ledger)

	createWorker(t, svc, "usr-a", "a@popug.inc")
	createTask(t, svc, "tsk-1", "usr-a", 10, 25)

	env := taskEnv(t, "evt-done-1", events.TaskPayload{
		ID: "tsk-1", UserID: "usr-a", AssignedPrice: 10, CompletedPrice: 25,
		Status: string(models.TaskCompleted), Date: testDay,
	})
	if err := svc.HandleTaskCompleted(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskCompleted: %v", err)
	}

	if got := ledger.account("usr-a").Balance; got != 15 {
		t.Errorf("expected balance 15, got %d", got)
	}
	txns := ledger.transactionsOf("usr-a")
	if len(txns) != 2 {
		t.Fatalf("expected two transactions, got %d", len(txns))
	}
	deposit := txns[1]
	if deposit.Type != models.TransactionDeposit || deposit.Debit != 25 || deposit.Credit != 0 {
		t.Errorf("expected DEPOSIT debit=25, got %+v", deposit)
	}
	if ledger.state.tasks["tsk-1"].Status != models.TaskCompleted {
		t.Error("task mirror not marked completed")
	}
}

func TestTaskCompletedDuplicateIsNoOp(t *testing.T) {
	ledger := newMemLedger()
	svc, _, _ := newTestAccounting(ledger)

	createWorker(t, svc, "usr-a", "a@popug.inc")
	createTask(t, svc, "tsk-1", "usr-a", 10, 25)

	payload := events.TaskPayload{
		ID: "tsk-1", UserID: "usr-a", AssignedPrice: 10, CompletedPrice: 25,
		Status: string(models.TaskCompleted), Date: testDay,
	}
	if err := svc.HandleTaskCompleted(context.Background(), taskEnv(t, "evt-done-1", payload)); err != nil {
		t.Fatalf("HandleTaskCompleted: %v", err)
	}
	// Same event redelivered, and a distinct duplicate completion event.
	if err := svc.HandleTaskCompleted(context.Background(), taskEnv(t, "evt-done-1", payload)); err != nil {
		t.Fatalf("redelivery must be a no-op, got %v", err)
	}
	if err := svc.HandleTaskCompleted(context.Background(), taskEnv(t, "evt-done-2", payload)); err != nil {
		t.Fatalf("duplicate completion must be a no-op, got %v", err)
	}

	if got := ledger.account("usr-a").Balance; got != 15 {
		t.Errorf("expected balance 15 after duplicates, got %d", got)
	}
	if got := len(ledger.transactionsOf("usr-a")); got != 2 {
		t.Errorf("expected two transactions after duplicates, got %d", got)
	}
}

func TestTaskCompletedReusedSourceEventRollsBack(t *testing.T) {
	ledger := newMemLedger()
	svc, stream, _ := newTestAccounting(ledger)

	createWorker(t, svc, "usr-a", "a@popug.inc")
	createTask(t, svc, "tsk-1", "usr-a", 10, 25)
	createTask(t, svc, "tsk-2", "usr-a", 10, 25)

	if err := svc.HandleTaskCompleted(context.Background(), taskEnv(t, "evt-done-1", events.TaskPayload{
		ID: "tsk-1", UserID: "usr-a", CompletedPrice: 25,
		Status: string(models.TaskCompleted), Date: testDay,
	})); err != nil {
		t.Fatalf("HandleTaskCompleted: %v", err)
	}
	published := len(stream.published)
	balance := ledger.account("usr-a").Balance

	// A different task arriving under an already-recorded event id: the
	// status guard does not apply, so the unique source-event constraint
	// must abort the whole transaction.
	if err := svc.HandleTaskCompleted(context.Background(), taskEnv(t, "evt-done-1", events.TaskPayload{
		ID: "tsk-2", UserID: "usr-a", CompletedPrice: 25,
		Status: string(models.TaskCompleted), Date: testDay,
	})); err != nil {
		t.Fatalf("reused source event must be a no-op, got %v", err)
	}

	if got := ledger.account("usr-a").Balance; got != balance {
		t.Errorf("balance moved on rolled-back deposit: %d -> %d", balance, got)
	}
	if ledger.state.tasks["tsk-2"].Status == models.TaskCompleted {
		t.Error("status change must roll back with the deposit")
	}
	if got := len(stream.published); got != published {
		t.Errorf("rolled-back deposit was announced: %v", stream.names()[published:])
	}
}

func TestTaskReassignedChargesNewAssigneeOnly(t *testing.T) {
	ledger := newMemLedger()
	svc, _, _ := newTestAccounting(ledger)

	createWorker(t, svc, "usr-a", "a@popug.inc")
	createWorker(t, svc, "usr-b", "b@popug.inc")
	createTask(t, svc, "tsk-1", "usr-a", 10, 25)

	env := taskEnv(t, "evt-assign-1", events.TaskPayload{
		ID: "tsk-1", UserID: "usr-b", AssignedPrice: 10, CompletedPrice: 25,
		Status: string(models.TaskAssigned), Date: testDay,
	})
	if err := svc.HandleTaskAssigned(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskAssigned: %v", err)
	}

	// B is charged the assignment fee; A is not refunded.
	if got := ledger.account("usr-b").Balance; got != -10 {
		t.Errorf("expected new assignee balance -10, got %d", got)
	}
	if got := ledger.account("usr-a").Balance; got != -10 {
		t.Errorf("expected previous assignee balance unchanged at -10, got %d", got)
	}
	if ledger.state.tasks["tsk-1"].UserID != "usr-b" {
		t.Error("task owner not reassigned")
	}
}

func TestBalanceEqualsFoldOfTransactions(t *testing.T) {
	ledger := newMemLedger()
	svc, _, _ := newTestAccounting(ledger)

	createWorker(t, svc, "usr-a", "a@popug.inc")
	createWorker(t, svc, "usr-b", "b@popug.inc")

	// Interleave activity on both accounts; each balance must equal the
	// fold of its own transactions, independent of the other account.
	createTask(t, svc, "tsk-1", "usr-a", 7, 30)
	createTask(t, svc, "tsk-2", "usr-b", 11, 12)
	createTask(t, svc, "tsk-3", "usr-a", 4, 9)
	for _, taskID := range []string{"tsk-1", "tsk-3"} {
		env := taskEnv(t, "evt-done-"+taskID, events.TaskPayload{
			ID: taskID, UserID: "usr-a", Status: string(models.TaskCompleted), Date: testDay,
			CompletedPrice: ledger.state.tasks[taskID].CompletedPrice,
		})
		if err := svc.HandleTaskCompleted(context.Background(), env); err != nil {
			t.Fatalf("HandleTaskCompleted(%s): %v", taskID, err)
		}
	}

	for _, userID := range []string{"usr-a", "usr-b"} {
		var fold int64
		for _, txn := range ledger.transactionsOf(userID) {
			txn := txn
			fold += txn.BalanceDelta()
		}
		if got := ledger.account(userID).Balance; got != fold {
			t.Errorf("%s: balance %d does not equal transaction fold %d", userID, got, fold)
		}
	}
	if got := ledger.account("usr-a").Balance; got != -7+30-4+9 {
		t.Errorf("expected usr-a balance 28, got %d", got)
	}
	if got := ledger.account("usr-b").Balance; got != -11 {
		t.Errorf("expected usr-b balance -11, got %d", got)
	}
}

func TestHandlersRejectUnknownVersion(t *testing.T) {
	ledger := newMemLedger()
	svc, _, _ := newTestAccounting(ledger)

	env := events.Envelope{EventID: "evt-1", EventVersion: "v9", Data: []byte(`{}`)}
	if err := svc.CreateUser(context.Background(), env); err == nil {
		t.Error("expected unknown version error")
	}
}
