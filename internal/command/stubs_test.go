package command

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/popugtracker/accounting/internal/events"
	"github.com/popugtracker/accounting/internal/models"
	"github.com/popugtracker/accounting/internal/worker"
)

var testDay = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// ---- stub collaborators ----

type publishedEvent struct {
	name string
	data any
}

type stubStreamer struct {
	published []publishedEvent
}

func (s *stubStreamer) AccountCreated(_ context.Context, _ string, a *models.Account) error {
	s.published = append(s.published, publishedEvent{"account-created", *a})
	return nil
}

func (s *stubStreamer) AccountUpdated(_ context.Context, _ string, a *models.Account) error {
	s.published = append(s.published, publishedEvent{"account-updated", *a})
	return nil
}

func (s *stubStreamer) TransactionCreated(_ context.Context, _ string, t *models.Transaction) error {
	s.published = append(s.published, publishedEvent{"transaction-created", *t})
	return nil
}

func (s *stubStreamer) TaskUpdated(_ context.Context, _ string, t *models.Task) error {
	s.published = append(s.published, publishedEvent{"task-updated", *t})
	return nil
}

func (s *stubStreamer) names() []string {
	var out []string
	for _, e := range s.published {
		out = append(out, e.name)
	}
	return out
}

type stubViews struct {
	cached []models.AccountView
}

func (s *stubViews) CacheView(_ context.Context, view *models.AccountView) {
	s.cached = append(s.cached, *view)
}

// syncPool runs submitted jobs immediately, recording failures.
type syncPool struct {
	jobs []worker.Job
	errs []error
}

func (p *syncPool) Submit(job worker.Job) {
	p.jobs = append(p.jobs, job)
	if err := job.Run(context.Background()); err != nil {
		p.errs = append(p.errs, err)
	}
}

type sentReport struct {
	email  string
	amount int64
}

type stubReports struct {
	sent []sentReport
}

func (s *stubReports) Send(_ context.Context, email string, amount int64) error {
	s.sent = append(s.sent, sentReport{email: email, amount: amount})
	return nil
}

// ---- envelope builders ----

func userEnv(t *testing.T, eventID string, p events.UserPayload) events.Envelope {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal user payload: %v", err)
	}
	return events.Envelope{EventID: eventID, EventVersion: events.VersionV1, ProducedAt: testDay, Data: data}
}

func taskEnv(t *testing.T, eventID string, p events.TaskPayload) events.Envelope {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal task payload: %v", err)
	}
	return events.Envelope{EventID: eventID, EventVersion: events.VersionV1, ProducedAt: testDay, Data: data}
}

// ---- seeding helpers ----

func newTestAccounting(ledger *memLedger) (*AccountingService, *stubStreamer, *stubViews) {
	stream := &stubStreamer{}
	views := &stubViews{}
	svc := NewAccountingService(ledger, stream, views)
	svc.now = func() time.Time { return testDay }
	return svc, stream, views
}

func createWorker(t *testing.T, svc *AccountingService, id, email string) {
	t.Helper()
	env := userEnv(t, "evt-user-"+id, events.UserPayload{
		ID: id, Username: id, Role: string(models.RoleDeveloper), Email: email,
	})
	if err := svc.CreateUser(context.Background(), env); err != nil {
		t.Fatalf("CreateUser(%s): %v", id, err)
	}
}

func createTask(t *testing.T, svc *AccountingService, taskID, userID string, assigned, completed int64) {
	t.Helper()
	env := taskEnv(t, "evt-task-created-"+taskID, events.TaskPayload{
		ID: taskID, UserID: userID, Description: "test task",
		AssignedPrice: assigned, CompletedPrice: completed,
		Status: string(models.TaskCreated), Date: testDay,
	})
	if err := svc.HandleTaskCreated(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskCreated(%s): %v", taskID, err)
	}
}
