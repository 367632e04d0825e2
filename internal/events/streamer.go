package events

import (
	"context"

	"github.com/popugtracker/accounting/internal/models"
)

// Streamer emits the outbound domain events. Every method serializes
// with the schema of the given version, so a handler triggered by a v1
// event answers in v1.
type Streamer struct {
	pub *Publisher
}

func NewStreamer(pub *Publisher) *Streamer {
	return &Streamer{pub: pub}
}

func (s *Streamer) UserCreated(ctx context.Context, version string, u *models.User) error {
	schema, err := SchemaFor(version)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, UserStream, KeyCreated, version, schema.UserData(u))
}

func (s *Streamer) AccountCreated(ctx context.Context, version string, a *models.Account) error {
	schema, err := SchemaFor(version)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, AccountStream, KeyCreated, version, schema.AccountData(a))
}

func (s *Streamer) AccountUpdated(ctx context.Context, version string, a *models.Account) error {
	schema, err := SchemaFor(version)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, AccountStream, KeyUpdated, version, schema.AccountData(a))
}

func (s *Streamer) TransactionCreated(ctx context.Context, version string, t *models.Transaction) error {
	schema, err := SchemaFor(version)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, TransactionStream, KeyCreated, version, schema.TransactionData(t))
}

func (s *Streamer) TaskUpdated(ctx context.Context, version string, t *models.Task) error {
	schema, err := SchemaFor(version)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, TaskStream, KeyUpdated, version, schema.TaskData(t))
}

// Task lifecycle events, produced by the task-tracker side.

func (s *Streamer) TaskLifecycle(ctx context.Context, version, key string, t *models.Task) error {
	schema, err := SchemaFor(version)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, TaskLifecycle, key, version, schema.TaskData(t))
}
