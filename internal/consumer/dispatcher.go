package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/popugtracker/accounting/internal/events"
	"github.com/popugtracker/accounting/internal/worker"
)

// ErrNoHandler marks a (topic, key) combination with no mapping — a
// configuration/schema mismatch. The message is dropped, not retried.
var ErrNoHandler = fmt.Errorf("no handler mapped")

type HandlerFunc func(ctx context.Context, env events.Envelope) error

// Handler binds business logic to its retry policy.
type Handler struct {
	Name   string
	Retry  worker.RetryPolicy
	Handle HandlerFunc
}

// Table is the static two-level routing map, topic → key → handler,
// built once at startup.
type Table map[string]map[string]Handler

type jobQueue interface {
	Submit(worker.Job)
}

// Dispatcher routes decoded messages into the worker pool. Routing is
// fire-and-forget: ingestion rate is decoupled from processing rate.
type Dispatcher struct {
	table Table
	pool  jobQueue
}

func NewDispatcher(table Table, pool jobQueue) *Dispatcher {
	return &Dispatcher{table: table, pool: pool}
}

// Topics returns the topics the table routes, sorted for stable
// subscription order.
func (d *Dispatcher) Topics() []string {
	topics := make([]string, 0, len(d.table))
	for topic := range d.table {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch enqueues the mapped handler for asynchronous execution.
// Returns ErrNoHandler when the (topic, key) pair is unmapped.
func (d *Dispatcher) Dispatch(topic, key string, env events.Envelope) error {
	keys, ok := d.table[topic]
	if !ok {
		return fmt.Errorf("%w: topic=%s key=%s", ErrNoHandler, topic, key)
	}
	handler, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: topic=%s key=%s", ErrNoHandler, topic, key)
	}
	d.pool.Submit(worker.Job{
		Name:  handler.Name,
		Key:   orderingKey(topic, env),
		Retry: handler.Retry,
		Run: func(ctx context.Context) error {
			return handler.Handle(ctx, env)
		},
	})
	return nil
}

// orderingKey pins all events about one entity to one worker queue, so
// same-entity handlers never reorder. Falls back to the topic when the
// payload carries no public id.
func orderingKey(topic string, env events.Envelope) string {
	var peek struct {
		PublicID string `json:"public_id"`
	}
	if err := json.Unmarshal(env.Data, &peek); err == nil && peek.PublicID != "" {
		return peek.PublicID
	}
	return topic
}
