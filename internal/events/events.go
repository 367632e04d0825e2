package events

import (
	"encoding/json"
	"time"
)

// Topics (stream names)
const (
	UserStream        = "user-stream"
	TaskLifecycle     = "task-lifecycle"
	TaskStream        = "task-stream"
	AccountStream     = "account-stream"
	TransactionStream = "transaction-stream"
)

// Event keys. Together with the topic they select the handler.
const (
	KeyCreated   = "created"
	KeyAssigned  = "assigned"
	KeyCompleted = "completed"
	KeyUpdated   = "updated"
)

// Envelope is the wire representation of every event. EventVersion
// selects the payload serializer on both sides; there is no implicit
// global version. EventID identifies the causing event for idempotency.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventVersion string          `json:"event_version"`
	ProducedAt   time.Time       `json:"produced_at"`
	Data         json.RawMessage `json:"data"`
}
