package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadLetter records permanently failed jobs to a Redis list so failed
// work is inspectable by an operator instead of silently lost. There is
// no automatic requeue to the source topic.
type DeadLetter struct {
	client *redis.Client
	list   string
}

func NewDeadLetter(client *redis.Client, list string) *DeadLetter {
	return &DeadLetter{client: client, list: list}
}

// Record is a FailureFunc. A failed write here is logged only; dead
// lettering must never take the worker down.
func (d *DeadLetter) Record(job Job, err error) {
	entry, marshalErr := json.Marshal(map[string]any{
		"job":       job.Name,
		"key":       job.Key,
		"error":     err.Error(),
		"failed_at": time.Now().UTC(),
	})
	if marshalErr != nil {
		log.Printf("Failed to marshal dead letter for job %s: %v", job.Name, marshalErr)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if pushErr := d.client.LPush(ctx, d.list, entry).Err(); pushErr != nil {
		log.Printf("Failed to record dead letter for job %s: %v", job.Name, pushErr)
	}
}
