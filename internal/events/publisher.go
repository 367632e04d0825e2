package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher appends events to the log. Each topic is one Redis stream;
// the message carries the routing key and the JSON envelope.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish serializes data under the given schema version and appends it
// to the topic's stream under key.
func (p *Publisher) Publish(ctx context.Context, topic, key, version string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	envelope := Envelope{
		EventID:      uuid.NewString(),
		EventVersion: version,
		ProducedAt:   time.Now().UTC(),
		Data:         raw,
	}

	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			"key":   key,
			"event": envelopeJSON,
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
