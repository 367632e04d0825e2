package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/popugtracker/accounting/internal/events"
)

// Consumer is the dispatch loop: it polls the event log with a bounded
// block, decodes envelopes and hands them to the dispatcher. It owns its
// broker connection and releases it on every exit path.
type Consumer struct {
	client     *redis.Client
	group      string
	name       string
	dispatcher *Dispatcher
	batchSize  int64
	block      time.Duration
}

type Config struct {
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
}

func New(client *redis.Client, config Config, dispatcher *Dispatcher) *Consumer {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	return &Consumer{
		client:     client,
		group:      config.Group,
		name:       config.Consumer,
		dispatcher: dispatcher,
		batchSize:  config.BatchSize,
		block:      config.Block,
	}
}

// Run polls until ctx is cancelled or the group setup fails. Transport
// errors are logged and skipped; they never stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.client.Close(); err != nil {
			log.Printf("Failed to close broker connection: %v", err)
		}
	}()

	topics := c.dispatcher.Topics()
	for _, topic := range topics {
		err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group for %s: %w", topic, err)
		}
	}

	// XReadGroup stream arguments: all topics, then one ">" per topic.
	streams := make([]string, 0, 2*len(topics))
	streams = append(streams, topics...)
	for range topics {
		streams = append(streams, ">")
	}

	log.Printf("Consumer started: group=%s consumer=%s topics=%v", c.group, c.name, topics)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Consumer stopping: group=%s", c.group)
			return ctx.Err()
		default:
		}

		result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  streams,
			Count:    c.batchSize,
			Block:    c.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Consumer stopping: group=%s", c.group)
				return ctx.Err()
			}
			log.Printf("Failed to read from streams: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, message := range stream.Messages {
				c.process(ctx, stream.Stream, message)
			}
		}
	}
}

// process decodes and dispatches one message, then acks it. Malformed
// messages and unmapped (topic, key) pairs are logged and dropped; the
// work queue owns retries from here on.
func (c *Consumer) process(ctx context.Context, topic string, message redis.XMessage) {
	key, envelope, err := decode(message)
	if err != nil {
		log.Printf("Skipping malformed message %s on %s: %v", message.ID, topic, err)
	} else if err := c.dispatcher.Dispatch(topic, key, envelope); err != nil {
		log.Printf("Dropping message %s: %v", message.ID, err)
	}

	if err := c.client.XAck(ctx, topic, c.group, message.ID).Err(); err != nil {
		log.Printf("Failed to ACK message %s: %v", message.ID, err)
	}
}

func decode(message redis.XMessage) (string, events.Envelope, error) {
	var envelope events.Envelope
	key, ok := message.Values["key"].(string)
	if !ok {
		return "", envelope, fmt.Errorf("missing routing key")
	}
	raw, ok := message.Values["event"].(string)
	if !ok {
		return "", envelope, fmt.Errorf("missing event payload")
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return "", envelope, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return key, envelope, nil
}
