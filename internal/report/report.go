package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	reportStream = "payout-reports"
	fromAddress  = "accounting@popug.inc"
	subject      = "Payout for completed tasks"
)

// Sender delivers payout reports to the report stream. The sink is
// fire-and-forget from the ledger's point of view: nothing downstream
// acknowledges delivery.
type Sender struct {
	client *redis.Client
}

func NewSender(client *redis.Client) *Sender {
	return &Sender{client: client}
}

func (s *Sender) Send(ctx context.Context, email string, amount int64) error {
	message, err := json.Marshal(map[string]any{
		"from":    fromAddress,
		"to":      email,
		"subject": subject,
		"message": amount,
		"sent_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payout report: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: reportStream,
		Values: map[string]any{"report": message},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to send payout report: %w", err)
	}
	log.Printf("Payout report for %s scheduled: amount=%d", email, amount)
	return nil
}
