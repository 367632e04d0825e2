package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/popugtracker/accounting/internal/models"
)

// Supported schema versions. A version travels with every event and is
// resolved here; multiple versions may be supported concurrently.
const VersionV1 = "v1"

var ErrUnknownVersion = fmt.Errorf("unknown event version")

var validate = validator.New()

// v1 payload shapes. Field names follow the wire contract, not the Go
// models, so the two can evolve independently.

type UserPayload struct {
	ID       string `json:"public_id" validate:"required"`
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

type TaskPayload struct {
	ID             string    `json:"public_id" validate:"required"`
	UserID         string    `json:"user_id" validate:"required"`
	Description    string    `json:"description"`
	AssignedPrice  int64     `json:"assigned_price" validate:"gte=0"`
	CompletedPrice int64     `json:"completed_price" validate:"gte=0"`
	Status         string    `json:"status" validate:"required"`
	Date           time.Time `json:"date"`
}

type AccountPayload struct {
	ID      string `json:"public_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	Balance int64  `json:"balance"`
}

type TransactionPayload struct {
	ID             string    `json:"public_id" validate:"required"`
	AccountID      string    `json:"account_id" validate:"required"`
	BillingCycleID string    `json:"billing_cycle_id" validate:"required"`
	Type           string    `json:"type" validate:"required"`
	Debit          int64     `json:"debit" validate:"gte=0"`
	Credit         int64     `json:"credit" validate:"gte=0"`
	Purpose        string    `json:"purpose"`
	Datetime       time.Time `json:"datetime"`
}

// Schema bundles the serializers of one event version.
type Schema struct {
	Version string

	DecodeUser func(raw json.RawMessage) (*UserPayload, error)
	DecodeTask func(raw json.RawMessage) (*TaskPayload, error)

	UserData        func(u *models.User) any
	TaskData        func(t *models.Task) any
	AccountData     func(a *models.Account) any
	TransactionData func(t *models.Transaction) any
}

var schemas = map[string]*Schema{
	VersionV1: v1Schema(),
}

// SchemaFor resolves the serializer set for an event version.
func SchemaFor(version string) (*Schema, error) {
	s, ok := schemas[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return s, nil
}

func v1Schema() *Schema {
	return &Schema{
		Version: VersionV1,
		DecodeUser: func(raw json.RawMessage) (*UserPayload, error) {
			var p UserPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("failed to decode user payload: %w", err)
			}
			if err := validate.Struct(&p); err != nil {
				return nil, fmt.Errorf("invalid user payload: %w", err)
			}
			return &p, nil
		},
		DecodeTask: func(raw json.RawMessage) (*TaskPayload, error) {
			var p TaskPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("failed to decode task payload: %w", err)
			}
			if err := validate.Struct(&p); err != nil {
				return nil, fmt.Errorf("invalid task payload: %w", err)
			}
			return &p, nil
		},
		UserData: func(u *models.User) any {
			return UserPayload{
				ID:       u.ID,
				Username: u.Username,
				Role:     string(u.Role),
				FullName: u.FullName,
				Email:    u.Email,
			}
		},
		TaskData: func(t *models.Task) any {
			return TaskPayload{
				ID:             t.ID,
				UserID:         t.UserID,
				Description:    t.Description,
				AssignedPrice:  t.AssignedPrice,
				CompletedPrice: t.CompletedPrice,
				Status:         string(t.Status),
				Date:           t.Date,
			}
		},
		AccountData: func(a *models.Account) any {
			return AccountPayload{
				ID:      a.ID,
				UserID:  a.UserID,
				Balance: a.Balance,
			}
		},
		TransactionData: func(t *models.Transaction) any {
			return TransactionPayload{
				ID:             t.ID,
				AccountID:      t.AccountID,
				BillingCycleID: t.BillingCycleID,
				Type:           string(t.Type),
				Debit:          t.Debit,
				Credit:         t.Credit,
				Purpose:        t.Purpose,
				Datetime:       t.CreatedAt,
			}
		},
	}
}
