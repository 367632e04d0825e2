package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/popugtracker/accounting/internal/models"
)

func TestSchemaForUnknownVersion(t *testing.T) {
	if _, err := SchemaFor("v999"); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestV1TaskRoundTrip(t *testing.T) {
	schema, err := SchemaFor(VersionV1)
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}

	task := &models.Task{
		ID:             "tsk-1",
		UserID:         "usr-1",
		Description:    "fix the gate",
		AssignedPrice:  12,
		CompletedPrice: 33,
		Status:         models.TaskAssigned,
		Date:           time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(schema.TaskData(task))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	payload, err := schema.DecodeTask(raw)
	if err != nil {
		t.Fatalf("DecodeTask: %v", err)
	}
	if payload.ID != task.ID || payload.UserID != task.UserID {
		t.Errorf("identity fields lost: %+v", payload)
	}
	if payload.AssignedPrice != 12 || payload.CompletedPrice != 33 {
		t.Errorf("prices lost: %+v", payload)
	}
	if payload.Status != string(models.TaskAssigned) {
		t.Errorf("status lost: %+v", payload)
	}
}

func TestV1DecodeRejectsInvalidPayloads(t *testing.T) {
	schema, err := SchemaFor(VersionV1)
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"missing public_id", `{"username":"popug","role":"developer"}`},
		{"missing role", `{"public_id":"usr-1","username":"popug"}`},
		{"not json", `not-json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := schema.DecodeUser(json.RawMessage(tt.raw)); err == nil {
				t.Error("expected decode error")
			}
		})
	}

	if _, err := schema.DecodeTask(json.RawMessage(`{"public_id":"tsk-1","user_id":"usr-1","status":"created","assigned_price":-5}`)); err == nil {
		t.Error("expected negative price to be rejected")
	}
}
