package tasktracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/popugtracker/accounting/internal/events"
	"github.com/popugtracker/accounting/internal/models"
)

// The task tracker is a thin collaborator: it owns task state, mirrors
// users from the user stream and emits task-lifecycle events that the
// accounting side bills from. Pricing happens at creation time and
// travels with every lifecycle event.

var (
	ErrNotFound  = errors.New("not found")
	ErrCompleted = errors.New("task already completed")
	ErrNoWorkers = errors.New("no workers to assign")
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tracker_users (
		public_id TEXT PRIMARY KEY,
		username  TEXT NOT NULL,
		role      TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tracker_tasks (
		public_id       TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES tracker_users (public_id),
		description     TEXT NOT NULL DEFAULT '',
		assigned_price  BIGINT NOT NULL,
		completed_price BIGINT NOT NULL,
		status          TEXT NOT NULL,
		date            DATE NOT NULL
	)`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

type Service struct {
	db     *sql.DB
	stream *events.Streamer
}

func NewService(db *sql.DB, stream *events.Streamer) *Service {
	return &Service{db: db, stream: stream}
}

// MirrorUser consumes user-stream/created and stores a local copy.
// Redelivery is a no-op.
func (s *Service) MirrorUser(ctx context.Context, env events.Envelope) error {
	schema, err := events.SchemaFor(env.EventVersion)
	if err != nil {
		return err
	}
	payload, err := schema.DecodeUser(env.Data)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO tracker_users (public_id, username, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (public_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, payload.ID, payload.Username, payload.Role); err != nil {
		return fmt.Errorf("failed to mirror user: %w", err)
	}
	return nil
}

// CreateTask prices a new task and assigns it to a random worker.
func (s *Service) CreateTask(ctx context.Context, description string) (*models.Task, error) {
	workerID, err := s.randomWorker(ctx)
	if err != nil {
		return nil, err
	}
	task := &models.Task{
		ID:             uuid.NewString(),
		UserID:         workerID,
		Description:    description,
		AssignedPrice:  10 + rand.Int63n(11), // 10..20
		CompletedPrice: 20 + rand.Int63n(21), // 20..40
		Status:         models.TaskCreated,
		Date:           time.Now().UTC(),
	}
	query := `
		INSERT INTO tracker_tasks (public_id, user_id, description, assigned_price, completed_price, status, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query, task.ID, task.UserID, task.Description,
		task.AssignedPrice, task.CompletedPrice, task.Status, task.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	s.emit(ctx, events.KeyCreated, task)
	return task, nil
}

// AssignTask hands the task to a random worker. Completed tasks are
// never reassigned.
func (s *Service) AssignTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskCompleted {
		return nil, ErrCompleted
	}
	workerID, err := s.randomWorker(ctx)
	if err != nil {
		return nil, err
	}
	task.UserID = workerID
	task.Status = models.TaskAssigned
	if err := s.updateTask(ctx, task); err != nil {
		return nil, err
	}
	s.emit(ctx, events.KeyAssigned, task)
	return task, nil
}

// CompleteTask marks the task done. Completion is terminal.
func (s *Service) CompleteTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskCompleted {
		return nil, ErrCompleted
	}
	task.Status = models.TaskCompleted
	if err := s.updateTask(ctx, task); err != nil {
		return nil, err
	}
	s.emit(ctx, events.KeyCompleted, task)
	return task, nil
}

// Shuffle reassigns every open task to a random worker.
func (s *Service) Shuffle(ctx context.Context) (int, error) {
	query := `SELECT public_id FROM tracker_tasks WHERE status != $1`
	rows, err := s.db.QueryContext(ctx, query, models.TaskCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to list open tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan task: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := s.AssignTask(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *Service) getTask(ctx context.Context, taskID string) (*models.Task, error) {
	query := `
		SELECT public_id, user_id, description, assigned_price, completed_price, status, date
		FROM tracker_tasks
		WHERE public_id = $1
	`
	var task models.Task
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&task.ID, &task.UserID, &task.Description,
		&task.AssignedPrice, &task.CompletedPrice, &task.Status, &task.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

func (s *Service) updateTask(ctx context.Context, task *models.Task) error {
	query := `UPDATE tracker_tasks SET user_id = $2, status = $3 WHERE public_id = $1`
	if _, err := s.db.ExecContext(ctx, query, task.ID, task.UserID, task.Status); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func (s *Service) randomWorker(ctx context.Context) (string, error) {
	query := `
		SELECT public_id FROM tracker_users
		WHERE role NOT IN ($1, $2)
		ORDER BY RANDOM()
		LIMIT 1
	`
	var id string
	err := s.db.QueryRowContext(ctx, query, models.RoleAdmin, models.RoleManager).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoWorkers
	}
	if err != nil {
		return "", fmt.Errorf("failed to pick worker: %w", err)
	}
	return id, nil
}

func (s *Service) emit(ctx context.Context, key string, task *models.Task) {
	if err := s.stream.TaskLifecycle(ctx, events.VersionV1, key, task); err != nil {
		log.Printf("Failed to publish task %s event: %v", key, err)
	}
}
