package tasktracker

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/popugtracker/accounting/internal/middleware"
	"github.com/popugtracker/accounting/internal/models"
)

// TaskService defines the operations used by TaskHandler.
type TaskService interface {
	CreateTask(ctx context.Context, description string) (*models.Task, error)
	AssignTask(ctx context.Context, taskID string) (*models.Task, error)
	CompleteTask(ctx context.Context, taskID string) (*models.Task, error)
	Shuffle(ctx context.Context) (int, error)
}

type TaskHandler struct {
	tasks TaskService
}

func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func (h *TaskHandler) Register(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1 := router.Group("/v1/tasks")
	{
		v1.POST("", h.CreateTask)
		v1.POST("/shuffle", h.Shuffle)
		v1.POST("/:taskId/assign", h.AssignTask)
		v1.POST("/:taskId/complete", h.CompleteTask)
	}
}

type CreateTaskRequest struct {
	Description string `json:"description" validate:"required"`
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), req.Description)
	if err != nil {
		respondTaskError(c, err, "Failed to create task")
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) AssignTask(c *gin.Context) {
	task, err := h.tasks.AssignTask(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		respondTaskError(c, err, "Failed to assign task")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CompleteTask(c *gin.Context) {
	task, err := h.tasks.CompleteTask(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		respondTaskError(c, err, "Failed to complete task")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Shuffle(c *gin.Context) {
	count, err := h.tasks.Shuffle(c.Request.Context())
	if err != nil {
		respondTaskError(c, err, "Failed to shuffle tasks")
		return
	}
	c.JSON(http.StatusOK, gin.H{"reassigned": count})
}

func respondTaskError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "Task not found")
	case errors.Is(err, ErrCompleted):
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, "Task already completed")
	case errors.Is(err, ErrNoWorkers):
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, "No workers to assign")
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}
