package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/popugtracker/accounting/internal/events"
	"github.com/popugtracker/accounting/internal/middleware"
	"github.com/popugtracker/accounting/internal/models"
	"github.com/popugtracker/accounting/internal/repository"
)

// BillingCloser triggers the fan-out close of all worker cycles.
type BillingCloser interface {
	CloseAll(ctx context.Context, version string) error
}

// AccountQuerier answers balance reads from the read model.
type AccountQuerier interface {
	GetAccount(ctx context.Context, userID string) (*models.AccountView, error)
}

// UserStreamer appends user lifecycle events to the log.
type UserStreamer interface {
	UserCreated(ctx context.Context, version string, u *models.User) error
}

// OpsHandler is the operational HTTP surface of the accounting process:
// health, the external scheduler trigger and read-only balance lookups.
// It exposes no mutation path into the ledger — that stays event-only.
type OpsHandler struct {
	billing  BillingCloser
	accounts AccountQuerier
	users    UserStreamer
}

func NewOpsHandler(billing BillingCloser, accounts AccountQuerier, users UserStreamer) *OpsHandler {
	return &OpsHandler{billing: billing, accounts: accounts, users: users}
}

func (h *OpsHandler) Register(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1 := router.Group("/v1")
	{
		v1.POST("/billing-cycles/close", h.CloseBillingCycles)
		v1.GET("/accounts/:userId", h.GetAccount)
		v1.POST("/users", h.CreateUser)
	}
}

type CloseBillingCyclesRequest struct {
	EventVersion string `json:"eventVersion" validate:"omitempty,oneof=v1"`
}

// CloseBillingCycles is the entry point for the external scheduler.
// Safe to call twice in one period: already-settled cycles are no-ops.
func (h *OpsHandler) CloseBillingCycles(c *gin.Context) {
	var req CloseBillingCyclesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	if req.EventVersion == "" {
		req.EventVersion = events.VersionV1
	}

	if err := h.billing.CloseAll(c.Request.Context(), req.EventVersion); err != nil {
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to schedule billing cycle close")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

func (h *OpsHandler) GetAccount(c *gin.Context) {
	view, err := h.accounts.GetAccount(c.Request.Context(), c.Param("userId"))
	if errors.Is(err, repository.ErrNotFound) {
		middleware.RespondWithError(c, http.StatusNotFound, "Account not found")
		return
	}
	if err != nil {
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to get account")
		return
	}
	c.JSON(http.StatusOK, view)
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=admin manager tester developer accountant"`
	FullName string `json:"fullName"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// CreateUser appends a user-created event to the log on behalf of the
// user service. The accounting consumer picks it up like any other
// inbound event — there is no synchronous write path.
func (h *OpsHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Role:      models.Role(req.Role),
		FullName:  req.FullName,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.users.UserCreated(c.Request.Context(), events.VersionV1, user); err != nil {
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to publish user created event")
		return
	}
	c.JSON(http.StatusAccepted, user)
}
