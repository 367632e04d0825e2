package query

import (
	"context"

	"github.com/popugtracker/accounting/internal/models"
	"github.com/popugtracker/accounting/internal/repository"
)

// AccountQueryService answers balance reads from the read model.
type AccountQueryService struct {
	views *repository.AccountViewRepository
}

func NewAccountQueryService(views *repository.AccountViewRepository) *AccountQueryService {
	return &AccountQueryService{views: views}
}

func (s *AccountQueryService) GetAccount(ctx context.Context, userID string) (*models.AccountView, error) {
	return s.views.GetByUserID(ctx, userID)
}
