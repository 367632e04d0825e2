package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/popugtracker/accounting/internal/models"
	"github.com/popugtracker/accounting/internal/redisclient"
)

const accountViewKeyPrefix = "account:view:"

// AccountViewRepository serves balance reads. Redis is the primary read
// store, warmed on every ledger write; PostgreSQL is the transparent
// fallback for cold reads.
type AccountViewRepository struct {
	db    *sql.DB
	cache *redisclient.ViewCache[models.AccountView]
}

func NewAccountViewRepository(db *sql.DB, redisClient *goredis.Client) *AccountViewRepository {
	return &AccountViewRepository{
		db:    db,
		cache: redisclient.NewViewCache[models.AccountView](redisClient, 0),
	}
}

// GetByUserID returns the account view for a user, trying Redis first.
func (r *AccountViewRepository) GetByUserID(ctx context.Context, userID string) (*models.AccountView, error) {
	cacheKey := accountViewKeyPrefix + userID

	if view, ok := r.cache.Get(ctx, cacheKey); ok {
		return view, nil
	}

	query := `
		SELECT public_id, user_id, balance, updated_at
		FROM accounts
		WHERE user_id = $1
	`
	var view models.AccountView
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&view.AccountID, &view.UserID, &view.Balance, &view.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account for user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account view: %w", err)
	}

	r.CacheView(ctx, &view)
	return &view, nil
}

// CacheView warms the read model after a balance change.
func (r *AccountViewRepository) CacheView(ctx context.Context, view *models.AccountView) {
	r.cache.Set(ctx, accountViewKeyPrefix+view.UserID, view)
}
