package repository

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sentencevault/sentence-service/shared/models"
	sharedredis "github.com/sentencevault/sentence-service/shared/redis"
)

const accountViewKeyPrefix = "account:view:"

type accountSource interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
}

// AccountReadRepository serves account views for credential and balance
// pre-checks. Redis is the primary read store; misses fall through to
// PostgreSQL and warm the cache. A stale view can only overstate the balance,
// since tokens never increase, and the conditional spend in the write store
// has the final say.
type AccountReadRepository struct {
	source accountSource
	cache  *sharedredis.ViewCache[models.AccountView]
}

func NewAccountReadRepository(source accountSource, redisClient *goredis.Client, ttl time.Duration) *AccountReadRepository {
	return &AccountReadRepository{
		source: source,
		cache:  sharedredis.NewViewCache[models.AccountView](redisClient, ttl),
	}
}

// GetByUsername returns an AccountView, trying Redis first then PostgreSQL.
func (r *AccountReadRepository) GetByUsername(ctx context.Context, username string) (*models.AccountView, error) {
	if view, ok := r.cache.Get(ctx, accountViewKeyPrefix+username); ok {
		return view, nil
	}

	account, err := r.source.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	r.CacheAccount(ctx, account)
	return AccountToView(account), nil
}

// CacheAccount stores or refreshes the view after a mutation.
func (r *AccountReadRepository) CacheAccount(ctx context.Context, account *models.Account) {
	r.cache.Set(ctx, accountViewKeyPrefix+account.Username, AccountToView(account))
}

// InvalidateAccount drops a view that the write store has contradicted.
func (r *AccountReadRepository) InvalidateAccount(ctx context.Context, username string) {
	r.cache.Delete(ctx, accountViewKeyPrefix+username)
}

// AccountToView converts the PostgreSQL write model to the Redis read view model.
func AccountToView(a *models.Account) *models.AccountView {
	return &models.AccountView{
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		Tokens:       a.Tokens,
		UpdatedAt:    a.UpdatedAt,
	}
}
