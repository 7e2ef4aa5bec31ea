package database

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// AccountRepository reads users and crawlers. Both tables are managed by
// other services; this one never writes them.
type AccountRepository struct {
	q sqlx.ExtContext
}

// NewAccountRepository creates an account repository.
func NewAccountRepository(q sqlx.ExtContext) *AccountRepository {
	return &AccountRepository{q: q}
}

// GetUser loads a user.
func (r *AccountRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	query := `SELECT id, telegram_chat_id, created_at FROM users WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &u, query, id); err != nil {
		return nil, notFoundOr("get user", "user", id, err)
	}
	return &u, nil
}

// GetCrawler loads a crawler.
func (r *AccountRepository) GetCrawler(ctx context.Context, id string) (*domain.Crawler, error) {
	var c domain.Crawler
	query := `SELECT id, name, created_at FROM crawlers WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.q, &c, query, id); err != nil {
		return nil, notFoundOr("get crawler", "crawler", id, err)
	}
	return &c, nil
}
