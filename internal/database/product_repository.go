package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// productSelectColumns lists columns for SELECT queries on products.
const productSelectColumns = `id, identity_hash, shop, url, title, image, status, created_at, updated_at`

// ProductRepository handles the products table.
type ProductRepository struct {
	q sqlx.ExtContext
}

// NewProductRepository creates a product repository over a connection or transaction.
func NewProductRepository(q sqlx.ExtContext) *ProductRepository {
	return &ProductRepository{q: q}
}

// GetProduct loads a product by id.
func (r *ProductRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productSelectColumns + ` FROM products WHERE id = $1`

	var p domain.Product
	if err := sqlx.GetContext(ctx, r.q, &p, query, id); err != nil {
		return nil, notFoundOr("get product", "product", id, err)
	}
	return &p, nil
}

// GetProductByHash loads a product by identity hash.
func (r *ProductRepository) GetProductByHash(ctx context.Context, hash string) (*domain.Product, error) {
	query := `SELECT ` + productSelectColumns + ` FROM products WHERE identity_hash = $1`

	var p domain.Product
	if err := sqlx.GetContext(ctx, r.q, &p, query, hash); err != nil {
		return nil, notFoundOr("get product by hash", "product", hash, err)
	}
	return &p, nil
}

// LockProduct loads a product with SELECT ... FOR UPDATE. Reports and
// ownership changes for one product serialize on this lock.
func (r *ProductRepository) LockProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productSelectColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	var p domain.Product
	if err := sqlx.GetContext(ctx, r.q, &p, query, id); err != nil {
		return nil, notFoundOr("lock product", "product", id, err)
	}
	return &p, nil
}

// CreateProduct inserts p unless its identity hash is taken, in which case it
// returns domain.ErrIdentityConflict. Under read committed a concurrent
// inserter blocks here until the winner commits.
func (r *ProductRepository) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.ProductStatusActive
	}

	query := `
		INSERT INTO products (id, identity_hash, shop, url, title, image, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity_hash) DO NOTHING
		RETURNING created_at, updated_at
	`

	row := r.q.QueryRowxContext(ctx, query,
		p.ID, p.IdentityHash, p.Shop, p.URL, p.Title, p.Image, p.Status,
	)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrIdentityConflict
		}
		return domain.StoreUnavailable("create product", err)
	}
	return nil
}

// SetProductStatus flips the lifecycle status.
func (r *ProductRepository) SetProductStatus(ctx context.Context, id string, status domain.ProductStatus) error {
	query := `UPDATE products SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id, status)
	if reqErr := execRequireRows(result, err, domain.NewNotFound("product", id)); reqErr != nil {
		return domain.StoreUnavailable("set product status", reqErr)
	}
	return nil
}

// SetProductTitle replaces the display title.
func (r *ProductRepository) SetProductTitle(ctx context.Context, id, title string) error {
	query := `UPDATE products SET title = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id, title)
	if reqErr := execRequireRows(result, err, domain.NewNotFound("product", id)); reqErr != nil {
		return domain.StoreUnavailable("set product title", reqErr)
	}
	return nil
}

// ListOutdatedProducts returns active products whose latest non-skip crawl
// (or creation, when never crawled) is before cutoff, oldest first.
func (r *ProductRepository) ListOutdatedProducts(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]domain.OutdatedProduct, error) {
	query := `
		SELECT p.id, p.shop, p.url, COALESCE(h.last_at, p.created_at) AS last_crawled_at
		FROM products p
		LEFT JOIN LATERAL (
			SELECT MAX(created_at) AS last_at
			FROM product_history
			WHERE product_id = p.id AND status <> 'skip'
		) h ON TRUE
		WHERE p.status = 'active'
		  AND COALESCE(h.last_at, p.created_at) < $1
		ORDER BY last_crawled_at ASC, p.id ASC
		LIMIT $2
	`

	products := []domain.OutdatedProduct{}
	if err := sqlx.SelectContext(ctx, r.q, &products, query, cutoff, limit); err != nil {
		return nil, domain.StoreUnavailable("list outdated products", err)
	}
	return products, nil
}
