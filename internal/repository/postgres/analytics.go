package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/repository"
	"github.com/utafrali/roastery/pkg/database"
)

// AnalyticsRepository implements repository.AnalyticsRepository using PostgreSQL.
type AnalyticsRepository struct {
	pool database.DBTX
}

var _ repository.AnalyticsRepository = (*AnalyticsRepository)(nil)

// NewAnalyticsRepository creates a new PostgreSQL-backed analytics repository.
func NewAnalyticsRepository(pool database.DBTX) *AnalyticsRepository {
	return &AnalyticsRepository{pool: pool}
}

// RecordVisit inserts a page view.
func (r *AnalyticsRepository) RecordVisit(ctx context.Context, v *domain.Visit) error {
	query := `INSERT INTO site_visits (id, path, referrer, created_at) VALUES ($1, $2, $3, $4)`

	if _, err := r.pool.Exec(ctx, query, v.ID, v.Path, v.Referrer, v.CreatedAt); err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// RecordSale inserts a sale unless one already exists for the order.
func (r *AnalyticsRepository) RecordSale(ctx context.Context, s *domain.Sale) (bool, error) {
	query := `
		INSERT INTO sales (id, order_id, commerce_order, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`

	ct, err := r.pool.Exec(ctx, query, s.ID, s.OrderID, s.CommerceOrder, s.Amount, s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert sale: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ListVisits returns visits since the given time, oldest first.
func (r *AnalyticsRepository) ListVisits(ctx context.Context, since time.Time) ([]domain.Visit, error) {
	query := `SELECT id, path, referrer, created_at FROM site_visits WHERE created_at >= $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	visits := make([]domain.Visit, 0)
	for rows.Next() {
		var v domain.Visit
		if err := rows.Scan(&v.ID, &v.Path, &v.Referrer, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan visit row: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visit rows: %w", err)
	}
	return visits, nil
}

// ListSales returns sales since the given time, oldest first.
func (r *AnalyticsRepository) ListSales(ctx context.Context, since time.Time) ([]domain.Sale, error) {
	query := `SELECT id, order_id, commerce_order, amount, created_at FROM sales WHERE created_at >= $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		var s domain.Sale
		if err := rows.Scan(&s.ID, &s.OrderID, &s.CommerceOrder, &s.Amount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}
	return sales, nil
}
