package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/repository"
	"github.com/utafrali/roastery/pkg/database"
	apperrors "github.com/utafrali/roastery/pkg/errors"
)

const orderColumns = `id, user_id, commerce_order, status, subtotal_amount, shipping_amount, total_amount,
	currency, shipping_address, COALESCE(gateway_token, ''), flow_order, payment_data, created_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order and its items atomically within a transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateOrder", "INSERT INTO orders")
	defer func() { end(err) }()

	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderQuery := `
		INSERT INTO orders (id, user_id, commerce_order, status, subtotal_amount, shipping_amount, total_amount, currency, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = tx.Exec(ctx, orderQuery,
		o.ID,
		o.UserID,
		o.CommerceOrder,
		string(o.Status),
		o.SubtotalAmount,
		o.ShippingAmount,
		o.TotalAmount,
		o.Currency,
		shippingJSON,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("order", "commerce_order", o.CommerceOrder)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, name, image_url, unit_price, quantity, subtotal, line_no)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	// line_no keeps items in cart order.
	for i, item := range o.Items {
		_, err = tx.Exec(ctx, itemQuery,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.Name,
			item.ImageURL,
			item.UnitPrice,
			item.Quantity,
			item.Subtotal,
			i,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// SetGatewayToken stores the payment session token on an order.
func (r *OrderRepository) SetGatewayToken(ctx context.Context, id, token string) error {
	query := `UPDATE orders SET gateway_token = $1, updated_at = $2 WHERE id = $3`

	ct, err := r.pool.Exec(ctx, query, token, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set gateway token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", id)
	}
	return nil
}

// ApplyPaymentResult records a gateway result. The WHERE clause keeps paid
// orders untouched and skips rewriting a status that is already recorded, so
// the confirmation and return handlers may race without clobbering each other.
// The statement that moves an order to paid also writes its sales row, so the
// ledger never depends on the order.paid event being delivered.
func (r *OrderRepository) ApplyPaymentResult(ctx context.Context, res domain.PaymentResult) (_ *domain.Order, _ bool, err error) {
	query := `
		WITH updated AS (
			UPDATE orders
			SET status = $1, flow_order = COALESCE($2, flow_order), payment_data = $3, updated_at = $4
			WHERE commerce_order = $5 AND status <> 'paid' AND status <> $1
			RETURNING *
		), sale AS (
			INSERT INTO sales (id, order_id, commerce_order, amount, created_at)
			SELECT $6, id, commerce_order, total_amount, updated_at FROM updated WHERE status = 'paid'
			ON CONFLICT (order_id) DO NOTHING
		)
		SELECT ` + orderColumns + ` FROM updated`

	ctx, end := database.TraceQuery(ctx, "ApplyPaymentResult", query)
	defer func() { end(err) }()

	var paymentData []byte
	if len(res.PaymentData) > 0 {
		paymentData = res.PaymentData
	}

	row := r.pool.QueryRow(ctx, query,
		string(res.Status),
		res.FlowOrder,
		paymentData,
		time.Now().UTC(),
		res.CommerceOrder,
		uuid.NewString(),
	)
	o, err := scanOrder(row)
	if err == nil {
		o.Items = []domain.OrderItem{}
		return o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("apply payment result: %w", err)
	}

	// Nothing changed: either the order is unknown or it already holds a
	// final answer.
	current, err := r.GetByCommerceOrder(ctx, res.CommerceOrder)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// GetByID retrieves an order by its ID, eagerly loading its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getWithItems(ctx, "o.id = $1", id, "order")
}

// GetByCommerceOrder retrieves an order by its commerce order token.
func (r *OrderRepository) GetByCommerceOrder(ctx context.Context, commerceOrder string) (*domain.Order, error) {
	return r.getWithItems(ctx, "o.commerce_order = $1", commerceOrder, "order")
}

func (r *OrderRepository) getWithItems(ctx context.Context, where string, arg any, resource string) (*domain.Order, error) {
	// Order and items in one round trip.
	query := `
		SELECT
			o.id, o.user_id, o.commerce_order, o.status, o.subtotal_amount, o.shipping_amount, o.total_amount,
			o.currency, o.shipping_address, COALESCE(o.gateway_token, ''), o.flow_order, o.payment_data,
			o.created_at, o.updated_at,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'id', oi.id,
						'order_id', oi.order_id,
						'product_id', oi.product_id,
						'name', oi.name,
						'image_url', oi.image_url,
						'unit_price', oi.unit_price,
						'quantity', oi.quantity,
						'subtotal', oi.subtotal
					) ORDER BY oi.line_no, oi.id
				) FILTER (WHERE oi.id IS NOT NULL),
				'[]'::jsonb
			) AS items
		FROM orders o
		LEFT JOIN order_items oi ON o.id = oi.order_id
		WHERE ` + where + `
		GROUP BY o.id`

	var itemsJSON []byte
	o, err := scanOrder(r.pool.QueryRow(ctx, query, arg), &itemsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(resource, fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Items = []domain.OrderItem{}
	if len(itemsJSON) > 0 && string(itemsJSON) != "null" {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}

	return o, nil
}

// List returns orders matching the given filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*filter.Status))
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s,
			count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, 0, err
	}

	return orders, totalCount, nil
}

// loadItems batch-loads the items of orders in a single query.
func (r *OrderRepository) loadItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	query := `
		SELECT id, order_id, product_id, name, image_url, unit_price, quantity, subtotal
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no, id`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("batch load order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[string][]domain.OrderItem, len(orders))
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.ImageURL,
			&item.UnitPrice,
			&item.Quantity,
			&item.Subtotal,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order item rows: %w", err)
	}

	for i := range orders {
		if items, ok := byOrder[orders[i].ID]; ok {
			orders[i].Items = items
		} else {
			orders[i].Items = []domain.OrderItem{}
		}
	}
	return nil
}

// scanOrder reads orderColumns followed by any extra destinations.
func scanOrder(row pgx.Row, extra ...any) (*domain.Order, error) {
	var (
		o            domain.Order
		status       string
		shippingJSON []byte
		paymentData  []byte
	)

	dest := []any{
		&o.ID,
		&o.UserID,
		&o.CommerceOrder,
		&status,
		&o.SubtotalAmount,
		&o.ShippingAmount,
		&o.TotalAmount,
		&o.Currency,
		&shippingJSON,
		&o.GatewayToken,
		&o.FlowOrder,
		&paymentData,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	o.Status = domain.OrderStatus(status)
	if len(shippingJSON) > 0 && string(shippingJSON) != "null" {
		if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}
	if len(paymentData) > 0 {
		o.PaymentData = json.RawMessage(paymentData)
	}

	return &o, nil
}
