package repository

import (
	"context"
	"time"

	"github.com/utafrali/roastery/internal/domain"
)

// CartStore persists the full item list of a cart. Load returns an empty list
// for an unknown owner.
type CartStore interface {
	Load(ctx context.Context, owner string) ([]domain.CartItem, error)
	Save(ctx context.Context, owner string, items []domain.CartItem) error
}

// CheckoutReservation is what a dedupe key resolves to once claimed.
type CheckoutReservation struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// CheckoutDedupeStore guards against duplicate checkout submissions that
// carry the same idempotency key.
type CheckoutDedupeStore interface {
	// Reserve claims key. It returns false and the stored reservation when the
	// key was already claimed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, *CheckoutReservation, error)

	// Complete records the result for a claimed key.
	Complete(ctx context.Context, key string, res CheckoutReservation, ttl time.Duration) error

	// Release drops a claim so the shopper can retry after a failure.
	Release(ctx context.Context, key string) error
}

// PasswordResetStore keeps single-use password reset tokens.
type PasswordResetStore interface {
	// Save stores token for userID until ttl elapses.
	Save(ctx context.Context, token, userID string, ttl time.Duration) error

	// Consume returns the user a token was issued to and deletes the token.
	// Unknown, expired and already used tokens are not found.
	Consume(ctx context.Context, token string) (string, error)
}

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	UserID  *string
	Status  *domain.OrderStatus
	Page    int
	PerPage int
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// Create inserts a new order and its items into the store atomically.
	Create(ctx context.Context, order *domain.Order) error

	// SetGatewayToken stores the session token the gateway issued for an order.
	SetGatewayToken(ctx context.Context, id, token string) error

	// ApplyPaymentResult writes a gateway result onto the order matched by
	// commerce order token. A paid order is never modified. It reports
	// whether a row changed and returns the order as stored afterwards.
	ApplyPaymentResult(ctx context.Context, result domain.PaymentResult) (*domain.Order, bool, error)

	// GetByID retrieves an order by its unique identifier, including items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByCommerceOrder retrieves an order by its commerce order token.
	GetByCommerceOrder(ctx context.Context, commerceOrder string) (*domain.Order, error)

	// List returns orders matching the given filter along with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)
}

// UserRepository defines persistence for accounts and profiles.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// ProductRepository reads the catalog.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)
	ListActive(ctx context.Context) ([]domain.Product, error)
}

// AnalyticsRepository stores visits and sales and reads them back for charts.
type AnalyticsRepository interface {
	RecordVisit(ctx context.Context, visit *domain.Visit) error
	// RecordSale inserts a sale once per order. It reports whether a row was
	// written.
	RecordSale(ctx context.Context, sale *domain.Sale) (bool, error)
	ListVisits(ctx context.Context, since time.Time) ([]domain.Visit, error)
	ListSales(ctx context.Context, since time.Time) ([]domain.Sale, error)
}
