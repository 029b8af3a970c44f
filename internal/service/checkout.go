package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/gateway/flow"
	"github.com/utafrali/roastery/internal/repository"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/logger"
	"github.com/utafrali/roastery/pkg/validator"
)

const (
	commerceOrderPrefix = "MYN"
	subjectPrefix       = "Orden MYN Coffee #"
	base36Alphabet      = "0123456789abcdefghijklmnopqrstuvwxyz"
	tokenSuffixLen      = 6

	// createAttempts bounds retries on a commerce order collision.
	createAttempts = 3
)

// NewCommerceOrder returns a token of the form MYN-{unix millis}-{6 base36}.
func NewCommerceOrder(now time.Time) string {
	var b strings.Builder
	b.WriteString(commerceOrderPrefix)
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('-')
	for i := 0; i < tokenSuffixLen; i++ {
		b.WriteByte(base36Alphabet[rand.IntN(len(base36Alphabet))])
	}
	return b.String()
}

// CheckoutConfig holds the values a checkout needs from configuration.
type CheckoutConfig struct {
	ShippingCost    int64
	Currency        string
	ConfirmationURL string
	ReturnURL       string
	IdempotencyTTL  time.Duration
}

// CheckoutInput is one checkout submission.
type CheckoutInput struct {
	UserID string
	// Owner is the cart to check out, usually the user id.
	Owner          string
	Shipping       domain.ShippingAddress
	IdempotencyKey string
}

// CheckoutResult tells the client where to send the shopper next.
type CheckoutResult struct {
	OrderID       string               `json:"order_id"`
	CommerceOrder string               `json:"commerce_order,omitempty"`
	TotalAmount   int64                `json:"total_amount,omitempty"`
	RedirectURL   string               `json:"redirect_url"`
	Stage         domain.CheckoutStage `json:"stage"`
	Replayed      bool                 `json:"replayed,omitempty"`
}

// ProfileReader loads the account behind a user id.
type ProfileReader interface {
	Profile(ctx context.Context, userID string) (*domain.User, error)
}

// CheckoutService turns a cart into a pending order and a payment session.
type CheckoutService struct {
	carts    repository.CartStore
	orders   repository.OrderRepository
	dedupe   repository.CheckoutDedupeStore
	gateway  PaymentGateway
	profiles ProfileReader
	events   EventPublisher
	cfg      CheckoutConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewCheckoutService creates a checkout service.
func NewCheckoutService(
	carts repository.CartStore,
	orders repository.OrderRepository,
	dedupe repository.CheckoutDedupeStore,
	gateway PaymentGateway,
	profiles ProfileReader,
	events EventPublisher,
	cfg CheckoutConfig,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		orders:   orders,
		dedupe:   dedupe,
		gateway:  gateway,
		profiles: profiles,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Prefill returns shipping fields taken from the user's profile.
func (s *CheckoutService) Prefill(ctx context.Context, userID string) (*domain.ShippingAddress, error) {
	user, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	addr := user.ShippingDefaults()
	return &addr, nil
}

// Checkout validates the submission, persists a pending order, opens a
// payment session and clears the cart. A gateway failure leaves the order
// pending and the cart untouched. With an idempotency key, a repeated
// submission returns the first result instead of creating another order.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (_ *CheckoutResult, err error) {
	if in.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if in.Owner == "" {
		in.Owner = in.UserID
	}
	if err := validator.Validate(in.Shipping); err != nil {
		return nil, err
	}

	// A replay is answered before the cart is read; the first submission
	// already emptied it.
	if in.IdempotencyKey != "" {
		key := in.UserID + ":" + in.IdempotencyKey
		claimed, prior, err := s.dedupe.Reserve(ctx, key, s.cfg.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("reserve checkout: %w", err)
		}
		if !claimed {
			if prior == nil || prior.OrderID == "" {
				return nil, apperrors.Conflict("a checkout with this idempotency key is already in progress")
			}
			return &CheckoutResult{
				OrderID:     prior.OrderID,
				RedirectURL: prior.RedirectURL,
				Stage:       domain.StageRedirecting,
				Replayed:    true,
			}, nil
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.dedupe.Release(context.WithoutCancel(ctx), key); relErr != nil {
				s.logger.WarnContext(ctx, "failed to release checkout reservation",
					slog.String("error", relErr.Error()),
				)
			}
		}()
	}

	items, err := s.carts.Load(ctx, in.Owner)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	cart := domain.NewCart(in.Owner, items)
	if cart.IsEmpty() {
		return nil, apperrors.Validation("cart is empty")
	}

	order, err := s.createOrder(ctx, in, cart)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithCommerceOrder(ctx, order.CommerceOrder)
	log := logger.WithContext(ctx, s.logger)

	optional, err := json.Marshal(map[string]string{"orderId": order.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal optional: %w", err)
	}

	session, err := s.gateway.CreatePayment(ctx, flow.PaymentRequest{
		CommerceOrder:   order.CommerceOrder,
		Subject:         subjectPrefix + order.CommerceOrder,
		Amount:          order.TotalAmount,
		Email:           in.Shipping.Email,
		URLConfirmation: s.cfg.ConfirmationURL,
		URLReturn:       s.cfg.ReturnURL,
		Optional:        string(optional),
	})
	if err != nil {
		log.WarnContext(ctx, "payment session not created, order left pending",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := s.orders.SetGatewayToken(ctx, order.ID, session.Token); err != nil {
		return nil, persistenceError("store gateway token", err)
	}
	order.GatewayToken = session.Token

	cart.Clear()
	if err := s.carts.Save(ctx, cart.Owner, cart.Items); err != nil {
		log.ErrorContext(ctx, "failed to clear cart after checkout",
			slog.String("owner", cart.Owner),
			slog.String("error", err.Error()),
		)
	}

	if err := s.events.PublishOrderCreated(ctx, order); err != nil {
		log.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	result := &CheckoutResult{
		OrderID:       order.ID,
		CommerceOrder: order.CommerceOrder,
		TotalAmount:   order.TotalAmount,
		RedirectURL:   session.RedirectURL(),
		Stage:         domain.StageRedirecting,
	}

	if in.IdempotencyKey != "" {
		res := repository.CheckoutReservation{OrderID: order.ID, RedirectURL: result.RedirectURL}
		if err := s.dedupe.Complete(ctx, in.UserID+":"+in.IdempotencyKey, res, s.cfg.IdempotencyTTL); err != nil {
			log.WarnContext(ctx, "failed to record checkout reservation",
				slog.String("error", err.Error()),
			)
		}
	}

	log.InfoContext(ctx, "checkout completed",
		slog.String("order_id", order.ID),
		slog.Int64("total_amount", order.TotalAmount),
	)
	return result, nil
}

// createOrder persists the pending order, drawing a fresh commerce order
// token if the first one collides.
func (s *CheckoutService) createOrder(ctx context.Context, in CheckoutInput, cart *domain.Cart) (*domain.Order, error) {
	now := s.now()
	subtotal := cart.Total()

	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Status:          domain.OrderStatusPending,
		Items:           domain.NewOrderItems(cart),
		SubtotalAmount:  subtotal,
		ShippingAmount:  s.cfg.ShippingCost,
		TotalAmount:     subtotal + s.cfg.ShippingCost,
		Currency:        s.cfg.Currency,
		ShippingAddress: in.Shipping,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i := range order.Items {
		order.Items[i].ID = uuid.NewString()
		order.Items[i].OrderID = order.ID
	}

	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		order.CommerceOrder = NewCommerceOrder(now)
		err = s.orders.Create(ctx, order)
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			break
		}
	}
	if err != nil {
		return nil, persistenceError("create order", err)
	}
	return order, nil
}

// persistenceError keeps typed application errors and wraps anything else.
func persistenceError(operation string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Persistence(operation, err)
}
