package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/repository"
	apperrors "github.com/utafrali/roastery/pkg/errors"
)

// Cart limits.
const (
	MaxQuantityPerItem = 100
	MaxItemsPerCart    = 50
)

// Notice is a short message for the shopper about what a cart call did.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notice kinds.
const (
	NoticeItemAdded   = "item_added"
	NoticeItemUpdated = "item_updated"
)

// CartResult is a cart snapshot plus the notice for the mutation that
// produced it, if any.
type CartResult struct {
	Cart   domain.CartView `json:"cart"`
	Notice *Notice         `json:"notice,omitempty"`
}

// AddItemInput is the request body for adding a product to the cart.
type AddItemInput struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"`
}

// SetQuantityInput is the request body for overwriting a line's quantity.
type SetQuantityInput struct {
	Quantity int `json:"quantity"`
}

// CartService owns the cart of each owner. An owner is a user id or a guest
// cart id. Every mutation loads the stored lines, applies the change and
// saves the full list back.
type CartService struct {
	store    repository.CartStore
	products ProductReader
	events   EventPublisher
	logger   *slog.Logger
}

// NewCartService creates a cart service.
func NewCartService(store repository.CartStore, products ProductReader, events EventPublisher, logger *slog.Logger) *CartService {
	return &CartService{
		store:    store,
		products: products,
		events:   events,
		logger:   logger,
	}
}

// Get returns the owner's cart. An unknown owner has an empty cart.
func (s *CartService) Get(ctx context.Context, owner string) (*domain.CartView, error) {
	cart, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	view := cart.View()
	return &view, nil
}

// AddItem adds quantity units of a catalog product. A quantity of zero or
// less adds one unit.
func (s *CartService) AddItem(ctx context.Context, owner, productID string, quantity int) (*CartResult, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return nil, apperrors.InvalidInput("invalid product id")
	}

	cart, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		quantity = 1
	}
	if err := checkAdd(cart, productID, quantity); err != nil {
		return nil, err
	}

	notice := &Notice{Kind: NoticeItemAdded, Message: product.Name + " added to cart"}
	if cart.Add(*product, quantity) == domain.CartItemUpdated {
		notice = &Notice{Kind: NoticeItemUpdated, Message: "Quantity updated: " + product.Name}
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("owner", owner),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)
	return &CartResult{Cart: cart.View(), Notice: notice}, nil
}

// SetQuantity overwrites the quantity of a line. Zero or less removes it.
// A product that is not in the cart is left alone.
func (s *CartService) SetQuantity(ctx context.Context, owner, productID string, quantity int) (*CartResult, error) {
	if quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}

	cart, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}

	item, found := cart.Find(productID)
	if !found {
		return &CartResult{Cart: cart.View()}, nil
	}
	cart.SetQuantity(productID, quantity)

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}

	result := &CartResult{Cart: cart.View()}
	if quantity > 0 {
		result.Notice = &Notice{Kind: NoticeItemUpdated, Message: "Quantity updated: " + item.Name}
	}
	return result, nil
}

// RemoveItem drops a line. Removing an absent product is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, owner, productID string) (*domain.CartView, error) {
	cart, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}

	if _, found := cart.Find(productID); found {
		cart.Remove(productID)
		if err := s.save(ctx, cart); err != nil {
			return nil, err
		}
	}

	view := cart.View()
	return &view, nil
}

// Merge moves the lines of a guest cart into a user's cart and empties the
// guest cart. Lines are re-priced from the catalog; products that are no
// longer sold are dropped. Merged quantities are capped at
// MaxQuantityPerItem and lines past MaxItemsPerCart are skipped.
func (s *CartService) Merge(ctx context.Context, guest, owner string) (*domain.CartView, error) {
	if guest == "" || guest == owner {
		return nil, apperrors.InvalidInput("guest cart id is required")
	}

	from, err := s.load(ctx, guest)
	if err != nil {
		return nil, err
	}
	cart, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if from.IsEmpty() {
		view := cart.View()
		return &view, nil
	}

	merged := 0
	for _, it := range from.Items {
		product, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}

		quantity := it.Quantity
		if existing, found := cart.Find(it.ProductID); found {
			quantity = min(quantity, MaxQuantityPerItem-existing.Quantity)
		} else if len(cart.Items) >= MaxItemsPerCart {
			continue
		}
		quantity = min(quantity, MaxQuantityPerItem)
		if quantity <= 0 {
			continue
		}
		cart.Add(*product, quantity)
		merged++
	}

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, domain.NewCart(guest, nil)); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "guest cart merged",
		slog.String("owner", owner),
		slog.String("guest", guest),
		slog.Int("lines", merged),
	)
	view := cart.View()
	return &view, nil
}

// Clear empties the owner's cart.
func (s *CartService) Clear(ctx context.Context, owner string) error {
	if owner == "" {
		return apperrors.InvalidInput("cart owner is required")
	}
	return s.save(ctx, domain.NewCart(owner, nil))
}

// checkAdd enforces the per-line and per-cart limits for adding quantity
// units of productID.
func checkAdd(cart *domain.Cart, productID string, quantity int) error {
	existing, found := cart.Find(productID)
	if !found && len(cart.Items) >= MaxItemsPerCart {
		return apperrors.InvalidInput(fmt.Sprintf("cart cannot hold more than %d products", MaxItemsPerCart))
	}
	if quantity > MaxQuantityPerItem-existing.Quantity {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	return nil
}

func (s *CartService) load(ctx context.Context, owner string) (*domain.Cart, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("cart owner is required")
	}
	items, err := s.store.Load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return domain.NewCart(owner, items), nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) error {
	if err := s.store.Save(ctx, cart.Owner, cart.Items); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}

	if err := s.events.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("owner", cart.Owner),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
