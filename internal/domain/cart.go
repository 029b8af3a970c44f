package domain

// CartItem is one line of a cart: a product snapshot and a positive quantity.
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns price times quantity.
func (i CartItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// CartChange tells what Add did to the cart.
type CartChange int

const (
	CartItemAdded CartChange = iota + 1
	CartItemUpdated
)

// Cart holds at most one line per product and only positive quantities.
// Totals are never stored; they are recomputed from the lines on every call.
type Cart struct {
	Owner string     `json:"owner"`
	Items []CartItem `json:"items"`
}

// NewCart wraps items loaded from storage, dropping lines that break the
// cart's invariants and merging duplicates.
func NewCart(owner string, items []CartItem) *Cart {
	c := &Cart{Owner: owner, Items: make([]CartItem, 0, len(items))}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity < 1 {
			continue
		}
		if i := c.index(it.ProductID); i >= 0 {
			c.Items[i].Quantity += it.Quantity
			continue
		}
		c.Items = append(c.Items, it)
	}
	return c
}

func (c *Cart) index(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add puts quantity units of p in the cart. A quantity of zero or less adds
// one unit. An existing line has its quantity increased.
func (c *Cart) Add(p Product, quantity int) CartChange {
	if quantity <= 0 {
		quantity = 1
	}
	if i := c.index(p.ID); i >= 0 {
		c.Items[i].Quantity += quantity
		return CartItemUpdated
	}
	c.Items = append(c.Items, CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		ImageURL:  p.ImageURL,
		Quantity:  quantity,
	})
	return CartItemAdded
}

// Remove drops the line for productID. Unknown ids are ignored.
func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// SetQuantity overwrites the quantity of a line. A quantity below one removes
// the line. It reports whether the product was in the cart.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		c.Remove(productID)
		return true
	}
	c.Items[i].Quantity = quantity
	return true
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = c.Items[:0]
}

// Find returns the line for productID.
func (c *Cart) Find(productID string) (CartItem, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Items[i], true
	}
	return CartItem{}, false
}

// Total is the sum of price times quantity over all lines.
func (c *Cart) Total() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.Subtotal()
	}
	return total
}

// ItemCount is the sum of quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CartView is the read model returned to clients.
type CartView struct {
	Owner     string     `json:"owner"`
	Items     []CartItem `json:"items"`
	Total     int64      `json:"total"`
	ItemCount int        `json:"item_count"`
}

// View snapshots the cart with its derived totals.
func (c *Cart) View() CartView {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	return CartView{
		Owner:     c.Owner,
		Items:     items,
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
	}
}
