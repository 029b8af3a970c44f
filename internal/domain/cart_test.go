package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	geisha = Product{ID: "p-geisha", Name: "Geisha Panamá", Price: 12000, ImageURL: "/img/geisha.jpg"}
	huila  = Product{ID: "p-huila", Name: "Huila Colombia", Price: 9500}
)

// ============================================================================
// Add
// ============================================================================

func TestCart_AddNewProduct(t *testing.T) {
	c := NewCart("u1", nil)

	change := c.Add(geisha, 2)

	assert.Equal(t, CartItemAdded, change)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, "Geisha Panamá", c.Items[0].Name)
}

func TestCart_AddExistingProductMerges(t *testing.T) {
	c := NewCart("u1", nil)
	c.Add(geisha, 1)

	change := c.Add(geisha, 3)

	assert.Equal(t, CartItemUpdated, change)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 4, c.Items[0].Quantity)
}

func TestCart_AddNonPositiveQuantityDefaultsToOne(t *testing.T) {
	for _, q := range []int{0, -5} {
		c := NewCart("u1", nil)
		c.Add(huila, q)
		assert.Equal(t, 1, c.ItemCount())
	}
}

// ============================================================================
// Remove / SetQuantity / Clear
// ============================================================================

func TestCart_RemoveAbsentIsNoop(t *testing.T) {
	c := NewCart("u1", nil)
	c.Add(geisha, 1)

	c.Remove("missing")

	assert.Len(t, c.Items, 1)
}

func TestCart_Remove(t *testing.T) {
	c := NewCart("u1", nil)
	c.Add(geisha, 1)
	c.Add(huila, 1)

	c.Remove(geisha.ID)

	require.Len(t, c.Items, 1)
	assert.Equal(t, huila.ID, c.Items[0].ProductID)
}

func TestCart_SetQuantity(t *testing.T) {
	c := NewCart("u1", nil)
	c.Add(geisha, 1)

	assert.True(t, c.SetQuantity(geisha.ID, 5))
	assert.Equal(t, 5, c.ItemCount())

	assert.True(t, c.SetQuantity(geisha.ID, 0))
	assert.True(t, c.IsEmpty())

	assert.False(t, c.SetQuantity("missing", 3))
	assert.True(t, c.IsEmpty())
}

func TestCart_SetNegativeQuantityRemoves(t *testing.T) {
	c := NewCart("u1", nil)
	c.Add(geisha, 2)

	c.SetQuantity(geisha.ID, -1)

	_, ok := c.Find(geisha.ID)
	assert.False(t, ok)
}

func TestCart_Clear(t *testing.T) {
	c := NewCart("u1", nil)
	c.Add(geisha, 1)
	c.Add(huila, 2)

	c.Clear()

	assert.True(t, c.IsEmpty())
	assert.Zero(t, c.Total())
	assert.Zero(t, c.ItemCount())
}

// ============================================================================
// Derived values
// ============================================================================

func TestCart_TotalsRecomputedOnEveryRead(t *testing.T) {
	c := NewCart("u1", nil)
	c.Add(geisha, 2)
	assert.Equal(t, int64(24000), c.Total())
	assert.Equal(t, 2, c.ItemCount())

	c.Add(huila, 1)
	assert.Equal(t, int64(33500), c.Total())
	assert.Equal(t, 3, c.ItemCount())

	c.SetQuantity(geisha.ID, 1)
	assert.Equal(t, int64(21500), c.Total())
}

func TestCart_View(t *testing.T) {
	c := NewCart("guest-1", nil)
	c.Add(geisha, 2)

	v := c.View()
	c.Clear()

	assert.Equal(t, "guest-1", v.Owner)
	assert.Equal(t, int64(24000), v.Total)
	assert.Equal(t, 2, v.ItemCount)
	assert.Len(t, v.Items, 1)
}

func TestNewCart_RepairsStoredItems(t *testing.T) {
	c := NewCart("u1", []CartItem{
		{ProductID: "a", Price: 100, Quantity: 1},
		{ProductID: "a", Price: 100, Quantity: 2},
		{ProductID: "b", Price: 100, Quantity: 0},
		{ProductID: "", Price: 100, Quantity: 1},
	})

	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
}
