package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownProductTitle is shown for cart lines whose product could not be resolved.
const UnknownProductTitle = "Unknown Product"

type ProductRef struct {
	ID     string   `json:"_id"`
	Title  string   `json:"title"`
	Slug   string   `json:"slug,omitempty"`
	Images []string `json:"images,omitempty"`
}

type Variant struct {
	SKU        string          `json:"sku"`
	Price      decimal.Decimal `json:"price"`
	Attributes map[string]any  `json:"attributes"`
}

type CartItem struct {
	ProductID  string          `json:"productId"`
	VariantKey string          `json:"variantSku"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"priceAtAdd"`
	AddedAt    time.Time       `json:"addedAt,omitzero"`
	Product    *ProductRef     `json:"product,omitempty"`
	Variant    *Variant        `json:"variant,omitempty"`
}

// Matches reports whether the item is the cart line for productID/variantKey.
func (i CartItem) Matches(productID, variantKey string) bool {
	return i.ProductID == productID && i.VariantKey == variantKey
}

// Normalize fills a missing product reference with an "Unknown Product" stub
// and a missing variant with a descriptor built from the line itself, so a
// line is never dropped because a catalog join failed.
func (i *CartItem) Normalize() {
	if i.Product == nil || i.Product.ID == "" {
		title := UnknownProductTitle
		if i.Product != nil && i.Product.Title != "" {
			title = i.Product.Title
		}
		i.Product = &ProductRef{ID: i.ProductID, Title: title}
	}
	if i.Product.Title == "" {
		i.Product.Title = UnknownProductTitle
	}
	if i.Variant == nil {
		i.Variant = &Variant{SKU: i.VariantKey, Price: i.UnitPrice, Attributes: map[string]any{}}
	}
}

type Cart struct {
	Items []CartItem      `json:"items"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

func EmptyCart() Cart {
	return Cart{Items: []CartItem{}, Total: decimal.Zero}
}

// Recalculate drops lines with a non-positive quantity and recomputes Count and Total.
func (c *Cart) Recalculate() {
	items := make([]CartItem, 0, len(c.Items))
	count := 0
	total := decimal.Zero
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			continue
		}
		items = append(items, item)
		count += item.Quantity
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	c.Items = items
	c.Count = count
	c.Total = total
}

// Find returns the index of the line for productID/variantKey, or -1.
func (c Cart) Find(productID, variantKey string) int {
	for i, item := range c.Items {
		if item.Matches(productID, variantKey) {
			return i
		}
	}
	return -1
}

// Clone returns a copy whose Items slice can be modified without touching c.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]CartItem, len(c.Items))
	copy(out.Items, c.Items)
	return out
}
