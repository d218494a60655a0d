package models

import "time"

// CartItem is one cart line. Price is captured when the item is added.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Subtotal returns price times quantity.
func (c CartItem) Subtotal() float64 {
	return c.Price * float64(c.Quantity)
}

// CartTotal sums the subtotals of every line.
func CartTotal(items []CartItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// Product is a catalog entry shown while browsing.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// OrderItem is the snapshot of a cart line stored with an order.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Order is a checkout record awaiting (or having received) payment.
type Order struct {
	ID          string      `json:"id"`
	PhoneNumber string      `json:"phone_number"`
	UserID      string      `json:"user_id,omitempty"`
	Items       []OrderItem `json:"items"`
	Total       float64     `json:"total"`
	Paid        bool        `json:"paid"`
	PaidAt      *time.Time  `json:"paid_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// OrderItemsFromCart snapshots cart lines into order items.
func OrderItemsFromCart(cart []CartItem) []OrderItem {
	items := make([]OrderItem, 0, len(cart))
	for _, c := range cart {
		items = append(items, OrderItem{
			ProductID: c.ProductID,
			Name:      c.Name,
			Price:     c.Price,
			Quantity:  c.Quantity,
		})
	}
	return items
}

// StatusLabel returns the label shown in order history.
func (o Order) StatusLabel() string {
	if o.Paid {
		return "Paid"
	}
	return "Pending"
}
