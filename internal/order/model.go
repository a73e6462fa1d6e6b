package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []Item          `json:"items,omitempty"`
}

type Item struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	SweetID      string          `json:"sweet_id"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Status       ItemStatus      `json:"status"`

	// Joined catalog columns, populated only by the detailed admin listing.
	SweetName string `json:"sweet_name,omitempty"`
	Location  string `json:"location,omitempty"`
}

// PlaceItem is one cart line handed to the transaction processor.
type PlaceItem struct {
	SweetID  string
	Quantity int
}

// PlaceRequest carries everything the order transaction needs.
type PlaceRequest struct {
	UserID          string
	DeliveryAddress string
	Items           []PlaceItem
	// SuppliedTotal, when non-nil and trust is configured, is stored verbatim
	// instead of the server-computed figure.
	SuppliedTotal *decimal.Decimal
	// ClientRef is an optional idempotency key; a repeated ref returns the
	// order created by the first submission.
	ClientRef string
}
