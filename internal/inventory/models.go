package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultUnit = "Piece"

// PriceScale is the number of decimal places kept for prices.
const PriceScale = 2

// Product is the ledger row for one SKU.
type Product struct {
	SKU              string              `json:"sku"`
	TotalQuantity    int                 `json:"totalQuantity"`
	ReservedQuantity int                 `json:"reservedQuantity"`
	SoldQuantity     int                 `json:"soldQuantity"`
	Price            decimal.NullDecimal `json:"price"`
	Unit             string              `json:"unit"`
	ImageURL         string              `json:"imageUrl,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// Available is the amount sellable right now.
func (p Product) Available() int {
	return p.TotalQuantity - p.ReservedQuantity
}

// UnitPrice returns the price, or zero when the product has none.
func (p Product) UnitPrice() decimal.Decimal {
	if !p.Price.Valid {
		return decimal.Zero
	}
	return p.Price.Decimal
}

type Reservation struct {
	ID         string            `json:"id"`
	SKU        string            `json:"sku"`
	Quantity   int               `json:"quantity"`
	ReservedAt time.Time         `json:"reservedAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	Status     ReservationStatus `json:"status"`
}

// Expired reports whether the hold is past its deadline at now.
func (r Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

type Order struct {
	ID          string          `json:"id"`
	UserRef     string          `json:"userRef"`
	Items       []OrderLine     `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OrderDate   time.Time       `json:"orderDate"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Status      OrderStatus     `json:"status"`
}

func (o Order) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Clone returns a copy that does not share the line slice.
func (o Order) Clone() Order {
	out := o
	out.Items = append([]OrderLine(nil), o.Items...)
	return out
}

type OrderLine struct {
	SKU             string          `json:"sku"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase"`
}

// LineTotal is priceAtPurchase × quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineRequest is one {sku, qty} entry of a checkout call.
type LineRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// ProductInput carries the administrative fields for create/update.
type ProductInput struct {
	SKU           string
	TotalQuantity int
	ImageURL      string
	Price         decimal.NullDecimal
	Unit          string
}
