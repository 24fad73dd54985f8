package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineItem is one product in a session cart. UnitPrice stays a string at rest so it
// round-trips to the order backend exactly as the catalogue sent it.
type LineItem struct {
	ProductID       int64  `json:"id" bson:"id"`
	Name            string `json:"productName" bson:"product_name"`
	UnitPrice       string `json:"price" bson:"price"`
	DiscountPercent int    `json:"discount" bson:"discount"`
	Quantity        int    `json:"quantity" bson:"quantity"`
	ImageURL        string `json:"image,omitempty" bson:"image,omitempty"`
	Category        string `json:"category,omitempty" bson:"category,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty" bson:"manufacturer,omitempty"`
	SellerID        *int64 `json:"shopId,omitempty" bson:"shop_id,omitempty"`
}

// Price parses UnitPrice. ok is false when the stored string is not a number.
func (i LineItem) Price() (price decimal.Decimal, ok bool) {
	p, err := decimal.NewFromString(strings.TrimSpace(i.UnitPrice))
	if err != nil {
		return decimal.Zero, false
	}
	return p, true
}

// DiscountedPrice is price - price*discount/100, unrounded.
func (i LineItem) DiscountedPrice() (decimal.Decimal, bool) {
	p, ok := i.Price()
	if !ok {
		return decimal.Zero, false
	}
	off := p.Mul(decimal.NewFromInt(int64(i.DiscountPercent))).Shift(-2)
	return p.Sub(off), true
}

// HasSeller reports whether the item can be routed to a seller order.
func (i LineItem) HasSeller() bool {
	return i.SellerID != nil
}

// Clone returns a copy that shares no memory with i.
func (i LineItem) Clone() LineItem {
	if i.SellerID != nil {
		id := *i.SellerID
		i.SellerID = &id
	}
	return i
}

// SellerRef is a helper for building items in code and tests.
func SellerRef(id int64) *int64 {
	return &id
}
