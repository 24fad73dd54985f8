package checkout

import (
	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/shopspring/decimal"
)

// Order is everything in a submission that is shared across sellers.
type Order struct {
	BuyerID     int64
	Address     domain.Address
	Phone       int64
	PostalCode  int64
	PaymentMode domain.PaymentMode
}

type partition struct {
	sellerID int64
	items    []domain.LineItem
}

// partitionBySeller groups items by seller in first-seen order. Items without
// a seller are left out.
func partitionBySeller(items []domain.LineItem) []partition {
	var parts []partition
	index := make(map[int64]int)
	for _, it := range items {
		if !it.HasSeller() {
			continue
		}
		seller := *it.SellerID
		i, ok := index[seller]
		if !ok {
			i = len(parts)
			index[seller] = i
			parts = append(parts, partition{sellerID: seller})
		}
		parts[i].items = append(parts[i].items, it)
	}
	return parts
}

// lineUnitPrice is the discounted unit price rounded to cents. A price that
// does not parse is charged as 0.
func lineUnitPrice(it domain.LineItem) decimal.Decimal {
	p, ok := it.DiscountedPrice()
	if !ok {
		return decimal.Zero
	}
	return p.Round(2)
}

// BuildOrders turns a cart into one submission per seller. Totals are the sum
// of the rounded line prices, rounded again.
func BuildOrders(items []domain.LineItem, o Order) []domain.PlaceOrder {
	parts := partitionBySeller(items)
	orders := make([]domain.PlaceOrder, 0, len(parts))
	for _, part := range parts {
		total := decimal.Zero
		products := make([]domain.OrderProduct, 0, len(part.items))
		for _, it := range part.items {
			unit := lineUnitPrice(it)
			total = total.Add(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
			products = append(products, domain.OrderProduct{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: unit,
			})
		}
		orders = append(orders, domain.PlaceOrder{
			TotalPrice:   total.Round(2),
			BuyerID:      o.BuyerID,
			SellerID:     part.sellerID,
			ReceiverName: o.Address.Name,
			Phone:        o.Phone,
			PostalCode:   o.PostalCode,
			AddressLine1: o.Address.Line1,
			AddressLine2: o.Address.Line2,
			AddressLine3: o.Address.Line3,
			PaymentMode:  o.PaymentMode,
			Products:     products,
		})
	}
	return orders
}
