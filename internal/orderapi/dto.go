package orderapi

import (
	"encoding/json"

	"github.com/fjod/grocery-cart/internal/domain"
)

// placeOrderDTO is the order backend's PlaceOrderDto. Field names, including
// the "recieverName" spelling, are the backend's.
type placeOrderDTO struct {
	TotalPrice       json.Number       `json:"totalPrice"`
	CustomerID       int64             `json:"customerId"`
	ShopID           int64             `json:"shopId"`
	ReceiverName     string            `json:"recieverName"`
	PhoneNumber      int64             `json:"phoneNumber"`
	Pincode          int64             `json:"pincode"`
	AddressLine1     string            `json:"addressLine1"`
	AddressLine2     string            `json:"addressLine2"`
	AddressLine3     string            `json:"addressLine3"`
	PaymentMode      string            `json:"paymentMode"`
	OrderProductList []orderProductDTO `json:"orderProductList"`
}

type orderProductDTO struct {
	PID      int64       `json:"pid"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

func toDTOs(orders []domain.PlaceOrder) []placeOrderDTO {
	out := make([]placeOrderDTO, 0, len(orders))
	for _, o := range orders {
		products := make([]orderProductDTO, 0, len(o.Products))
		for _, p := range o.Products {
			products = append(products, orderProductDTO{
				PID:      p.ProductID,
				Quantity: p.Quantity,
				Price:    json.Number(p.UnitPrice.StringFixed(2)),
			})
		}
		out = append(out, placeOrderDTO{
			TotalPrice:       json.Number(o.TotalPrice.StringFixed(2)),
			CustomerID:       o.BuyerID,
			ShopID:           o.SellerID,
			ReceiverName:     o.ReceiverName,
			PhoneNumber:      o.Phone,
			Pincode:          o.PostalCode,
			AddressLine1:     o.AddressLine1,
			AddressLine2:     o.AddressLine2,
			AddressLine3:     o.AddressLine3,
			PaymentMode:      o.PaymentMode.String(),
			OrderProductList: products,
		})
	}
	return out
}
