package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type PaymentMode string

const (
	PaymentModeCOD        PaymentMode = "COD"
	PaymentModeCreditCard PaymentMode = "CREDIT_CARD"
	PaymentModeDebitCard  PaymentMode = "DEBIT_CARD"
	PaymentModeUPI        PaymentMode = "UPI"
)

// Enabled reports whether the mode can be selected at checkout. Only cash on
// delivery is live; the rest are listed as placeholders.
func (m PaymentMode) Enabled() bool {
	return m == PaymentModeCOD
}

// String representation (for logging)
func (m PaymentMode) String() string {
	return string(m)
}

type PaymentOption struct {
	Mode    PaymentMode `json:"mode"`
	Label   string      `json:"label"`
	Enabled bool        `json:"enabled"`
}

// PaymentOptions lists every mode in display order.
func PaymentOptions() []PaymentOption {
	return []PaymentOption{
		{Mode: PaymentModeCOD, Label: "Cash on Delivery", Enabled: PaymentModeCOD.Enabled()},
		{Mode: PaymentModeCreditCard, Label: "Credit Card (coming soon)", Enabled: PaymentModeCreditCard.Enabled()},
		{Mode: PaymentModeDebitCard, Label: "Debit Card (coming soon)", Enabled: PaymentModeDebitCard.Enabled()},
		{Mode: PaymentModeUPI, Label: "UPI (coming soon)", Enabled: PaymentModeUPI.Enabled()},
	}
}

// ParsePaymentMode accepts both the wire value ("CREDIT_CARD") and the form
// selection ("credit_card"). An empty selection means cash on delivery.
func ParsePaymentMode(s string) (PaymentMode, bool) {
	if strings.TrimSpace(s) == "" {
		return PaymentModeCOD, true
	}
	switch PaymentMode(strings.ToUpper(strings.TrimSpace(s))) {
	case PaymentModeCOD:
		return PaymentModeCOD, true
	case PaymentModeCreditCard:
		return PaymentModeCreditCard, true
	case PaymentModeDebitCard:
		return PaymentModeDebitCard, true
	case PaymentModeUPI:
		return PaymentModeUPI, true
	default:
		return "", false
	}
}

// Address is the delivery address as typed by the buyer. Phone and postal code
// stay strings until the order is built.
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phoneNumber"`
	Line1      string `json:"addressLine1"`
	Line2      string `json:"addressLine2"`
	Line3      string `json:"addressLine3"`
	PostalCode string `json:"pincode"`
}

type OrderProduct struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// PlaceOrder is one per-seller order submission built at checkout time.
type PlaceOrder struct {
	TotalPrice   decimal.Decimal
	BuyerID      int64
	SellerID     int64
	ReceiverName string
	Phone        int64
	PostalCode   int64
	AddressLine1 string
	AddressLine2 string
	AddressLine3 string
	PaymentMode  PaymentMode
	Products     []OrderProduct
}

// Quantity is the number of units across the order's products.
func (o PlaceOrder) Quantity() int {
	n := 0
	for _, p := range o.Products {
		n += p.Quantity
	}
	return n
}
