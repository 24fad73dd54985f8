package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePaymentMode(t *testing.T) {
	tests := []struct {
		in   string
		want PaymentMode
		ok   bool
	}{
		{"", PaymentModeCOD, true},
		{"COD", PaymentModeCOD, true},
		{"cod", PaymentModeCOD, true},
		{" credit_card ", PaymentModeCreditCard, true},
		{"DEBIT_CARD", PaymentModeDebitCard, true},
		{"upi", PaymentModeUPI, true},
		{"BITCOIN", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePaymentMode(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPaymentOptions_OnlyCODEnabled(t *testing.T) {
	opts := PaymentOptions()
	assert.Len(t, opts, 4)
	assert.Equal(t, PaymentModeCOD, opts[0].Mode)
	assert.Equal(t, "Cash on Delivery", opts[0].Label)

	for _, o := range opts {
		assert.Equal(t, o.Mode == PaymentModeCOD, o.Enabled, o.Mode.String())
	}
}

func TestPlaceOrder_Quantity(t *testing.T) {
	o := PlaceOrder{Products: []OrderProduct{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 3}}}
	assert.Equal(t, 5, o.Quantity())
}
