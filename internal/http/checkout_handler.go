package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/grocery-cart/internal/cart"
	"github.com/fjod/grocery-cart/internal/checkout"
	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/orderapi"
)

type CheckoutHandler struct {
	sessions *cart.Sessions
	checkout *checkout.Service
	timeout  time.Duration
}

func NewCheckoutHandler(sessions *cart.Sessions, svc *checkout.Service, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
		checkout: svc,
		timeout:  timeout,
	}
}

type CheckoutRequestDTO struct {
	Name         string              `json:"name"`
	PhoneNumber  checkout.FlexString `json:"phoneNumber"`
	AddressLine1 string              `json:"addressLine1"`
	AddressLine2 string              `json:"addressLine2"`
	AddressLine3 string              `json:"addressLine3"`
	Pincode      checkout.FlexString `json:"pincode"`
	PaymentMode  string              `json:"paymentMode"`
}

type CheckoutResponseDTO struct {
	OrdersCreated int    `json:"ordersCreated"`
	Message       string `json:"message"`
}

type CheckoutSummaryDTO struct {
	Address      domain.Address         `json:"address"`
	PaymentModes []domain.PaymentOption `json:"paymentModes"`
	Cart         CartResponseDTO        `json:"cart"`
}

// GET /api/v1/checkout/payment-modes
func (h *CheckoutHandler) PaymentModes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, domain.PaymentOptions())
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	origin := getSessionID(ctx)
	respondJSON(w, http.StatusOK, CheckoutSummaryDTO{
		Address:      h.checkout.Prefill(ctx, origin),
		PaymentModes: domain.PaymentOptions(),
		Cart:         cartResponse(h.sessions.Store(ctx, origin)),
	})
}

// POST /api/v1/checkout
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	mode, ok := domain.ParsePaymentMode(req.PaymentMode)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_payment_mode", "paymentMode must be one of COD, CREDIT_CARD, DEBIT_CARD, UPI")
		return
	}

	origin := getSessionID(ctx)
	res, err := h.checkout.Checkout(ctx, origin, h.sessions.Store(ctx, origin), checkout.Request{
		Address: domain.Address{
			Name:       req.Name,
			Phone:      string(req.PhoneNumber),
			Line1:      req.AddressLine1,
			Line2:      req.AddressLine2,
			Line3:      req.AddressLine3,
			PostalCode: string(req.Pincode),
		},
		PaymentMode: mode,
	})
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		OrdersCreated: res.OrdersCreated,
		Message:       res.Message,
	})
}

func handleCheckoutError(w http.ResponseWriter, err error) {
	var pe *checkout.PlacementError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "Cart is empty")
	case errors.Is(err, checkout.ErrPaymentModeUnavailable):
		respondErrorDetails(w, http.StatusBadRequest, "payment_mode_unavailable", "Payment mode is not available yet", err.Error())
	case errors.Is(err, checkout.ErrMissingAddress):
		respondErrorDetails(w, http.StatusBadRequest, "missing_address", "Missing address details", "Please fill required fields.")
	case errors.Is(err, checkout.ErrBuyerUnresolved):
		respondErrorDetails(w, http.StatusUnauthorized, "user_not_identified", "User not identified", "Missing customer id.")
	case errors.Is(err, checkout.ErrInvalidPhone):
		respondErrorDetails(w, http.StatusBadRequest, "invalid_phone", "Phone number must be numeric", err.Error())
	case errors.Is(err, checkout.ErrInvalidPostalCode):
		respondErrorDetails(w, http.StatusBadRequest, "invalid_pincode", "Pincode must be numeric", err.Error())
	case errors.Is(err, checkout.ErrNoSellableItems):
		respondErrorDetails(w, http.StatusBadRequest, "missing_shop_information", "Missing shop information", "Items have no shopId.")
	case errors.As(err, &pe):
		status := http.StatusBadGateway
		if errors.Is(err, orderapi.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		respondErrorDetails(w, status, "order_placement_failed", "Failed to place order", pe.Message)
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
