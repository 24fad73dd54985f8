package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/grocery-cart/internal/cart"
	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	sessions *cart.Sessions
	timeout  time.Duration
}

func NewCartHandler(sessions *cart.Sessions, timeout time.Duration) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		timeout:  timeout,
	}
}

// AddItemRequestDTO mirrors the catalogue's product card. price may arrive as
// a string or a number.
type AddItemRequestDTO struct {
	ProductID    int64           `json:"id"`
	Name         string          `json:"productName"`
	Price        json.RawMessage `json:"price"`
	Discount     int             `json:"discount"`
	Quantity     int             `json:"quantity"`
	Image        string          `json:"image"`
	Category     string          `json:"category"`
	Manufacturer string          `json:"manufacturer"`
	ShopID       *int64          `json:"shopId"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Items    []domain.LineItem `json:"items"`
	Count    int               `json:"count"`
	Subtotal json.Number       `json:"subtotal"`
}

func cartResponse(store *cart.Store) CartResponseDTO {
	items := store.Items()
	return CartResponseDTO{
		Items:    items,
		Count:    store.Count(),
		Subtotal: json.Number(store.Subtotal().StringFixed(2)),
	}
}

func (h *CartHandler) store(ctx context.Context) *cart.Store {
	return h.sessions.Store(ctx, getSessionID(ctx))
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	respondJSON(w, http.StatusOK, cartResponse(h.store(ctx)))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "id must be positive")
		return
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	if req.Discount < 0 || req.Discount > 100 {
		respondError(w, http.StatusBadRequest, "invalid_discount", "discount must be between 0 and 100")
		return
	}
	price, ok := priceText(req.Price)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_price", "price must be a string or a number")
		return
	}

	store := h.store(ctx)
	store.AddItem(ctx, domain.LineItem{
		ProductID:       req.ProductID,
		Name:            req.Name,
		UnitPrice:       price,
		DiscountPercent: req.Discount,
		Quantity:        req.Quantity,
		ImageURL:        req.Image,
		Category:        req.Category,
		Manufacturer:    req.Manufacturer,
		SellerID:        req.ShopID,
	})

	respondJSON(w, http.StatusCreated, cartResponse(store))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	store := h.store(ctx)
	store.UpdateQuantity(ctx, productID, req.Quantity)

	respondJSON(w, http.StatusOK, cartResponse(store))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	store := h.store(ctx)
	store.RemoveItem(ctx, productID)

	respondJSON(w, http.StatusOK, cartResponse(store))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.store(ctx)
	store.Clear(ctx)

	respondJSON(w, http.StatusOK, cartResponse(store))
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

// priceText keeps the price as text. Strings are taken as is, so a catalogue
// price that is not a number is stored and later counted as 0.
func priceText(raw json.RawMessage) (string, bool) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
