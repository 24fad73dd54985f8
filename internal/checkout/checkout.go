package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/grocery-cart/internal/cart"
	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/logger"
	"github.com/fjod/grocery-cart/internal/orderapi"
	"github.com/rs/zerolog"
)

const clearTimeout = 5 * time.Second

// OrderPlacer submits a batch of per-seller orders.
type OrderPlacer interface {
	PlaceOrders(ctx context.Context, orders []domain.PlaceOrder) (orderapi.Placement, error)
}

// Request is what the buyer submits. Blank address fields are taken from the
// stored profile.
type Request struct {
	Address     domain.Address
	PaymentMode domain.PaymentMode
}

type Result struct {
	OrdersCreated int
	Message       string
	Orders        []domain.PlaceOrder
}

type Service struct {
	placer   OrderPlacer
	profiles *Profiles
	log      zerolog.Logger
}

func NewService(placer OrderPlacer, profiles *Profiles, log zerolog.Logger) *Service {
	return &Service{placer: placer, profiles: profiles, log: log}
}

// Prefill returns the address the checkout form starts with for origin.
func (s *Service) Prefill(ctx context.Context, origin string) domain.Address {
	prof, _ := s.profiles.Get(ctx, origin)
	return prof.Prefill(domain.Address{})
}

// Checkout validates the cart in store, submits one order per seller and
// clears the whole cart on success. Validation failures never reach the
// network; a failed submission leaves the cart as it was.
func (s *Service) Checkout(ctx context.Context, origin string, store *cart.Store, req Request) (Result, error) {
	log := logger.WithTrace(ctx, s.log).With().Str("origin", origin).Logger()

	items := store.Items()
	order, err := s.validate(ctx, origin, items, req)
	if err != nil {
		log.Info().Err(err).Msg("checkout rejected")
		return Result{}, err
	}

	orders := BuildOrders(items, order)
	if len(orders) == 0 {
		err := invalid(ErrNoSellableItems, "items have no shop")
		log.Info().Err(err).Int("items", len(items)).Msg("checkout rejected")
		return Result{}, err
	}

	placed, err := s.placer.PlaceOrders(ctx, orders)
	if err != nil {
		log.Error().Err(err).Int("orders", len(orders)).Msg("order placement failed")
		return Result{}, &PlacementError{Message: placementMessage(err), Err: err}
	}

	// the orders exist now; the clear must land even if the caller is gone
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
	store.Clear(clearCtx)
	cancel()
	log.Info().Int("orders", placed.Count).Int64("buyer_id", order.BuyerID).Msg("orders placed")

	return Result{
		OrdersCreated: placed.Count,
		Message:       fmt.Sprintf("%d order(s) created.", placed.Count),
		Orders:        orders,
	}, nil
}

func (s *Service) validate(ctx context.Context, origin string, items []domain.LineItem, req Request) (Order, error) {
	if len(items) == 0 {
		return Order{}, invalid(ErrEmptyCart, "")
	}

	mode := req.PaymentMode
	if mode == "" {
		mode = domain.PaymentModeCOD
	}
	if !mode.Enabled() {
		return Order{}, invalid(ErrPaymentModeUnavailable, mode.String())
	}

	prof, _ := s.profiles.Get(ctx, origin)
	addr := trimAddress(prof.Prefill(req.Address))
	if addr.Name == "" || addr.Line1 == "" || addr.PostalCode == "" {
		return Order{}, invalid(ErrMissingAddress, "name, addressLine1 and pincode are required")
	}

	buyerID := prof.BuyerID()
	if buyerID == 0 {
		return Order{}, invalid(ErrBuyerUnresolved, "missing customer id")
	}

	var phone int64
	if addr.Phone != "" {
		n, err := strconv.ParseInt(addr.Phone, 10, 64)
		if err != nil {
			return Order{}, invalid(ErrInvalidPhone, addr.Phone)
		}
		phone = n
	}

	pin, err := strconv.ParseInt(addr.PostalCode, 10, 64)
	if err != nil {
		return Order{}, invalid(ErrInvalidPostalCode, addr.PostalCode)
	}

	return Order{
		BuyerID:     buyerID,
		Address:     addr,
		Phone:       phone,
		PostalCode:  pin,
		PaymentMode: mode,
	}, nil
}

func trimAddress(a domain.Address) domain.Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.Line3 = strings.TrimSpace(a.Line3)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	return a
}

func placementMessage(err error) string {
	var se *orderapi.StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	if errors.Is(err, orderapi.ErrUnavailable) {
		return "Order service is unavailable, please try again later"
	}
	return orderapi.DefaultFailureMessage
}
