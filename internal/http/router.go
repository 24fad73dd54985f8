package http

import (
	"net/http"
	"time"

	"github.com/fjod/grocery-cart/internal/cart"
	"github.com/fjod/grocery-cart/internal/checkout"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout   time.Duration
	MaxRequestBody   int64
	CORSAllowOrigins []string
}

// NewRouter assembles the storefront API. Everything under /api/v1 is scoped
// to the caller's session.
func NewRouter(cfg RouterConfig, log zerolog.Logger, sessions *cart.Sessions, svc *checkout.Service, profiles *checkout.Profiles) http.Handler {
	cartHandler := NewCartHandler(sessions, cfg.RequestTimeout)
	checkoutHandler := NewCheckoutHandler(sessions, svc, cfg.RequestTimeout)
	profileHandler := NewProfileHandler(profiles, cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDHeader)
	r.Use(AccessLog(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.MaxRequestBody > 0 {
		r.Use(MaxBodySize(cfg.MaxRequestBody))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
		})

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.PutProfile)
			r.Delete("/", profileHandler.DeleteProfile)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.Summary)
			r.Post("/", checkoutHandler.PlaceOrder)
			r.Get("/payment-modes", checkoutHandler.PaymentModes)
		})
	})

	origins := cfg.CORSAllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", SessionHeader, "X-Request-ID"},
		ExposedHeaders: []string{SessionHeader, "X-Request-ID"},
		MaxAge:         300,
	})

	return c.Handler(otelhttp.NewHandler(r, "storefront"))
}
