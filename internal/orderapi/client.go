package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	PlaceOrderPath = "/api/v1/order/place"

	// DefaultFailureMessage is reported when the backend gives no usable reason.
	DefaultFailureMessage = "Failed to place order"

	maxResponseBody = 1 << 20 // 1MB
)

// ErrUnavailable is returned without a network call while the breaker is open.
var ErrUnavailable = errors.New("order service unavailable")

// StatusError is a non-2xx answer from the order backend.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("order service returned %d: %s", e.Status, e.Message)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client submits per-seller orders to the order backend in one batch request.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid order service url %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid order service url %q: scheme and host required", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "order-service",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return c, nil
}

// isSuccessful treats rejections (4xx) as healthy answers; only transport
// errors and 5xx count against the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Status < http.StatusInternalServerError
}

// Placement describes an accepted batch.
type Placement struct {
	// Orders holds the created orders when the backend answered with a JSON array.
	Orders []json.RawMessage
	// Count is len(Orders), or the number of submitted orders when the
	// response body was not an array.
	Count int
}

// PlaceOrders posts every order in one request. A non-2xx answer is a
// *StatusError; nothing is retried.
func (c *Client) PlaceOrders(ctx context.Context, orders []domain.PlaceOrder) (Placement, error) {
	payload, err := json.Marshal(toDTOs(orders))
	if err != nil {
		return Placement{}, fmt.Errorf("marshal orders: %w", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, PlaceOrderPath, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Placement{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Placement{}, err
	}

	var created []json.RawMessage
	if err := json.Unmarshal(body, &created); err != nil || created == nil {
		return Placement{Count: len(orders)}, nil
	}
	return Placement{Orders: created, Count: len(created)}, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode, Message: failureMessage(body)}
		c.log.Warn().Int("status", se.Status).Str("message", se.Message).Msg("order service rejected orders")
		return nil, se
	}
	return body, nil
}

// failureMessage picks the reason out of an error body: a JSON "message" or
// "error" field, else the raw text, else DefaultFailureMessage.
func failureMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return DefaultFailureMessage
}
