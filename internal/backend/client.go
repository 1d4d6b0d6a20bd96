// Package backend is the HTTP client for the trading backend REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"options-dashboard/internal/config"
	"options-dashboard/internal/errors"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
	"options-dashboard/internal/resilience"
	"options-dashboard/internal/tracing"
	"options-dashboard/pkg/utils"
)

// Client talks to the trading backend. Reads are retried with backoff;
// writes are sent exactly once.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userID     string
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	retry      utils.RetryConfig
	logger     zerolog.Logger
}

// NewClient constructs a backend client from configuration.
func NewClient(cfg config.BackendConfig, logger zerolog.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.NewValidationError("backend.base_url", raw, "must not be empty")
	}
	parsed, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse backend.base_url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.NewValidationError("backend.base_url", raw, "scheme must be http or https")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	retry := utils.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.ShouldRetry = isTransient

	userID := strings.TrimSpace(cfg.UserID)
	if userID == "" {
		userID = "1"
	}

	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		userID:     userID,
		limiter:    rate.NewLimiter(limit, burst),
		breaker: resilience.NewCircuitBreaker("backend", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
			IsFailure:        isTransient,
		}),
		retry:  retry,
		logger: logging.WithComponent(logger, "backend"),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// UserID returns the user the client acts for.
func (c *Client) UserID() string {
	return c.userID
}

// Breaker exposes the circuit breaker for status displays.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// OptionChain fetches the option chain for u. A chain response carrying an
// error message is returned as is; callers decide whether it is usable.
func (c *Client) OptionChain(ctx context.Context, u models.Underlying) (*models.OptionChain, error) {
	var chain models.OptionChain
	path := "/option-chain/" + url.PathEscape(string(u))
	if err := c.get(ctx, path, &chain); err != nil {
		return nil, err
	}
	return &chain, nil
}

// Positions fetches the user's open positions and total P&L.
func (c *Client) Positions(ctx context.Context) (*models.PositionsData, error) {
	var resp models.PositionsResponse
	path := "/db-positions/" + url.PathEscape(c.userID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	if resp.Status != models.StatusSuccess {
		return nil, errors.NewBackendError(path, http.StatusOK, statusMessage(resp.Status, resp.Message), nil)
	}
	if resp.Data.Net == nil {
		resp.Data.Net = []models.Position{}
	}
	return &resp.Data, nil
}

// PlaceOrder submits an order. An empty UserID is filled in.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResponse, error) {
	if req.UserID == "" {
		req.UserID = c.userID
	}
	var resp models.OrderResponse
	if err := c.post(ctx, "/place-order", req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != models.StatusSuccess {
		return nil, errors.NewOrderError(resp.OrderID, req.Symbol, string(req.Action),
			statusMessage(resp.Status, resp.Message), errors.ErrOrderRejected)
	}
	logging.LogOrder(c.logger, resp.OrderID, resp.TradingSymbol, string(req.Action), req.Quantity*req.LotSize, req.Price)
	return &resp, nil
}

// SquareOff closes one trade at market.
func (c *Client) SquareOff(ctx context.Context, id models.TradeID) (*models.SquareOffResponse, error) {
	if id == "" {
		return nil, errors.NewValidationError("trade_id", "", "must not be empty")
	}
	var resp models.SquareOffResponse
	path := "/square-off-trade/" + url.PathEscape(string(id))
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != models.StatusSuccess {
		return nil, errors.NewBackendError(path, http.StatusOK, statusMessage(resp.Status, resp.Message), nil)
	}
	if resp.TradeID == "" {
		resp.TradeID = id
	}
	return &resp, nil
}

// ExitAll closes every open trade of the user.
func (c *Client) ExitAll(ctx context.Context) (*models.StatusResponse, error) {
	path := "/exit-all-positions/" + url.PathEscape(c.userID)
	return c.postStatus(ctx, path, nil)
}

// ExitSelected closes the given trades.
func (c *Client) ExitSelected(ctx context.Context, ids []models.TradeID) (*models.StatusResponse, error) {
	if len(ids) == 0 {
		return nil, errors.NewValidationError("trade_ids", "", "at least one trade id is required")
	}
	body := models.ExitSelectedRequest{TradeIDs: ids, UserID: c.userID}
	return c.postStatus(ctx, "/exit-selected-positions", body)
}

func (c *Client) postStatus(ctx context.Context, path string, payload any) (*models.StatusResponse, error) {
	var resp models.StatusResponse
	if err := c.post(ctx, path, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != models.StatusSuccess {
		return nil, errors.NewBackendError(path, http.StatusOK, statusMessage(resp.Status, resp.Message), nil)
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return utils.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.doRequest(ctx, http.MethodGet, path, nil, out)
	})
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any, out any) (err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "backend "+method+" "+routeOf(path),
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)
	defer func() {
		tracing.End(span, err)
		logging.LogAPICall(c.logger, method, path, statusOf(err), time.Since(start), err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrRateLimited, err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, payload, out)
	})
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s %s", errors.ErrTimeout, method, path)
		}
		return fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var cause error
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			cause = errors.ErrConnectionFailed
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			if strings.HasPrefix(path, "/square-off-trade/") {
				cause = errors.ErrTradeNotFound
			}
		case http.StatusTooManyRequests:
			cause = errors.ErrRateLimited
		}
		return errors.NewBackendError(path, resp.StatusCode, errorDetail(resp.Status, data), cause)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewBackendError(path, resp.StatusCode, "malformed response body", err)
	}
	return nil
}

// statusOf is the HTTP status behind err: 200 on success, 0 when the
// request never got a response.
func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var be *errors.BackendError
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}

// isTransient reports whether err is worth retrying and counts against the
// circuit breaker. Backend rejections of a well-formed request are neither.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var be *errors.BackendError
	if errors.As(err, &be) {
		return be.Status >= 500 || be.Status == http.StatusTooManyRequests
	}
	return errors.Is(err, errors.ErrConnectionFailed) || errors.Is(err, errors.ErrTimeout)
}

// errorDetail extracts the message of a FastAPI style {"detail": ...} or a
// {"message": ...} error body, falling back to the raw text.
func errorDetail(status string, data []byte) string {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return status
	}
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		switch d := body.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return trimmed
}

func statusMessage(status, message string) string {
	if message != "" {
		return message
	}
	if status == "" {
		return "missing status"
	}
	return "status " + status
}

// routeOf strips path parameters so span names stay low-cardinality.
func routeOf(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) == 0 {
		return path
	}
	return "/" + parts[0]
}
