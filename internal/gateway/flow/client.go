package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/roastery/internal/domain"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/httpclient"
	"github.com/utafrali/roastery/pkg/logger"
	"github.com/utafrali/roastery/pkg/tracing"
)

const (
	serviceName = "flow"

	opCreatePayment = "create_payment"
	opGetStatus     = "get_status"

	maxResponseBody = 1 << 20
)

// Config holds the merchant credentials and endpoint.
type Config struct {
	APIKey    string
	SecretKey string
	// Endpoint is the API root, e.g. https://sandbox.flow.cl/api.
	Endpoint url.URL
	Currency string
}

// PaymentRequest describes one payment session to open.
type PaymentRequest struct {
	CommerceOrder   string
	Subject         string
	Amount          int64
	Email           string
	URLConfirmation string
	URLReturn       string
	// Optional is an opaque JSON document echoed back in status answers.
	Optional string
}

// PaymentSession is the gateway's answer to a create call.
type PaymentSession struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	FlowOrder int64  `json:"flowOrder,omitempty"`
}

// RedirectURL is the hosted payment page for this session.
func (s *PaymentSession) RedirectURL() string {
	return s.URL + "?token=" + url.QueryEscape(s.Token)
}

// PaymentStatus is the gateway's view of a payment.
type PaymentStatus struct {
	FlowOrder     int64                `json:"flowOrder"`
	CommerceOrder string               `json:"commerceOrder"`
	RequestDate   string               `json:"requestDate"`
	Status        domain.GatewayStatus `json:"status"`
	Subject       string               `json:"subject"`
	Currency      string               `json:"currency"`
	Amount        json.Number          `json:"amount"`
	Payer         string               `json:"payer"`
	// Raw is the full payload as received, kept for audit.
	Raw json.RawMessage `json:"-"`
}

// AmountValue returns the amount rounded to whole currency units.
func (s *PaymentStatus) AmountValue() int64 {
	if n, err := s.Amount.Int64(); err == nil {
		return n
	}
	f, err := s.Amount.Float64()
	if err != nil {
		return 0
	}
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}

// Client calls the gateway through a circuit breaker. Status lookups are
// retried on transport errors and 5xx answers; payment creation is not.
type Client struct {
	http   *httpclient.CircuitBreakerClient
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(httpClient *httpclient.CircuitBreakerClient, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: logger,
	}
}

func (c *Client) endpoint(path string) string {
	return c.cfg.Endpoint.JoinPath(path).String()
}

// CreatePayment opens a payment session.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	ctx, span := tracing.Tracer("gateway/flow").Start(ctx, "flow.CreatePayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("flow.commerce_order", req.CommerceOrder),
		attribute.Int64("flow.amount", req.Amount),
	)

	params := url.Values{}
	params.Set("apiKey", c.cfg.APIKey)
	params.Set("commerceOrder", req.CommerceOrder)
	params.Set("subject", req.Subject)
	params.Set("currency", c.cfg.Currency)
	params.Set("amount", strconv.FormatInt(req.Amount, 10))
	params.Set("email", req.Email)
	params.Set("urlConfirmation", req.URLConfirmation)
	params.Set("urlReturn", req.URLReturn)
	if req.Optional != "" {
		params.Set("optional", req.Optional)
	}

	body := []byte(signed(params, c.cfg.SecretKey).Encode())
	httpReq, err := httpclient.NewFormRequest(ctx, http.MethodPost, c.endpoint("payment/create"), body)
	if err != nil {
		return nil, err
	}

	var session PaymentSession
	if _, err := c.do(ctx, opCreatePayment, httpReq, &session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if session.URL == "" || session.Token == "" {
		err := apperrors.Gateway("payment gateway returned an incomplete session", nil)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.WithContext(ctx, c.logger).InfoContext(ctx, "payment session created",
		slog.String("commerce_order", req.CommerceOrder),
		slog.Int64("flow_order", session.FlowOrder),
	)
	return &session, nil
}

// GetStatus fetches the status of the payment identified by token.
func (c *Client) GetStatus(ctx context.Context, token string) (*PaymentStatus, error) {
	ctx, span := tracing.Tracer("gateway/flow").Start(ctx, "flow.GetStatus")
	defer span.End()

	params := url.Values{}
	params.Set("apiKey", c.cfg.APIKey)
	params.Set("token", token)

	u := c.endpoint("payment/getStatus") + "?" + signed(params, c.cfg.SecretKey).Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}

	var status PaymentStatus
	raw, err := c.do(ctx, opGetStatus, httpReq, &status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	status.Raw = raw
	span.SetAttributes(
		attribute.Int("flow.status", int(status.Status)),
		attribute.String("flow.commerce_order", status.CommerceOrder),
	)
	return &status, nil
}

// do sends req, decodes a 2xx JSON body into out and returns the raw body.
// Every failure is an *apperrors.AppError with the gateway code.
func (c *Client) do(ctx context.Context, op string, req *http.Request, out any) (json.RawMessage, error) {
	start := time.Now()
	defer func() { requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, c.fail(ctx, op, withoutQuery(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.fail(ctx, op, httpclient.ParseResponseError(resp, serviceName))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, c.fail(ctx, op, fmt.Errorf("read response: %w", err))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, c.fail(ctx, op, fmt.Errorf("decode response: %w", err))
	}

	requestsTotal.WithLabelValues(op, outcomeSuccess).Inc()
	return json.RawMessage(raw), nil
}

// fail records the outcome and converts err into a gateway error carrying
// the gateway's own message when it sent one.
func (c *Client) fail(ctx context.Context, op string, err error) error {
	var (
		outcome = outcomeError
		message string
	)

	var respErr *httpclient.ResponseError
	switch {
	case errors.Is(err, httpclient.ErrCircuitOpen):
		outcome = outcomeUnavailable
		message = "payment gateway temporarily unavailable"
	case errors.As(err, &respErr):
		outcome = outcomeRejected
		if respErr.Temporary() {
			outcome = outcomeUnavailable
		}
		message = strings.TrimSpace(respErr.Message)
	}
	requestsTotal.WithLabelValues(op, outcome).Inc()

	logger.WithContext(ctx, c.logger).WarnContext(ctx, "payment gateway call failed",
		slog.String("operation", op),
		slog.String("outcome", outcome),
		slog.String("error", err.Error()),
	)
	return apperrors.Gateway(message, err)
}

// withoutQuery strips the signed query string, which carries the API key,
// from transport errors before they are logged or wrapped.
func withoutQuery(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, perr := url.Parse(urlErr.URL)
	if perr != nil {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	u.RawQuery = ""
	return fmt.Errorf("%s %s: %w", urlErr.Op, u.String(), urlErr.Err)
}
