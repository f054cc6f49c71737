package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/sethvargo/go-retry"

	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/metrics"
)

const (
	opCreateCheckout = "create_checkout"
	opGetPayment     = "get_payment"
)

var (
	// ErrNotFound is returned when the gateway has no such resource.
	ErrNotFound = errors.New("mercadopago: resource not found")

	errAccessTokenRequired = errors.New("mercadopago access token is required")
)

// APIError is a non-2xx gateway answer.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// GatewayStatus exposes the HTTP status for error dumps.
func (e *APIError) GatewayStatus() int {
	return e.StatusCode
}

// Retryable reports whether the failure is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type preferenceAPI interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

type paymentAPI interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
}

// Client wraps the Mercado Pago SDK with per-attempt timeouts, retries, metrics and error mapping.
type Client struct {
	preferences preferenceAPI
	payments    paymentAPI
	timeout     time.Duration
	maxRetries  uint64
	baseDelay   time.Duration
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
}

// ClientParams wires the optional collaborators of NewClient.
type ClientParams struct {
	Config     config.MercadoPagoConfig
	HTTPClient *http.Client
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
}

// NewClient validates the credentials and builds the SDK clients.
func NewClient(params ClientParams) (*Client, error) {
	token := strings.TrimSpace(params.Config.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}

	opts := []mpconfig.Option{}
	if params.HTTPClient != nil {
		opts = append(opts, mpconfig.WithHTTPClient(params.HTTPClient))
	}
	sdkCfg, err := mpconfig.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("configure mercadopago sdk: %w", err)
	}

	return newClient(params, preference.NewClient(sdkCfg), payment.NewClient(sdkCfg)), nil
}

func newClient(params ClientParams, preferences preferenceAPI, payments paymentAPI) *Client {
	cfg := params.Config
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	delay := cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &Client{
		preferences: preferences,
		payments:    payments,
		timeout:     timeout,
		maxRetries:  cfg.MaxRetries,
		baseDelay:   delay,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}
}

// CreateCheckout creates a hosted checkout preference. 4xx answers are returned without retrying.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("checkout requires at least one item")
	}
	sdkReq := req.toPreferenceRequest()

	var resp *preference.Response
	err := c.call(ctx, opCreateCheckout, func(ctx context.Context) error {
		out, err := c.preferences.Create(ctx, sdkReq)
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	checkoutURL := resp.InitPoint
	if checkoutURL == "" {
		checkoutURL = resp.SandboxInitPoint
	}
	if resp.ID == "" || checkoutURL == "" {
		return nil, fmt.Errorf("mercadopago %s: incomplete preference response", opCreateCheckout)
	}
	return &Checkout{PreferenceID: resp.ID, CheckoutURL: checkoutURL}, nil
}

// GetPayment fetches the authoritative payment state. Unknown ids yield ErrNotFound.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.New("payment id is required")
	}
	id, err := strconv.Atoi(paymentID)
	if err != nil || id <= 0 {
		// Mercado Pago payment ids are numeric; anything else cannot exist.
		return nil, ErrNotFound
	}

	var resp *payment.Response
	err = c.call(ctx, opGetPayment, func(ctx context.Context) error {
		out, err := c.payments.Get(ctx, id)
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paymentFromSDK(resp), nil
}

func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	started := time.Now()
	backoff := retry.WithMaxRetries(c.maxRetries, retry.WithJitterPercent(20, retry.NewExponential(c.baseDelay)))
	attempt := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := mapSDKError(op, fn(attemptCtx))
		cancel()
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return err
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return err
		}
		if c.logg != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{"operation": op, "attempt": attempt})
			c.logg.Warn(logCtx, fmt.Sprintf("mercadopago call failed, retrying: %v", err))
		}
		return retry.RetryableError(err)
	})

	c.metrics.ObserveGateway(op, time.Since(started), err != nil && !errors.Is(err, ErrNotFound))
	return err
}

func mapSDKError(op string, err error) error {
	if err == nil {
		return nil
	}
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return &APIError{Operation: op, StatusCode: respErr.StatusCode, Body: strings.TrimSpace(respErr.Message)}
	}
	return fmt.Errorf("mercadopago %s: %w", op, err)
}
