package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eventix/eventix/config"
	"github.com/shopspring/decimal"
)

// Status is the gateway's view of a checkout.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusPending Status = "PENDING"
)

type Item struct {
	EventID   int64           `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

type Buyer struct {
	ID        string `json:"id"`
	FirstName string `json:"name"`
	LastName  string `json:"surname"`
	Email     string `json:"email"`
	Phone     string `json:"gsmNumber,omitempty"`
	IP        string `json:"ip,omitempty"`
}

type CheckoutRequest struct {
	ConversationID string          `json:"conversationId"`
	Price          decimal.Decimal `json:"price"`
	PaidPrice      decimal.Decimal `json:"paidPrice"`
	Currency       string          `json:"currency"`
	CallbackURL    string          `json:"callbackUrl"`
	Buyer          Buyer           `json:"buyer"`
	Items          []Item          `json:"basketItems"`
}

type CheckoutSession struct {
	Token       string
	RedirectURL string
}

type CheckoutResult struct {
	Token  string
	Status Status
	Reason string
}

// ErrGatewayUnavailable wraps transport-level failures that survived the full
// retry budget. Callers treat it as a payment failure, never as success.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Client is the outbound boundary to the external payment provider.
type Client interface {
	InitializeCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)
	RetrieveCheckout(ctx context.Context, token string) (*CheckoutResult, error)
}

type HTTPClient struct {
	baseURL     string
	apiKey      string
	secretKey   string
	maxAttempts int
	backoffBase time.Duration
	hc          *http.Client
}

func NewHTTPClient(cfg config.GatewayConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := time.Duration(cfg.BackoffBaseMillis) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &HTTPClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		secretKey:   cfg.SecretKey,
		maxAttempts: maxAttempts,
		backoffBase: backoff,

		// every call carries a hard upper bound
		hc: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) InitializeCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	var reply struct {
		Status         string `json:"status"`
		ErrorMessage   string `json:"errorMessage"`
		Token          string `json:"token"`
		PaymentPageURL string `json:"paymentPageUrl"`
	}
	if err := c.do(ctx, "/checkout/initialize", req, &reply); err != nil {
		return nil, err
	}
	if reply.Status != "success" {
		return nil, fmt.Errorf("gateway rejected checkout: %s", reply.ErrorMessage)
	}
	return &CheckoutSession{Token: reply.Token, RedirectURL: reply.PaymentPageURL}, nil
}

func (c *HTTPClient) RetrieveCheckout(ctx context.Context, token string) (*CheckoutResult, error) {
	body := struct {
		Token string `json:"token"`
	}{Token: token}

	var reply struct {
		Status        string `json:"status"`
		ErrorMessage  string `json:"errorMessage"`
		Token         string `json:"token"`
		PaymentStatus string `json:"paymentStatus"`
	}
	if err := c.do(ctx, "/checkout/retrieve", body, &reply); err != nil {
		return nil, err
	}
	if reply.Status != "success" {
		return &CheckoutResult{Token: token, Status: StatusFailure, Reason: reply.ErrorMessage}, nil
	}

	result := &CheckoutResult{Token: reply.Token}
	switch reply.PaymentStatus {
	case "SUCCESS":
		result.Status = StatusSuccess
	case "INIT_THREEDS", "CALLBACK_THREEDS", "PENDING":
		result.Status = StatusPending
	default:
		result.Status = StatusFailure
		result.Reason = reply.ErrorMessage
	}
	return result, nil
}

// do posts a signed JSON request and retries transport and server-side
// failures with exponential backoff up to the attempt ceiling. Client errors
// (4xx) are permanent and not retried.
func (c *HTTPClient) do(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: marshal request: %w", err)
	}

	backoff := c.backoffBase
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.once(ctx, path, body, out)
		if err == nil {
			return nil
		}
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %d attempts: %v", ErrGatewayUnavailable, c.maxAttempts, lastErr)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (c *HTTPClient) once(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &permanentError{err: fmt.Errorf("gateway: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("X-Signature", signHMAC(body, []byte(c.secretKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: http.Do: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("gateway: server error: %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return &permanentError{err: fmt.Errorf("gateway: request rejected: %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}

func signHMAC(body, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ Client = (*HTTPClient)(nil)
