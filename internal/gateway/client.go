// Package gateway is the HTTP client for the external payment provider.
// Only the initialize/verify/refund contract is consumed here; the
// provider's status vocabulary is mapped onto internal payment statuses
// by the settlement service, not by this package.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrGateway marks a provider-side failure. Always retryable by the
// caller with the same payment reference; never data corruption.
var ErrGateway = errors.New("payment gateway request failed")

const requestTimeout = 10 * time.Second

type Client struct {
	baseURL     string
	secret      string
	redirectURL string
	http        *http.Client
}

func NewClient(baseURL, secret, redirectURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		secret:      secret,
		redirectURL: redirectURL,
		http:        &http.Client{Timeout: requestTimeout},
	}
}

// envelope is the provider's response wrapper. requestSuccessful=false
// means the provider rejected the request even on HTTP 200.
type envelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

type InitializeRequest struct {
	Amount        decimal.Decimal
	CustomerName  string
	CustomerEmail string
	Reference     string
}

type InitializeResponse struct {
	CheckoutURL          string `json:"checkoutUrl"`
	TransactionReference string `json:"transactionReference"`
}

type VerifyResponse struct {
	PaymentStatus        string          `json:"paymentStatus"`
	TransactionReference string          `json:"transactionReference"`
	PaidOn               string          `json:"paidOn"`
	AmountPaid           decimal.Decimal `json:"amountPaid"`
}

// Initialize starts a checkout session with the provider and returns
// the hosted checkout URL plus the provider's transaction reference.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (InitializeResponse, error) {
	payload := map[string]string{
		"amount":           req.Amount.StringFixed(2),
		"customerName":     req.CustomerName,
		"customerEmail":    req.CustomerEmail,
		"paymentReference": req.Reference,
		"redirectUrl":      c.redirectURL,
	}

	var out InitializeResponse
	if err := c.post(ctx, "/api/v1/transactions/initialize", payload, &out); err != nil {
		return InitializeResponse{}, err
	}
	return out, nil
}

// Verify asks the provider for the current state of a payment.
func (c *Client) Verify(ctx context.Context, reference string) (VerifyResponse, error) {
	endpoint := "/api/v1/transactions/verify?paymentReference=" + url.QueryEscape(reference)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("build verify request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)

	var out VerifyResponse
	if err := c.do(httpReq, &out); err != nil {
		return VerifyResponse{}, err
	}
	return out, nil
}

// Refund asks the provider to return funds for a settled payment.
// Callers treat failures as flag-for-manual-follow-up, never as fatal.
func (c *Client) Refund(ctx context.Context, reference string, amount decimal.Decimal) error {
	payload := map[string]string{
		"paymentReference": reference,
		"refundAmount":     amount.StringFixed(2),
	}
	return c.post(ctx, "/api/v1/transactions/refund", payload, &struct{}{})
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal gateway payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)

	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"path":   req.URL.Path,
		}).Warn("payment gateway returned non-2xx")
		return fmt.Errorf("%w: http %d", ErrGateway, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	if !env.RequestSuccessful {
		return fmt.Errorf("%w: %s", ErrGateway, env.ResponseMessage)
	}
	if err := json.Unmarshal(env.ResponseBody, out); err != nil {
		return fmt.Errorf("%w: decode response body: %v", ErrGateway, err)
	}
	return nil
}
