package payment

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

	"github.com/satoshigo/hunt/pkg/core"
)

// Client is an LNbits-compatible payment API client. Each call is
// authenticated with the wallet key it is given.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a payment client. A nil httpClient gets a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type createInvoiceRequest struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

type createInvoiceResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	Bolt11         string `json:"bolt11"`
}

// CreateInvoice asks the rail for an incoming invoice of amount sats.
func (c *Client) CreateInvoice(ctx context.Context, walletKey string, amount int64, memo string) (Invoice, error) {
	var resp createInvoiceResponse
	body := createInvoiceRequest{Out: false, Amount: amount, Memo: memo}
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments", walletKey, body, &resp); err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}

	req := resp.PaymentRequest
	if req == "" {
		req = resp.Bolt11
	}
	if resp.PaymentHash == "" || req == "" {
		return Invoice{}, fmt.Errorf("create invoice: incomplete response: %w", core.ErrUpstreamUnavailable)
	}
	return Invoice{PaymentHash: resp.PaymentHash, PaymentRequest: req, Amount: amount}, nil
}

// CheckInvoice reports whether the invoice identified by paymentHash was paid.
func (c *Client) CheckInvoice(ctx context.Context, walletKey, paymentHash string) (Status, error) {
	var st Status
	path := "/api/v1/payments/" + url.PathEscape(paymentHash)
	if err := c.do(ctx, http.MethodGet, path, walletKey, nil, &st); err != nil {
		return Status{}, fmt.Errorf("check invoice %s: %w", paymentHash, err)
	}
	return st, nil
}

// do sends one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path, walletKey string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", walletKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", core.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", core.ErrUpstreamUnavailable, err)
	}
	return nil
}
