// Package hblpay is a client for a bank hosted payment page gateway.
package hblpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"travelBooker/internal/config"
	"travelBooker/internal/tracing"
)

var ErrInvalidSignature = errors.New("invalid callback signature")

// Gateway session and callback statuses.
const (
	StatusPending   = "PENDING"
	StatusSuccess   = "SUCCESS"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hblpay: status %d: %s", e.StatusCode, e.Message)
}

type SessionRequest struct {
	OrderRef      string `json:"order_ref"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	ReturnURL     string `json:"return_url"`
}

type Session struct {
	ID          string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type SessionStatus struct {
	SessionID string `json:"session_id"`
	OrderRef  string `json:"order_ref"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	TxnID     string `json:"txn_id"`
}

// Callback is the signed notification the gateway posts after a payment attempt.
type Callback struct {
	OrderRef  string `json:"order_ref" form:"order_ref"`
	SessionID string `json:"session_id" form:"session_id"`
	Status    string `json:"status" form:"status"`
	Amount    int64  `json:"amount" form:"amount"`
	TxnID     string `json:"txn_id" form:"txn_id"`
	Signature string `json:"signature" form:"signature"`
}

// Payload is the string the gateway signs for a callback.
func (cb Callback) Payload() string {
	return strings.Join([]string{
		cb.OrderRef,
		cb.SessionID,
		cb.Status,
		strconv.FormatInt(cb.Amount, 10),
		cb.TxnID,
	}, "|")
}

type Client struct {
	baseURL    string
	merchantID string
	secret     []byte
	returnURL  string
	http       *http.Client
}

func New(cfg config.Payment) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		merchantID: cfg.MerchantID,
		secret:     []byte(cfg.Secret),
		returnURL:  cfg.ReturnURL,
		http:       tracing.NewHTTPClient(cfg.Timeout),
	}
}

func (c *Client) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	const op = "clients.hblpay.CreateSession"

	if req.ReturnURL == "" {
		req.ReturnURL = c.returnURL
	}

	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/checkout/sessions", req, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.ID == "" || s.RedirectURL == "" {
		return nil, fmt.Errorf("%s: incomplete session in gateway response", op)
	}

	return &s, nil
}

func (c *Client) VerifyCallback(cb Callback) error {
	got, err := hex.DecodeString(cb.Signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(cb.Payload()))

	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}

	return nil
}

func (c *Client) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	const op = "clients.hblpay.Status"

	var s SessionStatus
	if err := c.do(ctx, http.MethodGet, "/api/checkout/sessions/"+url.PathEscape(sessionID), nil, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &s, nil
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

func (c *Client) Refund(ctx context.Context, sessionID string, amount int64) error {
	const op = "clients.hblpay.Refund"

	path := "/api/checkout/sessions/" + url.PathEscape(sessionID) + "/refunds"
	if err := c.do(ctx, http.MethodPost, path, refundRequest{Amount: amount}, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// CancelSession voids a session so the guest can no longer pay through it.
func (c *Client) CancelSession(ctx context.Context, sessionID string) error {
	const op = "clients.hblpay.CancelSession"

	path := "/api/checkout/sessions/" + url.PathEscape(sessionID) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("X-Merchant-Id", c.merchantID)
	req.Header.Set("X-Signature", c.Sign(payload))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err = json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
