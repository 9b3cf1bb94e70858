// Package hotelbeds is a client for the Hotelbeds booking APIs.
package hotelbeds

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"golang.org/x/time/rate"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"travelBooker/internal/config"
	"travelBooker/internal/lib/money"
	"travelBooker/internal/metrics"
	"travelBooker/internal/models"
	"travelBooker/internal/tracing"
)

var (
	ErrRateNotFound    = errors.New("rate not found")
	ErrBookingNotFound = errors.New("supplier booking not found")
)

// APIError is a non-2xx answer from the supplier.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hotelbeds: status %d: %s %s", e.StatusCode, e.Code, e.Message)
}

// Rejected reports a definitive refusal. Timeouts, throttling and 5xx do not
// tell whether the supplier acted on the request.
func (e *APIError) Rejected() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}

	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsRejected reports whether err is a definitive supplier refusal.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Rejected()
}

type Rate struct {
	RateKey  string
	TotalNet int64
	Currency string
}

type BookRequest struct {
	Type            models.BookingType
	RateKey         string
	ClientReference string
	HolderName      string
	HolderEmail     string
	HolderPhone     string
	Adults          int
	Children        int
	ServiceDate     time.Time
	EndDate         *time.Time
	Remark          string
}

type Confirmation struct {
	Reference       string
	ClientReference string
	Status          string
	TotalNet        int64
	Currency        string
}

type Client struct {
	baseURL string
	apiKey  string
	secret  string
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func New(cfg config.Supplier) *Client {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		secret:  cfg.Secret,
		http:    tracing.NewHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
	}
}

// Signature is the X-Signature header value for the given unix time.
func Signature(apiKey, secret string, ts int64) string {
	sum := sha256.Sum256([]byte(apiKey + secret + strconv.FormatInt(ts, 10)))
	return hex.EncodeToString(sum[:])
}

type checkRateRequest struct {
	Rooms []rateKeyDTO `json:"rooms"`
}

type rateKeyDTO struct {
	RateKey string `json:"rateKey"`
}

type checkRateResponse struct {
	Hotel struct {
		Currency string `json:"currency"`
		TotalNet string `json:"totalNet"`
		Rooms    []struct {
			Rates []struct {
				RateKey string `json:"rateKey"`
				Net     string `json:"net"`
			} `json:"rates"`
		} `json:"rooms"`
	} `json:"hotel"`
}

// CheckRate confirms a hotel rate key is still bookable and returns its price.
func (c *Client) CheckRate(ctx context.Context, rateKey string) (*Rate, error) {
	const op = "clients.hotelbeds.CheckRate"

	var resp checkRateResponse

	err := c.do(ctx, "checkrate", http.MethodPost, "/hotel-api/1.0/checkrates", checkRateRequest{
		Rooms: []rateKeyDTO{{RateKey: rateKey}},
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Rejected() {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrRateNotFound, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	total := resp.Hotel.TotalNet
	found := false
	for _, room := range resp.Hotel.Rooms {
		for _, r := range room.Rates {
			if r.RateKey == rateKey {
				found = true
				if total == "" {
					total = r.Net
				}
			}
		}
	}

	if !found {
		return nil, fmt.Errorf("%s: %w", op, ErrRateNotFound)
	}

	amount, err := money.ParseMinor(total)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Rate{RateKey: rateKey, TotalNet: amount, Currency: resp.Hotel.Currency}, nil
}

type holderDTO struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type bookRequestDTO struct {
	Holder          holderDTO `json:"holder"`
	ClientReference string    `json:"clientReference"`
	Remark          string    `json:"remark,omitempty"`
	Language        string    `json:"language"`
	Items           []itemDTO `json:"items"`
}

type itemDTO struct {
	RateKey  string `json:"rateKey"`
	Adults   int    `json:"adults"`
	Children int    `json:"children"`
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
}

type bookingDTO struct {
	Reference       string `json:"reference"`
	ClientReference string `json:"clientReference"`
	Status          string `json:"status"`
	TotalNet        string `json:"totalNet"`
	Currency        string `json:"currency"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

type bookingListResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

// Book places a booking. The call is not retried: a non-rejection failure
// leaves the outcome unknown.
func (c *Client) Book(ctx context.Context, req BookRequest) (*Confirmation, error) {
	const op = "clients.hotelbeds.Book"

	item := itemDTO{
		RateKey:  req.RateKey,
		Adults:   req.Adults,
		Children: req.Children,
		From:     req.ServiceDate.Format(time.DateOnly),
	}
	if req.EndDate != nil {
		item.To = req.EndDate.Format(time.DateOnly)
	}

	var resp bookingResponse

	err := c.do(ctx, "book", http.MethodPost, bookingsPath(req.Type), bookRequestDTO{
		Holder:          holderDTO{Name: req.HolderName, Email: req.HolderEmail, Phone: req.HolderPhone},
		ClientReference: req.ClientReference,
		Remark:          req.Remark,
		Language:        "ENG",
		Items:           []itemDTO{item},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.Booking.Reference == "" {
		return nil, fmt.Errorf("%s: supplier response has no booking reference", op)
	}

	return toConfirmation(resp.Booking)
}

// Cancel cancels a confirmed supplier booking.
func (c *Client) Cancel(ctx context.Context, bookingType models.BookingType, supplierReference string) error {
	const op = "clients.hotelbeds.Cancel"

	path := bookingsPath(bookingType) + "/" + url.PathEscape(supplierReference) + "?cancellationFlag=CANCELLATION"

	var resp bookingResponse
	if err := c.do(ctx, "cancel", http.MethodDelete, path, nil, &resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// FindByClientReference looks up a booking by our own reference. It returns
// ErrBookingNotFound when the supplier has no such booking.
func (c *Client) FindByClientReference(ctx context.Context, bookingType models.BookingType, clientReference string) (*Confirmation, error) {
	const op = "clients.hotelbeds.FindByClientReference"

	path := bookingsPath(bookingType) + "?clientReference=" + url.QueryEscape(clientReference)

	var resp bookingListResponse
	if err := c.do(ctx, "lookup", http.MethodGet, path, nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, b := range resp.Bookings {
		if b.ClientReference == clientReference && !strings.EqualFold(b.Status, "CANCELLED") {
			return toConfirmation(b)
		}
	}

	return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
}

func bookingsPath(t models.BookingType) string {
	switch t {
	case models.BookingTypeTransfer:
		return "/transfer-api/1.0/bookings"
	case models.BookingTypeActivity:
		return "/activity-api/3.0/bookings"
	default:
		return "/hotel-api/1.0/bookings"
	}
}

func toConfirmation(b bookingDTO) (*Confirmation, error) {
	c := &Confirmation{
		Reference:       b.Reference,
		ClientReference: b.ClientReference,
		Status:          b.Status,
		Currency:        b.Currency,
	}

	if b.TotalNet != "" {
		amount, err := money.ParseMinor(b.TotalNet)
		if err != nil {
			return nil, err
		}
		c.TotalNet = amount
	}

	return c, nil
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) (err error) {
	start := time.Now()
	outcome := "ok"

	defer func() {
		switch {
		case err == nil:
		case IsRejected(err):
			outcome = "rejected"
		default:
			outcome = "error"
		}
		metrics.ObserveSupplierCall(operation, outcome, time.Since(start))
	}()

	if err = c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Api-key", c.apiKey)
	req.Header.Set("X-Signature", Signature(c.apiKey, c.secret, c.now().Unix()))
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
		apiErr := &APIError{StatusCode: resp.StatusCode}

		var e errorResponse
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Code = e.Error.Code
			apiErr.Message = e.Error.Message
		}

		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err = json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
