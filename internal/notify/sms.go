package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"travelBooker/internal/config"
	"travelBooker/internal/tracing"
)

type SMSChannel struct {
	baseURL string
	apiKey  string
	sender  string
	http    *http.Client
}

func NewSMSChannel(cfg config.SMS) *SMSChannel {
	return &SMSChannel{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		sender:  cfg.Sender,
		http:    tracing.NewHTTPClient(cfg.Timeout),
	}
}

func (c *SMSChannel) Name() string { return "sms" }

type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func (c *SMSChannel) Send(ctx context.Context, n Notification) error {
	if n.Phone == "" {
		return ErrNoRecipient
	}

	body, err := json.Marshal(smsRequest{From: c.sender, To: n.Phone, Text: n.Subject})
	if err != nil {
		return fmt.Errorf("notify.sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify.sms: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify.sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify.sms: unexpected status %d", resp.StatusCode)
	}

	return nil
}
