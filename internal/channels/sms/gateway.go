package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
)

const DefaultTimeout = 5 * time.Second

var ErrNotConfigured = errors.New("sms gateway not configured")

type message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Gateway posts text messages to an HTTP SMS provider as JSON.
type Gateway struct {
	url    string
	token  string
	client *http.Client
}

func NewGateway(url, token string) *Gateway {
	return &Gateway{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

func (g *Gateway) Send(ctx context.Context, phoneNumber, body string) error {
	if g.url == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(message{To: phoneNumber, Body: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TxnNotify-SMS/1.0")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
}

var _ interfaces.SMSChannel = (*Gateway)(nil)
