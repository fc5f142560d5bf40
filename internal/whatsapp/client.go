// Package whatsapp implements the WhatsApp Cloud API delivery provider.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	// DefaultAPIVersion is the Graph API version used when none is configured
	DefaultAPIVersion = "v21.0"
	// DefaultTimeout bounds a single send call
	DefaultTimeout = 15 * time.Second
	// MaxBodyLength is the Cloud API text body limit; longer answers are truncated
	MaxBodyLength = 4000
)

// ProviderError is a non-2xx response from the Cloud API. The status code
// drives the delivery engine's retry decision.
type ProviderError struct {
	StatusCode int
	Body       map[string]any
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("whatsapp send failed with status %d", e.StatusCode)
}

// IsRetryable reports whether the failure is a transient signal: rate
// limiting or a provider-side error.
func (e *ProviderError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config holds the Cloud API credentials and endpoint settings.
type Config struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string // override for tests; defaults to graph.facebook.com
	Timeout       time.Duration
}

// Client posts text messages to the WhatsApp Cloud API.
type Client struct {
	httpClient    *http.Client
	accessToken   string
	phoneNumberID string
	baseURL       string
	apiVersion    string
}

func NewClient(cfg Config) *Client {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       baseURL,
		apiVersion:    apiVersion,
	}
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// truncateBody caps body at max bytes without splitting a UTF-8 rune; the
// cut backs up to the nearest rune boundary.
func truncateBody(body string, max int) string {
	if len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

// SendText posts a single text message. A non-2xx response is returned as
// a *ProviderError carrying the status code and decoded provider body.
func (c *Client) SendText(ctx context.Context, to, body string) (map[string]any, error) {
	body = truncateBody(body, MaxBodyLength)

	payload, err := json.Marshal(textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 {
		// Provider bodies that fail to decode are still reported by status.
		_ = json.Unmarshal(raw, &decoded)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: decoded}
	}

	return decoded, nil
}
