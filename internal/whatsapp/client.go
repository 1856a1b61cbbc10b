package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the client has no token or phone number id.
var ErrNotConfigured = errors.New("whatsapp client not configured")

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiVersion    string
	phoneNumberID string
	token         string
}

// NewClient creates a Graph API client. baseURL is normally
// https://graph.facebook.com.
func NewClient(baseURL, apiVersion, phoneNumberID, token string) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiVersion:    apiVersion,
		phoneNumberID: phoneNumberID,
		token:         token,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type readReceipt struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

// SendResponse is the Graph API answer to a send request.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a plain text message to a WhatsApp user.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	_, err := c.SendTextWithResponse(ctx, to, body)
	return err
}

// SendTextWithResponse sends a plain text message and returns the API response.
func (c *Client) SendTextWithResponse(ctx context.Context, to, body string) (*SendResponse, error) {
	msg := textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
	}
	msg.Text.Body = body

	var resp SendResponse
	if err := c.post(ctx, msg, &resp); err != nil {
		return nil, fmt.Errorf("SendText: %w", err)
	}
	return &resp, nil
}

// MarkRead marks an inbound message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	receipt := readReceipt{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	}
	if err := c.post(ctx, receipt, nil); err != nil {
		return fmt.Errorf("MarkRead: %w", err)
	}
	return nil
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)
}

func (c *Client) post(ctx context.Context, payload, out interface{}) error {
	if c.token == "" || c.phoneNumberID == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("graph api status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
