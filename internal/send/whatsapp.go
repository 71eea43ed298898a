package send

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WhatsAppSender delivers messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	apiBase string
	phoneID string
	token   string
	client  *http.Client
}

// NewWhatsAppSender creates a sender for the given business phone number id.
func NewWhatsAppSender(apiBase, phoneID, token string) *WhatsAppSender {
	return &WhatsAppSender{
		apiBase: apiBase,
		phoneID: phoneID,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type whatsAppSendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send posts a text message to the Cloud API. WhatsApp addresses one
// recipient per call; only the first To entry is used.
func (s *WhatsAppSender) Send(ctx context.Context, req *Request) (*Result, error) {
	if len(req.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	payload, err := json.Marshal(whatsAppSendRequest{
		MessagingProduct: "whatsapp",
		To:               req.To[0],
		Type:             "text",
		Text:             whatsAppText{Body: req.Body},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.apiBase, s.phoneID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call WhatsApp API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read WhatsApp response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("WhatsApp API returned status %d: %s", resp.StatusCode, body)
	}

	var parsed whatsAppSendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode WhatsApp response: %w", err)
	}

	result := &Result{}
	if len(parsed.Messages) > 0 {
		result.ProviderMessageID = parsed.Messages[0].ID
	}
	return result, nil
}
