package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/beyahq/inbox/internal/models"
)

// gmailRelayPayload is the JSON shape the Gmail relay posts for each
// forwarded message. Unlike SES, the relay has already parsed the MIME
// structure; it also carries Gmail's conversation id, the one
// provider-native thread identifier we get.
type gmailRelayPayload struct {
	MessageID  string            `json:"messageId"`
	ThreadID   string            `json:"threadId"`
	From       string            `json:"from"`
	To         []string          `json:"to"`
	Cc         []string          `json:"cc"`
	Bcc        []string          `json:"bcc"`
	Subject    string            `json:"subject"`
	TextBody   string            `json:"textBody"`
	HTMLBody   string            `json:"htmlBody"`
	Headers    map[string]string `json:"headers"`
	InternalTS int64             `json:"internalDate"`
}

// ParseGmailRelay decodes a Gmail-relay webhook payload into the normalized
// inbound shape.
func ParseGmailRelay(body []byte) (*models.Inbound, error) {
	var payload gmailRelayPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode gmail relay payload: %w", err)
	}

	if payload.From == "" {
		return nil, fmt.Errorf("gmail relay payload has no sender")
	}

	from := bareAddress(payload.From)

	in := &models.Inbound{
		Provider:          models.ProviderGmail,
		Channel:           models.ChannelEmail,
		Direction:         models.DirectionIncoming,
		From:              from,
		To:                payload.To,
		Cc:                payload.Cc,
		Bcc:               payload.Bcc,
		Subject:           payload.Subject,
		BodyText:          payload.TextBody,
		BodyHTML:          payload.HTMLBody,
		Headers:           models.NewHeaders(payload.Headers),
		ProviderMessageID: payload.MessageID,
		ProviderThreadID:  payload.ThreadID,
		ContactIdentifier: from,
		ReceivedAt:        time.Now().UTC(),
	}

	if payload.InternalTS > 0 {
		in.ReceivedAt = time.UnixMilli(payload.InternalTS).UTC()
	}

	return in, nil
}
