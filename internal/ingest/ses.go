package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beyahq/inbox/internal/models"
	"github.com/jhillyerd/enmime"
)

// SNSEnvelope is the outer wrapper SNS puts around an SES receipt
// notification.
type SNSEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicArn  string `json:"TopicArn"`
	Message   string `json:"Message"`
}

// sesNotification is the SES receipt payload carried inside the SNS
// envelope. Content holds the raw MIME message, base64-encoded.
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID   string   `json:"messageId"`
		Source      string   `json:"source"`
		Destination []string `json:"destination"`
		Timestamp   string   `json:"timestamp"`
	} `json:"mail"`
	Content string `json:"content"`
}

// ParseSESNotification decodes an SNS-wrapped SES receipt into the
// normalized inbound shape, parsing the raw MIME content for subject,
// bodies, and the full header bag.
func ParseSESNotification(body []byte) (*models.Inbound, error) {
	var envelope SNSEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode SNS envelope: %w", err)
	}

	// SNS sends SubscriptionConfirmation once per topic subscription; there
	// is no message inside, just an ack-worthy handshake.
	if envelope.Type == "SubscriptionConfirmation" {
		return nil, fmt.Errorf("subscription confirmation: %w", ErrIgnoredNotification)
	}

	var notification sesNotification
	if err := json.Unmarshal([]byte(envelope.Message), &notification); err != nil {
		return nil, fmt.Errorf("failed to decode SES notification: %w", err)
	}

	if notification.NotificationType != "Received" {
		return nil, fmt.Errorf("SES notification type %q: %w", notification.NotificationType, ErrIgnoredNotification)
	}

	raw, err := base64.StdEncoding.DecodeString(notification.Content)
	if err != nil {
		// Some configurations deliver the content unencoded.
		raw = []byte(notification.Content)
	}

	parsed, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIME content: %w", err)
	}

	headers := models.Headers{}
	for _, key := range parsed.GetHeaderKeys() {
		headers.Set(key, parsed.GetHeader(key))
	}

	from := bareAddress(parsed.GetHeader("From"))
	if from == "" {
		from = bareAddress(notification.Mail.Source)
	}

	in := &models.Inbound{
		Provider:          models.ProviderSES,
		Channel:           models.ChannelEmail,
		Direction:         models.DirectionIncoming,
		From:              from,
		To:                splitAddressList(parsed.GetHeader("To")),
		Cc:                splitAddressList(parsed.GetHeader("Cc")),
		Bcc:               splitAddressList(parsed.GetHeader("Bcc")),
		Subject:           parsed.GetHeader("Subject"),
		BodyText:          parsed.Text,
		BodyHTML:          parsed.HTML,
		Headers:           headers,
		ProviderMessageID: notification.Mail.MessageID,
		ContactIdentifier: from,
		ReceivedAt:        time.Now().UTC(),
	}

	if len(in.To) == 0 {
		in.To = notification.Mail.Destination
	}

	if ts, err := time.Parse(time.RFC3339, notification.Mail.Timestamp); err == nil {
		in.ReceivedAt = ts
	}

	return in, nil
}
