package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/beyahq/inbox/internal/models"
)

// whatsAppWebhook mirrors the Meta Cloud API change-notification shape.
// A single POST can batch several messages across several entries.
type whatsAppWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
					Context struct {
						ID string `json:"id"`
					} `json:"context"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWhatsAppWebhook decodes a WhatsApp Cloud API webhook into normalized
// inbound messages, one per message in the batch. Non-text message types are
// skipped. A quoted-reply context id is carried through as the provider
// thread identifier since WhatsApp has no explicit conversation id.
func ParseWhatsAppWebhook(body []byte) ([]*models.Inbound, error) {
	var webhook whatsAppWebhook
	if err := json.Unmarshal(body, &webhook); err != nil {
		return nil, fmt.Errorf("failed to decode whatsapp webhook: %w", err)
	}

	if webhook.Object != "whatsapp_business_account" {
		return nil, fmt.Errorf("unsupported webhook object %q", webhook.Object)
	}

	var inbounds []*models.Inbound
	for _, entry := range webhook.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, msg := range value.Messages {
				if msg.Type != "text" {
					continue
				}

				in := &models.Inbound{
					Provider:          models.ProviderWhatsApp,
					Channel:           models.ChannelWhatsApp,
					Direction:         models.DirectionIncoming,
					From:              msg.From,
					BodyText:          msg.Text.Body,
					Headers:           models.Headers{},
					ProviderMessageID: msg.ID,
					ContactIdentifier: msg.From,
					ReceivedAt:        time.Now().UTC(),
				}

				if value.Metadata.DisplayPhoneNumber != "" {
					in.To = []string{value.Metadata.DisplayPhoneNumber}
				}
				if msg.Context.ID != "" {
					in.ProviderThreadID = msg.Context.ID
				}
				if secs, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
					in.ReceivedAt = time.Unix(secs, 0).UTC()
				}

				inbounds = append(inbounds, in)
			}
		}
	}

	return inbounds, nil
}
